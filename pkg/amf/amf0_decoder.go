package amf

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"time"
)

// amf0Context keeps the complex values read so far so that reference markers can be resolved.
// A context lives for one message.
type amf0Context struct {
	refs []any
	amf3 *AMF3Context
}

func newAMF0Context() *amf0Context {
	return &amf0Context{
		refs: make([]any, 0),
	}
}

// DecodeAMF0Sequence decodes values until the reader is exhausted.
func DecodeAMF0Sequence(r io.Reader) ([]any, error) {
	ctx := newAMF0Context()
	values := make([]any, 0, 5)

	for {
		val, err := ctx.decode(r)
		switch {
		case err == nil:
			values = append(values, val)
		case errors.Is(err, io.EOF):
			return values, nil
		default:
			return nil, fmt.Errorf("AMF0 decode failed: %w", err)
		}
	}
}

// DecodeAMF0 decodes a single value.
func DecodeAMF0(r io.Reader) (any, error) {
	return newAMF0Context().decode(r)
}

func (c *amf0Context) decode(r io.Reader) (any, error) {
	marker := make([]byte, 1)
	if _, err := io.ReadFull(r, marker); err != nil {
		return nil, err
	}

	switch marker[0] {
	case numberMarker:
		return decodeNumber(r)
	case booleanMarker:
		return decodeBoolean(r)
	case stringMarker:
		return decodeString(r)
	case objectMarker:
		return c.decodeObject(r)
	case nullMarker, undefinedMarker, unsupportedMarker:
		return nil, nil
	case referenceMarker:
		return c.decodeReference(r)
	case ecmaArrayMarker:
		return c.decodeECMAArray(r)
	case strictArrayMarker:
		return c.decodeStrictArray(r)
	case dateMarker:
		return decodeDate(r)
	case longStringMarker, xmlDocumentMarker:
		return decodeLongString(r)
	case typedObjectMarker:
		return c.decodeTypedObject(r)
	case avmPlusObjectMarker:
		if c.amf3 == nil {
			c.amf3 = NewAMF3Context()
		}
		return c.amf3.DecodeAMF3(r)
	default:
		return nil, fmt.Errorf("unsupported AMF0 marker: 0x%x", marker[0])
	}
}

func decodeNumber(r io.Reader) (float64, error) {
	var num float64
	err := binary.Read(r, binary.BigEndian, &num)
	return num, err
}

func decodeBoolean(r io.Reader) (bool, error) {
	b := make([]byte, 1)
	if _, err := io.ReadFull(r, b); err != nil {
		return false, err
	}
	return b[0] != 0, nil
}

func decodeString(r io.Reader) (string, error) {
	var length uint16
	if err := binary.Read(r, binary.BigEndian, &length); err != nil {
		return "", err
	}
	buf := make([]byte, length)
	if _, err := io.ReadFull(r, buf); err != nil {
		return "", err
	}
	return string(buf), nil
}

func decodeLongString(r io.Reader) (string, error) {
	var length uint32
	if err := binary.Read(r, binary.BigEndian, &length); err != nil {
		return "", err
	}
	buf := make([]byte, length)
	if _, err := io.ReadFull(r, buf); err != nil {
		return "", err
	}
	return string(buf), nil
}

func (c *amf0Context) decodeReference(r io.Reader) (any, error) {
	var index uint16
	if err := binary.Read(r, binary.BigEndian, &index); err != nil {
		return nil, err
	}
	if int(index) >= len(c.refs) {
		return nil, fmt.Errorf("reference out of bounds: %d", index)
	}
	return c.refs[index], nil
}

func (c *amf0Context) decodeECMAArray(r io.Reader) (map[string]any, error) {
	// the count is advisory, the array is terminated like an object
	var length uint32
	if err := binary.Read(r, binary.BigEndian, &length); err != nil {
		return nil, err
	}
	return c.decodeObject(r)
}

func (c *amf0Context) decodeObject(r io.Reader) (map[string]any, error) {
	obj := make(map[string]any)
	c.refs = append(c.refs, obj)
	end := make([]byte, 1)

	for {
		key, err := decodeString(r)
		if err != nil {
			return nil, err
		}
		if len(key) == 0 {
			if _, err := io.ReadFull(r, end); err != nil {
				return nil, err
			}
			if end[0] == objectEndMarker {
				break
			}
			return nil, errors.New("expected object end marker")
		}
		val, err := c.decode(r)
		if err != nil {
			return nil, err
		}
		obj[key] = val
	}
	return obj, nil
}

func (c *amf0Context) decodeTypedObject(r io.Reader) (*TypedObject, error) {
	className, err := decodeString(r)
	if err != nil {
		return nil, err
	}
	fields, err := c.decodeObject(r)
	if err != nil {
		return nil, err
	}
	return &TypedObject{ClassName: className, Fields: fields}, nil
}

func (c *amf0Context) decodeStrictArray(r io.Reader) ([]any, error) {
	var count uint32
	if err := binary.Read(r, binary.BigEndian, &count); err != nil {
		return nil, err
	}
	arr := make([]any, 0, min(count, 1024))
	ref := len(c.refs)
	c.refs = append(c.refs, nil)
	for i := uint32(0); i < count; i++ {
		v, err := c.decode(r)
		if err != nil {
			return nil, err
		}
		arr = append(arr, v)
	}
	c.refs[ref] = arr
	return arr, nil
}

func decodeDate(r io.Reader) (time.Time, error) {
	var millis float64
	if err := binary.Read(r, binary.BigEndian, &millis); err != nil {
		return time.Time{}, err
	}

	offset := make([]byte, 2)
	if _, err := io.ReadFull(r, offset); err != nil {
		return time.Time{}, err
	}

	return millisToTime(millis), nil
}

func millisToTime(millis float64) time.Time {
	sec := int64(millis / 1000)
	fracMillis := math.Mod(millis, 1000)
	nanoSec := int64(fracMillis * 1e6)

	return time.Unix(sec, nanoSec).UTC()
}
