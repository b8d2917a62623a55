package amf

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"maps"
	"slices"
	"time"
)

// AvmPlus wraps a value that is written as an AMF3 value inside an AMF0 stream.
type AvmPlus struct {
	Value any
}

func EncodeAMF0Sequence(values ...any) ([]byte, error) {
	buf := new(bytes.Buffer)
	if err := WriteAMF0Sequence(buf, values...); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// WriteAMF0Sequence writes the values one after another.
func WriteAMF0Sequence(w io.Writer, values ...any) error {
	for _, val := range values {
		if err := encodeValue(w, val); err != nil {
			return err
		}
	}
	return nil
}

func encodeValue(w io.Writer, value any) error {
	if n, ok := ToFloat64(value); ok {
		if err := writeByte(w, numberMarker); err != nil {
			return err
		}
		return binary.Write(w, binary.BigEndian, n)
	}

	switch v := value.(type) {
	case nil:
		_, err := w.Write([]byte{nullMarker})
		return err
	case bool:
		b := byte(0)
		if v {
			b = 1
		}
		_, err := w.Write([]byte{booleanMarker, b})
		return err
	case string:
		return encodeString(w, v)
	case map[string]any:
		return encodeObject(w, v)
	case ECMAArray:
		return encodeECMAArray(w, v)
	case *TypedObject:
		return encodeTypedObject(w, v)
	case []any:
		return encodeStrictArray(w, v)
	case time.Time:
		return encodeDate(w, v)
	case AvmPlus:
		if err := writeByte(w, avmPlusObjectMarker); err != nil {
			return err
		}
		return NewAMF3Context().encode(w, v.Value)
	default:
		return fmt.Errorf("unsupported AMF0 type: %T", value)
	}
}

// ToFloat64 converts any Go numeric type to the AMF number representation.
func ToFloat64(value any) (float64, bool) {
	switch v := value.(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int8:
		return float64(v), true
	case int16:
		return float64(v), true
	case int32:
		return float64(v), true
	case int64:
		return float64(v), true
	case uint:
		return float64(v), true
	case uint8:
		return float64(v), true
	case uint16:
		return float64(v), true
	case uint32:
		return float64(v), true
	case uint64:
		return float64(v), true
	}
	return 0, false
}

func encodeString(w io.Writer, s string) error {
	length := len(s)
	if length < 65536 {
		if err := writeByte(w, stringMarker); err != nil {
			return err
		}
		if err := binary.Write(w, binary.BigEndian, uint16(length)); err != nil {
			return err
		}
	} else {
		if err := writeByte(w, longStringMarker); err != nil {
			return err
		}
		if err := binary.Write(w, binary.BigEndian, uint32(length)); err != nil {
			return err
		}
	}
	_, err := io.WriteString(w, s)
	return err
}

func encodeObject(w io.Writer, obj map[string]any) error {
	if err := writeByte(w, objectMarker); err != nil {
		return err
	}
	return encodeProperties(w, obj)
}

func encodeECMAArray(w io.Writer, arr ECMAArray) error {
	if err := writeByte(w, ecmaArrayMarker); err != nil {
		return err
	}
	if err := binary.Write(w, binary.BigEndian, uint32(len(arr))); err != nil {
		return err
	}
	return encodeProperties(w, arr)
}

func encodeTypedObject(w io.Writer, obj *TypedObject) error {
	if err := writeByte(w, typedObjectMarker); err != nil {
		return err
	}
	if err := writeUTF8(w, obj.ClassName); err != nil {
		return err
	}
	return encodeProperties(w, obj.Fields)
}

// encodeProperties writes key/value pairs in key order followed by the object end marker.
func encodeProperties(w io.Writer, obj map[string]any) error {
	for _, key := range slices.Sorted(maps.Keys(obj)) {
		if err := writeUTF8(w, key); err != nil {
			return err
		}
		if err := encodeValue(w, obj[key]); err != nil {
			return err
		}
	}
	// object end marker: 0x00 0x00 0x09
	_, err := w.Write([]byte{0x00, 0x00, objectEndMarker})
	return err
}

// writeUTF8 writes a string with a 16 bit length prefix and no marker.
func writeUTF8(w io.Writer, s string) error {
	if len(s) > 65535 {
		return fmt.Errorf("string too long: %d bytes", len(s))
	}
	if err := binary.Write(w, binary.BigEndian, uint16(len(s))); err != nil {
		return err
	}
	_, err := io.WriteString(w, s)
	return err
}

func encodeStrictArray(w io.Writer, arr []any) error {
	if err := writeByte(w, strictArrayMarker); err != nil {
		return err
	}
	if err := binary.Write(w, binary.BigEndian, uint32(len(arr))); err != nil {
		return err
	}
	for _, v := range arr {
		if err := encodeValue(w, v); err != nil {
			return err
		}
	}
	return nil
}

func encodeDate(w io.Writer, t time.Time) error {
	if err := writeByte(w, dateMarker); err != nil {
		return err
	}
	ms := float64(t.UnixNano()) / 1e6
	if err := binary.Write(w, binary.BigEndian, ms); err != nil {
		return err
	}
	// timezone, always 0
	return binary.Write(w, binary.BigEndian, int16(0))
}

func writeByte(w io.Writer, b byte) error {
	_, err := w.Write([]byte{b})
	return err
}

// WriteUTF8 writes a length prefixed string without a type marker, as used for
// shared object names and attribute keys.
func WriteUTF8(w io.Writer, s string) error {
	return writeUTF8(w, s)
}

// ReadUTF8 reads a length prefixed string without a type marker.
func ReadUTF8(r io.Reader) (string, error) {
	return decodeString(r)
}
