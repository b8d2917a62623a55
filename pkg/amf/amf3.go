package amf

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"maps"
	"math"
	"slices"
	"strconv"
	"time"
)

// AMF3Context holds the reference tables of one AMF3 stream.
type AMF3Context struct {
	stringTable []string
	objectTable []any
	traitTable  []*amf3Traits
}

type amf3Traits struct {
	className      string
	dynamic        bool
	externalizable bool
	members        []string
}

func NewAMF3Context() *AMF3Context {
	return &AMF3Context{
		stringTable: make([]string, 0),
		objectTable: make([]any, 0),
		traitTable:  make([]*amf3Traits, 0),
	}
}

func DecodeAMF3Sequence(r io.Reader) ([]any, error) {
	ctx := NewAMF3Context()
	values := make([]any, 0, 5)

	for {
		val, err := ctx.DecodeAMF3(r)
		switch {
		case err == nil:
			values = append(values, val)
		case errors.Is(err, io.EOF):
			return values, nil
		default:
			return nil, fmt.Errorf("AMF3 decode failed: %w", err)
		}
	}
}

func EncodeAMF3Sequence(values ...any) ([]byte, error) {
	ctx := NewAMF3Context()
	buf := new(bytes.Buffer)
	for _, val := range values {
		if err := ctx.encode(buf, val); err != nil {
			return nil, err
		}
	}
	return buf.Bytes(), nil
}

func (c *AMF3Context) DecodeAMF3(r io.Reader) (any, error) {
	marker := make([]byte, 1)
	if _, err := io.ReadFull(r, marker); err != nil {
		return nil, err
	}

	switch marker[0] {
	case amf3UndefinedMarker, amf3NullMarker:
		return nil, nil
	case amf3FalseMarker:
		return false, nil
	case amf3TrueMarker:
		return true, nil
	case amf3IntegerMarker:
		return c.decodeInteger(r)
	case amf3DoubleMarker:
		return decodeNumber(r)
	case amf3StringMarker:
		return c.decodeStringValue(r)
	case amf3XMLDocMarker, amf3XMLMarker:
		return c.decodeXML(r)
	case amf3DateMarker:
		return c.decodeDate(r)
	case amf3ArrayMarker:
		return c.decodeArray(r)
	case amf3ObjectMarker:
		return c.decodeObject(r)
	case amf3ByteArrayMarker:
		return c.decodeByteArray(r)
	default:
		return nil, fmt.Errorf("unsupported AMF3 marker: 0x%x", marker[0])
	}
}

// decodeU29 reads a variable length unsigned 29 bit integer.
func (c *AMF3Context) decodeU29(r io.Reader) (uint32, error) {
	var result uint32
	b := make([]byte, 1)
	for i := 0; i < 4; i++ {
		if _, err := io.ReadFull(r, b); err != nil {
			return 0, err
		}
		if i == 3 {
			return result<<8 | uint32(b[0]), nil
		}
		result = result<<7 | uint32(b[0]&0x7F)
		if b[0]&0x80 == 0 {
			return result, nil
		}
	}
	return result, nil
}

func (c *AMF3Context) decodeInteger(r io.Reader) (int32, error) {
	u, err := c.decodeU29(r)
	if err != nil {
		return 0, err
	}
	// sign extend the 29 bit value
	return int32(u<<3) >> 3, nil
}

func (c *AMF3Context) decodeStringValue(r io.Reader) (string, error) {
	u, err := c.decodeU29(r)
	if err != nil {
		return "", err
	}
	if u&0x01 == 0 {
		index := int(u >> 1)
		if index >= len(c.stringTable) {
			return "", fmt.Errorf("string reference out of bounds: %d", index)
		}
		return c.stringTable[index], nil
	}

	buf := make([]byte, u>>1)
	if _, err := io.ReadFull(r, buf); err != nil {
		return "", err
	}
	s := string(buf)
	if s != "" {
		c.stringTable = append(c.stringTable, s)
	}
	return s, nil
}

// objectReference resolves the reference form of a complex value. ok is false when the
// value is inline and u holds the remaining header bits.
func (c *AMF3Context) objectReference(r io.Reader) (ref any, u uint32, ok bool, err error) {
	u, err = c.decodeU29(r)
	if err != nil {
		return nil, 0, false, err
	}
	if u&0x01 == 0 {
		index := int(u >> 1)
		if index >= len(c.objectTable) {
			return nil, 0, false, fmt.Errorf("object reference out of bounds: %d", index)
		}
		return c.objectTable[index], 0, true, nil
	}
	return nil, u >> 1, false, nil
}

func (c *AMF3Context) decodeXML(r io.Reader) (string, error) {
	ref, length, ok, err := c.objectReference(r)
	if err != nil {
		return "", err
	}
	if ok {
		s, isString := ref.(string)
		if !isString {
			return "", fmt.Errorf("xml reference has type %T", ref)
		}
		return s, nil
	}
	buf := make([]byte, length)
	if _, err := io.ReadFull(r, buf); err != nil {
		return "", err
	}
	c.objectTable = append(c.objectTable, string(buf))
	return string(buf), nil
}

func (c *AMF3Context) decodeDate(r io.Reader) (time.Time, error) {
	ref, _, ok, err := c.objectReference(r)
	if err != nil {
		return time.Time{}, err
	}
	if ok {
		t, isTime := ref.(time.Time)
		if !isTime {
			return time.Time{}, fmt.Errorf("date reference has type %T", ref)
		}
		return t, nil
	}
	millis, err := decodeNumber(r)
	if err != nil {
		return time.Time{}, err
	}
	t := millisToTime(millis)
	c.objectTable = append(c.objectTable, t)
	return t, nil
}

// decodeArray returns []any for dense arrays and map[string]any when the array has
// associative entries; dense entries are then keyed by their index.
func (c *AMF3Context) decodeArray(r io.Reader) (any, error) {
	ref, count, ok, err := c.objectReference(r)
	if err != nil {
		return nil, err
	}
	if ok {
		switch ref.(type) {
		case []any, map[string]any:
			return ref, nil
		}
		return nil, fmt.Errorf("array reference has type %T", ref)
	}

	index := len(c.objectTable)
	c.objectTable = append(c.objectTable, nil)

	var assoc map[string]any
	for {
		key, err := c.decodeStringValue(r)
		if err != nil {
			return nil, err
		}
		if key == "" {
			break
		}
		if assoc == nil {
			assoc = make(map[string]any)
		}
		val, err := c.DecodeAMF3(r)
		if err != nil {
			return nil, err
		}
		assoc[key] = val
	}

	dense := make([]any, 0, min(count, 1024))
	for i := uint32(0); i < count; i++ {
		val, err := c.DecodeAMF3(r)
		if err != nil {
			return nil, err
		}
		dense = append(dense, val)
	}

	if assoc == nil {
		c.objectTable[index] = dense
		return dense, nil
	}
	for i, val := range dense {
		assoc[strconv.Itoa(i)] = val
	}
	c.objectTable[index] = assoc
	return assoc, nil
}

func (c *AMF3Context) decodeObject(r io.Reader) (any, error) {
	ref, u, ok, err := c.objectReference(r)
	if err != nil {
		return nil, err
	}
	if ok {
		return ref, nil
	}

	traits, err := c.decodeTraits(r, u)
	if err != nil {
		return nil, err
	}
	if traits.externalizable {
		return nil, fmt.Errorf("externalizable object not supported: %s", traits.className)
	}

	obj := make(map[string]any)
	c.objectTable = append(c.objectTable, obj)

	for _, member := range traits.members {
		val, err := c.DecodeAMF3(r)
		if err != nil {
			return nil, err
		}
		obj[member] = val
	}

	if traits.dynamic {
		for {
			key, err := c.decodeStringValue(r)
			if err != nil {
				return nil, err
			}
			if key == "" {
				break
			}
			val, err := c.DecodeAMF3(r)
			if err != nil {
				return nil, err
			}
			obj[key] = val
		}
	}
	return obj, nil
}

// decodeTraits reads inline traits or resolves a trait reference. u is the object header
// with the inline-object bit already removed.
func (c *AMF3Context) decodeTraits(r io.Reader, u uint32) (*amf3Traits, error) {
	if u&0x01 == 0 {
		index := int(u >> 1)
		if index >= len(c.traitTable) {
			return nil, fmt.Errorf("trait reference out of bounds: %d", index)
		}
		return c.traitTable[index], nil
	}

	traits := &amf3Traits{
		externalizable: u&0x02 != 0,
		dynamic:        u&0x04 != 0,
	}
	className, err := c.decodeStringValue(r)
	if err != nil {
		return nil, err
	}
	traits.className = className

	count := u >> 3
	for i := uint32(0); i < count; i++ {
		member, err := c.decodeStringValue(r)
		if err != nil {
			return nil, err
		}
		traits.members = append(traits.members, member)
	}
	c.traitTable = append(c.traitTable, traits)
	return traits, nil
}

func (c *AMF3Context) decodeByteArray(r io.Reader) ([]byte, error) {
	ref, length, ok, err := c.objectReference(r)
	if err != nil {
		return nil, err
	}
	if ok {
		b, isBytes := ref.([]byte)
		if !isBytes {
			return nil, fmt.Errorf("byte array reference has type %T", ref)
		}
		return b, nil
	}
	buf := make([]byte, length)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, err
	}
	c.objectTable = append(c.objectTable, buf)
	return buf, nil
}

func (c *AMF3Context) encode(w io.Writer, value any) error {
	switch v := value.(type) {
	case nil:
		return writeByte(w, amf3NullMarker)
	case bool:
		if v {
			return writeByte(w, amf3TrueMarker)
		}
		return writeByte(w, amf3FalseMarker)
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
		n, _ := ToFloat64(v)
		if n >= amf3IntegerMin && n <= amf3IntegerMax {
			if err := writeByte(w, amf3IntegerMarker); err != nil {
				return err
			}
			return c.encodeU29(w, uint32(int32(n))&0x1FFFFFFF)
		}
		return c.encodeDouble(w, n)
	case float32:
		return c.encodeDouble(w, float64(v))
	case float64:
		return c.encodeDouble(w, v)
	case string:
		if err := writeByte(w, amf3StringMarker); err != nil {
			return err
		}
		return c.encodeStringValue(w, v)
	case time.Time:
		return c.encodeDate(w, v)
	case []byte:
		if err := writeByte(w, amf3ByteArrayMarker); err != nil {
			return err
		}
		if err := c.encodeU29(w, uint32(len(v))<<1|0x01); err != nil {
			return err
		}
		_, err := w.Write(v)
		return err
	case []any:
		return c.encodeArray(w, v)
	case map[string]any:
		return c.encodeObject(w, v)
	case ECMAArray:
		return c.encodeObject(w, v)
	default:
		return fmt.Errorf("unsupported AMF3 type: %T", value)
	}
}

func (c *AMF3Context) encodeU29(w io.Writer, v uint32) error {
	var buf []byte
	switch {
	case v < 0x80:
		buf = []byte{byte(v)}
	case v < 0x4000:
		buf = []byte{byte(v>>7) | 0x80, byte(v & 0x7F)}
	case v < 0x200000:
		buf = []byte{byte(v>>14) | 0x80, byte(v>>7)&0x7F | 0x80, byte(v & 0x7F)}
	case v < 0x40000000:
		buf = []byte{byte(v>>22) | 0x80, byte(v>>15)&0x7F | 0x80, byte(v>>8)&0x7F | 0x80, byte(v)}
	default:
		return fmt.Errorf("U29 out of range: %d", v)
	}
	_, err := w.Write(buf)
	return err
}

func (c *AMF3Context) encodeDouble(w io.Writer, v float64) error {
	if err := writeByte(w, amf3DoubleMarker); err != nil {
		return err
	}
	return binary.Write(w, binary.BigEndian, math.Float64bits(v))
}

func (c *AMF3Context) encodeStringValue(w io.Writer, s string) error {
	if s != "" {
		if index := slices.Index(c.stringTable, s); index >= 0 {
			return c.encodeU29(w, uint32(index)<<1)
		}
		c.stringTable = append(c.stringTable, s)
	}
	if err := c.encodeU29(w, uint32(len(s))<<1|0x01); err != nil {
		return err
	}
	_, err := io.WriteString(w, s)
	return err
}

func (c *AMF3Context) encodeDate(w io.Writer, t time.Time) error {
	if err := writeByte(w, amf3DateMarker); err != nil {
		return err
	}
	if err := c.encodeU29(w, 0x01); err != nil {
		return err
	}
	ms := float64(t.UnixNano()) / 1e6
	return binary.Write(w, binary.BigEndian, ms)
}

func (c *AMF3Context) encodeArray(w io.Writer, arr []any) error {
	if err := writeByte(w, amf3ArrayMarker); err != nil {
		return err
	}
	if err := c.encodeU29(w, uint32(len(arr))<<1|0x01); err != nil {
		return err
	}
	// no associative part
	if err := c.encodeStringValue(w, ""); err != nil {
		return err
	}
	for _, v := range arr {
		if err := c.encode(w, v); err != nil {
			return err
		}
	}
	return nil
}

// encodeObject writes an anonymous dynamic object.
func (c *AMF3Context) encodeObject(w io.Writer, obj map[string]any) error {
	if err := writeByte(w, amf3ObjectMarker); err != nil {
		return err
	}
	// inline object, inline traits, dynamic, no sealed members
	if err := c.encodeU29(w, 0x0B); err != nil {
		return err
	}
	if err := c.encodeStringValue(w, ""); err != nil {
		return err
	}
	for _, key := range slices.Sorted(maps.Keys(obj)) {
		if err := c.encodeStringValue(w, key); err != nil {
			return err
		}
		if err := c.encode(w, obj[key]); err != nil {
			return err
		}
	}
	return c.encodeStringValue(w, "")
}
