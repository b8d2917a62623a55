package amf

import (
	"bytes"
	"errors"
	"strings"
	"testing"
	"time"
)

// errorWriter fails every write after errorAfter successful writes.
type errorWriter struct {
	errorAfter int
	writeCount int
}

func (ew *errorWriter) Write(p []byte) (n int, err error) {
	ew.writeCount++
	if ew.writeCount > ew.errorAfter {
		return 0, errors.New("write error")
	}
	return len(p), nil
}

func TestEncodeAMF0Sequence_RoundTrip(t *testing.T) {
	values := []any{3.14, true, "hello", map[string]any{"foo": "bar"}, nil}
	data, err := EncodeAMF0Sequence(values...)
	if err != nil {
		t.Fatal(err)
	}

	decoded, err := DecodeAMF0Sequence(bytes.NewReader(data))
	if err != nil {
		t.Fatal(err)
	}
	if len(decoded) != len(values) {
		t.Fatalf("expected %d values, got %d", len(values), len(decoded))
	}
	if decoded[2] != "hello" {
		t.Errorf("expected hello, got %v", decoded[2])
	}
	if decoded[4] != nil {
		t.Errorf("expected nil, got %v", decoded[4])
	}
}

func TestEncodeAMF0Sequence_UnsupportedType(t *testing.T) {
	type unsupportedType struct{}
	_, err := EncodeAMF0Sequence(unsupportedType{})
	if err == nil {
		t.Fatal("expected error for unsupported type")
	}
}

func TestEncodeAMF0_Number(t *testing.T) {
	data, err := EncodeAMF0Sequence(3.14)
	if err != nil {
		t.Fatal(err)
	}

	expected := []byte{0x00, 0x40, 0x09, 0x1e, 0xb8, 0x51, 0xeb, 0x85, 0x1f}
	if !bytes.Equal(data, expected) {
		t.Errorf("expected %v, got %v", expected, data)
	}
}

func TestEncodeValue_IntegerTypes(t *testing.T) {
	for _, v := range []any{int(42), int32(42), int64(42), uint8(42), uint16(42), uint32(42), float32(42)} {
		buf := new(bytes.Buffer)
		if err := encodeValue(buf, v); err != nil {
			t.Fatalf("%T: %v", v, err)
		}
		decoded, err := DecodeAMF0(bytes.NewReader(buf.Bytes()))
		if err != nil {
			t.Fatalf("%T: %v", v, err)
		}
		if decoded != float64(42) {
			t.Errorf("%T: expected 42, got %v", v, decoded)
		}
	}
}

func TestEncodeValue_NumberWriteError(t *testing.T) {
	if err := encodeValue(&errorWriter{errorAfter: 0}, 3.14); err == nil {
		t.Fatal("expected write error")
	}
	if err := encodeValue(&errorWriter{errorAfter: 1}, 3.14); err == nil {
		t.Fatal("expected binary write error")
	}
}

func TestEncodeAMF0_Boolean(t *testing.T) {
	data, err := EncodeAMF0Sequence(true, false)
	if err != nil {
		t.Fatal(err)
	}
	expected := []byte{0x01, 0x01, 0x01, 0x00}
	if !bytes.Equal(data, expected) {
		t.Errorf("expected %v, got %v", expected, data)
	}
}

func TestEncodeAMF0_String(t *testing.T) {
	data, err := EncodeAMF0Sequence("hello")
	if err != nil {
		t.Fatal(err)
	}

	expected := []byte{0x02, 0x00, 0x05, 'h', 'e', 'l', 'l', 'o'}
	if !bytes.Equal(data, expected) {
		t.Errorf("expected %v, got %v", expected, data)
	}
}

func TestEncodeString_WriteErrors(t *testing.T) {
	for i := 0; i < 3; i++ {
		if err := encodeString(&errorWriter{errorAfter: i}, "hello"); err == nil {
			t.Errorf("expected error after %d writes", i)
		}
	}
}

func TestEncodeAMF0_LongString(t *testing.T) {
	longStr := strings.Repeat("a", 70000)
	data, err := EncodeAMF0Sequence(longStr)
	if err != nil {
		t.Fatal(err)
	}

	if data[0] != longStringMarker {
		t.Errorf("expected longStringMarker (0x%02x), got 0x%02x", longStringMarker, data[0])
	}
	// marker(1) + length(4) + data(70000)
	if len(data) != 70005 {
		t.Errorf("expected 70005 bytes, got %d", len(data))
	}
}

func TestEncodeAMF0_Object(t *testing.T) {
	obj := map[string]any{"foo": "bar"}
	data, err := EncodeAMF0Sequence(obj)
	if err != nil {
		t.Fatal(err)
	}

	expected := []byte{
		0x03,
		0x00, 0x03, 'f', 'o', 'o',
		0x02, 0x00, 0x03, 'b', 'a', 'r',
		0x00, 0x00, 0x09,
	}
	if !bytes.Equal(data, expected) {
		t.Errorf("expected %v, got %v", expected, data)
	}
}

func TestEncodeAMF0_ObjectKeyOrder(t *testing.T) {
	a, err := EncodeAMF0Sequence(map[string]any{"b": 1, "a": 2, "c": 3})
	if err != nil {
		t.Fatal(err)
	}
	b, err := EncodeAMF0Sequence(map[string]any{"c": 3, "a": 2, "b": 1})
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(a, b) {
		t.Error("expected identical encoding regardless of map order")
	}
	if a[3] != 'a' {
		t.Errorf("expected first key 'a', got %q", a[3])
	}
}

func TestEncodeAMF0_ECMAArray(t *testing.T) {
	data, err := EncodeAMF0Sequence(ECMAArray{"width": 1280})
	if err != nil {
		t.Fatal(err)
	}
	if data[0] != ecmaArrayMarker {
		t.Fatalf("expected ecmaArrayMarker, got 0x%02x", data[0])
	}
	if !bytes.Equal(data[1:5], []byte{0, 0, 0, 1}) {
		t.Errorf("expected count 1, got %v", data[1:5])
	}

	decoded, err := DecodeAMF0(bytes.NewReader(data))
	if err != nil {
		t.Fatal(err)
	}
	if decoded.(map[string]any)["width"] != float64(1280) {
		t.Errorf("unexpected decoded value %v", decoded)
	}
}

func TestEncodeAMF0_TypedObject(t *testing.T) {
	obj := &TypedObject{ClassName: "flex.messaging.messages.CommandMessage", Fields: map[string]any{"operation": 5}}
	data, err := EncodeAMF0Sequence(obj)
	if err != nil {
		t.Fatal(err)
	}

	decoded, err := DecodeAMF0(bytes.NewReader(data))
	if err != nil {
		t.Fatal(err)
	}
	typed, ok := decoded.(*TypedObject)
	if !ok {
		t.Fatalf("expected *TypedObject, got %T", decoded)
	}
	if typed.ClassName != obj.ClassName || typed.Fields["operation"] != float64(5) {
		t.Errorf("unexpected typed object %+v", typed)
	}
}

func TestEncodeAMF0_StrictArray(t *testing.T) {
	data, err := EncodeAMF0Sequence([]any{1, "two"})
	if err != nil {
		t.Fatal(err)
	}
	decoded, err := DecodeAMF0(bytes.NewReader(data))
	if err != nil {
		t.Fatal(err)
	}
	arr := decoded.([]any)
	if len(arr) != 2 || arr[0] != float64(1) || arr[1] != "two" {
		t.Errorf("unexpected array %v", arr)
	}
}

func TestEncodeAMF0_Date(t *testing.T) {
	date := time.Date(2023, 3, 28, 19, 40, 0, 0, time.UTC)
	data, err := EncodeAMF0Sequence(date)
	if err != nil {
		t.Fatal(err)
	}
	if len(data) != 11 {
		t.Fatalf("expected 11 bytes, got %d", len(data))
	}
	decoded, err := DecodeAMF0(bytes.NewReader(data))
	if err != nil {
		t.Fatal(err)
	}
	if !decoded.(time.Time).Equal(date) {
		t.Errorf("expected %v, got %v", date, decoded)
	}
}

func TestEncodeAMF0_AvmPlus(t *testing.T) {
	data, err := EncodeAMF0Sequence(AvmPlus{Value: map[string]any{"code": "NetStream.Play.Start"}})
	if err != nil {
		t.Fatal(err)
	}
	if data[0] != avmPlusObjectMarker {
		t.Fatalf("expected avmplus marker, got 0x%02x", data[0])
	}

	decoded, err := DecodeAMF0(bytes.NewReader(data))
	if err != nil {
		t.Fatal(err)
	}
	if decoded.(map[string]any)["code"] != "NetStream.Play.Start" {
		t.Errorf("unexpected value %v", decoded)
	}
}

func TestWriteUTF8_TooLong(t *testing.T) {
	if err := WriteUTF8(new(bytes.Buffer), strings.Repeat("k", 70000)); err == nil {
		t.Fatal("expected error for oversized key")
	}
}
