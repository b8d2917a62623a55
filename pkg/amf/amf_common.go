package amf

// AMF0 markers
const (
	numberMarker        = 0x00
	booleanMarker       = 0x01
	stringMarker        = 0x02
	objectMarker        = 0x03
	nullMarker          = 0x05
	undefinedMarker     = 0x06
	referenceMarker     = 0x07
	ecmaArrayMarker     = 0x08
	objectEndMarker     = 0x09
	strictArrayMarker   = 0x0A
	dateMarker          = 0x0B
	longStringMarker    = 0x0C
	unsupportedMarker   = 0x0D
	xmlDocumentMarker   = 0x0F
	typedObjectMarker   = 0x10
	avmPlusObjectMarker = 0x11
)

// AMF3 markers
const (
	amf3UndefinedMarker = 0x00
	amf3NullMarker      = 0x01
	amf3FalseMarker     = 0x02
	amf3TrueMarker      = 0x03
	amf3IntegerMarker   = 0x04
	amf3DoubleMarker    = 0x05
	amf3StringMarker    = 0x06
	amf3XMLDocMarker    = 0x07
	amf3DateMarker      = 0x08
	amf3ArrayMarker     = 0x09
	amf3ObjectMarker    = 0x0A
	amf3XMLMarker       = 0x0B
	amf3ByteArrayMarker = 0x0C
)

// AMF3 integers are 29 bit signed values.
const (
	amf3IntegerMax = 0x0FFFFFFF
	amf3IntegerMin = -0x10000000
)

// Encoding identifies the object encoding negotiated for a connection.
type Encoding int

const (
	AMF0 Encoding = 0
	AMF3 Encoding = 3
)

func (e Encoding) String() string {
	switch e {
	case AMF0:
		return "AMF0"
	case AMF3:
		return "AMF3"
	default:
		return "unknown"
	}
}

// ECMAArray is encoded with the AMF0 ECMA array marker instead of the object marker.
// onMetaData payloads are usually sent this way.
type ECMAArray map[string]any

// TypedObject is an AMF0 object carrying a class name.
type TypedObject struct {
	ClassName string
	Fields    map[string]any
}
