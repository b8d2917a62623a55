package rtmp

import (
	"fmt"

	"solrtmp/pkg/so"
)

// Event is one decoded message. The set of implementations is closed; dispatch
// is a type switch over them.
type Event interface {
	DataType() uint8
	isEvent()
}

type ChunkSize struct {
	Size uint32
}

type Abort struct {
	ChannelID uint32
}

// BytesRead acknowledges the number of bytes received so far.
type BytesRead struct {
	Bytes uint32
}

// Ping is a user control message. Value3 is only present for client-buffer pings.
type Ping struct {
	EventType uint16
	Value2    uint32
	Value3    uint32
}

// SWFResponse answers a swf verification ping.
type SWFResponse struct {
	Bytes []byte
}

// ServerBW is the window acknowledgement size.
type ServerBW struct {
	Bandwidth uint32
}

// ClientBW is the set peer bandwidth message.
type ClientBW struct {
	Bandwidth uint32
	LimitType uint8
}

// Notify is a one-way method call. Data marks stream data such as onMetaData.
type Notify struct {
	Method   string
	InvokeID uint32
	Command  any
	Args     []any
	Data     bool
	amf3     bool
}

// Invoke is a method call with an invocation id that may expect a reply.
type Invoke struct {
	Notify
}

type SharedObject struct {
	Message *so.Message
	amf3    bool
}

// StreamData carries audio, video, aggregate or raw data payloads.
type StreamData struct {
	Kind      uint8
	Timestamp uint32
	Body      []byte
}

type Unknown struct {
	Type uint8
	Body []byte
}

func (*ChunkSize) DataType() uint8    { return MSG_TYPE_SET_CHUNK_SIZE }
func (*Abort) DataType() uint8        { return MSG_TYPE_ABORT }
func (*BytesRead) DataType() uint8    { return MSG_TYPE_ACKNOWLEDGEMENT }
func (*Ping) DataType() uint8         { return MSG_TYPE_USER_CONTROL }
func (*SWFResponse) DataType() uint8  { return MSG_TYPE_USER_CONTROL }
func (*ServerBW) DataType() uint8     { return MSG_TYPE_WINDOW_ACK_SIZE }
func (*ClientBW) DataType() uint8     { return MSG_TYPE_SET_PEER_BW }
func (e *StreamData) DataType() uint8 { return e.Kind }
func (e *Unknown) DataType() uint8    { return e.Type }

func (e *Notify) DataType() uint8 {
	if e.amf3 {
		return MSG_TYPE_AMF3_DATA
	}
	return MSG_TYPE_AMF0_DATA
}

func (e *Invoke) DataType() uint8 {
	if e.amf3 {
		return MSG_TYPE_AMF3_COMMAND
	}
	return MSG_TYPE_AMF0_COMMAND
}

func (e *SharedObject) DataType() uint8 {
	if e.amf3 {
		return MSG_TYPE_AMF3_SHARED_OBJECT
	}
	return MSG_TYPE_AMF0_SHARED_OBJECT
}

func (*ChunkSize) isEvent()    {}
func (*Abort) isEvent()        {}
func (*BytesRead) isEvent()    {}
func (*Ping) isEvent()         {}
func (*SWFResponse) isEvent()  {}
func (*ServerBW) isEvent()     {}
func (*ClientBW) isEvent()     {}
func (*Notify) isEvent()       {}
func (*SharedObject) isEvent() {}
func (*StreamData) isEvent()   {}
func (*Unknown) isEvent()      {}

func (e *Ping) String() string {
	return fmt.Sprintf("Ping(type=%d, value2=%d, value3=%d)", e.EventType, e.Value2, e.Value3)
}

// NewInvoke builds an invoke for the given method.
func NewInvoke(method string, invokeID uint32, args ...any) *Invoke {
	return &Invoke{Notify: Notify{Method: method, InvokeID: invokeID, Args: args}}
}

// firstArg returns the first argument or nil.
func (e *Notify) firstArg() any {
	if len(e.Args) == 0 {
		return nil
	}
	return e.Args[0]
}
