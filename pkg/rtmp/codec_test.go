package rtmp

import (
	"bytes"
	"testing"

	"solrtmp/pkg/amf"
	"solrtmp/pkg/so"
)

func roundTrip(t *testing.T, ev Event, encoding amf.Encoding, streamID uint32) Event {
	t.Helper()
	dataType, payload, err := encodeEvent(ev, encoding)
	if err != nil {
		t.Fatalf("encode %T: %v", ev, err)
	}
	decoded, err := decodeEvent(&Header{DataType: dataType, StreamID: streamID}, payload)
	if err != nil {
		t.Fatalf("decode %T: %v", ev, err)
	}
	return decoded
}

func TestControlMessages(t *testing.T) {
	if got := roundTrip(t, &ChunkSize{Size: 4096}, amf.AMF0, 0).(*ChunkSize); got.Size != 4096 {
		t.Errorf("chunk size: expected 4096, got %d", got.Size)
	}
	if got := roundTrip(t, &ServerBW{Bandwidth: 5000000}, amf.AMF0, 0).(*ServerBW); got.Bandwidth != 5000000 {
		t.Errorf("server bandwidth: expected 5000000, got %d", got.Bandwidth)
	}
	got := roundTrip(t, &ClientBW{Bandwidth: 2500000, LimitType: LIMIT_TYPE_DYNAMIC}, amf.AMF0, 0).(*ClientBW)
	if got.Bandwidth != 2500000 || got.LimitType != LIMIT_TYPE_DYNAMIC {
		t.Errorf("client bandwidth: got %+v", got)
	}
	if got := roundTrip(t, &BytesRead{Bytes: 123456}, amf.AMF0, 0).(*BytesRead); got.Bytes != 123456 {
		t.Errorf("bytes read: expected 123456, got %d", got.Bytes)
	}
}

func TestChunkSizeIgnoresHighBit(t *testing.T) {
	ev, err := decodeEvent(&Header{DataType: MSG_TYPE_SET_CHUNK_SIZE}, []byte{0x80, 0, 0x10, 0})
	if err != nil {
		t.Fatal(err)
	}
	if ev.(*ChunkSize).Size != 4096 {
		t.Errorf("expected 4096, got %d", ev.(*ChunkSize).Size)
	}
}

func TestPingEncoding(t *testing.T) {
	_, payload, err := encodeEvent(&Ping{EventType: PING_CLIENT_BUFFER, Value2: 1, Value3: 3000}, amf.AMF0)
	if err != nil {
		t.Fatal(err)
	}
	if len(payload) != 10 {
		t.Fatalf("client buffer ping must be 10 bytes, got %d", len(payload))
	}
	ping := roundTrip(t, &Ping{EventType: PING_CLIENT_BUFFER, Value2: 1, Value3: 3000}, amf.AMF0, 0).(*Ping)
	if ping.Value2 != 1 || ping.Value3 != 3000 {
		t.Errorf("unexpected ping %s", ping)
	}

	_, payload, _ = encodeEvent(&Ping{EventType: PONG_SERVER, Value2: 99}, amf.AMF0)
	if len(payload) != 6 {
		t.Errorf("pong must be 6 bytes, got %d", len(payload))
	}
}

func TestSWFResponse(t *testing.T) {
	dataType, payload, err := encodeEvent(&SWFResponse{Bytes: make([]byte, SWF_VERIFICATION_LENGTH)}, amf.AMF0)
	if err != nil {
		t.Fatal(err)
	}
	if dataType != MSG_TYPE_USER_CONTROL || len(payload) != 2+SWF_VERIFICATION_LENGTH {
		t.Fatalf("unexpected swf response type %d length %d", dataType, len(payload))
	}
	ev, err := decodeEvent(&Header{DataType: dataType}, payload)
	if err != nil {
		t.Fatal(err)
	}
	if resp, ok := ev.(*SWFResponse); !ok || len(resp.Bytes) != SWF_VERIFICATION_LENGTH {
		t.Errorf("expected a 42 byte swf response, got %#v", ev)
	}
}

func TestInvokeRoundTrip(t *testing.T) {
	invoke := NewInvoke("play", 5, "live", -2, -1)
	got, ok := roundTrip(t, invoke, amf.AMF0, 1).(*Invoke)
	if !ok {
		t.Fatal("expected an invoke")
	}
	if got.Method != "play" || got.InvokeID != 5 {
		t.Errorf("unexpected method %q id %d", got.Method, got.InvokeID)
	}
	if got.Command != nil {
		t.Errorf("expected nil command object, got %v", got.Command)
	}
	if len(got.Args) != 3 || got.Args[0] != "live" || got.Args[1] != float64(-2) {
		t.Errorf("unexpected args %v", got.Args)
	}
}

func TestInvokeAMF3(t *testing.T) {
	invoke := NewInvoke("echo", 7, "hello", 42)
	dataType, payload, err := encodeEvent(invoke, amf.AMF3)
	if err != nil {
		t.Fatal(err)
	}
	if dataType != MSG_TYPE_AMF3_COMMAND {
		t.Fatalf("expected AMF3 command type, got %d", dataType)
	}
	if payload[0] != 0 {
		t.Fatalf("expected leading format byte 0, got %d", payload[0])
	}

	ev, err := decodeEvent(&Header{DataType: dataType}, payload)
	if err != nil {
		t.Fatal(err)
	}
	got := ev.(*Invoke)
	if got.Method != "echo" || got.InvokeID != 7 || len(got.Args) != 2 {
		t.Fatalf("unexpected invoke %+v", got)
	}
	if got.Args[0] != "hello" {
		t.Errorf("expected hello, got %v", got.Args[0])
	}
	if n, ok := amf.ToFloat64(got.Args[1]); !ok || n != 42 {
		t.Errorf("expected 42, got %v", got.Args[1])
	}
	if got.DataType() != MSG_TYPE_AMF3_COMMAND {
		t.Error("decoded invoke keeps the AMF3 type")
	}
}

func TestNotifyDataFlag(t *testing.T) {
	tests := []struct {
		method   string
		streamID uint32
		expected bool
	}{
		{"onMetaData", 1, true},
		{"@setDataFrame", 1, true},
		{"onMetaData", 0, false},
		{"onCustom", 1, false},
	}

	for _, tt := range tests {
		t.Run(tt.method, func(t *testing.T) {
			got := roundTrip(t, &Notify{Method: tt.method, Args: []any{map[string]any{"width": 640}}}, amf.AMF0, tt.streamID).(*Notify)
			if got.Data != tt.expected {
				t.Errorf("stream %d: expected Data=%v", tt.streamID, tt.expected)
			}
			if got.Method != tt.method || len(got.Args) != 1 {
				t.Errorf("unexpected notify %+v", got)
			}
		})
	}
}

func TestSharedObjectEvent(t *testing.T) {
	msg := so.NewMessage("chat", 3, true)
	msg.AddEvent(so.SERVER_SET_ATTRIBUTE, "topic", "go")

	for _, encoding := range []amf.Encoding{amf.AMF0, amf.AMF3} {
		dataType, payload, err := encodeEvent(&SharedObject{Message: msg}, encoding)
		if err != nil {
			t.Fatal(err)
		}
		ev, err := decodeEvent(&Header{DataType: dataType}, payload)
		if err != nil {
			t.Fatalf("%s: %v", encoding, err)
		}
		got := ev.(*SharedObject).Message
		if got.Name != "chat" || got.Version != 3 || !got.Persistent || len(got.Events) != 1 {
			t.Errorf("%s: unexpected message %+v", encoding, got)
		}
	}
}

func TestStreamDataAndUnknown(t *testing.T) {
	body := []byte{0x17, 0x01, 0x02}
	ev, err := decodeEvent(&Header{DataType: MSG_TYPE_VIDEO, Timestamp: 40}, body)
	if err != nil {
		t.Fatal(err)
	}
	data := ev.(*StreamData)
	if data.Kind != MSG_TYPE_VIDEO || data.Timestamp != 40 || !bytes.Equal(data.Body, body) {
		t.Errorf("unexpected stream data %+v", data)
	}

	ev, err = decodeEvent(&Header{DataType: 0x42}, body)
	if err != nil {
		t.Fatal(err)
	}
	if u, ok := ev.(*Unknown); !ok || u.Type != 0x42 {
		t.Errorf("expected unknown, got %#v", ev)
	}
}

func TestDecodeShortPayloads(t *testing.T) {
	types := []uint8{
		MSG_TYPE_SET_CHUNK_SIZE, MSG_TYPE_ABORT, MSG_TYPE_ACKNOWLEDGEMENT, MSG_TYPE_USER_CONTROL,
		MSG_TYPE_WINDOW_ACK_SIZE, MSG_TYPE_SET_PEER_BW, MSG_TYPE_AMF3_COMMAND, MSG_TYPE_AMF3_DATA,
	}
	for _, dataType := range types {
		if _, err := decodeEvent(&Header{DataType: dataType}, nil); err == nil {
			t.Errorf("type %d: expected error for empty payload", dataType)
		}
	}
}
