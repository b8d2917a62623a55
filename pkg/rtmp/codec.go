package rtmp

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"

	"solrtmp/pkg/amf"
	"solrtmp/pkg/so"
)

var errShortPayload = errors.New("payload too short")

// stream data notifications that are part of a media stream rather than calls
var streamDataMethods = map[string]struct{}{
	"@setDataFrame":     {},
	"@clearDataFrame":   {},
	"onMetaData":        {},
	"onCuePoint":        {},
	"onTextData":        {},
	"|RtmpSampleAccess": {},
}

func decodeEvent(h *Header, payload []byte) (Event, error) {
	switch h.DataType {
	case MSG_TYPE_SET_CHUNK_SIZE:
		if len(payload) < 4 {
			return nil, fmt.Errorf("chunk size: %w", errShortPayload)
		}
		// 첫 번째 비트(최상위 비트)는 반드시 0
		return &ChunkSize{Size: binary.BigEndian.Uint32(payload) & 0x7FFFFFFF}, nil
	case MSG_TYPE_ABORT:
		if len(payload) < 4 {
			return nil, fmt.Errorf("abort: %w", errShortPayload)
		}
		return &Abort{ChannelID: binary.BigEndian.Uint32(payload)}, nil
	case MSG_TYPE_ACKNOWLEDGEMENT:
		if len(payload) < 4 {
			return nil, fmt.Errorf("bytes read: %w", errShortPayload)
		}
		return &BytesRead{Bytes: binary.BigEndian.Uint32(payload)}, nil
	case MSG_TYPE_USER_CONTROL:
		return decodePing(payload)
	case MSG_TYPE_WINDOW_ACK_SIZE:
		if len(payload) < 4 {
			return nil, fmt.Errorf("server bandwidth: %w", errShortPayload)
		}
		return &ServerBW{Bandwidth: binary.BigEndian.Uint32(payload)}, nil
	case MSG_TYPE_SET_PEER_BW:
		if len(payload) < 4 {
			return nil, fmt.Errorf("client bandwidth: %w", errShortPayload)
		}
		bw := &ClientBW{Bandwidth: binary.BigEndian.Uint32(payload), LimitType: LIMIT_TYPE_DYNAMIC}
		if len(payload) > 4 {
			bw.LimitType = payload[4]
		}
		return bw, nil
	case MSG_TYPE_AUDIO, MSG_TYPE_VIDEO, MSG_TYPE_AGGREGATE:
		return &StreamData{Kind: h.DataType, Timestamp: h.Timestamp, Body: payload}, nil
	case MSG_TYPE_AMF0_COMMAND:
		return decodeInvoke(payload, false)
	case MSG_TYPE_AMF3_COMMAND:
		if len(payload) < 1 {
			return nil, fmt.Errorf("AMF3 command: %w", errShortPayload)
		}
		return decodeInvoke(payload[1:], true)
	case MSG_TYPE_AMF0_DATA:
		return decodeNotify(h, payload, false)
	case MSG_TYPE_AMF3_DATA:
		if len(payload) < 1 {
			return nil, fmt.Errorf("AMF3 data: %w", errShortPayload)
		}
		return decodeNotify(h, payload[1:], true)
	case MSG_TYPE_AMF0_SHARED_OBJECT:
		msg, err := so.Decode(bytes.NewReader(payload))
		if err != nil {
			return nil, err
		}
		return &SharedObject{Message: msg}, nil
	case MSG_TYPE_AMF3_SHARED_OBJECT:
		if len(payload) < 1 {
			return nil, fmt.Errorf("AMF3 shared object: %w", errShortPayload)
		}
		msg, err := so.Decode(bytes.NewReader(payload[1:]))
		if err != nil {
			return nil, err
		}
		return &SharedObject{Message: msg, amf3: true}, nil
	default:
		return &Unknown{Type: h.DataType, Body: payload}, nil
	}
}

func decodePing(payload []byte) (Event, error) {
	if len(payload) < 2 {
		return nil, fmt.Errorf("ping: %w", errShortPayload)
	}
	ping := &Ping{EventType: binary.BigEndian.Uint16(payload)}
	if ping.EventType == PONG_SWF_VERIFY {
		return &SWFResponse{Bytes: payload[2:]}, nil
	}
	if len(payload) >= 6 {
		ping.Value2 = binary.BigEndian.Uint32(payload[2:])
	}
	if len(payload) >= 10 {
		ping.Value3 = binary.BigEndian.Uint32(payload[6:])
	}
	return ping, nil
}

func decodeInvoke(payload []byte, amf3 bool) (Event, error) {
	values, err := amf.DecodeAMF0Sequence(bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	if len(values) < 2 {
		return nil, fmt.Errorf("invoke needs a method and an invocation id, got %d values", len(values))
	}
	method, ok := values[0].(string)
	if !ok {
		return nil, fmt.Errorf("invalid command name type: %T", values[0])
	}
	id, ok := amf.ToFloat64(values[1])
	if !ok {
		return nil, fmt.Errorf("invalid invocation id type: %T", values[1])
	}

	invoke := &Invoke{Notify: Notify{Method: method, InvokeID: uint32(id), amf3: amf3}}
	if len(values) > 2 {
		invoke.Command = values[2]
		invoke.Args = values[3:]
	}
	return invoke, nil
}

func decodeNotify(h *Header, payload []byte, amf3 bool) (Event, error) {
	values, err := amf.DecodeAMF0Sequence(bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	if len(values) == 0 {
		return nil, fmt.Errorf("notify: %w", errShortPayload)
	}
	method, ok := values[0].(string)
	if !ok {
		return nil, fmt.Errorf("invalid notify method type: %T", values[0])
	}
	_, data := streamDataMethods[method]
	return &Notify{
		Method: method,
		Args:   values[1:],
		Data:   data && h.StreamID != 0,
		amf3:   amf3,
	}, nil
}

// encodeEvent serializes an event with the connection's current object encoding.
func encodeEvent(e Event, encoding amf.Encoding) (uint8, []byte, error) {
	buf := new(bytes.Buffer)

	switch ev := e.(type) {
	case *ChunkSize:
		_ = binary.Write(buf, binary.BigEndian, ev.Size)
		return MSG_TYPE_SET_CHUNK_SIZE, buf.Bytes(), nil
	case *Abort:
		_ = binary.Write(buf, binary.BigEndian, ev.ChannelID)
		return MSG_TYPE_ABORT, buf.Bytes(), nil
	case *BytesRead:
		_ = binary.Write(buf, binary.BigEndian, ev.Bytes)
		return MSG_TYPE_ACKNOWLEDGEMENT, buf.Bytes(), nil
	case *Ping:
		_ = binary.Write(buf, binary.BigEndian, ev.EventType)
		_ = binary.Write(buf, binary.BigEndian, ev.Value2)
		if ev.EventType == PING_CLIENT_BUFFER {
			_ = binary.Write(buf, binary.BigEndian, ev.Value3)
		}
		return MSG_TYPE_USER_CONTROL, buf.Bytes(), nil
	case *SWFResponse:
		_ = binary.Write(buf, binary.BigEndian, uint16(PONG_SWF_VERIFY))
		buf.Write(ev.Bytes)
		return MSG_TYPE_USER_CONTROL, buf.Bytes(), nil
	case *ServerBW:
		_ = binary.Write(buf, binary.BigEndian, ev.Bandwidth)
		return MSG_TYPE_WINDOW_ACK_SIZE, buf.Bytes(), nil
	case *ClientBW:
		_ = binary.Write(buf, binary.BigEndian, ev.Bandwidth)
		buf.WriteByte(ev.LimitType)
		return MSG_TYPE_SET_PEER_BW, buf.Bytes(), nil
	case *Invoke:
		return encodeCall(buf, &ev.Notify, true, encoding)
	case *Notify:
		return encodeCall(buf, ev, false, encoding)
	case *SharedObject:
		dataType := uint8(MSG_TYPE_AMF0_SHARED_OBJECT)
		if encoding == amf.AMF3 {
			dataType = MSG_TYPE_AMF3_SHARED_OBJECT
			buf.WriteByte(0)
		}
		if err := so.Encode(buf, ev.Message); err != nil {
			return 0, nil, err
		}
		return dataType, buf.Bytes(), nil
	case *StreamData:
		return ev.Kind, ev.Body, nil
	case *Unknown:
		return ev.Type, ev.Body, nil
	default:
		return 0, nil, fmt.Errorf("unsupported event type: %T", e)
	}
}

// encodeCall writes method, invocation id and command object as AMF0. With AMF3 the
// message carries a leading format byte and the arguments switch to AMF3.
func encodeCall(buf *bytes.Buffer, n *Notify, invoke bool, encoding amf.Encoding) (uint8, []byte, error) {
	var dataType uint8
	switch {
	case invoke && encoding == amf.AMF3:
		dataType = MSG_TYPE_AMF3_COMMAND
	case invoke:
		dataType = MSG_TYPE_AMF0_COMMAND
	case encoding == amf.AMF3:
		dataType = MSG_TYPE_AMF3_DATA
	default:
		dataType = MSG_TYPE_AMF0_DATA
	}
	if encoding == amf.AMF3 {
		buf.WriteByte(0)
	}

	values := []any{n.Method}
	if invoke {
		values = append(values, n.InvokeID, n.Command)
	}
	for _, arg := range n.Args {
		if encoding == amf.AMF3 {
			arg = amf.AvmPlus{Value: arg}
		}
		values = append(values, arg)
	}

	if err := amf.WriteAMF0Sequence(buf, values...); err != nil {
		return 0, nil, fmt.Errorf("encode %s: %w", n.Method, err)
	}
	return dataType, buf.Bytes(), nil
}
