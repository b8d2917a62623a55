package rtmp

import (
	"fmt"
	"log/slog"
	"strings"

	"solrtmp/pkg/amf"
	"solrtmp/pkg/flex"
)

// MessageReceived dispatches one inbound message by kind.
func (c *Client) MessageReceived(conn *Connection, packet *Packet) {
	h := packet.Header

	switch ev := packet.Event.(type) {
	case *ChunkSize:
		c.onChunkSize(conn, ev)
	case *Ping:
		c.onPing(conn, ev)
	case *SWFResponse:
		slog.Debug("Ignoring swf response", "sessionId", conn.ID(), "length", len(ev.Bytes))
	case *ServerBW:
		c.onServerBandwidth(conn, h, ev)
	case *ClientBW:
		c.onClientBandwidth(conn, h, ev)
	case *SharedObject:
		c.onSharedObject(conn, ev)
	case *Invoke:
		c.onInvoke(conn, h, &ev.Notify, true)
	case *Notify:
		if ev.Data {
			c.onStreamEvent(conn, h, ev)
			return
		}
		c.onInvoke(conn, h, ev, false)
	case *StreamData:
		c.onStreamEvent(conn, h, ev)
	case *BytesRead:
		slog.Debug("Peer acknowledged", "sessionId", conn.ID(), "bytes", ev.Bytes)
	case *Abort:
		slog.Debug("Peer aborted message", "sessionId", conn.ID(), "channel", ev.ChannelID)
	case *Unknown:
		slog.Warn("Unknown message type", "sessionId", conn.ID(), "type", ev.Type, "length", len(ev.Body))
	}
}

// onChunkSize follows the peer's chunk size for writing as well. The reader
// switched already in the read loop.
func (c *Client) onChunkSize(conn *Connection, ev *ChunkSize) {
	slog.Debug("Peer chunk size", "sessionId", conn.ID(), "size", ev.Size)
	if err := conn.SetWriteChunkSize(ev.Size); err != nil {
		slog.Warn("Failed to set write chunk size", "sessionId", conn.ID(), "err", err)
	}
}

func (c *Client) onPing(conn *Connection, ping *Ping) {
	switch ping.EventType {
	case PING_CLIENT, PING_STREAM_BEGIN, PING_RECORDED_STREAM, PING_STREAM_PLAYBUFFER_CLEAR:
		// the server measures the round trip
		pong := &Ping{EventType: PONG_SERVER, Value2: conn.timestamp()}
		if err := conn.Ping(pong); err != nil {
			slog.Debug("Failed to answer ping", "sessionId", conn.ID(), "err", err)
		}
	case PING_STREAM_DRY:
		slog.Debug("Stream indicates there is no data available", "sessionId", conn.ID(), "streamId", ping.Value2)
	case PING_CLIENT_BUFFER:
		streamID, buffer := ping.Value2, ping.Value3
		if streamID != 0 {
			if stream, ok := conn.StreamByID(streamID); ok {
				stream.SetBufferDuration(buffer)
				slog.Info("Setting client buffer on stream", "streamId", streamID, "buffer", buffer)
				return
			}
		}
		conn.RememberStreamBufferDuration(streamID, buffer)
		slog.Info("Remembering client buffer on stream", "streamId", streamID, "buffer", buffer)
	case PING_SWF_VERIFY:
		if !c.swfVerification.Load() {
			slog.Debug("Ignoring swf verification", "sessionId", conn.ID())
			return
		}
		resp := &SWFResponse{Bytes: make([]byte, SWF_VERIFICATION_LENGTH)}
		if err := conn.writeControl(resp); err != nil {
			slog.Debug("Failed to answer swf verification", "sessionId", conn.ID(), "err", err)
		}
	default:
		slog.Warn("Unhandled ping", "sessionId", conn.ID(), "ping", ping)
	}
}

func (c *Client) onServerBandwidth(conn *Connection, h *Header, ev *ServerBW) {
	if ev.Bandwidth == c.readWindow.Load() {
		return
	}
	c.mu.RLock()
	limitType := c.limitType
	c.mu.RUnlock()

	reply := &ClientBW{Bandwidth: ev.Bandwidth, LimitType: limitType}
	if err := conn.Write(h.ChannelID, 0, reply); err != nil {
		slog.Debug("Failed to answer server bandwidth", "sessionId", conn.ID(), "err", err)
	}
}

func (c *Client) onClientBandwidth(conn *Connection, h *Header, ev *ClientBW) {
	if ev.Bandwidth == c.writeWindow.Load() {
		return
	}
	if err := conn.Write(h.ChannelID, 0, &ServerBW{Bandwidth: ev.Bandwidth}); err != nil {
		slog.Debug("Failed to answer client bandwidth", "sessionId", conn.ID(), "err", err)
	}
}

func (c *Client) onSharedObject(conn *Connection, ev *SharedObject) {
	msg := ev.Message
	obj, ok := c.lookupSharedObject(msg.Name)
	if !ok {
		slog.Error("Ignoring request for non-existent shared object", "sessionId", conn.ID(), "name", msg.Name)
		return
	}
	if obj.IsPersistent() != msg.Persistent {
		slog.Error("Ignoring request for wrong-persistent shared object", "sessionId", conn.ID(), "name", msg.Name)
		return
	}
	obj.Dispatch(msg)
}

func (c *Client) onInvoke(conn *Connection, h *Header, n *Notify, isInvoke bool) {
	switch n.Method {
	case methodResult, methodError:
		c.onResult(conn, n)
		return
	case methodOnStatus:
		c.onStatus(conn, h, n)
		return
	}
	logFlexOperation(conn, n)

	call := &Call{Method: n.Method, Args: n.Args}
	if provider := c.ServiceProvider(); provider == nil {
		// nothing can be called on this client
		call.Status = CallMethodNotFound
		call.Err = fmt.Errorf("%s: %w", n.Method, ErrMethodNotFound)
	} else {
		invokeService(call, provider)
	}

	switch n.Method {
	case methodOnBWCheck:
		slog.Debug("onBWCheck", "sessionId", conn.ID(), "params", n.firstArg())
	case methodOnBWDone:
		slog.Debug("onBWDone", "sessionId", conn.ID(), "params", n.firstArg())
		c.bandwidthCheckDone.Store(true)
	}

	if !isInvoke {
		return
	}
	if dr, ok := call.Result.(*DeferredResult); ok {
		call.Result = nil
		dr.bind(conn, h.ChannelID, n.InvokeID, call)
		return
	}
	if n.Method == methodOnBWCheck || n.Method == methodOnBWDone {
		return
	}
	if err := conn.writeReply(h.ChannelID, n.InvokeID, call); err != nil {
		slog.Debug("Failed to reply", "sessionId", conn.ID(), "method", n.Method, "err", err)
	}
}

// onResult completes the pending call the reply refers to.
func (c *Client) onResult(conn *Connection, n *Notify) {
	call, ok := conn.RetrievePendingCall(n.InvokeID)
	if !ok {
		slog.Debug("Dropping result for unknown call", "sessionId", conn.ID(), "invokeId", n.InvokeID)
		return
	}

	if n.Method == methodResult && call.Method() == methodConnect && c.requestsAMF3() {
		slog.Debug("Setting encoding to AMF3", "sessionId", conn.ID())
		conn.SetEncoding(amf.AMF3)
	}

	result := n.Command
	if len(n.Args) > 0 {
		result = n.Args[len(n.Args)-1]
	}

	switch {
	case n.Method == methodError:
		call.complete(CallFailed, result, remoteError(call.Method(), result))
	case result == nil:
		call.complete(CallSuccessNull, nil, nil)
	default:
		call.complete(CallSuccess, result, nil)
	}
}

func remoteError(method string, info any) error {
	e := &RemoteError{Method: method, Info: info}
	if fields := objectFields(info); fields != nil {
		e.Code, _ = fields["code"].(string)
		e.Description, _ = fields["description"].(string)
	}
	if e.Description == "" {
		e.Description = fmt.Sprint(info)
	}
	return e
}

// onStatus forwards a status notification to the handler of the stream it
// concerns. The stream is found by the status clientid, else by the header
// stream id, else stream 1 is used.
func (c *Client) onStatus(conn *Connection, h *Header, n *Notify) {
	status := objectFields(n.firstArg())

	streamID, matchable := h.StreamID, true
	if clientID, ok := status["clientid"]; ok && clientID != nil {
		id, numeric := amf.ToFloat64(clientID)
		streamID, matchable = uint32(id), numeric
	}

	var stream *NetStream
	found := false
	if matchable {
		stream, found = conn.StreamByID(streamID)
	}
	if !found {
		stream, found = conn.StreamByID(1)
	}
	if !found {
		slog.Warn("Stream data was nil for status", "sessionId", conn.ID(), "clientId", status["clientid"], "code", status["code"])
		return
	}
	if handler := stream.Handler(); handler != nil {
		handler.OnStreamEvent(n)
	}
}

// onStreamEvent hands media and stream data to the stream's dispatcher.
func (c *Client) onStreamEvent(conn *Connection, h *Header, ev Event) {
	stream, ok := conn.StreamByID(h.StreamID)
	if !ok {
		slog.Debug("Ignoring stream data for unknown stream", "sessionId", conn.ID(), "streamId", h.StreamID, "type", ev.DataType())
		return
	}
	stream.dispatch(ev)
}

// objectFields returns the properties of an object value, or nil.
func objectFields(v any) map[string]any {
	switch o := v.(type) {
	case map[string]any:
		return o
	case amf.ECMAArray:
		return o
	case *amf.TypedObject:
		return o.Fields
	}
	return nil
}

// logFlexOperation logs the operation carried by a Flex command message argument.
func logFlexOperation(conn *Connection, n *Notify) {
	for _, arg := range n.Args {
		className := ""
		if obj, ok := arg.(*amf.TypedObject); ok {
			className = obj.ClassName
		}
		fields := objectFields(arg)
		if className == "" && fields["messageId"] == nil {
			continue
		}
		op, ok := amf.ToFloat64(fields["operation"])
		if !ok {
			continue
		}
		ns := flex.Messaging
		if strings.HasPrefix(className, "flex.data.") {
			ns = flex.DataServices
		}
		slog.Debug("Flex command", "sessionId", conn.ID(), "method", n.Method, "class", className,
			"operation", flex.OperationName(int(op), ns))
	}
}
