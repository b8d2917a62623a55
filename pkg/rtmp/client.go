package rtmp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"solrtmp/pkg/amf"
	"solrtmp/pkg/persistence"
	"solrtmp/pkg/so"
)

// play2 transitions with special handling
const (
	transitionStop       = "NetStreamPlayTransitions.STOP"
	transitionStopShort  = "stop"
	transitionReset      = "NetStreamPlayTransitions.RESET"
	transitionResetShort = "reset"
)

const flushTimeout = 5 * time.Second

// ExceptionHandler receives failures raised while processing the connection.
type ExceptionHandler func(err error)

// Client drives one client session: it opens the connection through a
// Connector, sends the connect call and reacts to server messages.
type Client struct {
	connector Connector

	mu               sync.RWMutex
	conn             *Connection
	params           map[string]any
	connectArgs      []any
	connectCallback  Callback
	serviceProvider  ServiceProvider
	closedHandler    func()
	exceptionHandler ExceptionHandler
	streamDispatcher EventDispatcher
	store            persistence.Store
	limitType        uint8

	soMu          sync.Mutex
	sharedObjects map[string]*so.ClientSharedObject

	readWindow         atomic.Uint32
	writeWindow        atomic.Uint32
	swfVerification    atomic.Bool
	bandwidthCheckDone atomic.Bool
}

func NewClient(connector Connector) *Client {
	c := &Client{
		connector:     connector,
		limitType:     LIMIT_TYPE_DYNAMIC,
		sharedObjects: make(map[string]*so.ClientSharedObject),
	}
	c.readWindow.Store(DEFAULT_WINDOW_SIZE)
	c.writeWindow.Store(DEFAULT_WINDOW_SIZE)
	c.swfVerification.Store(true)
	return c
}

// DefaultConnectionParams builds the connect parameters a Flash player would send.
func DefaultConnectionParams(server string, port int, app string) map[string]any {
	target := &Target{Host: server, Port: port, App: app}
	return map[string]any{
		"app":            app,
		"objectEncoding": 0,
		"fpad":           false,
		"flashVer":       "WIN 11,2,202,235",
		"audioCodecs":    3575,
		"videoCodecs":    252,
		"videoFunction":  1,
		"capabilities":   15,
		"path":           app,
		"pageUrl":        nil,
		"swfUrl":         nil,
		"tcUrl":          target.TcURL(),
	}
}

// Connect opens the transport and sends the connect call. The callback receives
// the server's answer. When the transport cannot be opened the callback
// completes with CallNotConnected and the error is returned.
func (c *Client) Connect(ctx context.Context, host string, port int, params map[string]any, cb Callback, args ...any) error {
	params = maps.Clone(params)
	if params == nil {
		params = make(map[string]any)
	}
	if _, ok := params["objectEncoding"]; !ok {
		params["objectEncoding"] = 0
	}

	c.mu.Lock()
	c.params = params
	c.connectArgs = args
	c.connectCallback = cb
	c.mu.Unlock()

	slog.Info("Connecting", "host", host, "port", port, "app", params["app"])
	if _, err := c.connector.Connect(ctx, host, port, c); err != nil {
		call := NewPendingCall(methodConnect, args...)
		call.AddCallback(cb)
		call.complete(CallNotConnected, nil, err)
		return fmt.Errorf("connect to %s:%d: %w", host, port, err)
	}
	return nil
}

// ConnectionOpened sends the connect call with invocation id 1.
func (c *Client) ConnectionOpened(conn *Connection) {
	c.SetConnection(conn)

	c.mu.RLock()
	params, args, cb := c.params, c.connectArgs, c.connectCallback
	c.mu.RUnlock()

	call := NewPendingCall(methodConnect, args...)
	call.AddCallback(cb)
	conn.invoke(call, CHUNK_STREAM_COMMAND, 1, params)
	slog.Debug("Connect call written", "sessionId", conn.ID())
}

// ConnectionClosed releases the session state bound to the connection.
func (c *Client) ConnectionClosed(conn *Connection) {
	c.mu.Lock()
	if c.conn == conn {
		c.conn = nil
	}
	handler := c.closedHandler
	c.mu.Unlock()

	c.releaseSharedObjects()
	if handler != nil {
		handler()
	}
}

// ExceptionCaught forwards to the exception handler. Without one the
// connection is closed.
func (c *Client) ExceptionCaught(conn *Connection, err error) {
	c.mu.RLock()
	handler := c.exceptionHandler
	c.mu.RUnlock()

	if handler != nil {
		handler(err)
		return
	}
	slog.Error("Connection exception", "sessionId", conn.ID(), "err", err)
	conn.Close()
}

func (c *Client) releaseSharedObjects() {
	c.soMu.Lock()
	objects := make([]*so.ClientSharedObject, 0, len(c.sharedObjects))
	for _, obj := range c.sharedObjects {
		objects = append(objects, obj)
	}
	clear(c.sharedObjects)
	c.soMu.Unlock()

	store := c.persistenceStore()
	for _, obj := range objects {
		if err := obj.Disconnect(); err != nil && !errors.Is(err, ErrConnectionClosed) && !errors.Is(err, so.ErrNotConnected) {
			slog.Debug("Shared object release not sent", "name", obj.Name(), "err", err)
		}
		if store == nil || !obj.IsPersistent() {
			continue
		}
		ctx, cancel := context.WithTimeout(context.Background(), flushTimeout)
		if err := obj.Flush(ctx, store); err != nil {
			slog.Warn("Failed to flush shared object", "name", obj.Name(), "err", err)
		}
		cancel()
	}
}

// SharedObject returns the shared object with the given name, creating it on
// first use. A persistent object is restored from the persistence store. The
// object is not connected; call Connect on it with the client as sender.
func (c *Client) SharedObject(name string, persistent bool) (*so.ClientSharedObject, error) {
	c.soMu.Lock()
	defer c.soMu.Unlock()

	if obj, ok := c.sharedObjects[name]; ok {
		if obj.IsPersistent() != persistent {
			return nil, fmt.Errorf("%s: %w", name, ErrPersistenceMismatch)
		}
		return obj, nil
	}

	obj := so.New(name, persistent)
	if store := c.persistenceStore(); store != nil && persistent {
		ctx, cancel := context.WithTimeout(context.Background(), flushTimeout)
		defer cancel()
		if err := obj.Restore(ctx, store); err != nil {
			slog.Warn("Failed to restore shared object", "name", name, "err", err)
		}
	}
	c.sharedObjects[name] = obj
	return obj, nil
}

func (c *Client) lookupSharedObject(name string) (*so.ClientSharedObject, bool) {
	c.soMu.Lock()
	defer c.soMu.Unlock()
	obj, ok := c.sharedObjects[name]
	return obj, ok
}

// SendSharedObject writes a shared object message on the current connection.
func (c *Client) SendSharedObject(msg *so.Message) error {
	conn := c.Connection()
	if conn == nil {
		return so.ErrNotConnected
	}
	return conn.SendSharedObject(msg)
}

// Invoke calls a method on the server. Without a connection the callback
// completes with CallNotConnected before Invoke returns.
func (c *Client) Invoke(method string, args []any, cb Callback) *PendingCall {
	conn := c.Connection()
	if conn == nil {
		slog.Info("Connection was nil", "method", method)
		return notConnected(method, args, cb)
	}
	return conn.Invoke(method, args, cb)
}

func notConnected(method string, args []any, cb Callback) *PendingCall {
	call := NewPendingCall(method, args...)
	call.AddCallback(cb)
	call.complete(CallNotConnected, nil, ErrNotConnected)
	return call
}

// invokeOnStream sends a call on the channel of the stream.
func (c *Client) invokeOnStream(streamID uint32, method string, args ...any) *PendingCall {
	conn := c.Connection()
	if conn == nil {
		slog.Info("Connection was nil", "method", method, "streamId", streamID)
		return notConnected(method, args, nil)
	}
	call := NewPendingCall(method, args...)
	conn.InvokeOnChannel(call, ChannelForStream(streamID))
	return call
}

// CreateStream asks the server for a stream. The stream is installed before the
// callback runs.
func (c *Client) CreateStream(cb Callback) *PendingCall {
	return c.Invoke("createStream", nil, func(call *PendingCall) {
		c.installStream(call)
		if cb != nil {
			cb(call)
		}
	})
}

func (c *Client) installStream(call *PendingCall) {
	if !call.Status().IsSuccess() {
		return
	}
	id, ok := amf.ToFloat64(call.Result())
	if !ok || id <= 0 {
		slog.Warn("createStream returned no stream id", "result", call.Result())
		return
	}
	conn := c.Connection()
	if conn == nil {
		return
	}
	stream := conn.streams.create(conn, uint32(id), c.StreamEventDispatcher())
	conn.emit(StreamCreated{SessionID: conn.ID(), StreamID: stream.ID()})
	slog.Debug("Stream created", "sessionId", conn.ID(), "streamId", stream.ID(), "bufferDuration", stream.BufferDuration())
}

// Publish starts publishing on a created stream. The handler, when given,
// receives the stream's onStatus notifications.
func (c *Client) Publish(streamID uint32, name, mode string, handler NetStreamEventHandler) *PendingCall {
	if handler != nil {
		if conn := c.Connection(); conn != nil {
			if stream, ok := conn.StreamByID(streamID); ok {
				stream.SetHandler(handler)
			} else {
				slog.Debug("Stream not found for handler", "streamId", streamID)
			}
		}
	}
	return c.invokeOnStream(streamID, "publish", name, mode)
}

func (c *Client) Unpublish(streamID uint32) *PendingCall {
	return c.invokeOnStream(streamID, "publish", false)
}

func (c *Client) Play(streamID uint32, name string, start, length int) *PendingCall {
	return c.invokeOnStream(streamID, "play", name, start, length)
}

// Play2 runs a dynamic streaming play. Recognised options are streamName,
// oldStreamName, start, len, offset and transition. A stop transition sends
// play(false); a reset transition sends nothing.
func (c *Client) Play2(streamID uint32, options map[string]any) (*PendingCall, error) {
	transition, _ := options["transition"].(string)
	switch transition {
	case transitionStop, transitionStopShort:
		return c.invokeOnStream(streamID, "play", false), nil
	case transitionReset, transitionResetShort:
		slog.Debug("Play2 reset", "streamId", streamID)
		return nil, nil
	}

	name, ok := options["streamName"]
	if !ok || name == nil {
		return nil, errors.New("play2: missing streamName")
	}
	start, err := intOption(options, "start", -2)
	if err != nil {
		return nil, err
	}
	length, err := intOption(options, "len", -1)
	if err != nil {
		return nil, err
	}
	return c.invokeOnStream(streamID, "play2", fmt.Sprint(name), start, length,
		transition, options["offset"], options["oldStreamName"]), nil
}

func intOption(options map[string]any, key string, def int) (int, error) {
	v, ok := options[key]
	if !ok || v == nil {
		return def, nil
	}
	if n, ok := amf.ToFloat64(v); ok {
		return int(n), nil
	}
	if s, ok := v.(string); ok {
		n, err := strconv.Atoi(s)
		if err != nil {
			return 0, fmt.Errorf("play2: invalid %s %q: %w", key, s, err)
		}
		return n, nil
	}
	return 0, fmt.Errorf("play2: invalid %s type %T", key, v)
}

// CloseStream stops playback or publishing on the stream. The stream stays
// allocated until DeleteStream.
func (c *Client) CloseStream(streamID uint32) *PendingCall {
	return c.invokeOnStream(streamID, "closeStream")
}

// DeleteStream releases the stream on the server and forgets it locally.
func (c *Client) DeleteStream(streamID uint32) *PendingCall {
	conn := c.Connection()
	if conn != nil {
		conn.streams.remove(streamID)
	}
	return c.Invoke("deleteStream", []any{streamID}, nil)
}

// PublishStreamData sends media on a created stream. Data for an unknown
// stream is dropped with a warning.
func (c *Client) PublishStreamData(streamID uint32, data *StreamData) {
	conn := c.Connection()
	if conn == nil {
		slog.Warn("Connection was nil, dropping stream data", "streamId", streamID)
		return
	}
	stream, ok := conn.StreamByID(streamID)
	if !ok {
		slog.Warn("Stream data not found", "streamId", streamID)
		return
	}
	consumer := stream.Consumer()
	if consumer == nil {
		slog.Warn("Connection consumer was not found", "streamId", streamID)
		return
	}
	if err := consumer.PushMessage(data); err != nil {
		slog.Warn("Failed to push stream data", "streamId", streamID, "err", err)
	}
}

// Disconnect forgets all streams and closes the connection.
func (c *Client) Disconnect() {
	conn := c.Connection()
	if conn == nil {
		slog.Info("Connection was nil")
		return
	}
	conn.streams.clear()
	conn.Close()
}

func (c *Client) SetServiceProvider(p ServiceProvider) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.serviceProvider = p
}

func (c *Client) ServiceProvider() ServiceProvider {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.serviceProvider
}

func (c *Client) SetConnectionClosedHandler(fn func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closedHandler = fn
}

func (c *Client) SetExceptionHandler(fn ExceptionHandler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.exceptionHandler = fn
}

// SetStreamEventDispatcher sets the dispatcher given to streams created afterwards.
func (c *Client) SetStreamEventDispatcher(d EventDispatcher) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.streamDispatcher = d
}

func (c *Client) StreamEventDispatcher() EventDispatcher {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.streamDispatcher
}

// SetPersistenceStore sets the store used by persistent shared objects.
func (c *Client) SetPersistenceStore(store persistence.Store) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.store = store
}

func (c *Client) persistenceStore() persistence.Store {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.store
}

// SetBandwidthWindows sets the local acknowledgement windows and the limit type
// used in bandwidth replies.
func (c *Client) SetBandwidthWindows(read, write uint32, limitType uint8) {
	c.readWindow.Store(read)
	c.writeWindow.Store(write)
	c.mu.Lock()
	c.limitType = limitType
	c.mu.Unlock()
}

// SetSwfVerification controls whether swf verification pings are answered.
// It is enabled by default.
func (c *Client) SetSwfVerification(enabled bool) {
	c.swfVerification.Store(enabled)
}

func (c *Client) SwfVerification() bool {
	return c.swfVerification.Load()
}

// BandwidthCheckDone reports whether the server called onBWDone.
func (c *Client) BandwidthCheckDone() bool {
	return c.bandwidthCheckDone.Load()
}

func (c *Client) Connection() *Connection {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.conn
}

func (c *Client) SetConnection(conn *Connection) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.conn = conn
}

// requestsAMF3 reports whether the connect parameters asked for AMF3.
func (c *Client) requestsAMF3() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	n, ok := amf.ToFloat64(c.params["objectEncoding"])
	return ok && amf.Encoding(n) == amf.AMF3
}
