package rtmp

import (
	"bufio"
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"solrtmp/pkg/amf"
	"solrtmp/pkg/so"
)

const tracerName = "solrtmp/pkg/rtmp"

type ConnectionState int32

const (
	StateHandshake ConnectionState = iota
	StateConnected
	StateDisconnecting
	StateClosed
)

func (s ConnectionState) String() string {
	switch s {
	case StateHandshake:
		return "handshake"
	case StateConnected:
		return "connected"
	case StateDisconnecting:
		return "disconnecting"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Handler receives connection level notifications. MessageReceived runs on the
// read goroutine; a panic inside it is reported through ExceptionCaught.
type Handler interface {
	ConnectionOpened(conn *Connection)
	MessageReceived(conn *Connection, packet *Packet)
	ConnectionClosed(conn *Connection)
	ExceptionCaught(conn *Connection, err error)
}

// Options tunes a connection. Zero durations disable the related feature.
type Options struct {
	// ChunkSize is announced to the peer on start when it differs from the default.
	ChunkSize uint32
	// IdleTimeout is the threshold for IsReaderIdle and IsWriterIdle.
	IdleTimeout time.Duration
	// PingInterval runs the keep-alive supervisor.
	PingInterval time.Duration
	// MaxInactivity closes the connection when nothing was read for that long.
	MaxInactivity time.Duration
	// AckInterval is the number of bytes between BytesRead acknowledgements.
	AckInterval uint32
	Tracer      trace.Tracer
	Events      chan<- any
}

func DefaultOptions() Options {
	return Options{
		ChunkSize:     DEFAULT_CHUNK_SIZE,
		IdleTimeout:   5 * time.Second,
		MaxInactivity: 60 * time.Second,
		AckInterval:   DEFAULT_ACK_INTERVAL,
	}
}

// Stats is a snapshot of the connection counters.
type Stats struct {
	PendingMessages int
	PendingCalls    int
	DeferredResults int
	Streams         int
	BytesRead       uint64
	BytesWritten    uint64
	ReaderIdle      bool
	WriterIdle      bool
}

// Connection is one RTMP session over a transport.
type Connection struct {
	id         string
	remoteAddr string
	rwc        io.ReadWriteCloser
	handler    Handler
	opts       Options
	logger     *slog.Logger
	tracer     trace.Tracer
	started    time.Time

	state    atomic.Int32
	encoding atomic.Int32
	invokeID atomic.Uint32

	channels *channelTable
	streams  *streamRegistry
	calls    *callRegistry
	deferred *deferredRegistry
	outbound *outboundQueue

	reader    *chunkReader
	writer    *chunkWriter
	bufWriter *bufio.Writer
	nextAck   uint64

	readChunkSize      atomic.Uint32
	writeChunkSize     atomic.Uint32
	announcedChunkSize atomic.Uint32
	bytesRead          atomic.Uint64
	bytesWritten       atomic.Uint64
	lastRead           atomic.Int64
	lastWrite          atomic.Int64

	closing   chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup
}

// NewConnection binds a connection to a transport on which the handshake is
// already done. Call Start to begin processing.
func NewConnection(rwc io.ReadWriteCloser, handler Handler, opts Options) *Connection {
	c := &Connection{
		id:       newSessionID(),
		rwc:      rwc,
		handler:  handler,
		opts:     opts,
		started:  time.Now(),
		streams:  newStreamRegistry(),
		calls:    newCallRegistry(),
		deferred: newDeferredRegistry(),
		outbound: newOutboundQueue(),
		closing:  make(chan struct{}),
	}
	if addr, ok := rwc.(interface{ RemoteAddr() net.Addr }); ok && addr.RemoteAddr() != nil {
		c.remoteAddr = addr.RemoteAddr().String()
	}
	c.logger = slog.With("sessionId", c.id)
	c.tracer = opts.Tracer
	if c.tracer == nil {
		c.tracer = otel.Tracer(tracerName)
	}

	c.channels = newChannelTable(c)
	c.reader = newChunkReader(&countingReader{r: rwc, conn: c}, c.channels)
	c.bufWriter = bufio.NewWriter(&countingWriter{w: rwc, conn: c})
	c.writer = newChunkWriter(c.bufWriter)
	c.readChunkSize.Store(DEFAULT_CHUNK_SIZE)
	c.writeChunkSize.Store(DEFAULT_CHUNK_SIZE)
	c.announcedChunkSize.Store(DEFAULT_CHUNK_SIZE)
	// the connect call uses id 1
	c.invokeID.Store(1)
	c.nextAck = uint64(opts.AckInterval)
	c.touch(&c.lastRead)
	c.touch(&c.lastWrite)
	return c
}

func newSessionID() string {
	b := make([]byte, 8)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}

// Start moves the connection to connected and starts the read, send and
// keep-alive goroutines.
func (c *Connection) Start() {
	if !c.state.CompareAndSwap(int32(StateHandshake), int32(StateConnected)) {
		return
	}
	c.logger.Info("Connection started", "remoteAddr", c.remoteAddr)

	c.wg.Add(1)
	go c.sendLoop()

	if c.opts.ChunkSize > 0 {
		if err := c.SetWriteChunkSize(c.opts.ChunkSize); err != nil {
			c.logger.Warn("Failed to announce chunk size", "err", err)
		}
	}

	c.emit(ConnectionEstablished{SessionID: c.id, RemoteAddr: c.remoteAddr})
	c.safely("connection opened", func() { c.handler.ConnectionOpened(c) })

	c.wg.Add(1)
	go c.readLoop()

	if c.opts.PingInterval > 0 {
		c.wg.Add(1)
		go c.keepAlive()
	}
}

func (c *Connection) ID() string {
	return c.id
}

func (c *Connection) RemoteAddr() string {
	return c.remoteAddr
}

func (c *Connection) State() ConnectionState {
	return ConnectionState(c.state.Load())
}

func (c *Connection) IsConnected() bool {
	return c.State() == StateConnected
}

func (c *Connection) Encoding() amf.Encoding {
	return amf.Encoding(c.encoding.Load())
}

func (c *Connection) SetEncoding(e amf.Encoding) {
	c.encoding.Store(int32(e))
}

func (c *Connection) ReadChunkSize() uint32 {
	return c.readChunkSize.Load()
}

func (c *Connection) WriteChunkSize() uint32 {
	return c.writeChunkSize.Load()
}

// SetWriteChunkSize announces a new outbound chunk size. The writer switches
// after the announcement is flushed. Announcing the current size is a no-op.
func (c *Connection) SetWriteChunkSize(size uint32) error {
	if size < 1 || size > MAX_CHUNK_SIZE {
		return fmt.Errorf("chunk size out of range: %d", size)
	}
	if c.announcedChunkSize.Swap(size) == size {
		return nil
	}
	return c.writeControl(&ChunkSize{Size: size})
}

// Channel returns the channel with the given id, creating it on first use.
func (c *Connection) Channel(id uint32) *Channel {
	return c.channels.get(id)
}

// StreamByID returns a created stream.
func (c *Connection) StreamByID(id uint32) (*NetStream, bool) {
	return c.streams.get(id)
}

// RememberStreamBufferDuration keeps a buffer length for a stream that does not
// exist yet, or applies it when it does.
func (c *Connection) RememberStreamBufferDuration(streamID, ms uint32) {
	c.streams.setBufferDuration(streamID, ms)
}

func (c *Connection) RegisterPendingCall(id uint32, call *PendingCall) {
	call.setID(id)
	c.calls.register(id, call)
}

// PendingCall looks up a call without removing it.
func (c *Connection) PendingCall(id uint32) (*PendingCall, bool) {
	return c.calls.get(id)
}

// RetrievePendingCall looks up and removes a call.
func (c *Connection) RetrievePendingCall(id uint32) (*PendingCall, bool) {
	return c.calls.retrieve(id)
}

// Write queues an event. It never blocks on the transport.
func (c *Connection) Write(channelID, streamID uint32, event Event) error {
	return c.writeAt(channelID, streamID, 0, event)
}

func (c *Connection) writeAt(channelID, streamID, timestamp uint32, event Event) error {
	switch c.State() {
	case StateConnected:
	case StateHandshake:
		return ErrNotConnected
	default:
		c.logger.Debug("Dropping write on closed connection", "channel", channelID, "type", event.DataType())
		return ErrConnectionClosed
	}

	dataType, payload, err := encodeEvent(event, c.Encoding())
	if err != nil {
		return fmt.Errorf("encode %T: %w", event, err)
	}
	msg := &outboundMessage{
		header: &Header{
			ChannelID: channelID,
			Timestamp: timestamp,
			DataType:  dataType,
			StreamID:  streamID,
		},
		payload: payload,
	}
	if cs, ok := event.(*ChunkSize); ok {
		msg.chunkSize = cs.Size
	}
	if !c.outbound.push(msg) {
		return ErrConnectionClosed
	}
	return nil
}

// writeControl writes on the protocol channel.
func (c *Connection) writeControl(event Event) error {
	return c.Write(CHUNK_STREAM_PROTOCOL, 0, event)
}

// Ping writes a user control message. Pending calls are not affected.
func (c *Connection) Ping(ping *Ping) error {
	return c.writeControl(ping)
}

// Notify sends a one-way call on the command channel.
func (c *Connection) Notify(method string, args ...any) error {
	return c.Write(CHUNK_STREAM_COMMAND, 0, &Notify{Method: method, Args: args})
}

// SendSharedObject writes a shared object message on the command channel.
func (c *Connection) SendSharedObject(msg *so.Message) error {
	return c.Write(CHUNK_STREAM_COMMAND, 0, &SharedObject{Message: msg})
}

// Invoke calls a remote method on the command channel. The callback runs once
// with the result. A closed connection completes the call with CallNotConnected
// before Invoke returns.
func (c *Connection) Invoke(method string, args []any, cb Callback) *PendingCall {
	call := NewPendingCall(method, args...)
	call.AddCallback(cb)
	c.InvokeOnChannel(call, CHUNK_STREAM_COMMAND)
	return call
}

// InvokeOnChannel sends a prepared call on the given channel.
func (c *Connection) InvokeOnChannel(call *PendingCall, channelID uint32) {
	c.invoke(call, channelID, c.invokeID.Add(1), nil)
}

func (c *Connection) invoke(call *PendingCall, channelID, id uint32, command any) {
	if !c.IsConnected() {
		call.complete(CallNotConnected, nil, ErrNotConnected)
		return
	}

	c.RegisterPendingCall(id, call)
	c.traceCall(call)

	invoke := NewInvoke(call.Method(), id, call.Args()...)
	invoke.Command = command
	if err := c.Write(channelID, StreamForChannel(channelID), invoke); err != nil {
		c.calls.retrieve(id)
		status := CallNotConnected
		if !errors.Is(err, ErrNotConnected) && !errors.Is(err, ErrConnectionClosed) {
			status = CallException
		}
		call.complete(status, nil, err)
	}
}

func (c *Connection) traceCall(call *PendingCall) {
	start := time.Now()
	_, span := c.tracer.Start(context.Background(), "rtmp.invoke "+call.Method(),
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("rtmp.method", call.Method()),
			attribute.Int64("rtmp.invoke_id", int64(call.ID())),
			attribute.String("rtmp.session_id", c.id),
		))

	call.AddCallback(func(pc *PendingCall) {
		status := pc.Status()
		span.SetAttributes(attribute.String("rtmp.call_status", status.String()))
		if !status.IsSuccess() {
			span.SetStatus(codes.Error, status.String())
		}
		span.End()
		c.emit(CallCompleted{SessionID: c.id, Method: pc.Method(), Status: status, Duration: time.Since(start)})
	})
}

// writeReply answers an invocation received from the peer.
func (c *Connection) writeReply(channelID, invokeID uint32, call *Call) error {
	reply := NewInvoke(methodResult, invokeID, call.Result)
	if !call.Status.IsSuccess() {
		description := call.Status.String()
		if call.Err != nil {
			description = call.Err.Error()
		}
		reply = NewInvoke(methodError, invokeID, map[string]any{
			"level":       "error",
			"code":        "NetConnection.Call.Failed",
			"description": description,
		})
	}
	return c.Write(channelID, StreamForChannel(channelID), reply)
}

// Close stops the connection. Queued writes are dropped, registries are cleared
// and pending calls are abandoned. It is safe to call more than once.
func (c *Connection) Close() {
	closed := false
	c.closeOnce.Do(func() {
		closed = true
		c.state.Store(int32(StateDisconnecting))
		close(c.closing)

		dropped := c.outbound.close()
		closeWithLog(c.rwc)

		orphaned := c.calls.len()
		c.channels.clear()
		c.streams.clear()
		c.calls.clear()
		c.deferred.clear()

		c.state.Store(int32(StateClosed))
		c.logger.Info("Connection closed", "droppedMessages", dropped, "orphanedCalls", orphaned)
		c.emit(ConnectionTerminated{SessionID: c.id, DroppedMessages: dropped, OrphanedCalls: orphaned})
	})
	// notify after the Once so a re-entrant Close is a no-op
	if closed {
		c.safely("connection closed", func() { c.handler.ConnectionClosed(c) })
	}
}

// Wait blocks until the connection goroutines have exited.
func (c *Connection) Wait() {
	c.wg.Wait()
}

// Done is closed when the connection starts closing.
func (c *Connection) Done() <-chan struct{} {
	return c.closing
}

func (c *Connection) isClosing() bool {
	select {
	case <-c.closing:
		return true
	default:
		return false
	}
}

func (c *Connection) readLoop() {
	defer c.wg.Done()
	defer c.Close()

	for {
		header, payload, err := c.reader.readMessage()
		if err != nil {
			if !c.isClosing() && !errors.Is(err, io.EOF) && !errors.Is(err, net.ErrClosed) {
				c.logger.Error("Read failed", "err", err)
				c.emit(ErrorOccurred{SessionID: c.id, Context: "read", Err: err})
			}
			return
		}
		if c.isClosing() {
			return
		}

		event, err := decodeEvent(header, payload)
		if err != nil {
			c.logger.Warn("Dropping undecodable message", "header", header, "err", err)
			continue
		}

		switch e := event.(type) {
		case *ChunkSize:
			if e.Size < 1 || e.Size > MAX_CHUNK_SIZE {
				c.logger.Warn("Ignoring chunk size out of range", "size", e.Size)
				continue
			}
			c.reader.setChunkSize(e.Size)
			c.readChunkSize.Store(e.Size)
		case *Abort:
			if ch, ok := c.channels.lookup(e.ChannelID); ok {
				ch.abort()
			}
		}

		c.acknowledge()
		c.dispatch(&Packet{Header: header, Event: event})
	}
}

func (c *Connection) dispatch(packet *Packet) {
	defer func() {
		if r := recover(); r != nil {
			err := fmt.Errorf("panic while handling %s: %v", packet.Header, r)
			c.handler.ExceptionCaught(c, err)
		}
	}()
	c.handler.MessageReceived(c, packet)
}

func (c *Connection) acknowledge() {
	if c.opts.AckInterval == 0 {
		return
	}
	read := c.bytesRead.Load()
	if read < c.nextAck {
		return
	}
	if err := c.writeControl(&BytesRead{Bytes: uint32(read)}); err != nil {
		c.logger.Debug("Failed to acknowledge", "err", err)
	}
	c.nextAck = read + uint64(c.opts.AckInterval)
}

func (c *Connection) sendLoop() {
	defer c.wg.Done()

	for {
		select {
		case <-c.closing:
			return
		case <-c.outbound.ready():
			for _, msg := range c.outbound.drain() {
				if c.isClosing() {
					return
				}
				ch := c.channels.get(msg.header.ChannelID)
				if err := c.writer.writeMessage(ch, msg.header, msg.payload); err != nil {
					c.writeFailed(err)
					return
				}
				if msg.chunkSize > 0 {
					c.writer.setChunkSize(msg.chunkSize)
					c.writeChunkSize.Store(msg.chunkSize)
				}
			}
			if err := c.bufWriter.Flush(); err != nil {
				c.writeFailed(err)
				return
			}
		}
	}
}

func (c *Connection) writeFailed(err error) {
	if !c.isClosing() {
		c.logger.Error("Write failed", "err", err)
		c.emit(ErrorOccurred{SessionID: c.id, Context: "write", Err: err})
	}
	c.Close()
}

func (c *Connection) keepAlive() {
	defer c.wg.Done()
	ticker := time.NewTicker(c.opts.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.closing:
			return
		case <-ticker.C:
			if c.opts.MaxInactivity > 0 && idleFor(&c.lastRead) > c.opts.MaxInactivity {
				c.logger.Warn("Closing inactive connection", "maxInactivity", c.opts.MaxInactivity)
				c.Close()
				return
			}
			if c.IsWriterIdle() {
				if err := c.Ping(&Ping{EventType: PING_CLIENT, Value2: c.timestamp()}); err != nil {
					c.logger.Debug("Keep-alive ping failed", "err", err)
				}
			}
		}
	}
}

// timestamp is the connection uptime in milliseconds.
func (c *Connection) timestamp() uint32 {
	return uint32(time.Since(c.started).Milliseconds())
}

func (c *Connection) IsReaderIdle() bool {
	return c.opts.IdleTimeout > 0 && idleFor(&c.lastRead) > c.opts.IdleTimeout
}

func (c *Connection) IsWriterIdle() bool {
	return c.opts.IdleTimeout > 0 && idleFor(&c.lastWrite) > c.opts.IdleTimeout
}

func (c *Connection) IsIdle() bool {
	return c.IsReaderIdle() && c.IsWriterIdle()
}

func (c *Connection) Stats() Stats {
	return Stats{
		PendingMessages: c.outbound.len(),
		PendingCalls:    c.calls.len(),
		DeferredResults: c.deferred.len(),
		Streams:         c.streams.len(),
		BytesRead:       c.bytesRead.Load(),
		BytesWritten:    c.bytesWritten.Load(),
		ReaderIdle:      c.IsReaderIdle(),
		WriterIdle:      c.IsWriterIdle(),
	}
}

func (c *Connection) emit(event any) {
	if c.opts.Events == nil {
		return
	}
	select {
	case c.opts.Events <- event:
	default:
		c.logger.Debug("Lifecycle event dropped", "event", fmt.Sprintf("%T", event))
	}
}

// safely runs a handler callback and reports a panic through ExceptionCaught.
func (c *Connection) safely(what string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			c.handler.ExceptionCaught(c, fmt.Errorf("panic in %s: %v", what, r))
		}
	}()
	fn()
}

func (c *Connection) touch(instant *atomic.Int64) {
	instant.Store(time.Now().UnixNano())
}

func idleFor(instant *atomic.Int64) time.Duration {
	return time.Since(time.Unix(0, instant.Load()))
}

type countingReader struct {
	r    io.Reader
	conn *Connection
}

func (cr *countingReader) Read(p []byte) (int, error) {
	n, err := cr.r.Read(p)
	if n > 0 {
		cr.conn.bytesRead.Add(uint64(n))
		cr.conn.touch(&cr.conn.lastRead)
	}
	return n, err
}

type countingWriter struct {
	w    io.Writer
	conn *Connection
}

func (cw *countingWriter) Write(p []byte) (int, error) {
	n, err := cw.w.Write(p)
	if n > 0 {
		cw.conn.bytesWritten.Add(uint64(n))
		cw.conn.touch(&cw.conn.lastWrite)
	}
	return n, err
}

func closeWithLog(c io.Closer) {
	if err := c.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
		slog.Error("Error closing resource", "err", err)
	}
}
