package rtmp

import (
	"bytes"
	"io"
	"net"
	"sync"
	"testing"
	"time"
)

// newTCPPair returns both ends of a loopback TCP connection. Unlike net.Pipe the
// kernel buffers writes, so both sides may write before reading.
func newTCPPair(t *testing.T) (net.Conn, net.Conn) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer ln.Close()

	accepted := make(chan net.Conn, 1)
	go func() {
		c, err := ln.Accept()
		if err != nil {
			accepted <- nil
			return
		}
		accepted <- c
	}()

	client, err := net.Dial("tcp", ln.Addr().String())
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	server := <-accepted
	if server == nil {
		t.Fatal("accept failed")
	}
	t.Cleanup(func() {
		client.Close()
		server.Close()
	})
	return client, server
}

// bufferConn is a transport that records writes and blocks reads until closed.
type bufferConn struct {
	mu     sync.Mutex
	buf    bytes.Buffer
	closed chan struct{}
	once   sync.Once
}

func newBufferConn() *bufferConn {
	return &bufferConn{closed: make(chan struct{})}
}

func (c *bufferConn) Read(p []byte) (int, error) {
	<-c.closed
	return 0, io.EOF
}

func (c *bufferConn) Write(p []byte) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	select {
	case <-c.closed:
		return 0, io.ErrClosedPipe
	default:
	}
	return c.buf.Write(p)
}

func (c *bufferConn) Close() error {
	c.once.Do(func() { close(c.closed) })
	return nil
}

func (c *bufferConn) Bytes() []byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	return bytes.Clone(c.buf.Bytes())
}

// recordingHandler records the connection callbacks.
type recordingHandler struct {
	mu         sync.Mutex
	opened     int
	closed     int
	packets    []*Packet
	exceptions []error
	onMessage  func(conn *Connection, packet *Packet)
}

func (h *recordingHandler) ConnectionOpened(conn *Connection) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.opened++
}

func (h *recordingHandler) MessageReceived(conn *Connection, packet *Packet) {
	h.mu.Lock()
	h.packets = append(h.packets, packet)
	fn := h.onMessage
	h.mu.Unlock()
	if fn != nil {
		fn(conn, packet)
	}
}

func (h *recordingHandler) ConnectionClosed(conn *Connection) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed++
}

func (h *recordingHandler) ExceptionCaught(conn *Connection, err error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.exceptions = append(h.exceptions, err)
}

func (h *recordingHandler) counts() (opened, closed int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.opened, h.closed
}

// peer reads what a Connection writes, message by message.
type peer struct {
	reader *chunkReader
	writer *chunkWriter
	conn   net.Conn
	table  *channelTable
}

func newPeer(conn net.Conn) *peer {
	table := newChannelTable(nil)
	return &peer{
		reader: newChunkReader(conn, table),
		writer: newChunkWriter(conn),
		conn:   conn,
		table:  table,
	}
}

// next returns the next decoded message within the deadline.
func (p *peer) next(t *testing.T) (*Header, Event) {
	t.Helper()
	_ = p.conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	h, payload, err := p.reader.readMessage()
	if err != nil {
		t.Fatalf("peer read: %v", err)
	}
	ev, err := decodeEvent(h, payload)
	if err != nil {
		t.Fatalf("peer decode: %v", err)
	}
	return h, ev
}

// nextOfType skips messages until one of the wanted type arrives.
func nextOfType[T Event](t *testing.T, p *peer) (*Header, T) {
	t.Helper()
	for {
		h, ev := p.next(t)
		if typed, ok := ev.(T); ok {
			return h, typed
		}
	}
}

// send writes an event to the connection under test.
func (p *peer) send(t *testing.T, channelID, streamID uint32, ev Event) {
	t.Helper()
	dataType, payload, err := encodeEvent(ev, 0)
	if err != nil {
		t.Fatalf("peer encode: %v", err)
	}
	h := &Header{ChannelID: channelID, DataType: dataType, StreamID: streamID}
	if err := p.writer.writeMessage(p.table.get(channelID), h, payload); err != nil {
		t.Fatalf("peer write: %v", err)
	}
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(5 * time.Millisecond)
	}
}
