package rtmp

import "sync"

// Channel is one logical chunk stream of a connection. The inbound state is only
// touched by the read goroutine and the outbound state only by the send goroutine.
type Channel struct {
	id   uint32
	conn *Connection

	in inboundState

	lastWritten  *Header
	lastDelta    uint32
	lastExtended bool
}

type inboundState struct {
	header   *Header
	delta    uint32
	extended bool
	payload  []byte
}

func (ch *Channel) ID() uint32 {
	return ch.id
}

// StreamID is the message stream the channel carries data for.
func (ch *Channel) StreamID() uint32 {
	return StreamForChannel(ch.id)
}

// Write queues an event on this channel.
func (ch *Channel) Write(event Event) error {
	if ch.conn == nil {
		return ErrNotConnected
	}
	return ch.conn.Write(ch.id, ch.StreamID(), event)
}

// abort drops a partially received message.
func (ch *Channel) abort() {
	ch.in.payload = nil
}

type channelTable struct {
	mu       sync.Mutex
	conn     *Connection
	channels map[uint32]*Channel
}

func newChannelTable(conn *Connection) *channelTable {
	return &channelTable{
		conn:     conn,
		channels: make(map[uint32]*Channel),
	}
}

func (t *channelTable) get(id uint32) *Channel {
	t.mu.Lock()
	defer t.mu.Unlock()
	ch, ok := t.channels[id]
	if !ok {
		ch = &Channel{id: id, conn: t.conn}
		t.channels[id] = ch
	}
	return ch
}

func (t *channelTable) lookup(id uint32) (*Channel, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	ch, ok := t.channels[id]
	return ch, ok
}

func (t *channelTable) len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.channels)
}

func (t *channelTable) clear() {
	t.mu.Lock()
	defer t.mu.Unlock()
	clear(t.channels)
}
