package rtmp

import (
	"log/slog"
	"sync"
)

// NetStreamEventHandler receives onStatus notifications for a stream.
type NetStreamEventHandler interface {
	OnStreamEvent(notify *Notify)
}

type NetStreamEventHandlerFunc func(notify *Notify)

func (f NetStreamEventHandlerFunc) OnStreamEvent(notify *Notify) {
	f(notify)
}

// EventDispatcher receives media and data messages arriving on a client stream.
type EventDispatcher interface {
	DispatchEvent(streamID uint32, event Event)
}

type EventDispatcherFunc func(streamID uint32, event Event)

func (f EventDispatcherFunc) DispatchEvent(streamID uint32, event Event) {
	f(streamID, event)
}

// OutputStream groups the three channels a stream publishes on.
type OutputStream struct {
	Data  *Channel
	Video *Channel
	Audio *Channel
}

// ConnectionConsumer pushes stream data onto the output channels of a stream.
type ConnectionConsumer struct {
	conn     *Connection
	streamID uint32
	output   *OutputStream
}

// PushMessage routes data by kind: video and audio on their channels, everything
// else on the data channel.
func (c *ConnectionConsumer) PushMessage(data *StreamData) error {
	ch := c.output.Data
	switch data.Kind {
	case MSG_TYPE_VIDEO:
		ch = c.output.Video
	case MSG_TYPE_AUDIO:
		ch = c.output.Audio
	}
	return c.conn.writeAt(ch.ID(), c.streamID, data.Timestamp, data)
}

// NetStream is the client side state of one created stream.
type NetStream struct {
	id         uint32
	output     *OutputStream
	consumer   *ConnectionConsumer
	dispatcher EventDispatcher

	mu             sync.Mutex
	handler        NetStreamEventHandler
	bufferDuration uint32
}

func (s *NetStream) ID() uint32 {
	return s.id
}

func (s *NetStream) Output() *OutputStream {
	return s.output
}

func (s *NetStream) Consumer() *ConnectionConsumer {
	return s.consumer
}

func (s *NetStream) Handler() NetStreamEventHandler {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.handler
}

func (s *NetStream) SetHandler(h NetStreamEventHandler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handler = h
}

// BufferDuration is the client buffer length in milliseconds.
func (s *NetStream) BufferDuration() uint32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.bufferDuration
}

func (s *NetStream) SetBufferDuration(ms uint32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.bufferDuration = ms
}

func (s *NetStream) dispatch(event Event) {
	if s.dispatcher == nil {
		slog.Debug("No dispatcher for stream event", "streamId", s.id, "type", event.DataType())
		return
	}
	s.dispatcher.DispatchEvent(s.id, event)
}

// streamRegistry holds the streams of one connection and the buffer durations
// announced for streams that do not exist yet.
type streamRegistry struct {
	mu         sync.Mutex
	streams    map[uint32]*NetStream
	remembered map[uint32]uint32
}

func newStreamRegistry() *streamRegistry {
	return &streamRegistry{
		streams:    make(map[uint32]*NetStream),
		remembered: make(map[uint32]uint32),
	}
}

// create returns the stream for id, creating it with its output channels.
func (r *streamRegistry) create(conn *Connection, id uint32, dispatcher EventDispatcher) *NetStream {
	r.mu.Lock()
	defer r.mu.Unlock()

	if s, ok := r.streams[id]; ok {
		return s
	}

	base := ChannelForStream(id)
	output := &OutputStream{
		Data:  conn.Channel(base),
		Video: conn.Channel(base + 1),
		Audio: conn.Channel(base + 2),
	}
	s := &NetStream{
		id:         id,
		output:     output,
		consumer:   &ConnectionConsumer{conn: conn, streamID: id, output: output},
		dispatcher: dispatcher,
	}
	if ms, ok := r.remembered[id]; ok {
		s.bufferDuration = ms
		delete(r.remembered, id)
	}
	r.streams[id] = s
	return s
}

func (r *streamRegistry) get(id uint32) (*NetStream, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.streams[id]
	return s, ok
}

func (r *streamRegistry) remove(id uint32) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.streams, id)
}

// setBufferDuration applies the duration to an existing stream or remembers it.
// It reports whether the stream existed.
func (r *streamRegistry) setBufferDuration(id, ms uint32) bool {
	r.mu.Lock()
	s, ok := r.streams[id]
	if !ok {
		r.remembered[id] = ms
	}
	r.mu.Unlock()

	if ok {
		s.SetBufferDuration(ms)
	}
	return ok
}

func (r *streamRegistry) len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.streams)
}

func (r *streamRegistry) clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	clear(r.streams)
	clear(r.remembered)
}
