package so

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"sync"
	"time"

	"solrtmp/pkg/persistence"
)

var ErrNotConnected = errors.New("shared object is not connected")

// Sender delivers shared object messages to the remote peer.
type Sender interface {
	SendSharedObject(msg *Message) error
}

// ClientSharedObject is the local replica of a named remote shared object.
type ClientSharedObject struct {
	name       string
	persistent bool

	mu         sync.RWMutex
	attributes map[string]any
	pending    map[string]any
	version    uint32
	connected  bool
	sender     Sender
	listeners  []Listener
}

func New(name string, persistent bool) *ClientSharedObject {
	return &ClientSharedObject{
		name:       name,
		persistent: persistent,
		attributes: make(map[string]any),
		pending:    make(map[string]any),
	}
}

func (o *ClientSharedObject) Name() string {
	return o.name
}

func (o *ClientSharedObject) IsPersistent() bool {
	return o.persistent
}

func (o *ClientSharedObject) Version() uint32 {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.version
}

// IsConnected reports whether the server confirmed the use request.
func (o *ClientSharedObject) IsConnected() bool {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.connected
}

func (o *ClientSharedObject) Attribute(key string) (any, bool) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	v, ok := o.attributes[key]
	return v, ok
}

// Attributes returns a copy of the current attributes.
func (o *ClientSharedObject) Attributes() map[string]any {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return maps.Clone(o.attributes)
}

func (o *ClientSharedObject) AddListener(l Listener) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.listeners = append(o.listeners, l)
}

func (o *ClientSharedObject) RemoveListener(l Listener) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.listeners = slices.DeleteFunc(o.listeners, func(x Listener) bool { return x == l })
}

// Connect asks the server to use the shared object over the given sender.
func (o *ClientSharedObject) Connect(sender Sender) error {
	o.mu.Lock()
	o.sender = sender
	msg := o.newMessage()
	o.mu.Unlock()

	msg.AddEvent(SERVER_CONNECT, "", nil)
	return sender.SendSharedObject(msg)
}

// Disconnect releases the shared object. Listeners are notified even when the
// release could not be sent.
func (o *ClientSharedObject) Disconnect() error {
	o.mu.Lock()
	sender := o.sender
	msg := o.newMessage()
	o.sender = nil
	o.connected = false
	clear(o.pending)
	listeners := slices.Clone(o.listeners)
	o.mu.Unlock()

	var err error
	if sender != nil {
		msg.AddEvent(SERVER_DISCONNECT, "", nil)
		err = sender.SendSharedObject(msg)
	}
	for _, l := range listeners {
		l.OnDisconnect(o)
	}
	return err
}

// SetAttribute requests a change. The local value is updated once the server
// confirms it.
func (o *ClientSharedObject) SetAttribute(key string, value any) error {
	return o.send(func(msg *Message) {
		o.pending[key] = value
		msg.AddEvent(SERVER_SET_ATTRIBUTE, key, value)
	})
}

func (o *ClientSharedObject) RemoveAttribute(key string) error {
	return o.send(func(msg *Message) {
		msg.AddEvent(SERVER_DELETE_ATTRIBUTE, key, nil)
	})
}

// SendMessage broadcasts a handler call to every subscriber of the object.
func (o *ClientSharedObject) SendMessage(method string, args ...any) error {
	return o.send(func(msg *Message) {
		msg.AddEvent(SEND_MESSAGE, method, args)
	})
}

func (o *ClientSharedObject) send(fill func(msg *Message)) error {
	o.mu.Lock()
	sender := o.sender
	if sender == nil {
		o.mu.Unlock()
		return fmt.Errorf("%s: %w", o.name, ErrNotConnected)
	}
	msg := o.newMessage()
	fill(msg)
	o.mu.Unlock()
	return sender.SendSharedObject(msg)
}

func (o *ClientSharedObject) newMessage() *Message {
	return NewMessage(o.name, o.version, o.persistent)
}

// Dispatch applies a message received from the server.
func (o *ClientSharedObject) Dispatch(msg *Message) {
	var notify []func(Listener)

	o.mu.Lock()
	if msg.Version > 0 {
		o.version = msg.Version
	}
	for _, ev := range msg.Events {
		switch ev.Type {
		case CLIENT_INITIAL_DATA:
			o.connected = true
			notify = append(notify, func(l Listener) { l.OnConnect(o) })
		case CLIENT_CLEAR_DATA:
			clear(o.attributes)
			notify = append(notify, func(l Listener) { l.OnClear(o) })
		case CLIENT_UPDATE_DATA:
			o.attributes[ev.Key] = ev.Value
			notify = append(notify, func(l Listener) { l.OnUpdate(o, ev.Key, ev.Value) })
		case CLIENT_UPDATE_ATTRIBUTE:
			value, ok := o.pending[ev.Key]
			if !ok {
				continue
			}
			delete(o.pending, ev.Key)
			o.attributes[ev.Key] = value
			notify = append(notify, func(l Listener) { l.OnUpdate(o, ev.Key, value) })
		case CLIENT_DELETE_DATA:
			delete(o.attributes, ev.Key)
			delete(o.pending, ev.Key)
			notify = append(notify, func(l Listener) { l.OnDelete(o, ev.Key) })
		case SEND_MESSAGE:
			args, _ := ev.Value.([]any)
			notify = append(notify, func(l Listener) { l.OnSend(o, ev.Key, args) })
		case CLIENT_STATUS:
			level, _ := ev.Value.(string)
			notify = append(notify, func(l Listener) { l.OnStatus(o, ev.Key, level) })
		default:
			slog.Warn("Unhandled shared object event", "name", o.name, "type", ev.Type)
		}
	}
	listeners := slices.Clone(o.listeners)
	o.mu.Unlock()

	for _, fn := range notify {
		for _, l := range listeners {
			fn(l)
		}
	}
}

// Restore loads previously flushed attributes. A missing object is not an error.
func (o *ClientSharedObject) Restore(ctx context.Context, store persistence.Store) error {
	if !o.persistent {
		return nil
	}
	obj, err := store.Load(ctx, o.name)
	if errors.Is(err, persistence.ErrNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("restore shared object %s: %w", o.name, err)
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	o.attributes = maps.Clone(obj.Attributes)
	if o.attributes == nil {
		o.attributes = make(map[string]any)
	}
	o.version = obj.Version
	return nil
}

// Flush saves the attributes of a persistent object.
func (o *ClientSharedObject) Flush(ctx context.Context, store persistence.Store) error {
	if !o.persistent {
		return nil
	}
	o.mu.RLock()
	obj := &persistence.Object{
		Name:       o.name,
		Version:    o.version,
		Attributes: maps.Clone(o.attributes),
		UpdatedAt:  time.Now().UTC(),
	}
	o.mu.RUnlock()

	if err := store.Save(ctx, obj); err != nil {
		return fmt.Errorf("flush shared object %s: %w", o.name, err)
	}
	return nil
}
