package so

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"solrtmp/pkg/amf"
)

type EventType uint8

// Shared object event types
const (
	SERVER_CONNECT          EventType = 1
	SERVER_DISCONNECT       EventType = 2
	SERVER_SET_ATTRIBUTE    EventType = 3
	CLIENT_UPDATE_DATA      EventType = 4
	CLIENT_UPDATE_ATTRIBUTE EventType = 5
	SEND_MESSAGE            EventType = 6
	CLIENT_STATUS           EventType = 7
	CLIENT_CLEAR_DATA       EventType = 8
	CLIENT_DELETE_DATA      EventType = 9
	SERVER_DELETE_ATTRIBUTE EventType = 10
	CLIENT_INITIAL_DATA     EventType = 11
)

const persistentFlag = 2

func (t EventType) String() string {
	switch t {
	case SERVER_CONNECT:
		return "use"
	case SERVER_DISCONNECT:
		return "release"
	case SERVER_SET_ATTRIBUTE:
		return "request change"
	case CLIENT_UPDATE_DATA:
		return "change"
	case CLIENT_UPDATE_ATTRIBUTE:
		return "success"
	case SEND_MESSAGE:
		return "send message"
	case CLIENT_STATUS:
		return "status"
	case CLIENT_CLEAR_DATA:
		return "clear"
	case CLIENT_DELETE_DATA:
		return "remove"
	case SERVER_DELETE_ATTRIBUTE:
		return "request remove"
	case CLIENT_INITIAL_DATA:
		return "use success"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(t))
	}
}

// Event is one change inside a shared object message. For SEND_MESSAGE Key is the
// handler name and Value the []any arguments, for CLIENT_STATUS Key is the code and
// Value the level.
type Event struct {
	Type  EventType
	Key   string
	Value any
}

// Message is the payload of a shared object message.
type Message struct {
	Name       string
	Version    uint32
	Persistent bool
	Events     []Event
}

func NewMessage(name string, version uint32, persistent bool) *Message {
	return &Message{
		Name:       name,
		Version:    version,
		Persistent: persistent,
	}
}

func (m *Message) AddEvent(t EventType, key string, value any) {
	m.Events = append(m.Events, Event{Type: t, Key: key, Value: value})
}

// Encode writes the message in the AMF0 shared object layout.
func Encode(w io.Writer, m *Message) error {
	if err := amf.WriteUTF8(w, m.Name); err != nil {
		return err
	}
	flags := uint32(0)
	if m.Persistent {
		flags = persistentFlag
	}
	header := [12]byte{}
	binary.BigEndian.PutUint32(header[0:], m.Version)
	binary.BigEndian.PutUint32(header[4:], flags)
	// 4 reserved bytes
	if _, err := w.Write(header[:]); err != nil {
		return err
	}

	body := new(bytes.Buffer)
	for _, ev := range m.Events {
		body.Reset()
		if err := encodeEventBody(body, ev); err != nil {
			return fmt.Errorf("shared object %s event %s: %w", m.Name, ev.Type, err)
		}
		prefix := [5]byte{byte(ev.Type)}
		binary.BigEndian.PutUint32(prefix[1:], uint32(body.Len()))
		if _, err := w.Write(prefix[:]); err != nil {
			return err
		}
		if _, err := w.Write(body.Bytes()); err != nil {
			return err
		}
	}
	return nil
}

func encodeEventBody(w io.Writer, ev Event) error {
	switch ev.Type {
	case SERVER_CONNECT, SERVER_DISCONNECT, CLIENT_CLEAR_DATA, CLIENT_INITIAL_DATA:
		return nil
	case SERVER_SET_ATTRIBUTE, CLIENT_UPDATE_DATA:
		if err := amf.WriteUTF8(w, ev.Key); err != nil {
			return err
		}
		return amf.WriteAMF0Sequence(w, ev.Value)
	case CLIENT_UPDATE_ATTRIBUTE, CLIENT_DELETE_DATA, SERVER_DELETE_ATTRIBUTE:
		return amf.WriteUTF8(w, ev.Key)
	case SEND_MESSAGE:
		values := []any{ev.Key}
		if args, ok := ev.Value.([]any); ok {
			values = append(values, args...)
		}
		return amf.WriteAMF0Sequence(w, values...)
	case CLIENT_STATUS:
		level, _ := ev.Value.(string)
		return amf.WriteAMF0Sequence(w, ev.Key, level)
	default:
		return fmt.Errorf("unsupported event type %d", ev.Type)
	}
}

// Decode reads a shared object message. A change event carrying several key/value
// pairs is expanded into one Event per pair.
func Decode(r io.Reader) (*Message, error) {
	name, err := amf.ReadUTF8(r)
	if err != nil {
		return nil, fmt.Errorf("shared object name: %w", err)
	}
	header := [12]byte{}
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return nil, fmt.Errorf("shared object %s header: %w", name, err)
	}
	m := &Message{
		Name:       name,
		Version:    binary.BigEndian.Uint32(header[0:]),
		Persistent: binary.BigEndian.Uint32(header[4:])&persistentFlag != 0,
	}

	prefix := [5]byte{}
	for {
		if _, err := io.ReadFull(r, prefix[:]); err != nil {
			if errors.Is(err, io.EOF) {
				return m, nil
			}
			return nil, fmt.Errorf("shared object %s event: %w", name, err)
		}
		t := EventType(prefix[0])
		body := make([]byte, binary.BigEndian.Uint32(prefix[1:]))
		if _, err := io.ReadFull(r, body); err != nil {
			return nil, fmt.Errorf("shared object %s event %s body: %w", name, t, err)
		}
		events, err := decodeEventBody(t, body)
		if err != nil {
			return nil, fmt.Errorf("shared object %s event %s: %w", name, t, err)
		}
		m.Events = append(m.Events, events...)
	}
}

func decodeEventBody(t EventType, body []byte) ([]Event, error) {
	r := bytes.NewReader(body)

	switch t {
	case SERVER_CONNECT, SERVER_DISCONNECT, CLIENT_CLEAR_DATA, CLIENT_INITIAL_DATA:
		return []Event{{Type: t}}, nil
	case SERVER_SET_ATTRIBUTE, CLIENT_UPDATE_DATA:
		var events []Event
		for r.Len() > 0 {
			key, err := amf.ReadUTF8(r)
			if err != nil {
				return nil, err
			}
			value, err := amf.DecodeAMF0(r)
			if err != nil {
				return nil, err
			}
			events = append(events, Event{Type: t, Key: key, Value: value})
		}
		return events, nil
	case CLIENT_UPDATE_ATTRIBUTE, CLIENT_DELETE_DATA, SERVER_DELETE_ATTRIBUTE:
		if r.Len() == 0 {
			return []Event{{Type: t}}, nil
		}
		key, err := amf.ReadUTF8(r)
		if err != nil {
			return nil, err
		}
		return []Event{{Type: t, Key: key}}, nil
	case SEND_MESSAGE:
		values, err := amf.DecodeAMF0Sequence(r)
		if err != nil {
			return nil, err
		}
		if len(values) == 0 {
			return nil, errors.New("send message without a handler name")
		}
		method, _ := values[0].(string)
		return []Event{{Type: t, Key: method, Value: values[1:]}}, nil
	case CLIENT_STATUS:
		values, err := amf.DecodeAMF0Sequence(r)
		if err != nil {
			return nil, err
		}
		ev := Event{Type: t}
		if len(values) > 0 {
			ev.Key, _ = values[0].(string)
		}
		if len(values) > 1 {
			ev.Value = values[1]
		}
		return []Event{ev}, nil
	default:
		return []Event{{Type: t, Value: body}}, nil
	}
}
