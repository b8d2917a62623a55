package rtmp

import "time"

// Lifecycle notifications sent to Options.Events. Delivery is best effort: a full
// channel drops the notification.

type ConnectionEstablished struct {
	SessionID  string
	RemoteAddr string
}

type ConnectionTerminated struct {
	SessionID       string
	DroppedMessages int
	OrphanedCalls   int
}

type StreamCreated struct {
	SessionID string
	StreamID  uint32
}

type CallCompleted struct {
	SessionID string
	Method    string
	Status    CallStatus
	Duration  time.Duration
}

type ErrorOccurred struct {
	SessionID string
	Context   string
	Err       error
}
