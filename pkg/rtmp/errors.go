package rtmp

import (
	"errors"
	"fmt"
)

var (
	ErrNotConnected        = errors.New("not connected")
	ErrConnectionClosed    = errors.New("connection closed")
	ErrPersistenceMismatch = errors.New("shared object requested with a different persistence flag")
	ErrMethodNotFound      = errors.New("method not found")
	ErrAlreadyResolved     = errors.New("deferred result already resolved")
	ErrStreamNotFound      = errors.New("stream not found")
)

// RemoteError is the failure carried by an _error reply.
type RemoteError struct {
	Method      string
	Code        string
	Description string
	Info        any
}

func (e *RemoteError) Error() string {
	if e.Code == "" {
		return fmt.Sprintf("%s failed: %s", e.Method, e.Description)
	}
	return fmt.Sprintf("%s failed: %s: %s", e.Method, e.Code, e.Description)
}
