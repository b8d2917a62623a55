package rtmp

import (
	"sync"
)

type CallStatus int

const (
	CallPending CallStatus = iota
	CallSuccess
	CallSuccessNull
	CallMethodNotFound
	CallNotConnected
	CallFailed
	CallException
)

func (s CallStatus) String() string {
	switch s {
	case CallPending:
		return "pending"
	case CallSuccess:
		return "success"
	case CallSuccessNull:
		return "success-null"
	case CallMethodNotFound:
		return "method-not-found"
	case CallNotConnected:
		return "not-connected"
	case CallFailed:
		return "failed"
	case CallException:
		return "exception"
	default:
		return "unknown"
	}
}

func (s CallStatus) IsSuccess() bool {
	return s == CallSuccess || s == CallSuccessNull
}

// Call is a method invocation received from the peer.
type Call struct {
	Method string
	Args   []any
	Status CallStatus
	Result any
	Err    error
}

// Callback receives a completed pending call.
type Callback func(call *PendingCall)

// PendingCall is an outbound invocation waiting for its result. It completes once.
type PendingCall struct {
	method string
	args   []any

	mu        sync.Mutex
	id        uint32
	status    CallStatus
	result    any
	err       error
	callbacks []Callback
	done      chan struct{}
	once      sync.Once
}

func NewPendingCall(method string, args ...any) *PendingCall {
	return &PendingCall{
		method: method,
		args:   args,
		done:   make(chan struct{}),
	}
}

func (c *PendingCall) Method() string {
	return c.method
}

func (c *PendingCall) Args() []any {
	return c.args
}

func (c *PendingCall) ID() uint32 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.id
}

func (c *PendingCall) setID(id uint32) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.id = id
}

func (c *PendingCall) Status() CallStatus {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status
}

func (c *PendingCall) Result() any {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.result
}

func (c *PendingCall) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

// Done is closed when the call completes.
func (c *PendingCall) Done() <-chan struct{} {
	return c.done
}

// AddCallback registers a callback. On a completed call it runs immediately.
func (c *PendingCall) AddCallback(cb Callback) {
	if cb == nil {
		return
	}
	c.mu.Lock()
	select {
	case <-c.done:
		c.mu.Unlock()
		cb(c)
		return
	default:
	}
	c.callbacks = append(c.callbacks, cb)
	c.mu.Unlock()
}

// complete records the outcome and runs the callbacks. Later calls are ignored.
func (c *PendingCall) complete(status CallStatus, result any, err error) bool {
	fired := false
	c.once.Do(func() {
		fired = true
		c.mu.Lock()
		c.status = status
		c.result = result
		c.err = err
		callbacks := c.callbacks
		c.callbacks = nil
		close(c.done)
		c.mu.Unlock()

		for _, cb := range callbacks {
			cb(c)
		}
	})
	return fired
}

type callRegistry struct {
	mu    sync.Mutex
	calls map[uint32]*PendingCall
}

func newCallRegistry() *callRegistry {
	return &callRegistry{
		calls: make(map[uint32]*PendingCall),
	}
}

func (r *callRegistry) register(id uint32, call *PendingCall) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls[id] = call
}

func (r *callRegistry) get(id uint32) (*PendingCall, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	call, ok := r.calls[id]
	return call, ok
}

func (r *callRegistry) retrieve(id uint32) (*PendingCall, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	call, ok := r.calls[id]
	if ok {
		delete(r.calls, id)
	}
	return call, ok
}

func (r *callRegistry) len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.calls)
}

func (r *callRegistry) clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	clear(r.calls)
}
