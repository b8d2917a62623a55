package rtmp

import (
	"log/slog"
	"sync"
)

// DeferredResult lets a service method answer after it has returned. The method
// returns the DeferredResult and calls Resolve or Reject later from any goroutine.
type DeferredResult struct {
	mu        sync.Mutex
	conn      *Connection
	channelID uint32
	invokeID  uint32
	call      *Call
	resolved  bool
}

func NewDeferredResult() *DeferredResult {
	return &DeferredResult{}
}

// InvokeID is the id of the invocation this result answers, zero until registered.
func (d *DeferredResult) InvokeID() uint32 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.invokeID
}

// Resolve completes the call successfully and writes the reply.
func (d *DeferredResult) Resolve(result any) error {
	return d.finish(func(call *Call) {
		call.Result = result
		call.Err = nil
		if result == nil {
			call.Status = CallSuccessNull
		} else {
			call.Status = CallSuccess
		}
	})
}

// Reject completes the call with an error reply.
func (d *DeferredResult) Reject(err error) error {
	return d.finish(func(call *Call) {
		call.Status = CallException
		call.Err = err
	})
}

func (d *DeferredResult) finish(apply func(call *Call)) error {
	d.mu.Lock()
	if d.resolved {
		d.mu.Unlock()
		return ErrAlreadyResolved
	}
	d.resolved = true
	if d.call == nil {
		d.call = &Call{}
	}
	apply(d.call)
	bound := d.conn != nil
	d.mu.Unlock()

	if !bound {
		// resolved before registration, the reply goes out on bind
		return nil
	}
	return d.send()
}

// bind attaches the result to the invocation it answers.
func (d *DeferredResult) bind(conn *Connection, channelID, invokeID uint32, call *Call) {
	d.mu.Lock()
	d.conn = conn
	d.channelID = channelID
	d.invokeID = invokeID
	if d.call != nil {
		// keep an outcome recorded by an early Resolve
		call.Status, call.Result, call.Err = d.call.Status, d.call.Result, d.call.Err
	}
	d.call = call
	resolved := d.resolved
	d.mu.Unlock()

	conn.deferred.add(d)
	if resolved {
		if err := d.send(); err != nil {
			slog.Warn("Failed to send deferred result", "invokeId", invokeID, "err", err)
		}
	}
}

func (d *DeferredResult) send() error {
	d.mu.Lock()
	conn, channelID, invokeID, call := d.conn, d.channelID, d.invokeID, d.call
	d.mu.Unlock()

	conn.deferred.remove(d)
	return conn.writeReply(channelID, invokeID, call)
}

type deferredRegistry struct {
	mu      sync.Mutex
	results map[*DeferredResult]struct{}
}

func newDeferredRegistry() *deferredRegistry {
	return &deferredRegistry{
		results: make(map[*DeferredResult]struct{}),
	}
}

func (r *deferredRegistry) add(d *DeferredResult) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.results[d] = struct{}{}
}

func (r *deferredRegistry) remove(d *DeferredResult) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.results, d)
}

func (r *deferredRegistry) len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.results)
}

func (r *deferredRegistry) clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	clear(r.results)
}
