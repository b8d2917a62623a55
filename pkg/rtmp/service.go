package rtmp

import (
	"fmt"
	"log/slog"
	"sync"
)

// ServiceFunc handles a method called by the peer. Returning a *DeferredResult
// postpones the reply until it is resolved.
type ServiceFunc func(args []any) (any, error)

// ServiceProvider resolves a method by name and argument count.
type ServiceProvider interface {
	Lookup(method string, arity int) (ServiceFunc, bool)
}

const anyArity = -1

// ServiceRegistry is a ServiceProvider backed by registered functions.
type ServiceRegistry struct {
	mu      sync.RWMutex
	methods map[string]map[int]ServiceFunc
}

func NewServiceRegistry() *ServiceRegistry {
	return &ServiceRegistry{
		methods: make(map[string]map[int]ServiceFunc),
	}
}

// Register binds fn to method with exactly arity arguments.
func (r *ServiceRegistry) Register(method string, arity int, fn ServiceFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	byArity, ok := r.methods[method]
	if !ok {
		byArity = make(map[int]ServiceFunc)
		r.methods[method] = byArity
	}
	byArity[arity] = fn
}

// RegisterVariadic binds fn to method for any argument count without an exact match.
func (r *ServiceRegistry) RegisterVariadic(method string, fn ServiceFunc) {
	r.Register(method, anyArity, fn)
}

func (r *ServiceRegistry) Lookup(method string, arity int) (ServiceFunc, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	byArity, ok := r.methods[method]
	if !ok {
		return nil, false
	}
	if fn, ok := byArity[arity]; ok {
		return fn, true
	}
	fn, ok := byArity[anyArity]
	return fn, ok
}

// invokeService runs the call against the provider and records the outcome on it.
func invokeService(call *Call, provider ServiceProvider) {
	fn, ok := provider.Lookup(call.Method, len(call.Args))
	if !ok {
		call.Status = CallMethodNotFound
		call.Err = fmt.Errorf("%s with %d arguments: %w", call.Method, len(call.Args), ErrMethodNotFound)
		return
	}

	defer func() {
		if r := recover(); r != nil {
			slog.Error("Service method panicked", "method", call.Method, "panic", r)
			call.Status = CallException
			call.Err = fmt.Errorf("%s panicked: %v", call.Method, r)
		}
	}()

	result, err := fn(call.Args)
	switch {
	case err != nil:
		call.Status = CallException
		call.Err = err
	case result == nil:
		call.Status = CallSuccessNull
	default:
		call.Status = CallSuccess
		call.Result = result
	}
}
