package so

// Listener observes changes of a client shared object. Callbacks run on the
// goroutine that dispatched the message, after the object's lock is released.
type Listener interface {
	OnConnect(so *ClientSharedObject)
	OnDisconnect(so *ClientSharedObject)
	OnUpdate(so *ClientSharedObject, key string, value any)
	OnDelete(so *ClientSharedObject, key string)
	OnClear(so *ClientSharedObject)
	OnSend(so *ClientSharedObject, method string, args []any)
	OnStatus(so *ClientSharedObject, code, level string)
}

// BaseListener implements Listener with no-ops. Embed it to override a subset.
type BaseListener struct{}

func (BaseListener) OnConnect(*ClientSharedObject)                {}
func (BaseListener) OnDisconnect(*ClientSharedObject)             {}
func (BaseListener) OnUpdate(*ClientSharedObject, string, any)    {}
func (BaseListener) OnDelete(*ClientSharedObject, string)         {}
func (BaseListener) OnClear(*ClientSharedObject)                  {}
func (BaseListener) OnSend(*ClientSharedObject, string, []any)    {}
func (BaseListener) OnStatus(*ClientSharedObject, string, string) {}
