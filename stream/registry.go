package stream

import (
	"errors"
	"sync"

	"github.com/arkeyez/arkdoc/observability"
)

// ErrNotRegistered is returned by SendTo when the target connection has been
// removed, typically because the client disconnected mid-session.
var ErrNotRegistered = errors.New("connection not registered")

// Conn is the transport handle the registry delivers frames to. The
// websocket layer adapts its connections to this; tests substitute fakes.
// WriteJSON must be safe for use from the connection's session goroutine.
type Conn interface {
	WriteJSON(v interface{}) error
}

// Registry tracks live streaming connections. All methods are safe for
// concurrent use.
type Registry struct {
	mu    sync.RWMutex
	conns map[Conn]struct{}
	log   observability.Logger
}

// NewRegistry creates an empty registry. A nil logger defaults to NopLogger.
func NewRegistry(log observability.Logger) *Registry {
	if log == nil {
		log = observability.NopLogger{}
	}
	return &Registry{conns: make(map[Conn]struct{}), log: log}
}

// Register adds a connection to the live set.
func (r *Registry) Register(conn Conn) {
	r.mu.Lock()
	r.conns[conn] = struct{}{}
	total := len(r.conns)
	r.mu.Unlock()
	r.log.Info("connection registered", observability.Int("total", total))
}

// Unregister removes a connection. Removing an unknown connection is a no-op.
func (r *Registry) Unregister(conn Conn) {
	r.mu.Lock()
	_, present := r.conns[conn]
	delete(r.conns, conn)
	total := len(r.conns)
	r.mu.Unlock()
	if present {
		r.log.Info("connection unregistered", observability.Int("total", total))
	}
}

// Count returns the number of live connections.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conns)
}

// SendTo delivers a frame to one connection. Delivery failure is reported to
// the caller and does not unregister the connection; the caller decides
// whether the failure means connection loss. Sending to an unregistered
// connection returns ErrNotRegistered.
func (r *Registry) SendTo(conn Conn, v interface{}) error {
	r.mu.RLock()
	_, ok := r.conns[conn]
	r.mu.RUnlock()
	if !ok {
		return ErrNotRegistered
	}
	return conn.WriteJSON(v)
}

// Broadcast delivers a frame to a snapshot of the live set. Each delivery is
// attempted independently: a failing connection is unregistered and the
// remaining deliveries proceed.
func (r *Registry) Broadcast(v interface{}) {
	r.mu.RLock()
	snapshot := make([]Conn, 0, len(r.conns))
	for conn := range r.conns {
		snapshot = append(snapshot, conn)
	}
	r.mu.RUnlock()

	for _, conn := range snapshot {
		if err := conn.WriteJSON(v); err != nil {
			r.log.Warn("broadcast delivery failed, dropping connection",
				observability.Error("err", err))
			r.Unregister(conn)
		}
	}
}
