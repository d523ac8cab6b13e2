package stream

import (
	"errors"
	"sync"
	"testing"

	"github.com/arkeyez/arkdoc/observability"
)

type fakeConn struct {
	mu     sync.Mutex
	frames []interface{}
	err    error
}

func (c *fakeConn) WriteJSON(v interface{}) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return c.err
	}
	c.frames = append(c.frames, v)
	return nil
}

func (c *fakeConn) sent() []interface{} {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]interface{}, len(c.frames))
	copy(out, c.frames)
	return out
}

func TestRegisterUnregisterCount(t *testing.T) {
	r := NewRegistry(nil)
	a, b := &fakeConn{}, &fakeConn{}

	r.Register(a)
	r.Register(b)
	if r.Count() != 2 {
		t.Fatalf("count = %d, want 2", r.Count())
	}
	r.Unregister(a)
	r.Unregister(a) // repeated removal is a no-op
	if r.Count() != 1 {
		t.Fatalf("count = %d, want 1", r.Count())
	}
}

func TestBroadcastPrunesFailingConnection(t *testing.T) {
	r := NewRegistry(observability.NopLogger{})
	conns := []*fakeConn{{}, {err: errors.New("broken pipe")}, {}, {}}
	for _, c := range conns {
		r.Register(c)
	}

	r.Broadcast(ProgressMessage{Type: TypeProgress, Step: "start"})

	if r.Count() != 3 {
		t.Fatalf("count after broadcast = %d, want 3", r.Count())
	}
	for i, c := range conns {
		if i == 1 {
			if len(c.sent()) != 0 {
				t.Fatalf("failing conn received frames")
			}
			continue
		}
		if len(c.sent()) != 1 {
			t.Fatalf("conn %d received %d frames, want 1", i, len(c.sent()))
		}
	}
}

func TestSendToFailureDoesNotUnregister(t *testing.T) {
	r := NewRegistry(nil)
	c := &fakeConn{err: errors.New("broken pipe")}
	r.Register(c)

	if err := r.SendTo(c, "x"); err == nil {
		t.Fatalf("expected delivery error")
	}
	if r.Count() != 1 {
		t.Fatalf("SendTo failure must not unregister; count = %d", r.Count())
	}
}

func TestSendToUnregisteredConn(t *testing.T) {
	r := NewRegistry(nil)
	c := &fakeConn{}
	if err := r.SendTo(c, "x"); !errors.Is(err, ErrNotRegistered) {
		t.Fatalf("err = %v, want ErrNotRegistered", err)
	}
}

func TestRegistryConcurrentUse(t *testing.T) {
	r := NewRegistry(nil)
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c := &fakeConn{}
			for j := 0; j < 50; j++ {
				r.Register(c)
				r.Broadcast(ProgressMessage{Type: TypeProgress})
				r.Unregister(c)
			}
		}()
	}
	wg.Wait()
	if r.Count() != 0 {
		t.Fatalf("count = %d, want 0", r.Count())
	}
}
