package workflow

import "context"

// Gate is a counting semaphore bounding how many tasks may run a class of
// work at once. Acquire blocks until a slot frees or the context ends.
type Gate struct {
	slots chan struct{}
}

// NewGate creates a gate with the given capacity. A capacity below one is
// treated as one.
func NewGate(capacity int) *Gate {
	if capacity < 1 {
		capacity = 1
	}
	return &Gate{slots: make(chan struct{}, capacity)}
}

// Acquire claims a slot, returning a release function. Exactly one call to
// release is expected; further calls are no-ops.
func (g *Gate) Acquire(ctx context.Context) (func(), error) {
	select {
	case g.slots <- struct{}{}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	released := false
	return func() {
		if released {
			return
		}
		released = true
		<-g.slots
	}, nil
}

// Capacity returns the maximum number of concurrent holders.
func (g *Gate) Capacity() int {
	return cap(g.slots)
}

// InUse returns the number of currently held slots.
func (g *Gate) InUse() int {
	return len(g.slots)
}
