package keys

import (
	"errors"
	"sync"
)

// ErrEmptyPool is returned when no credentials are configured.
var ErrEmptyPool = errors.New("credential pool is empty")

// Rotator hands out API keys round-robin so load spreads evenly across
// accounts. A job takes one key up front and uses it for its whole
// lifetime; the rotator does no health tracking of individual keys.
type Rotator struct {
	mu   sync.Mutex
	keys []string
	next int
}

func NewRotator(keys []string) (*Rotator, error) {
	if len(keys) == 0 {
		return nil, ErrEmptyPool
	}
	return &Rotator{keys: keys}, nil
}

func (r *Rotator) Next() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	k := r.keys[r.next]
	r.next = (r.next + 1) % len(r.keys)
	return k
}

func (r *Rotator) Size() int {
	return len(r.keys)
}
