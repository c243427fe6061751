package queue

import (
	ring "github.com/eapache/queue"
)

type overflowPolicy int

const (
	evictOldest overflowPolicy = iota
	rejectNew
)

// bounded wraps an eapache ring buffer with a fixed capacity and an
// overflow policy. Not safe for concurrent use; the Manager locks.
type bounded struct {
	name   string
	ring   *ring.Queue
	bound  int
	policy overflowPolicy
}

func newBounded(name string, bound int, policy overflowPolicy) *bounded {
	return &bounded{
		name:   name,
		ring:   ring.New(),
		bound:  bound,
		policy: policy,
	}
}

// push appends an item. Under evictOldest the displaced head is
// returned; under rejectNew a full queue yields a CapacityError.
func (b *bounded) push(it Item) (*Item, error) {
	if b.ring.Length() >= b.bound {
		if b.policy == rejectNew {
			return nil, &CapacityError{Queue: b.name, Bound: b.bound}
		}
		old := b.ring.Remove().(Item)
		b.ring.Add(it)
		return &old, nil
	}
	b.ring.Add(it)
	return nil, nil
}

func (b *bounded) peek() (Item, bool) {
	if b.ring.Length() == 0 {
		return Item{}, false
	}
	return b.ring.Peek().(Item), true
}

func (b *bounded) pop() (Item, bool) {
	if b.ring.Length() == 0 {
		return Item{}, false
	}
	return b.ring.Remove().(Item), true
}

func (b *bounded) len() int {
	return b.ring.Length()
}

func (b *bounded) clear() int {
	n := b.ring.Length()
	for b.ring.Length() > 0 {
		b.ring.Remove()
	}
	return n
}
