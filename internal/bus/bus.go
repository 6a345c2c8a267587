// Package bus provides ordered, synchronous, in-process notifications.
package bus

import "sync"

// Subscription is a handle returned by Subscribe
type Subscription interface {
	Unsubscribe()
}

// Topic delivers values of type T to its subscribers in subscription order.
// The zero value is ready to use.
type Topic[T any] struct {
	mu     sync.Mutex
	nextID uint64
	subs   []*subscriber[T]
}

type subscriber[T any] struct {
	id    uint64
	fn    func(T)
	topic *Topic[T]
}

// Subscribe registers fn and returns a handle that removes it again
func (t *Topic[T]) Subscribe(fn func(T)) Subscription {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.nextID++
	s := &subscriber[T]{id: t.nextID, fn: fn, topic: t}
	t.subs = append(t.subs, s)

	return s
}

// Publish calls every current subscriber with v before returning.
// Subscribers added or removed during delivery take effect on the next Publish.
func (t *Topic[T]) Publish(v T) {
	t.mu.Lock()
	subs := make([]*subscriber[T], len(t.subs))
	copy(subs, t.subs)
	t.mu.Unlock()

	for _, s := range subs {
		s.fn(v)
	}
}

// Len returns the number of active subscribers
func (t *Topic[T]) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.subs)
}

func (s *subscriber[T]) Unsubscribe() {
	t := s.topic
	t.mu.Lock()
	defer t.mu.Unlock()

	for i, other := range t.subs {
		if other.id == s.id {
			t.subs = append(t.subs[:i], t.subs[i+1:]...)
			return
		}
	}
}

// Group collects subscriptions so they can be released together
type Group struct {
	subs []Subscription
}

// Add appends subscriptions to the group
func (g *Group) Add(subs ...Subscription) {
	g.subs = append(g.subs, subs...)
}

// Unsubscribe releases every subscription in the group
func (g *Group) Unsubscribe() {
	for _, s := range g.subs {
		s.Unsubscribe()
	}
	g.subs = nil
}
