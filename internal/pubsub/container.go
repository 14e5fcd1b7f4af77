// Package pubsub provides last-value broadcast containers. A Container holds
// one current value; replacing it synchronously notifies every subscriber in
// subscription order, and a new subscriber is handed the current value
// immediately. This is how session, chat list, active-chat-id and theme
// changes reach their consumers.
package pubsub

import "sync"

type subscriber[T any] struct {
	id uint64
	fn func(T)
}

// Container holds a current value plus an ordered subscriber list.
type Container[T any] struct {
	mu    sync.Mutex
	value T
	subs  []subscriber[T]
	next  uint64
}

func NewContainer[T any](initial T) *Container[T] {
	return &Container[T]{value: initial}
}

// Value returns the current value.
func (c *Container[T]) Value() T {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.value
}

// Next replaces the current value and notifies all current subscribers.
// Notification is synchronous: Next does not return until every subscriber
// callback has run.
func (c *Container[T]) Next(v T) {
	c.mu.Lock()
	c.value = v
	subs := make([]subscriber[T], len(c.subs))
	copy(subs, c.subs)
	c.mu.Unlock()

	for _, s := range subs {
		s.fn(v)
	}
}

// Subscribe registers fn and immediately invokes it with the current value.
// The returned function removes the subscription; calling it more than once
// is harmless.
func (c *Container[T]) Subscribe(fn func(T)) (unsubscribe func()) {
	c.mu.Lock()
	id := c.next
	c.next++
	c.subs = append(c.subs, subscriber[T]{id: id, fn: fn})
	current := c.value
	c.mu.Unlock()

	fn(current)

	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		for i, s := range c.subs {
			if s.id == id {
				c.subs = append(c.subs[:i], c.subs[i+1:]...)
				break
			}
		}
	}
}
