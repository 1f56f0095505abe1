// Package subscription models the lifetime of live queries and a fan-in
// combinator that merges two of them into one stream.
package subscription

import (
	"sync"
	"sync/atomic"
)

// Subscription is a handle on a live stream. Unsubscribe is idempotent and
// no callback of the stream fires after it returns.
type Subscription interface {
	Unsubscribe()
}

// Func adapts a teardown function. The function runs at most once.
type Func func()

func (f Func) Unsubscribe() {
	if f != nil {
		f()
	}
}

type group struct {
	once sync.Once
	subs []Subscription
}

// All groups several subscriptions so they are torn down together.
func All(subs ...Subscription) Subscription {
	return &group{subs: subs}
}

func (g *group) Unsubscribe() {
	g.once.Do(func() {
		for _, sub := range g.subs {
			if sub != nil {
				sub.Unsubscribe()
			}
		}
	})
}

// Source starts a stream that delivers values to onData until the returned
// subscription is cancelled. Errors go to onError and do not end the stream.
type Source[T any] func(onData func(T), onError func(error)) Subscription

// Combine holds a and b open together. Each side only ever replaces its own
// latest snapshot; on any update the merge of both latest snapshots is
// emitted, with the zero value for a side that has not delivered yet.
// Emissions are serialized, so interleaved callbacks from a and b are safe.
func Combine[A, B, R any](a Source[A], b Source[B], merge func(A, B) R, onData func(R), onError func(error)) Subscription {
	c := &combined[A, B, R]{merge: merge, onData: onData, onError: onError}
	subA := a(c.setA, c.fail)
	subB := b(c.setB, c.fail)
	c.sub = All(subA, subB)
	return c
}

type combined[A, B, R any] struct {
	mu      sync.Mutex
	latestA A
	latestB B
	merge   func(A, B) R
	onData  func(R)
	onError func(error)
	closed  atomic.Bool
	sub     Subscription
}

func (c *combined[A, B, R]) setA(value A) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed.Load() {
		return
	}
	c.latestA = value
	c.onData(c.merge(c.latestA, c.latestB))
}

func (c *combined[A, B, R]) setB(value B) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed.Load() {
		return
	}
	c.latestB = value
	c.onData(c.merge(c.latestA, c.latestB))
}

func (c *combined[A, B, R]) fail(err error) {
	if c.closed.Load() || c.onError == nil {
		return
	}
	c.onError(err)
}

func (c *combined[A, B, R]) Unsubscribe() {
	c.closed.Store(true)
	c.sub.Unsubscribe()
}
