// Package realtime turns committed writes into live query updates.
//
// Writers publish topic names after each commit. Subscribers ask to be
// notified about a set of topics and re-run their query on every
// notification, so a subscriber always sees a full fresh snapshot rather
// than a diff.
package realtime

import (
	"context"
	"fmt"

	"sharedlists/api/internal/subscription"
)

// Publisher announces that the data behind some topics changed.
type Publisher interface {
	Publish(ctx context.Context, topics ...string) error
}

// Broker is a Publisher that can also be watched.
//
// Notify calls onChange once the subscription is established and again
// after every publish on any of the topics. Callbacks of one subscription
// never run concurrently, and none run after Unsubscribe returns.
type Broker interface {
	Publisher
	Notify(topics []string, onChange func(), onError func(error)) subscription.Subscription
}

func OwnedSpacesTopic(uid string) string { return "spaces:owner:" + uid }

func MembershipsTopic(uid string) string { return "memberships:" + uid }

func SpaceTopic(spaceID string) string { return "space:" + spaceID }

func MembersTopic(spaceID string) string { return "space:" + spaceID + ":members" }

func ListsTopic(spaceID string) string { return "space:" + spaceID + ":lists" }

func ItemsTopic(listID string) string { return "list:" + listID + ":items" }

// Query keeps the result of load fresh. The load runs once up front and
// after every change on topics; each result goes to onData and each load
// failure to onError.
func Query[T any](broker Broker, topics []string, load func(context.Context) (T, error), onData func(T), onError func(error)) subscription.Subscription {
	ctx, cancel := context.WithCancel(context.Background())
	sub := broker.Notify(topics, func() {
		value, err := load(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			if onError != nil {
				onError(fmt.Errorf("reload %v: %w", topics, err))
			}
			return
		}
		if ctx.Err() == nil {
			onData(value)
		}
	}, onError)
	return subscription.Func(func() {
		cancel()
		sub.Unsubscribe()
	})
}

// Source adapts Query to a subscription.Source so it can be combined.
func Source[T any](broker Broker, topics []string, load func(context.Context) (T, error)) subscription.Source[T] {
	return func(onData func(T), onError func(error)) subscription.Subscription {
		return Query(broker, topics, load, onData, onError)
	}
}
