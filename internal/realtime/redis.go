package realtime

import (
	"context"
	"fmt"
	"time"

	"sharedlists/api/internal/subscription"

	"github.com/redis/go-redis/v9"
)

const channelPrefix = "lists:"

// RedisBroker carries change notifications over Redis Pub/Sub so every API
// node sees writes made on any other node.
type RedisBroker struct {
	client *redis.Client
}

// NewRedisBroker connects to redisURL and checks the connection.
func NewRedisBroker(redisURL string) (*RedisBroker, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("connect to redis: %w", err)
	}
	return &RedisBroker{client: client}, nil
}

// NewRedisBrokerWithClient shares an existing client, e.g. with the session store.
func NewRedisBrokerWithClient(client *redis.Client) *RedisBroker {
	return &RedisBroker{client: client}
}

func channelName(topic string) string {
	return channelPrefix + topic
}

func (b *RedisBroker) Publish(ctx context.Context, topics ...string) error {
	if len(topics) == 0 {
		return nil
	}
	pipe := b.client.Pipeline()
	for _, topic := range topics {
		pipe.Publish(ctx, channelName(topic), "changed")
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("publish %v: %w", topics, err)
	}
	return nil
}

func (b *RedisBroker) Notify(topics []string, onChange func(), onError func(error)) subscription.Subscription {
	ctx, cancel := context.WithCancel(context.Background())
	channels := make([]string, len(topics))
	for i, topic := range topics {
		channels[i] = channelName(topic)
	}

	w := newWatcher(onChange)
	go w.run()

	pubsub := b.client.Subscribe(ctx, channels...)
	go func() {
		// Receive returns once the server has confirmed the subscription, so
		// the initial load cannot miss a publish that lands after it.
		if _, err := pubsub.Receive(ctx); err != nil {
			if ctx.Err() == nil && onError != nil {
				onError(fmt.Errorf("subscribe %v: %w", topics, err))
			}
			return
		}
		w.poke()
		messages := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case _, ok := <-messages:
				if !ok {
					return
				}
				w.poke()
			}
		}
	}()

	return subscription.Func(func() {
		cancel()
		w.stop()
		_ = pubsub.Close()
	})
}

func (b *RedisBroker) Ping(ctx context.Context) error {
	return b.client.Ping(ctx).Err()
}

func (b *RedisBroker) Close() error {
	return b.client.Close()
}
