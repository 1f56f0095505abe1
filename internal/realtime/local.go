package realtime

import (
	"context"
	"sync"

	"sharedlists/api/internal/subscription"
)

// LocalBroker fans publishes out inside one process. It backs single-node
// runs without Redis and the service tests.
type LocalBroker struct {
	mu       sync.Mutex
	watchers map[string]map[*watcher]struct{}
}

func NewLocalBroker() *LocalBroker {
	return &LocalBroker{watchers: map[string]map[*watcher]struct{}{}}
}

func (b *LocalBroker) Publish(_ context.Context, topics ...string) error {
	b.mu.Lock()
	targets := map[*watcher]struct{}{}
	for _, topic := range topics {
		for w := range b.watchers[topic] {
			targets[w] = struct{}{}
		}
	}
	b.mu.Unlock()

	for w := range targets {
		w.poke()
	}
	return nil
}

func (b *LocalBroker) Notify(topics []string, onChange func(), _ func(error)) subscription.Subscription {
	w := newWatcher(onChange)

	b.mu.Lock()
	for _, topic := range topics {
		set := b.watchers[topic]
		if set == nil {
			set = map[*watcher]struct{}{}
			b.watchers[topic] = set
		}
		set[w] = struct{}{}
	}
	b.mu.Unlock()

	go w.run()
	w.poke()

	return subscription.Func(func() {
		b.mu.Lock()
		for _, topic := range topics {
			delete(b.watchers[topic], w)
			if len(b.watchers[topic]) == 0 {
				delete(b.watchers, topic)
			}
		}
		b.mu.Unlock()
		w.stop()
	})
}

// watcher runs onChange on its own goroutine. Pokes that arrive while a
// callback is running coalesce into one more run.
type watcher struct {
	onChange func()
	pending  chan struct{}
	done     chan struct{}
	once     sync.Once

	// mu is held while onChange runs so stop can wait it out.
	mu      sync.Mutex
	stopped bool
}

func newWatcher(onChange func()) *watcher {
	return &watcher{
		onChange: onChange,
		pending:  make(chan struct{}, 1),
		done:     make(chan struct{}),
	}
}

func (w *watcher) poke() {
	select {
	case w.pending <- struct{}{}:
	default:
	}
}

func (w *watcher) run() {
	for {
		select {
		case <-w.done:
			return
		case <-w.pending:
			w.mu.Lock()
			if !w.stopped {
				w.onChange()
			}
			w.mu.Unlock()
		}
	}
}

// stop ends the watcher. It must not be called from inside onChange.
func (w *watcher) stop() {
	w.once.Do(func() {
		close(w.done)
		w.mu.Lock()
		w.stopped = true
		w.mu.Unlock()
	})
}
