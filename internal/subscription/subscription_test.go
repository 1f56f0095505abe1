package subscription

import (
	"errors"
	"fmt"
	"sync"
	"testing"
)

// manual is a Source driven by the test.
type manual[T any] struct {
	mu           sync.Mutex
	onData       func(T)
	onError      func(error)
	unsubscribed int
}

func (m *manual[T]) source() Source[T] {
	return func(onData func(T), onError func(error)) Subscription {
		m.mu.Lock()
		m.onData = onData
		m.onError = onError
		m.mu.Unlock()
		return Func(func() {
			m.mu.Lock()
			m.unsubscribed++
			m.mu.Unlock()
		})
	}
}

func (m *manual[T]) emit(value T) {
	m.onData(value)
}

func (m *manual[T]) fail(err error) {
	m.onError(err)
}

func TestCombineEmitsMergeOfLatestSnapshots(t *testing.T) {
	var a manual[[]string]
	var b manual[[]string]
	var got []string

	sub := Combine(a.source(), b.source(),
		func(x, y []string) string { return fmt.Sprint(x, y) },
		func(merged string) { got = append(got, merged) },
		nil,
	)
	defer sub.Unsubscribe()

	a.emit([]string{"A", "B"})
	b.emit([]string{"B", "C"})
	b.emit([]string{"C"})
	a.emit(nil)

	want := []string{"[A B] []", "[A B] [B C]", "[A B] [C]", "[] [C]"}
	if fmt.Sprint(got) != fmt.Sprint(want) {
		t.Fatalf("emissions = %q, want %q", got, want)
	}
}

func TestCombineStopsAfterUnsubscribe(t *testing.T) {
	var a manual[int]
	var b manual[int]
	calls := 0
	errs := 0

	sub := Combine(a.source(), b.source(),
		func(x, y int) int { return x + y },
		func(int) { calls++ },
		func(error) { errs++ },
	)
	a.emit(1)
	sub.Unsubscribe()
	sub.Unsubscribe()
	a.emit(2)
	b.emit(3)
	b.fail(errors.New("late"))

	if calls != 1 {
		t.Fatalf("calls = %d, want 1", calls)
	}
	if errs != 0 {
		t.Fatalf("errors after unsubscribe = %d", errs)
	}
	if a.unsubscribed != 1 || b.unsubscribed != 1 {
		t.Fatalf("inner unsubscribes = %d/%d, want 1/1", a.unsubscribed, b.unsubscribed)
	}
}

func TestCombineForwardsErrorsWithoutClosing(t *testing.T) {
	var a manual[int]
	var b manual[int]
	var last int
	var gotErr error

	sub := Combine(a.source(), b.source(),
		func(x, y int) int { return x*10 + y },
		func(v int) { last = v },
		func(err error) { gotErr = err },
	)
	defer sub.Unsubscribe()

	b.fail(errors.New("member query failed"))
	a.emit(4)
	if gotErr == nil || gotErr.Error() != "member query failed" {
		t.Fatalf("error = %v", gotErr)
	}
	if last != 40 {
		t.Fatalf("last = %d, want 40", last)
	}
}

func TestCombineSerializesConcurrentUpdates(t *testing.T) {
	var a manual[int]
	var b manual[int]
	var mu sync.Mutex
	inFlight := 0
	overlap := false

	sub := Combine(a.source(), b.source(),
		func(x, y int) int { return x + y },
		func(int) {
			mu.Lock()
			inFlight++
			if inFlight > 1 {
				overlap = true
			}
			mu.Unlock()
			mu.Lock()
			inFlight--
			mu.Unlock()
		},
		nil,
	)
	defer sub.Unsubscribe()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(2)
		go func(v int) { defer wg.Done(); a.emit(v) }(i)
		go func(v int) { defer wg.Done(); b.emit(v) }(i)
	}
	wg.Wait()
	if overlap {
		t.Fatal("merge callbacks overlapped")
	}
}

func TestAllUnsubscribesOnce(t *testing.T) {
	count := 0
	sub := All(Func(func() { count++ }), nil, Func(func() { count++ }))
	sub.Unsubscribe()
	sub.Unsubscribe()
	if count != 2 {
		t.Fatalf("count = %d, want 2", count)
	}
}
