// Package ordering keeps the manual order of items inside a list.
//
// Positions are integers assigned lazily: appends take max+1 and moves swap
// the positions of two neighbours. Nothing is ever renumbered wholesale, so a
// move costs one read of the siblings plus two writes. Concurrent moves on
// overlapping pairs can leave duplicate positions behind; Compare falls back
// to creation time and id, which keeps the rendered order deterministic even
// then.
package ordering

import (
	"math"
	"slices"
	"strings"

	"sharedlists/api/internal/store"
)

type Direction string

const (
	Up   Direction = "up"
	Down Direction = "down"
)

func ParseDirection(value string) (Direction, bool) {
	switch Direction(value) {
	case Up, Down:
		return Direction(value), true
	default:
		return "", false
	}
}

// Compare is the canonical item comparator: order ascending with missing
// orders last, then createdAt (seconds, then sub-second), then id.
func Compare(a, b store.Item) int {
	aOrder := a.OrderOr(math.MaxInt64)
	bOrder := b.OrderOr(math.MaxInt64)
	if aOrder != bOrder {
		if aOrder < bOrder {
			return -1
		}
		return 1
	}
	if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
		return c
	}
	return strings.Compare(a.ID, b.ID)
}

// Sort orders items in place with Compare.
func Sort(items []store.Item) {
	slices.SortStableFunc(items, Compare)
}

// Sorted returns a sorted copy and leaves the input untouched.
func Sorted(items []store.Item) []store.Item {
	out := slices.Clone(items)
	Sort(out)
	return out
}

// NextOrder returns max(assigned orders)+1, or 1 for a list with no ordered items.
func NextOrder(items []store.Item) int64 {
	var maxOrder int64
	found := false
	for _, item := range items {
		if !item.HasOrder() {
			continue
		}
		if !found || *item.Order > maxOrder {
			maxOrder = *item.Order
			found = true
		}
	}
	if !found || maxOrder < 0 {
		return 1
	}
	return maxOrder + 1
}

// Move computes the writes that move itemID one step in dir. The result is
// either empty (first item up, last item down, unknown id) or exactly two
// assignments that swap positions; callers must apply both atomically.
//
// An item without an assigned order takes its 1-based rank as the value to
// swap, so moving it also gives it a real position.
func Move(items []store.Item, itemID string, dir Direction) []store.OrderAssignment {
	rows := Sorted(items)
	current := slices.IndexFunc(rows, func(item store.Item) bool { return item.ID == itemID })
	if current < 0 {
		return nil
	}

	var target int
	switch dir {
	case Up:
		target = current - 1
	case Down:
		target = current + 1
	default:
		return nil
	}
	if target < 0 || target >= len(rows) {
		return nil
	}

	currentOrder := rows[current].OrderOr(int64(current + 1))
	targetOrder := rows[target].OrderOr(int64(target + 1))
	return []store.OrderAssignment{
		{ItemID: rows[current].ID, Order: targetOrder},
		{ItemID: rows[target].ID, Order: currentOrder},
	}
}

// Apply returns a copy of items with the assignments applied. It is used to
// preview a move without a round trip.
func Apply(items []store.Item, assignments []store.OrderAssignment) []store.Item {
	out := slices.Clone(items)
	for _, assignment := range assignments {
		for i := range out {
			if out[i].ID == assignment.ItemID {
				order := assignment.Order
				out[i].Order = &order
			}
		}
	}
	return out
}
