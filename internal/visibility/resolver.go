// Package visibility computes the spaces a user can see: spaces they own
// plus spaces they hold a membership in. The two halves come from separate
// queries and are held open together; each half only replaces its own
// snapshot, and the published result is always the merge of both.
package visibility

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"

	"sharedlists/api/internal/realtime"
	"sharedlists/api/internal/store"
	"sharedlists/api/internal/subscription"

	"golang.org/x/sync/errgroup"
)

// SpaceReader is the slice of the directory store the resolver reads.
type SpaceReader interface {
	ListSpacesByOwner(ctx context.Context, ownerID string) ([]store.Space, error)
	ListMembershipsByUser(ctx context.Context, uid string) ([]store.Membership, error)
	GetSpace(ctx context.Context, spaceID string) (store.Space, error)
}

type Resolver struct {
	spaces SpaceReader
	broker realtime.Broker
}

func NewResolver(spaces SpaceReader, broker realtime.Broker) *Resolver {
	return &Resolver{spaces: spaces, broker: broker}
}

// Watch streams the visible spaces of uid, newest update first.
func (r *Resolver) Watch(uid string, onData func([]store.Space), onError func(error)) subscription.Subscription {
	owned := realtime.Source(r.broker, []string{realtime.OwnedSpacesTopic(uid)}, func(ctx context.Context) (map[string]store.Space, error) {
		return r.ownedSpaces(ctx, uid)
	})
	member := realtime.Source(r.broker, []string{realtime.MembershipsTopic(uid)}, func(ctx context.Context) (map[string]store.Space, error) {
		return r.memberSpaces(ctx, uid)
	})
	return subscription.Combine(owned, member, Merge, onData, onError)
}

// Visible is the one-shot form of Watch.
func (r *Resolver) Visible(ctx context.Context, uid string) ([]store.Space, error) {
	var (
		owned, member map[string]store.Space
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		owned, err = r.ownedSpaces(gctx, uid)
		return err
	})
	g.Go(func() error {
		var err error
		member, err = r.memberSpaces(gctx, uid)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return Merge(owned, member), nil
}

func (r *Resolver) ownedSpaces(ctx context.Context, uid string) (map[string]store.Space, error) {
	rows, err := r.spaces.ListSpacesByOwner(ctx, uid)
	if err != nil {
		return nil, fmt.Errorf("list owned spaces: %w", err)
	}
	out := make(map[string]store.Space, len(rows))
	for _, space := range rows {
		out[space.ID] = space
	}
	return out, nil
}

// memberSpaces resolves the user's memberships to spaces. Each distinct
// space is fetched once; spaces deleted since the membership was read are
// skipped.
func (r *Resolver) memberSpaces(ctx context.Context, uid string) (map[string]store.Space, error) {
	memberships, err := r.spaces.ListMembershipsByUser(ctx, uid)
	if err != nil {
		return nil, fmt.Errorf("list memberships: %w", err)
	}

	ids := make([]string, 0, len(memberships))
	seen := map[string]bool{}
	for _, membership := range memberships {
		if membership.SpaceID == "" || seen[membership.SpaceID] {
			continue
		}
		seen[membership.SpaceID] = true
		ids = append(ids, membership.SpaceID)
	}

	var mu sync.Mutex
	out := make(map[string]store.Space, len(ids))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(8)
	for _, id := range ids {
		id := id
		g.Go(func() error {
			space, err := r.spaces.GetSpace(gctx, id)
			if errors.Is(err, sql.ErrNoRows) {
				return nil
			}
			if err != nil {
				return fmt.Errorf("get space %s: %w", id, err)
			}
			mu.Lock()
			out[space.ID] = space
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// Merge unions both snapshots keyed by space id, preferring the owned entry
// when a space appears in both. The result is sorted by UpdatedAt
// descending; spaces without an UpdatedAt go last, ties break on id.
func Merge(owned, member map[string]store.Space) []store.Space {
	byID := make(map[string]store.Space, len(owned)+len(member))
	for id, space := range member {
		byID[id] = space
	}
	for id, space := range owned {
		byID[id] = space
	}

	out := make([]store.Space, 0, len(byID))
	for _, space := range byID {
		out = append(out, space)
	}
	slices.SortFunc(out, func(a, b store.Space) int {
		switch {
		case a.UpdatedAt.IsZero() && !b.UpdatedAt.IsZero():
			return 1
		case !a.UpdatedAt.IsZero() && b.UpdatedAt.IsZero():
			return -1
		}
		if c := b.UpdatedAt.Compare(a.UpdatedAt); c != 0 {
			return c
		}
		return strings.Compare(a.ID, b.ID)
	})
	return out
}
