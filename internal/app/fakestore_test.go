package app

import (
	"context"
	"database/sql"
	"slices"
	"strings"
	"sync"
	"time"

	"sharedlists/api/internal/realtime"
	"sharedlists/api/internal/store"
)

// memStore is an in-memory directory store. It publishes the same topics as
// the Postgres store so live queries can be exercised end to end.
type memStore struct {
	mu        sync.Mutex
	publisher realtime.Publisher
	clock     time.Time

	profiles    map[string]store.UserProfile
	credentials map[string]store.Credential
	refresh     map[string]store.UserProfile
	revoked     map[string]time.Time

	spaces  map[string]store.Space
	members map[string]map[string]store.Membership
	lists   map[string]store.List
	items   map[string]map[string]store.Item

	writes   int
	touchErr error
	pingErr  error
}

func newMemStore(publisher realtime.Publisher) *memStore {
	return &memStore{
		publisher:   publisher,
		clock:       time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
		profiles:    map[string]store.UserProfile{},
		credentials: map[string]store.Credential{},
		refresh:     map[string]store.UserProfile{},
		revoked:     map[string]time.Time{},
		spaces:      map[string]store.Space{},
		members:     map[string]map[string]store.Membership{},
		lists:       map[string]store.List{},
		items:       map[string]map[string]store.Item{},
	}
}

// now hands out strictly increasing timestamps. Callers hold mu.
func (m *memStore) now() time.Time {
	m.clock = m.clock.Add(time.Millisecond)
	return m.clock
}

func (m *memStore) publish(topics ...string) {
	if m.publisher != nil {
		_ = m.publisher.Publish(context.Background(), topics...)
	}
}

func (m *memStore) writeCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.writes
}

// Profiles and credentials

func (m *memStore) addProfile(uid, email, name string) store.UserProfile {
	m.mu.Lock()
	defer m.mu.Unlock()
	at := m.now()
	p := store.UserProfile{UID: uid, Email: email, EmailLower: strings.ToLower(email), DisplayName: name, CreatedAt: at, LastSeenAt: at}
	m.profiles[uid] = p
	return p
}

func (m *memStore) UpsertUserProfile(_ context.Context, p store.UserProfile) (store.UserProfile, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.writes++
	existing, ok := m.profiles[p.UID]
	at := m.now()
	p.LastSeenAt = at
	p.CreatedAt = at
	if ok {
		p.CreatedAt = existing.CreatedAt
	}
	m.profiles[p.UID] = p
	return p, !ok, nil
}

func (m *memStore) GetUserProfile(_ context.Context, uid string) (store.UserProfile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.profiles[uid]
	if !ok {
		return store.UserProfile{}, sql.ErrNoRows
	}
	return p, nil
}

func (m *memStore) FindUserProfileByEmail(_ context.Context, emailLower string) (store.UserProfile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range m.profiles {
		if p.EmailLower == emailLower {
			return p, nil
		}
	}
	return store.UserProfile{}, sql.ErrNoRows
}

func (m *memStore) CreateCredential(_ context.Context, c store.Credential, p store.UserProfile) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := strings.ToLower(c.Email)
	if _, ok := m.credentials[key]; ok {
		return store.ErrEmailTaken
	}
	m.writes++
	at := m.now()
	p.CreatedAt, p.LastSeenAt = at, at
	m.credentials[key] = c
	m.profiles[p.UID] = p
	return nil
}

func (m *memStore) GetCredentialByEmail(_ context.Context, email string) (store.Credential, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.credentials[strings.ToLower(email)]
	if !ok {
		return store.Credential{}, sql.ErrNoRows
	}
	return c, nil
}

// Sessions

func (m *memStore) SaveRefreshSession(_ context.Context, hash string, p store.UserProfile, _ time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.refresh[hash] = p
	return nil
}

func (m *memStore) LookupRefreshSession(_ context.Context, hash string) (store.UserProfile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.refresh[hash]
	if !ok {
		return store.UserProfile{}, sql.ErrNoRows
	}
	return p, nil
}

func (m *memStore) RevokeRefreshSession(_ context.Context, hash string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.refresh, hash)
	return nil
}

func (m *memStore) RevokeAccessToken(_ context.Context, jti string, exp time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.revoked[jti] = exp
	return nil
}

func (m *memStore) IsAccessTokenRevoked(_ context.Context, jti string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.revoked[jti]
	return ok, nil
}

// Spaces

func (m *memStore) CreateSpaceWithOwner(_ context.Context, space store.Space, owner store.Membership) (store.Space, error) {
	m.mu.Lock()
	m.writes++
	at := m.now()
	space.CreatedAt, space.UpdatedAt = at, at
	owner.AddedAt = at
	m.spaces[space.ID] = space
	m.members[space.ID] = map[string]store.Membership{owner.UID: owner}
	m.mu.Unlock()
	m.publish(realtime.OwnedSpacesTopic(space.OwnerID), realtime.MembershipsTopic(owner.UID),
		realtime.SpaceTopic(space.ID), realtime.MembersTopic(space.ID))
	return space, nil
}

func (m *memStore) GetSpace(_ context.Context, id string) (store.Space, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	space, ok := m.spaces[id]
	if !ok {
		return store.Space{}, sql.ErrNoRows
	}
	return space, nil
}

func (m *memStore) ListSpacesByOwner(_ context.Context, ownerID string) ([]store.Space, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []store.Space
	for _, space := range m.spaces {
		if space.OwnerID == ownerID {
			out = append(out, space)
		}
	}
	return out, nil
}

func (m *memStore) audience(space store.Space) []string {
	topics := []string{realtime.OwnedSpacesTopic(space.OwnerID), realtime.SpaceTopic(space.ID)}
	for uid := range m.members[space.ID] {
		topics = append(topics, realtime.MembershipsTopic(uid))
	}
	return topics
}

func (m *memStore) RenameSpace(_ context.Context, id, name string) (store.Space, error) {
	m.mu.Lock()
	space, ok := m.spaces[id]
	if !ok {
		m.mu.Unlock()
		return store.Space{}, sql.ErrNoRows
	}
	m.writes++
	space.Name = name
	space.UpdatedAt = m.now()
	m.spaces[id] = space
	topics := m.audience(space)
	m.mu.Unlock()
	m.publish(topics...)
	return space, nil
}

func (m *memStore) DeleteSpaceCascade(_ context.Context, id string) ([]string, error) {
	m.mu.Lock()
	space, ok := m.spaces[id]
	if !ok {
		m.mu.Unlock()
		return nil, sql.ErrNoRows
	}
	m.writes++
	topics := append(m.audience(space), realtime.MembersTopic(id), realtime.ListsTopic(id))
	var listIDs []string
	for listID, list := range m.lists {
		if list.SpaceID == id {
			listIDs = append(listIDs, listID)
			delete(m.items, listID)
			delete(m.lists, listID)
			topics = append(topics, realtime.ItemsTopic(listID))
		}
	}
	delete(m.members, id)
	delete(m.spaces, id)
	m.mu.Unlock()
	slices.Sort(listIDs)
	m.publish(topics...)
	return listIDs, nil
}

// Memberships

func (m *memStore) GetMembership(_ context.Context, spaceID, uid string) (store.Membership, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	member, ok := m.members[spaceID][uid]
	if !ok {
		return store.Membership{}, sql.ErrNoRows
	}
	return member, nil
}

func (m *memStore) PutMembership(_ context.Context, member store.Membership) (store.Membership, error) {
	m.mu.Lock()
	m.writes++
	member.AddedAt = m.now()
	member.UpdatedAt = nil
	if m.members[member.SpaceID] == nil {
		m.members[member.SpaceID] = map[string]store.Membership{}
	}
	m.members[member.SpaceID][member.UID] = member
	m.mu.Unlock()
	m.publish(realtime.MembersTopic(member.SpaceID), realtime.MembershipsTopic(member.UID))
	return member, nil
}

func (m *memStore) UpdateMembershipRole(_ context.Context, spaceID, uid, role string) (store.Membership, error) {
	m.mu.Lock()
	member, ok := m.members[spaceID][uid]
	if !ok {
		m.mu.Unlock()
		return store.Membership{}, sql.ErrNoRows
	}
	m.writes++
	at := m.now()
	member.Role = role
	member.UpdatedAt = &at
	m.members[spaceID][uid] = member
	m.mu.Unlock()
	m.publish(realtime.MembersTopic(spaceID), realtime.MembershipsTopic(uid))
	return member, nil
}

func (m *memStore) DeleteMembership(_ context.Context, spaceID, uid string) error {
	m.mu.Lock()
	m.writes++
	delete(m.members[spaceID], uid)
	m.mu.Unlock()
	m.publish(realtime.MembersTopic(spaceID), realtime.MembershipsTopic(uid))
	return nil
}

func (m *memStore) ListMemberships(_ context.Context, spaceID string) ([]store.Membership, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]store.Membership, 0, len(m.members[spaceID]))
	for _, member := range m.members[spaceID] {
		out = append(out, member)
	}
	slices.SortFunc(out, func(a, b store.Membership) int { return a.AddedAt.Compare(b.AddedAt) })
	return out, nil
}

func (m *memStore) ListMembershipsByUser(_ context.Context, uid string) ([]store.Membership, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []store.Membership
	for _, members := range m.members {
		if member, ok := members[uid]; ok {
			out = append(out, member)
		}
	}
	slices.SortFunc(out, func(a, b store.Membership) int { return b.AddedAt.Compare(a.AddedAt) })
	return out, nil
}

// Lists

func (m *memStore) CreateList(_ context.Context, list store.List) (store.List, error) {
	m.mu.Lock()
	m.writes++
	at := m.now()
	list.CreatedAt, list.UpdatedAt = at, at
	m.lists[list.ID] = list
	m.mu.Unlock()
	m.publish(realtime.ListsTopic(list.SpaceID))
	return list, nil
}

func (m *memStore) GetList(_ context.Context, id string) (store.List, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	list, ok := m.lists[id]
	if !ok {
		return store.List{}, sql.ErrNoRows
	}
	return list, nil
}

func (m *memStore) RenameList(_ context.Context, id, name string) (store.List, error) {
	m.mu.Lock()
	list, ok := m.lists[id]
	if !ok {
		m.mu.Unlock()
		return store.List{}, sql.ErrNoRows
	}
	m.writes++
	list.Name = name
	list.UpdatedAt = m.now()
	m.lists[id] = list
	m.mu.Unlock()
	m.publish(realtime.ListsTopic(list.SpaceID))
	return list, nil
}

func (m *memStore) TouchList(_ context.Context, id string) error {
	m.mu.Lock()
	if m.touchErr != nil {
		err := m.touchErr
		m.mu.Unlock()
		return err
	}
	list, ok := m.lists[id]
	if !ok {
		m.mu.Unlock()
		return sql.ErrNoRows
	}
	m.writes++
	list.UpdatedAt = m.now()
	m.lists[id] = list
	m.mu.Unlock()
	m.publish(realtime.ListsTopic(list.SpaceID))
	return nil
}

func (m *memStore) ListListsBySpace(_ context.Context, spaceID string) ([]store.List, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []store.List{}
	for _, list := range m.lists {
		if list.SpaceID == spaceID {
			out = append(out, list)
		}
	}
	slices.SortFunc(out, func(a, b store.List) int { return b.UpdatedAt.Compare(a.UpdatedAt) })
	return out, nil
}

func (m *memStore) DeleteListCascade(_ context.Context, id string) error {
	m.mu.Lock()
	list, ok := m.lists[id]
	if !ok {
		m.mu.Unlock()
		return sql.ErrNoRows
	}
	m.writes++
	delete(m.items, id)
	delete(m.lists, id)
	m.mu.Unlock()
	m.publish(realtime.ListsTopic(list.SpaceID), realtime.ItemsTopic(id))
	return nil
}

// Items

func (m *memStore) ListItems(_ context.Context, listID string) ([]store.Item, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]store.Item, 0, len(m.items[listID]))
	for _, item := range m.items[listID] {
		out = append(out, item)
	}
	slices.SortFunc(out, func(a, b store.Item) int { return strings.Compare(a.ID, b.ID) })
	return out, nil
}

func (m *memStore) GetItem(_ context.Context, listID, itemID string) (store.Item, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	item, ok := m.items[listID][itemID]
	if !ok {
		return store.Item{}, sql.ErrNoRows
	}
	return item, nil
}

func (m *memStore) CreateItem(_ context.Context, item store.Item) (store.Item, error) {
	m.mu.Lock()
	m.writes++
	at := m.now()
	item.CreatedAt, item.UpdatedAt = at, at
	if m.items[item.ListID] == nil {
		m.items[item.ListID] = map[string]store.Item{}
	}
	m.items[item.ListID][item.ID] = item
	m.mu.Unlock()
	m.publish(realtime.ItemsTopic(item.ListID))
	return item, nil
}

func (m *memStore) updateItem(listID, itemID string, apply func(*store.Item, time.Time)) (store.Item, error) {
	m.mu.Lock()
	item, ok := m.items[listID][itemID]
	if !ok {
		m.mu.Unlock()
		return store.Item{}, sql.ErrNoRows
	}
	m.writes++
	at := m.now()
	apply(&item, at)
	item.UpdatedAt = at
	m.items[listID][itemID] = item
	m.mu.Unlock()
	m.publish(realtime.ItemsTopic(listID))
	return item, nil
}

func (m *memStore) RenameItem(_ context.Context, listID, itemID, text string) (store.Item, error) {
	return m.updateItem(listID, itemID, func(item *store.Item, _ time.Time) { item.Text = text })
}

func (m *memStore) SetItemCompleted(_ context.Context, listID, itemID string, completed bool) (store.Item, error) {
	return m.updateItem(listID, itemID, func(item *store.Item, at time.Time) {
		item.Completed = completed
		item.CompletedAt = nil
		if completed {
			item.CompletedAt = &at
		}
	})
}

func (m *memStore) ApplyItemOrders(_ context.Context, listID string, assignments []store.OrderAssignment) error {
	m.mu.Lock()
	for _, a := range assignments {
		if _, ok := m.items[listID][a.ItemID]; !ok {
			m.mu.Unlock()
			return sql.ErrNoRows
		}
	}
	m.writes++
	at := m.now()
	for _, a := range assignments {
		item := m.items[listID][a.ItemID]
		order := a.Order
		item.Order = &order
		item.UpdatedAt = at
		m.items[listID][a.ItemID] = item
	}
	m.mu.Unlock()
	m.publish(realtime.ItemsTopic(listID))
	return nil
}

func (m *memStore) DeleteItem(_ context.Context, listID, itemID string) error {
	m.mu.Lock()
	if _, ok := m.items[listID][itemID]; !ok {
		m.mu.Unlock()
		return sql.ErrNoRows
	}
	m.writes++
	delete(m.items[listID], itemID)
	m.mu.Unlock()
	m.publish(realtime.ItemsTopic(listID))
	return nil
}

func (m *memStore) Ping(context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.pingErr
}
