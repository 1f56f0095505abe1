package store

import "time"

// UserProfile is created on first sign-in and refreshed on every later one.
// EmailLower is the invite lookup key.
type UserProfile struct {
	UID         string
	Email       string
	EmailLower  string
	DisplayName string
	PhotoURL    string
	LastSeenAt  time.Time
	CreatedAt   time.Time
}

type Credential struct {
	UID          string
	Email        string
	PasswordHash string
	CreatedAt    time.Time
}

// Space is the sharing boundary. UpdatedAt moves only on the space's own
// renames; a zero UpdatedAt means the timestamp has not been assigned yet.
type Space struct {
	ID        string
	Name      string
	OwnerID   string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Membership lives under a space and is keyed by the member's uid.
type Membership struct {
	SpaceID     string
	UID         string
	Role        string
	Email       string
	EmailLower  string
	DisplayName string
	AddedAt     time.Time
	UpdatedAt   *time.Time
}

// List.UpdatedAt is bumped by renames and by any change to the list's items.
type List struct {
	ID        string
	Name      string
	SpaceID   string
	CreatedBy string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Item belongs to exactly one list. Order is nil for rows that never had a
// position assigned; those sort after every ordered item.
type Item struct {
	ID          string
	ListID      string
	Text        string
	Completed   bool
	CompletedAt *time.Time
	CreatedBy   string
	CreatedAt   time.Time
	UpdatedAt   time.Time
	Order       *int64
}

// HasOrder reports whether the item carries an assigned position.
func (i Item) HasOrder() bool {
	return i.Order != nil
}

// OrderOr returns the item's order, or fallback when none is assigned.
func (i Item) OrderOr(fallback int64) int64 {
	if i.Order == nil {
		return fallback
	}
	return *i.Order
}

// OrderAssignment sets one item's position as part of an atomic reorder.
type OrderAssignment struct {
	ItemID string
	Order  int64
}
