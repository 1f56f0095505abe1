package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"sharedlists/api/internal/realtime"

	"github.com/jackc/pgx/v5/pgconn"
)

// ErrEmailTaken is returned when a credential already exists for an email.
var ErrEmailTaken = errors.New("email already registered")

// PostgresStore is the directory store. Every committed write announces
// the affected topics to the publisher so live queries reload.
type PostgresStore struct {
	db        *sql.DB
	publisher realtime.Publisher
}

func NewPostgresStore(db *sql.DB, publisher realtime.Publisher) *PostgresStore {
	return &PostgresStore{db: db, publisher: publisher}
}

func (s *PostgresStore) DB() *sql.DB {
	return s.db
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// publish runs after commit. A failed publish leaves live queries stale
// until their next change; it never fails the write.
func (s *PostgresStore) publish(ctx context.Context, topics ...string) {
	if s.publisher == nil || len(topics) == 0 {
		return
	}
	if err := s.publisher.Publish(context.WithoutCancel(ctx), topics...); err != nil {
		log.Printf("store: publish %v: %v", topics, err)
	}
}

func requireAffected(result sql.Result, op string) error {
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s rows: %w", op, err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

// --- profiles and credentials ---

const profileColumns = `uid, email, email_lower, display_name, photo_url, last_seen_at, created_at`

func scanProfile(row interface{ Scan(...any) error }) (UserProfile, error) {
	var p UserProfile
	err := row.Scan(&p.UID, &p.Email, &p.EmailLower, &p.DisplayName, &p.PhotoURL, &p.LastSeenAt, &p.CreatedAt)
	return p, err
}

// UpsertUserProfile creates the profile on first sign-in. Later calls
// refresh the identity fields and lastSeenAt and keep createdAt.
func (s *PostgresStore) UpsertUserProfile(ctx context.Context, profile UserProfile) (UserProfile, bool, error) {
	var created bool
	var out UserProfile
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO user_profiles (uid, email, email_lower, display_name, photo_url)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (uid) DO UPDATE
		SET email=EXCLUDED.email,
			email_lower=EXCLUDED.email_lower,
			display_name=EXCLUDED.display_name,
			photo_url=EXCLUDED.photo_url,
			last_seen_at=NOW()
		RETURNING `+profileColumns+`, (xmax = 0)
	`, profile.UID, profile.Email, profile.EmailLower, profile.DisplayName, profile.PhotoURL).Scan(
		&out.UID, &out.Email, &out.EmailLower, &out.DisplayName, &out.PhotoURL, &out.LastSeenAt, &out.CreatedAt, &created,
	)
	if err != nil {
		return UserProfile{}, false, fmt.Errorf("upsert user profile: %w", err)
	}
	return out, created, nil
}

func (s *PostgresStore) GetUserProfile(ctx context.Context, uid string) (UserProfile, error) {
	return scanProfile(s.db.QueryRowContext(ctx, `SELECT `+profileColumns+` FROM user_profiles WHERE uid=$1`, uid))
}

// FindUserProfileByEmail matches on the lowercased email. When several
// profiles share it, the oldest wins.
func (s *PostgresStore) FindUserProfileByEmail(ctx context.Context, emailLower string) (UserProfile, error) {
	return scanProfile(s.db.QueryRowContext(ctx, `
		SELECT `+profileColumns+`
		FROM user_profiles
		WHERE email_lower=$1
		ORDER BY created_at ASC, uid ASC
		LIMIT 1
	`, emailLower))
}

// CreateCredential stores a password login together with its profile.
func (s *PostgresStore) CreateCredential(ctx context.Context, credential Credential, profile UserProfile) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin create credential: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO user_profiles (uid, email, email_lower, display_name, photo_url)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (uid) DO NOTHING
	`, profile.UID, profile.Email, profile.EmailLower, profile.DisplayName, profile.PhotoURL); err != nil {
		return fmt.Errorf("insert profile: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO user_credentials (uid, email, password_hash)
		VALUES ($1, $2, $3)
	`, credential.UID, strings.ToLower(credential.Email), credential.PasswordHash); err != nil {
		if isUniqueViolation(err) {
			return ErrEmailTaken
		}
		return fmt.Errorf("insert credential: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit create credential: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetCredentialByEmail(ctx context.Context, email string) (Credential, error) {
	var c Credential
	err := s.db.QueryRowContext(ctx, `
		SELECT uid, email, password_hash, created_at
		FROM user_credentials
		WHERE email=$1
	`, strings.ToLower(email)).Scan(&c.UID, &c.Email, &c.PasswordHash, &c.CreatedAt)
	return c, err
}

// --- refresh sessions and access-token revocation ---

func (s *PostgresStore) SaveRefreshSession(ctx context.Context, tokenHash string, profile UserProfile, expiresAt time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO refresh_sessions (token_hash, uid, expires_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (token_hash) DO UPDATE SET uid=EXCLUDED.uid, expires_at=EXCLUDED.expires_at, revoked_at=NULL
	`, tokenHash, profile.UID, expiresAt)
	if err != nil {
		return fmt.Errorf("save refresh session: %w", err)
	}
	return nil
}

func (s *PostgresStore) LookupRefreshSession(ctx context.Context, tokenHash string) (UserProfile, error) {
	return scanProfile(s.db.QueryRowContext(ctx, `
		SELECT p.uid, p.email, p.email_lower, p.display_name, p.photo_url, p.last_seen_at, p.created_at
		FROM refresh_sessions rs
		JOIN user_profiles p ON p.uid = rs.uid
		WHERE rs.token_hash = $1
			AND rs.revoked_at IS NULL
			AND rs.expires_at > NOW()
	`, tokenHash))
}

func (s *PostgresStore) RevokeRefreshSession(ctx context.Context, tokenHash string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE refresh_sessions SET revoked_at=NOW() WHERE token_hash=$1`, tokenHash)
	if err != nil {
		return fmt.Errorf("revoke refresh session: %w", err)
	}
	return nil
}

func (s *PostgresStore) RevokeAccessToken(ctx context.Context, jti string, exp time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO revoked_access_tokens (jti, expires_at)
		VALUES ($1, $2)
		ON CONFLICT (jti) DO NOTHING
	`, jti, exp)
	if err != nil {
		return fmt.Errorf("revoke access token: %w", err)
	}
	return nil
}

func (s *PostgresStore) IsAccessTokenRevoked(ctx context.Context, jti string) (bool, error) {
	var revoked bool
	err := s.db.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM revoked_access_tokens WHERE jti=$1)`, jti).Scan(&revoked)
	if err != nil {
		return false, fmt.Errorf("check revoked token: %w", err)
	}
	return revoked, nil
}

// --- spaces ---

const spaceColumns = `id, name, owner_id, created_at, updated_at`

func scanSpace(row interface{ Scan(...any) error }) (Space, error) {
	var sp Space
	err := row.Scan(&sp.ID, &sp.Name, &sp.OwnerID, &sp.CreatedAt, &sp.UpdatedAt)
	return sp, err
}

// CreateSpaceWithOwner writes the space and its owner membership in one
// transaction, so a space is never visible without its owner row.
func (s *PostgresStore) CreateSpaceWithOwner(ctx context.Context, space Space, owner Membership) (Space, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return Space{}, fmt.Errorf("begin create space: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	created, err := scanSpace(tx.QueryRowContext(ctx, `
		INSERT INTO spaces (id, name, owner_id)
		VALUES ($1, $2, $3)
		RETURNING `+spaceColumns, space.ID, space.Name, space.OwnerID))
	if err != nil {
		return Space{}, fmt.Errorf("insert space: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO space_members (space_id, uid, role, email, email_lower, display_name)
		VALUES ($1, $2, 'owner', $3, $4, $5)
	`, created.ID, owner.UID, owner.Email, owner.EmailLower, owner.DisplayName); err != nil {
		return Space{}, fmt.Errorf("insert owner membership: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return Space{}, fmt.Errorf("commit create space: %w", err)
	}

	s.publish(ctx,
		realtime.OwnedSpacesTopic(created.OwnerID),
		realtime.MembershipsTopic(owner.UID),
		realtime.SpaceTopic(created.ID),
		realtime.MembersTopic(created.ID),
	)
	return created, nil
}

func (s *PostgresStore) GetSpace(ctx context.Context, spaceID string) (Space, error) {
	return scanSpace(s.db.QueryRowContext(ctx, `SELECT `+spaceColumns+` FROM spaces WHERE id=$1`, spaceID))
}

func (s *PostgresStore) ListSpacesByOwner(ctx context.Context, ownerID string) ([]Space, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+spaceColumns+`
		FROM spaces
		WHERE owner_id=$1
		ORDER BY updated_at DESC, id ASC
	`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("list owned spaces: %w", err)
	}
	defer rows.Close()

	items := make([]Space, 0)
	for rows.Next() {
		item, err := scanSpace(rows)
		if err != nil {
			return nil, fmt.Errorf("scan space: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate spaces: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) RenameSpace(ctx context.Context, spaceID, name string) (Space, error) {
	space, err := scanSpace(s.db.QueryRowContext(ctx, `
		UPDATE spaces SET name=$2, updated_at=NOW()
		WHERE id=$1
		RETURNING `+spaceColumns, spaceID, name))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Space{}, err
		}
		return Space{}, fmt.Errorf("rename space: %w", err)
	}
	s.publish(ctx, s.spaceAudienceTopics(ctx, space)...)
	return space, nil
}

// spaceAudienceTopics lists every topic through which a space header is
// visible: the owner's feed, the space itself and each member's feed.
func (s *PostgresStore) spaceAudienceTopics(ctx context.Context, space Space) []string {
	topics := []string{realtime.OwnedSpacesTopic(space.OwnerID), realtime.SpaceTopic(space.ID)}
	uids, err := s.memberUIDs(ctx, s.db, space.ID)
	if err != nil {
		log.Printf("store: member topics for %s: %v", space.ID, err)
		return topics
	}
	for _, uid := range uids {
		topics = append(topics, realtime.MembershipsTopic(uid))
	}
	return topics
}

type queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

func (s *PostgresStore) memberUIDs(ctx context.Context, q queryer, spaceID string) ([]string, error) {
	rows, err := q.QueryContext(ctx, `SELECT uid FROM space_members WHERE space_id=$1`, spaceID)
	if err != nil {
		return nil, fmt.Errorf("list member uids: %w", err)
	}
	defer rows.Close()
	var uids []string
	for rows.Next() {
		var uid string
		if err := rows.Scan(&uid); err != nil {
			return nil, fmt.Errorf("scan member uid: %w", err)
		}
		uids = append(uids, uid)
	}
	return uids, rows.Err()
}

func listIDs(ctx context.Context, q queryer, spaceID string) ([]string, error) {
	rows, err := q.QueryContext(ctx, `SELECT id FROM lists WHERE space_id=$1`, spaceID)
	if err != nil {
		return nil, fmt.Errorf("list list ids: %w", err)
	}
	defer rows.Close()
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan list id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// DeleteSpaceCascade removes the space, its memberships, its lists and
// their items in one transaction. It returns the ids of the deleted lists.
func (s *PostgresStore) DeleteSpaceCascade(ctx context.Context, spaceID string) ([]string, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin delete space: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var ownerID string
	if err := tx.QueryRowContext(ctx, `SELECT owner_id FROM spaces WHERE id=$1 FOR UPDATE`, spaceID).Scan(&ownerID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("lock space: %w", err)
	}
	lists, err := listIDs(ctx, tx, spaceID)
	if err != nil {
		return nil, err
	}
	uids, err := s.memberUIDs(ctx, tx, spaceID)
	if err != nil {
		return nil, err
	}

	statements := []struct {
		op    string
		query string
	}{
		{"delete items", `DELETE FROM list_items WHERE list_id IN (SELECT id FROM lists WHERE space_id=$1)`},
		{"delete lists", `DELETE FROM lists WHERE space_id=$1`},
		{"delete members", `DELETE FROM space_members WHERE space_id=$1`},
		{"delete space", `DELETE FROM spaces WHERE id=$1`},
	}
	for _, stmt := range statements {
		if _, err := tx.ExecContext(ctx, stmt.query, spaceID); err != nil {
			return nil, fmt.Errorf("%s: %w", stmt.op, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit delete space: %w", err)
	}

	topics := []string{
		realtime.OwnedSpacesTopic(ownerID),
		realtime.SpaceTopic(spaceID),
		realtime.MembersTopic(spaceID),
		realtime.ListsTopic(spaceID),
	}
	for _, uid := range uids {
		topics = append(topics, realtime.MembershipsTopic(uid))
	}
	for _, id := range lists {
		topics = append(topics, realtime.ItemsTopic(id))
	}
	s.publish(ctx, topics...)
	return lists, nil
}

// --- memberships ---

const membershipColumns = `space_id, uid, role, email, email_lower, display_name, added_at, updated_at`

func scanMembership(row interface{ Scan(...any) error }) (Membership, error) {
	var m Membership
	var updatedAt sql.NullTime
	if err := row.Scan(&m.SpaceID, &m.UID, &m.Role, &m.Email, &m.EmailLower, &m.DisplayName, &m.AddedAt, &updatedAt); err != nil {
		return Membership{}, err
	}
	if updatedAt.Valid {
		t := updatedAt.Time
		m.UpdatedAt = &t
	}
	return m, nil
}

func (s *PostgresStore) GetMembership(ctx context.Context, spaceID, uid string) (Membership, error) {
	return scanMembership(s.db.QueryRowContext(ctx, `
		SELECT `+membershipColumns+`
		FROM space_members
		WHERE space_id=$1 AND uid=$2
	`, spaceID, uid))
}

// PutMembership creates or overwrites the membership of uid, resetting
// addedAt like a fresh invite.
func (s *PostgresStore) PutMembership(ctx context.Context, m Membership) (Membership, error) {
	out, err := scanMembership(s.db.QueryRowContext(ctx, `
		INSERT INTO space_members (space_id, uid, role, email, email_lower, display_name)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (space_id, uid) DO UPDATE
		SET role=EXCLUDED.role,
			email=EXCLUDED.email,
			email_lower=EXCLUDED.email_lower,
			display_name=EXCLUDED.display_name,
			added_at=NOW(),
			updated_at=NULL
		RETURNING `+membershipColumns,
		m.SpaceID, m.UID, m.Role, m.Email, m.EmailLower, m.DisplayName))
	if err != nil {
		return Membership{}, fmt.Errorf("put membership: %w", err)
	}
	s.publish(ctx, realtime.MembersTopic(m.SpaceID), realtime.MembershipsTopic(m.UID))
	return out, nil
}

func (s *PostgresStore) UpdateMembershipRole(ctx context.Context, spaceID, uid, role string) (Membership, error) {
	out, err := scanMembership(s.db.QueryRowContext(ctx, `
		UPDATE space_members SET role=$3, updated_at=NOW()
		WHERE space_id=$1 AND uid=$2
		RETURNING `+membershipColumns, spaceID, uid, role))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Membership{}, err
		}
		return Membership{}, fmt.Errorf("update membership role: %w", err)
	}
	s.publish(ctx, realtime.MembersTopic(spaceID), realtime.MembershipsTopic(uid))
	return out, nil
}

// DeleteMembership is idempotent: removing an absent membership succeeds.
func (s *PostgresStore) DeleteMembership(ctx context.Context, spaceID, uid string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM space_members WHERE space_id=$1 AND uid=$2`, spaceID, uid); err != nil {
		return fmt.Errorf("delete membership: %w", err)
	}
	s.publish(ctx, realtime.MembersTopic(spaceID), realtime.MembershipsTopic(uid))
	return nil
}

func (s *PostgresStore) ListMemberships(ctx context.Context, spaceID string) ([]Membership, error) {
	return s.queryMemberships(ctx, `
		SELECT `+membershipColumns+`
		FROM space_members
		WHERE space_id=$1
		ORDER BY added_at ASC, uid ASC
	`, spaceID)
}

// ListMembershipsByUser returns every membership of uid across all spaces,
// newest first.
func (s *PostgresStore) ListMembershipsByUser(ctx context.Context, uid string) ([]Membership, error) {
	return s.queryMemberships(ctx, `
		SELECT `+membershipColumns+`
		FROM space_members
		WHERE uid=$1
		ORDER BY added_at DESC, space_id ASC
	`, uid)
}

func (s *PostgresStore) queryMemberships(ctx context.Context, query string, arg string) ([]Membership, error) {
	rows, err := s.db.QueryContext(ctx, query, arg)
	if err != nil {
		return nil, fmt.Errorf("list memberships: %w", err)
	}
	defer rows.Close()

	items := make([]Membership, 0)
	for rows.Next() {
		item, err := scanMembership(rows)
		if err != nil {
			return nil, fmt.Errorf("scan membership: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate memberships: %w", err)
	}
	return items, nil
}

// --- lists ---

const listColumns = `id, name, space_id, created_by, created_at, updated_at`

func scanList(row interface{ Scan(...any) error }) (List, error) {
	var l List
	err := row.Scan(&l.ID, &l.Name, &l.SpaceID, &l.CreatedBy, &l.CreatedAt, &l.UpdatedAt)
	return l, err
}

func (s *PostgresStore) CreateList(ctx context.Context, list List) (List, error) {
	out, err := scanList(s.db.QueryRowContext(ctx, `
		INSERT INTO lists (id, name, space_id, created_by)
		VALUES ($1, $2, $3, $4)
		RETURNING `+listColumns, list.ID, list.Name, list.SpaceID, list.CreatedBy))
	if err != nil {
		return List{}, fmt.Errorf("create list: %w", err)
	}
	s.publish(ctx, realtime.ListsTopic(out.SpaceID))
	return out, nil
}

func (s *PostgresStore) GetList(ctx context.Context, listID string) (List, error) {
	return scanList(s.db.QueryRowContext(ctx, `SELECT `+listColumns+` FROM lists WHERE id=$1`, listID))
}

func (s *PostgresStore) RenameList(ctx context.Context, listID, name string) (List, error) {
	out, err := scanList(s.db.QueryRowContext(ctx, `
		UPDATE lists SET name=$2, updated_at=NOW()
		WHERE id=$1
		RETURNING `+listColumns, listID, name))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return List{}, err
		}
		return List{}, fmt.Errorf("rename list: %w", err)
	}
	s.publish(ctx, realtime.ListsTopic(out.SpaceID))
	return out, nil
}

// TouchList bumps the list's updatedAt after a change to its items.
func (s *PostgresStore) TouchList(ctx context.Context, listID string) error {
	var spaceID string
	err := s.db.QueryRowContext(ctx, `
		UPDATE lists SET updated_at=NOW()
		WHERE id=$1
		RETURNING space_id
	`, listID).Scan(&spaceID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return err
		}
		return fmt.Errorf("touch list: %w", err)
	}
	s.publish(ctx, realtime.ListsTopic(spaceID))
	return nil
}

func (s *PostgresStore) ListListsBySpace(ctx context.Context, spaceID string) ([]List, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+listColumns+`
		FROM lists
		WHERE space_id=$1
		ORDER BY updated_at DESC, id ASC
	`, spaceID)
	if err != nil {
		return nil, fmt.Errorf("list lists: %w", err)
	}
	defer rows.Close()

	items := make([]List, 0)
	for rows.Next() {
		item, err := scanList(rows)
		if err != nil {
			return nil, fmt.Errorf("scan list: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate lists: %w", err)
	}
	return items, nil
}

// DeleteListCascade removes the list and all of its items atomically.
func (s *PostgresStore) DeleteListCascade(ctx context.Context, listID string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin delete list: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM list_items WHERE list_id=$1`, listID); err != nil {
		return fmt.Errorf("delete list items: %w", err)
	}
	var spaceID string
	if err := tx.QueryRowContext(ctx, `DELETE FROM lists WHERE id=$1 RETURNING space_id`, listID).Scan(&spaceID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return err
		}
		return fmt.Errorf("delete list: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit delete list: %w", err)
	}
	s.publish(ctx, realtime.ListsTopic(spaceID), realtime.ItemsTopic(listID))
	return nil
}

// --- items ---

const itemColumns = `id, list_id, text, completed, completed_at, created_by, created_at, updated_at, item_order`

func scanItem(row interface{ Scan(...any) error }) (Item, error) {
	var it Item
	var completedAt sql.NullTime
	var order sql.NullInt64
	if err := row.Scan(&it.ID, &it.ListID, &it.Text, &it.Completed, &completedAt, &it.CreatedBy, &it.CreatedAt, &it.UpdatedAt, &order); err != nil {
		return Item{}, err
	}
	if completedAt.Valid {
		t := completedAt.Time
		it.CompletedAt = &t
	}
	if order.Valid {
		v := order.Int64
		it.Order = &v
	}
	return it, nil
}

func (s *PostgresStore) ListItems(ctx context.Context, listID string) ([]Item, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+itemColumns+`
		FROM list_items
		WHERE list_id=$1
		ORDER BY item_order ASC NULLS LAST, created_at ASC, id ASC
	`, listID)
	if err != nil {
		return nil, fmt.Errorf("list items: %w", err)
	}
	defer rows.Close()

	items := make([]Item, 0)
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, fmt.Errorf("scan item: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate items: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) GetItem(ctx context.Context, listID, itemID string) (Item, error) {
	return scanItem(s.db.QueryRowContext(ctx, `
		SELECT `+itemColumns+`
		FROM list_items
		WHERE list_id=$1 AND id=$2
	`, listID, itemID))
}

func (s *PostgresStore) CreateItem(ctx context.Context, item Item) (Item, error) {
	var order sql.NullInt64
	if item.Order != nil {
		order = sql.NullInt64{Int64: *item.Order, Valid: true}
	}
	out, err := scanItem(s.db.QueryRowContext(ctx, `
		INSERT INTO list_items (id, list_id, text, completed, created_by, item_order)
		VALUES ($1, $2, $3, FALSE, $4, $5)
		RETURNING `+itemColumns, item.ID, item.ListID, item.Text, item.CreatedBy, order))
	if err != nil {
		return Item{}, fmt.Errorf("create item: %w", err)
	}
	s.publish(ctx, realtime.ItemsTopic(out.ListID))
	return out, nil
}

func (s *PostgresStore) RenameItem(ctx context.Context, listID, itemID, text string) (Item, error) {
	return s.updateItem(ctx, "rename item", `
		UPDATE list_items SET text=$3, updated_at=NOW()
		WHERE list_id=$1 AND id=$2
		RETURNING `+itemColumns, listID, itemID, text)
}

// SetItemCompleted stamps completedAt with the server clock when completing
// and clears it when reopening.
func (s *PostgresStore) SetItemCompleted(ctx context.Context, listID, itemID string, completed bool) (Item, error) {
	return s.updateItem(ctx, "set item completed", `
		UPDATE list_items
		SET completed=$3,
			completed_at=CASE WHEN $3 THEN NOW() ELSE NULL END,
			updated_at=NOW()
		WHERE list_id=$1 AND id=$2
		RETURNING `+itemColumns, listID, itemID, completed)
}

func (s *PostgresStore) updateItem(ctx context.Context, op, query string, args ...any) (Item, error) {
	out, err := scanItem(s.db.QueryRowContext(ctx, query, args...))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Item{}, err
		}
		return Item{}, fmt.Errorf("%s: %w", op, err)
	}
	s.publish(ctx, realtime.ItemsTopic(out.ListID))
	return out, nil
}

// ApplyItemOrders writes all assignments or none. A missing item aborts
// the batch with sql.ErrNoRows.
func (s *PostgresStore) ApplyItemOrders(ctx context.Context, listID string, assignments []OrderAssignment) error {
	if len(assignments) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin reorder: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, a := range assignments {
		result, err := tx.ExecContext(ctx, `
			UPDATE list_items SET item_order=$3, updated_at=NOW()
			WHERE list_id=$1 AND id=$2
		`, listID, a.ItemID, a.Order)
		if err != nil {
			return fmt.Errorf("reorder item %s: %w", a.ItemID, err)
		}
		if err := requireAffected(result, "reorder item"); err != nil {
			return err
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit reorder: %w", err)
	}
	s.publish(ctx, realtime.ItemsTopic(listID))
	return nil
}

func (s *PostgresStore) DeleteItem(ctx context.Context, listID, itemID string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM list_items WHERE list_id=$1 AND id=$2`, listID, itemID)
	if err != nil {
		return fmt.Errorf("delete item: %w", err)
	}
	if err := requireAffected(result, "delete item"); err != nil {
		return err
	}
	s.publish(ctx, realtime.ItemsTopic(listID))
	return nil
}
