package app

import (
	"context"
	"database/sql"
	"errors"
	"log"
	"net/http"
	"slices"
	"strings"
	"time"

	"sharedlists/api/internal/auth"
	"sharedlists/api/internal/authpw"
	"sharedlists/api/internal/config"
	"sharedlists/api/internal/email"
	"sharedlists/api/internal/ordering"
	"sharedlists/api/internal/rbac"
	"sharedlists/api/internal/realtime"
	"sharedlists/api/internal/search"
	"sharedlists/api/internal/store"
	"sharedlists/api/internal/subscription"
	"sharedlists/api/internal/util"
	"sharedlists/api/internal/visibility"
)

type Session struct {
	Token        string
	RefreshToken string
	UserID       string
	UserName     string
	Email        string
	JTI          string
	ExpiresAt    time.Time
}

func (s Session) Actor() Actor {
	return Actor{UID: s.UserID, Email: s.Email, DisplayName: s.UserName}
}

// Actor is the signed-in user an operation runs as.
type Actor struct {
	UID         string
	Email       string
	DisplayName string
}

// SessionStore keeps refresh sessions and revoked access tokens.
type SessionStore interface {
	SaveRefreshSession(context.Context, string, store.UserProfile, time.Time) error
	LookupRefreshSession(context.Context, string) (store.UserProfile, error)
	RevokeRefreshSession(context.Context, string) error
	RevokeAccessToken(context.Context, string, time.Time) error
	IsAccessTokenRevoked(context.Context, string) (bool, error)
}

type dataStore interface {
	SessionStore
	authpw.UserStore
	visibility.SpaceReader

	UpsertUserProfile(context.Context, store.UserProfile) (store.UserProfile, bool, error)
	FindUserProfileByEmail(context.Context, string) (store.UserProfile, error)

	CreateSpaceWithOwner(context.Context, store.Space, store.Membership) (store.Space, error)
	RenameSpace(context.Context, string, string) (store.Space, error)
	DeleteSpaceCascade(context.Context, string) ([]string, error)

	GetMembership(context.Context, string, string) (store.Membership, error)
	PutMembership(context.Context, store.Membership) (store.Membership, error)
	UpdateMembershipRole(context.Context, string, string, string) (store.Membership, error)
	DeleteMembership(context.Context, string, string) error
	ListMemberships(context.Context, string) ([]store.Membership, error)

	CreateList(context.Context, store.List) (store.List, error)
	GetList(context.Context, string) (store.List, error)
	RenameList(context.Context, string, string) (store.List, error)
	TouchList(context.Context, string) error
	ListListsBySpace(context.Context, string) ([]store.List, error)
	DeleteListCascade(context.Context, string) error

	ListItems(context.Context, string) ([]store.Item, error)
	GetItem(context.Context, string, string) (store.Item, error)
	CreateItem(context.Context, store.Item) (store.Item, error)
	RenameItem(context.Context, string, string, string) (store.Item, error)
	SetItemCompleted(context.Context, string, string, bool) (store.Item, error)
	ApplyItemOrders(context.Context, string, []store.OrderAssignment) error
	DeleteItem(context.Context, string, string) error

	Ping(ctx context.Context) error
}

// SearchIndex is the search facade; search.Service implements it.
type SearchIndex interface {
	Search(search.Query) search.Response
	IndexList(search.ListRecord)
	IndexItem(search.ItemRecord)
	DeleteList(string, []string)
	DeleteItems([]string)
}

type Mailer interface {
	IsConfigured() bool
	SendInviteEmail(to string, data email.InviteData) error
}

// Pinger is a dependency that can report its health.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Options carries the optional collaborators. Nil fields fall back to the
// data store (sessions) or disable the feature (search, mail). Checks are
// extra readiness probes keyed by name.
type Options struct {
	Sessions  SessionStore
	Passwords *authpw.Service
	Search    SearchIndex
	Mailer    Mailer
	Checks    map[string]Pinger
}

type Service struct {
	cfg       config.Config
	store     dataStore
	sessions  SessionStore
	broker    realtime.Broker
	resolver  *visibility.Resolver
	passwords *authpw.Service
	search    SearchIndex
	mailer    Mailer
	checks    map[string]Pinger
}

func New(cfg config.Config, dataStore dataStore, broker realtime.Broker, opts Options) *Service {
	svc := &Service{
		cfg:       cfg,
		store:     dataStore,
		sessions:  opts.Sessions,
		broker:    broker,
		resolver:  visibility.NewResolver(dataStore, broker),
		passwords: opts.Passwords,
		search:    opts.Search,
		mailer:    opts.Mailer,
		checks:    opts.Checks,
	}
	if svc.sessions == nil {
		svc.sessions = dataStore
	}
	if svc.passwords == nil {
		svc.passwords = authpw.NewService(dataStore)
	}
	return svc
}

// lookupError turns a missing row into a NotFound error and any other store
// failure into a StoreError.
func lookupError(err error, what, op string) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return notFoundError(what)
	}
	return storeError(op, err)
}

// Sessions

func (s *Service) SignUp(ctx context.Context, req authpw.SignUpRequest) (Session, error) {
	profile, err := s.passwords.SignUp(ctx, req)
	if err != nil {
		return Session{}, authError(err)
	}
	return s.issueSession(ctx, profile)
}

func (s *Service) SignIn(ctx context.Context, req authpw.SignInRequest) (Session, error) {
	profile, err := s.passwords.SignIn(ctx, req)
	if err != nil {
		return Session{}, authError(err)
	}
	profile, err = s.EnsureUserProfile(ctx, Actor{UID: profile.UID, Email: profile.Email, DisplayName: profile.DisplayName})
	if err != nil {
		return Session{}, err
	}
	return s.issueSession(ctx, profile)
}

func authError(err error) error {
	switch {
	case errors.Is(err, authpw.ErrMissingFields), errors.Is(err, authpw.ErrWeakPassword):
		return validationError(err.Error())
	case errors.Is(err, authpw.ErrEmailTaken):
		return domainError(http.StatusConflict, "EMAIL_EXISTS", "Email already registered", nil)
	case errors.Is(err, authpw.ErrInvalidCredentials):
		return domainError(http.StatusUnauthorized, "INVALID_CREDENTIALS", "Invalid email or password", nil)
	default:
		return storeError("authenticate", err)
	}
}

func (s *Service) Refresh(ctx context.Context, refreshToken string) (Session, error) {
	if strings.TrimSpace(refreshToken) == "" {
		return Session{}, auth.ErrInvalidToken
	}
	tokenHash := auth.HashToken(refreshToken)
	user, err := s.sessions.LookupRefreshSession(ctx, tokenHash)
	if err != nil {
		return Session{}, auth.ErrInvalidToken
	}
	if err := s.sessions.RevokeRefreshSession(ctx, tokenHash); err != nil {
		return Session{}, storeError("revoke refresh session", err)
	}
	if current, err := s.store.GetUserProfile(ctx, user.UID); err == nil {
		user = current
	}
	return s.issueSession(ctx, user)
}

func (s *Service) issueSession(ctx context.Context, user store.UserProfile) (Session, error) {
	jti := util.NewID("jti")
	token, claims, err := auth.IssueToken([]byte(s.cfg.JWTSecret), user.UID, user.DisplayName, user.Email, jti, s.cfg.AccessTTL)
	if err != nil {
		return Session{}, err
	}

	refresh := util.NewID("rft") + util.NewID("")
	refreshExpires := time.Now().Add(s.cfg.RefreshTTL)
	if err := s.sessions.SaveRefreshSession(ctx, auth.HashToken(refresh), user, refreshExpires); err != nil {
		return Session{}, storeError("save refresh session", err)
	}

	return Session{
		Token:        token,
		RefreshToken: refresh,
		UserID:       user.UID,
		UserName:     user.DisplayName,
		Email:        user.Email,
		JTI:          jti,
		ExpiresAt:    claims.ExpiresAt.Time,
	}, nil
}

func (s *Service) SessionFromToken(ctx context.Context, token string) (Session, error) {
	claims, err := auth.ParseToken([]byte(s.cfg.JWTSecret), token)
	if err != nil {
		return Session{}, err
	}
	revoked, err := s.sessions.IsAccessTokenRevoked(ctx, claims.ID)
	if err != nil {
		return Session{}, storeError("check revoked token", err)
	}
	if revoked {
		return Session{}, auth.ErrInvalidToken
	}

	user, err := s.store.GetUserProfile(ctx, claims.Subject)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Session{}, auth.ErrInvalidToken
		}
		return Session{}, storeError("load profile", err)
	}

	return Session{
		Token:     token,
		UserID:    user.UID,
		UserName:  user.DisplayName,
		Email:     user.Email,
		JTI:       claims.ID,
		ExpiresAt: claims.ExpiresAt.Time,
	}, nil
}

func (s *Service) Logout(ctx context.Context, session Session, refreshToken string) error {
	if session.JTI != "" {
		if err := s.sessions.RevokeAccessToken(ctx, session.JTI, session.ExpiresAt); err != nil {
			log.Printf("app: revoke access token: %v", err)
		}
	}
	if refreshToken != "" {
		if err := s.sessions.RevokeRefreshSession(ctx, auth.HashToken(refreshToken)); err != nil {
			log.Printf("app: revoke refresh session: %v", err)
		}
	}
	return nil
}

// EnsureUserProfile creates the profile on first sign-in and refreshes it
// on every later one. createdAt is never reset.
func (s *Service) EnsureUserProfile(ctx context.Context, actor Actor) (store.UserProfile, error) {
	if strings.TrimSpace(actor.UID) == "" {
		return store.UserProfile{}, validationError("uid is required")
	}
	emailAddr := strings.TrimSpace(actor.Email)
	displayName := strings.TrimSpace(actor.DisplayName)
	if displayName == "" {
		displayName = authpw.DefaultDisplayName(emailAddr)
	}
	profile, _, err := s.store.UpsertUserProfile(ctx, store.UserProfile{
		UID:         actor.UID,
		Email:       emailAddr,
		EmailLower:  strings.ToLower(emailAddr),
		DisplayName: displayName,
	})
	if err != nil {
		return store.UserProfile{}, storeError("upsert user profile", err)
	}
	return profile, nil
}

// Roles

// EffectiveRole resolves what actor may do in a space: owner when the space
// names them as owner, otherwise the role of their membership, otherwise none.
func (s *Service) EffectiveRole(ctx context.Context, actor Actor, spaceID string) (rbac.Role, error) {
	_, role, err := s.spaceRole(ctx, actor, spaceID)
	return role, err
}

func (s *Service) spaceRole(ctx context.Context, actor Actor, spaceID string) (store.Space, rbac.Role, error) {
	space, err := s.store.GetSpace(ctx, spaceID)
	if err != nil {
		return store.Space{}, rbac.RoleNone, lookupError(err, "space", "get space")
	}
	if space.OwnerID == actor.UID {
		return space, rbac.RoleOwner, nil
	}
	member, err := s.store.GetMembership(ctx, spaceID, actor.UID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return space, rbac.RoleNone, nil
		}
		return store.Space{}, rbac.RoleNone, storeError("get membership", err)
	}
	return space, rbac.Normalize(member.Role), nil
}

// authorize loads the space and checks that actor may perform action in it.
func (s *Service) authorize(ctx context.Context, actor Actor, spaceID string, action rbac.Action) (store.Space, rbac.Role, error) {
	space, role, err := s.spaceRole(ctx, actor, spaceID)
	if err != nil {
		return store.Space{}, rbac.RoleNone, err
	}
	if role == rbac.RoleNone {
		return store.Space{}, role, forbiddenError("you are not a member of this space")
	}
	if !rbac.Can(role, action) {
		return store.Space{}, role, forbiddenError("your role does not allow this action")
	}
	return space, role, nil
}

// authorizeList loads the list and checks action against its space.
func (s *Service) authorizeList(ctx context.Context, actor Actor, listID string, action rbac.Action) (store.List, error) {
	list, err := s.store.GetList(ctx, listID)
	if err != nil {
		return store.List{}, lookupError(err, "list", "get list")
	}
	if _, _, err := s.authorize(ctx, actor, list.SpaceID, action); err != nil {
		return store.List{}, err
	}
	return list, nil
}

func requireText(value, field string) (string, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return "", validationError(field + " is required")
	}
	return trimmed, nil
}

// Spaces

type SpaceView struct {
	Space store.Space
	Role  rbac.Role
}

func (s *Service) CreateSpace(ctx context.Context, actor Actor, name string) (store.Space, error) {
	spaceName, err := requireText(name, "name")
	if err != nil {
		return store.Space{}, err
	}
	space := store.Space{ID: util.NewID("sp"), Name: spaceName, OwnerID: actor.UID}
	owner := store.Membership{
		SpaceID:     space.ID,
		UID:         actor.UID,
		Role:        string(rbac.RoleOwner),
		Email:       actor.Email,
		EmailLower:  strings.ToLower(actor.Email),
		DisplayName: actor.DisplayName,
	}
	created, err := s.store.CreateSpaceWithOwner(ctx, space, owner)
	if err != nil {
		return store.Space{}, storeError("create space", err)
	}
	return created, nil
}

func (s *Service) GetSpace(ctx context.Context, actor Actor, spaceID string) (SpaceView, error) {
	space, role, err := s.authorize(ctx, actor, spaceID, rbac.ActionRead)
	if err != nil {
		return SpaceView{}, err
	}
	return SpaceView{Space: space, Role: role}, nil
}

func (s *Service) RenameSpace(ctx context.Context, actor Actor, spaceID, name string) (store.Space, error) {
	spaceName, err := requireText(name, "name")
	if err != nil {
		return store.Space{}, err
	}
	if _, _, err := s.authorize(ctx, actor, spaceID, rbac.ActionManageSpace); err != nil {
		return store.Space{}, err
	}
	space, err := s.store.RenameSpace(ctx, spaceID, spaceName)
	if err != nil {
		return store.Space{}, lookupError(err, "space", "rename space")
	}
	return space, nil
}

// DeleteSpace removes the space with its lists, their items and all
// memberships in one transaction.
func (s *Service) DeleteSpace(ctx context.Context, actor Actor, spaceID string) error {
	if _, _, err := s.authorize(ctx, actor, spaceID, rbac.ActionManageSpace); err != nil {
		return err
	}
	indexed := s.indexedItemIDs(ctx, spaceID)
	listIDs, err := s.store.DeleteSpaceCascade(ctx, spaceID)
	if err != nil {
		return lookupError(err, "space", "delete space")
	}
	if s.search != nil {
		for _, listID := range listIDs {
			s.search.DeleteList(listID, indexed[listID])
		}
	}
	return nil
}

// indexedItemIDs collects item ids per list so the search index can be
// cleaned after a cascade. Failures only cost stale search entries.
func (s *Service) indexedItemIDs(ctx context.Context, spaceID string) map[string][]string {
	out := map[string][]string{}
	if s.search == nil {
		return out
	}
	lists, err := s.store.ListListsBySpace(ctx, spaceID)
	if err != nil {
		log.Printf("app: collect lists of space %s: %v", spaceID, err)
		return out
	}
	for _, list := range lists {
		out[list.ID] = s.itemIDs(ctx, list.ID)
	}
	return out
}

func (s *Service) itemIDs(ctx context.Context, listID string) []string {
	items, err := s.store.ListItems(ctx, listID)
	if err != nil {
		log.Printf("app: collect items of list %s: %v", listID, err)
		return nil
	}
	ids := make([]string, 0, len(items))
	for _, item := range items {
		ids = append(ids, item.ID)
	}
	return ids
}

func (s *Service) ListVisibleSpaces(ctx context.Context, actor Actor) ([]store.Space, error) {
	spaces, err := s.resolver.Visible(ctx, actor.UID)
	if err != nil {
		return nil, storeError("list visible spaces", err)
	}
	return spaces, nil
}

// Members

func normalizeEmail(value string) (string, error) {
	emailLower := strings.ToLower(strings.TrimSpace(value))
	if emailLower == "" {
		return "", validationError("email is required")
	}
	if at := strings.Index(emailLower, "@"); at <= 0 || at == len(emailLower)-1 {
		return "", validationError("email is invalid")
	}
	return emailLower, nil
}

// InviteMember grants editor access to the user registered under addr.
// Re-inviting overwrites the existing membership, so a member who was moved
// to viewer comes back as editor.
func (s *Service) InviteMember(ctx context.Context, actor Actor, spaceID, addr string) (store.Membership, error) {
	emailLower, err := normalizeEmail(addr)
	if err != nil {
		return store.Membership{}, err
	}
	space, _, err := s.authorize(ctx, actor, spaceID, rbac.ActionManageMembers)
	if err != nil {
		return store.Membership{}, err
	}
	profile, err := s.store.FindUserProfileByEmail(ctx, emailLower)
	if err != nil {
		return store.Membership{}, lookupError(err, "user", "find user by email")
	}
	if profile.UID == space.OwnerID {
		return store.Membership{}, forbiddenError("the owner's membership cannot be changed")
	}

	member, err := s.store.PutMembership(ctx, store.Membership{
		SpaceID:     spaceID,
		UID:         profile.UID,
		Role:        string(rbac.RoleEditor),
		Email:       profile.Email,
		EmailLower:  emailLower,
		DisplayName: profile.DisplayName,
	})
	if err != nil {
		return store.Membership{}, storeError("put membership", err)
	}
	s.sendInvite(profile.Email, actor, space, member.Role)
	return member, nil
}

func (s *Service) sendInvite(to string, actor Actor, space store.Space, role string) {
	if s.mailer == nil || !s.mailer.IsConfigured() || to == "" {
		return
	}
	data := email.InviteData{
		InviterName: actor.DisplayName,
		SpaceName:   space.Name,
		Role:        role,
		AppURL:      s.cfg.AppURL,
	}
	go func() {
		if err := s.mailer.SendInviteEmail(to, data); err != nil {
			log.Printf("app: send invite email to %s: %v", to, err)
		}
	}()
}

func (s *Service) UpdateMemberRole(ctx context.Context, actor Actor, spaceID, memberID, role string) (store.Membership, error) {
	newRole, ok := rbac.ParseAssignable(strings.TrimSpace(role))
	if !ok {
		return store.Membership{}, validationError("role must be editor or viewer")
	}
	if strings.TrimSpace(memberID) == "" {
		return store.Membership{}, validationError("member id is required")
	}
	space, _, err := s.authorize(ctx, actor, spaceID, rbac.ActionManageMembers)
	if err != nil {
		return store.Membership{}, err
	}
	member, err := s.store.GetMembership(ctx, spaceID, memberID)
	if err != nil {
		return store.Membership{}, lookupError(err, "membership", "get membership")
	}
	if isOwnerMembership(space, member) {
		return store.Membership{}, forbiddenError("the owner's role cannot be changed")
	}
	updated, err := s.store.UpdateMembershipRole(ctx, spaceID, memberID, string(newRole))
	if err != nil {
		return store.Membership{}, lookupError(err, "membership", "update membership role")
	}
	return updated, nil
}

// RemoveMember deletes a membership. Owners manage everyone; any other
// member may remove only themselves. Removing an absent member is a no-op.
func (s *Service) RemoveMember(ctx context.Context, actor Actor, spaceID, memberID string) error {
	if strings.TrimSpace(memberID) == "" {
		return validationError("member id is required")
	}
	action := rbac.ActionManageMembers
	if memberID == actor.UID {
		action = rbac.ActionRead
	}
	space, _, err := s.authorize(ctx, actor, spaceID, action)
	if err != nil {
		return err
	}
	if memberID == space.OwnerID {
		return forbiddenError("the owner cannot be removed")
	}
	member, err := s.store.GetMembership(ctx, spaceID, memberID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil
		}
		return storeError("get membership", err)
	}
	if isOwnerMembership(space, member) {
		return forbiddenError("the owner cannot be removed")
	}
	return storeError("delete membership", s.store.DeleteMembership(ctx, spaceID, memberID))
}

func isOwnerMembership(space store.Space, member store.Membership) bool {
	return member.UID == space.OwnerID || rbac.Role(member.Role) == rbac.RoleOwner
}

func (s *Service) ListMembers(ctx context.Context, actor Actor, spaceID string) ([]store.Membership, error) {
	if _, _, err := s.authorize(ctx, actor, spaceID, rbac.ActionRead); err != nil {
		return nil, err
	}
	members, err := s.store.ListMemberships(ctx, spaceID)
	return members, storeError("list memberships", err)
}

// Lists

func (s *Service) CreateList(ctx context.Context, actor Actor, spaceID, name string) (store.List, error) {
	listName, err := requireText(name, "name")
	if err != nil {
		return store.List{}, err
	}
	if _, _, err := s.authorize(ctx, actor, spaceID, rbac.ActionWrite); err != nil {
		return store.List{}, err
	}
	list, err := s.store.CreateList(ctx, store.List{
		ID:        util.NewID("ls"),
		Name:      listName,
		SpaceID:   spaceID,
		CreatedBy: actor.UID,
	})
	if err != nil {
		return store.List{}, storeError("create list", err)
	}
	s.indexList(list)
	return list, nil
}

func (s *Service) RenameList(ctx context.Context, actor Actor, listID, name string) (store.List, error) {
	listName, err := requireText(name, "name")
	if err != nil {
		return store.List{}, err
	}
	if _, err := s.authorizeList(ctx, actor, listID, rbac.ActionWrite); err != nil {
		return store.List{}, err
	}
	list, err := s.store.RenameList(ctx, listID, listName)
	if err != nil {
		return store.List{}, lookupError(err, "list", "rename list")
	}
	s.indexList(list)
	return list, nil
}

// DeleteList removes the list and all of its items in one transaction.
func (s *Service) DeleteList(ctx context.Context, actor Actor, listID string) error {
	if _, err := s.authorizeList(ctx, actor, listID, rbac.ActionWrite); err != nil {
		return err
	}
	var indexed []string
	if s.search != nil {
		indexed = s.itemIDs(ctx, listID)
	}
	if err := s.store.DeleteListCascade(ctx, listID); err != nil {
		return lookupError(err, "list", "delete list")
	}
	if s.search != nil {
		s.search.DeleteList(listID, indexed)
	}
	return nil
}

func (s *Service) ListLists(ctx context.Context, actor Actor, spaceID string) ([]store.List, error) {
	if _, _, err := s.authorize(ctx, actor, spaceID, rbac.ActionRead); err != nil {
		return nil, err
	}
	lists, err := s.store.ListListsBySpace(ctx, spaceID)
	return lists, storeError("list lists", err)
}

// Items

func (s *Service) ListItems(ctx context.Context, actor Actor, listID string) ([]store.Item, error) {
	if _, err := s.authorizeList(ctx, actor, listID, rbac.ActionRead); err != nil {
		return nil, err
	}
	return s.sortedItems(ctx, listID)
}

func (s *Service) sortedItems(ctx context.Context, listID string) ([]store.Item, error) {
	items, err := s.store.ListItems(ctx, listID)
	if err != nil {
		return nil, storeError("list items", err)
	}
	ordering.Sort(items)
	return items, nil
}

// AddItem appends an item after every ordered item of the list.
func (s *Service) AddItem(ctx context.Context, actor Actor, listID, text string) (store.Item, error) {
	itemText, err := requireText(text, "text")
	if err != nil {
		return store.Item{}, err
	}
	list, err := s.authorizeList(ctx, actor, listID, rbac.ActionWrite)
	if err != nil {
		return store.Item{}, err
	}
	siblings, err := s.store.ListItems(ctx, listID)
	if err != nil {
		return store.Item{}, storeError("list items", err)
	}
	order := ordering.NextOrder(siblings)
	item, err := s.store.CreateItem(ctx, store.Item{
		ID:        util.NewID("it"),
		ListID:    listID,
		Text:      itemText,
		CreatedBy: actor.UID,
		Order:     &order,
	})
	if err != nil {
		return store.Item{}, storeError("create item", err)
	}
	s.touch(ctx, listID)
	s.indexItem(list, item)
	return item, nil
}

func (s *Service) RenameItem(ctx context.Context, actor Actor, listID, itemID, text string) (store.Item, error) {
	itemText, err := requireText(text, "text")
	if err != nil {
		return store.Item{}, err
	}
	list, err := s.authorizeList(ctx, actor, listID, rbac.ActionWrite)
	if err != nil {
		return store.Item{}, err
	}
	item, err := s.store.RenameItem(ctx, listID, itemID, itemText)
	if err != nil {
		return store.Item{}, lookupError(err, "item", "rename item")
	}
	s.touch(ctx, listID)
	s.indexItem(list, item)
	return item, nil
}

// SetItemCompleted stamps completedAt when completed and clears it otherwise.
func (s *Service) SetItemCompleted(ctx context.Context, actor Actor, listID, itemID string, completed bool) (store.Item, error) {
	list, err := s.authorizeList(ctx, actor, listID, rbac.ActionWrite)
	if err != nil {
		return store.Item{}, err
	}
	item, err := s.store.SetItemCompleted(ctx, listID, itemID, completed)
	if err != nil {
		return store.Item{}, lookupError(err, "item", "set item completed")
	}
	s.touch(ctx, listID)
	s.indexItem(list, item)
	return item, nil
}

// ToggleItem flips the completed flag of an item.
func (s *Service) ToggleItem(ctx context.Context, actor Actor, listID, itemID string) (store.Item, error) {
	if _, err := s.authorizeList(ctx, actor, listID, rbac.ActionWrite); err != nil {
		return store.Item{}, err
	}
	current, err := s.store.GetItem(ctx, listID, itemID)
	if err != nil {
		return store.Item{}, lookupError(err, "item", "get item")
	}
	return s.SetItemCompleted(ctx, actor, listID, itemID, !current.Completed)
}

// MoveItem swaps the item with its neighbour in direction and returns the
// list in its new order. Moving past either end leaves everything as is.
func (s *Service) MoveItem(ctx context.Context, actor Actor, listID, itemID, direction string) ([]store.Item, error) {
	dir, ok := ordering.ParseDirection(strings.TrimSpace(direction))
	if !ok {
		return nil, validationError("direction must be up or down")
	}
	if _, err := s.authorizeList(ctx, actor, listID, rbac.ActionWrite); err != nil {
		return nil, err
	}
	items, err := s.sortedItems(ctx, listID)
	if err != nil {
		return nil, err
	}
	if !slices.ContainsFunc(items, func(item store.Item) bool { return item.ID == itemID }) {
		return nil, notFoundError("item")
	}

	assignments := ordering.Move(items, itemID, dir)
	if len(assignments) == 0 {
		return items, nil
	}
	if err := s.store.ApplyItemOrders(ctx, listID, assignments); err != nil {
		return nil, lookupError(err, "item", "apply item orders")
	}
	s.touch(ctx, listID)
	return ordering.Sorted(ordering.Apply(items, assignments)), nil
}

func (s *Service) DeleteItem(ctx context.Context, actor Actor, listID, itemID string) error {
	if _, err := s.authorizeList(ctx, actor, listID, rbac.ActionWrite); err != nil {
		return err
	}
	if err := s.store.DeleteItem(ctx, listID, itemID); err != nil {
		return lookupError(err, "item", "delete item")
	}
	s.touch(ctx, listID)
	if s.search != nil {
		s.search.DeleteItems([]string{itemID})
	}
	return nil
}

// touch bumps the parent list after an item write. The item write has
// already committed, so a failure here is logged and not returned.
func (s *Service) touch(ctx context.Context, listID string) {
	if err := s.store.TouchList(context.WithoutCancel(ctx), listID); err != nil {
		log.Printf("app: touch list %s: %v", listID, err)
	}
}

func (s *Service) indexList(list store.List) {
	if s.search == nil {
		return
	}
	s.search.IndexList(search.ListRecord{ID: list.ID, Name: list.Name, SpaceID: list.SpaceID})
}

func (s *Service) indexItem(list store.List, item store.Item) {
	if s.search == nil {
		return
	}
	s.search.IndexItem(search.ItemRecord{
		ID:        item.ID,
		Text:      item.Text,
		ListID:    item.ListID,
		SpaceID:   list.SpaceID,
		Completed: item.Completed,
	})
}

// Search

// SearchItems searches lists and items in the spaces actor can see. A
// requested space outside that set is ignored.
func (s *Service) SearchItems(ctx context.Context, actor Actor, q search.Query) (search.Response, error) {
	if s.search == nil {
		return search.Response{Results: []search.Result{}, Query: q.Text}, nil
	}
	if strings.TrimSpace(q.Text) == "" {
		return search.Response{}, validationError("q is required")
	}
	visible, err := s.ListVisibleSpaces(ctx, actor)
	if err != nil {
		return search.Response{}, err
	}
	allowed := make([]string, 0, len(visible))
	for _, space := range visible {
		if len(q.SpaceIDs) == 0 || slices.Contains(q.SpaceIDs, space.ID) {
			allowed = append(allowed, space.ID)
		}
	}
	q.SpaceIDs = allowed
	return s.search.Search(q), nil
}

// Live queries

// WatchSpaces streams every space actor owns or is a member of.
func (s *Service) WatchSpaces(actor Actor, onData func([]store.Space), onError func(error)) subscription.Subscription {
	return s.resolver.Watch(actor.UID, onData, onError)
}

// scopeTopics are the topics that can change whether actor may still read
// a space, added to every space-scoped watch so revocation is noticed.
func scopeTopics(actor Actor, spaceID string, topics ...string) []string {
	return append(topics, realtime.SpaceTopic(spaceID), realtime.MembershipsTopic(actor.UID))
}

func (s *Service) WatchMembers(ctx context.Context, actor Actor, spaceID string, onData func([]store.Membership), onError func(error)) (subscription.Subscription, error) {
	if _, _, err := s.authorize(ctx, actor, spaceID, rbac.ActionRead); err != nil {
		return nil, err
	}
	topics := scopeTopics(actor, spaceID, realtime.MembersTopic(spaceID))
	return realtime.Query(s.broker, topics, func(ctx context.Context) ([]store.Membership, error) {
		return s.ListMembers(ctx, actor, spaceID)
	}, onData, onError), nil
}

func (s *Service) WatchLists(ctx context.Context, actor Actor, spaceID string, onData func([]store.List), onError func(error)) (subscription.Subscription, error) {
	if _, _, err := s.authorize(ctx, actor, spaceID, rbac.ActionRead); err != nil {
		return nil, err
	}
	topics := scopeTopics(actor, spaceID, realtime.ListsTopic(spaceID))
	return realtime.Query(s.broker, topics, func(ctx context.Context) ([]store.List, error) {
		return s.ListLists(ctx, actor, spaceID)
	}, onData, onError), nil
}

func (s *Service) WatchItems(ctx context.Context, actor Actor, listID string, onData func([]store.Item), onError func(error)) (subscription.Subscription, error) {
	list, err := s.authorizeList(ctx, actor, listID, rbac.ActionRead)
	if err != nil {
		return nil, err
	}
	topics := scopeTopics(actor, list.SpaceID, realtime.ItemsTopic(listID))
	return realtime.Query(s.broker, topics, func(ctx context.Context) ([]store.Item, error) {
		return s.ListItems(ctx, actor, listID)
	}, onData, onError), nil
}

// Ping checks the data store.
func (s *Service) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}

// Readiness probes the data store as "database" plus every extra check.
// A nil entry means healthy.
func (s *Service) Readiness(ctx context.Context) map[string]error {
	out := map[string]error{"database": s.Ping(ctx)}
	for name, check := range s.checks {
		out[name] = check.Ping(ctx)
	}
	return out
}
