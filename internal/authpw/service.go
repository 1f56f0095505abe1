// Package authpw provides email/password sign-up and sign-in.
package authpw

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"sharedlists/api/internal/store"
	"sharedlists/api/internal/util"

	"golang.org/x/crypto/bcrypt"
)

var (
	ErrMissingFields      = errors.New("email and password are required")
	ErrWeakPassword       = errors.New("password must be at least 8 characters")
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrEmailTaken         = store.ErrEmailTaken
)

// UserStore defines the storage interface for auth.
type UserStore interface {
	GetCredentialByEmail(ctx context.Context, email string) (store.Credential, error)
	CreateCredential(ctx context.Context, credential store.Credential, profile store.UserProfile) error
	GetUserProfile(ctx context.Context, uid string) (store.UserProfile, error)
}

type Service struct {
	store UserStore
	cost  int
}

func NewService(store UserStore) *Service {
	return &Service{store: store, cost: bcrypt.DefaultCost}
}

type SignUpRequest struct {
	Email       string
	Password    string
	DisplayName string
}

// SignUp creates a credential and the matching user profile. The display
// name defaults to the local part of the email.
func (s *Service) SignUp(ctx context.Context, req SignUpRequest) (store.UserProfile, error) {
	email := strings.TrimSpace(req.Email)
	if email == "" || req.Password == "" {
		return store.UserProfile{}, ErrMissingFields
	}
	if len(req.Password) < 8 {
		return store.UserProfile{}, ErrWeakPassword
	}

	if _, err := s.store.GetCredentialByEmail(ctx, email); err == nil {
		return store.UserProfile{}, ErrEmailTaken
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), s.cost)
	if err != nil {
		return store.UserProfile{}, fmt.Errorf("hash password: %w", err)
	}

	displayName := strings.TrimSpace(req.DisplayName)
	if displayName == "" {
		displayName = DefaultDisplayName(email)
	}
	profile := store.UserProfile{
		UID:         util.NewID("u"),
		Email:       email,
		EmailLower:  strings.ToLower(email),
		DisplayName: displayName,
	}
	credential := store.Credential{UID: profile.UID, Email: email, PasswordHash: string(hash)}
	if err := s.store.CreateCredential(ctx, credential, profile); err != nil {
		if errors.Is(err, store.ErrEmailTaken) {
			return store.UserProfile{}, ErrEmailTaken
		}
		return store.UserProfile{}, fmt.Errorf("create credential: %w", err)
	}
	return profile, nil
}

type SignInRequest struct {
	Email    string
	Password string
}

// SignIn checks the password and returns the stored profile.
func (s *Service) SignIn(ctx context.Context, req SignInRequest) (store.UserProfile, error) {
	email := strings.TrimSpace(req.Email)
	if email == "" || req.Password == "" {
		return store.UserProfile{}, ErrMissingFields
	}

	credential, err := s.store.GetCredentialByEmail(ctx, email)
	if err != nil {
		return store.UserProfile{}, ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(credential.PasswordHash), []byte(req.Password)); err != nil {
		return store.UserProfile{}, ErrInvalidCredentials
	}

	profile, err := s.store.GetUserProfile(ctx, credential.UID)
	if err != nil {
		return store.UserProfile{}, fmt.Errorf("load profile: %w", err)
	}
	return profile, nil
}

// DefaultDisplayName derives a name from an email address.
func DefaultDisplayName(email string) string {
	local, _, _ := strings.Cut(strings.TrimSpace(email), "@")
	if local == "" {
		return "User"
	}
	return local
}
