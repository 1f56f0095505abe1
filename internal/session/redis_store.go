// Package session keeps refresh sessions and revoked access tokens in Redis.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"sharedlists/api/internal/store"

	"github.com/redis/go-redis/v9"
)

// ErrSessionNotFound is returned for unknown, expired or revoked refresh tokens.
var ErrSessionNotFound = errors.New("refresh session not found or expired")

// TokenData holds the data stored for each refresh token.
type TokenData struct {
	UID         string    `json:"uid"`
	Email       string    `json:"email"`
	DisplayName string    `json:"display_name"`
	CreatedAt   time.Time `json:"created_at"`
}

type RedisStore struct {
	client        *redis.Client
	prefix        string
	revokedPrefix string
}

// NewRedisStore connects to redisURL and checks the connection.
func NewRedisStore(redisURL string) (*RedisStore, error) {
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
	return NewRedisStoreWithClient(client), nil
}

// NewRedisStoreWithClient shares an existing client, e.g. with the change feed.
func NewRedisStoreWithClient(client *redis.Client) *RedisStore {
	return &RedisStore{
		client:        client,
		prefix:        "refresh:",
		revokedPrefix: "revoked:",
	}
}

// Client exposes the underlying connection so other Redis users can share it.
func (s *RedisStore) Client() *redis.Client {
	return s.client
}

func (s *RedisStore) key(tokenHash string) string {
	return s.prefix + tokenHash
}

// SaveRefreshSession stores a refresh token until expiresAt.
func (s *RedisStore) SaveRefreshSession(ctx context.Context, tokenHash string, profile store.UserProfile, expiresAt time.Time) error {
	data := TokenData{
		UID:         profile.UID,
		Email:       profile.Email,
		DisplayName: profile.DisplayName,
		CreatedAt:   time.Now(),
	}
	jsonData, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("marshal token data: %w", err)
	}

	ttl := time.Until(expiresAt)
	if ttl <= 0 {
		ttl = 30 * 24 * time.Hour
	}
	if err := s.client.Set(ctx, s.key(tokenHash), jsonData, ttl).Err(); err != nil {
		return fmt.Errorf("save refresh token: %w", err)
	}
	return nil
}

// LookupRefreshSession returns the identity bound to a refresh token.
func (s *RedisStore) LookupRefreshSession(ctx context.Context, tokenHash string) (store.UserProfile, error) {
	jsonData, err := s.client.Get(ctx, s.key(tokenHash)).Result()
	if errors.Is(err, redis.Nil) {
		return store.UserProfile{}, ErrSessionNotFound
	}
	if err != nil {
		return store.UserProfile{}, fmt.Errorf("lookup refresh token: %w", err)
	}

	var data TokenData
	if err := json.Unmarshal([]byte(jsonData), &data); err != nil {
		return store.UserProfile{}, fmt.Errorf("unmarshal token data: %w", err)
	}
	return store.UserProfile{
		UID:         data.UID,
		Email:       data.Email,
		DisplayName: data.DisplayName,
	}, nil
}

// RevokeRefreshSession deletes a refresh token. Unknown tokens are ignored.
func (s *RedisStore) RevokeRefreshSession(ctx context.Context, tokenHash string) error {
	if err := s.client.Del(ctx, s.key(tokenHash)).Err(); err != nil {
		return fmt.Errorf("revoke refresh token: %w", err)
	}
	return nil
}

// RevokeAccessToken denies jti until the token would have expired anyway.
func (s *RedisStore) RevokeAccessToken(ctx context.Context, jti string, exp time.Time) error {
	ttl := time.Until(exp)
	if ttl <= 0 {
		return nil
	}
	if err := s.client.Set(ctx, s.revokedPrefix+jti, "1", ttl).Err(); err != nil {
		return fmt.Errorf("revoke access token: %w", err)
	}
	return nil
}

func (s *RedisStore) IsAccessTokenRevoked(ctx context.Context, jti string) (bool, error) {
	n, err := s.client.Exists(ctx, s.revokedPrefix+jti).Result()
	if err != nil {
		return false, fmt.Errorf("check revoked token: %w", err)
	}
	return n > 0, nil
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}

func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}
