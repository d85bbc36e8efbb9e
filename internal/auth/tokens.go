package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/gatehouse-io/gatehouse/internal/shared"
)

// DefaultTokenTTL is how long an issued token stays valid without renewal.
const DefaultTokenTTL = 12 * time.Hour

// TokenStore keeps opaque bearer tokens in Redis. The token itself carries no
// claims; everything resolves through the store, so revocation is immediate.
type TokenStore struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewTokenStore constructs a TokenStore. A non-positive ttl falls back to
// DefaultTokenTTL.
func NewTokenStore(rdb *redis.Client, ttl time.Duration) *TokenStore {
	if ttl <= 0 {
		ttl = DefaultTokenTTL
	}
	return &TokenStore{rdb: rdb, ttl: ttl}
}

// TTL returns the configured token lifetime.
func (s *TokenStore) TTL() time.Duration {
	return s.ttl
}

func tokenKey(token string) string {
	return "auth:token:" + token
}

// Issue mints a fresh token bound to the principal.
func (s *TokenStore) Issue(ctx context.Context, principal shared.Principal) (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate token: %w", err)
	}
	token := hex.EncodeToString(buf)
	raw, err := json.Marshal(principal)
	if err != nil {
		return "", err
	}
	if err := s.rdb.Set(ctx, tokenKey(token), raw, s.ttl).Err(); err != nil {
		return "", fmt.Errorf("store token: %w", err)
	}
	return token, nil
}

// Resolve maps a presented token back to its principal. Unknown or expired
// tokens yield ErrUnauthorized.
func (s *TokenStore) Resolve(ctx context.Context, token string) (*shared.Principal, error) {
	raw, err := s.rdb.Get(ctx, tokenKey(token)).Bytes()
	if err == redis.Nil {
		return nil, shared.ErrUnauthorized
	}
	if err != nil {
		return nil, fmt.Errorf("resolve token: %w", err)
	}
	var principal shared.Principal
	if err := json.Unmarshal(raw, &principal); err != nil {
		return nil, shared.ErrUnauthorized
	}
	return &principal, nil
}

// Revoke invalidates a token immediately.
func (s *TokenStore) Revoke(ctx context.Context, token string) error {
	return s.rdb.Del(ctx, tokenKey(token)).Err()
}
