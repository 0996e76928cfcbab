// Package sessions tracks signed-out session tokens in Redis so that a token
// stops authenticating as soon as its holder signs out, not when it expires.
package sessions

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RevocationList records revoked token ids until their natural expiry.
type RevocationList struct {
	client *redis.Client
	prefix string
	now    func() time.Time
}

// NewRevocationList wraps a Redis client. prefix namespaces the keys.
func NewRevocationList(client *redis.Client, prefix string) *RevocationList {
	if prefix == "" {
		prefix = "cuecast"
	}
	return &RevocationList{client: client, prefix: prefix, now: time.Now}
}

// Connect dials Redis at addr and verifies the connection.
func Connect(ctx context.Context, addr string) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{Addr: addr})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return client, nil
}

func (l *RevocationList) key(tokenID string) string {
	return l.prefix + ":revoked:" + tokenID
}

// Revoke marks tokenID revoked until expiresAt. Already-expired tokens are
// not stored.
func (l *RevocationList) Revoke(ctx context.Context, tokenID string, expiresAt time.Time) error {
	ttl := expiresAt.Sub(l.now())
	if ttl <= 0 {
		return nil
	}
	if err := l.client.Set(ctx, l.key(tokenID), "1", ttl).Err(); err != nil {
		return fmt.Errorf("revoke session: %w", err)
	}
	return nil
}

// IsRevoked reports whether tokenID was revoked.
func (l *RevocationList) IsRevoked(ctx context.Context, tokenID string) (bool, error) {
	err := l.client.Get(ctx, l.key(tokenID)).Err()
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, redis.Nil):
		return false, nil
	default:
		return false, fmt.Errorf("check revocation: %w", err)
	}
}

// Ping reports whether Redis is reachable.
func (l *RevocationList) Ping(ctx context.Context) error {
	return l.client.Ping(ctx).Err()
}
