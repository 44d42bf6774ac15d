package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/vulnwarden/api/pkg/logger"
)

const prefixScannerToken = "scanner:token"

// TokenStore caches scanner session tokens per credential key so parallel
// jobs share one upstream session instead of re-authenticating.
type TokenStore struct {
	client *Client
	logger *logger.Logger
}

// NewTokenStore creates a new token store.
func NewTokenStore(client *Client, log *logger.Logger) (*TokenStore, error) {
	if client == nil {
		return nil, errors.New("redis client is required")
	}
	if log == nil {
		return nil, errors.New("logger is required")
	}

	return &TokenStore{
		client: client,
		logger: log,
	}, nil
}

// Get returns the cached token for the credential key, or ErrKeyNotFound.
func (ts *TokenStore) Get(ctx context.Context, key string) (string, error) {
	if key == "" {
		return "", errors.New("key is required")
	}

	val, err := ts.client.client.Get(ctx, fmt.Sprintf("%s:%s", prefixScannerToken, key)).Result()
	if errors.Is(err, redis.Nil) {
		return "", ErrKeyNotFound
	}
	if err != nil {
		return "", fmt.Errorf("get token: %w", err)
	}
	return val, nil
}

// Set stores a token with the given TTL.
func (ts *TokenStore) Set(ctx context.Context, key, token string, ttl time.Duration) error {
	if key == "" {
		return errors.New("key is required")
	}
	if ttl <= 0 {
		return errors.New("TTL must be positive")
	}

	if err := ts.client.client.Set(ctx, fmt.Sprintf("%s:%s", prefixScannerToken, key), token, ttl).Err(); err != nil {
		return fmt.Errorf("store token: %w", err)
	}

	ts.logger.Debug("scanner token cached", "key", key, "ttl", ttl)
	return nil
}

// Delete evicts a cached token. Used when the upstream rejects the session.
func (ts *TokenStore) Delete(ctx context.Context, key string) error {
	if key == "" {
		return errors.New("key is required")
	}

	if err := ts.client.client.Del(ctx, fmt.Sprintf("%s:%s", prefixScannerToken, key)).Err(); err != nil {
		return fmt.Errorf("delete token: %w", err)
	}

	ts.logger.Debug("scanner token evicted", "key", key)
	return nil
}
