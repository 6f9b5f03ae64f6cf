// internal/infrastructure/storage/store.go
package storage

import (
	"context"
	"encoding/json"
	"fmt"
)

// Store is durable client-local key/value storage. Values are opaque strings,
// usually JSON documents.
type Store interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, keys ...string) error
}

// GetJSON loads key into dest. It reports false when the key is absent.
func GetJSON(ctx context.Context, s Store, key string, dest interface{}) (bool, error) {
	raw, ok, err := s.Get(ctx, key)
	if err != nil || !ok {
		return false, err
	}
	if err := json.Unmarshal([]byte(raw), dest); err != nil {
		return false, fmt.Errorf("failed to decode %s: %w", key, err)
	}
	return true, nil
}

// SetJSON stores value under key as JSON
func SetJSON(ctx context.Context, s Store, key string, value interface{}) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", key, err)
	}
	return s.Set(ctx, key, string(data))
}
