package core

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"
)

// EphemeralStore is a minimal key-value interface used for short-lived flow state.
// Implementations should honor TTL on Set and treat missing keys as (found=false, err=nil).
type EphemeralStore interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Del(ctx context.Context, key string) error
}

// IsDevEnvironment reports whether the current ENV/APP_ENV/ENVIRONMENT is non-production.
func IsDevEnvironment() bool {
	return isDevEnvironment(getEnvironment())
}

func getEnvironment() string {
	env := os.Getenv("ENV")
	if env == "" {
		env = os.Getenv("APP_ENV")
	}
	if env == "" {
		env = os.Getenv("ENVIRONMENT")
	}
	return env
}

// isDevEnvironment returns true unless the environment is explicitly set to prod/production
func isDevEnvironment(env string) bool {
	e := strings.ToLower(strings.TrimSpace(env))
	return e != "prod" && e != "production"
}

// PutJSON stores value under key as JSON.
func PutJSON(ctx context.Context, store EphemeralStore, key string, value any, ttl time.Duration) error {
	if store == nil {
		return fmt.Errorf("ephemeral store unavailable")
	}
	b, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return store.Set(ctx, key, b, ttl)
}

// GetJSON loads key into out. A missing key reports (false, nil).
func GetJSON(ctx context.Context, store EphemeralStore, key string, out any) (bool, error) {
	if store == nil {
		return false, fmt.Errorf("ephemeral store unavailable")
	}
	b, ok, err := store.Get(ctx, key)
	if err != nil || !ok {
		return false, err
	}
	return true, json.Unmarshal(b, out)
}

// TakeJSON loads key into out and deletes it, for single-use records.
// Stores that implement Take get an atomic read-and-delete.
func TakeJSON(ctx context.Context, store EphemeralStore, key string, out any) (bool, error) {
	if t, ok := store.(interface {
		Take(ctx context.Context, key string) ([]byte, bool, error)
	}); ok {
		b, found, err := t.Take(ctx, key)
		if err != nil || !found {
			return false, err
		}
		return true, json.Unmarshal(b, out)
	}
	ok, err := GetJSON(ctx, store, key, out)
	if err != nil || !ok {
		return ok, err
	}
	if err := store.Del(ctx, key); err != nil {
		return true, err
	}
	return true, nil
}
