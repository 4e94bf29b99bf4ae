package store

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/levenlabs/go-lflag"
)

// Store is the flat key/value settings port every component persists
// through. Keys are flat strings, values are JSON-serializable. It is
// always passed in as a capability, never reached for globally.
type Store interface {
	// Get returns the raw JSON value at key. The bool is false when the
	// key has never been written.
	Get(ctx context.Context, key string) (json.RawMessage, bool, error)

	// Set writes value (JSON-marshaled) at key.
	Set(ctx context.Context, key string, value any) error

	// Keys lists all stored keys with the given prefix, sorted.
	Keys(ctx context.Context, prefix string) ([]string, error)

	// Lifecycle
	Close() error
}

// GetJSON reads key and unmarshals it into v. It returns false when the key
// is unset, leaving v untouched.
func GetJSON(ctx context.Context, s Store, key string, v any) (bool, error) {
	raw, ok, err := s.Get(ctx, key)
	if err != nil {
		return false, err
	}
	if !ok {
		return false, nil
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return false, fmt.Errorf("failed to unmarshal value at %q: %w", key, err)
	}
	return true, nil
}

// Configured sets up the Store based on flags.
func Configured() Store {
	provider := lflag.String("store-provider", "firestore", "Settings store to use (available: firestore, memory)")

	var p struct{ Store }

	fs := configuredFirestore()

	lflag.Do(func() {
		switch *provider {
		case "firestore":
			if err := fs.Validate(); err != nil {
				panic(fmt.Sprintf("firestore validation failed: %v", err))
			}
			p.Store = fs
			if err := fs.Init(context.Background()); err != nil {
				panic(fmt.Sprintf("firestore init failed: %v", err))
			}
		case "memory":
			p.Store = NewMemory()
		default:
			panic(fmt.Sprintf("unknown store provider: %s", *provider))
		}
	})

	return &p
}
