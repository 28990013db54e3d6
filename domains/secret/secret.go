package secret

import (
	"context"
	"time"
)

// IStore is a minimal key/value secret store. Get returns "" and a nil error
// for unknown keys.
type IStore interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value string) error
}

// Backend names accepted by AMO_TOKEN_STORE.
const (
	BackendEnv      = "env"
	BackendSettings = "settings"
	BackendValkey   = "valkey"
	BackendMemory   = "memory"
)

// IStateStore holds one-time values such as OAuth state. Consume reports
// whether the value was saved and not yet expired, and removes it.
type IStateStore interface {
	Save(ctx context.Context, value string, ttl time.Duration) error
	Consume(ctx context.Context, value string) (bool, error)
}
