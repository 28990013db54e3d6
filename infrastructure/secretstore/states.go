package secretstore

import (
	"context"
	"sync"
	"time"

	domainSecret "github.com/AzielCF/wa-amo-bridge/domains/secret"
	"github.com/AzielCF/wa-amo-bridge/infrastructure/valkey"
)

// NewStateStore shares states through Valkey when available so a callback
// may land on any server; otherwise they live in this process.
func NewStateStore(client *valkey.Client) domainSecret.IStateStore {
	if client != nil {
		return &ValkeyStates{client: client}
	}
	return NewMemoryStates()
}

type MemoryStates struct {
	mu      sync.Mutex
	expires map[string]time.Time
	now     func() time.Time
}

func NewMemoryStates() *MemoryStates {
	return &MemoryStates{expires: make(map[string]time.Time), now: time.Now}
}

func (s *MemoryStates) Save(_ context.Context, value string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	for k, exp := range s.expires {
		if !now.Before(exp) {
			delete(s.expires, k)
		}
	}
	s.expires[value] = now.Add(ttl)
	return nil
}

func (s *MemoryStates) Consume(_ context.Context, value string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	exp, ok := s.expires[value]
	if !ok {
		return false, nil
	}
	delete(s.expires, value)
	return s.now().Before(exp), nil
}

// ValkeyStates stores each value under "<prefix>oauth_state:<value>" with a TTL.
type ValkeyStates struct {
	client *valkey.Client
}

func (s *ValkeyStates) Save(ctx context.Context, value string, ttl time.Duration) error {
	return s.client.Set(ctx, s.client.Key("oauth_state", value), "1", ttl)
}

func (s *ValkeyStates) Consume(ctx context.Context, value string) (bool, error) {
	_, ok, err := s.client.GetDel(ctx, s.client.Key("oauth_state", value))
	return ok, err
}
