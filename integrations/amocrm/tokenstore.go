package amocrm

import (
	"context"
	"fmt"
	"sync"
	"time"

	domainCRM "github.com/AzielCF/wa-amo-bridge/domains/crm"
	domainSecret "github.com/AzielCF/wa-amo-bridge/domains/secret"
	"github.com/sirupsen/logrus"
)

// Keys under which the token pair is persisted in the secret store.
const (
	KeyAccessToken  = "AMO_ACCESS_TOKEN"
	KeyRefreshToken = "AMO_REFRESH_TOKEN"
	KeyExpiresAt    = "AMO_TOKEN_EXPIRES_AT"
)

// TokenStore owns the in-memory token pair and writes every rotation through
// to a secret store. It does not de-duplicate concurrent refreshes; the last
// Replace wins.
type TokenStore struct {
	mu      sync.RWMutex
	pair    domainCRM.TokenPair
	state   domainCRM.TokenState
	secrets domainSecret.IStore
}

// NewTokenStore seeds the store with tokens from configuration. secrets may be nil.
func NewTokenStore(secrets domainSecret.IStore, initial domainCRM.TokenPair) *TokenStore {
	s := &TokenStore{secrets: secrets, pair: initial}
	s.state = stateFor(initial)
	return s
}

// Load overlays values found in the secret store on top of the seed pair.
func (s *TokenStore) Load(ctx context.Context) error {
	if s.secrets == nil {
		return nil
	}

	access, err := s.secrets.Get(ctx, KeyAccessToken)
	if err != nil {
		return fmt.Errorf("load access token: %w", err)
	}
	refresh, err := s.secrets.Get(ctx, KeyRefreshToken)
	if err != nil {
		return fmt.Errorf("load refresh token: %w", err)
	}
	expires, err := s.secrets.Get(ctx, KeyExpiresAt)
	if err != nil {
		return fmt.Errorf("load token expiry: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if access != "" {
		s.pair.AccessToken = access
	}
	if refresh != "" {
		s.pair.RefreshToken = refresh
	}
	if expires != "" {
		if t, err := time.Parse(time.RFC3339, expires); err == nil {
			s.pair.ExpiresAt = &t
		}
	}
	s.state = stateFor(s.pair)
	return nil
}

// Current returns a copy of the token pair.
func (s *TokenStore) Current() domainCRM.TokenPair {
	s.mu.RLock()
	defer s.mu.RUnlock()
	pair := s.pair
	if pair.ExpiresAt != nil {
		t := *pair.ExpiresAt
		pair.ExpiresAt = &t
	}
	return pair
}

func (s *TokenStore) State() domainCRM.TokenState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

func (s *TokenStore) AccessToken() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.pair.AccessToken
}

func (s *TokenStore) RefreshToken() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.pair.RefreshToken
}

// MarkUnauthorized records that the current access token was rejected.
func (s *TokenStore) MarkUnauthorized() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != domainCRM.TokenStateRefreshing {
		s.state = domainCRM.TokenStateUnauthorized
	}
}

// beginRefresh moves to refreshing and returns the refresh token to exchange.
func (s *TokenStore) beginRefresh() (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pair.RefreshToken == "" {
		return "", false
	}
	s.state = domainCRM.TokenStateRefreshing
	return s.pair.RefreshToken, true
}

// abortRefresh is called when the token endpoint rejected the exchange.
func (s *TokenStore) abortRefresh() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == domainCRM.TokenStateRefreshing {
		s.state = domainCRM.TokenStateUnauthorized
	}
}

// Replace swaps the pair in memory and persists it. A persistence failure is
// returned but the new pair stays active in memory.
func (s *TokenStore) Replace(ctx context.Context, pair domainCRM.TokenPair) error {
	s.mu.Lock()
	if pair.RefreshToken == "" {
		pair.RefreshToken = s.pair.RefreshToken
	}
	s.pair = pair
	s.state = stateFor(pair)
	s.mu.Unlock()

	if s.secrets == nil {
		return nil
	}

	values := map[string]string{
		KeyAccessToken:  pair.AccessToken,
		KeyRefreshToken: pair.RefreshToken,
	}
	if pair.ExpiresAt != nil {
		values[KeyExpiresAt] = pair.ExpiresAt.UTC().Format(time.RFC3339)
	}
	for _, key := range []string{KeyAccessToken, KeyRefreshToken, KeyExpiresAt} {
		v, ok := values[key]
		if !ok {
			continue
		}
		if err := s.secrets.Set(ctx, key, v); err != nil {
			logrus.WithError(err).Errorf("[AMOCRM] failed to persist %s", key)
			return fmt.Errorf("persist %s: %w", key, err)
		}
	}
	return nil
}

func stateFor(pair domainCRM.TokenPair) domainCRM.TokenState {
	if pair.AccessToken == "" && pair.RefreshToken == "" {
		return domainCRM.TokenStateNone
	}
	if pair.AccessToken == "" {
		return domainCRM.TokenStateUnauthorized
	}
	return domainCRM.TokenStateValid
}
