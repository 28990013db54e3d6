package secretstore

import (
	"context"

	settingsDomain "github.com/AzielCF/wa-amo-bridge/core/settings/domain"
	"github.com/AzielCF/wa-amo-bridge/pkg/crypto"
)

// Settings stores secrets in the global_settings table, sealed with the app secret key.
type Settings struct {
	repo   settingsDomain.ISettingsRepository
	cipher *crypto.Cipher
}

func NewSettings(repo settingsDomain.ISettingsRepository, cipher *crypto.Cipher) *Settings {
	return &Settings{repo: repo, cipher: cipher}
}

func (s *Settings) Get(ctx context.Context, key string) (string, error) {
	raw, err := s.repo.Get(ctx, key)
	if err != nil || raw == "" {
		return raw, err
	}
	return s.cipher.Open(raw)
}

func (s *Settings) Set(ctx context.Context, key string, value string) error {
	sealed, err := s.cipher.Seal(value)
	if err != nil {
		return err
	}
	return s.repo.Set(ctx, key, sealed)
}
