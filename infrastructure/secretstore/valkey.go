package secretstore

import (
	"context"

	"github.com/AzielCF/wa-amo-bridge/infrastructure/valkey"
	"github.com/AzielCF/wa-amo-bridge/pkg/crypto"
)

// Valkey keeps secrets under "<prefix>secrets:<key>" so every server sees a
// rotation as soon as it is written.
type Valkey struct {
	client *valkey.Client
	cipher *crypto.Cipher
}

func NewValkey(client *valkey.Client, cipher *crypto.Cipher) *Valkey {
	return &Valkey{client: client, cipher: cipher}
}

func (s *Valkey) Get(ctx context.Context, key string) (string, error) {
	raw, ok, err := s.client.Get(ctx, s.client.Key("secrets", key))
	if err != nil || !ok {
		return "", err
	}
	return s.cipher.Open(raw)
}

func (s *Valkey) Set(ctx context.Context, key string, value string) error {
	sealed, err := s.cipher.Seal(value)
	if err != nil {
		return err
	}
	return s.client.Set(ctx, s.client.Key("secrets", key), sealed, 0)
}
