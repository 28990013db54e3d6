package secretstore

import (
	"fmt"

	settingsDomain "github.com/AzielCF/wa-amo-bridge/core/settings/domain"
	domainSecret "github.com/AzielCF/wa-amo-bridge/domains/secret"
	"github.com/AzielCF/wa-amo-bridge/infrastructure/valkey"
	"github.com/AzielCF/wa-amo-bridge/pkg/crypto"
	"github.com/sirupsen/logrus"
)

// Options carries every dependency a backend may need; unused ones may be nil.
type Options struct {
	Backend  string
	EnvFile  string
	Settings settingsDomain.ISettingsRepository
	Valkey   *valkey.Client
	Cipher   *crypto.Cipher
}

// New picks the backend named in opts.Backend.
func New(opts Options) (domainSecret.IStore, error) {
	switch opts.Backend {
	case domainSecret.BackendEnv, "":
		path := opts.EnvFile
		if path == "" {
			path = ".env"
		}
		return NewEnvFile(path), nil
	case domainSecret.BackendSettings:
		if opts.Settings == nil {
			return nil, fmt.Errorf("settings token store requires a database")
		}
		return NewSettings(opts.Settings, opts.Cipher), nil
	case domainSecret.BackendValkey:
		if opts.Valkey == nil {
			return nil, fmt.Errorf("valkey token store requires VALKEY_ENABLED=true")
		}
		return NewValkey(opts.Valkey, opts.Cipher), nil
	case domainSecret.BackendMemory:
		logrus.Warn("[SECRETS] using in-memory token store; rotated tokens are lost on restart")
		return NewMemory(nil), nil
	default:
		return nil, fmt.Errorf("unknown token store backend %q", opts.Backend)
	}
}
