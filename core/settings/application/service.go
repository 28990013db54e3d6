package application

import (
	"context"
	"strconv"

	"github.com/AzielCF/wa-amo-bridge/core/settings/domain"
	"github.com/AzielCF/wa-amo-bridge/core/settings/infrastructure"
	"gorm.io/gorm"
)

type SettingsService struct {
	repo domain.ISettingsRepository
}

func NewSettingsService(db *gorm.DB) *SettingsService {
	return &SettingsService{
		repo: infrastructure.NewGlobalSettingsGormRepository(db),
	}
}

// NewSettingsServiceWithRepo is used when the repository is shared with other components.
func NewSettingsServiceWithRepo(repo domain.ISettingsRepository) *SettingsService {
	return &SettingsService{repo: repo}
}

// CRMRouting overrides the pipeline/status used for new leads. Nil means
// "use the value from the environment".
type CRMRouting struct {
	PipelineID *int64 `json:"pipeline_id,omitempty"`
	StatusID   *int64 `json:"status_id,omitempty"`
}

func (s *SettingsService) InitSchema(ctx context.Context) error {
	return s.repo.InitSchema(ctx)
}

func (s *SettingsService) GetCRMRouting(ctx context.Context) (*CRMRouting, error) {
	r := &CRMRouting{}

	if val, err := s.repo.Get(ctx, domain.KeyAmoPipelineID); err != nil {
		return nil, err
	} else if n, err := strconv.ParseInt(val, 10, 64); err == nil && n > 0 {
		r.PipelineID = &n
	}
	if val, err := s.repo.Get(ctx, domain.KeyAmoStatusID); err != nil {
		return nil, err
	} else if n, err := strconv.ParseInt(val, 10, 64); err == nil && n > 0 {
		r.StatusID = &n
	}
	return r, nil
}

// SetCRMRouting stores the overrides; a zero or negative value clears the key.
func (s *SettingsService) SetCRMRouting(ctx context.Context, pipelineID, statusID int64) error {
	if err := s.setOrClear(ctx, domain.KeyAmoPipelineID, pipelineID); err != nil {
		return err
	}
	return s.setOrClear(ctx, domain.KeyAmoStatusID, statusID)
}

func (s *SettingsService) setOrClear(ctx context.Context, key string, v int64) error {
	if v <= 0 {
		return s.repo.Delete(ctx, key)
	}
	return s.repo.Set(ctx, key, strconv.FormatInt(v, 10))
}
