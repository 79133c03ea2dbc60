package repos

import (
	"gorm.io/gorm"

	"github.com/yungbote/convoindex/internal/dbctx"
	"github.com/yungbote/convoindex/internal/domain"
	"github.com/yungbote/convoindex/internal/logger"
)

// ManifestRepo persists the single-row embedder identity record checked at
// startup (SPEC_FULL §5).
type ManifestRepo interface {
	Get(dbc dbctx.Context) (*domain.RuntimeManifest, error)
	Upsert(dbc dbctx.Context, m *domain.RuntimeManifest) error
}

type manifestRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewManifestRepo(db *gorm.DB, baseLog *logger.Logger) ManifestRepo {
	return &manifestRepo{db: db, log: baseLog.With("repo", "ManifestRepo")}
}

func (r *manifestRepo) Get(dbc dbctx.Context) (*domain.RuntimeManifest, error) {
	var m domain.RuntimeManifest
	err := tx(dbc, r.db).Where("id = 1").First(&m).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	return &m, err
}

func (r *manifestRepo) Upsert(dbc dbctx.Context, m *domain.RuntimeManifest) error {
	m.ID = 1
	return tx(dbc, r.db).Save(m).Error
}
