package repos

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/yungbote/convoindex/internal/dbctx"
	"github.com/yungbote/convoindex/internal/domain"
	"github.com/yungbote/convoindex/internal/logger"
)

// SessionRepo manages MessageSession rows, the unit of embedding for chat
// (§3, §4.5).
type SessionRepo interface {
	Create(dbc dbctx.Context, s *domain.MessageSession) error
	GetByID(dbc dbctx.Context, id uuid.UUID) (*domain.MessageSession, error)
	GetBySpan(dbc dbctx.Context, channelID, startID, endID string) (*domain.MessageSession, error)
	GetContainingMessage(dbc dbctx.Context, messageID string) (*domain.MessageSession, error)
	Touch(dbc dbctx.Context, id uuid.UUID) error
	MarkIndexed(dbc dbctx.Context, id uuid.UUID, vectorKey string) error
	ClearVectorKey(dbc dbctx.Context, id uuid.UUID, expectedKey string) (bool, error)
	Delete(dbc dbctx.Context, id uuid.UUID) error
	DeleteIfEmpty(dbc dbctx.Context, id uuid.UUID) (bool, error)
	// DeleteByChannel removes every session row for a channel, used by the
	// channel-level purge path (§4.7 purge_channel_vectors).
	DeleteByChannel(dbc dbctx.Context, channelID string) error

	ListPendingUnindexed(dbc dbctx.Context, guildID string, limit int) ([]domain.MessageSession, error)
	ListStale(dbc dbctx.Context, guildID string, limit int) ([]domain.MessageSession, error)
}

type sessionRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewSessionRepo(db *gorm.DB, baseLog *logger.Logger) SessionRepo {
	return &sessionRepo{db: db, log: baseLog.With("repo", "SessionRepo")}
}

func (r *sessionRepo) Create(dbc dbctx.Context, s *domain.MessageSession) error {
	return tx(dbc, r.db).Create(s).Error
}

func (r *sessionRepo) GetByID(dbc dbctx.Context, id uuid.UUID) (*domain.MessageSession, error) {
	var s domain.MessageSession
	err := tx(dbc, r.db).Where("id = ?", id).First(&s).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	return &s, err
}

func (r *sessionRepo) GetBySpan(dbc dbctx.Context, channelID, startID, endID string) (*domain.MessageSession, error) {
	var s domain.MessageSession
	err := tx(dbc, r.db).
		Where("channel_id = ? AND start_message_id = ? AND end_message_id = ?", channelID, startID, endID).
		First(&s).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	return &s, err
}

func (r *sessionRepo) GetContainingMessage(dbc dbctx.Context, messageID string) (*domain.MessageSession, error) {
	var m domain.Message
	if err := tx(dbc, r.db).Where("id = ?", messageID).First(&m).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	if m.SessionID == nil {
		return nil, nil
	}
	return r.GetByID(dbc, *m.SessionID)
}

func (r *sessionRepo) Touch(dbc dbctx.Context, id uuid.UUID) error {
	return tx(dbc, r.db).Model(&domain.MessageSession{}).Where("id = ?", id).Update("updated_at", time.Now()).Error
}

func (r *sessionRepo) MarkIndexed(dbc dbctx.Context, id uuid.UUID, vectorKey string) error {
	return tx(dbc, r.db).Model(&domain.MessageSession{}).Where("id = ?", id).Updates(map[string]interface{}{
		"vector_key": vectorKey,
		"indexed_at": time.Now(),
	}).Error
}

func (r *sessionRepo) ClearVectorKey(dbc dbctx.Context, id uuid.UUID, expectedKey string) (bool, error) {
	res := tx(dbc, r.db).Model(&domain.MessageSession{}).
		Where("id = ? AND vector_key = ?", id, expectedKey).
		Update("vector_key", nil)
	return res.RowsAffected > 0, res.Error
}

func (r *sessionRepo) Delete(dbc dbctx.Context, id uuid.UUID) error {
	return tx(dbc, r.db).Where("id = ?", id).Delete(&domain.MessageSession{}).Error
}

// DeleteIfEmpty removes the session row when no non-deleted message still
// references it (§3 "deleted when all contained messages are deleted").
func (r *sessionRepo) DeleteIfEmpty(dbc dbctx.Context, id uuid.UUID) (bool, error) {
	var n int64
	if err := tx(dbc, r.db).Model(&domain.Message{}).
		Where("session_id = ? AND is_deleted = false", id).
		Count(&n).Error; err != nil {
		return false, err
	}
	if n > 0 {
		return false, nil
	}
	return true, r.Delete(dbc, id)
}

func (r *sessionRepo) DeleteByChannel(dbc dbctx.Context, channelID string) error {
	return tx(dbc, r.db).Where("channel_id = ?", channelID).Delete(&domain.MessageSession{}).Error
}

func (r *sessionRepo) ListPendingUnindexed(dbc dbctx.Context, guildID string, limit int) ([]domain.MessageSession, error) {
	var out []domain.MessageSession
	err := tx(dbc, r.db).
		Where("guild_id = ? AND vector_key IS NULL AND indexed_at IS NULL", guildID).
		Order("created_at ASC").Limit(limit).Find(&out).Error
	return out, err
}

func (r *sessionRepo) ListStale(dbc dbctx.Context, guildID string, limit int) ([]domain.MessageSession, error) {
	var out []domain.MessageSession
	err := tx(dbc, r.db).
		Where("guild_id = ? AND indexed_at IS NOT NULL AND updated_at > indexed_at", guildID).
		Order("updated_at ASC").Limit(limit).Find(&out).Error
	return out, err
}
