package repos

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/yungbote/convoindex/internal/dbctx"
	"github.com/yungbote/convoindex/internal/domain"
	"github.com/yungbote/convoindex/internal/logger"
)

// PriorMessageState is what upsert_message returns about the row it
// replaced, per §4.1.
type PriorMessageState struct {
	Existed   bool
	Content   string
	VectorKey *string
	UpdatedAt time.Time
	IsDeleted bool
}

type MessageRepo interface {
	// UpsertMessage inserts or updates by id, row-locked per id (§5
	// "RS updates are serialized by id"). Idempotent: replaying the same
	// content is a no-op beyond returning the prior state.
	UpsertMessage(dbc dbctx.Context, m *domain.Message) (PriorMessageState, error)

	GetByID(dbc dbctx.Context, guildID, id string) (*domain.Message, error)

	// SoftDeleteMessages sets is_deleted/deleted_at/content="[deleted]" for
	// the given ids and returns the subset whose vector_key was non-null
	// (these need a VS purge), per §4.1.
	SoftDeleteMessages(dbc dbctx.Context, guildID string, ids []string) ([]domain.Message, error)

	BulkSoftDeleteChannelMessages(dbc dbctx.Context, guildID, channelID string) ([]domain.Message, error)

	MarkIndexed(dbc dbctx.Context, id, vectorKey string) error

	// ClearVectorKey nulls vector_key only if the current value equals
	// expectedKey (compare-and-swap), per §4.1.
	ClearVectorKey(dbc dbctx.Context, id, expectedKey string) (bool, error)

	SetSessionID(dbc dbctx.Context, ids []string, sessionID *uuid.UUID) error

	// ClearChannelVectorState nulls vector_key, indexed_at and session_id for
	// every message in a channel, used by the channel-level purge path
	// (§4.7 purge_channel_vectors) once the Vector Store side is gone.
	ClearChannelVectorState(dbc dbctx.Context, guildID, channelID string) error

	ListPendingUnindexed(dbc dbctx.Context, guildID string, limit int) ([]domain.Message, error)
	ListStale(dbc dbctx.Context, guildID string, limit int) ([]domain.Message, error)
	ListPendingDelete(dbc dbctx.Context, guildID string, limit int) ([]domain.Message, error)

	// CountIndexed is the numerator of the Reconciler's sync-health metric
	// (§4.8): messages with a live vector.
	CountIndexed(dbc dbctx.Context, guildID string) (int64, error)

	// ReadSessionWindow loads up to limit messages centered on aroundID (half
	// before, half after by timestamp); with aroundID empty it returns the
	// channel's most recent limit messages instead, per §4.7's sessionize
	// algorithm.
	ReadSessionWindow(dbc dbctx.Context, channelID string, aroundID string, untilTime time.Time, limit int) ([]domain.Message, error)

	ListByChannelPaged(dbc dbctx.Context, guildID, channelID string, afterTimestamp time.Time, limit int) ([]domain.Message, error)

	// ListBySessionID returns every non-deleted message belonging to a
	// session, ordered by timestamp, for re-enrichment at embed time.
	ListBySessionID(dbc dbctx.Context, sessionID uuid.UUID) ([]domain.Message, error)
}

type messageRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewMessageRepo(db *gorm.DB, baseLog *logger.Logger) MessageRepo {
	return &messageRepo{db: db, log: baseLog.With("repo", "MessageRepo")}
}

func (r *messageRepo) UpsertMessage(dbc dbctx.Context, m *domain.Message) (PriorMessageState, error) {
	var prior PriorMessageState
	err := r.db.WithContext(dbc.Ctx).Transaction(func(txx *gorm.DB) error {
		var existing domain.Message
		err := txx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("id = ? AND guild_id = ?", m.ID, m.GuildID).
			First(&existing).Error
		if err != nil && err != gorm.ErrRecordNotFound {
			return err
		}
		if err == nil {
			prior = PriorMessageState{
				Existed:   true,
				Content:   existing.Content,
				VectorKey: existing.VectorKey,
				UpdatedAt: existing.UpdatedAt,
				IsDeleted: existing.IsDeleted,
			}
			if existing.Content == m.Content {
				// Idempotent replay: no content change, nothing to update.
				return nil
			}
			return txx.Model(&domain.Message{}).
				Where("id = ? AND guild_id = ?", m.ID, m.GuildID).
				Updates(map[string]interface{}{
					"content":    m.Content,
					"updated_at": time.Now(),
				}).Error
		}
		return txx.Create(m).Error
	})
	return prior, err
}

func (r *messageRepo) GetByID(dbc dbctx.Context, guildID, id string) (*domain.Message, error) {
	var m domain.Message
	err := tx(dbc, r.db).Where("guild_id = ? AND id = ?", guildID, id).First(&m).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	return &m, err
}

func (r *messageRepo) SoftDeleteMessages(dbc dbctx.Context, guildID string, ids []string) ([]domain.Message, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var affected []domain.Message
	err := r.db.WithContext(dbc.Ctx).Transaction(func(txx *gorm.DB) error {
		if err := txx.Where("guild_id = ? AND id IN ? AND vector_key IS NOT NULL", guildID, ids).
			Find(&affected).Error; err != nil {
			return err
		}
		now := time.Now()
		return txx.Model(&domain.Message{}).
			Where("guild_id = ? AND id IN ?", guildID, ids).
			Updates(map[string]interface{}{
				"is_deleted": true,
				"deleted_at": now,
				"content":    "[deleted]",
				"updated_at": now,
			}).Error
	})
	return affected, err
}

func (r *messageRepo) BulkSoftDeleteChannelMessages(dbc dbctx.Context, guildID, channelID string) ([]domain.Message, error) {
	var affected []domain.Message
	err := r.db.WithContext(dbc.Ctx).Transaction(func(txx *gorm.DB) error {
		if err := txx.Where("guild_id = ? AND channel_id = ? AND vector_key IS NOT NULL AND is_deleted = false", guildID, channelID).
			Find(&affected).Error; err != nil {
			return err
		}
		now := time.Now()
		return txx.Model(&domain.Message{}).
			Where("guild_id = ? AND channel_id = ? AND is_deleted = false", guildID, channelID).
			Updates(map[string]interface{}{
				"is_deleted": true,
				"deleted_at": now,
				"content":    "[deleted]",
				"updated_at": now,
			}).Error
	})
	return affected, err
}

func (r *messageRepo) MarkIndexed(dbc dbctx.Context, id, vectorKey string) error {
	res := tx(dbc, r.db).Model(&domain.Message{}).
		Where("id = ? AND is_deleted = false", id).
		Updates(map[string]interface{}{
			"vector_key": vectorKey,
			"indexed_at": time.Now(),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return errNotFoundOrDeleted
	}
	return nil
}

func (r *messageRepo) ClearVectorKey(dbc dbctx.Context, id, expectedKey string) (bool, error) {
	res := tx(dbc, r.db).Model(&domain.Message{}).
		Where("id = ? AND vector_key = ?", id, expectedKey).
		Update("vector_key", nil)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *messageRepo) SetSessionID(dbc dbctx.Context, ids []string, sessionID *uuid.UUID) error {
	if len(ids) == 0 {
		return nil
	}
	return tx(dbc, r.db).Model(&domain.Message{}).Where("id IN ?", ids).Update("session_id", sessionID).Error
}

func (r *messageRepo) ClearChannelVectorState(dbc dbctx.Context, guildID, channelID string) error {
	return tx(dbc, r.db).Model(&domain.Message{}).
		Where("guild_id = ? AND channel_id = ?", guildID, channelID).
		Updates(map[string]interface{}{
			"vector_key": nil,
			"indexed_at": nil,
			"session_id": nil,
		}).Error
}

func (r *messageRepo) ListPendingUnindexed(dbc dbctx.Context, guildID string, limit int) ([]domain.Message, error) {
	var out []domain.Message
	err := tx(dbc, r.db).
		Joins("JOIN channel ON channel.id = message.channel_id").
		Where("message.guild_id = ? AND message.is_deleted = false AND message.vector_key IS NULL AND message.indexed_at IS NULL AND channel.is_indexed = true", guildID).
		Order("message.timestamp ASC").
		Limit(limit).
		Find(&out).Error
	return out, err
}

func (r *messageRepo) ListStale(dbc dbctx.Context, guildID string, limit int) ([]domain.Message, error) {
	var out []domain.Message
	err := tx(dbc, r.db).
		Where("guild_id = ? AND is_deleted = false AND indexed_at IS NOT NULL AND updated_at > indexed_at", guildID).
		Order("updated_at ASC").
		Limit(limit).
		Find(&out).Error
	return out, err
}

func (r *messageRepo) ListPendingDelete(dbc dbctx.Context, guildID string, limit int) ([]domain.Message, error) {
	var out []domain.Message
	err := tx(dbc, r.db).
		Where("guild_id = ? AND is_deleted = true AND vector_key IS NOT NULL", guildID).
		Order("deleted_at ASC").
		Limit(limit).
		Find(&out).Error
	return out, err
}

func (r *messageRepo) CountIndexed(dbc dbctx.Context, guildID string) (int64, error) {
	var n int64
	err := tx(dbc, r.db).Model(&domain.Message{}).
		Where("guild_id = ? AND is_deleted = false AND vector_key IS NOT NULL", guildID).
		Count(&n).Error
	return n, err
}

func (r *messageRepo) ReadSessionWindow(dbc dbctx.Context, channelID string, aroundID string, untilTime time.Time, limit int) ([]domain.Message, error) {
	if aroundID == "" {
		var out []domain.Message
		q := tx(dbc, r.db).Where("channel_id = ? AND is_deleted = false", channelID)
		if !untilTime.IsZero() {
			q = q.Where("timestamp <= ?", untilTime)
		}
		if err := q.Order("timestamp DESC").Limit(limit).Find(&out).Error; err != nil {
			return nil, err
		}
		reverseMessages(out)
		return out, nil
	}

	var anchor domain.Message
	err := tx(dbc, r.db).Where("channel_id = ? AND id = ?", channelID, aroundID).First(&anchor).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	half := limit / 2
	var before []domain.Message
	if err := tx(dbc, r.db).
		Where("channel_id = ? AND is_deleted = false AND timestamp < ?", channelID, anchor.Timestamp).
		Order("timestamp DESC").Limit(half).Find(&before).Error; err != nil {
		return nil, err
	}
	reverseMessages(before)

	remaining := limit - len(before)
	var tail []domain.Message
	if err := tx(dbc, r.db).
		Where("channel_id = ? AND is_deleted = false AND timestamp >= ?", channelID, anchor.Timestamp).
		Order("timestamp ASC").Limit(remaining).Find(&tail).Error; err != nil {
		return nil, err
	}

	return append(before, tail...), nil
}

func reverseMessages(ms []domain.Message) {
	for i, j := 0, len(ms)-1; i < j; i, j = i+1, j-1 {
		ms[i], ms[j] = ms[j], ms[i]
	}
}

func (r *messageRepo) ListByChannelPaged(dbc dbctx.Context, guildID, channelID string, afterTimestamp time.Time, limit int) ([]domain.Message, error) {
	var out []domain.Message
	err := tx(dbc, r.db).
		Where("guild_id = ? AND channel_id = ? AND is_deleted = false AND timestamp > ?", guildID, channelID, afterTimestamp).
		Order("timestamp ASC").
		Limit(limit).
		Find(&out).Error
	return out, err
}

func (r *messageRepo) ListBySessionID(dbc dbctx.Context, sessionID uuid.UUID) ([]domain.Message, error) {
	var out []domain.Message
	err := tx(dbc, r.db).
		Where("session_id = ? AND is_deleted = false", sessionID).
		Order("timestamp ASC").
		Find(&out).Error
	return out, err
}

var errNotFoundOrDeleted = &repoError{"mark_indexed: record not found or is_deleted"}

type repoError struct{ msg string }

func (e *repoError) Error() string { return e.msg }
