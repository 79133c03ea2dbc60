package repos

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/yungbote/convoindex/internal/dbctx"
	"github.com/yungbote/convoindex/internal/domain"
	"github.com/yungbote/convoindex/internal/logger"
)

type AttachmentRepo interface {
	Create(dbc dbctx.Context, a *domain.Attachment) error
	GetByID(dbc dbctx.Context, id uuid.UUID) (*domain.Attachment, error)
	SetStatus(dbc dbctx.Context, id uuid.UUID, status domain.AttachmentProcessingStatus, procErr *string) error
	AppendVectorKeys(dbc dbctx.Context, id uuid.UUID, keys []string) error
	ListByMessage(dbc dbctx.Context, messageID string) ([]domain.Attachment, error)
}

type attachmentRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewAttachmentRepo(db *gorm.DB, baseLog *logger.Logger) AttachmentRepo {
	return &attachmentRepo{db: db, log: baseLog.With("repo", "AttachmentRepo")}
}

func (r *attachmentRepo) Create(dbc dbctx.Context, a *domain.Attachment) error {
	return tx(dbc, r.db).Create(a).Error
}

func (r *attachmentRepo) GetByID(dbc dbctx.Context, id uuid.UUID) (*domain.Attachment, error) {
	var a domain.Attachment
	err := tx(dbc, r.db).Where("id = ?", id).First(&a).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	return &a, err
}

func (r *attachmentRepo) SetStatus(dbc dbctx.Context, id uuid.UUID, status domain.AttachmentProcessingStatus, procErr *string) error {
	updates := map[string]interface{}{
		"processing_status": status,
		"updated_at":        time.Now(),
	}
	if procErr != nil {
		updates["processing_error"] = *procErr
	}
	return tx(dbc, r.db).Model(&domain.Attachment{}).Where("id = ?", id).Updates(updates).Error
}

func (r *attachmentRepo) AppendVectorKeys(dbc dbctx.Context, id uuid.UUID, keys []string) error {
	a, err := r.GetByID(dbc, id)
	if err != nil || a == nil {
		return err
	}
	a.VectorKeys = append(a.VectorKeys, keys...)
	return tx(dbc, r.db).Model(&domain.Attachment{}).Where("id = ?", id).Update("vector_keys", a.VectorKeys).Error
}

func (r *attachmentRepo) ListByMessage(dbc dbctx.Context, messageID string) ([]domain.Attachment, error) {
	var out []domain.Attachment
	err := tx(dbc, r.db).Where("message_id = ?", messageID).Find(&out).Error
	return out, err
}

// DocumentChunkRepo manages the per-attachment chunked text units (§3, §4.7).
type DocumentChunkRepo interface {
	CreateMany(dbc dbctx.Context, chunks []domain.DocumentChunk) error
	MarkIndexed(dbc dbctx.Context, id uuid.UUID, vectorKey string) error
	ListByAttachment(dbc dbctx.Context, attachmentID uuid.UUID) ([]domain.DocumentChunk, error)
	DeleteByAttachment(dbc dbctx.Context, attachmentID uuid.UUID) ([]domain.DocumentChunk, error)
}

type documentChunkRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewDocumentChunkRepo(db *gorm.DB, baseLog *logger.Logger) DocumentChunkRepo {
	return &documentChunkRepo{db: db, log: baseLog.With("repo", "DocumentChunkRepo")}
}

func (r *documentChunkRepo) CreateMany(dbc dbctx.Context, chunks []domain.DocumentChunk) error {
	if len(chunks) == 0 {
		return nil
	}
	return tx(dbc, r.db).Create(&chunks).Error
}

func (r *documentChunkRepo) MarkIndexed(dbc dbctx.Context, id uuid.UUID, vectorKey string) error {
	return tx(dbc, r.db).Model(&domain.DocumentChunk{}).Where("id = ?", id).Updates(map[string]interface{}{
		"vector_key": vectorKey,
		"indexed_at": time.Now(),
	}).Error
}

func (r *documentChunkRepo) ListByAttachment(dbc dbctx.Context, attachmentID uuid.UUID) ([]domain.DocumentChunk, error) {
	var out []domain.DocumentChunk
	err := tx(dbc, r.db).Where("attachment_id = ?", attachmentID).Order("chunk_index ASC").Find(&out).Error
	return out, err
}

func (r *documentChunkRepo) DeleteByAttachment(dbc dbctx.Context, attachmentID uuid.UUID) ([]domain.DocumentChunk, error) {
	var chunks []domain.DocumentChunk
	if err := tx(dbc, r.db).Where("attachment_id = ?", attachmentID).Find(&chunks).Error; err != nil {
		return nil, err
	}
	if err := tx(dbc, r.db).Where("attachment_id = ?", attachmentID).Delete(&domain.DocumentChunk{}).Error; err != nil {
		return nil, err
	}
	return chunks, nil
}
