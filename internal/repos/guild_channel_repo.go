package repos

import (
	"gorm.io/gorm"

	"github.com/yungbote/convoindex/internal/dbctx"
	"github.com/yungbote/convoindex/internal/domain"
	"github.com/yungbote/convoindex/internal/logger"
)

type GuildRepo interface {
	Upsert(dbc dbctx.Context, g *domain.Guild) error
	SetActive(dbc dbctx.Context, id string, active bool) error
	ListActive(dbc dbctx.Context) ([]domain.Guild, error)
}

type guildRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewGuildRepo(db *gorm.DB, baseLog *logger.Logger) GuildRepo {
	return &guildRepo{db: db, log: baseLog.With("repo", "GuildRepo")}
}

func (r *guildRepo) Upsert(dbc dbctx.Context, g *domain.Guild) error {
	return tx(dbc, r.db).Where("id = ?", g.ID).
		Assign(map[string]interface{}{"name": g.Name}).
		FirstOrCreate(g).Error
}

func (r *guildRepo) SetActive(dbc dbctx.Context, id string, active bool) error {
	return tx(dbc, r.db).Model(&domain.Guild{}).Where("id = ?", id).Update("is_active", active).Error
}

func (r *guildRepo) ListActive(dbc dbctx.Context) ([]domain.Guild, error) {
	var out []domain.Guild
	err := tx(dbc, r.db).Where("is_active = true").Find(&out).Error
	return out, err
}

// ChannelRepo manages per-channel admin opt-in state (§3, §4.6).
type ChannelRepo interface {
	Upsert(dbc dbctx.Context, c *domain.Channel) error
	GetByID(dbc dbctx.Context, guildID, id string) (*domain.Channel, error)
	SetIndexed(dbc dbctx.Context, guildID, id string, indexed bool) error
	SetDeleted(dbc dbctx.Context, guildID, id string) error
	ListIndexed(dbc dbctx.Context, guildID string) ([]domain.Channel, error)
}

type channelRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewChannelRepo(db *gorm.DB, baseLog *logger.Logger) ChannelRepo {
	return &channelRepo{db: db, log: baseLog.With("repo", "ChannelRepo")}
}

func (r *channelRepo) Upsert(dbc dbctx.Context, c *domain.Channel) error {
	return tx(dbc, r.db).Where("id = ? AND guild_id = ?", c.ID, c.GuildID).
		Assign(map[string]interface{}{"name": c.Name}).
		FirstOrCreate(c).Error
}

func (r *channelRepo) GetByID(dbc dbctx.Context, guildID, id string) (*domain.Channel, error) {
	var c domain.Channel
	err := tx(dbc, r.db).Where("guild_id = ? AND id = ?", guildID, id).First(&c).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	return &c, err
}

func (r *channelRepo) SetIndexed(dbc dbctx.Context, guildID, id string, indexed bool) error {
	return tx(dbc, r.db).Model(&domain.Channel{}).
		Where("guild_id = ? AND id = ?", guildID, id).
		Update("is_indexed", indexed).Error
}

func (r *channelRepo) SetDeleted(dbc dbctx.Context, guildID, id string) error {
	return tx(dbc, r.db).Model(&domain.Channel{}).
		Where("guild_id = ? AND id = ?", guildID, id).
		Updates(map[string]interface{}{"is_deleted": true, "is_indexed": false}).Error
}

func (r *channelRepo) ListIndexed(dbc dbctx.Context, guildID string) ([]domain.Channel, error) {
	var out []domain.Channel
	err := tx(dbc, r.db).Where("guild_id = ? AND is_indexed = true AND is_deleted = false", guildID).Find(&out).Error
	return out, err
}

// UserRepo upserts the global display-name cache (§3).
type UserRepo interface {
	Upsert(dbc dbctx.Context, u *domain.User) error

	// ListDisplayNames resolves a batch of author ids to display names, for
	// the Sessionizer's enrichment header (§4.5). Ids with no cached user
	// row are simply absent from the result map.
	ListDisplayNames(dbc dbctx.Context, ids []string) (map[string]string, error)
}

type userRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewUserRepo(db *gorm.DB, baseLog *logger.Logger) UserRepo {
	return &userRepo{db: db, log: baseLog.With("repo", "UserRepo")}
}

func (r *userRepo) Upsert(dbc dbctx.Context, u *domain.User) error {
	return tx(dbc, r.db).Where("id = ?", u.ID).
		Assign(map[string]interface{}{"display_name": u.DisplayName}).
		FirstOrCreate(u).Error
}

func (r *userRepo) ListDisplayNames(dbc dbctx.Context, ids []string) (map[string]string, error) {
	out := make(map[string]string, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	var users []domain.User
	if err := tx(dbc, r.db).Where("id IN ?", ids).Find(&users).Error; err != nil {
		return nil, err
	}
	for _, u := range users {
		out[u.ID] = u.DisplayName
	}
	return out, nil
}
