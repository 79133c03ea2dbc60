// Package httpapi exposes §6's two outward contracts: the read-only query
// interface (search_semantic, list_recent) consumed by LLM/analytics agents,
// and the administrative control interface (set_channel_indexed,
// set_guild_active). Per SPEC_FULL §3's grounding note, these are in-process
// Go methods on Core rather than a served REST API — §1 places "serving
// queries" outside this core's scope, so there is no gin router here, only
// the calls a caller embedding this core would wire into its own surface.
package httpapi

import (
	"context"
	"strings"
	"time"

	"github.com/yungbote/convoindex/internal/dbctx"
	"github.com/yungbote/convoindex/internal/domain"
	"github.com/yungbote/convoindex/internal/embedder"
	"github.com/yungbote/convoindex/internal/gateway"
	"github.com/yungbote/convoindex/internal/logger"
	"github.com/yungbote/convoindex/internal/repos"
	"github.com/yungbote/convoindex/internal/vectorstore"
)

// Core is grounded on the teacher's services.*Service pattern: a typed
// struct with injected repos/clients and one public method per contract,
// rather than HTTP handlers that happen to call a service underneath.
type Core struct {
	log      *logger.Logger
	guilds   repos.GuildRepo
	messages repos.MessageRepo
	vs       vectorstore.VectorStore
	em       embedder.Embedder
	ingestor *gateway.Ingestor
}

func New(log *logger.Logger, guilds repos.GuildRepo, messages repos.MessageRepo, vs vectorstore.VectorStore, em embedder.Embedder, ingestor *gateway.Ingestor) *Core {
	return &Core{
		log:      log.With("component", "Core"),
		guilds:   guilds,
		messages: messages,
		vs:       vs,
		em:       em,
		ingestor: ingestor,
	}
}

// SearchSemantic implements §6's search_semantic(guild_id, text,
// channel_filter?, k, min_score). guild_id is mandatory and is enforced a
// second time here, on top of the VS adapter's own I1 guard, so a caller
// never even reaches the adapter with an empty tenant.
func (c *Core) SearchSemantic(ctx context.Context, guildID, text, channelFilter string, k int, minScore float64) ([]vectorstore.Match, error) {
	if strings.TrimSpace(guildID) == "" {
		return nil, domain.TenantViolation("core.search_semantic", "search_semantic requires guild_id")
	}
	vec, err := c.em.Embed(ctx, text)
	if err != nil {
		return nil, err
	}
	filter := vectorstore.Filter{GuildID: guildID, ChannelID: channelFilter}
	return c.vs.Query(ctx, vec, filter, k, minScore)
}

// ListRecent implements §6's list_recent(guild_id, channel_id, time_range),
// reading directly from RS. It never mutates.
func (c *Core) ListRecent(ctx context.Context, guildID, channelID string, since time.Time, limit int) ([]domain.Message, error) {
	if strings.TrimSpace(guildID) == "" {
		return nil, domain.TenantViolation("core.list_recent", "list_recent requires guild_id")
	}
	if limit <= 0 {
		limit = 100
	}
	dbc := dbctx.New(ctx)
	return c.messages.ListByChannelPaged(dbc, guildID, channelID, since, limit)
}

// SetChannelIndexed implements the administrative toggle of §6/§4.6,
// delegating to the Gateway Ingestor's OnChannelIndexToggle so the backfill
// and purge side effects stay the single source of truth rather than being
// reimplemented here.
func (c *Core) SetChannelIndexed(ctx context.Context, guildID, channelID string, indexed bool) error {
	return c.ingestor.OnChannelIndexToggle(ctx, gateway.ChannelIndexToggleEvent{GuildID: guildID, ChannelID: channelID, Indexed: indexed})
}

// SetGuildActive implements §6's set_guild_active(guild_id, bool). An
// inactive guild is simply excluded from the Reconciler's per-guild scan
// (§4.8) and from new ingestion; it is not a cascading delete.
func (c *Core) SetGuildActive(ctx context.Context, guildID string, active bool) error {
	dbc := dbctx.New(ctx)
	return c.guilds.SetActive(dbc, guildID, active)
}
