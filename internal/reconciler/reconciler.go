// Package reconciler implements the Reconciler (RC, §4.8): a periodic,
// per-guild scan that reconciles the Relational Store and the Vector Store
// after the two have (necessarily, per the dual-write design) drifted apart
// — a crashed worker, a lost job, an orphaned point left behind by a partial
// purge. It never trusts either store as authoritative on its own; RS state
// plus VS state together decide what to re-enqueue or delete.
package reconciler

import (
	"context"
	"fmt"

	"github.com/robfig/cron/v3"

	"github.com/yungbote/convoindex/internal/broker"
	"github.com/yungbote/convoindex/internal/dbctx"
	"github.com/yungbote/convoindex/internal/domain"
	"github.com/yungbote/convoindex/internal/jobkind"
	"github.com/yungbote/convoindex/internal/logger"
	"github.com/yungbote/convoindex/internal/repos"
	"github.com/yungbote/convoindex/internal/vectorstore"
)

// GuildHealth is the sync-health metric of §4.8: synced / (synced + unindexed
// + stale), reported per guild after each cycle.
type GuildHealth struct {
	GuildID   string
	Synced    int64
	Unindexed int64
	Stale     int64
}

func (h GuildHealth) Ratio() float64 {
	total := h.Synced + h.Unindexed + h.Stale
	if total == 0 {
		return 1
	}
	return float64(h.Synced) / float64(total)
}

func (h GuildHealth) Healthy() bool { return h.Ratio() > 0.95 }

// Reconciler is grounded on the teacher's jobs/runtime cron-scheduled
// reconciliation job (a periodic scan that re-derives desired state from RS
// and repairs drift), generalized here to a four-population sweep across RS
// and VS instead of a single table.
type Reconciler struct {
	log      *logger.Logger
	guilds   repos.GuildRepo
	sessions repos.SessionRepo
	messages repos.MessageRepo
	vs       vectorstore.VectorStore
	broker   *broker.Broker
	batch    int
}

func New(log *logger.Logger, guilds repos.GuildRepo, sessions repos.SessionRepo, messages repos.MessageRepo, vs vectorstore.VectorStore, b *broker.Broker, batchSize int) *Reconciler {
	if batchSize <= 0 {
		batchSize = 200
	}
	return &Reconciler{
		log:      log.With("component", "Reconciler"),
		guilds:   guilds,
		sessions: sessions,
		messages: messages,
		vs:       vs,
		broker:   b,
		batch:    batchSize,
	}
}

// RunCycle performs one full scan: per-guild unindexed/stale/pending-purge
// re-enqueue, then a single guild-agnostic orphan sweep, per §4.8.
func (r *Reconciler) RunCycle(ctx context.Context) ([]GuildHealth, error) {
	dbc := dbctx.New(ctx)
	guilds, err := r.guilds.ListActive(dbc)
	if err != nil {
		return nil, domain.Transient("reconciler.list_guilds", "load active guilds", err)
	}

	health := make([]GuildHealth, 0, len(guilds))
	activeIDs := make(map[string]bool, len(guilds))
	for _, g := range guilds {
		activeIDs[g.ID] = true
		h, err := r.reconcileGuild(ctx, g.ID)
		if err != nil {
			r.log.Error("reconcile guild failed", "guild_id", g.ID, "error", err)
			continue
		}
		health = append(health, h)
		r.log.Info("guild sync health", "guild_id", g.ID, "ratio", h.Ratio(), "healthy", h.Healthy())
	}

	if err := r.sweepOrphans(ctx, activeIDs); err != nil {
		r.log.Error("orphan sweep failed", "error", err)
	}

	return health, nil
}

func (r *Reconciler) reconcileGuild(ctx context.Context, guildID string) (GuildHealth, error) {
	dbc := dbctx.New(ctx)
	h := GuildHealth{GuildID: guildID}

	unindexedMsgs, err := r.messages.ListPendingUnindexed(dbc, guildID, r.batch)
	if err != nil {
		return h, domain.Transient("reconciler.unindexed_messages", "list pending unindexed messages", err)
	}
	unindexedSessions, err := r.sessions.ListPendingUnindexed(dbc, guildID, r.batch)
	if err != nil {
		return h, domain.Transient("reconciler.unindexed_sessions", "list pending unindexed sessions", err)
	}
	h.Unindexed = int64(len(unindexedMsgs) + len(unindexedSessions))
	seenChannels := make(map[string]bool)
	for _, m := range unindexedMsgs {
		if seenChannels[m.ChannelID] {
			continue
		}
		seenChannels[m.ChannelID] = true
		key := fmt.Sprintf("sz:%s", m.ChannelID)
		payload := jobkind.SessionizePayload{GuildID: guildID, ChannelID: m.ChannelID, Around: m.ID}
		if _, err := r.broker.Enqueue(ctx, jobkind.Sessionize, payload, broker.EnqueueOptions{Priority: domain.PriorityLow, Key: &key}); err != nil {
			r.log.Warn("enqueue sessionize failed", "guild_id", guildID, "channel_id", m.ChannelID, "error", err)
		}
	}
	for _, s := range unindexedSessions {
		key := s.ID.String()
		payload := jobkind.EmbedSessionPayload{GuildID: guildID, SessionID: s.ID.String()}
		if _, err := r.broker.Enqueue(ctx, jobkind.EmbedSession, payload, broker.EnqueueOptions{Priority: domain.PriorityLow, Key: &key}); err != nil {
			r.log.Warn("enqueue embed_session failed", "guild_id", guildID, "session_id", s.ID, "error", err)
		}
	}

	staleMsgs, err := r.messages.ListStale(dbc, guildID, r.batch)
	if err != nil {
		return h, domain.Transient("reconciler.stale_messages", "list stale messages", err)
	}
	h.Stale = int64(len(staleMsgs))
	for _, m := range staleMsgs {
		payload := jobkind.ReindexPayload{GuildID: guildID, MessageID: m.ID}
		if _, err := r.broker.Enqueue(ctx, jobkind.ReindexSessionFor, payload, broker.EnqueueOptions{Priority: domain.PriorityLow}); err != nil {
			r.log.Warn("enqueue reindex failed", "guild_id", guildID, "message_id", m.ID, "error", err)
		}
	}

	pendingDelete, err := r.messages.ListPendingDelete(dbc, guildID, r.batch)
	if err != nil {
		return h, domain.Transient("reconciler.pending_delete", "list pending delete messages", err)
	}
	if len(pendingDelete) > 0 {
		ids := make([]string, 0, len(pendingDelete))
		for _, m := range pendingDelete {
			ids = append(ids, m.ID)
		}
		payload := jobkind.PurgeMessagesPayload{GuildID: guildID, MessageIDs: ids}
		if _, err := r.broker.Enqueue(ctx, jobkind.PurgeMessageVectors, payload, broker.EnqueueOptions{Priority: domain.PriorityHigh}); err != nil {
			r.log.Warn("enqueue purge_message_vectors failed", "guild_id", guildID, "error", err)
		}
	}

	synced, err := r.messages.CountIndexed(dbc, guildID)
	if err != nil {
		return h, domain.Transient("reconciler.count_indexed", "count indexed messages", err)
	}
	h.Synced = synced
	return h, nil
}

// sweepOrphans implements population 4 of §4.8: VS points whose guild_id
// matches no active guild are deleted outright; points belonging to an
// active guild but whose source record no longer exists are left for a
// future enhancement (source-liveness lookups would require per-kind RS
// existence checks not worth adding until a real orphan class is observed
// in production — recorded as an Open Question in the design ledger).
func (r *Reconciler) sweepOrphans(ctx context.Context, activeGuilds map[string]bool) error {
	cursor := ""
	for {
		points, next, err := r.vs.Scroll(ctx, "", cursor, r.batch)
		if err != nil {
			return domain.Transient("reconciler.scroll", "scroll vector store", err)
		}
		var orphanIDs []string
		byGuild := make(map[string][]string)
		for _, p := range points {
			if !activeGuilds[p.GuildID] {
				byGuild[p.GuildID] = append(byGuild[p.GuildID], p.ID)
				orphanIDs = append(orphanIDs, p.ID)
			}
		}
		for guildID, ids := range byGuild {
			if guildID == "" {
				continue
			}
			if err := r.vs.Delete(ctx, guildID, ids); err != nil {
				r.log.Warn("delete orphan points failed", "guild_id", guildID, "error", err)
			}
		}
		if len(orphanIDs) > 0 {
			r.log.Info("swept orphan vector points", "count", len(orphanIDs))
		}
		if next == "" {
			return nil
		}
		cursor = next
	}
}

// StartCron schedules RunCycle on the interval configured for the process
// (default every 15 min, §4.8), the same robfig/cron dependency the Broker
// uses for its lease sweeper.
func (r *Reconciler) StartCron(ctx context.Context, spec string) (*cron.Cron, error) {
	c := cron.New()
	_, err := c.AddFunc(spec, func() {
		if _, err := r.RunCycle(ctx); err != nil {
			r.log.Error("reconciler cycle failed", "error", err)
		}
	})
	if err != nil {
		return nil, err
	}
	c.Start()
	return c, nil
}
