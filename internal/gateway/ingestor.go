package gateway

import (
	"context"
	"fmt"

	"github.com/yungbote/convoindex/internal/broker"
	"github.com/yungbote/convoindex/internal/dbctx"
	"github.com/yungbote/convoindex/internal/domain"
	"github.com/yungbote/convoindex/internal/jobkind"
	"github.com/yungbote/convoindex/internal/logger"
	"github.com/yungbote/convoindex/internal/repos"
)

// Ingestor translates platform events into RS mutations and JB enqueues
// (§4.6). It is stateless and idempotent: replaying the same event id any
// number of times must converge to the same RS state and at most one
// pending job per dedup key.
//
// RS commit always precedes JB enqueue (§4.6 "Suspension points"): a crash
// between the two is recovered by the Reconciler, never by retrying the
// enqueue speculatively before the commit lands.
type Ingestor struct {
	log        *logger.Logger
	guilds     repos.GuildRepo
	channels   repos.ChannelRepo
	users      repos.UserRepo
	messages   repos.MessageRepo
	attachments repos.AttachmentRepo
	broker     *broker.Broker
}

func New(log *logger.Logger, guilds repos.GuildRepo, channels repos.ChannelRepo, users repos.UserRepo, messages repos.MessageRepo, attachments repos.AttachmentRepo, b *broker.Broker) *Ingestor {
	return &Ingestor{
		log:        log.With("component", "GatewayIngestor"),
		guilds:     guilds,
		channels:   channels,
		users:      users,
		messages:   messages,
		attachments: attachments,
		broker:     b,
	}
}

func (g *Ingestor) ensureGuildChannelUser(ctx context.Context, guildID, channelID, channelName, authorID, authorName string) error {
	dbc := dbctx.New(ctx)
	if err := g.guilds.Upsert(dbc, &domain.Guild{ID: guildID, IsActive: true}); err != nil {
		return domain.Transient("gateway.upsert_guild", "upsert guild", err)
	}
	if channelID != "" {
		if err := g.channels.Upsert(dbc, &domain.Channel{ID: channelID, GuildID: guildID, Name: channelName}); err != nil {
			return domain.Transient("gateway.upsert_channel", "upsert channel", err)
		}
	}
	if authorID != "" {
		if err := g.users.Upsert(dbc, &domain.User{ID: authorID, DisplayName: authorName}); err != nil {
			return domain.Transient("gateway.upsert_user", "upsert user", err)
		}
	}
	return nil
}

// OnMessageCreate implements the "message create" row of §4.6's table.
func (g *Ingestor) OnMessageCreate(ctx context.Context, e MessageCreateEvent) error {
	if err := g.ensureGuildChannelUser(ctx, e.GuildID, e.ChannelID, e.ChannelName, e.AuthorID, e.AuthorName); err != nil {
		return err
	}
	dbc := dbctx.New(ctx)

	msg := &domain.Message{
		ID:        e.MessageID,
		GuildID:   e.GuildID,
		ChannelID: e.ChannelID,
		AuthorID:  e.AuthorID,
		Content:   e.Content,
		ReplyToID: e.ReplyToID,
		Timestamp: e.Timestamp,
	}
	if _, err := g.messages.UpsertMessage(dbc, msg); err != nil {
		return domain.Transient("gateway.upsert_message", "upsert message", err)
	}

	channel, err := g.channels.GetByID(dbc, e.GuildID, e.ChannelID)
	if err != nil {
		return domain.Transient("gateway.get_channel", "load channel", err)
	}
	if channel != nil && channel.IsIndexed {
		key := fmt.Sprintf("sz:%s", e.ChannelID)
		payload := jobkind.SessionizePayload{GuildID: e.GuildID, ChannelID: e.ChannelID, Around: e.MessageID}
		if _, err := g.broker.Enqueue(ctx, jobkind.Sessionize, payload, enqueueOpts(domain.PriorityDefault, &key)); err != nil {
			return err
		}
	}

	for _, a := range e.Attachments {
		att := &domain.Attachment{
			MessageID:  e.MessageID,
			GuildID:    e.GuildID,
			SourceURL:  a.SourceURL,
			Mime:       a.Mime,
			Size:       a.Size,
			SourceType: domain.AttachmentSourceType(a.SourceType),
			Status:     domain.ProcessingPending,
		}
		if err := g.attachments.Create(dbc, att); err != nil {
			return domain.Transient("gateway.create_attachment", "insert attachment", err)
		}
		payload := jobkind.IngestAttachmentPayload{AttachmentID: att.ID.String()}
		if _, err := g.broker.Enqueue(ctx, jobkind.IngestAttachment, payload, enqueueOpts(domain.PriorityDefault, nil)); err != nil {
			return err
		}
	}
	return nil
}

// OnMessageEdit implements the "message edit" row: a no-op for unchanged
// content or bot authors, otherwise a content update and a reindex enqueue.
func (g *Ingestor) OnMessageEdit(ctx context.Context, e MessageEditEvent) error {
	if e.IsBot {
		return nil
	}
	dbc := dbctx.New(ctx)
	existing, err := g.messages.GetByID(dbc, e.GuildID, e.MessageID)
	if err != nil {
		return domain.Transient("gateway.get_message", "load message", err)
	}
	if existing == nil {
		return domain.NotFound("gateway.on_edit", "message not found: "+e.MessageID)
	}
	if existing.Content == e.NewContent {
		return nil
	}
	existing.Content = e.NewContent
	if _, err := g.messages.UpsertMessage(dbc, existing); err != nil {
		return domain.Transient("gateway.upsert_message", "update message", err)
	}
	payload := jobkind.ReindexPayload{MessageID: e.MessageID, GuildID: e.GuildID}
	if _, err := g.broker.Enqueue(ctx, jobkind.ReindexSessionFor, payload, enqueueOpts(domain.PriorityDefault, nil)); err != nil {
		return err
	}
	return nil
}

// OnMessageDelete implements the single-message "message delete" row.
func (g *Ingestor) OnMessageDelete(ctx context.Context, e MessageDeleteEvent) error {
	dbc := dbctx.New(ctx)
	existing, err := g.messages.GetByID(dbc, e.GuildID, e.MessageID)
	if err != nil {
		return domain.Transient("gateway.get_message", "load message", err)
	}
	if existing == nil {
		return nil
	}
	hadSession := existing.SessionID != nil
	affected, err := g.messages.SoftDeleteMessages(dbc, e.GuildID, []string{e.MessageID})
	if err != nil {
		return domain.Transient("gateway.soft_delete", "soft delete message", err)
	}
	if len(affected) > 0 || hadSession {
		payload := jobkind.PurgeMessagesPayload{GuildID: e.GuildID, MessageIDs: []string{e.MessageID}}
		if _, err := g.broker.Enqueue(ctx, jobkind.PurgeMessageVectors, payload, enqueueOpts(domain.PriorityHigh, nil)); err != nil {
			return err
		}
	}
	return nil
}

// OnBulkDelete implements the "bulk delete" row.
func (g *Ingestor) OnBulkDelete(ctx context.Context, e BulkDeleteEvent) error {
	dbc := dbctx.New(ctx)
	if _, err := g.messages.SoftDeleteMessages(dbc, e.GuildID, e.MessageIDs); err != nil {
		return domain.Transient("gateway.bulk_soft_delete", "bulk soft delete", err)
	}
	payload := jobkind.PurgeMessagesPayload{GuildID: e.GuildID, MessageIDs: e.MessageIDs}
	if _, err := g.broker.Enqueue(ctx, jobkind.PurgeMessageVectors, payload, enqueueOpts(domain.PriorityHigh, nil)); err != nil {
		return err
	}
	return nil
}

// OnChannelIndexToggle implements the two "channel indexing toggled" rows.
func (g *Ingestor) OnChannelIndexToggle(ctx context.Context, e ChannelIndexToggleEvent) error {
	dbc := dbctx.New(ctx)
	if err := g.channels.SetIndexed(dbc, e.GuildID, e.ChannelID, e.Indexed); err != nil {
		return domain.Transient("gateway.set_indexed", "update channel", err)
	}
	if !e.Indexed {
		payload := jobkind.PurgeChannelPayload{GuildID: e.GuildID, ChannelID: e.ChannelID}
		_, err := g.broker.Enqueue(ctx, jobkind.PurgeChannelVectors, payload, enqueueOpts(domain.PriorityHigh, nil))
		return err
	}
	payload := jobkind.BackfillPayload{GuildID: e.GuildID, ChannelID: e.ChannelID}
	_, err := g.broker.Enqueue(ctx, jobkind.BackfillChannel, payload, enqueueOpts(domain.PriorityLow, nil))
	return err
}

// OnChannelDelete soft-deletes the channel and its messages, matching the
// "toggled OFF" purge path since a deleted channel must never retain
// vectors either.
func (g *Ingestor) OnChannelDelete(ctx context.Context, e ChannelDeleteEvent) error {
	dbc := dbctx.New(ctx)
	if err := g.channels.SetDeleted(dbc, e.GuildID, e.ChannelID); err != nil {
		return domain.Transient("gateway.set_deleted", "delete channel", err)
	}
	if _, err := g.messages.BulkSoftDeleteChannelMessages(dbc, e.GuildID, e.ChannelID); err != nil {
		return domain.Transient("gateway.bulk_delete_channel", "soft delete channel messages", err)
	}
	payload := jobkind.PurgeChannelPayload{GuildID: e.GuildID, ChannelID: e.ChannelID}
	_, err := g.broker.Enqueue(ctx, jobkind.PurgeChannelVectors, payload, enqueueOpts(domain.PriorityHigh, nil))
	return err
}

// OnAttachmentAttached implements the "attachment attached" row. The
// ingestor never downloads bytes itself; the worker does (§4.6, §2 GI).
func (g *Ingestor) OnAttachmentAttached(ctx context.Context, e AttachmentAttachedEvent) error {
	dbc := dbctx.New(ctx)
	att := &domain.Attachment{
		MessageID:  e.MessageID,
		GuildID:    e.GuildID,
		SourceURL:  e.SourceURL,
		Mime:       e.Mime,
		Size:       e.Size,
		SourceType: domain.AttachmentSourceType(e.SourceType),
		Status:     domain.ProcessingPending,
	}
	if err := g.attachments.Create(dbc, att); err != nil {
		return domain.Transient("gateway.create_attachment", "insert attachment", err)
	}
	payload := jobkind.IngestAttachmentPayload{AttachmentID: att.ID.String()}
	_, err := g.broker.Enqueue(ctx, jobkind.IngestAttachment, payload, enqueueOpts(domain.PriorityDefault, nil))
	return err
}

func enqueueOpts(priority domain.JobPriority, key *string) broker.EnqueueOptions {
	return broker.EnqueueOptions{Priority: priority, Key: key}
}
