package indexer

import (
	"github.com/google/uuid"

	"github.com/yungbote/convoindex/internal/dbctx"
	"github.com/yungbote/convoindex/internal/domain"
	"github.com/yungbote/convoindex/internal/jobkind"
	"github.com/yungbote/convoindex/internal/vectorstore"
)

// purgeMessagesHandler implements purge_message_vectors(guild_id,
// message_ids[]) (§4.7): any session or document-chunk vector referencing a
// deleted message is removed from the VS, its owning RS record's vector_key
// is cleared by CAS, and a session emptied by the purge is dropped.
type purgeMessagesHandler struct{ d *Deps }

func (h *purgeMessagesHandler) JobType() string { return jobkind.PurgeMessageVectors }

func (h *purgeMessagesHandler) Handle(jc *JobContext) error {
	var p jobkind.PurgeMessagesPayload
	if err := jc.Decode(&p); err != nil {
		return domain.Permanent("purge_messages.decode", "bad payload", err)
	}
	if len(p.MessageIDs) == 0 {
		return nil
	}
	dbc := dbctx.New(jc.Ctx)

	var keys []string
	sessionKeys := make(map[uuid.UUID]string)

	for _, mid := range p.MessageIDs {
		msg, err := h.d.Messages.GetByID(dbc, p.GuildID, mid)
		if err != nil {
			return domain.Transient("purge_messages.get_message", "load message", err)
		}
		if msg != nil && msg.SessionID != nil {
			sid := *msg.SessionID
			if _, already := sessionKeys[sid]; !already {
				session, err := h.d.Sessions.GetByID(dbc, sid)
				if err != nil {
					return domain.Transient("purge_messages.get_session", "load owning session", err)
				}
				if session != nil && session.VectorKey != nil {
					sessionKeys[sid] = *session.VectorKey
					keys = append(keys, *session.VectorKey)
				}
			}
		}

		attachments, err := h.d.Attachments.ListByMessage(dbc, mid)
		if err != nil {
			return domain.Transient("purge_messages.list_attachments", "load attachments", err)
		}
		for _, att := range attachments {
			chunks, err := h.d.Chunks.DeleteByAttachment(dbc, att.ID)
			if err != nil {
				return domain.Transient("purge_messages.delete_chunks", "delete attachment chunks", err)
			}
			for _, c := range chunks {
				if c.VectorKey != nil {
					keys = append(keys, *c.VectorKey)
				}
			}
		}
	}

	if len(keys) > 0 {
		if err := h.d.VS.Delete(jc.Ctx, p.GuildID, keys); err != nil {
			return err
		}
	}

	for sessionID, key := range sessionKeys {
		if _, err := h.d.Sessions.ClearVectorKey(dbc, sessionID, key); err != nil {
			return domain.Transient("purge_messages.clear_vector_key", "clear session vector_key", err)
		}
		if _, err := h.d.Sessions.DeleteIfEmpty(dbc, sessionID); err != nil {
			return domain.Transient("purge_messages.delete_if_empty", "delete emptied session", err)
		}
	}

	return nil
}

// purgeChannelHandler implements purge_channel_vectors(guild_id, channel_id)
// (§4.7): used both for a deleted channel and for indexing toggled off. Every
// VS point tagged with the channel is dropped in one filtered delete, then
// the RS side is swept clean so a later re-index starts from scratch.
type purgeChannelHandler struct{ d *Deps }

func (h *purgeChannelHandler) JobType() string { return jobkind.PurgeChannelVectors }

func (h *purgeChannelHandler) Handle(jc *JobContext) error {
	var p jobkind.PurgeChannelPayload
	if err := jc.Decode(&p); err != nil {
		return domain.Permanent("purge_channel.decode", "bad payload", err)
	}
	dbc := dbctx.New(jc.Ctx)

	if err := h.d.VS.DeleteWhere(jc.Ctx, vectorstore.Filter{GuildID: p.GuildID, ChannelID: p.ChannelID}); err != nil {
		return err
	}
	if err := h.d.Sessions.DeleteByChannel(dbc, p.ChannelID); err != nil {
		return domain.Transient("purge_channel.delete_sessions", "delete channel sessions", err)
	}
	if err := h.d.Messages.ClearChannelVectorState(dbc, p.GuildID, p.ChannelID); err != nil {
		return domain.Transient("purge_channel.clear_messages", "clear channel message vector state", err)
	}
	return nil
}
