package indexer

import (
	"github.com/yungbote/convoindex/internal/broker"
	"github.com/yungbote/convoindex/internal/dbctx"
	"github.com/yungbote/convoindex/internal/domain"
	"github.com/yungbote/convoindex/internal/jobkind"
)

type reindexHandler struct{ d *Deps }

func (h *reindexHandler) JobType() string { return jobkind.ReindexSessionFor }

func (h *reindexHandler) Handle(jc *JobContext) error {
	var p jobkind.ReindexPayload
	if err := jc.Decode(&p); err != nil {
		return domain.Permanent("reindex.decode", "bad payload", err)
	}
	dbc := dbctx.New(jc.Ctx)

	session, err := h.d.Sessions.GetContainingMessage(dbc, p.MessageID)
	if err != nil {
		return domain.Transient("reindex.get_containing", "find owning session", err)
	}
	if session == nil {
		msg, err := h.d.Messages.GetByID(dbc, p.GuildID, p.MessageID)
		if err != nil {
			return domain.Transient("reindex.get_message", "load message", err)
		}
		if msg == nil {
			return nil
		}
		_, err = h.d.Broker.Enqueue(jc.Ctx, jobkind.Sessionize,
			jobkind.SessionizePayload{GuildID: p.GuildID, ChannelID: msg.ChannelID, Around: msg.ID},
			broker.EnqueueOptions{Priority: domain.PriorityDefault})
		return err
	}

	if err := h.d.Sessions.Touch(dbc, session.ID); err != nil {
		return domain.Transient("reindex.touch", "bump session updated_at", err)
	}
	_, err = h.d.Broker.Enqueue(jc.Ctx, jobkind.EmbedSession,
		jobkind.EmbedSessionPayload{GuildID: p.GuildID, SessionID: session.ID.String()},
		broker.EnqueueOptions{Priority: domain.PriorityDefault})
	return err
}
