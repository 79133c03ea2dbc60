package indexer

import (
	"time"

	"github.com/yungbote/convoindex/internal/broker"
	"github.com/yungbote/convoindex/internal/dbctx"
	"github.com/yungbote/convoindex/internal/domain"
	"github.com/yungbote/convoindex/internal/jobkind"
	"github.com/yungbote/convoindex/internal/sessionizer"
)

// sessionWindow is W from §4.7's sessionize algorithm: how many messages
// around the trigger point are loaded before re-running the heuristic.
const sessionWindow = 200

type sessionizeHandler struct{ d *Deps }

func (h *sessionizeHandler) JobType() string { return jobkind.Sessionize }

func (h *sessionizeHandler) Handle(jc *JobContext) error {
	var p jobkind.SessionizePayload
	if err := jc.Decode(&p); err != nil {
		return domain.Permanent("sessionize.decode", "bad payload", err)
	}
	dbc := dbctx.New(jc.Ctx)

	channel, err := h.d.Channels.GetByID(dbc, p.GuildID, p.ChannelID)
	if err != nil {
		return domain.Transient("sessionize.get_channel", "load channel", err)
	}
	if channel == nil || !channel.IsIndexed {
		return nil // channel un-indexed or deleted since enqueue; no-op.
	}

	messages, err := h.d.Messages.ReadSessionWindow(dbc, p.ChannelID, p.Around, time.Time{}, sessionWindow)
	if err != nil {
		return domain.Transient("sessionize.read_window", "load window", err)
	}
	if len(messages) == 0 {
		return nil
	}

	candidates, err := sessionizer.Sessionize(jc.Ctx, messages, channel.Name, h.d.SessionParams, h.d.Em)
	if err != nil {
		return domain.Permanent("sessionize.run", "sessionize heuristic", err)
	}

	for _, cand := range candidates {
		if err := h.applyCandidate(jc, p.GuildID, p.ChannelID, cand); err != nil {
			return err
		}
	}
	return nil
}

func (h *sessionizeHandler) applyCandidate(jc *JobContext, guildID, channelID string, cand sessionizer.Candidate) error {
	dbc := dbctx.New(jc.Ctx)

	existing, err := h.d.Sessions.GetBySpan(dbc, channelID, cand.StartMessageID, cand.EndMessageID)
	if err != nil {
		return domain.Transient("sessionize.get_span", "check existing span", err)
	}
	if existing != nil {
		return nil // this exact span is already a session; replay is a no-op.
	}

	// If the start message already belongs to a different session, that
	// session is being superseded: drop its vector and row before creating
	// the new one, per §4.7 step 3.
	if old, err := h.d.Sessions.GetContainingMessage(dbc, cand.StartMessageID); err != nil {
		return domain.Transient("sessionize.get_containing", "check superseded session", err)
	} else if old != nil {
		if old.VectorKey != nil {
			if err := h.d.VS.Delete(jc.Ctx, guildID, []string{*old.VectorKey}); err != nil {
				return domain.Transient("sessionize.delete_old_vector", "purge superseded vector", err)
			}
		}
		if err := h.d.Sessions.Delete(dbc, old.ID); err != nil {
			return domain.Transient("sessionize.delete_old_session", "delete superseded session", err)
		}
	}

	session := &domain.MessageSession{
		GuildID:        guildID,
		ChannelID:      channelID,
		StartMessageID: cand.StartMessageID,
		EndMessageID:   cand.EndMessageID,
		MessageCount:   cand.MessageCount,
		StartTime:      cand.StartTime,
		EndTime:        cand.EndTime,
	}
	if err := h.d.Sessions.Create(dbc, session); err != nil {
		return domain.Transient("sessionize.create_session", "create session row", err)
	}
	if err := h.d.Messages.SetSessionID(dbc, cand.MessageIDs, &session.ID); err != nil {
		return domain.Transient("sessionize.set_session_id", "link messages to session", err)
	}

	_, err = h.d.Broker.Enqueue(jc.Ctx, jobkind.EmbedSession,
		jobkind.EmbedSessionPayload{GuildID: guildID, SessionID: session.ID.String()},
		broker.EnqueueOptions{Priority: domain.PriorityDefault})
	return err
}
