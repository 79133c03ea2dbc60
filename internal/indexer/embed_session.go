package indexer

import (
	"github.com/google/uuid"

	"github.com/yungbote/convoindex/internal/dbctx"
	"github.com/yungbote/convoindex/internal/domain"
	"github.com/yungbote/convoindex/internal/jobkind"
	"github.com/yungbote/convoindex/internal/sessionizer"
	"github.com/yungbote/convoindex/internal/vectorstore"
)

const previewMaxBytes = 1024

type embedSessionHandler struct{ d *Deps }

func (h *embedSessionHandler) JobType() string { return jobkind.EmbedSession }

func (h *embedSessionHandler) Handle(jc *JobContext) error {
	var p jobkind.EmbedSessionPayload
	if err := jc.Decode(&p); err != nil {
		return domain.Permanent("embed_session.decode", "bad payload", err)
	}
	sessionID, err := uuid.Parse(p.SessionID)
	if err != nil {
		return domain.Permanent("embed_session.parse_id", "malformed session_id", err)
	}
	dbc := dbctx.New(jc.Ctx)

	session, err := h.d.Sessions.GetByID(dbc, sessionID)
	if err != nil {
		return domain.Transient("embed_session.get_session", "load session", err)
	}
	if session == nil {
		return nil // superseded/deleted since enqueue; no-op.
	}

	messages, err := h.d.Messages.ListBySessionID(dbc, sessionID)
	if err != nil {
		return domain.Transient("embed_session.list_messages", "load session messages", err)
	}
	if len(messages) < 2 {
		return nil
	}

	channel, err := h.d.Channels.GetByID(dbc, p.GuildID, session.ChannelID)
	if err != nil {
		return domain.Transient("embed_session.get_channel", "load channel", err)
	}
	channelName := session.ChannelID
	if channel != nil {
		channelName = channel.Name
	}

	authorIDs := make([]string, 0, len(messages))
	seen := make(map[string]bool, len(messages))
	for _, m := range messages {
		if !seen[m.AuthorID] {
			seen[m.AuthorID] = true
			authorIDs = append(authorIDs, m.AuthorID)
		}
	}
	names, err := h.d.Users.ListDisplayNames(dbc, authorIDs)
	if err != nil {
		return domain.Transient("embed_session.list_names", "resolve display names", err)
	}

	text := sessionizer.Enrich(channelName, messages, names)

	vec, err := h.d.Em.Embed(jc.Ctx, text)
	if err != nil {
		return err // embedder already classifies transient vs. permanent.
	}
	if len(vec) != h.d.Em.Dim() {
		return domain.Permanent("embed_session.dim", "embedder returned unexpected dimension", nil)
	}

	sourceIDs := make([]string, len(messages))
	for i, m := range messages {
		sourceIDs[i] = m.ID
	}

	start := session.StartTime.Unix()
	end := session.EndTime.Unix()
	point := vectorstore.Point{
		ID:        session.ID.String(),
		Vector:    vec,
		GuildID:   p.GuildID,
		Kind:      "session",
		ChannelID: session.ChannelID,
		SourceIDs: sourceIDs,
		Preview:   truncate(text, previewMaxBytes),
		StartTime: &start,
		EndTime:   &end,
	}
	if err := h.d.VS.Upsert(jc.Ctx, []vectorstore.Point{point}); err != nil {
		return err
	}

	return h.d.Sessions.MarkIndexed(dbc, session.ID, session.ID.String())
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max]
}
