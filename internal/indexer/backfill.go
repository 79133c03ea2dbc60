package indexer

import (
	"fmt"
	"time"

	"github.com/yungbote/convoindex/internal/broker"
	"github.com/yungbote/convoindex/internal/dbctx"
	"github.com/yungbote/convoindex/internal/domain"
	"github.com/yungbote/convoindex/internal/jobkind"
)

// backfillHandler implements backfill_channel(guild_id, channel_id) (§4.7):
// a channel just toggled into indexing has its entire history swept, page by
// page, enqueuing a low-priority sessionize per page so the existing
// sessionize/embed_session pipeline does the actual work incrementally
// rather than this handler trying to sessionize the whole channel in one
// job execution.
type backfillHandler struct{ d *Deps }

func (h *backfillHandler) JobType() string { return jobkind.BackfillChannel }

func (h *backfillHandler) Handle(jc *JobContext) error {
	var p jobkind.BackfillPayload
	if err := jc.Decode(&p); err != nil {
		return domain.Permanent("backfill.decode", "bad payload", err)
	}
	dbc := dbctx.New(jc.Ctx)

	pageSize := h.d.Cfg.BackfillPageSize
	if pageSize < 1 {
		pageSize = 500
	}

	cursor := time.Time{}
	for {
		page, err := h.d.Messages.ListByChannelPaged(dbc, p.GuildID, p.ChannelID, cursor, pageSize)
		if err != nil {
			return domain.Transient("backfill.list_page", "load message page", err)
		}
		if len(page) == 0 {
			return nil
		}

		key := fmt.Sprintf("backfill:%s:%s", p.ChannelID, page[0].ID)
		payload := jobkind.SessionizePayload{GuildID: p.GuildID, ChannelID: p.ChannelID, Around: page[0].ID}
		opts := broker.EnqueueOptions{Priority: domain.PriorityLow, Key: &key}
		if _, err := h.d.Broker.Enqueue(jc.Ctx, jobkind.Sessionize, payload, opts); err != nil {
			return err
		}

		if len(page) < pageSize {
			return nil
		}
		cursor = page[len(page)-1].Timestamp
	}
}
