package indexer

import (
	"context"

	"github.com/yungbote/convoindex/internal/broker"
	"github.com/yungbote/convoindex/internal/chunking"
	"github.com/yungbote/convoindex/internal/config"
	"github.com/yungbote/convoindex/internal/embedder"
	"github.com/yungbote/convoindex/internal/logger"
	"github.com/yungbote/convoindex/internal/repos"
	"github.com/yungbote/convoindex/internal/sessionizer"
	"github.com/yungbote/convoindex/internal/vectorstore"
	"github.com/yungbote/convoindex/internal/visionclient"
)

// AttachmentFetcher retrieves attachment bytes from their source_url (§4.7),
// bounded by maxBytes. An interface so tests can fake transport without a
// real object store or CDN.
type AttachmentFetcher interface {
	Fetch(ctx context.Context, sourceURL string, maxBytes int64) ([]byte, error)
}

// Deps bundles every collaborator a job handler needs. One struct is built
// once in cmd/worker and passed to RegisterAll.
type Deps struct {
	Log *logger.Logger

	Channels    repos.ChannelRepo
	Users       repos.UserRepo
	Messages    repos.MessageRepo
	Sessions    repos.SessionRepo
	Attachments repos.AttachmentRepo
	Chunks      repos.DocumentChunkRepo

	VS     vectorstore.VectorStore
	Em     embedder.Embedder
	Broker *broker.Broker
	Vision visionclient.Describer
	Fetch  AttachmentFetcher

	SessionParams sessionizer.Params
	ChunkParams   chunking.Params
	Cfg           config.Config
}

// RegisterAll builds every job handler and registers it, returning the
// populated registry for the Pool.
func RegisterAll(d *Deps) (*Registry, error) {
	reg := NewRegistry()
	handlers := []Handler{
		&sessionizeHandler{d: d},
		&embedSessionHandler{d: d},
		&reindexHandler{d: d},
		&purgeMessagesHandler{d: d},
		&purgeChannelHandler{d: d},
		&backfillHandler{d: d},
		&ingestAttachmentHandler{d: d},
	}
	for _, h := range handlers {
		if err := reg.Register(h); err != nil {
			return nil, err
		}
	}
	return reg, nil
}
