package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormLogger "gorm.io/gorm/logger"

	"github.com/yungbote/convoindex/internal/broker"
	"github.com/yungbote/convoindex/internal/chunking"
	"github.com/yungbote/convoindex/internal/config"
	"github.com/yungbote/convoindex/internal/dbctx"
	"github.com/yungbote/convoindex/internal/domain"
	"github.com/yungbote/convoindex/internal/embedder"
	"github.com/yungbote/convoindex/internal/indexer"
	"github.com/yungbote/convoindex/internal/logger"
	"github.com/yungbote/convoindex/internal/platformclient"
	"github.com/yungbote/convoindex/internal/repos"
	"github.com/yungbote/convoindex/internal/sessionizer"
	"github.com/yungbote/convoindex/internal/vectorstore"
	"github.com/yungbote/convoindex/internal/visionclient"
)

// The Indexing Worker process: claims jobs from the JB and turns them into
// EM calls plus VS upserts/deletes (§4.7). It never accepts inbound events
// directly; the Gateway Ingestor and Reconciler are its only producers.
func main() {
	log, err := logger.New(os.Getenv("LOG_MODE"))
	if err != nil {
		fmt.Printf("failed to init logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal("config load failed", "error", err)
	}

	log.Info("connecting to postgres")
	db, err := gorm.Open(postgres.Open(cfg.PostgresDSN), &gorm.Config{
		Logger: gormLogger.Default.LogMode(gormLogger.Warn),
	})
	if err != nil {
		log.Fatal("open postgres failed", "error", err)
	}
	if err := db.AutoMigrate(domain.AllTables()...); err != nil {
		log.Fatal("automigrate failed", "error", err)
	}

	channels := repos.NewChannelRepo(db, log)
	users := repos.NewUserRepo(db, log)
	messages := repos.NewMessageRepo(db, log)
	sessions := repos.NewSessionRepo(db, log)
	attachments := repos.NewAttachmentRepo(db, log)
	chunks := repos.NewDocumentChunkRepo(db, log)
	jobRuns := repos.NewJobRunRepo(db, log)
	manifests := repos.NewManifestRepo(db, log)

	log.Info("connecting to vector store", "url", cfg.VectorStoreURL, "collection", cfg.VectorCollection)
	vs, err := vectorstore.NewQdrantStore(log, vectorstore.Config{
		URL:             cfg.VectorStoreURL,
		Collection:      cfg.VectorCollection,
		NamespacePrefix: cfg.VectorNamespacePfx,
		VectorDim:       cfg.VectorDim,
	})
	if err != nil {
		log.Fatal("init vector store failed", "error", err)
	}
	if err := vs.EnsureNamespace(context.Background()); err != nil {
		log.Fatal("ensure vector namespace failed", "error", err)
	}

	em, err := embedder.NewOpenAIEmbedder(log, cfg.VectorDim)
	if err != nil {
		log.Fatal("init embedder failed", "error", err)
	}

	if err := checkRuntimeManifest(manifests, em, cfg.VectorDim, log); err != nil {
		log.Fatal("runtime manifest mismatch", "error", err)
	}

	var vision visionclient.Describer
	vision, err = visionclient.NewGCPDescriber(log)
	if err != nil {
		log.Warn("vision describer unavailable, image attachments will be skipped", "error", err)
		vision = nil
	} else {
		defer vision.Close()
	}

	fetcher := platformclient.NewHTTPFetcher(30 * time.Second)

	b := broker.New(log, jobRuns, cfg)
	if cfg.RedisAddr != "" {
		b = b.WithRedisDedup(broker.NewRedisClient(cfg.RedisAddr))
	}

	deps := &indexer.Deps{
		Log:         log,
		Channels:    channels,
		Users:       users,
		Messages:    messages,
		Sessions:    sessions,
		Attachments: attachments,
		Chunks:      chunks,
		VS:          vs,
		Em:          em,
		Broker:      b,
		Vision:      vision,
		Fetch:       fetcher,
		SessionParams: sessionizer.Params{
			TimeGap:                  cfg.SessionTimeGap,
			MaxTokens:                cfg.SessionMaxTokens,
			SemanticRefineThreshold:  cfg.SessionSemanticRefineThreshold,
			SemanticPercentile:       cfg.SessionSemanticPercentile,
			SemanticMinSubSession:    cfg.SessionSemanticMinSubSession,
			EnableSemanticRefinement: true,
		},
		ChunkParams: chunking.Params{MinTokens: cfg.ChunkMinTokens, MaxTokens: cfg.ChunkMaxTokens},
		Cfg:         cfg,
	}

	registry, err := indexer.RegisterAll(deps)
	if err != nil {
		log.Fatal("register handlers failed", "error", err)
	}

	pool := indexer.NewPool(log, b, registry, cfg)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.Info("indexing worker starting", "concurrency", cfg.WorkerConcurrency)
	pool.Start(ctx)
}

// checkRuntimeManifest implements §4.4/§5's boot-time guard: the embedder
// identity and dimension recorded from a previous run must match the one
// about to serve this process, or VS would silently start mixing vector
// spaces. First boot writes the manifest instead of checking it.
func checkRuntimeManifest(repo repos.ManifestRepo, em embedder.Embedder, dim int, log *logger.Logger) error {
	dbc := dbctx.Background()
	existing, err := repo.Get(dbc)
	if err != nil {
		return err
	}
	identity := em.Identity()
	if existing == nil {
		log.Info("writing initial runtime manifest", "embedder", identity.Name, "dim", dim)
		return repo.Upsert(dbc, &domain.RuntimeManifest{
			EmbedderName:    identity.Name,
			EmbedderVersion: identity.Version,
			VectorDim:       dim,
		})
	}
	if existing.VectorDim != dim {
		return fmt.Errorf("vector dim changed: manifest=%d configured=%d", existing.VectorDim, dim)
	}
	if existing.EmbedderName != identity.Name {
		return fmt.Errorf("embedder identity changed: manifest=%s configured=%s", existing.EmbedderName, identity.Name)
	}
	return nil
}
