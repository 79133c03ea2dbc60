package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormLogger "gorm.io/gorm/logger"

	"github.com/yungbote/convoindex/internal/broker"
	"github.com/yungbote/convoindex/internal/config"
	"github.com/yungbote/convoindex/internal/domain"
	"github.com/yungbote/convoindex/internal/logger"
	"github.com/yungbote/convoindex/internal/reconciler"
	"github.com/yungbote/convoindex/internal/repos"
	"github.com/yungbote/convoindex/internal/vectorstore"
)

// The Reconciler process: a standalone cron-scheduled scan (§4.8) that
// re-derives desired state from RS and VS and repairs drift the Gateway
// Ingestor and Indexing Worker's at-least-once, crash-tolerant design
// necessarily leaves behind.
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

	guilds := repos.NewGuildRepo(db, log)
	messages := repos.NewMessageRepo(db, log)
	sessions := repos.NewSessionRepo(db, log)
	jobRuns := repos.NewJobRunRepo(db, log)

	vs, err := vectorstore.NewQdrantStore(log, vectorstore.Config{
		URL:             cfg.VectorStoreURL,
		Collection:      cfg.VectorCollection,
		NamespacePrefix: cfg.VectorNamespacePfx,
		VectorDim:       cfg.VectorDim,
	})
	if err != nil {
		log.Fatal("init vector store failed", "error", err)
	}

	b := broker.New(log, jobRuns, cfg)
	if cfg.RedisAddr != "" {
		b = b.WithRedisDedup(broker.NewRedisClient(cfg.RedisAddr))
	}

	rc := reconciler.New(log, guilds, sessions, messages, vs, b, cfg.ReconcilerBatch)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	spec := fmt.Sprintf("@every %s", cfg.ReconcilerInterval)
	cronHandle, err := rc.StartCron(ctx, spec)
	if err != nil {
		log.Fatal("start reconciler cron failed", "error", err)
	}
	log.Info("reconciler started", "interval", cfg.ReconcilerInterval)

	<-ctx.Done()
	log.Info("shutting down")
	cronHandle.Stop()
}
