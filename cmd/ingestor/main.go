package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormLogger "gorm.io/gorm/logger"

	"github.com/yungbote/convoindex/internal/broker"
	"github.com/yungbote/convoindex/internal/config"
	"github.com/yungbote/convoindex/internal/domain"
	"github.com/yungbote/convoindex/internal/gateway"
	"github.com/yungbote/convoindex/internal/logger"
	"github.com/yungbote/convoindex/internal/repos"
)

// The Gateway Ingestor process: receives the platform's event stream (§4.6)
// and turns it into RS mutations plus JB enqueues. It never touches VS or
// EM directly.
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
	channels := repos.NewChannelRepo(db, log)
	users := repos.NewUserRepo(db, log)
	messages := repos.NewMessageRepo(db, log)
	attachments := repos.NewAttachmentRepo(db, log)
	jobRuns := repos.NewJobRunRepo(db, log)

	b := broker.New(log, jobRuns, cfg)
	if cfg.RedisAddr != "" {
		log.Info("dedup fast path enabled", "redis_addr", cfg.RedisAddr)
		b = b.WithRedisDedup(broker.NewRedisClient(cfg.RedisAddr))
	}
	if _, err := b.StartLeaseSweeper(context.Background()); err != nil {
		log.Fatal("start lease sweeper failed", "error", err)
	}

	ing := gateway.New(log, guilds, channels, users, messages, attachments, b)
	srv := gateway.NewServer(log, ing)

	port := envOr("PORT", "8081")
	httpSrv := &http.Server{
		Addr:              ":" + port,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		log.Info("gateway ingestor listening", "port", port)
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("http server failed", "error", err)
		}
	}()

	<-ctx.Done()
	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = httpSrv.Shutdown(shutdownCtx)
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
