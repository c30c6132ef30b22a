package main

import (
	"context"
	"encoding/json"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/Bala333sr/IntelliAttend-sub000/internal/config"
	"github.com/Bala333sr/IntelliAttend-sub000/internal/logging"
	"github.com/Bala333sr/IntelliAttend-sub000/internal/queue"
	"github.com/Bala333sr/IntelliAttend-sub000/internal/scan"
	"github.com/Bala333sr/IntelliAttend-sub000/internal/store"
)

// Worker drains the review queue: each suspicious scan becomes a durable
// review item an instructor or admin can act on later.
func main() {
	cfg := config.Load()

	log, err := logging.New(cfg.Env)
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Info("shutdown signal received")
		cancel()
	}()

	var reviews scan.ReviewStore
	if cfg.StorageBackend == "memory" {
		reviews = scan.NewMemoryRepository()
		log.Warn("running on in-memory storage; review items are process-local")
	} else {
		db, err := store.NewDB(cfg.DatabaseURL)
		if err != nil {
			log.Fatal("db connect failed", zap.Error(err))
		}
		defer db.Close()
		reviews = scan.NewRepository(db.Client)
	}

	redisClient := store.NewRedis(cfg.RedisAddr)

	var q queue.Queue
	if cfg.QueueBackend == "memory" {
		q = queue.NewInMemory(64)
	} else {
		q = queue.NewRedisQueue(redisClient.Client, "attendance:reviews")
	}

	messages, err := q.Consume(ctx)
	if err != nil {
		log.Fatal("queue consume init failed", zap.Error(err))
	}

	log.Info("review worker started")
	for msg := range messages {
		if msg.Type != queue.TypeScanSuspicious {
			continue
		}

		var rm scan.ReviewMessage
		if err := json.Unmarshal(msg.Body, &rm); err != nil {
			log.Warn("malformed review message", zap.Error(err))
			continue
		}

		item := scan.ReviewItem{
			RecordID:  rm.RecordID,
			SessionID: rm.SessionID,
			SubjectID: rm.SubjectID,
			Reason:    rm.Reason,
		}
		if err := reviews.InsertReviewItem(ctx, item); err != nil {
			log.Error("review item insert failed", zap.String("record_id", rm.RecordID), zap.Error(err))
			continue
		}
		log.Info("scan flagged for review",
			zap.String("record_id", rm.RecordID),
			zap.String("session_id", rm.SessionID),
			zap.Float64("trust_score", rm.TrustScore),
			zap.String("reason", rm.Reason))
	}

	log.Info("worker stopped")
}
