package main

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"presence/internal/config"
	"presence/internal/logging"
	"presence/internal/queue"
	"presence/internal/store"
)

// The worker drains the audit queue and writes each decision to the log
// stream, giving operators a durable trail of accepted and rejected
// check-ins without coupling the request path to log shipping.
func main() {
	_ = godotenv.Load()
	cfg := config.Load()

	log := logging.Setup(cfg.LogLevel, cfg.LogFormat)
	defer func() { _ = log.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	redisClient := store.NewRedis(cfg.RedisAddr)
	defer redisClient.Client.Close()

	var q queue.Queue
	if cfg.QueueBackend == "memory" {
		// A memory queue is process-local; a separate worker would read
		// nothing. Still supported for running the loop in one process.
		q = queue.NewInMemory(256)
	} else {
		q = queue.NewRedisQueue(redisClient.Client, "presence:audit")
	}

	events, err := q.Consume(ctx)
	if err != nil {
		log.Fatal("queue consume init failed", zap.Error(err))
	}

	log.Info("audit worker started")
	for evt := range events {
		fields := []zap.Field{
			zap.String("kind", evt.Kind),
			zap.String("actor_id", evt.ActorID),
			zap.String("session_id", evt.SessionID),
			zap.Time("at", evt.At),
		}
		switch evt.Kind {
		case queue.KindAccepted:
			fields = append(fields,
				zap.String("record_id", evt.RecordID),
				zap.String("status", evt.Status),
			)
			log.Info("check-in accepted", fields...)
		case queue.KindRejected:
			fields = append(fields,
				zap.String("error_kind", evt.ErrorKind),
				zap.String("detail", evt.Detail),
			)
			log.Warn("check-in rejected", fields...)
		default:
			log.Warn("unknown audit event", fields...)
		}
	}
	log.Info("audit worker stopped")
}
