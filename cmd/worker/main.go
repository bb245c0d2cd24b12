package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"faceattend/internal/attendance"
	"faceattend/internal/config"
	"faceattend/internal/queue"
	"faceattend/internal/store"
)

// Worker consumes accepted-match events and maintains the recent-attendance
// feed in Redis.
func main() {
	cfg := config.Load()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Println("shutdown signal received")
		cancel()
	}()

	redisClient := store.NewRedis(cfg.RedisAddr)

	var q queue.Queue
	if cfg.QueueBackend == "memory" {
		q = queue.NewInMemory(64)
	} else {
		q = queue.NewRedisQueue(redisClient.Client, "")
	}

	messages, err := q.Consume(ctx)
	if err != nil {
		log.Fatalf("queue consume init failed: %v", err)
	}

	log.Println("worker started, waiting for attendance events...")
	for msg := range messages {
		if msg.Type != attendance.EventType {
			continue
		}
		if err := redisClient.PushRecent(ctx, msg.Body); err != nil {
			log.Printf("feed update failed: %v", err)
			continue
		}
		log.Printf("feed updated (%d bytes)", len(msg.Body))
	}

	log.Println("worker stopped")
}
