package main

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"classattend/internal/config"
	"classattend/internal/enroll"
	"classattend/internal/faceclient"
	"classattend/internal/metrics"
	"classattend/internal/postgres"
	"classattend/internal/queue"
	"classattend/internal/store"
)

type enrollJob struct {
	IdentityID string `json:"identity_id"`
	ImageURL   string `json:"image_url"`
}

// Worker consumes enrollment jobs, asks the face service for an embedding,
// runs the duplicate-identity check and persists the embedding.
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

	db, err := store.NewDB(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("db connect failed: %v", err)
	}
	defer db.Close()

	repo := postgres.NewRepository(db.Client)
	if err := repo.EnsureSchema(ctx); err != nil {
		log.Fatalf("schema check failed: %v", err)
	}

	redisClient := store.NewRedis(cfg.RedisAddr)

	var q queue.Queue
	if cfg.QueueBackend == "memory" {
		q = queue.NewInMemory(64)
	} else {
		q = queue.NewRedisQueue(redisClient.Client, "classattend:enrollments")
	}

	face := faceclient.New(cfg.FaceServiceURL, cfg.FaceSkip)
	enrollSvc := enroll.NewService(repo, cfg.MatchThreshold)

	if !cfg.FaceSkip {
		if err := face.Health(ctx); err != nil {
			log.Printf("WARNING: Face service not available: %v", err)
			log.Println("Worker will retry face processing when jobs arrive")
		} else {
			log.Println("Face service connected")
		}
	}

	messages, err := q.Consume(ctx)
	if err != nil {
		log.Fatalf("queue consume init failed: %v", err)
	}

	log.Println("worker started, waiting for enrollment jobs...")
	for msg := range messages {
		if msg.Type != "enroll" {
			continue
		}

		var job enrollJob
		if err := json.Unmarshal(msg.Body, &job); err != nil {
			log.Printf("malformed enrollment job: %v", err)
			metrics.Enrollments.WithLabelValues("failed").Inc()
			continue
		}
		log.Printf("enrolling identity %s", job.IdentityID)

		embedding, err := face.Embed(ctx, job.ImageURL)
		if err != nil {
			log.Printf("face embed failed for %s: %v", job.IdentityID, err)
			metrics.Enrollments.WithLabelValues("failed").Inc()
			continue
		}

		err = enrollSvc.Enroll(ctx, job.IdentityID, embedding, time.Now())
		switch {
		case err == nil:
			log.Printf("identity %s enrolled", job.IdentityID)
			metrics.Enrollments.WithLabelValues("enrolled").Inc()
		case isDuplicate(err):
			log.Printf("enrollment rejected for %s: %v", job.IdentityID, err)
			metrics.Enrollments.WithLabelValues("duplicate").Inc()
		case errors.Is(err, enroll.ErrAlreadyEnrolled), errors.Is(err, enroll.ErrUnknownIdentity):
			log.Printf("enrollment conflict for %s: %v", job.IdentityID, err)
			metrics.Enrollments.WithLabelValues("failed").Inc()
		default:
			log.Printf("enrollment failed for %s: %v", job.IdentityID, err)
			metrics.Enrollments.WithLabelValues("failed").Inc()
		}
	}

	log.Println("worker stopped")
}

func isDuplicate(err error) bool {
	var dup *enroll.DuplicateError
	return errors.As(err, &dup)
}
