package worker

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"github.com/redis/go-redis/v9"

	"edupulse-backend/internal/models"
	"edupulse-backend/internal/repository"
)

// Pool drains the best-effort persistence queues. A job that cannot be
// parsed or written is logged and dropped; the data it carried was never
// correctness-critical for the live engine.
type Pool struct {
	redis        *redis.Client
	signalRepo   *repository.SignalRepo
	struggleRepo *repository.StruggleRepo
	auditRepo    *repository.AuditRepo
	workerCount  int
	stopChan     chan struct{}
}

func NewPool(
	redisClient *redis.Client,
	signalRepo *repository.SignalRepo,
	struggleRepo *repository.StruggleRepo,
	auditRepo *repository.AuditRepo,
	workerCount int,
) *Pool {
	return &Pool{
		redis:        redisClient,
		signalRepo:   signalRepo,
		struggleRepo: struggleRepo,
		auditRepo:    auditRepo,
		workerCount:  workerCount,
		stopChan:     make(chan struct{}),
	}
}

func (p *Pool) Start() {
	queues := []string{
		QueueSignalPersist,
		QueueStruggleEvents,
		QueueAuditLog,
	}

	for i := 0; i < p.workerCount; i++ {
		go p.worker(i, queues)
	}

	log.Printf("Started %d persistence worker goroutines", p.workerCount)
}

func (p *Pool) Stop() {
	close(p.stopChan)
}

func (p *Pool) worker(id int, queues []string) {
	for {
		select {
		case <-p.stopChan:
			log.Printf("Worker %d shutting down", id)
			return
		default:
		}

		ctx := context.Background()

		// BLPOP with a short timeout so shutdown is responsive
		result, err := p.redis.BLPop(ctx, 5*time.Second, queues...).Result()
		if err != nil {
			continue // Timeout or error, retry
		}

		if len(result) < 2 {
			continue
		}

		p.handle(ctx, result[0], []byte(result[1]), id)
	}
}

func (p *Pool) handle(ctx context.Context, queue string, payload []byte, workerID int) {
	writeCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	switch queue {
	case QueueSignalPersist:
		var job signalJob
		if err := json.Unmarshal(payload, &job); err != nil {
			log.Printf("Worker %d: failed to parse signal job: %v", workerID, err)
			return
		}
		if err := p.signalRepo.Insert(writeCtx, job.Signal, job.TenantID, job.LearnerID, job.CourseID); err != nil {
			log.Printf("Worker %d: signal persist failed for session %s: %v", workerID, job.Signal.SessionID, err)
		}

	case QueueStruggleEvents:
		var event models.StruggleEvent
		if err := json.Unmarshal(payload, &event); err != nil {
			log.Printf("Worker %d: failed to parse struggle event: %v", workerID, err)
			return
		}
		if err := p.struggleRepo.Insert(writeCtx, &event); err != nil {
			log.Printf("Worker %d: struggle event persist failed for user %s: %v", workerID, event.UserID, err)
		}

	case QueueAuditLog:
		var entry models.AuditLogEntry
		if err := json.Unmarshal(payload, &entry); err != nil {
			log.Printf("Worker %d: failed to parse audit entry: %v", workerID, err)
			return
		}
		if err := p.auditRepo.Insert(writeCtx, entry); err != nil {
			log.Printf("Worker %d: audit log persist failed: %v", workerID, err)
		}

	default:
		log.Printf("Worker %d: unknown queue %s", workerID, queue)
	}
}
