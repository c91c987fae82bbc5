package worker

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"edupulse-backend/internal/models"
)

const (
	QueueSignalPersist  = "queue:signal-persist"
	QueueStruggleEvents = "queue:struggle-events"
	QueueAuditLog       = "queue:audit-log"

	enqueueTimeout = 2 * time.Second
)

type signalJob struct {
	Signal    models.BehavioralSignal `json:"signal"`
	TenantID  uuid.UUID               `json:"tenant_id"`
	LearnerID uuid.UUID               `json:"learner_id"`
	CourseID  string                  `json:"course_id"`
}

// Producer pushes persistence jobs onto redis so the ingestion hot path
// never waits on Postgres. Every method is fire-and-forget: a failed
// enqueue is logged and dropped.
type Producer struct {
	redis *redis.Client
}

func NewProducer(redisClient *redis.Client) *Producer {
	return &Producer{redis: redisClient}
}

func (p *Producer) EnqueueSignal(signal models.BehavioralSignal, session models.LearnerSession) {
	p.push(QueueSignalPersist, signalJob{
		Signal:    signal,
		TenantID:  session.TenantID,
		LearnerID: session.LearnerID,
		CourseID:  session.CourseID,
	})
}

func (p *Producer) EnqueueStruggleEvent(event models.StruggleEvent) {
	p.push(QueueStruggleEvents, event)
}

func (p *Producer) EnqueueAudit(entry models.AuditLogEntry) {
	p.push(QueueAuditLog, entry)
}

func (p *Producer) push(queue string, payload interface{}) {
	data, err := json.Marshal(payload)
	if err != nil {
		log.Printf("Failed to marshal job for %s: %v", queue, err)
		return
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), enqueueTimeout)
		defer cancel()
		if err := p.redis.RPush(ctx, queue, data).Err(); err != nil {
			log.Printf("Failed to enqueue job on %s: %v", queue, err)
		}
	}()
}
