package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"edupulse-backend/internal/models"
)

type SignalRepo struct {
	pool *pgxpool.Pool
}

func NewSignalRepo(pool *pgxpool.Pool) *SignalRepo {
	return &SignalRepo{pool: pool}
}

// Insert appends one behavioral signal. Signals are immutable; there is
// no update path.
func (r *SignalRepo) Insert(ctx context.Context, s models.BehavioralSignal, tenantID, learnerID uuid.UUID, courseID string) error {
	query := `INSERT INTO behavioral_signals
		(id, tenant_id, learner_id, course_id, session_id, signal_type, duration_ms, element_context, page_content_hash, occurred_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (id) DO NOTHING`

	_, err := r.pool.Exec(ctx, query,
		s.ID, tenantID, learnerID, courseID, s.SessionID,
		s.SignalType, s.DurationMs, s.ElementContext, s.PageContentHash, s.Timestamp,
	)
	return err
}

// ListRecentByUser returns a learner's signals since the cutoff, oldest
// first, optionally narrowed to one course.
func (r *SignalRepo) ListRecentByUser(ctx context.Context, tenantID, userID uuid.UUID, courseID string, since time.Time) ([]models.BehavioralSignal, error) {
	query := `SELECT id, session_id, signal_type, duration_ms, element_context, page_content_hash, occurred_at
		FROM behavioral_signals
		WHERE tenant_id = $1
		  AND learner_id = $2
		  AND occurred_at >= $3
		  AND ($4 = '' OR course_id = $4)
		ORDER BY occurred_at ASC`

	rows, err := r.pool.Query(ctx, query, tenantID, userID, since, courseID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var signals []models.BehavioralSignal
	for rows.Next() {
		var s models.BehavioralSignal
		if err := rows.Scan(&s.ID, &s.SessionID, &s.SignalType, &s.DurationMs, &s.ElementContext, &s.PageContentHash, &s.Timestamp); err != nil {
			return nil, err
		}
		signals = append(signals, s)
	}
	return signals, rows.Err()
}

// DeleteSignalsOlderThan prunes interaction rows past the retention
// window. Safe to run repeatedly; a second pass deletes nothing.
func (r *SignalRepo) DeleteSignalsOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := r.pool.Exec(ctx, `DELETE FROM behavioral_signals WHERE occurred_at < $1`, cutoff)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
