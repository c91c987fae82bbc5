package repository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"edupulse-backend/internal/models"
)

type InterventionRepo struct {
	pool *pgxpool.Pool
}

func NewInterventionRepo(pool *pgxpool.Pool) *InterventionRepo {
	return &InterventionRepo{pool: pool}
}

func (r *InterventionRepo) Create(ctx context.Context, rec *models.InterventionRecord) error {
	query := `INSERT INTO proactive_interventions
		(id, tenant_id, user_id, session_id, intervention_type, message, urgency_level, triggered_at, effectiveness_score)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`

	_, err := r.pool.Exec(ctx, query,
		rec.ID, rec.TenantID, rec.UserID, rec.SessionID,
		rec.InterventionType, rec.Message, rec.UrgencyLevel, rec.TriggeredAt, rec.EffectivenessScore,
	)
	return err
}

func (r *InterventionRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.InterventionRecord, error) {
	rec := &models.InterventionRecord{}
	query := `SELECT id, tenant_id, user_id, session_id, intervention_type, message, urgency_level,
		triggered_at, delivered_at, acknowledged_at, dismissed_at, COALESCE(user_response, ''), effectiveness_score
		FROM proactive_interventions WHERE id = $1`

	err := r.pool.QueryRow(ctx, query, id).Scan(
		&rec.ID, &rec.TenantID, &rec.UserID, &rec.SessionID, &rec.InterventionType, &rec.Message, &rec.UrgencyLevel,
		&rec.TriggeredAt, &rec.DeliveredAt, &rec.AcknowledgedAt, &rec.DismissedAt, &rec.UserResponse, &rec.EffectivenessScore,
	)
	if err != nil {
		return nil, err
	}
	return rec, nil
}

// Lifecycle transitions are guarded updates: each stage is written at
// most once, with no read-modify-write.

func (r *InterventionRepo) MarkDelivered(ctx context.Context, id uuid.UUID, at time.Time) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE proactive_interventions
		SET delivered_at = $2
		WHERE id = $1 AND delivered_at IS NULL
	`, id, at)
	return err
}

func (r *InterventionRepo) MarkAcknowledged(ctx context.Context, id uuid.UUID, at time.Time) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE proactive_interventions
		SET acknowledged_at = $2
		WHERE id = $1 AND acknowledged_at IS NULL AND dismissed_at IS NULL
	`, id, at)
	return err
}

func (r *InterventionRepo) MarkDismissed(ctx context.Context, id uuid.UUID, at time.Time) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE proactive_interventions
		SET dismissed_at = $2
		WHERE id = $1 AND dismissed_at IS NULL AND acknowledged_at IS NULL
	`, id, at)
	return err
}

func (r *InterventionRepo) RecordOutcome(ctx context.Context, id uuid.UUID, response string, effectiveness float64) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE proactive_interventions
		SET user_response = $2,
			effectiveness_score = $3
		WHERE id = $1 AND user_response IS NULL
	`, id, response, effectiveness)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		// A concurrent response won the guard; nothing was written.
		return errors.New("intervention response already recorded")
	}
	return nil
}

// LastDismissedAt returns when the learner last dismissed an
// intervention, or nil if they never have.
func (r *InterventionRepo) LastDismissedAt(ctx context.Context, tenantID, userID uuid.UUID) (*time.Time, error) {
	var at time.Time
	err := r.pool.QueryRow(ctx, `
		SELECT dismissed_at
		FROM proactive_interventions
		WHERE tenant_id = $1 AND user_id = $2 AND dismissed_at IS NOT NULL
		ORDER BY dismissed_at DESC
		LIMIT 1
	`, tenantID, userID).Scan(&at)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &at, nil
}
