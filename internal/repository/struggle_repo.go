package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"edupulse-backend/internal/models"
)

type StruggleRepo struct {
	pool *pgxpool.Pool
}

func NewStruggleRepo(pool *pgxpool.Pool) *StruggleRepo {
	return &StruggleRepo{pool: pool}
}

func (r *StruggleRepo) Insert(ctx context.Context, e *models.StruggleEvent) error {
	query := `INSERT INTO struggle_events
		(id, tenant_id, user_id, course_id, risk_level, confidence, contributing_factors,
		 signal_count, signal_window_minutes, model_version, detected_at, valid_until)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (id) DO NOTHING`

	_, err := r.pool.Exec(ctx, query,
		e.ID, e.TenantID, e.UserID, e.CourseID, e.RiskLevel, e.Confidence, e.ContributingFactors,
		e.SignalCount, e.SignalWindowMinutes, e.ModelVersion, e.DetectedAt, e.ValidUntil,
	)
	return err
}

// AttachOutcome stamps ground truth on the learner's most recent risk
// assessment once their reaction to the resulting intervention is in.
// COALESCE-guarded so a later writer cannot overwrite a recorded
// outcome.
func (r *StruggleRepo) AttachOutcome(ctx context.Context, tenantID, userID uuid.UUID, triggered bool, effective, actualStruggle *bool) error {
	query := `UPDATE struggle_events
		SET intervention_triggered = COALESCE(intervention_triggered, $3),
			intervention_effective = COALESCE(intervention_effective, $4),
			actual_struggle_occurred = COALESCE(actual_struggle_occurred, $5)
		WHERE id = (
			SELECT id FROM struggle_events
			WHERE tenant_id = $1 AND user_id = $2
			ORDER BY detected_at DESC
			LIMIT 1
		)`

	_, err := r.pool.Exec(ctx, query, tenantID, userID, triggered, effective, actualStruggle)
	return err
}

// ListConsentingScores returns each consenting student's most recent
// risk level for the course. The consent filter is part of the query:
// rows of students without a live benchmark-comparison grant are never
// read out of the table.
func (r *StruggleRepo) ListConsentingScores(ctx context.Context, courseID, conceptID, assessmentID string) ([]float64, error) {
	query := `SELECT DISTINCT ON (e.user_id) e.risk_level
		FROM struggle_events e
		WHERE e.course_id = $1
		  AND ($2 = '' OR e.concept_id = $2)
		  AND ($3 = '' OR e.assessment_id = $3)
		  AND EXISTS (
			SELECT 1 FROM analytics_privacy_consent c
			WHERE c.tenant_id = e.tenant_id
			  AND c.student_id = e.user_id
			  AND (c.course_id = e.course_id OR c.course_id IS NULL)
			  AND c.benchmark_comparison = TRUE
			  AND c.withdrawn_at IS NULL
		  )
		ORDER BY e.user_id, e.detected_at DESC`

	rows, err := r.pool.Query(ctx, query, courseID, conceptID, assessmentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var scores []float64
	for rows.Next() {
		var score float64
		if err := rows.Scan(&score); err != nil {
			return nil, err
		}
		scores = append(scores, score)
	}
	return scores, rows.Err()
}
