package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"edupulse-backend/internal/models"
)

type ConsentRepo struct {
	pool *pgxpool.Pool
}

func NewConsentRepo(pool *pgxpool.Pool) *ConsentRepo {
	return &ConsentRepo{pool: pool}
}

// Get returns the governing consent for a student: a course-scoped row
// if one exists, otherwise the tenant-wide row. Nil with nil error means
// no consent on file (the gate treats that as a denial).
func (r *ConsentRepo) Get(ctx context.Context, tenantID, studentID uuid.UUID, courseID string) (*models.PrivacyConsent, error) {
	c := &models.PrivacyConsent{}
	query := `SELECT id, tenant_id, student_id, COALESCE(course_id, ''),
		performance_analytics, predictive_analytics, benchmark_comparison, instructor_visibility,
		retention_days, anonymization_required, withdrawn_at, updated_at
		FROM analytics_privacy_consent
		WHERE tenant_id = $1
		  AND student_id = $2
		  AND (course_id = $3 OR course_id IS NULL)
		ORDER BY course_id NULLS LAST
		LIMIT 1`

	err := r.pool.QueryRow(ctx, query, tenantID, studentID, courseID).Scan(
		&c.ID, &c.TenantID, &c.StudentID, &c.CourseID,
		&c.PerformanceAnalytics, &c.PredictiveAnalytics, &c.BenchmarkComparison, &c.InstructorVisibility,
		&c.RetentionDays, &c.AnonymizationRequired, &c.WithdrawnAt, &c.UpdatedAt,
	)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return c, nil
}

// Upsert writes the student's grants. An upsert clears any previous
// withdrawal: re-consenting is an explicit new grant.
func (r *ConsentRepo) Upsert(ctx context.Context, c *models.PrivacyConsent) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}

	query := `INSERT INTO analytics_privacy_consent
		(id, tenant_id, student_id, course_id, performance_analytics, predictive_analytics,
		 benchmark_comparison, instructor_visibility, retention_days, anonymization_required, updated_at)
		VALUES ($1, $2, $3, NULLIF($4, ''), $5, $6, $7, $8, $9, $10, NOW())
		ON CONFLICT (tenant_id, student_id, course_id)
		DO UPDATE SET
			performance_analytics = EXCLUDED.performance_analytics,
			predictive_analytics = EXCLUDED.predictive_analytics,
			benchmark_comparison = EXCLUDED.benchmark_comparison,
			instructor_visibility = EXCLUDED.instructor_visibility,
			retention_days = EXCLUDED.retention_days,
			anonymization_required = EXCLUDED.anonymization_required,
			withdrawn_at = NULL,
			updated_at = NOW()
		RETURNING id, updated_at`

	return r.pool.QueryRow(ctx, query,
		c.ID, c.TenantID, c.StudentID, c.CourseID,
		c.PerformanceAnalytics, c.PredictiveAnalytics, c.BenchmarkComparison, c.InstructorVisibility,
		c.RetentionDays, c.AnonymizationRequired,
	).Scan(&c.ID, &c.UpdatedAt)
}

// Withdraw stamps the withdrawal time on every consent row the student
// holds in the tenant. From that moment all four grants are void.
func (r *ConsentRepo) Withdraw(ctx context.Context, tenantID, studentID uuid.UUID, at time.Time) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE analytics_privacy_consent
		SET withdrawn_at = $3,
			updated_at = NOW()
		WHERE tenant_id = $1
		  AND student_id = $2
		  AND withdrawn_at IS NULL
	`, tenantID, studentID, at)
	return err
}
