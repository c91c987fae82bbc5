package repository

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"edupulse-backend/internal/models"
)

type BenchmarkRepo struct {
	pool *pgxpool.Pool
}

func NewBenchmarkRepo(pool *pgxpool.Pool) *BenchmarkRepo {
	return &BenchmarkRepo{pool: pool}
}

// GetCached returns the newest benchmark for the key, expired or not;
// the engine decides whether it is still releasable. Nil means no row.
func (r *BenchmarkRepo) GetCached(ctx context.Context, courseID, benchmarkType, aggregationLevel, conceptID, assessmentID string) (*models.AnonymizedBenchmark, error) {
	b := &models.AnonymizedBenchmark{}
	query := `SELECT id, course_id, benchmark_type, aggregation_level,
		COALESCE(concept_id, ''), COALESCE(assessment_id, ''),
		sample_size, mean_score, median_score, std_deviation,
		percentile_25, percentile_75, percentile_90,
		epsilon, noise_scale, calculated_at, valid_until
		FROM anonymized_benchmarks
		WHERE course_id = $1
		  AND benchmark_type = $2
		  AND aggregation_level = $3
		  AND COALESCE(concept_id, '') = $4
		  AND COALESCE(assessment_id, '') = $5
		ORDER BY calculated_at DESC
		LIMIT 1`

	err := r.pool.QueryRow(ctx, query, courseID, benchmarkType, aggregationLevel, conceptID, assessmentID).Scan(
		&b.ID, &b.CourseID, &b.BenchmarkType, &b.AggregationLevel, &b.ConceptID, &b.AssessmentID,
		&b.SampleSize, &b.MeanScore, &b.MedianScore, &b.StdDeviation,
		&b.Percentile25, &b.Percentile75, &b.Percentile90,
		&b.Epsilon, &b.NoiseScale, &b.CalculatedAt, &b.ValidUntil,
	)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return b, nil
}

func (r *BenchmarkRepo) Save(ctx context.Context, b *models.AnonymizedBenchmark) error {
	query := `INSERT INTO anonymized_benchmarks
		(id, course_id, benchmark_type, aggregation_level, concept_id, assessment_id,
		 sample_size, mean_score, median_score, std_deviation,
		 percentile_25, percentile_75, percentile_90,
		 epsilon, noise_scale, calculated_at, valid_until)
		VALUES ($1, $2, $3, $4, NULLIF($5, ''), NULLIF($6, ''), $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)`

	_, err := r.pool.Exec(ctx, query,
		b.ID, b.CourseID, b.BenchmarkType, b.AggregationLevel, b.ConceptID, b.AssessmentID,
		b.SampleSize, b.MeanScore, b.MedianScore, b.StdDeviation,
		b.Percentile25, b.Percentile75, b.Percentile90,
		b.Epsilon, b.NoiseScale, b.CalculatedAt, b.ValidUntil,
	)
	return err
}
