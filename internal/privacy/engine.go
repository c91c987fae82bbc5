package privacy

import (
	"context"
	"fmt"
	"log"
	"math"
	"sort"
	"time"

	"github.com/google/uuid"

	"edupulse-backend/internal/models"
)

const (
	// Sensitivity is fixed at 1.0: scores are normalized to [0,1], so one
	// student can move an aggregate by at most one unit.
	sensitivity = 1.0

	benchmarkValidFor = 7 * 24 * time.Hour
)

// epsilonForSample applies the privacy-budget tiering: small cohorts get
// the strongest noise.
func epsilonForSample(n int) float64 {
	switch {
	case n < 50:
		return 0.1
	case n < 100:
		return 1.0
	default:
		return 5.0
	}
}

// BenchmarkStore caches released benchmarks. Expired rows are replaced
// by fresh computations, never patched.
type BenchmarkStore interface {
	GetCached(ctx context.Context, courseID, benchmarkType, aggregationLevel, conceptID, assessmentID string) (*models.AnonymizedBenchmark, error)
	Save(ctx context.Context, benchmark *models.AnonymizedBenchmark) error
}

// ScoreReader returns the normalized [0,1] scores of students whose
// consent grants benchmark comparison for the course. The consent filter
// lives in the query so non-consenting rows are never loaded.
type ScoreReader interface {
	ListConsentingScores(ctx context.Context, courseID, conceptID, assessmentID string) ([]float64, error)
}

// Engine computes differentially-private cross-student benchmarks.
// Stateless and safe for concurrent use; no shared lock is held while
// computing.
type Engine struct {
	benchmarks BenchmarkStore
	scores     ScoreReader
	noise      *NoiseSource
	audit      AuditSink
}

func NewEngine(benchmarks BenchmarkStore, scores ScoreReader, noise *NoiseSource, audit AuditSink) *Engine {
	return &Engine{benchmarks: benchmarks, scores: scores, noise: noise, audit: audit}
}

// GetOrCreateBenchmark returns a still-valid cached benchmark, or
// computes, noises, caches, and returns a fresh one. It returns
// (nil, nil) when the consenting sample is below the type-specific
// minimum: no partial or degraded statistic is ever released.
func (e *Engine) GetOrCreateBenchmark(ctx context.Context, tenantID uuid.UUID, accessor Accessor, courseID, benchmarkType, aggregationLevel, conceptID, assessmentID string) (*models.AnonymizedBenchmark, error) {
	minSample := models.MinSampleSize(benchmarkType)
	if minSample == 0 {
		return nil, fmt.Errorf("unknown benchmark type %q", benchmarkType)
	}

	resource := fmt.Sprintf("benchmark %s/%s course=%s", benchmarkType, aggregationLevel, courseID)

	cached, err := e.benchmarks.GetCached(ctx, courseID, benchmarkType, aggregationLevel, conceptID, assessmentID)
	if err != nil {
		log.Printf("Benchmark cache lookup failed for course %s: %v", courseID, err)
	} else if cached != nil && cached.Valid(time.Now().UTC()) {
		e.recordAccess(tenantID, accessor, "benchmark:read-cached", resource)
		return cached, nil
	}

	rawScores, err := e.scores.ListConsentingScores(ctx, courseID, conceptID, assessmentID)
	if err != nil {
		return nil, fmt.Errorf("failed to load consenting scores: %w", err)
	}

	if len(rawScores) < minSample {
		e.recordAccess(tenantID, accessor, "benchmark:insufficient-sample", resource)
		return nil, nil
	}

	benchmark := e.computeNoised(rawScores, courseID, benchmarkType, aggregationLevel, conceptID, assessmentID)
	e.recordAccess(tenantID, accessor, "benchmark:computed", resource)

	if err := e.benchmarks.Save(ctx, benchmark); err != nil {
		// The released statistic is already safe; caching is best-effort.
		log.Printf("Benchmark cache write failed for course %s: %v", courseID, err)
	}

	return benchmark, nil
}

func (e *Engine) recordAccess(tenantID uuid.UUID, accessor Accessor, operation, resource string) {
	if e.audit == nil {
		return
	}
	e.audit.EnqueueAudit(models.AuditLogEntry{
		ID:        uuid.New(),
		TenantID:  tenantID,
		ActorID:   accessor.ID,
		ActorType: accessor.Type,
		Operation: operation,
		Resource:  resource,
		Allowed:   true,
		CreatedAt: time.Now().UTC(),
	})
}

// computeNoised derives every released statistic from the raw sample and
// adds an independent Laplace draw to each one, including the sample
// size itself, before clamping back into valid ranges.
func (e *Engine) computeNoised(rawScores []float64, courseID, benchmarkType, aggregationLevel, conceptID, assessmentID string) *models.AnonymizedBenchmark {
	n := len(rawScores)
	epsilon := epsilonForSample(n)

	sorted := make([]float64, n)
	copy(sorted, rawScores)
	sort.Float64s(sorted)

	sum := 0.0
	for _, score := range sorted {
		sum += score
	}
	mean := sum / float64(n)

	// The spread estimate re-draws a noised mean for every term of the
	// sum of squares. This is the engine's documented privacy correction
	// for the variance; do not collapse it into a classical two-pass
	// variance.
	sumSquares := 0.0
	for _, score := range sorted {
		noisyMean := mean + e.noise.Laplace(sensitivity, epsilon)
		d := score - noisyMean
		sumSquares += d * d
	}
	stdDev := 0.0
	if n > 1 {
		stdDev = math.Sqrt(sumSquares / float64(n-1))
	}

	now := time.Now().UTC()
	benchmark := &models.AnonymizedBenchmark{
		ID:               uuid.New(),
		CourseID:         courseID,
		BenchmarkType:    benchmarkType,
		AggregationLevel: aggregationLevel,
		ConceptID:        conceptID,
		AssessmentID:     assessmentID,
		SampleSize:       noisedCount(n, e.noise.Laplace(sensitivity, epsilon)),
		MeanScore:        clampScore(mean + e.noise.Laplace(sensitivity, epsilon)),
		MedianScore:      clampScore(percentile(sorted, 50) + e.noise.Laplace(sensitivity, epsilon)),
		StdDeviation:     clampSpread(stdDev + e.noise.Laplace(sensitivity, epsilon)),
		Percentile25:     clampScore(percentile(sorted, 25) + e.noise.Laplace(sensitivity, epsilon)),
		Percentile75:     clampScore(percentile(sorted, 75) + e.noise.Laplace(sensitivity, epsilon)),
		Percentile90:     clampScore(percentile(sorted, 90) + e.noise.Laplace(sensitivity, epsilon)),
		Epsilon:          epsilon,
		NoiseScale:       sensitivity / epsilon,
		CalculatedAt:     now,
		ValidUntil:       now.Add(benchmarkValidFor),
	}
	return benchmark
}

// percentile interpolates linearly between order statistics of an
// already-sorted sample.
func percentile(sorted []float64, p float64) float64 {
	if len(sorted) == 0 {
		return 0
	}
	if len(sorted) == 1 {
		return sorted[0]
	}

	rank := p / 100 * float64(len(sorted)-1)
	lower := int(math.Floor(rank))
	upper := int(math.Ceil(rank))
	if lower == upper {
		return sorted[lower]
	}
	frac := rank - float64(lower)
	return sorted[lower] + frac*(sorted[upper]-sorted[lower])
}

func clampScore(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func clampSpread(v float64) float64 {
	if v < 0 {
		return 0
	}
	return v
}

func noisedCount(n int, noise float64) int {
	count := n + int(math.Round(noise))
	if count < 0 {
		return 0
	}
	return count
}
