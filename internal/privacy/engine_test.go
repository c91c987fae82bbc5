package privacy

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/google/uuid"

	"edupulse-backend/internal/models"
)

type fakeBenchmarkStore struct {
	cached  *models.AnonymizedBenchmark
	getErr  error
	saveErr error
	saved   []*models.AnonymizedBenchmark
}

func (f *fakeBenchmarkStore) GetCached(ctx context.Context, courseID, benchmarkType, aggregationLevel, conceptID, assessmentID string) (*models.AnonymizedBenchmark, error) {
	return f.cached, f.getErr
}

func (f *fakeBenchmarkStore) Save(ctx context.Context, benchmark *models.AnonymizedBenchmark) error {
	if f.saveErr != nil {
		return f.saveErr
	}
	f.saved = append(f.saved, benchmark)
	return nil
}

type fakeScoreReader struct {
	scores []float64
	err    error
}

func (f *fakeScoreReader) ListConsentingScores(ctx context.Context, courseID, conceptID, assessmentID string) ([]float64, error) {
	return f.scores, f.err
}

func uniformScores(n int) []float64 {
	scores := make([]float64, n)
	for i := range scores {
		scores[i] = float64(i%10)/10 + 0.05
	}
	return scores
}

func testEngine(store *fakeBenchmarkStore, reader *fakeScoreReader, audit AuditSink) *Engine {
	return NewEngine(store, reader, seededSource(5), audit)
}

func getBenchmark(e *Engine, benchmarkType string) (*models.AnonymizedBenchmark, error) {
	return e.GetOrCreateBenchmark(context.Background(), uuid.New(),
		Accessor{ID: "instructor-1", Type: "instructor"},
		"course-1", benchmarkType, "course", "", "")
}

func TestEpsilonForSample_Tiers(t *testing.T) {
	tests := []struct {
		n        int
		expected float64
	}{
		{1, 0.1},
		{49, 0.1},
		{50, 1.0},
		{99, 1.0},
		{100, 5.0},
		{5000, 5.0},
	}
	for _, tc := range tests {
		if got := epsilonForSample(tc.n); got != tc.expected {
			t.Errorf("epsilonForSample(%d): expected %f, got %f", tc.n, tc.expected, got)
		}
	}
}

func TestGetOrCreateBenchmark_UnknownType(t *testing.T) {
	e := testEngine(&fakeBenchmarkStore{}, &fakeScoreReader{}, nil)
	if _, err := getBenchmark(e, "mind-reading"); err == nil {
		t.Fatal("Expected error for unknown benchmark type")
	}
}

func TestGetOrCreateBenchmark_MinimumSampleGate(t *testing.T) {
	tests := []struct {
		benchmarkType string
		minSample     int
	}{
		{models.BenchmarkCourseAverage, 10},
		{models.BenchmarkPercentileBands, 20},
		{models.BenchmarkDifficultyCalibration, 30},
	}

	for _, tc := range tests {
		t.Run(tc.benchmarkType, func(t *testing.T) {
			// One short of the floor: nothing released, no cache write.
			store := &fakeBenchmarkStore{}
			audit := &fakeAuditSink{}
			e := testEngine(store, &fakeScoreReader{scores: uniformScores(tc.minSample - 1)}, audit)

			benchmark, err := getBenchmark(e, tc.benchmarkType)
			if err != nil {
				t.Fatalf("Expected no error below the sample floor, got %v", err)
			}
			if benchmark != nil {
				t.Fatal("Expected nil benchmark below the sample floor")
			}
			if len(store.saved) != 0 {
				t.Error("Expected nothing cached below the sample floor")
			}
			if audit.last(t).Operation != "benchmark:insufficient-sample" {
				t.Errorf("Expected insufficient-sample audit, got %s", audit.last(t).Operation)
			}

			// Exactly at the floor: released.
			e = testEngine(&fakeBenchmarkStore{}, &fakeScoreReader{scores: uniformScores(tc.minSample)}, nil)
			benchmark, err = getBenchmark(e, tc.benchmarkType)
			if err != nil {
				t.Fatalf("Benchmark computation failed: %v", err)
			}
			if benchmark == nil {
				t.Fatal("Expected a benchmark at the sample floor")
			}
		})
	}
}

func TestGetOrCreateBenchmark_ScoreReaderFailure(t *testing.T) {
	e := testEngine(&fakeBenchmarkStore{}, &fakeScoreReader{err: errors.New("connection refused")}, nil)
	if _, err := getBenchmark(e, models.BenchmarkCourseAverage); err == nil {
		t.Fatal("Expected error when scores cannot be loaded")
	}
}

func TestGetOrCreateBenchmark_ValidCacheHit(t *testing.T) {
	now := time.Now().UTC()
	cached := &models.AnonymizedBenchmark{
		ID:            uuid.New(),
		BenchmarkType: models.BenchmarkCourseAverage,
		CalculatedAt:  now.Add(-time.Hour),
		ValidUntil:    now.Add(time.Hour),
	}
	reader := &fakeScoreReader{err: errors.New("must not be called")}
	e := testEngine(&fakeBenchmarkStore{cached: cached}, reader, nil)

	benchmark, err := getBenchmark(e, models.BenchmarkCourseAverage)
	if err != nil {
		t.Fatalf("Cache hit failed: %v", err)
	}
	if benchmark.ID != cached.ID {
		t.Error("Expected the cached benchmark back")
	}
}

func TestGetOrCreateBenchmark_ExpiredCacheRecomputed(t *testing.T) {
	now := time.Now().UTC()
	expired := &models.AnonymizedBenchmark{
		ID:         uuid.New(),
		ValidUntil: now.Add(-time.Minute),
	}
	store := &fakeBenchmarkStore{cached: expired}
	e := testEngine(store, &fakeScoreReader{scores: uniformScores(60)}, nil)

	benchmark, err := getBenchmark(e, models.BenchmarkCourseAverage)
	if err != nil {
		t.Fatalf("Recompute failed: %v", err)
	}
	if benchmark == nil || benchmark.ID == expired.ID {
		t.Fatal("Expected a freshly computed benchmark")
	}
	if len(store.saved) != 1 {
		t.Errorf("Expected the fresh benchmark cached, got %d saves", len(store.saved))
	}
}

func TestGetOrCreateBenchmark_CacheWriteFailureStillReleases(t *testing.T) {
	store := &fakeBenchmarkStore{saveErr: errors.New("disk full")}
	e := testEngine(store, &fakeScoreReader{scores: uniformScores(60)}, nil)

	benchmark, err := getBenchmark(e, models.BenchmarkCourseAverage)
	if err != nil {
		t.Fatalf("Expected release despite cache failure, got %v", err)
	}
	if benchmark == nil {
		t.Fatal("Expected a benchmark")
	}
}

func TestComputeNoised_StatisticsClampedAndTagged(t *testing.T) {
	e := testEngine(&fakeBenchmarkStore{}, nil, nil)
	scores := uniformScores(60)

	benchmark := e.computeNoised(scores, "course-1", models.BenchmarkCourseAverage, "course", "", "")

	for name, v := range map[string]float64{
		"mean":   benchmark.MeanScore,
		"median": benchmark.MedianScore,
		"p25":    benchmark.Percentile25,
		"p75":    benchmark.Percentile75,
		"p90":    benchmark.Percentile90,
	} {
		if v < 0 || v > 1 {
			t.Errorf("Expected %s clamped to [0,1], got %f", name, v)
		}
	}
	if benchmark.StdDeviation < 0 {
		t.Errorf("Expected non-negative std deviation, got %f", benchmark.StdDeviation)
	}
	if benchmark.SampleSize < 0 {
		t.Errorf("Expected non-negative noised sample size, got %d", benchmark.SampleSize)
	}
	if benchmark.Epsilon != 1.0 {
		t.Errorf("Expected epsilon 1.0 for n=60, got %f", benchmark.Epsilon)
	}
	if benchmark.NoiseScale != sensitivity/benchmark.Epsilon {
		t.Errorf("Expected noise scale %f, got %f", sensitivity/benchmark.Epsilon, benchmark.NoiseScale)
	}
	if !benchmark.ValidUntil.After(benchmark.CalculatedAt) {
		t.Error("Expected a forward-looking validity window")
	}
}

func TestComputeNoised_IndependentDraws(t *testing.T) {
	e := testEngine(&fakeBenchmarkStore{}, nil, nil)
	scores := uniformScores(200)

	a := e.computeNoised(scores, "course-1", models.BenchmarkCourseAverage, "course", "", "")
	b := e.computeNoised(scores, "course-1", models.BenchmarkCourseAverage, "course", "", "")

	// Two computations over identical input must not release identical
	// statistics.
	if a.MeanScore == b.MeanScore && a.MedianScore == b.MedianScore && a.Percentile90 == b.Percentile90 {
		t.Error("Expected fresh noise per computation")
	}
}

func TestPercentile_LinearInterpolation(t *testing.T) {
	sorted := []float64{0.1, 0.2, 0.3, 0.4}

	tests := []struct {
		p        float64
		expected float64
	}{
		{0, 0.1},
		{100, 0.4},
		{50, 0.25},
		{25, 0.175},
		{75, 0.325},
	}
	for _, tc := range tests {
		if got := percentile(sorted, tc.p); math.Abs(got-tc.expected) > 1e-9 {
			t.Errorf("percentile(%v, %f): expected %f, got %f", sorted, tc.p, tc.expected, got)
		}
	}

	if got := percentile(nil, 50); got != 0 {
		t.Errorf("Expected 0 for empty sample, got %f", got)
	}
	if got := percentile([]float64{0.7}, 90); got != 0.7 {
		t.Errorf("Expected single element back, got %f", got)
	}
}
