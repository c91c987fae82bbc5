package models

import (
	"time"

	"github.com/google/uuid"
)

// Benchmark types with their minimum consenting sample sizes.
const (
	BenchmarkCourseAverage         = "course-average"
	BenchmarkPercentileBands       = "percentile-bands"
	BenchmarkDifficultyCalibration = "difficulty-calibration"
)

// MinSampleSize returns the hard floor of raw consenting records for a
// benchmark type, or 0 for an unknown type.
func MinSampleSize(benchmarkType string) int {
	switch benchmarkType {
	case BenchmarkCourseAverage:
		return 10
	case BenchmarkPercentileBands:
		return 20
	case BenchmarkDifficultyCalibration:
		return 30
	default:
		return 0
	}
}

// AnonymizedBenchmark is a cached noised aggregate. It always expires and
// is recomputed, never patched in place.
type AnonymizedBenchmark struct {
	ID               uuid.UUID `json:"id"`
	CourseID         string    `json:"course_id"`
	BenchmarkType    string    `json:"benchmark_type"`
	AggregationLevel string    `json:"aggregation_level"`
	ConceptID        string    `json:"concept_id,omitempty"`
	AssessmentID     string    `json:"assessment_id,omitempty"`
	SampleSize       int       `json:"sample_size"` // noised
	MeanScore        float64   `json:"mean_score"`
	MedianScore      float64   `json:"median_score"`
	StdDeviation     float64   `json:"std_deviation"`
	Percentile25     float64   `json:"percentile_25"`
	Percentile75     float64   `json:"percentile_75"`
	Percentile90     float64   `json:"percentile_90"`
	Epsilon          float64   `json:"epsilon"`
	NoiseScale       float64   `json:"noise_scale"`
	CalculatedAt     time.Time `json:"calculated_at"`
	ValidUntil       time.Time `json:"valid_until"`
}

// Valid reports whether the cached benchmark is still releasable.
func (b *AnonymizedBenchmark) Valid(now time.Time) bool {
	return now.Before(b.ValidUntil)
}
