package privacy

import (
	cryptorand "crypto/rand"
	"math"
	mathrand "math/rand/v2"
	"sync"
)

// NoiseSource draws calibrated differential-privacy noise. The samplers
// are pure in (sensitivity, epsilon[, delta]); all randomness comes from
// a ChaCha8 stream seeded from the OS CSPRNG, which keeps draws
// statistically adequate and lets tests pin the seed to assert
// distributional shape.
type NoiseSource struct {
	mu  sync.Mutex
	rng *mathrand.Rand
}

func NewNoiseSource() *NoiseSource {
	var seed [32]byte
	if _, err := cryptorand.Read(seed[:]); err != nil {
		panic("failed to seed noise source: " + err.Error())
	}
	return NewSeededNoiseSource(seed)
}

// NewSeededNoiseSource fixes the RNG stream. Test use only.
func NewSeededNoiseSource(seed [32]byte) *NoiseSource {
	return &NoiseSource{rng: mathrand.New(mathrand.NewChaCha8(seed))}
}

func (s *NoiseSource) uniform() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rng.Float64()
}

// Laplace draws from Laplace(0, b) with scale b = sensitivity/epsilon
// via the inverse CDF: u ~ Uniform(-0.5, 0.5), noise = -b·sign(u)·ln(1-2|u|).
func (s *NoiseSource) Laplace(sensitivity, epsilon float64) float64 {
	b := sensitivity / epsilon

	u := s.uniform() - 0.5
	// Float64 can land exactly on -0.5, where the inverse CDF diverges.
	for 1-2*math.Abs(u) <= 0 {
		u = s.uniform() - 0.5
	}

	sign := 1.0
	if u < 0 {
		sign = -1.0
	} else if u == 0 {
		sign = 0
	}
	return -b * sign * math.Log(1-2*math.Abs(u))
}

// Gaussian draws from N(0, σ²) with σ = sensitivity·√(2·ln(1.25/δ))/ε,
// the classic (ε,δ)-DP calibration, sampled via Box–Muller.
func (s *NoiseSource) Gaussian(sensitivity, epsilon, delta float64) float64 {
	sigma := sensitivity * math.Sqrt(2*math.Log(1.25/delta)) / epsilon

	u1 := s.uniform()
	for u1 == 0 {
		u1 = s.uniform()
	}
	u2 := s.uniform()

	z := math.Sqrt(-2*math.Log(u1)) * math.Cos(2*math.Pi*u2)
	return sigma * z
}
