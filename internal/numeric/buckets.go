// Package numeric maps a continuous numeric range onto the discrete
// answer buckets of a multi-answer contract, so the same binary pool
// machinery prices a numeric question.
package numeric

import (
	"errors"
	"fmt"
	"math"

	"predict_go/internal/domain"
)

var (
	// ErrInvalidRange is returned when max <= min or a bound is not a
	// finite number.
	ErrInvalidRange = errors.New("invalid numeric range")

	// ErrValueOutOfRange is returned when a value falls outside
	// [min, max].
	ErrValueOutOfRange = errors.New("value outside numeric range")

	// ErrInvalidBucket is returned for a bucket index outside
	// [0, buckets).
	ErrInvalidBucket = errors.New("bucket index out of range")
)

// Mapper is a stable bijection between values in [Min, Max] and bucket
// indexes [0, Buckets). Log-scale mappers divide the range evenly in
// shifted log space, giving finer buckets near Min.
type Mapper struct {
	Min        float64
	Max        float64
	Buckets    int
	IsLogScale bool
}

// NewMapper validates the range parameters. Buckets normally equals the
// contract's answer count.
func NewMapper(min, max float64, buckets int, isLogScale bool) (*Mapper, error) {
	if math.IsNaN(min) || math.IsNaN(max) || math.IsInf(min, 0) || math.IsInf(max, 0) || max <= min {
		return nil, fmt.Errorf("%w: [%g, %g]", ErrInvalidRange, min, max)
	}
	if buckets <= 0 {
		return nil, fmt.Errorf("%w: %d buckets", ErrInvalidRange, buckets)
	}
	return &Mapper{Min: min, Max: max, Buckets: buckets, IsLogScale: isLogScale}, nil
}

// normalize maps a value in [Min, Max] to [0, 1]. The log transform is
// shifted by one so Min maps to zero regardless of sign.
func (m *Mapper) normalize(value float64) float64 {
	if m.IsLogScale {
		return math.Log10(value-m.Min+1) / math.Log10(m.Max-m.Min+1)
	}
	return (value - m.Min) / (m.Max - m.Min)
}

// denormalize is the inverse of normalize.
func (m *Mapper) denormalize(t float64) float64 {
	if m.IsLogScale {
		return math.Pow(10, t*math.Log10(m.Max-m.Min+1)) + m.Min - 1
	}
	return m.Min + t*(m.Max-m.Min)
}

// ValueToBucket returns the bucket containing value. Max itself lands
// in the last bucket.
func (m *Mapper) ValueToBucket(value float64) (int, error) {
	if math.IsNaN(value) || value < m.Min || value > m.Max {
		return 0, fmt.Errorf("%w: %g not in [%g, %g]", ErrValueOutOfRange, value, m.Min, m.Max)
	}
	bucket := int(math.Floor(m.normalize(value) * float64(m.Buckets)))
	if bucket >= m.Buckets {
		bucket = m.Buckets - 1
	}
	return bucket, nil
}

// Range is one bucket's half-open value interval [Lo, Hi); the last
// bucket closes at Max.
type Range struct {
	Lo float64
	Hi float64
}

// Midpoint returns the value-space midpoint of the range.
func (r Range) Midpoint() float64 {
	return (r.Lo + r.Hi) / 2
}

// BucketRange returns the value interval covered by a bucket.
func (m *Mapper) BucketRange(bucket int) (Range, error) {
	if bucket < 0 || bucket >= m.Buckets {
		return Range{}, fmt.Errorf("%w: %d of %d", ErrInvalidBucket, bucket, m.Buckets)
	}
	n := float64(m.Buckets)
	return Range{
		Lo: m.denormalize(float64(bucket) / n),
		Hi: m.denormalize(float64(bucket+1) / n),
	}, nil
}

// Ranges returns every bucket's interval in order.
func (m *Mapper) Ranges() []Range {
	out := make([]Range, m.Buckets)
	for i := range out {
		out[i], _ = m.BucketRange(i)
	}
	return out
}

// BucketsContaining returns the contiguous bucket indexes overlapping
// [lo, hi], for range bets spanning several answers.
func (m *Mapper) BucketsContaining(lo, hi float64) ([]int, error) {
	if hi < lo {
		return nil, fmt.Errorf("%w: [%g, %g]", ErrInvalidRange, lo, hi)
	}
	first, err := m.ValueToBucket(lo)
	if err != nil {
		return nil, err
	}
	last, err := m.ValueToBucket(hi)
	if err != nil {
		return nil, err
	}
	out := make([]int, 0, last-first+1)
	for b := first; b <= last; b++ {
		out = append(out, b)
	}
	return out, nil
}

// ExpectedValue returns the probability-weighted sum of bucket
// midpoints over the contract's answers, taken in answer index order.
func (m *Mapper) ExpectedValue(answers []*domain.Answer) (float64, error) {
	if len(answers) != m.Buckets {
		return 0, fmt.Errorf("%w: %d answers for %d buckets", ErrInvalidBucket, len(answers), m.Buckets)
	}
	total := 0.0
	for _, a := range answers {
		r, err := m.BucketRange(a.Index)
		if err != nil {
			return 0, err
		}
		total += a.Prob * r.Midpoint()
	}
	return total, nil
}

// MapperForContract builds the bucket mapper from a numeric contract's
// range parameters.
func MapperForContract(c *domain.Contract) (*Mapper, error) {
	return NewMapper(c.Min, c.Max, len(c.Answers), c.IsLogScale)
}
