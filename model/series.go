package model

import (
	"math"
	"sort"
)

// Point is a single (time, value) sample of a variable trajectory.
type Point struct {
	Time  float64
	Value float64
}

// Series is a time-ordered trajectory. Producers keep Time ascending and
// unique; consumers may rely on that ordering.
type Series []Point

// Len reports the number of samples.
func (s Series) Len() int { return len(s) }

// Times returns the time index of the series.
func (s Series) Times() []float64 {
	out := make([]float64, len(s))
	for i, p := range s {
		out[i] = p.Time
	}
	return out
}

// Values returns the sample values in time order.
func (s Series) Values() []float64 {
	out := make([]float64, len(s))
	for i, p := range s {
		out[i] = p.Value
	}
	return out
}

// Clone returns an independent copy of the series.
func (s Series) Clone() Series {
	if s == nil {
		return nil
	}
	out := make(Series, len(s))
	copy(out, s)
	return out
}

// IsAscending reports whether the time index is strictly increasing.
func (s Series) IsAscending() bool {
	for i := 1; i < len(s); i++ {
		if !(s[i].Time > s[i-1].Time) {
			return false
		}
	}
	return true
}

// At evaluates the series at t by linear interpolation between the
// surrounding samples. Times outside the index clamp to the first or last
// value. An empty series evaluates to 0 and a NaN time to NaN.
func (s Series) At(t float64) float64 {
	n := len(s)
	switch {
	case n == 0:
		return 0
	case math.IsNaN(t):
		return math.NaN()
	case t <= s[0].Time:
		return s[0].Value
	case t >= s[n-1].Time:
		return s[n-1].Value
	}
	i := sort.Search(n, func(i int) bool { return s[i].Time >= t })
	if s[i].Time == t {
		return s[i].Value
	}
	lo, hi := s[i-1], s[i]
	frac := (t - lo.Time) / (hi.Time - lo.Time)
	return lo.Value + frac*(hi.Value-lo.Value)
}
