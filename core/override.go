package core

import "github.com/signalsfoundry/scenario-resimulator/model"

// BuildOverride returns a copy of baseline whose values from start onward
// (inclusive) are replaced by value. The time index is unchanged and
// baseline is not modified.
func BuildOverride(baseline model.Series, start, value float64) model.Series {
	out := baseline.Clone()
	for i := range out {
		if out[i].Time >= start {
			out[i].Value = value
		}
	}
	return out
}
