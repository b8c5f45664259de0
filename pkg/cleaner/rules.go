// pkg/cleaner/rules.go
package cleaner

import (
	"github.com/mkalasaivan/Urban-Mobility-Data-Explorer/pkg/model"
)

// ruleInput is what an exclusion rule gets to look at.
type ruleInput struct {
	raw         *model.RawTrip
	durationSec *float64
	rawSpeedKmh *float64
	cfg         Config
}

type exclusionRule struct {
	reason model.ExclusionReason
	match  func(in ruleInput) bool
}

// exclusionRules are evaluated in order; the first match wins.
var exclusionRules = []exclusionRule{
	{
		reason: model.ReasonBadTime,
		match: func(in ruleInput) bool {
			return in.durationSec == nil
		},
	},
	{
		// Uses the unclamped speed; the reported speed is already nulled above the bound.
		reason: model.ReasonSpeedImpossible,
		match: func(in ruleInput) bool {
			return in.rawSpeedKmh != nil && *in.rawSpeedKmh > in.cfg.MaxSpeedKmh
		},
	},
	{
		reason: model.ReasonNegativeValues,
		match: func(in ruleInput) bool {
			return isNegative(in.raw.FareAmount) || isNegative(in.raw.TripDistance)
		},
	},
}

// Classify returns the exclusion reason for a record, or ReasonNone when it
// should be kept.
func Classify(raw *model.RawTrip, durationSec, rawSpeedKmh *float64, cfg Config) model.ExclusionReason {
	in := ruleInput{
		raw:         raw,
		durationSec: durationSec,
		rawSpeedKmh: rawSpeedKmh,
		cfg:         cfg,
	}
	for _, rule := range exclusionRules {
		if rule.match(in) {
			return rule.reason
		}
	}
	return model.ReasonNone
}

func isNegative(v *float64) bool {
	return v != nil && *v < 0
}
