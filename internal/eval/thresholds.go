// Package eval matches user interests against committed snapshots and
// applies hysteresis so a condition sitting inside one severity bucket
// notifies once, not every cycle.
package eval

import (
	"math"

	"citypulse/internal/types"
)

// Condition describes the monitored metric for one domain: which metric to
// read off a record, how to phrase it, and where the severity buckets begin.
//
// For LowerIsWorse conditions the thresholds are upper bounds (value at or
// below Warning is warning); otherwise lower bounds. A threshold of +/-Inf
// disables that bucket for the domain.
type Condition struct {
	Metric string
	Label  string
	Unit   string

	LowerIsWorse bool

	Advisory  float64
	Warning   float64
	Emergency float64
}

// Bucket maps a condition value to its severity bucket.
func (c Condition) Bucket(v float64) types.Severity {
	if c.LowerIsWorse {
		switch {
		case v <= c.Emergency:
			return types.SeverityEmergency
		case v <= c.Warning:
			return types.SeverityWarning
		case v <= c.Advisory:
			return types.SeverityAdvisory
		default:
			return types.SeverityNormal
		}
	}
	switch {
	case v >= c.Emergency:
		return types.SeverityEmergency
	case v >= c.Warning:
		return types.SeverityWarning
	case v >= c.Advisory:
		return types.SeverityAdvisory
	default:
		return types.SeverityNormal
	}
}

// Worse reports whether value a is worse than b under this condition's
// direction. Used to tie-break records that share a severity bucket.
func (c Condition) Worse(a, b float64) bool {
	if c.LowerIsWorse {
		return a < b
	}
	return a > b
}

// conditions is the per-domain threshold table. Directory domains (parks,
// libraries, cultural events, sports facilities) carry no monitored
// condition and are absent: they are searchable but never trigger.
var conditions = map[types.Domain]Condition{
	types.DomainWeather: {
		Metric:    "sensible_temp_c",
		Label:     "feels-like temperature",
		Unit:      "°C",
		Advisory:  31,
		Warning:   33,
		Emergency: 35,
	},
	types.DomainAirQuality: {
		Metric:    "pm25",
		Label:     "fine dust (PM2.5)",
		Unit:      "µg/m³",
		Advisory:  36,
		Warning:   76,
		Emergency: 151,
	},
	types.DomainBikeShare: {
		Metric:       "bikes_available",
		Label:        "bikes available",
		Unit:         "bikes",
		LowerIsWorse: true,
		Advisory:     5,
		Warning:      2,
		Emergency:    math.Inf(-1),
	},
	types.DomainCoolingShelter: {
		Metric:       "availability_ratio",
		Label:        "shelter availability",
		Unit:         "",
		LowerIsWorse: true,
		Advisory:     0.25,
		Warning:      0.05,
		Emergency:    math.Inf(-1),
	},
}

// ConditionFor returns the monitored condition for a domain, if any.
func ConditionFor(domain types.Domain) (Condition, bool) {
	c, ok := conditions[domain]
	return c, ok
}

// EvaluableDomains returns the domains carrying a monitored condition, in
// types.AllDomains order.
func EvaluableDomains() []types.Domain {
	var out []types.Domain
	for _, d := range types.AllDomains() {
		if _, ok := conditions[d]; ok {
			out = append(out, d)
		}
	}
	return out
}
