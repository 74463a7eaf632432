// Package freshness decides when a materialized view is stale or expired and
// sweeps expired views out of the catalog.
package freshness

import (
	"fmt"
	"math"
	"strings"
	"time"
)

// Policy is evaluated against externally supplied last update times. A zero
// or negative duration disables the matching check.
type Policy struct {
	// age after which a view should be regenerated
	Freshness time.Duration
	// age after which a view is deleted
	MaxAge time.Duration

	// nil means time.Now
	Now func() time.Time
}

func (p Policy) now() time.Time {
	if p.Now != nil {
		return p.Now()
	}
	return time.Now()
}

func (p Policy) StalenessEnabled() bool {
	return p.Freshness > 0
}

func (p Policy) ExpirationEnabled() bool {
	return p.MaxAge > 0
}

func (p Policy) IsStale(lastUpdate time.Time) bool {
	if !p.StalenessEnabled() {
		return false
	}
	return p.now().Sub(lastUpdate) > p.Freshness
}

func (p Policy) IsExpired(lastUpdate time.Time) bool {
	if !p.ExpirationEnabled() {
		return false
	}
	return p.now().Sub(lastUpdate) > p.MaxAge
}

func (p Policy) String() string {
	describe := func(d time.Duration) string {
		if d <= 0 {
			return "off"
		}
		return d.String()
	}
	return fmt.Sprintf("freshness=%s max_age=%s", describe(p.Freshness), describe(p.MaxAge))
}

// PolicyFromSettings builds a policy from the mv.freshness and mv.maxAge
// settings. Empty settings leave the check off. A setting that doesn't parse
// also leaves it off and is reported in warnings.
func PolicyFromSettings(freshness, maxAge string) (Policy, []string) {
	var policy Policy
	var warnings []string

	parse := func(key, value string) time.Duration {
		if strings.TrimSpace(value) == "" {
			return 0
		}
		ms, err := ParseDuration(value)
		if err != nil {
			warnings = append(warnings, fmt.Sprintf("%s: %v, check disabled", key, err))
			return 0
		}
		if ms > int64(math.MaxInt64/time.Millisecond) {
			return time.Duration(math.MaxInt64)
		}
		return time.Duration(ms) * time.Millisecond
	}

	policy.Freshness = parse("mv.freshness", freshness)
	policy.MaxAge = parse("mv.maxAge", maxAge)

	return policy, warnings
}
