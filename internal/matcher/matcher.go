// Package matcher holds the pure matching and filtering rules that decide
// which extracted deals reach which subscribers.
package matcher

import (
	"sort"
	"strings"
	"time"

	"sjsage522/pepperwatch/internal/deal"
	"sjsage522/pepperwatch/internal/store"
)

const (
	// MaxFreshness is the oldest a deal may be and still trigger an alert.
	MaxFreshness = 24 * time.Hour

	// MinTemperature is the community vote score below which a deal is
	// considered not worth alerting on.
	MinTemperature = 50.0

	// MaxReasonablePrice guards against garbage extracted prices.
	MaxReasonablePrice = 1_000_000.0
)

// QualityOptions tunes the baseline deal filter.
type QualityOptions struct {
	MaxAge         time.Duration
	MinTemperature float64
	// RequirePostedAt drops deals whose publish time could not be
	// extracted. Fallback-tier extraction rarely yields one, so scheduled
	// category runs keep it off.
	RequirePostedAt bool
}

// DefaultQualityOptions returns the filter settings used by personal alerts.
func DefaultQualityOptions() QualityOptions {
	return QualityOptions{
		MaxAge:          MaxFreshness,
		MinTemperature:  MinTemperature,
		RequirePostedAt: false,
	}
}

// FilterQuality returns the deals that pass the baseline quality bar:
// fresh enough, hot enough and with a sane price.
func FilterQuality(deals []deal.Record, opts QualityOptions, now time.Time) []deal.Record {
	var kept []deal.Record
	for _, d := range deals {
		if d.Temperature < opts.MinTemperature {
			continue
		}
		if d.Price != nil && *d.Price > MaxReasonablePrice {
			continue
		}
		if d.PostedAt == nil {
			if opts.RequirePostedAt {
				continue
			}
		} else if opts.MaxAge > 0 && now.Sub(*d.PostedAt) > opts.MaxAge {
			continue
		}
		kept = append(kept, d)
	}
	return kept
}

// MatchWatch reports whether a deal satisfies a personal watch: the query
// must appear in the title (case-insensitive) and the price, when both the
// cap and an extracted price exist, must not exceed the cap. A deal without
// a parseable price always passes the cap.
func MatchWatch(d deal.Record, w store.Watch) bool {
	if !strings.Contains(strings.ToLower(d.Title), strings.ToLower(w.Query)) {
		return false
	}
	if w.MaxPrice != nil && d.Price != nil && *d.Price > *w.MaxPrice {
		return false
	}
	return true
}

// MatchFeed reports whether a deal satisfies a category feed's filters.
func MatchFeed(d deal.Record, f store.CategoryFeed) bool {
	if f.MinTemperature != nil && d.Temperature < *f.MinTemperature {
		return false
	}
	if f.MaxPrice != nil && d.Price != nil && *d.Price > *f.MaxPrice {
		return false
	}
	if f.Keyword != "" && !strings.Contains(strings.ToLower(d.Title), strings.ToLower(f.Keyword)) {
		return false
	}
	return true
}

// Match fans deals out across watches, keyed by watch ID.
func Match(deals []deal.Record, watches []store.Watch) map[int64][]deal.Record {
	matched := make(map[int64][]deal.Record)
	for _, w := range watches {
		for _, d := range deals {
			if MatchWatch(d, w) {
				matched[w.ID] = append(matched[w.ID], d)
			}
		}
	}
	return matched
}

// TopByTemperature returns the hottest deals, at most limit, sorted by
// temperature descending. The input slice is not modified.
func TopByTemperature(deals []deal.Record, limit int) []deal.Record {
	sorted := make([]deal.Record, len(deals))
	copy(sorted, deals)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Temperature > sorted[j].Temperature
	})
	if limit > 0 && len(sorted) > limit {
		sorted = sorted[:limit]
	}
	return sorted
}
