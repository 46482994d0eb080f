// Package scoring computes weighted priority scores and tiers from the
// admin-authored scoring configuration.
package scoring

import (
	"strconv"
	"strings"

	"github.com/opensource-crm/kestrel/internal/domain"
)

// ScoreComponent computes one component's sub-score in [0,100].
//
// Score ranges take precedence when configured: the raw field value is
// bucketed through them in order, bounds inclusive on both ends, first match
// wins. Without ranges, a numeric field value is clamped into [0,100] and
// used directly (the "field is already a score" mode, e.g. an externally
// computed intent score). A missing or non-numeric field, or a value outside
// every range, contributes 0 — a misconfigured component never aborts the
// composite computation.
func ScoreComponent(comp domain.PriorityComponent, record domain.Record) float64 {
	raw, ok := fieldNumber(record, comp.Field)

	if len(comp.ScoreRanges) > 0 {
		if !ok {
			return 0
		}
		for _, r := range comp.ScoreRanges {
			if raw >= r.Min && raw <= r.Max {
				return r.Score
			}
		}
		return 0
	}

	if comp.Field == "" || !ok {
		return 0
	}
	return clamp(raw, 0, 100)
}

// fieldNumber resolves a record field as a number, tolerating numeric
// strings the way the condition evaluator does.
func fieldNumber(record domain.Record, field string) (float64, bool) {
	if field == "" {
		return 0, false
	}
	v, ok := record.Get(field)
	if !ok {
		return 0, false
	}
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		return f, err == nil
	default:
		return 0, false
	}
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
