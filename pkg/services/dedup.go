package services

import (
	"sort"
	"time"

	"github.com/ekaya-inc/ekaya-lineqa/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-lineqa/pkg/models"
)

// DedupResult is a deduplicated table and the strategy that produced it.
type DedupResult struct {
	Table    *models.Table
	Strategy string
	// TimestampColumn is set only when latest_wins actually ran.
	TimestampColumn *string
	Removed         int
}

// ValidStrategy reports whether name is a known merge strategy.
func ValidStrategy(name string) bool {
	return name == models.StrategyLatestWins || name == models.StrategyFirstOccurrence
}

// Deduplicate keeps one row per distinct value of idColumn.
//
// latest_wins stable-sorts by tsColumn ascending (rows without a usable
// timestamp first, ties in arrival order) and keeps each id's last row.
// Without tsColumn it falls back to first_occurrence, which keeps each id's
// first row in table order. Missing ids form a single group.
func Deduplicate(t *models.Table, idColumn, strategy, tsColumn string) (*DedupResult, error) {
	if !ValidStrategy(strategy) {
		return nil, apperrors.Invalid(apperrors.ErrInvalidStrategy, strategy, "must be latest_wins or first_occurrence")
	}
	ids, ok := t.Column(idColumn)
	if !ok {
		return nil, &apperrors.ColumnError{Kind: apperrors.ErrColumnNotFound, Column: idColumn, Available: t.Columns()}
	}

	if strategy == models.StrategyLatestWins && tsColumn != "" && t.HasColumn(tsColumn) {
		ts, _ := t.Column(tsColumn)
		order := timestampOrder(ts)
		last := make(map[string]int, len(order))
		for pos, row := range order {
			last[idKey(ids[row])] = pos
		}
		keep := make([]int, 0, len(last))
		for pos, row := range order {
			if last[idKey(ids[row])] == pos {
				keep = append(keep, row)
			}
		}
		col := tsColumn
		return &DedupResult{
			Table:           t.Take(keep),
			Strategy:        models.StrategyLatestWins,
			TimestampColumn: &col,
			Removed:         t.Len() - len(keep),
		}, nil
	}

	seen := make(map[string]bool, len(ids))
	keep := make([]int, 0, len(ids))
	for row, id := range ids {
		k := idKey(id)
		if seen[k] {
			continue
		}
		seen[k] = true
		keep = append(keep, row)
	}
	return &DedupResult{
		Table:    t.Take(keep),
		Strategy: models.StrategyFirstOccurrence,
		Removed:  t.Len() - len(keep),
	}, nil
}

// timestampOrder returns row indices sorted by timestamp ascending.
func timestampOrder(ts []any) []int {
	type key struct {
		ok bool
		at time.Time
	}
	keys := make([]key, len(ts))
	order := make([]int, len(ts))
	for i, v := range ts {
		at, ok := models.ToTime(v)
		keys[i] = key{ok: ok, at: at}
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		ka, kb := keys[order[a]], keys[order[b]]
		if ka.ok != kb.ok {
			return !ka.ok
		}
		return ka.at.Before(kb.at)
	})
	return order
}

// idKey groups ids by their text form so 42 and "42" from different
// drivers collide. Missing ids share one group.
func idKey(v any) string {
	if models.IsMissing(v) {
		return "\x00missing"
	}
	return models.ToString(v)
}

// DuplicateIDs returns the id values that occur more than once.
func DuplicateIDs(t *models.Table, idColumn string) []string {
	ids, ok := t.Column(idColumn)
	if !ok {
		return nil
	}
	counts := make(map[string]int, len(ids))
	var dups []string
	for _, id := range ids {
		k := idKey(id)
		counts[k]++
		if counts[k] == 2 {
			dups = append(dups, models.ToString(id))
		}
	}
	return dups
}

// LineDistribution counts rows per value of column, most frequent first
// (ties by name). Percentages are of the table's row count.
func LineDistribution(t *models.Table, column string) []models.LineShare {
	values, ok := t.Column(column)
	if !ok || len(values) == 0 {
		return nil
	}
	counts := make(map[string]int)
	for _, v := range values {
		counts[models.ToString(v)]++
	}
	out := make([]models.LineShare, 0, len(counts))
	for line, c := range counts {
		out = append(out, models.LineShare{
			Line:       line,
			Count:      c,
			Percentage: float64(c) / float64(len(values)) * 100,
		})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Line < out[j].Line
	})
	return out
}
