package core

import (
	"context"

	"github.com/JonMunkholm/giisexport/internal/schema"
)

// FilterResult partitions one guide's rows by validation outcome.
type FilterResult struct {
	Accepted []Row
	Excluded ExcludedRowReport
	Warnings []ValidationIssue
}

// ValidateAndFilter validates every row of a guide. Rows with at least one
// blocker are excluded and each of their blockers becomes a report entry;
// the warnings of accepted rows are collected. Accepted rows keep their
// input order.
func ValidateAndFilter(ctx context.Context, guide string, sch *schema.Schema, rows []Row, opts ValidateOptions) FilterResult {
	res := FilterResult{Accepted: make([]Row, 0, len(rows))}

	for i, row := range rows {
		issues := ValidateRow(ctx, guide, sch, row, i, opts)

		var blockers []ExcludedRowEntry
		var warnings []ValidationIssue
		for _, is := range issues {
			if is.Severity == SeverityBlocker {
				blockers = append(blockers, is.excludedEntry())
				continue
			}
			warnings = append(warnings, is)
		}

		if len(blockers) > 0 {
			res.Excluded.Entries = append(res.Excluded.Entries, blockers...)
			res.Excluded.TotalExcluded++
			continue
		}
		res.Accepted = append(res.Accepted, row)
		res.Warnings = append(res.Warnings, warnings...)
	}

	return res
}

func (is ValidationIssue) excludedEntry() ExcludedRowEntry {
	return ExcludedRowEntry{
		Guide:    is.Guide,
		RowIndex: is.RowIndex,
		RecordID: is.RecordID,
		Field:    is.Field,
		Value:    is.Value,
		Cause:    is.Cause,
	}
}

type rowKey struct {
	guide string
	index int
}

// CountExcluded returns the number of distinct (guide, rowIndex) pairs in
// entries.
func CountExcluded(entries []ExcludedRowEntry) int {
	seen := make(map[rowKey]struct{}, len(entries))
	for _, e := range entries {
		seen[rowKey{e.Guide, e.RowIndex}] = struct{}{}
	}
	return len(seen)
}

// Merge returns a report holding the entries of r followed by those of
// other, with TotalExcluded recomputed over the union. Neither input is
// modified. A nil receiver is an empty report.
func (r *ExcludedRowReport) Merge(other ExcludedRowReport) ExcludedRowReport {
	var entries []ExcludedRowEntry
	if r != nil {
		entries = append(entries, r.Entries...)
	}
	entries = append(entries, other.Entries...)
	return ExcludedRowReport{Entries: entries, TotalExcluded: CountExcluded(entries)}
}

// WithoutGuide returns a copy of the report minus one guide's entries. It is
// used before merging a regenerated guide so a rerun replaces its own
// entries instead of duplicating them.
func (r *ExcludedRowReport) WithoutGuide(guide string) ExcludedRowReport {
	if r == nil {
		return ExcludedRowReport{}
	}
	entries := make([]ExcludedRowEntry, 0, len(r.Entries))
	for _, e := range r.Entries {
		if e.Guide != guide {
			entries = append(entries, e)
		}
	}
	return ExcludedRowReport{Entries: entries, TotalExcluded: CountExcluded(entries)}
}

// GuideValidation is the outcome of validating one guide without side effects.
type GuideValidation struct {
	Guide    string            `json:"guide"`
	Rows     int               `json:"rows"`
	Accepted int               `json:"accepted"`
	Excluded ExcludedRowReport `json:"excluded"`
	Warnings []ValidationIssue `json:"warnings"`
}

// Status reports the validation status this guide alone would produce.
func (g GuideValidation) Status() ValidationStatus {
	return validationOf(g.Excluded.TotalExcluded, len(g.Warnings))
}

func validationOf(excluded, warnings int) ValidationStatus {
	switch {
	case excluded > 0:
		return ValidationHasBlockers
	case warnings > 0:
		return ValidationHasWarnings
	default:
		return ValidationValidated
	}
}
