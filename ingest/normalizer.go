/*
normalizer.go - Raw entries to normalized worklog rows

PURPOSE:
  Converts raw reported time entries plus matching issue metadata into
  ledger.WorklogEntry rows: buckets each entry by its UTC month, tags it
  with issue type and billing mode, and groups the result per month so
  the store can replace whole buckets.

BUCKETING:
  The effective date determines (year, month) via ledger.MonthOf - the
  single UTC bucketing path. Local-calendar extraction is deliberately
  absent: mixing calendars is how months silently gain or lose hours at
  the boundaries.

CLASSIFICATION:
  Entries whose issue is unknown to the tracker keep an empty issue
  type. They stay in the store for audit but are never bag-eligible
  (WorkPackage.AcceptsTicketType rejects them).

SEE ALSO:
  - sync.go: Calls Normalize during the pipeline
  - ledger/types.go: WorklogEntry and eligibility rules
*/
package ingest

import (
	"log"
	"sort"

	"github.com/warp/billing-engine/ledger"
)

// =============================================================================
// NORMALIZER
// =============================================================================

type Normalizer struct {
	// Logf defaults to log.Printf.
	Logf func(format string, args ...any)
}

func (n *Normalizer) logf(format string, args ...any) {
	if n.Logf != nil {
		n.Logf(format, args...)
		return
	}
	log.Printf(format, args...)
}

// Normalize converts raw worklogs into normalized entries for one work
// package. Issue metadata is matched by key; entries without metadata
// are kept but logged.
func (n *Normalizer) Normalize(wp ledger.WorkPackage, raws []RawWorklog, issues map[string]IssueMeta) []ledger.WorklogEntry {
	entries := make([]ledger.WorklogEntry, 0, len(raws))
	missing := 0

	for _, raw := range raws {
		date := ledger.DateOf(raw.Started)
		bucket := ledger.MonthOf(raw.Started)

		entry := ledger.WorklogEntry{
			ID:            raw.ID,
			WorkPackageID: wp.ID,
			IssueKey:      raw.IssueKey,
			Author:        raw.Author,
			Hours:         raw.Hours(),
			Date:          date,
			Year:          bucket.Year,
			Month:         bucket.Month,
			ManualTag:     raw.ManualTag,
		}

		if meta, ok := issues[raw.IssueKey]; ok {
			entry.IssueType = meta.IssueType
			entry.BillingMode = meta.BillingMode
		} else {
			missing++
		}

		entries = append(entries, entry)
	}

	if missing > 0 {
		n.logf("[Normalizer] %s: %d of %d entries reference issues unknown to the tracker",
			wp.ID, missing, len(raws))
	}

	return entries
}

// GroupByMonth buckets normalized entries per month key.
func GroupByMonth(entries []ledger.WorklogEntry) map[ledger.MonthKey][]ledger.WorklogEntry {
	grouped := make(map[ledger.MonthKey][]ledger.WorklogEntry)
	for _, e := range entries {
		grouped[e.Bucket()] = append(grouped[e.Bucket()], e)
	}
	return grouped
}

// IssueKeys returns the distinct issue keys referenced by raw worklogs,
// sorted for stable tracker queries.
func IssueKeys(raws []RawWorklog) []string {
	seen := make(map[string]bool)
	var keys []string
	for _, raw := range raws {
		if raw.IssueKey == "" || seen[raw.IssueKey] {
			continue
		}
		seen[raw.IssueKey] = true
		keys = append(keys, raw.IssueKey)
	}
	sort.Strings(keys)
	return keys
}
