/*
Package billing identifies time-and-materials billable evolutivo work.

PURPOSE:
  Change-request (evolutivo) tickets are billed one of two ways: against
  the work package's bag of hours, or directly as T&M. The classifier
  finds the T&M side - tickets whose billing mode is invoiced per hour -
  and produces the monthly report the bag-of-hours consumption
  calculator explicitly excludes.

SEPARATION INVARIANT:
  Hours reported on a T&M-billable evolutivo ticket appear here and
  ONLY here. The monthly aggregator rejects them (WorklogEntry.
  EligibleForBag), so the same hour can never be both drawn from the
  bag and invoiced directly.

REPORT SHAPE:
  One line per issue key with total worked hours > 0 for the month.
  Issues with no hours that month are excluded, even if they had hours
  in other months.

SEE ALSO:
  - ledger/types.go: IsTMBillable, IsEvolutiveType
  - ledger/aggregate.go: The bag-of-hours side of the split
*/
package billing

import (
	"context"
	"sort"

	"github.com/shopspring/decimal"
	"github.com/warp/billing-engine/ledger"
)

// =============================================================================
// REPORT TYPES
// =============================================================================

// ReportLine is one T&M-billable issue with hours worked in the month.
type ReportLine struct {
	IssueKey    string
	IssueType   string
	BillingMode string
	WorkedHours decimal.Decimal
	Authors     []string
}

// MonthlyReport is the T&M evolutivo report for one work package and
// month. Feeds the monthly billing report, never the bag.
type MonthlyReport struct {
	WorkPackageID ledger.WorkPackageID
	Month         ledger.MonthKey
	Lines         []ReportLine
	TotalHours    decimal.Decimal
}

// =============================================================================
// CLASSIFIER
// =============================================================================

// Classifier builds T&M evolutivo reports from tickets and worklogs.
type Classifier struct {
	Tickets  ledger.TicketStore
	Worklogs ledger.WorklogStore
}

// MonthlyTM reports T&M-billable evolutivo hours per issue for one
// month. Only issues with worked hours > 0 that month are included.
func (c *Classifier) MonthlyTM(ctx context.Context, wpID ledger.WorkPackageID, month ledger.MonthKey) (*MonthlyReport, error) {
	tickets, err := c.Tickets.TicketsByWorkPackage(ctx, wpID)
	if err != nil {
		return nil, err
	}

	billable := make(map[string]ledger.Ticket)
	for _, t := range tickets {
		if ledger.IsEvolutiveType(t.IssueType) && ledger.IsTMBillable(t.BillingMode) {
			billable[t.Key] = t
		}
	}

	entries, err := c.Worklogs.EntriesForMonth(ctx, wpID, month)
	if err != nil {
		return nil, err
	}

	type acc struct {
		hours   decimal.Decimal
		authors map[string]bool
	}
	totals := make(map[string]*acc)

	for _, e := range entries {
		ticket, ok := billable[e.IssueKey]
		if !ok {
			// Entries can carry classification the ticket store hasn't
			// seen yet (fresh sync); trust the entry's own tags too.
			if !ledger.IsEvolutiveType(e.IssueType) || !ledger.IsTMBillable(e.BillingMode) {
				continue
			}
			ticket = ledger.Ticket{Key: e.IssueKey, IssueType: e.IssueType, BillingMode: e.BillingMode}
			billable[e.IssueKey] = ticket
		}

		a := totals[e.IssueKey]
		if a == nil {
			a = &acc{hours: decimal.Zero, authors: make(map[string]bool)}
			totals[e.IssueKey] = a
		}
		a.hours = a.hours.Add(e.Hours)
		if e.Author != "" {
			a.authors[e.Author] = true
		}
	}

	report := &MonthlyReport{
		WorkPackageID: wpID,
		Month:         month,
		TotalHours:    decimal.Zero,
	}

	for key, a := range totals {
		if !a.hours.IsPositive() {
			continue
		}
		ticket := billable[key]
		var authors []string
		for author := range a.authors {
			authors = append(authors, author)
		}
		sort.Strings(authors)

		report.Lines = append(report.Lines, ReportLine{
			IssueKey:    key,
			IssueType:   ticket.IssueType,
			BillingMode: ticket.BillingMode,
			WorkedHours: a.hours,
			Authors:     authors,
		})
		report.TotalHours = report.TotalHours.Add(a.hours)
	}

	sort.Slice(report.Lines, func(i, j int) bool {
		return report.Lines[i].IssueKey < report.Lines[j].IssueKey
	})

	return report, nil
}
