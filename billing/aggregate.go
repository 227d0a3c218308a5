/*
aggregate.go - Aggregation calculator

PURPOSE:
  Groups a work order's timesheet entries by activity, sums worked time and
  prices each group with the currently effective rate. The result is never
  stored; it is recomputed on every read.

FLOW:
  entries -> Normalizer.Worked -> Catalog.Classify -> group by code
          -> merge INSPECTION into NORMAL -> RateResolver.Resolve -> amounts

ADJUSTMENT:
  Adjustment is current bill amount minus a baseline. No rate history
  exists, so without a caller-held Baseline the baseline is resolved the
  same way as the current amount and the adjustment is 0.
*/
package billing

import (
	"context"
	"sort"

	"github.com/shopspring/decimal"
)

// ActivitySummary is one priced activity group.
type ActivitySummary struct {
	Activity   ActivityCode
	Label      string
	Minutes    Minutes
	Hours      decimal.Decimal // display, 2 places
	CostRate   decimal.Decimal
	BillRate   decimal.Decimal
	CostAmount decimal.Decimal
	BillAmount decimal.Decimal
	Adjustment decimal.Decimal
	Memo       string
	EntryCount int
	Defaulted  bool
}

// Baseline holds bill amounts a caller captured on an earlier read.
type Baseline map[ActivityCode]decimal.Decimal

// ActivityGroup is the pre-pricing grouping of entries.
type ActivityGroup struct {
	Activity ActivityCode
	Minutes  Minutes
	Entries  []TimesheetEntry
}

// Calculator prices activity groups.
type Calculator struct {
	Catalog    Catalog
	Rates      *RateResolver
	Normalizer Normalizer
}

// Group classifies and sums entries, then folds INSPECTION into NORMAL.
// Groups are ordered by activity code.
func (c *Calculator) Group(entries []TimesheetEntry) []ActivityGroup {
	byCode := make(map[ActivityCode]*ActivityGroup)
	for _, e := range entries {
		code := c.Catalog.Classify(e)
		g, ok := byCode[code]
		if !ok {
			g = &ActivityGroup{Activity: code}
			byCode[code] = g
		}
		g.Minutes += c.Normalizer.Worked(e)
		g.Entries = append(g.Entries, e)
	}
	mergeInspection(byCode)

	groups := make([]ActivityGroup, 0, len(byCode))
	for _, g := range byCode {
		groups = append(groups, *g)
	}
	sort.Slice(groups, func(i, j int) bool { return groups[i].Activity < groups[j].Activity })
	return groups
}

// mergeInspection keeps the legacy behavior: inspection hours are billed as
// normal labor.
func mergeInspection(byCode map[ActivityCode]*ActivityGroup) {
	insp, ok := byCode[ActivityInspection]
	if !ok {
		return
	}
	delete(byCode, ActivityInspection)
	normal, ok := byCode[ActivityNormal]
	if !ok {
		normal = &ActivityGroup{Activity: ActivityNormal}
		byCode[ActivityNormal] = normal
	}
	normal.Minutes += insp.Minutes
	normal.Entries = append(normal.Entries, insp.Entries...)
}

// MinutesFor returns this work order's post-merge worked time for one activity.
func (c *Calculator) MinutesFor(ctx context.Context, store Reader, workOrderID WorkOrderID, code ActivityCode) (Minutes, error) {
	entries, err := store.ListTimesheetEntries(ctx, workOrderID)
	if err != nil {
		return 0, err
	}
	for _, g := range c.Group(entries) {
		if g.Activity == code {
			return g.Minutes, nil
		}
	}
	return 0, nil
}

// Aggregate produces one ActivitySummary per post-merge activity code.
func (c *Calculator) Aggregate(ctx context.Context, store Reader, workOrderID WorkOrderID, baseline Baseline) ([]ActivitySummary, error) {
	entries, err := store.ListTimesheetEntries(ctx, workOrderID)
	if err != nil {
		return nil, err
	}
	memos, err := store.ListActivityMemos(ctx, workOrderID)
	if err != nil {
		return nil, err
	}
	memoByCode := make(map[ActivityCode]string, len(memos))
	for _, m := range memos {
		memoByCode[m.Activity] = m.Memo
	}

	groups := c.Group(entries)
	out := make([]ActivitySummary, 0, len(groups))
	for _, g := range groups {
		rate, err := c.Rates.Resolve(ctx, store, g.Activity, g.Entries[0].MachineRef())
		if err != nil {
			return nil, err
		}
		bill := AmountFor(g.Minutes, rate.Bill)

		base := bill
		if prev, ok := baseline[g.Activity]; ok {
			base = prev
		}

		out = append(out, ActivitySummary{
			Activity:   g.Activity,
			Label:      c.Catalog.Label(g.Activity),
			Minutes:    g.Minutes,
			Hours:      g.Minutes.Display(),
			CostRate:   rate.Cost,
			BillRate:   rate.Bill,
			CostAmount: AmountFor(g.Minutes, rate.Cost),
			BillAmount: bill,
			Adjustment: bill.Sub(base),
			Memo:       memoByCode[g.Activity],
			EntryCount: len(g.Entries),
			Defaulted:  rate.Defaulted,
		})
	}
	return out, nil
}

// BaselineOf captures the bill amounts of a previous read.
func BaselineOf(activities []ActivitySummary) Baseline {
	b := make(Baseline, len(activities))
	for _, a := range activities {
		b[a.Activity] = a.BillAmount
	}
	return b
}

// =============================================================================
// TOTALS
// =============================================================================

type Totals struct {
	TotalMinutes    Minutes
	TotalHours      decimal.Decimal
	CostTotal       decimal.Decimal
	BillTotal       decimal.Decimal
	MaterialTotal   decimal.Decimal
	AdjustmentTotal decimal.Decimal
	FinalAmount     decimal.Decimal
}

// ComputeTotals sums activities and expenses.
// finalAmount = billTotal + materialTotal.
func ComputeTotals(activities []ActivitySummary, expenses []ExpenseItem) Totals {
	t := Totals{
		CostTotal:       decimal.Zero,
		BillTotal:       decimal.Zero,
		MaterialTotal:   decimal.Zero,
		AdjustmentTotal: decimal.Zero,
	}
	for _, a := range activities {
		t.TotalMinutes += a.Minutes
		t.CostTotal = t.CostTotal.Add(a.CostAmount)
		t.BillTotal = t.BillTotal.Add(a.BillAmount)
		t.AdjustmentTotal = t.AdjustmentTotal.Add(a.Adjustment)
	}
	for _, e := range expenses {
		t.MaterialTotal = t.MaterialTotal.Add(e.BillTotal)
	}
	t.TotalHours = t.TotalMinutes.Display()
	t.FinalAmount = t.BillTotal.Add(t.MaterialTotal)
	return t
}
