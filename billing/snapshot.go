package billing

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// =============================================================================
// SUMMARY SNAPSHOTTER - Frozen aggregation at finalization
// =============================================================================

// Snapshotter freezes a work order's aggregation. It is invoked only when a
// status change enters the aggregated state, and always appends: a second
// finalization produces a second row.
type Snapshotter struct {
	Calc *Calculator
	Now  func() time.Time
}

// Take recomputes activities and reads stored expenses through store (the
// update transaction), then appends the summary.
func (s *Snapshotter) Take(ctx context.Context, store Store, workOrderID WorkOrderID, creator *string) (AggregationSummary, error) {
	activities, err := s.Calc.Aggregate(ctx, store, workOrderID, nil)
	if err != nil {
		return AggregationSummary{}, err
	}
	expenses, err := store.ListExpenses(ctx, workOrderID)
	if err != nil {
		return AggregationSummary{}, err
	}
	totals := ComputeTotals(activities, expenses)

	now := time.Now
	if s.Now != nil {
		now = s.Now
	}
	summary := AggregationSummary{
		ID:              SummaryID(uuid.NewString()),
		WorkOrderID:     workOrderID,
		Activities:      activities,
		Expenses:        expenses,
		TotalHours:      totals.TotalHours,
		CostTotal:       totals.CostTotal,
		BillTotal:       totals.BillTotal,
		MaterialTotal:   totals.MaterialTotal,
		AdjustmentTotal: totals.AdjustmentTotal,
		FinalAmount:     totals.FinalAmount,
		CreatedBy:       creator,
		CreatedAt:       now().UTC(),
	}
	if err := store.AppendSummary(ctx, summary); err != nil {
		return AggregationSummary{}, err
	}
	return summary, nil
}
