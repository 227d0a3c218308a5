/*
service.go - Composite update and read entrypoints

PURPOSE:
  Wires the calculator, rate adjuster, expense normalizer, transition
  manager and snapshotter behind the two operations collaborators use:
  Update (one composite request per work order) and View.

UPDATE FLOW (one transaction):
  1. Load work order (NotFound -> nothing written)
  2. Pass-through fields
  3. Rate adjustments (rate + audit row + memo, per activity)
  4. Expense replacement (when supplied)
  5. Status change; entering aggregated takes a summary snapshot
  6. Commit, then best-effort task board sync outside the transaction

CONCURRENCY:
  The transaction is the only lock. Two concurrent updates of the same
  work order race; overlapping fields are last write wins.
*/
package billing

import (
	"context"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"
)

// Config holds the tunables of the engine.
type Config struct {
	Zone              *time.Location
	Lunch             LunchWindow
	DefaultRate       Rate
	Markup            decimal.Decimal
	StrictExpenses    bool
	StrictTransitions bool
	Lists             TaskLists
}

// DefaultConfig mirrors config.Default().
func DefaultConfig() Config {
	return Config{
		Zone:  DefaultZone,
		Lunch: DefaultLunch,
		DefaultRate: Rate{
			Cost: decimal.NewFromInt(3000),
			Bill: decimal.NewFromInt(5000),
		},
		Markup: DefaultMarkup,
	}
}

// Service is the billing engine.
type Service struct {
	Store       TxStore
	Calc        *Calculator
	Adjuster    *RateAdjuster
	Expenses    ExpenseNormalizer
	Transitions *TransitionManager
	Snapshots   *Snapshotter
	Logger      *slog.Logger
	Now         func() time.Time
}

// NewService builds a Service. mover may be nil.
func NewService(store TxStore, catalog Catalog, cfg Config, mover TaskMover, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Service{Store: store, Logger: logger, Now: time.Now}
	clock := func() time.Time { return s.Now() }

	s.Calc = &Calculator{
		Catalog:    catalog,
		Rates:      &RateResolver{Catalog: catalog, Default: cfg.DefaultRate, Logger: logger},
		Normalizer: Normalizer{Zone: cfg.Zone, Lunch: cfg.Lunch},
	}
	s.Adjuster = &RateAdjuster{Calc: s.Calc, Now: clock}
	s.Expenses = ExpenseNormalizer{Markup: cfg.Markup, Strict: cfg.StrictExpenses}
	s.Transitions = &TransitionManager{Lists: cfg.Lists, Strict: cfg.StrictTransitions, Mover: mover, Logger: logger}
	s.Snapshots = &Snapshotter{Calc: s.Calc, Now: clock}
	return s
}

// =============================================================================
// UPDATE
// =============================================================================

// UpdateRequest is the single composite request per work order.
// Nil fields are left untouched.
type UpdateRequest struct {
	WorkOrderID         WorkOrderID
	ActorID             string
	BillRateAdjustments map[ActivityCode]RateEdit
	Expenses            *[]ExpenseDraft
	Status              *Status

	EstimateAmount      *decimal.Decimal
	FinalDecisionAmount *decimal.Decimal
	DeliveryDate        *time.Time
}

// UpdateResult reports what the update wrote.
type UpdateResult struct {
	WorkOrder   WorkOrder
	Adjustments []AdjustmentRecord
	Expenses    []ExpenseItem
	Transition  *Transition
	Summary     *AggregationSummary
}

// Update applies a composite request atomically.
func (s *Service) Update(ctx context.Context, req UpdateRequest) (*UpdateResult, error) {
	res := &UpdateResult{}
	err := s.Store.WithTx(ctx, func(tx Store) error {
		wo, err := tx.GetWorkOrder(ctx, req.WorkOrderID)
		if err != nil {
			return err
		}
		creator, err := ResolveCreator(ctx, tx, req.ActorID)
		if err != nil {
			return err
		}

		if req.EstimateAmount != nil {
			wo.EstimateAmount = req.EstimateAmount
		}
		if req.FinalDecisionAmount != nil {
			wo.FinalDecisionAmount = req.FinalDecisionAmount
		}
		if req.DeliveryDate != nil {
			wo.DeliveryDate = req.DeliveryDate
		}

		if len(req.BillRateAdjustments) > 0 {
			res.Adjustments, err = s.Adjuster.Apply(ctx, tx, wo.ID, req.BillRateAdjustments, creator)
			if err != nil {
				return err
			}
		}

		if req.Expenses != nil {
			res.Expenses, err = s.Expenses.ReplaceExpenses(ctx, tx, wo.ID, *req.Expenses, s.Now().UTC())
			if err != nil {
				return err
			}
		}

		if req.Status != nil {
			t, changed, err := s.Transitions.Plan(wo.Status, *req.Status)
			if err != nil {
				return err
			}
			if changed {
				wo.Status = t.To
				res.Transition = &t
				if t.Finalizes() {
					summary, err := s.Snapshots.Take(ctx, tx, wo.ID, creator)
					if err != nil {
						return err
					}
					final := summary.FinalAmount
					wo.FinalAmount = &final
					res.Summary = &summary
				}
			}
		}

		wo.UpdatedAt = s.Now().UTC()
		if err := tx.UpdateWorkOrder(ctx, *wo); err != nil {
			return err
		}
		res.WorkOrder = *wo
		return nil
	})
	if err != nil {
		return nil, err
	}

	if res.Transition != nil {
		s.Transitions.Sync(ctx, res.WorkOrder, *res.Transition)
	}
	s.Logger.Info("work order updated",
		"work_order", string(req.WorkOrderID),
		"status", string(res.WorkOrder.Status),
		"adjustments", len(res.Adjustments),
		"finalized", res.Summary != nil)
	return res, nil
}

// =============================================================================
// VIEW
// =============================================================================

// WorkOrderView is the read response.
type WorkOrderView struct {
	WorkOrder   WorkOrder
	Activities  []ActivitySummary
	Expenses    []ExpenseItem
	Adjustments []AdjustmentRecord // non-deleted
	Totals      Totals
	Summary     *AggregationSummary // latest, only when aggregated
}

// View recomputes the live aggregation. baseline may be nil.
func (s *Service) View(ctx context.Context, id WorkOrderID, baseline Baseline) (*WorkOrderView, error) {
	wo, err := s.Store.GetWorkOrder(ctx, id)
	if err != nil {
		return nil, err
	}
	activities, err := s.Calc.Aggregate(ctx, s.Store, id, baseline)
	if err != nil {
		return nil, err
	}
	expenses, err := s.Store.ListExpenses(ctx, id)
	if err != nil {
		return nil, err
	}
	adjustments, err := s.Store.ListAdjustments(ctx, id, false)
	if err != nil {
		return nil, err
	}
	view := &WorkOrderView{
		WorkOrder:   *wo,
		Activities:  activities,
		Expenses:    expenses,
		Adjustments: adjustments,
		Totals:      ComputeTotals(activities, expenses),
	}
	if wo.Status == StatusAggregated {
		summaries, err := s.Store.ListSummaries(ctx, id)
		if err != nil {
			return nil, err
		}
		if n := len(summaries); n > 0 {
			view.Summary = &summaries[n-1]
		}
	}
	return view, nil
}

// Summaries returns every snapshot of a work order, oldest first.
func (s *Service) Summaries(ctx context.Context, id WorkOrderID) ([]AggregationSummary, error) {
	if _, err := s.Store.GetWorkOrder(ctx, id); err != nil {
		return nil, err
	}
	return s.Store.ListSummaries(ctx, id)
}

// =============================================================================
// COMMENTS - Permission decision supplied by the caller
// =============================================================================

// AddComment records an operator comment or correction.
func (s *Service) AddComment(ctx context.Context, id WorkOrderID, in CommentInput, actorID string) (AdjustmentRecord, error) {
	var rec AdjustmentRecord
	err := s.Store.WithTx(ctx, func(tx Store) error {
		if _, err := tx.GetWorkOrder(ctx, id); err != nil {
			return err
		}
		creator, err := ResolveCreator(ctx, tx, actorID)
		if err != nil {
			return err
		}
		rec, err = s.Adjuster.AddComment(ctx, tx, id, in, creator)
		return err
	})
	return rec, err
}

// EditComment supersedes a comment. allowed is the caller's permission
// decision; a refusal fails before anything is read or written.
func (s *Service) EditComment(ctx context.Context, id WorkOrderID, recID AdjustmentID, in CommentInput, actorID string, allowed bool) (AdjustmentRecord, error) {
	if !allowed {
		return AdjustmentRecord{}, &ForbiddenError{ActorID: actorID, Action: "edit", Target: string(recID)}
	}
	var rec AdjustmentRecord
	err := s.Store.WithTx(ctx, func(tx Store) error {
		actor, err := ResolveCreator(ctx, tx, actorID)
		if err != nil {
			return err
		}
		rec, err = s.Adjuster.EditComment(ctx, tx, id, recID, in, actor)
		return err
	})
	return rec, err
}

// DeleteComment soft-deletes a comment.
func (s *Service) DeleteComment(ctx context.Context, id WorkOrderID, recID AdjustmentID, actorID string, allowed bool) error {
	if !allowed {
		return &ForbiddenError{ActorID: actorID, Action: "delete", Target: string(recID)}
	}
	return s.Store.WithTx(ctx, func(tx Store) error {
		actor, err := ResolveCreator(ctx, tx, actorID)
		if err != nil {
			return err
		}
		return s.Adjuster.DeleteComment(ctx, tx, id, recID, actor)
	})
}
