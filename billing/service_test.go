package billing_test

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/billing-engine/activity"
	"github.com/warp/billing-engine/billing"
	"github.com/warp/billing-engine/billing/store"
)

// =============================================================================
// TEST HELPERS
// =============================================================================

type moverCall struct{ task, list string }

type recordingMover struct{ calls []moverCall }

func (m *recordingMover) MoveTask(_ context.Context, task, list string) error {
	m.calls = append(m.calls, moverCall{task, list})
	return nil
}

type fixture struct {
	ctx   context.Context
	store *store.Memory
	svc   *billing.Service
	mover *recordingMover
	seq   int
}

var day = time.Date(2025, time.April, 7, 0, 0, 0, 0, billing.DefaultZone)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	mem := store.NewMemory()

	cfg := billing.DefaultConfig()
	cfg.Lists = billing.TaskLists{Delivered: "L-del", Aggregating: "L-agg", Completed: "L-done"}
	mover := &recordingMover{}
	svc := billing.NewService(mem, activity.Default(), cfg, mover, slog.New(slog.NewTextHandler(io.Discard, nil)))
	svc.Now = func() time.Time { return time.Date(2025, time.April, 10, 9, 0, 0, 0, time.UTC) }

	f := &fixture{ctx: ctx, store: mem, svc: svc, mover: mover}
	require.NoError(t, mem.SaveWorkOrder(ctx, billing.WorkOrder{ID: "WO-1", Title: "Pump", Status: billing.StatusDelivered, ExternalTaskID: "card-1"}))
	require.NoError(t, mem.SaveWorker(ctx, billing.Worker{ID: "w-1", DisplayName: "佐藤 健"}))
	require.NoError(t, mem.SaveWorker(ctx, billing.Worker{ID: "w-2", DisplayName: "ｻﾄｳ ｹﾝ"}))
	require.NoError(t, mem.SaveMachine(ctx, billing.Machine{ID: "nc-lathe", Name: "NC lathe"}))
	require.NoError(t, mem.SaveUser(ctx, billing.User{ID: "u-1", Name: "Office"}))
	f.rate(billing.RateLabor, "Normal labor", 8000, 11000)
	f.rate(billing.RateLabor, "Trainee labor", 5000, 7000)
	f.rate(billing.RateMachine, "nc-lathe", 4000, 6000)
	return f
}

func (f *fixture) rate(kind billing.RateKind, key string, cost, bill int64) {
	_ = f.store.UpsertRate(f.ctx, billing.RateRecord{
		Kind: kind, Key: key,
		CostPerHour: decimal.NewFromInt(cost), BillPerHour: decimal.NewFromInt(bill),
	})
}

func (f *fixture) entry(t *testing.T, worker, machine, from, to, desc string, flag billing.StatusFlag) {
	t.Helper()
	at := func(s string) time.Time {
		c, err := billing.ParseClock(s)
		require.NoError(t, err)
		return day.Add(time.Duration(c) * time.Minute).UTC()
	}
	f.seq++
	e := billing.TimesheetEntry{
		ID:          billing.EntryID(fmt.Sprintf("e%d", f.seq)),
		WorkOrderID: "WO-1",
		Start:       at(from),
		End:         at(to),
		Worker:      billing.Worker{ID: worker},
		Description: desc,
		Flag:        flag,
	}
	if machine != "" {
		e.Machine = &billing.Machine{ID: machine}
	}
	require.NoError(t, f.store.SaveTimesheetEntry(f.ctx, e))
}

// standardDay: NORMAL 8h + INSPECTION 2h (merged), TRAINEE 4h, nc-lathe 2h.
func (f *fixture) standardDay(t *testing.T) {
	f.entry(t, "w-1", "", "08:00", "17:00", "disassembly", billing.FlagNone)
	f.entry(t, "w-1", "", "14:00", "16:00", "Final INSPECTION", billing.FlagNone)
	f.entry(t, "w-2", "", "08:00", "12:00", "cleaning", billing.FlagNone)
	f.entry(t, "w-1", "nc-lathe", "13:00", "15:00", "turning", billing.FlagNone)
}

func findActivity(t *testing.T, acts []billing.ActivitySummary, code billing.ActivityCode) billing.ActivitySummary {
	t.Helper()
	for _, a := range acts {
		if a.Activity == code {
			return a
		}
	}
	t.Fatalf("activity %s missing", code)
	return billing.ActivitySummary{}
}

func status(s billing.Status) *billing.Status { return &s }

func billRate(s string) *decimal.Decimal {
	d := dec(s)
	return &d
}

// =============================================================================
// VIEW
// =============================================================================

func TestView_AggregatesActivities(t *testing.T) {
	// GIVEN: A day of normal, inspection, trainee and machine entries
	// WHEN: Viewing the work order
	// THEN: Inspection folds into normal and every activity is priced

	f := newFixture(t)
	f.standardDay(t)

	view, err := f.svc.View(f.ctx, "WO-1", nil)
	require.NoError(t, err)
	require.Len(t, view.Activities, 3)

	normal := findActivity(t, view.Activities, billing.ActivityNormal)
	assert.Equal(t, billing.Minutes(10*60), normal.Minutes)
	assert.Equal(t, 2, normal.EntryCount)
	assert.True(t, normal.BillAmount.Equal(dec("110000")))
	assert.True(t, normal.CostAmount.Equal(dec("80000")))

	trainee := findActivity(t, view.Activities, billing.ActivityTrainee)
	assert.True(t, trainee.BillAmount.Equal(dec("28000")), "half-width katakana name is a trainee")

	lathe := findActivity(t, view.Activities, billing.MachineActivity("nc-lathe"))
	assert.Equal(t, "NC lathe", lathe.Label)
	assert.True(t, lathe.BillAmount.Equal(dec("12000")))

	assert.True(t, view.Totals.BillTotal.Equal(dec("150000")))
	assert.True(t, view.Totals.CostTotal.Equal(dec("108000")))
	assert.True(t, view.Totals.TotalHours.Equal(dec("16")))
	assert.True(t, view.Totals.FinalAmount.Equal(dec("150000")))
	assert.Nil(t, view.Summary)
}

func TestView_Baseline(t *testing.T) {
	f := newFixture(t)
	f.standardDay(t)

	before, err := f.svc.View(f.ctx, "WO-1", nil)
	require.NoError(t, err)
	baseline := billing.BaselineOf(before.Activities)

	_, err = f.svc.Update(f.ctx, billing.UpdateRequest{
		WorkOrderID:         "WO-1",
		BillRateAdjustments: map[billing.ActivityCode]billing.RateEdit{billing.ActivityTrainee: {BillRate: billRate("7500")}},
	})
	require.NoError(t, err)

	after, err := f.svc.View(f.ctx, "WO-1", baseline)
	require.NoError(t, err)
	assert.True(t, findActivity(t, after.Activities, billing.ActivityTrainee).Adjustment.Equal(dec("2000")))
	assert.True(t, findActivity(t, after.Activities, billing.ActivityNormal).Adjustment.IsZero())
	assert.True(t, after.Totals.AdjustmentTotal.Equal(dec("2000")))
}

func TestView_DefaultRate(t *testing.T) {
	f := newFixture(t)
	f.entry(t, "w-1", "crane", "09:00", "10:30", "lift", billing.FlagNone)

	view, err := f.svc.View(f.ctx, "WO-1", nil)
	require.NoError(t, err)
	require.Len(t, view.Activities, 1)
	crane := view.Activities[0]
	assert.Equal(t, billing.MachineActivity("crane"), crane.Activity)
	assert.True(t, crane.Defaulted)
	assert.True(t, crane.BillAmount.Equal(dec("7500")))
	assert.True(t, crane.CostAmount.Equal(dec("4500")))
}

func TestView_NotFound(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.View(f.ctx, "WO-404", nil)
	assert.True(t, billing.IsNotFound(err))
}

// =============================================================================
// RATE ADJUSTMENTS
// =============================================================================

func TestUpdate_RateAdjustment(t *testing.T) {
	// GIVEN: NORMAL at 11,000/h over 10h
	// WHEN: u-1 raises it to 12,500/h with a memo
	// THEN: Rate updated in place, memo stored, one audit row of +15,000

	f := newFixture(t)
	f.standardDay(t)
	memo := "rush job"

	res, err := f.svc.Update(f.ctx, billing.UpdateRequest{
		WorkOrderID: "WO-1",
		ActorID:     "u-1",
		BillRateAdjustments: map[billing.ActivityCode]billing.RateEdit{
			billing.ActivityNormal: {BillRate: billRate("12500"), Memo: &memo},
		},
	})
	require.NoError(t, err)
	require.Len(t, res.Adjustments, 1)

	adj := res.Adjustments[0]
	assert.Equal(t, billing.AdjRateAdjustment, adj.Type)
	assert.Equal(t, billing.ActivityNormal, adj.Activity)
	assert.True(t, adj.Amount.Equal(dec("15000")))
	assert.Equal(t, "Normal labor bill rate 11,000 -> 12,500 (10.00h)", adj.Reason)
	require.NotNil(t, adj.CreatedBy)
	assert.Equal(t, "u-1", *adj.CreatedBy)

	rec, err := f.store.GetRate(f.ctx, billing.RateKey{Kind: billing.RateLabor, Key: "Normal labor"})
	require.NoError(t, err)
	assert.True(t, rec.BillPerHour.Equal(dec("12500")))
	assert.True(t, rec.CostPerHour.Equal(dec("8000")), "cost untouched")

	view, err := f.svc.View(f.ctx, "WO-1", nil)
	require.NoError(t, err)
	assert.Equal(t, "rush job", findActivity(t, view.Activities, billing.ActivityNormal).Memo)
	assert.Len(t, view.Adjustments, 1)
}

func TestUpdate_MemoOnlyWritesNoAuditRow(t *testing.T) {
	f := newFixture(t)
	f.standardDay(t)
	memo := "checked"

	res, err := f.svc.Update(f.ctx, billing.UpdateRequest{
		WorkOrderID:         "WO-1",
		BillRateAdjustments: map[billing.ActivityCode]billing.RateEdit{billing.ActivityNormal: {BillRate: billRate("11000"), Memo: &memo}},
	})
	require.NoError(t, err)
	assert.Empty(t, res.Adjustments)

	memos, err := f.store.ListActivityMemos(f.ctx, "WO-1")
	require.NoError(t, err)
	require.Len(t, memos, 1)
	assert.Equal(t, "checked", memos[0].Memo)
}

func TestUpdate_MemoWithoutRateKeepsRate(t *testing.T) {
	f := newFixture(t)
	f.standardDay(t)
	memo := "customer asked"

	res, err := f.svc.Update(f.ctx, billing.UpdateRequest{
		WorkOrderID: "WO-1",
		BillRateAdjustments: map[billing.ActivityCode]billing.RateEdit{
			billing.ActivityNormal:           {Memo: &memo},
			billing.MachineActivity("crane"): {Memo: &memo},
		},
	})
	require.NoError(t, err, "memo-only edits do not need a rate record")
	assert.Empty(t, res.Adjustments)

	rate, err := f.store.GetRate(f.ctx, billing.RateKey{Kind: billing.RateLabor, Key: "Normal labor"})
	require.NoError(t, err)
	assert.True(t, rate.BillPerHour.Equal(dec("11000")))

	memos, err := f.store.ListActivityMemos(f.ctx, "WO-1")
	require.NoError(t, err)
	assert.Len(t, memos, 2)
}

func TestUpdate_UnknownActorIsUnattributed(t *testing.T) {
	f := newFixture(t)
	f.standardDay(t)

	res, err := f.svc.Update(f.ctx, billing.UpdateRequest{
		WorkOrderID:         "WO-1",
		ActorID:             "someone",
		BillRateAdjustments: map[billing.ActivityCode]billing.RateEdit{billing.ActivityTrainee: {BillRate: billRate("6000")}},
	})
	require.NoError(t, err)
	require.Len(t, res.Adjustments, 1)
	assert.True(t, res.Adjustments[0].Unattributed())
	assert.True(t, res.Adjustments[0].Amount.Equal(dec("-4000")))
}

func TestUpdate_MissingRateRecord(t *testing.T) {
	f := newFixture(t)
	f.entry(t, "w-1", "crane", "09:00", "10:00", "lift", billing.FlagNone)

	_, err := f.svc.Update(f.ctx, billing.UpdateRequest{
		WorkOrderID:         "WO-1",
		BillRateAdjustments: map[billing.ActivityCode]billing.RateEdit{billing.MachineActivity("crane"): {BillRate: billRate("9000")}},
	})
	assert.True(t, errors.Is(err, billing.ErrRateNotFound))

	_, err = f.store.GetRate(f.ctx, billing.RateKey{Kind: billing.RateMachine, Key: "crane"})
	assert.True(t, billing.IsNotFound(err), "no rate record created")
}

func TestUpdate_RollsBackOnLaterFailure(t *testing.T) {
	// GIVEN: A valid rate edit and an invalid expense in one request
	// WHEN: Updating
	// THEN: Nothing is written

	f := newFixture(t)
	f.standardDay(t)

	_, err := f.svc.Update(f.ctx, billing.UpdateRequest{
		WorkOrderID:         "WO-1",
		ActorID:             "u-1",
		BillRateAdjustments: map[billing.ActivityCode]billing.RateEdit{billing.ActivityNormal: {BillRate: billRate("20000")}},
		Expenses:            &[]billing.ExpenseDraft{{Category: "materials", CostTotal: billing.Num(100), Memo: strings.Repeat("x", 51)}},
		Status:              status(billing.StatusAggregating),
	})
	require.Error(t, err)
	assert.True(t, billing.IsClientError(err))

	rec, err := f.store.GetRate(f.ctx, billing.RateKey{Kind: billing.RateLabor, Key: "Normal labor"})
	require.NoError(t, err)
	assert.True(t, rec.BillPerHour.Equal(dec("11000")))

	adjs, err := f.store.ListAdjustments(f.ctx, "WO-1", true)
	require.NoError(t, err)
	assert.Empty(t, adjs)

	wo, err := f.store.GetWorkOrder(f.ctx, "WO-1")
	require.NoError(t, err)
	assert.Equal(t, billing.StatusDelivered, wo.Status)
	assert.Empty(t, f.mover.calls)
}

func TestUpdate_WorkOrderNotFound(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.Update(f.ctx, billing.UpdateRequest{WorkOrderID: "WO-404", Status: status(billing.StatusAggregating)})
	assert.True(t, errors.Is(err, billing.ErrWorkOrderNotFound))
}

// =============================================================================
// EXPENSES AND PASS-THROUGH FIELDS
// =============================================================================

func TestUpdate_ReplacesExpenses(t *testing.T) {
	f := newFixture(t)
	f.standardDay(t)

	_, err := f.svc.Update(f.ctx, billing.UpdateRequest{
		WorkOrderID: "WO-1",
		Expenses: &[]billing.ExpenseDraft{
			{Category: "materials", CostUnitPrice: billing.Num(1000), CostQuantity: billing.Num(3)},
			{Category: "other", BillTotal: billing.Num(500)},
		},
	})
	require.NoError(t, err)

	view, err := f.svc.View(f.ctx, "WO-1", nil)
	require.NoError(t, err)
	require.Len(t, view.Expenses, 2)
	assert.True(t, view.Totals.MaterialTotal.Equal(dec("4100")))
	assert.True(t, view.Totals.FinalAmount.Equal(dec("154100")))

	// An empty list clears; nil leaves untouched.
	_, err = f.svc.Update(f.ctx, billing.UpdateRequest{WorkOrderID: "WO-1", Status: status(billing.StatusDelivered)})
	require.NoError(t, err)
	items, err := f.store.ListExpenses(f.ctx, "WO-1")
	require.NoError(t, err)
	assert.Len(t, items, 2)

	_, err = f.svc.Update(f.ctx, billing.UpdateRequest{WorkOrderID: "WO-1", Expenses: &[]billing.ExpenseDraft{}})
	require.NoError(t, err)
	items, err = f.store.ListExpenses(f.ctx, "WO-1")
	require.NoError(t, err)
	assert.Empty(t, items)
}

func TestUpdate_PassThroughFields(t *testing.T) {
	f := newFixture(t)
	estimate := dec("120000")
	delivery := time.Date(2025, time.May, 1, 0, 0, 0, 0, billing.DefaultZone)

	res, err := f.svc.Update(f.ctx, billing.UpdateRequest{
		WorkOrderID:    "WO-1",
		EstimateAmount: &estimate,
		DeliveryDate:   &delivery,
	})
	require.NoError(t, err)
	require.NotNil(t, res.WorkOrder.EstimateAmount)
	assert.True(t, res.WorkOrder.EstimateAmount.Equal(estimate))

	wo, err := f.store.GetWorkOrder(f.ctx, "WO-1")
	require.NoError(t, err)
	require.NotNil(t, wo.DeliveryDate)
	assert.True(t, wo.DeliveryDate.Equal(delivery))
	assert.Nil(t, wo.FinalDecisionAmount)
	assert.Nil(t, wo.FinalAmount)
}

// =============================================================================
// STATUS AND SNAPSHOTS
// =============================================================================

func TestUpdate_FinalizeTakesSnapshot(t *testing.T) {
	// GIVEN: A work order in aggregating with expenses
	// WHEN: Moving to aggregated
	// THEN: A summary is appended, final amount set, card moved to completed

	f := newFixture(t)
	f.standardDay(t)

	_, err := f.svc.Update(f.ctx, billing.UpdateRequest{
		WorkOrderID: "WO-1",
		Status:      status(billing.StatusAggregating),
		Expenses:    &[]billing.ExpenseDraft{{Category: "shipping", CostTotal: billing.Num(2500)}},
	})
	require.NoError(t, err)

	res, err := f.svc.Update(f.ctx, billing.UpdateRequest{WorkOrderID: "WO-1", ActorID: "u-1", Status: status(billing.StatusAggregated)})
	require.NoError(t, err)
	require.NotNil(t, res.Summary)
	assert.True(t, res.Summary.FinalAmount.Equal(dec("153000")))
	assert.Len(t, res.Summary.Activities, 3)
	assert.Len(t, res.Summary.Expenses, 1)
	require.NotNil(t, res.Summary.CreatedBy)
	require.NotNil(t, res.WorkOrder.FinalAmount)
	assert.True(t, res.WorkOrder.FinalAmount.Equal(dec("153000")))

	assert.Equal(t, []moverCall{{"card-1", "L-agg"}, {"card-1", "L-done"}}, f.mover.calls)

	view, err := f.svc.View(f.ctx, "WO-1", nil)
	require.NoError(t, err)
	require.NotNil(t, view.Summary)
	assert.Equal(t, res.Summary.ID, view.Summary.ID)
}

func TestUpdate_RefinalizeAppendsSecondSnapshot(t *testing.T) {
	f := newFixture(t)
	f.standardDay(t)

	for _, s := range []billing.Status{billing.StatusAggregating, billing.StatusAggregated, billing.StatusAggregating} {
		_, err := f.svc.Update(f.ctx, billing.UpdateRequest{WorkOrderID: "WO-1", Status: status(s)})
		require.NoError(t, err)
	}
	_, err := f.svc.Update(f.ctx, billing.UpdateRequest{
		WorkOrderID:         "WO-1",
		BillRateAdjustments: map[billing.ActivityCode]billing.RateEdit{billing.ActivityNormal: {BillRate: billRate("12000")}},
		Status:              status(billing.StatusAggregated),
	})
	require.NoError(t, err)

	summaries, err := f.svc.Summaries(f.ctx, "WO-1")
	require.NoError(t, err)
	require.Len(t, summaries, 2)
	assert.True(t, summaries[0].FinalAmount.Equal(dec("150000")))
	assert.True(t, summaries[1].FinalAmount.Equal(dec("160000")), "snapshot sees the rate change of the same request")

	wo, err := f.store.GetWorkOrder(f.ctx, "WO-1")
	require.NoError(t, err)
	assert.True(t, wo.FinalAmount.Equal(dec("160000")))
}

func TestUpdate_SameStatusIsNoop(t *testing.T) {
	f := newFixture(t)

	res, err := f.svc.Update(f.ctx, billing.UpdateRequest{WorkOrderID: "WO-1", Status: status(billing.StatusDelivered)})
	require.NoError(t, err)
	assert.Nil(t, res.Transition)
	assert.Empty(t, f.mover.calls)
}

func TestUpdate_UndefinedEdgeTolerated(t *testing.T) {
	f := newFixture(t)
	f.standardDay(t)

	res, err := f.svc.Update(f.ctx, billing.UpdateRequest{WorkOrderID: "WO-1", Status: status(billing.StatusAggregated)})
	require.NoError(t, err)
	require.NotNil(t, res.Transition)
	assert.False(t, res.Transition.Defined)
	assert.NotNil(t, res.Summary)
	assert.Empty(t, f.mover.calls, "no sync for undefined edge")
}

func TestUpdate_UndefinedEdgeStrict(t *testing.T) {
	f := newFixture(t)
	f.svc.Transitions.Strict = true

	_, err := f.svc.Update(f.ctx, billing.UpdateRequest{WorkOrderID: "WO-1", Status: status(billing.StatusAggregated)})
	assert.True(t, errors.Is(err, billing.ErrUndefinedTransition))

	wo, err := f.store.GetWorkOrder(f.ctx, "WO-1")
	require.NoError(t, err)
	assert.Equal(t, billing.StatusDelivered, wo.Status)
}

// =============================================================================
// COMMENTS
// =============================================================================

func TestComments_EditAndDelete(t *testing.T) {
	f := newFixture(t)

	rec, err := f.svc.AddComment(f.ctx, "WO-1", billing.CommentInput{Type: billing.AdjComment, Amount: dec("-3000"), Reason: "discount"}, "u-1")
	require.NoError(t, err)

	// Refused before anything is touched.
	_, err = f.svc.EditComment(f.ctx, "WO-1", rec.ID, billing.CommentInput{Type: billing.AdjComment, Reason: "x"}, "intruder", false)
	assert.True(t, billing.IsForbidden(err))
	all, err := f.store.ListAdjustments(f.ctx, "WO-1", true)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.False(t, all[0].IsDeleted)

	edited, err := f.svc.EditComment(f.ctx, "WO-1", rec.ID, billing.CommentInput{Type: billing.AdjCorrection, Amount: dec("-2000"), Reason: "discount, revised"}, "u-1", true)
	require.NoError(t, err)
	assert.Equal(t, rec.ID, edited.Supersedes)

	old, err := f.store.GetAdjustment(f.ctx, rec.ID)
	require.NoError(t, err)
	assert.True(t, old.IsDeleted)
	require.NotNil(t, old.DeletedBy)
	assert.Equal(t, "u-1", *old.DeletedBy)
	assert.True(t, old.Amount.Equal(dec("-3000")), "original values kept")

	err = f.svc.DeleteComment(f.ctx, "WO-1", edited.ID, "u-1", false)
	assert.True(t, billing.IsForbidden(err))

	require.NoError(t, f.svc.DeleteComment(f.ctx, "WO-1", edited.ID, "u-1", true))
	err = f.svc.DeleteComment(f.ctx, "WO-1", edited.ID, "u-1", true)
	assert.True(t, billing.IsNotFound(err))

	live, err := f.store.ListAdjustments(f.ctx, "WO-1", false)
	require.NoError(t, err)
	assert.Empty(t, live)
}

func TestComments_Validation(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.AddComment(f.ctx, "WO-1", billing.CommentInput{Type: billing.AdjRateAdjustment, Reason: "x"}, "")
	assert.True(t, errors.Is(err, billing.ErrValidation))

	_, err = f.svc.AddComment(f.ctx, "WO-1", billing.CommentInput{Type: billing.AdjComment}, "")
	assert.True(t, errors.Is(err, billing.ErrValidation))

	_, err = f.svc.AddComment(f.ctx, "WO-404", billing.CommentInput{Type: billing.AdjComment, Reason: "x"}, "")
	assert.True(t, billing.IsNotFound(err))
}

func TestComments_RateAdjustmentsAreNotEditable(t *testing.T) {
	f := newFixture(t)
	f.standardDay(t)

	res, err := f.svc.Update(f.ctx, billing.UpdateRequest{
		WorkOrderID:         "WO-1",
		BillRateAdjustments: map[billing.ActivityCode]billing.RateEdit{billing.ActivityNormal: {BillRate: billRate("12000")}},
	})
	require.NoError(t, err)
	id := res.Adjustments[0].ID

	err = f.svc.DeleteComment(f.ctx, "WO-1", id, "u-1", true)
	assert.True(t, errors.Is(err, billing.ErrNotEditable))

	_, err = f.svc.EditComment(f.ctx, "WO-1", id, billing.CommentInput{Type: billing.AdjComment, Reason: "x"}, "u-1", true)
	assert.True(t, errors.Is(err, billing.ErrNotEditable))
}

func TestUpdate_ReplaceExpensesIsIdempotent(t *testing.T) {
	f := newFixture(t)
	drafts := []billing.ExpenseDraft{
		{Category: "materials", CostUnitPrice: billing.Num(1000), CostQuantity: billing.Num(3)},
		{Category: "shipping", CostTotal: billing.Num(800)},
	}

	for i := 0; i < 2; i++ {
		list := append([]billing.ExpenseDraft(nil), drafts...)
		_, err := f.svc.Update(f.ctx, billing.UpdateRequest{WorkOrderID: "WO-1", Expenses: &list})
		require.NoError(t, err)
	}

	items, err := f.store.ListExpenses(f.ctx, "WO-1")
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.True(t, items[0].BillTotal.Equal(dec("3600")))
	assert.True(t, items[1].BillTotal.Equal(dec("960")))
}
