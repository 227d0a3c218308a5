package sqlite

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/billing-engine/billing"
)

// =============================================================================
// TEST SETUP
// =============================================================================

func newTestStore(t *testing.T) *Store {
	store, err := New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestNew_CreatesParentDirectory(t *testing.T) {
	// GIVEN: A database path under directories that do not exist yet
	// WHEN: Opening the store
	// THEN: The directories are created and the schema is migrated

	path := filepath.Join(t.TempDir(), "data", "nested", "billing.db")
	store, err := New(path)
	require.NoError(t, err)
	defer store.Close()

	seedWorkOrder(t, store, "WO-1")
	_, err = store.GetWorkOrder(context.Background(), "WO-1")
	assert.NoError(t, err)
}

var t0 = time.Date(2025, time.April, 1, 0, 0, 0, 0, time.UTC)

func seedWorkOrder(t *testing.T, s *Store, id billing.WorkOrderID) {
	require.NoError(t, s.SaveWorkOrder(context.Background(), billing.WorkOrder{
		ID:             id,
		Title:          "Pump overhaul",
		Status:         billing.StatusDelivered,
		ExternalTaskID: "card-1",
		CreatedAt:      t0,
		UpdatedAt:      t0,
	}))
}

func ptr[T any](v T) *T { return &v }

// =============================================================================
// WORK ORDERS
// =============================================================================

func TestStore_WorkOrder_RoundTrip(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	seedWorkOrder(t, s, "wo-1")

	wo, err := s.GetWorkOrder(ctx, "wo-1")
	require.NoError(t, err)
	assert.Equal(t, "Pump overhaul", wo.Title)
	assert.Equal(t, billing.StatusDelivered, wo.Status)
	assert.Equal(t, "card-1", wo.ExternalTaskID)
	assert.Nil(t, wo.EstimateAmount)
	assert.Nil(t, wo.DeliveryDate)

	wo.Status = billing.StatusAggregated
	wo.EstimateAmount = ptr(decimal.NewFromInt(120000))
	wo.FinalAmount = ptr(decimal.RequireFromString("98765"))
	wo.DeliveryDate = ptr(t0.Add(48 * time.Hour))
	require.NoError(t, s.UpdateWorkOrder(ctx, *wo))

	got, err := s.GetWorkOrder(ctx, "wo-1")
	require.NoError(t, err)
	assert.Equal(t, billing.StatusAggregated, got.Status)
	assert.True(t, got.EstimateAmount.Equal(decimal.NewFromInt(120000)))
	assert.True(t, got.FinalAmount.Equal(decimal.NewFromInt(98765)))
	require.NotNil(t, got.DeliveryDate)
	assert.True(t, got.DeliveryDate.Equal(t0.Add(48*time.Hour)))
}

func TestStore_WorkOrder_NotFound(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	_, err := s.GetWorkOrder(ctx, "missing")
	assert.ErrorIs(t, err, billing.ErrWorkOrderNotFound)
	assert.True(t, billing.IsNotFound(err))

	err = s.UpdateWorkOrder(ctx, billing.WorkOrder{ID: "missing"})
	assert.ErrorIs(t, err, billing.ErrWorkOrderNotFound)
}

// =============================================================================
// TIMESHEETS
// =============================================================================

func TestStore_TimesheetEntries_ResolveWorkerAndMachine(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	seedWorkOrder(t, s, "wo-1")
	require.NoError(t, s.SaveWorker(ctx, billing.Worker{ID: "w-1", DisplayName: "Sato"}))
	require.NoError(t, s.SaveMachine(ctx, billing.Machine{ID: "lathe", Name: "Lathe #1"}))

	require.NoError(t, s.SaveTimesheetEntry(ctx, billing.TimesheetEntry{
		ID: "e-2", WorkOrderID: "wo-1", Start: t0.Add(10 * time.Hour), End: t0.Add(12 * time.Hour),
		Worker: billing.Worker{ID: "w-1"}, Machine: &billing.Machine{ID: "lathe"},
	}))
	require.NoError(t, s.SaveTimesheetEntry(ctx, billing.TimesheetEntry{
		ID: "e-1", WorkOrderID: "wo-1", Start: t0.Add(8 * time.Hour), End: t0.Add(9 * time.Hour),
		Worker: billing.Worker{ID: "w-1"}, Flag: billing.FlagLunchOvertime,
	}))

	entries, err := s.ListTimesheetEntries(ctx, "wo-1")
	require.NoError(t, err)
	require.Len(t, entries, 2)

	assert.Equal(t, billing.EntryID("e-1"), entries[0].ID, "ordered by start")
	assert.Equal(t, "Sato", entries[0].Worker.DisplayName)
	assert.Nil(t, entries[0].Machine)
	assert.Equal(t, billing.FlagLunchOvertime, entries[0].Flag)

	require.NotNil(t, entries[1].Machine)
	assert.Equal(t, "Lathe #1", entries[1].Machine.Name)
}

// =============================================================================
// RATES
// =============================================================================

func TestStore_UpsertRate_UpdatesInPlace(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	key := billing.RateKey{Kind: billing.RateLabor, Key: "Normal labor"}

	_, err := s.GetRate(ctx, key)
	assert.ErrorIs(t, err, billing.ErrRateNotFound)

	require.NoError(t, s.UpsertRate(ctx, billing.RateRecord{
		Kind: key.Kind, Key: key.Key,
		CostPerHour: decimal.NewFromInt(8000), BillPerHour: decimal.NewFromInt(11000), UpdatedAt: t0,
	}))
	require.NoError(t, s.UpsertRate(ctx, billing.RateRecord{
		Kind: key.Kind, Key: key.Key,
		CostPerHour: decimal.NewFromInt(8000), BillPerHour: decimal.NewFromInt(12000), UpdatedAt: t0,
	}))

	rates, err := s.ListRates(ctx)
	require.NoError(t, err)
	require.Len(t, rates, 1, "one active record per key")
	assert.True(t, rates[0].BillPerHour.Equal(decimal.NewFromInt(12000)))
}

// =============================================================================
// ADJUSTMENTS
// =============================================================================

func TestStore_Adjustments_SoftDeleteOnly(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	rec := billing.AdjustmentRecord{
		ID: "adj-1", WorkOrderID: "wo-1", Type: billing.AdjComment,
		Amount: decimal.NewFromInt(-500), Reason: "discount", CreatedAt: t0,
	}
	require.NoError(t, s.AppendAdjustment(ctx, rec))

	got, err := s.GetAdjustment(ctx, "adj-1")
	require.NoError(t, err)
	assert.True(t, got.Unattributed())
	assert.True(t, got.Amount.Equal(decimal.NewFromInt(-500)))

	require.NoError(t, s.SoftDeleteAdjustment(ctx, "adj-1", ptr("admin"), t0.Add(time.Hour)))
	err = s.SoftDeleteAdjustment(ctx, "adj-1", ptr("admin"), t0.Add(time.Hour))
	assert.ErrorIs(t, err, billing.ErrAdjustmentNotFound, "already deleted")

	live, err := s.ListAdjustments(ctx, "wo-1", false)
	require.NoError(t, err)
	assert.Empty(t, live)

	all, err := s.ListAdjustments(ctx, "wo-1", true)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.True(t, all[0].IsDeleted)
	assert.Equal(t, "admin", *all[0].DeletedBy)
}

func TestStore_Adjustments_TriggersRejectRewrites(t *testing.T) {
	// GIVEN: An audit row
	// WHEN: Raw SQL tries to delete it or rewrite its amount
	// THEN: The triggers abort both statements

	ctx := context.Background()
	s := newTestStore(t)
	require.NoError(t, s.AppendAdjustment(ctx, billing.AdjustmentRecord{
		ID: "adj-1", WorkOrderID: "wo-1", Type: billing.AdjRateAdjustment,
		Amount: decimal.NewFromInt(1000), Reason: "r", CreatedAt: t0,
	}))

	_, err := s.db.ExecContext(ctx, "DELETE FROM adjustments")
	assert.Error(t, err)

	_, err = s.db.ExecContext(ctx, "UPDATE adjustments SET amount = '0'")
	assert.Error(t, err)

	got, err := s.GetAdjustment(ctx, "adj-1")
	require.NoError(t, err)
	assert.True(t, got.Amount.Equal(decimal.NewFromInt(1000)))
}

// =============================================================================
// SUMMARIES
// =============================================================================

func TestStore_Summaries_AppendOnly(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	summary := billing.AggregationSummary{
		ID:          "sum-1",
		WorkOrderID: "wo-1",
		Activities: []billing.ActivitySummary{{
			Activity:   billing.ActivityNormal,
			Label:      "Normal labor",
			Minutes:    600,
			Hours:      decimal.NewFromInt(10),
			BillRate:   decimal.NewFromInt(11000),
			BillAmount: decimal.NewFromInt(110000),
		}},
		BillTotal:   decimal.NewFromInt(110000),
		FinalAmount: decimal.NewFromInt(110000),
		CreatedBy:   ptr("u-1"),
		CreatedAt:   t0,
	}
	require.NoError(t, s.AppendSummary(ctx, summary))
	summary.ID = "sum-2"
	require.NoError(t, s.AppendSummary(ctx, summary))

	got, err := s.ListSummaries(ctx, "wo-1")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, billing.SummaryID("sum-1"), got[0].ID)
	require.Len(t, got[0].Activities, 1)
	assert.Equal(t, billing.Minutes(600), got[0].Activities[0].Minutes)
	assert.True(t, got[0].Activities[0].BillAmount.Equal(decimal.NewFromInt(110000)))

	_, err = s.db.ExecContext(ctx, "UPDATE aggregation_summaries SET final_amount = '0'")
	assert.Error(t, err)
}

// =============================================================================
// TRANSACTIONS
// =============================================================================

func TestStore_WithTx_RollsBackOnError(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	boom := errors.New("boom")

	err := s.WithTx(ctx, func(tx billing.Store) error {
		require.NoError(t, tx.InsertExpense(ctx, billing.ExpenseItem{
			ID: "x-1", WorkOrderID: "wo-1", Category: billing.CategoryMaterials,
			CostTotal: decimal.NewFromInt(3000), BillTotal: decimal.NewFromInt(3600), CreatedAt: t0,
		}))
		// Reads inside the transaction see its writes.
		items, err := tx.ListExpenses(ctx, "wo-1")
		require.NoError(t, err)
		assert.Len(t, items, 1)
		return boom
	})
	assert.ErrorIs(t, err, boom)

	items, err := s.ListExpenses(ctx, "wo-1")
	require.NoError(t, err)
	assert.Empty(t, items)
}

func TestStore_Reset_ClearsAppendOnlyTables(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	require.NoError(t, s.AppendAdjustment(ctx, billing.AdjustmentRecord{
		ID: "adj-1", WorkOrderID: "wo-1", Type: billing.AdjComment, Reason: "r", CreatedAt: t0,
	}))

	require.NoError(t, s.Reset(ctx))

	all, err := s.ListAdjustments(ctx, "wo-1", true)
	require.NoError(t, err)
	assert.Empty(t, all)
}
