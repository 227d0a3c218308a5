// Package store provides Store implementations.
package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/warp/billing-engine/billing"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

type Memory struct {
	mu sync.RWMutex
	st *state
}

type state struct {
	workOrders  map[billing.WorkOrderID]billing.WorkOrder
	workers     map[string]billing.Worker
	machines    map[string]billing.Machine
	users       map[string]billing.User
	entries     []billing.TimesheetEntry
	rates       map[billing.RateKey]billing.RateRecord
	memos       map[memoKey]billing.ActivityMemo
	expenses    map[billing.WorkOrderID][]billing.ExpenseItem
	adjustments []billing.AdjustmentRecord
	summaries   []billing.AggregationSummary
}

type memoKey struct {
	WorkOrderID billing.WorkOrderID
	Activity    billing.ActivityCode
}

func newState() *state {
	return &state{
		workOrders: make(map[billing.WorkOrderID]billing.WorkOrder),
		workers:    make(map[string]billing.Worker),
		machines:   make(map[string]billing.Machine),
		users:      make(map[string]billing.User),
		rates:      make(map[billing.RateKey]billing.RateRecord),
		memos:      make(map[memoKey]billing.ActivityMemo),
		expenses:   make(map[billing.WorkOrderID][]billing.ExpenseItem),
	}
}

func NewMemory() *Memory {
	return &Memory{st: newState()}
}

// clone copies every table so a failed transaction can be restored.
func (s *state) clone() *state {
	c := newState()
	for k, v := range s.workOrders {
		c.workOrders[k] = v
	}
	for k, v := range s.workers {
		c.workers[k] = v
	}
	for k, v := range s.machines {
		c.machines[k] = v
	}
	for k, v := range s.users {
		c.users[k] = v
	}
	for k, v := range s.rates {
		c.rates[k] = v
	}
	for k, v := range s.memos {
		c.memos[k] = v
	}
	for k, v := range s.expenses {
		c.expenses[k] = append([]billing.ExpenseItem(nil), v...)
	}
	c.entries = append([]billing.TimesheetEntry(nil), s.entries...)
	c.adjustments = append([]billing.AdjustmentRecord(nil), s.adjustments...)
	c.summaries = append([]billing.AggregationSummary(nil), s.summaries...)
	return c
}

// =============================================================================
// STATE OPERATIONS - Callers hold the lock
// =============================================================================

func (s *state) getWorkOrder(id billing.WorkOrderID) (*billing.WorkOrder, error) {
	wo, ok := s.workOrders[id]
	if !ok {
		return nil, billing.WorkOrderNotFound(id)
	}
	return &wo, nil
}

func (s *state) listEntries(id billing.WorkOrderID) []billing.TimesheetEntry {
	var out []billing.TimesheetEntry
	for _, e := range s.entries {
		if e.WorkOrderID != id {
			continue
		}
		if w, ok := s.workers[e.Worker.ID]; ok {
			e.Worker = w
		}
		if e.Machine != nil {
			if m, ok := s.machines[e.Machine.ID]; ok {
				mc := m
				e.Machine = &mc
			}
		}
		out = append(out, e)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Start.Before(out[j].Start) })
	return out
}

func (s *state) getRate(key billing.RateKey) (*billing.RateRecord, error) {
	r, ok := s.rates[key]
	if !ok {
		return nil, billing.RateNotFound(key)
	}
	return &r, nil
}

func (s *state) listRates() []billing.RateRecord {
	out := make([]billing.RateRecord, 0, len(s.rates))
	for _, r := range s.rates {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].RateKey().String() < out[j].RateKey().String() })
	return out
}

func (s *state) listMemos(id billing.WorkOrderID) []billing.ActivityMemo {
	var out []billing.ActivityMemo
	for k, m := range s.memos {
		if k.WorkOrderID == id {
			out = append(out, m)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Activity < out[j].Activity })
	return out
}

func (s *state) listAdjustments(id billing.WorkOrderID, includeDeleted bool) []billing.AdjustmentRecord {
	var out []billing.AdjustmentRecord
	for _, a := range s.adjustments {
		if a.WorkOrderID == id && (includeDeleted || !a.IsDeleted) {
			out = append(out, a)
		}
	}
	return out
}

func (s *state) getAdjustment(id billing.AdjustmentID) (*billing.AdjustmentRecord, error) {
	for _, a := range s.adjustments {
		if a.ID == id {
			rec := a
			return &rec, nil
		}
	}
	return nil, billing.AdjustmentNotFound(id)
}

func (s *state) listSummaries(id billing.WorkOrderID) []billing.AggregationSummary {
	var out []billing.AggregationSummary
	for _, sm := range s.summaries {
		if sm.WorkOrderID == id {
			out = append(out, sm)
		}
	}
	return out
}

func (s *state) updateWorkOrder(wo billing.WorkOrder) error {
	if _, ok := s.workOrders[wo.ID]; !ok {
		return billing.WorkOrderNotFound(wo.ID)
	}
	s.workOrders[wo.ID] = wo
	return nil
}

func (s *state) softDelete(id billing.AdjustmentID, by *string, at time.Time) error {
	for i, a := range s.adjustments {
		if a.ID != id {
			continue
		}
		if a.IsDeleted {
			break
		}
		s.adjustments[i].IsDeleted = true
		s.adjustments[i].DeletedBy = by
		s.adjustments[i].DeletedAt = &at
		return nil
	}
	return billing.AdjustmentNotFound(id)
}

// =============================================================================
// VIEW - Shared method set of Memory and its transactional view
// =============================================================================

// view implements billing.Store over a state without locking.
type view struct {
	st func() *state
}

func (v view) GetWorkOrder(_ context.Context, id billing.WorkOrderID) (*billing.WorkOrder, error) {
	return v.st().getWorkOrder(id)
}

func (v view) ListTimesheetEntries(_ context.Context, id billing.WorkOrderID) ([]billing.TimesheetEntry, error) {
	return v.st().listEntries(id), nil
}

func (v view) GetRate(_ context.Context, key billing.RateKey) (*billing.RateRecord, error) {
	return v.st().getRate(key)
}

func (v view) ListRates(_ context.Context) ([]billing.RateRecord, error) {
	return v.st().listRates(), nil
}

func (v view) ListActivityMemos(_ context.Context, id billing.WorkOrderID) ([]billing.ActivityMemo, error) {
	return v.st().listMemos(id), nil
}

func (v view) ListExpenses(_ context.Context, id billing.WorkOrderID) ([]billing.ExpenseItem, error) {
	return append([]billing.ExpenseItem(nil), v.st().expenses[id]...), nil
}

func (v view) ListAdjustments(_ context.Context, id billing.WorkOrderID, includeDeleted bool) ([]billing.AdjustmentRecord, error) {
	return v.st().listAdjustments(id, includeDeleted), nil
}

func (v view) GetAdjustment(_ context.Context, id billing.AdjustmentID) (*billing.AdjustmentRecord, error) {
	return v.st().getAdjustment(id)
}

func (v view) ListSummaries(_ context.Context, id billing.WorkOrderID) ([]billing.AggregationSummary, error) {
	return v.st().listSummaries(id), nil
}

func (v view) UserExists(_ context.Context, id string) (bool, error) {
	_, ok := v.st().users[id]
	return ok, nil
}

func (v view) UpdateWorkOrder(_ context.Context, wo billing.WorkOrder) error {
	return v.st().updateWorkOrder(wo)
}

func (v view) UpsertRate(_ context.Context, r billing.RateRecord) error {
	v.st().rates[r.RateKey()] = r
	return nil
}

func (v view) UpsertActivityMemo(_ context.Context, m billing.ActivityMemo) error {
	v.st().memos[memoKey{m.WorkOrderID, m.Activity}] = m
	return nil
}

func (v view) DeleteExpenses(_ context.Context, id billing.WorkOrderID) error {
	delete(v.st().expenses, id)
	return nil
}

func (v view) InsertExpense(_ context.Context, e billing.ExpenseItem) error {
	st := v.st()
	st.expenses[e.WorkOrderID] = append(st.expenses[e.WorkOrderID], e)
	return nil
}

func (v view) AppendAdjustment(_ context.Context, a billing.AdjustmentRecord) error {
	st := v.st()
	st.adjustments = append(st.adjustments, a)
	return nil
}

func (v view) SoftDeleteAdjustment(_ context.Context, id billing.AdjustmentID, by *string, at time.Time) error {
	return v.st().softDelete(id, by, at)
}

func (v view) AppendSummary(_ context.Context, sm billing.AggregationSummary) error {
	st := v.st()
	st.summaries = append(st.summaries, sm)
	return nil
}

// =============================================================================
// LOCKED ACCESS
// =============================================================================

func (m *Memory) view() view { return view{st: func() *state { return m.st }} }

func (m *Memory) read(fn func(v view) error) error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return fn(m.view())
}

func (m *Memory) write(fn func(v view) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return fn(m.view())
}

func (m *Memory) GetWorkOrder(ctx context.Context, id billing.WorkOrderID) (wo *billing.WorkOrder, err error) {
	err = m.read(func(v view) error { wo, err = v.GetWorkOrder(ctx, id); return err })
	return wo, err
}

func (m *Memory) ListTimesheetEntries(ctx context.Context, id billing.WorkOrderID) (out []billing.TimesheetEntry, err error) {
	err = m.read(func(v view) error { out, err = v.ListTimesheetEntries(ctx, id); return err })
	return out, err
}

func (m *Memory) GetRate(ctx context.Context, key billing.RateKey) (r *billing.RateRecord, err error) {
	err = m.read(func(v view) error { r, err = v.GetRate(ctx, key); return err })
	return r, err
}

func (m *Memory) ListRates(ctx context.Context) (out []billing.RateRecord, err error) {
	err = m.read(func(v view) error { out, err = v.ListRates(ctx); return err })
	return out, err
}

func (m *Memory) ListActivityMemos(ctx context.Context, id billing.WorkOrderID) (out []billing.ActivityMemo, err error) {
	err = m.read(func(v view) error { out, err = v.ListActivityMemos(ctx, id); return err })
	return out, err
}

func (m *Memory) ListExpenses(ctx context.Context, id billing.WorkOrderID) (out []billing.ExpenseItem, err error) {
	err = m.read(func(v view) error { out, err = v.ListExpenses(ctx, id); return err })
	return out, err
}

func (m *Memory) ListAdjustments(ctx context.Context, id billing.WorkOrderID, includeDeleted bool) (out []billing.AdjustmentRecord, err error) {
	err = m.read(func(v view) error { out, err = v.ListAdjustments(ctx, id, includeDeleted); return err })
	return out, err
}

func (m *Memory) GetAdjustment(ctx context.Context, id billing.AdjustmentID) (a *billing.AdjustmentRecord, err error) {
	err = m.read(func(v view) error { a, err = v.GetAdjustment(ctx, id); return err })
	return a, err
}

func (m *Memory) ListSummaries(ctx context.Context, id billing.WorkOrderID) (out []billing.AggregationSummary, err error) {
	err = m.read(func(v view) error { out, err = v.ListSummaries(ctx, id); return err })
	return out, err
}

func (m *Memory) UserExists(ctx context.Context, id string) (ok bool, err error) {
	err = m.read(func(v view) error { ok, err = v.UserExists(ctx, id); return err })
	return ok, err
}

func (m *Memory) UpdateWorkOrder(ctx context.Context, wo billing.WorkOrder) error {
	return m.write(func(v view) error { return v.UpdateWorkOrder(ctx, wo) })
}

func (m *Memory) UpsertRate(ctx context.Context, r billing.RateRecord) error {
	return m.write(func(v view) error { return v.UpsertRate(ctx, r) })
}

func (m *Memory) UpsertActivityMemo(ctx context.Context, memo billing.ActivityMemo) error {
	return m.write(func(v view) error { return v.UpsertActivityMemo(ctx, memo) })
}

func (m *Memory) DeleteExpenses(ctx context.Context, id billing.WorkOrderID) error {
	return m.write(func(v view) error { return v.DeleteExpenses(ctx, id) })
}

func (m *Memory) InsertExpense(ctx context.Context, e billing.ExpenseItem) error {
	return m.write(func(v view) error { return v.InsertExpense(ctx, e) })
}

func (m *Memory) AppendAdjustment(ctx context.Context, a billing.AdjustmentRecord) error {
	return m.write(func(v view) error { return v.AppendAdjustment(ctx, a) })
}

func (m *Memory) SoftDeleteAdjustment(ctx context.Context, id billing.AdjustmentID, by *string, at time.Time) error {
	return m.write(func(v view) error { return v.SoftDeleteAdjustment(ctx, id, by, at) })
}

func (m *Memory) AppendSummary(ctx context.Context, sm billing.AggregationSummary) error {
	return m.write(func(v view) error { return v.AppendSummary(ctx, sm) })
}

// =============================================================================
// TRANSACTIONS
// =============================================================================

// WithTx executes fn within a transaction.
// For memory store, this is simulated with a snapshot + rollback on error.
func (m *Memory) WithTx(ctx context.Context, fn func(billing.Store) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	snapshot := m.st.clone()
	if err := fn(m.view()); err != nil {
		m.st = snapshot
		return err
	}
	return nil
}

// =============================================================================
// SEEDER
// =============================================================================

func (m *Memory) SaveWorkOrder(_ context.Context, wo billing.WorkOrder) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.st.workOrders[wo.ID] = wo
	return nil
}

func (m *Memory) SaveWorker(_ context.Context, w billing.Worker) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.st.workers[w.ID] = w
	return nil
}

func (m *Memory) SaveMachine(_ context.Context, mc billing.Machine) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.st.machines[mc.ID] = mc
	return nil
}

func (m *Memory) SaveUser(_ context.Context, u billing.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.st.users[u.ID] = u
	return nil
}

func (m *Memory) SaveTimesheetEntry(_ context.Context, e billing.TimesheetEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.st.entries = append(m.st.entries, e)
	return nil
}

func (m *Memory) Reset(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.st = newState()
	return nil
}

var (
	_ billing.TxStore = (*Memory)(nil)
	_ billing.Seeder  = (*Memory)(nil)
)
