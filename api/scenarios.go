/*
scenarios.go - Demo scenario loaders for testing and demonstrations

PURPOSE:
  Provides pre-built scenarios that populate the database with realistic
  data: work orders, workers, machines, operators, rates and committed
  timesheet entries.

AVAILABLE SCENARIOS:
  basic:          One delivered work order covering every activity kind
  missing-rates:  Machine hours with no rate record (default rate path)
  finalized:      The basic order after a rate adjustment, a set of
                  expenses and finalization (one summary snapshot)

HOW SCENARIOS WORK:
  1. Reset database (clear all data)
  2. Seed external entities through billing.Seeder
  3. Seed rate records
  4. Optionally drive billing.Service to reach a later state

USAGE VIA API:
  POST /api/scenarios/load
  {"scenario_id": "basic"}

NOTE:
  Scenarios reset the database. Only use in development/demo environments.
*/
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/shopspring/decimal"

	"github.com/warp/billing-engine/billing"
)

// =============================================================================
// SCENARIO DEFINITIONS
// =============================================================================

var scenarios = []ScenarioDTO{
	{
		ID:          "basic",
		Name:        "Basic Work Order",
		Description: "Normal, trainee, inspection and machine hours on one delivered work order",
	},
	{
		ID:          "missing-rates",
		Name:        "Missing Rates",
		Description: "Crane hours without a rate record fall back to the default rate",
	},
	{
		ID:          "finalized",
		Name:        "Finalized",
		Description: "Basic work order with a bill rate adjustment, expenses and a summary snapshot",
	},
}

// Scenarios lists the available scenarios.
func Scenarios() []ScenarioDTO { return scenarios }

// ListScenarios returns all available scenarios.
func (h *Handler) ListScenarios(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, scenarios)
}

// GetCurrentScenario returns the currently loaded scenario, if any.
func (h *Handler) GetCurrentScenario(w http.ResponseWriter, r *http.Request) {
	h.scenarioMu.Lock()
	current := h.currentScenario
	h.scenarioMu.Unlock()

	for _, s := range scenarios {
		if s.ID == current {
			writeJSON(w, http.StatusOK, s)
			return
		}
	}
	writeJSON(w, http.StatusOK, nil)
}

// LoadScenario loads a predefined scenario.
func (h *Handler) LoadScenario(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ScenarioID string `json:"scenario_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	h.scenarioMu.Lock()
	defer h.scenarioMu.Unlock()

	h.currentScenario = ""
	if err := LoadScenario(r.Context(), h.Store, h.Service, req.ScenarioID, h.Zone); err != nil {
		if errors.Is(err, errUnknownScenario) {
			writeError(w, http.StatusBadRequest, "Unknown scenario", fmt.Errorf("%s", req.ScenarioID))
			return
		}
		writeError(w, http.StatusInternalServerError, "Failed to load scenario", err)
		return
	}
	h.currentScenario = req.ScenarioID

	writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "scenario": req.ScenarioID})
}

// ResetDatabase clears all data.
func (h *Handler) ResetDatabase(w http.ResponseWriter, r *http.Request) {
	h.scenarioMu.Lock()
	defer h.scenarioMu.Unlock()

	if err := h.Store.Reset(r.Context()); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to reset database", err)
		return
	}
	h.currentScenario = ""
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// =============================================================================
// LOADERS
// =============================================================================

var errUnknownScenario = errors.New("unknown scenario")

// LoadScenario resets store and seeds the named scenario.
func LoadScenario(ctx context.Context, store Store, svc *billing.Service, id string, zone *time.Location) error {
	if zone == nil {
		zone = billing.DefaultZone
	}
	var load func(context.Context, *seeder) error
	switch id {
	case "basic":
		load = loadBasicScenario
	case "missing-rates":
		load = loadMissingRatesScenario
	case "finalized":
		load = func(ctx context.Context, s *seeder) error {
			return loadFinalizedScenario(ctx, s, svc)
		}
	default:
		return errUnknownScenario
	}

	if err := store.Reset(ctx); err != nil {
		return fmt.Errorf("reset: %w", err)
	}
	return load(ctx, &seeder{ctx: ctx, store: store, zone: zone, now: time.Now().UTC()})
}

// seeder keeps the first error so loaders read as a flat script.
type seeder struct {
	ctx   context.Context
	store Store
	zone  *time.Location
	now   time.Time
	err   error
	seq   int
}

func (s *seeder) check(err error) {
	if s.err == nil && err != nil {
		s.err = err
	}
}

func (s *seeder) workOrder(id, title, taskID string, status billing.Status) {
	s.check(s.store.SaveWorkOrder(s.ctx, billing.WorkOrder{
		ID:             billing.WorkOrderID(id),
		Title:          title,
		Status:         status,
		ExternalTaskID: taskID,
		CreatedAt:      s.now,
		UpdatedAt:      s.now,
	}))
}

func (s *seeder) worker(id, name string) {
	s.check(s.store.SaveWorker(s.ctx, billing.Worker{ID: id, DisplayName: name}))
}

func (s *seeder) machine(id, name string) {
	s.check(s.store.SaveMachine(s.ctx, billing.Machine{ID: id, Name: name}))
}

func (s *seeder) user(id, name string) {
	s.check(s.store.SaveUser(s.ctx, billing.User{ID: id, Name: name}))
}

func (s *seeder) rate(kind billing.RateKind, key string, cost, bill int64) {
	s.check(s.store.UpsertRate(s.ctx, billing.RateRecord{
		Kind:        kind,
		Key:         key,
		CostPerHour: decimal.NewFromInt(cost),
		BillPerHour: decimal.NewFromInt(bill),
		UpdatedAt:   s.now,
	}))
}

// entry records local wall-clock times on the given day.
func (s *seeder) entry(wo, worker, machine string, day time.Time, from, to, desc string, flag billing.StatusFlag) {
	start, err := s.at(day, from)
	s.check(err)
	end, err := s.at(day, to)
	s.check(err)

	s.seq++
	e := billing.TimesheetEntry{
		ID:          billing.EntryID(fmt.Sprintf("%s-e%02d", wo, s.seq)),
		WorkOrderID: billing.WorkOrderID(wo),
		Start:       start.UTC(),
		End:         end.UTC(),
		Worker:      billing.Worker{ID: worker},
		Description: desc,
		Flag:        flag,
	}
	if machine != "" {
		e.Machine = &billing.Machine{ID: machine}
	}
	s.check(s.store.SaveTimesheetEntry(s.ctx, e))
}

func (s *seeder) at(day time.Time, clock string) (time.Time, error) {
	c, err := billing.ParseClock(clock)
	if err != nil {
		return time.Time{}, err
	}
	y, m, d := day.Date()
	return time.Date(y, m, d, 0, int(c), 0, 0, s.zone), nil
}

func (s *seeder) people() {
	s.worker("w-sato", "佐藤 健")
	s.worker("w-suzuki", "鈴木 一郎")
	s.worker("w-tanaka", "タナカ ケンタ")
	s.machine("nc-lathe", "NC lathe")
	s.machine("crane", "Overhead crane")
	s.user("u-yamada", "Yamada (office)")
	s.user("u-ito", "Ito (foreman)")
}

func (s *seeder) standardRates() {
	s.rate(billing.RateLabor, "Normal labor", 8000, 11000)
	s.rate(billing.RateLabor, "Trainee labor", 5000, 7000)
	s.rate(billing.RateMachine, "nc-lathe", 4000, 6000)
}

// loadBasicScenario: WO-1001 with 2025-04-07 and 2025-04-08 entries.
//
//	NORMAL   08:00-17:00 (8h) + 09:00-11:00 inspection (2h) + 08:00-14:00 lunch overtime (6h) = 16h
//	TRAINEE  08:00-12:00 (4h)
//	nc-lathe 13:00-15:00 (2h)
func loadBasicScenario(ctx context.Context, s *seeder) error {
	s.people()
	s.standardRates()
	s.workOrder("WO-1001", "Hydraulic pump overhaul", "card-wo-1001", billing.StatusDelivered)

	day1 := time.Date(2025, time.April, 7, 0, 0, 0, 0, s.zone)
	day2 := day1.AddDate(0, 0, 1)
	s.entry("WO-1001", "w-sato", "", day1, "08:00", "17:00", "disassembly", billing.FlagNone)
	s.entry("WO-1001", "w-tanaka", "", day1, "08:00", "12:00", "cleaning parts", billing.FlagNone)
	s.entry("WO-1001", "w-suzuki", "", day1, "09:00", "11:00", "ポンプ点検", billing.FlagNone)
	s.entry("WO-1001", "w-sato", "nc-lathe", day2, "13:00", "15:00", "shaft turning", billing.FlagNone)
	s.entry("WO-1001", "w-suzuki", "", day2, "08:00", "14:00", "reassembly", billing.FlagLunchOvertime)
	return s.err
}

// loadMissingRatesScenario: crane hours with no machine rate.
func loadMissingRatesScenario(ctx context.Context, s *seeder) error {
	s.people()
	s.standardRates()
	s.workOrder("WO-2002", "Gearbox lift and replacement", "", billing.StatusDelivered)

	day := time.Date(2025, time.May, 12, 0, 0, 0, 0, s.zone)
	s.entry("WO-2002", "w-sato", "crane", day, "09:00", "12:00", "gearbox lift", billing.FlagNone)
	s.entry("WO-2002", "w-sato", "", day, "13:00", "17:00", "alignment", billing.FlagNone)
	return s.err
}

// loadFinalizedScenario drives the basic work order through the service:
// aggregating, NORMAL bill rate 11000 -> 12000, two expenses, aggregated.
func loadFinalizedScenario(ctx context.Context, s *seeder, svc *billing.Service) error {
	if err := loadBasicScenario(ctx, s); err != nil {
		return err
	}
	if svc == nil {
		return fmt.Errorf("finalized scenario needs the billing service")
	}

	aggregating := billing.StatusAggregating
	memo := "customer agreed to premium rate"
	premium := decimal.NewFromInt(12000)
	if _, err := svc.Update(ctx, billing.UpdateRequest{
		WorkOrderID: "WO-1001",
		ActorID:     "u-yamada",
		Status:      &aggregating,
		BillRateAdjustments: map[billing.ActivityCode]billing.RateEdit{
			billing.ActivityNormal: {BillRate: &premium, Memo: &memo},
		},
		Expenses: &[]billing.ExpenseDraft{
			{Category: "materials", CostUnitPrice: billing.Num(1000), CostQuantity: billing.Num(3), Memo: "seal kit"},
			{Category: "shipping", CostTotal: billing.Num(2500), Memo: "courier"},
		},
	}); err != nil {
		return fmt.Errorf("prepare: %w", err)
	}

	aggregated := billing.StatusAggregated
	if _, err := svc.Update(ctx, billing.UpdateRequest{
		WorkOrderID: "WO-1001",
		ActorID:     "u-yamada",
		Status:      &aggregated,
	}); err != nil {
		return fmt.Errorf("finalize: %w", err)
	}
	return nil
}
