/*
handlers.go - HTTP API handlers for the billing engine

PURPOSE:
  Exposes the billing engine via REST API. Handles HTTP request/response,
  JSON serialization, and delegates to billing.Service.

ENDPOINTS:
  Billing:
    GET    /api/work-orders/{id}/billing            Live aggregation view
    PUT    /api/work-orders/{id}/billing            Composite update
    GET    /api/work-orders/{id}/summaries          Finalized snapshots

  Adjustments:
    GET    /api/work-orders/{id}/adjustments        Audit trail
    POST   /api/work-orders/{id}/adjustments        Add comment/correction
    PUT    /api/work-orders/{id}/adjustments/{adj}  Edit (supersede)
    DELETE /api/work-orders/{id}/adjustments/{adj}  Soft delete

  Rates:
    GET    /api/rates                               List rate records
    PUT    /api/rates                               Upsert a rate record

  Scenarios:
    GET    /api/scenarios                           List demo scenarios
    POST   /api/scenarios/load                      Load a demo scenario

ACTOR:
  The operator id is read from the X-Actor-ID header. It becomes the
  creator of audit rows when it names a known user; otherwise rows are
  stored unattributed.

BASELINE:
  GET billing accepts baseline.<ACTIVITY>=<amount> query parameters, the
  bill amounts the client saw on an earlier read. Each activity's
  adjustment is then current minus baseline.

ERROR HANDLING:
  Errors are returned as JSON with appropriate HTTP status:
  - 400: Validation errors, invalid input, strict-mode transitions
  - 403: Permission refused
  - 404: Work order / audit record / rate not found
  - 500: Internal errors

SEE ALSO:
  - dto.go: Request/response data structures
  - scenarios.go: Demo scenario loaders
  - server.go: Router setup and middleware
*/
package api

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/warp/billing-engine/billing"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Store is what the handlers need from persistence.
type Store interface {
	billing.TxStore
	billing.Seeder
}

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Service    *billing.Service
	Store      Store
	Authorizer Authorizer
	Logger     *slog.Logger
	Markup     decimal.Decimal
	Zone       *time.Location

	// scenarioMu serializes scenario loads and resets.
	scenarioMu      sync.Mutex
	currentScenario string
}

// NewHandler creates a new handler.
func NewHandler(svc *billing.Service, store Store, cfg billing.Config, auth Authorizer, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	if auth == nil {
		auth = NewCreatorOrAdmin(nil)
	}
	zone := cfg.Zone
	if zone == nil {
		zone = billing.DefaultZone
	}
	return &Handler{
		Service:    svc,
		Store:      store,
		Authorizer: auth,
		Logger:     logger,
		Markup:     cfg.Markup,
		Zone:       zone,
	}
}

// =============================================================================
// BILLING VIEW
// =============================================================================

// GetBilling returns the live aggregation of a work order.
// GET /api/work-orders/{id}/billing
func (h *Handler) GetBilling(w http.ResponseWriter, r *http.Request) {
	id := billing.WorkOrderID(chi.URLParam(r, "id"))

	baseline, err := parseBaseline(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid baseline", err)
		return
	}

	view, err := h.Service.View(r.Context(), id, baseline)
	if err != nil {
		h.writeServiceError(w, "Failed to load billing", err)
		return
	}
	writeJSON(w, http.StatusOK, h.toViewDTO(view))
}

// UpdateBilling applies one composite update.
// PUT /api/work-orders/{id}/billing
func (h *Handler) UpdateBilling(w http.ResponseWriter, r *http.Request) {
	id := billing.WorkOrderID(chi.URLParam(r, "id"))

	var body UpdateBillingRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	req, err := h.toUpdateRequest(id, actorID(r), body)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request", err)
		return
	}

	ctx := r.Context()
	res, err := h.Service.Update(ctx, req)
	if err != nil {
		h.writeServiceError(w, "Failed to update billing", err)
		return
	}

	view, err := h.Service.View(ctx, id, nil)
	if err != nil {
		h.writeServiceError(w, "Failed to load billing", err)
		return
	}

	resp := UpdateBillingResponse{
		View:        h.toViewDTO(view),
		Adjustments: toAdjustmentDTOs(res.Adjustments),
	}
	if res.Transition != nil {
		resp.Transition = &TransitionDTO{
			From:    string(res.Transition.From),
			To:      string(res.Transition.To),
			Target:  string(res.Transition.Target),
			Defined: res.Transition.Defined,
		}
	}
	if res.Summary != nil {
		s := toSummaryDTO(*res.Summary, h.Markup)
		resp.Summary = &s
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) toUpdateRequest(id billing.WorkOrderID, actor string, body UpdateBillingRequest) (billing.UpdateRequest, error) {
	req := billing.UpdateRequest{
		WorkOrderID:         id,
		ActorID:             actor,
		EstimateAmount:      body.EstimateAmount,
		FinalDecisionAmount: body.FinalDecisionAmount,
	}

	if len(body.BillRateAdjustments) > 0 {
		req.BillRateAdjustments = make(map[billing.ActivityCode]billing.RateEdit, len(body.BillRateAdjustments))
		for code, edit := range body.BillRateAdjustments {
			ac := billing.ActivityCode(code)
			if !ac.Valid() {
				return req, fmt.Errorf("unknown activity %q", code)
			}
			if edit.BillRate != nil && edit.BillRate.IsNegative() {
				return req, fmt.Errorf("bill rate for %s must not be negative", code)
			}
			req.BillRateAdjustments[ac] = billing.RateEdit{BillRate: edit.BillRate, Memo: edit.Memo}
		}
	}

	if body.Expenses != nil {
		drafts := make([]billing.ExpenseDraft, len(*body.Expenses))
		for i, line := range *body.Expenses {
			drafts[i] = line.draft()
		}
		req.Expenses = &drafts
	}

	if body.Status != nil {
		status, err := billing.ParseStatus(*body.Status)
		if err != nil {
			return req, err
		}
		req.Status = &status
	}

	if body.DeliveryDate != nil {
		d, err := time.ParseInLocation(dateLayout, *body.DeliveryDate, h.Zone)
		if err != nil {
			return req, fmt.Errorf("delivery_date must be YYYY-MM-DD: %w", err)
		}
		req.DeliveryDate = &d
	}
	return req, nil
}

// ListSummaries returns every finalized snapshot, oldest first.
// GET /api/work-orders/{id}/summaries
func (h *Handler) ListSummaries(w http.ResponseWriter, r *http.Request) {
	id := billing.WorkOrderID(chi.URLParam(r, "id"))

	summaries, err := h.Service.Summaries(r.Context(), id)
	if err != nil {
		h.writeServiceError(w, "Failed to list summaries", err)
		return
	}

	dtos := make([]SummaryDTO, len(summaries))
	for i, s := range summaries {
		dtos[i] = toSummaryDTO(s, h.Markup)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// =============================================================================
// ADJUSTMENT HANDLERS
// =============================================================================

// ListAdjustments returns the audit trail.
// GET /api/work-orders/{id}/adjustments?include_deleted=true
func (h *Handler) ListAdjustments(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := billing.WorkOrderID(chi.URLParam(r, "id"))

	if _, err := h.Store.GetWorkOrder(ctx, id); err != nil {
		h.writeServiceError(w, "Failed to list adjustments", err)
		return
	}
	includeDeleted := r.URL.Query().Get("include_deleted") == "true"
	recs, err := h.Store.ListAdjustments(ctx, id, includeDeleted)
	if err != nil {
		h.writeServiceError(w, "Failed to list adjustments", err)
		return
	}
	writeJSON(w, http.StatusOK, toAdjustmentDTOs(recs))
}

// CreateAdjustment adds an operator comment or correction.
// POST /api/work-orders/{id}/adjustments
func (h *Handler) CreateAdjustment(w http.ResponseWriter, r *http.Request) {
	id := billing.WorkOrderID(chi.URLParam(r, "id"))

	var req CommentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	rec, err := h.Service.AddComment(r.Context(), id, toCommentInput(req), actorID(r))
	if err != nil {
		h.writeServiceError(w, "Failed to add adjustment", err)
		return
	}
	writeJSON(w, http.StatusCreated, toAdjustmentDTO(rec))
}

// UpdateAdjustment supersedes a comment with a new row.
// PUT /api/work-orders/{id}/adjustments/{adjID}
func (h *Handler) UpdateAdjustment(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := billing.WorkOrderID(chi.URLParam(r, "id"))
	adjID := billing.AdjustmentID(chi.URLParam(r, "adjID"))
	actor := actorID(r)

	var req CommentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	existing, err := h.Store.GetAdjustment(ctx, adjID)
	if err != nil {
		h.writeServiceError(w, "Failed to edit adjustment", err)
		return
	}
	allowed := h.Authorizer.CanModify(ctx, actor, *existing)

	rec, err := h.Service.EditComment(ctx, id, adjID, toCommentInput(req), actor, allowed)
	if err != nil {
		h.writeServiceError(w, "Failed to edit adjustment", err)
		return
	}
	writeJSON(w, http.StatusOK, toAdjustmentDTO(rec))
}

// DeleteAdjustment tombstones a comment.
// DELETE /api/work-orders/{id}/adjustments/{adjID}
func (h *Handler) DeleteAdjustment(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := billing.WorkOrderID(chi.URLParam(r, "id"))
	adjID := billing.AdjustmentID(chi.URLParam(r, "adjID"))
	actor := actorID(r)

	existing, err := h.Store.GetAdjustment(ctx, adjID)
	if err != nil {
		h.writeServiceError(w, "Failed to delete adjustment", err)
		return
	}
	allowed := h.Authorizer.CanModify(ctx, actor, *existing)

	if err := h.Service.DeleteComment(ctx, id, adjID, actor, allowed); err != nil {
		h.writeServiceError(w, "Failed to delete adjustment", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

func toCommentInput(req CommentRequest) billing.CommentInput {
	return billing.CommentInput{
		Type:   billing.AdjustmentType(req.Type),
		Amount: req.Amount,
		Reason: req.Reason,
		Memo:   req.Memo,
	}
}

// =============================================================================
// RATE HANDLERS
// =============================================================================

// ListRates returns every rate record.
// GET /api/rates
func (h *Handler) ListRates(w http.ResponseWriter, r *http.Request) {
	rates, err := h.Store.ListRates(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list rates", err)
		return
	}
	dtos := make([]RateDTO, len(rates))
	for i, rec := range rates {
		dtos[i] = toRateDTO(rec)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// PutRate inserts or replaces a rate record. Bill rate changes made here
// are not audited; use the billing update for audited changes.
// PUT /api/rates
func (h *Handler) PutRate(w http.ResponseWriter, r *http.Request) {
	var req RateDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	kind := billing.RateKind(req.Kind)
	if kind != billing.RateLabor && kind != billing.RateMachine {
		writeError(w, http.StatusBadRequest, "kind must be labor or machine", nil)
		return
	}
	if strings.TrimSpace(req.Key) == "" {
		writeError(w, http.StatusBadRequest, "key is required", nil)
		return
	}
	if req.CostPerHour.IsNegative() || req.BillPerHour.IsNegative() {
		writeError(w, http.StatusBadRequest, "rates must not be negative", nil)
		return
	}

	rec := billing.RateRecord{
		Kind:        kind,
		Key:         req.Key,
		CostPerHour: req.CostPerHour,
		BillPerHour: req.BillPerHour,
		Memo:        req.Memo,
		UpdatedAt:   time.Now().UTC(),
	}
	if err := h.Store.UpsertRate(r.Context(), rec); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to save rate", err)
		return
	}
	writeJSON(w, http.StatusOK, toRateDTO(rec))
}

// =============================================================================
// HELPERS
// =============================================================================

func (h *Handler) toViewDTO(v *billing.WorkOrderView) BillingViewDTO {
	dto := BillingViewDTO{
		WorkOrder:   toWorkOrderDTO(v.WorkOrder, h.Zone),
		Activities:  toActivityDTOs(v.Activities),
		Expenses:    toExpenseDTOs(v.Expenses, h.Markup),
		Adjustments: toAdjustmentDTOs(v.Adjustments),
		Totals:      toTotalsDTO(v.Totals),
	}
	if v.Summary != nil {
		s := toSummaryDTO(*v.Summary, h.Markup)
		dto.Summary = &s
	}
	return dto
}

// parseBaseline reads baseline.<ACTIVITY>=<amount> query parameters.
func parseBaseline(r *http.Request) (billing.Baseline, error) {
	var baseline billing.Baseline
	for key, values := range r.URL.Query() {
		code, ok := strings.CutPrefix(key, "baseline.")
		if !ok || len(values) == 0 {
			continue
		}
		ac := billing.ActivityCode(code)
		if !ac.Valid() {
			return nil, fmt.Errorf("unknown activity %q", code)
		}
		amount, err := decimal.NewFromString(values[0])
		if err != nil {
			return nil, fmt.Errorf("baseline for %s: %w", code, err)
		}
		if baseline == nil {
			baseline = billing.Baseline{}
		}
		baseline[ac] = amount
	}
	return baseline, nil
}

func (h *Handler) writeServiceError(w http.ResponseWriter, message string, err error) {
	switch {
	case billing.IsNotFound(err):
		writeError(w, http.StatusNotFound, message, err)
	case billing.IsForbidden(err):
		writeError(w, http.StatusForbidden, message, err)
	case billing.IsClientError(err):
		writeError(w, http.StatusBadRequest, message, err)
	default:
		h.Logger.Error(message, "error", err)
		writeError(w, http.StatusInternalServerError, message, err)
	}
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}
