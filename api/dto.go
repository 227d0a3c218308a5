/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types decouple
  the billing domain model from the external API contract.

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients

MONEY:
  Amounts and rates are decimal.Decimal, which marshals as a JSON string
  ("11000") and unmarshals from either a string or a number. Expense lines
  use billing.Lenient instead so malformed numbers reach the normalizer.

SEE ALSO:
  - handlers.go: Uses these types
  - billing/types.go: Domain types
*/
package api

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/warp/billing-engine/billing"
)

// =============================================================================
// WORK ORDER VIEW
// =============================================================================

type WorkOrderDTO struct {
	ID                  string           `json:"id"`
	Title               string           `json:"title"`
	Status              string           `json:"status"`
	ExternalTaskID      string           `json:"external_task_id,omitempty"`
	EstimateAmount      *decimal.Decimal `json:"estimate_amount"`
	FinalDecisionAmount *decimal.Decimal `json:"final_decision_amount"`
	DeliveryDate        *string          `json:"delivery_date"`
	FinalAmount         *decimal.Decimal `json:"final_amount"`
	UpdatedAt           time.Time        `json:"updated_at"`
}

type ActivityDTO struct {
	Activity   string          `json:"activity"`
	Kind       string          `json:"kind"`
	Label      string          `json:"label"`
	Minutes    int64           `json:"minutes"`
	Hours      decimal.Decimal `json:"hours"`
	CostRate   decimal.Decimal `json:"cost_rate"`
	BillRate   decimal.Decimal `json:"bill_rate"`
	CostAmount decimal.Decimal `json:"cost_amount"`
	BillAmount decimal.Decimal `json:"bill_amount"`
	Adjustment decimal.Decimal `json:"adjustment"`
	Memo       string          `json:"memo"`
	EntryCount int             `json:"entry_count"`
	Defaulted  bool            `json:"defaulted_rate"`
}

type ExpenseDTO struct {
	ID             string          `json:"id"`
	Position       int             `json:"position"`
	Category       string          `json:"category"`
	CostUnitPrice  decimal.Decimal `json:"cost_unit_price"`
	CostQuantity   decimal.Decimal `json:"cost_quantity"`
	CostTotal      decimal.Decimal `json:"cost_total"`
	BillUnitPrice  decimal.Decimal `json:"bill_unit_price"`
	BillQuantity   decimal.Decimal `json:"bill_quantity"`
	BillTotal      decimal.Decimal `json:"bill_total"`
	FileEstimate   decimal.Decimal `json:"file_estimate"`
	Memo           string          `json:"memo"`
	ManualOverride bool            `json:"manual_override"`
}

type AdjustmentDTO struct {
	ID           string          `json:"id"`
	Type         string          `json:"type"`
	Activity     string          `json:"activity,omitempty"`
	Amount       decimal.Decimal `json:"amount"`
	Reason       string          `json:"reason"`
	Memo         string          `json:"memo"`
	CreatedBy    *string         `json:"created_by"`
	Unattributed bool            `json:"unattributed"`
	CreatedAt    time.Time       `json:"created_at"`
	Supersedes   string          `json:"supersedes,omitempty"`
	IsDeleted    bool            `json:"is_deleted"`
	DeletedBy    *string         `json:"deleted_by,omitempty"`
	DeletedAt    *time.Time      `json:"deleted_at,omitempty"`
}

type TotalsDTO struct {
	TotalHours      decimal.Decimal `json:"total_hours"`
	CostTotal       decimal.Decimal `json:"cost_total"`
	BillTotal       decimal.Decimal `json:"bill_total"`
	MaterialTotal   decimal.Decimal `json:"material_total"`
	AdjustmentTotal decimal.Decimal `json:"adjustment_total"`
	FinalAmount     decimal.Decimal `json:"final_amount"`
}

type SummaryDTO struct {
	ID           string          `json:"id"`
	WorkOrderID  string          `json:"work_order_id"`
	Activities   []ActivityDTO   `json:"activities"`
	Expenses     []ExpenseDTO    `json:"expenses"`
	Totals       TotalsDTO       `json:"totals"`
	CreatedBy    *string         `json:"created_by"`
	Unattributed bool            `json:"unattributed"`
	CreatedAt    time.Time       `json:"created_at"`
	FinalAmount  decimal.Decimal `json:"final_amount"`
}

// BillingViewDTO is the response of GET /api/work-orders/{id}/billing.
type BillingViewDTO struct {
	WorkOrder   WorkOrderDTO    `json:"work_order"`
	Activities  []ActivityDTO   `json:"activities"`
	Expenses    []ExpenseDTO    `json:"expenses"`
	Adjustments []AdjustmentDTO `json:"adjustments"`
	Totals      TotalsDTO       `json:"totals"`
	Summary     *SummaryDTO     `json:"summary"`
}

// =============================================================================
// UPDATE REQUEST
// =============================================================================

// RateEditRequest leaves the rate untouched when bill_rate is omitted.
type RateEditRequest struct {
	BillRate *decimal.Decimal `json:"bill_rate"`
	Memo     *string         `json:"memo"`
}

type ExpenseLineRequest struct {
	Category      string          `json:"category"`
	CostUnitPrice billing.Lenient `json:"cost_unit_price"`
	CostQuantity  billing.Lenient `json:"cost_quantity"`
	CostTotal     billing.Lenient `json:"cost_total"`
	BillUnitPrice billing.Lenient `json:"bill_unit_price"`
	BillQuantity  billing.Lenient `json:"bill_quantity"`
	BillTotal     billing.Lenient `json:"bill_total"`
	FileEstimate  billing.Lenient `json:"file_estimate"`
	Memo          string          `json:"memo"`
}

// UpdateBillingRequest is the single composite request of
// PUT /api/work-orders/{id}/billing. Omitted fields are left untouched;
// "expenses": [] clears the expense list.
type UpdateBillingRequest struct {
	BillRateAdjustments map[string]RateEditRequest `json:"bill_rate_adjustments"`
	Expenses            *[]ExpenseLineRequest      `json:"expenses"`
	Status              *string                    `json:"status"`
	EstimateAmount      *decimal.Decimal           `json:"estimate_amount"`
	FinalDecisionAmount *decimal.Decimal           `json:"final_decision_amount"`
	DeliveryDate        *string                    `json:"delivery_date"` // YYYY-MM-DD
}

type UpdateBillingResponse struct {
	View        BillingViewDTO  `json:"view"`
	Adjustments []AdjustmentDTO `json:"new_adjustments"`
	Transition  *TransitionDTO  `json:"transition,omitempty"`
	Summary     *SummaryDTO     `json:"summary,omitempty"`
}

type TransitionDTO struct {
	From    string `json:"from"`
	To      string `json:"to"`
	Target  string `json:"target_list,omitempty"`
	Defined bool   `json:"defined"`
}

// =============================================================================
// COMMENTS
// =============================================================================

type CommentRequest struct {
	Type   string          `json:"type"` // comment | correction
	Amount decimal.Decimal `json:"amount"`
	Reason string          `json:"reason"`
	Memo   string          `json:"memo"`
}

// =============================================================================
// RATES
// =============================================================================

type RateDTO struct {
	Kind        string          `json:"kind"`
	Key         string          `json:"key"`
	CostPerHour decimal.Decimal `json:"cost_per_hour"`
	BillPerHour decimal.Decimal `json:"bill_per_hour"`
	Memo        string          `json:"memo"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

// =============================================================================
// SCENARIOS AND ERRORS
// =============================================================================

type ScenarioDTO struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

// =============================================================================
// CONVERSIONS
// =============================================================================

const dateLayout = "2006-01-02"

func toWorkOrderDTO(wo billing.WorkOrder, zone *time.Location) WorkOrderDTO {
	dto := WorkOrderDTO{
		ID:                  string(wo.ID),
		Title:               wo.Title,
		Status:              string(wo.Status),
		ExternalTaskID:      wo.ExternalTaskID,
		EstimateAmount:      wo.EstimateAmount,
		FinalDecisionAmount: wo.FinalDecisionAmount,
		FinalAmount:         wo.FinalAmount,
		UpdatedAt:           wo.UpdatedAt,
	}
	if wo.DeliveryDate != nil {
		s := wo.DeliveryDate.In(zone).Format(dateLayout)
		dto.DeliveryDate = &s
	}
	return dto
}

func toActivityDTOs(activities []billing.ActivitySummary) []ActivityDTO {
	dtos := make([]ActivityDTO, len(activities))
	for i, a := range activities {
		dtos[i] = ActivityDTO{
			Activity:   string(a.Activity),
			Kind:       string(a.Activity.Kind()),
			Label:      a.Label,
			Minutes:    int64(a.Minutes),
			Hours:      a.Hours,
			CostRate:   a.CostRate,
			BillRate:   a.BillRate,
			CostAmount: a.CostAmount,
			BillAmount: a.BillAmount,
			Adjustment: a.Adjustment,
			Memo:       a.Memo,
			EntryCount: a.EntryCount,
			Defaulted:  a.Defaulted,
		}
	}
	return dtos
}

func toExpenseDTOs(items []billing.ExpenseItem, markup decimal.Decimal) []ExpenseDTO {
	dtos := make([]ExpenseDTO, len(items))
	for i, e := range items {
		dtos[i] = ExpenseDTO{
			ID:             string(e.ID),
			Position:       e.Position,
			Category:       string(e.Category),
			CostUnitPrice:  e.CostUnitPrice,
			CostQuantity:   e.CostQuantity,
			CostTotal:      e.CostTotal,
			BillUnitPrice:  e.BillUnitPrice,
			BillQuantity:   e.BillQuantity,
			BillTotal:      e.BillTotal,
			FileEstimate:   e.FileEstimate,
			Memo:           e.Memo,
			ManualOverride: e.ManualOverride(markup),
		}
	}
	return dtos
}

func toAdjustmentDTO(a billing.AdjustmentRecord) AdjustmentDTO {
	return AdjustmentDTO{
		ID:           string(a.ID),
		Type:         string(a.Type),
		Activity:     string(a.Activity),
		Amount:       a.Amount,
		Reason:       a.Reason,
		Memo:         a.Memo,
		CreatedBy:    a.CreatedBy,
		Unattributed: a.Unattributed(),
		CreatedAt:    a.CreatedAt,
		Supersedes:   string(a.Supersedes),
		IsDeleted:    a.IsDeleted,
		DeletedBy:    a.DeletedBy,
		DeletedAt:    a.DeletedAt,
	}
}

func toAdjustmentDTOs(recs []billing.AdjustmentRecord) []AdjustmentDTO {
	dtos := make([]AdjustmentDTO, len(recs))
	for i, a := range recs {
		dtos[i] = toAdjustmentDTO(a)
	}
	return dtos
}

func toTotalsDTO(t billing.Totals) TotalsDTO {
	return TotalsDTO{
		TotalHours:      t.TotalHours,
		CostTotal:       t.CostTotal,
		BillTotal:       t.BillTotal,
		MaterialTotal:   t.MaterialTotal,
		AdjustmentTotal: t.AdjustmentTotal,
		FinalAmount:     t.FinalAmount,
	}
}

func toSummaryDTO(s billing.AggregationSummary, markup decimal.Decimal) SummaryDTO {
	return SummaryDTO{
		ID:          string(s.ID),
		WorkOrderID: string(s.WorkOrderID),
		Activities:  toActivityDTOs(s.Activities),
		Expenses:    toExpenseDTOs(s.Expenses, markup),
		Totals: TotalsDTO{
			TotalHours:      s.TotalHours,
			CostTotal:       s.CostTotal,
			BillTotal:       s.BillTotal,
			MaterialTotal:   s.MaterialTotal,
			AdjustmentTotal: s.AdjustmentTotal,
			FinalAmount:     s.FinalAmount,
		},
		CreatedBy:    s.CreatedBy,
		Unattributed: s.CreatedBy == nil,
		CreatedAt:    s.CreatedAt,
		FinalAmount:  s.FinalAmount,
	}
}

func toRateDTO(r billing.RateRecord) RateDTO {
	return RateDTO{
		Kind:        string(r.Kind),
		Key:         r.Key,
		CostPerHour: r.CostPerHour,
		BillPerHour: r.BillPerHour,
		Memo:        r.Memo,
		UpdatedAt:   r.UpdatedAt,
	}
}

func (l ExpenseLineRequest) draft() billing.ExpenseDraft {
	return billing.ExpenseDraft{
		Category:      l.Category,
		CostUnitPrice: l.CostUnitPrice,
		CostQuantity:  l.CostQuantity,
		CostTotal:     l.CostTotal,
		BillUnitPrice: l.BillUnitPrice,
		BillQuantity:  l.BillQuantity,
		BillTotal:     l.BillTotal,
		FileEstimate:  l.FileEstimate,
		Memo:          l.Memo,
	}
}
