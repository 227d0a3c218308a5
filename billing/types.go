/*
Package billing turns timesheet entries tied to a work order into a
billable aggregation.

PURPOSE:
  Classified labor/machine hours, resolved rates, manually adjustable bill
  rates with a permanent audit trail, categorized expenses with automatic
  markup, and a finalized immutable summary. Everything else (capture of
  timesheets, authentication, the task board) is a collaborator that hands
  in validated entities or consumes computed results.

KEY CONCEPTS IN THIS FILE (types.go):
  - WorkOrder: aggregation root, carries the 3-state status
  - TimesheetEntry: external, read-only input
  - RateRecord: one active cost/bill rate per labor label or machine id
  - ActivityMemo: free text per (work order, activity)
  - ExpenseItem: replaced wholesale on every save
  - AdjustmentRecord: immutable audit row, soft-deletable only
  - AggregationSummary: append-only finalized snapshot

DESIGN PRINCIPLES:
  1. Precision: money and rates are decimal.Decimal, hours are whole minutes
  2. Immutability: audit rows and summaries are appended, never rewritten
  3. Recompute on read: the activity view is derived from entries + rates

SEE ALSO:
  - hours.go: Time normalizer
  - aggregate.go: Aggregation calculator
  - store.go: Persistence interfaces
*/
package billing

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// IDENTIFIERS
// =============================================================================

type WorkOrderID string
type EntryID string
type AdjustmentID string
type ExpenseID string
type SummaryID string

// =============================================================================
// ACTIVITY CODES - Closed classification labels
// =============================================================================

// ActivityCode is the unit of rate lookup and hour aggregation.
type ActivityCode string

// ActivityKind is the variant tag of an ActivityCode.
type ActivityKind string

const (
	KindLabor      ActivityKind = "labor"
	KindInspection ActivityKind = "inspection"
	KindMachine    ActivityKind = "machine"
)

const (
	ActivityNormal     ActivityCode = "NORMAL"
	ActivityTrainee    ActivityCode = "TRAINEE"
	ActivityInspection ActivityCode = "INSPECTION"
)

const machinePrefix = "MACHINE:"

// MachineActivity returns the activity code for a named machine.
func MachineActivity(machineID string) ActivityCode {
	return ActivityCode(machinePrefix + machineID)
}

// MachineID extracts the machine id from a machine activity code.
func (c ActivityCode) MachineID() (string, bool) {
	if !strings.HasPrefix(string(c), machinePrefix) {
		return "", false
	}
	id := strings.TrimPrefix(string(c), machinePrefix)
	return id, id != ""
}

// Kind returns the variant of the code.
func (c ActivityCode) Kind() ActivityKind {
	switch {
	case c == ActivityInspection:
		return KindInspection
	case strings.HasPrefix(string(c), machinePrefix):
		return KindMachine
	default:
		return KindLabor
	}
}

// Valid reports whether the code belongs to the closed set.
func (c ActivityCode) Valid() bool {
	switch c {
	case ActivityNormal, ActivityTrainee, ActivityInspection:
		return true
	}
	_, ok := c.MachineID()
	return ok
}

// =============================================================================
// WORK ORDER - Aggregation root
// =============================================================================

type WorkOrder struct {
	ID             WorkOrderID
	Title          string
	Status         Status
	ExternalTaskID string // task board card, empty when not linked

	// Pass-through fields: stored, never computed here.
	EstimateAmount      *decimal.Decimal
	FinalDecisionAmount *decimal.Decimal
	DeliveryDate        *time.Time

	// FinalAmount is written by the snapshotter (last write wins).
	FinalAmount *decimal.Decimal

	CreatedAt time.Time
	UpdatedAt time.Time
}

// =============================================================================
// TIMESHEET ENTRY - External, read-only
// =============================================================================

type Worker struct {
	ID          string
	DisplayName string
}

type Machine struct {
	ID   string
	Name string
}

// StatusFlag is the optional marker on a timesheet entry.
type StatusFlag string

const (
	FlagNone          StatusFlag = ""
	FlagLunchOvertime StatusFlag = "lunch_overtime"
)

// TimesheetEntry arrives committed with worker and machine resolved.
// Machine is nil when the entry has no machine reference.
type TimesheetEntry struct {
	ID          EntryID
	WorkOrderID WorkOrderID
	Start       time.Time
	End         time.Time
	Worker      Worker
	Machine     *Machine
	Description string
	Flag        StatusFlag
}

// MachineRef returns the machine id or "".
func (e TimesheetEntry) MachineRef() string {
	if e.Machine == nil {
		return ""
	}
	return e.Machine.ID
}

// =============================================================================
// RATES AND MEMOS
// =============================================================================

type RateKind string

const (
	RateLabor   RateKind = "labor"
	RateMachine RateKind = "machine"
)

// RateKey addresses one rate store entry: labor by display label,
// machine by machine id.
type RateKey struct {
	Kind RateKind
	Key  string
}

func (k RateKey) String() string { return string(k.Kind) + "/" + k.Key }

// RateRecord is updated in place; no history is retained.
type RateRecord struct {
	Kind        RateKind
	Key         string
	CostPerHour decimal.Decimal
	BillPerHour decimal.Decimal
	Memo        string
	UpdatedAt   time.Time
}

func (r RateRecord) RateKey() RateKey { return RateKey{Kind: r.Kind, Key: r.Key} }

// ActivityMemo is independent of the rate value.
type ActivityMemo struct {
	WorkOrderID WorkOrderID
	Activity    ActivityCode
	Memo        string
	UpdatedAt   time.Time
}

// MaxMemoLength is measured in runes.
const MaxMemoLength = 50

// =============================================================================
// EXPENSES
// =============================================================================

type ExpenseCategory string

const (
	CategoryMaterials   ExpenseCategory = "materials"
	CategoryOutsourcing ExpenseCategory = "outsourcing"
	CategoryShipping    ExpenseCategory = "shipping"
	CategoryOther       ExpenseCategory = "other"
)

// AutoMarkup reports whether the category receives the automatic markup.
func (c ExpenseCategory) AutoMarkup() bool {
	switch c {
	case CategoryMaterials, CategoryOutsourcing, CategoryShipping:
		return true
	}
	return false
}

// ParseCategory maps unknown names onto CategoryOther.
func ParseCategory(s string) ExpenseCategory {
	c := ExpenseCategory(strings.ToLower(strings.TrimSpace(s)))
	if c.AutoMarkup() {
		return c
	}
	return CategoryOther
}

type ExpenseItem struct {
	ID            ExpenseID
	WorkOrderID   WorkOrderID
	Position      int
	Category      ExpenseCategory
	CostUnitPrice decimal.Decimal
	CostQuantity  decimal.Decimal
	CostTotal     decimal.Decimal
	BillUnitPrice decimal.Decimal
	BillQuantity  decimal.Decimal
	BillTotal     decimal.Decimal
	FileEstimate  decimal.Decimal
	Memo          string
	CreatedAt     time.Time
}

// ManualOverride re-infers the override: the stored bill total differs from
// the auto-markup value for its category. Never true for CategoryOther.
func (e ExpenseItem) ManualOverride(markup decimal.Decimal) bool {
	if !e.Category.AutoMarkup() {
		return false
	}
	return !e.BillTotal.Equal(MarkedUp(e.CostTotal, markup))
}

// =============================================================================
// ADJUSTMENT RECORD - Immutable audit trail
// =============================================================================

type AdjustmentType string

const (
	AdjRateAdjustment AdjustmentType = "rate_adjustment"
	AdjComment        AdjustmentType = "comment"
	AdjCorrection     AdjustmentType = "correction"
)

// Editable reports whether operators may edit or delete records of this type.
func (t AdjustmentType) Editable() bool {
	return t == AdjComment || t == AdjCorrection
}

// AdjustmentRecord rows are never rewritten except for the tombstone fields.
// CreatedBy is nil for unattributed rows.
type AdjustmentRecord struct {
	ID          AdjustmentID
	WorkOrderID WorkOrderID
	Type        AdjustmentType
	Activity    ActivityCode // set for rate adjustments
	Amount      decimal.Decimal
	Reason      string
	Memo        string
	CreatedBy   *string
	CreatedAt   time.Time
	Supersedes  AdjustmentID // set when an edit replaced an older comment

	IsDeleted bool
	DeletedBy *string
	DeletedAt *time.Time
}

// Unattributed is true when no known user created the record.
func (a AdjustmentRecord) Unattributed() bool { return a.CreatedBy == nil }

// =============================================================================
// USERS
// =============================================================================

// User is an operator who may be recorded as the creator of audit rows.
type User struct {
	ID   string
	Name string
}

// =============================================================================
// AGGREGATION SUMMARY - Append-only finalized snapshot
// =============================================================================

type AggregationSummary struct {
	ID              SummaryID
	WorkOrderID     WorkOrderID
	Activities      []ActivitySummary
	Expenses        []ExpenseItem
	TotalHours      decimal.Decimal
	CostTotal       decimal.Decimal
	BillTotal       decimal.Decimal
	MaterialTotal   decimal.Decimal
	AdjustmentTotal decimal.Decimal
	FinalAmount     decimal.Decimal
	CreatedBy       *string
	CreatedAt       time.Time
}
