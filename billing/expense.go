/*
expense.go - Expense normalizer

PURPOSE:
  Computes cost/bill totals for ad-hoc expense lines and persists the full
  replacement list of a work order.

RULES:
  - cost unit price clamped >= 0, cost quantity clamped >= 1
  - costTotal = supplied value when positive, else unitPrice x quantity
  - materials/outsourcing/shipping without manual override:
      billQuantity = costQuantity
      billTotal    = ceil(costTotal x 1.2)
      billUnit     = ceil(billTotal / billQuantity)
  - other, or manual override: supplied bill fields, missing ones derived
    (total = unit x qty, or unit = ceil(total / qty)); qty defaults to 1
  - manual override is inferred: a supplied bill total that differs from
    the expected auto-markup value

LENIENCY:
  Malformed numbers are clamped, not rejected (price -> 0, quantity -> 1).
  ExpenseNormalizer.Strict turns them into ValidationErrors instead.

PERSISTENCE:
  ReplaceExpenses deletes every row of the work order and inserts the
  survivors: rows with costTotal > 0, billTotal > 0 or fileEstimate > 0.
*/
package billing

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// =============================================================================
// LENIENT NUMBER - Accepts numbers, numeric strings, null; never fails decoding
// =============================================================================

// Lenient is a numeric input that records whether it was supplied and
// whether it parsed.
type Lenient struct {
	Value   decimal.Decimal
	Set     bool
	Invalid bool
	Raw     string
}

// Num builds a supplied, valid Lenient.
func Num(v int64) Lenient { return Lenient{Value: decimal.NewFromInt(v), Set: true} }

// Dec builds a supplied, valid Lenient from a decimal.
func Dec(d decimal.Decimal) Lenient { return Lenient{Value: d, Set: true} }

// ParseLenient parses user text: thousands separators and surrounding
// whitespace are ignored, empty means not supplied.
func ParseLenient(s string) Lenient {
	s = strings.TrimSpace(strings.ReplaceAll(s, ",", ""))
	if s == "" {
		return Lenient{}
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return Lenient{Set: true, Invalid: true, Raw: s}
	}
	return Lenient{Value: d, Set: true}
}

// UnmarshalJSON never returns an error: bad input is marked Invalid.
func (l *Lenient) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	switch {
	case len(b) == 0 || bytes.Equal(b, []byte("null")):
		*l = Lenient{}
	case b[0] == '"':
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			*l = Lenient{Set: true, Invalid: true, Raw: string(b)}
			return nil
		}
		*l = ParseLenient(s)
	default:
		*l = ParseLenient(string(b))
	}
	return nil
}

// MarshalJSON writes the value, or null when unset or invalid.
func (l Lenient) MarshalJSON() ([]byte, error) {
	if !l.Set || l.Invalid {
		return []byte("null"), nil
	}
	return []byte(l.Value.String()), nil
}

// positive reports a supplied, valid, > 0 value.
func (l Lenient) positive() bool { return l.Set && !l.Invalid && l.Value.IsPositive() }

// =============================================================================
// DRAFT
// =============================================================================

// ExpenseDraft is one line of the replacement list.
type ExpenseDraft struct {
	Category      string
	CostUnitPrice Lenient
	CostQuantity  Lenient
	CostTotal     Lenient
	BillUnitPrice Lenient
	BillQuantity  Lenient
	BillTotal     Lenient
	FileEstimate  Lenient
	Memo          string
}

// =============================================================================
// NORMALIZER
// =============================================================================

type ExpenseNormalizer struct {
	Markup decimal.Decimal
	Strict bool
}

func (n ExpenseNormalizer) markup() decimal.Decimal {
	if n.Markup.IsZero() {
		return DefaultMarkup
	}
	return n.Markup
}

// clamp returns the value or fallback for unset/invalid/below-min input.
// In strict mode invalid or below-min input is an error.
func (n ExpenseNormalizer) clamp(field string, l Lenient, min, fallback decimal.Decimal) (decimal.Decimal, error) {
	if !l.Set {
		return fallback, nil
	}
	if l.Invalid {
		if n.Strict {
			return decimal.Zero, &ValidationError{Field: field, Message: fmt.Sprintf("not a number: %q", l.Raw)}
		}
		return fallback, nil
	}
	if l.Value.LessThan(min) {
		if n.Strict {
			return decimal.Zero, &ValidationError{Field: field, Message: "must be at least " + min.String()}
		}
		return fallback, nil
	}
	return l.Value, nil
}

// Normalize computes one expense item. The returned item has no ID.
func (n ExpenseNormalizer) Normalize(idx int, d ExpenseDraft) (ExpenseItem, error) {
	field := func(name string) string { return fmt.Sprintf("expenses[%d].%s", idx, name) }
	zero, one := decimal.Zero, decimal.NewFromInt(1)

	if err := checkMemo(field("memo"), d.Memo); err != nil {
		return ExpenseItem{}, err
	}

	costUnit, err := n.clamp(field("cost_unit_price"), d.CostUnitPrice, zero, zero)
	if err != nil {
		return ExpenseItem{}, err
	}
	costQty, err := n.clamp(field("cost_quantity"), d.CostQuantity, one, one)
	if err != nil {
		return ExpenseItem{}, err
	}
	if n.Strict {
		rest := []struct {
			name string
			l    Lenient
		}{
			{"cost_total", d.CostTotal},
			{"bill_unit_price", d.BillUnitPrice},
			{"bill_quantity", d.BillQuantity},
			{"bill_total", d.BillTotal},
			{"file_estimate", d.FileEstimate},
		}
		for _, f := range rest {
			if _, err := n.clamp(field(f.name), f.l, zero, zero); err != nil {
				return ExpenseItem{}, err
			}
		}
	}

	costTotal := costUnit.Mul(costQty)
	if d.CostTotal.positive() {
		costTotal = d.CostTotal.Value
	}

	item := ExpenseItem{
		Position:      idx,
		Category:      ParseCategory(d.Category),
		CostUnitPrice: costUnit,
		CostQuantity:  costQty,
		CostTotal:     costTotal,
		FileEstimate:  zero,
		Memo:          d.Memo,
	}
	if d.FileEstimate.positive() {
		item.FileEstimate = d.FileEstimate.Value
	}

	expected := MarkedUp(costTotal, n.markup())
	override := d.BillTotal.positive() && !d.BillTotal.Value.Equal(expected)

	if item.Category.AutoMarkup() && !override {
		item.BillQuantity = costQty
		item.BillTotal = expected
		item.BillUnitPrice = CeilYen(expected.Div(costQty))
		return item, nil
	}

	qty := one
	if d.BillQuantity.positive() {
		qty = d.BillQuantity.Value
	}
	unit, total := zero, zero
	if d.BillUnitPrice.positive() {
		unit = d.BillUnitPrice.Value
	}
	if d.BillTotal.positive() {
		total = d.BillTotal.Value
	}
	switch {
	case total.IsPositive() && unit.IsZero():
		unit = CeilYen(total.Div(qty))
	case total.IsZero() && unit.IsPositive():
		total = unit.Mul(qty)
	}
	item.BillQuantity = qty
	item.BillUnitPrice = unit
	item.BillTotal = total
	return item, nil
}

// Survives reports whether a normalized row is worth persisting.
func Survives(e ExpenseItem) bool {
	return e.CostTotal.IsPositive() || e.BillTotal.IsPositive() || e.FileEstimate.IsPositive()
}

// NormalizeAll normalizes every draft and drops all-zero rows.
func (n ExpenseNormalizer) NormalizeAll(drafts []ExpenseDraft) ([]ExpenseItem, error) {
	out := make([]ExpenseItem, 0, len(drafts))
	for i, d := range drafts {
		item, err := n.Normalize(i, d)
		if err != nil {
			return nil, err
		}
		if !Survives(item) {
			continue
		}
		item.Position = len(out)
		out = append(out, item)
	}
	return out, nil
}

// ReplaceExpenses sets the work order's expenses to the normalized drafts.
// store must be transactional so readers never see the empty interval.
func (n ExpenseNormalizer) ReplaceExpenses(ctx context.Context, store Store, workOrderID WorkOrderID, drafts []ExpenseDraft, now time.Time) ([]ExpenseItem, error) {
	items, err := n.NormalizeAll(drafts)
	if err != nil {
		return nil, err
	}
	if err := store.DeleteExpenses(ctx, workOrderID); err != nil {
		return nil, fmt.Errorf("delete expenses: %w", err)
	}
	for i := range items {
		items[i].ID = ExpenseID(uuid.NewString())
		items[i].WorkOrderID = workOrderID
		items[i].CreatedAt = now
		if err := store.InsertExpense(ctx, items[i]); err != nil {
			return nil, fmt.Errorf("insert expense %d: %w", i, err)
		}
	}
	return items, nil
}
