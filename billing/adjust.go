/*
adjust.go - Rate adjustment service and operator comments

PURPOSE:
  Applies manual bill-rate and memo edits per activity and writes the
  permanent audit trail. Runs inside the caller's transaction so that a
  rate is never visible without its paired audit row and memo.

PER ACTIVITY:
  1. Resolve the backing rate key (machine id or labor label), load the
     record. Missing record -> NotFoundError, transaction aborted.
  2. Memo supplied -> upsert ActivityMemo, regardless of rate change.
  3. Bill rate changed -> update in place (cost untouched), recompute this
     work order's hours for the activity, append a rate_adjustment record
     with amount round(hours x (new - old)).
  4. Bill rate unchanged -> no audit record, even if the memo changed.

ATTRIBUTION:
  CreatedBy is the acting user when that user exists, nil otherwise.
  Unattributed rows are explicit; there is no sentinel "system" user.

COMMENTS:
  Operators may also record comment/correction rows. Edits soft-delete the
  old row and append a replacement pointing at it, so rows stay immutable.
*/
package billing

import (
	"context"
	"fmt"
	"sort"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// RateEdit is one entry of billRateAdjustments.
type RateEdit struct {
	BillRate *decimal.Decimal // nil keeps the current rate
	Memo     *string
}

// RateAdjuster applies rate edits.
type RateAdjuster struct {
	Calc *Calculator
	Now  func() time.Time
}

func (a *RateAdjuster) now() time.Time {
	if a.Now != nil {
		return a.Now()
	}
	return time.Now()
}

// Apply processes every edit against store, which must be transactional.
// Activities are processed in code order so audit rows are deterministic.
func (a *RateAdjuster) Apply(ctx context.Context, store Store, workOrderID WorkOrderID, edits map[ActivityCode]RateEdit, creator *string) ([]AdjustmentRecord, error) {
	codes := make([]ActivityCode, 0, len(edits))
	for code := range edits {
		codes = append(codes, code)
	}
	sort.Slice(codes, func(i, j int) bool { return codes[i] < codes[j] })

	var written []AdjustmentRecord
	for _, code := range codes {
		rec, err := a.applyOne(ctx, store, workOrderID, code, edits[code], creator)
		if err != nil {
			return nil, fmt.Errorf("adjust %s: %w", code, err)
		}
		if rec != nil {
			written = append(written, *rec)
		}
	}
	return written, nil
}

func (a *RateAdjuster) applyOne(ctx context.Context, store Store, workOrderID WorkOrderID, code ActivityCode, edit RateEdit, creator *string) (*AdjustmentRecord, error) {
	if !code.Valid() {
		return nil, &ValidationError{Field: "bill_rate_adjustments." + string(code), Message: "unknown activity code"}
	}
	if edit.BillRate != nil && edit.BillRate.IsNegative() {
		return nil, &ValidationError{Field: "bill_rate_adjustments." + string(code), Message: "bill rate must not be negative"}
	}

	now := a.now().UTC()
	memo := ""
	if edit.Memo != nil {
		memo = *edit.Memo
		if err := checkMemo("bill_rate_adjustments."+string(code)+".memo", memo); err != nil {
			return nil, err
		}
	}
	saveMemo := func() error {
		if edit.Memo == nil {
			return nil
		}
		return store.UpsertActivityMemo(ctx, ActivityMemo{
			WorkOrderID: workOrderID,
			Activity:    code,
			Memo:        memo,
			UpdatedAt:   now,
		})
	}
	if edit.BillRate == nil {
		return nil, saveMemo()
	}
	newRate := *edit.BillRate

	key := a.Calc.Rates.KeyFor(code, "")
	if key.Key == "" {
		return nil, RateNotFound(key)
	}
	current, err := store.GetRate(ctx, key)
	if err != nil {
		return nil, err
	}

	if err := saveMemo(); err != nil {
		return nil, err
	}

	if newRate.Equal(current.BillPerHour) {
		return nil, nil
	}

	oldRate := current.BillPerHour
	updated := *current
	updated.BillPerHour = newRate
	updated.UpdatedAt = now
	if err := store.UpsertRate(ctx, updated); err != nil {
		return nil, err
	}

	minutes, err := a.Calc.MinutesFor(ctx, store, workOrderID, code)
	if err != nil {
		return nil, err
	}
	delta := AmountFor(minutes, newRate.Sub(oldRate))

	rec := AdjustmentRecord{
		ID:          AdjustmentID(uuid.NewString()),
		WorkOrderID: workOrderID,
		Type:        AdjRateAdjustment,
		Activity:    code,
		Amount:      delta,
		Reason: fmt.Sprintf("%s bill rate %s -> %s (%sh)",
			a.Calc.Catalog.Label(code), FormatYen(oldRate), FormatYen(newRate), minutes.Display().StringFixed(2)),
		Memo:      memo,
		CreatedBy: creator,
		CreatedAt: now,
	}
	if err := store.AppendAdjustment(ctx, rec); err != nil {
		return nil, err
	}
	return &rec, nil
}

// ResolveCreator returns the actor when it is a known user, nil otherwise.
func ResolveCreator(ctx context.Context, store Reader, actorID string) (*string, error) {
	if actorID == "" {
		return nil, nil
	}
	ok, err := store.UserExists(ctx, actorID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}
	id := actorID
	return &id, nil
}

func checkMemo(field, memo string) error {
	if utf8.RuneCountInString(memo) > MaxMemoLength {
		return &ValidationError{Field: field, Message: fmt.Sprintf("memo exceeds %d characters", MaxMemoLength)}
	}
	return nil
}

// =============================================================================
// OPERATOR COMMENTS
// =============================================================================

// CommentInput is a manual comment or correction.
type CommentInput struct {
	Type   AdjustmentType // AdjComment or AdjCorrection
	Amount decimal.Decimal
	Reason string
	Memo   string
}

func (in CommentInput) validate() error {
	if !in.Type.Editable() {
		return &ValidationError{Field: "type", Message: "must be comment or correction"}
	}
	if in.Reason == "" {
		return &ValidationError{Field: "reason", Message: "required"}
	}
	return checkMemo("memo", in.Memo)
}

func (a *RateAdjuster) newComment(workOrderID WorkOrderID, in CommentInput, creator *string) AdjustmentRecord {
	return AdjustmentRecord{
		ID:          AdjustmentID(uuid.NewString()),
		WorkOrderID: workOrderID,
		Type:        in.Type,
		Amount:      in.Amount,
		Reason:      in.Reason,
		Memo:        in.Memo,
		CreatedBy:   creator,
		CreatedAt:   a.now().UTC(),
	}
}

// AddComment appends an operator comment/correction.
func (a *RateAdjuster) AddComment(ctx context.Context, store Store, workOrderID WorkOrderID, in CommentInput, creator *string) (AdjustmentRecord, error) {
	if err := in.validate(); err != nil {
		return AdjustmentRecord{}, err
	}
	rec := a.newComment(workOrderID, in, creator)
	if err := store.AppendAdjustment(ctx, rec); err != nil {
		return AdjustmentRecord{}, err
	}
	return rec, nil
}

// loadEditable fetches a live, editable record of the work order.
func loadEditable(ctx context.Context, store Reader, workOrderID WorkOrderID, id AdjustmentID) (*AdjustmentRecord, error) {
	rec, err := store.GetAdjustment(ctx, id)
	if err != nil {
		return nil, err
	}
	if rec.WorkOrderID != workOrderID || rec.IsDeleted {
		return nil, AdjustmentNotFound(id)
	}
	if !rec.Type.Editable() {
		return nil, fmt.Errorf("%s: %w", rec.Type, ErrNotEditable)
	}
	return rec, nil
}

// EditComment replaces a comment: the old row is soft-deleted and a new row
// referencing it is appended.
func (a *RateAdjuster) EditComment(ctx context.Context, store Store, workOrderID WorkOrderID, id AdjustmentID, in CommentInput, actor *string) (AdjustmentRecord, error) {
	if err := in.validate(); err != nil {
		return AdjustmentRecord{}, err
	}
	if _, err := loadEditable(ctx, store, workOrderID, id); err != nil {
		return AdjustmentRecord{}, err
	}
	if err := store.SoftDeleteAdjustment(ctx, id, actor, a.now().UTC()); err != nil {
		return AdjustmentRecord{}, err
	}
	rec := a.newComment(workOrderID, in, actor)
	rec.Supersedes = id
	if err := store.AppendAdjustment(ctx, rec); err != nil {
		return AdjustmentRecord{}, err
	}
	return rec, nil
}

// DeleteComment tombstones a comment. Rows are never physically removed.
func (a *RateAdjuster) DeleteComment(ctx context.Context, store Store, workOrderID WorkOrderID, id AdjustmentID, actor *string) error {
	if _, err := loadEditable(ctx, store, workOrderID, id); err != nil {
		return err
	}
	return store.SoftDeleteAdjustment(ctx, id, actor, a.now().UTC())
}
