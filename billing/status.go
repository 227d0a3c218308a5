/*
status.go - Status transition manager

PURPOSE:
  Drives the 3-state work order lifecycle and keeps the external task board
  in step, best effort.

TRANSITIONS:
  delivered   -> aggregating   list: aggregating
  aggregating -> delivered     list: delivered   (rollback)
  aggregating -> aggregated    list: completed
  aggregated  -> aggregating   list: aggregating (rollback)
  aggregated  -> delivered     list: delivered   (direct rollback)

UNDEFINED EDGES:
  delivered -> aggregated is not in the table. By default the status is
  still written and sync is skipped (observed production behavior).
  Strict mode rejects it with a TransitionError instead.

SYNC:
  After the local write commits, the linked card is moved to the target
  list. Failures are logged and never roll back the local status.
*/
package billing

import (
	"context"
	"fmt"
	"log/slog"
)

type Status string

const (
	StatusDelivered   Status = "delivered"
	StatusAggregating Status = "aggregating"
	StatusAggregated  Status = "aggregated"
)

// ParseStatus accepts the three state names.
func ParseStatus(s string) (Status, error) {
	switch st := Status(s); st {
	case StatusDelivered, StatusAggregating, StatusAggregated:
		return st, nil
	}
	return "", fmt.Errorf("%q: %w", s, ErrInvalidStatus)
}

// ListTarget names an external list slot.
type ListTarget string

const (
	ListNone        ListTarget = ""
	ListDelivered   ListTarget = "delivered"
	ListAggregating ListTarget = "aggregating"
	ListCompleted   ListTarget = "completed"
)

// TaskLists maps list slots to external list ids. Archived is configured
// alongside the others but no transition routes to it.
type TaskLists struct {
	Delivered   string
	Aggregating string
	Completed   string
	Archived    string
}

// ID returns the external id of a slot.
func (l TaskLists) ID(t ListTarget) string {
	switch t {
	case ListDelivered:
		return l.Delivered
	case ListAggregating:
		return l.Aggregating
	case ListCompleted:
		return l.Completed
	}
	return ""
}

type edge struct{ from, to Status }

var transitions = map[edge]ListTarget{
	{StatusDelivered, StatusAggregating}:  ListAggregating,
	{StatusAggregating, StatusDelivered}:  ListDelivered,
	{StatusAggregating, StatusAggregated}: ListCompleted,
	{StatusAggregated, StatusAggregating}: ListAggregating,
	{StatusAggregated, StatusDelivered}:   ListDelivered,
}

// Transition is a planned status change.
type Transition struct {
	From    Status
	To      Status
	Target  ListTarget
	Defined bool
}

// Finalizes reports whether the change enters the aggregated state.
func (t Transition) Finalizes() bool {
	return t.To == StatusAggregated && t.From != StatusAggregated
}

// LookupTransition returns the sync target of a pair, if the pair is defined.
func LookupTransition(from, to Status) (ListTarget, bool) {
	target, ok := transitions[edge{from, to}]
	return target, ok
}

// TransitionError reports an undefined edge in strict mode.
type TransitionError struct {
	From Status
	To   Status
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("undefined status transition %s -> %s", e.From, e.To)
}

func (e *TransitionError) Unwrap() error { return ErrUndefinedTransition }

// =============================================================================
// TASK MOVER - External collaborator
// =============================================================================

// TaskMover moves an external task to a list.
type TaskMover interface {
	MoveTask(ctx context.Context, taskID, listID string) error
}

// =============================================================================
// MANAGER
// =============================================================================

type TransitionManager struct {
	Lists  TaskLists
	Strict bool
	Mover  TaskMover // nil disables sync
	Logger *slog.Logger
}

// Plan validates a requested change. Same-state requests return ok=false
// and nothing should be written.
func (m *TransitionManager) Plan(from, to Status) (Transition, bool, error) {
	if _, err := ParseStatus(string(to)); err != nil {
		return Transition{}, false, err
	}
	if from == to {
		return Transition{}, false, nil
	}
	target, defined := LookupTransition(from, to)
	if !defined {
		if m.Strict {
			return Transition{}, false, &TransitionError{From: from, To: to}
		}
		m.logger().Warn("status change outside transition table, task board sync skipped",
			"from", string(from), "to", string(to))
	}
	return Transition{From: from, To: to, Target: target, Defined: defined}, true, nil
}

// Sync moves the linked task. Errors are logged and swallowed.
func (m *TransitionManager) Sync(ctx context.Context, wo WorkOrder, t Transition) {
	log := m.logger().With("work_order", string(wo.ID), "from", string(t.From), "to", string(t.To))
	if !t.Defined || m.Mover == nil || wo.ExternalTaskID == "" {
		return
	}
	listID := m.Lists.ID(t.Target)
	if listID == "" {
		log.Warn("no list configured for target", "target", string(t.Target))
		return
	}
	if err := m.Mover.MoveTask(ctx, wo.ExternalTaskID, listID); err != nil {
		log.Error("task board move failed", "task", wo.ExternalTaskID, "list", listID, "error", err)
		return
	}
	log.Info("task board synced", "task", wo.ExternalTaskID, "list", listID)
}

func (m *TransitionManager) logger() *slog.Logger {
	if m.Logger == nil {
		return slog.Default()
	}
	return m.Logger
}
