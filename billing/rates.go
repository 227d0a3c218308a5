package billing

import (
	"context"
	"errors"
	"log/slog"

	"github.com/shopspring/decimal"
)

// =============================================================================
// CATALOG - Provided by the activity package
// =============================================================================

// Catalog classifies entries and names labor activities.
type Catalog interface {
	// Classify maps one entry to exactly one activity code.
	Classify(e TimesheetEntry) ActivityCode

	// Label returns the human-readable label of an activity. Labor rates
	// are keyed by this label.
	Label(code ActivityCode) string
}

// =============================================================================
// RATE RESOLVER
// =============================================================================

// Rate is a resolved cost/bill pair.
type Rate struct {
	Key       RateKey
	Cost      decimal.Decimal
	Bill      decimal.Decimal
	Defaulted bool // no record found, default substituted
}

// RateResolver looks up the effective rate of an activity. A missing record
// silently yields Default; a warning is logged so misconfiguration shows up
// somewhere.
type RateResolver struct {
	Catalog Catalog
	Default Rate
	Logger  *slog.Logger
}

// KeyFor returns the rate store key backing an activity. machineRef is the
// entry's machine id, used when the code does not carry one.
func (r *RateResolver) KeyFor(code ActivityCode, machineRef string) RateKey {
	if code.Kind() == KindMachine {
		id, ok := code.MachineID()
		if !ok {
			id = machineRef
		}
		return RateKey{Kind: RateMachine, Key: id}
	}
	return RateKey{Kind: RateLabor, Key: r.Catalog.Label(code)}
}

// Resolve returns the current rate for an activity.
func (r *RateResolver) Resolve(ctx context.Context, store Reader, code ActivityCode, machineRef string) (Rate, error) {
	key := r.KeyFor(code, machineRef)
	rec, err := store.GetRate(ctx, key)
	if err != nil {
		if !errors.Is(err, ErrRateNotFound) {
			return Rate{}, err
		}
		r.logger().Warn("rate not found, using default",
			"activity", string(code), "rate_key", key.String(),
			"cost", r.Default.Cost.String(), "bill", r.Default.Bill.String())
		return Rate{Key: key, Cost: r.Default.Cost, Bill: r.Default.Bill, Defaulted: true}, nil
	}
	return Rate{Key: key, Cost: rec.CostPerHour, Bill: rec.BillPerHour}, nil
}

func (r *RateResolver) logger() *slog.Logger {
	if r.Logger == nil {
		return slog.Default()
	}
	return r.Logger
}
