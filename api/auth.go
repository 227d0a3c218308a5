package api

import (
	"context"
	"net/http"
	"strings"

	"github.com/warp/billing-engine/billing"
)

// ActorHeader carries the id of the operator making the request. Identity
// is asserted by the fronting auth proxy; this service does not verify it.
const ActorHeader = "X-Actor-ID"

func actorID(r *http.Request) string {
	return strings.TrimSpace(r.Header.Get(ActorHeader))
}

// Authorizer decides whether an actor may edit or delete an audit record.
type Authorizer interface {
	CanModify(ctx context.Context, actorID string, rec billing.AdjustmentRecord) bool
}

// CreatorOrAdmin allows the record's creator and any listed admin.
// Unattributed records are admin-only.
type CreatorOrAdmin struct {
	Admins map[string]bool
}

func NewCreatorOrAdmin(admins []string) CreatorOrAdmin {
	m := make(map[string]bool, len(admins))
	for _, a := range admins {
		m[a] = true
	}
	return CreatorOrAdmin{Admins: m}
}

func (a CreatorOrAdmin) CanModify(_ context.Context, actorID string, rec billing.AdjustmentRecord) bool {
	if actorID == "" {
		return false
	}
	if a.Admins[actorID] {
		return true
	}
	return rec.CreatedBy != nil && *rec.CreatedBy == actorID
}
