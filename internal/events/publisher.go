// Package events delivers fire-and-forget notifications to interested
// clients. Publication failures never roll back or block the primary
// mutation; the dashboard catches up on the next read.
package events

import (
	"context"

	"github.com/google/uuid"
)

// Publisher fans out an event to everyone subscribed to a scope.
type Publisher interface {
	Publish(ctx context.Context, scope, event string, payload any)
}

// ScopeDashboard is the global dashboard scope.
const ScopeDashboard = "dashboard"

// InventoryScope names the per-item scope.
func InventoryScope(itemID uuid.UUID) string {
	return "inventory:" + itemID.String()
}

// JobScope names the per-job scope.
func JobScope(jobID uuid.UUID) string {
	return "job:" + jobID.String()
}

// Nop discards every event. Used in tests and the seed script.
type Nop struct{}

// Publish implements Publisher.
func (Nop) Publish(context.Context, string, string, any) {}
