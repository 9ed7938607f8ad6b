// Package policy centralizes authorization decisions so services share one
// set of capability checks instead of ad hoc role comparisons.
package policy

import (
	"github.com/cooltrack/cooltrack/internal/shared"
)

// Policy answers capability questions about an actor. Violations surface as
// shared.ErrForbidden so the HTTP layer maps them uniformly.
type Policy struct{}

// New constructs a Policy.
func New() Policy {
	return Policy{}
}

// CanEditJob permits admins and the technician assigned to the job.
func (Policy) CanEditJob(actor shared.Actor, assignedTechnicianID int64) error {
	if actor.IsAdmin() || actor.ID == assignedTechnicianID {
		return nil
	}
	return shared.ErrForbidden
}

// CanUpdateLabor permits only the technician assigned to the job.
func (Policy) CanUpdateLabor(actor shared.Actor, assignedTechnicianID int64) error {
	if actor.Role == shared.RoleTechnician && actor.ID == assignedTechnicianID {
		return nil
	}
	return shared.ErrForbidden
}

// CanApproveCosting permits admins.
func (Policy) CanApproveCosting(actor shared.Actor) error {
	return adminOnly(actor)
}

// CanManageRevenue permits admins.
func (Policy) CanManageRevenue(actor shared.Actor) error {
	return adminOnly(actor)
}

// CanManageRates permits admins.
func (Policy) CanManageRates(actor shared.Actor) error {
	return adminOnly(actor)
}

// CanManageInventory permits admins to mutate stock outside of a job.
func (Policy) CanManageInventory(actor shared.Actor) error {
	return adminOnly(actor)
}

// CanManageUsers permits admins.
func (Policy) CanManageUsers(actor shared.Actor) error {
	return adminOnly(actor)
}

// CanManageSettings permits admins.
func (Policy) CanManageSettings(actor shared.Actor) error {
	return adminOnly(actor)
}

// CanViewLedger permits admins.
func (Policy) CanViewLedger(actor shared.Actor) error {
	return adminOnly(actor)
}

func adminOnly(actor shared.Actor) error {
	if actor.IsAdmin() {
		return nil
	}
	return shared.ErrForbidden
}
