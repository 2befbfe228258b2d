package models

import (
	"time"

	"github.com/google/uuid"
)

// UnitFailure records one failed (provider, user) or (provider, group) unit.
// Failures are collected, never propagated, so one bad vendor response cannot
// block convergence elsewhere.
type UnitFailure struct {
	Provider string `json:"provider"`
	Unit     string `json:"unit"`
	Error    string `json:"error"`
}

// ProviderReport accumulates what one provider's pass actually did.
// UsersEnsured and GroupsEnsured count converged units including idempotent
// re-ensures; UsersCreated counts only first-time provisioning, detected by
// the absence of a stored external ID before the run.
type ProviderReport struct {
	Provider           string        `json:"provider"`
	UsersCreated       int           `json:"usersCreated"`
	UsersEnsured       int           `json:"usersEnsured"`
	UsersSkipped       int           `json:"usersSkipped"`
	UsersDeleted       int           `json:"usersDeleted"`
	GroupsEnsured      int           `json:"groupsEnsured"`
	GroupsDeleted      int           `json:"groupsDeleted"`
	MembershipsAdded   int           `json:"membershipsAdded"`
	MembershipsRemoved int           `json:"membershipsRemoved"`
	Failures           []UnitFailure `json:"failures,omitempty"`
	ConfigError        string        `json:"configError,omitempty"`
}

// Writes reports the number of state-changing operations the provider
// issued. A second reconciliation pass over unchanged state must report
// zero: ensures degrade to no-op updates and are not counted.
func (r *ProviderReport) Writes() int {
	return r.UsersCreated + r.UsersDeleted + r.GroupsDeleted +
		r.MembershipsAdded + r.MembershipsRemoved
}

// ReconcileReport is the outcome of one full reconciliation run.
type ReconcileReport struct {
	RunID     uuid.UUID         `json:"runId"`
	StartedAt time.Time         `json:"startedAt"`
	EndedAt   time.Time         `json:"endedAt"`
	Providers []*ProviderReport `json:"providers"`
}

// Failed reports whether any provider recorded a unit failure or was skipped
// for a configuration error.
func (r *ReconcileReport) Failed() bool {
	for _, p := range r.Providers {
		if len(p.Failures) > 0 || p.ConfigError != "" {
			return true
		}
	}
	return false
}
