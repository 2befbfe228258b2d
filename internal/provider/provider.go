package provider

import (
	"context"

	"github.com/canopy-platform/directory-services/models"
)

// Provider is an integration with one external SaaS identity system. Every
// method is idempotent: a second call over unchanged state performs no writes.
//
// EnsureUser returns the provider-assigned external ID, or "" when the
// provider declined the user (deny-listed, wrong employment type, or a
// vendor prerequisite is missing). An empty ID is not an error; the driver
// skips the rest of the unit.
type Provider interface {
	Name() string
	Capabilities() Capabilities

	EnsureUser(ctx context.Context, user models.User) (string, error)
	DeleteUser(ctx context.Context, user models.User) error
	ListUsers(ctx context.Context) ([]models.RemoteUser, error)

	EnsureGroup(ctx context.Context, group models.Group) error
	DeleteGroup(ctx context.Context, group models.Group) error
	ListGroups(ctx context.Context) ([]models.RemoteGroup, error)

	// CheckMembership reports whether the user is a member of the group with
	// the role the roster asks for. A member with the wrong role reports
	// false so AddMembership fixes the role in place.
	CheckMembership(ctx context.Context, user models.User, group string) (bool, error)
	AddMembership(ctx context.Context, user models.User, group string) error
	RemoveMembership(ctx context.Context, user models.User, group string) error
}

// Capabilities describes what a vendor can actually do. Providers without a
// group concept set Groups to false and the driver's group passes become
// no-ops without any call-site branching. ReservedGroups are groups the
// vendor manages itself (Okta "Everyone"); they are always treated as
// satisfied.
type Capabilities struct {
	Groups           bool
	RequiresEmployee bool
	ReservedGroups   []string
}

// Reserved reports whether the named group is vendor-managed.
func (c Capabilities) Reserved(group string) bool {
	for _, g := range c.ReservedGroups {
		if g == group {
			return true
		}
	}
	return false
}

// NoGroups supplies the group-facing methods for vendors with no group
// concept. All of them succeed without issuing a network call, which lets
// the driver run its generic loop unmodified over every provider.
type NoGroups struct{}

func (NoGroups) EnsureGroup(ctx context.Context, group models.Group) error { return nil }

func (NoGroups) DeleteGroup(ctx context.Context, group models.Group) error { return nil }

func (NoGroups) ListGroups(ctx context.Context) ([]models.RemoteGroup, error) {
	return nil, nil
}

func (NoGroups) CheckMembership(ctx context.Context, user models.User, group string) (bool, error) {
	return false, nil
}

func (NoGroups) AddMembership(ctx context.Context, user models.User, group string) error {
	return nil
}

func (NoGroups) RemoveMembership(ctx context.Context, user models.User, group string) error {
	return nil
}
