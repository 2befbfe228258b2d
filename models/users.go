package models

import "time"

// User is the canonical identity record from the roster. External IDs are
// empty until the matching provider has provisioned the user.
type User struct {
	Username        string            `json:"username" yaml:"username"`
	Email           string            `json:"email" yaml:"email"`
	FirstName       string            `json:"firstName" yaml:"first_name"`
	LastName        string            `json:"lastName" yaml:"last_name"`
	RecoveryEmail   string            `json:"recoveryEmail,omitempty" yaml:"recovery_email"`
	RecoveryPhone   string            `json:"recoveryPhone,omitempty" yaml:"recovery_phone"`
	Department      string            `json:"department,omitempty" yaml:"department"`
	GitHub          string            `json:"github,omitempty" yaml:"github"`
	Groups          []string          `json:"groups" yaml:"groups"`
	DeniedServices  []string          `json:"deniedServices,omitempty" yaml:"denied_services"`
	IsGroupAdmin    bool              `json:"isGroupAdmin" yaml:"is_group_admin"`
	IsConsultant    bool              `json:"isConsultant" yaml:"is_consultant"`
	IsSystemAccount bool              `json:"isSystemAccount" yaml:"is_system_account"`
	ExternalIDs     map[string]string `json:"externalIds,omitempty" yaml:"-"`
	WelcomedAt      *time.Time        `json:"welcomedAt,omitempty" yaml:"-"`
}

// ExternalID returns the provider-assigned ID for the user, or "" if the
// provider has not provisioned them yet.
func (u *User) ExternalID(provider string) string {
	if u.ExternalIDs == nil {
		return ""
	}
	return u.ExternalIDs[provider]
}

// SetExternalID records a provider-assigned ID on the user.
func (u *User) SetExternalID(provider, id string) {
	if u.ExternalIDs == nil {
		u.ExternalIDs = map[string]string{}
	}
	u.ExternalIDs[provider] = id
}

// Denies reports whether the user has explicitly opted out of a provider.
func (u *User) Denies(provider string) bool {
	for _, s := range u.DeniedServices {
		if s == provider {
			return true
		}
	}
	return false
}

// IsFullTimeEmployee reports whether the user qualifies for providers that
// are restricted to employees (expense, HR and similar systems).
func (u *User) IsFullTimeEmployee() bool {
	return !u.IsConsultant && !u.IsSystemAccount
}

// InGroup reports whether the roster places the user in the named group.
func (u *User) InGroup(group string) bool {
	for _, g := range u.Groups {
		if g == group {
			return true
		}
	}
	return false
}
