package models

// Group is a canonical group from the roster. Repos and the external-members
// flag only apply to providers with the matching concept (GitHub teams).
type Group struct {
	Name                 string   `json:"name" yaml:"name"`
	Description          string   `json:"description,omitempty" yaml:"description"`
	Aliases              []string `json:"aliases,omitempty" yaml:"aliases"`
	Repos                []string `json:"repos,omitempty" yaml:"repos"`
	AllowExternalMembers bool     `json:"allowExternalMembers" yaml:"allow_external_members"`
}

// RemoteUser is a provider's view of a user, reduced to the fields the
// reconciliation driver needs. ID is the provider-native identifier.
type RemoteUser struct {
	ID    string `json:"id"`
	Email string `json:"email"`
	Login string `json:"login,omitempty"`
}

// RemoteGroup is a provider's view of a group.
type RemoteGroup struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}
