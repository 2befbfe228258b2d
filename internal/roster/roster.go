// Package roster loads the canonical company configuration: the users and
// groups every provider is converged towards. The roster is the single
// source of truth; reconciliation never writes back to it.
package roster

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v2"

	"github.com/canopy-platform/directory-services/models"
)

// Roster is one company's canonical directory state.
type Roster struct {
	Users  []models.User
	Groups []models.Group
}

type usersFile struct {
	Users map[string]models.User `yaml:"users"`
}

type groupsFile struct {
	Groups map[string]models.Group `yaml:"groups"`
}

// Load reads and validates the roster files. A validation error here is
// fatal for the whole run: no provider may be touched with a malformed
// roster.
func Load(usersPath, groupsPath, domain string) (*Roster, error) {
	var uf usersFile
	if err := readYAML(usersPath, &uf); err != nil {
		return nil, fmt.Errorf("loading users roster: %w", err)
	}
	var gf groupsFile
	if err := readYAML(groupsPath, &gf); err != nil {
		return nil, fmt.Errorf("loading groups roster: %w", err)
	}

	r := &Roster{}
	for username, user := range uf.Users {
		user.Username = username
		if user.Email == "" {
			user.Email = fmt.Sprintf("%s@%s", username, domain)
		}
		r.Users = append(r.Users, user)
	}
	for name, group := range gf.Groups {
		group.Name = name
		r.Groups = append(r.Groups, group)
	}

	// Deterministic iteration order keeps run logs and reports diffable.
	sort.Slice(r.Users, func(i, j int) bool { return r.Users[i].Username < r.Users[j].Username })
	sort.Slice(r.Groups, func(i, j int) bool { return r.Groups[i].Name < r.Groups[j].Name })

	if err := r.Validate(); err != nil {
		return nil, err
	}
	return r, nil
}

// Validate enforces the structural invariants a run depends on.
func (r *Roster) Validate() error {
	groups := make(map[string]bool, len(r.Groups))
	for _, g := range r.Groups {
		if g.Name == "" {
			return fmt.Errorf("roster group with empty name")
		}
		if groups[g.Name] {
			return fmt.Errorf("duplicate roster group %q", g.Name)
		}
		groups[g.Name] = true
	}

	seen := make(map[string]bool, len(r.Users))
	for _, u := range r.Users {
		if u.Username == "" {
			return fmt.Errorf("roster user with empty username")
		}
		if !strings.Contains(u.Email, "@") {
			return fmt.Errorf("roster user %q has invalid email %q", u.Username, u.Email)
		}
		if seen[u.Username] {
			return fmt.Errorf("duplicate roster user %q", u.Username)
		}
		seen[u.Username] = true

		for _, g := range u.Groups {
			if !groups[g] {
				return fmt.Errorf("roster user %q references unknown group %q", u.Username, g)
			}
		}
	}
	return nil
}

// Group returns the named roster group.
func (r *Roster) Group(name string) (models.Group, bool) {
	for _, g := range r.Groups {
		if g.Name == name {
			return g, true
		}
	}
	return models.Group{}, false
}

// GroupNames returns the set of roster group names.
func (r *Roster) GroupNames() map[string]bool {
	names := make(map[string]bool, len(r.Groups))
	for _, g := range r.Groups {
		names[g.Name] = true
	}
	return names
}

func readYAML(path string, out interface{}) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if err := yaml.Unmarshal(data, out); err != nil {
		return fmt.Errorf("parsing %s: %w", path, err)
	}
	return nil
}
