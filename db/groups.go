package db

import (
	"database/sql"
	"fmt"

	"github.com/lib/pq"

	"github.com/canopy-platform/directory-services/models"
)

const upsertGroupQuery = `
	INSERT INTO groups (name, description, aliases, repos, allow_external_members)
	VALUES ($1, $2, $3, $4, $5)
	ON CONFLICT (name) DO UPDATE SET
		description = EXCLUDED.description,
		aliases = EXCLUDED.aliases,
		repos = EXCLUDED.repos,
		allow_external_members = EXCLUDED.allow_external_members,
		updated_at = now()`

func upsertGroupArgs(group models.Group) []interface{} {
	return []interface{}{
		group.Name, group.Description, pq.Array(group.Aliases),
		pq.Array(group.Repos), group.AllowExternalMembers,
	}
}

// GetGroups retrieves all groups.
func (d *DirectoryDB) GetGroups() ([]models.Group, error) {
	rows, err := d.DB.Query(`
		SELECT name, description, aliases, repos, allow_external_members
		FROM groups ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("error retrieving groups: %w", err)
	}
	defer rows.Close()

	var groups []models.Group
	for rows.Next() {
		g, err := scanGroup(rows)
		if err != nil {
			return nil, err
		}
		groups = append(groups, *g)
	}
	return groups, nil
}

// GetGroup retrieves a single group, or nil when absent.
func (d *DirectoryDB) GetGroup(name string) (*models.Group, error) {
	row := d.DB.QueryRow(`
		SELECT name, description, aliases, repos, allow_external_members
		FROM groups WHERE name = $1`, name)
	g, err := scanGroup(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return g, err
}

// RemovedGroups returns groups present in the database but absent from the
// roster: the set to delete remotely this run.
func (d *DirectoryDB) RemovedGroups(rosterNames []string) ([]models.Group, error) {
	rows, err := d.DB.Query(`
		SELECT name, description, aliases, repos, allow_external_members
		FROM groups WHERE NOT (name = ANY($1)) ORDER BY name`,
		pq.Array(rosterNames))
	if err != nil {
		return nil, fmt.Errorf("error retrieving removed groups: %w", err)
	}
	defer rows.Close()

	var groups []models.Group
	for rows.Next() {
		g, err := scanGroup(rows)
		if err != nil {
			return nil, err
		}
		groups = append(groups, *g)
	}
	return groups, nil
}

// DeleteGroup removes the group row.
func (d *DirectoryDB) DeleteGroup(name string) error {
	_, err := d.DB.Exec(`DELETE FROM groups WHERE name = $1`, name)
	if err != nil {
		return fmt.Errorf("error deleting group %s: %w", name, err)
	}
	return nil
}

func scanGroup(row rowScanner) (*models.Group, error) {
	var g models.Group
	var aliases, repos pq.StringArray
	if err := row.Scan(&g.Name, &g.Description, &aliases, &repos,
		&g.AllowExternalMembers); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("error scanning group: %w", err)
	}
	g.Aliases = aliases
	g.Repos = repos
	return &g, nil
}
