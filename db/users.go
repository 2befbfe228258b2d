package db

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/canopy-platform/directory-services/models"
)

// upsertUserQuery preserves welcomed_at across roster rewrites.
const upsertUserQuery = `
	INSERT INTO users (username, email, first_name, last_name, recovery_email,
		recovery_phone, department, github_login, groups, denied_services,
		is_group_admin, is_consultant, is_system_account)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	ON CONFLICT (username) DO UPDATE SET
		email = EXCLUDED.email,
		first_name = EXCLUDED.first_name,
		last_name = EXCLUDED.last_name,
		recovery_email = EXCLUDED.recovery_email,
		recovery_phone = EXCLUDED.recovery_phone,
		department = EXCLUDED.department,
		github_login = EXCLUDED.github_login,
		groups = EXCLUDED.groups,
		denied_services = EXCLUDED.denied_services,
		is_group_admin = EXCLUDED.is_group_admin,
		is_consultant = EXCLUDED.is_consultant,
		is_system_account = EXCLUDED.is_system_account,
		updated_at = now()`

func upsertUserArgs(user models.User) []interface{} {
	return []interface{}{
		user.Username, user.Email, user.FirstName, user.LastName, user.RecoveryEmail,
		user.RecoveryPhone, user.Department, user.GitHub, pq.Array(user.Groups),
		pq.Array(user.DeniedServices), user.IsGroupAdmin, user.IsConsultant,
		user.IsSystemAccount,
	}
}

// GetUsers retrieves all users with their external IDs.
func (d *DirectoryDB) GetUsers() ([]models.User, error) {
	rows, err := d.DB.Query(`
		SELECT username, email, first_name, last_name, recovery_email, recovery_phone,
			department, github_login, groups, denied_services, is_group_admin,
			is_consultant, is_system_account, welcomed_at
		FROM users ORDER BY username`)
	if err != nil {
		return nil, fmt.Errorf("error retrieving users: %w", err)
	}
	defer rows.Close()

	var users []models.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, *u)
	}

	for i := range users {
		ids, err := d.getExternalIDs(users[i].Username)
		if err != nil {
			return nil, err
		}
		users[i].ExternalIDs = ids
	}
	return users, nil
}

// GetUser retrieves a single user, or nil when absent.
func (d *DirectoryDB) GetUser(username string) (*models.User, error) {
	row := d.DB.QueryRow(`
		SELECT username, email, first_name, last_name, recovery_email, recovery_phone,
			department, github_login, groups, denied_services, is_group_admin,
			is_consultant, is_system_account, welcomed_at
		FROM users WHERE username = $1`, username)

	u, err := scanUser(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	ids, err := d.getExternalIDs(u.Username)
	if err != nil {
		return nil, err
	}
	u.ExternalIDs = ids
	return u, nil
}

// SetExternalID records the provider-assigned ID so later runs resolve the
// user directly instead of searching by email.
func (d *DirectoryDB) SetExternalID(username, provider, externalID string) error {
	_, err := d.DB.Exec(`
		INSERT INTO external_ids (username, provider, external_id)
		VALUES ($1, $2, $3)
		ON CONFLICT (username, provider) DO UPDATE SET
			external_id = EXCLUDED.external_id,
			updated_at = now()`,
		username, provider, externalID)
	if err != nil {
		return fmt.Errorf("error recording external id for %s/%s: %w", username, provider, err)
	}
	return nil
}

// MarkWelcomed stamps the welcome-notification flag. The flag, not remote
// lookup state, is the idempotency key for the welcome email.
func (d *DirectoryDB) MarkWelcomed(username string, at time.Time) error {
	_, err := d.DB.Exec(`UPDATE users SET welcomed_at = $2, updated_at = now()
		WHERE username = $1 AND welcomed_at IS NULL`, username, at)
	if err != nil {
		return fmt.Errorf("error marking user %s welcomed: %w", username, err)
	}
	return nil
}

// RemovedUsers returns users present in the database but absent from the
// roster: the set to deprovision this run.
func (d *DirectoryDB) RemovedUsers(rosterUsernames []string) ([]models.User, error) {
	rows, err := d.DB.Query(`
		SELECT username, email, first_name, last_name, recovery_email, recovery_phone,
			department, github_login, groups, denied_services, is_group_admin,
			is_consultant, is_system_account, welcomed_at
		FROM users WHERE NOT (username = ANY($1)) ORDER BY username`,
		pq.Array(rosterUsernames))
	if err != nil {
		return nil, fmt.Errorf("error retrieving removed users: %w", err)
	}
	defer rows.Close()

	var users []models.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, *u)
	}
	return users, nil
}

// DeleteUser removes the user row; external IDs cascade.
func (d *DirectoryDB) DeleteUser(username string) error {
	_, err := d.DB.Exec(`DELETE FROM users WHERE username = $1`, username)
	if err != nil {
		return fmt.Errorf("error deleting user %s: %w", username, err)
	}
	return nil
}

func (d *DirectoryDB) getExternalIDs(username string) (map[string]string, error) {
	rows, err := d.DB.Query(`SELECT provider, external_id FROM external_ids WHERE username = $1`, username)
	if err != nil {
		return nil, fmt.Errorf("error retrieving external ids: %w", err)
	}
	defer rows.Close()

	ids := make(map[string]string)
	for rows.Next() {
		var provider, id string
		if err := rows.Scan(&provider, &id); err != nil {
			return nil, fmt.Errorf("error scanning external id: %w", err)
		}
		ids[provider] = id
	}
	return ids, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanUser(row rowScanner) (*models.User, error) {
	var u models.User
	var groups, denied pq.StringArray
	var welcomedAt sql.NullTime
	if err := row.Scan(&u.Username, &u.Email, &u.FirstName, &u.LastName,
		&u.RecoveryEmail, &u.RecoveryPhone, &u.Department, &u.GitHub,
		&groups, &denied, &u.IsGroupAdmin, &u.IsConsultant,
		&u.IsSystemAccount, &welcomedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("error scanning user: %w", err)
	}
	u.Groups = groups
	u.DeniedServices = denied
	if welcomedAt.Valid {
		t := welcomedAt.Time
		u.WelcomedAt = &t
	}
	return &u, nil
}
