package db

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"os"
	"time"

	_ "github.com/lib/pq"
	"github.com/pressly/goose/v3"
	"github.com/rs/zerolog"

	"github.com/canopy-platform/directory-services/models"
)

//go:embed migrations/*.sql
var migrations embed.FS

// reconcileLockID keys the advisory lock that keeps reconciliation passes
// for the same database from overlapping.
const reconcileLockID = 7347

type DirectoryDB struct {
	DB  *sql.DB
	Log *zerolog.Logger
}

// NewDirectoryDB is a constructor that initializes DirectoryDB with DB and Log
func NewDirectoryDB(log *zerolog.Logger) (*DirectoryDB, error) {
	// Get the database connection string from the environment
	connStr := os.Getenv("DATABASE_URL")
	if connStr == "" {
		log.Error().Msg("DATABASE_URL environment variable is not set")
		return nil, fmt.Errorf("DATABASE_URL environment variable is not set")
	}

	// Open the database connection
	db, err := sql.Open("postgres", connStr)
	if err != nil {
		log.Error().Err(err).Msg("Failed to open database connection")
		return nil, err
	}

	// Check we are actually connected
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err = db.PingContext(ctx)
	if err != nil {
		log.Error().Err(err).Msg("Database connection failed during ping")
		return nil, err
	}

	return &DirectoryDB{
		DB:  db,
		Log: log,
	}, nil
}

func (d *DirectoryDB) Close() error {
	if err := d.DB.Close(); err != nil {
		return err
	}
	d.Log.Info().Msg("database connection closed")
	return nil
}

// Migrate runs the embedded goose migrations.
func (d *DirectoryDB) Migrate() error {
	goose.SetBaseFS(migrations)
	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("setting goose dialect: %w", err)
	}
	if err := goose.Up(d.DB, "migrations"); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}
	return nil
}

// AcquireRunLock takes the session-level advisory lock guarding a
// reconciliation pass. Returns false when another pass holds it.
func (d *DirectoryDB) AcquireRunLock(ctx context.Context) (bool, error) {
	var acquired bool
	err := d.DB.QueryRowContext(ctx, `SELECT pg_try_advisory_lock($1)`, reconcileLockID).Scan(&acquired)
	if err != nil {
		return false, fmt.Errorf("acquiring reconcile lock: %w", err)
	}
	return acquired, nil
}

// ReleaseRunLock releases the advisory lock taken by AcquireRunLock.
func (d *DirectoryDB) ReleaseRunLock(ctx context.Context) error {
	_, err := d.DB.ExecContext(ctx, `SELECT pg_advisory_unlock($1)`, reconcileLockID)
	if err != nil {
		return fmt.Errorf("releasing reconcile lock: %w", err)
	}
	return nil
}

func (d *DirectoryDB) execQuery(tx *sql.Tx, query string, args ...interface{}) error {

	if d.DB == nil {
		return fmt.Errorf("database connection is not established")
	}

	_, err := tx.Exec(query, args...)
	if err != nil {
		return fmt.Errorf("failed to execute query: %v", err)
	}
	return nil
}

// CommitTransaction commits a transaction, rolling back on failure.
func (d *DirectoryDB) CommitTransaction(tx *sql.Tx) error {
	if err := tx.Commit(); err != nil {
		tx.Rollback()
		return fmt.Errorf("error committing transaction: %w", err)
	}
	return nil
}

// UpsertRoster writes the roster snapshot in one transaction so a mid-batch
// failure never leaves the users and groups tables half-written.
func (d *DirectoryDB) UpsertRoster(users []models.User, groups []models.Group) error {
	tx, err := d.DB.Begin()
	if err != nil {
		return fmt.Errorf("error starting roster transaction: %w", err)
	}

	for _, g := range groups {
		if err := d.execQuery(tx, upsertGroupQuery, upsertGroupArgs(g)...); err != nil {
			tx.Rollback()
			return fmt.Errorf("error upserting group %s: %w", g.Name, err)
		}
	}
	for _, u := range users {
		if err := d.execQuery(tx, upsertUserQuery, upsertUserArgs(u)...); err != nil {
			tx.Rollback()
			return fmt.Errorf("error upserting user %s: %w", u.Username, err)
		}
	}

	return d.CommitTransaction(tx)
}
