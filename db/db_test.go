package db

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	_ "github.com/lib/pq"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/canopy-platform/directory-services/models"
)

// Helper function to setup PostgreSQL container using testcontainers
func setupPostgresContainer(t *testing.T) (*DirectoryDB, func()) {
	if os.Getenv("DOCKER_HOST") == "" {
		if _, err := os.Stat("/var/run/docker.sock"); err != nil {
			t.Skip("docker not available, skipping database tests")
		}
	}

	ctx := context.Background()
	req := testcontainers.ContainerRequest{
		Image:        "postgres:13",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_USER":     "postgres",
			"POSTGRES_PASSWORD": "postgres",
			"POSTGRES_DB":       "postgres",
		},
		WaitingFor: wait.ForListeningPort("5432/tcp"),
	}

	postgresC, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		t.Fatalf("could not start container: %s", err)
	}

	host, _ := postgresC.Host(ctx)
	port, _ := postgresC.MappedPort(ctx, "5432/tcp")

	connStr := fmt.Sprintf("postgres://postgres:postgres@%s:%s/postgres?sslmode=disable", host, port.Port())
	t.Setenv("DATABASE_URL", connStr)

	dbConn, err := sql.Open("postgres", connStr)
	if err != nil {
		t.Fatalf("failed to open db connection: %s", err)
	}

	log := zerolog.Nop()
	directoryDB := &DirectoryDB{DB: dbConn, Log: &log}
	if err := directoryDB.Migrate(); err != nil {
		t.Fatalf("failed to run migrations: %s", err)
	}

	return directoryDB, func() {
		dbConn.Close()
		postgresC.Terminate(ctx)
	}
}

func TestUserRoundTrip(t *testing.T) {
	d, cleanup := setupPostgresContainer(t)
	defer cleanup()

	user := models.User{
		Username:       "alice",
		Email:          "alice@example.com",
		FirstName:      "Alice",
		LastName:       "Nguyen",
		Department:     "Engineering",
		GitHub:         "alice-gh",
		Groups:         []string{"eng", "all"},
		DeniedServices: []string{"zoom"},
	}
	assert.NoError(t, d.UpsertRoster([]models.User{user}, nil))

	got, err := d.GetUser("alice")
	assert.NoError(t, err)
	assert.NotNil(t, got)
	assert.Equal(t, "alice@example.com", got.Email)
	assert.Equal(t, []string{"eng", "all"}, got.Groups)
	assert.Nil(t, got.WelcomedAt)

	// Upsert preserves welcomed_at across roster refreshes.
	assert.NoError(t, d.MarkWelcomed("alice", time.Now()))
	user.Department = "Operations"
	assert.NoError(t, d.UpsertRoster([]models.User{user}, nil))

	got, err = d.GetUser("alice")
	assert.NoError(t, err)
	assert.Equal(t, "Operations", got.Department)
	assert.NotNil(t, got.WelcomedAt)

	// A second MarkWelcomed leaves the original stamp in place.
	first := *got.WelcomedAt
	assert.NoError(t, d.MarkWelcomed("alice", time.Now().Add(time.Hour)))
	got, err = d.GetUser("alice")
	assert.NoError(t, err)
	assert.WithinDuration(t, first, *got.WelcomedAt, time.Second)
}

func TestExternalIDs(t *testing.T) {
	d, cleanup := setupPostgresContainer(t)
	defer cleanup()

	assert.NoError(t, d.UpsertRoster([]models.User{{Username: "bob", Email: "bob@example.com"}}, nil))
	assert.NoError(t, d.SetExternalID("bob", "okta", "00u123"))
	assert.NoError(t, d.SetExternalID("bob", "okta", "00u456"))
	assert.NoError(t, d.SetExternalID("bob", "ramp", "ramp-1"))

	got, err := d.GetUser("bob")
	assert.NoError(t, err)
	assert.Equal(t, "00u456", got.ExternalIDs["okta"])
	assert.Equal(t, "ramp-1", got.ExternalIDs["ramp"])

	// External IDs cascade with the user row.
	assert.NoError(t, d.DeleteUser("bob"))
	var count int
	err = d.DB.QueryRow(`SELECT COUNT(*) FROM external_ids WHERE username = 'bob'`).Scan(&count)
	assert.NoError(t, err)
	assert.Zero(t, count)
}

func TestUpsertRosterAtomicity(t *testing.T) {
	d, cleanup := setupPostgresContainer(t)
	defer cleanup()

	// Two usernames sharing an email violate the unique constraint on the
	// second insert; the whole batch must roll back, groups included.
	err := d.UpsertRoster(
		[]models.User{
			{Username: "alice", Email: "shared@example.com"},
			{Username: "bob", Email: "shared@example.com"},
		},
		[]models.Group{{Name: "eng"}})
	assert.Error(t, err)

	got, err := d.GetUser("alice")
	assert.NoError(t, err)
	assert.Nil(t, got)

	group, err := d.GetGroup("eng")
	assert.NoError(t, err)
	assert.Nil(t, group)
}

func TestRemovedUsersAndGroups(t *testing.T) {
	d, cleanup := setupPostgresContainer(t)
	defer cleanup()

	assert.NoError(t, d.UpsertRoster(
		[]models.User{
			{Username: "alice", Email: "alice@example.com"},
			{Username: "bob", Email: "bob@example.com"},
		},
		[]models.Group{{Name: "eng"}, {Name: "ops"}}))

	removed, err := d.RemovedUsers([]string{"alice"})
	assert.NoError(t, err)
	assert.Len(t, removed, 1)
	assert.Equal(t, "bob", removed[0].Username)

	removedGroups, err := d.RemovedGroups([]string{"eng"})
	assert.NoError(t, err)
	assert.Len(t, removedGroups, 1)
	assert.Equal(t, "ops", removedGroups[0].Name)
}

func TestRunReports(t *testing.T) {
	d, cleanup := setupPostgresContainer(t)
	defer cleanup()

	runID := uuid.New()
	started := time.Now().UTC().Truncate(time.Second)
	assert.NoError(t, d.StartRun(runID, started))

	// Unfinished runs carry no report yet.
	got, err := d.GetRun(runID)
	assert.NoError(t, err)
	assert.Nil(t, got)

	report := &models.ReconcileReport{
		RunID:     runID,
		StartedAt: started,
		EndedAt:   started.Add(time.Minute),
		Providers: []*models.ProviderReport{
			{Provider: "github", UsersEnsured: 3, MembershipsAdded: 2},
		},
	}
	assert.NoError(t, d.FinishRun(report))

	got, err = d.GetRun(runID)
	assert.NoError(t, err)
	assert.NotNil(t, got)
	assert.Len(t, got.Providers, 1)
	assert.Equal(t, 3, got.Providers[0].UsersEnsured)

	reports, err := d.GetRuns(10)
	assert.NoError(t, err)
	assert.Len(t, reports, 1)

	assert.NoError(t, d.RecordEvent(runID, "github", "alice", "user.ensured", "login alice-gh"))
	var count int
	err = d.DB.QueryRow(`SELECT COUNT(*) FROM reconcile_events WHERE run_id = $1`, runID).Scan(&count)
	assert.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestRunLock(t *testing.T) {
	d, cleanup := setupPostgresContainer(t)
	defer cleanup()

	ctx := context.Background()

	// Advisory locks are session scoped, so contend from a second connection.
	other, err := sql.Open("postgres", os.Getenv("DATABASE_URL"))
	assert.NoError(t, err)
	defer other.Close()
	log := zerolog.Nop()
	second := &DirectoryDB{DB: other, Log: &log}

	// Pin each pool to one session.
	d.DB.SetMaxOpenConns(1)
	other.SetMaxOpenConns(1)

	acquired, err := d.AcquireRunLock(ctx)
	assert.NoError(t, err)
	assert.True(t, acquired)

	acquired, err = second.AcquireRunLock(ctx)
	assert.NoError(t, err)
	assert.False(t, acquired)

	assert.NoError(t, d.ReleaseRunLock(ctx))

	acquired, err = second.AcquireRunLock(ctx)
	assert.NoError(t, err)
	assert.True(t, acquired)
	assert.NoError(t, second.ReleaseRunLock(ctx))
}
