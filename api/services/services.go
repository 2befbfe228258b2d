package services

import (
	"github.com/google/uuid"

	"github.com/canopy-platform/directory-services/internal/appconfig"
	"github.com/canopy-platform/directory-services/models"
)

// DirectoryStore is the read surface of the database the API serves.
type DirectoryStore interface {
	GetUsers() ([]models.User, error)
	GetUser(username string) (*models.User, error)
	GetGroups() ([]models.Group, error)
	GetGroup(name string) (*models.Group, error)
	GetRuns(limit int) ([]models.ReconcileReport, error)
	GetRun(runID uuid.UUID) (*models.ReconcileReport, error)
}

// RunTrigger starts a reconciliation pass in the background.
type RunTrigger interface {
	Trigger() error
}

// Service contains all shared dependencies for handlers.
type Service struct {
	Config *appconfig.Config
	DB     DirectoryStore
	Runner RunTrigger
}
