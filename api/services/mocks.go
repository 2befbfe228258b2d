package services

import (
	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"

	"github.com/canopy-platform/directory-services/models"
)

// MockDirectoryStore is a mock implementation of the DirectoryStore interface
type MockDirectoryStore struct {
	mock.Mock
}

func (m *MockDirectoryStore) GetUsers() ([]models.User, error) {
	args := m.Called()
	return args.Get(0).([]models.User), args.Error(1)
}

func (m *MockDirectoryStore) GetUser(username string) (*models.User, error) {
	args := m.Called(username)
	return args.Get(0).(*models.User), args.Error(1)
}

func (m *MockDirectoryStore) GetGroups() ([]models.Group, error) {
	args := m.Called()
	return args.Get(0).([]models.Group), args.Error(1)
}

func (m *MockDirectoryStore) GetGroup(name string) (*models.Group, error) {
	args := m.Called(name)
	return args.Get(0).(*models.Group), args.Error(1)
}

func (m *MockDirectoryStore) GetRuns(limit int) ([]models.ReconcileReport, error) {
	args := m.Called(limit)
	return args.Get(0).([]models.ReconcileReport), args.Error(1)
}

func (m *MockDirectoryStore) GetRun(runID uuid.UUID) (*models.ReconcileReport, error) {
	args := m.Called(runID)
	return args.Get(0).(*models.ReconcileReport), args.Error(1)
}

// MockRunTrigger is a mock implementation of the RunTrigger interface
type MockRunTrigger struct {
	mock.Mock
}

func (m *MockRunTrigger) Trigger() error {
	args := m.Called()
	return args.Error(0)
}
