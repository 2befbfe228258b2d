package services

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"

	"github.com/canopy-platform/directory-services/internal/authn"
	"github.com/canopy-platform/directory-services/internal/reconcile"
	"github.com/canopy-platform/directory-services/models"
)

func adminClaims() authn.Claims {
	claims := authn.Claims{Username: "admin"}
	claims.RealmAccess.Roles = []string{"directory-admin"}
	return claims
}

func TestTriggerReconcileService(t *testing.T) {

	mockRunner := new(MockRunTrigger)
	mockRunner.On("Trigger").Return(nil)

	svc := &Service{Runner: mockRunner}

	r := authedRequest(http.MethodPost, "/api/reconcile", nil, adminClaims())
	w := httptest.NewRecorder()

	TriggerReconcileService(svc, w, r)

	assert.Equal(t, http.StatusAccepted, w.Result().StatusCode)
	mockRunner.AssertExpectations(t)
}

func TestTriggerReconcileServiceForbidden(t *testing.T) {

	mockRunner := new(MockRunTrigger)
	svc := &Service{Runner: mockRunner}

	r := authedRequest(http.MethodPost, "/api/reconcile", nil, authn.Claims{Username: "alice"})
	w := httptest.NewRecorder()

	TriggerReconcileService(svc, w, r)

	assert.Equal(t, http.StatusForbidden, w.Result().StatusCode)
	mockRunner.AssertNotCalled(t, "Trigger")
}

func TestTriggerReconcileServiceConflict(t *testing.T) {

	mockRunner := new(MockRunTrigger)
	mockRunner.On("Trigger").Return(reconcile.ErrRunInProgress)

	svc := &Service{Runner: mockRunner}

	r := authedRequest(http.MethodPost, "/api/reconcile", nil, adminClaims())
	w := httptest.NewRecorder()

	TriggerReconcileService(svc, w, r)

	assert.Equal(t, http.StatusConflict, w.Result().StatusCode)
}

func TestGetRunService(t *testing.T) {

	runID := uuid.New()
	mockDB := new(MockDirectoryStore)
	mockDB.On("GetRun", runID).Return(&models.ReconcileReport{
		RunID:     runID,
		StartedAt: time.Now().UTC(),
	}, nil)

	svc := &Service{DB: mockDB}

	r := authedRequest(http.MethodGet, "/api/reconcile/runs/"+runID.String(),
		map[string]string{"run-id": runID.String()}, authn.Claims{Username: "testuser"})
	w := httptest.NewRecorder()

	GetRunService(svc, w, r)

	assert.Equal(t, http.StatusOK, w.Result().StatusCode)
}

func TestGetRunServiceBadID(t *testing.T) {

	mockDB := new(MockDirectoryStore)
	svc := &Service{DB: mockDB}

	r := authedRequest(http.MethodGet, "/api/reconcile/runs/nope",
		map[string]string{"run-id": "nope"}, authn.Claims{Username: "testuser"})
	w := httptest.NewRecorder()

	GetRunService(svc, w, r)

	assert.Equal(t, http.StatusBadRequest, w.Result().StatusCode)
	mockDB.AssertNotCalled(t, "GetRun")
}

func TestGetRunsService(t *testing.T) {

	mockDB := new(MockDirectoryStore)
	mockDB.On("GetRuns", 5).Return([]models.ReconcileReport{}, nil)

	svc := &Service{DB: mockDB}

	r := authedRequest(http.MethodGet, "/api/reconcile/runs?limit=5", nil,
		authn.Claims{Username: "testuser"})
	w := httptest.NewRecorder()

	GetRunsService(svc, w, r)

	assert.Equal(t, http.StatusOK, w.Result().StatusCode)
	mockDB.AssertExpectations(t)
}
