package services

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/rs/zerolog"

	"github.com/canopy-platform/directory-services/api/middleware"
	"github.com/canopy-platform/directory-services/internal/authn"
	"github.com/canopy-platform/directory-services/internal/reconcile"
	"github.com/canopy-platform/directory-services/models"
)

const defaultRunsLimit = 20

// TriggerReconcileService starts a reconciliation pass in the background.
// Restricted to directory admins; returns 409 when a pass is already
// running.
func TriggerReconcileService(svc *Service, w http.ResponseWriter, r *http.Request) {

	logger := zerolog.Ctx(r.Context())

	claims, ok := r.Context().Value(middleware.ClaimsKey).(authn.Claims)
	if !ok {
		logger.Warn().Msg("Unauthorized request: missing claims")
		WriteResponse(w, http.StatusUnauthorized, nil)
		return
	}
	if !claims.IsDirectoryAdmin() {
		logger.Warn().Str("user", claims.Username).Msg("Access denied: not a directory admin")
		WriteResponse(w, http.StatusForbidden, nil)
		return
	}

	if err := svc.Runner.Trigger(); err != nil {
		if errors.Is(err, reconcile.ErrRunInProgress) {
			WriteResponse(w, http.StatusConflict, models.Response{
				Success:   0,
				ErrorCode: "run_in_progress",
			})
			return
		}
		logger.Error().Err(err).Msg("Failed to trigger reconciliation run")
		WriteResponse(w, http.StatusInternalServerError, nil)
		return
	}

	logger.Info().Str("user", claims.Username).Msg("Reconciliation run triggered")
	WriteResponse(w, http.StatusAccepted, models.Response{Success: 1})
}

// GetRunsService retrieves recent run reports, newest first.
func GetRunsService(svc *Service, w http.ResponseWriter, r *http.Request) {

	logger := zerolog.Ctx(r.Context())

	if _, ok := r.Context().Value(middleware.ClaimsKey).(authn.Claims); !ok {
		logger.Warn().Msg("Unauthorized request: missing claims")
		WriteResponse(w, http.StatusUnauthorized, nil)
		return
	}

	limit := defaultRunsLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}

	runs, err := svc.DB.GetRuns(limit)
	if err != nil {
		logger.Error().Err(err).Msg("Database error retrieving runs")
		WriteResponse(w, http.StatusInternalServerError, nil)
		return
	}
	if runs == nil {
		runs = []models.ReconcileReport{}
	}

	WriteResponse(w, http.StatusOK, runs)
}

// GetRunService retrieves one run report by ID.
func GetRunService(svc *Service, w http.ResponseWriter, r *http.Request) {

	logger := zerolog.Ctx(r.Context())

	if _, ok := r.Context().Value(middleware.ClaimsKey).(authn.Claims); !ok {
		logger.Warn().Msg("Unauthorized request: missing claims")
		WriteResponse(w, http.StatusUnauthorized, nil)
		return
	}

	runID, err := uuid.Parse(mux.Vars(r)["run-id"])
	if err != nil {
		WriteResponse(w, http.StatusBadRequest, "Invalid run ID.")
		return
	}

	run, err := svc.DB.GetRun(runID)
	if err != nil {
		logger.Error().Err(err).Str("run_id", runID.String()).Msg("Database error retrieving run")
		WriteResponse(w, http.StatusInternalServerError, nil)
		return
	}
	if run == nil {
		WriteResponse(w, http.StatusNotFound, "Run does not exist.")
		return
	}

	WriteResponse(w, http.StatusOK, *run)
}
