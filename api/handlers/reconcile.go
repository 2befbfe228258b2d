package handlers

import (
	"net/http"

	"github.com/canopy-platform/directory-services/api/services"
)

func TriggerReconcile(svc *services.Service) http.HandlerFunc {

	return func(w http.ResponseWriter, r *http.Request) {

		services.TriggerReconcileService(svc, w, r)
	}
}

func GetRuns(svc *services.Service) http.HandlerFunc {

	return func(w http.ResponseWriter, r *http.Request) {

		services.GetRunsService(svc, w, r)
	}
}

func GetRun(svc *services.Service) http.HandlerFunc {

	return func(w http.ResponseWriter, r *http.Request) {

		services.GetRunService(svc, w, r)
	}
}
