package services

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"

	"github.com/canopy-platform/directory-services/api/middleware"
	"github.com/canopy-platform/directory-services/internal/authn"
	"github.com/canopy-platform/directory-services/models"
)

// GetUsersService retrieves the roster view of every user.
func GetUsersService(svc *Service, w http.ResponseWriter, r *http.Request) {

	logger := zerolog.Ctx(r.Context())

	if _, ok := r.Context().Value(middleware.ClaimsKey).(authn.Claims); !ok {
		logger.Warn().Msg("Unauthorized request: missing claims")
		WriteResponse(w, http.StatusUnauthorized, nil)
		return
	}

	users, err := svc.DB.GetUsers()
	if err != nil {
		logger.Error().Err(err).Msg("Database error retrieving users")
		WriteResponse(w, http.StatusInternalServerError, nil)
		return
	}
	if users == nil {
		users = []models.User{}
	}

	logger.Info().Int("user_count", len(users)).Msg("Successfully retrieved users")
	WriteResponse(w, http.StatusOK, users)
}

// GetUserService retrieves one user by username.
func GetUserService(svc *Service, w http.ResponseWriter, r *http.Request) {

	logger := zerolog.Ctx(r.Context())

	if _, ok := r.Context().Value(middleware.ClaimsKey).(authn.Claims); !ok {
		logger.Warn().Msg("Unauthorized request: missing claims")
		WriteResponse(w, http.StatusUnauthorized, nil)
		return
	}

	username := mux.Vars(r)["username"]
	user, err := svc.DB.GetUser(username)
	if err != nil {
		logger.Error().Err(err).Str("username", username).Msg("Database error retrieving user")
		WriteResponse(w, http.StatusInternalServerError, nil)
		return
	}
	if user == nil {
		WriteResponse(w, http.StatusNotFound, "User does not exist.")
		return
	}

	WriteResponse(w, http.StatusOK, *user)
}
