package services

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"

	"github.com/canopy-platform/directory-services/api/middleware"
	"github.com/canopy-platform/directory-services/internal/authn"
	"github.com/canopy-platform/directory-services/models"
)

// GetGroupsService retrieves the roster view of every group.
func GetGroupsService(svc *Service, w http.ResponseWriter, r *http.Request) {

	logger := zerolog.Ctx(r.Context())

	if _, ok := r.Context().Value(middleware.ClaimsKey).(authn.Claims); !ok {
		logger.Warn().Msg("Unauthorized request: missing claims")
		WriteResponse(w, http.StatusUnauthorized, nil)
		return
	}

	groups, err := svc.DB.GetGroups()
	if err != nil {
		logger.Error().Err(err).Msg("Database error retrieving groups")
		WriteResponse(w, http.StatusInternalServerError, nil)
		return
	}
	if groups == nil {
		groups = []models.Group{}
	}

	WriteResponse(w, http.StatusOK, groups)
}

// GetGroupService retrieves one group by name.
func GetGroupService(svc *Service, w http.ResponseWriter, r *http.Request) {

	logger := zerolog.Ctx(r.Context())

	if _, ok := r.Context().Value(middleware.ClaimsKey).(authn.Claims); !ok {
		logger.Warn().Msg("Unauthorized request: missing claims")
		WriteResponse(w, http.StatusUnauthorized, nil)
		return
	}

	name := mux.Vars(r)["group-name"]
	group, err := svc.DB.GetGroup(name)
	if err != nil {
		logger.Error().Err(err).Str("group", name).Msg("Database error retrieving group")
		WriteResponse(w, http.StatusInternalServerError, nil)
		return
	}
	if group == nil {
		WriteResponse(w, http.StatusNotFound, "Group does not exist.")
		return
	}

	WriteResponse(w, http.StatusOK, *group)
}

// GetGroupMembersService retrieves the users the roster places in a group.
func GetGroupMembersService(svc *Service, w http.ResponseWriter, r *http.Request) {

	logger := zerolog.Ctx(r.Context())

	if _, ok := r.Context().Value(middleware.ClaimsKey).(authn.Claims); !ok {
		logger.Warn().Msg("Unauthorized request: missing claims")
		WriteResponse(w, http.StatusUnauthorized, nil)
		return
	}

	name := mux.Vars(r)["group-name"]
	group, err := svc.DB.GetGroup(name)
	if err != nil {
		logger.Error().Err(err).Str("group", name).Msg("Database error retrieving group")
		WriteResponse(w, http.StatusInternalServerError, nil)
		return
	}
	if group == nil {
		WriteResponse(w, http.StatusNotFound, "Group does not exist.")
		return
	}

	users, err := svc.DB.GetUsers()
	if err != nil {
		logger.Error().Err(err).Msg("Database error retrieving users")
		WriteResponse(w, http.StatusInternalServerError, nil)
		return
	}

	members := []models.User{}
	for _, u := range users {
		if u.InGroup(name) {
			members = append(members, u)
		}
	}

	WriteResponse(w, http.StatusOK, members)
}
