package handlers

import (
	"net/http"

	"github.com/canopy-platform/directory-services/api/services"
)

func GetUsers(svc *services.Service) http.HandlerFunc {

	return func(w http.ResponseWriter, r *http.Request) {

		services.GetUsersService(svc, w, r)
	}
}

func GetUser(svc *services.Service) http.HandlerFunc {

	return func(w http.ResponseWriter, r *http.Request) {

		services.GetUserService(svc, w, r)
	}
}

func GetGroups(svc *services.Service) http.HandlerFunc {

	return func(w http.ResponseWriter, r *http.Request) {

		services.GetGroupsService(svc, w, r)
	}
}

func GetGroup(svc *services.Service) http.HandlerFunc {

	return func(w http.ResponseWriter, r *http.Request) {

		services.GetGroupService(svc, w, r)
	}
}

func GetGroupMembers(svc *services.Service) http.HandlerFunc {

	return func(w http.ResponseWriter, r *http.Request) {

		services.GetGroupMembersService(svc, w, r)
	}
}
