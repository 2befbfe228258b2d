package github

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/canopy-platform/directory-services/models"
)

func staticToken(token string) func(ctx context.Context) (string, error) {
	return func(ctx context.Context) (string, error) { return token, nil }
}

func TestEnsureUserSetsOrgRole(t *testing.T) {
	var gotPath, gotRole, gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.Method + " " + r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		var body map[string]string
		json.NewDecoder(r.Body).Decode(&body)
		gotRole = body["role"]
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := New("acme", srv.URL, staticToken("tok"))

	id, err := c.EnsureUser(context.Background(), models.User{
		Username: "alice", GitHub: "alice-gh", IsGroupAdmin: true,
	})
	assert.NoError(t, err)
	assert.Equal(t, "alice-gh", id)
	assert.Equal(t, "PUT /orgs/acme/memberships/alice-gh", gotPath)
	assert.Equal(t, "admin", gotRole)
	assert.Equal(t, "Bearer tok", gotAuth)
}

func TestEnsureUserSkipsDeniedAndMissingLogin(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("no request expected for a skipped user")
	}))
	defer srv.Close()

	c := New("acme", srv.URL, staticToken("tok"))

	id, err := c.EnsureUser(context.Background(), models.User{
		Username: "bob", GitHub: "bob-gh", DeniedServices: []string{"github"},
	})
	assert.NoError(t, err)
	assert.Empty(t, id)

	id, err = c.EnsureUser(context.Background(), models.User{Username: "carol"})
	assert.NoError(t, err)
	assert.Empty(t, id)
}

func TestCheckMembershipNotFoundMeansAbsent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"message":"Not Found"}`, http.StatusNotFound)
	}))
	defer srv.Close()

	c := New("acme", srv.URL, staticToken("tok"))

	member, err := c.CheckMembership(context.Background(),
		models.User{Username: "alice", GitHub: "alice-gh"}, "eng")
	assert.NoError(t, err)
	assert.False(t, member)
}

func TestCheckMembershipWrongRoleReportsFalse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{"role": "member", "state": "active"})
	}))
	defer srv.Close()

	c := New("acme", srv.URL, staticToken("tok"))

	// Roster wants a maintainer; remote has plain member.
	member, err := c.CheckMembership(context.Background(),
		models.User{Username: "alice", GitHub: "alice-gh", IsGroupAdmin: true}, "eng")
	assert.NoError(t, err)
	assert.False(t, member)

	member, err = c.CheckMembership(context.Background(),
		models.User{Username: "alice", GitHub: "alice-gh"}, "eng")
	assert.NoError(t, err)
	assert.True(t, member)
}

func TestDeleteUserToleratesAbsent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"message":"Not Found"}`, http.StatusNotFound)
	}))
	defer srv.Close()

	c := New("acme", srv.URL, staticToken("tok"))

	err := c.DeleteUser(context.Background(), models.User{Username: "alice", GitHub: "alice-gh"})
	assert.NoError(t, err)
}

func TestEnsureGroupConflictFallsThroughToUpdate(t *testing.T) {
	var patched bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodPost:
			http.Error(w, `{"message":"Name must be unique"}`, http.StatusUnprocessableEntity)
		case r.Method == http.MethodPatch:
			patched = true
			w.WriteHeader(http.StatusOK)
		case r.Method == http.MethodPut:
			w.WriteHeader(http.StatusNoContent)
		default:
			t.Fatalf("unexpected request %s %s", r.Method, r.URL.Path)
		}
	}))
	defer srv.Close()

	c := New("acme", srv.URL, staticToken("tok"))

	err := c.EnsureGroup(context.Background(), models.Group{
		Name: "eng", Description: "Engineering", Repos: []string{"api"},
	})
	assert.NoError(t, err)
	assert.True(t, patched, "existing team must be updated, not failed")
}

func TestListUsersFollowsLinkHeader(t *testing.T) {
	var srvURL string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("page") == "2" {
			json.NewEncoder(w).Encode([]map[string]interface{}{{"id": 2, "login": "bob-gh"}})
			return
		}
		w.Header().Set("Link", fmt.Sprintf(`<%s/orgs/acme/members?per_page=100&page=2>; rel="next"`, srvURL))
		json.NewEncoder(w).Encode([]map[string]interface{}{{"id": 1, "login": "alice-gh"}})
	}))
	defer srv.Close()
	srvURL = srv.URL

	c := New("acme", srv.URL, staticToken("tok"))

	users, err := c.ListUsers(context.Background())
	assert.NoError(t, err)
	assert.Len(t, users, 2)
	assert.Equal(t, "alice-gh", users[0].Login)
	assert.Equal(t, "bob-gh", users[1].Login)
}
