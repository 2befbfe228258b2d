// Package zoom provisions licensed Zoom accounts. Zoom has no group
// concept the roster cares about, so the group-facing methods come from
// provider.NoGroups. A recovery phone is a vendor prerequisite: Zoom uses
// it for SSO recovery, and a user without one is skipped rather than
// half-provisioned.
package zoom

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"github.com/canopy-platform/directory-services/internal/provider"
	"github.com/canopy-platform/directory-services/internal/provider/httpx"
	"github.com/canopy-platform/directory-services/models"
	"github.com/rs/zerolog/log"
)

const Name = "zoom"

const licensedUserType = 2

// Client drives the Zoom API.
type Client struct {
	provider.NoGroups
	http *httpx.Client
}

// New creates a Zoom adapter.
func New(baseURL string, tokenFunc func(ctx context.Context) (string, error)) *Client {
	return &Client{http: httpx.New(Name, baseURL, tokenFunc)}
}

func (c *Client) Name() string { return Name }

func (c *Client) Capabilities() provider.Capabilities {
	return provider.Capabilities{Groups: false, RequiresEmployee: true}
}

type zoomUser struct {
	ID        string `json:"id"`
	Email     string `json:"email"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Type      int    `json:"type"`
}

type zoomUserPage struct {
	Users         []zoomUser `json:"users"`
	NextPageToken string     `json:"next_page_token"`
}

// EnsureUser creates a licensed Zoom account or updates the profile.
func (c *Client) EnsureUser(ctx context.Context, user models.User) (string, error) {
	if user.Denies(Name) || !user.IsFullTimeEmployee() {
		return "", nil
	}
	if user.RecoveryPhone == "" {
		log.Debug().Str("user", user.Username).Msg("zoom: no recovery phone, skipping")
		return "", nil
	}

	var existing zoomUser
	err := c.http.Get(ctx, fmt.Sprintf("/v2/users/%s", url.PathEscape(user.Email)), &existing)
	if err != nil && !provider.IsNotFound(err) {
		return "", err
	}

	if err == nil {
		patch := map[string]interface{}{
			"first_name": user.FirstName,
			"last_name":  user.LastName,
			"type":       licensedUserType,
		}
		path := fmt.Sprintf("/v2/users/%s", existing.ID)
		if err := c.http.Do(ctx, http.MethodPatch, path, patch, nil); err != nil {
			return "", err
		}
		return existing.ID, nil
	}

	var created zoomUser
	body := map[string]interface{}{
		"action": "create",
		"user_info": map[string]interface{}{
			"email":      user.Email,
			"first_name": user.FirstName,
			"last_name":  user.LastName,
			"type":       licensedUserType,
		},
	}
	if err := c.http.Do(ctx, http.MethodPost, "/v2/users", body, &created); err != nil {
		return "", err
	}
	log.Info().Str("user", user.Username).Str("zoom_id", created.ID).Msg("created zoom user")
	return created.ID, nil
}

// DeleteUser removes the Zoom account. Already absent is success.
func (c *Client) DeleteUser(ctx context.Context, user models.User) error {
	path := fmt.Sprintf("/v2/users/%s?action=delete", url.PathEscape(user.Email))
	err := c.http.Do(ctx, http.MethodDelete, path, nil, nil)
	if provider.IsNotFound(err) {
		return nil
	}
	return err
}

// ListUsers enumerates all Zoom users.
func (c *Client) ListUsers(ctx context.Context) ([]models.RemoteUser, error) {
	var users []models.RemoteUser
	token := ""
	for {
		path := "/v2/users?page_size=300"
		if token != "" {
			path += "&next_page_token=" + url.QueryEscape(token)
		}
		var page zoomUserPage
		if err := c.http.Get(ctx, path, &page); err != nil {
			return nil, err
		}
		for _, u := range page.Users {
			users = append(users, models.RemoteUser{ID: u.ID, Email: u.Email})
		}
		if page.NextPageToken == "" {
			return users, nil
		}
		token = page.NextPageToken
	}
}
