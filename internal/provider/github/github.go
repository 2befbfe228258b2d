// Package github reconciles GitHub organization membership and teams.
// Users are keyed by their GitHub login, not email; a roster user without a
// login cannot be provisioned and is skipped.
package github

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"

	"github.com/canopy-platform/directory-services/internal/provider"
	"github.com/canopy-platform/directory-services/internal/provider/httpx"
	"github.com/canopy-platform/directory-services/models"
	"github.com/rs/zerolog/log"
)

const Name = "github"

// Client drives the GitHub REST API for one organization.
type Client struct {
	org  string
	http *httpx.Client
}

// New creates a GitHub adapter for the given organization.
func New(org, baseURL string, tokenFunc func(ctx context.Context) (string, error)) *Client {
	c := httpx.New(Name, baseURL, tokenFunc)
	c.Headers = map[string]string{
		"Accept":               "application/vnd.github+json",
		"X-GitHub-Api-Version": "2022-11-28",
	}
	return &Client{org: org, http: c}
}

func (c *Client) Name() string { return Name }

func (c *Client) Capabilities() provider.Capabilities {
	return provider.Capabilities{Groups: true}
}

type orgMembership struct {
	Role string `json:"role"`
}

type teamMembership struct {
	Role  string `json:"role"`
	State string `json:"state"`
}

type team struct {
	ID          int    `json:"id"`
	Slug        string `json:"slug"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

type simpleUser struct {
	ID    int    `json:"id"`
	Login string `json:"login"`
}

// EnsureUser adds the user to the organization or updates their role in
// place. GitHub assigns no useful stable ID at this point, so the login is
// returned as the external ID.
func (c *Client) EnsureUser(ctx context.Context, user models.User) (string, error) {
	if user.Denies(Name) {
		return "", nil
	}
	if user.GitHub == "" {
		log.Debug().Str("user", user.Username).Msg("github: no login configured, skipping")
		return "", nil
	}

	role := "member"
	if user.IsGroupAdmin {
		role = "admin"
	}

	path := fmt.Sprintf("/orgs/%s/memberships/%s", c.org, url.PathEscape(user.GitHub))
	if err := c.http.Do(ctx, http.MethodPut, path, orgMembership{Role: role}, nil); err != nil {
		return "", err
	}
	return user.GitHub, nil
}

// DeleteUser removes the user from the organization, which also removes
// them from every team. An already-absent user is success.
func (c *Client) DeleteUser(ctx context.Context, user models.User) error {
	if user.GitHub == "" {
		return nil
	}
	path := fmt.Sprintf("/orgs/%s/members/%s", c.org, url.PathEscape(user.GitHub))
	err := c.http.Do(ctx, http.MethodDelete, path, nil, nil)
	if provider.IsNotFound(err) {
		return nil
	}
	return err
}

// ListUsers enumerates all organization members.
func (c *Client) ListUsers(ctx context.Context) ([]models.RemoteUser, error) {
	var users []models.RemoteUser
	path := fmt.Sprintf("/orgs/%s/members?per_page=100", c.org)
	err := c.http.GetPaginated(ctx, path, func(body []byte) error {
		var page []simpleUser
		if err := json.Unmarshal(body, &page); err != nil {
			return fmt.Errorf("failed to decode members page: %w", err)
		}
		for _, u := range page {
			users = append(users, models.RemoteUser{
				ID:    fmt.Sprintf("%d", u.ID),
				Login: u.Login,
			})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return users, nil
}

// EnsureGroup creates the team, or updates its description when it already
// exists, then grants it the roster's repositories.
func (c *Client) EnsureGroup(ctx context.Context, group models.Group) error {
	create := map[string]interface{}{
		"name":        group.Name,
		"description": group.Description,
		"privacy":     "closed",
		"repo_names":  group.Repos,
	}
	err := c.http.Do(ctx, http.MethodPost, fmt.Sprintf("/orgs/%s/teams", c.org), create, nil)
	if provider.IsConflict(err) {
		patch := map[string]interface{}{
			"name":        group.Name,
			"description": group.Description,
		}
		path := fmt.Sprintf("/orgs/%s/teams/%s", c.org, url.PathEscape(group.Name))
		if err := c.http.Do(ctx, http.MethodPatch, path, patch, nil); err != nil {
			return err
		}
		for _, repo := range group.Repos {
			repoPath := fmt.Sprintf("/orgs/%s/teams/%s/repos/%s/%s",
				c.org, url.PathEscape(group.Name), c.org, url.PathEscape(repo))
			if err := c.http.Do(ctx, http.MethodPut, repoPath,
				map[string]string{"permission": "push"}, nil); err != nil {
				return err
			}
		}
		return nil
	}
	return err
}

// DeleteGroup deletes the team. Already absent is success.
func (c *Client) DeleteGroup(ctx context.Context, group models.Group) error {
	path := fmt.Sprintf("/orgs/%s/teams/%s", c.org, url.PathEscape(group.Name))
	err := c.http.Do(ctx, http.MethodDelete, path, nil, nil)
	if provider.IsNotFound(err) {
		return nil
	}
	return err
}

// ListGroups enumerates all teams in the organization.
func (c *Client) ListGroups(ctx context.Context) ([]models.RemoteGroup, error) {
	var groups []models.RemoteGroup
	path := fmt.Sprintf("/orgs/%s/teams?per_page=100", c.org)
	err := c.http.GetPaginated(ctx, path, func(body []byte) error {
		var page []team
		if err := json.Unmarshal(body, &page); err != nil {
			return fmt.Errorf("failed to decode teams page: %w", err)
		}
		for _, t := range page {
			groups = append(groups, models.RemoteGroup{
				ID:   fmt.Sprintf("%d", t.ID),
				Name: t.Slug,
			})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return groups, nil
}

// CheckMembership reports whether the user holds the team role the roster
// asks for. Not found means absent; a member with the wrong role reports
// false so AddMembership updates the role in place.
func (c *Client) CheckMembership(ctx context.Context, user models.User, group string) (bool, error) {
	if user.GitHub == "" {
		return false, nil
	}

	var membership teamMembership
	path := fmt.Sprintf("/orgs/%s/teams/%s/memberships/%s",
		c.org, url.PathEscape(group), url.PathEscape(user.GitHub))
	err := c.http.Get(ctx, path, &membership)
	if provider.IsNotFound(err) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("checking membership of %s in team %s: %w", user.GitHub, group, err)
	}
	return membership.Role == c.teamRole(user), nil
}

// AddMembership adds the user to the team, or fixes their role in place.
func (c *Client) AddMembership(ctx context.Context, user models.User, group string) error {
	path := fmt.Sprintf("/orgs/%s/teams/%s/memberships/%s",
		c.org, url.PathEscape(group), url.PathEscape(user.GitHub))
	return c.http.Do(ctx, http.MethodPut, path, teamMembership{Role: c.teamRole(user)}, nil)
}

// RemoveMembership removes the user from the team. Already absent is success.
func (c *Client) RemoveMembership(ctx context.Context, user models.User, group string) error {
	path := fmt.Sprintf("/orgs/%s/teams/%s/memberships/%s",
		c.org, url.PathEscape(group), url.PathEscape(user.GitHub))
	err := c.http.Do(ctx, http.MethodDelete, path, nil, nil)
	if provider.IsNotFound(err) {
		return nil
	}
	return err
}

func (c *Client) teamRole(user models.User) string {
	if user.IsGroupAdmin {
		return "maintainer"
	}
	return "member"
}
