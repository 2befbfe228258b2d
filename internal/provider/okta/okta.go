// Package okta reconciles Okta users, groups and memberships. Okta manages
// a built-in "Everyone" group itself; it is reported as a reserved group
// and never written to.
package okta

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"sync"

	"github.com/canopy-platform/directory-services/internal/provider"
	"github.com/canopy-platform/directory-services/internal/provider/httpx"
	"github.com/canopy-platform/directory-services/models"
	"github.com/rs/zerolog/log"
)

const Name = "okta"

// Client drives the Okta management API for one org.
type Client struct {
	http *httpx.Client

	mu       sync.Mutex
	groupIDs map[string]string
}

// New creates an Okta adapter. tokenFunc must return an Okta API token;
// it is sent with the SSWS scheme.
func New(baseURL string, tokenFunc func(ctx context.Context) (string, error)) *Client {
	c := httpx.New(Name, baseURL, tokenFunc)
	c.AuthScheme = "SSWS"
	return &Client{http: c, groupIDs: make(map[string]string)}
}

func (c *Client) Name() string { return Name }

func (c *Client) Capabilities() provider.Capabilities {
	return provider.Capabilities{Groups: true, ReservedGroups: []string{"Everyone"}}
}

type oktaProfile struct {
	FirstName   string `json:"firstName"`
	LastName    string `json:"lastName"`
	Email       string `json:"email"`
	Login       string `json:"login"`
	MobilePhone string `json:"mobilePhone,omitempty"`
}

type oktaUser struct {
	ID      string      `json:"id"`
	Status  string      `json:"status"`
	Profile oktaProfile `json:"profile"`
}

type oktaGroupProfile struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

type oktaGroup struct {
	ID      string           `json:"id"`
	Type    string           `json:"type"`
	Profile oktaGroupProfile `json:"profile"`
}

// EnsureUser creates and activates the user, or updates the profile in
// place. Returns the Okta user ID.
func (c *Client) EnsureUser(ctx context.Context, user models.User) (string, error) {
	if user.Denies(Name) {
		return "", nil
	}

	profile := oktaProfile{
		FirstName:   user.FirstName,
		LastName:    user.LastName,
		Email:       user.Email,
		Login:       user.Email,
		MobilePhone: user.RecoveryPhone,
	}

	existing, err := c.getUser(ctx, user.Email)
	if err != nil && !provider.IsNotFound(err) {
		return "", err
	}

	if existing != nil {
		var updated oktaUser
		path := fmt.Sprintf("/api/v1/users/%s", existing.ID)
		body := map[string]interface{}{"profile": profile}
		if err := c.http.Do(ctx, http.MethodPost, path, body, &updated); err != nil {
			return "", err
		}
		return updated.ID, nil
	}

	var created oktaUser
	body := map[string]interface{}{"profile": profile}
	if err := c.http.Do(ctx, http.MethodPost, "/api/v1/users?activate=true", body, &created); err != nil {
		return "", err
	}
	log.Info().Str("user", user.Username).Str("okta_id", created.ID).Msg("created okta user")
	return created.ID, nil
}

// DeleteUser deprovisions the user. Okta requires deactivation before
// deletion; both steps tolerate an already-absent user.
func (c *Client) DeleteUser(ctx context.Context, user models.User) error {
	existing, err := c.getUser(ctx, user.Email)
	if provider.IsNotFound(err) {
		return nil
	}
	if err != nil {
		return err
	}

	if existing.Status != "DEPROVISIONED" {
		path := fmt.Sprintf("/api/v1/users/%s/lifecycle/deactivate", existing.ID)
		if err := c.http.Do(ctx, http.MethodPost, path, nil, nil); err != nil && !provider.IsNotFound(err) {
			return err
		}
	}

	err = c.http.Do(ctx, http.MethodDelete, fmt.Sprintf("/api/v1/users/%s", existing.ID), nil, nil)
	if provider.IsNotFound(err) {
		return nil
	}
	return err
}

// ListUsers enumerates all users in the org.
func (c *Client) ListUsers(ctx context.Context) ([]models.RemoteUser, error) {
	var users []models.RemoteUser
	err := c.http.GetPaginated(ctx, "/api/v1/users?limit=200", func(body []byte) error {
		var page []oktaUser
		if err := json.Unmarshal(body, &page); err != nil {
			return fmt.Errorf("failed to decode users page: %w", err)
		}
		for _, u := range page {
			users = append(users, models.RemoteUser{ID: u.ID, Email: u.Profile.Email})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return users, nil
}

// EnsureGroup creates the group or updates its description.
func (c *Client) EnsureGroup(ctx context.Context, group models.Group) error {
	profile := map[string]interface{}{
		"profile": oktaGroupProfile{Name: group.Name, Description: group.Description},
	}

	id, err := c.resolveGroup(ctx, group.Name)
	if err != nil && !provider.IsNotFound(err) {
		return err
	}

	if id != "" {
		return c.http.Do(ctx, http.MethodPut, fmt.Sprintf("/api/v1/groups/%s", id), profile, nil)
	}

	var created oktaGroup
	if err := c.http.Do(ctx, http.MethodPost, "/api/v1/groups", profile, &created); err != nil {
		if provider.IsConflict(err) {
			return nil
		}
		return err
	}
	c.cacheGroup(group.Name, created.ID)
	return nil
}

// DeleteGroup removes the group. Already absent is success.
func (c *Client) DeleteGroup(ctx context.Context, group models.Group) error {
	id, err := c.resolveGroup(ctx, group.Name)
	if provider.IsNotFound(err) {
		return nil
	}
	if err != nil {
		return err
	}
	err = c.http.Do(ctx, http.MethodDelete, fmt.Sprintf("/api/v1/groups/%s", id), nil, nil)
	if provider.IsNotFound(err) {
		return nil
	}
	return err
}

// ListGroups enumerates user-managed groups. Built-in groups (type
// BUILT_IN, e.g. Everyone) are excluded; the driver must never prune them.
func (c *Client) ListGroups(ctx context.Context) ([]models.RemoteGroup, error) {
	var groups []models.RemoteGroup
	err := c.http.GetPaginated(ctx, "/api/v1/groups?limit=200", func(body []byte) error {
		var page []oktaGroup
		if err := json.Unmarshal(body, &page); err != nil {
			return fmt.Errorf("failed to decode groups page: %w", err)
		}
		for _, g := range page {
			if g.Type == "BUILT_IN" {
				continue
			}
			c.cacheGroup(g.Profile.Name, g.ID)
			groups = append(groups, models.RemoteGroup{ID: g.ID, Name: g.Profile.Name})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return groups, nil
}

// CheckMembership reports whether the user is in the group. Okta
// memberships carry no role, so presence is the whole check.
func (c *Client) CheckMembership(ctx context.Context, user models.User, group string) (bool, error) {
	userID, groupID, err := c.resolvePair(ctx, user, group)
	if provider.IsNotFound(err) {
		return false, nil
	}
	if err != nil {
		return false, err
	}

	var userGroups []oktaGroup
	if err := c.http.Get(ctx, fmt.Sprintf("/api/v1/users/%s/groups", userID), &userGroups); err != nil {
		return false, err
	}
	for _, g := range userGroups {
		if g.ID == groupID {
			return true, nil
		}
	}
	return false, nil
}

// AddMembership adds the user to the group.
func (c *Client) AddMembership(ctx context.Context, user models.User, group string) error {
	userID, groupID, err := c.resolvePair(ctx, user, group)
	if err != nil {
		return err
	}
	return c.http.Do(ctx, http.MethodPut,
		fmt.Sprintf("/api/v1/groups/%s/users/%s", groupID, userID), nil, nil)
}

// RemoveMembership removes the user from the group. Already absent is success.
func (c *Client) RemoveMembership(ctx context.Context, user models.User, group string) error {
	userID, groupID, err := c.resolvePair(ctx, user, group)
	if provider.IsNotFound(err) {
		return nil
	}
	if err != nil {
		return err
	}
	err = c.http.Do(ctx, http.MethodDelete,
		fmt.Sprintf("/api/v1/groups/%s/users/%s", groupID, userID), nil, nil)
	if provider.IsNotFound(err) {
		return nil
	}
	return err
}

func (c *Client) getUser(ctx context.Context, email string) (*oktaUser, error) {
	var u oktaUser
	if err := c.http.Get(ctx, fmt.Sprintf("/api/v1/users/%s", url.PathEscape(email)), &u); err != nil {
		return nil, err
	}
	return &u, nil
}

// resolveGroup maps a group name to its Okta ID, caching hits for the
// lifetime of the client (one reconciliation pass).
func (c *Client) resolveGroup(ctx context.Context, name string) (string, error) {
	c.mu.Lock()
	if id, ok := c.groupIDs[name]; ok {
		c.mu.Unlock()
		return id, nil
	}
	c.mu.Unlock()

	var matches []oktaGroup
	path := fmt.Sprintf("/api/v1/groups?q=%s&limit=20", url.QueryEscape(name))
	if err := c.http.Get(ctx, path, &matches); err != nil {
		return "", err
	}
	for _, g := range matches {
		if g.Profile.Name == name {
			c.cacheGroup(name, g.ID)
			return g.ID, nil
		}
	}
	return "", &provider.Error{Kind: provider.KindNotFound, Provider: Name,
		Op: "resolve group", Message: fmt.Sprintf("group %q not found", name)}
}

func (c *Client) resolvePair(ctx context.Context, user models.User, group string) (string, string, error) {
	u, err := c.getUser(ctx, user.Email)
	if err != nil {
		return "", "", err
	}
	groupID, err := c.resolveGroup(ctx, group)
	if err != nil {
		return "", "", err
	}
	return u.ID, groupID, nil
}

func (c *Client) cacheGroup(name, id string) {
	c.mu.Lock()
	c.groupIDs[name] = id
	c.mu.Unlock()
}
