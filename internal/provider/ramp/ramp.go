// Package ramp provisions users on the Ramp expense platform. Ramp has no
// group concept, so the group-facing methods come from provider.NoGroups
// and never issue a network call. Ramp accounts are employee-only.
package ramp

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

const Name = "ramp"

// Client drives the Ramp developer API.
type Client struct {
	provider.NoGroups
	http *httpx.Client
}

// New creates a Ramp adapter.
func New(baseURL string, tokenFunc func(ctx context.Context) (string, error)) *Client {
	return &Client{http: httpx.New(Name, baseURL, tokenFunc)}
}

func (c *Client) Name() string { return Name }

func (c *Client) Capabilities() provider.Capabilities {
	return provider.Capabilities{Groups: false, RequiresEmployee: true}
}

type rampUser struct {
	ID        string `json:"id"`
	Email     string `json:"email"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Status    string `json:"status"`
}

type rampDepartment struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type rampPage[T any] struct {
	Data []T `json:"data"`
	Page struct {
		Next string `json:"next"`
	} `json:"page"`
}

// EnsureUser invites the user to Ramp, resolving their department first.
// Consultants and system accounts never get Ramp accounts.
func (c *Client) EnsureUser(ctx context.Context, user models.User) (string, error) {
	if user.Denies(Name) || !user.IsFullTimeEmployee() {
		return "", nil
	}

	existing, err := c.findUser(ctx, user.Email)
	if err != nil {
		return "", err
	}
	if existing != nil {
		return existing.ID, nil
	}

	invite := map[string]interface{}{
		"email":      user.Email,
		"first_name": user.FirstName,
		"last_name":  user.LastName,
		"phone":      user.RecoveryPhone,
		"role":       "BUSINESS_USER",
	}
	if user.Department != "" {
		deptID, err := c.resolveDepartment(ctx, user.Department)
		if err != nil {
			return "", err
		}
		if deptID != "" {
			invite["department_id"] = deptID
		}
	}

	var created rampUser
	if err := c.http.Do(ctx, http.MethodPost, "/developer/v1/users/deferred", invite, &created); err != nil {
		if provider.IsConflict(err) {
			// Raced with an earlier invite; converge via lookup.
			if existing, lookupErr := c.findUser(ctx, user.Email); lookupErr == nil && existing != nil {
				return existing.ID, nil
			}
		}
		return "", err
	}
	log.Info().Str("user", user.Username).Str("ramp_id", created.ID).Msg("invited ramp user")
	return created.ID, nil
}

// DeleteUser suspends the Ramp account. Already absent is success.
func (c *Client) DeleteUser(ctx context.Context, user models.User) error {
	existing, err := c.findUser(ctx, user.Email)
	if err != nil {
		return err
	}
	if existing == nil || existing.Status == "USER_SUSPENDED" {
		return nil
	}
	path := fmt.Sprintf("/developer/v1/users/%s/deactivate", existing.ID)
	err = c.http.Do(ctx, http.MethodPost, path, nil, nil)
	if provider.IsNotFound(err) {
		return nil
	}
	return err
}

// ListUsers enumerates all Ramp users.
func (c *Client) ListUsers(ctx context.Context) ([]models.RemoteUser, error) {
	var users []models.RemoteUser
	next := "/developer/v1/users?page_size=100"
	for next != "" {
		var page rampPage[rampUser]
		if err := c.http.Get(ctx, next, &page); err != nil {
			return nil, err
		}
		for _, u := range page.Data {
			users = append(users, models.RemoteUser{ID: u.ID, Email: u.Email})
		}
		next = page.Page.Next
	}
	return users, nil
}

func (c *Client) findUser(ctx context.Context, email string) (*rampUser, error) {
	var page rampPage[rampUser]
	path := fmt.Sprintf("/developer/v1/users?email=%s", url.QueryEscape(email))
	if err := c.http.Get(ctx, path, &page); err != nil {
		return nil, err
	}
	if len(page.Data) == 0 {
		return nil, nil
	}
	return &page.Data[0], nil
}

// resolveDepartment maps a department name to its Ramp ID, or "" when Ramp
// has no matching department.
func (c *Client) resolveDepartment(ctx context.Context, name string) (string, error) {
	var page rampPage[rampDepartment]
	if err := c.http.Get(ctx, "/developer/v1/departments", &page); err != nil {
		return "", err
	}
	for _, d := range page.Data {
		if d.Name == name {
			return d.ID, nil
		}
	}
	return "", nil
}
