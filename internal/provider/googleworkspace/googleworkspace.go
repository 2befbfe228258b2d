// Package googleworkspace reconciles Google Workspace users, groups and
// group memberships through the Admin SDK Directory API.
package googleworkspace

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	admin "google.golang.org/api/admin/directory/v1"
	"google.golang.org/api/googleapi"

	"github.com/canopy-platform/directory-services/internal/provider"
	"github.com/canopy-platform/directory-services/models"
)

const Name = "googleworkspace"

// Client drives the Admin SDK Directory API for one Workspace domain.
type Client struct {
	domain string
	svc    *admin.Service
}

// New wraps an already-authenticated Directory service. The service must be
// built with domain-wide delegation for an admin subject; scopes:
// admin.directory.user, admin.directory.group, admin.directory.group.member.
func New(domain string, svc *admin.Service) *Client {
	return &Client{domain: domain, svc: svc}
}

func (c *Client) Name() string { return Name }

func (c *Client) Capabilities() provider.Capabilities {
	return provider.Capabilities{Groups: true}
}

// EnsureUser creates the Workspace account or updates the profile fields
// the roster owns. Returns the Google user ID.
func (c *Client) EnsureUser(ctx context.Context, user models.User) (string, error) {
	if user.Denies(Name) {
		return "", nil
	}

	email := user.Email
	existing, err := c.svc.Users.Get(email).Context(ctx).Do()
	if err != nil && !isNotFound(err) {
		return "", c.wrap("get user "+email, err)
	}

	if existing != nil {
		existing.Name = &admin.UserName{GivenName: user.FirstName, FamilyName: user.LastName}
		existing.RecoveryEmail = user.RecoveryEmail
		existing.RecoveryPhone = user.RecoveryPhone
		updated, err := c.svc.Users.Update(existing.Id, existing).Context(ctx).Do()
		if err != nil {
			return "", c.wrap("update user "+email, err)
		}
		return updated.Id, nil
	}

	// New account. The generated password is throwaway; the welcome email
	// walks the user through the reset flow.
	created, err := c.svc.Users.Insert(&admin.User{
		PrimaryEmail:              email,
		Name:                      &admin.UserName{GivenName: user.FirstName, FamilyName: user.LastName},
		Password:                  uuid.NewString(),
		ChangePasswordAtNextLogin: true,
		RecoveryEmail:             user.RecoveryEmail,
		RecoveryPhone:             user.RecoveryPhone,
	}).Context(ctx).Do()
	if err != nil {
		return "", c.wrap("insert user "+email, err)
	}
	log.Info().Str("user", user.Username).Str("google_id", created.Id).
		Msg("created google workspace user")
	return created.Id, nil
}

// DeleteUser removes the Workspace account. Already absent is success.
func (c *Client) DeleteUser(ctx context.Context, user models.User) error {
	err := c.svc.Users.Delete(user.Email).Context(ctx).Do()
	if err != nil && !isNotFound(err) {
		return c.wrap("delete user "+user.Email, err)
	}
	return nil
}

// ListUsers enumerates every user in the domain.
func (c *Client) ListUsers(ctx context.Context) ([]models.RemoteUser, error) {
	var users []models.RemoteUser
	call := c.svc.Users.List().Domain(c.domain).MaxResults(500)
	err := call.Pages(ctx, func(page *admin.Users) error {
		for _, u := range page.Users {
			users = append(users, models.RemoteUser{ID: u.Id, Email: u.PrimaryEmail})
		}
		return nil
	})
	if err != nil {
		return nil, c.wrap("list users", err)
	}
	return users, nil
}

// EnsureGroup creates or updates the group and converges its aliases.
func (c *Client) EnsureGroup(ctx context.Context, group models.Group) error {
	email := c.groupEmail(group.Name)

	existing, err := c.svc.Groups.Get(email).Context(ctx).Do()
	if err != nil && !isNotFound(err) {
		return c.wrap("get group "+email, err)
	}

	if existing == nil {
		existing, err = c.svc.Groups.Insert(&admin.Group{
			Email:       email,
			Name:        group.Name,
			Description: group.Description,
		}).Context(ctx).Do()
		if err != nil {
			return c.wrap("insert group "+email, err)
		}
	} else if existing.Description != group.Description || existing.Name != group.Name {
		existing.Name = group.Name
		existing.Description = group.Description
		if _, err := c.svc.Groups.Update(existing.Id, existing).Context(ctx).Do(); err != nil {
			return c.wrap("update group "+email, err)
		}
	}

	// Converge aliases. Inserting an existing alias conflicts; that is the
	// converged state, not a failure.
	for _, alias := range group.Aliases {
		aliasEmail := c.groupEmail(alias)
		_, err := c.svc.Groups.Aliases.Insert(existing.Id, &admin.Alias{Alias: aliasEmail}).Context(ctx).Do()
		if err != nil && !isConflict(err) {
			return c.wrap("insert alias "+aliasEmail, err)
		}
	}
	return nil
}

// DeleteGroup removes the group. Already absent is success.
func (c *Client) DeleteGroup(ctx context.Context, group models.Group) error {
	err := c.svc.Groups.Delete(c.groupEmail(group.Name)).Context(ctx).Do()
	if err != nil && !isNotFound(err) {
		return c.wrap("delete group "+group.Name, err)
	}
	return nil
}

// ListGroups enumerates every group in the domain. Names are reported as
// the local part of the group address so they match roster group names.
func (c *Client) ListGroups(ctx context.Context) ([]models.RemoteGroup, error) {
	var groups []models.RemoteGroup
	call := c.svc.Groups.List().Domain(c.domain).MaxResults(200)
	err := call.Pages(ctx, func(page *admin.Groups) error {
		for _, g := range page.Groups {
			groups = append(groups, models.RemoteGroup{
				ID:   g.Id,
				Name: strings.SplitN(g.Email, "@", 2)[0],
			})
		}
		return nil
	})
	if err != nil {
		return nil, c.wrap("list groups", err)
	}
	return groups, nil
}

// CheckMembership reports whether the user is in the group with the role
// the roster asks for (group admins are Google group OWNERs).
func (c *Client) CheckMembership(ctx context.Context, user models.User, group string) (bool, error) {
	member, err := c.svc.Members.Get(c.groupEmail(group), user.Email).Context(ctx).Do()
	if isNotFound(err) {
		return false, nil
	}
	if err != nil {
		return false, c.wrap(fmt.Sprintf("get member %s of %s", user.Email, group), err)
	}
	return member.Role == c.memberRole(user), nil
}

// AddMembership inserts the membership, or patches the role in place when
// the user is already a member with the wrong role.
func (c *Client) AddMembership(ctx context.Context, user models.User, group string) error {
	groupKey := c.groupEmail(group)
	member := &admin.Member{Email: user.Email, Role: c.memberRole(user)}

	_, err := c.svc.Members.Insert(groupKey, member).Context(ctx).Do()
	if isConflict(err) {
		_, err = c.svc.Members.Update(groupKey, user.Email, member).Context(ctx).Do()
	}
	if err != nil {
		return c.wrap(fmt.Sprintf("add member %s to %s", user.Email, group), err)
	}
	return nil
}

// RemoveMembership deletes the membership. Already absent is success.
func (c *Client) RemoveMembership(ctx context.Context, user models.User, group string) error {
	err := c.svc.Members.Delete(c.groupEmail(group), user.Email).Context(ctx).Do()
	if err != nil && !isNotFound(err) {
		return c.wrap(fmt.Sprintf("remove member %s from %s", user.Email, group), err)
	}
	return nil
}

func (c *Client) groupEmail(name string) string {
	return fmt.Sprintf("%s@%s", name, c.domain)
}

func (c *Client) memberRole(user models.User) string {
	if user.IsGroupAdmin {
		return "OWNER"
	}
	return "MEMBER"
}

// wrap converts a googleapi error into the provider error taxonomy.
func (c *Client) wrap(op string, err error) error {
	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		return &provider.Error{
			Kind:     provider.KindFromStatus(gerr.Code),
			Provider: Name,
			Op:       op,
			Status:   gerr.Code,
			Message:  gerr.Message,
		}
	}
	return &provider.Error{Kind: provider.KindTransient, Provider: Name, Op: op, Message: err.Error()}
}

func isNotFound(err error) bool {
	var gerr *googleapi.Error
	return errors.As(err, &gerr) && gerr.Code == 404
}

func isConflict(err error) bool {
	var gerr *googleapi.Error
	return errors.As(err, &gerr) && (gerr.Code == 409 || gerr.Code == 412)
}
