package provider

import (
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/canopy-platform/directory-services/models"
)

func TestNoGroupsLaws(t *testing.T) {
	// No group support means every group operation succeeds without doing
	// anything, so the driver can run its generic loop over any provider.
	var ng NoGroups
	ctx := context.Background()
	user := models.User{Username: "alice"}

	assert.NoError(t, ng.EnsureGroup(ctx, models.Group{Name: "eng"}))
	assert.NoError(t, ng.DeleteGroup(ctx, models.Group{Name: "eng"}))
	assert.NoError(t, ng.AddMembership(ctx, user, "eng"))
	assert.NoError(t, ng.RemoveMembership(ctx, user, "eng"))

	member, err := ng.CheckMembership(ctx, user, "eng")
	assert.NoError(t, err)
	assert.False(t, member)

	groups, err := ng.ListGroups(ctx)
	assert.NoError(t, err)
	assert.Empty(t, groups)
}

func TestKindFromStatus(t *testing.T) {
	assert.Equal(t, KindNotFound, KindFromStatus(http.StatusNotFound))
	assert.Equal(t, KindNotFound, KindFromStatus(http.StatusGone))
	assert.Equal(t, KindConflict, KindFromStatus(http.StatusConflict))
	assert.Equal(t, KindConflict, KindFromStatus(http.StatusUnprocessableEntity))
	assert.Equal(t, KindRateLimited, KindFromStatus(http.StatusTooManyRequests))
	assert.Equal(t, KindUnauthorized, KindFromStatus(http.StatusUnauthorized))
	assert.Equal(t, KindTransient, KindFromStatus(http.StatusBadGateway))
	assert.Equal(t, KindOther, KindFromStatus(http.StatusBadRequest))
}

func TestErrorPredicates(t *testing.T) {
	notFound := &Error{Kind: KindNotFound, Provider: "github", Op: "get user"}
	assert.True(t, IsNotFound(notFound))
	assert.False(t, IsConflict(notFound))
	assert.False(t, IsRetryable(notFound))

	assert.True(t, IsConflict(&Error{Kind: KindConflict}))
	assert.True(t, IsRetryable(&Error{Kind: KindRateLimited}))
	assert.True(t, IsRetryable(&Error{Kind: KindTransient}))

	// A plain error carries no kind.
	assert.False(t, IsNotFound(assert.AnError))
	assert.False(t, IsRetryable(assert.AnError))
}

func TestCapabilitiesReserved(t *testing.T) {
	caps := Capabilities{Groups: true, ReservedGroups: []string{"Everyone"}}
	assert.True(t, caps.Reserved("Everyone"))
	assert.False(t, caps.Reserved("eng"))
}
