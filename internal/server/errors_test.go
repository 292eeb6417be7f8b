package server

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	authdomain "github.com/trackline/trackline/internal/auth/domain"
	"github.com/trackline/trackline/internal/authorization"
	identitydomain "github.com/trackline/trackline/internal/identity/domain"
	invitedomain "github.com/trackline/trackline/internal/invite/domain"
	membershipdomain "github.com/trackline/trackline/internal/membership/domain"
	orgdomain "github.com/trackline/trackline/internal/organization/domain"
	"gorm.io/gorm"
)

func TestMapError(t *testing.T) {
	tests := []struct {
		err        error
		wantStatus int
		wantType   string
	}{
		{ErrUnauthorized, http.StatusUnauthorized, "unauthorized"},
		{authdomain.ErrInvalidCredentials, http.StatusUnauthorized, "unauthorized"},
		{authdomain.ErrSessionExpired, http.StatusUnauthorized, "unauthorized"},
		{membershipdomain.ErrNotAMember, http.StatusForbidden, "not_a_member"},
		{authorization.ErrInsufficientRole, http.StatusForbidden, "insufficient_role"},
		{membershipdomain.ErrCannotModifyOwner, http.StatusForbidden, "cannot_modify_owner"},
		{invitedomain.ErrInvalidToken, http.StatusNotFound, "invalid_token"},
		{invitedomain.ErrInviteInvalid, http.StatusNotFound, "invite_invalid"},
		{invitedomain.ErrInviteExpired, http.StatusGone, "invite_expired"},
		{invitedomain.ErrInviteRevoked, http.StatusGone, "invite_revoked"},
		{invitedomain.ErrInviteAlreadyResolved, http.StatusConflict, "invite_already_resolved"},
		{invitedomain.ErrEmailMismatch, http.StatusForbidden, "email_mismatch"},
		{invitedomain.ErrRateLimited, http.StatusTooManyRequests, "rate_limited"},
		{identitydomain.ErrUserExists, http.StatusConflict, "conflict"},
		{membershipdomain.ErrDuplicateMembership, http.StatusConflict, "conflict"},
		{orgdomain.ErrOrganizationHasWorkspaces, http.StatusConflict, "organization_has_workspaces"},
		{orgdomain.ErrOrganizationNotFound, http.StatusNotFound, "not_found"},
		{gorm.ErrRecordNotFound, http.StatusNotFound, "not_found"},
		{orgdomain.ErrInvalidName, http.StatusBadRequest, "invalid_request"},
		{errors.New("boom"), http.StatusInternalServerError, "internal_error"},
	}

	for _, tc := range tests {
		t.Run(tc.wantType+"/"+tc.err.Error(), func(t *testing.T) {
			status, payload := mapError(tc.err)
			assert.Equal(t, tc.wantStatus, status)
			assert.Equal(t, tc.wantType, payload.Type)
		})
	}

	// Wrapped errors map the same as their sentinels.
	status, payload := mapError(fmt.Errorf("creating membership: %w", membershipdomain.ErrDuplicateMembership))
	assert.Equal(t, http.StatusConflict, status)
	assert.Equal(t, "conflict", payload.Type)
}

func TestMapValidationErrors(t *testing.T) {
	err := newValidationError("email", "invalid_email", "email is not valid")
	status, payload := mapError(err)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "validation_error", payload.Type)
	assert.Len(t, payload.Errors, 1)
	assert.Equal(t, "email", payload.Errors[0].Field)
}

func TestClassifyErrorForLog(t *testing.T) {
	class, kind := classifyErrorForLog(membershipdomain.ErrNotAMember)
	assert.Equal(t, "client_error", class)
	assert.Equal(t, "not_a_member", kind)

	class, kind = classifyErrorForLog(errors.New("boom"))
	assert.Equal(t, "server_error", class)
	assert.Equal(t, "internal_error", kind)
}
