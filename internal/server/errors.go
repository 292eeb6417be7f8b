package server

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	auditdomain "github.com/trackline/trackline/internal/audit/domain"
	authdomain "github.com/trackline/trackline/internal/auth/domain"
	"github.com/trackline/trackline/internal/authorization"
	identitydomain "github.com/trackline/trackline/internal/identity/domain"
	invitedomain "github.com/trackline/trackline/internal/invite/domain"
	membershipdomain "github.com/trackline/trackline/internal/membership/domain"
	orgdomain "github.com/trackline/trackline/internal/organization/domain"
	workspacedomain "github.com/trackline/trackline/internal/workspace/domain"
	"gorm.io/gorm"
)

type ValidationError struct {
	Field   string `json:"field"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

type ValidationErrors struct {
	Errors []ValidationError `json:"errors"`
}

func (v ValidationErrors) Error() string {
	return "validation error"
}

type errorPayload struct {
	Type    string            `json:"type"`
	Message string            `json:"message"`
	Errors  []ValidationError `json:"errors,omitempty"`
}

type errorResponse struct {
	Error errorPayload `json:"error"`
}

var (
	ErrUnauthorized = errors.New("unauthorized")
	ErrForbidden    = errors.New("forbidden")
	ErrInternal     = errors.New("internal_error")
	ErrNotFound     = errors.New("not_found")
)

// ErrorHandlingMiddleware turns the last gin error into a JSON error
// response when no handler has written one.
func ErrorHandlingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if c.Writer.Written() {
			return
		}

		lastErr := c.Errors.Last()
		if lastErr == nil {
			return
		}

		status, payload := mapError(lastErr.Err)
		c.Header("Content-Type", "application/json")
		c.AbortWithStatusJSON(status, errorResponse{Error: payload})
	}
}

func AbortWithError(c *gin.Context, err error) {
	if err == nil {
		return
	}
	_ = c.Error(err)
	c.Abort()
}

func invalidRequestError() error {
	return newValidationError("request", "invalid_request", "invalid request")
}

func newValidationError(field, code, message string) error {
	return &ValidationErrors{
		Errors: []ValidationError{
			{
				Field:   field,
				Code:    code,
				Message: message,
			},
		},
	}
}

func asValidationErrors(err error) *ValidationErrors {
	var vErrs *ValidationErrors
	if errors.As(err, &vErrs) {
		return vErrs
	}
	var vErr ValidationErrors
	if errors.As(err, &vErr) {
		return &vErr
	}
	return nil
}

func mapError(err error) (int, errorPayload) {
	if err == nil {
		return http.StatusInternalServerError, errorPayload{
			Type:    "internal_error",
			Message: "internal server error",
		}
	}

	if vErr := asValidationErrors(err); vErr != nil {
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Message: "validation error",
			Errors:  vErr.Errors,
		}
	}

	switch {
	case errors.Is(err, ErrUnauthorized),
		errors.Is(err, authdomain.ErrInvalidCredentials),
		errors.Is(err, authdomain.ErrInvalidSession),
		errors.Is(err, authdomain.ErrSessionExpired),
		errors.Is(err, authdomain.ErrSessionRevoked):
		return http.StatusUnauthorized, errorPayload{
			Type:    "unauthorized",
			Message: "unauthorized",
		}

	case errors.Is(err, membershipdomain.ErrNotAMember):
		return http.StatusForbidden, errorPayload{
			Type:    "not_a_member",
			Message: "not a member of this resource",
		}
	case errors.Is(err, authorization.ErrInsufficientRole):
		return http.StatusForbidden, errorPayload{
			Type:    "insufficient_role",
			Message: "role does not permit this action",
		}
	case errors.Is(err, membershipdomain.ErrCannotModifyOwner):
		return http.StatusForbidden, errorPayload{
			Type:    "cannot_modify_owner",
			Message: "the owner cannot be modified this way",
		}
	case errors.Is(err, ErrForbidden):
		return http.StatusForbidden, errorPayload{
			Type:    "forbidden",
			Message: "forbidden",
		}

	case errors.Is(err, invitedomain.ErrInvalidToken):
		return http.StatusNotFound, errorPayload{
			Type:    "invalid_token",
			Message: "invite token is not recognized",
		}
	case errors.Is(err, invitedomain.ErrInviteExpired):
		return http.StatusGone, errorPayload{
			Type:    "invite_expired",
			Message: "invite has expired",
		}
	case errors.Is(err, invitedomain.ErrInviteRevoked):
		return http.StatusGone, errorPayload{
			Type:    "invite_revoked",
			Message: "invite was revoked",
		}
	case errors.Is(err, invitedomain.ErrInviteAlreadyResolved):
		return http.StatusConflict, errorPayload{
			Type:    "invite_already_resolved",
			Message: "invite was already accepted or declined",
		}
	case errors.Is(err, invitedomain.ErrEmailMismatch):
		return http.StatusForbidden, errorPayload{
			Type:    "email_mismatch",
			Message: "invite was issued to a different email address",
		}
	case errors.Is(err, invitedomain.ErrInviteInvalid):
		return http.StatusNotFound, errorPayload{
			Type:    "invite_invalid",
			Message: "invite is invalid",
		}

	case errors.Is(err, membershipdomain.ErrDuplicateMembership),
		errors.Is(err, identitydomain.ErrUserExists),
		errors.Is(err, orgdomain.ErrSlugTaken),
		errors.Is(err, workspacedomain.ErrSlugTaken):
		return http.StatusConflict, errorPayload{
			Type:    "conflict",
			Message: "conflict",
		}
	case errors.Is(err, orgdomain.ErrOrganizationHasWorkspaces):
		return http.StatusConflict, errorPayload{
			Type:    "organization_has_workspaces",
			Message: "organization still has workspaces",
		}

	case errors.Is(err, invitedomain.ErrRateLimited):
		return http.StatusTooManyRequests, errorPayload{
			Type:    "rate_limited",
			Message: "too many invites, retry later",
		}

	case errors.Is(err, authdomain.ErrInvalidRequest),
		errors.Is(err, orgdomain.ErrInvalidName),
		errors.Is(err, orgdomain.ErrInvalidOrganization),
		errors.Is(err, workspacedomain.ErrInvalidName),
		errors.Is(err, workspacedomain.ErrInvalidWorkspace),
		errors.Is(err, membershipdomain.ErrInvalidRole),
		errors.Is(err, invitedomain.ErrInvalidRole),
		errors.Is(err, invitedomain.ErrInvalidEmail),
		errors.Is(err, auditdomain.ErrInvalidOrganization),
		errors.Is(err, auditdomain.ErrInvalidPageToken),
		errors.Is(err, auditdomain.ErrInvalidTimeRange),
		errors.Is(err, auditdomain.ErrInvalidAction):
		return http.StatusBadRequest, errorPayload{
			Type:    "invalid_request",
			Message: err.Error(),
		}

	case isNotFoundError(err):
		return http.StatusNotFound, errorPayload{
			Type:    "not_found",
			Message: "not found",
		}
	}

	return http.StatusInternalServerError, errorPayload{
		Type:    "internal_error",
		Message: "internal server error",
	}
}

func isNotFoundError(err error) bool {
	return errors.Is(err, ErrNotFound) ||
		errors.Is(err, gorm.ErrRecordNotFound) ||
		errors.Is(err, identitydomain.ErrUserNotFound) ||
		errors.Is(err, orgdomain.ErrOrganizationNotFound) ||
		errors.Is(err, workspacedomain.ErrWorkspaceNotFound) ||
		errors.Is(err, workspacedomain.ErrProjectNotFound) ||
		errors.Is(err, membershipdomain.ErrMemberNotFound) ||
		errors.Is(err, invitedomain.ErrInviteNotFound)
}

// classifyErrorForLog buckets an error for the request log without leaking
// internals into log cardinality.
func classifyErrorForLog(err error) (string, string) {
	if err == nil {
		return "", ""
	}
	status, payload := mapError(err)
	switch {
	case status >= http.StatusInternalServerError:
		return "server_error", payload.Type
	case status >= http.StatusBadRequest:
		return "client_error", payload.Type
	default:
		return "", ""
	}
}
