package api

import (
	"errors"
	"net/http"

	"github.com/dmitrijs2005/authkeeper/internal/common"
)

// statusForError maps service errors to an HTTP status and a stable
// machine-readable message. Unrecognized errors become an opaque 500 so
// internal details never leak to clients.
func statusForError(err error) (int, string) {
	switch {
	case errors.Is(err, common.ErrorUserAlreadyExists):
		return http.StatusConflict, "user already exists"
	case errors.Is(err, common.ErrorTooManyNewcomersWithSameEmail):
		return http.StatusConflict, "too many pending registrations for this email"
	case errors.Is(err, common.ErrorTooManyChangeSameEmailRequests):
		return http.StatusConflict, "too many pending requests for this email"
	case errors.Is(err, common.ErrorTokenNotFound):
		return http.StatusNotFound, "token not found or expired"
	case errors.Is(err, common.ErrorUserNotExists):
		return http.StatusNotFound, "user not found"
	case errors.Is(err, common.ErrorInvalidCredentials):
		return http.StatusForbidden, "invalid credentials"
	case errors.Is(err, common.ErrorPasswordInvalid):
		return http.StatusForbidden, "invalid password"
	case errors.Is(err, common.ErrorWeakPassword):
		return http.StatusUnprocessableEntity, "password is too weak"
	default:
		return http.StatusInternalServerError, "internal error"
	}
}
