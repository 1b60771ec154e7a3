package api

import (
	"errors"
	"net/http"

	"sensorgrid/internal/domain"
)

// httpStatusFromDomainError maps domain errors to HTTP status codes.
func httpStatusFromDomainError(err error) int {
	var validation *domain.ValidationError
	var duplicate *domain.DuplicateError
	var authz *domain.AuthorizationError
	var notFound *domain.NotFoundError
	var sync *domain.SyncError

	switch {
	case errors.As(err, &validation):
		return http.StatusBadRequest
	case errors.As(err, &duplicate):
		return http.StatusConflict
	case errors.As(err, &authz):
		return http.StatusForbidden
	case errors.As(err, &notFound):
		return http.StatusNotFound
	case errors.As(err, &sync):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
