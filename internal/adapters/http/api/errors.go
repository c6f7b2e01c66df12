package api

import (
	"context"
	"errors"
	"net/http"

	service "github.com/okian/songsort/internal/app"
)

// Sentinel kinds for API errors.
var (
	ErrBadRequest   = errors.New("bad request")
	ErrBodyTooLarge = errors.New("request body too large")
	ErrMissingOwner = errors.New("missing " + OwnerHeader + " header")
	ErrInvalidOwner = errors.New("invalid " + OwnerHeader + " header")
)

// statusFor returns the HTTP status and error code for err.
func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, ErrBodyTooLarge):
		return http.StatusRequestEntityTooLarge, "body_too_large"
	case errors.Is(err, ErrBadRequest),
		errors.Is(err, service.ErrInvalidOutcome),
		errors.Is(err, service.ErrInvalidImport),
		errors.Is(err, service.ErrUnknownGroup):
		return http.StatusBadRequest, "bad_request"
	case errors.Is(err, service.ErrNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, service.ErrTooFewItems):
		return http.StatusUnprocessableEntity, "too_few_items"
	case errors.Is(err, service.ErrPartialUpdate):
		return http.StatusConflict, "partial_update"
	case errors.Is(err, service.ErrStore):
		return http.StatusServiceUnavailable, "store_unavailable"
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, "timeout"
	}
	return http.StatusInternalServerError, "internal"
}
