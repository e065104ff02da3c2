package api

import (
	"errors"
	"net/http"

	"hive-staking/internal/model"
)

type httpError struct {
	cause  error
	status int
}

func (e *httpError) Error() string {
	return e.cause.Error()
}

func (e *httpError) Unwrap() error {
	return e.cause
}

func badRequest(cause error) error {
	return &httpError{cause: cause, status: http.StatusBadRequest}
}

// statusOf maps engine errors to HTTP status codes.
func statusOf(err error) int {
	var he *httpError
	switch {
	case errors.As(err, &he):
		return he.status
	case errors.Is(err, model.ErrUnauthorized):
		return http.StatusForbidden
	case errors.Is(err, model.ErrNotFound), errors.Is(err, model.ErrIndexOutOfRange):
		return http.StatusNotFound
	case errors.Is(err, model.ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, model.ErrExternalCallFailed):
		return http.StatusBadGateway
	case errors.Is(err, model.ErrLockupActive),
		errors.Is(err, model.ErrNothingToClaim),
		errors.Is(err, model.ErrNothingToDistribute),
		errors.Is(err, model.ErrInsufficientPool),
		errors.Is(err, model.ErrDistributionNotDue),
		errors.Is(err, model.ErrItemAlreadyStaked),
		errors.Is(err, model.ErrOwnershipMismatch),
		errors.Is(err, model.ErrUnknownRequest):
		return http.StatusConflict
	}
	return http.StatusInternalServerError
}
