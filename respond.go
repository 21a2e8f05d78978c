package studiocms

import (
	"errors"
	"net/http"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/eringen/studiocms/backend"
)

// apiError is a handler failure that renders as a JSON body with an HTTP
// status. Body always carries an "error" message.
type apiError struct {
	Status int
	Body   map[string]any
	Err    error
}

func (e *apiError) Error() string {
	msg, _ := e.Body["error"].(string)
	return msg
}

func (e *apiError) Unwrap() error { return e.Err }

func newAPIError(status int, msg string) *apiError {
	return &apiError{Status: status, Body: map[string]any{"error": msg}}
}

func badRequest(msg string) *apiError {
	return newAPIError(http.StatusBadRequest, msg)
}

func unauthorized(msg string, cause error) *apiError {
	e := newAPIError(http.StatusUnauthorized, msg)
	e.Err = cause
	return e
}

func resourceNotFound(resource string) *apiError {
	return newAPIError(http.StatusNotFound, resource+" not found")
}

func routeError(status int, msg, path, method string) *apiError {
	e := newAPIError(status, msg)
	e.Body["path"] = path
	e.Body["method"] = method
	return e
}

// internalError exposes the downstream message to the caller.
func internalError(err error) *apiError {
	e := newAPIError(http.StatusInternalServerError, err.Error())
	e.Err = err
	return e
}

// invalidFields turns ozzo validation errors into a 400. Internal validator
// failures become a 500.
func invalidFields(err error) error {
	var errs validation.Errors
	if !errors.As(err, &errs) {
		return internalError(err)
	}
	e := badRequest("Validation failed")
	e.Body["fields"] = errs
	e.Err = err
	return e
}

// lookupError maps a failed single-row read. A table that does not exist yet
// reads as not found.
func lookupError(err error, resource string) error {
	if errors.Is(err, backend.ErrNotFound) || errors.Is(err, backend.ErrMissingTable) {
		return resourceNotFound(resource)
	}
	return internalError(err)
}

// writeError maps a failed insert, update or delete.
func writeError(err error, resource string) error {
	if errors.Is(err, backend.ErrNotFound) {
		return resourceNotFound(resource)
	}
	return internalError(err)
}
