package handler

import (
	"errors"
	"net/http"

	"github.com/edvin/wafgate/internal/api/response"
	"github.com/edvin/wafgate/internal/core"
)

// writeServiceError maps a service error onto an HTTP response. Configuration
// failures deliberately answer with a generic message so engine diagnostics
// never reach the caller.
func writeServiceError(w http.ResponseWriter, err error) {
	var (
		validationErr *core.ValidationError
		conflictErr   *core.ConflictError
		notFoundErr   *core.NotFoundError
		exhaustedErr  *core.ResourceExhaustedError
		configErr     *core.ConfigurationError
	)

	switch {
	case errors.As(err, &validationErr):
		response.WriteError(w, http.StatusBadRequest, validationErr.Reason)
	case errors.As(err, &exhaustedErr):
		response.WriteError(w, http.StatusBadRequest, exhaustedErr.Reason)
	case errors.As(err, &conflictErr):
		response.WriteError(w, http.StatusConflict, conflictErr.Reason)
	case errors.As(err, &notFoundErr):
		response.WriteError(w, http.StatusNotFound, notFoundErr.Error())
	case errors.As(err, &configErr):
		response.WriteError(w, http.StatusBadRequest, "configuration could not be applied")
	default:
		response.WriteError(w, http.StatusInternalServerError, err.Error())
	}
}
