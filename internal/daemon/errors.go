package daemon

import (
	"errors"
	"net/http"

	"notesmith/internal/services"
	"notesmith/internal/workflow"
)

// writeServiceError maps workflow and service error markers to HTTP statuses.
func (s *apiServer) writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, workflow.ErrTaskBusy):
		s.writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, services.ErrNotFound):
		s.writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, services.ErrValidation), errors.Is(err, services.ErrConfiguration):
		s.writeError(w, http.StatusBadRequest, err.Error())
	default:
		s.writeError(w, http.StatusInternalServerError, err.Error())
	}
}
