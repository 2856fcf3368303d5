package web

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/conorfennell/knolsched/internal/fsrs"
	"github.com/conorfennell/knolsched/internal/review"
)

type errorBody struct {
	Error string `json:"error"`
}

// writeError maps engine and service errors to HTTP statuses. Unexpected
// errors are logged and reported without detail.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	var status int
	switch {
	case errors.Is(err, fsrs.ErrInvalidRating), errors.Is(err, review.ErrInvalidRequest):
		status = http.StatusBadRequest
	case errors.Is(err, review.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, fsrs.ErrInvalidState):
		status = http.StatusUnprocessableEntity
	default:
		s.logger.Error("request failed", "method", r.Method, "path", r.URL.Path, "error", err)
		writeJSON(w, http.StatusInternalServerError, errorBody{Error: "internal server error"})
		return
	}
	writeJSON(w, status, errorBody{Error: err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// statusRecorder captures the status code for request logging.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}
