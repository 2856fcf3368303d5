package web

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/conorfennell/knolsched/internal/domain"
	"github.com/conorfennell/knolsched/internal/fsrs"
	"github.com/conorfennell/knolsched/internal/review"
)

// maxBodyBytes bounds review request bodies.
const maxBodyBytes = 1 << 16

// Reviews is the review workflow the server exposes. *review.Service
// satisfies it.
type Reviews interface {
	Submit(ctx context.Context, req review.Request) (review.Result, error)
	State(ctx context.Context, key domain.CardKey, at time.Time) (review.Snapshot, error)
	Preview(ctx context.Context, key domain.CardKey, at time.Time) (map[fsrs.Rating]fsrs.SchedulingInfo, error)
	History(ctx context.Context, key domain.CardKey) ([]domain.ReviewEntry, error)
	Reschedule(ctx context.Context, key domain.CardKey) (fsrs.CardState, error)
	Reset(ctx context.Context, key domain.CardKey) error
}

// Pinger reports whether the backing store is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Server holds the dependencies for the HTTP server.
type Server struct {
	reviews Reviews
	health  Pinger
	router  *http.ServeMux
	logger  *slog.Logger
}

// NewServer creates and configures a new server.
func NewServer(reviews Reviews, health Pinger, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		reviews: reviews,
		health:  health,
		router:  http.NewServeMux(),
		logger:  logger,
	}
	s.routes()
	return s
}

// ServeHTTP implements the http.Handler interface.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
	s.router.ServeHTTP(rec, r)
	s.logger.Debug("http request",
		"method", r.Method,
		"path", r.URL.Path,
		"status", rec.status,
		"duration", time.Since(start),
	)
}

// routes sets up the routing for the server.
func (s *Server) routes() {
	const card = "/api/users/{user}/cards/{card}"

	s.router.HandleFunc("GET /healthz", s.handleHealth())

	s.router.HandleFunc("GET "+card, s.handleGetState())
	s.router.HandleFunc("DELETE "+card, s.handleReset())
	s.router.HandleFunc("POST "+card+"/reviews", s.handlePostReview())
	s.router.HandleFunc("GET "+card+"/reviews", s.handleGetHistory())
	s.router.HandleFunc("GET "+card+"/preview", s.handleGetPreview())
	s.router.HandleFunc("POST "+card+"/reschedule", s.handlePostReschedule())
}

// reviewBody is the payload of a review submission. Rating is a grade (1-4)
// or its name; Now defaults to the server clock.
type reviewBody struct {
	Rating fsrs.Rating `json:"rating"`
	Now    *time.Time  `json:"now,omitempty"`
}

// handlePostReview records a review and returns the new state and log entry.
func (s *Server) handlePostReview() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body reviewBody
		dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&body); err != nil {
			if errors.Is(err, fsrs.ErrInvalidRating) {
				s.writeError(w, r, err)
				return
			}
			writeJSON(w, http.StatusBadRequest, errorBody{Error: "malformed request body: " + err.Error()})
			return
		}

		req := review.Request{Key: cardKey(r), Rating: body.Rating}
		if body.Now != nil {
			req.Now = *body.Now
		}
		res, err := s.reviews.Submit(r.Context(), req)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, res)
	}
}

// handleGetState returns the stored state and current retrievability.
func (s *Server) handleGetState() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		at, ok := queryTime(w, r)
		if !ok {
			return
		}
		snap, err := s.reviews.State(r.Context(), cardKey(r), at)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, snap)
	}
}

// handleGetPreview returns the outcome of each rating, keyed by rating name.
func (s *Server) handleGetPreview() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		at, ok := queryTime(w, r)
		if !ok {
			return
		}
		preview, err := s.reviews.Preview(r.Context(), cardKey(r), at)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, preview)
	}
}

// handleGetHistory returns the review history, oldest first.
func (s *Server) handleGetHistory() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		history, err := s.reviews.History(r.Context(), cardKey(r))
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		if history == nil {
			history = []domain.ReviewEntry{}
		}
		writeJSON(w, http.StatusOK, history)
	}
}

// handlePostReschedule rebuilds the state from history.
func (s *Server) handlePostReschedule() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		card, err := s.reviews.Reschedule(r.Context(), cardKey(r))
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, card)
	}
}

// handleReset forgets a card.
func (s *Server) handleReset() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := s.reviews.Reset(r.Context(), cardKey(r)); err != nil {
			s.writeError(w, r, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func (s *Server) handleHealth() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.health != nil {
			if err := s.health.Ping(r.Context()); err != nil {
				s.logger.Error("health check failed", "error", err)
				writeJSON(w, http.StatusServiceUnavailable, errorBody{Error: "database unavailable"})
				return
			}
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}

func cardKey(r *http.Request) domain.CardKey {
	return domain.CardKey{UserID: r.PathValue("user"), CardID: r.PathValue("card")}
}

// queryTime reads the optional ?at=RFC3339 parameter. On failure it has
// already written the response.
func queryTime(w http.ResponseWriter, r *http.Request) (time.Time, bool) {
	raw := r.URL.Query().Get("at")
	if raw == "" {
		return time.Time{}, true
	}
	at, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "at must be an RFC 3339 timestamp"})
		return time.Time{}, false
	}
	return at, true
}
