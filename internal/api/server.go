package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/JakeFAU/archive-debouncer/internal/archive"
	"github.com/JakeFAU/archive-debouncer/internal/debounce"
	"github.com/JakeFAU/archive-debouncer/internal/metrics"
)

// PasswordHeader carries the shared archive password.
const PasswordHeader = "X-Password"

const archivePrefix = "/archive/"

// Submitter accepts archive submissions.
type Submitter interface {
	Submit(target, credential string) (archive.Submission, error)
	Pending() bool
}

// EventLog is the line store rendered on the status page.
type EventLog interface {
	archive.Recorder
	Snapshot() []string
}

// Server wires HTTP handlers to the debouncer and event log.
type Server struct {
	router    chi.Router
	submitter Submitter
	events    EventLog
	logger    *zap.Logger
}

// NewServer constructs a Server with middleware and routes.
func NewServer(submitter Submitter, events EventLog, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		submitter: submitter,
		events:    events,
		logger:    logger,
	}
	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(loggingMiddleware(logger))
	r.Use(recoverMiddleware(logger))
	r.Use(metrics.Middleware)
	r.Use(timeoutMiddleware(30 * time.Second))

	r.Get("/", s.statusPage)
	r.Get("/index.html", s.statusPage)
	r.Get("/archive/*", s.submitArchive)
	r.Get("/healthz", s.healthz)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	s.router = r
	return s
}

// Handler returns the Router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"pending": s.submitter.Pending(),
	})
}

func (s *Server) submitArchive(w http.ResponseWriter, r *http.Request) {
	target := targetFromPath(r.URL)
	if target == "" {
		http.NotFound(w, r)
		return
	}
	s.events.Appendf("Incoming archive request for URL: %s", target)

	_, err := s.submitter.Submit(target, r.Header.Get(PasswordHeader))
	switch {
	case err == nil:
		s.writeText(w, http.StatusAccepted, fmt.Sprintf(
			"Archive request for %s accepted. Archiving will start after %s if no newer request is received.\n",
			target, debounce.HumanDuration(debounce.GracePeriod),
		))
	case errors.Is(err, debounce.ErrMisconfigured):
		metrics.ObserveRejectedSubmission("misconfigured")
		s.writeText(w, http.StatusInternalServerError, "Server configuration error.")
	case errors.Is(err, debounce.ErrUnauthorized):
		metrics.ObserveRejectedSubmission("unauthorized")
		s.writeText(w, http.StatusUnauthorized, "Unauthorized: Password mismatch.")
	case errors.Is(err, debounce.ErrClosed):
		metrics.ObserveRejectedSubmission("closed")
		s.writeText(w, http.StatusServiceUnavailable, "Server is shutting down.")
	default:
		metrics.ObserveRejectedSubmission("internal")
		s.logger.Error("submit failed",
			zap.String("request_id", RequestIDFromContext(r.Context())),
			zap.String("target", target),
			zap.Error(err),
		)
		s.writeText(w, http.StatusInternalServerError, "Internal server error.")
	}
}

// targetFromPath extracts the archive target from the escaped request path
// and percent-decodes it. Undecodable input is returned as received.
func targetFromPath(u *url.URL) string {
	escaped := strings.TrimPrefix(u.EscapedPath(), archivePrefix)
	if escaped == u.EscapedPath() {
		return ""
	}
	return decodeTarget(escaped)
}

func decodeTarget(escaped string) string {
	decoded, err := url.PathUnescape(escaped)
	if err != nil {
		return escaped
	}
	return decoded
}

func (s *Server) writeText(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(status)
	if _, err := w.Write([]byte(body)); err != nil {
		s.logger.Warn("write response failed", zap.Error(err))
	}
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Warn("write JSON failed", zap.Error(err))
	}
}
