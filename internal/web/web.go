package web

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	ical "github.com/arran4/golang-ical"
	"github.com/google/uuid"

	"remindcal/internal/config"
	"remindcal/internal/ics"
	appLog "remindcal/internal/log"
	"remindcal/internal/metrics"
	"remindcal/internal/remind"
)

// maxBody bounds uploaded calendars.
const maxBody = 1 << 20

// Store is the reminder collection served over HTTP.
type Store interface {
	Files(ctx context.Context) ([]string, error)
	IDs(ctx context.Context, file string) ([]string, error)
	Get(ctx context.Context, file, uid string) (*ical.Calendar, string, error)
	All(ctx context.Context, file string) (*ical.Calendar, error)
	Append(ctx context.Context, cal *ical.Calendar, file string) (string, error)
	Remove(ctx context.Context, uid, file string) error
	Replace(ctx context.Context, uid string, cal *ical.Calendar, file string) (string, error)
	Move(ctx context.Context, uid, from, to string) error
}

// Server provides the HTTP API over a reminder collection.
type Server struct {
	cfg     *config.Config
	store   Store
	metrics *metrics.Metrics
	mux     *http.ServeMux
}

// NewServer constructs a new Server. mt may be nil.
func NewServer(cfg *config.Config, store Store, mt *metrics.Metrics) *Server {
	s := &Server{
		cfg:     cfg,
		store:   store,
		metrics: mt,
		mux:     http.NewServeMux(),
	}
	s.registerRoutes()
	return s
}

// Handler returns the underlying http.Handler for this server.
func (s *Server) Handler() http.Handler {
	h := requestID(s.instrument(s.mux))
	if s.basicAuthEnabled() {
		appLog.Info("HTTP basic auth enabled", "listen", "http://"+s.cfg.Listen)
		return s.basicAuthMiddleware(h)
	}
	return h
}

// basicAuthEnabled reports whether HTTP Basic Auth is configured.
func (s *Server) basicAuthEnabled() bool {
	if s.cfg == nil || s.cfg.BasicAuth == nil {
		return false
	}
	if s.cfg.BasicAuth.Username == "" || s.cfg.BasicAuth.Password == "" {
		return false
	}
	return true
}

// basicAuthMiddleware wraps all handlers except /health with HTTP Basic Auth.
func (s *Server) basicAuthMiddleware(next http.Handler) http.Handler {
	username := s.cfg.BasicAuth.Username
	password := s.cfg.BasicAuth.Password

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health" {
			next.ServeHTTP(w, r)
			return
		}

		u, p, ok := r.BasicAuth()
		if !ok || !secureCompare(u, username) || !secureCompare(p, password) {
			w.Header().Set("WWW-Authenticate", `Basic realm="remindcal", charset="UTF-8"`)
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// secureCompare compares two strings in constant time.
func secureCompare(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

// requestID tags every request with an X-Request-ID, keeping one sent
// by the client.
func requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-ID")
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", id)
		appLog.Debug("http request", "method", r.Method, "path", r.URL.Path, "request_id", id)
		next.ServeHTTP(w, r)
	})
}

// statusRecorder remembers the status code written by a handler.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// instrument records request counts and durations per route pattern.
func (s *Server) instrument(next http.Handler) http.Handler {
	if s.metrics == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		began := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		route := r.Pattern
		if route == "" {
			route = "unmatched"
		}
		s.metrics.RecordRequest(route, strconv.Itoa(rec.status), time.Since(began).Seconds())
	})
}

// StartServer serves the API on cfg.Listen until ctx is cancelled.
func StartServer(ctx context.Context, cfg *config.Config, store Store, mt *metrics.Metrics) error {
	s := NewServer(cfg, store, mt)
	srv := &http.Server{
		Addr:              cfg.Listen,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		appLog.Info("starting HTTP server", "listen", "http://"+cfg.Listen)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		appLog.Info("shutting down HTTP server")
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}
}

func (s *Server) registerRoutes() {
	s.mux.HandleFunc("GET /health", s.handleHealth)
	if s.metrics != nil {
		s.mux.Handle("GET /metrics", s.metrics.Handler())
	}
	s.mux.HandleFunc("GET /api/files", s.handleFiles)
	s.mux.HandleFunc("GET /api/ids", s.handleIDs)
	s.mux.HandleFunc("GET /calendar.ics", s.handleCalendar)
	s.mux.HandleFunc("GET /api/events/{uid}", s.handleGetEvent)
	s.mux.HandleFunc("POST /api/events", s.handleAppend)
	s.mux.HandleFunc("PUT /api/events/{uid}", s.handleReplace)
	s.mux.HandleFunc("DELETE /api/events/{uid}", s.handleRemove)
	s.mux.HandleFunc("POST /api/move", s.handleMove)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

type filesResponse struct {
	Files []string `json:"files"`
}

type idsResponse struct {
	IDs []string `json:"ids"`
}

type uidResponse struct {
	UID string `json:"uid"`
}

type moveRequest struct {
	UID  string `json:"uid"`
	From string `json:"from"`
	To   string `json:"to"`
}

func (s *Server) handleFiles(w http.ResponseWriter, r *http.Request) {
	files, err := s.store.Files(r.Context())
	if err != nil {
		s.fail(w, "api files", err)
		return
	}
	writeJSON(w, http.StatusOK, filesResponse{Files: files})
}

func (s *Server) handleIDs(w http.ResponseWriter, r *http.Request) {
	ids, err := s.store.IDs(r.Context(), r.URL.Query().Get("file"))
	if err != nil {
		s.fail(w, "api ids", err)
		return
	}
	writeJSON(w, http.StatusOK, idsResponse{IDs: ids})
}

// handleCalendar returns the combined calendar of one file or of every
// tracked file.
//
// GET /calendar.ics?file=/home/u/.reminders
func (s *Server) handleCalendar(w http.ResponseWriter, r *http.Request) {
	cal, err := s.store.All(r.Context(), r.URL.Query().Get("file"))
	if err != nil {
		s.fail(w, "calendar", err)
		return
	}
	writeCalendar(w, r, cal, ics.Etag(cal))
}

func (s *Server) handleGetEvent(w http.ResponseWriter, r *http.Request) {
	cal, etag, err := s.store.Get(r.Context(), r.URL.Query().Get("file"), r.PathValue("uid"))
	if err != nil {
		s.fail(w, "api get event", err)
		return
	}
	writeCalendar(w, r, cal, etag)
}

func (s *Server) handleAppend(w http.ResponseWriter, r *http.Request) {
	cal, err := readCalendar(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	uid, err := s.store.Append(r.Context(), cal, r.URL.Query().Get("file"))
	if err != nil {
		s.fail(w, "api append", err)
		return
	}
	writeJSON(w, http.StatusCreated, uidResponse{UID: uid})
}

// handleReplace honours If-Match so that a client holding a stale etag
// does not overwrite a newer line.
func (s *Server) handleReplace(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	file := r.URL.Query().Get("file")
	uid := r.PathValue("uid")

	if match := r.Header.Get("If-Match"); match != "" && match != "*" {
		_, etag, err := s.store.Get(ctx, file, uid)
		if err != nil {
			s.fail(w, "api replace", err)
			return
		}
		if etag != match {
			writeError(w, http.StatusPreconditionFailed, "etag mismatch")
			return
		}
	}

	cal, err := readCalendar(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	newUID, err := s.store.Replace(ctx, uid, cal, file)
	if err != nil {
		s.fail(w, "api replace", err)
		return
	}
	writeJSON(w, http.StatusOK, uidResponse{UID: newUID})
}

func (s *Server) handleRemove(w http.ResponseWriter, r *http.Request) {
	if err := s.store.Remove(r.Context(), r.PathValue("uid"), r.URL.Query().Get("file")); err != nil {
		s.fail(w, "api remove", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleMove(w http.ResponseWriter, r *http.Request) {
	var req moveRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, maxBody)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.UID == "" || req.From == "" || req.To == "" {
		writeError(w, http.StatusBadRequest, "uid, from and to are required")
		return
	}
	if err := s.store.Move(r.Context(), req.UID, req.From, req.To); err != nil {
		s.fail(w, "api move", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// fail maps collection errors to HTTP status codes.
func (s *Server) fail(w http.ResponseWriter, op string, err error) {
	switch {
	case errors.Is(err, remind.ErrEventNotFound), errors.Is(err, remind.ErrNotFoundOnReplace):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, remind.ErrUnknownFile), errors.Is(err, remind.ErrNoEvents):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, remind.ErrToolUnavailable),
		errors.Is(err, remind.ErrToolRejectedInput),
		errors.Is(err, remind.ErrOutputMalformed):
		appLog.Error(op+" failed", err)
		writeError(w, http.StatusBadGateway, err.Error())
	default:
		appLog.Error(op+" failed", err)
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

func readCalendar(r *http.Request) (*ical.Calendar, error) {
	cal, err := ics.Parse(io.LimitReader(r.Body, maxBody))
	if err != nil {
		return nil, err
	}
	if len(cal.Events()) == 0 {
		return nil, errors.New("calendar has no VEVENT")
	}
	return cal, nil
}

func writeCalendar(w http.ResponseWriter, r *http.Request, cal *ical.Calendar, etag string) {
	w.Header().Set("ETag", etag)
	if inm := r.Header.Get("If-None-Match"); inm != "" && etagMatches(inm, etag) {
		w.WriteHeader(http.StatusNotModified)
		return
	}
	w.Header().Set("Content-Type", "text/calendar; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = io.WriteString(w, ics.Serialize(cal))
}

func etagMatches(header, etag string) bool {
	for _, candidate := range strings.Split(header, ",") {
		c := strings.TrimSpace(candidate)
		if c == "*" || strings.TrimPrefix(c, "W/") == etag {
			return true
		}
	}
	return false
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		appLog.Error("failed to write JSON response", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	type errResp struct {
		Error string `json:"error"`
	}
	writeJSON(w, status, errResp{Error: msg})
}
