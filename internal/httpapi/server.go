// Package httpapi terminates the client-facing surface: the session REST
// endpoints, the per-session websocket, and the cache admin routes.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/eloquence-ai/eloquence/internal/config"
	"github.com/eloquence-ai/eloquence/internal/observability"
	"github.com/eloquence-ai/eloquence/internal/orchestrator"
	"github.com/eloquence-ai/eloquence/internal/session"
	"github.com/eloquence-ai/eloquence/internal/speechcache"
	"github.com/eloquence-ai/eloquence/internal/tts"
)

type Server struct {
	cfg      config.Config
	orch     *orchestrator.Orchestrator
	registry *session.Registry
	cache    *speechcache.Cache
	synth    tts.Synthesizer
	metrics  *observability.Metrics
	upgrader websocket.Upgrader
}

func New(cfg config.Config, orch *orchestrator.Orchestrator, registry *session.Registry, cache *speechcache.Cache, synth tts.Synthesizer, metrics *observability.Metrics) *Server {
	return &Server{
		cfg:      cfg,
		orch:     orch,
		registry: registry,
		cache:    cache,
		synth:    synth,
		metrics:  metrics,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin: func(r *http.Request) bool {
				// Only same-origin browsers may drive a mic session unless
				// explicitly opened up. Non-browser clients omit Origin.
				if cfg.AllowAnyOrigin {
					return true
				}
				origin := strings.TrimSpace(r.Header.Get("Origin"))
				if origin == "" {
					return true
				}
				u, err := url.Parse(origin)
				if err != nil {
					return false
				}
				if u.Scheme != "http" && u.Scheme != "https" {
					return false
				}
				return strings.EqualFold(u.Host, r.Host)
			},
		},
	}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Get("/healthz", s.handleHealth)
	r.Get("/readyz", s.handleHealth)
	r.Method(http.MethodGet, "/metrics", s.metrics.Handler())

	r.Post("/v1/session", s.handleCreateSession)
	r.Post("/v1/session/{id}/end", s.handleEndSession)
	r.Get("/v1/session/{id}", s.handleGetSession)
	r.Get("/v1/session/ws", s.handleSessionWS)

	r.Get("/v1/cache/metrics", s.handleCacheMetrics)
	r.Post("/v1/cache/clear", s.handleCacheClear)
	r.Post("/v1/cache/preload", s.handleCachePreload)

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{
		"status":          "ok",
		"active_sessions": s.registry.Len(),
	})
}

type createSessionRequest struct {
	Language string `json:"language"`
	VoiceID  string `json:"voice_id"`
}

type sessionResponse struct {
	SessionID      string        `json:"session_id"`
	Language       string        `json:"language"`
	VoiceID        string        `json:"voice_id"`
	State          session.State `json:"state"`
	StartedAt      time.Time     `json:"started_at"`
	ReconnectCount int           `json:"reconnect_count"`
}

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var req createSessionRequest
	if err := decodeJSON(r, &req); err != nil && !errors.Is(err, errEmptyBody) {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	if strings.TrimSpace(req.Language) == "" {
		req.Language = s.cfg.DefaultLanguage
	}
	if strings.TrimSpace(req.VoiceID) == "" {
		req.VoiceID = s.cfg.DefaultVoiceID
	}

	sess := s.orch.StartSession(req.Language, req.VoiceID)
	respondJSON(w, http.StatusCreated, sessionView(sess))
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	sess, err := s.registry.Get(chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, http.StatusNotFound, "session_not_found", err.Error())
		return
	}
	respondJSON(w, http.StatusOK, sessionView(sess))
}

func (s *Server) handleEndSession(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := s.orch.EndSession(id); err != nil {
		respondError(w, http.StatusNotFound, "session_not_found", err.Error())
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"session_id": id, "state": session.StateEnded})
}

func (s *Server) handleCacheMetrics(w http.ResponseWriter, _ *http.Request) {
	if s.cache == nil {
		respondError(w, http.StatusNotImplemented, "cache_disabled", "speech cache is not configured")
		return
	}
	respondJSON(w, http.StatusOK, s.cache.Metrics())
}

type cacheClearRequest struct {
	Pattern string `json:"pattern"`
}

func (s *Server) handleCacheClear(w http.ResponseWriter, r *http.Request) {
	if s.cache == nil {
		respondError(w, http.StatusNotImplemented, "cache_disabled", "speech cache is not configured")
		return
	}
	var req cacheClearRequest
	if err := decodeJSON(r, &req); err != nil && !errors.Is(err, errEmptyBody) {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	deleted, err := s.cache.Clear(r.Context(), req.Pattern)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "cache_error", err.Error())
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"deleted": deleted})
}

type cachePreloadRequest struct {
	Items     []speechcache.PreloadItem `json:"items"`
	PerSecond float64                   `json:"per_second"`
}

func (s *Server) handleCachePreload(w http.ResponseWriter, r *http.Request) {
	if s.cache == nil {
		respondError(w, http.StatusNotImplemented, "cache_disabled", "speech cache is not configured")
		return
	}
	var req cachePreloadRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	if len(req.Items) == 0 {
		respondError(w, http.StatusBadRequest, "invalid_request", "items must not be empty")
		return
	}
	for i := range req.Items {
		if strings.TrimSpace(req.Items[i].Language) == "" {
			req.Items[i].Language = s.cfg.DefaultLanguage
		}
		if strings.TrimSpace(req.Items[i].VoiceID) == "" {
			req.Items[i].VoiceID = s.cfg.DefaultVoiceID
		}
	}

	res, err := s.cache.Preload(r.Context(), req.Items, s.synth.Synthesize, req.PerSecond)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "preload_failed", err.Error())
		return
	}
	respondJSON(w, http.StatusOK, res)
}

func sessionView(sess *session.Session) sessionResponse {
	return sessionResponse{
		SessionID:      sess.ID,
		Language:       sess.Language,
		VoiceID:        sess.VoiceID,
		State:          sess.State(),
		StartedAt:      sess.StartedAt(),
		ReconnectCount: sess.ReconnectCount(),
	}
}

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

var errEmptyBody = errors.New("empty body")

func decodeJSON(r *http.Request, out any) error {
	if r.Body == nil {
		return errEmptyBody
	}
	defer r.Body.Close()
	if err := json.NewDecoder(r.Body).Decode(out); err != nil {
		if strings.Contains(strings.ToLower(err.Error()), "eof") {
			return errEmptyBody
		}
		return err
	}
	return nil
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	respondJSON(w, status, errorResponse{Error: message, Code: code})
}

// ListenAndServe runs the HTTP server until ctx is canceled, then drains
// with the configured shutdown grace.
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.BindAddr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
