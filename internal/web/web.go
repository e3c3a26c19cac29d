package web

import (
	"context"
	"crypto/subtle"
	"embed"
	"encoding/json"
	"errors"
	"io/fs"
	"net/http"
	"strings"
	"time"

	"eventmap/internal/config"
	"eventmap/internal/ics"
	"eventmap/internal/locate"
	appLog "eventmap/internal/log"
	"eventmap/internal/marker"
	"eventmap/internal/model"
	"eventmap/internal/selection"
	"eventmap/internal/store"
	"eventmap/internal/view"
)

// resolveTimeout bounds how long a locate result waits for the tracker.
const resolveTimeout = 5 * time.Second

// Server exposes the map UI and the per-view JSON API.
type Server struct {
	cfg         *config.Config
	store       *store.Store
	views       *view.Registry
	previewPath string
	mux         *http.ServeMux
}

// embeddedStatic contains the Leaflet single page.
//
//go:embed all:static
var embeddedStatic embed.FS

// NewServer constructs a new Server.
func NewServer(cfg *config.Config, s *store.Store, views *view.Registry) *Server {
	srv := &Server{
		cfg:         cfg,
		store:       s,
		views:       views,
		previewPath: cfg.Snapshot.OutputPath,
		mux:         http.NewServeMux(),
	}
	srv.registerRoutes()
	return srv
}

// Handler returns the underlying http.Handler for this server.
func (s *Server) Handler() http.Handler {
	h := http.Handler(s.mux)
	if s.basicAuthEnabled() {
		appLog.Info("HTTP basic auth enabled", "listen", "http://"+s.cfg.Listen)
		return s.basicAuthMiddleware(h)
	}
	return h
}

func (s *Server) basicAuthEnabled() bool {
	if s.cfg == nil || s.cfg.BasicAuth == nil {
		return false
	}
	// An empty username or password disables auth.
	return s.cfg.BasicAuth.Username != "" && s.cfg.BasicAuth.Password != ""
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
			w.Header().Set("WWW-Authenticate", `Basic realm="EventMap", charset="UTF-8"`)
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

func (s *Server) registerRoutes() {
	s.mux.HandleFunc("GET /health", s.handleHealth)
	s.mux.HandleFunc("GET /api/map", s.handleMap)
	s.mux.HandleFunc("GET /api/events", s.handleEvents)
	s.mux.HandleFunc("GET /api/events.ics", s.handleEventsICS)
	s.mux.HandleFunc("GET /api/events/{id}", s.handleEvent)

	s.mux.HandleFunc("POST /api/views", s.handleMountView)
	s.mux.HandleFunc("GET /api/views/{id}", s.handleGetView)
	s.mux.HandleFunc("DELETE /api/views/{id}", s.handleUnmountView)
	s.mux.HandleFunc("POST /api/views/{id}/select", s.handleSelect)
	s.mux.HandleFunc("POST /api/views/{id}/close", s.handleClose)
	s.mux.HandleFunc("POST /api/views/{id}/reopen", s.handleReopen)
	s.mux.HandleFunc("GET /api/views/{id}/navigate", s.handleNavigate)
	s.mux.HandleFunc("POST /api/views/{id}/locate", s.handleLocate)
	s.mux.HandleFunc("POST /api/views/{id}/locate/{req}", s.handleLocateResult)

	s.mux.HandleFunc("GET /preview.png", s.handlePreview)
	s.mux.Handle("/", s.staticFileServer())
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

// mapResponse is what the page needs to build the Leaflet map.
type mapResponse struct {
	TileURL       string           `json:"tile_url"`
	Attribution   string           `json:"attribution"`
	MinZoom       int              `json:"min_zoom"`
	MaxZoom       int              `json:"max_zoom"`
	InitialZoom   int              `json:"initial_zoom"`
	InitialCenter model.Coordinate `json:"initial_center"`
	// MaxBounds is [[south, west], [north, east]].
	MaxBounds [2][2]float64 `json:"max_bounds"`
	Icon      marker.Icon   `json:"icon"`
}

func (s *Server) handleMap(w http.ResponseWriter, _ *http.Request) {
	m := s.cfg.Map
	writeJSON(w, http.StatusOK, mapResponse{
		TileURL:       m.TileURL,
		Attribution:   m.Attribution,
		MinZoom:       m.MinZoom,
		MaxZoom:       m.MaxZoom,
		InitialZoom:   m.InitialZoom,
		InitialCenter: m.InitialCenter,
		MaxBounds:     [2][2]float64{{-90, -180}, {90, 180}},
		Icon:          marker.DefaultIcon,
	})
}

type eventsResponse struct {
	Events  []model.Event   `json:"events"`
	Markers []marker.Marker `json:"markers"`
}

func (s *Server) handleEvents(w http.ResponseWriter, _ *http.Request) {
	events := s.store.Events()
	layer := marker.NewLayer(events, marker.DefaultIcon, nil)
	writeJSON(w, http.StatusOK, eventsResponse{
		Events:  events,
		Markers: layer.Markers(),
	})
}

func (s *Server) handleEvent(w http.ResponseWriter, r *http.Request) {
	ev, err := s.store.Get(r.PathValue("id"))
	if err != nil {
		writeAPIError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ev)
}

func (s *Server) handleEventsICS(w http.ResponseWriter, _ *http.Request) {
	body := ics.Export(s.store.Events(), time.Now())
	w.Header().Set("Content-Type", "text/calendar; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="events.ics"`)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(body))
}

func (s *Server) handleMountView(w http.ResponseWriter, _ *http.Request) {
	v := s.views.Mount()
	writeJSON(w, http.StatusCreated, v.State())
}

func (s *Server) handleGetView(w http.ResponseWriter, r *http.Request) {
	v, ok := s.lookupView(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, v.State())
}

func (s *Server) handleUnmountView(w http.ResponseWriter, r *http.Request) {
	if err := s.views.Unmount(r.PathValue("id")); err != nil {
		writeAPIError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type selectRequest struct {
	EventID string `json:"event_id"`
}

func (s *Server) handleSelect(w http.ResponseWriter, r *http.Request) {
	v, ok := s.lookupView(w, r)
	if !ok {
		return
	}
	var req selectRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.EventID == "" {
		writeError(w, http.StatusBadRequest, "event_id is required")
		return
	}
	if err := v.Click(req.EventID); err != nil {
		writeAPIError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, v.State())
}

func (s *Server) handleClose(w http.ResponseWriter, r *http.Request) {
	v, ok := s.lookupView(w, r)
	if !ok {
		return
	}
	v.CloseSidebar()
	writeJSON(w, http.StatusOK, v.State())
}

func (s *Server) handleReopen(w http.ResponseWriter, r *http.Request) {
	v, ok := s.lookupView(w, r)
	if !ok {
		return
	}
	if err := v.ReopenSidebar(); err != nil {
		writeAPIError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, v.State())
}

type navigateResponse struct {
	URL string `json:"url"`
}

func (s *Server) handleNavigate(w http.ResponseWriter, r *http.Request) {
	v, ok := s.lookupView(w, r)
	if !ok {
		return
	}
	url, err := v.Navigate()
	if err != nil {
		writeAPIError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, navigateResponse{URL: url})
}

type locateResponse struct {
	RequestID string `json:"request_id"`
}

func (s *Server) handleLocate(w http.ResponseWriter, r *http.Request) {
	v, ok := s.lookupView(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusAccepted, locateResponse{RequestID: v.StartLocate()})
}

// locateResult is what the browser reports back from
// navigator.geolocation.getCurrentPosition.
type locateResult struct {
	Lat   *float64 `json:"lat,omitempty"`
	Lng   *float64 `json:"lng,omitempty"`
	Error string   `json:"error,omitempty"`
}

// handleLocateResult applies the browser's fix and answers with the view
// state, draining alerts so the page shows each one once.
func (s *Server) handleLocateResult(w http.ResponseWriter, r *http.Request) {
	v, ok := s.lookupView(w, r)
	if !ok {
		return
	}
	var body locateResult
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid locate result")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), resolveTimeout)
	defer cancel()

	reqID := r.PathValue("req")
	var (
		res locate.Result
		err error
	)
	if body.Error != "" || body.Lat == nil || body.Lng == nil {
		msg := body.Error
		if msg == "" {
			msg = "position unavailable"
		}
		res, err = v.RejectLocate(ctx, reqID, msg)
	} else {
		res, err = v.ResolveLocate(ctx, reqID, model.Coordinate{Lat: *body.Lat, Lng: *body.Lng})
	}
	if err != nil {
		writeAPIError(w, err)
		return
	}
	if errors.Is(res.Err, locate.ErrCanceled) {
		writeAPIError(w, res.Err)
		return
	}
	writeJSON(w, http.StatusOK, v.DrainAlerts())
}

func (s *Server) lookupView(w http.ResponseWriter, r *http.Request) (*view.View, bool) {
	v, err := s.views.Get(r.PathValue("id"))
	if err != nil {
		writeAPIError(w, err)
		return nil, false
	}
	return v, true
}

// handlePreview serves the last captured PNG, if any.
func (s *Server) handlePreview(w http.ResponseWriter, r *http.Request) {
	if s.previewPath == "" {
		http.NotFound(w, r)
		return
	}
	http.ServeFile(w, r, s.previewPath)
}

// staticFileServer serves the embedded single page from internal/web/static.
func (s *Server) staticFileServer() http.Handler {
	sub, err := fs.Sub(embeddedStatic, "static")
	if err != nil {
		appLog.Error("failed to initialize embedded static filesystem", err)
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "static UI not available", http.StatusServiceUnavailable)
		})
	}

	fileServer := http.FileServer(http.FS(sub))

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Unknown API paths must 404 as JSON, never fall through to HTML.
		if r.URL.Path == "/api" || strings.HasPrefix(r.URL.Path, "/api/") {
			writeError(w, http.StatusNotFound, "not found")
			return
		}
		fileServer.ServeHTTP(w, r)
	})
}

// statusFor maps domain errors onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, view.ErrNotFound),
		errors.Is(err, view.ErrUnknownRequest),
		errors.Is(err, marker.ErrUnknownMarker),
		errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, selection.ErrNothingSelected),
		errors.Is(err, locate.ErrCanceled):
		return http.StatusConflict
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func writeAPIError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		appLog.Error("api request failed", err)
	}
	writeError(w, status, err.Error())
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
