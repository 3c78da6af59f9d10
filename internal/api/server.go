package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/bryanchriswhite/pulsecore/internal/app"
	"github.com/bryanchriswhite/pulsecore/internal/appearance"
	"github.com/bryanchriswhite/pulsecore/internal/config"
	"github.com/bryanchriswhite/pulsecore/internal/imagestore"
	"github.com/bryanchriswhite/pulsecore/internal/logger"
	"github.com/bryanchriswhite/pulsecore/internal/prefs"
	"github.com/bryanchriswhite/pulsecore/internal/schema"
	"github.com/bryanchriswhite/pulsecore/internal/theme"
	"github.com/bryanchriswhite/pulsecore/internal/transfer"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

// maxImageBytes bounds uploaded background images.
const maxImageBytes = 32 << 20

// Server represents the HTTP API server
type Server struct {
	router    *mux.Router
	win       *app.Window
	configMgr *config.Manager
	upgrader  websocket.Upgrader
	log       *zerolog.Logger

	background *liveBackground
	httpServer *http.Server
	mu         sync.Mutex
}

// NewServer creates the API server for the main window. eventHandler serves
// the cross-process event endpoint and blobs the transient image URLs;
// either may be nil.
func NewServer(win *app.Window, configMgr *config.Manager, eventHandler, blobs http.Handler) *Server {
	s := &Server{
		router:     mux.NewRouter(),
		win:        win,
		configMgr:  configMgr,
		log:        logger.WithComponent("api"),
		background: newLiveBackground(win.Prefs, win.Images),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
	}

	s.setupRoutes(eventHandler, blobs)
	return s
}

// setupRoutes configures the API routes
func (s *Server) setupRoutes(eventHandler, blobs http.Handler) {
	api := s.router.PathPrefix("/api").Subrouter()

	api.HandleFunc("/health", s.handleHealth).Methods("GET")
	api.HandleFunc("/config", s.handleGetConfig).Methods("GET")

	// Settings
	api.HandleFunc("/settings", s.handleGetSettings).Methods("GET")
	api.HandleFunc("/settings", s.handlePatchSettings).Methods("PATCH")
	api.HandleFunc("/settings/refresh-rate", s.handleSetRefreshRate).Methods("PUT")

	// Overlay and taskbar preferences
	api.HandleFunc("/prefs", s.handleGetPrefs).Methods("GET")
	api.HandleFunc("/prefs", s.handlePatchPrefs).Methods("PATCH")
	api.HandleFunc("/taskbar-prefs", s.handleGetTaskbarPrefs).Methods("GET")
	api.HandleFunc("/taskbar-prefs", s.handlePatchTaskbarPrefs).Methods("PATCH")

	// Background
	api.HandleFunc("/background", s.handleGetBackground).Methods("GET")
	api.HandleFunc("/background", s.handleUploadBackground).Methods("POST")
	api.HandleFunc("/background", s.handleClearBackground).Methods("DELETE")

	// Themes
	api.HandleFunc("/themes", s.handleListThemes).Methods("GET")
	api.HandleFunc("/themes", s.handleSaveTheme).Methods("POST")
	api.HandleFunc("/themes/{id}", s.handleEditTheme).Methods("PATCH")
	api.HandleFunc("/themes/{id}", s.handleDeleteTheme).Methods("DELETE")
	api.HandleFunc("/themes/{id}/apply", s.handleApplyTheme).Methods("POST")

	// Config transfer
	api.HandleFunc("/export", s.handleExport).Methods("GET")
	api.HandleFunc("/import", s.handleStageImport).Methods("POST")
	api.HandleFunc("/import/confirm", s.handleConfirmImport).Methods("POST")
	api.HandleFunc("/import", s.handleCancelImport).Methods("DELETE")

	// Telemetry
	api.HandleFunc("/telemetry", s.handleTelemetry).Methods("GET")
	api.HandleFunc("/telemetry/history", s.handleTelemetryHistory).Methods("GET")
	api.HandleFunc("/telemetry/stream", s.handleTelemetryStream)

	// Windows
	api.HandleFunc("/windows/toolkit", s.handleOpenToolkit).Methods("POST")
	api.HandleFunc("/windows/taskbar/restart", s.handleRestartTaskbar).Methods("POST")
	api.HandleFunc("/tray/{id}", s.handleTrayItem).Methods("POST")
	api.HandleFunc("/factory-reset", s.handleFactoryReset).Methods("POST")

	if eventHandler != nil {
		api.Handle("/events", eventHandler)
	}
	if blobs != nil {
		s.router.PathPrefix(imagestore.BlobPathPrefix).Handler(blobs).Methods("GET")
	}
}

// Handler returns the router wrapped in CORS headers.
func (s *Server) Handler() http.Handler {
	return s.enableCORS(s.router)
}

// Start serves on port until Shutdown.
func (s *Server) Start(port int) error {
	addr := fmt.Sprintf(":%d", port)
	s.mu.Lock()
	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	srv := s.httpServer
	s.mu.Unlock()

	s.log.Info().Str("addr", addr).Msg("Starting server")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops the server and releases the live background.
func (s *Server) Shutdown(ctx context.Context) error {
	s.background.close()
	s.mu.Lock()
	srv := s.httpServer
	s.mu.Unlock()
	if srv == nil {
		return nil
	}
	return srv.Shutdown(ctx)
}

// enableCORS adds CORS headers
func (s *Server) enableCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

// readObject reads the request body as a JSON object.
func readObject(r *http.Request) (schema.Object, error) {
	data, err := io.ReadAll(io.LimitReader(r.Body, maxImageBytes))
	if err != nil {
		return schema.Object{}, err
	}
	return schema.Parse(data)
}

// HTTP Handlers

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "healthy",
		"version": "0.1.0",
		"window":  string(s.win.Label),
	})
}

func (s *Server) handleGetConfig(w http.ResponseWriter, r *http.Request) {
	if s.configMgr == nil {
		http.NotFound(w, r)
		return
	}
	writeJSON(w, http.StatusOK, s.configMgr.Get())
}

type settingsResponse struct {
	Settings      any `json:"settings"`
	RefreshRateMs int `json:"refreshRateMs"`
}

func (s *Server) settingsResponse() settingsResponse {
	return settingsResponse{
		Settings:      s.win.Settings.Get(),
		RefreshRateMs: s.win.Settings.RefreshRate(),
	}
}

func (s *Server) handleGetSettings(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.settingsResponse())
}

func (s *Server) handlePatchSettings(w http.ResponseWriter, r *http.Request) {
	obj, err := readObject(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	transfer.ApplySettings(r.Context(), s.win.Settings, obj)
	writeJSON(w, http.StatusOK, s.settingsResponse())
}

func (s *Server) handleSetRefreshRate(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Ms float64 `json:"ms"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	s.win.Settings.SetRefreshRate(r.Context(), req.Ms)
	writeJSON(w, http.StatusOK, s.settingsResponse())
}

func (s *Server) handleGetPrefs(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.win.Prefs.Get())
}

func (s *Server) handlePatchPrefs(w http.ResponseWriter, r *http.Request) {
	obj, err := readObject(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	s.win.Prefs.Update(r.Context(), func(p *prefs.Overlay) {
		*p = prefs.MergeOverlay(*p, obj)
	})
	writeJSON(w, http.StatusOK, s.win.Prefs.Get())
}

func (s *Server) handleGetTaskbarPrefs(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.win.TaskbarPrefs.Get())
}

func (s *Server) handlePatchTaskbarPrefs(w http.ResponseWriter, r *http.Request) {
	obj, err := readObject(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	s.win.TaskbarPrefs.Update(r.Context(), func(t *prefs.Taskbar) {
		*t = prefs.MergeTaskbar(*t, obj)
	})
	writeJSON(w, http.StatusOK, s.win.TaskbarPrefs.Get())
}

func (s *Server) handleGetBackground(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.background.style())
}

// handleUploadBackground runs one compositor session over the request body:
// load, default crop, effect parameters, then apply (and optionally save as
// a theme).
func (s *Server) handleUploadBackground(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	num := func(key string, fallback float64) float64 {
		if v, err := strconv.ParseFloat(q.Get(key), 64); err == nil {
			return v
		}
		return fallback
	}

	sess := s.win.Session
	sess.Open(num("overlay_width", 0), num("overlay_height", 0))
	defer sess.Close()

	canvasW, canvasH := int(num("canvas_width", 960)), int(num("canvas_height", 600))
	if err := sess.Load(io.LimitReader(r.Body, maxImageBytes), r.Header.Get("Content-Type"), canvasW, canvasH); err != nil {
		status := http.StatusBadRequest
		if errors.Is(err, theme.ErrUnsupportedImage) {
			status = http.StatusUnsupportedMediaType
		}
		writeError(w, status, err)
		return
	}
	if q.Has("blur") {
		sess.SetBlurPx(num("blur", 0))
	}
	if q.Has("strength") {
		sess.SetGlassStrength(num("strength", 0))
	}
	if q.Has("effect") {
		sess.SetEffect(appearance.ParseEffect(q.Get("effect")))
	}

	if q.Get("save") == "true" {
		t, ok := sess.ApplyAndSave(r.Context())
		if !ok {
			writeError(w, http.StatusConflict, theme.ErrSlotsFull)
			return
		}
		writeJSON(w, http.StatusCreated, t)
		return
	}
	if !sess.Apply(r.Context()) {
		writeError(w, http.StatusInternalServerError, errors.New("background could not be applied"))
		return
	}
	writeJSON(w, http.StatusOK, s.background.style())
}

func (s *Server) handleClearBackground(w http.ResponseWriter, r *http.Request) {
	s.win.Prefs.Update(r.Context(), func(p *prefs.Overlay) { p.ClearBackground() })
	w.WriteHeader(http.StatusNoContent)
}

func themeStatus(err error) int {
	switch {
	case errors.Is(err, theme.ErrUnknownTheme):
		return http.StatusNotFound
	case errors.Is(err, theme.ErrSlotsFull):
		return http.StatusConflict
	case errors.Is(err, theme.ErrInvalidName), errors.Is(err, theme.ErrNoImage), errors.Is(err, theme.ErrInvalidParams):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) handleListThemes(w http.ResponseWriter, r *http.Request) {
	themes := s.win.Themes.List()
	out := make([]map[string]any, 0, len(themes))
	for _, t := range themes {
		out = append(out, map[string]any{
			"theme":   t,
			"applied": s.win.Themes.IsApplied(t),
		})
	}
	writeJSON(w, http.StatusOK, out)
}

// handleSaveTheme saves the live background under the requested name.
func (s *Server) handleSaveTheme(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name string `json:"name"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	t, err := s.win.Themes.Save(r.Context(), req.Name, s.win.Prefs.Get().Background())
	if err != nil {
		writeError(w, themeStatus(err), err)
		return
	}
	writeJSON(w, http.StatusCreated, t)
}

func (s *Server) handleEditTheme(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	cur, ok := findTheme(s.win.Themes.List(), id)
	if !ok {
		writeError(w, http.StatusNotFound, theme.ErrUnknownTheme)
		return
	}
	obj, err := readObject(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	req := theme.EditRequest{
		Name:          cur.Name,
		BlurPx:        float64(cur.BlurPx),
		Effect:        cur.Effect,
		GlassStrength: float64(cur.GlassStrength),
	}
	obj.String("name", &req.Name)
	obj.Number("blurPx", &req.BlurPx)
	obj.Number("glassStrength", &req.GlassStrength)
	var effect string
	if obj.String("effect", &effect) {
		req.Effect = appearance.ParseEffect(effect)
	}

	t, err := s.win.Themes.Edit(r.Context(), id, req)
	if err != nil {
		writeError(w, themeStatus(err), err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

func findTheme(themes []theme.Theme, id string) (theme.Theme, bool) {
	for _, t := range themes {
		if t.ID == id {
			return t, true
		}
	}
	return theme.Theme{}, false
}

// handleDeleteTheme deletes immediately; the HTTP caller is the one who
// confirmed.
func (s *Server) handleDeleteTheme(w http.ResponseWriter, r *http.Request) {
	if _, err := s.win.Themes.RequestDelete(mux.Vars(r)["id"]); err != nil {
		writeError(w, themeStatus(err), err)
		return
	}
	if err := s.win.Themes.ConfirmDelete(r.Context()); err != nil {
		writeError(w, themeStatus(err), err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleApplyTheme(w http.ResponseWriter, r *http.Request) {
	if err := s.win.Themes.Apply(r.Context(), mux.Vars(r)["id"]); err != nil {
		writeError(w, themeStatus(err), err)
		return
	}
	writeJSON(w, http.StatusOK, s.background.style())
}

func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	doc, err := transfer.Export(r.Context(), s.win.Stores(), time.Now())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	data, err := transfer.Marshal(doc)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", transfer.Filename(doc)))
	w.Write(data)
}

func (s *Server) handleStageImport(w http.ResponseWriter, r *http.Request) {
	data, err := io.ReadAll(io.LimitReader(r.Body, maxImageBytes*4))
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if err := s.win.Importer.Stage(data); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]bool{"pending": true})
}

func (s *Server) handleConfirmImport(w http.ResponseWriter, r *http.Request) {
	report, err := s.win.Importer.Confirm(r.Context())
	if errors.Is(err, transfer.ErrNothingStaged) {
		writeError(w, http.StatusConflict, err)
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (s *Server) handleCancelImport(w http.ResponseWriter, r *http.Request) {
	s.win.Importer.Cancel()
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleTelemetry(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"hardware_info":   s.win.Telemetry.Hardware(),
		"latest_snapshot": s.win.Telemetry.Latest(),
	})
}

func (s *Server) handleTelemetryHistory(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.win.Telemetry.History())
}

// handleTelemetryStream pushes each new snapshot, checking at the current
// refresh rate.
func (s *Server) handleTelemetryStream(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn().Err(err).Msg("WebSocket upgrade failed")
		return
	}
	defer conn.Close()

	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	var last time.Time
	for {
		snap := s.win.Telemetry.Latest()
		if !snap.Timestamp.Equal(last) || last.IsZero() {
			if err := conn.WriteJSON(snap); err != nil {
				s.log.Debug().Err(err).Msg("Telemetry stream closed")
				return
			}
			last = snap.Timestamp
		}
		select {
		case <-closed:
			return
		case <-r.Context().Done():
			return
		case <-time.After(time.Duration(s.win.Settings.RefreshRate()) * time.Millisecond):
		}
	}
}

func (s *Server) handleOpenToolkit(w http.ResponseWriter, r *http.Request) {
	if s.win.Coordinator == nil {
		writeError(w, http.StatusServiceUnavailable, errors.New("no window host"))
		return
	}
	if err := s.win.Coordinator.OpenToolkit(r.Context()); err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleRestartTaskbar(w http.ResponseWriter, r *http.Request) {
	if s.win.Coordinator == nil {
		writeError(w, http.StatusServiceUnavailable, errors.New("no window host"))
		return
	}
	s.win.Coordinator.RestartTaskbar(r.Context())
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleTrayItem(w http.ResponseWriter, r *http.Request) {
	if s.win.Coordinator == nil {
		writeError(w, http.StatusServiceUnavailable, errors.New("no window host"))
		return
	}
	quit := s.win.Coordinator.HandleTrayItem(r.Context(), mux.Vars(r)["id"])
	writeJSON(w, http.StatusOK, map[string]bool{"quit": quit})
}

func (s *Server) handleFactoryReset(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Confirm bool `json:"confirm"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || !req.Confirm {
		writeError(w, http.StatusBadRequest, errors.New(`factory reset requires {"confirm": true}`))
		return
	}
	if err := s.win.FactoryReset(r.Context()); err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
