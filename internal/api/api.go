package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/thatsimonsguy/ozone-monitor/internal/client"
	"github.com/thatsimonsguy/ozone-monitor/internal/commands"
	"github.com/thatsimonsguy/ozone-monitor/internal/model"
	"github.com/thatsimonsguy/ozone-monitor/internal/poller"
)

const (
	defaultHistoryLimit = 50
	maxHistoryLimit     = 500
	maxPulseMs          = 10000

	writeWait  = 5 * time.Second
	pingPeriod = 30 * time.Second
)

// Dashboards is the source of derived dashboards.
type Dashboards interface {
	Status() poller.Status
	Subscribe() (<-chan model.Dashboard, func())
}

type Dispatcher interface {
	Run(ctx context.Context, cmd client.Command, pulseMs uint32) error
	Busy() map[client.Command]bool
}

type CommandHistory interface {
	Recent(limit int) ([]model.CommandRecord, error)
}

type Server struct {
	dashboards     Dashboards
	dispatcher     Dispatcher
	history        CommandHistory
	defaultPulseMs uint32
	allowedOrigins []string
	upgrader       websocket.Upgrader
}

type DashboardResponse struct {
	State     string                  `json:"state"`
	Dashboard *model.Dashboard        `json:"dashboard"`
	Busy      map[client.Command]bool `json:"busy"`
	CanPause  bool                    `json:"can_pause"`
	CanResume bool                    `json:"can_resume"`
	LastError string                  `json:"last_error,omitempty"`
	UpdatedAt *time.Time              `json:"updated_at,omitempty"`
}

type ErrorResponse struct {
	Error  string `json:"error"`
	Status int    `json:"status,omitempty"`
}

// NewServer wires the API. history may be nil when no command log is kept.
func NewServer(dashboards Dashboards, dispatcher Dispatcher, history CommandHistory, defaultPulseMs uint32, allowedOrigins []string) *Server {
	if defaultPulseMs == 0 {
		defaultPulseMs = client.DefaultPulseMs
	}
	s := &Server{
		dashboards:     dashboards,
		dispatcher:     dispatcher,
		history:        history,
		defaultPulseMs: defaultPulseMs,
		allowedOrigins: allowedOrigins,
	}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 4096,
		CheckOrigin:     s.checkOrigin,
	}
	return s
}

// Router returns the API routes behind the CORS handler.
func (s *Server) Router() http.Handler {
	r := mux.NewRouter()

	r.HandleFunc("/healthz", s.handleHealth).Methods(http.MethodGet)

	api := r.PathPrefix("/api").Subrouter()
	api.HandleFunc("/dashboard", s.getDashboard).Methods(http.MethodGet)
	api.HandleFunc("/commands", s.getCommands).Methods(http.MethodGet)
	api.HandleFunc("/commands/{kind}", s.runCommand).Methods(http.MethodPost)
	api.HandleFunc("/stream", s.stream).Methods(http.MethodGet)

	origins := s.allowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	cors := handlers.CORS(
		handlers.AllowedOrigins(origins),
		handlers.AllowedMethods([]string{http.MethodGet, http.MethodPost, http.MethodOptions}),
		handlers.AllowedHeaders([]string{"Content-Type", "Authorization"}),
	)
	return cors(r)
}

// Handler returns the router with combined access logging.
func (s *Server) Handler() http.Handler {
	return handlers.CombinedLoggingHandler(log.Logger, s.Router())
}

// Start serves the API until ctx is done.
func (s *Server) Start(ctx context.Context, port int) error {
	addr := fmt.Sprintf("0.0.0.0:%d", port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Warn().Err(err).Msg("API server shutdown failed")
		}
	}()

	log.Info().Str("address", addr).Msg("Starting REST API server")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	st := s.dashboards.Status()
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "poller": st.State.String()})
}

func (s *Server) getDashboard(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.dashboardResponse())
}

func (s *Server) dashboardResponse() DashboardResponse {
	st := s.dashboards.Status()
	busy := s.dispatcher.Busy()

	resp := DashboardResponse{
		State:     st.State.String(),
		Dashboard: st.Dashboard,
		Busy:      busy,
	}
	if st.LastError != nil {
		resp.LastError = st.LastError.Error()
	}
	if !st.UpdatedAt.IsZero() {
		updated := st.UpdatedAt
		resp.UpdatedAt = &updated
	}

	if st.Dashboard != nil {
		idle := !busy[client.CommandPause] && !busy[client.CommandResume]
		cycle := st.Dashboard.Cycle
		resp.CanPause = cycle.Running && !cycle.Paused && idle
		resp.CanResume = cycle.Running && cycle.Paused && idle
	}
	return resp
}

func (s *Server) runCommand(w http.ResponseWriter, r *http.Request) {
	kind, ok := client.ParseCommand(mux.Vars(r)["kind"])
	if !ok {
		s.writeError(w, http.StatusNotFound, "Unknown command")
		return
	}

	pulseMs := s.defaultPulseMs
	if raw := r.URL.Query().Get("pulseMs"); raw != "" {
		n, err := strconv.ParseUint(raw, 10, 32)
		if err != nil || n == 0 || n > maxPulseMs {
			s.writeError(w, http.StatusBadRequest, fmt.Sprintf("pulseMs must be between 1 and %d", maxPulseMs))
			return
		}
		pulseMs = uint32(n)
	}

	err := s.dispatcher.Run(r.Context(), kind, pulseMs)
	switch {
	case err == nil:
		log.Info().Str("command", string(kind)).Uint32("pulse_ms", pulseMs).Msg("Command issued via API")
		w.WriteHeader(http.StatusNoContent)
	case errors.Is(err, commands.ErrBusy):
		s.writeError(w, http.StatusConflict, "Command already in progress")
	default:
		s.writeJSON(w, http.StatusBadGateway, ErrorResponse{Error: err.Error(), Status: client.StatusOf(err)})
	}
}

func (s *Server) getCommands(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		s.writeJSON(w, http.StatusOK, []model.CommandRecord{})
		return
	}

	limit := defaultHistoryLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > maxHistoryLimit {
			s.writeError(w, http.StatusBadRequest, fmt.Sprintf("limit must be between 1 and %d", maxHistoryLimit))
			return
		}
		limit = n
	}

	records, err := s.history.Recent(limit)
	if err != nil {
		log.Error().Err(err).Msg("Failed to read command log")
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if records == nil {
		records = []model.CommandRecord{}
	}
	s.writeJSON(w, http.StatusOK, records)
}

// stream pushes the current dashboard and then every update over a websocket.
func (s *Server) stream(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn().Err(err).Msg("WebSocket upgrade failed")
		return
	}
	defer conn.Close()

	updates, unsubscribe := s.dashboards.Subscribe()
	defer unsubscribe()

	// reader goroutine only notices the client going away
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	if err := s.writeFrame(conn, s.dashboardResponse()); err != nil {
		return
	}

	ping := time.NewTicker(pingPeriod)
	defer ping.Stop()

	for {
		select {
		case <-closed:
			return
		case <-r.Context().Done():
			return
		case <-updates:
			if err := s.writeFrame(conn, s.dashboardResponse()); err != nil {
				log.Debug().Err(err).Msg("WebSocket client gone")
				return
			}
		case <-ping.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
		}
	}
}

func (s *Server) writeFrame(conn *websocket.Conn, v any) error {
	conn.SetWriteDeadline(time.Now().Add(writeWait))
	return conn.WriteJSON(v)
}

func (s *Server) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" || len(s.allowedOrigins) == 0 {
		return true
	}
	for _, o := range s.allowedOrigins {
		if o == "*" || o == origin {
			return true
		}
	}
	return false
}

func (s *Server) writeJSON(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(data)
}

func (s *Server) writeError(w http.ResponseWriter, statusCode int, message string) {
	s.writeJSON(w, statusCode, ErrorResponse{Error: message})
}
