package daemon

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"log/slog"

	"glint/internal/capture"
	"glint/internal/config"
	"glint/internal/device"
	"glint/internal/ipc"
	"glint/internal/logging"
)

type apiServer struct {
	bind   string
	logger *slog.Logger
	daemon *Daemon

	listener net.Listener
	server   *http.Server
}

func newAPIServer(cfg *config.Config, d *Daemon, logger *slog.Logger) (*apiServer, error) {
	if cfg == nil || d == nil {
		return nil, errors.New("api server requires config and daemon")
	}
	bind := strings.TrimSpace(cfg.Paths.APIBind)
	if bind == "" {
		return nil, errors.New("api bind address is empty")
	}

	mux := http.NewServeMux()
	srv := &apiServer{
		bind:   bind,
		logger: logger,
		daemon: d,
	}

	mux.HandleFunc("/api/status", srv.handleStatus)
	mux.HandleFunc("/api/devices", srv.handleDevices)
	mux.HandleFunc("/api/devices/toggle", srv.handleToggle)
	mux.HandleFunc("/api/history", srv.handleHistory)
	mux.HandleFunc("/api/history/clear", srv.handleClearHistory)
	mux.HandleFunc("/api/session/start", srv.handleStart)
	mux.HandleFunc("/api/session/stop", srv.handleStop)
	mux.HandleFunc("/api/session/switch", srv.handleSwitch)
	mux.HandleFunc("/api/session/result/clear", srv.handleClearResult)

	srv.server = &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return srv, nil
}

func (s *apiServer) start(ctx context.Context) error {
	listener, err := net.Listen("tcp", s.bind)
	if err != nil {
		return fmt.Errorf("api listen: %w", err)
	}
	s.listener = listener

	go func() {
		if err := s.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log().Error("api server error", logging.Error(err))
		}
	}()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.server.Shutdown(shutdownCtx)
	}()

	s.log().Info("api server listening", logging.String("address", listener.Addr().String()))
	return nil
}

func (s *apiServer) stop() {
	if s == nil {
		return
	}
	if s.server != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.server.Shutdown(shutdownCtx)
	}
	if s.listener != nil {
		_ = s.listener.Close()
		s.listener = nil
	}
}

// addr returns the bound address, which may differ from the configured
// bind when port 0 was requested.
func (s *apiServer) addr() string {
	if s.listener == nil {
		return s.bind
	}
	return s.listener.Addr().String()
}

func (s *apiServer) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	s.writeJSON(w, http.StatusOK, s.daemon.Status(r.Context()))
}

func (s *apiServer) handleDevices(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	descriptors, selection := s.daemon.Devices(r.Context())
	resolved, _ := device.ResolveDefault(selection, descriptors)

	devices := make([]ipc.Device, 0, len(descriptors))
	for _, d := range descriptors {
		devices = append(devices, ipc.Device{
			ID:       d.ID,
			Label:    d.Label,
			Facing:   string(d.Facing),
			Selected: d.ID == resolved.ID,
		})
	}
	s.writeJSON(w, http.StatusOK, ipc.DevicesResponse{Devices: devices})
}

func (s *apiServer) handleToggle(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	selection, err := s.daemon.ToggleCamera(r.Context())
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, ipc.ToggleResponse{
		DeviceID: selection.DeviceID,
		Facing:   string(selection.Facing),
	})
}

func (s *apiServer) handleHistory(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	records, err := s.daemon.History(r.Context(), limit)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	scans := make([]ipc.HistoryEntry, 0, len(records))
	for _, rec := range records {
		scans = append(scans, ipc.FromRecord(rec))
	}
	s.writeJSON(w, http.StatusOK, ipc.HistoryResponse{Scans: scans})
}

func (s *apiServer) handleClearHistory(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	removed, err := s.daemon.ClearHistory(r.Context())
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, ipc.ClearHistoryResponse{Removed: removed})
}

func (s *apiServer) handleStart(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	started, err := s.daemon.StartSession(r.Context())
	if err != nil {
		s.log().Warn("session start failed", logging.Error(err))
	}
	s.writeJSON(w, http.StatusOK, ipc.StartResponse{
		Started: started,
		Session: ipc.FromSnapshot(s.daemon.Session()),
	})
}

func (s *apiServer) handleStop(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	s.daemon.StopSession(r.Context())
	s.writeJSON(w, http.StatusOK, ipc.StopResponse{
		Session: ipc.FromSnapshot(s.daemon.Session()),
	})
}

func (s *apiServer) handleSwitch(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	var req ipc.SwitchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid switch request")
		return
	}
	target := device.Selection{DeviceID: strings.TrimSpace(req.DeviceID)}
	if facing := strings.TrimSpace(req.Facing); facing != "" {
		target.Facing = capture.ParseFacing(facing)
	}
	switched, err := s.daemon.SwitchCamera(r.Context(), target)
	if err != nil {
		s.log().Warn("camera switch failed", logging.Error(err))
	}
	s.writeJSON(w, http.StatusOK, ipc.SwitchResponse{
		Switched: switched,
		Session:  ipc.FromSnapshot(s.daemon.Session()),
	})
}

func (s *apiServer) handleClearResult(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	s.daemon.ClearResult()
	w.WriteHeader(http.StatusNoContent)
}

func (s *apiServer) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.log().Error("failed to encode response", logging.Error(err))
	}
}

func (s *apiServer) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, ipc.ErrorResponse{Error: message})
}

func (s *apiServer) log() *slog.Logger {
	if s.logger != nil {
		return logging.NewComponentLogger(s.logger, "api-server")
	}
	return logging.NewNop()
}
