package admin

import (
	"context"
	"embed"
	"encoding/json"
	"errors"
	"html/template"
	"log/slog"
	"net/http"
	"time"

	"starcam-link/internal/command"
	"starcam-link/internal/link"
	"starcam-link/internal/metrics"
	"starcam-link/internal/receiver"
	"starcam-link/internal/session"
	"starcam-link/internal/track"
	"starcam-link/internal/wire"
)

// Controller is the session surface the admin server drives. *session.Session
// satisfies it.
type Controller interface {
	Connect(ctx context.Context, address string, port int) error
	StartReceiving(ctx context.Context) error
	StopReceiving()
	Disconnect(ctx context.Context) error
	SendCommand(req command.Request) (command.Receipt, error)
	Status() session.Status
	FocusCurve() []track.FocusSample
	Pointing() []track.PointingSample
}

// Target is the camera endpoint used when /connect gets no body.
type Target struct {
	Name    string
	Address string
	Port    int
}

type Server struct {
	ctl    Controller
	target Target
	tpl    *template.Template
	log    *slog.Logger
	// base outlives requests; the receive loop started by /start runs under it.
	base context.Context
}

//go:embed templates/index.html
var content embed.FS

func NewServer(ctl Controller, target Target, logger *slog.Logger) *Server {
	tpl := template.Must(template.New("index.html").ParseFS(content, "templates/index.html"))
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{ctl: ctl, target: target, tpl: tpl, log: logger, base: context.Background()}
}

// Handler returns the admin routes wrapped in the metrics middleware.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", s.handleIndex)
	mux.HandleFunc("GET /status", s.handleStatus)
	mux.HandleFunc("POST /connect", s.handleConnect)
	mux.HandleFunc("POST /start", s.handleStart)
	mux.HandleFunc("POST /stop", s.handleStop)
	mux.HandleFunc("POST /disconnect", s.handleDisconnect)
	mux.HandleFunc("POST /commands", s.handleCommand)
	mux.HandleFunc("GET /focus-curve", s.handleFocusCurve)
	mux.HandleFunc("GET /pointing", s.handlePointing)
	mux.Handle("GET /metrics", metrics.Handler())
	return metrics.Middleware(mux)
}

// Start serves on addr until ctx is done.
func (s *Server) Start(ctx context.Context, addr string) error {
	s.base = ctx
	srv := &http.Server{Addr: addr, Handler: s.Handler(), ReadHeaderTimeout: 5 * time.Second}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()
	return srv.ListenAndServe()
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	data := struct {
		Camera string
		Status session.Status
	}{
		Camera: s.target.Name,
		Status: s.ctl.Status(),
	}
	if err := s.tpl.Execute(w, data); err != nil {
		s.log.Error("render index", "err", err)
	}
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.ctl.Status())
}

type connectRequest struct {
	Address string `json:"address"`
	Port    int    `json:"port"`
}

func (s *Server) handleConnect(w http.ResponseWriter, r *http.Request) {
	req := connectRequest{Address: s.target.Address, Port: s.target.Port}
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
	}
	if req.Address == "" {
		req.Address = s.target.Address
	}
	if req.Port == 0 {
		req.Port = wire.DefaultPort
	}
	if err := s.ctl.Connect(r.Context(), req.Address, req.Port); err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, s.ctl.Status())
}

func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	if err := s.ctl.StartReceiving(s.base); err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusAccepted, s.ctl.Status())
}

func (s *Server) handleStop(w http.ResponseWriter, r *http.Request) {
	s.ctl.StopReceiving()
	writeJSON(w, http.StatusAccepted, s.ctl.Status())
}

func (s *Server) handleDisconnect(w http.ResponseWriter, r *http.Request) {
	if err := s.ctl.Disconnect(r.Context()); err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, s.ctl.Status())
}

func (s *Server) handleCommand(w http.ResponseWriter, r *http.Request) {
	var req command.Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	receipt, err := s.ctl.SendCommand(req)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, receipt)
}

func (s *Server) handleFocusCurve(w http.ResponseWriter, r *http.Request) {
	samples := s.ctl.FocusCurve()
	if samples == nil {
		samples = []track.FocusSample{}
	}
	writeJSON(w, http.StatusOK, samples)
}

func (s *Server) handlePointing(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.ctl.Pointing())
}

// statusFor maps link and command errors onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, link.ErrNotConnected),
		errors.Is(err, link.ErrAlreadyConnected),
		errors.Is(err, receiver.ErrNotIdle),
		errors.Is(err, command.ErrNoTelemetry):
		return http.StatusConflict
	case errors.Is(err, link.ErrConnectFailed), errors.Is(err, link.ErrSendFailed):
		return http.StatusBadGateway
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	}
	return http.StatusBadRequest
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, err error) {
	writeJSON(w, code, map[string]string{"error": err.Error()})
}
