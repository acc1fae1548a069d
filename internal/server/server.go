// Package server exposes the leave assistant over HTTP: the streamed chat
// endpoint, direct OA endpoints and the web page.
package server

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/jayceecory-tech/ai-qingjia/internal/runtime"
	"github.com/jayceecory-tech/ai-qingjia/internal/types"
	"github.com/jayceecory-tech/ai-qingjia/pkg/llm"
)

//go:embed static/index.html
var indexHTML []byte

// Exchanges runs chat exchanges; *gateway.Gateway implements it.
type Exchanges interface {
	Handle(ctx context.Context, req runtime.Request, sink runtime.Sink) (types.ExchangeID, error)
	Active() int64
	Total() int64
}

// Options configures optional parts of the server.
type Options struct {
	// StaticDir, when set, is served under /static/.
	StaticDir string
	// ShutdownGrace bounds how long running exchanges may continue after
	// shutdown starts. Zero means DefaultShutdownGrace.
	ShutdownGrace time.Duration
}

// DefaultShutdownGrace is the shutdown grace used when Options leaves it unset.
const DefaultShutdownGrace = 10 * time.Second

// maxBodyBytes caps request bodies on the JSON endpoints.
const maxBodyBytes = 1 << 20

// ErrShuttingDown is the cancellation cause of exchanges still running when
// the shutdown grace expires. Clients receive it as an error event.
var ErrShuttingDown = errors.New("server shutting down")

// Server is the HTTP front end.
type Server struct {
	exchanges Exchanges
	backend   types.LeaveBackend
	router    chi.Router
	grace     time.Duration
}

// New creates a Server routing chat to exchanges and the direct leave
// endpoints to backend.
func New(exchanges Exchanges, backend types.LeaveBackend, opts Options) *Server {
	s := &Server{
		exchanges: exchanges,
		backend:   backend,
		grace:     opts.ShutdownGrace,
	}
	if s.grace <= 0 {
		s.grace = DefaultShutdownGrace
	}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"*"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/health", s.handleHealth)
	r.Post("/api/chat/stream", s.handleChatStream)
	r.Post("/api/leave/balance", s.handleLeaveBalance)
	r.Post("/api/leave/request", s.handleLeaveRequest)
	r.Get("/", s.handleIndex)
	if opts.StaticDir != "" {
		r.Handle("/static/*", http.StripPrefix("/static/", http.FileServer(http.Dir(opts.StaticDir))))
	}

	s.router = r
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// ListenAndServe serves on addr until ctx is cancelled, then shuts down
// gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve accepts connections on ln until ctx is cancelled. Requests do not
// inherit ctx: running exchanges get the shutdown grace to finish, and those
// still running afterwards are cancelled with ErrShuttingDown so their
// clients receive an error and done.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	base, stop := context.WithCancelCause(context.WithoutCancel(ctx))
	defer stop(nil)

	srv := &http.Server{
		Handler:           s,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return base },
	}

	errc := make(chan error, 1)
	go func() {
		slog.Info("http server listening", "addr", ln.Addr().String())
		errc <- srv.Serve(ln)
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}

	graceCtx, cancel := context.WithTimeout(context.Background(), s.grace)
	defer cancel()
	err := srv.Shutdown(graceCtx)
	if errors.Is(err, context.DeadlineExceeded) {
		slog.Warn("shutdown grace expired, cancelling exchanges", "active_exchanges", s.exchanges.Active())
		stop(ErrShuttingDown)
		drainCtx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		if err = srv.Shutdown(drainCtx); err != nil {
			srv.Close()
		}
	}
	if err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	if err := <-errc; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":           "ok",
		"active_exchanges": s.exchanges.Active(),
		"total_exchanges":  s.exchanges.Total(),
	})
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write(indexHTML)
}

func (s *Server) handleChatStream(w http.ResponseWriter, r *http.Request) {
	var body types.ChatRequest
	if !decodeBody(w, r, &body) {
		return
	}
	req, err := toRequest(&body)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	sse := newSSEWriter(w)
	id, err := s.exchanges.Handle(r.Context(), req, sse)
	if err != nil && !sse.started {
		slog.Warn("chat stream ended before any event", "exchange_id", id, "error", err)
		if cause := context.Cause(r.Context()); errors.Is(cause, ErrShuttingDown) {
			writeError(w, http.StatusServiceUnavailable, cause.Error())
		}
	}
}

// toRequest validates a chat body and converts it to an exchange request.
func toRequest(body *types.ChatRequest) (runtime.Request, error) {
	if strings.TrimSpace(body.Message) == "" {
		return runtime.Request{}, errors.New("message is required")
	}
	history := make([]llm.Message, 0, len(body.History))
	for i, m := range body.History {
		switch m.Role {
		case llm.RoleUser, llm.RoleAssistant:
		default:
			return runtime.Request{}, fmt.Errorf("history[%d]: role must be user or assistant, got %q", i, m.Role)
		}
		history = append(history, llm.Message{Role: m.Role, Content: m.Content})
	}
	return runtime.Request{
		Message:    body.Message,
		EmployeeID: strings.TrimSpace(body.EmployeeID),
		History:    history,
	}, nil
}

func (s *Server) handleLeaveBalance(w http.ResponseWriter, r *http.Request) {
	var q types.LeaveBalanceQuery
	if !decodeBody(w, r, &q) {
		return
	}
	if strings.TrimSpace(q.EmployeeID) == "" {
		writeError(w, http.StatusUnprocessableEntity, "employee_id is required")
		return
	}
	if q.LeaveType != nil && !q.LeaveType.Valid() {
		writeError(w, http.StatusUnprocessableEntity, fmt.Sprintf("unknown leave_type %q", *q.LeaveType))
		return
	}

	resp, err := s.backend.QueryLeaveBalance(r.Context(), q.EmployeeID, q.LeaveType)
	if err != nil {
		slog.Error("query leave balance failed", "employee_id", q.EmployeeID, "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleLeaveRequest(w http.ResponseWriter, r *http.Request) {
	var req types.LeaveRequest
	if !decodeBody(w, r, &req) {
		return
	}

	resp, err := s.backend.SubmitLeaveRequest(r.Context(), &req)
	switch {
	case errors.Is(err, types.ErrInvalidLeaveRequest):
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	case err != nil:
		slog.Error("submit leave request failed", "employee_id", req.EmployeeID, "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// decodeBody reads a JSON body of at most maxBodyBytes into v, writing the
// error response itself when it fails.
func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(v)
	var tooLarge *http.MaxBytesError
	switch {
	case errors.As(err, &tooLarge):
		writeError(w, http.StatusRequestEntityTooLarge, fmt.Sprintf("request body exceeds %d bytes", tooLarge.Limit))
		return false
	case err != nil:
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	enc.Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
