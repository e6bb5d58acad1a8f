package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/rahul/vibe/internal/agent"
	"github.com/rahul/vibe/internal/llm"
	"github.com/rahul/vibe/internal/mount"
	"github.com/rahul/vibe/internal/plan"
	"github.com/rahul/vibe/internal/preview"
	"github.com/rahul/vibe/internal/sandbox"
)

const maxBodyBytes = 1 << 20

// Server is the HTTP API.
type Server struct {
	Addr    string
	Builder *agent.Builder
	Sandbox *sandbox.Manager
	Preview *preview.Browser

	mu       sync.RWMutex
	server   *http.Server
	listener net.Listener
	started  bool
}

func NewServer(addr string, b *agent.Builder, sb *sandbox.Manager, pv *preview.Browser) *Server {
	return &Server{Addr: addr, Builder: b, Sandbox: sb, Preview: pv}
}

// Handler returns the routes wrapped in the CORS middleware.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	s.setupRoutes(mux)
	return withCORS(mux)
}

// Start serves until Stop is called.
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return errors.New("server already started")
	}

	listener, err := net.Listen("tcp", s.Addr)
	if err != nil {
		s.mu.Unlock()
		return fmt.Errorf("failed to listen on %s: %w", s.Addr, err)
	}
	s.listener = listener

	s.server = &http.Server{
		Handler:      s.Handler(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 10 * time.Minute, // planning calls are slow
		IdleTimeout:  120 * time.Second,
		BaseContext:  func(net.Listener) context.Context { return ctx },
	}
	s.started = true
	s.mu.Unlock()

	log.Printf("HTTP API listening on %s", listener.Addr())
	err = s.server.Serve(listener)
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}

// Stop gracefully shuts down the server.
func (s *Server) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started || s.server == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutdown error: %w", err)
	}
	s.started = false
	return nil
}

// ListenAddr returns the address the server is listening on, or "" before
// Start.
func (s *Server) ListenAddr() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

func (s *Server) setupRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /template", s.handleTemplate)
	mux.HandleFunc("POST /chat", s.handleComplete)

	mux.HandleFunc("POST /sessions", s.handleStart)
	mux.HandleFunc("GET /sessions/{id}", s.handleGet)
	mux.HandleFunc("DELETE /sessions/{id}", s.handleDelete)
	mux.HandleFunc("POST /sessions/{id}/chat", s.handleChat)
	mux.HandleFunc("GET /sessions/{id}/tree", s.handleTree)
	mux.HandleFunc("GET /sessions/{id}/mount", s.handleMount)
	mux.HandleFunc("GET /sessions/{id}/export", s.handleExport)
	mux.HandleFunc("POST /sessions/{id}/run", s.handleRun)
	mux.HandleFunc("GET /sessions/{id}/run", s.handleRunStatus)
	mux.HandleFunc("GET /sessions/{id}/preview", s.handlePreview)
}

func withCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		h.Set("Access-Control-Allow-Origin", "*")
		h.Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		h.Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

type errorBody struct {
	Message string `json:"message"`
}

var errBadRequest = errors.New("invalid request")

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("[http] encode response: %v", err)
	}
}

func readJSON(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return fmt.Errorf("%w: %v", errBadRequest, err)
	}
	return nil
}

// statusFor maps an error to its HTTP status and client message.
func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, agent.ErrClassificationRejected):
		return http.StatusForbidden, "You cant access this"
	case errors.Is(err, sandbox.ErrDenied):
		return http.StatusForbidden, err.Error()
	case errors.Is(err, agent.ErrSessionNotFound):
		return http.StatusNotFound, "Session not found"
	case errors.Is(err, errBadRequest), errors.Is(err, agent.ErrEmptyPrompt), errors.Is(err, llm.ErrNoAPIKey):
		return http.StatusBadRequest, err.Error()
	case errors.Is(err, sandbox.ErrNoManifest), errors.Is(err, sandbox.ErrAlreadyStarted), errors.Is(err, sandbox.ErrNotReady):
		return http.StatusConflict, err.Error()
	default:
		return http.StatusInternalServerError, "Internal server error"
	}
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, msg := statusFor(err)
	if status == http.StatusInternalServerError {
		log.Printf("[http] %s %s: %v", r.Method, r.URL.Path, err)
	}
	writeJSON(w, status, errorBody{Message: msg})
}

func (s *Server) handleTemplate(w http.ResponseWriter, r *http.Request) {
	var req agent.StartRequest
	if err := readJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	tmpl, err := s.Builder.Template(r.Context(), req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, tmpl)
}

func (s *Server) handleComplete(w http.ResponseWriter, r *http.Request) {
	var req agent.CompleteRequest
	if err := readJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	resp, err := s.Builder.Complete(r.Context(), req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"response": resp})
}

func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	var req agent.StartRequest
	if err := readJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	sess, err := s.Builder.Start(r.Context(), req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, sess)
}

func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	sess, err := s.Builder.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sess)
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if s.Sandbox != nil {
		s.Sandbox.Stop(id)
	}
	if err := s.Builder.Delete(r.Context(), id); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type chatRequest struct {
	Message string `json:"message"`
}

type chatResponse struct {
	*agent.Session
	NewSteps []plan.Step `json:"new_steps"`
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := readJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	id := r.PathValue("id")
	sess, added, err := s.Builder.Chat(r.Context(), id, req.Message)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if s.Sandbox != nil {
		if err := s.Sandbox.Remount(r.Context(), id, mount.Project(sess.Tree)); err != nil {
			log.Printf("[http] remount %s: %v", id, err)
		}
	}
	writeJSON(w, http.StatusOK, chatResponse{Session: sess, NewSteps: added})
}

func (s *Server) handleTree(w http.ResponseWriter, r *http.Request) {
	sess, err := s.Builder.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	if r.URL.Query().Get("format") == "text" {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.Write([]byte(sess.Tree.Render()))
		return
	}
	writeJSON(w, http.StatusOK, sess.Tree)
}

func (s *Server) handleMount(w http.ResponseWriter, r *http.Request) {
	sess, err := s.Builder.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, mount.Project(sess.Tree))
}

func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	sess, err := s.Builder.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	var buf bytes.Buffer
	if err := sess.Tree.WriteZip(&buf); err != nil {
		writeError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "application/zip")
	w.Header().Set("Content-Disposition", `attachment; filename="project.zip"`)
	w.Write(buf.Bytes())
}

func (s *Server) handleRun(w http.ResponseWriter, r *http.Request) {
	if s.Sandbox == nil {
		writeJSON(w, http.StatusNotImplemented, errorBody{Message: "sandbox disabled"})
		return
	}
	id := r.PathValue("id")
	sess, err := s.Builder.Get(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	o, err := s.Sandbox.Start(r.Context(), id, mount.Project(sess.Tree))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, o.Status())
}

func (s *Server) handleRunStatus(w http.ResponseWriter, r *http.Request) {
	if s.Sandbox == nil {
		writeJSON(w, http.StatusNotImplemented, errorBody{Message: "sandbox disabled"})
		return
	}
	o, ok := s.Sandbox.Get(r.PathValue("id"))
	if !ok {
		writeJSON(w, http.StatusNotFound, errorBody{Message: "Project not started"})
		return
	}
	writeJSON(w, http.StatusOK, o.Status())
}

func (s *Server) handlePreview(w http.ResponseWriter, r *http.Request) {
	if s.Sandbox == nil || s.Preview == nil {
		writeJSON(w, http.StatusNotImplemented, errorBody{Message: "preview disabled"})
		return
	}
	o, ok := s.Sandbox.Get(r.PathValue("id"))
	if !ok {
		writeError(w, r, sandbox.ErrNotReady)
		return
	}
	url, err := o.URL()
	if err != nil {
		writeError(w, r, err)
		return
	}

	if r.URL.Query().Get("format") == "html" {
		html, err := s.Preview.HTML(r.Context(), url)
		if err != nil {
			writeError(w, r, err)
			return
		}
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.Write([]byte(html))
		return
	}

	png, err := s.Preview.Capture(r.Context(), url)
	if err != nil {
		writeError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Write(png)
}
