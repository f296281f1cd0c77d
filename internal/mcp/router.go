package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"scrivener/internal/api"
	"scrivener/internal/config"
	"scrivener/internal/entities"
	"scrivener/internal/logging"
	"scrivener/internal/queue"
	"scrivener/internal/worker"
)

const (
	sessionHeader   = "Mcp-Session-Id"
	protocolVersion = "2024-11-05"
	serverName      = "scrivener"
	serverVersion   = "0.4.0"
)

// WorkerController is the slice of the scanner the tool surface drives.
type WorkerController interface {
	Start(ctx context.Context)
	Stop()
	Restart(ctx context.Context)
	Status() worker.Status
}

// Server is the MCP endpoint. One URL handles the whole protocol: POST for
// JSON-RPC, GET for the event stream, DELETE for teardown.
type Server struct {
	cfg      *config.Config
	registry *Registry
	queueSvc *api.QueueService
	scanner  WorkerController
	entities entities.Store
	store    *queue.Store
	logger   *slog.Logger

	notifies sync.WaitGroup
}

// NewServer wires the endpoint. The registry is injected so tests and the
// daemon's idle sweeper share the session table.
func NewServer(cfg *config.Config, registry *Registry, queueSvc *api.QueueService, scanner WorkerController, entityStore entities.Store, store *queue.Store, logger *slog.Logger) *Server {
	return &Server{
		cfg:      cfg,
		registry: registry,
		queueSvc: queueSvc,
		scanner:  scanner,
		entities: entityStore,
		store:    store,
		logger:   logging.WithComponent(logger, "mcp"),
	}
}

// Registry exposes the session table for the idle sweeper.
func (s *Server) Registry() *Registry { return s.registry }

// Wait blocks until in-flight notification fan-outs finish. Shutdown only.
func (s *Server) Wait() { s.notifies.Wait() }

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		s.handlePost(w, r)
	case http.MethodGet:
		s.handleStream(w, r)
	case http.MethodDelete:
		s.handleDelete(w, r)
	default:
		w.Header().Set("Allow", "POST, GET, DELETE")
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func (s *Server) handlePost(w http.ResponseWriter, r *http.Request) {
	var req rpcRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeResponse(w, http.StatusBadRequest, errorResponse(nil, codeParseError, "parse error"))
		return
	}
	if req.JSONRPC != jsonrpcVersion || req.Method == "" {
		s.writeResponse(w, http.StatusBadRequest, errorResponse(req.ID, codeInvalidRequest, "invalid request"))
		return
	}

	if req.Method == "initialize" {
		s.handleInitialize(w, &req)
		return
	}

	session := s.resolveSession(w, r)
	if session == nil {
		return
	}
	session.Touch()

	if req.isNotification() {
		s.handleNotification(session, &req)
		w.WriteHeader(http.StatusAccepted)
		return
	}

	resp := s.dispatch(r.Context(), session, &req)
	s.writeResponse(w, http.StatusOK, resp)
}

func (s *Server) handleInitialize(w http.ResponseWriter, req *rpcRequest) {
	session := s.registry.Create()
	s.logger.Info("session created", logging.String(logging.FieldSessionID, session.ID))

	result := map[string]any{
		"protocolVersion": protocolVersion,
		"capabilities": map[string]any{
			"tools": map[string]any{},
			"resources": map[string]any{
				"subscribe": true,
			},
		},
		"serverInfo": map[string]any{
			"name":    serverName,
			"version": serverVersion,
		},
	}
	w.Header().Set(sessionHeader, session.ID)
	s.writeResponse(w, http.StatusOK, resultResponse(req.ID, result))
}

func (s *Server) handleNotification(session *Session, req *rpcRequest) {
	switch req.Method {
	case "notifications/initialized":
		session.MarkInitialized()
		s.logger.Debug("session initialized", logging.String(logging.FieldSessionID, session.ID))
	default:
		// Unrecognized notifications are accepted and ignored.
		s.logger.Debug("notification ignored",
			logging.String(logging.FieldSessionID, session.ID),
			logging.String(logging.FieldMethod, req.Method))
	}
}

func (s *Server) dispatch(ctx context.Context, session *Session, req *rpcRequest) *rpcResponse {
	s.logger.Debug("rpc",
		logging.String(logging.FieldSessionID, session.ID),
		logging.String(logging.FieldMethod, req.Method))

	switch req.Method {
	case "ping":
		return resultResponse(req.ID, map[string]any{})
	case "tools/list":
		return resultResponse(req.ID, map[string]any{"tools": toolDescriptors()})
	case "tools/call":
		return s.handleToolCall(ctx, session, req)
	case "resources/list":
		return s.handleResourcesList(ctx, req)
	case "resources/read":
		return s.handleResourcesRead(ctx, req)
	case "resources/subscribe":
		return s.handleSubscribe(session, req, true)
	case "resources/unsubscribe":
		return s.handleSubscribe(session, req, false)
	default:
		return errorResponse(req.ID, codeMethodNotFound, fmt.Sprintf("method %q not found", req.Method))
	}
}

func (s *Server) handleSubscribe(session *Session, req *rpcRequest, subscribe bool) *rpcResponse {
	var params struct {
		URI string `json:"uri"`
	}
	if err := json.Unmarshal(req.Params, &params); err != nil || params.URI == "" {
		return errorResponse(req.ID, codeInvalidParams, "uri is required")
	}
	if subscribe {
		session.Subscribe(params.URI)
	} else {
		session.Unsubscribe(params.URI)
	}
	s.logger.Debug("subscription changed",
		logging.String(logging.FieldSessionID, session.ID),
		logging.String(logging.FieldURI, params.URI),
		logging.Bool("subscribed", subscribe))
	return resultResponse(req.ID, map[string]any{})
}

// resolveSession looks up the request's session, writing the failure
// response itself. A missing header and an unknown id are distinct
// client errors.
func (s *Server) resolveSession(w http.ResponseWriter, r *http.Request) *Session {
	id := r.Header.Get(sessionHeader)
	if id == "" {
		http.Error(w, "session header required", http.StatusBadRequest)
		return nil
	}
	session := s.registry.Get(id)
	if session == nil {
		http.Error(w, "unknown session", http.StatusNotFound)
		return nil
	}
	return session
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	id := r.Header.Get(sessionHeader)
	if id == "" || !s.registry.Remove(id) {
		http.Error(w, "unknown session", http.StatusNotFound)
		return
	}
	s.logger.Info("session ended", logging.String(logging.FieldSessionID, id))
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	session := s.resolveSession(w, r)
	if session == nil {
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}
	session.Touch()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	sinkID, sink := session.AttachSink()
	defer session.DetachSink(sinkID)

	// Connection marker so clients can confirm the stream is live before
	// any notification arrives.
	fmt.Fprintf(w, "event: connected\ndata: {\"sessionId\":%q}\n\n", session.ID)
	flusher.Flush()

	keepAlive := time.Duration(s.cfg.Workflow.SSEKeepAliveInterval) * time.Second
	if keepAlive <= 0 {
		keepAlive = 15 * time.Second
	}
	ticker := time.NewTicker(keepAlive)
	defer ticker.Stop()

	s.logger.Debug("stream opened", logging.String(logging.FieldSessionID, session.ID))
	for {
		select {
		case <-r.Context().Done():
			s.logger.Debug("stream closed", logging.String(logging.FieldSessionID, session.ID))
			return
		case <-ticker.C:
			fmt.Fprint(w, ": keep-alive\n\n")
			flusher.Flush()
		case payload, open := <-sink:
			if !open {
				return
			}
			fmt.Fprintf(w, "event: message\ndata: %s\n\n", payload)
			flusher.Flush()
			session.Touch()
		}
	}
}

func (s *Server) writeResponse(w http.ResponseWriter, status int, resp *rpcResponse) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		s.logger.Error("response encode failed", logging.Error(err))
	}
}
