package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"
	"github.com/harun/radbridge/internal/observability"
	"github.com/harun/radbridge/internal/tracing"
	"github.com/harun/radbridge/pkg/bridge"
	"github.com/harun/radbridge/pkg/eventbus"
	gonanoid "github.com/matoous/go-nanoid/v2"
	"github.com/rs/zerolog"
)

const (
	DefaultAddr         = "127.0.0.1:7450"
	DefaultTickInterval = 30 * time.Second

	// SecretHeader authenticates /rpc requests when a shared secret is set
	SecretHeader  = "X-Radbridge-Secret"
	TraceIDHeader = "X-Trace-Id"

	maxRPCBodyBytes = 4 << 20
	drainTimeout    = 30 * time.Second
)

// Config holds server configuration
type Config struct {
	Addr         string
	SharedSecret string
	// TickInterval is the keepalive event period; negative disables it
	TickInterval      time.Duration
	RequestsPerMinute int
	MaxConcurrent     int
	Service           *bridge.Service
	// Bus, when set, has its topics forwarded to authenticated clients
	Bus    *eventbus.Bus
	Logger zerolog.Logger
}

// Server is the front-end gateway in front of a bridge.Service
type Server struct {
	addr              string
	tickInterval      time.Duration
	requestsPerMinute int
	maxConcurrent     int
	service           *bridge.Service
	upgrader          websocket.Upgrader
	clients           *ClientRegistry
	router            *RPCRouter
	authHandler       *AuthHandler
	broadcaster       *EventBroadcaster
	handler           http.Handler
	logger            zerolog.Logger

	ctx    context.Context
	cancel context.CancelFunc

	shutdownMu     sync.RWMutex
	isShuttingDown bool
	inFlightReqs   sync.WaitGroup
	unsubscribe    []func()
	tickWG         sync.WaitGroup
	closeOnce      sync.Once
}

// NewServer creates a gateway and subscribes it to the bus
func NewServer(cfg Config) (*Server, error) {
	if cfg.Service == nil {
		return nil, fmt.Errorf("bridge service is required")
	}
	if cfg.Addr == "" {
		cfg.Addr = DefaultAddr
	}
	if cfg.SharedSecret == "" && !isLoopback(cfg.Addr) {
		return nil, fmt.Errorf("shared secret is required to listen on %s", cfg.Addr)
	}
	if cfg.TickInterval == 0 {
		cfg.TickInterval = DefaultTickInterval
	}

	clients := NewClientRegistry()
	ctx, cancel := context.WithCancel(context.Background())

	s := &Server{
		addr:              cfg.Addr,
		tickInterval:      cfg.TickInterval,
		requestsPerMinute: cfg.RequestsPerMinute,
		maxConcurrent:     cfg.MaxConcurrent,
		service:           cfg.Service,
		clients:           clients,
		router:            NewRPCRouter(),
		authHandler:       NewAuthHandler(cfg.SharedSecret),
		broadcaster:       NewEventBroadcaster(clients, cfg.Logger),
		logger:            cfg.Logger,
		ctx:               ctx,
		cancel:            cancel,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
	}

	s.registerBridgeMethods()
	s.handler = s.routes()

	if cfg.Bus != nil {
		for _, topic := range []string{eventbus.TopicToolRequest, eventbus.TopicStreamEvent} {
			unsubscribe, err := cfg.Bus.Subscribe(topic, func(ev eventbus.Event) {
				s.broadcaster.Forward(ev)
			})
			if err != nil {
				s.Close()
				return nil, fmt.Errorf("failed to forward %s: %w", topic, err)
			}
			s.unsubscribe = append(s.unsubscribe, unsubscribe)
		}
	}

	s.startTickEmitter()
	return s, nil
}

func (s *Server) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/ws", s.handleWebSocket)
	r.Post("/rpc", s.handleRPC)
	r.Method(http.MethodGet, "/metrics", observability.MetricsHandler())
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	return r
}

// Handler returns the gateway's HTTP handler
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Serve listens on the configured address until ctx is cancelled, then
// shuts down gracefully
func (s *Server) Serve(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.addr, err)
	}

	srv := &http.Server{
		Handler:           s.handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	s.logger.Info().
		Str("addr", ln.Addr().String()).
		Bool("auth", s.authHandler.Required()).
		Msg("Starting Gateway Server")

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Serve(ln)
	}()

	select {
	case err := <-errCh:
		s.Close()
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("gateway server error: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), drainTimeout)
	defer cancel()

	s.Shutdown(shutdownCtx)
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shutdown server: %w", err)
	}
	s.logger.Info().Msg("Gateway Server stopped")
	return nil
}

// Shutdown stops accepting requests, waits for in-flight ones until ctx
// ends, and disconnects every client
func (s *Server) Shutdown(ctx context.Context) {
	s.shutdownMu.Lock()
	s.isShuttingDown = true
	s.shutdownMu.Unlock()

	s.logger.Info().Msg("Shutting down Gateway Server")
	s.broadcaster.Broadcast("server.shutdown", map[string]interface{}{
		"message": "Server is shutting down",
	})

	done := make(chan struct{})
	go func() {
		s.inFlightReqs.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.logger.Info().Msg("All in-flight requests completed")
	case <-ctx.Done():
		s.logger.Warn().Msg("Shutdown timeout reached, forcing close")
	}

	s.Close()
}

// Close releases bus subscriptions, stops the tick emitter and drops all
// clients without waiting
func (s *Server) Close() {
	s.closeOnce.Do(func() {
		s.cancel()
		for _, unsubscribe := range s.unsubscribe {
			unsubscribe()
		}
		s.tickWG.Wait()
		for _, client := range s.clients.Snapshot(false) {
			client.Conn.Close()
		}
	})
}

func (s *Server) shuttingDown() bool {
	s.shutdownMu.RLock()
	defer s.shutdownMu.RUnlock()
	return s.isShuttingDown
}

func (s *Server) startTickEmitter() {
	if s.tickInterval <= 0 {
		return
	}

	s.tickWG.Add(1)
	go func() {
		defer s.tickWG.Done()

		ticker := time.NewTicker(s.tickInterval)
		defer ticker.Stop()

		for {
			select {
			case <-s.ctx.Done():
				return
			case <-ticker.C:
				s.broadcaster.Broadcast("tick", map[string]interface{}{
					"status":       "alive",
					"pendingTools": s.service.Session().Table().Len(),
				})
			}
		}
	}()
}

// handleWebSocket handles WebSocket connections
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	if s.shuttingDown() {
		http.Error(w, "Server is shutting down", http.StatusServiceUnavailable)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error().Err(err).Msg("Failed to upgrade connection")
		return
	}

	clientID, err := gonanoid.New()
	if err != nil {
		s.logger.Error().Err(err).Msg("Failed to generate client id")
		conn.Close()
		return
	}

	now := time.Now()
	client := &Client{
		ID:           clientID,
		Conn:         conn,
		ConnectedAt:  now,
		LastActivity: now,
		IPAddress:    r.RemoteAddr,
		RateLimiter:  NewClientRateLimiterWithLimits(s.requestsPerMinute, s.maxConcurrent),
		State:        StateConnecting,
	}

	if err := s.greet(client); err != nil {
		s.logger.Error().Err(err).Str("clientId", clientID).Msg("Failed to greet client")
		conn.Close()
		return
	}

	s.clients.Add(client)
	s.logger.Info().
		Str("clientId", clientID).
		Str("ip", r.RemoteAddr).
		Bool("authenticated", client.IsAuthenticated()).
		Msg("Client connected")

	go s.handleClient(client)
}

// greet sends a challenge, or admits the client directly in trusted mode
func (s *Server) greet(client *Client) error {
	if !s.authHandler.Required() {
		client.markAuthenticated()
		return client.WriteJSON(AuthResult{Event: "auth.success", Success: true, ClientID: client.ID})
	}

	challenge, err := s.authHandler.GenerateChallenge()
	if err != nil {
		return err
	}
	client.Challenge = challenge
	client.State = StateAuthenticating

	return client.WriteJSON(AuthChallenge{
		Event:     "auth.challenge",
		Challenge: challenge,
	})
}

// handleClient reads messages until the client disconnects
func (s *Server) handleClient(client *Client) {
	ctx, cancel := context.WithCancel(tracing.WithClientID(s.ctx, client.ID))
	defer func() {
		cancel()
		client.Conn.Close()
		client.State = StateDisconnected
		s.clients.Remove(client.ID)
		s.logger.Info().Str("clientId", client.ID).Msg("Client disconnected")
	}()

	for {
		_, message, err := client.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				s.logger.Error().Err(err).Str("clientId", client.ID).Msg("WebSocket error")
			}
			return
		}

		s.clients.Touch(client.ID)
		s.handleMessage(ctx, client, message)
	}
}

// handleMessage handles a single message from a client
func (s *Server) handleMessage(ctx context.Context, client *Client, message []byte) {
	var authResp AuthResponse
	if err := json.Unmarshal(message, &authResp); err == nil && authResp.Method == "auth.response" {
		s.handleAuthMessage(client, authResp)
		return
	}

	if !client.IsAuthenticated() {
		s.sendError(client, "", &RPCError{Code: AuthenticationRequired, Message: "Authentication required"})
		return
	}

	req, err := s.router.ParseRequest(message)
	if err != nil {
		s.sendError(client, "", asRPCError(err))
		return
	}

	if s.shuttingDown() {
		s.sendError(client, req.ID, &RPCError{Code: InternalError, Message: "Server is shutting down"})
		return
	}

	allowed, code, reason := client.RateLimiter.Acquire()
	if !allowed {
		s.sendError(client, req.ID, &RPCError{Code: code, Message: reason})
		return
	}

	s.inFlightReqs.Add(1)
	go func() {
		defer s.inFlightReqs.Done()
		defer client.RateLimiter.Release()

		reqCtx := tracing.WithTraceID(ctx, tracing.NewTraceID())
		logger := tracing.LoggerFromContext(reqCtx, s.logger)
		logger.Debug().
			Str("request_id", req.ID).
			Str("method", req.Method).
			Msg("Gateway received WebSocket RPC request")

		response := s.router.RouteRequest(reqCtx, req)
		if err := client.WriteJSON(response); err != nil {
			logger.Error().
				Err(err).
				Str("request_id", req.ID).
				Msg("Failed to send response")
		}
	}()
}

// handleRPC handles single-shot HTTP JSON-RPC requests
func (s *Server) handleRPC(w http.ResponseWriter, r *http.Request) {
	if s.authHandler.Required() && !s.authHandler.VerifySecret(r.Header.Get(SecretHeader)) {
		observability.RecordSecurityAudit(r.Context(), "rpc_secret", r.RemoteAddr, "rejected", nil)
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxRPCBodyBytes))
	if err != nil {
		http.Error(w, "failed to read request body", http.StatusBadRequest)
		return
	}

	w.Header().Set("Content-Type", "application/json")

	req, err := s.router.ParseRequest(body)
	if err != nil {
		w.WriteHeader(http.StatusBadRequest)
		_ = json.NewEncoder(w).Encode(errorResponse("", asRPCError(err)))
		return
	}

	traceID := r.Header.Get(TraceIDHeader)
	if traceID == "" {
		traceID = tracing.NewTraceID()
	}
	ctx := tracing.WithTraceID(r.Context(), traceID)
	logger := tracing.LoggerFromContext(ctx, s.logger)
	logger.Info().
		Str("request_id", req.ID).
		Str("method", req.Method).
		Msg("Gateway received HTTP RPC request")

	s.inFlightReqs.Add(1)
	resp := s.router.RouteRequest(ctx, req)
	s.inFlightReqs.Done()

	w.Header().Set(TraceIDHeader, traceID)
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		logger.Error().Err(err).Msg("Failed to encode RPC response")
	}
}

// handleAuthMessage handles authentication messages
func (s *Server) handleAuthMessage(client *Client, authResp AuthResponse) {
	result := s.authHandler.HandleAuthResponse(client, authResp.Signature)

	if err := client.WriteJSON(result); err != nil {
		s.logger.Error().Err(err).Str("clientId", client.ID).Msg("Failed to send auth result")
		return
	}

	if result.Success {
		observability.RecordSecurityAudit(s.ctx, "auth", client.ID, "accepted", nil)
		s.logger.Info().Str("clientId", client.ID).Msg("Client authenticated")
		return
	}

	observability.RecordSecurityAudit(s.ctx, "auth", client.ID, "rejected", map[string]interface{}{
		"reason":   result.Message,
		"attempts": client.AuthAttempts,
	})

	s.logger.Warn().
		Str("clientId", client.ID).
		Str("reason", result.Message).
		Msg("Authentication failed")
	if client.AuthAttempts >= maxAuthAttempts {
		client.Conn.Close()
	}
}

// sendError sends an error response to a client
func (s *Server) sendError(client *Client, requestID string, rpcErr *RPCError) {
	if err := client.WriteJSON(errorResponse(requestID, rpcErr)); err != nil {
		s.logger.Error().
			Err(err).
			Str("clientId", client.ID).
			Msg("Failed to send error response")
	}
}

// Broadcast sends an event to all authenticated clients
func (s *Server) Broadcast(event string, data interface{}) int {
	return s.broadcaster.Broadcast(event, data)
}

// RegisterMethod registers an additional RPC method handler
func (s *Server) RegisterMethod(name string, handler RequestHandler) error {
	return s.router.RegisterMethod(name, handler)
}

// Methods lists the registered RPC methods
func (s *Server) Methods() []string {
	return s.router.GetMethods()
}

// GetConnectedClients returns information about all connected clients
func (s *Server) GetConnectedClients() []ClientInfo {
	return s.clients.Infos()
}

func isLoopback(addr string) bool {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		return false
	}
	if host == "localhost" {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}
