package bridge

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/harun/radbridge/internal/observability"
	"github.com/harun/radbridge/internal/tracing"
	"github.com/harun/radbridge/pkg/a2a"
	"github.com/rs/zerolog"
)

const (
	DefaultHost          = "127.0.0.1"
	DefaultPollInterval  = 200 * time.Millisecond
	DefaultMaxAttempts   = 50
	DefaultProbeTimeout  = time.Second
	DefaultReadinessPath = a2a.AgentCardPath
)

var errServerExited = errors.New("agent server exited before becoming ready")

// Runtime is an agent server the supervisor can run
type Runtime interface {
	// Serve listens on addr until ctx is done
	Serve(ctx context.Context, addr string) error
}

// SupervisorConfig configures a Supervisor
type SupervisorConfig struct {
	Host          string
	ReadinessPath string
	PollInterval  time.Duration
	MaxAttempts   int
	ProbeTimeout  time.Duration
	// HTTPClient is used for readiness checks and the returned handle. It
	// must not carry a Timeout shorter than a chat or stream; readiness
	// checks are bounded by ProbeTimeout through their context.
	HTTPClient *http.Client
	Logger     zerolog.Logger
}

// Supervisor starts agent servers on ephemeral loopback ports
type Supervisor struct {
	cfg    SupervisorConfig
	logger zerolog.Logger
}

// NewSupervisor creates a supervisor, filling unset fields with defaults
func NewSupervisor(cfg SupervisorConfig) *Supervisor {
	if cfg.Host == "" {
		cfg.Host = DefaultHost
	}
	if cfg.ReadinessPath == "" {
		cfg.ReadinessPath = DefaultReadinessPath
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = DefaultMaxAttempts
	}
	if cfg.ProbeTimeout <= 0 {
		cfg.ProbeTimeout = DefaultProbeTimeout
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{}
	}

	return &Supervisor{
		cfg:    cfg,
		logger: cfg.Logger.With().Str("component", "supervisor").Logger(),
	}
}

// AgentHandle is a running agent server and a client connected to it. It is
// read-only once Start returns it.
type AgentHandle struct {
	BaseURL string
	Client  *a2a.Client
	Card    *a2a.AgentCard

	retries int
	cancel  context.CancelFunc
	done    chan struct{}

	mu  sync.Mutex
	err error
}

// ReadinessRetries returns how many probes failed before the server answered
func (h *AgentHandle) ReadinessRetries() int {
	return h.retries
}

// Err returns the error the server exited with, if any
func (h *AgentHandle) Err() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.err
}

// Done is closed when the server goroutine returns
func (h *AgentHandle) Done() <-chan struct{} {
	return h.done
}

// Close stops the server and waits for it to exit or ctx to end
func (h *AgentHandle) Close(ctx context.Context) error {
	h.cancel()
	select {
	case <-h.done:
		return h.Err()
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (h *AgentHandle) setErr(err error) {
	h.mu.Lock()
	h.err = err
	h.mu.Unlock()
}

// Start runs rt on a free loopback port and waits until it answers. The
// server outlives ctx; stop it with AgentHandle.Close. Every failure is a
// *StartupError and leaves nothing running.
func (s *Supervisor) Start(ctx context.Context, rt Runtime) (*AgentHandle, error) {
	start := time.Now()

	handle, err := s.start(ctx, rt)
	if err != nil {
		var se *StartupError
		result := "error"
		if errors.As(err, &se) {
			result = string(se.Kind)
		}
		observability.RecordAgentStartup(result, time.Since(start), 0)
		s.logger.Error().Err(err).Msg("Agent server failed to start")
		return nil, err
	}

	observability.RecordAgentStartup("success", time.Since(start), handle.retries)
	s.logger.Info().
		Str("base_url", handle.BaseURL).
		Int("retries", handle.retries).
		Dur("elapsed", time.Since(start)).
		Msg("Agent server ready")
	return handle, nil
}

func (s *Supervisor) start(ctx context.Context, rt Runtime) (*AgentHandle, error) {
	addr, err := reservePort(s.cfg.Host)
	if err != nil {
		return nil, &StartupError{Kind: StartupBind, Err: err}
	}

	// the server lives until Close, not until the caller's ctx ends
	serverCtx, cancel := context.WithCancel(tracing.Detach(ctx))
	handle := &AgentHandle{
		BaseURL: "http://" + addr,
		cancel:  cancel,
		done:    make(chan struct{}),
	}

	go func() {
		defer close(handle.done)
		if err := rt.Serve(serverCtx, addr); err != nil {
			handle.setErr(err)
			s.logger.Error().Err(err).Str("addr", addr).Msg("Agent server exited")
		}
	}()

	fail := func(err error) (*AgentHandle, error) {
		cancel()
		<-handle.done
		return nil, err
	}

	retries, attempts, err := s.awaitReady(ctx, handle)
	if err != nil {
		switch {
		case errors.Is(err, errServerExited):
			if serveErr := handle.Err(); serveErr != nil {
				err = serveErr
			}
			return fail(&StartupError{Kind: StartupSpawn, Attempts: attempts, Err: err})
		case ctx.Err() != nil:
			return fail(&StartupError{Kind: StartupCancelled, Attempts: attempts, Err: ctx.Err()})
		default:
			return fail(&StartupError{Kind: StartupTimeout, Attempts: attempts, Err: err})
		}
	}
	handle.retries = retries

	client := a2a.NewClient(handle.BaseURL, a2a.WithHTTPClient(s.cfg.HTTPClient))
	cardCtx, cancel := context.WithTimeout(ctx, s.cfg.ProbeTimeout)
	card, err := client.Card(cardCtx)
	cancel()
	if err != nil {
		return fail(&StartupError{Kind: StartupClient, Attempts: attempts, Err: err})
	}
	handle.Client = client
	handle.Card = card

	return handle, nil
}

// awaitReady probes the readiness URL until any HTTP response arrives
func (s *Supervisor) awaitReady(ctx context.Context, handle *AgentHandle) (retries, attempts int, err error) {
	url := handle.BaseURL + s.cfg.ReadinessPath

	probe := func() error {
		attempts++
		select {
		case <-handle.done:
			return backoff.Permanent(errServerExited)
		default:
		}

		probeCtx, cancel := context.WithTimeout(ctx, s.cfg.ProbeTimeout)
		defer cancel()

		req, err := http.NewRequestWithContext(probeCtx, http.MethodGet, url, nil)
		if err != nil {
			return backoff.Permanent(err)
		}
		resp, err := s.cfg.HTTPClient.Do(req)
		if err != nil {
			return err
		}
		resp.Body.Close()
		return nil
	}

	notify := func(err error, next time.Duration) {
		retries++
		s.logger.Debug().Err(err).Int("attempt", attempts).Msg("Agent server not ready")
	}

	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewConstantBackOff(s.cfg.PollInterval), uint64(s.cfg.MaxAttempts-1)),
		ctx,
	)
	if err := backoff.RetryNotify(probe, policy, notify); err != nil {
		return retries, attempts, err
	}
	return retries, attempts, nil
}

// reservePort finds a free port on host. The port is released before the
// server binds it, so another process may take it in between; the server
// then fails to listen and Start reports a spawn error.
func reservePort(host string) (string, error) {
	ln, err := net.Listen("tcp", net.JoinHostPort(host, "0"))
	if err != nil {
		return "", fmt.Errorf("failed to reserve port on %s: %w", host, err)
	}
	addr := ln.Addr().String()
	if err := ln.Close(); err != nil {
		return "", fmt.Errorf("failed to release reserved port: %w", err)
	}
	return addr, nil
}
