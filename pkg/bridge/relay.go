package bridge

import (
	"context"
	"errors"
	"io"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/harun/radbridge/internal/observability"
	"github.com/harun/radbridge/internal/tracing"
	"github.com/harun/radbridge/pkg/a2a"
	"github.com/rs/zerolog"
)

// ErrRelayClosed is returned when a stream is requested after Close
var ErrRelayClosed = errors.New("stream relay closed")

// DefaultSinkTimeout bounds the delivery of one relayed event
const DefaultSinkTimeout = 30 * time.Second

// EventSink receives relayed stream events. Send must return once ctx is
// done.
type EventSink interface {
	Send(ctx context.Context, event a2a.StreamEvent) error
}

// StreamState is the lifecycle state of a StreamSession
type StreamState string

const (
	StreamOpening   StreamState = "opening"
	StreamStreaming StreamState = "streaming"
	StreamCompleted StreamState = "completed"
	StreamErrored   StreamState = "errored"
)

// Terminal reports whether no further transitions are possible
func (s StreamState) Terminal() bool {
	return s == StreamCompleted || s == StreamErrored
}

// StreamSession is one relayed streaming chat call
type StreamSession struct {
	ID string

	cancel context.CancelFunc
	done   chan struct{}

	mu        sync.Mutex
	state     StreamState
	forwarded int
	dropped   int
	err       error
}

// State returns the current state
func (s *StreamSession) State() StreamState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Forwarded returns how many events the sink accepted
func (s *StreamSession) Forwarded() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.forwarded
}

// Dropped returns how many events the sink rejected
func (s *StreamSession) Dropped() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dropped
}

// Err returns the stream error once the session has errored
func (s *StreamSession) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Done is closed when the session reaches a terminal state
func (s *StreamSession) Done() <-chan struct{} {
	return s.done
}

// Cancel stops the session; it ends Errored unless already terminal
func (s *StreamSession) Cancel() {
	s.cancel()
}

func (s *StreamSession) transition(state StreamState, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state.Terminal() {
		return
	}
	s.state = state
	s.err = err
}

func (s *StreamSession) count(delivered bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if delivered {
		s.forwarded++
	} else {
		s.dropped++
	}
}

// StreamRelay forwards agent event streams to sinks in the background
type StreamRelay struct {
	logger      zerolog.Logger
	sendTimeout time.Duration
	wg          sync.WaitGroup

	mu       sync.Mutex
	sessions map[string]*StreamSession
	closed   bool
}

// NewStreamRelay creates a relay
func NewStreamRelay(logger zerolog.Logger) *StreamRelay {
	return &StreamRelay{
		logger:      logger.With().Str("component", "stream_relay").Logger(),
		sendTimeout: DefaultSinkTimeout,
		sessions:    make(map[string]*StreamSession),
	}
}

// Relay opens a stream for params and forwards its events to sink until the
// stream ends. Opening happens before Relay returns; a failure to open is
// returned as a *TransportError. The session outlives ctx and keeps its
// trace values.
func (r *StreamRelay) Relay(ctx context.Context, client *a2a.Client, params a2a.MessageSendParams, sink EventSink) (*StreamSession, error) {
	sessCtx, cancel := context.WithCancel(tracing.Detach(ctx))
	sess := &StreamSession{
		ID:     uuid.New().String(),
		cancel: cancel,
		done:   make(chan struct{}),
		state:  StreamOpening,
	}

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		cancel()
		return nil, ErrRelayClosed
	}
	r.sessions[sess.ID] = sess
	r.wg.Add(1)
	r.mu.Unlock()
	observability.IncStreamRelays()

	logger := tracing.LoggerFromContext(sessCtx, r.logger).With().Str("stream_id", sess.ID).Logger()

	stream, err := client.SendStreamingMessage(sessCtx, params)
	if err != nil {
		sess.transition(StreamErrored, err)
		r.finish(sess)
		logger.Warn().Err(err).Msg("Failed to open agent stream")
		return nil, &TransportError{Op: "open stream", Err: err}
	}

	sess.transition(StreamStreaming, nil)
	logger.Debug().Msg("Agent stream opened")

	go func() {
		defer r.finish(sess)
		defer stream.Close()
		r.drain(sessCtx, sess, stream, sink, logger)
	}()

	return sess, nil
}

// drain forwards every event; sink failures are counted and skipped
func (r *StreamRelay) drain(ctx context.Context, sess *StreamSession, stream *a2a.Stream, sink EventSink, logger zerolog.Logger) {
	for {
		event, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			sess.transition(StreamCompleted, nil)
			logger.Debug().Int("forwarded", sess.Forwarded()).Msg("Agent stream completed")
			return
		}
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				err = ctxErr
			}
			sess.transition(StreamErrored, &TransportError{Op: "read stream", Err: err})
			logger.Error().Err(err).Int("forwarded", sess.Forwarded()).Msg("Agent stream failed")
			return
		}

		sendCtx, cancel := context.WithTimeout(ctx, r.sendTimeout)
		sendErr := sink.Send(sendCtx, event)
		cancel()
		sess.count(sendErr == nil)
		observability.RecordStreamEvent(sendErr == nil)
		if sendErr != nil {
			logger.Warn().Err(sendErr).Str("kind", event.Kind).Msg("Failed to forward stream event")
		}
	}
}

func (r *StreamRelay) finish(sess *StreamSession) {
	sess.cancel()

	r.mu.Lock()
	delete(r.sessions, sess.ID)
	r.mu.Unlock()

	observability.RecordStreamRelayDone(string(sess.State()))
	close(sess.done)
	r.wg.Done()
}

// Active returns the number of live sessions
func (r *StreamRelay) Active() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// Close cancels every live session and waits for them to finish
func (r *StreamRelay) Close() {
	r.mu.Lock()
	r.closed = true
	for _, sess := range r.sessions {
		sess.cancel()
	}
	r.mu.Unlock()

	r.wg.Wait()
}
