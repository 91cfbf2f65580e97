package agent

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/dennisdiepolder/monti/alertagent/internal/types"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

const (
	defaultReconnectDelay = 5 * time.Second
	defaultRetryDelay     = 3 * time.Second
)

// Options configures a Supervisor
type Options struct {
	// Endpoint is called before every connection attempt
	Endpoint    func() string
	DeviceClass string

	// ReconnectDelay follows the end of a live session,
	// RetryDelay follows an attempt that never connected.
	ReconnectDelay time.Duration
	RetryDelay     time.Duration

	Dialer Dialer
	Clock  Clock
}

// Supervisor keeps the agent connected to its endpoint and owns the
// single current session. Connection state is only ever changed here.
type Supervisor struct {
	opts       Options
	registrar  *Registrar
	dispatcher *Dispatcher
	reporter   *StatusReporter
	collab     Collaborators
	metrics    *Metrics
	logger     zerolog.Logger

	mu      sync.Mutex
	session Session
	state   types.ConnectionState
	since   time.Time
}

// NewSupervisor wires the registration, dispatch and trigger chain around collab
func NewSupervisor(opts Options, collab Collaborators, logger zerolog.Logger) *Supervisor {
	if opts.ReconnectDelay <= 0 {
		opts.ReconnectDelay = defaultReconnectDelay
	}
	if opts.RetryDelay <= 0 {
		opts.RetryDelay = defaultRetryDelay
	}
	if opts.Clock == nil {
		opts.Clock = realClock{}
	}
	if opts.Dialer == nil {
		opts.Dialer = NewWSDialer(DialerOptions{}, logger)
	}

	metrics := newMetrics()
	announcer := NewAnnouncer(collab.Speech, metrics, logger)
	alerts := NewAlertTrigger(collab.Presenter, collab.Haptics, announcer, metrics, logger)

	return &Supervisor{
		opts:       opts,
		registrar:  NewRegistrar(opts.DeviceClass, collab.Location),
		dispatcher: NewDispatcher(alerts, announcer, metrics, logger),
		reporter:   NewStatusReporter(collab.Status, logger),
		collab:     collab,
		metrics:    metrics,
		logger:     logger.With().Str("component", "supervisor").Logger(),
		state:      types.StateIdle,
		since:      time.Now(),
	}
}

// State returns the current connection state
func (s *Supervisor) State() types.ConnectionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// StateSince returns when the current state was entered
func (s *Supervisor) StateSince() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.since
}

// SessionID returns the id of the live session, empty when disconnected
func (s *Supervisor) SessionID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.session == nil {
		return ""
	}
	return s.session.ID()
}

// Metrics returns the agent counters
func (s *Supervisor) Metrics() *Metrics {
	return s.metrics
}

// Run connects and keeps reconnecting until ctx is cancelled.
// On return the live session is closed and collaborator handles are released.
func (s *Supervisor) Run(ctx context.Context) {
	defer s.release()
	defer s.setState(types.StateIdle)

	for {
		if ctx.Err() != nil {
			return
		}

		endpoint := s.opts.Endpoint()
		s.setState(types.StateConnecting)
		s.metrics.connectAttempts.Add(1)

		sess, err := s.opts.Dialer.Dial(ctx, endpoint)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			s.setState(types.StateDisconnected)
			s.logger.Warn().Err(err).Str("endpoint", endpoint).Dur("retry_in", s.opts.RetryDelay).Msg("connection attempt failed, retrying")
			if !s.wait(ctx, s.opts.RetryDelay) {
				return
			}
			continue
		}

		s.attach(sess)
		s.metrics.sessionsOpened.Add(1)
		s.setState(types.StateConnected)
		s.logger.Info().Str("endpoint", endpoint).Str("session_id", sess.ID()).Msg("connected")

		err = s.serve(ctx, sess)
		s.detach(sess)
		s.setState(types.StateDisconnected)

		if ctx.Err() != nil {
			s.logger.Info().Str("session_id", sess.ID()).Msg("disconnected on shutdown")
			return
		}

		s.logger.Warn().Err(err).Str("session_id", sess.ID()).Dur("retry_in", s.opts.ReconnectDelay).Msg("connection lost, reconnecting")
		if !s.wait(ctx, s.opts.ReconnectDelay) {
			return
		}
	}
}

// serve registers on sess and dispatches its frames until it ends or ctx is cancelled
func (s *Supervisor) serve(ctx context.Context, sess Session) error {
	if err := s.registrar.Register(sess); err != nil {
		sess.Close(websocket.CloseInternalServerErr, "registration failed")
		return err
	}
	s.metrics.registrations.Add(1)

	// Frames of one session are dispatched strictly in arrival order
	dispatchDone := make(chan struct{})
	go func() {
		defer close(dispatchDone)
		for f := range sess.Frames() {
			s.dispatcher.Dispatch(f)
		}
	}()

	var err error
	select {
	case <-ctx.Done():
		s.setState(types.StateDisconnecting)
		if cerr := sess.Close(ShutdownCloseCode, ShutdownReason); cerr != nil {
			s.logger.Debug().Err(cerr).Msg("close on shutdown")
		}
		err = ctx.Err()
	case <-sess.Done():
		err = sess.Err()
		if err == nil {
			err = ErrSessionClosed
		}
	}

	<-dispatchDone
	return fmt.Errorf("session %s: %w", sess.ID(), err)
}

func (s *Supervisor) wait(ctx context.Context, d time.Duration) bool {
	select {
	case <-ctx.Done():
		return false
	case <-s.opts.Clock.After(d):
		return true
	}
}

// attach installs sess as the current session, closing any predecessor
func (s *Supervisor) attach(sess Session) {
	s.mu.Lock()
	prev := s.session
	s.session = sess
	s.mu.Unlock()

	if prev != nil {
		prev.Close(websocket.CloseNormalClosure, "superseded")
	}
}

func (s *Supervisor) detach(sess Session) {
	s.mu.Lock()
	if s.session == sess {
		s.session = nil
	}
	s.mu.Unlock()
}

func (s *Supervisor) setState(state types.ConnectionState) {
	s.mu.Lock()
	if s.state == state {
		s.mu.Unlock()
		return
	}
	s.state = state
	s.since = time.Now()
	s.mu.Unlock()

	s.logger.Debug().Str("state", string(state)).Msg("state changed")
	s.reporter.Report(state)
}

// release closes collaborator handles that hold resources
func (s *Supervisor) release() {
	handles := []struct {
		name string
		c    interface{}
	}{
		{"speech", s.collab.Speech},
		{"haptics", s.collab.Haptics},
	}

	for _, h := range handles {
		closer, ok := h.c.(io.Closer)
		if !ok {
			continue
		}
		if err := closer.Close(); err != nil {
			s.logger.Warn().Err(err).Str("collaborator", h.name).Msg("release failed")
		}
	}
}
