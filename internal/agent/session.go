package agent

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

const (
	// ShutdownCloseCode and ShutdownReason mark a planned local disconnect
	ShutdownCloseCode = websocket.CloseNormalClosure
	ShutdownReason    = "agent shutdown"

	// Time allowed to write a close frame
	closeWriteWait = time.Second

	// Inbound frames buffered between the read pump and the dispatcher
	frameBuffer = 64
)

// FrameKind distinguishes text from binary frames
type FrameKind int

const (
	FrameText FrameKind = iota
	FrameBinary
)

// Frame is one inbound message
type Frame struct {
	Kind FrameKind
	Data []byte
}

// Session is one live connection to the endpoint
type Session interface {
	ID() string
	// Send writes a text frame
	Send(data []byte) error
	// Frames delivers inbound frames in arrival order; closed when the session ends
	Frames() <-chan Frame
	// Done is closed when the session has ended for any reason
	Done() <-chan struct{}
	// Err reports why the session ended, nil while it is live
	Err() error
	// Close ends the session, sending a close frame with code and reason
	Close(code int, reason string) error
}

// Dialer opens sessions
type Dialer interface {
	Dial(ctx context.Context, url string) (Session, error)
}

// DialerOptions tunes the websocket transport
type DialerOptions struct {
	HandshakeTimeout time.Duration
	WriteTimeout     time.Duration
	ReadLimit        int64

	// Keepalive; disabled when either is zero
	PingInterval time.Duration
	PongWait     time.Duration
}

// WSDialer opens websocket sessions
type WSDialer struct {
	opts   DialerOptions
	dialer *websocket.Dialer
	logger zerolog.Logger
}

// NewWSDialer creates a websocket dialer
func NewWSDialer(opts DialerOptions, logger zerolog.Logger) *WSDialer {
	return &WSDialer{
		opts: opts,
		dialer: &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: opts.HandshakeTimeout,
		},
		logger: logger,
	}
}

// Dial establishes the websocket connection and starts reading from it
func (d *WSDialer) Dial(ctx context.Context, url string) (Session, error) {
	conn, resp, err := d.dialer.DialContext(ctx, url, nil)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("dial %s: %w (status %d)", url, err, resp.StatusCode)
		}
		return nil, fmt.Errorf("dial %s: %w", url, err)
	}

	s := &wsSession{
		id:     uuid.NewString(),
		conn:   conn,
		opts:   d.opts,
		frames: make(chan Frame, frameBuffer),
		done:   make(chan struct{}),
	}
	s.logger = d.logger.With().Str("session_id", s.id).Logger()
	s.start()
	return s, nil
}

type wsSession struct {
	id     string
	conn   *websocket.Conn
	opts   DialerOptions
	frames chan Frame
	done   chan struct{}
	logger zerolog.Logger

	writeMu    sync.Mutex
	finishOnce sync.Once
	errMu      sync.Mutex
	err        error
}

func (s *wsSession) start() {
	if s.opts.ReadLimit > 0 {
		s.conn.SetReadLimit(s.opts.ReadLimit)
	}

	if s.keepAlive() {
		s.conn.SetReadDeadline(time.Now().Add(s.opts.PongWait))
		s.conn.SetPongHandler(func(string) error {
			return s.conn.SetReadDeadline(time.Now().Add(s.opts.PongWait))
		})
		go s.pingLoop()
	}

	go s.readPump()
}

func (s *wsSession) keepAlive() bool {
	return s.opts.PingInterval > 0 && s.opts.PongWait > 0
}

func (s *wsSession) ID() string { return s.id }

func (s *wsSession) Frames() <-chan Frame { return s.frames }

func (s *wsSession) Done() <-chan struct{} { return s.done }

func (s *wsSession) Err() error {
	s.errMu.Lock()
	defer s.errMu.Unlock()
	return s.err
}

// readPump pumps frames from the websocket connection to Frames
func (s *wsSession) readPump() {
	defer close(s.frames)

	for {
		mt, data, err := s.conn.ReadMessage()
		if err != nil {
			s.finish(err)
			return
		}

		if s.keepAlive() {
			s.conn.SetReadDeadline(time.Now().Add(s.opts.PongWait))
		}

		var kind FrameKind
		switch mt {
		case websocket.TextMessage:
			kind = FrameText
		case websocket.BinaryMessage:
			kind = FrameBinary
		default:
			continue
		}

		select {
		case s.frames <- Frame{Kind: kind, Data: data}:
		case <-s.done:
			return
		}
	}
}

func (s *wsSession) pingLoop() {
	ticker := time.NewTicker(s.opts.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.done:
			return
		case <-ticker.C:
			if err := s.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(s.writeWait())); err != nil {
				s.finish(fmt.Errorf("ping: %w", err))
				return
			}
		}
	}
}

func (s *wsSession) writeWait() time.Duration {
	if s.opts.WriteTimeout > 0 {
		return s.opts.WriteTimeout
	}
	return closeWriteWait
}

// Send writes a text frame to the websocket
func (s *wsSession) Send(data []byte) error {
	select {
	case <-s.done:
		return ErrSessionClosed
	default:
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	s.conn.SetWriteDeadline(time.Now().Add(s.writeWait()))
	if err := s.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		err = fmt.Errorf("write: %w", err)
		s.finish(err)
		return err
	}
	return nil
}

// Close sends a close frame and tears the connection down (idempotent)
func (s *wsSession) Close(code int, reason string) error {
	select {
	case <-s.done:
		return nil
	default:
	}

	s.recordCause(ErrSessionClosed)
	msg := websocket.FormatCloseMessage(code, reason)
	err := s.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(closeWriteWait))
	s.finish(ErrSessionClosed)

	if err != nil && !errors.Is(err, websocket.ErrCloseSent) {
		return fmt.Errorf("send close frame: %w", err)
	}
	return nil
}

// recordCause keeps the first reason the session ended
func (s *wsSession) recordCause(cause error) {
	s.errMu.Lock()
	if s.err == nil {
		s.err = cause
	}
	s.errMu.Unlock()
}

// finish records the first cause, closes the connection and signals Done
func (s *wsSession) finish(cause error) {
	s.finishOnce.Do(func() {
		s.recordCause(cause)
		s.conn.Close()
		close(s.done)
		s.logger.Debug().Err(s.Err()).Msg("session finished")
	})
}
