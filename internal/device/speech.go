// Package device provides collaborator adapters for a headless host.
package device

import (
	"context"
	"errors"
	"io"
	"os/exec"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/dennisdiepolder/monti/alertagent/internal/agent"
	"github.com/rs/zerolog"
)

var errSpeakerClosed = errors.New("speaker closed")

// CommandSpeaker speaks by running a text-to-speech command with the
// utterance as its last argument, e.g. "espeak -s 150".
type CommandSpeaker struct {
	path   string
	args   []string
	out    io.Writer
	logger zerolog.Logger

	mu     sync.Mutex
	queue  context.Context
	cancel context.CancelFunc
	last   chan struct{}
	closed bool

	interrupted atomic.Int64
}

// NewCommandSpeaker resolves commandLine on PATH. An empty or missing
// command yields a speaker that is never ready.
func NewCommandSpeaker(commandLine string, logger zerolog.Logger) *CommandSpeaker {
	s := &CommandSpeaker{
		logger: logger.With().Str("component", "speech").Logger(),
	}
	s.queue, s.cancel = context.WithCancel(context.Background())

	fields := strings.Fields(commandLine)
	if len(fields) == 0 {
		s.logger.Info().Msg("speech disabled")
		return s
	}

	path, err := exec.LookPath(fields[0])
	if err != nil {
		s.logger.Warn().Err(err).Str("command", fields[0]).Msg("speech command not found")
		return s
	}
	s.path = path
	s.args = fields[1:]
	return s
}

// Ready reports whether utterances can be played
func (s *CommandSpeaker) Ready() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.path != "" && !s.closed
}

// Speak plays text without blocking. With flushPending the utterance in
// progress and anything queued behind it are cancelled first, otherwise
// text plays after them.
func (s *CommandSpeaker) Speak(text string, flushPending bool) error {
	if strings.TrimSpace(text) == "" {
		return agent.ErrEmptyUtterance
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return errSpeakerClosed
	}
	if s.path == "" {
		return agent.ErrSpeechNotReady
	}
	if flushPending {
		s.flushLocked()
	}

	ctx := s.queue
	prev := s.last
	done := make(chan struct{})
	s.last = done

	go s.play(ctx, prev, done, text)
	return nil
}

func (s *CommandSpeaker) play(ctx context.Context, prev <-chan struct{}, done chan<- struct{}, text string) {
	defer close(done)

	if prev != nil {
		select {
		case <-prev:
		case <-ctx.Done():
			return
		}
	}
	if ctx.Err() != nil {
		return
	}

	args := append(append([]string(nil), s.args...), text)
	cmd := exec.CommandContext(ctx, s.path, args...)
	cmd.Stdout = s.out

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			s.interrupted.Add(1)
			s.logger.Debug().Msg("utterance interrupted")
			return
		}
		s.logger.Error().Err(err).Msg("speech command failed")
	}
}

// Stop cancels the utterance in progress and everything queued
func (s *CommandSpeaker) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.flushLocked()
}

func (s *CommandSpeaker) flushLocked() {
	s.cancel()
	s.queue, s.cancel = context.WithCancel(context.Background())
	s.last = nil
}

// Close stops playback; the speaker is not ready afterwards
func (s *CommandSpeaker) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.flushLocked()
	s.closed = true
	return nil
}

// idle is closed once the most recent utterance has finished
func (s *CommandSpeaker) idle() <-chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.last == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return s.last
}
