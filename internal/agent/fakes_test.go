package agent

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/dennisdiepolder/monti/alertagent/internal/types"
)

// recorder is a fake for every collaborator
type recorder struct {
	mu         sync.Mutex
	shown      []types.AlertPayload
	spoken     []utterance
	vibrations [][]time.Duration
	statuses   []string
	closes     int

	ready       bool
	location    string
	showErr     error
	showPanic   bool
	vibrateErr  error
	vibrateDone chan struct{}
}

type utterance struct {
	text  string
	flush bool
}

func newRecorder() *recorder {
	return &recorder{
		ready:       true,
		location:    "ICU",
		vibrateDone: make(chan struct{}, 16),
	}
}

func (r *recorder) Show(alert types.AlertPayload) error {
	r.mu.Lock()
	r.shown = append(r.shown, alert)
	panicking := r.showPanic
	r.mu.Unlock()
	if panicking {
		panic("display unavailable")
	}
	return r.showErr
}

func (r *recorder) Ready() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.ready
}

func (r *recorder) Speak(text string, flush bool) error {
	r.mu.Lock()
	r.spoken = append(r.spoken, utterance{text: text, flush: flush})
	r.mu.Unlock()
	return nil
}

func (r *recorder) Vibrate(pattern []time.Duration) error {
	r.mu.Lock()
	r.vibrations = append(r.vibrations, pattern)
	err := r.vibrateErr
	r.mu.Unlock()
	select {
	case r.vibrateDone <- struct{}{}:
	default:
	}
	return err
}

func (r *recorder) UpdateStatus(text string) error {
	r.mu.Lock()
	r.statuses = append(r.statuses, text)
	r.mu.Unlock()
	return nil
}

func (r *recorder) LocationLabel() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.location
}

func (r *recorder) Close() error {
	r.mu.Lock()
	r.closes++
	r.mu.Unlock()
	return nil
}

func (r *recorder) collaborators() Collaborators {
	return Collaborators{Presenter: r, Speech: r, Haptics: r, Status: r, Location: r}
}

func (r *recorder) shownAlerts() []types.AlertPayload {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]types.AlertPayload(nil), r.shown...)
}

func (r *recorder) spokenUtterances() []utterance {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]utterance(nil), r.spoken...)
}

func (r *recorder) vibrationPatterns() [][]time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([][]time.Duration(nil), r.vibrations...)
}

func (r *recorder) statusTexts() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.statuses...)
}

func (r *recorder) closeCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.closes
}

// fakeSession is an in-memory Session
type fakeSession struct {
	id     string
	frames chan Frame
	done   chan struct{}

	mu          sync.Mutex
	sent        [][]byte
	sendErr     error
	ended       bool
	err         error
	closeCode   int
	closeReason string
}

func newFakeSession(id string) *fakeSession {
	return &fakeSession{
		id:     id,
		frames: make(chan Frame, 16),
		done:   make(chan struct{}),
	}
}

func (s *fakeSession) ID() string            { return s.id }
func (s *fakeSession) Frames() <-chan Frame  { return s.frames }
func (s *fakeSession) Done() <-chan struct{} { return s.done }

func (s *fakeSession) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

func (s *fakeSession) Send(data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ended {
		return ErrSessionClosed
	}
	if s.sendErr != nil {
		return s.sendErr
	}
	s.sent = append(s.sent, append([]byte(nil), data...))
	return nil
}

func (s *fakeSession) Close(code int, reason string) error {
	s.end(ErrSessionClosed, code, reason)
	return nil
}

// drop simulates the remote end or the network failing
func (s *fakeSession) drop(err error) {
	s.end(err, 0, "")
}

func (s *fakeSession) end(err error, code int, reason string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ended {
		return
	}
	s.ended = true
	s.err = err
	s.closeCode = code
	s.closeReason = reason
	close(s.frames)
	close(s.done)
}

func (s *fakeSession) push(kind FrameKind, data string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ended {
		return
	}
	s.frames <- Frame{Kind: kind, Data: []byte(data)}
}

func (s *fakeSession) sentMessages() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.sent))
	for i, b := range s.sent {
		out[i] = string(b)
	}
	return out
}

func (s *fakeSession) isEnded() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ended
}

func (s *fakeSession) closedWith() (int, string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closeCode, s.closeReason
}

// fakeDialer hands out scripted results, then blocks until ctx is cancelled
type fakeDialer struct {
	mu       sync.Mutex
	script   []dialResult
	attempts int
	urls     []string
	opened   []*fakeSession
	overlap  bool
}

type dialResult struct {
	sess *fakeSession
	err  error
}

func newFakeDialer(script ...dialResult) *fakeDialer {
	return &fakeDialer{script: script}
}

func (d *fakeDialer) Dial(ctx context.Context, url string) (Session, error) {
	d.mu.Lock()
	d.attempts++
	d.urls = append(d.urls, url)
	for _, prev := range d.opened {
		if !prev.isEnded() {
			d.overlap = true
		}
	}
	if len(d.script) == 0 {
		d.mu.Unlock()
		<-ctx.Done()
		return nil, ctx.Err()
	}
	next := d.script[0]
	d.script = d.script[1:]
	if next.sess != nil {
		d.opened = append(d.opened, next.sess)
	}
	d.mu.Unlock()

	if next.err != nil {
		return nil, next.err
	}
	return next.sess, nil
}

func (d *fakeDialer) attemptCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.attempts
}

func (d *fakeDialer) sawOverlap() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.overlap
}

// fakeClock records requested waits; when hold is set they never elapse
type fakeClock struct {
	mu    sync.Mutex
	waits []time.Duration
	hold  bool
}

func (c *fakeClock) After(d time.Duration) <-chan time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.waits = append(c.waits, d)

	ch := make(chan time.Time, 1)
	if !c.hold {
		ch <- time.Time{}
	}
	return ch
}

func (c *fakeClock) requested() []time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]time.Duration(nil), c.waits...)
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

// containsInOrder reports whether want appears in got as a subsequence
func containsInOrder(got, want []string) error {
	i := 0
	for _, g := range got {
		if i < len(want) && g == want[i] {
			i++
		}
	}
	if i != len(want) {
		return fmt.Errorf("sequence %q does not contain %q in order", got, want)
	}
	return nil
}
