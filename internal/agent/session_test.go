package agent

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

// newTestEndpoint serves handler for every websocket connection and returns its ws:// URL
func newTestEndpoint(t *testing.T, handler func(n int, conn *websocket.Conn)) string {
	t.Helper()

	upgrader := websocket.Upgrader{}
	var mu sync.Mutex
	count := 0

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		mu.Lock()
		count++
		n := count
		mu.Unlock()

		handler(n, conn)
	}))
	t.Cleanup(srv.Close)

	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func testDialer() *WSDialer {
	return NewWSDialer(DialerOptions{
		HandshakeTimeout: time.Second,
		WriteTimeout:     time.Second,
		ReadLimit:        64 * 1024,
	}, zerolog.Nop())
}

func TestWSSession_SendAndReceiveInOrder(t *testing.T) {
	received := make(chan string, 1)
	url := newTestEndpoint(t, func(_ int, conn *websocket.Conn) {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return
		}
		received <- string(msg)

		conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"speak","data":{"text":"one"}}`))
		conn.WriteMessage(websocket.BinaryMessage, []byte{0x01, 0x02})
		conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"speak","data":{"text":"two"}}`))
		conn.ReadMessage() // hold open until the client goes away
	})

	sess, err := testDialer().Dial(context.Background(), url)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer sess.Close(ShutdownCloseCode, ShutdownReason)

	if sess.ID() == "" {
		t.Fatal("expected a session id")
	}
	if err := sess.Send([]byte(wantRegistration)); err != nil {
		t.Fatalf("send: %v", err)
	}

	select {
	case msg := <-received:
		if msg != wantRegistration {
			t.Fatalf("endpoint got %s", msg)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("endpoint did not receive the message")
	}

	wantKinds := []FrameKind{FrameText, FrameBinary, FrameText}
	wantData := []string{`{"type":"speak","data":{"text":"one"}}`, "\x01\x02", `{"type":"speak","data":{"text":"two"}}`}
	for i := range wantKinds {
		select {
		case f := <-sess.Frames():
			if f.Kind != wantKinds[i] || string(f.Data) != wantData[i] {
				t.Fatalf("frame %d: got kind %d data %q", i, f.Kind, f.Data)
			}
		case <-time.After(2 * time.Second):
			t.Fatalf("frame %d not delivered", i)
		}
	}
}

func TestWSSession_CloseSendsShutdownCode(t *testing.T) {
	closeErr := make(chan error, 1)
	url := newTestEndpoint(t, func(_ int, conn *websocket.Conn) {
		_, _, err := conn.ReadMessage()
		closeErr <- err
	})

	sess, err := testDialer().Dial(context.Background(), url)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}

	if err := sess.Close(ShutdownCloseCode, ShutdownReason); err != nil {
		t.Fatalf("close: %v", err)
	}

	select {
	case err := <-closeErr:
		var ce *websocket.CloseError
		if !errors.As(err, &ce) {
			t.Fatalf("expected close error at endpoint, got %v", err)
		}
		if ce.Code != ShutdownCloseCode || ce.Text != ShutdownReason {
			t.Fatalf("expected %d %q, got %d %q", ShutdownCloseCode, ShutdownReason, ce.Code, ce.Text)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("endpoint did not see the close frame")
	}

	select {
	case <-sess.Done():
	default:
		t.Fatal("session should be done after Close")
	}
	if !errors.Is(sess.Err(), ErrSessionClosed) {
		t.Fatalf("expected ErrSessionClosed, got %v", sess.Err())
	}
	if err := sess.Send([]byte("late")); !errors.Is(err, ErrSessionClosed) {
		t.Fatalf("expected send after close to fail, got %v", err)
	}
	if err := sess.Close(ShutdownCloseCode, ShutdownReason); err != nil {
		t.Fatalf("second close should be a no-op, got %v", err)
	}
}

func TestWSSession_RemoteCloseEndsSession(t *testing.T) {
	url := newTestEndpoint(t, func(_ int, conn *websocket.Conn) {
		conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, "server restart"))
	})

	sess, err := testDialer().Dial(context.Background(), url)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}

	select {
	case <-sess.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("session did not end on remote close")
	}

	if !websocket.IsCloseError(sess.Err(), websocket.CloseGoingAway) {
		t.Fatalf("expected going-away close error, got %v", sess.Err())
	}
	if _, ok := <-sess.Frames(); ok {
		t.Fatal("frames channel should be closed")
	}
}

func TestWSDialer_DialFailure(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	srv.Close()

	if _, err := testDialer().Dial(context.Background(), url); err == nil {
		t.Fatal("expected dial to a closed endpoint to fail")
	}
}

func TestWSDialer_HandshakeRejected(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()
	url := "ws" + strings.TrimPrefix(srv.URL, "http")

	_, err := testDialer().Dial(context.Background(), url)
	if err == nil || !strings.Contains(err.Error(), "status 404") {
		t.Fatalf("expected handshake rejection with status, got %v", err)
	}
}

func TestSupervisor_EndToEndReconnect(t *testing.T) {
	registrations := make(chan string, 4)
	url := newTestEndpoint(t, func(n int, conn *websocket.Conn) {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return
		}
		registrations <- string(msg)

		if n == 1 {
			// First session delivers an alert, then drops abruptly
			conn.WriteMessage(websocket.TextMessage, []byte(codeBlueFrame))
			time.Sleep(50 * time.Millisecond)
			conn.UnderlyingConn().Close()
			return
		}
		conn.ReadMessage()
	})

	rec := newRecorder()
	sup := NewSupervisor(Options{
		Endpoint:       func() string { return url },
		DeviceClass:    "android",
		ReconnectDelay: 20 * time.Millisecond,
		RetryDelay:     10 * time.Millisecond,
		Dialer:         testDialer(),
	}, rec.collaborators(), zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		sup.Run(ctx)
	}()
	defer func() {
		cancel()
		<-done
	}()

	for i := 0; i < 2; i++ {
		select {
		case msg := <-registrations:
			if msg != wantRegistration {
				t.Fatalf("registration %d: got %s", i, msg)
			}
		case <-time.After(3 * time.Second):
			t.Fatalf("registration %d not received", i)
		}
	}

	waitFor(t, "alert shown", func() bool { return len(rec.shownAlerts()) == 1 })
	waitFor(t, "reconnected", func() bool { return sup.State() == "connected" })

	want := []string{
		"Connected - Ready for alerts",
		"Disconnected - Retrying...",
		"Connected - Ready for alerts",
	}
	if err := containsInOrder(rec.statusTexts(), want); err != nil {
		t.Fatal(err)
	}
	if got := sup.Metrics().sessionsOpened.Load(); got != 2 {
		t.Fatalf("expected 2 sessions opened, got %d", got)
	}
}
