package echo

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http/httptest"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/coder/websocket"

	"github.com/opensesame/sesametools/internal/domain"
)

func startHTTPTest(t *testing.T, cfg Config) (*Server, *recordingLogger, string) {
	t.Helper()
	logger := &recordingLogger{}
	s := NewServer(cfg, logger)
	ts := httptest.NewServer(s.Handler())
	t.Cleanup(ts.Close)
	return s, logger, ts.URL
}

func dial(t *testing.T, ctx context.Context, url string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.Dial(ctx, url, nil)
	if err != nil {
		t.Fatalf("dial %s: %v", url, err)
	}
	t.Cleanup(func() { conn.CloseNow() })
	return conn
}

func exchange(ctx context.Context, conn *websocket.Conn, msg string) (string, error) {
	if err := conn.Write(ctx, websocket.MessageText, []byte(msg)); err != nil {
		return "", err
	}
	typ, data, err := conn.Read(ctx)
	if err != nil {
		return "", err
	}
	if typ != websocket.MessageText {
		return "", fmt.Errorf("reply type = %v, want text", typ)
	}
	return string(data), nil
}

func TestEcho_OneReplyPerMessage(t *testing.T) {
	_, _, url := startHTTPTest(t, Config{Prefix: DefaultPrefix})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn := dial(t, ctx, url)
	for _, msg := range []string{"hello", "", "ünïcödé", "Server received: nested"} {
		got, err := exchange(ctx, conn, msg)
		if err != nil {
			t.Fatalf("exchange %q: %v", msg, err)
		}
		if want := DefaultPrefix + msg; got != want {
			t.Errorf("reply = %q, want %q", got, want)
		}
	}
	conn.Close(websocket.StatusNormalClosure, "")
}

func TestEcho_PipelinedMessagesKeepOrder(t *testing.T) {
	_, _, url := startHTTPTest(t, Config{Prefix: DefaultPrefix})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn := dial(t, ctx, url)
	const n = 50
	for i := 0; i < n; i++ {
		if err := conn.Write(ctx, websocket.MessageText, []byte(strconv.Itoa(i))); err != nil {
			t.Fatalf("write %d: %v", i, err)
		}
	}
	for i := 0; i < n; i++ {
		_, data, err := conn.Read(ctx)
		if err != nil {
			t.Fatalf("read %d: %v", i, err)
		}
		if want := DefaultPrefix + strconv.Itoa(i); string(data) != want {
			t.Fatalf("reply %d = %q, want %q", i, data, want)
		}
	}
}

func TestEcho_ConcurrentClientsNoCrossTalk(t *testing.T) {
	_, _, url := startHTTPTest(t, Config{Prefix: DefaultPrefix})
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	clients := []string{"alpha", "beta", "gamma"}
	errs := make(chan error, len(clients))
	var wg sync.WaitGroup
	for _, name := range clients {
		conn := dial(t, ctx, url)
		wg.Add(1)
		go func(name string, conn *websocket.Conn) {
			defer wg.Done()
			for i := 0; i < 25; i++ {
				msg := fmt.Sprintf("%s-%d", name, i)
				got, err := exchange(ctx, conn, msg)
				if err != nil {
					errs <- fmt.Errorf("%s: %w", name, err)
					return
				}
				if got != DefaultPrefix+msg {
					errs <- fmt.Errorf("%s: reply %q, want %q", name, got, DefaultPrefix+msg)
					return
				}
			}
		}(name, conn)
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		t.Error(err)
	}
}

func TestEcho_AbruptCloseDoesNotAffectOthers(t *testing.T) {
	s, logger, url := startHTTPTest(t, Config{Prefix: DefaultPrefix})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	stable := dial(t, ctx, url)
	doomed := dial(t, ctx, url)

	if _, err := exchange(ctx, doomed, "about to vanish"); err != nil {
		t.Fatalf("doomed exchange: %v", err)
	}
	doomed.CloseNow()

	waitFor(t, "closure log", func() bool {
		return logger.count("warn", "connection closed") >= 1
	})

	got, err := exchange(ctx, stable, "still here")
	if err != nil {
		t.Fatalf("stable exchange after abrupt close: %v", err)
	}
	if got != DefaultPrefix+"still here" {
		t.Errorf("reply = %q", got)
	}

	fresh := dial(t, ctx, url)
	if got, err := exchange(ctx, fresh, "new client"); err != nil || got != DefaultPrefix+"new client" {
		t.Errorf("fresh exchange = %q, %v", got, err)
	}

	if logger.count("error", "unexpected error") != 0 {
		t.Errorf("abrupt close logged as unexpected error: %v", logger.messages())
	}
	waitFor(t, "doomed handler to return", func() bool {
		return s.Lifecycle().ActiveWorkers() == 2
	})
}

func TestEcho_BinaryMessage(t *testing.T) {
	_, _, url := startHTTPTest(t, Config{Prefix: DefaultPrefix})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn := dial(t, ctx, url)
	payload := []byte{0x00, 0xFF, 0x10}
	if err := conn.Write(ctx, websocket.MessageBinary, payload); err != nil {
		t.Fatalf("write: %v", err)
	}
	typ, data, err := conn.Read(ctx)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if typ != websocket.MessageBinary {
		t.Errorf("type = %v, want binary", typ)
	}
	if want := string(Reply(DefaultPrefix, payload)); string(data) != want {
		t.Errorf("data = %q, want %q", data, want)
	}
}

func TestEcho_MessageTooBig(t *testing.T) {
	_, logger, url := startHTTPTest(t, Config{Prefix: DefaultPrefix, MaxMessageBytes: 16})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn := dial(t, ctx, url)
	if err := conn.Write(ctx, websocket.MessageText, make([]byte, 64)); err != nil {
		t.Fatalf("write: %v", err)
	}
	_, _, err := conn.Read(ctx)
	if websocket.CloseStatus(err) != websocket.StatusMessageTooBig {
		t.Fatalf("read error = %v, want close status %d", err, websocket.StatusMessageTooBig)
	}

	waitFor(t, "connection ended log", func() bool {
		return logger.count("info", "client connection ended") == 1
	})
}

func TestSend(t *testing.T) {
	_, _, url := startHTTPTest(t, Config{Prefix: DefaultPrefix})

	replies, err := Send(context.Background(), url, []string{"ping", "pong"}, 5*time.Second)
	if err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	want := []string{"Server received: ping", "Server received: pong"}
	if len(replies) != len(want) {
		t.Fatalf("replies = %q, want %q", replies, want)
	}
	for i := range want {
		if replies[i] != want[i] {
			t.Errorf("replies[%d] = %q, want %q", i, replies[i], want[i])
		}
	}
}

func TestSend_DialError(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	addr := ln.Addr().String()
	ln.Close()

	if _, err := Send(context.Background(), "ws://"+addr, []string{"x"}, time.Second); err == nil {
		t.Fatal("expected dial error")
	}
}

func TestServer_ServeAndShutdown(t *testing.T) {
	logger := &recordingLogger{}
	s := NewServer(Config{Host: "127.0.0.1", Port: 0, Prefix: DefaultPrefix, ShutdownTimeout: 2 * time.Second}, logger)
	if err := s.Listen(); err != nil {
		t.Fatalf("Listen() error = %v", err)
	}
	url := "ws://" + s.Addr().String()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	served := make(chan error, 1)
	go func() { served <- s.Serve(ctx) }()

	waitFor(t, "running state", func() bool { return s.Lifecycle().State() == StateRunning })

	replies, err := Send(context.Background(), url, []string{"over tcp"}, 5*time.Second)
	if err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	if replies[0] != DefaultPrefix+"over tcp" {
		t.Errorf("reply = %q", replies[0])
	}

	dctx, dcancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer dcancel()
	held := dial(t, dctx, url)
	if _, err := exchange(dctx, held, "held open"); err != nil {
		t.Fatalf("held exchange: %v", err)
	}

	cancel()
	select {
	case err := <-served:
		if err != nil {
			t.Fatalf("Serve() error = %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Serve did not return after cancellation")
	}

	if s.Lifecycle().State() != StateStopped {
		t.Errorf("state = %v, want Stopped", s.Lifecycle().State())
	}
	if s.Lifecycle().ActiveWorkers() != 0 {
		t.Errorf("ActiveWorkers() = %d after shutdown", s.Lifecycle().ActiveWorkers())
	}
	if _, _, err := held.Read(dctx); err == nil {
		t.Error("held connection still readable after shutdown")
	}
	if s.Addr() != nil {
		t.Error("listener still bound after shutdown")
	}
}

func TestServer_ServeWithoutListen(t *testing.T) {
	s := NewServer(Config{Host: "127.0.0.1"}, &recordingLogger{})
	if err := s.Serve(context.Background()); !errors.Is(err, domain.ErrNotRunning) {
		t.Fatalf("Serve() error = %v, want ErrNotRunning", err)
	}
}

func TestServer_BindError(t *testing.T) {
	taken, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	defer taken.Close()
	port := taken.Addr().(*net.TCPAddr).Port

	logger := &recordingLogger{}
	s := NewServer(Config{Host: "127.0.0.1", Port: port}, logger)

	err = s.Listen()
	if !errors.Is(err, domain.ErrBind) {
		t.Fatalf("Listen() error = %v, want ErrBind", err)
	}
	entry, ok := logger.find("error", "server startup error")
	if !ok {
		t.Fatalf("missing startup error log, got %v", logger.messages())
	}
	if stack, _ := fieldValue(entry, "stack"); stack == "" || stack == nil {
		t.Error("startup error logged without a stack trace")
	}
}

func TestServer_ListenTwice(t *testing.T) {
	s := NewServer(Config{Host: "127.0.0.1"}, &recordingLogger{})
	if err := s.Listen(); err != nil {
		t.Fatalf("Listen() error = %v", err)
	}
	defer s.Close()

	if err := s.Listen(); !errors.Is(err, domain.ErrAlreadyRunning) {
		t.Fatalf("second Listen() error = %v, want ErrAlreadyRunning", err)
	}
}

func TestServer_ReusePort(t *testing.T) {
	first := NewServer(Config{Host: "127.0.0.1", ReusePort: true}, &recordingLogger{})
	if err := first.Listen(); err != nil {
		t.Fatalf("first Listen() error = %v", err)
	}
	defer first.Close()
	port := first.Addr().(*net.TCPAddr).Port

	second := NewServer(Config{Host: "127.0.0.1", Port: port, ReusePort: true}, &recordingLogger{})
	if err := second.Listen(); err != nil {
		t.Fatalf("second Listen() on shared port error = %v", err)
	}
	defer second.Close()
}

func TestConfig_Addr(t *testing.T) {
	tests := []struct {
		cfg  Config
		want string
	}{
		{Config{Host: "0.0.0.0", Port: 80}, "0.0.0.0:80"},
		{Config{Host: "::1", Port: 8080}, "[::1]:8080"},
		{Config{Host: "", Port: 9000}, ":9000"},
	}
	for _, tt := range tests {
		if got := tt.cfg.Addr(); got != tt.want {
			t.Errorf("Addr() = %q, want %q", got, tt.want)
		}
	}
}
