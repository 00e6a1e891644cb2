package server

import (
	"errors"
	"io"
	"log/slog"
	"net"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"tinyhttpd/internal/filestore"
	"tinyhttpd/internal/request"
	"tinyhttpd/internal/response"
	"tinyhttpd/internal/router"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func startServer(t *testing.T, cfg Config, handler Handler) *Server {
	t.Helper()
	cfg.Addr = "127.0.0.1:0"
	cfg.Logger = discardLogger()
	s, err := Serve(cfg, handler)
	if err != nil {
		t.Fatalf("Serve: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func startRouterServer(t *testing.T, cfg Config) *Server {
	t.Helper()
	rt := router.New(filestore.New(t.TempDir()), discardLogger())
	return startServer(t, cfg, rt.Handle)
}

// roundTrip sends raw on a fresh connection and reads until the server closes it
func roundTrip(t *testing.T, s *Server, raw string) string {
	t.Helper()
	got, err := send(s.Addr().String(), raw)
	if err != nil {
		t.Fatal(err)
	}
	return got
}

func send(addr, raw string) (string, error) {
	conn, err := net.Dial("tcp", addr)
	if err != nil {
		return "", err
	}
	defer conn.Close()
	conn.SetDeadline(time.Now().Add(5 * time.Second))
	if _, err := io.WriteString(conn, raw); err != nil {
		return "", err
	}
	got, err := io.ReadAll(conn)
	return string(got), err
}

func TestServeRoutes(t *testing.T) {
	s := startRouterServer(t, Config{})
	tests := []struct {
		raw    string
		expect string
	}{
		{"GET / HTTP/1.1\r\nHost: localhost:4221\r\n\r\n", "HTTP/1.1 200 OK\r\n\r\n"},
		{"GET /echo/hello HTTP/1.1\r\n\r\n", "HTTP/1.1 200 OK\r\nContent-Type: text/plain\r\nContent-Length: 5\r\n\r\nhello\r\n\r\n"},
		{"GET /user-agent HTTP/1.1\r\nUser-Agent: test/1\r\n\r\n", "HTTP/1.1 200 OK\r\nContent-Type: text/plain\r\nContent-Length: 6\r\n\r\ntest/1\r\n\r\n"},
		{"GET /unknown HTTP/1.1\r\n\r\n", "HTTP/1.1 404 Not Found\r\n\r\n"},
		{"GET /files/missing HTTP/1.1\r\n\r\n", "HTTP/1.1 404 Not Found\r\n\r\n"},
	}
	for _, tt := range tests {
		if got := roundTrip(t, s, tt.raw); got != tt.expect {
			t.Errorf("%q: got %q, want %q", tt.raw, got, tt.expect)
		}
	}
}

func TestServeFileScenario(t *testing.T) {
	s := startRouterServer(t, Config{})
	got := roundTrip(t, s, "POST /files/test.txt HTTP/1.1\r\nContent-Length: 6\r\n\r\nhello\n")
	if got != "HTTP/1.1 201 Created\r\n\r\n" {
		t.Fatalf("POST: got %q", got)
	}
	got = roundTrip(t, s, "GET /files/test.txt HTTP/1.1\r\n\r\n")
	expect := "HTTP/1.1 200 OK\r\nContent-Type: application/octet-stream\r\nContent-Length: 5\r\n\r\nhello\r\n\r\n"
	if got != expect {
		t.Errorf("GET: got %q, want %q", got, expect)
	}
}

func TestMalformedRequestGets400(t *testing.T) {
	s := startRouterServer(t, Config{})
	if got := roundTrip(t, s, "GARBAGE\r\n\r\n"); got != "HTTP/1.1 400 Bad Request\r\n\r\n" {
		t.Errorf("got %q", got)
	}
	// the server keeps serving
	if got := roundTrip(t, s, "GET / HTTP/1.1\r\n\r\n"); got != "HTTP/1.1 200 OK\r\n\r\n" {
		t.Errorf("got %q", got)
	}
}

func TestOversizedBodyGets500(t *testing.T) {
	s := startRouterServer(t, Config{})
	got := roundTrip(t, s, "POST /files/big HTTP/1.1\r\nContent-Length: 99999999\r\n\r\n")
	if got != "HTTP/1.1 500 Internal Server Error\r\n\r\n" {
		t.Errorf("got %q", got)
	}
}

func TestHandlerPanicIsContained(t *testing.T) {
	s := startServer(t, Config{}, func(w *response.Writer, req *request.Request) {
		if req.Path() == "/boom" {
			panic("boom")
		}
		w.Respond(response.StatusOK)
	})
	if got := roundTrip(t, s, "GET /boom HTTP/1.1\r\n\r\n"); got != "HTTP/1.1 500 Internal Server Error\r\n\r\n" {
		t.Errorf("got %q", got)
	}
	if got := roundTrip(t, s, "GET /fine HTTP/1.1\r\n\r\n"); got != "HTTP/1.1 200 OK\r\n\r\n" {
		t.Errorf("got %q", got)
	}
}

func TestSilentHandlerGets500(t *testing.T) {
	s := startServer(t, Config{}, func(w *response.Writer, req *request.Request) {})
	if got := roundTrip(t, s, "GET / HTTP/1.1\r\n\r\n"); got != "HTTP/1.1 500 Internal Server Error\r\n\r\n" {
		t.Errorf("got %q", got)
	}
}

func TestEmptyConnectionIsClosedSilently(t *testing.T) {
	s := startRouterServer(t, Config{})
	conn, err := net.Dial("tcp", s.Addr().String())
	if err != nil {
		t.Fatal(err)
	}
	defer conn.Close()
	conn.(*net.TCPConn).CloseWrite()
	conn.SetDeadline(time.Now().Add(5 * time.Second))
	got, err := io.ReadAll(conn)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 0 {
		t.Errorf("expected no bytes, got %q", got)
	}
}

func TestStalledClientDoesNotBlockOthers(t *testing.T) {
	s := startRouterServer(t, Config{})

	stalled, err := net.Dial("tcp", s.Addr().String())
	if err != nil {
		t.Fatal(err)
	}
	defer stalled.Close()
	io.WriteString(stalled, "GET /echo/never-finished")

	done := make(chan string, 1)
	go func() {
		got, _ := send(s.Addr().String(), "GET /echo/ok HTTP/1.1\r\n\r\n")
		done <- got
	}()
	select {
	case got := <-done:
		if !strings.HasSuffix(got, "ok\r\n\r\n") {
			t.Errorf("got %q", got)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("second client was blocked by the stalled one")
	}
}

func TestConcurrentClients(t *testing.T) {
	s := startRouterServer(t, Config{MaxConns: 4})

	var wg sync.WaitGroup
	errs := make(chan string, 20)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			got, err := send(s.Addr().String(), "GET /echo/abc HTTP/1.1\r\n\r\n")
			if err != nil || !strings.HasSuffix(got, "\r\n\r\nabc\r\n\r\n") {
				errs <- got
			}
		}()
	}
	wg.Wait()
	close(errs)
	for got := range errs {
		t.Errorf("unexpected response %q", got)
	}
}

func TestMaxConnsHoldsBacklog(t *testing.T) {
	s := startRouterServer(t, Config{MaxConns: 1})

	first, err := net.Dial("tcp", s.Addr().String())
	if err != nil {
		t.Fatal(err)
	}
	defer first.Close()
	// give the accept loop time to take the only slot
	time.Sleep(50 * time.Millisecond)

	second, err := net.Dial("tcp", s.Addr().String())
	if err != nil {
		t.Fatal(err)
	}
	defer second.Close()
	io.WriteString(second, "GET / HTTP/1.1\r\n\r\n")

	second.SetReadDeadline(time.Now().Add(100 * time.Millisecond))
	buf := make([]byte, 64)
	if _, err := second.Read(buf); !errors.Is(err, os.ErrDeadlineExceeded) {
		t.Fatalf("second client was served while the slot was taken: %v", err)
	}

	first.Close()
	second.SetReadDeadline(time.Now().Add(5 * time.Second))
	got, err := io.ReadAll(second)
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != "HTTP/1.1 200 OK\r\n\r\n" {
		t.Errorf("got %q", got)
	}
}

func TestReadTimeoutReleasesStalledClient(t *testing.T) {
	s := startRouterServer(t, Config{ReadTimeout: 100 * time.Millisecond})

	conn, err := net.Dial("tcp", s.Addr().String())
	if err != nil {
		t.Fatal(err)
	}
	defer conn.Close()
	conn.SetDeadline(time.Now().Add(5 * time.Second))
	got, err := io.ReadAll(conn)
	if err != nil {
		t.Fatalf("expected the server to close the connection, got %v", err)
	}
	if len(got) != 0 {
		t.Errorf("expected no bytes, got %q", got)
	}
}

func TestCloseStopsAccepting(t *testing.T) {
	s, err := Serve(Config{Addr: "127.0.0.1:0", Logger: discardLogger()}, func(w *response.Writer, req *request.Request) {
		w.Respond(response.StatusOK)
	})
	if err != nil {
		t.Fatal(err)
	}
	addr := s.Addr().String()
	if err := s.Close(); err != nil {
		t.Fatal(err)
	}
	if err := s.Close(); err != nil {
		t.Errorf("second Close: %v", err)
	}
	if conn, err := net.Dial("tcp", addr); err == nil {
		conn.Close()
		t.Error("dial succeeded after Close")
	}
}

func TestStatusForParseError(t *testing.T) {
	tests := []struct {
		err    error
		status response.StatusCode
		ok     bool
	}{
		{request.ErrMalformedRequestLine, response.StatusBadRequest, true},
		{request.ErrInvalidContentLength, response.StatusBadRequest, true},
		{request.ErrHeaderTooLarge, response.StatusInternalServerError, true},
		{request.ErrBodyTooLarge, response.StatusInternalServerError, true},
		{request.ErrIncompleteBody, response.StatusInternalServerError, true},
		{io.EOF, 0, false},
		{os.ErrDeadlineExceeded, 0, false},
		{errors.New("connection reset by peer"), 0, false},
	}
	for _, tt := range tests {
		status, ok := statusForParseError(tt.err)
		if status != tt.status || ok != tt.ok {
			t.Errorf("%v: got (%d, %v), want (%d, %v)", tt.err, status, ok, tt.status, tt.ok)
		}
	}
}

func TestCloseInterruptsStalledClient(t *testing.T) {
	s, err := Serve(Config{Addr: "127.0.0.1:0", Logger: discardLogger()}, func(w *response.Writer, req *request.Request) {
		w.Respond(response.StatusOK)
	})
	if err != nil {
		t.Fatal(err)
	}

	stalled, err := net.Dial("tcp", s.Addr().String())
	if err != nil {
		t.Fatal(err)
	}
	defer stalled.Close()
	io.WriteString(stalled, "GET /never-finished")
	// let the server accept and start reading
	time.Sleep(50 * time.Millisecond)

	closed := make(chan error, 1)
	go func() { closed <- s.Close() }()
	select {
	case err := <-closed:
		if err != nil {
			t.Errorf("Close: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Close hung on a stalled client")
	}
}
