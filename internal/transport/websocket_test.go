package transport

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"runtime"
	"testing"
	"time"

	"github.com/ashureev/relaybroker/internal/controlpeer"
	"github.com/ashureev/relaybroker/internal/executor"
	"github.com/ashureev/relaybroker/internal/manager"
	"github.com/ashureev/relaybroker/internal/sessionstore"
	"github.com/ashureev/relaybroker/internal/wire"
	"github.com/coder/websocket"
)

func newTestServer(t *testing.T, script string) *httptest.Server {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("POSIX shell script assumed")
	}

	store := sessionstore.NewMemory()
	exec := executor.New("/bin/sh -c " + script)
	mgr := manager.New(store, exec, controlpeer.AutoApproveHandler{})
	handler := NewHandler(mgr, "*", true)

	srv := httptest.NewServer(http.HandlerFunc(handler.ServeHTTP))
	t.Cleanup(srv.Close)
	return srv
}

func dial(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + srv.URL[len("http"):]
	conn, _, err := websocket.Dial(context.Background(), url, nil)
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	t.Cleanup(func() {
		_ = conn.Close(websocket.StatusNormalClosure, "test done")
	})
	return conn
}

func readUntilType(t *testing.T, ctx context.Context, conn *websocket.Conn, want string) wire.ServerMessage {
	t.Helper()
	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			t.Fatalf("Read() error waiting for %q: %v", want, err)
		}
		var msg wire.ServerMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			t.Fatalf("unmarshal server message: %v", err)
		}
		if msg.Type == want {
			return msg
		}
	}
}

func TestStartSessionRoundTripsOutputAndEnds(t *testing.T) {
	t.Parallel()

	srv := newTestServer(t, `'echo hello; echo done'`)
	conn := dial(t, srv)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	start := wire.ClientMessage{Type: wire.TypeStartSession, WorkingDir: t.TempDir()}
	raw, err := json.Marshal(start)
	if err != nil {
		t.Fatalf("marshal start frame: %v", err)
	}
	if err := conn.Write(ctx, websocket.MessageText, raw); err != nil {
		t.Fatalf("Write(start) error = %v", err)
	}

	started := readUntilType(t, ctx, conn, wire.TypeSessionStarted)
	if started.SessionID == "" {
		t.Fatalf("session_started frame missing session_id")
	}

	ended := readUntilType(t, ctx, conn, wire.TypeSessionEnded)
	if ended.Success == nil || !*ended.Success {
		t.Fatalf("session_ended.success = %v, want true", ended.Success)
	}
}

func TestStartSessionReportsFailureOnNonZeroExit(t *testing.T) {
	t.Parallel()

	srv := newTestServer(t, `'echo trouble; exit 1'`)
	conn := dial(t, srv)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	start := wire.ClientMessage{Type: wire.TypeStartSession, WorkingDir: t.TempDir()}
	raw, err := json.Marshal(start)
	if err != nil {
		t.Fatalf("marshal start frame: %v", err)
	}
	if err := conn.Write(ctx, websocket.MessageText, raw); err != nil {
		t.Fatalf("Write(start) error = %v", err)
	}
	readUntilType(t, ctx, conn, wire.TypeSessionStarted)

	ended := readUntilType(t, ctx, conn, wire.TypeSessionEnded)
	if ended.Success == nil || *ended.Success {
		t.Fatalf("session_ended.success = %v, want false for a crashing child", ended.Success)
	}
}

func TestPingPong(t *testing.T) {
	t.Parallel()

	srv := newTestServer(t, `'true'`)
	conn := dial(t, srv)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	raw, err := json.Marshal(wire.ClientMessage{Type: wire.TypePing})
	if err != nil {
		t.Fatalf("marshal ping frame: %v", err)
	}
	if err := conn.Write(ctx, websocket.MessageText, raw); err != nil {
		t.Fatalf("Write(ping) error = %v", err)
	}

	readUntilType(t, ctx, conn, wire.TypePong)
}

func TestHandleKeySendsEncodedBytes(t *testing.T) {
	t.Parallel()

	srv := newTestServer(t, `'dd bs=1 count=1 >/dev/null 2>&1; echo got'`)
	conn := dial(t, srv)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	start := wire.ClientMessage{Type: wire.TypeStartSession, WorkingDir: t.TempDir()}
	raw, err := json.Marshal(start)
	if err != nil {
		t.Fatalf("marshal start frame: %v", err)
	}
	if err := conn.Write(ctx, websocket.MessageText, raw); err != nil {
		t.Fatalf("Write(start) error = %v", err)
	}
	readUntilType(t, ctx, conn, wire.TypeSessionStarted)

	key := wire.ClientMessage{Type: wire.TypeKey, Key: "enter"}
	raw, err = json.Marshal(key)
	if err != nil {
		t.Fatalf("marshal key frame: %v", err)
	}
	if err := conn.Write(ctx, websocket.MessageText, raw); err != nil {
		t.Fatalf("Write(key) error = %v", err)
	}

	readUntilType(t, ctx, conn, wire.TypeSessionEnded)
}

func TestUnknownMessageTypeReturnsError(t *testing.T) {
	t.Parallel()

	srv := newTestServer(t, `'true'`)
	conn := dial(t, srv)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	raw, err := json.Marshal(wire.ClientMessage{Type: "not_a_real_type"})
	if err != nil {
		t.Fatalf("marshal frame: %v", err)
	}
	if err := conn.Write(ctx, websocket.MessageText, raw); err != nil {
		t.Fatalf("Write() error = %v", err)
	}

	readUntilType(t, ctx, conn, wire.TypeError)
}
