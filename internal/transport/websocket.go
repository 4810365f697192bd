// Package transport adapts the wire protocol to a live WebSocket
// connection, bridging client frames to the session manager and relaying a
// session's MsgStore output back as encoded frames.
package transport

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"

	"github.com/ashureev/relaybroker/internal/domain"
	"github.com/ashureev/relaybroker/internal/logmsg"
	"github.com/ashureev/relaybroker/internal/manager"
	"github.com/ashureev/relaybroker/internal/termkeys"
	"github.com/ashureev/relaybroker/internal/wire"
	"github.com/coder/websocket"
	"github.com/google/uuid"
)

// namedKeys maps the wire protocol's "key" field to a termkeys.Key, for
// clients (a browser xterm, a future local TUI) that send non-printable
// keys by name rather than raw bytes.
var namedKeys = map[string]termkeys.Key{
	"enter":     termkeys.KeyEnter,
	"backspace": termkeys.KeyBackspace,
	"tab":       termkeys.KeyTab,
	"esc":       termkeys.KeyEsc,
	"up":        termkeys.KeyUp,
	"down":      termkeys.KeyDown,
	"right":     termkeys.KeyRight,
	"left":      termkeys.KeyLeft,
	"home":      termkeys.KeyHome,
	"end":       termkeys.KeyEnd,
	"pageup":    termkeys.KeyPageUp,
	"pagedown":  termkeys.KeyPageDown,
	"delete":    termkeys.KeyDelete,
	"insert":    termkeys.KeyInsert,
	"f1":        termkeys.KeyF1,
	"f2":        termkeys.KeyF2,
	"f3":        termkeys.KeyF3,
	"f4":        termkeys.KeyF4,
	"f5":        termkeys.KeyF5,
	"f6":        termkeys.KeyF6,
	"f7":        termkeys.KeyF7,
	"f8":        termkeys.KeyF8,
	"f9":        termkeys.KeyF9,
	"f10":       termkeys.KeyF10,
	"f11":       termkeys.KeyF11,
	"f12":       termkeys.KeyF12,
}

// Handler upgrades HTTP connections to the wire protocol WebSocket and
// bridges them to a Manager.
type Handler struct {
	mgr           *manager.Manager
	allowedOrigin string
	isDev         bool
}

// NewHandler creates a Handler wired to mgr. allowedOrigin of "*" accepts
// any origin; isDev additionally bypasses the origin check entirely.
func NewHandler(mgr *manager.Manager, allowedOrigin string, isDev bool) *Handler {
	return &Handler{mgr: mgr, allowedOrigin: allowedOrigin, isDev: isDev}
}

// ServeHTTP implements http.Handler, upgrading the connection and running
// the bidirectional bridge until either side closes.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if !h.checkOrigin(r) {
		http.Error(w, "origin not allowed", http.StatusForbidden)
		return
	}

	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{OriginPatterns: []string{"*"}})
	if err != nil {
		slog.Error("failed to accept websocket", "error", err)
		return
	}
	defer func() {
		if closeErr := ws.Close(websocket.StatusNormalClosure, "session ended"); closeErr != nil {
			slog.Debug("failed to close websocket", "error", closeErr)
		}
	}()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	bridge := &bridge{handler: h, ws: ws, ctx: ctx, cancel: cancel}
	bridge.run()
}

func (h *Handler) checkOrigin(r *http.Request) bool {
	if h.isDev || h.allowedOrigin == "*" {
		return true
	}
	origin := r.Header.Get("Origin")
	if origin == "" || origin == h.allowedOrigin {
		return true
	}
	slog.Warn("websocket origin rejected", "origin", origin, "allowed", h.allowedOrigin)
	return false
}

// bridge is the per-connection state tying one client socket to at most one
// active session at a time.
type bridge struct {
	handler *Handler
	ws      *websocket.Conn
	ctx     context.Context
	cancel  context.CancelFunc

	mu         sync.Mutex
	activeID   uuid.UUID
	hasActive  bool
	forwardCtx context.CancelFunc
}

func (b *bridge) run() {
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		defer b.cancel()
		b.inputLoop()
	}()
	wg.Wait()

	b.mu.Lock()
	if b.forwardCtx != nil {
		b.forwardCtx()
	}
	b.mu.Unlock()
}

func (b *bridge) inputLoop() {
	for {
		_, data, err := b.ws.Read(b.ctx)
		if err != nil {
			if websocket.CloseStatus(err) == -1 {
				slog.Warn("websocket read error", "error", err)
			}
			return
		}

		msg, err := wire.DecodeClientMessage(data)
		if err != nil {
			b.writeError(fmt.Sprintf("malformed frame: %v", err))
			continue
		}

		switch msg.Type {
		case wire.TypeStartSession:
			b.handleStartSession(msg)
		case wire.TypeContinueSession:
			b.handleContinueSession(msg)
		case wire.TypeInput:
			b.handleInput(msg)
		case wire.TypeKey:
			b.handleKey(msg)
		case wire.TypeResize:
			slog.Debug("resize requested; no pseudo-terminal is owned by this broker", "cols", msg.Cols, "rows", msg.Rows)
		case wire.TypeInterrupt:
			b.handleInterrupt()
		case wire.TypePing:
			b.write(wire.Pong())
		default:
			slog.Warn("unknown client message type", "type", msg.Type)
			b.writeError("unknown message type: " + msg.Type)
		}
	}
}

func (b *bridge) handleStartSession(msg wire.ClientMessage) {
	execCtx := domain.NewExecutionContext(msg.WorkingDir)
	id, err := b.handler.mgr.StartSession(b.ctx, execCtx, msg.Prompt)
	if err != nil {
		b.writeError("failed to start session: " + err.Error())
		return
	}
	b.attach(id)
}

func (b *bridge) handleContinueSession(msg wire.ClientMessage) {
	originalID, err := uuid.Parse(msg.SessionID)
	if err != nil {
		b.writeError("invalid session_id: " + err.Error())
		return
	}
	id, err := b.handler.mgr.StartFollowUp(b.ctx, originalID, msg.Prompt)
	if err != nil {
		b.writeError("failed to continue session: " + err.Error())
		return
	}
	b.attach(id)
}

func (b *bridge) handleInput(msg wire.ClientMessage) {
	data, ok := msg.DecodeInput()
	if !ok {
		b.writeError("invalid input payload")
		return
	}
	id, ok := b.currentSession()
	if !ok {
		b.writeError("no active session")
		return
	}
	if err := b.handler.mgr.WriteInput(id, data); err != nil {
		b.writeError("write input: " + err.Error())
	}
}

// handleKey encodes a named non-printable key, or a single printable rune,
// into the byte sequence a shell or agent process expects on stdin.
func (b *bridge) handleKey(msg wire.ClientMessage) {
	id, ok := b.currentSession()
	if !ok {
		b.writeError("no active session")
		return
	}

	var data []byte
	if key, known := namedKeys[msg.Key]; known {
		seq, ok := termkeys.Encode(key)
		if !ok {
			b.writeError("unencodable key: " + msg.Key)
			return
		}
		data = seq
	} else {
		runes := []rune(msg.Key)
		if len(runes) != 1 {
			b.writeError("unrecognized key: " + msg.Key)
			return
		}
		data = termkeys.EncodeRune(runes[0], msg.Ctrl)
	}

	if err := b.handler.mgr.WriteInput(id, data); err != nil {
		b.writeError("write input: " + err.Error())
	}
}

func (b *bridge) handleInterrupt() {
	id, ok := b.currentSession()
	if !ok {
		return
	}
	b.handler.mgr.InterruptSession(id)
}

func (b *bridge) currentSession() (uuid.UUID, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.activeID, b.hasActive
}

// attach registers id as the connection's active session and starts
// forwarding its output back to the client.
func (b *bridge) attach(id uuid.UUID) {
	b.mu.Lock()
	if b.forwardCtx != nil {
		b.forwardCtx()
	}
	forwardCtx, cancel := context.WithCancel(b.ctx)
	b.activeID = id
	b.hasActive = true
	b.forwardCtx = cancel
	b.mu.Unlock()

	b.write(wire.SessionStarted(id.String()))
	go b.forwardOutput(forwardCtx, id)
}

func (b *bridge) forwardOutput(ctx context.Context, id uuid.UUID) {
	store, ok := b.handler.mgr.GetMsgStore(id)
	if !ok {
		b.writeError("session not active")
		return
	}

	for msg := range store.HistoryPlusStream(ctx) {
		switch msg.Kind {
		case logmsg.KindStdout, logmsg.KindStderr:
			b.write(wire.Output([]byte(msg.Text)))
		case logmsg.KindFinished:
			status, _ := b.handler.mgr.GetStatus(ctx, id)
			b.write(wire.SessionEnded(id.String(), status == domain.StatusCompleted))
			return
		case logmsg.KindSessionID, logmsg.KindJSONPatch:
			// Out-of-band events; no wire frame is defined for them yet.
		}
	}
}

func (b *bridge) write(msg wire.ServerMessage) {
	data, err := wire.EncodeServerMessage(msg)
	if err != nil {
		slog.Warn("failed to encode server message", "error", err)
		return
	}
	if err := b.ws.Write(b.ctx, websocket.MessageText, data); err != nil {
		if !errors.Is(err, context.Canceled) {
			slog.Debug("failed to write server message", "error", err)
		}
	}
}

func (b *bridge) writeError(message string) {
	message = strings.TrimSpace(message)
	b.write(wire.ErrorMessage(message))
}
