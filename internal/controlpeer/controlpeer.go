package controlpeer

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
)

// LogSink receives every line the peer does not itself consume as control
// traffic: opaque agent output, including the terminal "result" line.
type LogSink interface {
	LogRaw(line string)
}

// Peer is one bidirectional control-protocol connection to an agent child
// process. The child's stdin is written under a mutex so outbound frames
// stay atomic per line; its stdout is drained by a single reader goroutine
// started by Run.
type Peer struct {
	stdin   io.Writer
	stdinMu sync.Mutex

	stdout  *bufio.Scanner
	handler ApprovalHandler
	sink    LogSink
	log     *slog.Logger

	interrupt chan struct{}
	done      chan struct{}

	sessionIDMu    sync.Mutex
	agentSessionID string
}

// New constructs a Peer over the given child stdio. handler may be nil, in
// which case every can_use_tool request is auto-approved. sink may be nil,
// in which case non-control lines are dropped.
func New(stdin io.Writer, stdout io.Reader, handler ApprovalHandler, sink LogSink) *Peer {
	if handler == nil {
		handler = AutoApproveHandler{}
	}
	scanner := bufio.NewScanner(stdout)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)

	return &Peer{
		stdin:     stdin,
		stdout:    scanner,
		handler:   handler,
		sink:      sink,
		log:       slog.Default(),
		interrupt: make(chan struct{}, 1),
		done:      make(chan struct{}),
	}
}

// Initialize writes the peer-initiated initialize control request.
func (p *Peer) Initialize(hooks any) error {
	return p.writeFrame(newInitializeFrame(hooks))
}

// SetPermissionMode writes a set_permission_mode control request.
func (p *Peer) SetPermissionMode(mode PermissionMode) error {
	return p.writeFrame(newSetPermissionModeFrame(mode))
}

// SendUserMessage injects a user-turn prompt.
func (p *Peer) SendUserMessage(content string) error {
	return p.writeFrame(newUserMessageFrame(content))
}

// Interrupt requests the read loop emit an interrupt control frame at the
// next opportunity. It is safe to call after the peer has terminated, in
// which case the signal is silently dropped.
func (p *Peer) Interrupt() {
	select {
	case p.interrupt <- struct{}{}:
	default:
	}
}

// Done returns a channel closed once the read loop has terminated (on EOF,
// read error, or after forwarding a result line).
func (p *Peer) Done() <-chan struct{} {
	return p.done
}

// AgentSessionID returns the agent's own session identifier, once the child
// has revealed it in a system or result line, and whether one has been seen
// yet.
func (p *Peer) AgentSessionID() (string, bool) {
	p.sessionIDMu.Lock()
	defer p.sessionIDMu.Unlock()
	return p.agentSessionID, p.agentSessionID != ""
}

func (p *Peer) setAgentSessionID(id string) {
	p.sessionIDMu.Lock()
	defer p.sessionIDMu.Unlock()
	if p.agentSessionID == "" {
		p.agentSessionID = id
	}
}

// Run drives the read loop until the child's stdout closes, ctx is
// cancelled, or a result line is processed. It is meant to run on its own
// goroutine; callers select on Done() to learn when it has exited.
func (p *Peer) Run(ctx context.Context) error {
	defer close(p.done)

	lines := make(chan string)
	scanErr := make(chan error, 1)
	go func() {
		for p.stdout.Scan() {
			select {
			case lines <- p.stdout.Text():
			case <-ctx.Done():
				return
			}
		}
		scanErr <- p.stdout.Err()
		close(lines)
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case <-p.interrupt:
			if err := p.writeFrame(newInterruptFrame()); err != nil {
				p.log.Warn("failed to write interrupt frame", "error", err)
			}

		case line, ok := <-lines:
			if !ok {
				return <-scanErr
			}
			if terminal := p.handleLine(ctx, line); terminal {
				return nil
			}
		}
	}
}

// handleLine processes one stdout line, returning true if the read loop
// should terminate after it (a result line was forwarded).
func (p *Peer) handleLine(ctx context.Context, line string) (terminal bool) {
	trimmed := strings.TrimSpace(line)
	if trimmed == "" {
		return false
	}

	var envelope inboundEnvelope
	if err := json.Unmarshal([]byte(trimmed), &envelope); err != nil {
		p.logRaw(trimmed)
		return false
	}

	if envelope.SessionID != "" {
		p.setAgentSessionID(envelope.SessionID)
	}

	switch envelope.Type {
	case "control_request":
		p.handleControlRequest(ctx, trimmed)
		return false
	case "control_response":
		return false
	case "result":
		p.logRaw(trimmed)
		return true
	default:
		p.logRaw(trimmed)
		return false
	}
}

func (p *Peer) logRaw(line string) {
	if p.sink != nil {
		p.sink.LogRaw(line)
	}
}

func (p *Peer) handleControlRequest(ctx context.Context, line string) {
	var req controlRequestEnvelope
	if err := json.Unmarshal([]byte(line), &req); err != nil {
		p.log.Warn("malformed control_request", "error", err)
		return
	}

	var sub requestSubtype
	if err := json.Unmarshal(req.Request, &sub); err != nil {
		if werr := p.writeFrame(newErrorFrame(req.RequestID, fmt.Sprintf("malformed request: %v", err))); werr != nil {
			p.log.Warn("failed to write control error response", "error", werr)
		}
		return
	}

	switch sub.Subtype {
	case "can_use_tool":
		p.handleCanUseTool(ctx, req.RequestID, req.Request)
	case "hook_callback":
		p.handleHookCallback(req.RequestID, req.Request)
	default:
		if err := p.writeFrame(newErrorFrame(req.RequestID, "unknown control request subtype: "+sub.Subtype)); err != nil {
			p.log.Warn("failed to write control error response", "error", err)
		}
	}
}

func (p *Peer) handleCanUseTool(ctx context.Context, requestID string, raw json.RawMessage) {
	var body canUseToolRequest
	if err := json.Unmarshal(raw, &body); err != nil {
		if werr := p.writeFrame(newErrorFrame(requestID, fmt.Sprintf("malformed can_use_tool request: %v", err))); werr != nil {
			p.log.Warn("failed to write control error response", "error", werr)
		}
		return
	}

	if body.ToolUseID == "" {
		p.log.Warn("can_use_tool request missing tool_use_id, auto-allowing", "tool_name", body.ToolName)
		p.respondAllow(requestID, body.Input)
		return
	}

	verdict, err := p.handler.Approve(ctx, body.ToolName, body.Input, body.ToolUseID)
	if err != nil {
		if werr := p.writeFrame(newErrorFrame(requestID, err.Error())); werr != nil {
			p.log.Warn("failed to write control error response", "error", werr)
		}
		return
	}

	if verdict.Allow {
		p.respondAllow(requestID, verdict.UpdatedInput)
		return
	}
	p.respondDeny(requestID, verdict.DenyMessage, verdict.DenyInterrupt)
}

func (p *Peer) respondAllow(requestID string, input map[string]any) {
	result := permissionResultAllow{Behavior: "allow", UpdatedInput: input, UpdatedPermissions: nil}
	if err := p.writeFrame(newSuccessFrame(requestID, result)); err != nil {
		p.log.Warn("failed to write allow response", "error", err)
	}
}

func (p *Peer) respondDeny(requestID, message string, interrupt bool) {
	result := permissionResultDeny{Behavior: "deny", Message: message, Interrupt: interrupt}
	if err := p.writeFrame(newSuccessFrame(requestID, result)); err != nil {
		p.log.Warn("failed to write deny response", "error", err)
	}
}

// handleHookCallback never synchronously invokes the approval handler: hook
// callbacks can fire before the corresponding can_use_tool request, so every
// handler other than AutoApproveHandler gets an "ask" hook output that
// delegates to the approval pathway. AutoApproveHandler (also what a nil
// handler becomes in New) gets the canned "allow" hook output.
func (p *Peer) handleHookCallback(requestID string, raw json.RawMessage) {
	var body hookCallbackRequest
	if err := json.Unmarshal(raw, &body); err != nil {
		if werr := p.writeFrame(newErrorFrame(requestID, fmt.Sprintf("malformed hook_callback request: %v", err))); werr != nil {
			p.log.Warn("failed to write control error response", "error", werr)
		}
		return
	}

	output := askHookOutput()
	if _, isAutoApprove := p.handler.(AutoApproveHandler); isAutoApprove {
		output = autoApproveHookOutput()
	}
	if err := p.writeFrame(newSuccessFrame(requestID, output)); err != nil {
		p.log.Warn("failed to write hook_callback response", "error", err)
	}
}

func (p *Peer) writeFrame(frame any) error {
	data, err := json.Marshal(frame)
	if err != nil {
		return fmt.Errorf("marshal control frame: %w", err)
	}
	data = append(data, '\n')

	p.stdinMu.Lock()
	defer p.stdinMu.Unlock()
	if _, err := p.stdin.Write(data); err != nil {
		return fmt.Errorf("write control frame: %w", err)
	}
	return nil
}
