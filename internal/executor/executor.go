package executor

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/ashureev/relaybroker/internal/domain"
)

// Executor spawn errors.
var (
	ErrSpawnFailed        = errors.New("spawn failed")
	ErrExecutableNotFound = errors.New("executable not found")
)

// Process is a running agent child: its Cmd for I/O plumbing, plus a
// one-shot Interrupt channel that SignalInterrupt writes to. Nothing in this
// package reads Interrupt; the manager delivers interrupts as control frames
// through its controlpeer.Peer instead.
type Process struct {
	Cmd       *exec.Cmd
	Stdin     interface{ Write([]byte) (int, error) }
	Stdout    interface{ Read([]byte) (int, error) }
	Stderr    interface{ Read([]byte) (int, error) }
	Interrupt chan struct{}
}

// Executor launches agent child processes from a command template.
type Executor struct {
	Builder      *Builder
	ShellTimeout time.Duration
}

// New creates an Executor for the given base command template, using
// DefaultShellTimeout for login-shell PATH refreshes.
func New(base string) *Executor {
	return &Executor{Builder: NewBuilder(base), ShellTimeout: DefaultShellTimeout}
}

// NewWithShellTimeout creates an Executor with an explicit login-shell PATH
// refresh timeout.
func NewWithShellTimeout(base string, shellTimeout time.Duration) *Executor {
	return &Executor{Builder: NewBuilder(base), ShellTimeout: shellTimeout}
}

// Spawn launches a fresh agent process rooted at execCtx.WorkingDir.
func (e *Executor) Spawn(ctx context.Context, execCtx domain.ExecutionContext) (*Process, error) {
	parts, err := e.Builder.BuildInitial()
	if err != nil {
		return nil, fmt.Errorf("build command: %w", err)
	}
	return e.spawn(ctx, execCtx, parts)
}

// SpawnFollowUp launches an agent process that resumes agentSessionID.
func (e *Executor) SpawnFollowUp(ctx context.Context, execCtx domain.ExecutionContext, agentSessionID string) (*Process, error) {
	parts, err := e.Builder.BuildFollowUp(agentSessionID)
	if err != nil {
		return nil, fmt.Errorf("build follow-up command: %w", err)
	}
	return e.spawn(ctx, execCtx, parts)
}

// envWithPath returns a copy of env with its PATH entry replaced by path, so
// the child sees the same augmented PATH the parent resolved its own
// executable against rather than just inheriting the broker's original
// PATH. If path is empty (no refresh happened, or none was needed) env is
// returned unchanged.
func envWithPath(env []string, path string) []string {
	if path == "" {
		return env
	}
	out := make([]string, 0, len(env)+1)
	replaced := false
	for _, kv := range env {
		if strings.HasPrefix(kv, "PATH=") {
			out = append(out, "PATH="+path)
			replaced = true
			continue
		}
		out = append(out, kv)
	}
	if !replaced {
		out = append(out, "PATH="+path)
	}
	return out
}

func (e *Executor) spawn(ctx context.Context, execCtx domain.ExecutionContext, parts CommandParts) (*Process, error) {
	resolved, ok := ResolveExecutablePathWithTimeout(ctx, parts.Program, e.ShellTimeout)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrExecutableNotFound, parts.Program)
	}

	cmd := exec.CommandContext(ctx, resolved, parts.Args...)
	cmd.Dir = execCtx.WorkingDir
	cmd.Env = envWithPath(os.Environ(), AugmentedPath(ctx, e.ShellTimeout))
	setProcessGroup(cmd)

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("%w: stdin pipe: %v", ErrSpawnFailed, err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("%w: stdout pipe: %v", ErrSpawnFailed, err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("%w: stderr pipe: %v", ErrSpawnFailed, err)
	}

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSpawnFailed, err)
	}

	return &Process{
		Cmd:       cmd,
		Stdin:     stdin,
		Stdout:    stdout,
		Stderr:    stderr,
		Interrupt: make(chan struct{}, 1),
	}, nil
}

// Kill terminates the whole process group the child leads (on Windows, the
// child alone).
func (p *Process) Kill() error {
	if p.Cmd.Process == nil {
		return nil
	}
	return killProcessGroup(p.Cmd)
}

// SignalInterrupt requests a graceful interrupt by writing to the one-shot
// channel. It is safe to call more than once; only the first send has
// effect.
func (p *Process) SignalInterrupt() {
	select {
	case p.Interrupt <- struct{}{}:
	default:
	}
}
