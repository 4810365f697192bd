// Package executor builds and spawns agent child processes: parsing a
// shell-style command template, resolving the executable against a refreshed
// PATH, and launching a process-group leader the manager can interrupt.
package executor

import (
	"errors"
	"fmt"
	"runtime"

	"github.com/mattn/go-shellwords"
)

// Command build errors.
var (
	ErrEmptyCommand       = errors.New("command is empty after parsing")
	ErrInvalidShellParams = errors.New("invalid shell parameters")
)

// CommandParts is a parsed (program, args) pair ready to spawn.
type CommandParts struct {
	Program string
	Args    []string
}

// Builder constructs commands for initial and follow-up agent spawns from a
// shell-quoted base template plus optional fixed parameters.
type Builder struct {
	Base   string
	Params []string
}

// NewBuilder creates a Builder for the given base command template.
func NewBuilder(base string) *Builder {
	return &Builder{Base: base}
}

// WithParams returns a copy of b with params appended after the base.
func (b *Builder) WithParams(params ...string) *Builder {
	out := &Builder{Base: b.Base, Params: append(append([]string{}, b.Params...), params...)}
	return out
}

// BuildInitial builds the command for a new session's first spawn.
func (b *Builder) BuildInitial() (CommandParts, error) {
	return b.build(nil)
}

// BuildFollowUp builds the command for a follow-up spawn, with extra args
// (typically the agent's own prior session id) appended last.
func (b *Builder) BuildFollowUp(extra ...string) (CommandParts, error) {
	return b.build(extra)
}

func (b *Builder) build(extra []string) (CommandParts, error) {
	baseParts, err := splitCommandLine(b.Base)
	if err != nil {
		return CommandParts{}, fmt.Errorf("parse base command %q: %w", b.Base, err)
	}

	parts := make([]string, 0, len(baseParts)+len(b.Params)+len(extra))
	parts = append(parts, baseParts...)
	parts = append(parts, b.Params...)
	parts = append(parts, extra...)

	if len(parts) == 0 {
		return CommandParts{}, ErrEmptyCommand
	}

	return CommandParts{Program: parts[0], Args: parts[1:]}, nil
}

func splitCommandLine(input string) ([]string, error) {
	if runtime.GOOS == "windows" {
		return splitWindowsCommandLine(input)
	}
	parser := shellwords.NewParser()
	parts, err := parser.Parse(input)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidShellParams, err)
	}
	return parts, nil
}
