package controlpeer

import "context"

// ApprovalVerdict is the outcome an ApprovalHandler returns for a
// can_use_tool request.
type ApprovalVerdict struct {
	Allow         bool
	UpdatedInput  map[string]any // only meaningful when Allow is true
	DenyMessage   string         // only meaningful when Allow is false
	DenyInterrupt bool           // only meaningful when Allow is false
}

// Allowed builds a verdict approving the tool call, optionally rewriting its
// input.
func Allowed(updatedInput map[string]any) ApprovalVerdict {
	return ApprovalVerdict{Allow: true, UpdatedInput: updatedInput}
}

// Denied builds a verdict refusing the tool call.
func Denied(message string, interrupt bool) ApprovalVerdict {
	return ApprovalVerdict{Allow: false, DenyMessage: message, DenyInterrupt: interrupt}
}

// ApprovalHandler decides whether a tool-use request from the agent may
// proceed. Implementations may prompt a human, consult a policy engine, or
// auto-approve.
type ApprovalHandler interface {
	Approve(ctx context.Context, toolName string, input map[string]any, toolUseID string) (ApprovalVerdict, error)
}

// AutoApproveHandler approves every request verbatim, leaving input
// unmodified. It is the default when no handler is configured.
type AutoApproveHandler struct{}

// Approve implements ApprovalHandler.
func (AutoApproveHandler) Approve(_ context.Context, _ string, input map[string]any, _ string) (ApprovalVerdict, error) {
	return Allowed(input), nil
}
