// Package controlpeer implements the bidirectional, line-delimited JSON
// control protocol spoken over an agent child process's stdio: free-form
// output interleaved with tool-use approval requests, hook callbacks, and
// peer-initiated control frames (initialize, interrupt, permission mode).
package controlpeer

import "encoding/json"

// PermissionMode is the agent's tool-approval posture, set via
// set_permission_mode.
type PermissionMode string

// Permission modes the agent understands.
const (
	PermissionModeDefault           PermissionMode = "default"
	PermissionModeAcceptEdits       PermissionMode = "acceptEdits"
	PermissionModeBypassPermissions PermissionMode = "bypassPermissions"
	PermissionModePlan              PermissionMode = "plan"
)

// inboundEnvelope is the outer shape of every line read from the child's
// stdout: a type discriminator only; type-specific decoding re-reads the
// whole line. SessionID is populated on the "system"/"init" line and again on
// the terminal "result" line; either is enough to learn the agent's own
// session id.
type inboundEnvelope struct {
	Type      string `json:"type"`
	SessionID string `json:"session_id,omitempty"`
}

// controlRequestEnvelope wraps an inbound control_request line.
type controlRequestEnvelope struct {
	Type      string          `json:"type"`
	RequestID string          `json:"request_id"`
	Request   json.RawMessage `json:"request"`
}

// requestSubtype is read first to decide how to decode controlRequestEnvelope.Request.
type requestSubtype struct {
	Subtype string `json:"subtype"`
}

// canUseToolRequest is the request body when Subtype == "can_use_tool".
type canUseToolRequest struct {
	Subtype               string         `json:"subtype"`
	ToolName               string         `json:"tool_name"`
	Input                  map[string]any `json:"input"`
	ToolUseID              string         `json:"tool_use_id,omitempty"`
	PermissionSuggestions  any            `json:"permission_suggestions,omitempty"`
}

// hookCallbackRequest is the request body when Subtype == "hook_callback".
type hookCallbackRequest struct {
	Subtype    string         `json:"subtype"`
	CallbackID string         `json:"callback_id"`
	Input      map[string]any `json:"input"`
	ToolUseID  string         `json:"tool_use_id,omitempty"`
}

// controlResponseFrame is the outer shape the peer writes back for a
// processed control_request.
type controlResponseFrame struct {
	Type     string           `json:"type"`
	Response controlResponse  `json:"response"`
}

type controlResponse struct {
	Subtype   string `json:"subtype"`
	RequestID string `json:"request_id"`
	Response  any    `json:"response,omitempty"`
	Error     string `json:"error,omitempty"`
}

func newSuccessFrame(requestID string, response any) controlResponseFrame {
	return controlResponseFrame{
		Type: "control_response",
		Response: controlResponse{
			Subtype:   "success",
			RequestID: requestID,
			Response:  response,
		},
	}
}

func newErrorFrame(requestID, errMsg string) controlResponseFrame {
	return controlResponseFrame{
		Type: "control_response",
		Response: controlResponse{
			Subtype:   "error",
			RequestID: requestID,
			Error:     errMsg,
		},
	}
}

// permissionResultAllow is the can_use_tool success payload when the
// verdict allows the call.
type permissionResultAllow struct {
	Behavior           string         `json:"behavior"`
	UpdatedInput       map[string]any `json:"updatedInput"`
	UpdatedPermissions any            `json:"updatedPermissions"`
}

// permissionResultDeny is the can_use_tool success payload when the verdict
// denies the call. Note this still travels inside a "success" control
// response — denial is a successful decision, not a protocol error.
type permissionResultDeny struct {
	Behavior  string `json:"behavior"`
	Message   string `json:"message"`
	Interrupt bool   `json:"interrupt,omitempty"`
}

// hookOutput is the canned response to a hook_callback.
type hookOutput struct {
	HookSpecificOutput hookSpecificOutput `json:"hookSpecificOutput"`
}

type hookSpecificOutput struct {
	HookEventName            string `json:"hookEventName"`
	PermissionDecision        string `json:"permissionDecision"`
	PermissionDecisionReason  string `json:"permissionDecisionReason"`
}

func autoApproveHookOutput() hookOutput {
	return hookOutput{hookSpecificOutput{
		HookEventName:            "PreToolUse",
		PermissionDecision:       "allow",
		PermissionDecisionReason: "Auto-approved",
	}}
}

func askHookOutput() hookOutput {
	return hookOutput{hookSpecificOutput{
		HookEventName:            "PreToolUse",
		PermissionDecision:       "ask",
		PermissionDecisionReason: "delegated to approval handler",
	}}
}

// userMessageFrame injects a user-turn prompt.
type userMessageFrame struct {
	Type    string `json:"type"`
	Content string `json:"content"`
}

func newUserMessageFrame(content string) userMessageFrame {
	return userMessageFrame{Type: "user", Content: content}
}

// outboundControlRequest is a peer-initiated control_request: initialize,
// interrupt, or set_permission_mode.
type outboundControlRequest struct {
	Type    string `json:"type"`
	Request any    `json:"request"`
}

type initializeRequest struct {
	Subtype string `json:"subtype"`
	Hooks   any    `json:"hooks,omitempty"`
}

type interruptRequest struct {
	Subtype string `json:"subtype"`
}

type setPermissionModeRequest struct {
	Subtype string         `json:"subtype"`
	Mode    PermissionMode `json:"mode"`
}

func newInitializeFrame(hooks any) outboundControlRequest {
	return outboundControlRequest{Type: "control_request", Request: initializeRequest{Subtype: "initialize", Hooks: hooks}}
}

func newInterruptFrame() outboundControlRequest {
	return outboundControlRequest{Type: "control_request", Request: interruptRequest{Subtype: "interrupt"}}
}

func newSetPermissionModeFrame(mode PermissionMode) outboundControlRequest {
	return outboundControlRequest{Type: "control_request", Request: setPermissionModeRequest{Subtype: "set_permission_mode", Mode: mode}}
}
