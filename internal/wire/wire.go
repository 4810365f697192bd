// Package wire implements the client-broker JSON envelope: a single UTF-8
// JSON object per frame, discriminated by a "type" field, with binary
// payloads carried as standard base64.
package wire

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
)

// ClientMessage is a frame sent from client to broker.
type ClientMessage struct {
	Type       string `json:"type"`
	Data       string `json:"data,omitempty"`
	Cols       uint16 `json:"cols,omitempty"`
	Rows       uint16 `json:"rows,omitempty"`
	WorkingDir string `json:"working_dir,omitempty"`
	Prompt     string `json:"prompt,omitempty"`
	SessionID  string `json:"session_id,omitempty"`
	Key        string `json:"key,omitempty"`
	Ctrl       bool   `json:"ctrl,omitempty"`
}

// Client message type discriminators.
const (
	TypeInput           = "input"
	TypeKey             = "key"
	TypeResize          = "resize"
	TypeStartSession    = "start_session"
	TypeContinueSession = "continue_session"
	TypeInterrupt       = "interrupt"
	TypePing            = "ping"
)

// Input builds an Input frame carrying raw bytes, base64-encoded per RFC 4648
// with the standard alphabet and padding.
func Input(data []byte) ClientMessage {
	return ClientMessage{Type: TypeInput, Data: base64.StdEncoding.EncodeToString(data)}
}

// DecodeInput decodes the base64 payload of an Input frame. It returns false
// if msg is not an Input frame or the payload is not valid base64.
func (m ClientMessage) DecodeInput() ([]byte, bool) {
	if m.Type != TypeInput {
		return nil, false
	}
	data, err := base64.StdEncoding.DecodeString(m.Data)
	if err != nil {
		return nil, false
	}
	return data, true
}

// ServerMessage is a frame sent from broker to client.
type ServerMessage struct {
	Type      string `json:"type"`
	Data      string `json:"data,omitempty"`
	SessionID string `json:"session_id,omitempty"`
	Success   *bool  `json:"success,omitempty"`
	Message   string `json:"message,omitempty"`
}

// Server message type discriminators.
const (
	TypeOutput        = "output"
	TypeSessionStarted = "session_started"
	TypeSessionEnded   = "session_ended"
	TypeError          = "error"
	TypePong           = "pong"
)

// Output builds an Output frame carrying raw bytes, base64-encoded per
// RFC 4648 with the standard alphabet and padding.
func Output(data []byte) ServerMessage {
	return ServerMessage{Type: TypeOutput, Data: base64.StdEncoding.EncodeToString(data)}
}

// DecodeOutput decodes the base64 payload of an Output frame. It returns
// false if msg is not an Output frame or the payload is not valid base64.
func (m ServerMessage) DecodeOutput() ([]byte, bool) {
	if m.Type != TypeOutput {
		return nil, false
	}
	data, err := base64.StdEncoding.DecodeString(m.Data)
	if err != nil {
		return nil, false
	}
	return data, true
}

// SessionStarted builds a SessionStarted frame.
func SessionStarted(sessionID string) ServerMessage {
	return ServerMessage{Type: TypeSessionStarted, SessionID: sessionID}
}

// SessionEnded builds a SessionEnded frame.
func SessionEnded(sessionID string, success bool) ServerMessage {
	return ServerMessage{Type: TypeSessionEnded, SessionID: sessionID, Success: &success}
}

// ErrorMessage builds an Error frame.
func ErrorMessage(message string) ServerMessage {
	return ServerMessage{Type: TypeError, Message: message}
}

// Pong builds a Pong frame.
func Pong() ServerMessage {
	return ServerMessage{Type: TypePong}
}

// DecodeClientMessage parses a single client frame. Errors are the caller's
// signal to reply with an ErrorMessage and keep the connection open.
func DecodeClientMessage(raw []byte) (ClientMessage, error) {
	var msg ClientMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		return ClientMessage{}, fmt.Errorf("decode client message: %w", err)
	}
	return msg, nil
}

// EncodeServerMessage serializes a single server frame.
func EncodeServerMessage(msg ServerMessage) ([]byte, error) {
	data, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("encode server message: %w", err)
	}
	return data, nil
}
