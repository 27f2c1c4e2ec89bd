// Package protocol defines the JSON messages exchanged over the event stream.
package protocol

import (
	"encoding/json"
	"errors"
	"fmt"

	"keyroute/internal/window"
)

// MessageType defines the type of WebSocket message
type MessageType string

const (
	// TypeKeyDown is broadcast for every watched key press
	TypeKeyDown MessageType = "key_down"

	// TypeKeyUp is broadcast for every watched key release
	TypeKeyUp MessageType = "key_up"

	// TypeWindowKeyDown is broadcast for watched presses inside a focused target window
	TypeWindowKeyDown MessageType = "window_key_down"

	// TypeWindowKeyUp is broadcast for watched releases inside a focused target window
	TypeWindowKeyUp MessageType = "window_key_up"

	// TypeFocus is broadcast on every foreground change
	TypeFocus MessageType = "focus"

	// TypeSubscribe is sent by a client to receive triggered messages for a key
	TypeSubscribe MessageType = "subscribe"

	// TypeUnsubscribe removes a previous subscription
	TypeUnsubscribe MessageType = "unsubscribe"

	// TypeSendKey asks the server to post input into a target window
	TypeSendKey MessageType = "send_key"

	// TypeTriggered is sent only to the clients whose subscription matched
	TypeTriggered MessageType = "triggered"

	TypeAck   MessageType = "ack"
	TypeError MessageType = "error"
	TypePing  MessageType = "ping"
	TypePong  MessageType = "pong"
)

// ErrMissingType is returned when a message has no type.
var ErrMissingType = errors.New("message type is required")

// Message is the generic container for all WebSocket messages
type Message struct {
	Type MessageType `json:"type"`

	// ID is echoed in the ack or error reply to a client request
	ID      string `json:"id,omitempty"`
	Payload any    `json:"payload,omitempty"`
}

// KeyPayload is the payload for TypeKeyDown and TypeKeyUp
type KeyPayload struct {
	Key  string `json:"key"`
	Code int32  `json:"code"`
}

// WindowKeyPayload is the payload for TypeWindowKeyDown, TypeWindowKeyUp and TypeTriggered
type WindowKeyPayload struct {
	Window    window.Target `json:"window"`
	Key       string        `json:"key"`
	Code      int32         `json:"code"`
	Direction string        `json:"direction"`
}

// FocusPayload is the payload for TypeFocus. Target is set when the
// focused window is a known target.
type FocusPayload struct {
	Handle window.Handle  `json:"handle"`
	Target *window.Target `json:"target,omitempty"`
}

// SubscribePayload is the payload for TypeSubscribe and TypeUnsubscribe.
// A zero Window matches every target window.
type SubscribePayload struct {
	Window    window.Handle `json:"window"`
	Key       string        `json:"key"`
	Direction string        `json:"direction"`
}

// SendKeyPayload is the payload for TypeSendKey. Exactly one of Key and
// Text is set. X and Y are client coordinates for mouse buttons. A zero
// Window selects the focused target window.
type SendKeyPayload struct {
	Window window.Handle `json:"window"`
	Key    string        `json:"key,omitempty"`
	Text   string        `json:"text,omitempty"`
	HoldMs int           `json:"hold_ms,omitempty"`
	X      int32         `json:"x,omitempty"`
	Y      int32         `json:"y,omitempty"`
}

// AckPayload is the payload for TypeAck
type AckPayload struct {
	Request MessageType `json:"request"`
}

// ErrorPayload is the payload for TypeError
type ErrorPayload struct {
	Request MessageType `json:"request,omitempty"`
	Message string      `json:"message"`
}

// Encode marshals msg.
func Encode(msg Message) ([]byte, error) {
	if msg.Type == "" {
		return nil, ErrMissingType
	}
	return json.Marshal(msg)
}

// Decode parses a message and checks that it carries a type.
func Decode(data []byte) (Message, error) {
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		return Message{}, fmt.Errorf("invalid message: %w", err)
	}
	if msg.Type == "" {
		return Message{}, ErrMissingType
	}
	return msg, nil
}

// DecodePayload converts the generic payload of msg into v.
func DecodePayload(msg Message, v any) error {
	if msg.Payload == nil {
		return fmt.Errorf("%s: missing payload", msg.Type)
	}
	// Re-marshal to bytes then unmarshal to be safe with types
	data, err := json.Marshal(msg.Payload)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("%s: invalid payload: %w", msg.Type, err)
	}
	return nil
}

// Ack builds the reply to a successful request.
func Ack(req Message) Message {
	return Message{Type: TypeAck, ID: req.ID, Payload: AckPayload{Request: req.Type}}
}

// Error builds the reply to a failed request.
func Error(req Message, err error) Message {
	return Message{Type: TypeError, ID: req.ID, Payload: ErrorPayload{Request: req.Type, Message: err.Error()}}
}
