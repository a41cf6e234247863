// Package protocol defines the framed wire format and the envelope types
// exchanged between client and server.
package protocol

import (
	"encoding/json"
	"errors"
)

var ErrInvalidEnvelope = errors.New("invalid envelope")

// Handshake message types
const (
	TypeKeyExchange      = "key_exchange"
	TypeSessionKey       = "session_key"
	TypeSessionConfirmed = "session_confirmed"
)

// Application request types
const (
	TypeRegister         = "register"
	TypeLogin            = "login"
	TypeStartPrivateChat = "start_private_chat"
	TypeCreateGroupChat  = "create_group_chat"
	TypeSendMessage      = "send_message"
	TypeGetChats         = "get_chats"
	TypeGetMessages      = "get_messages"
	TypeDisconnect       = "disconnect"
)

// Server-initiated and error types
const (
	TypeNewMessage    = "new_message"
	TypeErrorResponse = "error_response"

	// ResponseSuffix is appended to a request type to form its response type
	ResponseSuffix = "_response"
)

// Envelope is the {type, data} structured message carried inside a frame
type Envelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// NewEnvelope builds an envelope with data marshalled to JSON
func NewEnvelope(msgType string, data interface{}) (Envelope, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return Envelope{}, err
	}
	return Envelope{Type: msgType, Data: raw}, nil
}

// DecodeData unmarshals the envelope data into out
func (e *Envelope) DecodeData(out interface{}) error {
	if len(e.Data) == 0 {
		return ErrInvalidEnvelope
	}
	return json.Unmarshal(e.Data, out)
}

// ResponseType returns the response type for a request type
func ResponseType(requestType string) string {
	return requestType + ResponseSuffix
}
