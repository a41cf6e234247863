package network

import (
	"encoding/json"
	"log"

	"github.com/cipherchat/cipherchat/pkg/protocol"
)

// HandlerFunc handles one request type. Expected failures (bad credentials,
// unknown user, rate limit) are returned as results with success=false; a
// non-nil error means an internal failure that is logged and masked.
type HandlerFunc func(c *Conn, data json.RawMessage) (interface{}, error)

// Dispatcher routes decoded request envelopes to named handlers and wraps
// results in response envelopes. Handlers that need identity validate the
// session token themselves; there is no blanket authentication layer.
type Dispatcher struct {
	handlers map[string]HandlerFunc
}

// NewDispatcher builds the static handler table
func NewDispatcher(s *Server) *Dispatcher {
	return &Dispatcher{
		handlers: map[string]HandlerFunc{
			protocol.TypeRegister:         s.handleRegister,
			protocol.TypeLogin:            s.handleLogin,
			protocol.TypeStartPrivateChat: s.handleStartPrivateChat,
			protocol.TypeCreateGroupChat:  s.handleCreateGroupChat,
			protocol.TypeSendMessage:      s.handleSendMessage,
			protocol.TypeGetChats:         s.handleGetChats,
			protocol.TypeGetMessages:      s.handleGetMessages,
			protocol.TypeDisconnect:       s.handleDisconnect,
		},
	}
}

// Dispatch routes one request and formats the response envelope. A handler
// panic or error never tears the connection down.
func (d *Dispatcher) Dispatch(c *Conn, env protocol.Envelope) (resp protocol.Envelope) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("Recovered from handler panic (%s): %v", env.Type, r)
			resp = errorEnvelope("Internal server error")
		}
	}()

	handler, ok := d.handlers[env.Type]
	if !ok {
		return errorEnvelope("Unknown request type")
	}

	result, err := handler(c, env.Data)
	if err != nil {
		log.Printf("Handler %s failed: %v", env.Type, err)
		return errorEnvelope("Internal server error")
	}

	out, err := protocol.NewEnvelope(protocol.ResponseType(env.Type), result)
	if err != nil {
		log.Printf("Failed to encode %s response: %v", env.Type, err)
		return errorEnvelope("Internal server error")
	}

	return out
}

// errorEnvelope builds an error_response. The original cause is logged by
// the caller, never exposed to the peer.
func errorEnvelope(message string) protocol.Envelope {
	raw, _ := json.Marshal(protocol.GenericResponse{Success: false, Message: message})
	return protocol.Envelope{Type: protocol.TypeErrorResponse, Data: raw}
}
