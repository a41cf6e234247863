package network

import (
	"log"

	"github.com/cipherchat/cipherchat/pkg/protocol"
)

// Broadcast delivers a new_message event to every live connection of every
// chat member except the originator. Content is re-encrypted under each
// recipient connection's session key. Delivery is best effort: per-target
// failures are logged and never fail the original request.
func (s *Server) Broadcast(chatID int64, origin *Conn, payload protocol.NewMessagePayload) {
	members, err := s.store.ChatMembers(chatID)
	if err != nil {
		log.Printf("Broadcast: failed to resolve members of chat %d: %v", chatID, err)
		return
	}

	for _, userID := range members {
		for _, target := range s.registry.ConnectionsFor(userID) {
			if origin != nil && target.ID == origin.ID {
				continue
			}

			encrypted, err := target.cipher.EncryptToHex(payload.Content)
			if err != nil {
				log.Printf("Broadcast: failed to encrypt for connection %s: %v", target.ID, err)
				continue
			}

			out := payload
			out.Content = encrypted

			env, err := protocol.NewEnvelope(protocol.TypeNewMessage, out)
			if err != nil {
				log.Printf("Broadcast: failed to encode push: %v", err)
				continue
			}

			if err := target.WriteEnvelope(env); err != nil {
				log.Printf("Broadcast: write to connection %s failed: %v", target.ID, err)
			}
		}
	}
}
