// Package network implements the secure transport core: the per-connection
// handshake and dispatch loop on the server side and its client mirror.
package network

import (
	"crypto/rsa"
	"fmt"
	"log"
	"net"
	"sync/atomic"
	"time"

	"github.com/cipherchat/cipherchat/pkg/config"
	"github.com/cipherchat/cipherchat/pkg/crypto"
	"github.com/cipherchat/cipherchat/pkg/storage"
)

// sessionSweepInterval is how often expired sessions are removed
const sessionSweepInterval = time.Hour

// Server accepts client connections and runs one worker per connection
type Server struct {
	cfg        *config.Config
	privateKey *rsa.PrivateKey

	publicKeyPEM []byte
	store        *storage.Store
	registry     *SessionRegistry
	limiter      *RateLimiter
	dispatcher   *Dispatcher

	listener  net.Listener
	done      chan struct{}
	startTime time.Time

	messagesHandled uint64
}

// Stats is an operational snapshot for the status API
type Stats struct {
	UptimeSeconds     int64  `json:"uptime_seconds"`
	ActiveConnections int    `json:"active_connections"`
	RegisteredUsers   int64  `json:"registered_users"`
	StoredMessages    int64  `json:"stored_messages"`
	MessagesHandled   uint64 `json:"messages_handled"`
}

// NewServer creates a server around the given key and persistence store
func NewServer(cfg *config.Config, privateKey *rsa.PrivateKey, store *storage.Store) (*Server, error) {
	publicKeyPEM, err := crypto.ExportPublicKeyPEM(&privateKey.PublicKey)
	if err != nil {
		return nil, fmt.Errorf("failed to export public key: %v", err)
	}

	s := &Server{
		cfg:          cfg,
		privateKey:   privateKey,
		publicKeyPEM: publicKeyPEM,
		store:        store,
		registry:     NewSessionRegistry(store, cfg.SessionTTL()),
		limiter:      NewRateLimiter(cfg.RateLimitWindow(), cfg.RateLimit.MaxRequests),
		done:         make(chan struct{}),
		startTime:    time.Now(),
	}
	s.dispatcher = NewDispatcher(s)

	return s, nil
}

// Start listens on the configured address and begins accepting connections
func (s *Server) Start() error {
	listener, err := net.Listen("tcp", s.cfg.ListenAddr)
	if err != nil {
		return err
	}

	s.listener = listener
	log.Printf("Chat server listening on %s", listener.Addr())

	go s.acceptLoop()
	go s.sweepLoop()

	return nil
}

// Addr returns the bound listen address
func (s *Server) Addr() net.Addr {
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Stop stops accepting connections
func (s *Server) Stop() error {
	close(s.done)
	if s.listener != nil {
		return s.listener.Close()
	}
	return nil
}

// Registry exposes the session registry
func (s *Server) Registry() *SessionRegistry {
	return s.registry
}

// Stats returns an operational snapshot
func (s *Server) Stats() Stats {
	users, err := s.store.CountUsers()
	if err != nil {
		log.Printf("Failed to count users: %v", err)
	}
	messages, err := s.store.CountMessages()
	if err != nil {
		log.Printf("Failed to count messages: %v", err)
	}

	return Stats{
		UptimeSeconds:     int64(time.Since(s.startTime).Seconds()),
		ActiveConnections: s.registry.ConnectionCount(),
		RegisteredUsers:   users,
		StoredMessages:    messages,
		MessagesHandled:   atomic.LoadUint64(&s.messagesHandled),
	}
}

func (s *Server) acceptLoop() {
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			select {
			case <-s.done:
			default:
				log.Printf("Accept error: %v", err)
			}
			return
		}

		go s.handleConnection(conn)
	}
}

// sweepLoop periodically removes expired sessions
func (s *Server) sweepLoop() {
	ticker := time.NewTicker(sessionSweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.registry.SweepExpired()
		case <-s.done:
			return
		}
	}
}
