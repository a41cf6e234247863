package network

import (
	"log"
	"sync"
	"time"

	"github.com/cipherchat/cipherchat/pkg/crypto"
	"github.com/cipherchat/cipherchat/pkg/storage"
)

// SessionRegistry maps opaque session tokens to identities and identities
// to their live connections. Tokens are written through to the sessions
// table so logins survive a restart; the in-memory maps are shared by every
// connection worker, so all mutation is mutex serialized.
type SessionRegistry struct {
	mu     sync.RWMutex
	store  *storage.Store
	ttl    time.Duration
	tokens map[string]cachedSession
	conns  map[int64]map[string]*Conn
}

type cachedSession struct {
	userID    int64
	createdAt time.Time
}

// NewSessionRegistry creates a registry backed by the given store
func NewSessionRegistry(store *storage.Store, ttl time.Duration) *SessionRegistry {
	return &SessionRegistry{
		store:  store,
		ttl:    ttl,
		tokens: make(map[string]cachedSession),
		conns:  make(map[int64]map[string]*Conn),
	}
}

// CreateSession issues a fresh token for the identity
func (r *SessionRegistry) CreateSession(userID int64) (string, error) {
	token, err := crypto.GenerateSessionToken()
	if err != nil {
		return "", err
	}

	if err := r.store.CreateSession(token, userID); err != nil {
		return "", err
	}

	r.mu.Lock()
	r.tokens[token] = cachedSession{userID: userID, createdAt: time.Now()}
	r.mu.Unlock()

	return token, nil
}

// Validate resolves a token to its identity id. Expired and unknown tokens
// are invalid.
func (r *SessionRegistry) Validate(token string) (int64, bool) {
	if token == "" {
		return 0, false
	}

	r.mu.RLock()
	cached, ok := r.tokens[token]
	r.mu.RUnlock()

	if ok {
		if time.Since(cached.createdAt) > r.ttl {
			r.Invalidate(token)
			return 0, false
		}
		return cached.userID, true
	}

	// Cache miss: the session may predate this process
	sess, err := r.store.LookupSession(token)
	if err != nil {
		return 0, false
	}

	createdAt := time.Unix(sess.CreatedAt, 0)
	if time.Since(createdAt) > r.ttl {
		if err := r.store.DeleteSession(token); err != nil {
			log.Printf("Failed to delete expired session: %v", err)
		}
		return 0, false
	}

	r.mu.Lock()
	r.tokens[token] = cachedSession{userID: sess.UserID, createdAt: createdAt}
	r.mu.Unlock()

	return sess.UserID, true
}

// Invalidate removes a token, both cached and durable
func (r *SessionRegistry) Invalidate(token string) {
	r.mu.Lock()
	delete(r.tokens, token)
	r.mu.Unlock()

	if err := r.store.DeleteSession(token); err != nil {
		log.Printf("Failed to delete session: %v", err)
	}
}

// Bind records a live connection for an identity. An identity may hold any
// number of simultaneous connections.
func (r *SessionRegistry) Bind(c *Conn, userID int64) {
	r.mu.Lock()
	defer r.mu.Unlock()

	set, ok := r.conns[userID]
	if !ok {
		set = make(map[string]*Conn)
		r.conns[userID] = set
	}
	set[c.ID] = c
}

// Unbind removes a connection from whichever identity holds it
func (r *SessionRegistry) Unbind(c *Conn) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for userID, set := range r.conns {
		if _, ok := set[c.ID]; ok {
			delete(set, c.ID)
			if len(set) == 0 {
				delete(r.conns, userID)
			}
			return
		}
	}
}

// ConnectionsFor snapshots the live connections bound to an identity
func (r *SessionRegistry) ConnectionsFor(userID int64) []*Conn {
	r.mu.RLock()
	defer r.mu.RUnlock()

	set := r.conns[userID]
	if len(set) == 0 {
		return nil
	}

	conns := make([]*Conn, 0, len(set))
	for _, c := range set {
		conns = append(conns, c)
	}
	return conns
}

// ConnectionCount returns the number of bound connections
func (r *SessionRegistry) ConnectionCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	n := 0
	for _, set := range r.conns {
		n += len(set)
	}
	return n
}

// SweepExpired removes sessions older than the TTL from cache and store
func (r *SessionRegistry) SweepExpired() {
	r.mu.Lock()
	for token, cached := range r.tokens {
		if time.Since(cached.createdAt) > r.ttl {
			delete(r.tokens, token)
		}
	}
	r.mu.Unlock()

	swept, err := r.store.DeleteExpiredSessions(r.ttl)
	if err != nil {
		log.Printf("Session sweep failed: %v", err)
		return
	}

	if swept > 0 {
		log.Printf("Swept %d expired sessions", swept)
	}
}
