package network

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/cipherchat/cipherchat/pkg/storage"
)

func newTestRegistry(t *testing.T, ttl time.Duration) (*SessionRegistry, *storage.Store) {
	t.Helper()

	store, err := storage.Open(filepath.Join(t.TempDir(), "registry.db"))
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() { store.Close() })

	return NewSessionRegistry(store, ttl), store
}

func TestRegistryCreateAndValidate(t *testing.T) {
	registry, store := newTestRegistry(t, time.Hour)

	user, err := store.CreateUser("alice", "Passw0rd!")
	if err != nil {
		t.Fatalf("CreateUser() error = %v", err)
	}

	token, err := registry.CreateSession(user.ID)
	if err != nil {
		t.Fatalf("CreateSession() error = %v", err)
	}
	if len(token) < 40 {
		t.Errorf("token %q too short for 256 bits of entropy", token)
	}

	userID, ok := registry.Validate(token)
	if !ok || userID != user.ID {
		t.Errorf("Validate() = %d, %v, want %d, true", userID, ok, user.ID)
	}

	if _, ok := registry.Validate("forged-token"); ok {
		t.Error("Validate() accepted an unknown token")
	}
	if _, ok := registry.Validate(""); ok {
		t.Error("Validate() accepted an empty token")
	}
}

// Tokens persist in storage, so a fresh registry (new process) still
// validates them.
func TestRegistrySurvivesRestart(t *testing.T) {
	registry, store := newTestRegistry(t, time.Hour)

	user, _ := store.CreateUser("alice", "Passw0rd!")
	token, err := registry.CreateSession(user.ID)
	if err != nil {
		t.Fatalf("CreateSession() error = %v", err)
	}

	fresh := NewSessionRegistry(store, time.Hour)
	userID, ok := fresh.Validate(token)
	if !ok || userID != user.ID {
		t.Errorf("Validate() on fresh registry = %d, %v, want %d, true", userID, ok, user.ID)
	}
}

func TestRegistryInvalidate(t *testing.T) {
	registry, store := newTestRegistry(t, time.Hour)

	user, _ := store.CreateUser("alice", "Passw0rd!")
	token, _ := registry.CreateSession(user.ID)

	registry.Invalidate(token)

	if _, ok := registry.Validate(token); ok {
		t.Error("Validate() accepted an invalidated token")
	}
	if _, err := store.LookupSession(token); err != storage.ErrNotFound {
		t.Errorf("LookupSession() after invalidate error = %v, want ErrNotFound", err)
	}
}

func TestRegistryBindUnbind(t *testing.T) {
	registry, store := newTestRegistry(t, time.Hour)

	user, _ := store.CreateUser("alice", "Passw0rd!")

	// An identity may hold several simultaneous connections
	c1 := &Conn{ID: "conn-1"}
	c2 := &Conn{ID: "conn-2"}
	registry.Bind(c1, user.ID)
	registry.Bind(c2, user.ID)

	conns := registry.ConnectionsFor(user.ID)
	if len(conns) != 2 {
		t.Fatalf("ConnectionsFor() returned %d connections, want 2", len(conns))
	}
	if registry.ConnectionCount() != 2 {
		t.Errorf("ConnectionCount() = %d, want 2", registry.ConnectionCount())
	}

	registry.Unbind(c1)

	conns = registry.ConnectionsFor(user.ID)
	if len(conns) != 1 || conns[0].ID != "conn-2" {
		t.Errorf("after Unbind, ConnectionsFor() = %v", conns)
	}

	registry.Unbind(c2)
	if registry.ConnectionsFor(user.ID) != nil {
		t.Error("ConnectionsFor() not empty after unbinding all")
	}
}

func TestRegistryExpiry(t *testing.T) {
	registry, store := newTestRegistry(t, time.Millisecond)

	user, _ := store.CreateUser("alice", "Passw0rd!")
	token, _ := registry.CreateSession(user.ID)

	time.Sleep(5 * time.Millisecond)

	if _, ok := registry.Validate(token); ok {
		t.Error("Validate() accepted an expired token")
	}

	registry.SweepExpired()
	if _, err := store.LookupSession(token); err != storage.ErrNotFound {
		t.Errorf("LookupSession() after sweep error = %v, want ErrNotFound", err)
	}
}
