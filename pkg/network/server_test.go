package network

import (
	"net"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/cipherchat/cipherchat/pkg/config"
	"github.com/cipherchat/cipherchat/pkg/crypto"
	"github.com/cipherchat/cipherchat/pkg/protocol"
	"github.com/cipherchat/cipherchat/pkg/storage"
)

func startTestServer(t *testing.T) *Server {
	t.Helper()

	store, err := storage.Open(filepath.Join(t.TempDir(), "server.db"))
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() { store.Close() })

	key, err := crypto.GenerateRSAKeyPair()
	if err != nil {
		t.Fatalf("GenerateRSAKeyPair() error = %v", err)
	}

	cfg := config.Default()
	cfg.ListenAddr = "127.0.0.1:0"

	server, err := NewServer(cfg, key, store)
	if err != nil {
		t.Fatalf("NewServer() error = %v", err)
	}
	if err := server.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	t.Cleanup(func() { server.Stop() })

	return server
}

func connectTestClient(t *testing.T, server *Server) *Client {
	t.Helper()

	client := NewClient(server.Addr().String())
	if err := client.Connect(); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	t.Cleanup(client.Close)

	return client
}

// Full protocol walk: register, login, failed chat with an unregistered
// user, private chat, encrypted send, push delivery to the peer.
func TestEndToEndScenario(t *testing.T) {
	server := startTestServer(t)

	alice := connectTestClient(t, server)
	bob := connectTestClient(t, server)

	// Registration
	resp, err := alice.Register("alice123", "Passw0rd!")
	if err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	if !resp.Success {
		t.Fatalf("Register() failed: %s", resp.Message)
	}

	dup, err := alice.Register("ALICE123", "Other0ne!")
	if err != nil {
		t.Fatalf("Register() duplicate error = %v", err)
	}
	if dup.Success {
		t.Error("Register() accepted a case-insensitive duplicate username")
	}

	// Login
	login, err := alice.Login("alice123", "Passw0rd!")
	if err != nil {
		t.Fatalf("Login() error = %v", err)
	}
	if !login.Success || login.Token == "" {
		t.Fatalf("Login() = %+v, want success with token", login)
	}

	// Chatting with an unregistered user fails cleanly
	missing, err := alice.StartPrivateChat("bob999")
	if err != nil {
		t.Fatalf("StartPrivateChat() error = %v", err)
	}
	if missing.Success || missing.Message != "User not found" {
		t.Errorf("StartPrivateChat() with unknown user = %+v", missing)
	}

	// Bob registers and logs in
	if _, err := bob.Register("bob999", "Passw0rd!"); err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	if _, err := bob.Login("bob999", "Passw0rd!"); err != nil {
		t.Fatalf("Login() error = %v", err)
	}

	// Now the chat opens, and the same chat id comes back from both sides
	chat, err := alice.StartPrivateChat("bob999")
	if err != nil {
		t.Fatalf("StartPrivateChat() error = %v", err)
	}
	if !chat.Success || chat.ChatID == 0 {
		t.Fatalf("StartPrivateChat() = %+v", chat)
	}

	chatFromBob, err := bob.StartPrivateChat("alice123")
	if err != nil {
		t.Fatalf("StartPrivateChat() from bob error = %v", err)
	}
	if chatFromBob.ChatID != chat.ChatID {
		t.Errorf("chat id from bob = %d, want %d", chatFromBob.ChatID, chat.ChatID)
	}

	// Alice sends; content is encrypted on the wire but bob's push
	// arrives decrypted with the matching chat id
	sent, err := alice.SendMessage(chat.ChatID, "hello")
	if err != nil {
		t.Fatalf("SendMessage() error = %v", err)
	}
	if !sent.Success || sent.MessageID == 0 {
		t.Fatalf("SendMessage() = %+v", sent)
	}

	select {
	case push := <-bob.Pushes():
		if push.ChatID != chat.ChatID {
			t.Errorf("push chat id = %d, want %d", push.ChatID, chat.ChatID)
		}
		if push.Content != "hello" {
			t.Errorf("push content = %q, want %q", push.Content, "hello")
		}
		if push.SenderUsername != "alice123" {
			t.Errorf("push sender = %q, want %q", push.SenderUsername, "alice123")
		}
		if push.MessageID != sent.MessageID {
			t.Errorf("push message id = %d, want %d", push.MessageID, sent.MessageID)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("bob never received the new_message push")
	}

	// History reflects the stored message
	history, err := bob.GetMessages(chat.ChatID, 10)
	if err != nil {
		t.Fatalf("GetMessages() error = %v", err)
	}
	if len(history.Messages) != 1 || history.Messages[0].Content != "hello" {
		t.Errorf("GetMessages() = %+v, want the single hello message", history.Messages)
	}

	// Chat listing shows the conversation with a preview
	chats, err := alice.GetChats()
	if err != nil {
		t.Fatalf("GetChats() error = %v", err)
	}
	if len(chats.Chats) != 1 || chats.Chats[0].Name != "bob999" {
		t.Errorf("GetChats() = %+v", chats.Chats)
	}
}

func TestGroupChatBroadcast(t *testing.T) {
	server := startTestServer(t)

	clients := make(map[string]*Client)
	for _, name := range []string{"alice", "bob", "carol"} {
		c := connectTestClient(t, server)
		if _, err := c.Register(name, "Passw0rd!"); err != nil {
			t.Fatalf("Register(%s) error = %v", name, err)
		}
		if _, err := c.Login(name, "Passw0rd!"); err != nil {
			t.Fatalf("Login(%s) error = %v", name, err)
		}
		clients[name] = c
	}

	group, err := clients["alice"].CreateGroupChat("team", []string{"bob", "carol"})
	if err != nil {
		t.Fatalf("CreateGroupChat() error = %v", err)
	}
	if !group.Success {
		t.Fatalf("CreateGroupChat() = %+v", group)
	}

	if _, err := clients["alice"].SendMessage(group.ChatID, "standup time"); err != nil {
		t.Fatalf("SendMessage() error = %v", err)
	}

	// Both other members receive the push; the sender does not
	for _, name := range []string{"bob", "carol"} {
		select {
		case push := <-clients[name].Pushes():
			if push.Content != "standup time" {
				t.Errorf("%s push content = %q", name, push.Content)
			}
		case <-time.After(3 * time.Second):
			t.Fatalf("%s never received the group push", name)
		}
	}

	select {
	case push := <-clients["alice"].Pushes():
		t.Errorf("sender received its own broadcast: %+v", push)
	case <-time.After(200 * time.Millisecond):
	}
}

func TestInvalidSessionAndUnknownType(t *testing.T) {
	server := startTestServer(t)
	client := connectTestClient(t, server)

	// A request that needs identity fails as a normal response
	client.token = "forged"
	chats, err := client.GetChats()
	if err != nil {
		t.Fatalf("GetChats() error = %v", err)
	}
	if chats.Success {
		t.Error("GetChats() succeeded with a forged token")
	}

	// Unknown request types produce error_response, not a disconnect
	if err := client.SendRequest("no_such_operation", struct{}{}); err != nil {
		t.Fatalf("SendRequest() error = %v", err)
	}
	env, err := client.NextResponse(3 * time.Second)
	if err != nil {
		t.Fatalf("NextResponse() error = %v", err)
	}
	if env.Type != protocol.TypeErrorResponse {
		t.Errorf("response type = %q, want error_response", env.Type)
	}
	var failure protocol.GenericResponse
	if err := env.DecodeData(&failure); err != nil {
		t.Fatalf("DecodeData() error = %v", err)
	}
	if failure.Message != "Unknown request type" {
		t.Errorf("message = %q, want %q", failure.Message, "Unknown request type")
	}

	// The connection survived
	if _, err := client.Register("stillalive", "Passw0rd!"); err != nil {
		t.Errorf("connection unusable after unknown request: %v", err)
	}
}

func TestSendMessageRateLimited(t *testing.T) {
	server := startTestServer(t)
	client := connectTestClient(t, server)

	if _, err := client.Register("spammer", "Passw0rd!"); err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	if _, err := client.Login("spammer", "Passw0rd!"); err != nil {
		t.Fatalf("Login() error = %v", err)
	}

	peer := connectTestClient(t, server)
	if _, err := peer.Register("peer", "Passw0rd!"); err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	if _, err := peer.Login("peer", "Passw0rd!"); err != nil {
		t.Fatalf("Login() error = %v", err)
	}

	chat, err := client.StartPrivateChat("peer")
	if err != nil {
		t.Fatalf("StartPrivateChat() error = %v", err)
	}

	var denied bool
	for i := 0; i < 12; i++ {
		resp, err := client.SendMessage(chat.ChatID, "spam")
		if err != nil {
			t.Fatalf("SendMessage() %d error = %v", i, err)
		}
		if !resp.Success {
			if resp.Message != "Rate limit exceeded" {
				t.Errorf("rejection message = %q", resp.Message)
			}
			denied = true
			break
		}
	}
	if !denied {
		t.Error("rate limiter never rejected within 12 rapid sends")
	}

	// The connection stays open after a rejection
	if _, err := client.GetChats(); err != nil {
		t.Errorf("connection unusable after rate limit: %v", err)
	}
}

// A protocol violation during the handshake closes the connection.
func TestHandshakeViolationClosesConnection(t *testing.T) {
	server := startTestServer(t)

	raw, err := net.Dial("tcp", server.Addr().String())
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	defer raw.Close()

	// An application request before any key exchange is a violation
	env, err := protocol.NewEnvelope(protocol.TypeGetChats, protocol.GetChatsRequest{Token: "x"})
	if err != nil {
		t.Fatalf("NewEnvelope() error = %v", err)
	}
	frame, err := protocol.EncodeFrame(env)
	if err != nil {
		t.Fatalf("EncodeFrame() error = %v", err)
	}
	if _, err := raw.Write(frame); err != nil {
		t.Fatalf("Write() error = %v", err)
	}

	raw.SetReadDeadline(time.Now().Add(3 * time.Second))
	buf := make([]byte, 256)
	if _, err := raw.Read(buf); err == nil {
		t.Error("expected the server to close the connection")
	} else if strings.Contains(err.Error(), "timeout") {
		t.Errorf("connection not closed, read timed out: %v", err)
	}
}
