package network

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/cipherchat/cipherchat/pkg/protocol"
	"github.com/cipherchat/cipherchat/pkg/storage"
)

const (
	minPasswordLength = 6
	maxUsernameLength = 32
)

// authenticate validates the session token and binds this connection to the
// identity for routing. Returns false with a ready error response when the
// token is invalid.
func (s *Server) authenticate(c *Conn, token string) (int64, bool) {
	userID, ok := s.registry.Validate(token)
	if !ok {
		return 0, false
	}

	if c.userID != userID {
		if c.userID != 0 {
			s.registry.Unbind(c)
		}
		c.userID = userID
		c.token = token
		s.registry.Bind(c, userID)

		if user, err := s.store.GetUserByID(userID); err == nil {
			c.username = user.Username
		}
	}

	return userID, true
}

func invalidSession() protocol.GenericResponse {
	return protocol.GenericResponse{Success: false, Message: "Invalid or expired session"}
}

func (s *Server) handleRegister(c *Conn, data json.RawMessage) (interface{}, error) {
	var req protocol.RegisterRequest
	if err := json.Unmarshal(data, &req); err != nil {
		return protocol.GenericResponse{Success: false, Message: "Malformed request"}, nil
	}

	req.Username = strings.TrimSpace(req.Username)
	if req.Username == "" || len(req.Username) > maxUsernameLength {
		return protocol.GenericResponse{Success: false, Message: "Invalid username"}, nil
	}
	if len(req.Password) < minPasswordLength {
		return protocol.GenericResponse{Success: false, Message: "Password too short"}, nil
	}

	user, err := s.store.CreateUser(req.Username, req.Password)
	if errors.Is(err, storage.ErrUsernameTaken) {
		return protocol.GenericResponse{Success: false, Message: "Username already taken"}, nil
	}
	if err != nil {
		return nil, err
	}

	return protocol.GenericResponse{
		Success: true,
		Message: fmt.Sprintf("User %s registered", user.Username),
	}, nil
}

func (s *Server) handleLogin(c *Conn, data json.RawMessage) (interface{}, error) {
	var req protocol.LoginRequest
	if err := json.Unmarshal(data, &req); err != nil {
		return protocol.LoginResponse{Success: false, Message: "Malformed request"}, nil
	}

	user, err := s.store.VerifyCredentials(req.Username, req.Password)
	if errors.Is(err, storage.ErrInvalidCredentials) {
		return protocol.LoginResponse{Success: false, Message: "Invalid username or password"}, nil
	}
	if err != nil {
		return nil, err
	}

	token, err := s.registry.CreateSession(user.ID)
	if err != nil {
		return nil, err
	}

	if c.userID != 0 && c.userID != user.ID {
		s.registry.Unbind(c)
	}
	c.userID = user.ID
	c.username = user.Username
	c.token = token
	s.registry.Bind(c, user.ID)

	return protocol.LoginResponse{
		Success: true,
		Message: "Login successful",
		Token:   token,
	}, nil
}

func (s *Server) handleStartPrivateChat(c *Conn, data json.RawMessage) (interface{}, error) {
	var req protocol.StartPrivateChatRequest
	if err := json.Unmarshal(data, &req); err != nil {
		return protocol.StartPrivateChatResponse{Success: false, Message: "Malformed request"}, nil
	}

	userID, ok := s.authenticate(c, req.Token)
	if !ok {
		return protocol.StartPrivateChatResponse{Success: false, Message: invalidSession().Message}, nil
	}

	target, err := s.store.GetUserByUsername(req.TargetUsername)
	if errors.Is(err, storage.ErrNotFound) {
		return protocol.StartPrivateChatResponse{Success: false, Message: "User not found"}, nil
	}
	if err != nil {
		return nil, err
	}

	if target.ID == userID {
		return protocol.StartPrivateChatResponse{Success: false, Message: "Cannot start a chat with yourself"}, nil
	}

	chatID, err := s.store.FindOrCreatePrivateChat(userID, target.ID)
	if err != nil {
		return nil, err
	}

	history, err := s.store.FetchMessages(chatID, s.cfg.HistoryLimit)
	if err != nil {
		return nil, err
	}

	return protocol.StartPrivateChatResponse{
		Success:        true,
		ChatID:         chatID,
		TargetUsername: target.Username,
		Messages:       toWireMessages(history),
	}, nil
}

func (s *Server) handleCreateGroupChat(c *Conn, data json.RawMessage) (interface{}, error) {
	var req protocol.CreateGroupChatRequest
	if err := json.Unmarshal(data, &req); err != nil {
		return protocol.CreateGroupChatResponse{Success: false, Message: "Malformed request"}, nil
	}

	userID, ok := s.authenticate(c, req.Token)
	if !ok {
		return protocol.CreateGroupChatResponse{Success: false, Message: invalidSession().Message}, nil
	}

	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		return protocol.CreateGroupChatResponse{Success: false, Message: "Group name required"}, nil
	}

	memberIDs := []int64{userID}
	for _, username := range req.MemberUsernames {
		user, err := s.store.GetUserByUsername(username)
		if errors.Is(err, storage.ErrNotFound) {
			return protocol.CreateGroupChatResponse{
				Success: false,
				Message: fmt.Sprintf("User not found: %s", username),
			}, nil
		}
		if err != nil {
			return nil, err
		}
		memberIDs = append(memberIDs, user.ID)
	}

	chatID, err := s.store.CreateGroupChat(req.Name, memberIDs)
	if err != nil {
		return nil, err
	}

	return protocol.CreateGroupChatResponse{
		Success: true,
		ChatID:  chatID,
		Name:    req.Name,
	}, nil
}

func (s *Server) handleSendMessage(c *Conn, data json.RawMessage) (interface{}, error) {
	var req protocol.SendMessageRequest
	if err := json.Unmarshal(data, &req); err != nil {
		return protocol.SendMessageResponse{Success: false, Message: "Malformed request"}, nil
	}

	userID, ok := s.authenticate(c, req.Token)
	if !ok {
		return protocol.SendMessageResponse{Success: false, Message: invalidSession().Message}, nil
	}

	if !s.limiter.Allow(userID) {
		return protocol.SendMessageResponse{Success: false, Message: "Rate limit exceeded"}, nil
	}

	if req.Content == "" {
		return protocol.SendMessageResponse{Success: false, Message: "Empty message"}, nil
	}
	if len(req.Content) > s.cfg.MaxMessageLength {
		return protocol.SendMessageResponse{Success: false, Message: "Message too long"}, nil
	}

	member, err := s.store.IsMember(req.ChatID, userID)
	if err != nil {
		return nil, err
	}
	if !member {
		return protocol.SendMessageResponse{Success: false, Message: "Not a member of this chat"}, nil
	}

	timestamp := req.Timestamp
	if timestamp == "" {
		timestamp = time.Now().Format(protocol.TimestampLayout)
	}

	messageID, err := s.store.SaveMessage(req.ChatID, userID, req.Content, timestamp)
	if err != nil {
		return nil, err
	}

	atomic.AddUint64(&s.messagesHandled, 1)

	// The message is durable; delivery to other members is best effort
	s.Broadcast(req.ChatID, c, protocol.NewMessagePayload{
		ChatID:         req.ChatID,
		MessageID:      messageID,
		SenderID:       userID,
		SenderUsername: c.username,
		Content:        req.Content,
		Timestamp:      timestamp,
	})

	return protocol.SendMessageResponse{
		Success:   true,
		MessageID: messageID,
		Timestamp: timestamp,
	}, nil
}

func (s *Server) handleGetChats(c *Conn, data json.RawMessage) (interface{}, error) {
	var req protocol.GetChatsRequest
	if err := json.Unmarshal(data, &req); err != nil {
		return protocol.GetChatsResponse{Success: false, Message: "Malformed request"}, nil
	}

	userID, ok := s.authenticate(c, req.Token)
	if !ok {
		return protocol.GetChatsResponse{Success: false, Message: invalidSession().Message}, nil
	}

	summaries, err := s.store.ChatsForUser(userID)
	if err != nil {
		return nil, err
	}

	chats := make([]protocol.ChatInfo, 0, len(summaries))
	for _, cs := range summaries {
		chats = append(chats, protocol.ChatInfo{
			ChatID:        cs.ID,
			Kind:          cs.Kind,
			Name:          cs.Name,
			LastMessage:   cs.LastMessage,
			LastTimestamp: cs.LastTimestamp,
		})
	}

	return protocol.GetChatsResponse{Success: true, Chats: chats}, nil
}

func (s *Server) handleGetMessages(c *Conn, data json.RawMessage) (interface{}, error) {
	var req protocol.GetMessagesRequest
	if err := json.Unmarshal(data, &req); err != nil {
		return protocol.GetMessagesResponse{Success: false, Message: "Malformed request"}, nil
	}

	userID, ok := s.authenticate(c, req.Token)
	if !ok {
		return protocol.GetMessagesResponse{Success: false, Message: invalidSession().Message}, nil
	}

	member, err := s.store.IsMember(req.ChatID, userID)
	if err != nil {
		return nil, err
	}
	if !member {
		return protocol.GetMessagesResponse{Success: false, Message: "Not a member of this chat"}, nil
	}

	limit := req.Limit
	if limit <= 0 || limit > s.cfg.HistoryLimit {
		limit = s.cfg.HistoryLimit
	}

	history, err := s.store.FetchMessages(req.ChatID, limit)
	if err != nil {
		return nil, err
	}

	return protocol.GetMessagesResponse{
		Success:  true,
		Messages: toWireMessages(history),
	}, nil
}

func (s *Server) handleDisconnect(c *Conn, data json.RawMessage) (interface{}, error) {
	var req protocol.DisconnectRequest
	if err := json.Unmarshal(data, &req); err == nil && req.Token != "" {
		s.registry.Invalidate(req.Token)
	}

	// Worker tears down after the response is written
	c.closing = true

	return protocol.GenericResponse{Success: true, Message: "Disconnected"}, nil
}

func toWireMessages(stored []*storage.StoredMessage) []protocol.Message {
	messages := make([]protocol.Message, 0, len(stored))
	for _, m := range stored {
		id := m.ID
		messages = append(messages, protocol.Message{
			MessageID:      &id,
			ChatID:         m.ChatID,
			SenderID:       m.SenderID,
			SenderUsername: m.SenderUsername,
			Content:        m.Content,
			Timestamp:      m.Timestamp,
		})
	}
	return messages
}
