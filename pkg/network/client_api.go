package network

import (
	"time"

	"github.com/cipherchat/cipherchat/pkg/protocol"
)

// Register creates a new account
func (c *Client) Register(username, password string) (*protocol.GenericResponse, error) {
	var resp protocol.GenericResponse
	err := c.call(protocol.TypeRegister, protocol.RegisterRequest{
		Username: username,
		Password: password,
	}, &resp)
	if err != nil {
		return nil, err
	}
	return &resp, nil
}

// Login authenticates and stores the session token on success
func (c *Client) Login(username, password string) (*protocol.LoginResponse, error) {
	var resp protocol.LoginResponse
	err := c.call(protocol.TypeLogin, protocol.LoginRequest{
		Username: username,
		Password: password,
	}, &resp)
	if err != nil {
		return nil, err
	}

	if resp.Success {
		c.token = resp.Token
		c.username = username
	}

	return &resp, nil
}

// StartPrivateChat gets or creates the private chat with the target user
// and returns it with recent history
func (c *Client) StartPrivateChat(targetUsername string) (*protocol.StartPrivateChatResponse, error) {
	var resp protocol.StartPrivateChatResponse
	err := c.call(protocol.TypeStartPrivateChat, protocol.StartPrivateChatRequest{
		Token:          c.token,
		TargetUsername: targetUsername,
	}, &resp)
	if err != nil {
		return nil, err
	}

	protocol.SortMessages(resp.Messages)
	return &resp, nil
}

// CreateGroupChat creates a group chat with the named members
func (c *Client) CreateGroupChat(name string, memberUsernames []string) (*protocol.CreateGroupChatResponse, error) {
	var resp protocol.CreateGroupChatResponse
	err := c.call(protocol.TypeCreateGroupChat, protocol.CreateGroupChatRequest{
		Token:           c.token,
		Name:            name,
		MemberUsernames: memberUsernames,
	}, &resp)
	if err != nil {
		return nil, err
	}
	return &resp, nil
}

// SendMessage encrypts content under the session key and sends it to a chat
func (c *Client) SendMessage(chatID int64, content string) (*protocol.SendMessageResponse, error) {
	encrypted, err := c.cipher.EncryptToHex(content)
	if err != nil {
		return nil, err
	}

	var resp protocol.SendMessageResponse
	err = c.call(protocol.TypeSendMessage, protocol.SendMessageRequest{
		Token:     c.token,
		ChatID:    chatID,
		Content:   encrypted,
		Timestamp: time.Now().Format(protocol.TimestampLayout),
	}, &resp)
	if err != nil {
		return nil, err
	}
	return &resp, nil
}

// GetChats lists the chats this user belongs to
func (c *Client) GetChats() (*protocol.GetChatsResponse, error) {
	var resp protocol.GetChatsResponse
	err := c.call(protocol.TypeGetChats, protocol.GetChatsRequest{Token: c.token}, &resp)
	if err != nil {
		return nil, err
	}
	return &resp, nil
}

// GetMessages fetches recent history for a chat in display order
func (c *Client) GetMessages(chatID int64, limit int) (*protocol.GetMessagesResponse, error) {
	var resp protocol.GetMessagesResponse
	err := c.call(protocol.TypeGetMessages, protocol.GetMessagesRequest{
		Token:  c.token,
		ChatID: chatID,
		Limit:  limit,
	}, &resp)
	if err != nil {
		return nil, err
	}

	protocol.SortMessages(resp.Messages)
	return &resp, nil
}

// Disconnect tells the server to invalidate the session and closes the
// connection
func (c *Client) Disconnect() error {
	var resp protocol.GenericResponse
	err := c.call(protocol.TypeDisconnect, protocol.DisconnectRequest{Token: c.token}, &resp)

	c.token = ""
	c.Close()

	return err
}
