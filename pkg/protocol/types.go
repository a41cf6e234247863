package protocol

// KeyExchangePayload carries a PEM encoded RSA public key in either
// direction of the key exchange
type KeyExchangePayload struct {
	ClientPublicKey string `json:"client_public_key,omitempty"`
	ServerPublicKey string `json:"server_public_key,omitempty"`
}

// SessionKeyPayload carries the client's symmetric session key, OAEP
// encrypted under the server's public key and hex encoded
type SessionKeyPayload struct {
	EncryptedSessionKey string `json:"encrypted_session_key"`
}

// GenericResponse is the minimal success/message response shape, also used
// for error_response envelopes
type GenericResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
}

// RegisterRequest creates a new user account
type RegisterRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// LoginRequest authenticates a user
type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// LoginResponse returns the opaque session token on success
type LoginResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
	Token   string `json:"token,omitempty"`
}

// StartPrivateChatRequest gets or creates the private chat with the target
// user. The call is idempotent per unordered user pair.
type StartPrivateChatRequest struct {
	Token          string `json:"token"`
	TargetUsername string `json:"target_username"`
}

// StartPrivateChatResponse returns the chat id plus recent history
type StartPrivateChatResponse struct {
	Success        bool      `json:"success"`
	Message        string    `json:"message,omitempty"`
	ChatID         int64     `json:"chat_id,omitempty"`
	TargetUsername string    `json:"target_username,omitempty"`
	Messages       []Message `json:"messages,omitempty"`
}

// CreateGroupChatRequest creates a group chat with the named members plus
// the requesting user
type CreateGroupChatRequest struct {
	Token           string   `json:"token"`
	Name            string   `json:"name"`
	MemberUsernames []string `json:"member_usernames"`
}

// CreateGroupChatResponse returns the new group chat id
type CreateGroupChatResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
	ChatID  int64  `json:"chat_id,omitempty"`
	Name    string `json:"name,omitempty"`
}

// SendMessageRequest delivers a message to a chat. Content is the hex
// encoded session ciphertext at the transport layer.
type SendMessageRequest struct {
	Token     string `json:"token"`
	ChatID    int64  `json:"chat_id"`
	Content   string `json:"content"`
	Timestamp string `json:"timestamp"`
}

// SendMessageResponse acknowledges a stored message
type SendMessageResponse struct {
	Success   bool   `json:"success"`
	Message   string `json:"message,omitempty"`
	MessageID int64  `json:"message_id,omitempty"`
	Timestamp string `json:"timestamp,omitempty"`
}

// GetChatsRequest lists the chats the user belongs to
type GetChatsRequest struct {
	Token string `json:"token"`
}

// ChatInfo summarizes one chat for listing
type ChatInfo struct {
	ChatID        int64  `json:"chat_id"`
	Kind          string `json:"kind"`
	Name          string `json:"name"`
	LastMessage   string `json:"last_message,omitempty"`
	LastTimestamp string `json:"last_timestamp,omitempty"`
}

// GetChatsResponse lists chat summaries
type GetChatsResponse struct {
	Success bool       `json:"success"`
	Message string     `json:"message,omitempty"`
	Chats   []ChatInfo `json:"chats"`
}

// GetMessagesRequest fetches recent history for one chat
type GetMessagesRequest struct {
	Token  string `json:"token"`
	ChatID int64  `json:"chat_id"`
	Limit  int    `json:"limit,omitempty"`
}

// GetMessagesResponse returns history in display order
type GetMessagesResponse struct {
	Success  bool      `json:"success"`
	Message  string    `json:"message,omitempty"`
	Messages []Message `json:"messages"`
}

// DisconnectRequest ends the session and tears the connection down
type DisconnectRequest struct {
	Token string `json:"token,omitempty"`
}

// NewMessagePayload is the server push delivered to chat members when a
// message is stored. Content is encrypted under the recipient connection's
// session key.
type NewMessagePayload struct {
	ChatID         int64  `json:"chat_id"`
	MessageID      int64  `json:"message_id"`
	SenderID       int64  `json:"sender_id"`
	SenderUsername string `json:"sender_username"`
	Content        string `json:"content"`
	Timestamp      string `json:"timestamp"`
}
