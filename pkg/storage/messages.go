package storage

import "fmt"

// StoredMessage is a message row joined with its sender's username
type StoredMessage struct {
	ID             int64
	ChatID         int64
	SenderID       int64
	SenderUsername string
	Content        string
	Timestamp      string
}

// SaveMessage inserts a message and returns its id. Ids are assigned
// monotonically on insert.
func (s *Store) SaveMessage(chatID, senderID int64, content, timestamp string) (int64, error) {
	result, err := s.db.Exec(
		`INSERT INTO messages (chat_id, sender_id, content, timestamp) VALUES (?, ?, ?, ?)`,
		chatID, senderID, content, timestamp,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to save message: %v", err)
	}

	return result.LastInsertId()
}

// FetchMessages returns the most recent limit messages of a chat in
// chronological order. limit <= 0 fetches the full history.
func (s *Store) FetchMessages(chatID int64, limit int) ([]*StoredMessage, error) {
	query := `
		SELECT m.id, m.chat_id, m.sender_id, u.username, m.content, m.timestamp
		FROM messages m
		JOIN users u ON u.id = m.sender_id
		WHERE m.chat_id = ?
		ORDER BY m.id DESC
	`
	args := []interface{}{chatID}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var messages []*StoredMessage
	for rows.Next() {
		var m StoredMessage
		if err := rows.Scan(&m.ID, &m.ChatID, &m.SenderID, &m.SenderUsername, &m.Content, &m.Timestamp); err != nil {
			return nil, err
		}
		messages = append(messages, &m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// Reverse into chronological order
	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}

	return messages, nil
}

// CountMessages returns the total number of stored messages
func (s *Store) CountMessages() (int64, error) {
	var n int64
	err := s.db.QueryRow(`SELECT COUNT(*) FROM messages`).Scan(&n)
	return n, err
}
