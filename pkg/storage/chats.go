package storage

import (
	"database/sql"
	"fmt"
)

// Chat is a private or group conversation
type Chat struct {
	ID   int64
	Kind string
	Name string
}

// ChatSummary is one row of a user's chat list
type ChatSummary struct {
	ID            int64
	Kind          string
	Name          string
	LastMessage   string
	LastTimestamp string
}

// pairKey builds the canonical key for a private chat so the same unordered
// user pair always maps to the same row
func pairKey(a, b int64) string {
	if a > b {
		a, b = b, a
	}
	return fmt.Sprintf("%d-%d", a, b)
}

// FindOrCreatePrivateChat returns the private chat between two users,
// creating it on first use. Idempotent in either argument order.
func (s *Store) FindOrCreatePrivateChat(userA, userB int64) (int64, error) {
	key := pairKey(userA, userB)

	var chatID int64
	err := s.db.QueryRow(`SELECT id FROM chats WHERE pair_key = ?`, key).Scan(&chatID)
	if err == nil {
		return chatID, nil
	}
	if err != sql.ErrNoRows {
		return 0, err
	}

	tx, err := s.db.Begin()
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	result, err := tx.Exec(
		`INSERT INTO chats (kind, pair_key) VALUES (?, ?)`,
		ChatKindPrivate, key,
	)
	if err != nil {
		// Lost a create race: the other writer's row wins
		if lookupErr := s.db.QueryRow(`SELECT id FROM chats WHERE pair_key = ?`, key).Scan(&chatID); lookupErr == nil {
			return chatID, nil
		}
		return 0, fmt.Errorf("failed to create chat: %v", err)
	}

	chatID, err = result.LastInsertId()
	if err != nil {
		return 0, err
	}

	members := []int64{userA}
	if userB != userA {
		members = append(members, userB)
	}
	for _, uid := range members {
		if _, err := tx.Exec(
			`INSERT INTO chat_members (chat_id, user_id) VALUES (?, ?)`,
			chatID, uid,
		); err != nil {
			return 0, err
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, err
	}

	return chatID, nil
}

// CreateGroupChat creates a group chat with the given members
func (s *Store) CreateGroupChat(name string, memberIDs []int64) (int64, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	result, err := tx.Exec(
		`INSERT INTO chats (kind, name) VALUES (?, ?)`,
		ChatKindGroup, name,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to create group chat: %v", err)
	}

	chatID, err := result.LastInsertId()
	if err != nil {
		return 0, err
	}

	for _, uid := range memberIDs {
		if _, err := tx.Exec(
			`INSERT OR IGNORE INTO chat_members (chat_id, user_id) VALUES (?, ?)`,
			chatID, uid,
		); err != nil {
			return 0, err
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, err
	}

	return chatID, nil
}

// ChatMembers returns the member user ids of a chat
func (s *Store) ChatMembers(chatID int64) ([]int64, error) {
	rows, err := s.db.Query(
		`SELECT user_id FROM chat_members WHERE chat_id = ? ORDER BY user_id`,
		chatID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var members []int64
	for rows.Next() {
		var uid int64
		if err := rows.Scan(&uid); err != nil {
			return nil, err
		}
		members = append(members, uid)
	}

	return members, rows.Err()
}

// IsMember reports whether a user belongs to a chat
func (s *Store) IsMember(chatID, userID int64) (bool, error) {
	var n int
	err := s.db.QueryRow(
		`SELECT COUNT(*) FROM chat_members WHERE chat_id = ? AND user_id = ?`,
		chatID, userID,
	).Scan(&n)
	return n > 0, err
}

// ChatsForUser lists a user's chats with last-message previews, most recent
// first. Private chats are named after the other participant.
func (s *Store) ChatsForUser(userID int64) ([]*ChatSummary, error) {
	query := `
		SELECT c.id, c.kind,
		       CASE c.kind
		           WHEN 'group' THEN COALESCE(c.name, '')
		           ELSE COALESCE((
		               SELECT u.username FROM chat_members cm
		               JOIN users u ON u.id = cm.user_id
		               WHERE cm.chat_id = c.id AND cm.user_id != ?
		               LIMIT 1
		           ), '')
		       END AS name,
		       COALESCE(m.content, ''), COALESCE(m.timestamp, '')
		FROM chats c
		JOIN chat_members me ON me.chat_id = c.id AND me.user_id = ?
		LEFT JOIN messages m ON m.id = (
			SELECT MAX(id) FROM messages WHERE chat_id = c.id
		)
		ORDER BY COALESCE(m.id, 0) DESC, c.id DESC
	`

	rows, err := s.db.Query(query, userID, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var chats []*ChatSummary
	for rows.Next() {
		var cs ChatSummary
		if err := rows.Scan(&cs.ID, &cs.Kind, &cs.Name, &cs.LastMessage, &cs.LastTimestamp); err != nil {
			return nil, err
		}
		chats = append(chats, &cs)
	}

	return chats, rows.Err()
}
