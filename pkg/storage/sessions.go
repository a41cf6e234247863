package storage

import (
	"database/sql"
	"time"
)

// Session is a durable login session
type Session struct {
	Token     string
	UserID    int64
	CreatedAt int64
}

// CreateSession persists a session token for a user
func (s *Store) CreateSession(token string, userID int64) error {
	_, err := s.db.Exec(
		`INSERT INTO sessions (token, user_id, created_at) VALUES (?, ?, ?)`,
		token, userID, time.Now().Unix(),
	)
	return err
}

// LookupSession resolves a token to its session
func (s *Store) LookupSession(token string) (*Session, error) {
	row := s.db.QueryRow(
		`SELECT token, user_id, created_at FROM sessions WHERE token = ?`,
		token,
	)

	var sess Session
	err := row.Scan(&sess.Token, &sess.UserID, &sess.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	return &sess, nil
}

// DeleteSession invalidates a token
func (s *Store) DeleteSession(token string) error {
	_, err := s.db.Exec(`DELETE FROM sessions WHERE token = ?`, token)
	return err
}

// DeleteExpiredSessions removes sessions older than maxAge and returns how
// many were swept
func (s *Store) DeleteExpiredSessions(maxAge time.Duration) (int64, error) {
	cutoff := time.Now().Add(-maxAge).Unix()

	result, err := s.db.Exec(`DELETE FROM sessions WHERE created_at < ?`, cutoff)
	if err != nil {
		return 0, err
	}

	return result.RowsAffected()
}
