package protocol

import (
	"sort"
	"time"
)

// TimestampLayout is the wall-clock format messages carry on the wire
const TimestampLayout = "2006-01-02 15:04:05"

// Message is a chat message as carried in history responses. MessageID is
// nil for local echoes the server has not acknowledged yet.
type Message struct {
	MessageID      *int64 `json:"message_id"`
	ChatID         int64  `json:"chat_id"`
	SenderID       int64  `json:"sender_id"`
	SenderUsername string `json:"sender_username,omitempty"`
	Content        string `json:"content"`
	Timestamp      string `json:"timestamp"`
}

// SortMessages orders messages for display by (timestamp, message id).
// Records without an id sort first on a timestamp tie or when either
// timestamp does not parse; otherwise ids break the tie.
func SortMessages(messages []Message) {
	sort.SliceStable(messages, func(i, j int) bool {
		ti, okI := parseTimestamp(messages[i].Timestamp)
		tj, okJ := parseTimestamp(messages[j].Timestamp)

		if okI && okJ && !ti.Equal(tj) {
			return ti.Before(tj)
		}

		// Tied or unparseable timestamps: not-yet-acknowledged
		// records (nil id) come first
		if messages[i].MessageID == nil {
			return messages[j].MessageID != nil
		}
		if messages[j].MessageID == nil {
			return false
		}
		return *messages[i].MessageID < *messages[j].MessageID
	})
}

func parseTimestamp(s string) (time.Time, bool) {
	if t, err := time.Parse(TimestampLayout, s); err == nil {
		return t, true
	}
	// Bare wall-clock timestamps from older clients
	if t, err := time.Parse("15:04:05", s); err == nil {
		return t, true
	}
	return time.Time{}, false
}
