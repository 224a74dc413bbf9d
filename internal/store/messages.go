package store

import (
	"context"
	"fmt"
	"time"

	"github.com/normanking/companioncore/internal/companionerr"
	"github.com/normanking/companioncore/internal/interaction"
)

// Role distinguishes speakers in a message history.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one turn of conversation history for an Interaction Key.
type Message struct {
	ID                int64
	Role              Role
	Content           string
	DetectedEmotion   string
	ResponseLatencyMs int
	CreatedAt         time.Time
}

// AppendMessage records one turn of conversation. detectedEmotion and
// latency are optional annotations for assistant turns; pass "" and 0 for
// user turns or when nothing was detected/measured.
func (s *Store) AppendMessage(ctx context.Context, key interaction.Key, role Role, content, detectedEmotion string, latency time.Duration) error {
	if err := requireKey(key); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO messages (user_id, model_id, role, content, detected_emotion, response_latency_ms) VALUES (?, ?, ?, ?, ?, ?)`,
		key.UserID, key.ModelID, string(role), content, detectedEmotion, latency.Milliseconds())
	if err != nil {
		return companionerr.New(companionerr.EngineUnavailable, "store.messages", fmt.Errorf("append message: %w", err))
	}
	return nil
}

// RecentMessages returns up to limit messages for key, oldest first, so
// callers can feed them directly into a prompt in chronological order.
func (s *Store) RecentMessages(ctx context.Context, key interaction.Key, limit int) ([]Message, error) {
	if err := requireKey(key); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 10
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, role, content, detected_emotion, response_latency_ms, created_at FROM messages
		 WHERE user_id = ? AND model_id = ?
		 ORDER BY created_at DESC, id DESC
		 LIMIT ?`,
		key.UserID, key.ModelID, limit)
	if err != nil {
		return nil, companionerr.New(companionerr.EngineUnavailable, "store.messages", fmt.Errorf("recent messages: %w", err))
	}
	defer rows.Close()

	var reversed []Message
	for rows.Next() {
		var m Message
		var role string
		var latencyMs int
		if err := rows.Scan(&m.ID, &role, &m.Content, &m.DetectedEmotion, &latencyMs, &m.CreatedAt); err != nil {
			return nil, companionerr.New(companionerr.EngineUnavailable, "store.messages", err)
		}
		m.Role = Role(role)
		m.ResponseLatencyMs = latencyMs
		reversed = append(reversed, m)
	}
	if err := rows.Err(); err != nil {
		return nil, companionerr.New(companionerr.EngineUnavailable, "store.messages", err)
	}

	out := make([]Message, len(reversed))
	for i, m := range reversed {
		out[len(reversed)-1-i] = m
	}
	return out, nil
}
