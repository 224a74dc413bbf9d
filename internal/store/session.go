package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/normanking/companioncore/internal/companionerr"
	"github.com/normanking/companioncore/internal/interaction"
)

// SessionContext is the scratch state a single conversation session
// attaches to an Interaction Key: whatever the caller needs recalled for
// the life of that session, replaced wholesale on every put rather than
// merged field by field.
type SessionContext struct {
	SessionID string
	Data      map[string]any
	UpdatedAt time.Time
}

// PutSessionContext atomically replaces key's session context.
func (s *Store) PutSessionContext(ctx context.Context, key interaction.Key, sessionID string, data map[string]any) error {
	if err := requireKey(key); err != nil {
		return err
	}

	raw, err := json.Marshal(data)
	if err != nil {
		return companionerr.New(companionerr.DecodeFailed, "store.session", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	_, execErr := s.db.ExecContext(ctx,
		`INSERT INTO session_context (user_id, model_id, session_id, context_json, updated_at) VALUES (?, ?, ?, ?, CURRENT_TIMESTAMP)
		 ON CONFLICT(user_id, model_id) DO UPDATE SET
		   session_id = excluded.session_id, context_json = excluded.context_json, updated_at = CURRENT_TIMESTAMP`,
		key.UserID, key.ModelID, sessionID, string(raw))
	if execErr != nil {
		return companionerr.New(companionerr.EngineUnavailable, "store.session", fmt.Errorf("put session context: %w", execErr))
	}
	return nil
}

// GetSessionContext returns key's current session context. A missing row
// returns the zero value and no error: a brand-new Interaction Key simply
// has no session yet.
func (s *Store) GetSessionContext(ctx context.Context, key interaction.Key) (SessionContext, error) {
	if err := requireKey(key); err != nil {
		return SessionContext{}, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var sc SessionContext
	var raw string
	err := s.db.QueryRowContext(ctx,
		`SELECT session_id, context_json, updated_at FROM session_context WHERE user_id = ? AND model_id = ?`,
		key.UserID, key.ModelID).Scan(&sc.SessionID, &raw, &sc.UpdatedAt)
	if err != nil {
		return SessionContext{}, nil
	}

	if err := json.Unmarshal([]byte(raw), &sc.Data); err != nil {
		return SessionContext{}, companionerr.New(companionerr.DecodeFailed, "store.session", err)
	}
	return sc, nil
}
