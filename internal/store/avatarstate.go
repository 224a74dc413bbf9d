package store

import (
	"context"
	"fmt"
	"time"

	"github.com/normanking/companioncore/internal/companionerr"
	"github.com/normanking/companioncore/internal/interaction"
)

// AvatarState is an Interaction Key's continuous affective state: mood,
// energy, happiness, and stress, each in [0, 1] and nudged turn by turn by
// conversational sentiment rather than set wholesale.
type AvatarState struct {
	Mood      float64
	Energy    float64
	Happiness float64
	Stress    float64
	UpdatedAt time.Time
}

func defaultAvatarState() AvatarState {
	return AvatarState{Mood: 0.5, Energy: 0.5, Happiness: 0.5, Stress: 0}
}

// GetAvatarState loads key's current affective state, seeding the default
// neutral state on first access.
func (s *Store) GetAvatarState(ctx context.Context, key interaction.Key) (AvatarState, error) {
	if err := requireKey(key); err != nil {
		return AvatarState{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	state, err := s.getAvatarStateLocked(ctx, key)
	if err == nil {
		return state, nil
	}

	_, execErr := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO avatar_state (user_id, model_id) VALUES (?, ?)`,
		key.UserID, key.ModelID)
	if execErr != nil {
		return AvatarState{}, companionerr.New(companionerr.EngineUnavailable, "store.avatarstate", fmt.Errorf("seed avatar state: %w", execErr))
	}
	return s.getAvatarStateLocked(ctx, key)
}

func (s *Store) getAvatarStateLocked(ctx context.Context, key interaction.Key) (AvatarState, error) {
	var st AvatarState
	err := s.db.QueryRowContext(ctx,
		`SELECT mood, energy, happiness, stress, updated_at FROM avatar_state WHERE user_id = ? AND model_id = ?`,
		key.UserID, key.ModelID).Scan(&st.Mood, &st.Energy, &st.Happiness, &st.Stress, &st.UpdatedAt)
	if err != nil {
		return AvatarState{}, companionerr.New(companionerr.EngineUnavailable, "store.avatarstate", err)
	}
	return st, nil
}

// UpdateAvatarState applies a partial update to key's affective state: a nil
// field leaves that dimension unchanged. Every supplied value is clamped to
// [0, 1].
func (s *Store) UpdateAvatarState(ctx context.Context, key interaction.Key, mood, energy, happiness, stress *float64) (AvatarState, error) {
	if err := requireKey(key); err != nil {
		return AvatarState{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO avatar_state (user_id, model_id) VALUES (?, ?)`,
		key.UserID, key.ModelID); err != nil {
		return AvatarState{}, companionerr.New(companionerr.EngineUnavailable, "store.avatarstate", err)
	}

	current, err := s.getAvatarStateLocked(ctx, key)
	if err != nil {
		return AvatarState{}, err
	}

	if mood != nil {
		current.Mood = clamp01(*mood)
	}
	if energy != nil {
		current.Energy = clamp01(*energy)
	}
	if happiness != nil {
		current.Happiness = clamp01(*happiness)
	}
	if stress != nil {
		current.Stress = clamp01(*stress)
	}

	_, execErr := s.db.ExecContext(ctx,
		`UPDATE avatar_state SET mood = ?, energy = ?, happiness = ?, stress = ?, updated_at = CURRENT_TIMESTAMP
		 WHERE user_id = ? AND model_id = ?`,
		current.Mood, current.Energy, current.Happiness, current.Stress, key.UserID, key.ModelID)
	if execErr != nil {
		return AvatarState{}, companionerr.New(companionerr.EngineUnavailable, "store.avatarstate", fmt.Errorf("update avatar state: %w", execErr))
	}

	current.UpdatedAt = time.Now()
	return current, nil
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
