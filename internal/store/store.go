// Package store persists everything scoped to an Interaction Key: message
// history, long-term memories, personality/bonding progress, avatar motion
// state, and the LLM response cache. Every exported method validates its
// key before touching the database, so a caller cannot accidentally read or
// write across user/avatar boundaries.
package store

import (
	"database/sql"
	"fmt"
	"sync"

	_ "modernc.org/sqlite"

	"github.com/normanking/companioncore/internal/companionerr"
	"github.com/normanking/companioncore/internal/interaction"
)

// Store wraps one SQLite database. A single *sql.DB already pools
// connections safely for concurrent readers; the extra RWMutex serializes
// writers so two goroutines racing to bump the same bond level can't lose
// an update.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

// Open creates or opens the SQLite database at path and runs migrations.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, companionerr.New(companionerr.EngineUnavailable, "store", fmt.Errorf("open database: %w", err))
	}
	db.SetMaxOpenConns(1) // modernc.org/sqlite: single writer avoids SQLITE_BUSY under our own mutex

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, companionerr.New(companionerr.EngineUnavailable, "store", fmt.Errorf("migrate: %w", err))
	}
	return s, nil
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS messages (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		user_id TEXT NOT NULL,
		model_id TEXT NOT NULL,
		role TEXT NOT NULL,
		content TEXT NOT NULL,
		detected_emotion TEXT NOT NULL DEFAULT '',
		response_latency_ms INTEGER NOT NULL DEFAULT 0,
		created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
	);
	CREATE INDEX IF NOT EXISTS idx_messages_key ON messages(user_id, model_id, created_at);

	CREATE TABLE IF NOT EXISTS memories (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		user_id TEXT NOT NULL,
		model_id TEXT NOT NULL,
		kind TEXT NOT NULL,
		content TEXT NOT NULL,
		topic TEXT NOT NULL DEFAULT 'general',
		importance REAL NOT NULL DEFAULT 0.5,
		access_count INTEGER NOT NULL DEFAULT 0,
		last_accessed TIMESTAMP,
		created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
	);
	CREATE INDEX IF NOT EXISTS idx_memories_key ON memories(user_id, model_id, created_at);
	CREATE INDEX IF NOT EXISTS idx_memories_topic ON memories(user_id, model_id, topic);

	CREATE TABLE IF NOT EXISTS personality (
		user_id TEXT NOT NULL,
		model_id TEXT NOT NULL,
		bond_level INTEGER NOT NULL DEFAULT 1,
		experience INTEGER NOT NULL DEFAULT 0,
		relationship_stage TEXT NOT NULL DEFAULT 'stranger',
		trust REAL NOT NULL DEFAULT 0.5,
		affection REAL NOT NULL DEFAULT 0.5,
		updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
		PRIMARY KEY (user_id, model_id)
	);

	CREATE TABLE IF NOT EXISTS personality_traits (
		user_id TEXT NOT NULL,
		model_id TEXT NOT NULL,
		trait_name TEXT NOT NULL,
		base_value REAL NOT NULL,
		current_value REAL NOT NULL,
		last_reason TEXT NOT NULL DEFAULT '',
		updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
		PRIMARY KEY (user_id, model_id, trait_name)
	);

	CREATE TABLE IF NOT EXISTS session_context (
		user_id TEXT NOT NULL,
		model_id TEXT NOT NULL,
		session_id TEXT NOT NULL,
		context_json TEXT NOT NULL,
		updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
		PRIMARY KEY (user_id, model_id)
	);

	CREATE TABLE IF NOT EXISTS avatar_state (
		user_id TEXT NOT NULL,
		model_id TEXT NOT NULL,
		mood REAL NOT NULL DEFAULT 0.5,
		energy REAL NOT NULL DEFAULT 0.5,
		happiness REAL NOT NULL DEFAULT 0.5,
		stress REAL NOT NULL DEFAULT 0.0,
		updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
		PRIMARY KEY (user_id, model_id)
	);

	CREATE TABLE IF NOT EXISTS llm_cache (
		model_id TEXT NOT NULL,
		prompt_fingerprint TEXT NOT NULL,
		response TEXT NOT NULL,
		created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
		expires_at TIMESTAMP NOT NULL,
		PRIMARY KEY (model_id, prompt_fingerprint)
	);
	CREATE INDEX IF NOT EXISTS idx_llm_cache_expires ON llm_cache(expires_at);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

func requireKey(key interaction.Key) error {
	return key.Validate()
}
