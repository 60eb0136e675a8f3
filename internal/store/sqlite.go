// Package store persists training artifacts to SQLite: a single-row stats
// snapshot and a rolling log of episode summaries. It implements
// [trainer.Store].
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/veloread/cadence/internal/trainer"
)

const schema = `
CREATE TABLE IF NOT EXISTS training_stats (
	id                  INTEGER PRIMARY KEY CHECK (id = 1),
	episodes_collected  INTEGER NOT NULL,
	training_passes     INTEGER NOT NULL,
	average_reward      REAL NOT NULL,
	last_training_time  TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS episode_summaries (
	episode_id    TEXT PRIMARY KEY,
	length        INTEGER NOT NULL,
	total_reward  REAL NOT NULL,
	rewards_json  TEXT NOT NULL,
	packaged_at   TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_episode_summaries_packaged_at
	ON episode_summaries(packaged_at);
`

// Store is a SQLite-backed implementation of [trainer.Store].
type Store struct {
	db *sql.DB
}

// Open opens (creating if needed) the SQLite database at path and runs
// migrations. Use ":memory:" for an ephemeral store.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("store: open db: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		return nil, fmt.Errorf("store: pragma: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("store: migrate: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping verifies the database connection, for readiness probes.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// SaveStats upserts the single stats row.
func (s *Store) SaveStats(ctx context.Context, st trainer.Stats) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO training_stats (id, episodes_collected, training_passes, average_reward, last_training_time)
		 VALUES (1, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
			episodes_collected = excluded.episodes_collected,
			training_passes    = excluded.training_passes,
			average_reward     = excluded.average_reward,
			last_training_time = excluded.last_training_time`,
		st.EpisodesCollected, st.TrainingPasses, st.AverageReward,
		st.LastTrainingTime.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("store: save stats: %w", err)
	}
	return nil
}

// LoadStats reads the stats row. The second return value is false when no
// stats have been persisted yet.
func (s *Store) LoadStats(ctx context.Context) (trainer.Stats, bool, error) {
	var st trainer.Stats
	var lastStr string
	err := s.db.QueryRowContext(ctx,
		`SELECT episodes_collected, training_passes, average_reward, last_training_time
		 FROM training_stats WHERE id = 1`,
	).Scan(&st.EpisodesCollected, &st.TrainingPasses, &st.AverageReward, &lastStr)
	if err == sql.ErrNoRows {
		return trainer.Stats{}, false, nil
	}
	if err != nil {
		return trainer.Stats{}, false, fmt.Errorf("store: load stats: %w", err)
	}
	if t, perr := time.Parse(time.RFC3339Nano, lastStr); perr == nil {
		st.LastTrainingTime = t
	}
	return st, true, nil
}

// SaveEpisodes inserts the given episode summaries, skipping IDs already
// written by an earlier training pass.
func (s *Store) SaveEpisodes(ctx context.Context, eps []trainer.EpisodeSummary) error {
	if len(eps) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("store: begin tx: %w", err)
	}
	defer tx.Rollback()

	for _, ep := range eps {
		rewards, err := json.Marshal(ep.Rewards)
		if err != nil {
			return fmt.Errorf("store: marshal rewards: %w", err)
		}
		_, err = tx.ExecContext(ctx,
			`INSERT INTO episode_summaries (episode_id, length, total_reward, rewards_json, packaged_at)
			 VALUES (?, ?, ?, ?, ?)
			 ON CONFLICT(episode_id) DO NOTHING`,
			ep.ID, ep.Length, ep.TotalReward, string(rewards),
			ep.PackagedAt.UTC().Format(time.RFC3339Nano),
		)
		if err != nil {
			return fmt.Errorf("store: insert episode %s: %w", ep.ID, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("store: commit: %w", err)
	}
	return nil
}

// RecentEpisodes returns up to limit episode summaries, newest first.
func (s *Store) RecentEpisodes(ctx context.Context, limit int) ([]trainer.EpisodeSummary, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT episode_id, length, total_reward, rewards_json, packaged_at
		 FROM episode_summaries ORDER BY packaged_at DESC LIMIT ?`, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("store: list episodes: %w", err)
	}
	defer rows.Close()

	var out []trainer.EpisodeSummary
	for rows.Next() {
		var ep trainer.EpisodeSummary
		var rewardsJSON, packagedStr string
		if err := rows.Scan(&ep.ID, &ep.Length, &ep.TotalReward, &rewardsJSON, &packagedStr); err != nil {
			return nil, fmt.Errorf("store: scan episode: %w", err)
		}
		if err := json.Unmarshal([]byte(rewardsJSON), &ep.Rewards); err != nil {
			return nil, fmt.Errorf("store: unmarshal rewards: %w", err)
		}
		if t, perr := time.Parse(time.RFC3339Nano, packagedStr); perr == nil {
			ep.PackagedAt = t
		}
		out = append(out, ep)
	}
	return out, rows.Err()
}
