package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/replay-browser/internal/config"
	"github.com/replay-browser/internal/domain"
)

// Repository provides PostgreSQL-based replay storage
type Repository struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// NewRepository creates a new PostgreSQL repository
func NewRepository(cfg *config.PostgresConfig, logger *slog.Logger) (*Repository, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.ConnectionString())
	if err != nil {
		return nil, fmt.Errorf("parsing connection string: %w", err)
	}

	poolConfig.MaxConns = int32(cfg.MaxConnections)
	poolConfig.MinConns = int32(cfg.MinConnections)
	poolConfig.MaxConnLifetime = cfg.MaxConnLifetime
	poolConfig.MaxConnIdleTime = cfg.MaxConnIdleTime

	pool, err := pgxpool.NewWithConfig(context.Background(), poolConfig)
	if err != nil {
		return nil, fmt.Errorf("creating connection pool: %w", err)
	}

	// Test connection
	if err := pool.Ping(context.Background()); err != nil {
		pool.Close()
		return nil, fmt.Errorf("connecting to database: %w", err)
	}

	return &Repository{
		pool:   pool,
		logger: logger,
	}, nil
}

// Close closes the database connection pool
func (r *Repository) Close() {
	r.pool.Close()
}

// Pool returns the underlying connection pool
func (r *Repository) Pool() *pgxpool.Pool {
	return r.pool
}

// RunMigrations executes database migrations
func (r *Repository) RunMigrations(ctx context.Context) error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS replays (
			id BIGSERIAL PRIMARY KEY,
			link TEXT NOT NULL,
			date TIMESTAMPTZ,
			server_id VARCHAR(128) NOT NULL,
			server_name VARCHAR(255),
			created_at TIMESTAMPTZ DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS replay_players (
			id BIGSERIAL PRIMARY KEY,
			replay_id BIGINT NOT NULL REFERENCES replays(id) ON DELETE CASCADE,
			player_guid UUID NOT NULL,
			player_ic_name VARCHAR(255),
			player_ooc_name VARCHAR(255),
			antag BOOLEAN DEFAULT FALSE,
			antag_prototypes JSONB,
			job_prototypes JSONB
		)`,
		`CREATE TABLE IF NOT EXISTS replay_events (
			id BIGSERIAL PRIMARY KEY,
			replay_id BIGINT NOT NULL REFERENCES replays(id) ON DELETE CASCADE,
			event_type VARCHAR(64) NOT NULL,
			payload JSONB NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_replay_players_guid ON replay_players(player_guid)`,
		`CREATE INDEX IF NOT EXISTS idx_replay_players_replay ON replay_players(replay_id)`,
		`CREATE INDEX IF NOT EXISTS idx_replays_server ON replays(server_id)`,
		`CREATE INDEX IF NOT EXISTS idx_replay_events_replay ON replay_events(replay_id, event_type)`,
	}

	for _, migration := range migrations {
		_, err := r.pool.Exec(ctx, migration)
		if err != nil {
			return fmt.Errorf("executing migration: %w", err)
		}
	}

	r.logger.Info("database migrations completed")
	return nil
}

// Save persists a replay with its players and events in one transaction and
// returns the assigned replay ID. Once saved, the identity never changes.
func (r *Repository) Save(ctx context.Context, replay *domain.Replay) (int64, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("%w: beginning transaction: %v", domain.ErrStoreFailure, err)
	}
	defer tx.Rollback(ctx)

	var replayID int64
	err = tx.QueryRow(ctx,
		`INSERT INTO replays (link, date, server_id, server_name) VALUES ($1, $2, $3, $4) RETURNING id`,
		replay.Link, replay.Date, replay.ServerID, replay.ServerName,
	).Scan(&replayID)
	if err != nil {
		return 0, fmt.Errorf("%w: inserting replay: %v", domain.ErrStoreFailure, err)
	}

	for _, player := range replay.Players {
		antagProtos, err := json.Marshal(player.AntagPrototypes)
		if err != nil {
			return 0, fmt.Errorf("%w: marshaling antag prototypes: %v", domain.ErrStoreFailure, err)
		}
		jobProtos, err := json.Marshal(player.JobPrototypes)
		if err != nil {
			return 0, fmt.Errorf("%w: marshaling job prototypes: %v", domain.ErrStoreFailure, err)
		}
		_, err = tx.Exec(ctx,
			`INSERT INTO replay_players (replay_id, player_guid, player_ic_name, player_ooc_name, antag, antag_prototypes, job_prototypes)
			 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			replayID, player.PlayerGUID, player.PlayerICName, player.PlayerOOCName, player.Antag, antagProtos, jobProtos,
		)
		if err != nil {
			return 0, fmt.Errorf("%w: inserting player: %v", domain.ErrStoreFailure, err)
		}
	}

	for _, event := range replay.Events {
		payload, err := json.Marshal(event)
		if err != nil {
			return 0, fmt.Errorf("%w: marshaling event: %v", domain.ErrStoreFailure, err)
		}
		_, err = tx.Exec(ctx,
			`INSERT INTO replay_events (replay_id, event_type, payload) VALUES ($1, $2, $3)`,
			replayID, event.Type, payload,
		)
		if err != nil {
			return 0, fmt.Errorf("%w: inserting event: %v", domain.ErrStoreFailure, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("%w: committing: %v", domain.ErrStoreFailure, err)
	}

	r.logger.Debug("replay saved",
		"replay_id", replayID,
		"players", len(replay.Players),
		"events", len(replay.Events),
	)
	return replayID, nil
}

// GetReplay retrieves a replay with its players and events by ID
func (r *Repository) GetReplay(ctx context.Context, id int64) (*domain.Replay, error) {
	var replay domain.Replay
	err := r.pool.QueryRow(ctx,
		`SELECT id, link, date, server_id, COALESCE(server_name, '') FROM replays WHERE id = $1`,
		id,
	).Scan(&replay.ID, &replay.Link, &replay.Date, &replay.ServerID, &replay.ServerName)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, domain.ErrReplayNotFound
		}
		return nil, fmt.Errorf("getting replay: %w", err)
	}

	players, err := r.playersForReplay(ctx, id)
	if err != nil {
		return nil, err
	}
	replay.Players = players

	events, err := r.eventsForReplay(ctx, id)
	if err != nil {
		return nil, err
	}
	replay.Events = events

	return &replay, nil
}

// FindByServerAndParticipant returns replays recorded on the given server in
// which the given player participated, newest first.
func (r *Repository) FindByServerAndParticipant(ctx context.Context, serverID string, playerGUID uuid.UUID) ([]domain.Replay, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT DISTINCT r.id, r.link, r.date, r.server_id, COALESCE(r.server_name, '')
		 FROM replays r
		 JOIN replay_players p ON p.replay_id = r.id
		 WHERE r.server_id = $1 AND p.player_guid = $2
		 ORDER BY r.date DESC`,
		serverID, playerGUID,
	)
	if err != nil {
		return nil, fmt.Errorf("finding replays: %w", err)
	}
	defer rows.Close()

	var replays []domain.Replay
	for rows.Next() {
		var replay domain.Replay
		err := rows.Scan(&replay.ID, &replay.Link, &replay.Date, &replay.ServerID, &replay.ServerName)
		if err != nil {
			return nil, fmt.Errorf("scanning replay: %w", err)
		}
		replays = append(replays, replay)
	}
	return replays, nil
}

// ListPlayerRecords returns every stored participation record. This is the
// aggregator's input: one row per player per replay.
func (r *Repository) ListPlayerRecords(ctx context.Context) ([]domain.Player, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT replay_id, player_guid, COALESCE(player_ic_name, ''), COALESCE(player_ooc_name, ''), antag,
		        COALESCE(antag_prototypes, '[]'), COALESCE(job_prototypes, '[]')
		 FROM replay_players`,
	)
	if err != nil {
		return nil, fmt.Errorf("listing player records: %w", err)
	}
	defer rows.Close()

	var records []domain.Player
	for rows.Next() {
		var record domain.Player
		var antagProtos, jobProtos []byte
		err := rows.Scan(
			&record.ReplayID,
			&record.PlayerGUID,
			&record.PlayerICName,
			&record.PlayerOOCName,
			&record.Antag,
			&antagProtos,
			&jobProtos,
		)
		if err != nil {
			return nil, fmt.Errorf("scanning player record: %w", err)
		}
		if err := json.Unmarshal(antagProtos, &record.AntagPrototypes); err != nil {
			return nil, fmt.Errorf("unmarshaling antag prototypes: %w", err)
		}
		if err := json.Unmarshal(jobProtos, &record.JobPrototypes); err != nil {
			return nil, fmt.Errorf("unmarshaling job prototypes: %w", err)
		}
		records = append(records, record)
	}
	return records, nil
}

// CountDeathsByPlayer tallies mob_state_changed transitions into the dead
// state, keyed by the target's GUID.
func (r *Repository) CountDeathsByPlayer(ctx context.Context) (map[string]int64, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT payload->'mob_state_changed'->'target'->>'player_guid', COUNT(*)
		 FROM replay_events
		 WHERE event_type = $1 AND (payload->'mob_state_changed'->>'new_state')::int = $2
		 GROUP BY 1`,
		domain.EventTypeMobStateChanged, int(domain.MobStateDead),
	)
	if err != nil {
		return nil, fmt.Errorf("counting deaths: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int64)
	for rows.Next() {
		var guid string
		var count int64
		if err := rows.Scan(&guid, &count); err != nil {
			return nil, fmt.Errorf("scanning death count: %w", err)
		}
		counts[guid] = count
	}
	return counts, nil
}

// RedactPlayer overwrites a player's identifying fields across all stored
// rows with the redaction placeholder. The operation is idempotent.
func (r *Repository) RedactPlayer(ctx context.Context, playerGUID uuid.UUID) error {
	result, err := r.pool.Exec(ctx,
		`UPDATE replay_players
		 SET player_guid = $1, player_ic_name = $2, player_ooc_name = $2,
		     antag_prototypes = NULL, job_prototypes = NULL
		 WHERE player_guid = $3`,
		uuid.Nil, domain.RedactedName, playerGUID,
	)
	if err != nil {
		return fmt.Errorf("redacting player: %w", err)
	}
	if result.RowsAffected() == 0 {
		return domain.ErrPlayerNotFound
	}
	return nil
}

// DeleteCharacterAndJobDataFor bulk-deletes the redaction-adjacent derived
// rows for a player: their role prototypes and their event stream entries.
func (r *Repository) DeleteCharacterAndJobDataFor(ctx context.Context, playerGUID uuid.UUID) error {
	_, err := r.pool.Exec(ctx,
		`DELETE FROM replay_events
		 WHERE payload->'mob_state_changed'->'target'->>'player_guid' = $1`,
		playerGUID.String(),
	)
	if err != nil {
		return fmt.Errorf("deleting event data: %w", err)
	}

	_, err = r.pool.Exec(ctx,
		`UPDATE replay_players SET antag_prototypes = NULL, job_prototypes = NULL WHERE player_guid = $1`,
		playerGUID,
	)
	if err != nil {
		return fmt.Errorf("deleting character and job data: %w", err)
	}
	return nil
}

func (r *Repository) playersForReplay(ctx context.Context, replayID int64) ([]domain.Player, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT replay_id, player_guid, COALESCE(player_ic_name, ''), COALESCE(player_ooc_name, ''), antag,
		        COALESCE(antag_prototypes, '[]'), COALESCE(job_prototypes, '[]')
		 FROM replay_players WHERE replay_id = $1 ORDER BY id`,
		replayID,
	)
	if err != nil {
		return nil, fmt.Errorf("listing replay players: %w", err)
	}
	defer rows.Close()

	var players []domain.Player
	for rows.Next() {
		var player domain.Player
		var antagProtos, jobProtos []byte
		err := rows.Scan(
			&player.ReplayID,
			&player.PlayerGUID,
			&player.PlayerICName,
			&player.PlayerOOCName,
			&player.Antag,
			&antagProtos,
			&jobProtos,
		)
		if err != nil {
			return nil, fmt.Errorf("scanning replay player: %w", err)
		}
		if err := json.Unmarshal(antagProtos, &player.AntagPrototypes); err != nil {
			return nil, fmt.Errorf("unmarshaling antag prototypes: %w", err)
		}
		if err := json.Unmarshal(jobProtos, &player.JobPrototypes); err != nil {
			return nil, fmt.Errorf("unmarshaling job prototypes: %w", err)
		}
		players = append(players, player)
	}
	return players, nil
}

func (r *Repository) eventsForReplay(ctx context.Context, replayID int64) ([]domain.ReplayEvent, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT payload FROM replay_events WHERE replay_id = $1 ORDER BY id`,
		replayID,
	)
	if err != nil {
		return nil, fmt.Errorf("listing replay events: %w", err)
	}
	defer rows.Close()

	var events []domain.ReplayEvent
	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("scanning replay event: %w", err)
		}
		var event domain.ReplayEvent
		if err := json.Unmarshal(payload, &event); err != nil {
			return nil, fmt.Errorf("unmarshaling replay event: %w", err)
		}
		events = append(events, event)
	}
	return events, nil
}
