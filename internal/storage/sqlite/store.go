// Package sqlite persists committed turns, scene snapshots, combat plans,
// and telemetry events in a single SQLite database.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/emberloom/emberloom/internal/engine/combat"
	"github.com/emberloom/emberloom/internal/engine/intent"
	"github.com/emberloom/emberloom/internal/engine/resilience"
	"github.com/emberloom/emberloom/internal/engine/scene"
	"github.com/emberloom/emberloom/internal/engine/turn"
	"github.com/emberloom/emberloom/internal/platform/storage/sqlitemigrate"
	"github.com/emberloom/emberloom/internal/storage"
	"github.com/emberloom/emberloom/internal/storage/sqlite/migrations"
)

// Store is a SQLite-backed persister and telemetry sink.
type Store struct {
	sqlDB *sql.DB
}

// Open opens (or creates) the database at path and applies embedded
// migrations before the store is handed to higher layers.
func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}

	dsn := filepath.Clean(path) + "?_journal_mode=WAL&_foreign_keys=ON&_busy_timeout=5000&_synchronous=NORMAL"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if err := sqlitemigrate.ApplyMigrations(sqlDB, migrations.FS); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return &Store{sqlDB: sqlDB}, nil
}

// Close releases the database handle.
func (s *Store) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

func toMillis(value time.Time) int64 {
	return value.UTC().UnixMilli()
}

func fromMillis(value int64) time.Time {
	return time.UnixMilli(value).UTC()
}

// planRecord is the persisted shape of a combat plan.
type planRecord struct {
	Name              string            `json:"name,omitempty"`
	Summary           string            `json:"summary"`
	Opponents         []combat.Opponent `json:"opponents,omitempty"`
	NPCSignature      []string          `json:"npc_signature"`
	HostileAtCreation bool              `json:"hostile_at_creation"`
	State             string            `json:"state"`
	CreatedTurn       int               `json:"created_turn"`
	StaleSinceTurn    int               `json:"stale_since_turn,omitempty"`
}

func encodePlan(plan *combat.Plan) (sql.NullString, error) {
	if plan == nil || plan.State == combat.StateNone {
		return sql.NullString{}, nil
	}
	encoded, err := json.Marshal(planRecord{
		Name:              plan.Name,
		Summary:           plan.Summary,
		Opponents:         plan.Opponents,
		NPCSignature:      plan.NPCSignature,
		HostileAtCreation: plan.HostileAtCreation,
		State:             string(plan.State),
		CreatedTurn:       plan.CreatedTurn,
		StaleSinceTurn:    plan.StaleSinceTurn,
	})
	if err != nil {
		return sql.NullString{}, fmt.Errorf("encode combat plan: %w", err)
	}
	return sql.NullString{String: string(encoded), Valid: true}, nil
}

func decodePlan(raw sql.NullString) (*combat.Plan, error) {
	if !raw.Valid || strings.TrimSpace(raw.String) == "" {
		return nil, nil
	}
	var record planRecord
	if err := json.Unmarshal([]byte(raw.String), &record); err != nil {
		return nil, fmt.Errorf("decode combat plan: %w", err)
	}
	return &combat.Plan{
		Name:              record.Name,
		Summary:           record.Summary,
		Opponents:         record.Opponents,
		NPCSignature:      combat.Signature(record.NPCSignature),
		HostileAtCreation: record.HostileAtCreation,
		State:             combat.State(record.State),
		CreatedTurn:       record.CreatedTurn,
		StaleSinceTurn:    record.StaleSinceTurn,
	}, nil
}

// CommitTurn writes one committed turn atomically: the updated scene
// snapshot, the appended turn record, this turn's memory writes, and the
// current combat plan.
func (s *Store) CommitTurn(ctx context.Context, commit turn.Commit) error {
	sceneJSON, err := json.Marshal(commit.Scene)
	if err != nil {
		return fmt.Errorf("encode scene state: %w", err)
	}
	planJSON, err := encodePlan(commit.Plan)
	if err != nil {
		return err
	}

	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin commit transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	createdAt := toMillis(commit.Record.Timestamp)
	if _, err := tx.ExecContext(ctx, `
INSERT INTO sessions (id, campaign_id, scene_json, plan_json, updated_at_ms)
VALUES (?, ?, ?, ?, ?)
ON CONFLICT (id) DO UPDATE SET
    campaign_id = excluded.campaign_id,
    scene_json = excluded.scene_json,
    plan_json = excluded.plan_json,
    updated_at_ms = excluded.updated_at_ms`,
		commit.SessionID, commit.CampaignID, string(sceneJSON), planJSON, createdAt,
	); err != nil {
		return fmt.Errorf("upsert session: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `
INSERT INTO turns (session_id, turn_number, user_input, response, intent, status, summary, created_at_ms)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		commit.SessionID, commit.Record.TurnNumber, commit.Record.UserInput,
		commit.Record.Response, string(commit.Record.Intent), string(commit.Record.Status),
		commit.Record.Summary, createdAt,
	); err != nil {
		return fmt.Errorf("insert turn record: %w", err)
	}

	for _, write := range commit.Memories {
		keysJSON, err := json.Marshal(write.Keys)
		if err != nil {
			return fmt.Errorf("encode memory keys: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `
INSERT INTO memory_writes (session_id, turn_number, type, keys_json, summary, created_at_ms)
VALUES (?, ?, ?, ?, ?, ?)`,
			commit.SessionID, commit.Record.TurnNumber, string(write.Type),
			string(keysJSON), write.Summary, createdAt,
		); err != nil {
			return fmt.Errorf("insert memory write: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit turn transaction: %w", err)
	}
	return nil
}

// LoadSession reconstructs a session from its latest snapshot and turn log.
// It returns storage.ErrNotFound when the session has never committed.
func (s *Store) LoadSession(ctx context.Context, sessionID string) (*turn.Session, error) {
	row := s.sqlDB.QueryRowContext(ctx,
		"SELECT campaign_id, scene_json, plan_json FROM sessions WHERE id = ?", sessionID)

	var campaignID, sceneJSON string
	var planJSON sql.NullString
	if err := row.Scan(&campaignID, &sceneJSON, &planJSON); err != nil {
		if err == sql.ErrNoRows {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("load session: %w", err)
	}

	var state scene.State
	if err := json.Unmarshal([]byte(sceneJSON), &state); err != nil {
		return nil, fmt.Errorf("decode scene state: %w", err)
	}
	plan, err := decodePlan(planJSON)
	if err != nil {
		return nil, err
	}

	session := turn.NewSession(campaignID, sessionID, state)
	session.Plan = plan
	session.Turns, err = s.ListTurns(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	return session, nil
}

// ListTurns returns a session's turn log in turn order.
func (s *Store) ListTurns(ctx context.Context, sessionID string) ([]turn.Record, error) {
	rows, err := s.sqlDB.QueryContext(ctx, `
SELECT turn_number, user_input, response, intent, status, summary, created_at_ms
FROM turns WHERE session_id = ? ORDER BY turn_number`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("list turns: %w", err)
	}
	defer rows.Close()

	var records []turn.Record
	for rows.Next() {
		var record turn.Record
		var intentValue, statusValue string
		var createdAt int64
		if err := rows.Scan(&record.TurnNumber, &record.UserInput, &record.Response,
			&intentValue, &statusValue, &record.Summary, &createdAt); err != nil {
			return nil, fmt.Errorf("scan turn record: %w", err)
		}
		record.Intent = intent.Intent(intentValue)
		record.Status = resilience.Status(statusValue)
		record.Timestamp = fromMillis(createdAt)
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate turn records: %w", err)
	}
	return records, nil
}

// ListMemoryWrites returns a session's memory-write log in append order.
func (s *Store) ListMemoryWrites(ctx context.Context, sessionID string) ([]scene.MemoryWrite, error) {
	rows, err := s.sqlDB.QueryContext(ctx, `
SELECT type, keys_json, summary FROM memory_writes
WHERE session_id = ? ORDER BY id`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("list memory writes: %w", err)
	}
	defer rows.Close()

	var writes []scene.MemoryWrite
	for rows.Next() {
		var write scene.MemoryWrite
		var typeValue, keysJSON string
		if err := rows.Scan(&typeValue, &keysJSON, &write.Summary); err != nil {
			return nil, fmt.Errorf("scan memory write: %w", err)
		}
		write.Type = scene.MemoryType(typeValue)
		if err := json.Unmarshal([]byte(keysJSON), &write.Keys); err != nil {
			return nil, fmt.Errorf("decode memory keys: %w", err)
		}
		writes = append(writes, write)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate memory writes: %w", err)
	}
	return writes, nil
}

// AppendTelemetryEvent records one operational telemetry event.
func (s *Store) AppendTelemetryEvent(ctx context.Context, evt storage.TelemetryEvent) error {
	attributes := sql.NullString{}
	if len(evt.Attributes) > 0 {
		encoded, err := json.Marshal(evt.Attributes)
		if err != nil {
			return fmt.Errorf("encode telemetry attributes: %w", err)
		}
		attributes = sql.NullString{String: string(encoded), Valid: true}
	}
	if _, err := s.sqlDB.ExecContext(ctx, `
INSERT INTO telemetry_events (timestamp_ms, event_name, severity, campaign_id, session_id, handler_type, outcome, attributes_json)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		toMillis(evt.Timestamp), evt.EventName, evt.Severity,
		evt.CampaignID, evt.SessionID, evt.HandlerType, evt.Outcome, attributes,
	); err != nil {
		return fmt.Errorf("insert telemetry event: %w", err)
	}
	return nil
}
