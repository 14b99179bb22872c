package sqlite

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/emberloom/emberloom/internal/engine/combat"
	"github.com/emberloom/emberloom/internal/engine/intent"
	"github.com/emberloom/emberloom/internal/engine/resilience"
	"github.com/emberloom/emberloom/internal/engine/scene"
	"github.com/emberloom/emberloom/internal/engine/turn"
	"github.com/emberloom/emberloom/internal/storage"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(filepath.Join(t.TempDir(), "engine.db"))
	if err != nil {
		t.Fatalf("Open error = %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func sampleCommit(turnNumber int) turn.Commit {
	return turn.Commit{
		CampaignID: "camp-1",
		SessionID:  "sess-1",
		Record: turn.Record{
			TurnNumber: turnNumber,
			UserInput:  "I sneak past the guards",
			Response:   "You slip through the shadows.",
			Intent:     intent.Gameplay,
			Status:     resilience.StatusOK,
			Summary:    "Snuck past the guards",
			Timestamp:  time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC),
		},
		Scene: scene.State{
			TimeOfDay:    "night",
			Region:       "Duskmoor",
			Participants: []string{"Guard1", "Guard2"},
		},
		Memories: []scene.MemoryWrite{
			{Type: scene.MemoryEvent, Keys: []string{"Guard1"}, Summary: "Evaded the guards"},
		},
	}
}

func TestOpenRequiresPath(t *testing.T) {
	if _, err := Open("  "); err == nil {
		t.Fatal("expected error for empty path")
	}
}

func TestCommitTurnAndLoadSession(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	if err := store.CommitTurn(ctx, sampleCommit(1)); err != nil {
		t.Fatalf("CommitTurn error = %v", err)
	}

	second := sampleCommit(2)
	second.Record.UserInput = "I open the door"
	second.Record.Summary = "Opened the warehouse door"
	second.Scene.SpecificLocation = "warehouse interior"
	second.Memories = nil
	if err := store.CommitTurn(ctx, second); err != nil {
		t.Fatalf("CommitTurn error = %v", err)
	}

	session, err := store.LoadSession(ctx, "sess-1")
	if err != nil {
		t.Fatalf("LoadSession error = %v", err)
	}
	if session.CampaignID != "camp-1" {
		t.Fatalf("campaign = %q", session.CampaignID)
	}
	if session.Scene.SpecificLocation != "warehouse interior" {
		t.Fatalf("scene = %+v, want latest snapshot", session.Scene)
	}
	if len(session.Turns) != 2 {
		t.Fatalf("turns = %d, want 2", len(session.Turns))
	}
	if session.Turns[0].TurnNumber != 1 || session.Turns[1].TurnNumber != 2 {
		t.Fatalf("turn order = %d, %d", session.Turns[0].TurnNumber, session.Turns[1].TurnNumber)
	}
	record := session.Turns[0]
	if record.Intent != intent.Gameplay || record.Status != resilience.StatusOK {
		t.Fatalf("record = %+v", record)
	}
	if !record.Timestamp.Equal(time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)) {
		t.Fatalf("timestamp = %v", record.Timestamp)
	}
}

func TestLoadSessionNotFound(t *testing.T) {
	store := openTestStore(t)
	_, err := store.LoadSession(context.Background(), "missing")
	if !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("error = %v, want ErrNotFound", err)
	}
}

func TestCommitTurnPersistsPlan(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	commit := sampleCommit(1)
	commit.Plan = &combat.Plan{
		Name:              "warehouse ambush",
		Summary:           "Guards spring the trap",
		Opponents:         []combat.Opponent{{Name: "Captain", Role: "boss"}},
		NPCSignature:      combat.NewSignature([]string{"Captain", "Guard"}),
		HostileAtCreation: true,
		State:             combat.StatePrepared,
		CreatedTurn:       1,
	}
	if err := store.CommitTurn(ctx, commit); err != nil {
		t.Fatalf("CommitTurn error = %v", err)
	}

	session, err := store.LoadSession(ctx, "sess-1")
	if err != nil {
		t.Fatalf("LoadSession error = %v", err)
	}
	if session.Plan == nil || session.Plan.State != combat.StatePrepared {
		t.Fatalf("plan = %+v", session.Plan)
	}
	if !session.Plan.NPCSignature.Equal(combat.NewSignature([]string{"guard", "captain"})) {
		t.Fatalf("signature = %v", session.Plan.NPCSignature)
	}

	// A discarded plan clears the stored snapshot.
	cleared := sampleCommit(2)
	cleared.Plan = nil
	if err := store.CommitTurn(ctx, cleared); err != nil {
		t.Fatalf("CommitTurn error = %v", err)
	}
	session, err = store.LoadSession(ctx, "sess-1")
	if err != nil {
		t.Fatalf("LoadSession error = %v", err)
	}
	if session.Plan != nil {
		t.Fatalf("plan = %+v, want nil", session.Plan)
	}
}

func TestListMemoryWrites(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	if err := store.CommitTurn(ctx, sampleCommit(1)); err != nil {
		t.Fatalf("CommitTurn error = %v", err)
	}

	writes, err := store.ListMemoryWrites(ctx, "sess-1")
	if err != nil {
		t.Fatalf("ListMemoryWrites error = %v", err)
	}
	if len(writes) != 1 {
		t.Fatalf("writes = %d, want 1", len(writes))
	}
	write := writes[0]
	if write.Type != scene.MemoryEvent || write.Summary != "Evaded the guards" {
		t.Fatalf("write = %+v", write)
	}
	if len(write.Keys) != 1 || write.Keys[0] != "Guard1" {
		t.Fatalf("keys = %v", write.Keys)
	}
}

func TestAppendTelemetryEvent(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	evt := storage.TelemetryEvent{
		Timestamp:   time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC),
		EventName:   "engine.turn.committed",
		Severity:    "INFO",
		CampaignID:  "camp-1",
		SessionID:   "sess-1",
		HandlerType: "gameplay",
		Outcome:     "OK",
		Attributes:  map[string]any{"turn_number": 1},
	}
	if err := store.AppendTelemetryEvent(ctx, evt); err != nil {
		t.Fatalf("AppendTelemetryEvent error = %v", err)
	}

	var count int
	row := store.sqlDB.QueryRow("SELECT COUNT(*) FROM telemetry_events WHERE event_name = ?", evt.EventName)
	if err := row.Scan(&count); err != nil {
		t.Fatalf("count telemetry events: %v", err)
	}
	if count != 1 {
		t.Fatalf("count = %d, want 1", count)
	}
}
