package history

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/piotrkotrych/tarczownix/internal/types"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(filepath.Join(t.TempDir(), "history.db"))
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func TestRecordAndQueryHits(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		err := store.RecordHit(ctx, i, types.SideA, time.Duration(i+1)*time.Second)
		if err != nil {
			t.Fatalf("RecordHit failed: %v", err)
		}
	}

	hits, err := store.RecentHits(ctx, 10)
	if err != nil {
		t.Fatalf("RecentHits failed: %v", err)
	}
	if len(hits) != 3 {
		t.Fatalf("got %d hits, want 3", len(hits))
	}
	// Newest first.
	if hits[0].Pair != 2 || hits[2].Pair != 0 {
		t.Errorf("hit order = %d, %d, %d, want 2, 1, 0",
			hits[0].Pair, hits[1].Pair, hits[2].Pair)
	}
	if hits[0].DwellMs != 3000 {
		t.Errorf("dwell = %dms, want 3000", hits[0].DwellMs)
	}
}

func TestRecordAndQueryFaults(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	rec := types.FaultRecord{
		PairIndex: 1,
		Side:      types.SideB,
		Timestamp: time.Now(),
		Message:   "sensor deadline missed",
	}
	if err := store.RecordFault(ctx, rec); err != nil {
		t.Fatalf("RecordFault failed: %v", err)
	}

	faults, err := store.RecentFaults(ctx, 10)
	if err != nil {
		t.Fatalf("RecentFaults failed: %v", err)
	}
	if len(faults) != 1 {
		t.Fatalf("got %d faults, want 1", len(faults))
	}
	if faults[0].Pair != 1 || faults[0].Side != types.SideB {
		t.Errorf("fault = pair %d side %s, want pair 1 side B", faults[0].Pair, faults[0].Side)
	}
	if faults[0].Message != "sensor deadline missed" {
		t.Errorf("message = %q", faults[0].Message)
	}
}

func TestQueryLimitClamping(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	for i := 0; i < 60; i++ {
		if err := store.RecordHit(ctx, 0, types.SideA, time.Second); err != nil {
			t.Fatalf("RecordHit failed: %v", err)
		}
	}

	// A nonpositive limit falls back to the default.
	hits, err := store.RecentHits(ctx, 0)
	if err != nil {
		t.Fatalf("RecentHits failed: %v", err)
	}
	if len(hits) != defaultLimit {
		t.Errorf("got %d hits with zero limit, want default %d", len(hits), defaultLimit)
	}
}

func TestPrune(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	// Backdate one hit past the retention window.
	_, err := store.db.ExecContext(ctx,
		"INSERT INTO hits (pair, side, dwell_ms, created_at) VALUES (0, 'A', 100, ?)",
		time.Now().Add(-48*time.Hour).UTC())
	if err != nil {
		t.Fatalf("backdated insert failed: %v", err)
	}
	if err := store.RecordHit(ctx, 0, types.SideA, time.Second); err != nil {
		t.Fatalf("RecordHit failed: %v", err)
	}

	pruned, err := store.Prune(ctx, 24*time.Hour)
	if err != nil {
		t.Fatalf("Prune failed: %v", err)
	}
	if pruned != 1 {
		t.Errorf("pruned %d rows, want 1", pruned)
	}

	hits, err := store.RecentHits(ctx, 10)
	if err != nil {
		t.Fatalf("RecentHits failed: %v", err)
	}
	if len(hits) != 1 {
		t.Errorf("%d hits survive the prune, want 1", len(hits))
	}
}

func TestPruneRejectsNonpositiveWindow(t *testing.T) {
	store := openTestStore(t)
	if _, err := store.Prune(context.Background(), 0); err == nil {
		t.Error("expected error for zero retention window")
	}
}
