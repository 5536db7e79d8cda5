package storage

import (
	"path/filepath"
	"testing"

	"github.com/vovakirdan/gomoku-dispatch/internal/dispatch"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(filepath.Join(t.TempDir(), "matches.db"))
	if err != nil {
		t.Fatalf("cannot open store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func TestSaveAndRecentMatches(t *testing.T) {
	store := openTestStore(t)

	for _, rec := range []MatchRecord{
		{RoomID: "room-1", Player1Name: "alice", Player2Name: "bob", WinnerName: "alice", EndReason: "win", Duration: 120},
		{RoomID: "room-2", Player1Name: "carol", Player2Name: "dave", EndReason: "draw", Duration: 300},
		{RoomID: "room-3", Player1Name: "alice", Player2Name: "Computer", EndReason: "disconnect", Duration: 45},
	} {
		if _, err := store.SaveMatch(rec); err != nil {
			t.Fatalf("cannot save %s: %v", rec.RoomID, err)
		}
	}

	matches, err := store.RecentMatches(10)
	if err != nil {
		t.Fatalf("cannot query matches: %v", err)
	}
	if len(matches) != 3 {
		t.Fatalf("expected 3 matches, got %d", len(matches))
	}

	// Newest first.
	if matches[0].RoomID != "room-3" {
		t.Errorf("expected room-3 first, got %s", matches[0].RoomID)
	}
	if matches[2].RoomID != "room-1" {
		t.Errorf("expected room-1 last, got %s", matches[2].RoomID)
	}
	if matches[2].WinnerName != "alice" || matches[2].EndReason != "win" {
		t.Errorf("record fields lost: %+v", matches[2])
	}
	if matches[1].WinnerName != "" {
		t.Errorf("draw should have no winner, got %q", matches[1].WinnerName)
	}
}

func TestRecentMatchesLimit(t *testing.T) {
	store := openTestStore(t)

	for i := 0; i < 5; i++ {
		if _, err := store.SaveMatch(MatchRecord{
			RoomID: "room-" + string(rune('a'+i)), Player1Name: "p1", Player2Name: "p2", EndReason: "win",
		}); err != nil {
			t.Fatalf("cannot save: %v", err)
		}
	}

	matches, err := store.RecentMatches(2)
	if err != nil {
		t.Fatalf("cannot query matches: %v", err)
	}
	if len(matches) != 2 {
		t.Errorf("expected 2 matches, got %d", len(matches))
	}
}

func TestPlayerMatches(t *testing.T) {
	store := openTestStore(t)

	for _, rec := range []MatchRecord{
		{RoomID: "room-1", Player1Name: "alice", Player2Name: "bob", EndReason: "win"},
		{RoomID: "room-2", Player1Name: "carol", Player2Name: "alice", EndReason: "draw"},
		{RoomID: "room-3", Player1Name: "carol", Player2Name: "dave", EndReason: "win"},
	} {
		if _, err := store.SaveMatch(rec); err != nil {
			t.Fatalf("cannot save: %v", err)
		}
	}

	matches, err := store.PlayerMatches("alice", 10)
	if err != nil {
		t.Fatalf("cannot query player matches: %v", err)
	}
	if len(matches) != 2 {
		t.Fatalf("expected 2 matches for alice, got %d", len(matches))
	}
	for _, m := range matches {
		if m.Player1Name != "alice" && m.Player2Name != "alice" {
			t.Errorf("match %s does not involve alice", m.RoomID)
		}
	}
}

func TestDuplicateRoomIDRejected(t *testing.T) {
	store := openTestStore(t)

	rec := MatchRecord{RoomID: "room-dup", Player1Name: "a", Player2Name: "b", EndReason: "win"}
	if _, err := store.SaveMatch(rec); err != nil {
		t.Fatalf("first save failed: %v", err)
	}
	if _, err := store.SaveMatch(rec); err == nil {
		t.Error("saving the same room twice should fail")
	}
}

func TestSaveResultAdapter(t *testing.T) {
	store := openTestStore(t)

	err := store.SaveResult(dispatch.MatchResultData{
		RoomID:       "room-9",
		Player1Name:  "alice",
		Player2Name:  "Computer",
		WinnerName:   "Computer",
		EndReason:    "win",
		DurationSecs: 77,
	})
	if err != nil {
		t.Fatalf("SaveResult failed: %v", err)
	}

	matches, err := store.RecentMatches(1)
	if err != nil {
		t.Fatalf("cannot query matches: %v", err)
	}
	if len(matches) != 1 {
		t.Fatalf("expected 1 match, got %d", len(matches))
	}
	m := matches[0]
	if m.RoomID != "room-9" || m.WinnerName != "Computer" || m.Duration != 77 {
		t.Errorf("adapter mangled the record: %+v", m)
	}
}

func TestReopenKeepsData(t *testing.T) {
	path := filepath.Join(t.TempDir(), "matches.db")

	store, err := Open(path)
	if err != nil {
		t.Fatalf("cannot open store: %v", err)
	}
	if _, err := store.SaveMatch(MatchRecord{RoomID: "room-1", Player1Name: "a", Player2Name: "b", EndReason: "win"}); err != nil {
		t.Fatalf("cannot save: %v", err)
	}
	store.Close()

	store, err = Open(path)
	if err != nil {
		t.Fatalf("cannot reopen store: %v", err)
	}
	defer store.Close()

	matches, err := store.RecentMatches(10)
	if err != nil {
		t.Fatalf("cannot query matches: %v", err)
	}
	if len(matches) != 1 {
		t.Errorf("expected the saved match to survive reopen, got %d", len(matches))
	}
}
