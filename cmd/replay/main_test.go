package main

import (
	"path/filepath"
	"testing"

	persistlog "landvote.ai/internal/persistence/log"
	"landvote.ai/internal/persistence/snapshot"
	"landvote.ai/internal/protocol"
	"landvote.ai/internal/sim/world"
)

func intp(v int) *int { return &v }

// recordSession runs a short session against a logged world and returns the
// world dir, the live world and a snapshot taken after the first grant.
func recordSession(t *testing.T) (string, *world.World, snapshot.SnapshotV1) {
	t.Helper()
	dir := t.TempDir()
	w, err := world.New(world.WorldConfig{ID: "land_1", Width: 6, Height: 5})
	if err != nil {
		t.Fatalf("world: %v", err)
	}
	l := persistlog.NewCommandLogger(dir)
	w.SetCommandLogger(l)

	w.Apply("A", protocol.ReqMsg{Op: protocol.OpRequestLand, X2: 3, Y2: 3})
	w.Apply("A", protocol.ReqMsg{Op: protocol.OpVote, BallotID: "B000001", Proposal: intp(1)})
	w.Apply("A", protocol.ReqMsg{Op: protocol.OpCheckBallot})
	snap := w.ExportSnapshot()

	w.Apply("B", protocol.ReqMsg{Op: protocol.OpRequestLand, X1: 1, Y1: 1, X2: 2, Y2: 2}) // fails: owned
	w.Apply("B", protocol.ReqMsg{Op: protocol.OpRequestLand, X1: 3, X2: 6, Y2: 5})
	w.Apply("A", protocol.ReqMsg{Op: protocol.OpVote, BallotID: "B000002", Proposal: intp(1)})
	w.Apply("B", protocol.ReqMsg{Op: protocol.OpCheckBallot})
	if err := l.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	return dir, w, snap
}

func TestReplay_FreshWorldReproducesDigests(t *testing.T) {
	dir, live, _ := recordSession(t)
	entries, err := persistlog.ReadCommands(dir)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if len(entries) != 7 {
		t.Fatalf("entries=%d want 7", len(entries))
	}

	w, err := world.New(world.WorldConfig{ID: "land_1", Width: 6, Height: 5})
	if err != nil {
		t.Fatalf("world: %v", err)
	}
	checked, err := replay(w, entries, 0, 0)
	if err != nil {
		t.Fatalf("replay: %v", err)
	}
	if checked != 7 || w.StateDigest() != live.StateDigest() {
		t.Fatalf("checked=%d digest match=%v", checked, w.StateDigest() == live.StateDigest())
	}
}

func TestReplay_FromSnapshot(t *testing.T) {
	dir, live, snap := recordSession(t)
	path := filepath.Join(t.TempDir(), "3.snap.zst")
	if err := snapshot.WriteSnapshot(path, snap); err != nil {
		t.Fatalf("write snapshot: %v", err)
	}
	w, err := startWorld(path, "", "")
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	entries, err := persistlog.ReadCommands(dir)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	checked, err := replay(w, entries, 0, 6)
	if err != nil {
		t.Fatalf("replay: %v", err)
	}
	if checked != 3 || w.CurrentSeq() != 6 {
		t.Fatalf("checked=%d seq=%d", checked, w.CurrentSeq())
	}
	if _, err := replay(w, entries, 0, 0); err != nil {
		t.Fatalf("replay rest: %v", err)
	}
	if w.StateDigest() != live.StateDigest() {
		t.Fatalf("digest differs after full replay")
	}
}

func TestReplay_DetectsTampering(t *testing.T) {
	dir, _, _ := recordSession(t)
	entries, err := persistlog.ReadCommands(dir)
	if err != nil {
		t.Fatalf("read: %v", err)
	}

	bad := append([]world.CommandLogEntry(nil), entries...)
	bad[4].Digest = "0000"
	w, _ := world.New(world.WorldConfig{ID: "land_1", Width: 6, Height: 5})
	if _, err := replay(w, bad, 0, 0); err == nil {
		t.Fatalf("expected digest mismatch")
	}

	gap := append([]world.CommandLogEntry(nil), entries[:2]...)
	gap = append(gap, entries[3:]...)
	w, _ = world.New(world.WorldConfig{ID: "land_1", Width: 6, Height: 5})
	if _, err := replay(w, gap, 0, 0); err == nil {
		t.Fatalf("expected seq gap")
	}

	// A tampered caller changes the outcome code.
	swapped := append([]world.CommandLogEntry(nil), entries...)
	swapped[1].Caller = "Z"
	w, _ = world.New(world.WorldConfig{ID: "land_1", Width: 6, Height: 5})
	if _, err := replay(w, swapped, 0, 0); err == nil {
		t.Fatalf("expected code mismatch")
	}
}
