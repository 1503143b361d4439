package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"

	persistlog "landvote.ai/internal/persistence/log"
	"landvote.ai/internal/persistence/snapshot"
	"landvote.ai/internal/sim/tuning"
	"landvote.ai/internal/sim/world"
)

func main() {
	var (
		snapPath   = flag.String("snapshot", "", "path to .snap.zst (optional; fresh map from -tuning when empty)")
		dataDir    = flag.String("data", "./data", "runtime data directory")
		worldID    = flag.String("world", "land_1", "world id")
		logDir     = flag.String("logs", "", "world dir containing commands/ (default: <data>/worlds/<world>)")
		tuningPath = flag.String("tuning", "./configs/land.yaml", "map config for a fresh replay")
		fromSeq    = flag.Uint64("from_seq", 0, "start verifying from seq (inclusive, optional)")
		toSeq      = flag.Uint64("to_seq", 0, "stop at seq (inclusive, optional)")
	)
	flag.Parse()

	dir := *logDir
	if dir == "" {
		dir = filepath.Join(*dataDir, "worlds", *worldID)
	}

	w, err := startWorld(*snapPath, *worldID, *tuningPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	startSeq := w.CurrentSeq()

	entries, err := persistlog.ReadCommands(dir)
	if err != nil {
		fmt.Fprintln(os.Stderr, "read commands:", err)
		os.Exit(1)
	}
	if len(entries) == 0 {
		fmt.Fprintln(os.Stderr, "no command logs found in", filepath.Join(dir, "commands"))
		os.Exit(1)
	}

	checked, err := replay(w, entries, *fromSeq, *toSeq)
	if err != nil {
		fmt.Fprintln(os.Stderr, "replay:", err)
		os.Exit(1)
	}
	m := w.Metrics()
	fmt.Printf("replay ok: checked=%d commands (from seq=%d to seq=%d) map=%dx%d grants=%d open_claims=%d digest=%s\n",
		checked, startSeq, w.CurrentSeq(), m.Width, m.Height, m.Grants, m.OpenClaims, w.StateDigest())
}

func startWorld(snapPath, worldID, tuningPath string) (*world.World, error) {
	if snapPath == "" {
		tune, err := tuning.Load(tuningPath)
		if err != nil {
			return nil, fmt.Errorf("load tuning: %w", err)
		}
		return world.New(world.WorldConfig{
			ID:         worldID,
			Width:      tune.Map.Width,
			Height:     tune.Map.Height,
			AutoExtend: tune.AutoExtend,
		})
	}

	snap, err := snapshot.ReadSnapshot(snapPath)
	if err != nil {
		return nil, fmt.Errorf("read snapshot: %w", err)
	}
	fmt.Printf("snapshot v%d world=%s seq=%d map=%dx%d grants=%d claims=%d ballots=%d\n",
		snap.Header.Version, snap.Header.WorldID, snap.Header.Seq, snap.Width, snap.Height,
		len(snap.Grants), len(snap.Claims), len(snap.Ballots))

	w, err := world.New(world.WorldConfig{ID: snap.Header.WorldID, Width: snap.Width, Height: snap.Height, AutoExtend: snap.AutoExtend})
	if err != nil {
		return nil, fmt.Errorf("world: %w", err)
	}
	if err := w.ImportSnapshot(snap); err != nil {
		return nil, fmt.Errorf("import snapshot: %w", err)
	}
	return w, nil
}

// replay re-applies logged commands after the world's current seq and checks
// every recorded outcome. Digests are compared from verifyFrom on.
func replay(w *world.World, entries []world.CommandLogEntry, verifyFrom, toSeq uint64) (checked uint64, err error) {
	for _, e := range entries {
		if e.Seq <= w.CurrentSeq() {
			continue
		}
		if toSeq != 0 && e.Seq > toSeq {
			break
		}
		if e.Seq != w.CurrentSeq()+1 {
			return checked, fmt.Errorf("seq gap: want=%d got=%d", w.CurrentSeq()+1, e.Seq)
		}
		resp := w.Apply(e.Caller, e.Req)
		if resp.Seq != e.Seq {
			return checked, fmt.Errorf("seq %d: command %s did not advance the world", e.Seq, e.Req.Op)
		}
		if resp.Code != e.Code {
			return checked, fmt.Errorf("code mismatch at seq %d: got=%q want=%q", e.Seq, resp.Code, e.Code)
		}
		if e.Seq >= verifyFrom {
			checked++
			if got := w.StateDigest(); got != e.Digest {
				return checked, fmt.Errorf("digest mismatch at seq %d: got=%s want=%s", e.Seq, got, e.Digest)
			}
		}
	}
	return checked, nil
}
