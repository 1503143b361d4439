package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	persistlog "landvote.ai/internal/persistence/log"
	"landvote.ai/internal/persistence/snapshot"
	"landvote.ai/internal/sim/tuning"
	"landvote.ai/internal/sim/world"
	"landvote.ai/internal/transport/ws"
)

func main() {
	var (
		addr       = flag.String("addr", ":8080", "http listen address")
		worldID    = flag.String("world", "land_1", "world id")
		tuningPath = flag.String("tuning", "./configs/land.yaml", "path to land.yaml")
		dataDir    = flag.String("data", "./data", "runtime data directory")
		disableDB  = flag.Bool("disable_db", false, "disable the sqlite index (commands/audits/snapshot metadata)")

		snapPath   = flag.String("snapshot", "", "path to snapshot to load (optional)")
		loadLatest = flag.Bool("load_latest_snapshot", true, "load latest snapshot from data dir if present (when -snapshot is empty)")
	)
	flag.Parse()

	logger := log.New(os.Stdout, "[server] ", log.LstdFlags|log.Lmicroseconds)

	worldDir := filepath.Join(*dataDir, "worlds", *worldID)
	_ = os.MkdirAll(worldDir, 0o755)

	snapshotToLoad := strings.TrimSpace(*snapPath)
	if snapshotToLoad == "" && *loadLatest {
		snapshotToLoad = latestSnapshot(worldDir)
	}

	// Required for a fresh world; a resume takes the map from the snapshot.
	tune, err := tuning.Load(*tuningPath)
	if err != nil {
		if snapshotToLoad == "" || !os.IsNotExist(err) {
			logger.Fatalf("load tuning: %v", err)
		}
		logger.Printf("tuning not found (%s); using defaults", *tuningPath)
		tune = tuning.Defaults()
	}

	idx, err := openRuntimeIndex(worldDir, *disableDB)
	if err != nil {
		logger.Fatalf("open index backend: %v", err)
	}
	if idx != nil {
		defer idx.Close()
		if err := idx.UpsertTuning(tune); err != nil {
			logger.Printf("index backend: upsert tuning: %v", err)
		}
	}

	w, err := world.New(world.WorldConfig{
		ID:                    *worldID,
		Width:                 tune.Map.Width,
		Height:                tune.Map.Height,
		AutoExtend:            tune.AutoExtend,
		SnapshotEveryCommands: tune.SnapshotEveryCommands,
	})
	if err != nil {
		logger.Fatalf("world: %v", err)
	}
	if snapshotToLoad != "" {
		snap, err := snapshot.ReadSnapshot(snapshotToLoad)
		if err != nil {
			logger.Fatalf("read snapshot: %v", err)
		}
		if snap.Header.WorldID != "" && snap.Header.WorldID != *worldID {
			logger.Fatalf("snapshot world id mismatch: flag=%s snap=%s", *worldID, snap.Header.WorldID)
		}
		if err := w.ImportSnapshot(snap); err != nil {
			logger.Fatalf("import snapshot: %v", err)
		}
		logger.Printf("resumed from snapshot=%s seq=%d map=%dx%d", filepath.Base(snapshotToLoad), w.CurrentSeq(), snap.Width, snap.Height)
	}

	ctx, cancel := signalContext()
	defer cancel()

	commandLog := persistlog.NewCommandLogger(worldDir)
	auditLog := persistlog.NewAuditLogger(worldDir)
	defer commandLog.Close()
	defer auditLog.Close()
	w.SetCommandLogger(multiCommandLogger{a: commandLog, b: idx})
	w.SetAuditLogger(multiAuditLogger{a: auditLog, b: idx})

	hub := ws.NewHub()
	w.SetEventSink(hub.Publish)

	// Snapshot writer.
	snapCh := make(chan snapshot.SnapshotV1, 2)
	w.SetSnapshotSink(snapCh)
	snapDone := make(chan struct{})
	go func() {
		defer close(snapDone)
		for {
			select {
			case <-ctx.Done():
				return
			case snap := <-snapCh:
				path := filepath.Join(worldDir, "snapshots", fmt.Sprintf("%d.snap.zst", snap.Header.Seq))
				if err := snapshot.WriteSnapshot(path, snap); err != nil {
					logger.Printf("snapshot write: %v", err)
					continue
				}
				if idx != nil {
					idx.RecordSnapshot(path, snap)
					idx.RecordSnapshotState(snap)
				}
			}
		}
	}()

	worldDone := make(chan struct{})
	go func() {
		defer close(worldDone)
		if err := w.Run(ctx); err != nil && err != context.Canceled {
			logger.Printf("world stopped: %v", err)
		}
	}()

	mux := newMux(w, hub, idx, tune, logger)
	srv := &http.Server{
		Addr:              *addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		ctx2, cancel2 := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel2()
		_ = srv.Shutdown(ctx2)
	}()

	logger.Printf("listening on %s world=%s map=%dx%d auto_extend=%v", *addr, *worldID, w.Config().Width, w.Config().Height, w.Config().AutoExtend)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Fatalf("ListenAndServe: %v", err)
	}

	// The loggers and the index are closed by the defers above; nothing may
	// write to them once this returns.
	cancel()
	<-worldDone
	<-snapDone
	logger.Printf("stopped at seq=%d", w.Metrics().Seq)
}

func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	ch := make(chan os.Signal, 2)
	signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-ch
		cancel()
	}()
	return ctx, cancel
}

func latestSnapshot(worldDir string) string {
	dir := filepath.Join(worldDir, "snapshots")
	ents, err := os.ReadDir(dir)
	if err != nil {
		return ""
	}
	var best string
	var bestSeq uint64
	for _, e := range ents {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if !strings.HasSuffix(name, ".snap.zst") {
			continue
		}
		base := strings.TrimSuffix(name, ".snap.zst")
		seq, err := strconv.ParseUint(base, 10, 64)
		if err != nil {
			continue
		}
		if best == "" || seq > bestSeq {
			bestSeq = seq
			best = filepath.Join(dir, name)
		}
	}
	return best
}
