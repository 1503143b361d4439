package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"landvote.ai/internal/persistence/indexdb"
	"landvote.ai/internal/persistence/snapshot"
	"landvote.ai/internal/sim/tuning"
	"landvote.ai/internal/sim/world"
)

type runtimeIndex interface {
	world.CommandLogger
	world.AuditLogger
	Close() error
	UpsertTuning(tune tuning.Tuning) error
	RecordSnapshot(path string, snap snapshot.SnapshotV1)
	RecordSnapshotState(snap snapshot.SnapshotV1)
	Stats() indexdb.Stats
}

func openRuntimeIndex(worldDir string, disableDB bool) (runtimeIndex, error) {
	if disableDB {
		return nil, nil
	}

	backend := strings.ToLower(strings.TrimSpace(os.Getenv("LV_INDEX_BACKEND")))
	if backend == "" {
		backend = "sqlite"
	}

	switch backend {
	case "none", "off", "disabled":
		return nil, nil
	case "sqlite":
		dbPath := filepath.Join(worldDir, "index", "land.sqlite")
		return indexdb.OpenSQLite(dbPath)
	default:
		return nil, fmt.Errorf("unsupported LV_INDEX_BACKEND: %s", backend)
	}
}

type multiCommandLogger struct {
	a world.CommandLogger
	b world.CommandLogger
}

func (m multiCommandLogger) WriteCommand(entry world.CommandLogEntry) error {
	if m.a != nil {
		_ = m.a.WriteCommand(entry)
	}
	if m.b != nil {
		_ = m.b.WriteCommand(entry)
	}
	return nil
}

type multiAuditLogger struct {
	a world.AuditLogger
	b world.AuditLogger
}

func (m multiAuditLogger) WriteAudit(entry world.AuditEntry) error {
	if m.a != nil {
		_ = m.a.WriteAudit(entry)
	}
	if m.b != nil {
		_ = m.b.WriteAudit(entry)
	}
	return nil
}

func envBool(key string, def bool) bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}
