package indexdb

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	_ "modernc.org/sqlite"

	"landvote.ai/internal/persistence/snapshot"
	"landvote.ai/internal/sim/land"
	"landvote.ai/internal/sim/tuning"
	"landvote.ai/internal/sim/world"
)

// SQLiteIndex is a queryable read model of the command and audit streams.
// Writes are queued to a single writer goroutine and dropped when the queue
// is full; the JSONL logs remain the source of truth.
type SQLiteIndex struct {
	db *sql.DB

	stmts statements

	// mu orders enqueues against Close so a send never hits a closed ch.
	mu     sync.RWMutex
	ch     chan req
	wg     sync.WaitGroup
	once   sync.Once
	closed atomic.Bool

	dropCommand       atomic.Uint64
	dropAudit         atomic.Uint64
	dropSnapshot      atomic.Uint64
	dropSnapshotState atomic.Uint64
}

type Stats struct {
	QueueDepth    int
	QueueCapacity int

	DropCommandTotal       uint64
	DropAuditTotal         uint64
	DropSnapshotTotal      uint64
	DropSnapshotStateTotal uint64
}

type reqKind int

const (
	reqCommand reqKind = iota + 1
	reqAudit
	reqSnapshot
	reqSnapshotState
)

type req struct {
	kind reqKind

	command  world.CommandLogEntry
	audit    world.AuditEntry
	snapshot snapshotRow
	state    snapshot.SnapshotV1
}

type snapshotRow struct {
	Seq        uint64
	Path       string
	Digest     string
	Width      int
	Height     int
	Grants     int
	Claims     int
	OpenClaims int
	Ballots    int
}

func OpenSQLite(path string) (*SQLiteIndex, error) {
	if path == "" {
		return nil, fmt.Errorf("empty db path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := initPragmas(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	st, err := prepareStatements(db)
	if err != nil {
		_ = db.Close()
		return nil, err
	}

	s := &SQLiteIndex{
		db:    db,
		stmts: st,
		ch:    make(chan req, 65536),
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.loop()
	}()
	return s, nil
}

func initPragmas(db *sql.DB) error {
	// WAL suits the append-only workload.
	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA foreign_keys=ON;",
		"PRAGMA busy_timeout=5000;",
		"PRAGMA temp_store=MEMORY;",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return err
		}
	}
	return nil
}

func initSchema(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS meta (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS config (
			name TEXT PRIMARY KEY,
			digest TEXT NOT NULL,
			json TEXT NOT NULL,
			updated_at TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS commands (
			seq INTEGER PRIMARY KEY,
			caller TEXT NOT NULL,
			op TEXT NOT NULL,
			ballot_id TEXT,
			code TEXT,
			digest TEXT NOT NULL,
			req_json TEXT NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_commands_caller_seq ON commands(caller, seq);`,
		`CREATE TABLE IF NOT EXISTS audits (
			seq INTEGER NOT NULL,
			idx INTEGER NOT NULL,
			actor TEXT NOT NULL,
			action TEXT NOT NULL,
			ballot_id TEXT,
			x1 INTEGER NOT NULL,
			y1 INTEGER NOT NULL,
			x2 INTEGER NOT NULL,
			y2 INTEGER NOT NULL,
			width INTEGER NOT NULL,
			height INTEGER NOT NULL,
			reason TEXT,
			raw_json TEXT NOT NULL,
			PRIMARY KEY (seq, idx)
		);`,
		`CREATE INDEX IF NOT EXISTS idx_audits_actor_seq ON audits(actor, seq);`,
		`CREATE INDEX IF NOT EXISTS idx_audits_ballot ON audits(ballot_id);`,
		`CREATE TABLE IF NOT EXISTS grants (
			idx INTEGER PRIMARY KEY,
			owner TEXT NOT NULL,
			x1 INTEGER NOT NULL,
			y1 INTEGER NOT NULL,
			x2 INTEGER NOT NULL,
			y2 INTEGER NOT NULL,
			as_of_seq INTEGER NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_grants_owner ON grants(owner);`,
		`CREATE TABLE IF NOT EXISTS snapshots (
			seq INTEGER PRIMARY KEY,
			path TEXT NOT NULL,
			digest TEXT NOT NULL,
			width INTEGER NOT NULL,
			height INTEGER NOT NULL,
			grants INTEGER NOT NULL,
			claims INTEGER NOT NULL,
			open_claims INTEGER NOT NULL,
			ballots INTEGER NOT NULL
		);`,
	}
	for _, s := range stmts {
		if _, err := db.Exec(s); err != nil {
			return err
		}
	}
	return nil
}

func (s *SQLiteIndex) Close() error {
	var err error
	s.once.Do(func() {
		s.mu.Lock()
		s.closed.Store(true)
		close(s.ch)
		s.mu.Unlock()

		s.wg.Wait()
		s.stmts.close()
		err = s.db.Close()
	})
	return err
}

func (s *SQLiteIndex) Stats() Stats {
	if s == nil {
		return Stats{}
	}
	return Stats{
		QueueDepth:             len(s.ch),
		QueueCapacity:          cap(s.ch),
		DropCommandTotal:       s.dropCommand.Load(),
		DropAuditTotal:         s.dropAudit.Load(),
		DropSnapshotTotal:      s.dropSnapshot.Load(),
		DropSnapshotStateTotal: s.dropSnapshotState.Load(),
	}
}

func (s *SQLiteIndex) enqueue(r req) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed.Load() {
		return
	}
	select {
	case s.ch <- r:
	default:
		s.dropCounter(r.kind).Add(1)
	}
}

func (s *SQLiteIndex) dropCounter(k reqKind) *atomic.Uint64 {
	switch k {
	case reqCommand:
		return &s.dropCommand
	case reqAudit:
		return &s.dropAudit
	case reqSnapshot:
		return &s.dropSnapshot
	default:
		return &s.dropSnapshotState
	}
}

func (s *SQLiteIndex) WriteCommand(entry world.CommandLogEntry) error {
	if s == nil || s.closed.Load() {
		return nil
	}
	s.enqueue(req{kind: reqCommand, command: entry})
	return nil
}

func (s *SQLiteIndex) WriteAudit(entry world.AuditEntry) error {
	if s == nil || s.closed.Load() {
		return nil
	}
	s.enqueue(req{kind: reqAudit, audit: entry})
	return nil
}

func (s *SQLiteIndex) RecordSnapshot(path string, snap snapshot.SnapshotV1) {
	if s == nil || s.closed.Load() {
		return
	}
	r := snapshotRow{
		Seq:     snap.Header.Seq,
		Path:    path,
		Digest:  snap.Header.Digest,
		Width:   snap.Width,
		Height:  snap.Height,
		Grants:  len(snap.Grants),
		Claims:  len(snap.Claims),
		Ballots: len(snap.Ballots),
	}
	for _, c := range snap.Claims {
		if c.Status == string(land.StatusOpen) {
			r.OpenClaims++
		}
	}
	s.enqueue(req{kind: reqSnapshot, snapshot: r})
}

// RecordSnapshotState replaces the grants table with the snapshot's grants.
func (s *SQLiteIndex) RecordSnapshotState(snap snapshot.SnapshotV1) {
	if s == nil || s.closed.Load() {
		return
	}
	s.enqueue(req{kind: reqSnapshotState, state: snap})
}

// UpsertTuning stores the effective configuration. It writes synchronously,
// outside the queue, and must run at startup before any queued write.
func (s *SQLiteIndex) UpsertTuning(tune tuning.Tuning) error {
	if s == nil {
		return nil
	}
	b, err := json.Marshal(tune)
	if err != nil {
		return err
	}
	sum := sha256.Sum256(b)
	now := time.Now().UTC().Format(time.RFC3339Nano)

	tx, err := s.db.BeginTx(context.Background(), nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.Exec(`INSERT OR REPLACE INTO meta(key,value) VALUES('schema_version','1')`); err != nil {
		return err
	}
	if _, err := tx.Exec(`INSERT OR REPLACE INTO config(name,digest,json,updated_at) VALUES(?,?,?,?)`,
		"tuning", hex.EncodeToString(sum[:]), string(b), now); err != nil {
		return err
	}
	return tx.Commit()
}

type statements struct {
	insertCommand  *sql.Stmt
	insertAudit    *sql.Stmt
	insertSnapshot *sql.Stmt
	insertGrant    *sql.Stmt
}

func prepareStatements(db *sql.DB) (statements, error) {
	var st statements
	var err error
	prep := func(q string) *sql.Stmt {
		if err != nil {
			return nil
		}
		var stmt *sql.Stmt
		stmt, err = db.Prepare(q)
		return stmt
	}
	st.insertCommand = prep(`INSERT OR REPLACE INTO commands(seq,caller,op,ballot_id,code,digest,req_json) VALUES(?,?,?,?,?,?,?)`)
	st.insertAudit = prep(`INSERT OR REPLACE INTO audits(seq,idx,actor,action,ballot_id,x1,y1,x2,y2,width,height,reason,raw_json) VALUES(?,?,?,?,?,?,?,?,?,?,?,?,?)`)
	st.insertSnapshot = prep(`INSERT OR REPLACE INTO snapshots(seq,path,digest,width,height,grants,claims,open_claims,ballots) VALUES(?,?,?,?,?,?,?,?,?)`)
	st.insertGrant = prep(`INSERT OR REPLACE INTO grants(idx,owner,x1,y1,x2,y2,as_of_seq) VALUES(?,?,?,?,?,?,?)`)
	if err != nil {
		st.close()
		return statements{}, fmt.Errorf("prepare: %w", err)
	}
	return st, nil
}

func (st statements) close() {
	for _, stmt := range []*sql.Stmt{st.insertCommand, st.insertAudit, st.insertSnapshot, st.insertGrant} {
		if stmt != nil {
			_ = stmt.Close()
		}
	}
}

func (s *SQLiteIndex) loop() {
	ctx := context.Background()

	var (
		tx            *sql.Tx
		opCount       int
		lastCommit    = time.Now()
		commitEvery   = 500
		commitMaxWait = time.Second

		// Requests written into tx but not yet committed, by kind.
		pending map[reqKind]uint64

		lastAuditSeq uint64
		auditIdx     int
	)

	begin := func() bool {
		if tx != nil {
			return true
		}
		txx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			time.Sleep(50 * time.Millisecond)
			return false
		}
		tx = txx
		opCount = 0
		pending = map[reqKind]uint64{}
		lastCommit = time.Now()
		return true
	}
	// lose counts every uncommitted request of tx as dropped.
	lose := func() {
		for k, n := range pending {
			s.dropCounter(k).Add(n)
		}
		pending = nil
		tx = nil
		opCount = 0
		lastCommit = time.Now()
	}
	commit := func() {
		if tx == nil {
			return
		}
		if err := tx.Commit(); err != nil {
			lose()
			return
		}
		pending = nil
		tx = nil
		opCount = 0
		lastCommit = time.Now()
	}
	rollback := func() {
		if tx == nil {
			return
		}
		_ = tx.Rollback()
		lose()
	}
	flushIfNeeded := func() {
		if tx == nil {
			return
		}
		if opCount >= commitEvery || time.Since(lastCommit) >= commitMaxWait {
			commit()
		}
	}

	for r := range s.ch {
		if !begin() {
			s.dropCounter(r.kind).Add(1)
			continue
		}
		var err error
		switch r.kind {
		case reqCommand:
			c := r.command
			raw, _ := json.Marshal(c.Req)
			_, err = tx.Stmt(s.stmts.insertCommand).Exec(
				int64(c.Seq),
				c.Caller,
				c.Req.Op,
				c.Req.BallotID,
				c.Code,
				c.Digest,
				string(raw),
			)

		case reqAudit:
			a := r.audit
			// Several audits may share one command seq.
			if a.Seq != lastAuditSeq {
				lastAuditSeq = a.Seq
				auditIdx = 0
			}
			idx := auditIdx
			auditIdx++
			raw, _ := json.Marshal(a)
			_, err = tx.Stmt(s.stmts.insertAudit).Exec(
				int64(a.Seq),
				idx,
				a.Actor,
				a.Action,
				a.BallotID,
				a.Rect[0], a.Rect[1], a.Rect[2], a.Rect[3],
				a.Width,
				a.Height,
				a.Reason,
				string(raw),
			)

		case reqSnapshot:
			sn := r.snapshot
			_, err = tx.Stmt(s.stmts.insertSnapshot).Exec(
				int64(sn.Seq),
				sn.Path,
				sn.Digest,
				sn.Width,
				sn.Height,
				sn.Grants,
				sn.Claims,
				sn.OpenClaims,
				sn.Ballots,
			)

		case reqSnapshotState:
			snap := r.state
			if _, err = tx.Exec(`DELETE FROM grants`); err != nil {
				break
			}
			for i, g := range snap.Grants {
				if _, err = tx.Stmt(s.stmts.insertGrant).Exec(i, g.Owner, g.Rect[0], g.Rect[1], g.Rect[2], g.Rect[3], int64(snap.Header.Seq)); err != nil {
					break
				}
			}
		}
		if err != nil {
			s.dropCounter(r.kind).Add(1)
			rollback()
			continue
		}
		pending[r.kind]++
		opCount++
		flushIfNeeded()
	}

	commit()
}
