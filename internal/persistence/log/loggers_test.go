package log

import (
	"errors"
	"path/filepath"
	"testing"
	"time"

	"landvote.ai/internal/protocol"
	"landvote.ai/internal/sim/world"
)

func TestCommandLogger_WriteThenRead(t *testing.T) {
	dir := t.TempDir()
	l := NewCommandLogger(dir)
	for i := 3; i >= 1; i-- {
		e := world.CommandLogEntry{
			Seq:    uint64(i),
			Caller: "A",
			Req:    protocol.ReqMsg{Type: protocol.TypeReq, Op: protocol.OpRequestLand, X2: i, Y2: i},
			Digest: "d",
		}
		if err := l.WriteCommand(e); err != nil {
			t.Fatalf("write: %v", err)
		}
	}
	if err := l.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	got, err := ReadCommands(dir)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("entries=%d want 3", len(got))
	}
	for i, e := range got {
		if e.Seq != uint64(i+1) || e.Req.X2 != i+1 || e.Caller != "A" {
			t.Fatalf("entry %d=%+v", i, e)
		}
	}
}

func TestCommandLogger_ReadableBeforeClose(t *testing.T) {
	dir := t.TempDir()
	l := NewCommandLogger(dir)
	defer l.Close()
	if err := l.WriteCommand(world.CommandLogEntry{Seq: 1, Caller: "A", Req: protocol.ReqMsg{Op: protocol.OpVote}}); err != nil {
		t.Fatalf("write: %v", err)
	}
	got, err := ReadCommands(dir)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if len(got) != 1 || got[0].Req.Op != protocol.OpVote {
		t.Fatalf("got=%+v", got)
	}
}

func TestAuditLogger_WriteThenRead(t *testing.T) {
	dir := t.TempDir()
	l := NewAuditLogger(dir)
	if err := l.WriteAudit(world.AuditEntry{Seq: 3, Actor: "A", Action: "LAND_GRANTED", Rect: [4]int{0, 0, 3, 3}}); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := l.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	got, err := ReadAudits(dir)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if len(got) != 1 || got[0].Action != "LAND_GRANTED" || got[0].Rect[3] != 3 {
		t.Fatalf("got=%+v", got)
	}
}

func TestReadCommands_EmptyDir(t *testing.T) {
	got, err := ReadCommands(t.TempDir())
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("got=%d entries", len(got))
	}
}

func TestCommandLogger_RotatesHourlyAndAppendsOnReopen(t *testing.T) {
	dir := t.TempDir()
	clock := time.Date(2026, 3, 1, 9, 59, 0, 0, time.UTC)

	write := func(l *CommandLogger, seq uint64) {
		t.Helper()
		if err := l.WriteCommand(world.CommandLogEntry{Seq: seq, Caller: "A", Req: protocol.ReqMsg{Op: protocol.OpVote}}); err != nil {
			t.Fatalf("write %d: %v", seq, err)
		}
	}

	l := NewCommandLogger(dir)
	l.seg.now = func() time.Time { return clock }
	write(l, 1)
	clock = clock.Add(2 * time.Minute) // 10:01
	write(l, 2)
	if err := l.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	// A restarted writer in the same hour appends to the existing segment.
	l = NewCommandLogger(dir)
	l.seg.now = func() time.Time { return clock }
	write(l, 3)
	if err := l.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	files, err := filepath.Glob(filepath.Join(dir, "commands", "*"))
	if err != nil {
		t.Fatalf("glob: %v", err)
	}
	want := []string{"commands-2026-03-01-09.jsonl.zst", "commands-2026-03-01-10.jsonl.zst"}
	if len(files) != len(want) {
		t.Fatalf("files=%v", files)
	}
	for i, f := range files {
		if filepath.Base(f) != want[i] {
			t.Fatalf("file %d=%s want %s", i, filepath.Base(f), want[i])
		}
	}

	got, err := ReadCommands(dir)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if len(got) != 3 || got[0].Seq != 1 || got[2].Seq != 3 {
		t.Fatalf("got=%+v", got)
	}
}

func TestAuditLogger_WriteAfterClose(t *testing.T) {
	l := NewAuditLogger(t.TempDir())
	if err := l.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if err := l.Close(); err != nil {
		t.Fatalf("second close: %v", err)
	}
	if err := l.WriteAudit(world.AuditEntry{Seq: 1, Action: "CLAIM_OPENED"}); !errors.Is(err, ErrClosed) {
		t.Fatalf("err=%v want ErrClosed", err)
	}
}
