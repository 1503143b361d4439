package main

import (
	"bytes"
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	"landvote.ai/internal/persistence/indexdb"
	"landvote.ai/internal/persistence/snapshot"
	"landvote.ai/internal/protocol"
	"landvote.ai/internal/sim/tuning"
	"landvote.ai/internal/sim/world"
)

func testSnapshot(seq uint64) snapshot.SnapshotV1 {
	return snapshot.SnapshotV1{
		Header: snapshot.Header{Version: snapshot.Version, WorldID: "land_1", Seq: seq, Digest: "abc"},
		Width:  8,
		Height: 8,
		Grants: []snapshot.GrantV1{
			{Owner: "A", Rect: [4]int{0, 0, 3, 3}},
			{Owner: "B", Rect: [4]int{3, 0, 6, 5}},
			{Owner: "A", Rect: [4]int{7, 7, 8, 8}},
		},
		Claims: []snapshot.ClaimV1{
			{Handle: 0, Claimant: "A", Kind: "GRANT", Rect: [4]int{0, 0, 3, 3}, BallotID: "B000001", Status: "APPROVED"},
			{Handle: 1, Claimant: "C", Kind: "GRANT", Rect: [4]int{0, 3, 2, 5}, BallotID: "B000002", Status: "OPEN"},
		},
		Ballots: []snapshot.BallotV1{
			{BallotID: "B000001", Chairperson: "A"},
			{BallotID: "B000002", Chairperson: "C"},
		},
	}
}

func TestLatestSnapshotAndSummarize(t *testing.T) {
	worldDir := filepath.Join(t.TempDir(), "worlds", "land_1")
	if got := latestSnapshot(worldDir); got != "" {
		t.Fatalf("latestSnapshot on empty dir = %q", got)
	}
	for _, seq := range []uint64{3, 12, 9} {
		p := filepath.Join(worldDir, "snapshots", strconv.FormatUint(seq, 10)+".snap.zst")
		if err := snapshot.WriteSnapshot(p, testSnapshot(seq)); err != nil {
			t.Fatalf("WriteSnapshot: %v", err)
		}
	}
	latest := latestSnapshot(worldDir)
	if filepath.Base(latest) != "12.snap.zst" {
		t.Fatalf("latest=%q", latest)
	}

	s, err := summarize(latest)
	if err != nil {
		t.Fatalf("summarize: %v", err)
	}
	if s.Seq != 12 || s.WorldID != "land_1" || s.Width != 8 || s.Height != 8 {
		t.Fatalf("header: %+v", s)
	}
	if s.Grants != 3 || s.Owners != 2 || s.Claims != 2 || s.OpenClaims != 1 || s.Ballots != 2 {
		t.Fatalf("counts: grants=%d owners=%d claims=%d open=%d ballots=%d", s.Grants, s.Owners, s.Claims, s.OpenClaims, s.Ballots)
	}
	if s.Size == 0 {
		t.Fatalf("expected non-zero size")
	}
}

func TestRunQuery(t *testing.T) {
	dataDir := t.TempDir()
	path := indexPath(dataDir, "land_1")
	idx, err := indexdb.OpenSQLite(path)
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	if err := idx.UpsertTuning(tuning.Defaults()); err != nil {
		t.Fatalf("UpsertTuning: %v", err)
	}
	_ = idx.WriteCommand(world.CommandLogEntry{Seq: 1, Caller: "A", Req: protocol.ReqMsg{Op: protocol.OpRequestLand, X2: 3, Y2: 3}, Digest: "d1"})
	_ = idx.WriteCommand(world.CommandLogEntry{Seq: 2, Caller: "A", Req: protocol.ReqMsg{Op: protocol.OpVote, BallotID: "B000001"}, Digest: "d2"})
	_ = idx.WriteCommand(world.CommandLogEntry{Seq: 3, Caller: "B", Req: protocol.ReqMsg{Op: protocol.OpVote, BallotID: "B000001"}, Code: protocol.ErrNoRightToVote, Digest: "d3"})
	_ = idx.WriteAudit(world.AuditEntry{Seq: 4, Actor: "A", Action: "LAND_GRANTED", BallotID: "B000001", Rect: [4]int{0, 0, 3, 3}, Width: 8, Height: 8})
	snap := testSnapshot(4)
	idx.RecordSnapshot("snapshots/4.snap.zst", snap)
	idx.RecordSnapshotState(snap)
	if err := idx.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		t.Fatalf("sql.Open: %v", err)
	}
	defer db.Close()

	lines := func(q string, opts queryOpts) []map[string]any {
		t.Helper()
		var buf bytes.Buffer
		if err := runQuery(db, q, opts, &buf); err != nil {
			t.Fatalf("runQuery(%s): %v", q, err)
		}
		var out []map[string]any
		for _, l := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
			if l == "" {
				continue
			}
			var m map[string]any
			if err := json.Unmarshal([]byte(l), &m); err != nil {
				t.Fatalf("decode %q: %v", l, err)
			}
			out = append(out, m)
		}
		return out
	}

	cmds := lines("commands", queryOpts{Caller: "A"})
	if len(cmds) != 2 || cmds[0]["seq"] != float64(2) || cmds[1]["op"] != protocol.OpRequestLand {
		t.Fatalf("commands by caller: %v", cmds)
	}
	failed := lines("commands", queryOpts{Caller: "B", BallotID: "B000001"})
	if len(failed) != 1 || failed[0]["code"] != protocol.ErrNoRightToVote {
		t.Fatalf("commands by ballot: %v", failed)
	}

	audits := lines("audits", queryOpts{})
	if len(audits) != 1 || audits[0]["action"] != "LAND_GRANTED" {
		t.Fatalf("audits: %v", audits)
	}

	grants := lines("grants", queryOpts{Owner: "A"})
	if len(grants) != 2 || grants[1]["idx"] != float64(2) || grants[1]["as_of_seq"] != float64(4) {
		t.Fatalf("grants: %v", grants)
	}

	snaps := lines("snapshots", queryOpts{Limit: 1})
	if len(snaps) != 1 || snaps[0]["open_claims"] != float64(1) || snaps[0]["grants"] != float64(3) {
		t.Fatalf("snapshots: %v", snaps)
	}

	cfg := lines("config", queryOpts{})
	if len(cfg) != 1 || cfg[0]["name"] != "tuning" || cfg[0]["updated"] == nil {
		t.Fatalf("config: %v", cfg)
	}

	counts := lines("counts", queryOpts{})
	if len(counts) != 1 || counts[0]["commands"] != "3" || counts[0]["grants"] != "3" {
		t.Fatalf("counts: %v", counts)
	}

	if err := runQuery(db, "agents", queryOpts{}, &bytes.Buffer{}); err == nil || !strings.HasPrefix(err.Error(), "unknown query") {
		t.Fatalf("expected unknown query error, got %v", err)
	}
}

func TestAdminCall(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.URL.Path == "/admin/v1/state" && r.Method == http.MethodGet:
			_, _ = w.Write([]byte(`{"seq":7}` + "\n"))
		case r.URL.Path == "/admin/v1/snapshot" && r.Method == http.MethodPost:
			http.Error(w, "snapshot writer busy", http.StatusServiceUnavailable)
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	var out bytes.Buffer
	if code := adminCall(http.MethodGet, srv.URL+"/", "/admin/v1/state", 0, &out); code != 0 {
		t.Fatalf("state exit=%d", code)
	}
	if strings.TrimSpace(out.String()) != `{"seq":7}` {
		t.Fatalf("state body=%q", out.String())
	}

	out.Reset()
	if code := adminCall(http.MethodPost, srv.URL, "/admin/v1/snapshot", 0, &out); code != 1 {
		t.Fatalf("snapshot exit=%d", code)
	}
	if !strings.Contains(out.String(), "busy") {
		t.Fatalf("snapshot body=%q", out.String())
	}
}
