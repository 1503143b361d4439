package main

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"landvote.ai/internal/persistence/snapshot"
	"landvote.ai/internal/protocol"
	"landvote.ai/internal/sim/tuning"
	"landvote.ai/internal/sim/world"
	"landvote.ai/internal/transport/ws"
)

func newTestMux(t *testing.T) (*httptest.Server, *world.World, chan snapshot.SnapshotV1) {
	t.Helper()
	t.Setenv("LV_ENABLE_ADMIN_HTTP", "true")
	w, err := world.New(world.WorldConfig{ID: "land_test", Width: 6, Height: 5})
	if err != nil {
		t.Fatalf("world: %v", err)
	}
	sink := make(chan snapshot.SnapshotV1, 1)
	w.SetSnapshotSink(sink)
	hub := ws.NewHub()
	w.SetEventSink(hub.Publish)

	ctx, cancel := context.WithCancel(context.Background())
	go func() { _ = w.Run(ctx) }()

	srv := httptest.NewServer(newMux(w, hub, nil, tuning.Defaults(), nil))
	t.Cleanup(func() {
		srv.Close()
		cancel()
	})
	return srv, w, sink
}

func get(t *testing.T, url string) string {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		t.Fatalf("GET %s: %v", url, err)
	}
	defer resp.Body.Close()
	b, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("GET %s: status=%d body=%s", url, resp.StatusCode, b)
	}
	return string(b)
}

func TestMux_HealthAndMetrics(t *testing.T) {
	srv, w, _ := newTestMux(t)
	if body := get(t, srv.URL+"/healthz"); body != "ok" {
		t.Fatalf("healthz=%q", body)
	}

	resp := make(chan protocol.RespMsg, 1)
	w.Inbox() <- world.CommandEnvelope{Caller: "A", Req: protocol.ReqMsg{Op: protocol.OpRequestLand, X2: 2, Y2: 2}, Resp: resp}
	if r := <-resp; !r.OK {
		t.Fatalf("request land: %+v", r)
	}

	body := get(t, srv.URL+"/metrics")
	for _, want := range []string{
		`landvote_world_seq{world="land_test"} 1`,
		`landvote_open_claims{world="land_test"} 1`,
		`landvote_map_size{world="land_test",dim="width"} 6`,
	} {
		if !strings.Contains(body, want) {
			t.Fatalf("metrics missing %q:\n%s", want, body)
		}
	}
}

func TestMux_AdminStateAndSnapshot(t *testing.T) {
	srv, _, sink := newTestMux(t)

	var state struct {
		WorldID string             `json:"world_id"`
		Metrics world.WorldMetrics `json:"metrics"`
	}
	if err := json.Unmarshal([]byte(get(t, srv.URL+"/admin/v1/state")), &state); err != nil {
		t.Fatalf("decode state: %v", err)
	}
	if state.WorldID != "land_test" || state.Metrics.Height != 5 {
		t.Fatalf("state=%+v", state)
	}

	resp, err := http.Post(srv.URL+"/admin/v1/snapshot", "application/json", nil)
	if err != nil {
		t.Fatalf("POST snapshot: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("snapshot status=%d", resp.StatusCode)
	}
	snap := <-sink
	if snap.Header.WorldID != "land_test" || snap.Width != 6 {
		t.Fatalf("snapshot header=%+v width=%d", snap.Header, snap.Width)
	}
}

func TestLatestSnapshot_PicksHighestSeq(t *testing.T) {
	dir := t.TempDir()
	snaps := filepath.Join(dir, "snapshots")
	if err := os.MkdirAll(snaps, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	for _, name := range []string{"9.snap.zst", "100.snap.zst", "20.snap.zst", "notes.txt", "x.snap.zst"} {
		if err := os.WriteFile(filepath.Join(snaps, name), nil, 0o644); err != nil {
			t.Fatalf("write: %v", err)
		}
	}
	if got := latestSnapshot(dir); filepath.Base(got) != "100.snap.zst" {
		t.Fatalf("latest=%q", got)
	}
	if got := latestSnapshot(t.TempDir()); got != "" {
		t.Fatalf("empty dir latest=%q", got)
	}
}
