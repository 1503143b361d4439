package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net"
	"net/http"
	"net/http/pprof"
	"os"
	"strings"
	"time"

	"landvote.ai/internal/sim/tuning"
	"landvote.ai/internal/sim/world"
	"landvote.ai/internal/transport/ws"
)

func newMux(w *world.World, hub *ws.Hub, idx runtimeIndex, tune tuning.Tuning, logger *log.Logger) *http.ServeMux {
	worldID := w.ID()
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(rw http.ResponseWriter, r *http.Request) {
		rw.WriteHeader(200)
		_, _ = rw.Write([]byte("ok"))
	})
	mux.HandleFunc("/metrics", func(rw http.ResponseWriter, r *http.Request) {
		rw.Header().Set("Content-Type", "text/plain; version=0.0.4")
		m := w.Metrics()

		// Minimal Prometheus exposition format.
		fmt.Fprintf(rw, "# HELP landvote_world_seq Applied mutating commands.\n")
		fmt.Fprintf(rw, "# TYPE landvote_world_seq counter\n")
		fmt.Fprintf(rw, "landvote_world_seq{world=%q} %d\n", worldID, m.Seq)

		fmt.Fprintf(rw, "# HELP landvote_map_size Current map dimensions.\n")
		fmt.Fprintf(rw, "# TYPE landvote_map_size gauge\n")
		fmt.Fprintf(rw, "landvote_map_size{world=%q,dim=%q} %d\n", worldID, "width", m.Width)
		fmt.Fprintf(rw, "landvote_map_size{world=%q,dim=%q} %d\n", worldID, "height", m.Height)

		fmt.Fprintf(rw, "# HELP landvote_grants Granted parcels.\n")
		fmt.Fprintf(rw, "# TYPE landvote_grants gauge\n")
		fmt.Fprintf(rw, "landvote_grants{world=%q} %d\n", worldID, m.Grants)

		fmt.Fprintf(rw, "# HELP landvote_owners Distinct owners.\n")
		fmt.Fprintf(rw, "# TYPE landvote_owners gauge\n")
		fmt.Fprintf(rw, "landvote_owners{world=%q} %d\n", worldID, m.Owners)

		fmt.Fprintf(rw, "# HELP landvote_open_claims Claims awaiting CHECK_BALLOT.\n")
		fmt.Fprintf(rw, "# TYPE landvote_open_claims gauge\n")
		fmt.Fprintf(rw, "landvote_open_claims{world=%q} %d\n", worldID, m.OpenClaims)

		fmt.Fprintf(rw, "# HELP landvote_queue_depth Channel backlog depth.\n")
		fmt.Fprintf(rw, "# TYPE landvote_queue_depth gauge\n")
		fmt.Fprintf(rw, "landvote_queue_depth{world=%q,queue=%q} %d\n", worldID, "inbox", m.InboxDepth)
		if idx != nil {
			st := idx.Stats()
			fmt.Fprintf(rw, "landvote_queue_depth{world=%q,queue=%q} %d\n", worldID, "index", st.QueueDepth)

			fmt.Fprintf(rw, "# HELP landvote_index_dropped_total Index writes dropped under back-pressure.\n")
			fmt.Fprintf(rw, "# TYPE landvote_index_dropped_total counter\n")
			fmt.Fprintf(rw, "landvote_index_dropped_total{world=%q,kind=%q} %d\n", worldID, "command", st.DropCommandTotal)
			fmt.Fprintf(rw, "landvote_index_dropped_total{world=%q,kind=%q} %d\n", worldID, "audit", st.DropAuditTotal)
			fmt.Fprintf(rw, "landvote_index_dropped_total{world=%q,kind=%q} %d\n", worldID, "snapshot", st.DropSnapshotTotal)
		}

		fmt.Fprintf(rw, "# HELP landvote_event_subscribers Sessions receiving events.\n")
		fmt.Fprintf(rw, "# TYPE landvote_event_subscribers gauge\n")
		fmt.Fprintf(rw, "landvote_event_subscribers{world=%q} %d\n", worldID, hub.Len())
	})

	enableAdminHTTP := envBool("LV_ENABLE_ADMIN_HTTP", defaultEnableAdminHTTP())
	enablePprofHTTP := envBool("LV_ENABLE_PPROF_HTTP", false)
	if enableAdminHTTP {
		// Local-only admin endpoints.
		mux.HandleFunc("/admin/v1/state", func(rw http.ResponseWriter, r *http.Request) {
			if !isLoopbackRemote(r.RemoteAddr) {
				http.Error(rw, "forbidden", http.StatusForbidden)
				return
			}
			rw.Header().Set("Content-Type", "application/json")
			resp := struct {
				WorldID string             `json:"world_id"`
				Seq     uint64             `json:"seq"`
				Metrics world.WorldMetrics `json:"metrics"`
				Tuning  tuning.Tuning      `json:"tuning"`
			}{
				WorldID: worldID,
				Seq:     w.Metrics().Seq,
				Metrics: w.Metrics(),
				Tuning:  tune,
			}
			_ = json.NewEncoder(rw).Encode(resp)
		})
		mux.HandleFunc("/admin/v1/snapshot", func(rw http.ResponseWriter, r *http.Request) {
			if r.Method != http.MethodPost {
				rw.WriteHeader(http.StatusMethodNotAllowed)
				return
			}
			if !isLoopbackRemote(r.RemoteAddr) {
				http.Error(rw, "forbidden", http.StatusForbidden)
				return
			}
			ctx2, cancel2 := context.WithTimeout(r.Context(), 5*time.Second)
			defer cancel2()
			seq, err := w.RequestSnapshot(ctx2)
			rw.Header().Set("Content-Type", "application/json")
			if err != nil {
				rw.WriteHeader(http.StatusServiceUnavailable)
				_ = json.NewEncoder(rw).Encode(map[string]any{"ok": false, "seq": seq, "error": err.Error()})
				return
			}
			_ = json.NewEncoder(rw).Encode(map[string]any{"ok": true, "seq": seq})
		})
	} else if logger != nil {
		logger.Printf("admin endpoints disabled (LV_ENABLE_ADMIN_HTTP=false)")
	}
	if enablePprofHTTP {
		mux.HandleFunc("/debug/pprof/", pprof.Index)
		mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
		mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
		mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
		mux.HandleFunc("/debug/pprof/trace", pprof.Trace)
	}
	mux.HandleFunc("/v1/ws", ws.NewServer(w, hub, tune.MaxQueue, logger).Handler())
	return mux
}

func isLoopbackRemote(remoteAddr string) bool {
	host := remoteAddr
	if h, _, err := net.SplitHostPort(remoteAddr); err == nil {
		host = h
	}
	host = strings.TrimPrefix(host, "[")
	host = strings.TrimSuffix(host, "]")
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}

func defaultEnableAdminHTTP() bool {
	switch strings.ToLower(strings.TrimSpace(os.Getenv("DEPLOY_ENV"))) {
	case "staging", "production":
		return false
	default:
		return true
	}
}
