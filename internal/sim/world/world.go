package world

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"landvote.ai/internal/persistence/snapshot"
	"landvote.ai/internal/protocol"
	"landvote.ai/internal/sim/land"
)

type WorldConfig struct {
	ID         string
	Width      int
	Height     int
	AutoExtend bool

	// SnapshotEveryCommands pushes a snapshot to the sink after every N
	// mutating commands (0 disables periodic snapshots).
	SnapshotEveryCommands int
	InboxSize             int
}

// CommandEnvelope carries one request into the world loop. Caller is the
// session identity; the transport never lets clients choose it.
type CommandEnvelope struct {
	Caller string
	Req    protocol.ReqMsg
	Resp   chan protocol.RespMsg
}

// World is a single-writer land registry.
// All state must be accessed only from the world loop goroutine.
type World struct {
	cfg WorldConfig
	mgr *land.Manager

	// seq counts applied mutating commands.
	seq uint64

	inbox chan CommandEnvelope
	admin chan adminSnapshotReq
	stop  chan struct{}

	// Published after every command for readers outside the loop.
	metrics atomic.Value // WorldMetrics

	// Optional loggers (may be nil). Implemented in internal/persistence/*.
	commandLogger CommandLogger
	auditLogger   AuditLogger

	// Optional snapshot sink (may be nil). Snapshot writing should be off-thread.
	snapshotSink chan<- snapshot.SnapshotV1

	// Optional event sink (may be nil). Called from the world loop; must not block.
	eventSink func(protocol.EventMsg)
}

type CommandLogger interface {
	WriteCommand(entry CommandLogEntry) error
}

type AuditLogger interface {
	WriteAudit(entry AuditEntry) error
}

// CommandLogEntry is one applied mutating command. Replaying the entries in
// order against the same starting state reproduces every Digest.
type CommandLogEntry struct {
	Seq    uint64          `json:"seq"`
	Caller string          `json:"caller"`
	Req    protocol.ReqMsg `json:"req"`
	Code   string          `json:"code,omitempty"`
	Digest string          `json:"digest"`
}

type AuditEntry struct {
	Seq      uint64 `json:"seq"`
	Actor    string `json:"actor"`
	Action   string `json:"action"` // e.g. "LAND_GRANTED"
	BallotID string `json:"ballot_id,omitempty"`
	Rect     [4]int `json:"rect"`
	Width    int    `json:"width"`
	Height   int    `json:"height"`
	Reason   string `json:"reason,omitempty"`
}

func New(cfg WorldConfig) (*World, error) {
	if cfg.ID == "" {
		cfg.ID = "land_1"
	}
	mgr, err := land.NewManager(cfg.Width, cfg.Height, land.Config{AutoExtend: cfg.AutoExtend})
	if err != nil {
		return nil, fmt.Errorf("world %s: %w", cfg.ID, err)
	}
	return newWorld(cfg, mgr), nil
}

func newWorld(cfg WorldConfig, mgr *land.Manager) *World {
	size := cfg.InboxSize
	if size <= 0 {
		size = 1024
	}
	w := &World{
		cfg:   cfg,
		mgr:   mgr,
		inbox: make(chan CommandEnvelope, size),
		admin: make(chan adminSnapshotReq, 8),
		stop:  make(chan struct{}),
	}
	w.publishMetrics()
	return w
}

// Run applies commands in inbox order until ctx is done or Stop is called.
func (w *World) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-w.stop:
			return nil
		case env := <-w.inbox:
			resp := w.Apply(env.Caller, env.Req)
			if env.Resp != nil {
				env.Resp <- resp
			}
		case req := <-w.admin:
			req.Resp <- w.handleAdminSnapshot()
		}
	}
}

func (w *World) Stop() { close(w.stop) }

func (w *World) Inbox() chan<- CommandEnvelope { return w.inbox }

// Config returns the construction config, updated by ImportSnapshot. It is
// safe to call from other goroutines once Run has started.
func (w *World) Config() WorldConfig { return w.cfg }

func (w *World) ID() string {
	if w == nil {
		return ""
	}
	return w.cfg.ID
}

func (w *World) SetCommandLogger(l CommandLogger)              { w.commandLogger = l }
func (w *World) SetAuditLogger(l AuditLogger)                  { w.auditLogger = l }
func (w *World) SetSnapshotSink(ch chan<- snapshot.SnapshotV1) { w.snapshotSink = ch }
func (w *World) SetEventSink(fn func(protocol.EventMsg))       { w.eventSink = fn }
func (w *World) Manager() *land.Manager                        { return w.mgr }
func (w *World) CurrentSeq() uint64                            { return w.seq }
func (w *World) StateDigest() string                           { return w.stateDigest() }
func (w *World) ExportSnapshot() snapshot.SnapshotV1           { return w.exportSnapshot() }
func (w *World) ImportSnapshot(s snapshot.SnapshotV1) error    { return w.importSnapshot(s) }

// Apply executes one request synchronously. It is what the loop calls for
// every inbox entry, and what tests and replays call directly.
//
// Mutating requests advance the sequence number and are logged whether or
// not they succeed; queries are not logged.
func (w *World) Apply(caller string, req protocol.ReqMsg) protocol.RespMsg {
	resp := protocol.RespMsg{
		Type:            protocol.TypeResp,
		ProtocolVersion: protocol.Version,
		ReqID:           req.ReqID,
	}
	if !protocol.IsKnownOp(req.Op) {
		resp.Code = protocol.ErrProtoBadRequest
		resp.Message = fmt.Sprintf("unknown op %q", req.Op)
		return resp
	}
	if caller == "" {
		resp.Code = protocol.ErrProtoBadRequest
		resp.Message = "missing caller identity"
		return resp
	}

	result, err := w.dispatch(caller, req)
	if err != nil {
		resp.Code = protocol.CodeOf(err)
		resp.Message = err.Error()
	} else {
		resp.OK = true
		resp.Result = result
	}

	if protocol.IsMutatingOp(req.Op) {
		w.seq++
		resp.Seq = w.seq
		w.logCommand(caller, req, resp.Code)
		w.maybeSnapshot()
		w.publishMetrics()
	}
	return resp
}

func (w *World) logCommand(caller string, req protocol.ReqMsg, code string) {
	if w.commandLogger == nil {
		return
	}
	_ = w.commandLogger.WriteCommand(CommandLogEntry{
		Seq:    w.seq,
		Caller: caller,
		Req:    req,
		Code:   code,
		Digest: w.stateDigest(),
	})
}

func (w *World) audit(actor, action, ballotID string, r [4]int, reason string) {
	if w.auditLogger == nil {
		return
	}
	_ = w.auditLogger.WriteAudit(AuditEntry{
		Seq:      w.seq + 1,
		Actor:    actor,
		Action:   action,
		BallotID: ballotID,
		Rect:     r,
		Width:    w.mgr.Width(),
		Height:   w.mgr.Height(),
		Reason:   reason,
	})
}

func (w *World) emit(ev protocol.EventMsg) {
	if w.eventSink == nil {
		return
	}
	ev.Type = protocol.TypeEvent
	ev.ProtocolVersion = protocol.Version
	ev.Seq = w.seq + 1
	w.eventSink(ev)
}

func (w *World) maybeSnapshot() {
	every := uint64(w.cfg.SnapshotEveryCommands)
	if w.snapshotSink == nil || every == 0 || w.seq%every != 0 {
		return
	}
	snap := w.exportSnapshot()
	select {
	case w.snapshotSink <- snap:
	default:
		// Writer is behind; the next interval will catch up.
	}
}

type adminSnapshotReq struct {
	Resp chan adminSnapshotResp
}

type adminSnapshotResp struct {
	Seq uint64
	Err error
}

// RequestSnapshot asks the world loop to push a snapshot of the current state
// to the sink, outside the periodic schedule.
func (w *World) RequestSnapshot(ctx context.Context) (seq uint64, err error) {
	if w == nil {
		return 0, errors.New("admin snapshot not available")
	}
	resp := make(chan adminSnapshotResp, 1)
	select {
	case w.admin <- adminSnapshotReq{Resp: resp}:
	case <-ctx.Done():
		return 0, ctx.Err()
	}
	select {
	case r := <-resp:
		return r.Seq, r.Err
	case <-ctx.Done():
		return 0, ctx.Err()
	}
}

func (w *World) handleAdminSnapshot() adminSnapshotResp {
	if w.snapshotSink == nil {
		return adminSnapshotResp{Seq: w.seq, Err: errors.New("snapshot sink not configured")}
	}
	select {
	case w.snapshotSink <- w.exportSnapshot():
		return adminSnapshotResp{Seq: w.seq}
	default:
		return adminSnapshotResp{Seq: w.seq, Err: errors.New("snapshot writer busy")}
	}
}
