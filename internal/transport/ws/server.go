package ws

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"landvote.ai/internal/protocol"
	"landvote.ai/internal/sim/world"
)

const (
	handshakeTimeout = 5 * time.Second
	readTimeout      = 60 * time.Second
	writeTimeout     = 5 * time.Second
	applyTimeout     = 5 * time.Second
)

type Server struct {
	world *world.World
	hub   *Hub
	log   *log.Logger

	maxQueue     int
	applyTimeout time.Duration
	upgrader     websocket.Upgrader
}

// NewServer serves one world. hub may be nil when events are not wired.
func NewServer(w *world.World, hub *Hub, maxQueue int, logger *log.Logger) *Server {
	if maxQueue <= 0 {
		maxQueue = 64
	}
	return &Server{
		world:        w,
		hub:          hub,
		log:          logger,
		maxQueue:     maxQueue,
		applyTimeout: applyTimeout,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  16 * 1024,
			WriteBufferSize: 16 * 1024,
			CheckOrigin:     func(r *http.Request) bool { return true }, // dev default
		},
	}
}

type session struct {
	id       string
	identity string
	out      chan []byte
	events   <-chan []byte
}

func (s *Server) Handler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		conn, err := s.upgrader.Upgrade(rw, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		ctx, cancel := context.WithCancel(r.Context())
		defer cancel()

		sess := s.handshake(ctx, conn)
		if sess == nil {
			return
		}
		if sess.events != nil {
			defer s.hub.Unsubscribe(sess.id)
		}
		s.logf("session %s identity=%s connected", sess.id, sess.identity)

		// Writer goroutine.
		go func() {
			for {
				var b []byte
				select {
				case <-ctx.Done():
					return
				case b = <-sess.out:
				case b = <-sess.events:
				}
				_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
				if err := conn.WriteMessage(websocket.TextMessage, b); err != nil {
					cancel()
					return
				}
			}
		}()

		// Reader loop. Requests of one session are applied in the order sent.
		for {
			_ = conn.SetReadDeadline(time.Now().Add(readTimeout))
			_, msg, err := conn.ReadMessage()
			if err != nil {
				cancel()
				break
			}
			resp := s.handleMessage(ctx, sess, msg)
			b, err := json.Marshal(resp)
			if err != nil {
				continue
			}
			select {
			case sess.out <- b:
			case <-ctx.Done():
			}
		}
		s.logf("session %s identity=%s closed", sess.id, sess.identity)
	}
}

func (s *Server) handleMessage(ctx context.Context, sess *session, msg []byte) protocol.RespMsg {
	base, err := protocol.DecodeBase(msg)
	if err != nil || base.Type != protocol.TypeReq {
		return protoError("", "expected REQ")
	}
	var req protocol.ReqMsg
	if err := json.Unmarshal(msg, &req); err != nil {
		return protoError("", "malformed REQ")
	}
	if req.ProtocolVersion != protocol.Version {
		return protoError(req.ReqID, "bad protocol_version")
	}
	return s.submit(ctx, sess.identity, req)
}

// submit hands req to the world loop and waits for its response. Only a
// full inbox is reported as E_BUSY: nothing was queued, so a retry is safe.
// Once queued the command will be applied, so a missing response is reported
// as E_OUTCOME_UNKNOWN for mutating ops.
func (s *Server) submit(ctx context.Context, caller string, req protocol.ReqMsg) protocol.RespMsg {
	respCh := make(chan protocol.RespMsg, 1)
	select {
	case s.world.Inbox() <- world.CommandEnvelope{Caller: caller, Req: req, Resp: respCh}:
	default:
		return failure(req.ReqID, protocol.ErrBusy, "world inbox full")
	}
	t := time.NewTimer(s.applyTimeout)
	defer t.Stop()
	select {
	case resp := <-respCh:
		return resp
	case <-t.C:
		return queuedFailure(req, "timed out waiting for world")
	case <-ctx.Done():
		return queuedFailure(req, "session closed")
	}
}

func queuedFailure(req protocol.ReqMsg, msg string) protocol.RespMsg {
	if protocol.IsMutatingOp(req.Op) {
		return failure(req.ReqID, protocol.ErrOutcomeUnknown, msg+"; command is queued and may still apply")
	}
	return failure(req.ReqID, protocol.ErrBusy, msg)
}

func (s *Server) handshake(ctx context.Context, conn *websocket.Conn) *session {
	_ = conn.SetReadDeadline(time.Now().Add(handshakeTimeout))
	_, msg, err := conn.ReadMessage()
	if err != nil {
		return nil
	}

	base, err := protocol.DecodeBase(msg)
	if err != nil || base.Type != protocol.TypeHello {
		closePolicy(conn, "expected HELLO")
		return nil
	}
	var hello protocol.HelloMsg
	if err := json.Unmarshal(msg, &hello); err != nil {
		closePolicy(conn, "malformed HELLO")
		return nil
	}
	if hello.ProtocolVersion != protocol.Version {
		closePolicy(conn, "bad protocol_version")
		return nil
	}
	identity := strings.TrimSpace(hello.Identity)
	if identity == "" {
		closePolicy(conn, "missing identity")
		return nil
	}

	maxQ := hello.Capabilities.MaxQueue
	if maxQ <= 0 {
		maxQ = 8
	}
	if maxQ > s.maxQueue {
		maxQ = s.maxQueue
	}
	sess := &session{
		id:       uuid.NewString(),
		identity: identity,
		out:      make(chan []byte, maxQ),
	}

	mapResp := s.submit(ctx, identity, protocol.ReqMsg{
		Type:            protocol.TypeReq,
		ProtocolVersion: protocol.Version,
		Op:              protocol.OpGetMap,
	})
	mp, ok := mapResp.Result.(protocol.MapParams)
	if !mapResp.OK || !ok {
		_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseTryAgainLater, "world busy"), time.Now().Add(time.Second))
		return nil
	}

	welcome := protocol.WelcomeMsg{
		Type:            protocol.TypeWelcome,
		ProtocolVersion: protocol.Version,
		SessionID:       sess.id,
		Identity:        identity,
		Map:             mp,
		AutoExtend:      s.world.Config().AutoExtend,
	}
	if err := writeJSON(conn, welcome); err != nil {
		return nil
	}
	if hello.Capabilities.Events && s.hub != nil {
		sess.events = s.hub.Subscribe(sess.id, maxQ)
	}
	return sess
}

func (s *Server) logf(format string, args ...any) {
	if s.log != nil {
		s.log.Printf(format, args...)
	}
}

func protoError(reqID, msg string) protocol.RespMsg {
	return protocol.RespMsg{
		Type:            protocol.TypeResp,
		ProtocolVersion: protocol.Version,
		ReqID:           reqID,
		Code:            protocol.ErrProtoBadRequest,
		Message:         msg,
	}
}

func failure(reqID, code, msg string) protocol.RespMsg {
	return protocol.RespMsg{
		Type:            protocol.TypeResp,
		ProtocolVersion: protocol.Version,
		ReqID:           reqID,
		Code:            code,
		Message:         msg,
	}
}

func closePolicy(conn *websocket.Conn, reason string) {
	_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.ClosePolicyViolation, reason), time.Now().Add(time.Second))
}

func writeJSON(conn *websocket.Conn, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return conn.WriteMessage(websocket.TextMessage, b)
}
