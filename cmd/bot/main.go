package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"landvote.ai/internal/protocol"
)

// The bot claims one parcel, votes for it and resolves the ballot. On an
// empty map it is its own electorate, so the claim succeeds unattended.
func main() {
	var (
		url      = flag.String("url", "ws://localhost:8080/v1/ws", "ws url")
		identity = flag.String("identity", "bot", "caller identity")
		rect     = flag.String("rect", "0,0,2,2", "parcel x1,y1,x2,y2")
		approve  = flag.Bool("approve", true, "vote approve (false votes reject)")
		watch    = flag.Duration("watch", 0, "keep printing events for this long after resolving")
	)
	flag.Parse()

	logger := log.New(os.Stdout, "[bot] ", log.LstdFlags|log.Lmicroseconds)

	r, err := parseRect(*rect)
	if err != nil {
		logger.Fatalf("bad -rect: %v", err)
	}

	conn, _, err := websocket.DefaultDialer.Dial(*url, nil)
	if err != nil {
		logger.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	hello := protocol.HelloMsg{
		Type:            protocol.TypeHello,
		ProtocolVersion: protocol.Version,
		Identity:        *identity,
		Capabilities: protocol.HelloCapabilities{
			MaxQueue: 8,
			Events:   *watch > 0,
		},
	}
	if err := conn.WriteJSON(hello); err != nil {
		logger.Fatalf("send HELLO: %v", err)
	}
	var welcome protocol.WelcomeMsg
	if err := conn.ReadJSON(&welcome); err != nil {
		logger.Fatalf("read WELCOME: %v", err)
	}
	logger.Printf("WELCOME session=%s identity=%s map=%dx%d", welcome.SessionID, welcome.Identity, welcome.Map.Width, welcome.Map.Height)

	c := &client{conn: conn, log: logger}

	var claim protocol.ClaimView
	if err := c.call(protocol.ReqMsg{Op: protocol.OpRequestLand, X1: r[0], Y1: r[1], X2: r[2], Y2: r[3]}, &claim); err != nil {
		logger.Fatalf("REQUEST_LAND: %v", err)
	}
	logger.Printf("claim opened kind=%s ballot=%s", claim.ClaimKind, claim.BallotID)

	p := 0
	if *approve {
		p = 1
	}
	if err := c.call(protocol.ReqMsg{Op: protocol.OpVote, BallotID: claim.BallotID, Proposal: &p}, nil); err != nil {
		// Not enfranchised: someone else decides; resolve anyway.
		logger.Printf("VOTE: %v", err)
	}

	var res protocol.ResolutionView
	if err := c.call(protocol.ReqMsg{Op: protocol.OpCheckBallot}, &res); err != nil {
		logger.Fatalf("CHECK_BALLOT: %v", err)
	}
	logger.Printf("resolved approved=%v map=%dx%d", res.Approved, res.Width, res.Height)

	var owners []string
	if err := c.call(protocol.ReqMsg{Op: protocol.OpGetOwners}, &owners); err == nil {
		logger.Printf("owners=%v", owners)
	}

	if *watch > 0 {
		c.watch(*watch)
	}
}

type client struct {
	conn *websocket.Conn
	log  *log.Logger
}

// call sends one REQ and decodes RESP.result into out. Events that arrive
// in between are logged.
func (c *client) call(req protocol.ReqMsg, out any) error {
	req.Type = protocol.TypeReq
	req.ProtocolVersion = protocol.Version
	req.ReqID = uuid.NewString()
	if err := c.conn.WriteJSON(req); err != nil {
		return err
	}
	for {
		_ = c.conn.SetReadDeadline(time.Now().Add(10 * time.Second))
		_, msg, err := c.conn.ReadMessage()
		if err != nil {
			return err
		}
		base, err := protocol.DecodeBase(msg)
		if err != nil {
			continue
		}
		if base.Type == protocol.TypeEvent {
			c.logEvent(msg)
			continue
		}
		if base.Type != protocol.TypeResp {
			continue
		}
		var resp struct {
			protocol.RespMsg
			Result json.RawMessage `json:"result,omitempty"`
		}
		if err := json.Unmarshal(msg, &resp); err != nil {
			return err
		}
		if resp.ReqID != req.ReqID {
			continue
		}
		if !resp.OK {
			return fmt.Errorf("%s: %s", resp.Code, resp.Message)
		}
		if out != nil && len(resp.Result) > 0 {
			return json.Unmarshal(resp.Result, out)
		}
		return nil
	}
}

func (c *client) watch(d time.Duration) {
	deadline := time.Now().Add(d)
	for time.Now().Before(deadline) {
		_ = c.conn.SetReadDeadline(deadline)
		_, msg, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		c.logEvent(msg)
	}
}

func (c *client) logEvent(msg []byte) {
	var ev protocol.EventMsg
	if err := json.Unmarshal(msg, &ev); err != nil {
		return
	}
	c.log.Printf("EVENT seq=%d kind=%s claimant=%s ballot=%s approved=%v", ev.Seq, ev.Kind, ev.Claimant, ev.BallotID, ev.Approved)
}

func parseRect(s string) ([4]int, error) {
	var r [4]int
	parts := strings.Split(strings.TrimSpace(s), ",")
	if len(parts) != 4 {
		return r, fmt.Errorf("expected x1,y1,x2,y2")
	}
	for i := range parts {
		n, err := strconv.Atoi(strings.TrimSpace(parts[i]))
		if err != nil {
			return r, err
		}
		r[i] = n
	}
	return r, nil
}
