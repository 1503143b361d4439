package protocol_test

import (
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"landvote.ai/internal/protocol"
)

func compileSchema(t *testing.T, name string) *jsonschema.Schema {
	t.Helper()
	p := filepath.Join("..", "..", "schemas", name)
	s, err := jsonschema.Compile(p)
	if err != nil {
		t.Fatalf("compile %s: %v", name, err)
	}
	return s
}

func validateJSON(t *testing.T, s *jsonschema.Schema, raw []byte) {
	t.Helper()
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if err := s.Validate(v); err != nil {
		t.Fatalf("validate: %v\n%s", err, raw)
	}
}

func TestSchemas_ValidateSamples(t *testing.T) {
	helloSchema := compileSchema(t, "hello.schema.json")
	welcomeSchema := compileSchema(t, "welcome.schema.json")
	reqSchema := compileSchema(t, "req.schema.json")
	respSchema := compileSchema(t, "resp.schema.json")

	validateJSON(t, helloSchema, []byte(`{
	  "type":"HELLO",
	  "protocol_version":"1.0",
	  "identity":"alice",
	  "capabilities":{"max_queue":8,"events":true}
	}`))

	validateJSON(t, welcomeSchema, []byte(`{
	  "type":"WELCOME",
	  "protocol_version":"1.0",
	  "session_id":"2f1c7a3e-8d7e-4e0a-9c55-3c6e1d8f0b11",
	  "identity":"alice",
	  "map":{"width":6,"height":5}
	}`))

	validateJSON(t, reqSchema, []byte(`{
	  "type":"REQ",
	  "protocol_version":"1.0",
	  "req_id":"R1",
	  "op":"REQUEST_LAND",
	  "x1":1,"y1":1,"x2":2,"y2":2
	}`))

	validateJSON(t, respSchema, []byte(`{
	  "type":"RESP",
	  "protocol_version":"1.0",
	  "req_id":"R1",
	  "ok":false,
	  "code":"E_LAND_ALREADY_OWNED",
	  "message":"The Land has already an owner"
	}`))
}

// The Go structs must produce documents the published schemas accept.
func TestSchemas_ValidateEncodedMessages(t *testing.T) {
	proposal := 1
	cases := []struct {
		schema string
		msg    any
	}{
		{"hello.schema.json", protocol.HelloMsg{
			Type:            protocol.TypeHello,
			ProtocolVersion: protocol.Version,
			Identity:        "bob",
		}},
		{"welcome.schema.json", protocol.WelcomeMsg{
			Type:            protocol.TypeWelcome,
			ProtocolVersion: protocol.Version,
			SessionID:       "S1",
			Identity:        "bob",
			Map:             protocol.MapParams{Width: 6, Height: 5},
			AutoExtend:      true,
		}},
		{"req.schema.json", protocol.ReqMsg{
			Type:            protocol.TypeReq,
			ProtocolVersion: protocol.Version,
			ReqID:           "R2",
			Op:              protocol.OpVote,
			BallotID:        "B000001",
			Proposal:        &proposal,
		}},
		{"resp.schema.json", protocol.RespMsg{
			Type:            protocol.TypeResp,
			ProtocolVersion: protocol.Version,
			ReqID:           "R2",
			OK:              true,
			Seq:             3,
			Result:          protocol.MapParams{Width: 6, Height: 5},
		}},
		{"event.schema.json", protocol.EventMsg{
			Type:            protocol.TypeEvent,
			ProtocolVersion: protocol.Version,
			Seq:             4,
			Kind:            protocol.EventClaimResolved,
			Claimant:        "bob",
			BallotID:        "B000001",
			ClaimKind:       "GRANT",
			Approved:        true,
			X1:              1, Y1: 1, X2: 2, Y2: 2,
		}},
	}
	for _, tc := range cases {
		raw, err := json.Marshal(tc.msg)
		if err != nil {
			t.Fatalf("marshal %T: %v", tc.msg, err)
		}
		validateJSON(t, compileSchema(t, tc.schema), raw)
	}
}
