package protocol

// HELLO (client -> server)
type HelloMsg struct {
	Type            string            `json:"type"`
	ProtocolVersion string            `json:"protocol_version"`
	Identity        string            `json:"identity"`
	Capabilities    HelloCapabilities `json:"capabilities,omitempty"`
}

type HelloCapabilities struct {
	MaxQueue int  `json:"max_queue,omitempty"`
	Events   bool `json:"events,omitempty"`
}

// WELCOME (server -> client)
type WelcomeMsg struct {
	Type            string    `json:"type"`
	ProtocolVersion string    `json:"protocol_version"`
	SessionID       string    `json:"session_id"`
	Identity        string    `json:"identity"`
	Map             MapParams `json:"map"`
	AutoExtend      bool      `json:"auto_extend,omitempty"`
}

type MapParams struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

// Request ops.
const (
	OpRequestLand      = "REQUEST_LAND"
	OpRequestExtension = "REQUEST_EXTENSION"
	OpGiveRightToVote  = "GIVE_RIGHT_TO_VOTE"
	OpVote             = "VOTE"
	OpCheckBallot      = "CHECK_BALLOT"
	OpGetMap           = "GET_MAP"
	OpGetGrantedLands  = "GET_GRANTED_LANDS"
	OpGetOwners        = "GET_OWNERS"
	OpGetBallot        = "GET_BALLOT"
	OpGetProposal      = "GET_PROPOSAL"
)

var knownOps = map[string]bool{
	OpRequestLand:      true,
	OpRequestExtension: true,
	OpGiveRightToVote:  true,
	OpVote:             true,
	OpCheckBallot:      true,
	OpGetMap:           true,
	OpGetGrantedLands:  true,
	OpGetOwners:        true,
	OpGetBallot:        true,
	OpGetProposal:      true,
}

func IsKnownOp(op string) bool { return knownOps[op] }

// IsMutatingOp reports whether op changes ledger or ballot state.
func IsMutatingOp(op string) bool {
	switch op {
	case OpRequestLand, OpRequestExtension, OpGiveRightToVote, OpVote, OpCheckBallot:
		return true
	}
	return false
}

// REQ (client -> server)
//
// Rectangle fields are named, so REQUEST_EXTENSION does not depend on the
// (x1,x2,y1,y2) positional order used by the manager API.
type ReqMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	ReqID           string `json:"req_id"`
	Op              string `json:"op"`

	X1 int `json:"x1,omitempty"`
	Y1 int `json:"y1,omitempty"`
	X2 int `json:"x2,omitempty"`
	Y2 int `json:"y2,omitempty"`

	BallotID string `json:"ballot_id,omitempty"`
	Voter    string `json:"voter,omitempty"`
	Proposal *int   `json:"proposal,omitempty"`
	Identity string `json:"identity,omitempty"`
}

// RESP (server -> client)
type RespMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	ReqID           string `json:"req_id"`
	OK              bool   `json:"ok"`
	Code            string `json:"code,omitempty"`
	Message         string `json:"message,omitempty"`
	Seq             uint64 `json:"seq,omitempty"`
	Result          any    `json:"result,omitempty"`
}

type GrantView struct {
	Owner string `json:"owner"`
	X1    int    `json:"x1"`
	Y1    int    `json:"y1"`
	X2    int    `json:"x2"`
	Y2    int    `json:"y2"`
}

type ProposalView struct {
	Index       int    `json:"index"`
	Description string `json:"description"`
	VoteCount   int    `json:"vote_count"`
}

type VoterView struct {
	Identity string `json:"identity"`
	Weight   int    `json:"weight"`
	Voted    bool   `json:"voted"`
	Vote     *int   `json:"vote,omitempty"`
}

type BallotView struct {
	BallotID    string         `json:"ballot_id"`
	Chairperson string         `json:"chairperson"`
	ClaimKind   string         `json:"claim_kind,omitempty"`
	Winning     int            `json:"winning"`
	Proposals   []ProposalView `json:"proposals"`
	Voters      []VoterView    `json:"voters"`
}

type ResolutionView struct {
	Claimant  string `json:"claimant"`
	BallotID  string `json:"ballot_id"`
	ClaimKind string `json:"claim_kind"`
	Approved  bool   `json:"approved"`
	Width     int    `json:"width"`
	Height    int    `json:"height"`
}

// EVENT (server -> client): claim lifecycle notifications.
type EventMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	Seq             uint64 `json:"seq"`
	Kind            string `json:"kind"`
	Claimant        string `json:"claimant"`
	BallotID        string `json:"ballot_id"`
	ClaimKind       string `json:"claim_kind"`
	Approved        bool   `json:"approved,omitempty"`
	X1              int    `json:"x1"`
	Y1              int    `json:"y1"`
	X2              int    `json:"x2"`
	Y2              int    `json:"y2"`
}

// Event kinds.
const (
	EventClaimOpened   = "CLAIM_OPENED"
	EventClaimResolved = "CLAIM_RESOLVED"
)

type ClaimView struct {
	Handle    int    `json:"handle"`
	Claimant  string `json:"claimant"`
	ClaimKind string `json:"claim_kind"`
	BallotID  string `json:"ballot_id"`
	Status    string `json:"status"`
	X1        int    `json:"x1"`
	Y1        int    `json:"y1"`
	X2        int    `json:"x2"`
	Y2        int    `json:"y2"`
	Width     int    `json:"width,omitempty"`
	Height    int    `json:"height,omitempty"`
}
