package land

import "landvote.ai/internal/sim/grid"

type Kind string

const (
	KindGrant     Kind = "GRANT"
	KindExtension Kind = "EXTENSION"
	// KindExpansion claims land outside the current map: approval grows the
	// map to fit the parcel and grants it in one step.
	KindExpansion Kind = "EXPANSION"
)

type Status string

const (
	StatusOpen     Status = "OPEN"
	StatusApproved Status = "APPROVED"
	StatusRejected Status = "REJECTED"
	// StatusBlocked means the ballot approved but an earlier resolution took
	// the land first.
	StatusBlocked Status = "BLOCKED"
)

// Claim is one slot of the claim arena. Its handle is its index; resolved
// slots stay in place as tombstones so handles never dangle.
type Claim struct {
	Handle   int       `json:"handle"`
	Claimant string    `json:"claimant"`
	Kind     Kind      `json:"kind"`
	Rect     grid.Rect `json:"rect"`
	// Target dimensions for EXTENSION and EXPANSION claims.
	Width    int    `json:"width,omitempty"`
	Height   int    `json:"height,omitempty"`
	BallotID string `json:"ballot_id"`
	Status   Status `json:"status"`
}

func (c Claim) Open() bool { return c.Status == StatusOpen }

// Resolution is the outcome of CheckBallot.
type Resolution struct {
	Claim    Claim
	Approved bool
	// Committed is true when the ledger changed.
	Committed bool
	Winning   int
}
