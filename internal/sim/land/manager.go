// Package land orchestrates claims: it validates requests against the grid
// ledger, opens one ballot per claim and commits approved claims.
//
// Manager is the only writer of its ledger. It is not safe for concurrent
// use; the world loop serializes every call.
package land

import (
	"fmt"

	"landvote.ai/internal/sim/ballot"
	"landvote.ai/internal/sim/grid"
)

type Config struct {
	// AutoExtend turns out-of-bounds land requests into EXPANSION claims
	// instead of rejecting them.
	AutoExtend bool
}

type Manager struct {
	cfg    Config
	ledger *grid.Ledger

	claims  []Claim
	pending map[string]int

	ballots    map[string]*ballot.Ballot
	nextBallot uint64
}

func NewManager(width, height int, cfg Config) (*Manager, error) {
	l, err := grid.NewLedger(width, height)
	if err != nil {
		return nil, err
	}
	return newManager(l, cfg), nil
}

func newManager(l *grid.Ledger, cfg Config) *Manager {
	return &Manager{
		cfg:     cfg,
		ledger:  l,
		pending: map[string]int{},
		ballots: map[string]*ballot.Ballot{},
	}
}

func (m *Manager) Config() Config { return m.cfg }

// RequestLand opens a GRANT claim for (x1,y1)-(x2,y2) on behalf of caller.
//
// The first claim on an empty map is decided by the caller alone; every later
// claim is decided by the current owners.
func (m *Manager) RequestLand(caller string, x1, y1, x2, y2 int) (Claim, error) {
	r := grid.NewRect(x1, y1, x2, y2)
	if r.Empty() {
		return Claim{}, ErrEmptyLand
	}
	kind := KindGrant
	width, height := 0, 0
	if !m.ledger.WithinBounds(r) {
		if !m.cfg.AutoExtend || r.X1 < 0 || r.Y1 < 0 {
			return Claim{}, ErrLandOutOfBounds
		}
		kind = KindExpansion
		// The map grows to cover the whole parcel on both axes, so
		// (7,7)-(8,8) on a 6x5 map yields 8x8, never 7x8.
		width, height = maxInt(m.ledger.Width(), r.X2), maxInt(m.ledger.Height(), r.Y2)
	}
	if m.ledger.Overlaps(r) {
		return Claim{}, ErrLandAlreadyOwned
	}
	if _, ok := m.pending[caller]; ok {
		return Claim{}, ErrDuplicateClaim
	}

	electorate := m.ledger.Owners()
	if len(electorate) == 0 {
		electorate = []string{caller}
	} else if kind == KindExpansion && !m.ledger.IsOwner(caller) {
		electorate = append(electorate, caller)
	}
	return m.open(caller, kind, r, width, height, electorate), nil
}

// RequestExtension opens an EXTENSION claim. The argument order
// (x1,x2,y1,y2) is part of the public contract. The target map is
// max(x1,x2) wide and max(y1,y2) high.
func (m *Manager) RequestExtension(caller string, x1, x2, y1, y2 int) (Claim, error) {
	if !m.ledger.IsOwner(caller) {
		return Claim{}, ErrNotAnOwner
	}
	r := grid.NewRect(x1, y1, x2, y2)
	width, height := r.X2, r.Y2
	if r.X1 < 0 || r.Y1 < 0 || !m.ledger.Grows(width, height) || m.ledger.Overlaps(r) {
		return Claim{}, ErrExtensionRejected
	}
	if _, ok := m.pending[caller]; ok {
		return Claim{}, ErrDuplicateClaim
	}
	return m.open(caller, KindExtension, r, width, height, m.ledger.Owners()), nil
}

func (m *Manager) open(caller string, kind Kind, r grid.Rect, width, height int, electorate []string) Claim {
	b := ballot.New(m.newBallotID(), caller, electorate)
	m.ballots[b.ID] = b

	c := Claim{
		Handle:   len(m.claims),
		Claimant: caller,
		Kind:     kind,
		Rect:     r,
		Width:    width,
		Height:   height,
		BallotID: b.ID,
		Status:   StatusOpen,
	}
	m.claims = append(m.claims, c)
	m.pending[caller] = c.Handle
	return c
}

func (m *Manager) newBallotID() string {
	m.nextBallot++
	return fmt.Sprintf("B%06d", m.nextBallot)
}

// CheckBallot resolves the pending claim of claimant. An approved claim is
// committed to the ledger; a rejected one is closed without changes. Either
// way the claim is consumed, so a second call fails with ErrNoSuchClaim.
func (m *Manager) CheckBallot(claimant string) (Resolution, error) {
	h, ok := m.pending[claimant]
	if !ok {
		return Resolution{}, ErrNoSuchClaim
	}
	c := m.claims[h]
	b := m.ballots[c.BallotID]
	if b == nil {
		return Resolution{}, fmt.Errorf("claim %d: ballot %s missing: %w", h, c.BallotID, grid.ErrInvariantViolation)
	}

	res := Resolution{Winning: b.WinningProposal()}
	res.Approved = res.Winning == ballot.Approve

	status := StatusRejected
	if res.Approved {
		committed, err := m.commit(c)
		if err != nil {
			return Resolution{}, err
		}
		res.Committed = committed
		status = StatusApproved
		if !committed {
			status = StatusBlocked
		}
	}

	c.Status = status
	m.claims[h] = c
	delete(m.pending, claimant)
	res.Claim = c
	return res, nil
}

// commit applies an approved claim. It reports false, leaving the ledger
// untouched, when an earlier resolution already took part of the parcel.
func (m *Manager) commit(c Claim) (bool, error) {
	switch c.Kind {
	case KindGrant:
		if m.ledger.Overlaps(c.Rect) {
			return false, nil
		}
		if err := m.ledger.CommitGrant(c.Claimant, c.Rect); err != nil {
			return false, err
		}
		return true, nil

	case KindExtension:
		m.ledger.Extend(c.Width, c.Height)
		return true, nil

	case KindExpansion:
		if m.ledger.Overlaps(c.Rect) {
			return false, nil
		}
		if c.Rect.X2 > maxInt(m.ledger.Width(), c.Width) || c.Rect.Y2 > maxInt(m.ledger.Height(), c.Height) {
			return false, fmt.Errorf("expansion %s exceeds target %dx%d: %w", c.Rect, c.Width, c.Height, grid.ErrInvariantViolation)
		}
		m.ledger.Extend(c.Width, c.Height)
		if err := m.ledger.CommitGrant(c.Claimant, c.Rect); err != nil {
			return false, err
		}
		return true, nil
	}
	return false, fmt.Errorf("claim %d: unknown kind %q: %w", c.Handle, c.Kind, grid.ErrInvariantViolation)
}

// GiveRightToVote forwards to the ballot identified by ballotID.
func (m *Manager) GiveRightToVote(caller, ballotID, voter string) error {
	b := m.ballots[ballotID]
	if b == nil {
		return ErrNoSuchBallot
	}
	return b.GiveRightToVote(caller, voter)
}

// Vote forwards to the ballot identified by ballotID.
func (m *Manager) Vote(caller, ballotID string, proposal int) error {
	b := m.ballots[ballotID]
	if b == nil {
		return ErrNoSuchBallot
	}
	return b.Vote(caller, proposal)
}

func (m *Manager) Width() int  { return m.ledger.Width() }
func (m *Manager) Height() int { return m.ledger.Height() }

func (m *Manager) GrantedLands() []grid.Grant { return m.ledger.Grants() }
func (m *Manager) Owners() []string           { return m.ledger.Owners() }
func (m *Manager) IsOwner(id string) bool     { return m.ledger.IsOwner(id) }

// Ballot returns the ballot of identity's pending claim, or nil. The pointer
// is stable until the claim is resolved.
func (m *Manager) Ballot(identity string) *ballot.Ballot {
	h, ok := m.pending[identity]
	if !ok {
		return nil
	}
	return m.ballots[m.claims[h].BallotID]
}

// BallotByID returns any ballot ever opened, resolved or not.
func (m *Manager) BallotByID(id string) *ballot.Ballot { return m.ballots[id] }

func (m *Manager) PendingClaim(identity string) (Claim, bool) {
	h, ok := m.pending[identity]
	if !ok {
		return Claim{}, false
	}
	return m.claims[h], true
}

// ClaimForBallot returns the claim a ballot was opened for.
func (m *Manager) ClaimForBallot(ballotID string) (Claim, bool) {
	for _, c := range m.claims {
		if c.BallotID == ballotID {
			return c, true
		}
	}
	return Claim{}, false
}

// Claims returns every claim slot, resolved ones included, in handle order.
func (m *Manager) Claims() []Claim {
	out := make([]Claim, len(m.claims))
	copy(out, m.claims)
	return out
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
