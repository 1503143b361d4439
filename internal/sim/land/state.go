package land

import (
	"fmt"
	"sort"

	"landvote.ai/internal/sim/ballot"
	"landvote.ai/internal/sim/grid"
)

// State is the full manager state in export form.
type State struct {
	Width      int
	Height     int
	AutoExtend bool
	Grants     []grid.Grant
	Claims     []Claim
	Ballots    []ballot.State
	NextBallot uint64
}

func (m *Manager) ExportState() State {
	s := State{
		Width:      m.ledger.Width(),
		Height:     m.ledger.Height(),
		AutoExtend: m.cfg.AutoExtend,
		Grants:     m.ledger.Grants(),
		Claims:     m.Claims(),
		NextBallot: m.nextBallot,
	}
	ids := make([]string, 0, len(m.ballots))
	for id := range m.ballots {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		s.Ballots = append(s.Ballots, m.ballots[id].State())
	}
	return s
}

// ImportState rebuilds a manager. Grants are re-validated and every claim
// must reference a known ballot; at most one claim per claimant may be open.
func ImportState(s State) (*Manager, error) {
	l, err := grid.Restore(s.Width, s.Height, s.Grants)
	if err != nil {
		return nil, err
	}
	m := newManager(l, Config{AutoExtend: s.AutoExtend})
	m.nextBallot = s.NextBallot
	for _, bs := range s.Ballots {
		if bs.ID == "" {
			return nil, fmt.Errorf("import: ballot without id: %w", grid.ErrInvariantViolation)
		}
		m.ballots[bs.ID] = ballot.FromState(bs)
	}
	for i, c := range s.Claims {
		if c.Handle != i {
			return nil, fmt.Errorf("import: claim %d has handle %d: %w", i, c.Handle, grid.ErrInvariantViolation)
		}
		if m.ballots[c.BallotID] == nil {
			return nil, fmt.Errorf("import: claim %d references unknown ballot %s: %w", i, c.BallotID, grid.ErrInvariantViolation)
		}
		if c.Open() {
			if _, dup := m.pending[c.Claimant]; dup {
				return nil, fmt.Errorf("import: %s has two open claims: %w", c.Claimant, grid.ErrInvariantViolation)
			}
			m.pending[c.Claimant] = i
		}
		m.claims = append(m.claims, c)
	}
	return m, nil
}
