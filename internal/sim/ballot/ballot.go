// Package ballot implements a single per-claim vote: a chairperson, an
// electorate of weight-1 voters, and a fixed reject/approve proposal list.
//
// A Ballot is not safe for concurrent use; it is owned by the world loop.
package ballot

import (
	"sort"

	"landvote.ai/internal/protocol"
)

// Proposal indices. Index 0 is the sentinel that wins when nobody votes.
const (
	Reject  = 0
	Approve = 1
)

var (
	ErrUnauthorized    = protocol.NewRuleError(protocol.ErrUnauthorized, "Can't give right to vote.")
	ErrVoterVoted      = protocol.NewRuleError(protocol.ErrAlreadyVoted, "The voter already voted.")
	ErrAlreadyVoted    = protocol.NewRuleError(protocol.ErrAlreadyVoted, "Already voted.")
	ErrNoRightToVote   = protocol.NewRuleError(protocol.ErrNoRightToVote, "Has no right to vote")
	ErrInvalidProposal = protocol.NewRuleError(protocol.ErrInvalidProposal, "Invalid proposal")
)

type Proposal struct {
	Description string
	VoteCount   int
}

type Voter struct {
	Weight int
	Voted  bool
	// Vote is the proposal index, set once Voted is true.
	Vote *int
}

type Ballot struct {
	ID          string
	Chairperson string

	voters    map[string]*Voter
	proposals []Proposal
}

// New creates a ballot with the standard reject/approve proposals and the
// given electorate enfranchised.
func New(id, chairperson string, electorate []string) *Ballot {
	b := &Ballot{
		ID:          id,
		Chairperson: chairperson,
		voters:      map[string]*Voter{},
		proposals: []Proposal{
			{Description: "reject"},
			{Description: "approve"},
		},
	}
	for _, v := range electorate {
		if v == "" {
			continue
		}
		b.voters[v] = &Voter{Weight: 1}
	}
	return b
}

// GiveRightToVote enfranchises voter. Only the chairperson may call it, and
// only for a voter that has not voted yet. Re-granting is a no-op.
func (b *Ballot) GiveRightToVote(caller, voter string) error {
	if caller != b.Chairperson {
		return ErrUnauthorized
	}
	v := b.voters[voter]
	if v != nil && v.Voted {
		return ErrVoterVoted
	}
	if v == nil {
		v = &Voter{}
		b.voters[voter] = v
	}
	v.Weight = 1
	return nil
}

func (b *Ballot) Vote(caller string, proposal int) error {
	v := b.voters[caller]
	if v == nil || v.Weight == 0 {
		return ErrNoRightToVote
	}
	if v.Voted {
		return ErrAlreadyVoted
	}
	if proposal < 0 || proposal >= len(b.proposals) {
		return ErrInvalidProposal
	}
	p := proposal
	v.Voted = true
	v.Vote = &p
	b.proposals[proposal].VoteCount += v.Weight
	return nil
}

// WinningProposal returns the index with the strictly highest count; on a tie
// the lowest index wins.
func (b *Ballot) WinningProposal() int {
	winning := 0
	best := -1
	for i, p := range b.proposals {
		if p.VoteCount > best {
			best = p.VoteCount
			winning = i
		}
	}
	return winning
}

func (b *Ballot) Approved() bool { return b.WinningProposal() == Approve }

func (b *Ballot) Proposal(index int) (Proposal, error) {
	if index < 0 || index >= len(b.proposals) {
		return Proposal{}, ErrInvalidProposal
	}
	return b.proposals[index], nil
}

func (b *Ballot) Proposals() []Proposal {
	out := make([]Proposal, len(b.proposals))
	copy(out, b.proposals)
	return out
}

func (b *Ballot) NumProposals() int { return len(b.proposals) }

// Voter returns a copy of the registry entry. A missing entry reads as a
// zero-weight voter.
func (b *Ballot) Voter(id string) Voter {
	v := b.voters[id]
	if v == nil {
		return Voter{}
	}
	out := *v
	if v.Vote != nil {
		p := *v.Vote
		out.Vote = &p
	}
	return out
}

// VoterIDs returns registered voters in sorted order.
func (b *Ballot) VoterIDs() []string {
	ids := make([]string, 0, len(b.voters))
	for id := range b.voters {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Electorate returns the identities that currently hold a right to vote.
func (b *Ballot) Electorate() []string {
	ids := make([]string, 0, len(b.voters))
	for _, id := range b.VoterIDs() {
		if b.voters[id].Weight > 0 {
			ids = append(ids, id)
		}
	}
	return ids
}

// State is the exported form used by snapshots.
type State struct {
	ID          string
	Chairperson string
	Voters      map[string]Voter
	Proposals   []Proposal
}

func (b *Ballot) State() State {
	s := State{
		ID:          b.ID,
		Chairperson: b.Chairperson,
		Voters:      make(map[string]Voter, len(b.voters)),
		Proposals:   b.Proposals(),
	}
	for id := range b.voters {
		s.Voters[id] = b.Voter(id)
	}
	return s
}

// FromState rebuilds a ballot exported with State.
func FromState(s State) *Ballot {
	b := &Ballot{
		ID:          s.ID,
		Chairperson: s.Chairperson,
		voters:      make(map[string]*Voter, len(s.Voters)),
		proposals:   make([]Proposal, len(s.Proposals)),
	}
	copy(b.proposals, s.Proposals)
	for id, v := range s.Voters {
		vv := v
		if v.Vote != nil {
			p := *v.Vote
			vv.Vote = &p
		}
		b.voters[id] = &vv
	}
	return b
}
