package world

import (
	"landvote.ai/internal/protocol"
	"landvote.ai/internal/sim/ballot"
	"landvote.ai/internal/sim/land"
)

func rectArr(c land.Claim) [4]int {
	return [4]int{c.Rect.X1, c.Rect.Y1, c.Rect.X2, c.Rect.Y2}
}

func claimView(c land.Claim) protocol.ClaimView {
	return protocol.ClaimView{
		Handle:    c.Handle,
		Claimant:  c.Claimant,
		ClaimKind: string(c.Kind),
		BallotID:  c.BallotID,
		Status:    string(c.Status),
		X1:        c.Rect.X1,
		Y1:        c.Rect.Y1,
		X2:        c.Rect.X2,
		Y2:        c.Rect.Y2,
		Width:     c.Width,
		Height:    c.Height,
	}
}

func ballotView(mgr *land.Manager, b *ballot.Ballot) protocol.BallotView {
	v := protocol.BallotView{
		BallotID:    b.ID,
		Chairperson: b.Chairperson,
		Winning:     b.WinningProposal(),
	}
	if c, ok := mgr.ClaimForBallot(b.ID); ok {
		v.ClaimKind = string(c.Kind)
	}
	for i, p := range b.Proposals() {
		v.Proposals = append(v.Proposals, protocol.ProposalView{Index: i, Description: p.Description, VoteCount: p.VoteCount})
	}
	for _, id := range b.VoterIDs() {
		vr := b.Voter(id)
		v.Voters = append(v.Voters, protocol.VoterView{Identity: id, Weight: vr.Weight, Voted: vr.Voted, Vote: vr.Vote})
	}
	return v
}
