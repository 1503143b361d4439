package world

import (
	"landvote.ai/internal/protocol"
	"landvote.ai/internal/sim/ballot"
	"landvote.ai/internal/sim/land"
)

var (
	errMissingBallotID = protocol.NewRuleError(protocol.ErrBadRequest, "missing ballot_id")
	errMissingVoter    = protocol.NewRuleError(protocol.ErrBadRequest, "missing voter")
	errMissingProposal = protocol.NewRuleError(protocol.ErrBadRequest, "missing proposal")
)

func (w *World) dispatch(caller string, req protocol.ReqMsg) (any, error) {
	switch req.Op {
	case protocol.OpRequestLand:
		c, err := w.mgr.RequestLand(caller, req.X1, req.Y1, req.X2, req.Y2)
		if err != nil {
			return nil, err
		}
		w.onClaimOpened(c)
		return claimView(c), nil

	case protocol.OpRequestExtension:
		c, err := w.mgr.RequestExtension(caller, req.X1, req.X2, req.Y1, req.Y2)
		if err != nil {
			return nil, err
		}
		w.onClaimOpened(c)
		return claimView(c), nil

	case protocol.OpGiveRightToVote:
		if req.BallotID == "" {
			return nil, errMissingBallotID
		}
		if req.Voter == "" {
			return nil, errMissingVoter
		}
		if err := w.mgr.GiveRightToVote(caller, req.BallotID, req.Voter); err != nil {
			return nil, err
		}
		return ballotView(w.mgr, w.mgr.BallotByID(req.BallotID)), nil

	case protocol.OpVote:
		if req.BallotID == "" {
			return nil, errMissingBallotID
		}
		if req.Proposal == nil {
			return nil, errMissingProposal
		}
		if err := w.mgr.Vote(caller, req.BallotID, *req.Proposal); err != nil {
			return nil, err
		}
		p, err := w.mgr.BallotByID(req.BallotID).Proposal(*req.Proposal)
		if err != nil {
			return nil, err
		}
		return protocol.ProposalView{Index: *req.Proposal, Description: p.Description, VoteCount: p.VoteCount}, nil

	case protocol.OpCheckBallot:
		claimant := req.Identity
		if claimant == "" {
			claimant = caller
		}
		res, err := w.mgr.CheckBallot(claimant)
		if err != nil {
			return nil, err
		}
		w.onClaimResolved(caller, res)
		return protocol.ResolutionView{
			Claimant:  res.Claim.Claimant,
			BallotID:  res.Claim.BallotID,
			ClaimKind: string(res.Claim.Kind),
			Approved:  res.Committed,
			Width:     w.mgr.Width(),
			Height:    w.mgr.Height(),
		}, nil

	case protocol.OpGetMap:
		return protocol.MapParams{Width: w.mgr.Width(), Height: w.mgr.Height()}, nil

	case protocol.OpGetGrantedLands:
		grants := w.mgr.GrantedLands()
		out := make([]protocol.GrantView, 0, len(grants))
		for _, g := range grants {
			out = append(out, protocol.GrantView{Owner: g.Owner, X1: g.Rect.X1, Y1: g.Rect.Y1, X2: g.Rect.X2, Y2: g.Rect.Y2})
		}
		return out, nil

	case protocol.OpGetOwners:
		return w.mgr.Owners(), nil

	case protocol.OpGetBallot:
		b := w.lookupBallot(caller, req)
		if b == nil {
			// A missing ballot is a null result, not an error.
			return nil, nil
		}
		return ballotView(w.mgr, b), nil

	case protocol.OpGetProposal:
		if req.Proposal == nil {
			return nil, errMissingProposal
		}
		b := w.lookupBallot(caller, req)
		if b == nil {
			return nil, land.ErrNoSuchBallot
		}
		p, err := b.Proposal(*req.Proposal)
		if err != nil {
			return nil, err
		}
		return protocol.ProposalView{Index: *req.Proposal, Description: p.Description, VoteCount: p.VoteCount}, nil
	}
	return nil, nil
}

// lookupBallot resolves a ballot by explicit id, else by the pending claim of
// req.Identity (or the caller).
func (w *World) lookupBallot(caller string, req protocol.ReqMsg) *ballot.Ballot {
	if req.BallotID != "" {
		return w.mgr.BallotByID(req.BallotID)
	}
	id := req.Identity
	if id == "" {
		id = caller
	}
	return w.mgr.Ballot(id)
}

func (w *World) onClaimOpened(c land.Claim) {
	r := rectArr(c)
	w.audit(c.Claimant, "CLAIM_OPENED", c.BallotID, r, string(c.Kind))
	w.emit(protocol.EventMsg{
		Kind:      protocol.EventClaimOpened,
		Claimant:  c.Claimant,
		BallotID:  c.BallotID,
		ClaimKind: string(c.Kind),
		X1:        r[0], Y1: r[1], X2: r[2], Y2: r[3],
	})
}

func (w *World) onClaimResolved(actor string, res land.Resolution) {
	c := res.Claim
	r := rectArr(c)
	switch c.Status {
	case land.StatusApproved:
		switch c.Kind {
		case land.KindGrant:
			w.audit(c.Claimant, "LAND_GRANTED", c.BallotID, r, "VOTE_PASSED")
		case land.KindExtension:
			w.audit(c.Claimant, "MAP_EXTENDED", c.BallotID, r, "VOTE_PASSED")
		case land.KindExpansion:
			w.audit(c.Claimant, "MAP_EXTENDED", c.BallotID, r, "VOTE_PASSED")
			w.audit(c.Claimant, "LAND_GRANTED", c.BallotID, r, "VOTE_PASSED")
		}
	case land.StatusBlocked:
		w.audit(actor, "CLAIM_BLOCKED", c.BallotID, r, "LAND_TAKEN")
	default:
		w.audit(actor, "CLAIM_REJECTED", c.BallotID, r, "VOTE_FAILED")
	}
	w.emit(protocol.EventMsg{
		Kind:      protocol.EventClaimResolved,
		Claimant:  c.Claimant,
		BallotID:  c.BallotID,
		ClaimKind: string(c.Kind),
		Approved:  res.Committed,
		X1:        r[0], Y1: r[1], X2: r[2], Y2: r[3],
	})
}
