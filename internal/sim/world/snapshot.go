package world

import (
	"fmt"
	"sort"

	"landvote.ai/internal/persistence/snapshot"
	"landvote.ai/internal/sim/ballot"
	"landvote.ai/internal/sim/grid"
	"landvote.ai/internal/sim/land"
)

func (w *World) exportSnapshot() snapshot.SnapshotV1 {
	s := w.mgr.ExportState()
	snap := snapshot.SnapshotV1{
		Header: snapshot.Header{
			Version: snapshot.Version,
			WorldID: w.cfg.ID,
			Seq:     w.seq,
			Digest:  w.stateDigest(),
		},
		Width:                 s.Width,
		Height:                s.Height,
		AutoExtend:            s.AutoExtend,
		SnapshotEveryCommands: w.cfg.SnapshotEveryCommands,
		Counters:              snapshot.CountersV1{NextBallot: s.NextBallot},
	}
	for _, g := range s.Grants {
		snap.Grants = append(snap.Grants, snapshot.GrantV1{
			Owner: g.Owner,
			Rect:  [4]int{g.Rect.X1, g.Rect.Y1, g.Rect.X2, g.Rect.Y2},
		})
	}
	for _, c := range s.Claims {
		snap.Claims = append(snap.Claims, snapshot.ClaimV1{
			Handle:   c.Handle,
			Claimant: c.Claimant,
			Kind:     string(c.Kind),
			Rect:     rectArr(c),
			Width:    c.Width,
			Height:   c.Height,
			BallotID: c.BallotID,
			Status:   string(c.Status),
		})
	}
	for _, b := range s.Ballots {
		bv := snapshot.BallotV1{BallotID: b.ID, Chairperson: b.Chairperson}
		for _, p := range b.Proposals {
			bv.Proposals = append(bv.Proposals, snapshot.ProposalV1{Description: p.Description, VoteCount: p.VoteCount})
		}
		ids := make([]string, 0, len(b.Voters))
		for id := range b.Voters {
			ids = append(ids, id)
		}
		sort.Strings(ids)
		for _, id := range ids {
			v := b.Voters[id]
			vote := -1
			if v.Vote != nil {
				vote = *v.Vote
			}
			bv.Voters = append(bv.Voters, snapshot.VoterV1{ID: id, Weight: v.Weight, Voted: v.Voted, Vote: vote})
		}
		snap.Ballots = append(snap.Ballots, bv)
	}
	return snap
}

// importSnapshot replaces the in-memory state. The snapshot's sequence number
// becomes the current one, so the next command gets Seq+1.
//
// This must be called only when the world is stopped or from the world loop goroutine.
func (w *World) importSnapshot(snap snapshot.SnapshotV1) error {
	if snap.Header.Version != snapshot.Version {
		return fmt.Errorf("import snapshot: unsupported version %d", snap.Header.Version)
	}
	s := land.State{
		Width:      snap.Width,
		Height:     snap.Height,
		AutoExtend: snap.AutoExtend,
		NextBallot: snap.Counters.NextBallot,
	}
	for _, g := range snap.Grants {
		s.Grants = append(s.Grants, grid.Grant{Owner: g.Owner, Rect: grid.NewRect(g.Rect[0], g.Rect[1], g.Rect[2], g.Rect[3])})
	}
	for _, c := range snap.Claims {
		s.Claims = append(s.Claims, land.Claim{
			Handle:   c.Handle,
			Claimant: c.Claimant,
			Kind:     land.Kind(c.Kind),
			Rect:     grid.NewRect(c.Rect[0], c.Rect[1], c.Rect[2], c.Rect[3]),
			Width:    c.Width,
			Height:   c.Height,
			BallotID: c.BallotID,
			Status:   land.Status(c.Status),
		})
	}
	for _, b := range snap.Ballots {
		bs := ballot.State{
			ID:          b.BallotID,
			Chairperson: b.Chairperson,
			Voters:      make(map[string]ballot.Voter, len(b.Voters)),
		}
		for _, p := range b.Proposals {
			bs.Proposals = append(bs.Proposals, ballot.Proposal{Description: p.Description, VoteCount: p.VoteCount})
		}
		for _, v := range b.Voters {
			bv := ballot.Voter{Weight: v.Weight, Voted: v.Voted}
			if v.Vote >= 0 {
				vote := v.Vote
				bv.Vote = &vote
			}
			bs.Voters[v.ID] = bv
		}
		s.Ballots = append(s.Ballots, bs)
	}

	mgr, err := land.ImportState(s)
	if err != nil {
		return fmt.Errorf("import snapshot: %w", err)
	}
	prev := w.mgr
	w.mgr = mgr
	if snap.Header.Digest != "" && snap.Header.Digest != w.stateDigest() {
		w.mgr = prev
		return fmt.Errorf("import snapshot: digest mismatch at seq %d", snap.Header.Seq)
	}
	w.seq = snap.Header.Seq
	w.cfg.Width = snap.Width
	w.cfg.Height = snap.Height
	w.cfg.AutoExtend = snap.AutoExtend
	w.publishMetrics()
	return nil
}
