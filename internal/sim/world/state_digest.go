package world

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"hash"
	"sort"
)

// stateDigest hashes the canonical ledger and ballot state. Two worlds that
// applied the same commands from the same start produce the same digest.
func (w *World) stateDigest() string {
	h := sha256.New()
	var tmp [8]byte

	s := w.mgr.ExportState()
	digestWriteI64(h, &tmp, int64(s.Width))
	digestWriteI64(h, &tmp, int64(s.Height))
	digestWriteU64(h, &tmp, s.NextBallot)

	digestWriteU64(h, &tmp, uint64(len(s.Grants)))
	for _, g := range s.Grants {
		digestWriteString(h, &tmp, g.Owner)
		digestWriteRect(h, &tmp, g.Rect.X1, g.Rect.Y1, g.Rect.X2, g.Rect.Y2)
	}

	digestWriteU64(h, &tmp, uint64(len(s.Claims)))
	for _, c := range s.Claims {
		digestWriteString(h, &tmp, c.Claimant)
		digestWriteString(h, &tmp, string(c.Kind))
		digestWriteRect(h, &tmp, c.Rect.X1, c.Rect.Y1, c.Rect.X2, c.Rect.Y2)
		digestWriteI64(h, &tmp, int64(c.Width))
		digestWriteI64(h, &tmp, int64(c.Height))
		digestWriteString(h, &tmp, c.BallotID)
		digestWriteString(h, &tmp, string(c.Status))
	}

	// Ballots are exported sorted by id.
	digestWriteU64(h, &tmp, uint64(len(s.Ballots)))
	for _, b := range s.Ballots {
		digestWriteString(h, &tmp, b.ID)
		digestWriteString(h, &tmp, b.Chairperson)
		for _, p := range b.Proposals {
			digestWriteI64(h, &tmp, int64(p.VoteCount))
		}
		ids := make([]string, 0, len(b.Voters))
		for id := range b.Voters {
			ids = append(ids, id)
		}
		sort.Strings(ids)
		for _, id := range ids {
			v := b.Voters[id]
			digestWriteString(h, &tmp, id)
			digestWriteI64(h, &tmp, int64(v.Weight))
			vote := int64(-1)
			if v.Vote != nil {
				vote = int64(*v.Vote)
			}
			h.Write([]byte{boolByte(v.Voted)})
			digestWriteI64(h, &tmp, vote)
		}
	}

	return hex.EncodeToString(h.Sum(nil))
}

func digestWriteU64(h hash.Hash, tmp *[8]byte, v uint64) {
	binary.LittleEndian.PutUint64(tmp[:], v)
	h.Write(tmp[:])
}

func digestWriteI64(h hash.Hash, tmp *[8]byte, v int64) {
	digestWriteU64(h, tmp, uint64(v))
}

func digestWriteString(h hash.Hash, tmp *[8]byte, s string) {
	digestWriteU64(h, tmp, uint64(len(s)))
	h.Write([]byte(s))
}

func digestWriteRect(h hash.Hash, tmp *[8]byte, x1, y1, x2, y2 int) {
	digestWriteI64(h, tmp, int64(x1))
	digestWriteI64(h, tmp, int64(y1))
	digestWriteI64(h, tmp, int64(x2))
	digestWriteI64(h, tmp, int64(y2))
}

func boolByte(b bool) byte {
	if b {
		return 1
	}
	return 0
}
