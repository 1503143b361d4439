package snapshot

import (
	"path/filepath"
	"reflect"
	"testing"
)

func TestWriteReadSnapshot(t *testing.T) {
	path := filepath.Join(t.TempDir(), "snapshots", "12.snap.zst")
	in := SnapshotV1{
		Header:     Header{Version: Version, WorldID: "land_1", Seq: 12, Digest: "abc"},
		Width:      8,
		Height:     8,
		AutoExtend: true,
		Grants:     []GrantV1{{Owner: "A", Rect: [4]int{1, 1, 2, 2}}},
		Claims: []ClaimV1{
			{Handle: 0, Claimant: "A", Kind: "GRANT", Rect: [4]int{1, 1, 2, 2}, BallotID: "B000001", Status: "APPROVED"},
		},
		Ballots: []BallotV1{{
			BallotID:    "B000001",
			Chairperson: "A",
			Proposals:   []ProposalV1{{Description: "reject"}, {Description: "approve", VoteCount: 1}},
			Voters:      []VoterV1{{ID: "A", Weight: 1, Voted: true, Vote: 1}},
		}},
		Counters: CountersV1{NextBallot: 1},
	}
	if err := WriteSnapshot(path, in); err != nil {
		t.Fatalf("WriteSnapshot: %v", err)
	}

	h, err := ReadHeader(path)
	if err != nil {
		t.Fatalf("ReadHeader: %v", err)
	}
	if h != in.Header {
		t.Fatalf("header=%+v", h)
	}

	out, err := ReadSnapshot(path)
	if err != nil {
		t.Fatalf("ReadSnapshot: %v", err)
	}
	if !reflect.DeepEqual(in, out) {
		t.Fatalf("snapshot mismatch:\nin=%+v\nout=%+v", in, out)
	}
}

func TestReadSnapshotRejectsUnknownVersion(t *testing.T) {
	path := filepath.Join(t.TempDir(), "1.snap.zst")
	if err := WriteSnapshot(path, SnapshotV1{Header: Header{Version: 99}}); err != nil {
		t.Fatalf("WriteSnapshot: %v", err)
	}
	if _, err := ReadSnapshot(path); err == nil {
		t.Fatalf("expected version error")
	}
}
