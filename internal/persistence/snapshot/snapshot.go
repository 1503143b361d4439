package snapshot

import (
	"bufio"
	"encoding/gob"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/zstd"
)

const Version = 1

type Header struct {
	Version int    `json:"version"`
	WorldID string `json:"world_id"`
	Seq     uint64 `json:"seq"`
	Digest  string `json:"digest,omitempty"`
}

type SnapshotV1 struct {
	Header Header `json:"header"`

	Width      int  `json:"width"`
	Height     int  `json:"height"`
	AutoExtend bool `json:"auto_extend,omitempty"`

	// Operational parameters (captured for replay/resume).
	SnapshotEveryCommands int `json:"snapshot_every_commands,omitempty"`

	Grants  []GrantV1  `json:"grants"`
	Claims  []ClaimV1  `json:"claims"`
	Ballots []BallotV1 `json:"ballots"`

	Counters CountersV1 `json:"counters"`
}

type CountersV1 struct {
	NextBallot uint64 `json:"next_ballot"`
}

type GrantV1 struct {
	Owner string `json:"owner"`
	Rect  [4]int `json:"rect"`
}

type ClaimV1 struct {
	Handle   int    `json:"handle"`
	Claimant string `json:"claimant"`
	Kind     string `json:"kind"`
	Rect     [4]int `json:"rect"`
	Width    int    `json:"width,omitempty"`
	Height   int    `json:"height,omitempty"`
	BallotID string `json:"ballot_id"`
	Status   string `json:"status"`
}

type BallotV1 struct {
	BallotID    string       `json:"ballot_id"`
	Chairperson string       `json:"chairperson"`
	Proposals   []ProposalV1 `json:"proposals"`
	Voters      []VoterV1    `json:"voters"`
}

type ProposalV1 struct {
	Description string `json:"description"`
	VoteCount   int    `json:"vote_count"`
}

type VoterV1 struct {
	ID     string `json:"id"`
	Weight int    `json:"weight"`
	Voted  bool   `json:"voted"`
	// Vote is -1 when the voter has not voted.
	Vote int `json:"vote"`
}

func WriteSnapshot(path string, snap SnapshotV1) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	enc, err := zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return err
	}

	bw := bufio.NewWriterSize(enc, 64*1024)
	hb, _ := json.Marshal(snap.Header)
	if _, err := bw.Write(hb); err != nil {
		_ = enc.Close()
		return err
	}
	if err := bw.WriteByte('\n'); err != nil {
		_ = enc.Close()
		return err
	}
	if err := gob.NewEncoder(bw).Encode(&snap); err != nil {
		_ = enc.Close()
		return fmt.Errorf("gob encode: %w", err)
	}
	if err := bw.Flush(); err != nil {
		_ = enc.Close()
		return err
	}
	if err := enc.Close(); err != nil {
		return err
	}
	return f.Sync()
}

func ReadSnapshot(path string) (SnapshotV1, error) {
	var snap SnapshotV1
	f, err := os.Open(path)
	if err != nil {
		return snap, err
	}
	defer f.Close()

	dec, err := zstd.NewReader(f)
	if err != nil {
		return snap, err
	}
	defer dec.Close()

	br := bufio.NewReaderSize(dec, 64*1024)

	// The header line is for humans and tooling; gob carries it too.
	if _, err := br.ReadBytes('\n'); err != nil {
		return snap, fmt.Errorf("read header: %w", err)
	}
	if err := gob.NewDecoder(br).Decode(&snap); err != nil {
		return snap, fmt.Errorf("gob decode: %w", err)
	}
	if snap.Header.Version != Version {
		return snap, fmt.Errorf("unsupported snapshot version %d", snap.Header.Version)
	}
	return snap, nil
}

// ReadHeader decodes only the leading JSON header line.
func ReadHeader(path string) (Header, error) {
	var h Header
	f, err := os.Open(path)
	if err != nil {
		return h, err
	}
	defer f.Close()

	dec, err := zstd.NewReader(f)
	if err != nil {
		return h, err
	}
	defer dec.Close()

	line, err := bufio.NewReader(dec).ReadBytes('\n')
	if err != nil {
		return h, fmt.Errorf("read header: %w", err)
	}
	if err := json.Unmarshal(line, &h); err != nil {
		return h, fmt.Errorf("decode header: %w", err)
	}
	return h, nil
}
