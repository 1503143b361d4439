package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"landvote.ai/internal/persistence/snapshot"
	"landvote.ai/internal/sim/land"
)

type snapshotSummary struct {
	Path       string
	Size       uint64
	ModTime    time.Time
	WorldID    string
	Seq        uint64
	Digest     string
	Width      int
	Height     int
	AutoExtend bool
	Grants     int
	Owners     int
	Claims     int
	OpenClaims int
	Ballots    int
	Snap       snapshot.SnapshotV1
}

func summarize(path string) (snapshotSummary, error) {
	st, err := os.Stat(path)
	if err != nil {
		return snapshotSummary{}, err
	}
	snap, err := snapshot.ReadSnapshot(path)
	if err != nil {
		return snapshotSummary{}, err
	}
	s := snapshotSummary{
		Path:       path,
		Size:       uint64(st.Size()),
		ModTime:    st.ModTime(),
		WorldID:    snap.Header.WorldID,
		Seq:        snap.Header.Seq,
		Digest:     snap.Header.Digest,
		Width:      snap.Width,
		Height:     snap.Height,
		AutoExtend: snap.AutoExtend,
		Grants:     len(snap.Grants),
		Claims:     len(snap.Claims),
		Ballots:    len(snap.Ballots),
		Snap:       snap,
	}
	owners := map[string]bool{}
	for _, g := range snap.Grants {
		owners[g.Owner] = true
	}
	s.Owners = len(owners)
	for _, c := range snap.Claims {
		if c.Status == string(land.StatusOpen) {
			s.OpenClaims++
		}
	}
	return s, nil
}

func inspectCmd(args []string) {
	fs := flag.NewFlagSet("inspect", flag.ExitOnError)
	dataDir := fs.String("data", "./data", "runtime data directory")
	worldID := fs.String("world", "land_1", "world id (used when -snapshot is empty)")
	snapPath := fs.String("snapshot", "", "snapshot path (optional; defaults to latest)")
	showGrants := fs.Bool("grants", false, "list every grant")
	_ = fs.Parse(args)

	path := strings.TrimSpace(*snapPath)
	if path == "" {
		path = latestSnapshot(filepath.Join(*dataDir, "worlds", *worldID))
	}
	if path == "" {
		fmt.Fprintln(os.Stderr, "no snapshot found; provide -snapshot")
		os.Exit(2)
	}
	s, err := summarize(path)
	if err != nil {
		fmt.Fprintln(os.Stderr, "read snapshot:", err)
		os.Exit(1)
	}

	fmt.Printf("snapshot  %s (%s, written %s)\n", s.Path, humanize.Bytes(s.Size), humanize.Time(s.ModTime))
	fmt.Printf("world     %s seq=%s\n", s.WorldID, humanize.Comma(int64(s.Seq)))
	fmt.Printf("digest    %s\n", s.Digest)
	fmt.Printf("map       %dx%d auto_extend=%v\n", s.Width, s.Height, s.AutoExtend)
	fmt.Printf("grants    %d (owners %d)\n", s.Grants, s.Owners)
	fmt.Printf("claims    %d (open %d)\n", s.Claims, s.OpenClaims)
	fmt.Printf("ballots   %d\n", s.Ballots)
	if *showGrants {
		for i, g := range s.Snap.Grants {
			fmt.Printf("  #%d %s (%d,%d)-(%d,%d)\n", i, g.Owner, g.Rect[0], g.Rect[1], g.Rect[2], g.Rect[3])
		}
	}
}
