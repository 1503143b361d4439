package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/dustin/go-humanize"
)

func main() {
	if len(os.Args) >= 2 {
		switch os.Args[1] {
		case "db":
			dbCmd(os.Args[2:])
			return
		case "inspect":
			inspectCmd(os.Args[2:])
			return
		case "state":
			stateCmd(os.Args[2:])
			return
		case "snapshot":
			snapshotCmd(os.Args[2:])
			return
		}
	}
	listCmd(os.Args[1:])
}

func listCmd(args []string) {
	fs := flag.NewFlagSet("admin", flag.ExitOnError)
	dataDir := fs.String("data", "./data", "runtime data directory")
	_ = fs.Parse(args)

	base := filepath.Join(*dataDir, "worlds")
	entries, err := os.ReadDir(base)
	if err != nil {
		fmt.Fprintln(os.Stderr, "read:", err)
		os.Exit(1)
	}
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		worldDir := filepath.Join(base, e.Name())
		latest := latestSnapshot(worldDir)
		if latest == "" {
			fmt.Printf("%s\tno snapshots\n", e.Name())
			continue
		}
		line := fmt.Sprintf("%s\tlatest=%s", e.Name(), filepath.Base(latest))
		if st, err := os.Stat(latest); err == nil {
			line += fmt.Sprintf(" (%s, %s)", humanize.Bytes(uint64(st.Size())), humanize.Time(st.ModTime()))
		}
		fmt.Println(line)
	}
}

// latestSnapshot returns the highest-seq <seq>.snap.zst file under
// worldDir/snapshots, or "".
func latestSnapshot(worldDir string) string {
	dir := filepath.Join(worldDir, "snapshots")
	ents, err := os.ReadDir(dir)
	if err != nil {
		return ""
	}
	var best string
	var bestSeq uint64
	for _, e := range ents {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if !strings.HasSuffix(name, ".snap.zst") {
			continue
		}
		seq, err := strconv.ParseUint(strings.TrimSuffix(name, ".snap.zst"), 10, 64)
		if err != nil {
			continue
		}
		if best == "" || seq > bestSeq {
			bestSeq = seq
			best = filepath.Join(dir, name)
		}
	}
	return best
}
