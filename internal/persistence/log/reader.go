package log

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"

	"github.com/klauspost/compress/zstd"

	"landvote.ai/internal/sim/world"
)

// ReadCommands returns every command entry under worldDir/commands, ordered by
// Seq. A truncated final frame (a writer that never closed) is tolerated.
func ReadCommands(worldDir string) ([]world.CommandLogEntry, error) {
	var out []world.CommandLogEntry
	err := readJSONL(filepath.Join(worldDir, commandsStream), commandsStream, func(line []byte) error {
		var e world.CommandLogEntry
		if err := json.Unmarshal(line, &e); err != nil {
			return err
		}
		out = append(out, e)
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Seq < out[j].Seq })
	return out, nil
}

// ReadAudits returns every audit entry under worldDir/audit in file order.
func ReadAudits(worldDir string) ([]world.AuditEntry, error) {
	var out []world.AuditEntry
	err := readJSONL(filepath.Join(worldDir, auditStream), auditStream, func(line []byte) error {
		var e world.AuditEntry
		if err := json.Unmarshal(line, &e); err != nil {
			return err
		}
		out = append(out, e)
		return nil
	})
	return out, err
}

func readJSONL(dir, prefix string, fn func(line []byte) error) error {
	files, err := filepath.Glob(filepath.Join(dir, prefix+"-*"+segmentSuffix))
	if err != nil {
		return err
	}
	// Hour stamps sort lexically.
	sort.Strings(files)
	for _, path := range files {
		if err := readFile(path, fn); err != nil {
			return fmt.Errorf("%s: %w", filepath.Base(path), err)
		}
	}
	return nil
}

func readFile(path string, fn func(line []byte) error) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	dec, err := zstd.NewReader(f)
	if err != nil {
		return err
	}
	defer dec.Close()

	sc := bufio.NewScanner(dec)
	sc.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for sc.Scan() {
		line := sc.Bytes()
		if len(line) == 0 {
			continue
		}
		if err := fn(line); err != nil {
			return err
		}
	}
	if err := sc.Err(); err != nil && !errors.Is(err, io.ErrUnexpectedEOF) {
		return err
	}
	return nil
}
