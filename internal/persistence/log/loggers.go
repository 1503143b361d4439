package log

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/klauspost/compress/zstd"

	"landvote.ai/internal/sim/world"
)

// On-disk layout: <worldDir>/<stream>/<stream>-YYYY-MM-DD-HH.jsonl.zst, one
// segment per UTC hour.
const (
	commandsStream = "commands"
	auditStream    = "audit"

	segmentLayout = "2006-01-02-15"
	segmentSuffix = ".jsonl.zst"
)

var ErrClosed = errors.New("log closed")

func segmentPath(dir, stream, hour string) string {
	return filepath.Join(dir, stream+"-"+hour+segmentSuffix)
}

// segmentWriter appends JSON lines to hourly zstd segments. Each line is
// flushed as its own zstd block, so an open segment can be read up to its
// last complete line.
type segmentWriter struct {
	dir    string
	stream string
	now    func() time.Time

	mu     sync.Mutex
	closed bool
	hour   string
	file   *os.File
	zw     *zstd.Encoder
	line   []byte
}

func newSegmentWriter(worldDir, stream string) *segmentWriter {
	return &segmentWriter{
		dir:    filepath.Join(worldDir, stream),
		stream: stream,
		now:    time.Now,
	}
}

func (s *segmentWriter) append(v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("%s: encode: %w", s.stream, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	if hour := s.now().UTC().Format(segmentLayout); hour != s.hour {
		if err := s.openSegment(hour); err != nil {
			return fmt.Errorf("%s: rotate: %w", s.stream, err)
		}
	}
	s.line = append(append(s.line[:0], b...), '\n')
	if _, err := s.zw.Write(s.line); err != nil {
		return err
	}
	return s.zw.Flush()
}

// openSegment finishes the current segment and opens the one for hour.
// Reopening an existing hour appends a new zstd frame to it.
func (s *segmentWriter) openSegment(hour string) error {
	if err := s.finish(); err != nil {
		return err
	}
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(segmentPath(s.dir, s.stream, hour), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}
	zw, err := zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.SpeedFastest))
	if err != nil {
		_ = f.Close()
		return err
	}
	s.file, s.zw, s.hour = f, zw, hour
	return nil
}

func (s *segmentWriter) finish() error {
	var err error
	if s.zw != nil {
		err = s.zw.Close()
		s.zw = nil
	}
	if s.file != nil {
		if cerr := s.file.Close(); err == nil {
			err = cerr
		}
		s.file = nil
	}
	s.hour = ""
	return err
}

func (s *segmentWriter) close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.finish()
}

// CommandLogger records every applied mutating command with its digest.
// ReadCommands reads the stream back for replay.
type CommandLogger struct{ seg *segmentWriter }

func NewCommandLogger(worldDir string) *CommandLogger {
	return &CommandLogger{seg: newSegmentWriter(worldDir, commandsStream)}
}

func (l *CommandLogger) WriteCommand(e world.CommandLogEntry) error { return l.seg.append(e) }
func (l *CommandLogger) Close() error                               { return l.seg.close() }

// AuditLogger records claim lifecycle actions.
type AuditLogger struct{ seg *segmentWriter }

func NewAuditLogger(worldDir string) *AuditLogger {
	return &AuditLogger{seg: newSegmentWriter(worldDir, auditStream)}
}

func (l *AuditLogger) WriteAudit(e world.AuditEntry) error { return l.seg.append(e) }
func (l *AuditLogger) Close() error                        { return l.seg.close() }
