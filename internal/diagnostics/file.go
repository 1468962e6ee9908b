package diagnostics

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// FileTimeLayout is the timestamp layout of error log lines.
const FileTimeLayout = "2006-01-02 15:04:05"

// FileSink appends one line per rejection to a text log:
//
//	2024-03-05 14:07:09 - ERROR - [UUID: 9b2f...] Validation failed for 'a.csv': ...
type FileSink struct {
	path string

	mu sync.Mutex
	f  *os.File
}

// OpenFileSink creates the log directory, truncates the log file and
// opens it for appending.
func OpenFileSink(path string) (*FileSink, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create error log dir: %w", err)
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open error log: %w", err)
	}
	return &FileSink{path: path, f: f}, nil
}

// Path returns the log file path.
func (s *FileSink) Path() string {
	return s.path
}

// RecordRejection implements Sink.
func (s *FileSink) RecordRejection(_ context.Context, ev Event) error {
	line := formatLine(ev)

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.f == nil {
		return fmt.Errorf("error log %s is closed", s.path)
	}
	if _, err := s.f.WriteString(line); err != nil {
		return fmt.Errorf("write error log: %w", err)
	}
	return nil
}

// Lines returns the raw log lines in file order.
func (s *FileSink) Lines() ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := os.Open(s.path)
	if err != nil {
		return nil, fmt.Errorf("read error log: %w", err)
	}
	defer f.Close()

	var lines []string
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 64*1024), 4*1024*1024)
	for sc.Scan() {
		if line := strings.TrimSpace(sc.Text()); line != "" {
			lines = append(lines, line)
		}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read error log: %w", err)
	}
	return lines, nil
}

// Recent implements Lister by parsing the last limit log lines.
// limit <= 0 returns every line. Lines that do not parse are returned
// with only Message set.
func (s *FileSink) Recent(_ context.Context, limit int) ([]Event, error) {
	lines, err := s.Lines()
	if err != nil {
		return nil, err
	}
	if limit > 0 && len(lines) > limit {
		lines = lines[len(lines)-limit:]
	}

	events := make([]Event, 0, len(lines))
	for _, line := range lines {
		events = append(events, parseLine(line))
	}
	return events, nil
}

// Count implements Counter.
func (s *FileSink) Count(context.Context) (int64, error) {
	lines, err := s.Lines()
	if err != nil {
		return 0, err
	}
	return int64(len(lines)), nil
}

// Close closes the log file.
func (s *FileSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.f == nil {
		return nil
	}
	err := s.f.Close()
	s.f = nil
	return err
}

func formatLine(ev Event) string {
	// One event per line; embedded newlines would split it.
	msg := strings.NewReplacer("\r\n", " ", "\n", " ", "\r", " ").Replace(ev.Message)
	return fmt.Sprintf("%s - ERROR - [UUID: %s] %s\n", ev.Time.Format(FileTimeLayout), ev.ID, msg)
}

func parseLine(line string) Event {
	ev := Event{Message: line}

	ts, rest, ok := strings.Cut(line, " - ERROR - [UUID: ")
	if !ok {
		return ev
	}
	id, msg, ok := strings.Cut(rest, "] ")
	if !ok {
		return ev
	}
	t, err := time.ParseInLocation(FileTimeLayout, ts, time.Local)
	if err != nil {
		return ev
	}

	ev.Time = t
	ev.ID, _ = uuid.Parse(id)
	ev.Message = msg
	return ev
}
