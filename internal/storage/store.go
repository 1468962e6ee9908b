// Package storage persists accepted batch files on the local filesystem.
package storage

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"
)

// ErrInvalidName is returned by Read for names that are not bare file names.
var ErrInvalidName = errors.New("invalid file name")

// TimestampLayout formats the time part of stored file names.
const TimestampLayout = "20060102150405"

// maxCollisions bounds the suffix search when several files are stored
// within the same second.
const maxCollisions = 1000

// Store writes accepted content under fresh, collision-free names.
type Store struct {
	dir    string
	prefix string
	now    func() time.Time
}

// New creates the directory if needed and returns a Store writing
// names of the form <prefix><YYYYmmddHHMMSS>.csv into it.
func New(dir, prefix string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create storage dir %s: %w", dir, err)
	}
	return &Store{dir: dir, prefix: prefix, now: time.Now}, nil
}

// Dir returns the storage directory.
func (s *Store) Dir() string {
	return s.dir
}

// Save writes content verbatim and returns the stored file name.
// When the timestamped name exists, _1, _2, ... suffixes are tried.
func (s *Store) Save(content []byte) (string, error) {
	base := s.prefix + s.now().Format(TimestampLayout)

	for i := 0; i < maxCollisions; i++ {
		name := base + ".csv"
		if i > 0 {
			name = base + "_" + strconv.Itoa(i) + ".csv"
		}

		err := writeExclusive(filepath.Join(s.dir, name), content)
		if err == nil {
			return name, nil
		}
		if !errors.Is(err, fs.ErrExist) {
			return "", fmt.Errorf("save %s: %w", name, err)
		}
	}
	return "", fmt.Errorf("save %s: too many files with the same timestamp", base)
}

// List returns the stored file names in lexical (and thus time) order.
func (s *Store) List() ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", s.dir, err)
	}

	var names []string
	for _, e := range entries {
		if e.IsDir() || !strings.HasPrefix(e.Name(), s.prefix) {
			continue
		}
		if strings.EqualFold(filepath.Ext(e.Name()), ".csv") {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	return names, nil
}

// Read returns the content of a stored file. name must be a bare file name.
func (s *Store) Read(name string) ([]byte, error) {
	if name == "" || name != filepath.Base(name) || strings.ContainsAny(name, `/\`) {
		return nil, fmt.Errorf("read %q: %w", name, ErrInvalidName)
	}
	return os.ReadFile(filepath.Join(s.dir, name))
}

func writeExclusive(path string, content []byte) error {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return err
	}
	if _, err := f.Write(content); err != nil {
		f.Close()
		os.Remove(path)
		return err
	}
	return f.Close()
}
