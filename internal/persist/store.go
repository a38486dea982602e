package persist

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"
)

const (
	filePrefix = "session_"
	fileSuffix = ".cbor"
)

// Store keeps session snapshots on disk as session_<unix>.cbor files.
type Store struct {
	dir      string
	maxFiles int
}

// NewStore creates a Store that writes into dir and keeps at most maxFiles.
func NewStore(dir string, maxFiles int) *Store {
	if maxFiles <= 0 {
		maxFiles = 5
	}
	return &Store{
		dir:      dir,
		maxFiles: maxFiles,
	}
}

func (s *Store) Dir() string { return s.dir }

// Save encodes snap into a file named after its timestamp and prunes old
// files beyond maxFiles. It returns the file path.
func (s *Store) Save(snap Snapshot) (string, error) {
	data, err := Encode(snap)
	if err != nil {
		return "", err
	}
	return s.write(data, snap.SavedAt)
}

func (s *Store) write(data []byte, ts time.Time) (string, error) {
	if err := os.MkdirAll(s.dir, 0755); err != nil {
		return "", fmt.Errorf("creating snapshot dir: %w", err)
	}

	path := filepath.Join(s.dir, fmt.Sprintf("%s%d%s", filePrefix, ts.Unix(), fileSuffix))
	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", fmt.Errorf("writing snapshot file: %w", err)
	}

	return path, s.prune()
}

// LoadLatest decodes the newest snapshot by the timestamp in its file name.
func (s *Store) LoadLatest() (Snapshot, time.Time, error) {
	files, err := s.listFiles()
	if err != nil {
		return Snapshot{}, time.Time{}, err
	}
	if len(files) == 0 {
		return Snapshot{}, time.Time{}, fmt.Errorf("%s: %w", s.dir, ErrNoSnapshot)
	}

	// Oldest first.
	latest := files[len(files)-1]
	data, err := os.ReadFile(filepath.Join(s.dir, latest.name))
	if err != nil {
		return Snapshot{}, time.Time{}, fmt.Errorf("reading snapshot file: %w", err)
	}
	snap, err := Decode(data)
	if err != nil {
		return Snapshot{}, time.Time{}, fmt.Errorf("%s: %w", latest.name, err)
	}
	return snap, latest.ts, nil
}

// List returns the timestamps of the stored snapshots, oldest first.
func (s *Store) List() ([]time.Time, error) {
	files, err := s.listFiles()
	if err != nil {
		return nil, err
	}
	out := make([]time.Time, len(files))
	for i, f := range files {
		out[i] = f.ts
	}
	return out, nil
}

type snapshotFile struct {
	name string
	ts   time.Time
}

func (s *Store) listFiles() ([]snapshotFile, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("listing snapshot dir: %w", err)
	}

	var files []snapshotFile
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if !strings.HasPrefix(name, filePrefix) || !strings.HasSuffix(name, fileSuffix) {
			continue
		}
		unix, err := strconv.ParseInt(strings.TrimSuffix(strings.TrimPrefix(name, filePrefix), fileSuffix), 10, 64)
		if err != nil {
			continue
		}
		files = append(files, snapshotFile{name: name, ts: time.Unix(unix, 0)})
	}

	sort.Slice(files, func(i, j int) bool {
		return files[i].ts.Before(files[j].ts)
	})

	return files, nil
}

func (s *Store) prune() error {
	files, err := s.listFiles()
	if err != nil {
		return err
	}
	if len(files) <= s.maxFiles {
		return nil
	}

	for _, f := range files[:len(files)-s.maxFiles] {
		if err := os.Remove(filepath.Join(s.dir, f.name)); err != nil {
			return fmt.Errorf("pruning snapshot file %s: %w", f.name, err)
		}
	}
	return nil
}
