package env

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"golang.org/x/sys/unix"

	"buzzy/internal/schema"
	"buzzy/internal/usererr"
)

// FileName is the environment file inside the buzzy directory.
const FileName = "env.yaml"

// DefaultDir returns ~/.buzzy.
func DefaultDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("locating home directory: %w", err)
	}
	return filepath.Join(home, ".buzzy"), nil
}

// Store reads and migrates the environment file at Path.
type Store struct {
	Path  string
	Asker Asker
}

// NewStore returns a store for dir/env.yaml.
func NewStore(dir string, asker Asker) *Store {
	return &Store{Path: filepath.Join(dir, FileName), Asker: asker}
}

var errNotConfigured = usererr.New(`environment is not configured; run "buzzy configure"`)

// Load reads the persisted record. With checkVersion a record older than
// Latest is refused.
func (s *Store) Load(checkVersion bool) (*Record, error) {
	rec, err := s.read()
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, errNotConfigured
	}
	if checkVersion && rec.Version != Latest {
		return nil, usererr.New(`environment is out of date; run "buzzy configure"`)
	}
	return rec, nil
}

// Update migrates the persisted record to Latest, asking for every field
// introduced since its version, and saves it.
func (s *Store) Update() (*Record, error) {
	return s.UpdateTo(Latest)
}

// UpdateTo migrates the persisted record to version target.
func (s *Store) UpdateTo(target int) (*Record, error) {
	if target < 0 || target > Latest {
		return nil, fmt.Errorf("no environment version %d", target)
	}
	rec, err := s.read()
	if err != nil {
		return nil, err
	}
	if rec == nil {
		rec = &Record{}
	}
	dir := filepath.Dir(s.Path)
	for rec.Version < target {
		if rec, err = upgrade(rec, rec.Version+1, dir, s.Asker); err != nil {
			return nil, err
		}
	}
	if err := s.write(rec); err != nil {
		return nil, err
	}
	return rec, nil
}

// read returns nil, nil when nothing has been persisted.
func (s *Store) read() (*Record, error) {
	data, err := os.ReadFile(s.Path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading environment: %w", err)
	}
	doc, err := schema.Parse(data)
	if err != nil {
		return nil, usererr.Wrap(err, s.Path)
	}

	// The version decides which fields must be present.
	var head Record
	if err := specs[0].Decode(doc, nil, &head); err != nil {
		return nil, usererr.Wrap(err, s.Path)
	}
	if head.Version < 0 || head.Version > Latest {
		return nil, usererr.Errorf("%s: unknown environment version %d", s.Path, head.Version)
	}
	var rec Record
	if err := specs[head.Version].Decode(doc, nil, &rec); err != nil {
		return nil, usererr.Wrap(err, s.Path)
	}
	return &rec, nil
}

// write replaces the environment file atomically while holding an
// exclusive lock next to it.
func (s *Store) write(rec *Record) error {
	doc, err := specs[rec.Version].Encode(rec)
	if err != nil {
		return err
	}
	data, err := schema.Marshal(doc)
	if err != nil {
		return fmt.Errorf("encoding environment: %w", err)
	}
	dir := filepath.Dir(s.Path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create %s: %w", dir, err)
	}

	lock, err := os.OpenFile(s.Path+".lock", os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return fmt.Errorf("failed to create lock file: %w", err)
	}
	defer lock.Close()
	if err := unix.Flock(int(lock.Fd()), unix.LOCK_EX); err != nil {
		return fmt.Errorf("failed to lock environment: %w", err)
	}
	defer unix.Flock(int(lock.Fd()), unix.LOCK_UN)

	tmp, err := os.CreateTemp(dir, FileName+".tmp.*")
	if err != nil {
		return fmt.Errorf("failed to create temporary environment file: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to write environment: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to write environment: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.Path); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to update environment: %w", err)
	}
	return nil
}
