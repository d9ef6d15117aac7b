// Package store provides the durable JSON records that let ColdSentry's
// failure counters survive process restarts and the reboots they trigger.
//
// Records are whole-file read/parse/mutate/serialize/write, guarded by an OS
// advisory lock so that independent processes (monitor, updater, setup) can
// share a record without losing each other's updates. There is no schema
// versioning; a record that fails to parse is treated as absent.
package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"reflect"

	"golang.org/x/sys/unix"
)

// Store is a single durable JSON record on disk.
type Store struct {
	path string
}

// New returns a Store backed by the given file path. The file and its parent
// directory are created on first write.
func New(path string) *Store {
	return &Store{path: path}
}

// Path returns the backing file path.
func (s *Store) Path() string {
	return s.path
}

// Load reads the record into v under a shared lock. A record that parses
// replaces *v wholesale, so fields absent from the file come back zero even
// when v already held values. It returns false if the file does not exist yet
// or does not parse; v is left untouched in both cases so the caller's
// defaults survive.
func (s *Store) Load(v any) (bool, error) {
	lock, err := s.acquire(unix.LOCK_SH)
	if err != nil {
		return false, err
	}
	defer lock.release()

	return s.loadLocked(v)
}

// Save serializes v and replaces the record under an exclusive lock. The
// write goes through a temp file and rename so readers never observe a
// partially written record.
func (s *Store) Save(v any) error {
	lock, err := s.acquire(unix.LOCK_EX)
	if err != nil {
		return err
	}
	defer lock.release()

	return s.saveLocked(v)
}

// Update runs a read-modify-write cycle on the record under a single
// exclusive lock, closing the race window between concurrent writers. If the
// record is missing or corrupt, fn receives v as the caller initialized it.
func (s *Store) Update(v any, fn func() error) error {
	lock, err := s.acquire(unix.LOCK_EX)
	if err != nil {
		return err
	}
	defer lock.release()

	if _, err := s.loadLocked(v); err != nil {
		return err
	}
	if err := fn(); err != nil {
		return err
	}
	return s.saveLocked(v)
}

// Remove deletes the record file. Missing files are not an error.
func (s *Store) Remove() error {
	lock, err := s.acquire(unix.LOCK_EX)
	if err != nil {
		return err
	}
	defer lock.release()

	if err := os.Remove(s.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}

// Exists reports whether the record file is present.
func (s *Store) Exists() bool {
	_, err := os.Stat(s.path)
	return err == nil
}

func (s *Store) loadLocked(v any) (bool, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("read %s: %w", s.path, err)
	}

	// Unmarshal into a fresh value and copy it over on success. Unmarshalling
	// straight into v would merge the file into whatever v already held, and a
	// record whose writer cleared a field must not come back with the stale
	// value resurrected.
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Pointer || rv.IsNil() {
		return false, fmt.Errorf("load %s: destination must be a non-nil pointer", s.path)
	}
	fresh := reflect.New(rv.Elem().Type())
	if err := json.Unmarshal(data, fresh.Interface()); err != nil {
		// A corrupt record must never wedge the caller. Treat it as absent;
		// the next Save rewrites it.
		return false, nil
	}
	rv.Elem().Set(fresh.Elem())
	return true, nil
}

func (s *Store) saveLocked(v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal %s: %w", s.path, err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(s.path)+".tmp-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(append(data, '\n')); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), s.path)
}

// fileLock holds an advisory flock on a sidecar lock file. The sidecar keeps
// the lock identity stable across the temp-file rename in saveLocked.
type fileLock struct {
	f *os.File
}

func (s *Store) acquire(how int) (*fileLock, error) {
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create %s: %w", dir, err)
	}

	f, err := os.OpenFile(s.path+".lock", os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return nil, err
	}

	if err := unix.Flock(int(f.Fd()), how); err != nil {
		f.Close()
		return nil, fmt.Errorf("lock %s: %w", s.path, err)
	}
	return &fileLock{f: f}, nil
}

func (l *fileLock) release() {
	_ = unix.Flock(int(l.f.Fd()), unix.LOCK_UN)
	_ = l.f.Close()
}
