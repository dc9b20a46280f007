// Package store keeps one engine source file per app under a runtime directory:
//
//	<root>/<app_id>/<file name>
package store

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"sync"

	"caseflow/internal/domain"
)

var appIDPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_.-]{0,127}$`)

// CheckAppID rejects ids that are not a single safe path element.
func CheckAppID(id string) error {
	if !appIDPattern.MatchString(id) || id == "." || id == ".." {
		return fmt.Errorf("%w: app id %q", domain.ErrInvalidArgument, id)
	}
	return nil
}

type FileStore struct {
	Root     string
	FileName string

	locks sync.Map
}

func New(root, fileName string) *FileStore {
	return &FileStore{Root: root, FileName: fileName}
}

// Path returns the source path of an app.
func (s *FileStore) Path(appID string) string {
	return filepath.Join(s.Root, appID, s.FileName)
}

// Lock serialises read-modify-write cycles on one app. The returned func unlocks.
func (s *FileStore) Lock(appID string) func() {
	v, _ := s.locks.LoadOrStore(appID, &sync.Mutex{})
	mu := v.(*sync.Mutex)
	mu.Lock()
	return mu.Unlock
}

func (s *FileStore) Read(appID string) ([]byte, error) {
	if err := CheckAppID(appID); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(s.Path(appID))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%s: %w", s.Path(appID), domain.ErrFileNotFound)
	}
	return data, err
}

func (s *FileStore) Exists(appID string) bool {
	_, err := os.Stat(s.Path(appID))
	return err == nil
}

// Write replaces the source of an app atomically: the text goes to a temp file
// in the same directory which is then renamed over the target.
func (s *FileStore) Write(appID string, data []byte) error {
	if err := CheckAppID(appID); err != nil {
		return err
	}
	path := s.Path(appID)
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	mode := fs.FileMode(0o644)
	if info, err := os.Stat(path); err == nil {
		mode = info.Mode().Perm()
	}
	tmp, err := os.CreateTemp(dir, "."+s.FileName+".*.tmp")
	if err != nil {
		return err
	}
	name := tmp.Name()
	cleanup := func(err error) error {
		tmp.Close()
		os.Remove(name)
		return err
	}
	if _, err := tmp.Write(data); err != nil {
		return cleanup(err)
	}
	if err := tmp.Sync(); err != nil {
		return cleanup(err)
	}
	if err := tmp.Chmod(mode); err != nil {
		return cleanup(err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(name)
		return err
	}
	if err := os.Rename(name, path); err != nil {
		os.Remove(name)
		return err
	}
	return nil
}

// Create writes the first source of an app and fails if one exists.
func (s *FileStore) Create(appID string, data []byte) error {
	if err := CheckAppID(appID); err != nil {
		return err
	}
	if s.Exists(appID) {
		return fmt.Errorf("app %s: %w", appID, domain.ErrAlreadyExists)
	}
	return s.Write(appID, data)
}

// Remove deletes the source of an app and its directory when nothing else is
// left in it. A missing source is not an error.
func (s *FileStore) Remove(appID string) error {
	if err := CheckAppID(appID); err != nil {
		return err
	}
	if err := os.Remove(s.Path(appID)); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	// fails while anything else is left in the directory
	_ = os.Remove(filepath.Dir(s.Path(appID)))
	return nil
}

// List returns the ids of apps that have a source file, sorted.
func (s *FileStore) List() ([]string, error) {
	entries, err := os.ReadDir(s.Root)
	if errors.Is(err, fs.ErrNotExist) {
		return []string{}, nil
	}
	if err != nil {
		return nil, err
	}
	ids := []string{}
	for _, e := range entries {
		if !e.IsDir() || CheckAppID(e.Name()) != nil {
			continue
		}
		if s.Exists(e.Name()) {
			ids = append(ids, e.Name())
		}
	}
	sort.Strings(ids)
	return ids, nil
}
