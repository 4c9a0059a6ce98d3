// Package library persists the set of installed mod packages.
package library

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/spf13/afero"

	"voidmod/internal/install"
)

const indexVersion = 1

// Entry is one installed package.
type Entry struct {
	install.Installation
	SourceURL   string    `json:"source_url,omitempty"`
	InstalledAt time.Time `json:"installed_at"`
}

// Index is the on-disk library document.
type Index struct {
	Version int              `json:"version"`
	Entries map[string]Entry `json:"entries"`
}

// Store reads and writes the index file through an afero filesystem so tests
// can run against memory.
type Store struct {
	fs   afero.Fs
	path string
}

func NewStore(fs afero.Fs, path string) *Store {
	if fs == nil {
		fs = afero.NewOsFs()
	}
	return &Store{fs: fs, path: path}
}

// Path returns the index file location.
func (s *Store) Path() string {
	return s.path
}

// Load reads the index, returning an empty one when the file is missing.
func (s *Store) Load() (*Index, error) {
	data, err := afero.ReadFile(s.fs, s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return newIndex(), nil
		}
		return nil, fmt.Errorf("read library: %w", err)
	}

	var idx Index
	if err := json.Unmarshal(data, &idx); err != nil {
		return nil, fmt.Errorf("decode library: %w", err)
	}
	idx.normalize()
	return &idx, nil
}

// Save writes the index atomically through a temp file and rename.
func (s *Store) Save(idx *Index) error {
	if err := s.fs.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("ensure library dir: %w", err)
	}
	if idx == nil {
		idx = newIndex()
	}
	idx.normalize()

	data, err := json.MarshalIndent(idx, "", "  ")
	if err != nil {
		return fmt.Errorf("encode library: %w", err)
	}

	tmp := s.path + ".tmp"
	if err := afero.WriteFile(s.fs, tmp, data, 0o644); err != nil {
		return fmt.Errorf("write temp library: %w", err)
	}
	if err := s.fs.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("replace library: %w", err)
	}
	return nil
}

// Update loads the index, applies fn and saves the result when fn succeeds.
func (s *Store) Update(fn func(*Index) error) error {
	idx, err := s.Load()
	if err != nil {
		return err
	}
	if err := fn(idx); err != nil {
		return err
	}
	return s.Save(idx)
}

// Key identifies a package within a game.
func Key(gameID, pkg string) string {
	return gameID + "/" + pkg
}

func (idx *Index) Get(gameID, pkg string) (Entry, bool) {
	if idx == nil || idx.Entries == nil {
		return Entry{}, false
	}
	e, ok := idx.Entries[Key(gameID, pkg)]
	return e, ok
}

// Put records an installation, replacing any previous entry for the package.
func (idx *Index) Put(e Entry) {
	if idx.Entries == nil {
		idx.Entries = map[string]Entry{}
	}
	idx.Entries[Key(e.GameID, e.Package)] = e
}

func (idx *Index) Delete(gameID, pkg string) bool {
	if idx == nil || idx.Entries == nil {
		return false
	}
	key := Key(gameID, pkg)
	if _, ok := idx.Entries[key]; !ok {
		return false
	}
	delete(idx.Entries, key)
	return true
}

// List returns the entries for gameID, or every entry when gameID is empty,
// ordered by game then package.
func (idx *Index) List(gameID string) []Entry {
	var out []Entry
	for _, e := range idx.Entries {
		if gameID == "" || e.GameID == gameID {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].GameID != out[j].GameID {
			return out[i].GameID < out[j].GameID
		}
		return out[i].Package < out[j].Package
	})
	return out
}

func (idx *Index) normalize() {
	if idx.Version == 0 {
		idx.Version = indexVersion
	}
	if idx.Entries == nil {
		idx.Entries = map[string]Entry{}
	}
}

func newIndex() *Index {
	return &Index{
		Version: indexVersion,
		Entries: map[string]Entry{},
	}
}
