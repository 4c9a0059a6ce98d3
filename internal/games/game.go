package games

import (
	"errors"
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"voidmod/pkg/archive"
)

// ErrGameNotFound reports that a game's install directory could not be
// resolved.
var ErrGameNotFound = errors.New("game install directory not found")

// ErrUnknownGame reports a lookup for an id the registry does not know.
var ErrUnknownGame = errors.New("unknown game")

// ModKind classifies an extracted package.
type ModKind string

const (
	// ScriptMod packages carry script code and live in the game's mods folder.
	ScriptMod ModKind = "script"
	// AssetOverride packages replace game assets.
	AssetOverride ModKind = "override"
)

// Classifier decides a package's kind from its archive summary.
type Classifier interface {
	Classify(info archive.Info) ModKind
}

// Game is the capability the install pipeline consumes for one host game.
type Game interface {
	ID() string
	DisplayName() string
	// ModProvider names the remote source mods for this game come from.
	ModProvider() string
	ResolveInstallDir() (string, error)
	Classify(info archive.Info) ModKind
	ModsDir(installDir string) string
	OverridesDir(installDir string) string
}

// ExtensionClassifier marks a package as a ScriptMod when it contains more
// than Threshold files with extension Ext.
type ExtensionClassifier struct {
	Ext       string
	Threshold int
}

// Classify implements Classifier.
func (c ExtensionClassifier) Classify(info archive.Info) ModKind {
	if info.CountExt(c.Ext) > c.Threshold {
		return ScriptMod
	}
	return AssetOverride
}

// Registry maps game ids to games.
type Registry struct {
	games map[string]Game
}

// NewRegistry returns a registry holding the given games.
func NewRegistry(list ...Game) *Registry {
	r := &Registry{games: make(map[string]Game, len(list))}
	for _, g := range list {
		r.Register(g)
	}
	return r
}

// Register adds or replaces a game.
func (r *Registry) Register(g Game) {
	r.games[g.ID()] = g
}

// Lookup returns the game with the given id. Short ids without the "core:"
// namespace are accepted.
func (r *Registry) Lookup(id string) (Game, error) {
	id = strings.TrimSpace(id)
	if g, ok := r.games[id]; ok {
		return g, nil
	}
	if !strings.Contains(id, ":") {
		if g, ok := r.games["core:"+id]; ok {
			return g, nil
		}
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownGame, id)
}

// IDs returns the registered ids in sorted order.
func (r *Registry) IDs() []string {
	ids := make([]string, 0, len(r.games))
	for id := range r.games {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// DirName converts a game id into a single path element.
func DirName(id string) string {
	return strings.NewReplacer(":", "_", "/", "_", `\`, "_").Replace(id)
}

func cleanDir(dir string) string {
	if dir == "" {
		return ""
	}
	if abs, err := filepath.Abs(dir); err == nil {
		return abs
	}
	return filepath.Clean(dir)
}
