// Package install turns a downloaded mod archive into an active mod inside a
// game's install directory.
package install

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"voidmod/internal/games"
	"voidmod/pkg/archive"
)

// Activation describes how an extracted mod is exposed to the game.
type Activation string

const (
	// ActivationAuto links with a symlink and copies when symlinks are not
	// available.
	ActivationAuto    Activation = "auto"
	ActivationSymlink Activation = "symlink"
	ActivationCopy    Activation = "copy"
)

// ParseActivation accepts the configuration spellings of Activation. An
// empty value means auto.
func ParseActivation(value string) (Activation, error) {
	switch Activation(strings.ToLower(strings.TrimSpace(value))) {
	case "", ActivationAuto:
		return ActivationAuto, nil
	case ActivationSymlink:
		return ActivationSymlink, nil
	case ActivationCopy:
		return ActivationCopy, nil
	default:
		return "", fmt.Errorf("unknown activation %q (want auto, symlink or copy)", value)
	}
}

// Installation describes an installed package.
type Installation struct {
	GameID        string        `json:"game_id"`
	Package       string        `json:"package"`
	Kind          games.ModKind `json:"kind"`
	ExtractedRoot string        `json:"extracted_root"`
	ContentRoot   string        `json:"content_root"`
	Link          string        `json:"link"`
	Activation    Activation    `json:"activation"`
	Files         int           `json:"files"`
	Archive       string        `json:"archive"`
}

// Logger is the minimal logging surface the installer writes to.
type Logger interface {
	Printf(format string, v ...any)
}

type noopLogger struct{}

func (noopLogger) Printf(string, ...any) {}

// Options configures an Installer.
type Options struct {
	// ExtractedDir holds one directory per game with the extracted packages.
	ExtractedDir string
	Activation   Activation
	Logger       Logger
}

// Installer runs the installation protocol. It holds no locks; callers
// installing the same package name concurrently serialize with AcquireLock.
type Installer struct {
	extractedDir string
	activation   Activation
	logger       Logger
}

func NewInstaller(opts Options) (*Installer, error) {
	if strings.TrimSpace(opts.ExtractedDir) == "" {
		return nil, errors.New("installer requires an extracted directory")
	}
	activation, err := ParseActivation(string(opts.Activation))
	if err != nil {
		return nil, err
	}
	logger := opts.Logger
	if logger == nil {
		logger = noopLogger{}
	}
	return &Installer{
		extractedDir: opts.ExtractedDir,
		activation:   activation,
		logger:       logger,
	}, nil
}

// ExtractedRoot returns the deterministic directory a package of game is
// extracted to.
func (in *Installer) ExtractedRoot(gameID, pkg string) string {
	return filepath.Join(in.extractedDir, games.DirName(gameID), pkg)
}

// StagingSuffix marks the sibling directory extraction writes into.
const StagingSuffix = ".staging"

// StagingDir returns the sibling directory extraction writes into before the
// result is promoted.
func StagingDir(extractedRoot string) string {
	return extractedRoot + StagingSuffix
}

// Install extracts archivePath for game and activates it. Every step either
// completes or leaves the previous installation of the package in place, so
// a failed or interrupted install can simply be repeated.
func (in *Installer) Install(ctx context.Context, archivePath string, game games.Game) (Installation, error) {
	logf := in.logger.Printf

	installDir, err := game.ResolveInstallDir()
	if err != nil {
		return Installation{}, stepError(StepResolve, err)
	}

	modsDir := game.ModsDir(installDir)
	overridesDir := game.OverridesDir(installDir)
	for _, dir := range []string{modsDir, overridesDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return Installation{}, stepError(StepPrepare, fmt.Errorf("create %s: %w", dir, err))
		}
	}

	info, err := archive.Inspect(archivePath)
	if err != nil {
		return Installation{}, stepError(StepInspect, err)
	}
	pkg, err := PackageName(info, archivePath)
	if err != nil {
		return Installation{}, stepError(StepInspect, err)
	}

	root := in.ExtractedRoot(game.ID(), pkg)
	staging := StagingDir(root)
	logf("install %s: package=%s game=%s staging=%s", archivePath, pkg, game.ID(), staging)

	if err := ctx.Err(); err != nil {
		return Installation{}, stepError(StepExtract, err)
	}
	if err := os.RemoveAll(staging); err != nil {
		return Installation{}, stepError(StepExtract, fmt.Errorf("remove stale staging: %w", err))
	}
	if err := os.MkdirAll(filepath.Dir(staging), 0o755); err != nil {
		return Installation{}, stepError(StepExtract, fmt.Errorf("prepare extracted dir: %w", err))
	}
	extracted, err := archive.ExtractContext(ctx, archivePath, staging)
	if err != nil {
		_ = os.RemoveAll(staging)
		return Installation{}, stepError(StepExtract, err)
	}

	kind := game.Classify(extracted)

	if err := ctx.Err(); err != nil {
		_ = os.RemoveAll(staging)
		return Installation{}, stepError(StepRename, err)
	}
	if err := os.RemoveAll(root); err != nil {
		return Installation{}, stepError(StepRename, fmt.Errorf("remove previous extraction: %w", err))
	}
	if err := os.Rename(staging, root); err != nil {
		return Installation{}, stepError(StepRename, fmt.Errorf("promote staging: %w", err))
	}

	content := archive.RootDir(extracted, root)

	link, other := filepath.Join(overridesDir, pkg), filepath.Join(modsDir, pkg)
	if kind == games.ScriptMod {
		link, other = other, link
	}
	// The target path is always cleared. The other directory only loses an
	// activation left by an earlier install of a different kind.
	if err := removeLink(link); err != nil {
		return Installation{}, stepError(StepLink, err)
	}
	if _, err := in.removeManaged(other); err != nil {
		return Installation{}, stepError(StepLink, err)
	}
	activation, err := in.activate(content, link)
	if err != nil {
		return Installation{}, stepError(StepLink, err)
	}

	result := Installation{
		GameID:        game.ID(),
		Package:       pkg,
		Kind:          kind,
		ExtractedRoot: root,
		ContentRoot:   content,
		Link:          link,
		Activation:    activation,
		Files:         len(extracted.Files),
		Archive:       archivePath,
	}
	logf("install %s: %s mod active at %s (%s)", pkg, kind, link, activation)
	return result, nil
}

// Uninstall removes the activation links and the extracted files of pkg.
// Anything at the link paths that this installer did not create is kept.
func (in *Installer) Uninstall(game games.Game, pkg string) error {
	if err := ValidatePackageName(pkg); err != nil {
		return err
	}
	root := in.ExtractedRoot(game.ID(), pkg)

	found := false
	installDir, err := game.ResolveInstallDir()
	if err == nil {
		for _, candidate := range []string{filepath.Join(game.ModsDir(installDir), pkg), filepath.Join(game.OverridesDir(installDir), pkg)} {
			removed, err := in.removeManaged(candidate)
			if err != nil {
				return err
			}
			found = found || removed
		}
	} else if !errors.Is(err, games.ErrGameNotFound) {
		return err
	}

	for _, dir := range []string{root, StagingDir(root)} {
		if _, statErr := os.Lstat(dir); statErr == nil {
			found = true
		}
		if err := os.RemoveAll(dir); err != nil {
			return fmt.Errorf("remove %s: %w", dir, err)
		}
	}
	if !found {
		return fmt.Errorf("%s: %w", pkg, ErrNotInstalled)
	}
	in.logger.Printf("uninstall %s: removed from %s", pkg, game.ID())
	return nil
}

// PackageName derives the package name from the archive's single top-level
// directory, falling back to the archive file name without its extension.
func PackageName(info archive.Info, archivePath string) (string, error) {
	name, ok := info.SingleTopLevelDir()
	if ok && slices.Contains(info.Files, name) {
		// A lone top-level file is not a package directory.
		ok = false
	}
	if !ok {
		base := filepath.Base(archivePath)
		name = strings.TrimSuffix(base, filepath.Ext(base))
	}
	if err := ValidatePackageName(name); err != nil {
		return "", err
	}
	return name, nil
}

// ValidatePackageName reports whether name is usable as one path element.
func ValidatePackageName(name string) error {
	switch {
	case name == "", name == ".", name == "..":
		return fmt.Errorf("%w: %q", ErrInvalidPackageName, name)
	case strings.ContainsAny(name, `/\:`+"\x00"):
		return fmt.Errorf("%w: %q", ErrInvalidPackageName, name)
	case strings.HasSuffix(name, StagingSuffix):
		return fmt.Errorf("%w: %q is reserved", ErrInvalidPackageName, name)
	}
	return nil
}
