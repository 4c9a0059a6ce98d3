package games

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"runtime"
	"strings"

	"voidmod/pkg/archive"
)

// SteamGame describes a game distributed through Steam whose mods are linked
// into fixed folders below the install directory.
type SteamGame struct {
	GameID       string
	Name         string
	Provider     string
	AppID        int
	Folder       string   // directory under steamapps/common
	ModsPath     []string // relative to the install dir
	OverridePath []string // relative to the install dir
	Classifier   Classifier

	// InstallDir pins the install directory and disables detection.
	InstallDir string
	// SteamRoots overrides the default Steam client locations searched.
	SteamRoots []string
}

func (g *SteamGame) ID() string          { return g.GameID }
func (g *SteamGame) DisplayName() string { return g.Name }
func (g *SteamGame) ModProvider() string { return g.Provider }

func (g *SteamGame) ModsDir(installDir string) string {
	return filepath.Join(append([]string{installDir}, g.ModsPath...)...)
}

func (g *SteamGame) OverridesDir(installDir string) string {
	return filepath.Join(append([]string{installDir}, g.OverridePath...)...)
}

func (g *SteamGame) Classify(info archive.Info) ModKind {
	if g.Classifier == nil {
		return AssetOverride
	}
	return g.Classifier.Classify(info)
}

// ResolveInstallDir returns the configured install directory, or searches
// every known Steam library for the game's folder.
func (g *SteamGame) ResolveInstallDir() (string, error) {
	if g.InstallDir != "" {
		dir := cleanDir(g.InstallDir)
		if ok, _ := isDir(dir); !ok {
			return "", fmt.Errorf("%w: %s: configured directory %s does not exist", ErrGameNotFound, g.GameID, dir)
		}
		return dir, nil
	}

	roots := g.SteamRoots
	if len(roots) == 0 {
		roots = DefaultSteamRoots()
	}
	for _, lib := range SteamLibraries(roots) {
		candidate := filepath.Join(lib, "steamapps", "common", g.Folder)
		if ok, _ := isDir(candidate); ok {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("%w: %s: not found in any steam library", ErrGameNotFound, g.GameID)
}

// DefaultSteamRoots lists the usual Steam client locations for this platform.
func DefaultSteamRoots() []string {
	home, err := os.UserHomeDir()
	if err != nil {
		home = ""
	}
	switch runtime.GOOS {
	case "windows":
		roots := []string{`C:\Program Files (x86)\Steam`}
		if pf := os.Getenv("ProgramFiles(x86)"); pf != "" {
			roots = append([]string{filepath.Join(pf, "Steam")}, roots...)
		}
		return roots
	case "darwin":
		return []string{filepath.Join(home, "Library", "Application Support", "Steam")}
	default:
		return []string{
			filepath.Join(home, ".steam", "steam"),
			filepath.Join(home, ".local", "share", "Steam"),
			filepath.Join(home, ".var", "app", "com.valvesoftware.Steam", ".local", "share", "Steam"),
		}
	}
}

var libraryPathPattern = regexp.MustCompile(`^\s*"path"\s+"(.+)"\s*$`)

// SteamLibraries expands Steam client roots into library folders by reading
// steamapps/libraryfolders.vdf. Roots are returned first, duplicates dropped.
func SteamLibraries(roots []string) []string {
	seen := map[string]bool{}
	var libs []string
	add := func(dir string) {
		dir = filepath.Clean(dir)
		if seen[dir] {
			return
		}
		seen[dir] = true
		libs = append(libs, dir)
	}

	for _, root := range roots {
		if ok, _ := isDir(root); !ok {
			continue
		}
		add(root)
		extra, err := readLibraryFolders(filepath.Join(root, "steamapps", "libraryfolders.vdf"))
		if err != nil {
			continue
		}
		for _, dir := range extra {
			add(dir)
		}
	}
	return libs
}

func readLibraryFolders(vdfPath string) ([]string, error) {
	f, err := os.Open(vdfPath)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var out []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		m := libraryPathPattern.FindStringSubmatch(scanner.Text())
		if m == nil {
			continue
		}
		// VDF escapes backslashes in Windows paths.
		out = append(out, strings.ReplaceAll(m[1], `\\`, `\`))
	}
	return out, scanner.Err()
}

func isDir(path string) (bool, error) {
	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return false, nil
		}
		return false, err
	}
	return info.IsDir(), nil
}
