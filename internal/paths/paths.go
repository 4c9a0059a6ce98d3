package paths

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"voidmod/internal/config"
)

// EnvDataDir overrides the data directory when --data-dir is not given.
const EnvDataDir = "VOIDMOD_DATA_DIR"

const appDirName = "me.ghoul.void_mod_manager"

// AppPaths captures canonical locations inside the voidmod data directory.
type AppPaths struct {
	Root         string
	ConfigFile   string
	DownloadsDir string
	LogsDir      string
	LibraryFile  string
	LocksDir     string
	ExtractedDir string
}

// Resolve determines the data directory from the optional --data-dir flag,
// then $VOIDMOD_DATA_DIR, then the platform default.
func Resolve(dataDirFlag string) (AppPaths, error) {
	var (
		root string
		err  error
	)

	switch {
	case dataDirFlag != "":
		root, err = filepath.Abs(dataDirFlag)
	case os.Getenv(EnvDataDir) != "":
		root, err = filepath.Abs(os.Getenv(EnvDataDir))
	default:
		root, err = DefaultRoot()
	}
	if err != nil {
		return AppPaths{}, fmt.Errorf("resolve data dir: %w", err)
	}

	return newAppPaths(root), nil
}

// DefaultRoot returns the per-user application data directory.
func DefaultRoot() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("detect user home: %w", err)
	}

	switch runtime.GOOS {
	case "darwin":
		return filepath.Join(home, "Library", "Application Support", appDirName), nil
	case "windows":
		if localAppData := os.Getenv("LOCALAPPDATA"); localAppData != "" {
			return filepath.Join(localAppData, appDirName), nil
		}
		return filepath.Join(home, "AppData", "Local", appDirName), nil
	default:
		if xdg := os.Getenv("XDG_DATA_HOME"); xdg != "" {
			return filepath.Join(xdg, appDirName), nil
		}
		return filepath.Join(home, ".local", "share", appDirName), nil
	}
}

func newAppPaths(root string) AppPaths {
	return AppPaths{
		Root:         root,
		ConfigFile:   filepath.Join(root, "config.yaml"),
		DownloadsDir: filepath.Join(root, "downloads"),
		LogsDir:      filepath.Join(root, "logs"),
		LibraryFile:  filepath.Join(root, "library.json"),
		LocksDir:     filepath.Join(root, "locks"),
		ExtractedDir: filepath.Join(root, "mods", "extracted"),
	}
}

// ApplyConfig applies directory overrides from the config file. Relative
// values resolve against the data directory.
func ApplyConfig(ap AppPaths, cfg config.Config) AppPaths {
	if dir := strings.TrimSpace(cfg.Downloads.Dir); dir != "" {
		ap.DownloadsDir = resolveDataPath(ap.Root, dir)
	}
	return ap
}

func resolveDataPath(root, value string) string {
	if filepath.IsAbs(value) {
		return filepath.Clean(value)
	}
	return filepath.Join(root, value)
}

// EnsureDirs creates the standard directory hierarchy.
func (p AppPaths) EnsureDirs() error {
	dirs := []string{p.Root, p.DownloadsDir, p.LogsDir, p.LocksDir, p.ExtractedDir}
	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %s: %w", dir, err)
		}
	}
	return nil
}

// FileExists reports whether a path exists and is a regular file.
func FileExists(path string) (bool, error) {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, err
	}
	return info.Mode().IsRegular(), nil
}

// DirExists reports whether a path exists and is a directory.
func DirExists(path string) (bool, error) {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, err
	}
	return info.IsDir(), nil
}
