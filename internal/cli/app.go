package cli

import (
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"voidmod/internal/config"
	"voidmod/internal/download"
	"voidmod/internal/games"
	"voidmod/internal/install"
	"voidmod/internal/library"
	"voidmod/internal/logx"
	"voidmod/internal/paths"
)

// app wires the long-lived pieces a command needs. Commands build one with
// newApp and release it with close.
type app struct {
	paths     paths.AppPaths
	cfg       config.Config
	games     *games.Registry
	logger    *log.Logger
	installer *install.Installer
	library   *library.Store

	libMu  sync.Mutex
	closer io.Closer
}

func newApp(cmd *cobra.Command) (*app, error) {
	ap, err := paths.Resolve(dataDir)
	if err != nil {
		return nil, err
	}
	cfg, err := config.Load(ap.ConfigFile)
	if err != nil {
		return nil, err
	}
	ap = paths.ApplyConfig(ap, cfg)
	if err := ap.EnsureDirs(); err != nil {
		return nil, err
	}

	var mirror io.Writer
	if verbose {
		mirror = cmd.ErrOrStderr()
	}
	logger, closer, err := logx.New(ap, mirror)
	if err != nil {
		return nil, err
	}
	logger.Printf("voidmod %s: data dir %s", cmd.CommandPath(), ap.Root)

	registry := games.Builtin(cfg.GameOptions())
	issues := cfg.Validate(registry.IDs())
	if config.HasErrors(issues) {
		_ = closer.Close()
		return nil, fmt.Errorf("invalid config %s: %s", ap.ConfigFile, issues[firstError(issues)].Message)
	}
	for _, issue := range issues {
		logger.Printf("config %s: %s", issue.Level, issue.Message)
	}

	activation, err := install.ParseActivation(cfg.Activation)
	if err != nil {
		_ = closer.Close()
		return nil, err
	}
	installer, err := install.NewInstaller(install.Options{
		ExtractedDir: ap.ExtractedDir,
		Activation:   activation,
		Logger:       logger,
	})
	if err != nil {
		_ = closer.Close()
		return nil, err
	}

	return &app{
		paths:     ap,
		cfg:       cfg,
		games:     registry,
		logger:    logger,
		installer: installer,
		library:   openLibrary(ap),
		closer:    closer,
	}, nil
}

func openLibrary(ap paths.AppPaths) *library.Store {
	return library.NewStore(afero.NewOsFs(), ap.LibraryFile)
}

func (a *app) close() {
	if a.closer != nil {
		_ = a.closer.Close()
	}
}

// game returns the game named by id, or the configured active game.
func (a *app) game(id string) (games.Game, error) {
	if id == "" {
		id = a.cfg.ActiveGame
	}
	return a.games.Lookup(id)
}

func (a *app) newDownloadService(history bool) *download.Service {
	d := a.cfg.Downloads
	return download.NewService(download.Options{
		Dir:       a.paths.DownloadsDir,
		QueueSize: d.QueueSize,
		Workers:   d.Workers,
		Client:    &http.Client{Timeout: d.Timeout()},
		UserAgent: d.UserAgent,
		History:   history,
		Logger:    a.logger,
	})
}

// libraryLockKey names the lock file that serializes library writes across
// voidmod processes.
const libraryLockKey = "library"

// updateLibrary runs fn against the library while holding both the in-process
// mutex and the library lock file.
func (a *app) updateLibrary(ctx context.Context, fn func(*library.Index) error) error {
	a.libMu.Lock()
	defer a.libMu.Unlock()
	unlock, err := install.AcquireLock(ctx, a.paths.LocksDir, libraryLockKey, a.logger)
	if err != nil {
		return err
	}
	defer unlock()
	return a.library.Update(fn)
}

// record stores a finished installation in the library.
func (a *app) record(ctx context.Context, inst install.Installation, source string) error {
	return a.updateLibrary(ctx, func(idx *library.Index) error {
		e := library.Entry{Installation: inst, InstalledAt: time.Now().UTC()}
		if isRemote(source) {
			e.SourceURL = source
		}
		idx.Put(e)
		return nil
	})
}

func (a *app) forget(ctx context.Context, gameID, pkg string) error {
	return a.updateLibrary(ctx, func(idx *library.Index) error {
		idx.Delete(gameID, pkg)
		return nil
	})
}

func firstError(issues []config.ValidationResult) int {
	for i, issue := range issues {
		if issue.Level == "error" {
			return i
		}
	}
	return 0
}
