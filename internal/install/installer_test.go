package install

import (
	"archive/zip"
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"voidmod/internal/games"
)

type zipEntry struct {
	name string
	body string
}

func writeZip(t *testing.T, dir, name string, entries []zipEntry) string {
	t.Helper()
	path := filepath.Join(dir, name)
	f, err := os.Create(path)
	require.NoError(t, err)
	zw := zip.NewWriter(f)
	for _, e := range entries {
		w, err := zw.CreateHeader(&zip.FileHeader{Name: e.name, Method: zip.Store})
		require.NoError(t, err)
		_, err = w.Write([]byte(e.body))
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	require.NoError(t, f.Close())
	return path
}

func testGame(installDir string) *games.SteamGame {
	return &games.SteamGame{
		GameID:       "G",
		Name:         "Test Game",
		ModsPath:     []string{"mods"},
		OverridePath: []string{"assets", "mod_overrides"},
		Classifier:   games.ExtensionClassifier{Ext: "lua", Threshold: 1},
		InstallDir:   installDir,
	}
}

type fixture struct {
	data      string
	gameDir   string
	archives  string
	game      *games.SteamGame
	installer *Installer
}

func newFixture(t *testing.T, activation Activation) fixture {
	t.Helper()
	data := t.TempDir()
	gameDir := t.TempDir()
	inst, err := NewInstaller(Options{
		ExtractedDir: filepath.Join(data, "mods", "extracted"),
		Activation:   activation,
	})
	require.NoError(t, err)
	return fixture{
		data:      data,
		gameDir:   gameDir,
		archives:  t.TempDir(),
		game:      testGame(gameDir),
		installer: inst,
	}
}

func listFiles(t *testing.T, root string) []string {
	t.Helper()
	var out []string
	err := filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			rel, err := filepath.Rel(root, path)
			if err != nil {
				return err
			}
			out = append(out, filepath.ToSlash(rel))
		}
		return nil
	})
	require.NoError(t, err)
	sort.Strings(out)
	return out
}

var myMod = []zipEntry{
	{name: "MyMod/a.lua", body: "print('a')"},
	{name: "MyMod/b.lua", body: "print('b')"},
	{name: "MyMod/readme.txt", body: "hello"},
}

func TestInstallScriptModEndToEnd(t *testing.T) {
	fx := newFixture(t, ActivationSymlink)
	archivePath := writeZip(t, fx.archives, "mod.zip", myMod)

	got, err := fx.installer.Install(context.Background(), archivePath, fx.game)
	require.NoError(t, err)

	root := filepath.Join(fx.data, "mods", "extracted", "G", "MyMod")
	require.Equal(t, "MyMod", got.Package)
	require.Equal(t, games.ScriptMod, got.Kind)
	require.Equal(t, root, got.ExtractedRoot)
	require.Equal(t, filepath.Join(root, "MyMod"), got.ContentRoot)
	require.Equal(t, filepath.Join(fx.gameDir, "mods", "MyMod"), got.Link)
	require.Equal(t, ActivationSymlink, got.Activation)
	require.Equal(t, 3, got.Files)

	require.Equal(t, []string{"MyMod/a.lua", "MyMod/b.lua", "MyMod/readme.txt"}, listFiles(t, root))

	target, err := os.Readlink(got.Link)
	require.NoError(t, err)
	require.Equal(t, got.ContentRoot, target)
	body, err := os.ReadFile(filepath.Join(got.Link, "a.lua"))
	require.NoError(t, err)
	require.Equal(t, "print('a')", string(body))

	require.DirExists(t, filepath.Join(fx.gameDir, "assets", "mod_overrides"))
	require.NoDirExists(t, StagingDir(root))
}

func TestInstallAssetOverrideUsesArchiveStem(t *testing.T) {
	fx := newFixture(t, ActivationSymlink)
	archivePath := writeZip(t, fx.archives, "Textures Pack.zip", []zipEntry{
		{name: "units/a.texture", body: "a"},
		{name: "guis/b.texture", body: "b"},
		{name: "main.lua", body: "only one script"},
	})

	got, err := fx.installer.Install(context.Background(), archivePath, fx.game)
	require.NoError(t, err)
	require.Equal(t, "Textures Pack", got.Package)
	require.Equal(t, games.AssetOverride, got.Kind)
	require.Equal(t, got.ExtractedRoot, got.ContentRoot)
	require.Equal(t, filepath.Join(fx.gameDir, "assets", "mod_overrides", "Textures Pack"), got.Link)
}

func TestInstallConvergesAfterStaleStaging(t *testing.T) {
	fx := newFixture(t, ActivationSymlink)
	archivePath := writeZip(t, fx.archives, "mod.zip", myMod)

	root := fx.installer.ExtractedRoot("G", "MyMod")
	stale := StagingDir(root)
	require.NoError(t, os.MkdirAll(filepath.Join(stale, "junk"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(stale, "junk", "left.over"), []byte("x"), 0o644))

	first, err := fx.installer.Install(context.Background(), archivePath, fx.game)
	require.NoError(t, err)
	require.NoDirExists(t, stale)
	require.Equal(t, []string{"MyMod/a.lua", "MyMod/b.lua", "MyMod/readme.txt"}, listFiles(t, root))

	second, err := fx.installer.Install(context.Background(), archivePath, fx.game)
	require.NoError(t, err)
	require.Equal(t, first, second)
}

func TestFailedExtractionKeepsPreviousInstall(t *testing.T) {
	fx := newFixture(t, ActivationSymlink)
	good := writeZip(t, fx.archives, "mod.zip", myMod)
	prev, err := fx.installer.Install(context.Background(), good, fx.game)
	require.NoError(t, err)

	// Same package name, but the payload is damaged after the central
	// directory was written, so Inspect succeeds and Extract fails.
	bad := writeZip(t, t.TempDir(), "mod.zip", myMod)
	raw, err := os.ReadFile(bad)
	require.NoError(t, err)
	idx := bytes.Index(raw, []byte("print('a')"))
	require.GreaterOrEqual(t, idx, 0)
	raw[idx] = 'X'
	require.NoError(t, os.WriteFile(bad, raw, 0o644))

	_, err = fx.installer.Install(context.Background(), bad, fx.game)
	var stepErr *StepError
	require.ErrorAs(t, err, &stepErr)
	require.Equal(t, StepExtract, stepErr.Step)

	require.NoDirExists(t, StagingDir(prev.ExtractedRoot))
	body, err := os.ReadFile(filepath.Join(prev.Link, "a.lua"))
	require.NoError(t, err)
	require.Equal(t, "print('a')", string(body))
}

func TestReinstallReplacesRootAndMovesLink(t *testing.T) {
	fx := newFixture(t, ActivationSymlink)
	script := writeZip(t, fx.archives, "mod.zip", myMod)
	first, err := fx.installer.Install(context.Background(), script, fx.game)
	require.NoError(t, err)
	require.Equal(t, games.ScriptMod, first.Kind)

	// The next release drops a script, so the package becomes an override.
	override := writeZip(t, t.TempDir(), "mod.zip", []zipEntry{
		{name: "MyMod/a.lua", body: "print('a2')"},
		{name: "MyMod/texture.dds", body: "dds"},
	})
	second, err := fx.installer.Install(context.Background(), override, fx.game)
	require.NoError(t, err)
	require.Equal(t, games.AssetOverride, second.Kind)
	require.Equal(t, first.ExtractedRoot, second.ExtractedRoot)

	require.Equal(t, []string{"MyMod/a.lua", "MyMod/texture.dds"}, listFiles(t, second.ExtractedRoot))
	_, err = os.Lstat(first.Link)
	require.True(t, errors.Is(err, os.ErrNotExist), "old link should be gone")
	body, err := os.ReadFile(filepath.Join(second.Link, "a.lua"))
	require.NoError(t, err)
	require.Equal(t, "print('a2')", string(body))
}

func TestInstallCopyFallback(t *testing.T) {
	fx := newFixture(t, ActivationAuto)
	archivePath := writeZip(t, fx.archives, "mod.zip", myMod)

	orig := symlink
	symlink = func(string, string) error { return &os.LinkError{Op: "symlink", Err: os.ErrPermission} }
	t.Cleanup(func() { symlink = orig })

	got, err := fx.installer.Install(context.Background(), archivePath, fx.game)
	require.NoError(t, err)
	require.Equal(t, ActivationCopy, got.Activation)

	st, err := os.Lstat(got.Link)
	require.NoError(t, err)
	require.True(t, st.IsDir())
	require.Equal(t, []string{CopyMarker, "a.lua", "b.lua", "readme.txt"}, listFiles(t, got.Link))
}

func TestReinstallMovesCopiedActivation(t *testing.T) {
	fx := newFixture(t, ActivationCopy)
	first, err := fx.installer.Install(context.Background(), writeZip(t, fx.archives, "mod.zip", myMod), fx.game)
	require.NoError(t, err)
	require.Equal(t, games.ScriptMod, first.Kind)

	override := writeZip(t, t.TempDir(), "mod.zip", []zipEntry{{name: "MyMod/texture.dds", body: "dds"}})
	second, err := fx.installer.Install(context.Background(), override, fx.game)
	require.NoError(t, err)
	require.Equal(t, games.AssetOverride, second.Kind)

	require.NoDirExists(t, first.Link)
	require.Equal(t, []string{CopyMarker, "texture.dds"}, listFiles(t, second.Link))
}

func TestInstallKeepsUnmanagedContent(t *testing.T) {
	fx := newFixture(t, ActivationSymlink)
	handMade := filepath.Join(fx.gameDir, "assets", "mod_overrides", "MyMod")
	require.NoError(t, os.MkdirAll(handMade, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(handMade, "hand_installed.texture"), []byte("tex"), 0o644))

	got, err := fx.installer.Install(context.Background(), writeZip(t, fx.archives, "mod.zip", myMod), fx.game)
	require.NoError(t, err)
	require.Equal(t, games.ScriptMod, got.Kind)
	require.Equal(t, filepath.Join(fx.gameDir, "mods", "MyMod"), got.Link)
	require.FileExists(t, filepath.Join(handMade, "hand_installed.texture"))

	require.NoError(t, fx.installer.Uninstall(fx.game, "MyMod"))
	_, err = os.Lstat(got.Link)
	require.True(t, errors.Is(err, os.ErrNotExist))
	require.FileExists(t, filepath.Join(handMade, "hand_installed.texture"))
}

func TestManagedRecognizesOwnActivations(t *testing.T) {
	fx := newFixture(t, ActivationSymlink)
	got, err := fx.installer.Install(context.Background(), writeZip(t, fx.archives, "mod.zip", myMod), fx.game)
	require.NoError(t, err)

	ok, err := fx.installer.managed(got.Link)
	require.NoError(t, err)
	require.True(t, ok)

	foreign := filepath.Join(fx.gameDir, "foreign")
	require.NoError(t, os.Symlink(t.TempDir(), foreign))
	ok, err = fx.installer.managed(foreign)
	require.NoError(t, err)
	require.False(t, ok)

	ok, err = fx.installer.managed(filepath.Join(fx.gameDir, "missing"))
	require.NoError(t, err)
	require.False(t, ok)
}

func TestInstallSymlinkOnlyFailsWithoutSymlinks(t *testing.T) {
	fx := newFixture(t, ActivationSymlink)
	archivePath := writeZip(t, fx.archives, "mod.zip", myMod)

	orig := symlink
	symlink = func(string, string) error { return os.ErrPermission }
	t.Cleanup(func() { symlink = orig })

	_, err := fx.installer.Install(context.Background(), archivePath, fx.game)
	var stepErr *StepError
	require.ErrorAs(t, err, &stepErr)
	require.Equal(t, StepLink, stepErr.Step)
}

func TestInstallGameNotFound(t *testing.T) {
	fx := newFixture(t, ActivationSymlink)
	archivePath := writeZip(t, fx.archives, "mod.zip", myMod)
	missing := testGame(filepath.Join(fx.gameDir, "missing"))

	_, err := fx.installer.Install(context.Background(), archivePath, missing)
	require.ErrorIs(t, err, games.ErrGameNotFound)
	var stepErr *StepError
	require.ErrorAs(t, err, &stepErr)
	require.Equal(t, StepResolve, stepErr.Step)
}

func TestInstallCancelledBeforeExtract(t *testing.T) {
	fx := newFixture(t, ActivationSymlink)
	archivePath := writeZip(t, fx.archives, "mod.zip", myMod)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := fx.installer.Install(ctx, archivePath, fx.game)
	require.ErrorIs(t, err, context.Canceled)
	require.NoDirExists(t, fx.installer.ExtractedRoot("G", "MyMod"))
}

func TestUninstall(t *testing.T) {
	fx := newFixture(t, ActivationSymlink)
	archivePath := writeZip(t, fx.archives, "mod.zip", myMod)
	got, err := fx.installer.Install(context.Background(), archivePath, fx.game)
	require.NoError(t, err)

	require.NoError(t, fx.installer.Uninstall(fx.game, "MyMod"))
	require.NoDirExists(t, got.ExtractedRoot)
	_, err = os.Lstat(got.Link)
	require.True(t, errors.Is(err, os.ErrNotExist))

	require.ErrorIs(t, fx.installer.Uninstall(fx.game, "MyMod"), ErrNotInstalled)
	require.ErrorIs(t, fx.installer.Uninstall(fx.game, "../escape"), ErrInvalidPackageName)
}

func TestPackageNameValidation(t *testing.T) {
	for _, name := range []string{"", ".", "..", "a/b", `a\b`, "C:", "x.staging"} {
		require.ErrorIs(t, ValidatePackageName(name), ErrInvalidPackageName, name)
	}
	require.NoError(t, ValidatePackageName("MyMod"))
}

func TestParseActivation(t *testing.T) {
	for in, want := range map[string]Activation{"": ActivationAuto, "Copy": ActivationCopy, " symlink ": ActivationSymlink} {
		got, err := ParseActivation(in)
		require.NoError(t, err)
		require.Equal(t, want, got)
	}
	_, err := ParseActivation("hardlink")
	require.Error(t, err)
}

type recordingLogger struct {
	mu    sync.Mutex
	lines []string
}

func (l *recordingLogger) Printf(format string, v ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.lines = append(l.lines, fmt.Sprintf(format, v...))
}

func (l *recordingLogger) joined() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return strings.Join(l.lines, "\n")
}

func TestAcquireLockSerializes(t *testing.T) {
	dir := t.TempDir()
	unlock, err := AcquireLock(context.Background(), dir, "core:payday_2/MyMod", nil)
	require.NoError(t, err)

	logger := &recordingLogger{}
	ctx, cancel := context.WithTimeout(context.Background(), 250*time.Millisecond)
	defer cancel()
	_, err = AcquireLock(ctx, dir, "core:payday_2/MyMod", logger)
	require.ErrorIs(t, err, context.DeadlineExceeded)
	require.Contains(t, logger.joined(), "waiting for lock core:payday_2/MyMod held by pid "+strconv.Itoa(os.Getpid()))

	unlock()
	unlock2, err := AcquireLock(context.Background(), dir, "core:payday_2/MyMod", nil)
	require.NoError(t, err)
	unlock2()
}

// exitedPID returns the pid of a child process that has already exited.
func exitedPID(t *testing.T) int {
	t.Helper()
	cmd := exec.Command(os.Args[0], "-test.run=^$")
	require.NoError(t, cmd.Run())
	return cmd.ProcessState.Pid()
}

func TestAcquireLockTakesOverDeadOwner(t *testing.T) {
	dir := t.TempDir()
	lockPath := filepath.Join(dir, lockName("core:payday_2/MyMod")+".lock")
	require.NoError(t, os.WriteFile(lockPath, []byte(strconv.Itoa(exitedPID(t))+"\n"), 0o600))

	logger := &recordingLogger{}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	unlock, err := AcquireLock(ctx, dir, "core:payday_2/MyMod", logger)
	require.NoError(t, err)
	defer unlock()

	body, err := os.ReadFile(lockPath)
	require.NoError(t, err)
	require.Equal(t, strconv.Itoa(os.Getpid())+"\n", string(body))
	require.Contains(t, logger.joined(), "took over stale lock")
}

func TestAcquireLockTakesOverOldLock(t *testing.T) {
	dir := t.TempDir()
	lockPath := filepath.Join(dir, lockName("core:payday_2/MyMod")+".lock")
	require.NoError(t, os.WriteFile(lockPath, nil, 0o600))
	old := time.Now().Add(-2 * StaleLockAge)
	require.NoError(t, os.Chtimes(lockPath, old, old))

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	unlock, err := AcquireLock(ctx, dir, "core:payday_2/MyMod", nil)
	require.NoError(t, err)
	unlock()
}

func TestAcquireLockWaitsForFreshUnknownOwner(t *testing.T) {
	dir := t.TempDir()
	lockPath := filepath.Join(dir, lockName("core:payday_2/MyMod")+".lock")
	require.NoError(t, os.WriteFile(lockPath, nil, 0o600))

	ctx, cancel := context.WithTimeout(context.Background(), 250*time.Millisecond)
	defer cancel()
	_, err := AcquireLock(ctx, dir, "core:payday_2/MyMod", nil)
	require.ErrorIs(t, err, context.DeadlineExceeded)
	require.FileExists(t, lockPath)
}
