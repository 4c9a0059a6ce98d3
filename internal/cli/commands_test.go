package cli

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	"github.com/google/uuid"

	"voidmod/internal/config"
)

func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var buf bytes.Buffer
	cmd.SetOut(&buf)
	cmd.SetErr(&buf)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return buf.String(), err
}

func writeModZip(t *testing.T, path string, files map[string]string) {
	t.Helper()
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	zw := zip.NewWriter(f)
	for name, body := range files {
		w, err := zw.Create(name)
		if err != nil {
			t.Fatal(err)
		}
		if _, err := w.Write([]byte(body)); err != nil {
			t.Fatal(err)
		}
	}
	if err := zw.Close(); err != nil {
		t.Fatal(err)
	}
	if err := f.Close(); err != nil {
		t.Fatal(err)
	}
}

// setupGame points the active game at a temporary install directory.
func setupGame(t *testing.T, data string) string {
	t.Helper()
	gameDir := t.TempDir()
	if _, err := runCLI(t, "--data-dir", data, "games", "use", "payday_2", "--install-dir", gameDir); err != nil {
		t.Fatalf("games use: %v", err)
	}
	return gameDir
}

func TestGamesUsePersistsConfig(t *testing.T) {
	data := t.TempDir()
	gameDir := setupGame(t, data)

	cfg, err := config.Load(filepath.Join(data, "config.yaml"))
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.ActiveGame != "core:payday_2" {
		t.Fatalf("expected canonical game id, got %q", cfg.ActiveGame)
	}
	if got := cfg.Games["core:payday_2"].InstallDir; got != gameDir {
		t.Fatalf("expected install dir %s, got %s", gameDir, got)
	}

	out, err := runCLI(t, "--data-dir", data, "games")
	if err != nil {
		t.Fatalf("games: %v", err)
	}
	if !strings.Contains(out, gameDir) || !strings.Contains(out, "PAYDAY 2") {
		t.Fatalf("expected game listing with install dir, got:\n%s", out)
	}
}

func TestGamesUseRejectsUnknownGame(t *testing.T) {
	_, err := runCLI(t, "--data-dir", t.TempDir(), "games", "use", "half_life")
	if err == nil || !strings.Contains(err.Error(), "unknown game") {
		t.Fatalf("expected unknown game error, got %v", err)
	}
}

func TestInstallListUninstall(t *testing.T) {
	data := t.TempDir()
	gameDir := setupGame(t, data)

	archivePath := filepath.Join(t.TempDir(), "MyMod.zip")
	writeModZip(t, archivePath, map[string]string{
		"MyMod/a.lua":      "print('a')",
		"MyMod/b.lua":      "print('b')",
		"MyMod/readme.txt": "hi",
	})

	out, err := runCLI(t, "--data-dir", data, "install", "--no-progress", archivePath)
	if err != nil {
		t.Fatalf("install: %v\n%s", err, out)
	}
	if !strings.Contains(out, "installed") {
		t.Fatalf("expected installed row, got:\n%s", out)
	}

	link := filepath.Join(gameDir, "mods", "MyMod")
	if _, err := os.Stat(filepath.Join(link, "a.lua")); err != nil {
		t.Fatalf("expected mod content behind %s: %v", link, err)
	}

	out, err = runCLI(t, "--data-dir", data, "--json", "list")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	var listed struct {
		Entries []struct {
			GameID  string `json:"game_id"`
			Package string `json:"package"`
			Kind    string `json:"kind"`
			Link    string `json:"link"`
		} `json:"entries"`
	}
	if err := json.Unmarshal([]byte(out), &listed); err != nil {
		t.Fatalf("decode list: %v\n%s", err, out)
	}
	if len(listed.Entries) != 1 {
		t.Fatalf("expected one library entry, got %d", len(listed.Entries))
	}
	e := listed.Entries[0]
	if e.GameID != "core:payday_2" || e.Package != "MyMod" || e.Kind != "script" || e.Link != link {
		t.Fatalf("unexpected entry: %+v", e)
	}

	out, err = runCLI(t, "--data-dir", data, "uninstall", "MyMod")
	if err != nil {
		t.Fatalf("uninstall: %v\n%s", err, out)
	}
	if _, err := os.Lstat(link); !os.IsNotExist(err) {
		t.Fatalf("expected link removed, got %v", err)
	}

	out, err = runCLI(t, "--data-dir", data, "list")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if !strings.Contains(out, "No mods installed.") {
		t.Fatalf("expected empty library, got:\n%s", out)
	}

	if _, err := runCLI(t, "--data-dir", data, "uninstall", "MyMod"); err == nil {
		t.Fatal("expected error uninstalling a missing package")
	}
}

func TestInstallReportsMissingArchive(t *testing.T) {
	data := t.TempDir()
	setupGame(t, data)

	out, err := runCLI(t, "--data-dir", data, "install", "--no-progress", filepath.Join(data, "nope.zip"))
	if err == nil || !strings.Contains(err.Error(), "1 of 1 mods failed") {
		t.Fatalf("expected failure summary, got %v", err)
	}
	if !strings.Contains(out, "not found") {
		t.Fatalf("expected not found row, got:\n%s", out)
	}
}

func TestInspect(t *testing.T) {
	data := t.TempDir()
	archivePath := filepath.Join(t.TempDir(), "Skins.zip")
	writeModZip(t, archivePath, map[string]string{
		"Skins/units/a.texture": "x",
		"Skins/units/b.texture": "y",
	})

	out, err := runCLI(t, "--data-dir", data, "--json", "inspect", archivePath)
	if err != nil {
		t.Fatalf("inspect: %v", err)
	}
	var report inspectReport
	if err := json.Unmarshal([]byte(out), &report); err != nil {
		t.Fatalf("decode: %v\n%s", err, out)
	}
	if report.Package != "Skins" || report.Kind != "override" || report.Files != 2 {
		t.Fatalf("unexpected report: %+v", report)
	}
	if report.Extensions["texture"] != 2 {
		t.Fatalf("expected texture count 2, got %v", report.Extensions)
	}

	out, err = runCLI(t, "--data-dir", data, "inspect", archivePath)
	if err != nil {
		t.Fatalf("inspect: %v", err)
	}
	if !strings.Contains(out, "texture=2") {
		t.Fatalf("expected extension summary, got:\n%s", out)
	}
}

func TestDownloadSavesArchive(t *testing.T) {
	payload := bytes.Repeat([]byte("m"), 64*1024)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Length", strconv.Itoa(len(payload)))
		_, _ = w.Write(payload)
	}))
	defer srv.Close()

	data := t.TempDir()
	out, err := runCLI(t, "--data-dir", data, "download", "--no-progress", srv.URL+"/files/Mod.zip")
	if err != nil {
		t.Fatalf("download: %v\n%s", err, out)
	}
	if !strings.Contains(out, "saved") {
		t.Fatalf("expected saved row, got:\n%s", out)
	}

	matches, err := filepath.Glob(filepath.Join(data, "downloads", "*", "Mod.zip"))
	if err != nil || len(matches) != 1 {
		t.Fatalf("expected one saved Mod.zip, got %v (%v)", matches, err)
	}
	got, err := os.ReadFile(matches[0])
	if err != nil {
		t.Fatalf("read download: %v", err)
	}
	if !bytes.Equal(got, payload) {
		t.Fatalf("downloaded %d bytes, want %d", len(got), len(payload))
	}
}

func TestDownloadKeepsSameNamedArchives(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(r.URL.Path))
	}))
	defer srv.Close()

	data := t.TempDir()
	out, err := runCLI(t, "--data-dir", data, "download", "--no-progress",
		srv.URL+"/mods/1/download", srv.URL+"/mods/2/download")
	if err != nil {
		t.Fatalf("download: %v\n%s", err, out)
	}

	matches, err := filepath.Glob(filepath.Join(data, "downloads", "*", "download"))
	if err != nil || len(matches) != 2 {
		t.Fatalf("expected two saved archives, got %v (%v)", matches, err)
	}
	seen := map[string]bool{}
	for _, m := range matches {
		body, err := os.ReadFile(m)
		if err != nil {
			t.Fatalf("read %s: %v", m, err)
		}
		seen[string(body)] = true
	}
	if !seen["/mods/1/download"] || !seen["/mods/2/download"] {
		t.Fatalf("archives overwrote each other: %v", seen)
	}
}

func TestVerboseDownloadLogsHistory(t *testing.T) {
	payload := bytes.Repeat([]byte("m"), 96*1024)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Length", strconv.Itoa(len(payload)))
		_, _ = w.Write(payload)
	}))
	defer srv.Close()

	data := t.TempDir()
	out, err := runCLI(t, "--data-dir", data, "--verbose", "download", "--no-progress", srv.URL+"/files/Mod.zip")
	if err != nil {
		t.Fatalf("download: %v\n%s", err, out)
	}

	matches, err := filepath.Glob(filepath.Join(data, "downloads", "*", "Mod.zip"))
	if err != nil || len(matches) != 1 {
		t.Fatalf("expected one saved Mod.zip, got %v (%v)", matches, err)
	}
	id := filepath.Base(filepath.Dir(matches[0]))
	if _, err := uuid.Parse(id); err != nil {
		t.Fatalf("download dir %q is not a request uuid: %v", id, err)
	}
	want := "download " + id + " history: 0% -> "
	if !strings.Contains(out, want) || !strings.Contains(out, "completed: "+matches[0]) {
		t.Fatalf("expected history trail %q in log, got:\n%s", want, out)
	}
}

func TestDownloadRejectsLocalPaths(t *testing.T) {
	_, err := runCLI(t, "--data-dir", t.TempDir(), "download", "/tmp/mod.zip")
	if err == nil || !strings.Contains(err.Error(), "only http and https") {
		t.Fatalf("expected rejection, got %v", err)
	}
}

func TestConfigInitAndShow(t *testing.T) {
	data := t.TempDir()

	out, err := runCLI(t, "--data-dir", data, "config", "path")
	if err != nil {
		t.Fatalf("config path: %v", err)
	}
	if strings.TrimSpace(out) != filepath.Join(data, "config.yaml") {
		t.Fatalf("unexpected config path %q", out)
	}

	if _, err := runCLI(t, "--data-dir", data, "config", "init"); err != nil {
		t.Fatalf("config init: %v", err)
	}
	if _, err := runCLI(t, "--data-dir", data, "config", "init"); err == nil {
		t.Fatal("expected second init without --force to fail")
	}
	if _, err := runCLI(t, "--data-dir", data, "config", "init", "--force"); err != nil {
		t.Fatalf("config init --force: %v", err)
	}

	out, err = runCLI(t, "--data-dir", data, "config", "show")
	if err != nil {
		t.Fatalf("config show: %v", err)
	}
	for _, want := range []string{"core:payday_2", "activation: auto", "queue_size: 100"} {
		if !strings.Contains(out, want) {
			t.Fatalf("expected %q in config:\n%s", want, out)
		}
	}
}

func TestInvalidConfigIsRejected(t *testing.T) {
	data := t.TempDir()
	if err := os.WriteFile(filepath.Join(data, "config.yaml"), []byte("activation: teleport\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	_, err := runCLI(t, "--data-dir", data, "list")
	if err == nil || !strings.Contains(err.Error(), "invalid config") {
		t.Fatalf("expected invalid config error, got %v", err)
	}
}
