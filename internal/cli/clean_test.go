package cli

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"voidmod/internal/paths"
)

func TestDiffPaths(t *testing.T) {
	actual := []string{"/x/core_payday_2/A", "/x/core_payday_2/B", "/x/core_payday_2/C"}
	expected := map[string]bool{
		"/x/core_payday_2/A": true,
		"/x/core_payday_2/C": true,
	}

	orphans := diffPaths(actual, expected)
	if len(orphans) != 1 {
		t.Fatalf("got %d orphans, want 1", len(orphans))
	}
	if orphans[0] != "/x/core_payday_2/B" {
		t.Fatalf("got %s, want /x/core_payday_2/B", orphans[0])
	}
}

func TestRemoveEntry(t *testing.T) {
	dir := t.TempDir()
	pkg := filepath.Join(dir, "MyMod.staging")
	if err := os.MkdirAll(filepath.Join(pkg, "lua"), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(pkg, "lua", "a.lua"), []byte("hello"), 0o644); err != nil {
		t.Fatal(err)
	}

	t.Run("dry run does not delete", func(t *testing.T) {
		cleanDryRun = true
		defer func() { cleanDryRun = false }()

		var buf bytes.Buffer
		result := cleanResult{DryRun: true}
		removeEntry(pkg, &buf, &result)

		if result.Removed != 1 {
			t.Fatalf("got removed=%d, want 1", result.Removed)
		}
		if result.FreedBytes != 5 {
			t.Fatalf("got freed=%d, want 5", result.FreedBytes)
		}
		if _, err := os.Stat(pkg); err != nil {
			t.Fatalf("directory should still exist after dry run: %v", err)
		}
		if !strings.Contains(buf.String(), "would remove") {
			t.Fatalf("expected dry run line, got %q", buf.String())
		}
	})

	t.Run("actual remove deletes tree", func(t *testing.T) {
		cleanDryRun = false
		var buf bytes.Buffer
		result := cleanResult{}
		removeEntry(pkg, &buf, &result)

		if result.Removed != 1 {
			t.Fatalf("got removed=%d, want 1", result.Removed)
		}
		if _, err := os.Stat(pkg); !os.IsNotExist(err) {
			t.Fatal("directory should have been removed")
		}
	})

	t.Run("nonexistent path is skipped", func(t *testing.T) {
		var buf bytes.Buffer
		result := cleanResult{}
		removeEntry(filepath.Join(dir, "nope"), &buf, &result)
		if result.Skipped != 1 {
			t.Fatalf("got skipped=%d, want 1", result.Skipped)
		}
	})
}

func TestStagingLeftoversAndOrphans(t *testing.T) {
	data := t.TempDir()
	ap, err := paths.Resolve(data)
	if err != nil {
		t.Fatal(err)
	}
	if err := ap.EnsureDirs(); err != nil {
		t.Fatal(err)
	}

	gameDir := filepath.Join(ap.ExtractedDir, "core_payday_2")
	for _, name := range []string{"Kept", "Orphan", "Broken.staging"} {
		if err := os.MkdirAll(filepath.Join(gameDir, name), 0o755); err != nil {
			t.Fatal(err)
		}
	}
	if err := os.WriteFile(filepath.Join(ap.LocksDir, "core_payday_2_Broken.lock"), []byte("1\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	library := `{"version":1,"entries":{"core:payday_2/Kept":{"game_id":"core:payday_2","package":"Kept","extracted_root":"` +
		filepath.ToSlash(filepath.Join(gameDir, "Kept")) + `"}}}`
	if err := os.WriteFile(ap.LibraryFile, []byte(library), 0o644); err != nil {
		t.Fatal(err)
	}

	leftovers := stagingLeftovers(ap)
	if len(leftovers) != 2 {
		t.Fatalf("expected staging dir and lock file, got %v", leftovers)
	}

	orphans, err := orphanedPackages(ap)
	if err != nil {
		t.Fatalf("orphanedPackages: %v", err)
	}
	if len(orphans) != 1 || filepath.Base(orphans[0]) != "Orphan" {
		t.Fatalf("expected only Orphan, got %v", orphans)
	}

	out, err := runCLI(t, "--data-dir", data, "clean", "staging")
	if err != nil {
		t.Fatalf("clean staging: %v", err)
	}
	if !strings.Contains(out, "2 removed") {
		t.Fatalf("expected 2 removed, got:\n%s", out)
	}
	if _, err := os.Stat(filepath.Join(gameDir, "Kept")); err != nil {
		t.Fatalf("installed package should survive: %v", err)
	}
}

func TestCleanDownloadsRemovesRequestDirs(t *testing.T) {
	data := t.TempDir()
	ap, err := paths.Resolve(data)
	if err != nil {
		t.Fatal(err)
	}
	if err := ap.EnsureDirs(); err != nil {
		t.Fatal(err)
	}
	for _, id := range []string{"req-a", "req-b"} {
		dir := filepath.Join(ap.DownloadsDir, id)
		if err := os.MkdirAll(dir, 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(filepath.Join(dir, "download"), []byte("zip"), 0o644); err != nil {
			t.Fatal(err)
		}
	}

	out, err := runCLI(t, "--data-dir", data, "clean", "downloads")
	if err != nil {
		t.Fatalf("clean downloads: %v", err)
	}
	if !strings.Contains(out, "2 removed") {
		t.Fatalf("expected 2 removed, got:\n%s", out)
	}
	entries, err := os.ReadDir(ap.DownloadsDir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 0 {
		t.Fatalf("downloads dir should be empty, got %d entries", len(entries))
	}
}

func TestFormatSize(t *testing.T) {
	cases := map[int64]string{0: "-", 512: "512 B", 2048: "2.0 KB", 5 * 1024 * 1024: "5.0 MB"}
	for in, want := range cases {
		if got := formatSize(in); got != want {
			t.Errorf("formatSize(%d) = %q, want %q", in, got, want)
		}
	}
}
