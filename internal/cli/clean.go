package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"voidmod/internal/config"
	"voidmod/internal/install"
	"voidmod/internal/paths"
)

var cleanDryRun bool

func newCleanCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "clean",
		Short: "Remove downloaded archives and leftovers from interrupted installs",
	}

	cmd.PersistentFlags().BoolVar(&cleanDryRun, "dry-run", false, "List what would be removed without deleting")

	cmd.AddCommand(newCleanDownloadsCmd())
	cmd.AddCommand(newCleanLogsCmd())
	cmd.AddCommand(newCleanStagingCmd())
	cmd.AddCommand(newCleanOrphansCmd())
	cmd.AddCommand(newCleanAllCmd())

	return cmd
}

func newCleanDownloadsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "downloads",
		Short: "Remove downloaded archives",
		Args:  cobra.NoArgs,
		RunE:  runCleanDownloads,
	}
}

func newCleanLogsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logs",
		Short: "Remove all log files",
		Args:  cobra.NoArgs,
		RunE:  runCleanLogs,
	}
}

func newCleanStagingCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "staging",
		Short: "Remove staging directories and lock files left by interrupted installs",
		Args:  cobra.NoArgs,
		RunE:  runCleanStaging,
	}
}

func newCleanOrphansCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "orphans",
		Short: "Remove extracted packages that are not in the library",
		Args:  cobra.NoArgs,
		RunE:  runCleanOrphans,
	}
}

func newCleanAllCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "all",
		Short: "Remove downloads, logs, staging leftovers and orphaned packages",
		Args:  cobra.NoArgs,
		RunE:  runCleanAll,
	}
}

type cleanResult struct {
	Removed    int   `json:"removed"`
	FreedBytes int64 `json:"freed_bytes"`
	Skipped    int   `json:"skipped"`
	DryRun     bool  `json:"dry_run"`
}

func runCleanDownloads(cmd *cobra.Command, _ []string) error {
	ap, err := resolveCleanPaths()
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	result := cleanResult{DryRun: cleanDryRun}
	removeAll(listEntries(ap.DownloadsDir), out, &result)
	return writeCleanResult(out, "downloads", result)
}

func runCleanLogs(cmd *cobra.Command, _ []string) error {
	ap, err := resolveCleanPaths()
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	result := cleanResult{DryRun: cleanDryRun}
	removeAll(listFiles(ap.LogsDir), out, &result)
	return writeCleanResult(out, "logs", result)
}

func runCleanStaging(cmd *cobra.Command, _ []string) error {
	ap, err := resolveCleanPaths()
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	result := cleanResult{DryRun: cleanDryRun}
	removeAll(stagingLeftovers(ap), out, &result)
	return writeCleanResult(out, "staging", result)
}

func runCleanOrphans(cmd *cobra.Command, _ []string) error {
	ap, err := resolveCleanPaths()
	if err != nil {
		return err
	}
	orphans, err := orphanedPackages(ap)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	result := cleanResult{DryRun: cleanDryRun}
	removeAll(orphans, out, &result)
	return writeCleanResult(out, "orphans", result)
}

func runCleanAll(cmd *cobra.Command, _ []string) error {
	ap, err := resolveCleanPaths()
	if err != nil {
		return err
	}
	orphans, err := orphanedPackages(ap)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	result := cleanResult{DryRun: cleanDryRun}
	removeAll(listEntries(ap.DownloadsDir), out, &result)
	removeAll(listFiles(ap.LogsDir), out, &result)
	removeAll(stagingLeftovers(ap), out, &result)
	removeAll(orphans, out, &result)
	return writeCleanResult(out, "all", result)
}

func resolveCleanPaths() (paths.AppPaths, error) {
	ap, err := paths.Resolve(dataDir)
	if err != nil {
		return ap, err
	}
	exists, err := paths.DirExists(ap.Root)
	if err != nil {
		return ap, fmt.Errorf("stat data dir: %w", err)
	}
	if !exists {
		return ap, fmt.Errorf("data directory does not exist: %s", ap.Root)
	}
	cfg, err := config.Load(ap.ConfigFile)
	if err != nil {
		return ap, err
	}
	return paths.ApplyConfig(ap, cfg), nil
}

// listFiles returns the regular files directly inside dir.
func listFiles(dir string) []string {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil
	}
	var out []string
	for _, e := range entries {
		if e.Type().IsRegular() {
			out = append(out, filepath.Join(dir, e.Name()))
		}
	}
	return out
}

// listEntries returns everything directly inside dir. Downloads live in one
// subdirectory per request.
func listEntries(dir string) []string {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil
	}
	out := make([]string, 0, len(entries))
	for _, e := range entries {
		out = append(out, filepath.Join(dir, e.Name()))
	}
	return out
}

// stagingLeftovers finds staging directories below the extracted tree and
// lock files in the locks directory.
func stagingLeftovers(ap paths.AppPaths) []string {
	var out []string
	for _, gameDir := range listDirs(ap.ExtractedDir) {
		for _, dir := range listDirs(gameDir) {
			if strings.HasSuffix(dir, install.StagingSuffix) {
				out = append(out, dir)
			}
		}
	}
	for _, f := range listFiles(ap.LocksDir) {
		if filepath.Ext(f) == ".lock" {
			out = append(out, f)
		}
	}
	return out
}

// orphanedPackages returns extracted package directories with no library
// entry.
func orphanedPackages(ap paths.AppPaths) ([]string, error) {
	idx, err := openLibrary(ap).Load()
	if err != nil {
		return nil, err
	}
	expected := make(map[string]bool, len(idx.Entries))
	for _, e := range idx.Entries {
		expected[filepath.Clean(e.ExtractedRoot)] = true
	}

	var actual []string
	for _, gameDir := range listDirs(ap.ExtractedDir) {
		for _, dir := range listDirs(gameDir) {
			if strings.HasSuffix(dir, install.StagingSuffix) {
				continue
			}
			actual = append(actual, dir)
		}
	}
	orphans := diffPaths(actual, expected)
	sort.Strings(orphans)
	return orphans, nil
}

func listDirs(dir string) []string {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil
	}
	var out []string
	for _, e := range entries {
		if e.IsDir() {
			out = append(out, filepath.Join(dir, e.Name()))
		}
	}
	return out
}

func diffPaths(actual []string, expected map[string]bool) []string {
	var orphans []string
	for _, path := range actual {
		if !expected[path] {
			orphans = append(orphans, path)
		}
	}
	return orphans
}

func removeAll(targets []string, out io.Writer, result *cleanResult) {
	for _, path := range targets {
		removeEntry(path, out, result)
	}
}

func removeEntry(path string, out io.Writer, result *cleanResult) {
	size, err := diskUsage(path)
	if err != nil {
		result.Skipped++
		return
	}

	if cleanDryRun {
		fmt.Fprintf(out, "would remove %s (%s)\n", path, formatSize(size))
		result.Removed++
		result.FreedBytes += size
		return
	}

	if err := os.RemoveAll(path); err != nil {
		if !outputJSON {
			fmt.Fprintf(out, "error removing %s: %v\n", path, err)
		}
		result.Skipped++
		return
	}

	result.Removed++
	result.FreedBytes += size
	if !outputJSON {
		fmt.Fprintf(out, "removed %s (%s)\n", path, formatSize(size))
	}
}

// diskUsage sums regular file sizes under path without following links.
func diskUsage(path string) (int64, error) {
	info, err := os.Lstat(path)
	if err != nil {
		return 0, err
	}
	if !info.IsDir() {
		return info.Size(), nil
	}
	var total int64
	err = filepath.WalkDir(path, func(_ string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.Type().IsRegular() {
			if fi, err := d.Info(); err == nil {
				total += fi.Size()
			}
		}
		return nil
	})
	return total, err
}

func writeCleanResult(out io.Writer, label string, result cleanResult) error {
	if outputJSON {
		return json.NewEncoder(out).Encode(result)
	}

	action := "complete"
	if cleanDryRun {
		action = "(dry run)"
	}
	fmt.Fprintf(out, "\nClean %s %s: %d removed, %s freed, %d skipped\n",
		label, action, result.Removed, formatSize(result.FreedBytes), result.Skipped)
	return nil
}

func formatSize(bytes int64) string {
	if bytes <= 0 {
		return "-"
	}
	const (
		KB = 1024
		MB = KB * 1024
		GB = MB * 1024
	)
	switch {
	case bytes >= GB:
		return fmt.Sprintf("%.1f GB", float64(bytes)/float64(GB))
	case bytes >= MB:
		return fmt.Sprintf("%.1f MB", float64(bytes)/float64(MB))
	case bytes >= KB:
		return fmt.Sprintf("%.1f KB", float64(bytes)/float64(KB))
	default:
		return fmt.Sprintf("%d B", bytes)
	}
}
