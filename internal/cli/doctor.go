package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"voidmod/internal/config"
	"voidmod/internal/games"
	"voidmod/internal/library"
	"voidmod/internal/paths"
)

func newDoctorCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Check the data directory, game detection and installed mods",
		Args:  cobra.NoArgs,
		RunE:  runDoctor,
	}
}

type healthCheck struct {
	Name    string `json:"name"`
	Status  string `json:"status"` // "ok", "warning", "error"
	Summary string `json:"summary"`
}

func runDoctor(cmd *cobra.Command, _ []string) error {
	ap, err := paths.Resolve(dataDir)
	if err != nil {
		return err
	}

	var checks []healthCheck

	cfg, cfgErr := config.Load(ap.ConfigFile)
	registry := games.Builtin(cfg.GameOptions())
	checks = append(checks, checkConfig(cfg, cfgErr, registry.IDs()))
	if cfgErr != nil {
		return writeDoctorResult(cmd, ap.Root, checks)
	}
	ap = paths.ApplyConfig(ap, cfg)
	if err := ap.EnsureDirs(); err != nil {
		return err
	}

	checks = append(checks, checkGame(registry, cfg.ActiveGame))
	checks = append(checks, checkSymlinks(ap))

	idx, libErr := openLibrary(ap).Load()
	checks = append(checks, checkLibrary(idx, libErr))
	checks = append(checks, checkLeftovers(ap))

	return writeDoctorResult(cmd, ap.Root, checks)
}

func checkConfig(cfg config.Config, cfgErr error, known []string) healthCheck {
	if cfgErr != nil {
		return healthCheck{Name: "Config", Status: "error", Summary: cfgErr.Error()}
	}

	var warnings, errors int
	for _, v := range cfg.Validate(known) {
		switch v.Level {
		case "warning":
			warnings++
		case "error":
			errors++
		}
	}

	summary := fmt.Sprintf("active game %s, activation %s", cfg.ActiveGame, cfg.Activation)
	if errors > 0 {
		return healthCheck{Name: "Config", Status: "error", Summary: fmt.Sprintf("%s; %d errors", summary, errors)}
	}
	if warnings > 0 {
		return healthCheck{Name: "Config", Status: "warning", Summary: fmt.Sprintf("%s; %d warnings", summary, warnings)}
	}
	return healthCheck{Name: "Config", Status: "ok", Summary: summary}
}

func checkGame(registry *games.Registry, id string) healthCheck {
	g, err := registry.Lookup(id)
	if err != nil {
		return healthCheck{Name: "Game", Status: "error", Summary: err.Error()}
	}
	dir, err := g.ResolveInstallDir()
	if err != nil {
		return healthCheck{
			Name:    "Game",
			Status:  "error",
			Summary: fmt.Sprintf("%s; set it with: voidmod games use %s --install-dir <dir>", err, g.ID()),
		}
	}
	return healthCheck{Name: "Game", Status: "ok", Summary: fmt.Sprintf("%s at %s", g.DisplayName(), dir)}
}

// checkSymlinks probes whether links can be created inside the data
// directory.
func checkSymlinks(ap paths.AppPaths) healthCheck {
	probe, err := os.MkdirTemp(ap.Root, ".doctor-")
	if err != nil {
		return healthCheck{Name: "Links", Status: "error", Summary: fmt.Sprintf("data dir not writable: %v", err)}
	}
	defer os.RemoveAll(probe)

	if err := os.Symlink(probe, filepath.Join(probe, "link")); err != nil {
		return healthCheck{Name: "Links", Status: "warning", Summary: "symlinks unavailable, mods will be copied"}
	}
	return healthCheck{Name: "Links", Status: "ok", Summary: "symlinks supported"}
}

func checkLibrary(idx *library.Index, err error) healthCheck {
	if err != nil {
		return healthCheck{Name: "Library", Status: "error", Summary: err.Error()}
	}

	var broken []string
	for _, e := range idx.List("") {
		if _, err := os.Lstat(e.Link); err != nil {
			broken = append(broken, e.Package+" (link missing)")
			continue
		}
		if ok, _ := paths.DirExists(e.ContentRoot); !ok {
			broken = append(broken, e.Package+" (content missing)")
		}
	}

	total := len(idx.Entries)
	if len(broken) == 0 {
		return healthCheck{Name: "Library", Status: "ok", Summary: fmt.Sprintf("%d mods installed", total)}
	}
	return healthCheck{
		Name:    "Library",
		Status:  "warning",
		Summary: fmt.Sprintf("%d of %d mods broken: %s", len(broken), total, strings.Join(broken, ", ")),
	}
}

func checkLeftovers(ap paths.AppPaths) healthCheck {
	leftovers := stagingLeftovers(ap)
	if len(leftovers) == 0 {
		return healthCheck{Name: "Staging", Status: "ok", Summary: "no interrupted installs"}
	}
	return healthCheck{
		Name:    "Staging",
		Status:  "warning",
		Summary: fmt.Sprintf("%d leftovers from interrupted installs; run: voidmod clean staging", len(leftovers)),
	}
}

func writeDoctorResult(cmd *cobra.Command, root string, checks []healthCheck) error {
	if outputJSON {
		data, err := json.MarshalIndent(checks, "", "  ")
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), string(data))
		return nil
	}

	bold := lipgloss.NewStyle().Bold(true).Inline(true)
	green := lipgloss.NewStyle().Foreground(lipgloss.Color("2")).Inline(true)
	yellow := lipgloss.NewStyle().Foreground(lipgloss.Color("3")).Inline(true)
	red := lipgloss.NewStyle().Foreground(lipgloss.Color("1")).Inline(true)

	out := cmd.OutOrStdout()
	fmt.Fprintln(out, bold.Render("VOIDMOD HEALTH:")+" "+root)

	for _, c := range checks {
		var statusStr string
		switch c.Status {
		case "ok":
			statusStr = green.Render("OK")
		case "warning":
			statusStr = yellow.Render("WARN")
		case "error":
			statusStr = red.Render("ERROR")
		}
		fmt.Fprintf(out, "  %-10s %s    %s\n", c.Name+":", statusStr, c.Summary)
	}

	return nil
}

