package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"path/filepath"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"voidmod/internal/config"
	"voidmod/internal/games"
	"voidmod/internal/paths"
	"voidmod/internal/tui"
)

var gamesUseInstallDir string

type gameRow struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Provider    string `json:"provider"`
	Active      bool   `json:"active"`
	InstallDir  string `json:"install_dir,omitempty"`
	ModsDir     string `json:"mods_dir,omitempty"`
	OverrideDir string `json:"overrides_dir,omitempty"`
	Error       string `json:"error,omitempty"`
}

func newGamesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "games",
		Short: "List supported games and where they are installed",
		Args:  cobra.NoArgs,
		RunE:  runGames,
	}
	cmd.AddCommand(newGamesUseCmd())
	return cmd
}

func newGamesUseCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "use <game-id>",
		Short: "Set the active game, optionally pinning its install directory",
		Args:  cobra.ExactArgs(1),
		RunE:  runGamesUse,
	}
	cmd.Flags().StringVar(&gamesUseInstallDir, "install-dir", "", "Game install directory (skips Steam detection)")
	return cmd
}

func runGames(cmd *cobra.Command, _ []string) error {
	a, err := newApp(cmd)
	if err != nil {
		return err
	}
	defer a.close()

	var status *tui.StatusWriter
	if !outputJSON {
		status = tui.NewStatusWriter(cmd.ErrOrStderr())
	}
	rows := make([]gameRow, 0, len(a.games.IDs()))
	for _, id := range a.games.IDs() {
		g, err := a.games.Lookup(id)
		if err != nil {
			return err
		}
		if status != nil {
			status.Update(fmt.Sprintf("Locating %s...", g.DisplayName()))
		}
		rows = append(rows, describeGame(g, id == a.cfg.ActiveGame))
	}
	if status != nil {
		status.Stop()
	}

	if outputJSON {
		data, err := json.MarshalIndent(struct {
			Games []gameRow `json:"games"`
		}{Games: rows}, "", "  ")
		if err != nil {
			return fmt.Errorf("encode games json: %w", err)
		}
		fmt.Fprintln(cmd.OutOrStdout(), string(data))
		return nil
	}
	writeGamesTable(cmd.OutOrStdout(), rows)
	return nil
}

func describeGame(g games.Game, active bool) gameRow {
	row := gameRow{ID: g.ID(), Name: g.DisplayName(), Provider: g.ModProvider(), Active: active}
	dir, err := g.ResolveInstallDir()
	if err != nil {
		row.Error = err.Error()
		return row
	}
	row.InstallDir = dir
	row.ModsDir = g.ModsDir(dir)
	row.OverrideDir = g.OverridesDir(dir)
	return row
}

func writeGamesTable(w io.Writer, rows []gameRow) {
	tw := tabwriter.NewWriter(w, 0, 2, 2, ' ', 0)
	fmt.Fprintln(tw, "\tID\tNAME\tPROVIDER\tINSTALL DIR")
	for _, r := range rows {
		marker := ""
		if r.Active {
			marker = "*"
		}
		dir := r.InstallDir
		if dir == "" {
			dir = "not found"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", marker, r.ID, r.Name, r.Provider, dir)
	}
	tw.Flush()
}

func runGamesUse(cmd *cobra.Command, args []string) error {
	ap, err := paths.Resolve(dataDir)
	if err != nil {
		return err
	}
	cfg, err := config.Load(ap.ConfigFile)
	if err != nil {
		return err
	}

	registry := games.Builtin(cfg.GameOptions())
	game, err := registry.Lookup(args[0])
	if err != nil {
		return fmt.Errorf("%w (known: %s)", err, dashJoin(registry.IDs()))
	}
	id := game.ID()
	cfg.ActiveGame = id

	if gamesUseInstallDir != "" {
		dir, err := filepath.Abs(gamesUseInstallDir)
		if err != nil {
			return fmt.Errorf("resolve install dir: %w", err)
		}
		ok, err := paths.DirExists(dir)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("install dir %s does not exist", dir)
		}
		cfg.SetGameInstallDir(id, dir)
	}

	if err := config.Save(ap.ConfigFile, cfg); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Active game set to %s\n", id)
	return nil
}
