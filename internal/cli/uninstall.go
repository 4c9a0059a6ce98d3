package cli

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"voidmod/internal/install"
	"voidmod/internal/library"
)

var uninstallGame string

func newUninstallCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "uninstall <package>...",
		Short: "Remove installed mods and their activation links",
		Args:  cobra.MinimumNArgs(1),
		RunE:  runUninstall,
	}
	cmd.Flags().StringVar(&uninstallGame, "game", "", "Game to uninstall from (default: active_game from config)")
	return cmd
}

func runUninstall(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd)
	if err != nil {
		return err
	}
	defer a.close()

	game, err := a.game(uninstallGame)
	if err != nil {
		return err
	}

	ctx := commandContext(cmd)
	out := cmd.OutOrStdout()
	removed := []string{}
	var errs []error
	for _, pkg := range args {
		err := func() error {
			unlock, err := install.AcquireLock(ctx, a.paths.LocksDir, library.Key(game.ID(), pkg), a.logger)
			if err != nil {
				return err
			}
			defer unlock()

			uninstallErr := a.installer.Uninstall(game, pkg)
			if uninstallErr != nil && !errors.Is(uninstallErr, install.ErrNotInstalled) {
				return uninstallErr
			}
			if err := a.forget(ctx, game.ID(), pkg); err != nil {
				return fmt.Errorf("update library: %w", err)
			}
			return uninstallErr
		}()
		if err != nil {
			a.logger.Printf("uninstall %s: %v", pkg, err)
			errs = append(errs, err)
			continue
		}
		removed = append(removed, pkg)
		if !outputJSON {
			fmt.Fprintf(out, "Removed %s from %s\n", pkg, game.DisplayName())
		}
	}

	if outputJSON {
		payload := struct {
			Game    string   `json:"game"`
			Removed []string `json:"removed"`
		}{Game: game.ID(), Removed: removed}
		data, err := json.MarshalIndent(payload, "", "  ")
		if err != nil {
			return fmt.Errorf("encode uninstall json: %w", err)
		}
		fmt.Fprintln(out, string(data))
	}
	return errors.Join(errs...)
}
