package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

var (
	installGame       string
	installJobs       int
	installNoProgress bool
)

func newInstallCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "install <url|archive>...",
		Short: "Download if needed, extract and activate mod archives",
		Args:  cobra.MinimumNArgs(1),
		RunE:  runInstall,
	}
	cmd.Flags().StringVar(&installGame, "game", "", "Game to install into (default: active_game from config)")
	cmd.Flags().IntVar(&installJobs, "jobs", 2, "Installs to run in parallel")
	cmd.Flags().BoolVar(&installNoProgress, "no-progress", false, "Disable interactive progress output")
	return cmd
}

func runInstall(cmd *cobra.Command, args []string) error {
	if installJobs < 1 {
		return fmt.Errorf("--jobs must be at least 1")
	}

	a, err := newApp(cmd)
	if err != nil {
		return err
	}
	defer a.close()

	game, err := a.game(installGame)
	if err != nil {
		return err
	}
	installDir, err := game.ResolveInstallDir()
	if err != nil {
		return err
	}
	a.logger.Printf("install: %s at %s", game.ID(), installDir)

	p := &pipeline{app: a, game: game, jobs: installJobs}
	return runPipeline(cmd, p, "Installing for "+game.DisplayName(), args, installNoProgress)
}
