package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"voidmod/internal/games"
	"voidmod/internal/install"
	"voidmod/pkg/archive"
)

var inspectGame string

type inspectReport struct {
	Archive    string         `json:"archive"`
	Package    string         `json:"package"`
	Game       string         `json:"game"`
	Kind       games.ModKind  `json:"kind"`
	TopLevel   []string       `json:"top_level"`
	Files      int            `json:"files"`
	Entries    int            `json:"entries"`
	Extensions map[string]int `json:"extensions"`
}

func newInspectCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "inspect <archive>",
		Short: "Show how an archive would be installed without extracting it",
		Args:  cobra.ExactArgs(1),
		RunE:  runInspect,
	}
	cmd.Flags().StringVar(&inspectGame, "game", "", "Game to classify for (default: active_game from config)")
	return cmd
}

func runInspect(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd)
	if err != nil {
		return err
	}
	defer a.close()

	game, err := a.game(inspectGame)
	if err != nil {
		return err
	}
	report, err := inspectArchive(args[0], game)
	if err != nil {
		return err
	}

	if outputJSON {
		data, err := json.MarshalIndent(report, "", "  ")
		if err != nil {
			return fmt.Errorf("encode inspect json: %w", err)
		}
		fmt.Fprintln(cmd.OutOrStdout(), string(data))
		return nil
	}
	writeInspectReport(cmd.OutOrStdout(), report)
	return nil
}

func inspectArchive(path string, game games.Game) (inspectReport, error) {
	info, err := archive.Inspect(path)
	if err != nil {
		return inspectReport{}, err
	}
	pkg, err := install.PackageName(info, path)
	if err != nil {
		return inspectReport{}, err
	}
	return inspectReport{
		Archive:    path,
		Package:    pkg,
		Game:       game.ID(),
		Kind:       game.Classify(info),
		TopLevel:   info.TopLevelDirs(),
		Files:      len(info.Files),
		Entries:    info.TotalEntries,
		Extensions: info.Extensions,
	}, nil
}

func writeInspectReport(w io.Writer, r inspectReport) {
	tw := tabwriter.NewWriter(w, 0, 2, 2, ' ', 0)
	fmt.Fprintf(tw, "Archive:\t%s\n", r.Archive)
	fmt.Fprintf(tw, "Package:\t%s\n", r.Package)
	fmt.Fprintf(tw, "Kind:\t%s (%s)\n", r.Kind, r.Game)
	fmt.Fprintf(tw, "Top level:\t%s\n", dashJoin(r.TopLevel))
	fmt.Fprintf(tw, "Files:\t%d (%d entries)\n", r.Files, r.Entries)

	exts := make([]string, 0, len(r.Extensions))
	for ext := range r.Extensions {
		exts = append(exts, ext)
	}
	sort.Strings(exts)
	parts := make([]string, 0, len(exts))
	for _, ext := range exts {
		parts = append(parts, fmt.Sprintf("%s=%d", ext, r.Extensions[ext]))
	}
	fmt.Fprintf(tw, "Extensions:\t%s\n", dashJoin(parts))
	tw.Flush()
}

func dashJoin(values []string) string {
	if len(values) == 0 {
		return "-"
	}
	return strings.Join(values, ", ")
}
