package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"voidmod/internal/library"
)

var listGame string

func newListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List installed mods",
		Args:  cobra.NoArgs,
		RunE:  runList,
	}
	cmd.Flags().StringVar(&listGame, "game", "", "Only list mods for this game")
	return cmd
}

func runList(cmd *cobra.Command, _ []string) error {
	a, err := newApp(cmd)
	if err != nil {
		return err
	}
	defer a.close()

	if listGame != "" {
		if _, err := a.games.Lookup(listGame); err != nil {
			return err
		}
	}

	idx, err := a.library.Load()
	if err != nil {
		return err
	}
	entries := idx.List(listGame)
	if entries == nil {
		entries = []library.Entry{}
	}

	if outputJSON {
		payload := struct {
			Library string          `json:"library"`
			Entries []library.Entry `json:"entries"`
		}{Library: a.library.Path(), Entries: entries}
		data, err := json.MarshalIndent(payload, "", "  ")
		if err != nil {
			return fmt.Errorf("encode list json: %w", err)
		}
		fmt.Fprintln(cmd.OutOrStdout(), string(data))
		return nil
	}
	writeLibraryTable(cmd.OutOrStdout(), entries)
	return nil
}

func writeLibraryTable(w io.Writer, entries []library.Entry) {
	if len(entries) == 0 {
		fmt.Fprintln(w, "No mods installed.")
		return
	}
	tw := tabwriter.NewWriter(w, 0, 2, 2, ' ', 0)
	fmt.Fprintln(tw, "GAME\tPACKAGE\tKIND\tACTIVATION\tFILES\tINSTALLED\tLINK")
	for _, e := range entries {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d\t%s\t%s\n",
			e.GameID, e.Package, e.Kind, e.Activation, e.Files,
			e.InstalledAt.Local().Format("2006-01-02 15:04"), e.Link)
	}
	tw.Flush()
}
