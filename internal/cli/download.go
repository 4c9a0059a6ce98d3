package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

var downloadNoProgress bool

func newDownloadCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "download <url>...",
		Short: "Download mod archives into the downloads directory",
		Args:  cobra.MinimumNArgs(1),
		RunE:  runDownload,
	}
	cmd.Flags().BoolVar(&downloadNoProgress, "no-progress", false, "Disable interactive progress output")
	return cmd
}

func runDownload(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd)
	if err != nil {
		return err
	}
	defer a.close()

	for _, src := range args {
		if !isRemote(src) {
			return fmt.Errorf("download %s: only http and https URLs can be downloaded", src)
		}
	}

	p := &pipeline{app: a, jobs: 1}
	return runPipeline(cmd, p, "Downloading to "+a.paths.DownloadsDir, args, downloadNoProgress)
}
