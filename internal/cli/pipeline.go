package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/url"
	"path/filepath"
	"strconv"
	"strings"
	"text/tabwriter"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"voidmod/internal/download"
	"voidmod/internal/games"
	"voidmod/internal/install"
	"voidmod/internal/library"
	"voidmod/internal/paths"
	"voidmod/internal/tui"
	"voidmod/pkg/archive"
)

// modResult is the per-source outcome shown in tables and JSON output.
type modResult struct {
	Source       string                `json:"source"`
	Status       string                `json:"status"`
	Archive      string                `json:"archive,omitempty"`
	Installation *install.Installation `json:"installation,omitempty"`
	Error        string                `json:"error,omitempty"`
}

// pipeline downloads each remote source through the queue and, when game is
// set, installs every archive. Installs of different packages run in
// parallel up to jobs.
type pipeline struct {
	app  *app
	game games.Game
	jobs int
}

var progressColumns = []tui.Column{
	{Header: "MOD", Width: 24},
	{Header: "STATUS", Width: 11},
	{Header: "PROGRESS", Width: 20, Bar: true},
	{Header: "DETAIL", Width: 40},
}

func rowKey(i int) string {
	return "mod:" + strconv.Itoa(i)
}

func (p *pipeline) run(ctx context.Context, sources []string, send func(tea.Msg)) []modResult {
	results := make([]modResult, len(sources))
	handles := make([]*download.Handle, len(sources))

	svc := p.app.newDownloadService(verbose)
	defer svc.Stop()
	if err := svc.Start(ctx); err != nil {
		for i, src := range sources {
			results[i] = modResult{Source: src, Status: tui.StatusError, Error: err.Error()}
		}
		return results
	}

	// Enqueue in argument order so downloads finish in that order.
	for i, src := range sources {
		results[i].Source = src
		if !isRemote(src) {
			continue
		}
		h, err := svc.Enqueue(ctx, src, "")
		if err != nil {
			results[i].Status = tui.StatusError
			results[i].Error = err.Error()
			continue
		}
		handles[i] = h
	}

	jobs := p.jobs
	if jobs <= 0 {
		jobs = 1
	}
	var g errgroup.Group
	g.SetLimit(jobs + 1)
	for i := range sources {
		g.Go(func() error {
			p.process(ctx, i, handles[i], &results[i], send)
			return nil
		})
	}
	_ = g.Wait()
	return results
}

func (p *pipeline) process(ctx context.Context, i int, h *download.Handle, res *modResult, send func(tea.Msg)) {
	key := rowKey(i)
	fail := func(status string, err error) {
		res.Status = status
		res.Error = err.Error()
		p.app.logger.Printf("%s: %s: %v", res.Source, status, err)
		send(tui.RowUpdateMsg{Key: key, Fields: map[string]string{"STATUS": status, "DETAIL": err.Error()}})
	}

	if res.Error != "" {
		send(tui.RowUpdateMsg{Key: key, Fields: map[string]string{"STATUS": res.Status, "DETAIL": res.Error}})
		return
	}

	archivePath := res.Source
	if h != nil {
		out, err := tui.WatchDownload(ctx, h, key, send)
		p.logHistory(h)
		if err != nil {
			if ctx.Err() != nil {
				h.Cancel()
				fail(tui.StatusCancelled, err)
				return
			}
			fail(tui.DownloadStatus(out), err)
			return
		}
		archivePath = out.Path
	} else {
		ok, err := paths.FileExists(archivePath)
		if err != nil || !ok {
			fail(tui.StatusError, fmt.Errorf("archive %s not found", archivePath))
			return
		}
		send(tui.RowProgressMsg{Key: key, Percent: 100})
	}
	res.Archive = archivePath

	if p.game == nil {
		res.Status = tui.StatusSaved
		send(tui.RowUpdateMsg{Key: key, Fields: map[string]string{"STATUS": tui.StatusSaved, "DETAIL": archivePath}})
		return
	}

	send(tui.RowUpdateMsg{Key: key, Fields: map[string]string{"STATUS": tui.StatusInstalling, "DETAIL": p.game.DisplayName()}})
	inst, err := p.install(ctx, archivePath, res.Source)
	if err != nil {
		fail(tui.StatusError, err)
		return
	}
	res.Status = tui.StatusInstalled
	res.Installation = &inst
	send(tui.RowUpdateMsg{Key: key, Fields: map[string]string{
		"STATUS": tui.StatusInstalled,
		"DETAIL": fmt.Sprintf("%s %s", inst.Kind, inst.Link),
	}})
}

// logHistory writes the outcome trail of h when the service keeps one.
func (p *pipeline) logHistory(h *download.Handle) {
	history := h.History()
	if len(history) == 0 {
		return
	}
	trail := make([]string, len(history))
	for i, o := range history {
		trail[i] = o.String()
	}
	p.app.logger.Printf("download %s history: %s", h.ID(), strings.Join(trail, " -> "))
}

func (p *pipeline) install(ctx context.Context, archivePath, source string) (install.Installation, error) {
	info, err := archive.Inspect(archivePath)
	if err != nil {
		return install.Installation{}, err
	}
	pkg, err := install.PackageName(info, archivePath)
	if err != nil {
		return install.Installation{}, err
	}

	unlock, err := install.AcquireLock(ctx, p.app.paths.LocksDir, library.Key(p.game.ID(), pkg), p.app.logger)
	if err != nil {
		return install.Installation{}, err
	}
	defer unlock()

	inst, err := p.app.installer.Install(ctx, archivePath, p.game)
	if err != nil {
		return install.Installation{}, err
	}
	if err := p.app.record(ctx, inst, source); err != nil {
		return inst, fmt.Errorf("record installation: %w", err)
	}
	return inst, nil
}

// runPipeline drives p over sources using the output mode picked from the
// command's flags and returns an error when any source failed.
func runPipeline(cmd *cobra.Command, p *pipeline, title string, sources []string, noProgress bool) error {
	ctx := commandContext(cmd)
	out := cmd.OutOrStdout()

	var results []modResult
	switch tui.DetectMode(out, noProgress, outputJSON) {
	case tui.ModeTUI:
		model := tui.NewProgressModel(title, progressColumns)
		for i, src := range sources {
			model.AddRow(rowKey(i), []string{displayName(src), tui.StatusPending})
		}
		err := tui.RunWithWork(ctx, out, model, func(ctx context.Context, send func(tea.Msg)) {
			results = p.run(ctx, sources, send)
		})
		if err != nil && !errors.Is(err, tui.ErrInterrupted) {
			return err
		}
		writeFailures(out, results)
	case tui.ModeJSON:
		results = p.run(ctx, sources, func(tea.Msg) {})
		if err := writeResultsJSON(out, results); err != nil {
			return err
		}
	default:
		results = p.run(ctx, sources, func(tea.Msg) {})
		writeResultsTable(out, results)
	}

	failed := 0
	for _, r := range results {
		if r.Error != "" {
			failed++
		}
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d mods failed", failed, len(results))
	}
	return nil
}

func writeResultsJSON(w io.Writer, results []modResult) error {
	payload := struct {
		Results []modResult `json:"results"`
	}{Results: results}
	data, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return fmt.Errorf("encode results json: %w", err)
	}
	fmt.Fprintln(w, string(data))
	return nil
}

func writeResultsTable(w io.Writer, results []modResult) {
	tw := tabwriter.NewWriter(w, 0, 2, 2, ' ', 0)
	fmt.Fprintln(tw, "MOD\tSTATUS\tKIND\tLINK\tERROR")
	for _, r := range results {
		kind, link := "-", "-"
		if r.Installation != nil {
			kind = string(r.Installation.Kind)
			link = r.Installation.Link
		} else if r.Archive != "" {
			link = r.Archive
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", displayName(r.Source), r.Status, kind, link, tui.NonEmptyOrDash(r.Error))
	}
	tw.Flush()
}

func writeFailures(w io.Writer, results []modResult) {
	var failed []modResult
	for _, r := range results {
		if r.Error != "" {
			failed = append(failed, r)
		}
	}
	if len(failed) == 0 {
		return
	}
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Failures:")
	for _, r := range failed {
		fmt.Fprintf(w, "  %s: %s\n", r.Source, r.Error)
	}
}

func isRemote(source string) bool {
	source = strings.ToLower(strings.TrimSpace(source))
	return strings.HasPrefix(source, "http://") || strings.HasPrefix(source, "https://")
}

func displayName(source string) string {
	if isRemote(source) {
		if u, err := url.Parse(source); err == nil {
			return download.FileName(u)
		}
		return source
	}
	return filepath.Base(source)
}
