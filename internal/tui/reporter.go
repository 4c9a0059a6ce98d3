package tui

import (
	"context"

	tea "github.com/charmbracelet/bubbletea"

	"voidmod/internal/download"
)

// DownloadStatus maps a download outcome to a row status.
func DownloadStatus(o download.Outcome) string {
	switch o.State {
	case download.StateInProgress:
		if o.Percent == 0 {
			return StatusQueued
		}
		return StatusDownloading
	case download.StateCompleted:
		return StatusDownloaded
	case download.StateCancelled:
		return StatusCancelled
	case download.StateCannotComplete:
		return StatusRefused
	default:
		return StatusError
	}
}

// WatchDownload forwards every outcome h publishes to the row identified by
// key until the download is terminal or ctx is done. Intermediate values may
// be skipped; the last one is always delivered.
func WatchDownload(ctx context.Context, h *download.Handle, key string, send func(tea.Msg)) (download.Outcome, error) {
	last := -1
	var lastStatus string
	for {
		changed := h.Changed()
		o := h.Latest()

		if o.Percent != last {
			last = o.Percent
			send(RowProgressMsg{Key: key, Percent: o.Percent})
		}
		if status := DownloadStatus(o); status != lastStatus {
			lastStatus = status
			fields := map[string]string{"STATUS": status}
			if o.State.Terminal() && o.Message != "" {
				fields["DETAIL"] = o.Message
			}
			send(RowUpdateMsg{Key: key, Fields: fields})
		}

		if o.State.Terminal() {
			return h.Wait(ctx)
		}
		select {
		case <-changed:
		case <-ctx.Done():
			return o, ctx.Err()
		}
	}
}
