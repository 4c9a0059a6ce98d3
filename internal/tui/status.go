package tui

import (
	"fmt"
	"io"
	"sync"
	"time"
)

// StatusWriter shows the current setup phase on w. On a terminal it redraws
// a spinner line in place; otherwise each phase is printed once on its own
// line.
type StatusWriter struct {
	w           io.Writer
	interactive bool

	mu         sync.Mutex
	message    string
	phaseStart time.Time
	done       chan struct{}
	stopped    bool
}

// NewStatusWriter starts a status line on w.
func NewStatusWriter(w io.Writer) *StatusWriter {
	sw := &StatusWriter{
		w:           w,
		interactive: IsTerminal(w),
		phaseStart:  time.Now(),
		done:        make(chan struct{}),
	}
	if sw.interactive {
		go sw.loop()
	}
	return sw
}

// Update changes the status message and restarts the phase timer.
func (sw *StatusWriter) Update(msg string) {
	sw.mu.Lock()
	defer sw.mu.Unlock()
	if sw.stopped {
		return
	}
	sw.message = msg
	sw.phaseStart = time.Now()
	if !sw.interactive {
		fmt.Fprintln(sw.w, msg)
	}
}

// Stop clears the status line and stops the spinner. It is safe to call more
// than once.
func (sw *StatusWriter) Stop() {
	sw.mu.Lock()
	if sw.stopped {
		sw.mu.Unlock()
		return
	}
	sw.stopped = true
	sw.mu.Unlock()
	close(sw.done)
	if sw.interactive {
		fmt.Fprintf(sw.w, "\r\033[K")
	}
}

func (sw *StatusWriter) loop() {
	tick := 0
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-sw.done:
			return
		case <-ticker.C:
			sw.mu.Lock()
			msg := sw.message
			start := sw.phaseStart
			sw.mu.Unlock()

			spinner := spinnerFrames[tick%len(spinnerFrames)]
			tick++
			fmt.Fprintf(sw.w, "\r\033[K%s %s (%s)", spinner, msg, formatElapsed(time.Since(start)))
		}
	}
}

func formatElapsed(d time.Duration) string {
	if d < time.Second {
		return fmt.Sprintf("%dms", d.Milliseconds())
	}
	if d < 10*time.Second {
		return fmt.Sprintf("%.1fs", d.Seconds())
	}
	if d < time.Minute {
		return fmt.Sprintf("%ds", int(d.Seconds()))
	}
	return fmt.Sprintf("%dm%02ds", int(d.Minutes()), int(d.Seconds())%60)
}
