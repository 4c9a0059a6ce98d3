package download

import (
	"context"
	"sync"
)

// cell holds the most recent outcome of one request. Readers only ever see
// the latest value; once a terminal outcome is stored the cell is sealed.
type cell struct {
	mu      sync.Mutex
	value   Outcome
	changed chan struct{}
	history []Outcome
	keep    bool
}

func newCell(initial Outcome, keepHistory bool) *cell {
	c := &cell{value: initial, changed: make(chan struct{}), keep: keepHistory}
	if keepHistory {
		c.history = []Outcome{initial}
	}
	return c
}

// publish stores o and wakes waiters. It reports false when the cell already
// holds a terminal outcome.
func (c *cell) publish(o Outcome) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.value.State.Terminal() {
		return false
	}
	c.value = o
	if c.keep {
		c.history = append(c.history, o)
	}
	close(c.changed)
	c.changed = make(chan struct{})
	return true
}

func (c *cell) load() (Outcome, <-chan struct{}) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.value, c.changed
}

// Handle observes a queued download.
type Handle struct {
	id   string
	url  string
	cell *cell

	cancelOnce sync.Once
	cancelCh   chan struct{}
}

func newHandle(id, rawURL string, keepHistory bool) *Handle {
	return &Handle{
		id:       id,
		url:      rawURL,
		cell:     newCell(InProgress(0), keepHistory),
		cancelCh: make(chan struct{}),
	}
}

func (h *Handle) ID() string  { return h.id }
func (h *Handle) URL() string { return h.url }

// Latest returns the most recently published outcome.
func (h *Handle) Latest() Outcome {
	o, _ := h.cell.load()
	return o
}

// Changed returns a channel closed at the next publish. Once the outcome is
// terminal nothing is published again and the channel never closes.
func (h *Handle) Changed() <-chan struct{} {
	_, ch := h.cell.load()
	return ch
}

// History returns every published outcome in order when the service keeps
// history, otherwise nil.
func (h *Handle) History() []Outcome {
	h.cell.mu.Lock()
	defer h.cell.mu.Unlock()
	if !h.cell.keep {
		return nil
	}
	return append([]Outcome(nil), h.cell.history...)
}

// Wait blocks until the request reaches a terminal outcome or ctx is done.
func (h *Handle) Wait(ctx context.Context) (Outcome, error) {
	for {
		o, ch := h.cell.load()
		if o.State.Terminal() {
			return o, o.result()
		}
		select {
		case <-ch:
		case <-ctx.Done():
			return o, ctx.Err()
		}
	}
}

// Cancel asks the worker to abandon the request. Cancellation is
// cooperative: it is observed before the transfer starts and between chunks.
// Simply dropping the handle does not cancel anything.
func (h *Handle) Cancel() {
	h.cancelOnce.Do(func() { close(h.cancelCh) })
}

func (h *Handle) cancelRequested() bool {
	select {
	case <-h.cancelCh:
		return true
	default:
		return false
	}
}
