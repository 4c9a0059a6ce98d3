// Package download runs the background queue that fetches mod archives to
// disk and publishes per-request progress.
package download

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
)

const (
	defaultQueueSize = 100
	chunkSize        = 32 * 1024
)

// Logger is the minimal logging surface the service writes to.
type Logger interface {
	Printf(format string, v ...any)
}

type noopLogger struct{}

func (noopLogger) Printf(string, ...any) {}

// Options configures a Service.
type Options struct {
	// Dir receives downloaded files.
	Dir string
	// QueueSize bounds the number of pending requests. Defaults to 100.
	QueueSize int
	// Workers is the number of concurrent transfers. Defaults to 1, which
	// serves requests strictly one at a time in FIFO order.
	Workers   int
	Client    *http.Client
	UserAgent string
	// History keeps every published outcome per request instead of only the
	// latest one.
	History bool
	Logger  Logger
}

type request struct {
	url string
	// dir is the request's own subdirectory of Options.Dir, so archives
	// with the same file name never share a path.
	dir    string
	handle *Handle
}

// Service owns the download queue and its workers.
type Service struct {
	opts  Options
	queue chan *request

	mu       sync.RWMutex
	started  bool
	stopped  bool
	done     chan struct{}
	stopOnce sync.Once
	cancel   context.CancelFunc
	wg       sync.WaitGroup
}

// NewService builds a service. Call Start before expecting progress and Stop
// when done.
func NewService(opts Options) *Service {
	if opts.QueueSize <= 0 {
		opts.QueueSize = defaultQueueSize
	}
	if opts.Workers <= 0 {
		opts.Workers = 1
	}
	if opts.Dir == "" {
		opts.Dir = filepath.Join(os.TempDir(), "voidmod-downloads")
	}
	if opts.Client == nil {
		opts.Client = &http.Client{Timeout: 30 * time.Minute}
	}
	if opts.Logger == nil {
		opts.Logger = noopLogger{}
	}
	return &Service{
		opts:  opts,
		queue: make(chan *request, opts.QueueSize),
		done:  make(chan struct{}),
	}
}

// Dir returns the directory downloads are written to.
func (s *Service) Dir() string {
	return s.opts.Dir
}

// Start launches the workers. Requests enqueued before Start wait in the
// queue.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return ErrStopped
	}
	if s.started {
		return errors.New("download service already started")
	}
	s.started = true

	ctx, s.cancel = context.WithCancel(ctx)
	for i := 0; i < s.opts.Workers; i++ {
		s.wg.Add(1)
		go s.worker(ctx, i)
	}
	s.opts.Logger.Printf("download service started workers=%d dir=%s", s.opts.Workers, s.opts.Dir)
	return nil
}

// Stop aborts the transfer in flight, cancels every queued request and waits
// for the workers to exit. It is safe to call more than once.
func (s *Service) Stop() {
	s.stopOnce.Do(func() {
		close(s.done)

		s.mu.Lock()
		s.stopped = true
		cancel := s.cancel
		s.mu.Unlock()

		if cancel != nil {
			cancel()
		}
		s.wg.Wait()

		for {
			select {
			case req := <-s.queue:
				req.handle.cell.publish(Cancelled())
			default:
				s.opts.Logger.Printf("download service stopped")
				return
			}
		}
	})
}

// Enqueue validates rawURL and queues it. The returned handle starts at
// InProgress(0). An empty id is replaced with the generated request id that
// also names the request's download directory. Enqueue only blocks while the
// queue is full.
func (s *Service) Enqueue(ctx context.Context, rawURL, id string) (*Handle, error) {
	u, err := url.Parse(rawURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, fmt.Errorf("%w: %q", ErrInvalidURL, rawURL)
	}
	reqID := uuid.NewString()
	if id == "" {
		id = reqID
	}
	req := &request{
		url:    u.String(),
		dir:    filepath.Join(s.opts.Dir, reqID),
		handle: newHandle(id, u.String(), s.opts.History),
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.stopped {
		return nil, ErrStopped
	}
	select {
	case s.queue <- req:
		s.opts.Logger.Printf("download queued id=%s url=%s", id, req.url)
		return req.handle, nil
	case <-s.done:
		return nil, ErrStopped
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (s *Service) worker(ctx context.Context, n int) {
	defer s.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case req := <-s.queue:
			s.process(ctx, req)
		}
	}
}

func (s *Service) process(parent context.Context, req *request) {
	h := req.handle
	logf := s.opts.Logger.Printf

	if h.cancelRequested() || parent.Err() != nil {
		h.cell.publish(Cancelled())
		logf("download cancelled before start id=%s", h.id)
		return
	}

	ctx, cancel := context.WithCancel(parent)
	defer cancel()
	go func() {
		select {
		case <-h.cancelCh:
			cancel()
		case <-ctx.Done():
		}
	}()

	interrupted := func() bool {
		return h.cancelRequested() || parent.Err() != nil
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, req.url, nil)
	if err != nil {
		h.cell.publish(Failed(fmt.Errorf("%w: build request: %w", ErrNetwork, err)))
		return
	}
	if s.opts.UserAgent != "" {
		httpReq.Header.Set("User-Agent", s.opts.UserAgent)
	}

	resp, err := s.opts.Client.Do(httpReq)
	if err != nil {
		if interrupted() {
			h.cell.publish(Cancelled())
			return
		}
		logf("download request failed id=%s url=%s: %v", h.id, req.url, err)
		h.cell.publish(Failed(fmt.Errorf("%w: get %s: %w", ErrNetwork, req.url, err)))
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		logf("download refused id=%s url=%s status=%s", h.id, req.url, resp.Status)
		h.cell.publish(CannotComplete(fmt.Sprintf("unexpected status %s", resp.Status)))
		return
	}

	dest := filepath.Join(req.dir, FileName(resp.Request.URL))
	if err := os.MkdirAll(req.dir, 0o755); err != nil {
		h.cell.publish(Failed(fmt.Errorf("%w: prepare download dir: %w", ErrIO, err)))
		return
	}
	file, err := os.Create(dest)
	if err != nil {
		logf("download create failed id=%s path=%s: %v", h.id, dest, err)
		h.cell.publish(Failed(fmt.Errorf("%w: create %s: %w", ErrIO, dest, err)))
		return
	}

	logf("download started id=%s url=%s dest=%s length=%d", h.id, req.url, dest, resp.ContentLength)
	written, outcome := s.copyBody(file, resp.Body, resp.ContentLength, h, interrupted)
	closeErr := file.Close()

	switch {
	case outcome.State == StateCancelled:
		_ = os.Remove(dest)
		_ = os.Remove(req.dir)
	case outcome.State.Terminal():
		// Failed transfers leave the partial file for the caller.
	case closeErr != nil:
		outcome = Failed(fmt.Errorf("%w: close %s: %w", ErrIO, dest, closeErr))
	case resp.ContentLength > 0 && written < resp.ContentLength:
		outcome = Failed(fmt.Errorf("%w: received %d of %d bytes", ErrPartialWrite, written, resp.ContentLength))
	default:
		outcome = Completed(dest)
	}

	h.cell.publish(outcome)
	logf("download finished id=%s bytes=%d outcome=%s", h.id, written, outcome)
}

// copyBody streams body into w chunk by chunk, publishing progress when the
// total is known. A non-terminal returned outcome means the stream ended
// cleanly.
func (s *Service) copyBody(w io.Writer, body io.Reader, total int64, h *Handle, interrupted func() bool) (int64, Outcome) {
	buf := make([]byte, chunkSize)
	var written int64
	for {
		if interrupted() {
			return written, Cancelled()
		}
		n, rerr := body.Read(buf)
		if n > 0 {
			wn, werr := w.Write(buf[:n])
			written += int64(wn)
			if werr != nil {
				if errors.Is(werr, io.ErrShortWrite) {
					return written, Failed(fmt.Errorf("%w: %w", ErrPartialWrite, werr))
				}
				return written, Failed(fmt.Errorf("%w: write: %w", ErrIO, werr))
			}
			if wn < n {
				return written, Failed(fmt.Errorf("%w: wrote %d of %d bytes", ErrPartialWrite, wn, n))
			}
			if total > 0 {
				h.cell.publish(InProgress(Percent(written, total)))
			}
		}
		if rerr == io.EOF {
			return written, Outcome{}
		}
		if rerr != nil {
			if interrupted() {
				return written, Cancelled()
			}
			if errors.Is(rerr, io.ErrUnexpectedEOF) {
				return written, Failed(fmt.Errorf("%w: stream ended early: %w", ErrPartialWrite, rerr))
			}
			return written, Failed(fmt.Errorf("%w: read body: %w", ErrNetwork, rerr))
		}
	}
}

// Percent returns round(written/total*100) clamped to [0,100].
func Percent(written, total int64) int {
	if total <= 0 {
		return 0
	}
	p := int(math.Round(float64(written) / float64(total) * 100))
	if p < 0 {
		return 0
	}
	if p > 100 {
		return 100
	}
	return p
}
