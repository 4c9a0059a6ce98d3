package install

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// StaleLockAge is how old a lock file may get before it is taken over even
// when its owner cannot be checked.
const StaleLockAge = time.Hour

// AcquireLock takes an exclusive lock file named after key inside dir,
// polling until it is free or ctx is done. A lock whose owning process is gone
// or that is older than StaleLockAge is taken over. The returned func releases
// it.
func AcquireLock(ctx context.Context, dir, key string, logger Logger) (func(), error) {
	if logger == nil {
		logger = noopLogger{}
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("prepare lock dir: %w", err)
	}

	lockPath := filepath.Join(dir, lockName(key)+".lock")
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	waiting := false
	for {
		f, err := os.OpenFile(lockPath, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o600)
		if err == nil {
			_, _ = fmt.Fprintf(f, "%d\n", os.Getpid())
			_ = f.Close()
			return func() { _ = os.Remove(lockPath) }, nil
		}
		if !errors.Is(err, os.ErrExist) {
			return nil, fmt.Errorf("acquire lock %s: %w", key, err)
		}

		holder, stale := inspectLock(lockPath)
		if stale {
			if gone, removed := removeIfUnchanged(lockPath, holder); gone {
				if removed {
					logger.Printf("lock %s: took over stale lock of %s", key, holder)
				}
				continue
			}
		}
		if !waiting {
			logger.Printf("waiting for lock %s held by %s", key, holder)
			waiting = true
		}

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("acquire lock %s: %w", key, ctx.Err())
		case <-ticker.C:
		}
	}
}

// lockHolder is what a lock file says about its owner.
type lockHolder struct {
	content []byte
	pid     int
}

func (h lockHolder) String() string {
	if h.pid > 0 {
		return "pid " + strconv.Itoa(h.pid)
	}
	return "unknown process"
}

// inspectLock reads the lock at path and reports whether it is stale. A lock
// that vanished in the meantime counts as stale so the caller retries at once.
func inspectLock(path string) (lockHolder, bool) {
	st, err := os.Stat(path)
	if err != nil {
		return lockHolder{}, errors.Is(err, os.ErrNotExist)
	}
	content, err := os.ReadFile(path)
	if err != nil {
		return lockHolder{}, errors.Is(err, os.ErrNotExist)
	}
	h := lockHolder{content: content}
	// An empty file belongs to an owner that has not written its pid yet.
	if pid, err := strconv.Atoi(strings.TrimSpace(string(content))); err == nil && pid > 0 {
		h.pid = pid
		if pid == os.Getpid() {
			return h, false
		}
		if !processAlive(pid) {
			return h, true
		}
	}
	return h, time.Since(st.ModTime()) > StaleLockAge
}

// removeIfUnchanged deletes the lock only while it still holds what was
// inspected, so a fresh lock taken by another waiter survives. gone reports
// whether the lock file no longer exists.
func removeIfUnchanged(path string, h lockHolder) (gone, removed bool) {
	current, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return true, false
	}
	if err != nil || !bytes.Equal(current, h.content) {
		return false, false
	}
	err = os.Remove(path)
	return err == nil || errors.Is(err, os.ErrNotExist), err == nil
}

func lockName(key string) string {
	return strings.NewReplacer("/", "_", `\`, "_", ":", "_").Replace(key)
}
