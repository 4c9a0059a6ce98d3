package logx

import (
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"time"

	"voidmod/internal/paths"
)

// New creates a logger that writes to a timestamped file inside the data
// directory's logs folder. When mirror is non-nil every line is also written
// there. The returned closer should be closed when logging is no longer
// needed.
func New(p paths.AppPaths, mirror io.Writer) (*log.Logger, io.Closer, error) {
	if err := os.MkdirAll(p.LogsDir, 0o755); err != nil {
		return nil, nil, fmt.Errorf("ensure logs directory: %w", err)
	}

	filename := time.Now().Format("20060102-150405") + ".log"
	filePath := filepath.Join(p.LogsDir, filename)
	file, err := os.OpenFile(filePath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, nil, fmt.Errorf("open log file: %w", err)
	}

	var out io.Writer = file
	if mirror != nil {
		out = io.MultiWriter(file, mirror)
	}
	logger := log.New(out, "", log.LstdFlags|log.Lmicroseconds)
	return logger, file, nil
}
