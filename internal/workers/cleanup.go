package workers

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"

	"github.com/Iron-Ham/workchain/internal/logging"
	"github.com/Iron-Ham/workchain/internal/work"
)

type cleanupWorker struct {
	cfg Config
	log *logging.Logger
}

// Execute removes the PNG files left in the temp dir by earlier runs. A
// missing temp dir is not an error.
func (w *cleanupWorker) Execute(ctx context.Context, _ work.Data) work.Outcome {
	if !pause(ctx, w.cfg.Delay) {
		return work.Cancelled()
	}

	entries, err := os.ReadDir(w.cfg.TempDir)
	if errors.Is(err, os.ErrNotExist) {
		return work.Success(nil)
	}
	if err != nil {
		return work.Failure(err)
	}

	removed := 0
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(strings.ToLower(entry.Name()), ".png") {
			continue
		}
		if err := os.Remove(filepath.Join(w.cfg.TempDir, entry.Name())); err != nil {
			return work.Failure(err)
		}
		removed++
	}
	w.log.Debug("cleaned temp dir", "dir", w.cfg.TempDir, "removed", removed)
	return work.Success(nil)
}
