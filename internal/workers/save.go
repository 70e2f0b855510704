package workers

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/Iron-Ham/workchain/internal/logging"
	"github.com/Iron-Ham/workchain/internal/work"
)

type saveWorker struct {
	cfg Config
	log *logging.Logger
	now func() time.Time
}

// Execute copies the image at image_uri into the output dir under a
// timestamped name.
func (w *saveWorker) Execute(ctx context.Context, input work.Data) work.Outcome {
	if !pause(ctx, w.cfg.Delay) {
		return work.Cancelled()
	}

	src, err := PathFromURI(input.String(KeyImageURI))
	if err != nil {
		return work.Failure(err)
	}
	if err := os.MkdirAll(w.cfg.OutputDir, 0o755); err != nil {
		return work.Failure(fmt.Errorf("create output dir: %w", err))
	}

	now := time.Now
	if w.now != nil {
		now = w.now
	}
	name := "blurred-image-" + now().Format("20060102-150405.000") + filepath.Ext(src)
	dst := filepath.Join(w.cfg.OutputDir, name)
	if err := copyFile(src, dst); err != nil {
		return work.Failure(err)
	}

	w.log.Info("saved image", "path", dst)
	return work.Success(work.Data{KeyImageURI: FileURI(dst)})
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("open source image: %w", err)
	}
	defer func() { _ = in.Close() }()

	tmp := dst + ".tmp"
	out, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("create output image: %w", err)
	}
	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		_ = os.Remove(tmp)
		return fmt.Errorf("copy image: %w", err)
	}
	if err := out.Close(); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("close output image: %w", err)
	}
	return os.Rename(tmp, dst)
}
