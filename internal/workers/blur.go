package workers

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/disintegration/imaging"
	"github.com/google/uuid"

	"github.com/Iron-Ham/workchain/internal/logging"
	"github.com/Iron-Ham/workchain/internal/work"
)

type blurWorker struct {
	cfg Config
	log *logging.Logger
}

// Execute blurs the image at image_uri and writes the result to a new PNG in
// the temp dir.
func (w *blurWorker) Execute(ctx context.Context, input work.Data) work.Outcome {
	if !pause(ctx, w.cfg.Delay) {
		return work.Cancelled()
	}

	src, err := PathFromURI(input.String(KeyImageURI))
	if err != nil {
		return work.Failure(err)
	}

	img, err := imaging.Open(src)
	if err != nil {
		return work.Failure(fmt.Errorf("open image: %w", err))
	}
	blurred := imaging.Blur(img, w.cfg.sigma())

	if err := ctx.Err(); err != nil {
		return work.Cancelled()
	}
	if err := os.MkdirAll(w.cfg.TempDir, 0o755); err != nil {
		return work.Failure(fmt.Errorf("create temp dir: %w", err))
	}
	dst := filepath.Join(w.cfg.TempDir, "blur-filter-output-"+uuid.NewString()+".png")
	if err := imaging.Save(blurred, dst); err != nil {
		return work.Failure(fmt.Errorf("write blurred image: %w", err))
	}

	w.log.Debug("blurred image", "src", src, "dst", dst)
	return work.Success(work.Data{KeyImageURI: FileURI(dst)})
}
