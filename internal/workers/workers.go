// Package workers provides the image pipeline task bodies: cleanup removes
// stale intermediate files, blur applies a Gaussian blur, and save copies the
// final image into the output directory.
package workers

import (
	"context"
	"fmt"
	"net/url"
	"path/filepath"
	"strings"
	"time"

	"github.com/Iron-Ham/workchain/internal/chain"
	"github.com/Iron-Ham/workchain/internal/errors"
	"github.com/Iron-Ham/workchain/internal/logging"
	"github.com/Iron-Ham/workchain/internal/work"
)

// Worker type identifiers.
const (
	TypeCleanup = "cleanup"
	TypeBlur    = "blur"
	TypeSave    = "save"
)

const (
	// KeyImageURI is the data key carrying the image location between tasks.
	KeyImageURI = "image_uri"

	// TagOutput marks the task whose output is the final image.
	TagOutput = "OUTPUT"

	// ChainName is the unique name image chains are submitted under.
	ChainName = "image_manipulation_work"

	// DefaultSigma is the blur strength applied per blur task.
	DefaultSigma = 3.0
)

// Config controls where the workers read and write files.
type Config struct {
	// TempDir holds intermediate blurred images. cleanup empties it.
	TempDir string
	// OutputDir receives saved images.
	OutputDir string
	// Delay is slept before each body runs, to make progress observable.
	Delay time.Duration
	// Sigma is the Gaussian blur strength. Zero means DefaultSigma.
	Sigma float64
}

func (c Config) sigma() float64 {
	if c.Sigma <= 0 {
		return DefaultSigma
	}
	return c.Sigma
}

// Register adds the cleanup, blur and save workers to catalog.
func Register(catalog *work.Catalog, cfg Config, logger *logging.Logger) {
	if logger == nil {
		logger = logging.NopLogger()
	}
	catalog.Register(TypeCleanup, func() work.Worker {
		return &cleanupWorker{cfg: cfg, log: logger.With("worker", TypeCleanup)}
	})
	catalog.Register(TypeBlur, func() work.Worker {
		return &blurWorker{cfg: cfg, log: logger.With("worker", TypeBlur)}
	})
	catalog.Register(TypeSave, func() work.Worker {
		return &saveWorker{cfg: cfg, log: logger.With("worker", TypeSave)}
	})
}

// BlurChain returns the descriptors for cleanup, then level blurs, then save.
// Only the first blur receives imageURI; each later task takes its input from
// the one before. A level below one is treated as one.
func BlurChain(imageURI string, level int) []chain.Descriptor {
	if level < 1 {
		level = 1
	}
	descs := make([]chain.Descriptor, 0, level+2)
	descs = append(descs, chain.NewDescriptor(TypeCleanup))
	for i := 0; i < level; i++ {
		blur := chain.NewDescriptor(TypeBlur)
		if i == 0 {
			blur = blur.WithInput(work.Data{KeyImageURI: imageURI})
		}
		descs = append(descs, blur)
	}
	descs = append(descs, chain.NewDescriptor(TypeSave).AddTag(TagOutput))
	return descs
}

// FileURI returns the file:// URI for path.
func FileURI(path string) string {
	if abs, err := filepath.Abs(path); err == nil {
		path = abs
	}
	return (&url.URL{Scheme: "file", Path: filepath.ToSlash(path)}).String()
}

// PathFromURI resolves a file:// URI or plain path to a filesystem path.
// Invalid input yields a ValidationError, which is never retried.
func PathFromURI(uri string) (string, error) {
	if uri == "" {
		return "", errors.NewValidationError("invalid input uri").WithField(KeyImageURI)
	}
	if !strings.Contains(uri, "://") {
		return uri, nil
	}
	u, err := url.Parse(uri)
	if err != nil {
		return "", errors.NewValidationError("invalid input uri").
			WithField(KeyImageURI).WithValue(uri).WithCause(err)
	}
	if u.Scheme != "file" {
		return "", errors.NewValidationError(fmt.Sprintf("unsupported uri scheme %q", u.Scheme)).
			WithField(KeyImageURI).WithValue(uri)
	}
	return filepath.FromSlash(u.Path), nil
}

// pause sleeps for d, returning false if ctx is cancelled first.
func pause(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
