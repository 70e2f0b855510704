package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/Iron-Ham/workchain/internal/chain"
	"github.com/Iron-Ham/workchain/internal/config"
	"github.com/Iron-Ham/workchain/internal/errors"
	"github.com/Iron-Ham/workchain/internal/logging"
	"github.com/Iron-Ham/workchain/internal/work"
	"github.com/Iron-Ham/workchain/internal/workers"
	"github.com/Iron-Ham/workchain/internal/workmanager"
	"golang.org/x/term"
)

// session bundles what a command needs to submit and follow chains.
type session struct {
	cfg     *config.Config
	logger  *logging.Logger
	manager *workmanager.Manager
	workers workers.Config
}

func openSession() (*session, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}

	logger, err := newLogger(cfg)
	if err != nil {
		return nil, err
	}

	cwd, err := os.Getwd()
	if err != nil {
		_ = logger.Close()
		return nil, fmt.Errorf("failed to get current directory: %w", err)
	}

	wcfg := workers.Config{
		TempDir:   cfg.Workers.ResolveTempDir(),
		OutputDir: cfg.Workers.ResolveOutputDir(cwd),
		Delay:     cfg.Workers.Delay(),
		Sigma:     cfg.Workers.BlurSigma,
	}
	catalog := work.NewCatalog()
	workers.Register(catalog, wcfg, logger)

	mgr, err := workmanager.New(cfg, catalog, logger)
	if err != nil {
		_ = logger.Close()
		return nil, err
	}

	logger.Info("session opened",
		"workers", cfg.Scheduler.Workers,
		"output_dir", wcfg.OutputDir,
		"ledger_dir", mgr.LedgerDir())

	return &session{cfg: cfg, logger: logger, manager: mgr, workers: wcfg}, nil
}

func (s *session) Close() {
	s.manager.Close()
	_ = s.logger.Close()
}

// policy resolves a --policy flag value, falling back to the configured default.
func (s *session) policy(flag string) (chain.Policy, error) {
	if flag == "" {
		return s.manager.DefaultPolicy(), nil
	}
	return chain.ParsePolicy(flag)
}

// loadConfig loads the configuration, reporting validation failures as a
// user-facing error.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, errors.NewValidationError("invalid configuration").WithCause(err)
	}
	return cfg, nil
}

func newLogger(cfg *config.Config) (*logging.Logger, error) {
	if !cfg.Logging.Enabled {
		return logging.NopLogger(), nil
	}
	logger, err := logging.NewLogger(cfg.Logging.ResolveDir(), cfg.Logging.Level)
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}
	return logger, nil
}

// signalContext is cancelled on SIGINT or SIGTERM.
func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}

// isTerminal reports whether w writes to an interactive terminal.
func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

// syncWriter serializes writes from the watcher and observer goroutines.
type syncWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (s *syncWriter) Printf(format string, args ...any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fmt.Fprintf(s.w, format, args...)
}
