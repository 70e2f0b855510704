// Package logging provides structured logging for workchain.
//
// It wraps log/slog with a JSON handler and carries chain, run and TaskRun
// identifiers as persistent attributes on child loggers, so every line a
// scheduler worker writes can be filtered by the chain it belongs to.
//
//	logger, err := logging.NewLogger(cfg.Logging.Dir, cfg.Logging.Level)
//	if err != nil {
//	    return err
//	}
//	defer logger.Close()
//
//	runLog := logger.WithChain("image-manipulation-work").WithRun(runID)
//	runLog.Info("chain started", "tasks", 3)
//
// Child loggers share the parent's writer. Closing any of them closes the
// underlying log file.
package logging
