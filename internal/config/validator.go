package config

import (
	"fmt"
	"slices"
	"strings"
)

// ValidationError represents a single validation failure
type ValidationError struct {
	Field   string // The config field path (e.g., "scheduler.workers")
	Value   any    // The invalid value
	Message string // Human-readable error description
}

// Error implements the error interface for ValidationError
func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s (got: %v)", e.Field, e.Message, e.Value)
}

// ValidationErrors is a collection of validation errors
type ValidationErrors []ValidationError

// Error implements the error interface for ValidationErrors
func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return ""
	}
	if len(e) == 1 {
		return e[0].Error()
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("%d validation errors:\n", len(e)))
	for i, err := range e {
		sb.WriteString(fmt.Sprintf("  %d. %s\n", i+1, err.Error()))
	}
	return sb.String()
}

// ValidLogLevels returns the list of valid log levels
func ValidLogLevels() []string {
	return []string{"debug", "info", "warn", "error"}
}

const (
	maxWorkers     = 256
	maxRetries     = 100
	maxBackoffMs   = 10 * 60 * 1000
	maxDelayMs     = 60 * 1000
	maxBlurSigma   = 100.0
	maxBlurLevel   = 10
	minDebounceMs  = 10
	maxDebounceMs  = 60 * 1000
	maxPathLength  = 4096
	maxRetentionMn = 7 * 24 * 60
)

// Validate checks the Config for invalid values and returns all validation errors found
func (c *Config) Validate() []ValidationError {
	var errors []ValidationError

	errors = append(errors, c.validateScheduler()...)
	errors = append(errors, c.validateObserver()...)
	errors = append(errors, c.validateLedger()...)
	errors = append(errors, c.validateWorkers()...)
	errors = append(errors, c.validateWatch()...)
	errors = append(errors, c.validateLogging()...)

	return errors
}

// validateScheduler validates the SchedulerConfig
func (c *Config) validateScheduler() []ValidationError {
	var errors []ValidationError
	s := c.Scheduler

	if s.Workers < 1 || s.Workers > maxWorkers {
		errors = append(errors, ValidationError{
			Field:   "scheduler.workers",
			Value:   s.Workers,
			Message: fmt.Sprintf("must be between 1 and %d", maxWorkers),
		})
	}

	if s.DefaultPolicy != "" && !IsValidPolicy(s.DefaultPolicy) {
		errors = append(errors, ValidationError{
			Field:   "scheduler.default_policy",
			Value:   s.DefaultPolicy,
			Message: fmt.Sprintf("must be one of: %s", strings.Join(ValidPolicies(), ", ")),
		})
	}

	if s.MaxRetries < 0 || s.MaxRetries > maxRetries {
		errors = append(errors, ValidationError{
			Field:   "scheduler.max_retries",
			Value:   s.MaxRetries,
			Message: fmt.Sprintf("must be between 0 and %d", maxRetries),
		})
	}

	if s.InitialBackoffMs <= 0 {
		errors = append(errors, ValidationError{
			Field:   "scheduler.initial_backoff_ms",
			Value:   s.InitialBackoffMs,
			Message: "must be positive",
		})
	}

	if s.MaxBackoffMs < s.InitialBackoffMs {
		errors = append(errors, ValidationError{
			Field:   "scheduler.max_backoff_ms",
			Value:   s.MaxBackoffMs,
			Message: "must not be less than initial_backoff_ms",
		})
	} else if s.MaxBackoffMs > maxBackoffMs {
		errors = append(errors, ValidationError{
			Field:   "scheduler.max_backoff_ms",
			Value:   s.MaxBackoffMs,
			Message: fmt.Sprintf("exceeds maximum of %d", maxBackoffMs),
		})
	}

	return errors
}

// validateObserver validates the ObserverConfig
func (c *Config) validateObserver() []ValidationError {
	var errors []ValidationError

	if c.Observer.RetentionMinutes < 0 || c.Observer.RetentionMinutes > maxRetentionMn {
		errors = append(errors, ValidationError{
			Field:   "observer.retention_minutes",
			Value:   c.Observer.RetentionMinutes,
			Message: fmt.Sprintf("must be between 0 and %d", maxRetentionMn),
		})
	}

	return errors
}

// validateLedger validates the LedgerConfig
func (c *Config) validateLedger() []ValidationError {
	return validatePath("ledger.dir", c.Ledger.Dir)
}

// validateWorkers validates the WorkersConfig
func (c *Config) validateWorkers() []ValidationError {
	var errors []ValidationError
	w := c.Workers

	if w.OutputDir == "" {
		errors = append(errors, ValidationError{
			Field:   "workers.output_dir",
			Value:   w.OutputDir,
			Message: "must not be empty",
		})
	}
	errors = append(errors, validatePath("workers.output_dir", w.OutputDir)...)
	errors = append(errors, validatePath("workers.temp_dir", w.TempDir)...)

	if w.DelayMs < 0 || w.DelayMs > maxDelayMs {
		errors = append(errors, ValidationError{
			Field:   "workers.delay_ms",
			Value:   w.DelayMs,
			Message: fmt.Sprintf("must be between 0 and %d", maxDelayMs),
		})
	}

	if w.BlurSigma <= 0 || w.BlurSigma > maxBlurSigma {
		errors = append(errors, ValidationError{
			Field:   "workers.blur_sigma",
			Value:   w.BlurSigma,
			Message: fmt.Sprintf("must be greater than 0 and at most %g", maxBlurSigma),
		})
	}

	if w.BlurLevel < 1 || w.BlurLevel > maxBlurLevel {
		errors = append(errors, ValidationError{
			Field:   "workers.blur_level",
			Value:   w.BlurLevel,
			Message: fmt.Sprintf("must be between 1 and %d", maxBlurLevel),
		})
	}

	return errors
}

// validateWatch validates the WatchConfig
func (c *Config) validateWatch() []ValidationError {
	var errors []ValidationError

	if c.Watch.DebounceMs < minDebounceMs || c.Watch.DebounceMs > maxDebounceMs {
		errors = append(errors, ValidationError{
			Field:   "watch.debounce_ms",
			Value:   c.Watch.DebounceMs,
			Message: fmt.Sprintf("must be between %d and %d", minDebounceMs, maxDebounceMs),
		})
	}

	return errors
}

// validateLogging validates the LoggingConfig
func (c *Config) validateLogging() []ValidationError {
	var errors []ValidationError

	if c.Logging.Level != "" && !slices.Contains(ValidLogLevels(), c.Logging.Level) {
		errors = append(errors, ValidationError{
			Field:   "logging.level",
			Value:   c.Logging.Level,
			Message: fmt.Sprintf("must be one of: %s", strings.Join(ValidLogLevels(), ", ")),
		})
	}
	errors = append(errors, validatePath("logging.dir", c.Logging.Dir)...)

	return errors
}

// validatePath checks an optional path for characters and lengths no
// filesystem accepts.
func validatePath(field, path string) []ValidationError {
	var errors []ValidationError
	if path == "" {
		return nil
	}

	if strings.ContainsRune(path, '\x00') {
		errors = append(errors, ValidationError{
			Field:   field,
			Value:   path,
			Message: "path contains invalid null character",
		})
	}

	if len(path) > maxPathLength {
		errors = append(errors, ValidationError{
			Field:   field,
			Value:   path,
			Message: fmt.Sprintf("path exceeds maximum length of %d characters", maxPathLength),
		})
	}

	return errors
}
