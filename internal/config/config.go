package config

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix is prepended to environment variable overrides, e.g.
// WORKCHAIN_SCHEDULER_WORKERS.
const EnvPrefix = "WORKCHAIN"

// Config represents the complete workchain configuration
type Config struct {
	Scheduler SchedulerConfig `mapstructure:"scheduler" yaml:"scheduler"`
	Observer  ObserverConfig  `mapstructure:"observer" yaml:"observer"`
	Ledger    LedgerConfig    `mapstructure:"ledger" yaml:"ledger"`
	Workers   WorkersConfig   `mapstructure:"workers" yaml:"workers"`
	Watch     WatchConfig     `mapstructure:"watch" yaml:"watch"`
	Logging   LoggingConfig   `mapstructure:"logging" yaml:"logging"`
}

// SchedulerConfig controls task execution
type SchedulerConfig struct {
	// Workers is the number of task bodies that may run at once (default: 4)
	Workers int `mapstructure:"workers" yaml:"workers"`
	// DefaultPolicy applies when a submission names none.
	// Options: "replace", "keep", "append"
	DefaultPolicy string `mapstructure:"default_policy" yaml:"default_policy"`
	// MaxRetries is the retry budget for tasks that do not set their own
	MaxRetries int `mapstructure:"max_retries" yaml:"max_retries"`
	// InitialBackoffMs is the delay before the first retry
	InitialBackoffMs int `mapstructure:"initial_backoff_ms" yaml:"initial_backoff_ms"`
	// MaxBackoffMs caps the exponential retry delay
	MaxBackoffMs int `mapstructure:"max_backoff_ms" yaml:"max_backoff_ms"`
}

// ObserverConfig controls how long finished runs stay observable
type ObserverConfig struct {
	// RetentionMinutes keeps a finished run visible under its name for this
	// long before pruning (0 = until a newer run replaces it)
	RetentionMinutes int `mapstructure:"retention_minutes" yaml:"retention_minutes"`
}

// LedgerConfig controls the on-disk record of finished runs
type LedgerConfig struct {
	// Enabled writes each finished run to the ledger (default: true)
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`
	// Dir is the ledger directory. Empty means <state dir>/ledger.
	Dir string `mapstructure:"dir" yaml:"dir"`
}

// WorkersConfig controls the image pipeline workers
type WorkersConfig struct {
	// OutputDir receives saved images (default: "blurred", relative to the
	// working directory)
	OutputDir string `mapstructure:"output_dir" yaml:"output_dir"`
	// TempDir holds intermediate images. Empty means a workchain directory
	// under the system temp dir.
	TempDir string `mapstructure:"temp_dir" yaml:"temp_dir"`
	// DelayMs is slept before each task body, to make progress visible
	DelayMs int `mapstructure:"delay_ms" yaml:"delay_ms"`
	// BlurSigma is the Gaussian blur strength per blur task
	BlurSigma float64 `mapstructure:"blur_sigma" yaml:"blur_sigma"`
	// BlurLevel is the default number of blur tasks in an image chain
	BlurLevel int `mapstructure:"blur_level" yaml:"blur_level"`
}

// WatchConfig controls file watching
type WatchConfig struct {
	// DebounceMs is the quiet period after a write before the chain is resubmitted
	DebounceMs int `mapstructure:"debounce_ms" yaml:"debounce_ms"`
}

// LoggingConfig controls debug logging behavior
type LoggingConfig struct {
	// Enabled controls whether logging is active (default: true)
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`
	// Level is the minimum log level (default: "info")
	// Options: "debug", "info", "warn", "error"
	Level string `mapstructure:"level" yaml:"level"`
	// Dir is where workchain.log is written. Empty means the state dir.
	Dir string `mapstructure:"dir" yaml:"dir"`
}

// Default returns a Config with sensible default values
func Default() *Config {
	return &Config{
		Scheduler: SchedulerConfig{
			Workers:          4,
			DefaultPolicy:    "replace",
			MaxRetries:       0,
			InitialBackoffMs: 500,
			MaxBackoffMs:     30000,
		},
		Observer: ObserverConfig{
			RetentionMinutes: 60,
		},
		Ledger: LedgerConfig{
			Enabled: true,
			Dir:     "",
		},
		Workers: WorkersConfig{
			OutputDir: "blurred",
			TempDir:   "",
			DelayMs:   0,
			BlurSigma: 3.0,
			BlurLevel: 1,
		},
		Watch: WatchConfig{
			DebounceMs: 200,
		},
		Logging: LoggingConfig{
			Enabled: true,
			Level:   "info",
			Dir:     "",
		},
	}
}

// InitialBackoff returns the first retry delay as a time.Duration
func (c *SchedulerConfig) InitialBackoff() time.Duration {
	return time.Duration(c.InitialBackoffMs) * time.Millisecond
}

// MaxBackoff returns the retry delay cap as a time.Duration
func (c *SchedulerConfig) MaxBackoff() time.Duration {
	return time.Duration(c.MaxBackoffMs) * time.Millisecond
}

// Retention returns the retention period (0 means until replaced)
func (c *ObserverConfig) Retention() time.Duration {
	return time.Duration(c.RetentionMinutes) * time.Minute
}

// Delay returns the per-task delay as a time.Duration
func (c *WorkersConfig) Delay() time.Duration {
	return time.Duration(c.DelayMs) * time.Millisecond
}

// Debounce returns the watch debounce as a time.Duration
func (c *WatchConfig) Debounce() time.Duration {
	return time.Duration(c.DebounceMs) * time.Millisecond
}

// ResolveDir returns the ledger directory, falling back to <state dir>/ledger.
func (c *LedgerConfig) ResolveDir() string {
	if c.Dir == "" {
		return filepath.Join(StateDir(), "ledger")
	}
	return ResolvePath(c.Dir, "")
}

// ResolveDir returns the log directory, falling back to the state dir.
func (c *LoggingConfig) ResolveDir() string {
	if c.Dir == "" {
		return StateDir()
	}
	return ResolvePath(c.Dir, "")
}

// ResolveOutputDir returns OutputDir resolved against baseDir.
func (c *WorkersConfig) ResolveOutputDir(baseDir string) string {
	return ResolvePath(c.OutputDir, baseDir)
}

// ResolveTempDir returns TempDir, falling back to a directory under the
// system temp dir.
func (c *WorkersConfig) ResolveTempDir() string {
	if c.TempDir == "" {
		return filepath.Join(os.TempDir(), "workchain", "blur_filter_outputs")
	}
	return ResolvePath(c.TempDir, "")
}

// ResolvePath expands a leading ~ to the user's home directory and resolves
// a relative path against baseDir. An empty baseDir leaves relative paths
// relative to the working directory.
func ResolvePath(path, baseDir string) string {
	if strings.HasPrefix(path, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			path = filepath.Join(home, path[2:])
		}
	} else if path == "~" {
		if home, err := os.UserHomeDir(); err == nil {
			path = home
		}
	}

	if !filepath.IsAbs(path) && baseDir != "" {
		path = filepath.Join(baseDir, path)
	}
	return path
}

// SetDefaults registers default values with viper
func SetDefaults() {
	defaults := Default()

	// Scheduler defaults
	viper.SetDefault("scheduler.workers", defaults.Scheduler.Workers)
	viper.SetDefault("scheduler.default_policy", defaults.Scheduler.DefaultPolicy)
	viper.SetDefault("scheduler.max_retries", defaults.Scheduler.MaxRetries)
	viper.SetDefault("scheduler.initial_backoff_ms", defaults.Scheduler.InitialBackoffMs)
	viper.SetDefault("scheduler.max_backoff_ms", defaults.Scheduler.MaxBackoffMs)

	// Observer defaults
	viper.SetDefault("observer.retention_minutes", defaults.Observer.RetentionMinutes)

	// Ledger defaults
	viper.SetDefault("ledger.enabled", defaults.Ledger.Enabled)
	viper.SetDefault("ledger.dir", defaults.Ledger.Dir)

	// Workers defaults
	viper.SetDefault("workers.output_dir", defaults.Workers.OutputDir)
	viper.SetDefault("workers.temp_dir", defaults.Workers.TempDir)
	viper.SetDefault("workers.delay_ms", defaults.Workers.DelayMs)
	viper.SetDefault("workers.blur_sigma", defaults.Workers.BlurSigma)
	viper.SetDefault("workers.blur_level", defaults.Workers.BlurLevel)

	// Watch defaults
	viper.SetDefault("watch.debounce_ms", defaults.Watch.DebounceMs)

	// Logging defaults
	viper.SetDefault("logging.enabled", defaults.Logging.Enabled)
	viper.SetDefault("logging.level", defaults.Logging.Level)
	viper.SetDefault("logging.dir", defaults.Logging.Dir)
}

// BindEnv makes every configuration key overridable through WORKCHAIN_*
// environment variables, with dots replaced by underscores.
func BindEnv() {
	viper.SetEnvPrefix(EnvPrefix)
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()
}

// Load reads the configuration from viper into a Config struct and validates it
func Load() (*Config, error) {
	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	if errs := cfg.Validate(); len(errs) > 0 {
		return nil, ValidationErrors(errs)
	}

	return &cfg, nil
}

// Get returns the current configuration (convenience function)
func Get() *Config {
	cfg, err := Load()
	if err != nil {
		// Fall back to defaults if unmarshaling fails
		return Default()
	}
	return cfg
}

// ConfigDir returns the path to the user's config directory
func ConfigDir() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "workchain")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".workchain"
	}
	return filepath.Join(home, ".config", "workchain")
}

// ConfigFile returns the path to the config file
func ConfigFile() string {
	return filepath.Join(ConfigDir(), "config.yaml")
}

// StateDir returns the directory for logs and the ledger
func StateDir() string {
	if xdg := os.Getenv("XDG_STATE_HOME"); xdg != "" {
		return filepath.Join(xdg, "workchain")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".workchain"
	}
	return filepath.Join(home, ".local", "state", "workchain")
}

// ValidPolicies returns the list of valid submission policies
func ValidPolicies() []string {
	return []string{"replace", "keep", "append"}
}

// IsValidPolicy checks if the given policy is valid
func IsValidPolicy(policy string) bool {
	for _, valid := range ValidPolicies() {
		if policy == valid {
			return true
		}
	}
	return false
}
