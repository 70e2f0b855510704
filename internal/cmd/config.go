package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"

	"github.com/Iron-Ham/workchain/internal/config"
	"github.com/Iron-Ham/workchain/internal/errors"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "View or modify workchain configuration",
	Long: `View or modify workchain configuration.

Without arguments, displays the current configuration.
Use subcommands to modify settings or create a config file.`,
	RunE: runConfigShow,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	RunE:  runConfigShow,
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a configuration value",
	Long: `Set a configuration value in the user's config file.

Keys use dot notation, e.g.:
  workchain config set scheduler.workers 8
  workchain config set scheduler.default_policy append
  workchain config set workers.blur_level 3

Valid keys:
  scheduler.workers            - Number of concurrent workers
  scheduler.default_policy     - Policy when a name is in use
                                 Options: replace, keep, append
  scheduler.max_retries        - Retries for tasks that set none
  scheduler.initial_backoff_ms - First retry delay in milliseconds
  scheduler.max_backoff_ms     - Retry delay cap in milliseconds
  observer.retention_minutes   - How long finished runs stay observable
  ledger.enabled               - Record finished runs on disk (true/false)
  ledger.dir                   - Ledger directory
  workers.output_dir           - Where saved images are written
  workers.temp_dir             - Where intermediate images are written
  workers.delay_ms             - Artificial delay per task in milliseconds
  workers.blur_sigma           - Blur strength per pass
  workers.blur_level           - Default number of blur passes
  watch.debounce_ms            - Quiet period before a change resubmits
  logging.enabled              - Write a log file (true/false)
  logging.level                - Options: debug, info, warn, error
  logging.dir                  - Log directory`,
	Args: cobra.ExactArgs(2),
	RunE: runConfigSet,
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Create a default config file",
	Long:  `Create a default config file at ~/.config/workchain/config.yaml with all available options.`,
	RunE:  runConfigInit,
}

var configPathCmd = &cobra.Command{
	Use:   "path",
	Short: "Show the config file path",
	RunE:  runConfigPath,
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configSetCmd)
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configPathCmd)
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	if viper.ConfigFileUsed() != "" {
		fmt.Fprintf(out, "# Config file: %s\n", viper.ConfigFileUsed())
	} else {
		fmt.Fprintln(out, "# Config file: (none - using defaults)")
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to render configuration: %w", err)
	}
	_, err = out.Write(data)
	return err
}

// settableKeys maps each key accepted by config set to its value kind.
var settableKeys = map[string]string{
	"scheduler.workers":            "int",
	"scheduler.default_policy":     "policy",
	"scheduler.max_retries":        "int",
	"scheduler.initial_backoff_ms": "int",
	"scheduler.max_backoff_ms":     "int",
	"observer.retention_minutes":   "int",
	"ledger.enabled":               "bool",
	"ledger.dir":                   "string",
	"workers.output_dir":           "string",
	"workers.temp_dir":             "string",
	"workers.delay_ms":             "int",
	"workers.blur_sigma":           "float",
	"workers.blur_level":           "int",
	"watch.debounce_ms":            "int",
	"logging.enabled":              "bool",
	"logging.level":                "level",
	"logging.dir":                  "string",
}

// parseSetting converts value to the kind registered for key.
func parseSetting(key, value string) (any, error) {
	kind, ok := settableKeys[key]
	if !ok {
		return nil, errors.NewValidationError("unknown configuration key; run 'workchain config set --help' to see valid keys").
			WithField(key)
	}

	switch kind {
	case "policy":
		if !config.IsValidPolicy(value) {
			return nil, invalidSetting(key, value, "valid options: "+strings.Join(config.ValidPolicies(), ", "))
		}
		return value, nil
	case "level":
		if !slices.Contains(config.ValidLogLevels(), strings.ToLower(value)) {
			return nil, invalidSetting(key, value, "valid options: "+strings.Join(config.ValidLogLevels(), ", "))
		}
		return strings.ToLower(value), nil
	case "bool":
		if value != "true" && value != "false" {
			return nil, invalidSetting(key, value, "expected true or false")
		}
		return value == "true", nil
	case "int":
		n, err := strconv.Atoi(value)
		if err != nil {
			return nil, invalidSetting(key, value, "expected integer")
		}
		if n < 0 {
			return nil, invalidSetting(key, value, "must be non-negative")
		}
		return n, nil
	case "float":
		f, err := strconv.ParseFloat(value, 64)
		if err != nil || f <= 0 {
			return nil, invalidSetting(key, value, "expected a positive number")
		}
		return f, nil
	default:
		return value, nil
	}
}

func invalidSetting(key, value, msg string) error {
	return errors.NewValidationError(msg).WithField(key).WithValue(value)
}

func runConfigSet(cmd *cobra.Command, args []string) error {
	key := args[0]
	value, err := parseSetting(key, args[1])
	if err != nil {
		return err
	}

	// Ensure config directory exists
	configDir := config.ConfigDir()
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	viper.Set(key, value)

	// Reject values the validator refuses before anything is written
	if _, err := config.Load(); err != nil {
		return errors.NewValidationError("rejected by validation").WithField(key).WithCause(err)
	}

	configFile := config.ConfigFile()
	if err := viper.WriteConfigAs(configFile); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Set %s = %v\n", key, value)
	fmt.Fprintf(out, "Config saved to %s\n", configFile)

	return nil
}

const defaultConfigContent = `# Workchain Configuration

scheduler:
  # Number of task bodies that may run at the same time
  workers: 4
  # What to do when a chain is submitted under a name in use
  # Options: replace, keep, append
  default_policy: replace
  # Retries for tasks that do not set max_retries themselves
  max_retries: 0
  # Exponential backoff between retries
  initial_backoff_ms: 500
  max_backoff_ms: 30000

observer:
  # Finished runs stay observable this long (0 keeps them until replaced)
  retention_minutes: 60

ledger:
  # Record every finished run so 'workchain status' can show it
  enabled: true
  # Defaults to ~/.local/state/workchain/ledger
  dir: ""

workers:
  # Saved images; relative paths are resolved against the working directory
  output_dir: blurred
  # Intermediate images; defaults to $TMPDIR/workchain/blur_filter_outputs
  temp_dir: ""
  # Artificial delay per task, useful to watch a chain progress
  delay_ms: 0
  # Blur strength per pass and default number of passes
  blur_sigma: 3.0
  blur_level: 1

watch:
  # Quiet period after a write before the chain is resubmitted
  debounce_ms: 200

logging:
  enabled: true
  # Options: debug, info, warn, error
  level: info
  # Defaults to ~/.local/state/workchain
  dir: ""
`

func runConfigInit(cmd *cobra.Command, args []string) error {
	configDir := config.ConfigDir()
	configFile := config.ConfigFile()

	// Check if config file already exists
	if _, err := os.Stat(configFile); err == nil {
		return errors.NewValidationError("config file already exists; use 'workchain config set' to modify values").
			WithValue(configFile)
	}

	if err := os.MkdirAll(configDir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	if err := os.WriteFile(configFile, []byte(defaultConfigContent), 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Created config file at %s\n", configFile)
	fmt.Fprintln(out, "Edit this file to customize workchain's behavior.")

	return nil
}

func runConfigPath(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()
	configFile := config.ConfigFile()

	if viper.ConfigFileUsed() != "" {
		fmt.Fprintf(out, "Active config: %s\n", viper.ConfigFileUsed())
	} else {
		fmt.Fprintf(out, "Default path: %s (not created)\n", configFile)
	}

	fmt.Fprintln(out, "\nSearch paths:")
	fmt.Fprintf(out, "  1. %s\n", filepath.Join(config.ConfigDir(), "config.yaml"))
	fmt.Fprintln(out, "  2. ./config.yaml (current directory)")
	fmt.Fprintf(out, "\nState directory: %s (logs and ledger unless overridden)\n", config.StateDir())
	fmt.Fprintf(out, "\nEnvironment variables: %s_* (e.g., %s_SCHEDULER_WORKERS)\n", config.EnvPrefix, config.EnvPrefix)

	return nil
}
