package cmd

import (
	"fmt"
	"io"

	"github.com/Iron-Ham/workchain/internal/config"
	"github.com/Iron-Ham/workchain/internal/errors"
	"github.com/Iron-Ham/workchain/internal/logging"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var rootCmd = &cobra.Command{
	Use:   "workchain",
	Short: "Run named chains of background tasks",
	Long: `Workchain runs linear chains of tasks under unique names, with
replace, keep and append policies deciding what happens when a chain is
submitted under a name that is already in use.

The built-in workers clean a temporary directory, blur an image one or
more times, and save the result to the output directory.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command and reports any error it returns.
func Execute() error {
	err := rootCmd.Execute()
	if err == nil {
		return nil
	}

	logger := logging.NopLogger()
	if !errors.IsUserFacing(err) {
		if cfg, cerr := config.Load(); cerr == nil {
			if l, lerr := newLogger(cfg); lerr == nil {
				logger = l
			}
		}
	}
	reportError(rootCmd.ErrOrStderr(), logger, err)
	_ = logger.Close()
	return err
}

// reportError prints err for the user. Errors that are not meant for end
// users are also logged with their full chain at the error's severity.
func reportError(w io.Writer, logger *logging.Logger, err error) {
	fmt.Fprintf(w, "Error: %v\n", err)
	if errors.IsUserFacing(err) {
		return
	}

	severity := errors.GetSeverity(err)
	args := []any{"error", err.Error(), "severity", severity.String()}
	switch severity {
	case errors.SeverityDebug:
		logger.Debug("command failed", args...)
	case errors.SeverityInfo:
		logger.Info("command failed", args...)
	case errors.SeverityWarning:
		logger.Warn("command failed", args...)
	default:
		logger.Error("command failed", args...)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	// Global flags
	rootCmd.PersistentFlags().StringP("config", "c", "", "config file (default is $HOME/.config/workchain/config.yaml)")
}

func initConfig() {
	// Set defaults first so they're available even without a config file
	config.SetDefaults()
	_ = viper.BindPFlag("config", rootCmd.PersistentFlags().Lookup("config"))

	if cfgFile := viper.GetString("config"); cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(config.ConfigDir())
		viper.AddConfigPath(".")
	}

	// WORKCHAIN_SCHEDULER_WORKERS for scheduler.workers, and so on
	config.BindEnv()

	// Read config file if it exists (ignore error if not found)
	_ = viper.ReadInConfig()
}
