// Package cmd implements the CLI front-end for the jail core: argument
// parsing and dispatch only. Configuration assembly, the privilege-drop
// pipeline, and process orchestration live in the config/linux/jail
// packages this front-end calls into.
package cmd

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"jailcore/logging"
)

// Version information set at build time.
var (
	Version   = "0.1.0"
	BuildTime = "unknown"
)

// Global flags.
var (
	globalLog       string
	globalLogFormat string
	globalDebug     bool
)

// rootCmd is the base command for the jail front-end.
var rootCmd = &cobra.Command{
	Use:   "jailcore",
	Short: "Privilege-dropping process sandbox",
	Long: `jailcore launches a target program under a composable set of
Linux isolation mechanisms: UID/GID drops, capability restriction,
namespaces, chroot with bind mounts, seccomp, and resource limits.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		setupLogging()
		return nil
	},
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&globalLog, "log", "", "set the log file path")
	rootCmd.PersistentFlags().StringVar(&globalLogFormat, "log-format", "text", "set the format for log output (text or json)")
	rootCmd.PersistentFlags().BoolVar(&globalDebug, "debug", false, "enable debug logging")
}

func setupLogging() {
	logOutput := os.Stderr
	if globalLog != "" {
		f, err := os.OpenFile(globalLog, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0600)
		if err == nil {
			logging.SetDefault(logging.NewLogger(logging.Config{
				Level:  logLevel(),
				Format: globalLogFormat,
				Output: f,
			}))
			return
		}
	}

	if globalLogFormat == "json" || globalDebug {
		logging.SetDefault(logging.NewLogger(logging.Config{
			Level:  logLevel(),
			Format: globalLogFormat,
			Output: logOutput,
		}))
	}
}

func logLevel() slog.Level {
	if globalDebug {
		return slog.LevelDebug
	}
	return slog.LevelInfo
}
