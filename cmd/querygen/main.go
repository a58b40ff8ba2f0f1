package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	slogmulti "github.com/samber/slog-multi"
	"github.com/spf13/cobra"

	"github.com/brunobiangulo/querygen"
)

var (
	configPath string
	logLevel   string
	logFile    string
	outputFmt  string

	closeLog = func() error { return nil }
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "querygen",
	Short: "Turn KPI questions into calculation and prediction requests",
	Long: `Resolve the tuple lists an extraction model writes for plant-operations
questions into request batches for the KPI calculation and prediction
services, against a machine/KPI vocabulary kept in SQLite.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		closer, err := setupLogging(cmd.ErrOrStderr(), logLevel, logFile)
		if err != nil {
			return err
		}
		closeLog = closer
		return nil
	},
	PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
		return closeLog()
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to config file (yaml, json or toml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "Log level: debug, info, warn, error")
	rootCmd.PersistentFlags().StringVar(&logFile, "log-file", "", "Also write JSON logs to this file")
	rootCmd.PersistentFlags().StringVarP(&outputFmt, "output", "o", "json", "Output format: json or yaml")

	rootCmd.AddCommand(serveCmd, resolveCmd, generateCmd, importCmd, vocabCmd, historyCmd, evalCmd, entityCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// setupLogging installs a JSON handler on console, fanned out to file when
// one is given. The CLI passes stderr; stdout carries command results only.
// The returned func closes the file.
func setupLogging(console io.Writer, level, file string) (func() error, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		return nil, fmt.Errorf("invalid --log-level %q: %w", level, err)
	}
	opts := &slog.HandlerOptions{Level: lvl}

	if file == "" {
		slog.SetDefault(slog.New(slog.NewJSONHandler(console, opts)))
		return func() error { return nil }, nil
	}

	f, err := os.OpenFile(file, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("opening log file: %w", err)
	}
	slog.SetDefault(slog.New(slogmulti.Fanout(
		slog.NewJSONHandler(console, opts),
		slog.NewJSONHandler(f, opts),
	)))
	return f.Close, nil
}

// openEngine loads the configuration and creates the engine.
func openEngine() (querygen.Engine, error) {
	cfg, err := querygen.LoadConfig(configPath)
	if err != nil {
		return nil, err
	}
	e, err := querygen.New(cfg)
	if err != nil {
		return nil, fmt.Errorf("creating engine: %w", err)
	}
	return e, nil
}
