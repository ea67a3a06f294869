package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/FACorreiaa/bankstatement2csv/pkg/config"
)

// app carries what every subcommand needs once the root has run.
type app struct {
	configFile string
	logLevel   string
	jsonLogs   bool

	cfg    *config.Config
	logger *slog.Logger
}

func newRootCmd() *cobra.Command {
	a := &app{}

	root := &cobra.Command{
		Use:           "statement",
		Short:         "Redact bank statement PDFs and convert them to CSV",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.setup(cmd.ErrOrStderr())
		},
	}

	flags := root.PersistentFlags()
	flags.StringVar(&a.configFile, "config", "", "YAML config file (overrides CONFIG_FILE)")
	flags.StringVar(&a.logLevel, "log-level", "", "debug, info, warn or error (overrides LOG_LEVEL)")
	flags.BoolVar(&a.jsonLogs, "json-logs", false, "emit JSON logs")

	root.AddCommand(
		newRedactCmd(a),
		newChunkCmd(a),
		newConvertCmd(a),
		newWorkerCmd(a),
	)

	root.SetErr(os.Stderr)
	return root
}

func (a *app) setup(stderr io.Writer) error {
	if a.configFile != "" {
		if err := os.Setenv("CONFIG_FILE", a.configFile); err != nil {
			return err
		}
	}
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(stderr, "configuration error:", err)
		return err
	}
	if a.logLevel != "" {
		cfg.Server.LogLevel = a.logLevel
	}
	a.cfg = cfg
	a.logger = setupLogging(stderr, cfg.Server.LogLevel, a.jsonLogs)
	slog.SetDefault(a.logger)
	return nil
}

func setupLogging(w io.Writer, level string, json bool) *slog.Logger {
	var lvl slog.Level
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: lvl}
	if json {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}
