// Command vizopt compares the header, body and footer of three web pages
// against a reference dataset and asks a vision model how to improve the
// best ones.
//
//	vizopt serve                    HTTP API on :5000
//	vizopt analyze URL1 URL2 URL3   one analysis, JSON on stdout
//	vizopt chat [PROMPT]            smoke test the model API
//	vizopt mcp                      MCP tools over stdio
package main

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/hazyhaar/vizopt/config"
)

var (
	configPath string
	logLevel   string
)

var rootCmd = &cobra.Command{
	Use:   "vizopt",
	Short: "Rank page sections against a design dataset and suggest improvements",
	Long: `vizopt screenshots three URLs, crops each page into header, body and
footer bands, ranks every band against a reference image dataset by
perceptual hash and asks a vision-language model for design suggestions
on the best band of each section.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "YAML configuration file")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "debug, info, warn or error (overrides LOG_LEVEL)")

	rootCmd.AddCommand(serveCmd, analyzeCmd, chatCmd, mcpCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// loadConfig reads the configuration and installs the default logger.
// Logs go to stderr so stdout stays free for command output and stdio MCP.
func loadConfig() (*config.Config, *slog.Logger, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, err
	}
	if err := overrideLogLevel(cfg, logLevel); err != nil {
		return nil, nil, err
	}

	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: parseLevel(cfg.LogLevel)}))
	slog.SetDefault(logger)
	logger.Debug("config loaded", "config", cfg.Redacted())
	return cfg, logger, nil
}

// overrideLogLevel applies the --log-level flag and validates the result,
// since config.Load validated the value it replaces.
func overrideLogLevel(cfg *config.Config, level string) error {
	if level == "" {
		return nil
	}
	cfg.LogLevel = level
	return cfg.Validate()
}

func parseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
