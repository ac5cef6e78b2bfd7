package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/spf13/cobra"

	"github.com/hazyhaar/vizopt/advisor"
	"github.com/hazyhaar/vizopt/segment"
)

const defaultChatPrompt = "Tell me a funny programming joke."

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the HTTP API",
	Args:  cobra.NoArgs,
	RunE:  runServe,
}

var websiteType string

var analyzeCmd = &cobra.Command{
	Use:   "analyze URL1 URL2 URL3",
	Short: "Analyze three URLs and print the result as JSON",
	Args:  cobra.ArbitraryArgs,
	RunE:  runAnalyze,
}

var chatCmd = &cobra.Command{
	Use:   "chat [PROMPT]",
	Short: "Send a text prompt to the configured model",
	Long: `Send a text-only prompt to the configured model and print the answer.
Useful to check the API key, endpoint and model before running analyses.`,
	Args: cobra.ArbitraryArgs,
	RunE: runChat,
}

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Serve the MCP tools over stdio",
	Args:  cobra.NoArgs,
	RunE:  runMCP,
}

func init() {
	analyzeCmd.Flags().StringVar(&websiteType, "website-type", advisor.DefaultWebsiteType, "kind of website the suggestions target")
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, logger, err := loadConfig()
	if err != nil {
		return err
	}
	ctx, stop := signalContext()
	defer stop()

	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	// The browser is launched again on demand if this fails.
	if err := a.svc.Start(); err != nil {
		logger.Warn("browser not started", "error", err)
	}

	go a.sweepMetrics(ctx)

	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           a.router(),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		logger.Info("server starting", "addr", cfg.Server.Addr, "mcp", cfg.Server.MCP)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
		close(errc)
	}()

	select {
	case err := <-errc:
		if err != nil {
			return fmt.Errorf("listen: %w", err)
		}
	case <-ctx.Done():
	}
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown", "error", err)
	}
	logger.Info("server stopped")
	return nil
}

func runAnalyze(cmd *cobra.Command, args []string) error {
	cfg, logger, err := loadConfig()
	if err != nil {
		return err
	}
	ctx, stop := signalContext()
	defer stop()

	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	res, err := a.svc.Analyze(ctx, segment.AnalyzeRequest{URLs: args, WebsiteType: websiteType})
	if err != nil {
		return err
	}
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	return enc.Encode(res)
}

func runChat(cmd *cobra.Command, args []string) error {
	cfg, logger, err := loadConfig()
	if err != nil {
		return err
	}
	ctx, stop := signalContext()
	defer stop()

	advCfg := cfg.Advisor
	advCfg.Logger = logger
	if advCfg.MaxTokens == 0 {
		advCfg.MaxTokens = 100
	}
	adv, err := advisor.New(advCfg)
	if err != nil {
		return err
	}

	prompt := strings.TrimSpace(strings.Join(args, " "))
	if prompt == "" {
		prompt = defaultChatPrompt
	}
	answer, err := adv.Chat(ctx, prompt)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Response from %s:\n%s\n", adv.Model(), answer)
	return nil
}

func runMCP(cmd *cobra.Command, _ []string) error {
	cfg, logger, err := loadConfig()
	if err != nil {
		return err
	}
	ctx, stop := signalContext()
	defer stop()

	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	logger.Info("mcp: serving over stdio")
	if err := a.mcpServer(true).Run(ctx, &mcp.StdioTransport{}); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("mcp: %w", err)
	}
	return nil
}
