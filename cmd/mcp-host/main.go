// Command mcp-host starts an interactive chat session backed by the MCP
// servers listed in a config file.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/jessevdk/go-flags"
	"github.com/shopspring/decimal"

	mcphost "github.com/ntk221/mcp-client-example"
	"github.com/ntk221/mcp-client-example/internal/config"
)

// Options holds the command line flags. The struct tags are interpreted
// by github.com/jessevdk/go-flags.
type Options struct {
	Config  string `short:"c" long:"config" description:"host config YAML/JSON path" required:"true"`
	Model   string `short:"m" long:"model" description:"override the configured model"`
	Verbose bool   `short:"v" long:"verbose" description:"enable debug logging"`
}

func main() {
	var opts Options
	parser := flags.NewParser(&opts, flags.HelpFlag|flags.PassDoubleDash)
	if _, err := parser.Parse(); err != nil {
		var flagsErr *flags.Error
		if errors.As(err, &flagsErr) && flagsErr.Type == flags.ErrHelp {
			fmt.Println(err)
			os.Exit(0)
		}
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	if err := run(opts); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func run(opts Options) error {
	level := slog.LevelInfo
	if opts.Verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	cfg, err := config.Load(opts.Config)
	if err != nil {
		return err
	}

	model := cfg.Model
	if opts.Model != "" {
		model = opts.Model
	}

	hostOpts := []mcphost.Option{mcphost.WithLogger(logger)}
	if model != "" {
		hostOpts = append(hostOpts, mcphost.WithModel(anthropic.Model(model)))
	}
	if cfg.MaxTokens > 0 {
		hostOpts = append(hostOpts, mcphost.WithMaxTokens(cfg.MaxTokens))
	}
	if cfg.MaxToolRounds > 0 {
		hostOpts = append(hostOpts, mcphost.WithMaxToolRounds(cfg.MaxToolRounds))
	}
	if cfg.SystemPrompt != "" {
		hostOpts = append(hostOpts, mcphost.WithSystemPrompt(cfg.SystemPrompt))
	}
	if d := cfg.CallTimeoutDuration(); d > 0 {
		hostOpts = append(hostOpts, mcphost.WithCallTimeout(d))
	}
	if cfg.MaxBudgetUSD > 0 {
		hostOpts = append(hostOpts, mcphost.WithMaxBudget(decimal.NewFromFloat(cfg.MaxBudgetUSD)))
	}

	host, err := mcphost.NewHost(cfg.ServerConfigs(), hostOpts...)
	if err != nil {
		return err
	}
	defer host.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := host.Connect(ctx); err != nil {
		// Partial connectivity is fine, the chat runs with whatever
		// servers came up.
		logger.Warn("some servers failed to connect", "error", err)
	}

	if err := host.Chat(ctx, os.Stdin, os.Stdout); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
