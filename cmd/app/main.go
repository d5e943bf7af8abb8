package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	_ "github.com/joho/godotenv/autoload"
	"github.com/urfave/cli/v3"

	"github.com/starford/scribe/internal"
	"github.com/starford/scribe/internal/apperr"
	pkgconfig "github.com/starford/scribe/pkg/config"
)

func loadConfig(cmd *cli.Command) (*internal.Config, error) {
	cfg := internal.NewDefaultConfig()
	if err := pkgconfig.LoadOptional(cmd.String("config"), cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return cfg, nil
}

// openCore wires the shared components for a one-shot command. CLI logs are
// text on stderr and stay quiet below warnings unless --verbose is set.
func openCore(cmd *cli.Command) (*internal.Core, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	level := max(cfg.App.LogLevel, slog.LevelWarn)
	if cmd.Bool("verbose") {
		level = cfg.App.LogLevel
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)
	return internal.Open(cfg, logger)
}

func serve(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if err := internal.Run(ctx, internal.WithConfig(cfg)); err != nil {
		return fmt.Errorf("app run error: %w", err)
	}
	return nil
}

func serveMCP(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if err := internal.RunMCP(ctx, internal.WithConfig(cfg)); err != nil {
		return fmt.Errorf("mcp run error: %w", err)
	}
	return nil
}

func main() {
	cmd := &cli.Command{
		Name:  "scribe",
		Usage: "Notes client: manual notes, AI summaries of PDFs, and transcriptions of audio",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "config",
				Aliases:     []string{"c"},
				Usage:       "Path to config file",
				DefaultText: "config/config.yaml",
				Value:       "config/config.yaml",
				Sources:     cli.EnvVars("APP_CONFIG_FILE"),
			},
			&cli.BoolFlag{
				Name:  "verbose",
				Usage: "Log at the configured level instead of warnings only",
			},
		},
		Commands: []*cli.Command{
			{
				Name:   "serve",
				Usage:  "Serve the browser UI",
				Action: serve,
			},
			{
				Name:   "mcp",
				Usage:  "Serve notes tools over MCP on stdin/stdout",
				Action: serveMCP,
			},
			loginCommand(),
			registerCommand(),
			logoutCommand(),
			notesCommand(),
			summarizeCommand(),
			transcribeCommand(),
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		if errors.Is(err, apperr.ErrUnauthenticated) {
			fmt.Fprintf(os.Stderr, "%v\nRun `scribe login` to sign in again.\n", err)
			os.Exit(2)
		}
		if errors.Is(err, apperr.ErrCancelled) {
			fmt.Fprintln(os.Stderr, "Cancelled")
			os.Exit(1)
		}
		if apperr.KindOf(err) != apperr.KindUnknown {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		slog.Error("application error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}
