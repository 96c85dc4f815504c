package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	_ "github.com/joho/godotenv/autoload"
	"github.com/urfave/cli/v3"

	"github.com/starford/nbpublish/internal"
	pkgconfig "github.com/starford/nbpublish/pkg/config"
)

func loadConfig(cmd *cli.Command) (*internal.Config, error) {
	configPath := cmd.String("config")

	cfg := internal.NewDefaultConfig()
	found, err := pkgconfig.LoadOptional(configPath, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if !found {
		slog.Debug("config file not found, using defaults", slog.String("path", configPath))
	}
	if root := cmd.String("root"); root != "" {
		cfg.Course.Root = root
	}
	return cfg, nil
}

func runPublish(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	opts := internal.PublishOptions{
		Force:   cmd.Bool("force"),
		Prune:   cmd.Bool("prune"),
		Workers: int(cmd.Int("workers")),
		Topics:  cmd.Args().Slice(),
	}
	return internal.Publish(ctx, opts, internal.WithConfig(cfg))
}

func runWatch(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if err := internal.Watch(ctx, internal.WithConfig(cfg)); err != nil {
		return fmt.Errorf("app run error: %w", err)
	}
	return nil
}

func runMCP(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	return internal.ServeMCP(ctx, internal.WithConfig(cfg))
}

func main() {
	cmd := &cli.Command{
		Name:  "nbpublish",
		Usage: "Publish course notebooks with solutions and hidden tests removed",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "config",
				Aliases:     []string{"c"},
				Usage:       "Path to config file",
				DefaultText: "config/config.yaml",
				Value:       "config/config.yaml",
				Sources:     cli.EnvVars("APP_CONFIG_FILE"),
			},
			&cli.StringFlag{
				Name:    "root",
				Usage:   "Course repository root (overrides course.root)",
				Sources: cli.EnvVars("NBPUBLISH_ROOT"),
			},
		},
		Commands: []*cli.Command{
			{
				Name:      "publish",
				Usage:     "Sanitize authored notebooks into the published folders",
				ArgsUsage: "[topic...]",
				Action:    runPublish,
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:    "force",
						Aliases: []string{"f"},
						Usage:   "Republish notebooks even if unchanged",
					},
					&cli.BoolFlag{
						Name:  "prune",
						Usage: "Delete published notebooks whose source is gone",
					},
					&cli.IntFlag{
						Name:    "workers",
						Aliases: []string{"w"},
						Usage:   "Notebooks published in parallel (default from config)",
					},
				},
			},
			{
				Name:   "watch",
				Usage:  "Republish on change and serve the build status API",
				Action: runWatch,
			},
			{
				Name:   "mcp",
				Usage:  "Serve MCP tools on stdio",
				Action: runMCP,
			},
		},
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := cmd.Run(ctx, os.Args); err != nil {
		slog.Error("application error", slog.String("error", err.Error()))
		stop()
		os.Exit(1)
	}
}
