package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v2"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/alanbriolat/shiodome"
	"github.com/alanbriolat/shiodome/async"
)

const appName = "shiodome"

func newLogger(format string, debug bool) (*zap.Logger, error) {
	var config zap.Config
	switch format {
	case "console":
		config = zap.NewDevelopmentConfig()
		config.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
		if !debug {
			config.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
		}
	case "json":
		config = zap.NewProductionConfig()
		if debug {
			config.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
		}
	default:
		return nil, fmt.Errorf("unknown log format %q", format)
	}
	return config.Build()
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var logger *zap.Logger
	configFlag := &cli.PathFlag{
		Name:    "config",
		Aliases: []string{"c"},
		Value:   "config.toml",
		Usage:   "load configuration from `FILE` (.toml, .yaml or .yml)",
		EnvVars: []string{"SHIODOME_CONFIG"},
	}

	app := &cli.App{
		Name:    appName,
		Usage:   "watch channels for live streams and archive them",
		Version: shiodome.Version,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "log-format",
				Value: "console",
				Usage: "log as `FORMAT`: console or json",
			},
			&cli.BoolFlag{
				Name:  "debug",
				Usage: "enable debug logging",
			},
			configFlag,
		},
		Before: func(c *cli.Context) error {
			var err error
			if logger, err = newLogger(c.String("log-format"), c.Bool("debug")); err != nil {
				return err
			}
			zap.RedirectStdLog(logger)
			zap.ReplaceGlobals(logger)
			return nil
		},
		After: func(c *cli.Context) error {
			if logger != nil {
				_ = logger.Sync()
			}
			return nil
		},
		Commands: []*cli.Command{
			{
				Name:  "run",
				Usage: "watch the configured channels until interrupted",
				Action: func(c *cli.Context) error {
					return runDaemon(ctx, c.Path("config"))
				},
			},
			{
				Name:  "check-config",
				Usage: "validate the configuration and list the watched channels",
				Action: func(c *cli.Context) error {
					return checkConfig(c.App.Writer, c.Path("config"))
				},
			},
			{
				Name:      "archive",
				Usage:     "archive a single YouTube video or Twitch channel now",
				ArgsUsage: "URL",
				Flags: []cli.Flag{
					&cli.PathFlag{
						Name:  "out",
						Usage: "save into `DIR` instead of the capture working directory",
					},
				},
				Action: func(c *cli.Context) error {
					if c.NArg() != 1 {
						return cli.Exit("expected exactly one URL", 2)
					}
					return archiveOne(ctx, c.Path("config"), c.Args().First(), c.Path("out"))
				},
			},
		},
		// With no command, run the daemon
		Action: func(c *cli.Context) error {
			return runDaemon(ctx, c.Path("config"))
		},
		HideHelpCommand: true,
	}

	result := async.Run(func() error { return app.Run(os.Args) })

	var err error
	select {
	case err = <-result:
	case <-ctx.Done():
		stop()
		err = <-result
	}
	if err != nil {
		if logger != nil {
			logger.Fatal(err.Error())
		}
		log.Fatal(err)
	}
}
