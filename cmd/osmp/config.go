package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/urfave/cli/v3"

	"github.com/samcharles93/osmp/internal/config"
	"github.com/samcharles93/osmp/internal/logger"
)

// prepare loads the config file, applies it to flags that were not set on
// the command line and stores the resulting logger in ctx.
func prepare(ctx context.Context, c *cli.Command) (context.Context, config.Config, error) {
	var (
		cfg config.Config
		err error
	)
	if configFile != "" {
		cfg, err = config.LoadFile(configFile)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return ctx, config.Config{}, err
	}
	applyLoggingConfig(c, cfg)

	level := logLevel
	if debug {
		level = slog.LevelDebug.String()
	}
	log, err := logger.Setup(os.Stderr, logFormat, level)
	if err != nil {
		return ctx, config.Config{}, err
	}
	return logger.WithContext(ctx, log), cfg, nil
}

func applyLoggingConfig(c *cli.Command, cfg config.Config) {
	if cfg.LogLevel != "" && !c.IsSet("log-level") {
		logLevel = cfg.LogLevel
	}
	if cfg.LogFormat != "" && !c.IsSet("log-format") {
		logFormat = cfg.LogFormat
	}
}

// applyContainerConfig applies the config defaults shared by every command
// that reads a container.
func applyContainerConfig(c *cli.Command, cfg config.Config) {
	if cfg.Container != "" && !c.IsSet("file") {
		containerPath = cfg.Container
	}
	if cfg.StreamMode != "" && !c.IsSet("stream-mode") {
		streamMode = cfg.StreamMode
	}
}

// applyMountConfig applies config file defaults to mount command variables.
func applyMountConfig(c *cli.Command, cfg config.Config, mountpoint *string, allowOther *bool) {
	applyContainerConfig(c, cfg)
	if cfg.Mountpoint != "" && !c.IsSet("mountpoint") {
		*mountpoint = cfg.Mountpoint
	}
	if cfg.AllowOther != nil && !c.IsSet("allow-other") {
		*allowOther = *cfg.AllowOther
	}
}

// applyServeConfig applies config file defaults to serve command variables.
func applyServeConfig(c *cli.Command, cfg config.Config, addr *string) {
	applyContainerConfig(c, cfg)
	if cfg.ServerAddress != "" && !c.IsSet("addr") {
		*addr = cfg.ServerAddress
	}
}
