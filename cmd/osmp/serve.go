package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/labstack/echo/v5"
	"github.com/labstack/echo/v5/middleware"
	"github.com/urfave/cli/v3"

	"github.com/samcharles93/osmp/internal/api"
	"github.com/samcharles93/osmp/internal/logger"
	"github.com/samcharles93/osmp/internal/store"
	"github.com/samcharles93/osmp/pkg/osmp"
)

func serveCmd() *cli.Command {
	var (
		addr        string
		readTimeout time.Duration
	)

	flags := append(containerFlags(), streamFlags()...)
	flags = append(flags,
		&cli.StringFlag{
			Name:        "addr",
			Usage:       "listen address",
			Value:       "127.0.0.1:8080",
			Destination: &addr,
		},
		&cli.DurationFlag{
			Name:        "read-timeout",
			Usage:       "read timeout",
			Value:       30 * time.Second,
			Destination: &readTimeout,
		},
	)

	return &cli.Command{
		Name:  "serve",
		Usage: "Serve a read-only HTTP view of a container",
		Flags: flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			ctx, cfg, err := prepare(ctx, c)
			if err != nil {
				return err
			}
			applyServeConfig(c, cfg, &addr)
			log := logger.FromContext(ctx)

			mode, err := osmp.ParseAccessMode(streamMode)
			if err != nil {
				return fmt.Errorf("serve: %w", err)
			}
			path, err := resolveContainerPath(containerPath, os.Stdin, os.Stderr)
			if err != nil {
				return err
			}
			st, err := store.Open(path, log)
			if err != nil {
				return err
			}
			defer func() { _ = st.Close() }()

			server := api.NewServer(st, api.Config{StreamMode: mode})
			e := echo.New()
			e.Use(middleware.RequestLogger())
			e.Use(middleware.Recover())
			server.Register(e)

			ctx, stop := signalContext(ctx)
			defer stop()

			log.Info("starting server", "address", addr, "container", path)
			sc := echo.StartConfig{
				Address: addr,
				BeforeServeFunc: func(srv *http.Server) error {
					srv.ReadHeaderTimeout = readTimeout
					return nil
				},
			}
			return sc.Start(ctx, e)
		},
	}
}
