package main

import "github.com/urfave/cli/v3"

var (
	containerPath string
	configFile    string
	streamMode    string
	logLevel      string
	logFormat     string
	debug         bool
)

func rootFlags() []cli.Flag {
	flags := []cli.Flag{
		&cli.StringFlag{
			Name:        "config",
			Usage:       "path to config file (default ~/.config/osmp/config.yaml)",
			Destination: &configFile,
		},
	}
	return append(flags, loggingFlags()...)
}

func containerFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "file",
			Aliases:     []string{"f"},
			Usage:       "path to .osmp file, or a directory holding one",
			Destination: &containerPath,
		},
	}
}

func streamFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "stream-mode",
			Aliases:     []string{"mode"},
			Usage:       "instrument access hint (sequential, random, willneed)",
			Value:       "sequential",
			Destination: &streamMode,
		},
	}
}

func loggingFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "log-level",
			Usage:       "log level (debug, info, warn, error)",
			Value:       "info",
			Destination: &logLevel,
		},
		&cli.StringFlag{
			Name:        "log-format",
			Usage:       "log format (pretty, json, text)",
			Value:       "pretty",
			Destination: &logFormat,
		},
		&cli.BoolFlag{
			Name:        "debug",
			Usage:       "enable debug logging (shorthand for --log-level=debug)",
			Destination: &debug,
		},
	}
}
