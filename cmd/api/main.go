package main

import (
	"context"
	"fmt"
	"os"

	cli "github.com/urfave/cli/v3"
)

var version = "dev"

func main() {
	cmd := &cli.Command{
		Name:                  "iamconsole-api",
		Usage:                 "Backend for the identity server management consoles",
		Version:               version,
		EnableShellCompletion: true,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to the configuration file (searches ./, ./config and /etc/iamconsole/ when empty)",
				Sources: cli.EnvVars("IAMCONSOLE_CONFIG"),
			},
		},
		Commands: []*cli.Command{
			NewServeCommand(),
			NewEndpointsCommand(),
			NewTestConnectionCommand(),
			NewTokenCommand(),
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
