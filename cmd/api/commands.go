package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	cli "github.com/urfave/cli/v3"

	"github.com/iamconsole/backend-go/internal/appconfig"
	"github.com/iamconsole/backend-go/internal/auth"
	"github.com/iamconsole/backend-go/internal/config"
	"github.com/iamconsole/backend-go/internal/logging"
	"github.com/iamconsole/backend-go/internal/models"
	"github.com/iamconsole/backend-go/internal/services"
)

func NewEndpointsCommand() *cli.Command {
	return &cli.Command{
		Name:  "endpoints",
		Usage: "Print the identity server endpoints derived from the configuration",
		Action: func(ctx context.Context, command *cli.Command) error {
			cfg, err := config.Load(command.String("config"))
			if err != nil {
				return fmt.Errorf("failed to load configuration: %w", err)
			}
			return printJSON(appconfig.New(cfg).ServiceEndpoints())
		},
	}
}

func NewTestConnectionCommand() *cli.Command {
	return &cli.Command{
		Name:  "test-connection",
		Usage: "Connect to a JDBC user store database directly and report its version",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "url",
				Usage:    "JDBC connection URL (jdbc:mysql://, jdbc:postgresql://, jdbc:sqlserver://, jdbc:mariadb://)",
				Required: true,
			},
			&cli.StringFlag{
				Name:  "username",
				Usage: "Database user",
			},
			&cli.StringFlag{
				Name:    "password",
				Usage:   "Database password",
				Sources: cli.EnvVars("IAMCONSOLE_DB_PASSWORD"),
			},
			&cli.StringFlag{
				Name:  "driver",
				Usage: "JDBC driver class name",
			},
			&cli.DurationFlag{
				Name:  "timeout",
				Usage: "Connection timeout",
				Value: 10 * time.Second,
			},
		},
		Action: func(ctx context.Context, command *cli.Command) error {
			logger := logging.New(config.LogConfig{Level: "warn", Format: logging.FormatText, Output: logging.OutputStderr})
			ds := services.NewDatabaseService(command.Duration("timeout"), logger)

			result, err := ds.Probe(ctx, models.TestConnectionRequest{
				ConnectionURL:      command.String("url"),
				ConnectionPassword: command.String("password"),
				DriverName:         command.String("driver"),
				Username:           command.String("username"),
			})
			if err != nil {
				return fmt.Errorf("connection test failed: %w", err)
			}
			return printJSON(result)
		},
	}
}

func NewTokenCommand() *cli.Command {
	return &cli.Command{
		Name:  "token",
		Usage: "Mint an API access token signed with auth.secretkey",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "subject",
				Aliases:  []string{"sub"},
				Usage:    "Operator name recorded with submitted changes",
				Required: true,
			},
			&cli.StringFlag{
				Name:  "tenant",
				Usage: "Tenant domain of the operator",
			},
			&cli.StringSliceFlag{
				Name:  "scope",
				Usage: "Scope granted to the token (repeatable)",
			},
			&cli.DurationFlag{
				Name:  "ttl",
				Usage: "Token lifetime",
				Value: time.Hour,
			},
		},
		Action: func(ctx context.Context, command *cli.Command) error {
			cfg, err := config.Load(command.String("config"))
			if err != nil {
				return fmt.Errorf("failed to load configuration: %w", err)
			}
			if cfg.Auth.SecretKey == "" {
				return fmt.Errorf("auth.secretkey is not configured")
			}

			tenant := command.String("tenant")
			if tenant == "" {
				tenant = cfg.Deployment.Tenant
			}

			jm := auth.NewJWTManager(cfg.Auth.SecretKey, cfg.Auth.Issuer, command.Duration("ttl"))
			token, err := jm.GenerateAccessToken(command.String("subject"), tenant, command.StringSlice("scope"))
			if err != nil {
				return fmt.Errorf("failed to generate token: %w", err)
			}
			fmt.Println(token)
			return nil
		},
	}
}

func printJSON(v interface{}) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
