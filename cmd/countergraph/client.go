package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/hanpama/countergraph/internal/client"
	"github.com/hanpama/countergraph/internal/config"
	"github.com/hanpama/countergraph/internal/counter"
	"github.com/hanpama/countergraph/internal/logger"
	"github.com/hanpama/countergraph/internal/schema"
)

const defaultSubscription = "subscription { counter { count } }"

func newSchemaCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "schema",
		Short: "Print the served schema as SDL",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			sch, err := counter.LoadSchema()
			if err != nil {
				return fmt.Errorf("load schema: %w", err)
			}
			_, err = io.WriteString(cmd.OutOrStdout(), schema.Render(sch))
			return err
		},
	}
}

// clientFlags are shared by the commands that talk to a running server.
type clientFlags struct {
	cfg    config.Client
	envErr error
}

func (cf *clientFlags) bind(cmd *cobra.Command) {
	cf.cfg, cf.envErr = config.LoadClient()
	cmd.Flags().StringVar(&cf.cfg.ServerURL, "server", cf.cfg.ServerURL, "server URL, e.g. http://localhost:8080")
	cmd.Flags().StringVar(&cf.cfg.LogLevel, "log-level", cf.cfg.LogLevel, "log level for client diagnostics")
}

func (cf *clientFlags) client(cmd *cobra.Command) (*client.Client, error) {
	if cf.envErr != nil {
		return nil, cf.envErr
	}
	if err := cf.cfg.RequireServerURL(); err != nil {
		return nil, err
	}
	log, err := logger.New(cf.cfg.LogLevel, logger.FormatConsole, cmd.ErrOrStderr())
	if err != nil {
		return nil, err
	}
	return client.New(cf.cfg.ServerURL, client.WithLogger(log.Named("client")))
}

// readSource returns the operation text from args, or stdin for "-".
func readSource(cmd *cobra.Command, args []string, fallback string) (string, error) {
	if len(args) == 0 {
		if fallback == "" {
			return "", fmt.Errorf("missing operation source")
		}
		return fallback, nil
	}
	if args[0] != "-" {
		return args[0], nil
	}
	b, err := io.ReadAll(cmd.InOrStdin())
	if err != nil {
		return "", fmt.Errorf("read stdin: %w", err)
	}
	return string(b), nil
}

func newQueryCmd() *cobra.Command {
	var (
		cf        clientFlags
		variables string
	)
	cmd := &cobra.Command{
		Use:   "query <source|->",
		Short: "Send one query or mutation and print the response",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := cf.client(cmd)
			if err != nil {
				return err
			}
			source, err := readSource(cmd, args, "")
			if err != nil {
				return err
			}
			var vars map[string]any
			if variables != "" {
				if err := json.Unmarshal([]byte(variables), &vars); err != nil {
					return fmt.Errorf("parse --variables: %w", err)
				}
			}

			res, err := c.Raw(cmd.Context(), source, vars)
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			if err := enc.Encode(res); err != nil {
				return err
			}
			if len(res.Errors) > 0 {
				return &client.Error{Errors: res.Errors}
			}
			return nil
		},
	}
	cf.bind(cmd)
	cmd.Flags().StringVar(&variables, "variables", "", "variables as a JSON object")
	return cmd
}

func newWatchCmd() *cobra.Command {
	var cf clientFlags
	cmd := &cobra.Command{
		Use:   "watch [source|-]",
		Short: "Subscribe over WebSocket and print every value",
		Long:  "Subscribe over WebSocket and print one JSON envelope per line.\nWithout a source it watches " + defaultSubscription + ".",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := cf.client(cmd)
			if err != nil {
				return err
			}
			source, err := readSource(cmd, args, defaultSubscription)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			enc := json.NewEncoder(cmd.OutOrStdout())
			return c.Watch(ctx, source, func(res *client.Response) error {
				return enc.Encode(res)
			})
		},
	}
	cf.bind(cmd)
	return cmd
}
