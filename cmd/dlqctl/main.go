package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"assessment-backend/internal/bootstrap"
	"assessment-backend/internal/confirmations"
	"assessment-backend/internal/deadletters"
	"assessment-backend/internal/shared/config"
	"assessment-backend/internal/shared/telemetry"
)

// dlqctl is the operator tool for dead-lettered exports.
func main() {
	if err := rootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

// buildApp is replaced in tests.
var buildApp = func(ctx context.Context, cfg config.Config) (*bootstrap.App, error) {
	return bootstrap.Build(ctx, cfg)
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "dlqctl",
		Short:         "Inspect and requeue dead-lettered exports",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	pf := root.PersistentFlags()
	pf.String("database-url", "", "Postgres URL (or DATABASE_URL)")
	pf.String("log-level", "warn", "Log level (debug, info, warn, error)")

	root.AddCommand(listCmd(), showCmd(), requeueCmd(), repairCmd(), tokenCmd())
	return root
}

func listCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List dead letter entries, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			v := viperForCmd(cmd)
			return withApp(cmd, func(ctx context.Context, app *bootstrap.App) error {
				entries, err := app.DeadLetters.List(ctx, deadletters.ListFilter{
					CustomerUUID:    v.GetString("customer"),
					DocumentID:      v.GetString("document"),
					IncludeResolved: v.GetBool("all"),
					Limit:           v.GetInt("limit"),
					Offset:          v.GetInt("offset"),
				})
				if err != nil {
					return err
				}
				return writeJSON(cmd.OutOrStdout(), entries)
			})
		},
	}
	f := cmd.Flags()
	f.String("customer", "", "Only entries for this customer uuid")
	f.String("document", "", "Only entries for this document id")
	f.Bool("all", false, "Include resolved entries")
	f.Int("limit", 50, "Page size (max 200)")
	f.Int("offset", 0, "Page offset")
	return cmd
}

func showCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <entry-id>",
		Short: "Show one dead letter entry",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, app *bootstrap.App) error {
				e, err := app.DeadLetters.Get(ctx, args[0])
				if err != nil {
					return err
				}
				return writeJSON(cmd.OutOrStdout(), e)
			})
		},
	}
}

func requeueCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "requeue <entry-id>",
		Short: "Enqueue a fresh export for a dead letter entry and mark it resolved",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			v := viperForCmd(cmd)
			return withApp(cmd, func(ctx context.Context, app *bootstrap.App) error {
				entry, item, err := app.DeadLetters.Requeue(ctx, args[0], v.GetString("operator"))
				if err != nil {
					return err
				}
				return writeJSON(cmd.OutOrStdout(), map[string]any{"entry": entry, "export": item})
			})
		},
	}
	cmd.Flags().String("operator", "", "Who is requeueing (recorded on the entry)")
	_ = cmd.MarkFlagRequired("operator")
	return cmd
}

func repairCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "repair <document-id>",
		Short: "Enqueue exports an accepted document is missing",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			v := viperForCmd(cmd)
			return withApp(cmd, func(ctx context.Context, app *bootstrap.App) error {
				items, err := app.Confirmations.RepairMissing(ctx, args[0], confirmations.Actor{
					CustomerUUID: v.GetString("operator"),
					UserAgent:    "dlqctl",
				})
				if err != nil {
					return err
				}
				return writeJSON(cmd.OutOrStdout(), items)
			})
		},
	}
	cmd.Flags().String("operator", "", "Who is repairing (recorded on the queue items)")
	_ = cmd.MarkFlagRequired("operator")
	return cmd
}

func tokenCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "token <customer-uuid>",
		Short: "Sign a bearer token for a customer (support and local testing)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			v := viperForCmd(cmd)
			return withApp(cmd, func(_ context.Context, app *bootstrap.App) error {
				token, err := app.Verifier.Sign(args[0], v.GetString("name"), v.GetDuration("ttl"))
				if err != nil {
					return err
				}
				_, err = fmt.Fprintln(cmd.OutOrStdout(), token)
				return err
			})
		},
	}
	cmd.Flags().String("name", "", "Display name claim")
	cmd.Flags().Duration("ttl", time.Hour, "Token lifetime")
	return cmd
}

// viperForCmd binds a command's flags and DLQCTL_* environment to a fresh viper instance.
func viperForCmd(cmd *cobra.Command) *viper.Viper {
	v := viper.New()
	_ = v.BindPFlags(cmd.Flags())
	_ = v.BindPFlags(cmd.InheritedFlags())
	v.SetEnvPrefix("DLQCTL")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	return v
}

func withApp(cmd *cobra.Command, fn func(ctx context.Context, app *bootstrap.App) error) error {
	v := viperForCmd(cmd)
	cfg := config.Load()
	if url := v.GetString("database-url"); url != "" {
		cfg.DatabaseURL = url
	}
	cfg.LogLevel = v.GetString("log-level")
	cfg.Export.InProcessWorker = false
	telemetry.Configure(cfg.LogLevel)
	defer telemetry.Sync()

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	app, err := buildApp(ctx, cfg)
	if err != nil {
		return fmt.Errorf("bootstrap: %w", err)
	}
	defer app.Close()
	return fn(ctx, app)
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
