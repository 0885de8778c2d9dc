// Command storectl runs operator tasks against the storefront ledger:
// order exports and outbox dead letter handling.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	appoutbox "github.com/storefront/backend/internal/application/outbox"
	"github.com/storefront/backend/internal/application/query"
	"github.com/storefront/backend/internal/domain/order"
	"github.com/storefront/backend/internal/infrastructure/config"
	"github.com/storefront/backend/internal/infrastructure/event"
	"github.com/storefront/backend/internal/infrastructure/logger"
	"github.com/storefront/backend/internal/infrastructure/persistence"
	"go.uber.org/zap"
)

const dateLayout = "2006-01-02"

var logLevel string

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	root := &cobra.Command{
		Use:           "storectl",
		Short:         "Storefront operator tooling",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&logLevel, "log-level", "warn", "log level (debug, info, warn, error)")
	root.AddCommand(exportCmd(), outboxCmd())

	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// env is the wiring shared by every subcommand
type env struct {
	log *zap.Logger
	db  *persistence.Database
}

func withEnv(ctx context.Context, fn func(e *env) error) error {
	log, err := logger.New(&logger.Config{Level: logLevel, Format: "console", Output: "stderr"})
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync(log) }()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}
	gormLog := logger.NewGormLogger(log, logger.MapGormLogLevel(logLevel))
	db, err := persistence.Open(ctx, &cfg.Database, persistence.WithLogger(gormLog))
	if err != nil {
		return err
	}
	defer func() {
		if err := db.Close(); err != nil {
			log.Warn("Error closing database", zap.Error(err))
		}
	}()
	return fn(&env{log: log, db: db})
}

func exportCmd() *cobra.Command {
	var (
		storeID  string
		status   string
		from, to string
		out      string
	)
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export a store's orders as CSV",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			sid, err := uuid.Parse(storeID)
			if err != nil {
				return fmt.Errorf("invalid --store %q", storeID)
			}
			filter := query.ExportFilter{Status: order.Status(status)}
			if filter.From, err = parseDate(from, false); err != nil {
				return fmt.Errorf("invalid --from: %w", err)
			}
			if filter.To, err = parseDate(to, true); err != nil {
				return fmt.Errorf("invalid --to: %w", err)
			}

			var w io.Writer = cmd.OutOrStdout()
			if out != "" && out != "-" {
				f, err := os.Create(out)
				if err != nil {
					return err
				}
				defer f.Close()
				w = f
			}

			return withEnv(cmd.Context(), func(e *env) error {
				serializer := event.NewEventSerializer()
				event.RegisterAllEvents(serializer)
				queries := query.NewService(
					persistence.NewGormLedgerStore(e.db.DB, serializer),
					persistence.NewGormOrderProjections(e.db.DB),
					e.log,
				)
				n, err := queries.ExportCSV(cmd.Context(), sid, filter, w)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.ErrOrStderr(), "exported %d orders\n", n)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&storeID, "store", "", "store ID (required)")
	cmd.Flags().StringVar(&status, "status", "", "only orders in this status")
	cmd.Flags().StringVar(&from, "from", "", "first order date, YYYY-MM-DD")
	cmd.Flags().StringVar(&to, "to", "", "last order date, YYYY-MM-DD (inclusive)")
	cmd.Flags().StringVarP(&out, "output", "o", "", "write to this file instead of stdout")
	_ = cmd.MarkFlagRequired("store")
	return cmd
}

// parseDate parses a YYYY-MM-DD flag. An inclusive upper bound moves to the
// start of the next day.
func parseDate(raw string, inclusiveEnd bool) (*time.Time, error) {
	if raw == "" {
		return nil, nil
	}
	t, err := time.Parse(dateLayout, raw)
	if err != nil {
		return nil, err
	}
	if inclusiveEnd {
		t = t.AddDate(0, 0, 1)
	}
	return &t, nil
}

func outboxCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "outbox",
		Short: "Inspect and recover outbox entries",
	}
	cmd.AddCommand(outboxStatsCmd(), outboxDeadCmd(), outboxRetryCmd())
	return cmd
}

func withOutbox(ctx context.Context, fn func(svc *appoutbox.Service) error) error {
	return withEnv(ctx, func(e *env) error {
		return fn(appoutbox.NewService(persistence.NewGormOutboxRepository(e.db.DB), e.log))
	})
}

func outboxStatsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Count outbox entries by status",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withOutbox(cmd.Context(), func(svc *appoutbox.Service) error {
				stats, err := svc.Stats(cmd.Context())
				if err != nil {
					return err
				}
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(stats)
			})
		},
	}
}

func outboxDeadCmd() *cobra.Command {
	var page, pageSize int
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "dead",
		Short: "List dead letter entries",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withOutbox(cmd.Context(), func(svc *appoutbox.Service) error {
				result, err := svc.DeadLetters(cmd.Context(), page, pageSize)
				if err != nil {
					return err
				}
				if asJSON {
					enc := json.NewEncoder(cmd.OutOrStdout())
					enc.SetIndent("", "  ")
					return enc.Encode(result)
				}
				return printDead(cmd.OutOrStdout(), result)
			})
		},
	}
	cmd.Flags().IntVar(&page, "page", 1, "page number")
	cmd.Flags().IntVar(&pageSize, "page-size", 20, "entries per page (max 100)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON")
	return cmd
}

func printDead(w io.Writer, result *appoutbox.ListResult) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tEVENT TYPE\tAGGREGATE\tRETRIES\tCREATED\tLAST ERROR")
	for _, e := range result.Entries {
		fmt.Fprintf(tw, "%s\t%s\t%s:%s\t%d\t%s\t%s\n",
			e.ID, e.EventType, e.AggregateType, e.AggregateID, e.RetryCount,
			e.CreatedAt.UTC().Format(time.RFC3339), e.LastError)
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	_, err := fmt.Fprintf(w, "page %d, %d of %d dead entries\n", result.Page, len(result.Entries), result.Total)
	return err
}

func outboxRetryCmd() *cobra.Command {
	var all bool
	cmd := &cobra.Command{
		Use:   "retry [id]",
		Short: "Reset dead letter entries so the processor delivers them again",
		Args: func(cmd *cobra.Command, args []string) error {
			if all {
				return cobra.NoArgs(cmd, args)
			}
			return cobra.ExactArgs(1)(cmd, args)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return withOutbox(cmd.Context(), func(svc *appoutbox.Service) error {
				if all {
					n, err := svc.RetryAllDead(cmd.Context())
					if err != nil {
						return err
					}
					fmt.Fprintf(cmd.OutOrStdout(), "reset %d entries\n", n)
					return nil
				}
				id, err := uuid.Parse(args[0])
				if err != nil {
					return fmt.Errorf("invalid entry id %q", args[0])
				}
				entry, err := svc.RetryDead(cmd.Context(), id)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "reset %s (%s), status %s\n", entry.ID, entry.EventType, entry.Status)
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&all, "all", false, "reset every dead letter entry")
	return cmd
}
