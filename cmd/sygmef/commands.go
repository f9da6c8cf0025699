package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/smallbiznis/sygmef/internal/config"
	"github.com/smallbiznis/sygmef/internal/emecf/gateway"
	"github.com/smallbiznis/sygmef/internal/invoice/domain"
	"github.com/smallbiznis/sygmef/internal/migration"
	"github.com/smallbiznis/sygmef/pkg/db"
	"github.com/spf13/cobra"
	"go.uber.org/fx"
)

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply database migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.Load()
			conn, err := db.Open(db.FromAppConfig(cfg))
			if err != nil {
				return err
			}
			sqlDB, err := conn.DB()
			if err != nil {
				return err
			}
			defer sqlDB.Close()

			if err := migration.Apply(conn, cfg.DBType); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "migrations applied (%s)\n", cfg.DBType)
			return nil
		},
	}
}

func infoCmd() *cobra.Command {
	kinds := make([]string, 0, len(domain.InfoKinds()))
	for _, kind := range domain.InfoKinds() {
		kinds = append(kinds, string(kind))
	}

	return &cobra.Command{
		Use:   "info <" + strings.Join(append(kinds, "taxpayer"), "|") + ">",
		Short: "Query e-MECeF reference data",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.Load()
			client, err := gateway.New(config.NewStaticEMECFHolder(cfg.EMECF))
			if err != nil {
				return err
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), time.Minute)
			defer cancel()

			var data domain.ReferenceData
			if strings.EqualFold(args[0], "taxpayer") {
				data, err = client.TaxpayerInfo(ctx)
			} else {
				kind, ok := domain.ParseInfoKind(args[0])
				if !ok {
					return fmt.Errorf("%w: %s", domain.ErrInvalidInfoKind, args[0])
				}
				data, err = client.QueryInfo(ctx, kind)
			}
			if err != nil {
				return err
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(data)
		},
	}
}

func reconcileCmd() *cobra.Command {
	var includeResolved bool
	var limit int

	cmd := &cobra.Command{
		Use:   "reconcile",
		Short: "List remote successes missing from the local store",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withService(cmd.Context(), func(ctx context.Context, svc domain.Service) error {
				tasks, err := svc.ListReconciliationTasks(ctx, domain.ListReconciliationRequest{
					IncludeResolved: includeResolved,
					Limit:           limit,
				})
				if err != nil {
					return err
				}

				w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
				fmt.Fprintln(w, "ID\tKIND\tUID\tACTION\tCREATED\tRESOLVED")
				for _, task := range tasks {
					resolved := "-"
					if task.ResolvedAt != nil {
						resolved = task.ResolvedAt.Format(time.RFC3339)
					}
					fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
						task.ID, task.Kind, task.UID, task.Action,
						task.CreatedAt.Format(time.RFC3339), resolved)
				}
				return w.Flush()
			})
		},
	}
	cmd.Flags().BoolVar(&includeResolved, "all", false, "Include resolved tasks")
	cmd.Flags().IntVar(&limit, "limit", 0, "Maximum number of tasks")

	cmd.AddCommand(&cobra.Command{
		Use:   "resolve <id>",
		Short: "Mark a reconciliation task as handled",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withService(cmd.Context(), func(ctx context.Context, svc domain.Service) error {
				if err := svc.ResolveReconciliationTask(ctx, args[0]); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "task %s resolved\n", args[0])
				return nil
			})
		},
	})

	return cmd
}

// withService starts the application graph without the HTTP server and
// hands the invoice service to fn.
func withService(ctx context.Context, fn func(context.Context, domain.Service) error) error {
	var svc domain.Service
	app := fx.New(append(appModules(), fx.Populate(&svc), fx.NopLogger)...)

	startCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	if err := app.Start(startCtx); err != nil {
		return err
	}
	defer func() {
		stopCtx, stop := context.WithTimeout(context.Background(), 10*time.Second)
		defer stop()
		if err := app.Stop(stopCtx); err != nil {
			fmt.Fprintln(os.Stderr, err)
		}
	}()

	return fn(ctx, svc)
}
