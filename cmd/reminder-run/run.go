package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"expiry-reminders/internal/app"
	"expiry-reminders/internal/reminder"
)

func runCmd() *cobra.Command {
	var (
		date   string
		dryRun bool
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Evaluate items and dispatch due reminders",
		Long: `Evaluate every tracked item for the date and send each due reminder on
every configured channel of every linked recipient. Tuples already logged
for the date are skipped, so running twice sends nothing new.

With --dry-run nothing is sent or logged.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := parseDate(date)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			return withEngine(ctx, func(e *app.Engine) error {
				report, err := e.Runner.Run(ctx, reminder.RunOptions{Date: d, DryRun: dryRun})
				if report != nil {
					if perr := printReport(cmd.OutOrStdout(), outputFmt, report); perr != nil && err == nil {
						err = perr
					}
				}
				return err
			})
		},
	}

	cmd.Flags().StringVarP(&date, "date", "d", "", "Evaluation date, YYYY-MM-DD (default: today in app.timezone)")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Evaluate and report without sending or logging")
	return cmd
}

func dueCmd() *cobra.Command {
	var date string

	cmd := &cobra.Command{
		Use:     "due",
		Aliases: []string{"plan"},
		Short:   "List the reminders that would be sent",
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := parseDate(date)
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			return withEngine(ctx, func(e *app.Engine) error {
				if d.IsZero() {
					d = e.Runner.Today()
				}
				plan, err := e.Runner.Plan(ctx, d)
				if err != nil {
					return err
				}
				return printPlan(cmd.OutOrStdout(), outputFmt, plan)
			})
		},
	}

	cmd.Flags().StringVarP(&date, "date", "d", "", "Evaluation date, YYYY-MM-DD (default: today in app.timezone)")
	return cmd
}

func schemaCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "schema",
		Short: "Create missing tables and indexes",
		Long: `Apply the idempotent schema: tables, columns and the unique index that
allows at most one sent notification-log entry per reminder.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			return withEngine(ctx, func(e *app.Engine) error {
				if err := e.Store.EnsureSchema(ctx); err != nil {
					return err
				}
				cmd.Println("schema is up to date")
				return nil
			})
		},
	}
}
