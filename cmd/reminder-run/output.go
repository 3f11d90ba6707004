package main

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"text/tabwriter"

	"expiry-reminders/internal/models"
	"expiry-reminders/internal/reminder"
)

func printJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func printReport(w io.Writer, format string, report *reminder.Report) error {
	if format == "json" {
		return printJSON(w, report)
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "BATCH\t%s\n", report.BatchID)
	fmt.Fprintf(tw, "DATE\t%s\n", report.Date)
	fmt.Fprintf(tw, "DRY RUN\t%t\n", report.DryRun)
	fmt.Fprintf(tw, "EVALUATED\t%d\n", report.Evaluated)
	fmt.Fprintf(tw, "DUE\t%d\n", report.Due)
	fmt.Fprintf(tw, "SENT\t%d\n", report.Sent)
	fmt.Fprintf(tw, "FAILED\t%d\n", report.Failed)
	for _, reason := range sortedKeys(report.Skipped) {
		fmt.Fprintf(tw, "SKIPPED %s\t%d\n", reason, report.Skipped[reason])
	}
	if len(report.Misconfigured) > 0 {
		fmt.Fprintf(tw, "MISCONFIGURED\t%v\n", report.Misconfigured)
	}
	if len(report.Missed) > 0 {
		fmt.Fprintf(tw, "MISSED\t%v\n", report.Missed)
	}
	if report.Aborted {
		fmt.Fprintf(tw, "ABORTED\t%s\n", report.Error)
	}
	return tw.Flush()
}

func printPlan(w io.Writer, format string, plan *reminder.Plan) error {
	if format == "json" {
		return printJSON(w, plan)
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ITEM\tTITLE\tEXPIRES\tDAYS LEFT\tRECIPIENT\tCHANNEL")
	for _, d := range plan.Due {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%d\t%s\t%s\n",
			d.Item.ID, d.Item.Title, d.Item.ExpiryDate.Format(models.DateLayout),
			d.DaysLeft, d.Recipient.Name, d.Destination.Channel)
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	_, err := fmt.Fprintf(w, "\n%d due on %s\n", len(plan.Due), plan.Date.Format(models.DateLayout))
	return err
}

func sortedKeys(m map[string]int) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
