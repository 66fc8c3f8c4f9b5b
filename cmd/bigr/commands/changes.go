package commands

import (
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/okanyucel/bigr-discovery/pkg/diff"
)

var changesLimit int

var changesCmd = &cobra.Command{
	Use:   "changes",
	Short: "Show the most recent inventory changes",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openStore()
		if err != nil {
			return err
		}
		defer store.Close()

		changes, err := diff.StoredChanges(cmd.Context(), store, changesLimit)
		if err != nil {
			return err
		}

		f := newFormatter()
		if f.JSONMode() {
			return f.PrintJSON(changes)
		}

		headers := []string{"DETECTED", "IP", "MAC", "CHANGE", "FIELD", "OLD", "NEW"}
		rows := make([][]string, 0, len(changes))
		for _, c := range changes {
			rows = append(rows, []string{
				c.DetectedAt.Local().Format(time.DateTime),
				c.IP,
				c.MAC,
				c.ChangeType,
				c.FieldName,
				c.OldValue,
				c.NewValue,
			})
		}
		return f.PrintTable(headers, rows)
	},
}

var scansLimit int

var scansCmd = &cobra.Command{
	Use:   "scans",
	Short: "List recent scans",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openStore()
		if err != nil {
			return err
		}
		defer store.Close()

		scans, err := store.ScanList(cmd.Context(), scansLimit)
		if err != nil {
			return err
		}

		f := newFormatter()
		if f.JSONMode() {
			return f.PrintJSON(scans)
		}

		headers := []string{"STARTED", "TARGET", "METHOD", "ASSETS", "DURATION"}
		rows := make([][]string, 0, len(scans))
		for _, s := range scans {
			duration := "-"
			if !s.CompletedAt.IsZero() {
				duration = fmt.Sprintf("%.1fs", s.CompletedAt.Sub(s.StartedAt).Seconds())
			}
			rows = append(rows, []string{
				s.StartedAt.Local().Format(time.DateTime),
				s.Target,
				string(s.ScanMethod),
				strconv.Itoa(s.TotalAssets),
				duration,
			})
		}
		return f.PrintTable(headers, rows)
	},
}

func init() {
	changesCmd.Flags().IntVar(&changesLimit, "limit", 50, "maximum change rows to show")
	scansCmd.Flags().IntVar(&scansLimit, "limit", 20, "maximum scans to show")
}
