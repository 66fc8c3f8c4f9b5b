package commands

import (
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/okanyucel/bigr-discovery/pkg/model"
)

var assetsAll bool

var assetsCmd = &cobra.Command{
	Use:   "assets",
	Short: "List the living asset inventory",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openStore()
		if err != nil {
			return err
		}
		defer store.Close()

		assets, err := store.AllAssets(cmd.Context(), assetsAll)
		if err != nil {
			return err
		}

		f := newFormatter()
		if f.JSONMode() {
			return f.PrintJSON(assets)
		}

		headers := []string{"IP", "MAC", "HOSTNAME", "VENDOR", "CATEGORY", "CONFIDENCE", "LAST SEEN"}
		rows := make([][]string, 0, len(assets))
		for _, a := range assets {
			category := string(a.Category)
			if a.ManualCategory != "" {
				category = string(a.ManualCategory) + " (manual)"
			}
			rows = append(rows, []string{
				a.IP,
				a.MAC,
				a.Hostname,
				a.Vendor,
				category,
				fmt.Sprintf("%.2f", a.ConfidenceScore),
				a.LastSeen.Local().Format("2006-01-02 15:04"),
			})
		}
		if err := f.PrintTable(headers, rows); err != nil {
			return err
		}
		f.PrintSummary(fmt.Sprintf("%d assets", len(assets)))
		return nil
	},
}

var historyCmd = &cobra.Command{
	Use:   "history <ip|mac>",
	Short: "Show an asset's scan-by-scan history",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openStore()
		if err != nil {
			return err
		}
		defer store.Close()

		identity := args[0]
		ip, mac := identity, ""
		if normalized := model.NormalizeMAC(identity); len(normalized) == 17 {
			ip, mac = "", normalized
		}

		history, err := store.AssetHistory(cmd.Context(), ip, mac)
		if err != nil {
			return err
		}

		f := newFormatter()
		if f.JSONMode() {
			return f.PrintJSON(history)
		}

		headers := []string{"SCANNED", "TARGET", "METHOD", "PORTS", "CATEGORY", "CONFIDENCE"}
		rows := make([][]string, 0, len(history))
		for _, h := range history {
			rows = append(rows, []string{
				h.ScanStartedAt.Local().Format(time.DateTime),
				h.Target,
				string(h.ScanMethod),
				strconv.Itoa(len(h.OpenPorts)),
				string(h.Category),
				fmt.Sprintf("%.2f", h.ConfidenceScore),
			})
		}
		return f.PrintTable(headers, rows)
	},
}

var tagNote string

var tagCmd = &cobra.Command{
	Use:   "tag <ip> <category>",
	Short: "Force an asset's category with a manual override",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		category, err := model.ParseCategory(args[1])
		if err != nil {
			return err
		}

		store, err := openStore()
		if err != nil {
			return err
		}
		defer store.Close()

		if err := store.TagAsset(cmd.Context(), args[0], category, tagNote); err != nil {
			return err
		}
		newFormatter().PrintSummary(fmt.Sprintf("Tagged %s as %s", args[0], category))
		return nil
	},
}

var untagCmd = &cobra.Command{
	Use:   "untag <ip>",
	Short: "Remove an asset's manual category override",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openStore()
		if err != nil {
			return err
		}
		defer store.Close()

		if err := store.UntagAsset(cmd.Context(), args[0]); err != nil {
			return err
		}
		newFormatter().PrintSummary(fmt.Sprintf("Untagged %s", args[0]))
		return nil
	},
}

var tagsCmd = &cobra.Command{
	Use:   "tags",
	Short: "List manual category overrides",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openStore()
		if err != nil {
			return err
		}
		defer store.Close()

		tags, err := store.Tags(cmd.Context())
		if err != nil {
			return err
		}

		f := newFormatter()
		if f.JSONMode() {
			return f.PrintJSON(tags)
		}

		headers := []string{"IP", "MAC", "HOSTNAME", "CATEGORY", "NOTE"}
		rows := make([][]string, 0, len(tags))
		for _, t := range tags {
			rows = append(rows, []string{t.IP, t.MAC, t.Hostname, string(t.ManualCategory), t.ManualNote})
		}
		return f.PrintTable(headers, rows)
	},
}

func init() {
	assetsCmd.Flags().BoolVar(&assetsAll, "all", false, "include ignored assets")
	tagCmd.Flags().StringVar(&tagNote, "note", "", "note recorded with the override")
}
