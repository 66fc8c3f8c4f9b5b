package commands

import (
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"
)

var (
	subnetLabel string
	subnetVLAN  int
)

var subnetCmd = &cobra.Command{
	Use:   "subnet",
	Short: "Manage the registered subnet targets",
}

var subnetAddCmd = &cobra.Command{
	Use:   "add <cidr>",
	Short: "Register a subnet for scheduled scanning",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openStore()
		if err != nil {
			return err
		}
		defer store.Close()

		if err := store.AddSubnet(cmd.Context(), args[0], subnetLabel, subnetVLAN); err != nil {
			return err
		}
		newFormatter().PrintSummary(fmt.Sprintf("Registered %s", args[0]))
		return nil
	},
}

var subnetRemoveCmd = &cobra.Command{
	Use:   "remove <cidr>",
	Short: "Remove a registered subnet",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openStore()
		if err != nil {
			return err
		}
		defer store.Close()

		if err := store.RemoveSubnet(cmd.Context(), args[0]); err != nil {
			return err
		}
		newFormatter().PrintSummary(fmt.Sprintf("Removed %s", args[0]))
		return nil
	},
}

var subnetListCmd = &cobra.Command{
	Use:   "list",
	Short: "List registered subnets",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openStore()
		if err != nil {
			return err
		}
		defer store.Close()

		subnets, err := store.Subnets(cmd.Context())
		if err != nil {
			return err
		}

		f := newFormatter()
		if f.JSONMode() {
			return f.PrintJSON(subnets)
		}

		headers := []string{"CIDR", "LABEL", "VLAN", "LAST SCANNED", "ASSETS"}
		rows := make([][]string, 0, len(subnets))
		for _, s := range subnets {
			vlan := ""
			if s.VLANID > 0 {
				vlan = strconv.Itoa(s.VLANID)
			}
			lastScanned := "never"
			if !s.LastScanned.IsZero() {
				lastScanned = s.LastScanned.Local().Format(time.DateTime)
			}
			rows = append(rows, []string{s.CIDR, s.Label, vlan, lastScanned, strconv.Itoa(s.AssetCount)})
		}
		return f.PrintTable(headers, rows)
	},
}

func init() {
	subnetAddCmd.Flags().StringVar(&subnetLabel, "label", "", "human-readable label")
	subnetAddCmd.Flags().IntVar(&subnetVLAN, "vlan", 0, "VLAN id")

	subnetCmd.AddCommand(subnetAddCmd)
	subnetCmd.AddCommand(subnetRemoveCmd)
	subnetCmd.AddCommand(subnetListCmd)
}
