package commands

import (
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/spf13/cast"
	"github.com/spf13/cobra"

	"github.com/okanyucel/bigr-discovery/cmd/bigr/internal/format"
	"github.com/okanyucel/bigr-discovery/pkg/diff"
	"github.com/okanyucel/bigr-discovery/pkg/model"
	"github.com/okanyucel/bigr-discovery/pkg/output"
)

var (
	scanMode    string
	scanPorts   string
	scanOut     string
	scanOutFmt  string
	scanNoSave  bool
	scanShowDif bool
)

var scanCmd = &cobra.Command{
	Use:   "scan <cidr>",
	Short: "Discover, classify and record the assets on a subnet",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		target := args[0]

		mode, err := model.ParseScanMethod(scanMode)
		if err != nil {
			return err
		}

		cfg := appConfig
		if scanPorts != "" {
			ports, err := parsePortList(scanPorts)
			if err != nil {
				return err
			}
			cfg.Scan.Ports = ports
		}

		store, err := openStore()
		if err != nil {
			return err
		}
		defer store.Close()

		// Keep the pre-scan snapshot around for the change report.
		var previous []*model.Asset
		if scanShowDif {
			if stored, err := store.LatestScan(cmd.Context(), target); err == nil {
				previous = stored.Assets
			}
		}

		saveStore := store
		if scanNoSave {
			saveStore = nil
		}
		result, err := runFullScan(cmd.Context(), cfg, saveStore, target, mode)
		if err != nil {
			return err
		}

		f := newFormatter()
		if err := writeScanOutput(f, result); err != nil {
			return err
		}

		if scanShowDif {
			d := diff.Scans(result.Assets, previous)
			f.PrintSummary("Changes: " + d.Summary())
		}
		return nil
	},
}

func init() {
	scanCmd.Flags().StringVar(&scanMode, "mode", "hybrid", "scan mode (passive|active|hybrid)")
	scanCmd.Flags().StringVar(&scanPorts, "ports", "", "comma-separated ports to probe (default: built-in list)")
	scanCmd.Flags().StringVar(&scanOut, "out", "", "write results to a file instead of stdout")
	scanCmd.Flags().StringVar(&scanOutFmt, "output", "table", "output format (table|json|csv)")
	scanCmd.Flags().BoolVar(&scanNoSave, "no-save", false, "do not persist this scan to the inventory")
	scanCmd.Flags().BoolVar(&scanShowDif, "diff", false, "show changes against the previous scan of this target")
}

func writeScanOutput(f *format.Formatter, result *model.ScanResult) error {
	if scanOut != "" {
		file, err := os.Create(scanOut)
		if err != nil {
			return fmt.Errorf("create output file: %w", err)
		}
		defer file.Close()

		switch scanOutFmt {
		case "csv":
			return output.WriteCSV(result, file)
		default:
			return output.WriteJSON(result, file)
		}
	}

	switch {
	case scanOutFmt == "json" || f.JSONMode():
		return f.PrintJSON(output.ToJSON(result))
	case scanOutFmt == "csv":
		return output.WriteCSV(result, os.Stdout)
	default:
		return printScanTable(f, result)
	}
}

func printScanTable(f *format.Formatter, result *model.ScanResult) error {
	headers := []string{"IP", "MAC", "HOSTNAME", "VENDOR", "PORTS", "CATEGORY", "CONFIDENCE"}
	rows := make([][]string, 0, len(result.Assets))
	for _, a := range result.Assets {
		ports := make([]string, 0, len(a.OpenPorts))
		for _, p := range a.OpenPorts {
			ports = append(ports, strconv.Itoa(p))
		}
		rows = append(rows, []string{
			a.IP,
			a.MAC,
			a.Hostname,
			a.Vendor,
			strings.Join(ports, ","),
			string(a.Category),
			fmt.Sprintf("%.2f (%s)", a.ConfidenceScore, format.ConfidenceColor(string(a.ConfidenceLevel()))),
		})
	}
	if err := f.PrintTable(headers, rows); err != nil {
		return err
	}

	summary := fmt.Sprintf("%d assets on %s", len(result.Assets), result.Target)
	if duration, ok := result.DurationSeconds(); ok {
		summary += fmt.Sprintf(" in %.1fs", duration)
	}
	categories := result.CategorySummary()
	keys := make([]string, 0, len(categories))
	for k := range categories {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		summary += fmt.Sprintf("  %s=%d", k, categories[k])
	}
	f.PrintSummary(summary)
	return nil
}

// parsePortList parses "22,80,443" into a sorted port slice.
func parsePortList(spec string) ([]int, error) {
	var ports []int
	for _, part := range strings.Split(spec, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		port, err := cast.ToIntE(part)
		if err != nil || port < 1 || port > 65535 {
			return nil, fmt.Errorf("invalid port %q", part)
		}
		ports = append(ports, port)
	}
	if len(ports) == 0 {
		return nil, fmt.Errorf("no ports in %q", spec)
	}
	sort.Ints(ports)
	return ports, nil
}
