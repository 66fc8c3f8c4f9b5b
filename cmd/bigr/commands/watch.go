package commands

import (
	"context"
	"fmt"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/okanyucel/bigr-discovery/pkg/config"
	"github.com/okanyucel/bigr-discovery/pkg/model"
	"github.com/okanyucel/bigr-discovery/pkg/watcher"
)

var (
	watchStop   bool
	watchStatus bool
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Run the scheduled scan daemon",
	Long: `Runs scan cycles for every configured target on its interval.
Targets come from the config file; when none are configured there, the
registered subnets serve as targets. Only one watcher runs at a time.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		pidPath := filepath.Join(config.Dir(), "watcher.pid")

		if watchStatus {
			status := watcher.ReadStatus(pidPath)
			newFormatter().PrintSummary(status.Message)
			return nil
		}
		if watchStop {
			if err := watcher.SignalStop(pidPath); err != nil {
				return err
			}
			newFormatter().PrintSummary("Stop signal sent")
			return nil
		}

		targets, err := watchTargets(cmd.Context())
		if err != nil {
			return err
		}
		if len(targets) == 0 {
			return fmt.Errorf("no targets: configure targets in %s or register subnets with 'bigr subnet add'", config.DefaultPath())
		}

		store, err := openStore()
		if err != nil {
			return err
		}
		defer store.Close()

		cfg := appConfig
		scan := func(ctx context.Context, subnet string) error {
			_, err := runFullScan(ctx, cfg, store, subnet, model.MethodHybrid)
			return err
		}

		w, err := watcher.New(watcher.Options{
			Targets: targets,
			PIDPath: pidPath,
			LogPath: filepath.Join(config.Dir(), "watcher.log"),
			Scan:    scan,
		})
		if err != nil {
			return err
		}

		ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGTERM, syscall.SIGINT)
		defer cancel()

		newFormatter().PrintSummary(fmt.Sprintf("Watcher running, %d targets, log: %s", len(targets), w.LogPath()))
		return w.Start(ctx)
	},
}

// watchTargets builds the target list: config file first, the subnet
// registry as fallback.
func watchTargets(ctx context.Context) ([]watcher.Target, error) {
	var targets []watcher.Target
	for _, t := range appConfig.Targets {
		interval, err := t.IntervalDuration()
		if err != nil {
			return nil, err
		}
		targets = append(targets, watcher.Target{Subnet: t.Subnet, Interval: interval, Label: t.Label})
	}
	if len(targets) > 0 {
		return targets, nil
	}

	store, err := openStore()
	if err != nil {
		return nil, err
	}
	defer store.Close()

	subnets, err := store.Subnets(ctx)
	if err != nil {
		return nil, err
	}
	for _, s := range subnets {
		targets = append(targets, watcher.Target{Subnet: s.CIDR, Label: s.Label})
	}
	return targets, nil
}

func init() {
	watchCmd.Flags().BoolVar(&watchStop, "stop", false, "stop the running watcher")
	watchCmd.Flags().BoolVar(&watchStatus, "status", false, "show watcher status")
}
