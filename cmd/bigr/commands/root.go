// Package commands implements the bigr CLI command tree.
package commands

import (
	"os"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/okanyucel/bigr-discovery/cmd/bigr/internal/format"
	"github.com/okanyucel/bigr-discovery/pkg/config"
	"github.com/okanyucel/bigr-discovery/pkg/core"
)

var (
	flagConfig   string
	flagDBPath   string
	flagRulesDir string
	flagJSON     bool

	appConfig config.Config
)

var rootCmd = &cobra.Command{
	Use:   "bigr",
	Short: "On-premises network asset discovery and BİGR compliance",
	Long: `bigr discovers every reachable host on your subnets, infers each
device's role, keeps a longitudinal inventory, and reports compliance
against the BİGR asset taxonomy.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		path := flagConfig
		if path == "" {
			path = config.DefaultPath()
		}

		cfg, err := config.Load(path, cmd.Flags())
		if err != nil {
			return err
		}
		if flagDBPath != "" {
			cfg.DBPath = flagDBPath
		}
		if flagRulesDir != "" {
			cfg.RulesDir = flagRulesDir
		}
		appConfig = cfg

		core.SetupLogger(cfg.Log.Level, cfg.Log.Format)
		return nil
	},
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&flagConfig, "config", "", "config file (default ~/.bigr/config.yaml)")
	pf.StringVar(&flagDBPath, "db", "", "inventory database path")
	pf.StringVar(&flagRulesDir, "rules-dir", "", "classification rules directory")
	pf.BoolVar(&flagJSON, "json", false, "emit JSON instead of tables")
	pf.String("log.level", "", "log level (debug|info|warn|error)")
	pf.String("log.format", "", "log format (text|json)")

	rootCmd.AddCommand(scanCmd)
	rootCmd.AddCommand(assetsCmd)
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(tagCmd)
	rootCmd.AddCommand(untagCmd)
	rootCmd.AddCommand(tagsCmd)
	rootCmd.AddCommand(subnetCmd)
	rootCmd.AddCommand(changesCmd)
	rootCmd.AddCommand(scansCmd)
	rootCmd.AddCommand(watchCmd)
}

// Execute runs the CLI; a non-nil return means exit code 1.
func Execute() error {
	err := rootCmd.Execute()
	if err != nil {
		newFormatter().PrintError(err)
		log.Debug().Err(err).Msg("command failed")
	}
	return err
}

func newFormatter() *format.Formatter {
	return format.New(os.Stdout, os.Stderr, flagJSON)
}
