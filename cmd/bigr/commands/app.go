package commands

import (
	"context"

	"github.com/rs/zerolog/log"

	"github.com/okanyucel/bigr-discovery/pkg/classify"
	"github.com/okanyucel/bigr-discovery/pkg/config"
	"github.com/okanyucel/bigr-discovery/pkg/fingerprint"
	"github.com/okanyucel/bigr-discovery/pkg/inventory"
	"github.com/okanyucel/bigr-discovery/pkg/model"
	"github.com/okanyucel/bigr-discovery/pkg/oui"
	"github.com/okanyucel/bigr-discovery/pkg/rules"
	"github.com/okanyucel/bigr-discovery/pkg/scanner"
)

// openStore opens the inventory database from the active configuration.
func openStore() (*inventory.Store, error) {
	return inventory.Open(appConfig.DBPath, log.Logger)
}

// newHybridScanner wires the scan pipeline from the active configuration.
func newHybridScanner(cfg config.Config) *scanner.Hybrid {
	passive := scanner.NewPassive(log.Logger)
	ports := scanner.NewPortScanner(cfg.Scan.Timeout, cfg.Scan.Workers)
	listener := scanner.NewMDNSListener(cfg.Scan.MDNSTimeout, log.Logger)

	h := scanner.NewHybrid(passive, ports, listener, log.Logger)
	h.Ping = cfg.Scan.Ping
	return h
}

// newClassifier wires the classifier against the store's manual overrides.
func newClassifier(cfg config.Config, store *inventory.Store) *classify.Classifier {
	ruleset := rules.Load(cfg.RulesDir, log.Logger)
	vendors := oui.NewLookup(cfg.OUIPath, log.Logger)
	fp := fingerprint.New(cfg.Scan.Timeout)

	var overrides classify.OverrideSource
	if store != nil {
		overrides = store
	}
	return classify.New(ruleset, vendors, fp, overrides, log.Logger)
}

// runFullScan performs scan → classify → persist for one target and
// returns the result. Used by both the scan command and the watcher.
func runFullScan(ctx context.Context, cfg config.Config, store *inventory.Store, target string, mode model.ScanMethod) (*model.ScanResult, error) {
	h := newHybridScanner(cfg)
	result, err := h.Scan(ctx, target, mode, cfg.Scan.Ports)
	if err != nil {
		return nil, err
	}

	classifier := newClassifier(cfg, store)
	classifier.ClassifyAll(ctx, result.Assets, cfg.Scan.Fingerprint)

	if store != nil {
		if _, err := store.SaveScan(ctx, result); err != nil {
			return nil, err
		}
		if err := store.UpdateSubnetStats(ctx, result.Target, len(result.Assets)); err != nil {
			log.Debug().Err(err).Msg("subnet stats not updated")
		}
	}
	return result, nil
}
