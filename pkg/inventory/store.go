// Package inventory is the persistence layer: scans, the living asset
// inventory, per-scan snapshots, the change journal, and the subnet
// registry, all in one SQLite database.
package inventory

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	_ "modernc.org/sqlite"

	"github.com/okanyucel/bigr-discovery/pkg/model"
)

const timeFormat = time.RFC3339Nano

// Store owns every persisted row. One writer at a time; reads are safe
// concurrently with each other.
type Store struct {
	db     *sql.DB
	logger zerolog.Logger

	// writeMu serializes scan saves so each save_scan transaction owns the
	// database for its duration.
	writeMu sync.Mutex
}

// Open opens (or creates) the database at path and initializes the schema.
func Open(path string, logger zerolog.Logger) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open inventory db: %w", err)
	}

	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys=ON",
		"PRAGMA busy_timeout=5000",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("apply %s: %w", pragma, err)
		}
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("initialize schema: %w", err)
	}

	return &Store{db: db, logger: logger}, nil
}

// Close releases the database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// trackedFields are the asset columns whose changes land in the journal.
var trackedFields = []string{"hostname", "vendor", "os_hint", "bigr_category", "confidence_score", "scan_method"}

// SaveScan persists a scan result in one transaction: the scan row, an
// upsert per asset (journaling new_asset / field_changed entries), and a
// scan_assets snapshot per asset. Returns the generated scan ID.
func (s *Store) SaveScan(ctx context.Context, result *model.ScanResult) (string, error) {
	if err := validateScanResult(result); err != nil {
		return "", err
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("begin save_scan: %w", err)
	}
	defer tx.Rollback()

	scanID := uuid.NewString()
	now := time.Now().UTC().Format(timeFormat)

	var completedAt any
	if !result.CompletedAt.IsZero() {
		completedAt = result.CompletedAt.UTC().Format(timeFormat)
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO scans (id, target, scan_method, started_at, completed_at, total_assets, is_root)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		scanID,
		result.Target,
		string(result.ScanMethod),
		result.StartedAt.UTC().Format(timeFormat),
		completedAt,
		len(result.Assets),
		boolToInt(result.IsRoot),
	)
	if err != nil {
		return "", fmt.Errorf("insert scan: %w", err)
	}

	for _, asset := range result.Assets {
		assetID, err := upsertAsset(ctx, tx, asset, scanID, now)
		if err != nil {
			return "", err
		}

		ports, err := json.Marshal(model.NormalizePorts(asset.OpenPorts))
		if err != nil {
			return "", fmt.Errorf("marshal open_ports: %w", err)
		}
		evidence, err := json.Marshal(asset.RawEvidence)
		if err != nil {
			return "", fmt.Errorf("marshal raw_evidence: %w", err)
		}

		_, err = tx.ExecContext(ctx,
			`INSERT INTO scan_assets (scan_id, asset_id, open_ports, confidence_score, bigr_category, raw_evidence)
			 VALUES (?, ?, ?, ?, ?, ?)`,
			scanID, assetID, string(ports), asset.ConfidenceScore, string(asset.Category), string(evidence),
		)
		if err != nil {
			return "", fmt.Errorf("insert scan_asset: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("commit save_scan: %w", err)
	}
	s.logger.Debug().Str("scan_id", scanID).Int("assets", len(result.Assets)).Msg("scan persisted")
	return scanID, nil
}

func validateScanResult(result *model.ScanResult) error {
	if !result.ScanMethod.Valid() {
		return &InvalidInputError{Field: "scan_method", Reason: fmt.Sprintf("unknown value %q", result.ScanMethod)}
	}
	if !result.CompletedAt.IsZero() && result.CompletedAt.Before(result.StartedAt) {
		return &InvalidInputError{Field: "completed_at", Reason: "before started_at"}
	}
	for _, asset := range result.Assets {
		if asset.IP == "" {
			return &InvalidInputError{Field: "ip", Reason: "empty"}
		}
		if !asset.Category.Valid() {
			return &InvalidInputError{Field: "bigr_category", Reason: fmt.Sprintf("unknown value %q", asset.Category)}
		}
		if asset.ConfidenceScore < 0 || asset.ConfidenceScore > 1 {
			return &InvalidInputError{Field: "confidence_score", Reason: fmt.Sprintf("%v outside [0,1]", asset.ConfidenceScore)}
		}
		if !asset.ScanMethod.Valid() {
			return &InvalidInputError{Field: "scan_method", Reason: fmt.Sprintf("unknown value %q", asset.ScanMethod)}
		}
		if !asset.FirstSeen.IsZero() && !asset.LastSeen.IsZero() && asset.LastSeen.Before(asset.FirstSeen) {
			return &InvalidInputError{Field: "last_seen", Reason: "before first_seen"}
		}
	}
	return nil
}

// upsertAsset inserts or updates the living asset row keyed by (ip, mac),
// with a NULL mac forming its own bucket. Changes to tracked fields are
// journaled; last_seen is set to the asset's own stamp (save time when
// unset), even when that stamp is older than the stored one.
func upsertAsset(ctx context.Context, tx *sql.Tx, asset *model.Asset, scanID, now string) (string, error) {
	var row *sql.Row
	if asset.MAC == "" {
		row = tx.QueryRowContext(ctx,
			`SELECT id, hostname, vendor, os_hint, bigr_category, confidence_score, scan_method
			 FROM assets WHERE ip = ? AND mac IS NULL`, asset.IP)
	} else {
		row = tx.QueryRowContext(ctx,
			`SELECT id, hostname, vendor, os_hint, bigr_category, confidence_score, scan_method
			 FROM assets WHERE ip = ? AND mac = ?`, asset.IP, asset.MAC)
	}

	var (
		assetID                    string
		oldHostname, oldVendor     sql.NullString
		oldOSHint                  sql.NullString
		oldCategory, oldScanMethod string
		oldConfidence              float64
	)
	err := row.Scan(&assetID, &oldHostname, &oldVendor, &oldOSHint, &oldCategory, &oldConfidence, &oldScanMethod)

	switch {
	case err == sql.ErrNoRows:
		assetID = uuid.NewString()
		_, err := tx.ExecContext(ctx,
			`INSERT INTO assets (id, ip, mac, hostname, vendor, os_hint, bigr_category,
			                     confidence_score, scan_method, first_seen, last_seen)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			assetID,
			asset.IP,
			nullable(asset.MAC),
			nullable(asset.Hostname),
			nullable(asset.Vendor),
			nullable(asset.OSHint),
			string(asset.Category),
			asset.ConfidenceScore,
			string(asset.ScanMethod),
			timestampOr(asset.FirstSeen, now),
			timestampOr(asset.LastSeen, now),
		)
		if err != nil {
			return "", fmt.Errorf("insert asset: %w", err)
		}
		_, err = tx.ExecContext(ctx,
			`INSERT INTO asset_changes (asset_id, scan_id, change_type, detected_at)
			 VALUES (?, ?, 'new_asset', ?)`,
			assetID, scanID, now,
		)
		if err != nil {
			return "", fmt.Errorf("journal new_asset: %w", err)
		}
		return assetID, nil

	case err != nil:
		return "", fmt.Errorf("lookup asset: %w", err)
	}

	oldValues := map[string]string{
		"hostname":         oldHostname.String,
		"vendor":           oldVendor.String,
		"os_hint":          oldOSHint.String,
		"bigr_category":    oldCategory,
		"confidence_score": formatScore(oldConfidence),
		"scan_method":      oldScanMethod,
	}
	newValues := map[string]string{
		"hostname":         asset.Hostname,
		"vendor":           asset.Vendor,
		"os_hint":          asset.OSHint,
		"bigr_category":    string(asset.Category),
		"confidence_score": formatScore(asset.ConfidenceScore),
		"scan_method":      string(asset.ScanMethod),
	}

	for _, field := range trackedFields {
		if oldValues[field] == newValues[field] {
			continue
		}
		_, err := tx.ExecContext(ctx,
			`INSERT INTO asset_changes (asset_id, scan_id, change_type, field_name, old_value, new_value, detected_at)
			 VALUES (?, ?, 'field_changed', ?, ?, ?, ?)`,
			assetID, scanID, field, nullable(oldValues[field]), nullable(newValues[field]), now,
		)
		if err != nil {
			return "", fmt.Errorf("journal field_changed: %w", err)
		}
	}

	_, err = tx.ExecContext(ctx,
		`UPDATE assets SET hostname = ?, vendor = ?, os_hint = ?, bigr_category = ?,
		                   confidence_score = ?, scan_method = ?, last_seen = ?
		 WHERE id = ?`,
		nullable(asset.Hostname),
		nullable(asset.Vendor),
		nullable(asset.OSHint),
		string(asset.Category),
		asset.ConfidenceScore,
		string(asset.ScanMethod),
		timestampOr(asset.LastSeen, now),
		assetID,
	)
	if err != nil {
		return "", fmt.Errorf("update asset: %w", err)
	}
	return assetID, nil
}

// timestampOr formats t, falling back to the provided default for zero
// times so asset rows always carry valid lifecycle stamps.
func timestampOr(t time.Time, fallback string) string {
	if t.IsZero() {
		return fallback
	}
	return t.UTC().Format(timeFormat)
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func formatScore(f float64) string {
	return strconv.FormatFloat(f, 'g', -1, 64)
}
