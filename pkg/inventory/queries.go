package inventory

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/okanyucel/bigr-discovery/pkg/model"
)

// ScanRow is the metadata of a stored scan.
type ScanRow struct {
	ID          string
	Target      string
	ScanMethod  model.ScanMethod
	StartedAt   time.Time
	CompletedAt time.Time // zero when the scan never completed
	TotalAssets int
	IsRoot      bool
}

// StoredScan is a scan plus its scan-time asset snapshots.
type StoredScan struct {
	ScanRow
	Assets []*model.Asset
}

// AssetRow is one living inventory row.
type AssetRow struct {
	ID              string
	IP              string
	MAC             string
	Hostname        string
	Vendor          string
	OSHint          string
	Category        model.Category
	ConfidenceScore float64
	ScanMethod      model.ScanMethod
	FirstSeen       time.Time
	LastSeen        time.Time
	ManualCategory  model.Category // empty when untagged
	ManualNote      string
	IsIgnored       bool
}

// HistoryEntry is one scan-time snapshot of an asset.
type HistoryEntry struct {
	ScanID          string
	Target          string
	ScanStartedAt   time.Time
	ScanMethod      model.ScanMethod
	IP              string
	MAC             string
	Hostname        string
	Vendor          string
	OpenPorts       []int
	Category        model.Category
	ConfidenceScore float64
	RawEvidence     map[string]any
}

// ChangeRow is one journal entry joined with its asset's identity.
type ChangeRow struct {
	ID         int64
	AssetID    string
	ScanID     string
	IP         string
	MAC        string
	ChangeType string
	FieldName  string
	OldValue   string
	NewValue   string
	DetectedAt time.Time
}

// LatestScan returns the most recent scan, optionally filtered by target.
// Assets carry the scan-time snapshot values, not the living inventory
// values. Returns a NotFoundError when no scan matches.
func (s *Store) LatestScan(ctx context.Context, target string) (*StoredScan, error) {
	query := "SELECT id, target, scan_method, started_at, completed_at, total_assets, is_root FROM scans"
	args := []any{}
	if target != "" {
		query += " WHERE target = ?"
		args = append(args, target)
	}
	query += " ORDER BY started_at DESC LIMIT 1"

	row := s.db.QueryRowContext(ctx, query, args...)
	scan, err := scanRowFrom(row)
	if err == sql.ErrNoRows {
		return nil, &NotFoundError{ResourceType: "scan", ResourceID: target}
	}
	if err != nil {
		return nil, fmt.Errorf("query latest scan: %w", err)
	}

	assets, err := s.scanAssets(ctx, scan.ID)
	if err != nil {
		return nil, err
	}
	return &StoredScan{ScanRow: scan, Assets: assets}, nil
}

func (s *Store) scanAssets(ctx context.Context, scanID string) ([]*model.Asset, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT a.ip, a.mac, a.hostname, a.vendor, a.os_hint, a.first_seen, a.last_seen,
		        sa.open_ports, sa.confidence_score, sa.bigr_category, sa.raw_evidence, a.scan_method
		 FROM scan_assets sa
		 JOIN assets a ON a.id = sa.asset_id
		 WHERE sa.scan_id = ?
		 ORDER BY a.ip`, scanID)
	if err != nil {
		return nil, fmt.Errorf("query scan assets: %w", err)
	}
	defer rows.Close()

	var assets []*model.Asset
	for rows.Next() {
		var (
			mac, hostname, vendor, osHint sql.NullString
			firstSeen, lastSeen           string
			portsJSON, evidenceJSON       sql.NullString
			category, scanMethod          string
			asset                         model.Asset
		)
		err := rows.Scan(&asset.IP, &mac, &hostname, &vendor, &osHint, &firstSeen, &lastSeen,
			&portsJSON, &asset.ConfidenceScore, &category, &evidenceJSON, &scanMethod)
		if err != nil {
			return nil, fmt.Errorf("scan asset row: %w", err)
		}

		asset.MAC = mac.String
		asset.Hostname = hostname.String
		asset.Vendor = vendor.String
		asset.OSHint = osHint.String
		asset.Category = model.Category(category)
		asset.ScanMethod = model.ScanMethod(scanMethod)
		asset.FirstSeen = parseTime(firstSeen)
		asset.LastSeen = parseTime(lastSeen)

		if portsJSON.Valid && portsJSON.String != "" {
			_ = json.Unmarshal([]byte(portsJSON.String), &asset.OpenPorts)
		}
		if evidenceJSON.Valid && evidenceJSON.String != "" {
			_ = json.Unmarshal([]byte(evidenceJSON.String), &asset.RawEvidence)
		}
		assets = append(assets, &asset)
	}
	return assets, rows.Err()
}

// AllAssets lists the living inventory, most recently seen first. Ignored
// assets are excluded unless includeIgnored is set.
func (s *Store) AllAssets(ctx context.Context, includeIgnored bool) ([]AssetRow, error) {
	query := `SELECT id, ip, mac, hostname, vendor, os_hint, bigr_category, confidence_score,
	                 scan_method, first_seen, last_seen, manual_category, manual_note, is_ignored
	          FROM assets`
	if !includeIgnored {
		query += " WHERE is_ignored = 0"
	}
	query += " ORDER BY last_seen DESC"

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query assets: %w", err)
	}
	defer rows.Close()

	var assets []AssetRow
	for rows.Next() {
		row, err := assetRowFrom(rows)
		if err != nil {
			return nil, err
		}
		assets = append(assets, row)
	}
	return assets, rows.Err()
}

// AssetHistory returns an asset's scan-by-scan snapshots, newest first.
// Either ip or mac (or both) must be given.
func (s *Store) AssetHistory(ctx context.Context, ip, mac string) ([]HistoryEntry, error) {
	if ip == "" && mac == "" {
		return nil, &InvalidInputError{Field: "identity", Reason: "ip or mac required"}
	}

	query := `SELECT sa.scan_id, s.target, s.started_at, s.scan_method,
	                 a.ip, a.mac, a.hostname, a.vendor,
	                 sa.open_ports, sa.bigr_category, sa.confidence_score, sa.raw_evidence
	          FROM scan_assets sa
	          JOIN scans s ON s.id = sa.scan_id
	          JOIN assets a ON a.id = sa.asset_id
	          WHERE `
	var args []any
	switch {
	case ip != "" && mac != "":
		query += "a.ip = ? AND a.mac = ?"
		args = []any{ip, mac}
	case ip != "":
		query += "a.ip = ?"
		args = []any{ip}
	default:
		query += "a.mac = ?"
		args = []any{mac}
	}
	query += " ORDER BY s.started_at DESC"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query asset history: %w", err)
	}
	defer rows.Close()

	var history []HistoryEntry
	for rows.Next() {
		var (
			entry                   HistoryEntry
			startedAt               string
			scanMethod, category    string
			rowMAC, hostname        sql.NullString
			vendor                  sql.NullString
			portsJSON, evidenceJSON sql.NullString
		)
		err := rows.Scan(&entry.ScanID, &entry.Target, &startedAt, &scanMethod,
			&entry.IP, &rowMAC, &hostname, &vendor,
			&portsJSON, &category, &entry.ConfidenceScore, &evidenceJSON)
		if err != nil {
			return nil, fmt.Errorf("history row: %w", err)
		}
		entry.ScanStartedAt = parseTime(startedAt)
		entry.ScanMethod = model.ScanMethod(scanMethod)
		entry.MAC = rowMAC.String
		entry.Hostname = hostname.String
		entry.Vendor = vendor.String
		entry.Category = model.Category(category)
		if portsJSON.Valid && portsJSON.String != "" {
			_ = json.Unmarshal([]byte(portsJSON.String), &entry.OpenPorts)
		}
		if evidenceJSON.Valid && evidenceJSON.String != "" {
			_ = json.Unmarshal([]byte(evidenceJSON.String), &entry.RawEvidence)
		}
		history = append(history, entry)
	}
	return history, rows.Err()
}

// ScanList returns recent scan metadata, newest first.
func (s *Store) ScanList(ctx context.Context, limit int) ([]ScanRow, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, target, scan_method, started_at, completed_at, total_assets, is_root
		 FROM scans ORDER BY started_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query scans: %w", err)
	}
	defer rows.Close()

	var scans []ScanRow
	for rows.Next() {
		scan, err := scanRowFrom(rows)
		if err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		scans = append(scans, scan)
	}
	return scans, rows.Err()
}

// RecentChanges returns the newest journal entries joined with the owning
// asset's identity.
func (s *Store) RecentChanges(ctx context.Context, limit int) ([]ChangeRow, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT c.id, c.asset_id, c.scan_id, a.ip, a.mac, c.change_type,
		        c.field_name, c.old_value, c.new_value, c.detected_at
		 FROM asset_changes c
		 JOIN assets a ON a.id = c.asset_id
		 ORDER BY c.id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query changes: %w", err)
	}
	defer rows.Close()

	var changes []ChangeRow
	for rows.Next() {
		var (
			change                        ChangeRow
			mac, field, oldVal, newVal    sql.NullString
			detectedAt                    string
		)
		err := rows.Scan(&change.ID, &change.AssetID, &change.ScanID, &change.IP, &mac,
			&change.ChangeType, &field, &oldVal, &newVal, &detectedAt)
		if err != nil {
			return nil, fmt.Errorf("change row: %w", err)
		}
		change.MAC = mac.String
		change.FieldName = field.String
		change.OldValue = oldVal.String
		change.NewValue = newVal.String
		change.DetectedAt = parseTime(detectedAt)
		changes = append(changes, change)
	}
	return changes, rows.Err()
}

// SetIgnored marks or unmarks an asset (by IP) as excluded from listings.
func (s *Store) SetIgnored(ctx context.Context, ip string, ignored bool) error {
	res, err := s.db.ExecContext(ctx, "UPDATE assets SET is_ignored = ? WHERE ip = ?", boolToInt(ignored), ip)
	if err != nil {
		return fmt.Errorf("update is_ignored: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return &NotFoundError{ResourceType: "asset", ResourceID: ip}
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRowFrom(r rowScanner) (ScanRow, error) {
	var (
		scan                   ScanRow
		scanMethod, startedAt  string
		completedAt            sql.NullString
		isRoot                 int
	)
	err := r.Scan(&scan.ID, &scan.Target, &scanMethod, &startedAt, &completedAt, &scan.TotalAssets, &isRoot)
	if err != nil {
		return ScanRow{}, err
	}
	scan.ScanMethod = model.ScanMethod(scanMethod)
	scan.StartedAt = parseTime(startedAt)
	if completedAt.Valid {
		scan.CompletedAt = parseTime(completedAt.String)
	}
	scan.IsRoot = isRoot != 0
	return scan, nil
}

func assetRowFrom(r rowScanner) (AssetRow, error) {
	var (
		row                            AssetRow
		mac, hostname, vendor, osHint  sql.NullString
		manualCategory, manualNote     sql.NullString
		category, scanMethod           string
		firstSeen, lastSeen            string
		isIgnored                      int
	)
	err := r.Scan(&row.ID, &row.IP, &mac, &hostname, &vendor, &osHint, &category, &row.ConfidenceScore,
		&scanMethod, &firstSeen, &lastSeen, &manualCategory, &manualNote, &isIgnored)
	if err != nil {
		return AssetRow{}, fmt.Errorf("asset row: %w", err)
	}
	row.MAC = mac.String
	row.Hostname = hostname.String
	row.Vendor = vendor.String
	row.OSHint = osHint.String
	row.Category = model.Category(category)
	row.ScanMethod = model.ScanMethod(scanMethod)
	row.FirstSeen = parseTime(firstSeen)
	row.LastSeen = parseTime(lastSeen)
	row.ManualCategory = model.Category(manualCategory.String)
	row.ManualNote = manualNote.String
	row.IsIgnored = isIgnored != 0
	return row, nil
}

func parseTime(s string) time.Time {
	t, err := time.Parse(timeFormat, s)
	if err != nil {
		// Older rows may carry second precision.
		t, _ = time.Parse(time.RFC3339, s)
	}
	return t
}
