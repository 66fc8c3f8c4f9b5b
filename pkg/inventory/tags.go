package inventory

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/okanyucel/bigr-discovery/pkg/model"
)

// Tag is a manual category override on an asset.
type Tag struct {
	IP             string
	MAC            string
	Hostname       string
	ManualCategory model.Category
	ManualNote     string
}

// TagAsset applies a manual category override to an asset identified by IP.
// When no asset row exists yet a minimal placeholder is created so the
// override takes effect on the very next classification.
func (s *Store) TagAsset(ctx context.Context, ip string, category model.Category, note string) error {
	if ip == "" {
		return &InvalidInputError{Field: "ip", Reason: "empty"}
	}
	if !category.Valid() || category == model.CategoryUnclassified {
		return &InvalidInputError{Field: "manual_category", Reason: fmt.Sprintf("unknown value %q", category)}
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	res, err := s.db.ExecContext(ctx,
		"UPDATE assets SET manual_category = ?, manual_note = ? WHERE ip = ?",
		string(category), nullable(note), ip)
	if err != nil {
		return fmt.Errorf("tag asset: %w", err)
	}
	if n, _ := res.RowsAffected(); n > 0 {
		return nil
	}

	now := time.Now().UTC().Format(timeFormat)
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO assets (id, ip, bigr_category, confidence_score, scan_method,
		                     first_seen, last_seen, manual_category, manual_note)
		 VALUES (?, ?, 'unclassified', 0.0, 'passive', ?, ?, ?, ?)`,
		uuid.NewString(), ip, now, now, string(category), nullable(note))
	if err != nil {
		return fmt.Errorf("tag asset (placeholder): %w", err)
	}
	return nil
}

// UntagAsset clears any manual override on the asset.
func (s *Store) UntagAsset(ctx context.Context, ip string) error {
	if ip == "" {
		return &InvalidInputError{Field: "ip", Reason: "empty"}
	}
	_, err := s.db.ExecContext(ctx,
		"UPDATE assets SET manual_category = NULL, manual_note = NULL WHERE ip = ?", ip)
	if err != nil {
		return fmt.Errorf("untag asset: %w", err)
	}
	return nil
}

// Tags lists every asset carrying a manual override.
func (s *Store) Tags(ctx context.Context) ([]Tag, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT ip, mac, hostname, manual_category, manual_note
		 FROM assets WHERE manual_category IS NOT NULL ORDER BY ip`)
	if err != nil {
		return nil, fmt.Errorf("query tags: %w", err)
	}
	defer rows.Close()

	var tags []Tag
	for rows.Next() {
		var (
			tag           Tag
			mac, hostname sql.NullString
			category      string
			note          sql.NullString
		)
		if err := rows.Scan(&tag.IP, &mac, &hostname, &category, &note); err != nil {
			return nil, fmt.Errorf("tag row: %w", err)
		}
		tag.MAC = mac.String
		tag.Hostname = hostname.String
		tag.ManualCategory = model.Category(category)
		tag.ManualNote = note.String
		tags = append(tags, tag)
	}
	return tags, rows.Err()
}

// Override implements the classifier's override source: it reports the
// manual category for an IP. Lookup failures read as "no override" so a
// broken database never blocks classification.
func (s *Store) Override(ctx context.Context, ip string) (model.Category, string, bool) {
	row := s.db.QueryRowContext(ctx,
		"SELECT manual_category, manual_note FROM assets WHERE ip = ? AND manual_category IS NOT NULL LIMIT 1", ip)

	var category string
	var note sql.NullString
	if err := row.Scan(&category, &note); err != nil {
		return "", "", false
	}
	parsed, err := model.ParseCategory(category)
	if err != nil {
		return "", "", false
	}
	return parsed, note.String, true
}
