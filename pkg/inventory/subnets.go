package inventory

import (
	"context"
	"database/sql"
	"fmt"
	"net"
	"time"
)

// Subnet is a registered scan target.
type Subnet struct {
	CIDR        string
	Label       string
	VLANID      int // zero when unset
	LastScanned time.Time
	AssetCount  int
}

// AddSubnet registers a subnet; re-adding an existing CIDR updates its
// label and VLAN.
func (s *Store) AddSubnet(ctx context.Context, cidr, label string, vlanID int) error {
	if _, _, err := net.ParseCIDR(cidr); err != nil {
		return &InvalidInputError{Field: "cidr", Reason: err.Error()}
	}

	var vlan any
	if vlanID > 0 {
		vlan = vlanID
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO subnets (cidr, label, vlan_id) VALUES (?, ?, ?)
		 ON CONFLICT(cidr) DO UPDATE SET label = excluded.label, vlan_id = excluded.vlan_id`,
		cidr, label, vlan)
	if err != nil {
		return fmt.Errorf("add subnet: %w", err)
	}
	return nil
}

// RemoveSubnet deletes a registered subnet. Removing an unknown CIDR is a
// no-op.
func (s *Store) RemoveSubnet(ctx context.Context, cidr string) error {
	_, err := s.db.ExecContext(ctx, "DELETE FROM subnets WHERE cidr = ?", cidr)
	if err != nil {
		return fmt.Errorf("remove subnet: %w", err)
	}
	return nil
}

// Subnets lists every registered subnet ordered by CIDR.
func (s *Store) Subnets(ctx context.Context) ([]Subnet, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT cidr, label, vlan_id, last_scanned, asset_count FROM subnets ORDER BY cidr")
	if err != nil {
		return nil, fmt.Errorf("query subnets: %w", err)
	}
	defer rows.Close()

	var subnets []Subnet
	for rows.Next() {
		var (
			subnet      Subnet
			label       sql.NullString
			vlanID      sql.NullInt64
			lastScanned sql.NullString
			assetCount  sql.NullInt64
		)
		if err := rows.Scan(&subnet.CIDR, &label, &vlanID, &lastScanned, &assetCount); err != nil {
			return nil, fmt.Errorf("subnet row: %w", err)
		}
		subnet.Label = label.String
		subnet.VLANID = int(vlanID.Int64)
		if lastScanned.Valid {
			subnet.LastScanned = parseTime(lastScanned.String)
		}
		subnet.AssetCount = int(assetCount.Int64)
		subnets = append(subnets, subnet)
	}
	return subnets, rows.Err()
}

// UpdateSubnetStats stamps a subnet with its latest scan time and asset
// count. Unknown CIDRs are ignored so ad-hoc scans do not fail.
func (s *Store) UpdateSubnetStats(ctx context.Context, cidr string, assetCount int) error {
	now := time.Now().UTC().Format(timeFormat)
	_, err := s.db.ExecContext(ctx,
		"UPDATE subnets SET last_scanned = ?, asset_count = ? WHERE cidr = ?",
		now, assetCount, cidr)
	if err != nil {
		return fmt.Errorf("update subnet stats: %w", err)
	}
	return nil
}
