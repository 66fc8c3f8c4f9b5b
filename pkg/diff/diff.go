// Package diff computes set-and-field differences between two scans and
// exposes the stored change journal.
package diff

import (
	"context"
	"fmt"
	"strings"

	"github.com/okanyucel/bigr-discovery/pkg/inventory"
	"github.com/okanyucel/bigr-discovery/pkg/model"
)

// Change is one detected field difference on an asset present in both
// scans.
type Change struct {
	IP         string `json:"ip"`
	MAC        string `json:"mac,omitempty"`
	ChangeType string `json:"change_type"`
	Field      string `json:"field,omitempty"`
	OldValue   string `json:"old_value,omitempty"`
	NewValue   string `json:"new_value,omitempty"`
}

// Result is the outcome of diffing a current scan against a previous one.
type Result struct {
	NewAssets      []*model.Asset `json:"new_assets"`
	RemovedAssets  []*model.Asset `json:"removed_assets"`
	ChangedAssets  []Change       `json:"changed_assets"`
	UnchangedCount int            `json:"unchanged_count"`
}

// HasChanges reports whether any of the three change lists is populated.
func (r *Result) HasChanges() bool {
	return len(r.NewAssets) > 0 || len(r.RemovedAssets) > 0 || len(r.ChangedAssets) > 0
}

// Summary concatenates the populated parts: "+N new -N removed ~N changed
// =N unchanged".
func (r *Result) Summary() string {
	var parts []string
	if n := len(r.NewAssets); n > 0 {
		parts = append(parts, fmt.Sprintf("+%d new", n))
	}
	if n := len(r.RemovedAssets); n > 0 {
		parts = append(parts, fmt.Sprintf("-%d removed", n))
	}
	if n := len(r.ChangedAssets); n > 0 {
		parts = append(parts, fmt.Sprintf("~%d changed", n))
	}
	if r.UnchangedCount > 0 || len(parts) == 0 {
		parts = append(parts, fmt.Sprintf("=%d unchanged", r.UnchangedCount))
	}
	return strings.Join(parts, " ")
}

// Scans diffs two asset lists keyed by MAC (or IP when the MAC is
// unknown). It never fails: nil inputs read as empty scans.
func Scans(current, previous []*model.Asset) *Result {
	currentByKey := indexByKey(current)
	previousByKey := indexByKey(previous)

	result := &Result{}

	for _, asset := range current {
		if _, existed := previousByKey[asset.Key()]; !existed {
			result.NewAssets = append(result.NewAssets, asset)
		}
	}
	for _, asset := range previous {
		if _, exists := currentByKey[asset.Key()]; !exists {
			result.RemovedAssets = append(result.RemovedAssets, asset)
		}
	}

	for _, cur := range current {
		prev, existed := previousByKey[cur.Key()]
		if !existed {
			continue
		}
		changes := compareAssets(cur, prev)
		if len(changes) == 0 {
			result.UnchangedCount++
			continue
		}
		result.ChangedAssets = append(result.ChangedAssets, changes...)
	}

	return result
}

func indexByKey(assets []*model.Asset) map[string]*model.Asset {
	index := make(map[string]*model.Asset, len(assets))
	for _, a := range assets {
		index[a.Key()] = a
	}
	return index
}

// compareAssets emits one Change per differing field: open_ports (as a
// set), bigr_category, vendor, and hostname.
func compareAssets(cur, prev *model.Asset) []Change {
	var changes []Change

	curPorts := model.NormalizePorts(cur.OpenPorts)
	prevPorts := model.NormalizePorts(prev.OpenPorts)
	if !equalPorts(curPorts, prevPorts) {
		changes = append(changes, Change{
			IP:         cur.IP,
			MAC:        cur.MAC,
			ChangeType: "port_change",
			Field:      "open_ports",
			OldValue:   formatPorts(prevPorts),
			NewValue:   formatPorts(curPorts),
		})
	}
	if cur.Category != prev.Category {
		changes = append(changes, Change{
			IP:         cur.IP,
			MAC:        cur.MAC,
			ChangeType: "category_change",
			Field:      "bigr_category",
			OldValue:   string(prev.Category),
			NewValue:   string(cur.Category),
		})
	}
	if cur.Vendor != prev.Vendor {
		changes = append(changes, Change{
			IP:         cur.IP,
			MAC:        cur.MAC,
			ChangeType: "vendor_change",
			Field:      "vendor",
			OldValue:   prev.Vendor,
			NewValue:   cur.Vendor,
		})
	}
	if cur.Hostname != prev.Hostname {
		changes = append(changes, Change{
			IP:         cur.IP,
			MAC:        cur.MAC,
			ChangeType: "hostname_change",
			Field:      "hostname",
			OldValue:   prev.Hostname,
			NewValue:   cur.Hostname,
		})
	}
	return changes
}

func equalPorts(a, b []int) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func formatPorts(ports []int) string {
	strs := make([]string, len(ports))
	for i, p := range ports {
		strs[i] = fmt.Sprintf("%d", p)
	}
	return "[" + strings.Join(strs, ", ") + "]"
}

// StoredChanges returns the most recent persisted journal entries joined
// with asset identity, newest first.
func StoredChanges(ctx context.Context, store *inventory.Store, limit int) ([]inventory.ChangeRow, error) {
	return store.RecentChanges(ctx, limit)
}
