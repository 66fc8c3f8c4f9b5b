// Package oui maps MAC address prefixes to hardware vendors and coarse
// category hints. A compiled-in table of well-known prefixes is consulted
// first; an optional IEEE OUI CSV extends coverage when present.
package oui

import (
	"encoding/csv"
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"

	"github.com/okanyucel/bigr-discovery/pkg/model"
)

// wellKnownVendors covers the prefixes that matter most for classification
// even when no OUI database is installed.
var wellKnownVendors = map[string]string{
	// Network equipment
	"00:1a:1e": "Aruba Networks",
	"00:0c:29": "VMware",
	"00:50:56": "VMware",
	"00:1b:44": "SanDisk",
	"00:17:c5": "SonicWall",
	"00:1e:bd": "Cisco",
	"00:26:cb": "Cisco",
	"00:1f:9e": "Cisco",
	"00:23:69": "Cisco",
	"00:25:84": "Cisco",
	"28:c6:3f": "Cisco Meraki",
	"00:18:0a": "Juniper",
	"00:05:85": "Juniper",
	"00:1f:12": "Juniper",
	"d4:04:ff": "Juniper",
	"70:b3:d5": "MikroTik",
	"00:0c:42": "MikroTik",
	"48:8f:5a": "MikroTik",
	"e4:8d:8c": "MikroTik",
	"64:d1:54": "MikroTik",
	// IoT / cameras
	"a4:14:37": "Hikvision",
	"c0:56:e3": "Hikvision",
	"44:19:b6": "Hikvision",
	"54:c4:15": "Hikvision",
	"bc:ad:28": "Hikvision",
	"40:ed:98": "Hikvision",
	"c4:2f:90": "Dahua",
	"3c:ef:8c": "Dahua",
	"a0:bd:1d": "Dahua",
	// Printers
	"00:00:48": "Seiko Epson",
	"00:1b:a9": "Brother",
	"00:1e:8f": "Canon",
	"00:15:99": "HP Printing",
	"a4:5d:36": "HP Printing",
	// Consumer / laptops
	"ac:de:48": "Apple",
	"3c:22:fb": "Apple",
	"f0:18:98": "Apple",
	"a8:60:b6": "Apple",
	"00:1a:a0": "Dell",
	"14:fe:b5": "Dell",
	"f8:b1:56": "Dell",
	"54:bf:64": "Dell",
	"00:21:cc": "Lenovo",
	"58:20:b1": "Lenovo",
	"7c:7a:91": "Lenovo",
	"e8:6a:64": "Samsung",
	"a0:82:1f": "Samsung",
	"00:26:37": "Samsung",
}

// categoryHint is matched case-insensitively as a substring of the vendor
// name; order matters, first hit wins.
type categoryHint struct {
	keyword  string
	category model.Category
}

var vendorCategoryHints = []categoryHint{
	{"cisco", model.CategoryNetworkSystems},
	{"juniper", model.CategoryNetworkSystems},
	{"aruba", model.CategoryNetworkSystems},
	{"mikrotik", model.CategoryNetworkSystems},
	{"sonicwall", model.CategoryNetworkSystems},
	{"meraki", model.CategoryNetworkSystems},
	{"vmware", model.CategoryNetworkSystems},
	{"hikvision", model.CategoryIoT},
	{"dahua", model.CategoryIoT},
	{"axis", model.CategoryIoT},
	{"epson", model.CategoryIoT},
	{"brother", model.CategoryIoT},
	{"canon", model.CategoryIoT},
	{"hp printing", model.CategoryIoT},
	{"xerox", model.CategoryIoT},
	{"apple", model.CategoryPortable},
	{"dell", model.CategoryPortable},
	{"lenovo", model.CategoryPortable},
	{"samsung", model.CategoryPortable},
	{"intel", model.CategoryPortable},
	{"realtek", model.CategoryPortable},
}

// Lookup resolves vendors from MAC prefixes. It is immutable after
// construction and safe for concurrent readers.
type Lookup struct {
	db map[string]string // loaded from CSV, may be empty
}

// NewLookup builds a Lookup, optionally extending the compiled-in table
// with an IEEE OUI CSV (rows of "aa:bb:cc,Vendor Name"). A missing or
// unreadable CSV is not fatal; the well-known table still serves.
func NewLookup(csvPath string, logger zerolog.Logger) *Lookup {
	l := &Lookup{db: map[string]string{}}
	if csvPath == "" {
		return l
	}

	f, err := os.Open(csvPath)
	if err != nil {
		logger.Debug().Err(err).Str("path", csvPath).Msg("OUI CSV unavailable, using built-in vendor table only")
		return l
	}
	defer f.Close()

	l.db = parseCSV(f, logger)
	logger.Debug().Int("prefixes", len(l.db)).Str("path", csvPath).Msg("loaded OUI database")
	return l
}

func parseCSV(r io.Reader, logger zerolog.Logger) map[string]string {
	db := map[string]string{}
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1

	header := true
	for {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			logger.Debug().Err(err).Msg("skipping malformed OUI row")
			continue
		}
		if header {
			header = false
			continue
		}
		if len(row) < 2 {
			continue
		}
		prefix := strings.ToLower(strings.TrimSpace(row[0]))
		vendor := strings.TrimSpace(row[1])
		if prefix == "" || vendor == "" {
			continue
		}
		db[prefix] = vendor
	}
	return db
}

// Vendor returns the vendor string for a MAC address, matching on the
// first three octets. Empty when the prefix is unknown.
func (l *Lookup) Vendor(mac string) string {
	mac = model.NormalizeMAC(mac)
	if len(mac) < 8 {
		return ""
	}
	prefix := mac[:8]
	if vendor, ok := wellKnownVendors[prefix]; ok {
		return vendor
	}
	if vendor, ok := l.db[prefix]; ok {
		return vendor
	}
	return ""
}

// CategoryHint maps a vendor name to a BİGR category by keyword.
func CategoryHint(vendor string) (model.Category, bool) {
	if vendor == "" {
		return "", false
	}
	lower := strings.ToLower(vendor)
	for _, hint := range vendorCategoryHints {
		if strings.Contains(lower, hint.keyword) {
			return hint.category, true
		}
	}
	return "", false
}
