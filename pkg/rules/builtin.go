package rules

import (
	_ "embed"
	"sync"

	"github.com/rs/zerolog"
)

//go:embed data/port_rules.yaml
var builtinPortRules []byte

//go:embed data/vendor_rules.yaml
var builtinVendorRules []byte

//go:embed data/hostname_rules.yaml
var builtinHostnameRules []byte

//go:embed data/service_rules.yaml
var builtinServiceRules []byte

var (
	builtinOnce sync.Once
	builtinSet  *Set
)

// Builtin returns the compiled-in baseline ruleset. The classifier falls
// back to it, family by family, when a user ruleset leaves a family empty.
func Builtin() *Set {
	builtinOnce.Do(func() {
		nop := zerolog.Nop()
		builtinSet = &Set{}
		// Embedded catalogs are validated by tests; parse errors here would
		// mean a broken build, so a failed family just stays empty.
		builtinSet.PortRules, _ = parseRules(builtinPortRules, nop)
		builtinSet.VendorRules, _ = parseRules(builtinVendorRules, nop)
		builtinSet.HostnameRules, _ = parseRules(builtinHostnameRules, nop)
		builtinSet.ServiceRules, _ = parseRules(builtinServiceRules, nop)
	})
	return builtinSet
}
