package consent

import (
	"fmt"
	"strings"
)

// Module is a data domain that consent is scoped to.
type Module string

const (
	ModuleIdentity  Module = "identity"
	ModuleHealth    Module = "health"
	ModuleFinancial Module = "financial"
	ModuleProperty  Module = "property"
	ModuleAssets    Module = "assets"
)

// Modules lists every valid module in canonical order.
var Modules = []Module{ModuleIdentity, ModuleHealth, ModuleFinancial, ModuleProperty, ModuleAssets}

// Valid reports whether m is one of Modules.
func (m Module) Valid() bool {
	for _, v := range Modules {
		if m == v {
			return true
		}
	}
	return false
}

// InvalidModuleSetError reports a module list that is empty or names modules
// outside the fixed domain.
type InvalidModuleSetError struct {
	Invalid []string // offending names; empty when the list itself was empty
}

func (e *InvalidModuleSetError) Error() string {
	if len(e.Invalid) == 0 {
		return "invalid module set: at least one module is required"
	}
	return fmt.Sprintf("invalid module set: unknown modules %s (allowed: %s)",
		strings.Join(e.Invalid, ", "), joinModules(Modules))
}

// Is makes errors.Is(err, ErrInvalidModuleSet) match.
func (e *InvalidModuleSetError) Is(target error) bool {
	return target == ErrInvalidModuleSet
}

// ParseModules validates names against the module domain. Duplicates are
// collapsed, keeping first-seen order. Matching is exact.
func ParseModules(names []string) ([]Module, error) {
	if len(names) == 0 {
		return nil, &InvalidModuleSetError{}
	}
	var (
		out     = make([]Module, 0, len(names))
		seen    = make(map[Module]bool, len(names))
		invalid []string
	)
	for _, n := range names {
		m := Module(n)
		if !m.Valid() {
			invalid = append(invalid, n)
			continue
		}
		if !seen[m] {
			seen[m] = true
			out = append(out, m)
		}
	}
	if len(invalid) > 0 {
		return nil, &InvalidModuleSetError{Invalid: invalid}
	}
	return out, nil
}

// ModuleNames converts modules to plain strings.
func ModuleNames(ms []Module) []string {
	out := make([]string, len(ms))
	for i, m := range ms {
		out[i] = string(m)
	}
	return out
}

func joinModules(ms []Module) string {
	return strings.Join(ModuleNames(ms), ", ")
}
