package plan

import (
	"fmt"
	"strings"
)

// Validate checks the plan's structure. Release rules (version format,
// progression and so on) are the validator's job; this only rejects
// plans no run could execute.
func (p *ReleasePlan) Validate() error {
	if strings.TrimSpace(p.ID) == "" {
		return fmt.Errorf("plan ID cannot be empty")
	}
	if strings.TrimSpace(p.Version.To) == "" {
		return fmt.Errorf("target version cannot be empty")
	}
	if len(p.Packages) == 0 {
		return fmt.Errorf("plan must have at least one package")
	}

	seen := make(map[string]bool)
	for i, pkg := range p.Packages {
		if strings.TrimSpace(pkg.Path) == "" {
			return fmt.Errorf("package at index %d has no manifest path", i)
		}
		if seen[pkg.Path] {
			return fmt.Errorf("duplicate manifest path %q at index %d", pkg.Path, i)
		}
		seen[pkg.Path] = true

		if pkg.Priority <= 0 {
			return fmt.Errorf("package %q priority must be positive, got %d", pkg.Name, pkg.Priority)
		}
	}
	return nil
}
