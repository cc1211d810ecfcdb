// Package plugins validates marketplace and skills configuration before the
// gateway or doctor command trusts it. It does not load or execute plugin
// code; that lives in internal/skills and internal/marketplace.
package plugins

import (
	"fmt"
	"strings"

	"github.com/haasonsaas/nexus/internal/config"
)

// ValidateConfig checks cfg.Marketplace and cfg.Skills for issues that would
// otherwise surface later as a confusing runtime failure: registries that
// aren't URLs, trusted keys with no registry to apply to, skip-verify paired
// with trusted keys, and skill entries with no source to load them from.
func ValidateConfig(cfg *config.Config) error {
	issues := ValidationIssues(cfg)
	if len(issues) > 0 {
		return fmt.Errorf("plugin configuration invalid:\n  %s", strings.Join(issues, "\n  "))
	}
	return nil
}

// ValidationIssues returns every issue found, rather than stopping at the
// first, so a single doctor run surfaces everything that needs fixing.
func ValidationIssues(cfg *config.Config) []string {
	if cfg == nil {
		return nil
	}

	var issues []string

	if cfg.Marketplace.Enabled {
		if len(cfg.Marketplace.Registries) == 0 {
			issues = append(issues, "marketplace.enabled is true but no registries are configured")
		}
		for _, reg := range cfg.Marketplace.Registries {
			if !strings.HasPrefix(reg, "https://") && !strings.HasPrefix(reg, "http://") && !strings.HasPrefix(reg, "file://") {
				issues = append(issues, fmt.Sprintf("marketplace.registries: %q is not a recognized URL scheme", reg))
			}
		}
		if cfg.Marketplace.SkipVerify && len(cfg.Marketplace.TrustedKeys) > 0 {
			issues = append(issues, "marketplace.skip_verify is true but trusted_keys is also set; trusted keys will never be checked")
		}
		for registry := range cfg.Marketplace.TrustedKeys {
			found := false
			for _, reg := range cfg.Marketplace.Registries {
				if reg == registry {
					found = true
					break
				}
			}
			if !found {
				issues = append(issues, fmt.Sprintf("marketplace.trusted_keys: %q does not match any configured registry", registry))
			}
		}
	}

	hasSource := len(cfg.Skills.Sources) > 0 || (cfg.Skills.Load != nil && len(cfg.Skills.Load.ExtraDirs) > 0)
	anyEnabled := false
	for _, entry := range cfg.Skills.Entries {
		if entry != nil && entry.Enabled != nil && *entry.Enabled {
			anyEnabled = true
			break
		}
	}
	if anyEnabled && !hasSource {
		issues = append(issues, "skills.entries has an enabled entry but skills.sources/skills.load.extraDirs configure no discovery path")
	}
	for _, src := range cfg.Skills.Sources {
		if strings.TrimSpace(src.Path) == "" {
			issues = append(issues, "skills.sources contains an entry with an empty path")
		}
	}

	return issues
}
