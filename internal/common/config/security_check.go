package config

import "go.uber.org/zap"

// ProductionWarnings lists insecure settings that must not reach production
func (c *Config) ProductionWarnings() []string {
	var warnings []string
	if c.JWTSecret == "" || c.JWTSecret == "change-me-in-production" {
		warnings = append(warnings, "jwt_secret is unset or still the default")
	}
	if c.CacheEncryptionKey == "change-me-32-bytes-exactly-long!" {
		warnings = append(warnings, "cache_encryption_key is still the default")
	}
	if c.AuditSecret == "" || c.AuditSecret == "change-me-in-production" {
		warnings = append(warnings, "audit_secret is unset or still the default; the audit chain is forgeable")
	}
	if c.CORSAllowedOrigins == "*" {
		warnings = append(warnings, "cors_allowed_origins is a wildcard")
	}
	return warnings
}

// LogSecurityWarnings logs actionable security warnings when running in
// production with insecure defaults. Call this at service startup after
// configuration is loaded.
func (c *Config) LogSecurityWarnings(log *zap.Logger) {
	if !c.IsProduction() {
		return
	}

	warnings := c.ProductionWarnings()

	for _, w := range warnings {
		log.Warn("SECURITY", zap.String("warning", w))
	}

	if len(warnings) > 0 {
		log.Warn("SECURITY: production deployment has insecure configuration",
			zap.Int("warning_count", len(warnings)))
	}
}
