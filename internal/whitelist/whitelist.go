package whitelist

import (
	"strings"

	"go.uber.org/zap"
)

// Checker holds the trusted sender domain set.
//
// Membership is a substring test against the lowercased sender, not a
// hostname suffix match: "@google.com" also matches "x@google.com.evil.biz".
// Keep entries specific; a bare ".com" trusts nearly everything.
type Checker struct {
	domains []string
	logger  *zap.Logger
}

// NewChecker creates a new trusted domain checker. Entries are lowercased
// and trimmed; blank entries are dropped since they would match every sender.
func NewChecker(domains []string, logger *zap.Logger) *Checker {
	normalizedDomains := make([]string, 0, len(domains))
	for _, domain := range domains {
		d := strings.ToLower(strings.TrimSpace(domain))
		if d == "" {
			continue
		}
		normalizedDomains = append(normalizedDomains, d)
	}

	if len(normalizedDomains) > 0 && logger != nil {
		logger.Info("Initialized trusted domain checker", zap.Strings("domains", normalizedDomains))
	}

	return &Checker{
		domains: normalizedDomains,
		logger:  logger,
	}
}

// Domains returns the normalized domain entries
func (c *Checker) Domains() []string {
	out := make([]string, len(c.domains))
	copy(out, c.domains)
	return out
}

// IsTrusted reports whether the lowercased sender contains any trusted entry
func (c *Checker) IsTrusted(sender string) bool {
	if c == nil || len(c.domains) == 0 {
		return false
	}

	normalized := strings.ToLower(sender)
	for _, domain := range c.domains {
		if strings.Contains(normalized, domain) {
			if c.logger != nil {
				c.logger.Debug("Sender matches trusted domain",
					zap.String("domain", domain),
					zap.String("sender", sender))
			}
			return true
		}
	}

	return false
}
