package safety

import "regexp"

// piiPattern is one ordered redaction rule. The slice order below is the
// evaluation order and is load-bearing: digit-run patterns overlap, so the
// phone pattern requires explicit separators and card-like runs are matched
// after it. Changing the order breaks the guarantees tested in pii_test.go.
type piiPattern struct {
	name    string
	pattern *regexp.Regexp
	mask    string
}

var piiPatterns = []piiPattern{
	{
		name:    "email",
		pattern: regexp.MustCompile(`[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}`),
		mask:    "[REDACTED_EMAIL]",
	},
	{
		// Separators are mandatory so 4-4-4-4 card groups and contiguous
		// 13-16 digit runs are left for the card pattern below.
		name:    "phone",
		pattern: regexp.MustCompile(`(\+\d{1,2}[-.\s])?\(?\d{3}\)?[-.\s]\d{3}[-.\s]\d{4}\b`),
		mask:    "[REDACTED_PHONE]",
	},
	{
		name:    "government_id",
		pattern: regexp.MustCompile(`\b\d{3}-\d{2}-\d{4}\b`),
		mask:    "[REDACTED_ID]",
	},
	{
		name:    "card",
		pattern: regexp.MustCompile(`\b(?:\d{4}[-\s]){3}\d{4}\b|\b\d{13,16}\b`),
		mask:    "[REDACTED_CARD]",
	},
	{
		name:    "key",
		pattern: regexp.MustCompile(`(?i)\b(?:sk|rk|pk|ghp|xox[baprs]|mjc)_[A-Za-z0-9]{16,}\b|\b(?:api[_-]?key|secret|token|bearer)["'\s:=]+[A-Za-z0-9_\-.]{16,}`),
		mask:    "[REDACTED_KEY]",
	},
}

// RedactPII applies the ordered redaction rules to content. The function is
// idempotent: markers never re-match any rule.
func RedactPII(content string) string {
	for _, p := range piiPatterns {
		content = p.pattern.ReplaceAllString(content, p.mask)
	}
	return content
}
