package safety

import (
	"fmt"
	"regexp"
	"unicode/utf8"
)

// DefaultMaxToolOutputLen bounds how much tool output is appended to a
// transcript before truncation.
const DefaultMaxToolOutputLen = 50000

// Violation severities
const (
	SeverityWarn  = "warn"
	SeverityBlock = "block"
)

// Violation records one safety finding on a piece of content.
type Violation struct {
	Type     string `json:"type"`
	Severity string `json:"severity"`
	Message  string `json:"message,omitempty"`
}

// TruncationMarker is appended when tool output exceeds the length bound.
const TruncationMarker = "\n[output truncated]"

// infraPattern flags infrastructure detail that must never reach a transcript.
type infraPattern struct {
	name    string
	pattern *regexp.Regexp
}

var infraPatterns = []infraPattern{
	{
		name:    "internal_address",
		pattern: regexp.MustCompile(`\b(?:10(?:\.\d{1,3}){3}|127(?:\.\d{1,3}){3}|192\.168(?:\.\d{1,3}){2}|172\.(?:1[6-9]|2\d|3[01])(?:\.\d{1,3}){2})(?::\d{1,5})?\b`),
	},
	{
		name:    "env_assignment",
		pattern: regexp.MustCompile(`\b[A-Z][A-Z0-9_]{2,}=[^\s"']{4,}`),
	},
	{
		name:    "connection_string",
		pattern: regexp.MustCompile(`(?i)\b(?:mysql|postgres(?:ql)?|mongodb(?:\+srv)?|redis|amqps?)://\S+`),
	},
}

// System-prompt-leak phrasings scanned on outbound responses.
var leakPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)my\s+(?:system\s+)?(?:prompt|instructions)\s+(?:is|are|say)`),
	regexp.MustCompile(`(?i)i\s+(?:was|am|have been)\s+(?:told|instructed|programmed)\s+to`),
	regexp.MustCompile(`(?i)system\s+prompt\s*:`),
	regexp.MustCompile(`(?i)here\s+(?:is|are)\s+my\s+(?:initial\s+)?instructions`),
}

// FilterToolOutput redacts PII and infrastructure detail from tool output and
// bounds its length. It returns the filtered text plus every violation found.
func FilterToolOutput(content string, maxLen int) (string, []Violation) {
	if maxLen <= 0 {
		maxLen = DefaultMaxToolOutputLen
	}

	var violations []Violation

	redacted := RedactPII(content)
	if redacted != content {
		violations = append(violations, Violation{
			Type:     "pii",
			Severity: SeverityWarn,
			Message:  "PII redacted from tool output",
		})
	}
	content = redacted

	for _, p := range infraPatterns {
		if p.pattern.MatchString(content) {
			content = p.pattern.ReplaceAllString(content, "[REDACTED:INTERNAL]")
			violations = append(violations, Violation{
				Type:     p.name,
				Severity: SeverityBlock,
				Message:  fmt.Sprintf("blocked infrastructure pattern: %s", p.name),
			})
		}
	}

	if len(content) > maxLen {
		content = truncateToRune(content, maxLen) + TruncationMarker
		violations = append(violations, Violation{
			Type:     "truncated",
			Severity: SeverityWarn,
			Message:  fmt.Sprintf("tool output truncated to %d bytes", maxLen),
		})
	}

	return content, violations
}

// FilterResponse redacts PII from a final response and flags
// system-prompt-leak phrasing before it reaches the caller.
func FilterResponse(content string) (string, []Violation) {
	var violations []Violation

	redacted := RedactPII(content)
	if redacted != content {
		violations = append(violations, Violation{
			Type:     "pii",
			Severity: SeverityWarn,
			Message:  "PII redacted from response",
		})
	}
	content = redacted

	for _, p := range leakPatterns {
		if p.MatchString(content) {
			violations = append(violations, Violation{
				Type:     "prompt_leak",
				Severity: SeverityWarn,
				Message:  "response phrasing resembles a system prompt leak",
			})
			break
		}
	}

	return content, violations
}

// truncateToRune cuts s to at most maxLen bytes without splitting a
// multi-byte rune: the cut backs up to the nearest rune boundary.
func truncateToRune(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	cut := maxLen
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}
