package safety

import "regexp"

// injectionPattern is one prompt-injection signature. Patterns are checked
// in order and every match is reported so audit records the full picture.
type injectionPattern struct {
	name     string
	severity string
	pattern  *regexp.Regexp
}

var injectionPatterns = []injectionPattern{
	{
		name:     "ignore_instructions",
		severity: SeverityBlock,
		pattern:  regexp.MustCompile(`(?i)ignore\s+(?:all\s+|any\s+)?(?:previous|prior|above|earlier)\s+(?:instructions?|prompts?|rules?|directions?)`),
	},
	{
		name:     "override_instructions",
		severity: SeverityBlock,
		pattern:  regexp.MustCompile(`(?i)(?:disregard|forget|override)\s+(?:your|the|all)\s+(?:instructions?|rules?|guidelines?|system\s+prompt)`),
	},
	{
		name:     "reveal_prompt",
		severity: SeverityBlock,
		pattern:  regexp.MustCompile(`(?i)(?:reveal|show|print|repeat|output)\s+(?:your|the)\s+(?:system\s+)?(?:prompt|instructions)`),
	},
	{
		name:     "role_hijack",
		severity: SeverityBlock,
		pattern:  regexp.MustCompile(`(?i)you\s+are\s+(?:now|no\s+longer)\s+(?:a|an|the|bound)`),
	},
	{
		name:     "mode_switch",
		severity: SeverityBlock,
		pattern:  regexp.MustCompile(`(?i)\b(?:developer|debug|god|jailbreak|dan)\s+mode\b`),
	},
	{
		name:     "new_instructions",
		severity: SeverityWarn,
		pattern:  regexp.MustCompile(`(?i)(?:new|updated|revised)\s+(?:instructions?|system\s+prompt)\s*:`),
	},
	{
		name:     "pretend_roleplay",
		severity: SeverityWarn,
		pattern:  regexp.MustCompile(`(?i)(?:pretend|act\s+as\s+if|imagine)\s+(?:you|that\s+you)\s+(?:are|have|can)`),
	},
	{
		name:     "fake_boundary",
		severity: SeverityWarn,
		pattern:  regexp.MustCompile(`(?i)(?:^|\n)\s*(?:\[/?(?:system|inst)\]|<\|?(?:system|im_start|im_end)\|?>|###\s*system)`),
	},
}

// DetectPromptInjection scans content against every injection signature and
// returns all matches. An empty slice means the content is clean.
func DetectPromptInjection(content string) []Violation {
	var violations []Violation
	for _, p := range injectionPatterns {
		if p.pattern.MatchString(content) {
			violations = append(violations, Violation{
				Type:     p.name,
				Severity: p.severity,
				Message:  "prompt injection pattern matched: " + p.name,
			})
		}
	}
	return violations
}

// HasBlocking reports whether any violation carries block severity.
func HasBlocking(violations []Violation) bool {
	for _, v := range violations {
		if v.Severity == SeverityBlock {
			return true
		}
	}
	return false
}
