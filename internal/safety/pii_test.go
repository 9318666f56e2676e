package safety

import (
	"strings"
	"testing"
)

func TestRedactPII_Email(t *testing.T) {
	out := RedactPII("contact me at jane.doe+test@example.co.uk please")
	if strings.Contains(out, "jane.doe") || strings.Contains(out, "example.co.uk") {
		t.Errorf("email not redacted: %s", out)
	}
	if !strings.Contains(out, "[REDACTED_EMAIL]") {
		t.Errorf("expected email mask, got: %s", out)
	}
}

func TestRedactPII_Phone(t *testing.T) {
	cases := []string{
		"call 555-867-5309 now",
		"call (555) 867-5309 now",
		"call +1 555-867-5309 now",
		"call 555.867.5309 now",
	}
	for _, c := range cases {
		out := RedactPII(c)
		if !strings.Contains(out, "[REDACTED_PHONE]") {
			t.Errorf("phone not redacted in %q: %s", c, out)
		}
	}
}

func TestRedactPII_GovernmentID(t *testing.T) {
	out := RedactPII("ssn is 123-45-6789 on file")
	if out != "ssn is [REDACTED_ID] on file" {
		t.Errorf("unexpected output: %s", out)
	}
}

func TestRedactPII_Card(t *testing.T) {
	cases := []string{
		"card 4111-1111-1111-1111 on file",
		"card 4111 1111 1111 1111 on file",
		"card 4111111111111111 on file",
	}
	for _, c := range cases {
		out := RedactPII(c)
		if !strings.Contains(out, "[REDACTED_CARD]") {
			t.Errorf("card not redacted in %q: %s", c, out)
		}
		if strings.Contains(out, "4111") {
			t.Errorf("card digits leaked in %q: %s", c, out)
		}
	}
}

func TestRedactPII_Key(t *testing.T) {
	out := RedactPII("use sk_abcdef0123456789abcdef to authenticate")
	if !strings.Contains(out, "[REDACTED_KEY]") {
		t.Errorf("key not redacted: %s", out)
	}

	out = RedactPII(`api_key="zz99zz99zz99zz99zz99"`)
	if !strings.Contains(out, "[REDACTED_KEY]") {
		t.Errorf("assigned key not redacted: %s", out)
	}
}

// Card-like digit runs must survive the phone pass intact so the card
// pattern sees the full run.
func TestRedactPII_PhoneDoesNotEatCard(t *testing.T) {
	out := RedactPII("charge 4111111111111111 then call 555-867-5309")
	if !strings.Contains(out, "[REDACTED_CARD]") {
		t.Errorf("card missing: %s", out)
	}
	if !strings.Contains(out, "[REDACTED_PHONE]") {
		t.Errorf("phone missing: %s", out)
	}
	if strings.Contains(out, "[REDACTED_PHONE]11") || strings.Contains(out, "4111") {
		t.Errorf("phone pass mangled the card run: %s", out)
	}
}

func TestRedactPII_Idempotent(t *testing.T) {
	input := "email a@b.io, phone 555-867-5309, ssn 123-45-6789, card 4111 1111 1111 1111, key sk_abcdef0123456789abcdef"
	once := RedactPII(input)
	twice := RedactPII(once)
	if once != twice {
		t.Errorf("redaction not idempotent:\nonce:  %s\ntwice: %s", once, twice)
	}
}

func TestRedactPII_CleanContentUnchanged(t *testing.T) {
	input := "the meeting is at 3pm in room 204"
	if out := RedactPII(input); out != input {
		t.Errorf("clean content modified: %s", out)
	}
}
