package tools

import (
	"os"
	"path/filepath"
	"testing"
)

const testPolicyYAML = `
actions:
  time.read:
    capability: ""
  web.fetch:
    capability: web
  crm.read:
    capability: crm
  email.send:
    capability: email
    destructive: true
  data.export:
    capability: data
    destructive: true
`

func writePolicy(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "policy.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write policy file: %v", err)
	}
	return path
}

func TestLoadPolicy(t *testing.T) {
	p, err := LoadPolicy(writePolicy(t, testPolicyYAML))
	if err != nil {
		t.Fatalf("failed to load policy: %v", err)
	}
	if !p.CanPerformAction([]string{"web"}, "web.fetch") {
		t.Error("web capability should allow web.fetch")
	}
}

func TestPolicy_UnmappedActionDenied(t *testing.T) {
	p, _ := LoadPolicy(writePolicy(t, testPolicyYAML))
	if p.CanPerformAction([]string{"web", "crm", "email", "data"}, "disk.wipe") {
		t.Error("unmapped action must be denied regardless of capabilities")
	}
}

func TestPolicy_EmptyCapabilityAllowsEveryone(t *testing.T) {
	p, _ := LoadPolicy(writePolicy(t, testPolicyYAML))
	if !p.CanPerformAction(nil, "time.read") {
		t.Error("empty-capability rule should allow an agent with no capabilities")
	}
}

func TestPolicy_MissingCapabilityDenied(t *testing.T) {
	p, _ := LoadPolicy(writePolicy(t, testPolicyYAML))
	if p.CanPerformAction([]string{"web"}, "crm.read") {
		t.Error("crm.read must require the crm capability")
	}
}

func TestPolicy_IsDestructive(t *testing.T) {
	p, _ := LoadPolicy(writePolicy(t, testPolicyYAML))
	if !p.IsDestructive("email.send") {
		t.Error("email.send is flagged destructive")
	}
	if p.IsDestructive("web.fetch") {
		t.Error("web.fetch is not destructive")
	}
	// Fail-closed for actions the table does not know.
	if !p.IsDestructive("disk.wipe") {
		t.Error("unmapped action must count as destructive")
	}
}

func TestPolicy_Validate(t *testing.T) {
	p, _ := LoadPolicy(writePolicy(t, testPolicyYAML))
	if err := p.Validate([]string{"time.read", "web.fetch", "email.send"}); err != nil {
		t.Errorf("all actions mapped, expected no error: %v", err)
	}
	if err := p.Validate([]string{"time.read", "calendar.write"}); err == nil {
		t.Error("expected validation failure for unmapped calendar.write")
	}
}

func TestPolicy_ReloadKeepsOldTableOnError(t *testing.T) {
	path := writePolicy(t, testPolicyYAML)
	p, err := LoadPolicy(path)
	if err != nil {
		t.Fatalf("failed to load policy: %v", err)
	}

	if err := os.WriteFile(path, []byte("actions: {"), 0644); err != nil {
		t.Fatalf("failed to corrupt policy file: %v", err)
	}
	if err := p.Reload(path); err == nil {
		t.Fatal("expected reload error for malformed yaml")
	}

	// Previous table still answers.
	if !p.CanPerformAction([]string{"web"}, "web.fetch") {
		t.Error("old table should survive a failed reload")
	}
}

func TestLoadPolicy_EmptyRejected(t *testing.T) {
	if _, err := LoadPolicy(writePolicy(t, "actions: {}\n")); err == nil {
		t.Error("expected error for policy with no actions")
	}
}
