package tools

import (
	"fmt"
	"os"
	"sync/atomic"

	"gopkg.in/yaml.v3"
)

// ActionRule maps one action to the capability that authorizes it.
// An empty capability means the action needs no capability at all.
type ActionRule struct {
	Capability  string `yaml:"capability"`
	Destructive bool   `yaml:"destructive,omitempty"`
}

type policyFile struct {
	Actions map[string]ActionRule `yaml:"actions"`
}

// Policy is the closed action→capability authorization table. Actions absent
// from the table are denied, never inferred. The table is swapped atomically
// on reload so in-flight commands always read a consistent version.
type Policy struct {
	table atomic.Pointer[map[string]ActionRule]
}

// LoadPolicy reads and parses the policy file.
func LoadPolicy(path string) (*Policy, error) {
	p := &Policy{}
	if err := p.Reload(path); err != nil {
		return nil, err
	}
	return p, nil
}

// Reload re-reads the policy file and swaps the table in one step. On any
// error the previous table stays in effect.
func (p *Policy) Reload(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read policy file: %w", err)
	}

	var parsed policyFile
	if err := yaml.Unmarshal(data, &parsed); err != nil {
		return fmt.Errorf("failed to parse policy file: %w", err)
	}
	if len(parsed.Actions) == 0 {
		return fmt.Errorf("policy file %s defines no actions", path)
	}

	p.table.Store(&parsed.Actions)
	return nil
}

// CanPerformAction authorizes an action against a capability set. Unmapped
// actions are denied. A rule with an empty capability allows everyone.
func (p *Policy) CanPerformAction(caps []string, action string) bool {
	table := p.table.Load()
	if table == nil {
		return false
	}
	rule, ok := (*table)[action]
	if !ok {
		return false
	}
	if rule.Capability == "" {
		return true
	}
	for _, c := range caps {
		if c == rule.Capability {
			return true
		}
	}
	return false
}

// IsDestructive reports whether the action is flagged destructive.
// Unmapped actions count as destructive so the gate stays fail-closed.
func (p *Policy) IsDestructive(action string) bool {
	table := p.table.Load()
	if table == nil {
		return true
	}
	rule, ok := (*table)[action]
	if !ok {
		return true
	}
	return rule.Destructive
}

// Validate checks that every registered action has a rule. Run at startup;
// an unmapped action would silently deny a live tool, so fail fast instead.
func (p *Policy) Validate(registeredActions []string) error {
	table := p.table.Load()
	if table == nil {
		return fmt.Errorf("policy not loaded")
	}
	var missing []string
	for _, action := range registeredActions {
		if _, ok := (*table)[action]; !ok {
			missing = append(missing, action)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("policy has no rule for registered actions: %v", missing)
	}
	return nil
}
