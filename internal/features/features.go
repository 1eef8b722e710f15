package features

import (
	"sort"
	"strings"
	"sync"

	"donor-impact-api/internal/analytics"
)

// Flag is the on/off switch of one achievement rule.
type Flag struct {
	Name        string `json:"name"`
	Enabled     bool   `json:"enabled"`
	Description string `json:"description"`
}

// Manager switches achievement rules on and off at runtime. Disabling a rule
// stops new unlocks of it; achievements already unlocked are kept.
type Manager struct {
	mu    sync.RWMutex
	rules []analytics.Rule
	flags map[string]*Flag
}

// NewManager registers every rule as enabled.
func NewManager(rules []analytics.Rule) *Manager {
	m := &Manager{
		rules: rules,
		flags: make(map[string]*Flag, len(rules)),
	}
	for _, r := range rules {
		m.flags[r.ID] = &Flag{Name: r.ID, Enabled: true, Description: r.Description}
	}
	return m
}

// IsEnabled checks if a rule is enabled. Unknown names are disabled.
func (m *Manager) IsEnabled(name string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()

	flag, exists := m.flags[name]
	if !exists {
		return false
	}
	return flag.Enabled
}

// Enable enables a rule. It reports whether the rule exists.
func (m *Manager) Enable(name string) bool {
	return m.set(name, true)
}

// Disable disables a rule. It reports whether the rule exists.
func (m *Manager) Disable(name string) bool {
	return m.set(name, false)
}

func (m *Manager) set(name string, enabled bool) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	flag, exists := m.flags[name]
	if exists {
		flag.Enabled = enabled
	}
	return exists
}

// DisableList disables a comma-separated list of rule ids and returns the
// ids it did not recognise.
func (m *Manager) DisableList(list string) []string {
	var unknown []string
	for _, name := range strings.Split(list, ",") {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		if !m.Disable(name) {
			unknown = append(unknown, name)
		}
	}
	return unknown
}

// Rules returns the enabled rules in table order. The result is never nil,
// so an all-disabled table evaluates nothing.
func (m *Manager) Rules() []analytics.Rule {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]analytics.Rule, 0, len(m.rules))
	for _, r := range m.rules {
		if m.flags[r.ID].Enabled {
			out = append(out, r)
		}
	}
	return out
}

// GetAll returns a copy of all flags sorted by name.
func (m *Manager) GetAll() []Flag {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]Flag, 0, len(m.flags))
	for _, f := range m.flags {
		result = append(result, *f)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Name < result[j].Name })
	return result
}
