package state

import (
	"encoding/json"
	"fmt"
	"sort"
)

const pausesKey = "params/pauses"

// pausesPayload is the JSON document stored under the pauses parameter key.
// JSON keeps the flag set human-inspectable with standard tooling.
type pausesPayload struct {
	Modules []string `json:"modules"`
}

// PausedModules returns the sorted set of currently paused modules.
func (m *Manager) PausedModules() ([]string, error) {
	raw, ok, err := m.KVGet([]byte(pausesKey))
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}
	var payload pausesPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, fmt.Errorf("state: decode pauses: %w", err)
	}
	sort.Strings(payload.Modules)
	return payload.Modules, nil
}

// SetPaused toggles the pause flag for a module.
func (m *Manager) SetPaused(module string, paused bool) error {
	if module == "" {
		return fmt.Errorf("state: empty module name")
	}
	modules, err := m.PausedModules()
	if err != nil {
		return err
	}
	set := make(map[string]bool, len(modules)+1)
	for _, name := range modules {
		set[name] = true
	}
	if paused {
		set[module] = true
	} else {
		delete(set, module)
	}
	next := make([]string, 0, len(set))
	for name := range set {
		next = append(next, name)
	}
	sort.Strings(next)
	raw, err := json.Marshal(pausesPayload{Modules: next})
	if err != nil {
		return err
	}
	return m.KVPut([]byte(pausesKey), raw)
}

// Pauses adapts the manager into the pause view consumed by module engines.
type Pauses struct {
	manager *Manager
}

// NewPauses constructs the pause view over the manager.
func NewPauses(manager *Manager) *Pauses {
	return &Pauses{manager: manager}
}

// IsPaused reports whether the module's circuit breaker is engaged. Read
// failures fail closed: an unreadable flag set pauses everything.
func (p *Pauses) IsPaused(module string) bool {
	if p == nil || p.manager == nil {
		return false
	}
	modules, err := p.manager.PausedModules()
	if err != nil {
		return true
	}
	for _, name := range modules {
		if name == module {
			return true
		}
	}
	return false
}
