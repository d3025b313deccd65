package common

import "errors"

// ErrModulePaused is returned by Guard when the circuit breaker is engaged
// for the requested module.
var ErrModulePaused = errors.New("module paused")

// PauseView exposes the current pause flags to module engines. The canonical
// implementation reads flags from state; tests use StaticPauses.
type PauseView interface {
	IsPaused(module string) bool
}

// Guard rejects the call when the module is paused. A nil view or empty
// module name means no gating.
func Guard(p PauseView, module string) error {
	if p == nil || module == "" {
		return nil
	}
	if p.IsPaused(module) {
		return ErrModulePaused
	}
	return nil
}

// StaticPauses is a fixed PauseView backed by a map. Absent modules are
// unpaused.
type StaticPauses map[string]bool

// IsPaused implements PauseView.
func (s StaticPauses) IsPaused(module string) bool { return s[module] }
