// Package invariant reports broken simulation invariants.
//
// Inside a test binary a violation panics so the failing test points at the breach.
// In a running server the caller clamps the value back into range and the violation is
// logged and counted.
package invariant

import (
	"fmt"
	"sync/atomic"
	"testing"

	"github.com/MRamiBalles/TowerMadness/internal/platform/logger"
)

var (
	strict     atomic.Bool
	violations atomic.Int64
	log        atomic.Pointer[logger.Logger]
)

func init() {
	strict.Store(testing.Testing())
	log.Store(logger.NewLogger())
}

// SetStrict overrides the panic-on-violation mode and returns the previous value.
func SetStrict(v bool) bool {
	return strict.Swap(v)
}

// SetLogger replaces the logger used in non-strict mode.
func SetLogger(l *logger.Logger) {
	if l != nil {
		log.Store(l)
	}
}

// Violations returns how many breaches were clamped since start.
func Violations() int64 {
	return violations.Load()
}

// Check reports a violation when ok is false. It returns ok so callers can clamp:
//
//	if !invariant.Check(load <= cap, "elevator", "load %d > %d", load, cap) { load = cap }
func Check(ok bool, component, format string, args ...any) bool {
	if ok {
		return true
	}
	msg := fmt.Sprintf("invariant violated in %s: %s", component, fmt.Sprintf(format, args...))
	if strict.Load() {
		panic(msg)
	}
	violations.Add(1)
	log.Load().Error(msg)
	return false
}
