package invariant

import (
	"io"
	"testing"

	"github.com/MRamiBalles/TowerMadness/internal/platform/logger"
)

func TestStrictInsideTests(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Errorf("expected panic in strict mode")
		}
	}()
	Check(false, "test", "forced breach")
}

func TestReleaseModeClampsAndCounts(t *testing.T) {
	prev := SetStrict(false)
	defer SetStrict(prev)
	SetLogger(logger.NewWriterLogger(io.Discard))

	before := Violations()
	if Check(false, "test", "value %d", 7) {
		t.Fatalf("Check must return false on violation")
	}
	if Violations() != before+1 {
		t.Errorf("violation not counted")
	}
	if !Check(true, "test", "ok") {
		t.Errorf("Check must return true when the invariant holds")
	}
}
