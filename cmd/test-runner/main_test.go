package main

import (
	"bytes"
	"io"
	"strings"
	"testing"

	"github.com/MRamiBalles/TowerMadness/internal/scenario"
)

func execute(args ...string) (string, error) {
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(io.Discard)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestListCommand(t *testing.T) {
	out, err := execute("list")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	for _, s := range scenario.Catalog() {
		if !strings.Contains(out, s.Name) {
			t.Errorf("list is missing %s", s.Name)
		}
	}
}

func TestRunCommand(t *testing.T) {
	out, err := execute("run", "rush_hour")
	if err != nil {
		t.Fatalf("run rush_hour: %v\n%s", err, out)
	}
	if !strings.Contains(out, "Passed: 1") {
		t.Errorf("summary does not count one pass:\n%s", out)
	}

	if _, err := execute("run", "no_such_day"); err == nil {
		t.Errorf("unknown scenario accepted")
	}
	if _, err := execute("run"); err == nil {
		t.Errorf("run without a name accepted")
	}
	if _, err := execute("rush", "chaos"); err == nil {
		t.Errorf("two filters accepted")
	}
}

func TestEmptySelectionPasses(t *testing.T) {
	var out bytes.Buffer
	if err := runSuite(&out, options{}, func(scenario.Scenario) bool { return false }); err != nil {
		t.Fatalf("empty suite: %v", err)
	}
	if !strings.Contains(out.String(), "Failed: 0") {
		t.Errorf("summary:\n%s", out.String())
	}
}
