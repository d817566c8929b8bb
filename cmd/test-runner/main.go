// Package main - test-runner
// Runs the headless scenario catalog against the simulation and exits 1 on any failure.
package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/MRamiBalles/TowerMadness/internal/events"
	"github.com/MRamiBalles/TowerMadness/internal/platform/logger"
	"github.com/MRamiBalles/TowerMadness/internal/scenario"
)

var errUnsafe = errors.New("the tower is not safe to open")

type options struct {
	verbose bool
	seed    uint64
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var opts options

	rootCmd := &cobra.Command{
		Use:          "test-runner [filter]",
		Short:        "Run the scenario catalog, or the scenarios whose name contains filter",
		Args:         cobra.MaximumNArgs(1),
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			filter := ""
			if len(args) == 1 {
				filter = args[0]
			}
			return runSuite(cmd.OutOrStdout(), opts, func(s scenario.Scenario) bool {
				return strings.Contains(s.Name, filter)
			})
		},
	}
	rootCmd.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "show simulation logs")
	rootCmd.PersistentFlags().Uint64Var(&opts.seed, "seed", 0, "replace every scenario's seed (0 keeps the catalog seeds)")

	rootCmd.AddCommand(listCmd())
	rootCmd.AddCommand(runCmd(&opts))
	return rootCmd
}

func listCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List the scenarios in the catalog",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			for _, s := range scenario.Catalog() {
				fmt.Fprintf(cmd.OutOrStdout(), "%-18s %s\n", s.Name, s.Description)
			}
			return nil
		},
	}
}

func runCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "run [scenario]",
		Short: "Run one scenario by its exact name",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			found := false
			for _, s := range scenario.Catalog() {
				found = found || s.Name == args[0]
			}
			if !found {
				return fmt.Errorf("no scenario named %q", args[0])
			}
			return runSuite(cmd.OutOrStdout(), *opts, func(s scenario.Scenario) bool {
				return s.Name == args[0]
			})
		},
	}
}

func runSuite(out io.Writer, opts options, pick func(scenario.Scenario) bool) error {
	fmt.Fprintln(out, "🛗 TOWER MADNESS - SCENARIO SUITE")
	fmt.Fprintln(out, "================================")

	log := logger.NewWriterLogger(io.Discard)
	if opts.verbose {
		log = logger.NewLogger()
	}

	var results []scenario.Result
	for _, s := range scenario.Catalog() {
		if !pick(s) {
			continue
		}
		if opts.seed != 0 {
			s.Config.Seed = opts.seed
		}
		fmt.Fprintf(out, "\n🧪 %s: %s\n", s.Name, s.Description)
		res := scenario.Execute(s, log)
		results = append(results, res)
		report(out, res)
	}

	passed, failed := 0, 0
	for _, r := range results {
		if r.Passed {
			passed++
		} else {
			failed++
		}
	}

	fmt.Fprintln(out, "\n"+strings.Repeat("=", 60))
	fmt.Fprintln(out, "📊 SUMMARY")
	fmt.Fprintln(out, strings.Repeat("=", 60))
	fmt.Fprintf(out, "   ✅ Passed: %d\n", passed)
	fmt.Fprintf(out, "   ❌ Failed: %d\n", failed)

	if failed > 0 {
		fmt.Fprintln(out, "\n⚠️  The tower is not safe to open")
		return fmt.Errorf("%d of %d scenarios failed: %w", failed, len(results), errUnsafe)
	}
	fmt.Fprintln(out, "\n✅ The tower is ready for visitors")
	return nil
}

func report(out io.Writer, r scenario.Result) {
	status := "✅ PASS"
	if !r.Passed {
		status = "❌ FAIL"
	}
	fmt.Fprintf(out, "   %s in %v: %d ticks, score %d, %d delivered\n", status, r.Elapsed.Round(time.Millisecond), r.Ticks, r.Score, r.Delivered)
	if r.Reason != "" {
		fmt.Fprintf(out, "   reason: %s\n", r.Reason)
	}
	for i, v := range r.Violations {
		if i == 5 {
			fmt.Fprintf(out, "   ... and %d more violations\n", len(r.Violations)-i)
			break
		}
		fmt.Fprintf(out, "   ⚠️  %s\n", v)
	}

	types := make([]string, 0, len(r.Counts))
	for t := range r.Counts {
		types = append(types, string(t))
	}
	sort.Strings(types)
	for _, t := range types {
		fmt.Fprintf(out, "      %-22s %d\n", t, r.Counts[events.EventType(t)])
	}
}
