package scenario

import (
	"fmt"

	"github.com/MRamiBalles/TowerMadness/internal/disaster"
	"github.com/MRamiBalles/TowerMadness/internal/domain/floor"
	"github.com/MRamiBalles/TowerMadness/internal/engine"
	"github.com/MRamiBalles/TowerMadness/internal/events"
	"github.com/MRamiBalles/TowerMadness/internal/platform/config"
)

func debug(at int64, kind disaster.Kind) Step {
	return Step{AtTick: at, Input: engine.Input{Action: engine.ActionTriggerDebug, Kind: kind, Source: engine.SourcePlayer2}}
}

func quiet(seed uint64) engine.Config {
	return engine.Config{
		Layout:          floor.FrontierTower(),
		Difficulty:      config.NormalDifficulty(),
		Seed:            seed,
		Triggers:        []engine.Trigger{},
		DisableSpawning: true,
	}
}

// Catalog is the standard set of headless sessions.
func Catalog() []Scenario {
	return []Scenario{
		{
			Name:        "rush_hour",
			Description: "Ten minutes of hard traffic with random disasters and a greedy operator",
			Config: engine.Config{
				Layout:     floor.FrontierTower(),
				Difficulty: config.HardDifficulty(),
				Seed:       42,
			},
			Ticks:    6000,
			Operator: true,
			Expect: func(r *Run) error {
				if r.Counts[events.EventTypePassengerSpawned] == 0 {
					return fmt.Errorf("nobody showed up")
				}
				if r.Final.Score.Delivered == 0 {
					return fmt.Errorf("operator delivered nobody")
				}
				return nil
			},
		},
		{
			Name:        "chaos_unattended",
			Description: "Nobody at the controls on chaos difficulty; balance must stay in range",
			Config: engine.Config{
				Layout:     floor.Uniform(12),
				Difficulty: config.ChaosDifficulty(),
				Seed:       7,
			},
			Ticks: 3000,
			Expect: func(r *Run) error {
				if r.Final.Score.Delivered != 0 {
					return fmt.Errorf("%d delivered with nobody driving", r.Final.Score.Delivered)
				}
				if r.Counts[events.EventTypePassengerAbandoned] == 0 {
					return fmt.Errorf("nobody ran out of patience")
				}
				return nil
			},
		},
		{
			Name:        "debug_flood",
			Description: "A hand-triggered flood runs its course; a second one is refused",
			Config:      quiet(1),
			Ticks:       900,
			Script:      []Step{debug(0, disaster.KindFlood), debug(10, disaster.KindFlood)},
			Expect: func(r *Run) error {
				if n := r.Triggered[disaster.KindFlood]; n != 1 {
					return fmt.Errorf("%d floods triggered, want 1", n)
				}
				if len(r.Rejected) != 1 {
					return fmt.Errorf("rejections = %v, want the second flood", r.Rejected)
				}
				if len(r.Final.Disasters) != 0 {
					return fmt.Errorf("flood did not run its course: %+v", r.Final.Disasters)
				}
				return nil
			},
		},
		{
			Name:        "aftershocks",
			Description: "Three earthquakes stack",
			Config:      quiet(2),
			Ticks:       50,
			Script: []Step{
				debug(0, disaster.KindEarthquake),
				debug(1, disaster.KindEarthquake),
				debug(2, disaster.KindEarthquake),
			},
			Expect: func(r *Run) error {
				if len(r.Rejected) != 0 {
					return fmt.Errorf("rejected: %v", r.Rejected)
				}
				if n := len(r.Final.Disasters); n != 3 || r.Triggered[disaster.KindEarthquake] != 3 {
					return fmt.Errorf("%d earthquakes running, want 3", n)
				}
				return nil
			},
		},
		{
			Name:        "robot_alliance",
			Description: "The operator allies with the robots once the uprising is under way",
			Config:      quiet(3),
			Ticks:       100,
			Script: []Step{
				debug(0, disaster.KindRobotUprising),
				// still in onset: nothing to decide yet
				{AtTick: 5, Input: engine.Input{Action: engine.ActionUprisingDecision, Choice: disaster.ChoiceAlly}},
				{AtTick: 40, Input: engine.Input{Action: engine.ActionUprisingDecision, Choice: disaster.ChoiceAlly}},
			},
			Expect: func(r *Run) error {
				if len(r.Rejected) != 1 {
					return fmt.Errorf("rejections = %v, want the early decision", r.Rejected)
				}
				if r.Counts[events.EventTypeUprisingDecision] != 1 {
					return fmt.Errorf("decision not recorded")
				}
				if len(r.Final.Disasters) != 0 {
					return fmt.Errorf("uprising still running: %+v", r.Final.Disasters)
				}
				return nil
			},
		},
		{
			Name:        "save_and_resume",
			Description: "Half a session is exported, restored into a new engine and finished there",
			Config: engine.Config{
				Layout:     floor.FrontierTower(),
				Difficulty: config.NormalDifficulty(),
				Seed:       99,
			},
			Ticks:    2000,
			Operator: true,
			Midway: func(r *Run) error {
				before := r.Engine.Latest()
				st, err := r.Engine.Export()
				if err != nil {
					return err
				}
				next := engine.NewEngine(engine.Config{
					Layout:     floor.FrontierTower(),
					Difficulty: config.EasyDifficulty(),
					Seed:       100,
				}, r.Log, r.Logger())
				if err := next.Restore(st); err != nil {
					return err
				}
				after := next.Latest()
				if after.Tick != before.Tick || after.Score != before.Score || len(after.Passengers) != len(before.Passengers) {
					return fmt.Errorf("restored tick %d score %+v, saved tick %d score %+v",
						after.Tick, after.Score, before.Tick, before.Score)
				}
				if next.Difficulty().Name != "normal" {
					return fmt.Errorf("restored difficulty %q", next.Difficulty().Name)
				}
				r.Engine = next
				return nil
			},
			Expect: func(r *Run) error {
				if r.Counts[events.EventTypeSessionRestored] != 1 {
					return fmt.Errorf("restore not logged")
				}
				if r.Final.Tick != 2000 {
					return fmt.Errorf("ended on tick %d", r.Final.Tick)
				}
				return nil
			},
		},
	}
}
