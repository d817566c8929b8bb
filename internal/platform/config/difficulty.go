package config

import "fmt"

// pixelsPerFloor converts the classic cabinet speeds (px/s) into floors per second.
const pixelsPerFloor = 120.0

// Difficulty is a gameplay preset.
type Difficulty struct {
	Name            string  `json:"name"`
	SpawnInterval   float64 `json:"spawn_interval"` // seconds between spawns at zero chaos
	Patience        float64 `json:"patience"`       // mean passenger patience in seconds
	ElevatorSpeed   float64 `json:"elevator_speed"` // floors per second
	ScoreMultiplier float64 `json:"score_multiplier"`
}

// EasyDifficulty gives slow spawns and patient passengers.
func EasyDifficulty() Difficulty {
	return Difficulty{Name: "easy", SpawnInterval: 4, Patience: 30, ElevatorSpeed: 250 / pixelsPerFloor, ScoreMultiplier: 0.8}
}

// NormalDifficulty is the default.
func NormalDifficulty() Difficulty {
	return Difficulty{Name: "normal", SpawnInterval: 3, Patience: 20, ElevatorSpeed: 200 / pixelsPerFloor, ScoreMultiplier: 1}
}

// HardDifficulty slows the car and shortens patience.
func HardDifficulty() Difficulty {
	return Difficulty{Name: "hard", SpawnInterval: 2, Patience: 15, ElevatorSpeed: 150 / pixelsPerFloor, ScoreMultiplier: 1.5}
}

// ChaosDifficulty is the fastest car with the least patient tower.
func ChaosDifficulty() Difficulty {
	return Difficulty{Name: "chaos", SpawnInterval: 1, Patience: 10, ElevatorSpeed: 300 / pixelsPerFloor, ScoreMultiplier: 2}
}

// DifficultyByName resolves a preset.
func DifficultyByName(name string) (Difficulty, error) {
	switch name {
	case "easy":
		return EasyDifficulty(), nil
	case "", "normal":
		return NormalDifficulty(), nil
	case "hard":
		return HardDifficulty(), nil
	case "chaos":
		return ChaosDifficulty(), nil
	}
	return Difficulty{}, fmt.Errorf("unknown difficulty %q", name)
}
