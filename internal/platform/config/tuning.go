package config

import (
	"fmt"
	"runtime"
)

// Tuning holds buffer and rate-limit settings for the network layer.
type Tuning struct {
	// Channel buffer sizes
	BroadcastChannelBuffer int
	ClientSendBuffer       int
	InputQueueSize         int

	// Rate limiting
	MaxMessagesPerSecond int
	MaxClients           int
}

// DefaultTuning returns sensible defaults for production.
func DefaultTuning() *Tuning {
	return &Tuning{
		BroadcastChannelBuffer: 256,
		ClientSendBuffer:       64,
		InputQueueSize:         128,

		MaxMessagesPerSecond: 30, // a human mashing buttons
		MaxClients:           64,
	}
}

// StressTestTuning returns generous settings for agitator runs.
func StressTestTuning() *Tuning {
	numCPU := runtime.NumCPU()
	return &Tuning{
		BroadcastChannelBuffer: 512 * max(1, numCPU/2),
		ClientSendBuffer:       128,
		InputQueueSize:         1024,

		MaxMessagesPerSecond: 500,
		MaxClients:           500,
	}
}

// LowResourceTuning returns minimal settings for development.
func LowResourceTuning() *Tuning {
	return &Tuning{
		BroadcastChannelBuffer: 16,
		ClientSendBuffer:       8,
		InputQueueSize:         32,

		MaxMessagesPerSecond: 10,
		MaxClients:           4,
	}
}

// TuningByName resolves a profile.
func TuningByName(name string) (*Tuning, error) {
	switch name {
	case "", "default":
		return DefaultTuning(), nil
	case "stress":
		return StressTestTuning(), nil
	case "low":
		return LowResourceTuning(), nil
	}
	return nil, fmt.Errorf("unknown tuning profile %q", name)
}
