// Package main - agitator
// Load generator for the tower server: two operators mashing the controls, a crowd of
// spectators watching the snapshot stream and an audience throwing disasters.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"math/rand/v2"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/spf13/cobra"

	"github.com/MRamiBalles/TowerMadness/internal/disaster"
	"github.com/MRamiBalles/TowerMadness/internal/engine"
	"github.com/MRamiBalles/TowerMadness/internal/network"
)

// Config for the agitator
type Config struct {
	ServerURL      string
	APIURL         string
	NumClients     int
	ActionInterval time.Duration
	AudienceEvery  time.Duration
	TestDuration   time.Duration
	Seed           uint64
}

// Stats tracks performance metrics
type Stats struct {
	MessagesSent     int64
	MessagesReceived int64
	Snapshots        int64
	Rejections       int64
	AudienceCalls    int64
	Errors           int64
	MaxTickGap       int64 // largest jump in tick numbers seen by one client
	Latencies        []time.Duration
	mu               sync.Mutex
}

var operatorActions = []engine.Action{
	engine.ActionMoveUp,
	engine.ActionMoveUp,
	engine.ActionMoveDown,
	engine.ActionMoveDown,
	engine.ActionToggleDoors,
}

var audienceKinds = []disaster.Kind{
	disaster.KindFlood,
	disaster.KindEarthquake,
	disaster.KindPowerOutage,
	disaster.KindBiohazard,
	disaster.KindOvercrowding,
	disaster.KindRobotUprising,
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var (
		addr   string
		seed   uint64
		config Config
	)

	rootCmd := &cobra.Command{
		Use:   "agitator",
		Short: "Stress the tower server with operators, spectators and an audience",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			config.ServerURL = "ws://" + addr + "/ws"
			config.APIURL = "http://" + addr
			config.Seed = seed
			if config.Seed == 0 {
				config.Seed = uint64(time.Now().UnixNano())
			}
			if config.NumClients < 1 || config.ActionInterval <= 0 {
				return errors.New("need at least one client and a positive action interval")
			}
			return runAgitator(cmd.Context(), config)
		},
	}
	rootCmd.PersistentFlags().StringVar(&addr, "addr", "localhost:8080", "tower server host:port")
	rootCmd.PersistentFlags().Uint64Var(&seed, "seed", 0, "seed for operator and audience choices (0 picks one from the clock)")

	f := rootCmd.Flags()
	f.IntVarP(&config.NumClients, "clients", "c", 20, "Number of concurrent clients (the first two operate)")
	f.DurationVar(&config.ActionInterval, "interval", 100*time.Millisecond, "Action interval per operator")
	f.DurationVar(&config.AudienceEvery, "audience", 3*time.Second, "Interval between audience disasters (0 disables)")
	f.DurationVarP(&config.TestDuration, "duration", "d", 60*time.Second, "Test duration")
	return rootCmd
}

func runAgitator(ctx context.Context, config Config) error {
	fmt.Println("=========================================")
	fmt.Println("🛗 AGITATOR - Tower Madness Stress Test")
	fmt.Println("=========================================")
	fmt.Printf("Server:   %s\n", config.ServerURL)
	fmt.Printf("Clients:  %d\n", config.NumClients)
	fmt.Printf("Interval: %v\n", config.ActionInterval)
	fmt.Printf("Duration: %v\n", config.TestDuration)
	fmt.Printf("Seed:     %d\n", config.Seed)
	fmt.Println("=========================================")

	ctx, cancel := context.WithTimeout(ctx, config.TestDuration)
	defer cancel()
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt)
	defer stop()

	stats := runStressTest(ctx, config)
	return printResults(stats, config)
}

func runStressTest(ctx context.Context, config Config) *Stats {
	stats := &Stats{Latencies: make([]time.Duration, 0, 10000)}
	var wg sync.WaitGroup

	fmt.Println("\n🚀 Starting clients...")
	for i := 0; i < config.NumClients; i++ {
		wg.Add(1)
		go func(clientID int) {
			defer wg.Done()
			runClient(ctx, clientID, config, stats)
		}(i)
		// stagger starts so seats go to the first two clients
		time.Sleep(10 * time.Millisecond)
	}
	if config.AudienceEvery > 0 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			runAudience(ctx, config, stats)
		}()
	}
	fmt.Printf("✅ All %d clients started\n\n", config.NumClients)

	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				fmt.Printf("📊 Progress: Sent=%d Recv=%d Snapshots=%d Errors=%d\n",
					atomic.LoadInt64(&stats.MessagesSent),
					atomic.LoadInt64(&stats.MessagesReceived),
					atomic.LoadInt64(&stats.Snapshots),
					atomic.LoadInt64(&stats.Errors))
			}
		}
	}()

	wg.Wait()
	return stats
}

func runClient(ctx context.Context, clientID int, config Config, stats *Stats) {
	rng := rand.New(rand.NewPCG(config.Seed, uint64(clientID)))
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, config.ServerURL, nil)
	if err != nil {
		log.Printf("Client %d: Connection failed: %v", clientID, err)
		atomic.AddInt64(&stats.Errors, 1)
		return
	}
	defer conn.Close()

	seat := make(chan engine.Source, 1)
	go readFrames(conn, seat, stats)

	var mySeat engine.Source
	select {
	case mySeat = <-seat:
	case <-ctx.Done():
		return
	}
	if mySeat == network.SourceSpectator {
		<-ctx.Done()
		return
	}

	ticker := time.NewTicker(config.ActionInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			msg := network.InputMessage{Action: string(operatorActions[rng.IntN(len(operatorActions))])}
			start := time.Now()
			if err := conn.WriteJSON(msg); err != nil {
				atomic.AddInt64(&stats.Errors, 1)
				return
			}
			atomic.AddInt64(&stats.MessagesSent, 1)

			stats.mu.Lock()
			stats.Latencies = append(stats.Latencies, time.Since(start))
			stats.mu.Unlock()
		}
	}
}

// readFrames counts incoming frames and reports the seat from the welcome frame.
func readFrames(conn *websocket.Conn, seat chan<- engine.Source, stats *Stats) {
	var lastTick int64
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		atomic.AddInt64(&stats.MessagesReceived, 1)

		var msg struct {
			Type    network.MessageType `json:"type"`
			Payload json.RawMessage     `json:"payload"`
		}
		if json.Unmarshal(data, &msg) != nil {
			atomic.AddInt64(&stats.Errors, 1)
			continue
		}
		switch msg.Type {
		case network.MsgTypeWelcome:
			var w network.Welcome
			json.Unmarshal(msg.Payload, &w)
			seat <- w.Seat
			lastTick = w.Snapshot.Tick
		case network.MsgTypeSnapshot:
			atomic.AddInt64(&stats.Snapshots, 1)
			var snap struct {
				Tick int64 `json:"tick"`
			}
			json.Unmarshal(msg.Payload, &snap)
			if gap := snap.Tick - lastTick; gap > atomic.LoadInt64(&stats.MaxTickGap) {
				atomic.StoreInt64(&stats.MaxTickGap, gap)
			}
			lastTick = snap.Tick
		case network.MsgTypeError:
			atomic.AddInt64(&stats.Rejections, 1)
		}
	}
}

func runAudience(ctx context.Context, config Config, stats *Stats) {
	ticker := time.NewTicker(config.AudienceEvery)
	defer ticker.Stop()
	client := &http.Client{Timeout: 5 * time.Second}
	rng := rand.New(rand.NewPCG(config.Seed, ^uint64(0)))
	viewer := 0

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			viewer++
			body, _ := json.Marshal(network.DisasterRequest{
				AudienceID: fmt.Sprintf("viewer-%03d", viewer),
				Kind:       string(audienceKinds[rng.IntN(len(audienceKinds))]),
			})
			resp, err := client.Post(config.APIURL+"/api/audience/disaster", "application/json", bytes.NewReader(body))
			if err != nil {
				atomic.AddInt64(&stats.Errors, 1)
				continue
			}
			resp.Body.Close()
			atomic.AddInt64(&stats.AudienceCalls, 1)
			if resp.StatusCode >= 500 {
				atomic.AddInt64(&stats.Errors, 1)
			}
		}
	}
}

func printResults(stats *Stats, config Config) error {
	fmt.Println("\n=========================================")
	fmt.Println("📊 STRESS TEST RESULTS")
	fmt.Println("=========================================")

	sent := atomic.LoadInt64(&stats.MessagesSent)
	recv := atomic.LoadInt64(&stats.MessagesReceived)
	snaps := atomic.LoadInt64(&stats.Snapshots)
	errs := atomic.LoadInt64(&stats.Errors)

	fmt.Printf("Inputs Sent:       %d\n", sent)
	fmt.Printf("Frames Received:   %d\n", recv)
	fmt.Printf("Snapshots:         %d\n", snaps)
	fmt.Printf("Rejections:        %d\n", atomic.LoadInt64(&stats.Rejections))
	fmt.Printf("Audience Calls:    %d\n", atomic.LoadInt64(&stats.AudienceCalls))
	fmt.Printf("Errors:            %d\n", errs)
	fmt.Printf("Max Tick Gap:      %d\n", atomic.LoadInt64(&stats.MaxTickGap))

	perClient := float64(snaps) / float64(max(1, config.NumClients)) / config.TestDuration.Seconds()
	fmt.Printf("Snapshot Rate:     %.1f/s per client\n", perClient)

	if len(stats.Latencies) > 0 {
		var total time.Duration
		lo, hi := stats.Latencies[0], stats.Latencies[0]
		for _, l := range stats.Latencies {
			total += l
			lo = min(lo, l)
			hi = max(hi, l)
		}
		fmt.Printf("\nWrite Latency:\n")
		fmt.Printf("  Min: %v\n", lo)
		fmt.Printf("  Avg: %v\n", total/time.Duration(len(stats.Latencies)))
		fmt.Printf("  Max: %v\n", hi)
	}

	fmt.Println("\n-----------------------------------------")
	var verdict error
	switch {
	case errs == 0 && atomic.LoadInt64(&stats.MaxTickGap) <= 5:
		fmt.Println("✅ TEST PASSED: every client kept up with the tick")
	case float64(errs)/float64(sent+1) < 0.05:
		fmt.Println("⚠️ TEST WARNING: clients fell behind or saw errors")
	default:
		fmt.Println("❌ TEST FAILED: High error rate")
		verdict = fmt.Errorf("%d errors for %d inputs", errs, sent)
	}
	fmt.Println("=========================================")

	results := map[string]interface{}{
		"inputs_sent":     sent,
		"frames_received": recv,
		"snapshots":       snaps,
		"errors":          errs,
		"max_tick_gap":    atomic.LoadInt64(&stats.MaxTickGap),
		"config": map[string]interface{}{
			"clients":  config.NumClients,
			"interval": config.ActionInterval.String(),
			"duration": config.TestDuration.String(),
			"seed":     config.Seed,
		},
	}
	jsonData, err := json.MarshalIndent(results, "", "  ")
	if err != nil {
		return err
	}
	if err := os.WriteFile("stress_test_results.json", jsonData, 0644); err != nil {
		return fmt.Errorf("save results: %w", err)
	}
	fmt.Println("\n📁 Results saved to stress_test_results.json")
	return verdict
}
