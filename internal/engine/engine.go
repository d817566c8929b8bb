package engine

import (
	"fmt"
	"math/rand/v2"
	"sync"
	"sync/atomic"
	"time"

	"github.com/MRamiBalles/TowerMadness/internal/disaster"
	"github.com/MRamiBalles/TowerMadness/internal/domain/elevator"
	"github.com/MRamiBalles/TowerMadness/internal/domain/floor"
	"github.com/MRamiBalles/TowerMadness/internal/domain/passenger"
	"github.com/MRamiBalles/TowerMadness/internal/domain/rules"
	"github.com/MRamiBalles/TowerMadness/internal/domain/simerr"
	"github.com/MRamiBalles/TowerMadness/internal/events"
	"github.com/MRamiBalles/TowerMadness/internal/platform/config"
	"github.com/MRamiBalles/TowerMadness/internal/platform/invariant"
	"github.com/MRamiBalles/TowerMadness/internal/platform/logger"
	"github.com/MRamiBalles/TowerMadness/internal/platform/metrics"
)

// Config describes a session.
type Config struct {
	Layout     floor.Layout
	Elevator   elevator.Config // zero value: the default car for the layout
	Difficulty config.Difficulty
	Seed       uint64
	// Triggers nil means DefaultTriggers. An empty, non-nil slice disables random disasters.
	Triggers        []Trigger
	DisableSpawning bool
	InputQueueSize  int
	Assets          AssetRequester
}

func (c Config) withDefaults() Config {
	if len(c.Layout.Floors) == 0 {
		c.Layout = floor.FrontierTower()
	}
	if c.Difficulty.Name == "" {
		c.Difficulty = config.NormalDifficulty()
	}
	if c.Elevator.Floors == 0 {
		start := c.Elevator.StartFloor
		c.Elevator = elevator.DefaultConfig(len(c.Layout.Floors))
		c.Elevator.Speed = c.Difficulty.ElevatorSpeed
		c.Elevator.StartFloor = start
	}
	if c.Triggers == nil {
		c.Triggers = DefaultTriggers()
	}
	if c.InputQueueSize <= 0 {
		c.InputQueueSize = 128
	}
	return c
}

// tickInfo stamps events with the simulated time they happened at.
type tickInfo struct {
	now  float64
	tick int64
	day  int
}

func (ti tickInfo) event(t events.EventType, actor, target string, payload interface{}) events.GameEvent {
	return events.GameEvent{
		ID:        events.GenerateEventID(),
		Timestamp: time.Now(),
		SimTime:   ti.now,
		Tick:      ti.tick,
		Type:      t,
		ActorID:   actor,
		TargetID:  target,
		Payload:   payload,
		GameDay:   ti.day,
	}
}

func passengerActor(id int) string { return fmt.Sprintf("passenger-%d", id) }
func floorTarget(id int) string    { return fmt.Sprintf("floor-%d", id) }

// Engine is the simulation: it owns every table and subsystem of one session and
// advances them in a fixed order on each Tick. Only Tick mutates state; inputs are
// queued and applied at the start of the next tick.
type Engine struct {
	mu       sync.Mutex
	eventLog *events.EventLog
	logger   *logger.Logger
	cfg      Config

	floors     *floor.Registry
	passengers *passenger.Table
	elevator   *elevator.Elevator
	src        *rand.PCG // kept to save the random stream
	rng        *rand.Rand
	world      *disaster.World

	// Sub-systems
	spawner   *SpawnSystem
	scheduler *Scheduler
	balance   *BalanceSystem
	scoring   *ScoringSystem
	assets    *assetBoard

	// State
	clock           Clock
	tick            int64
	paused          bool
	resolverPending bool

	inputMu sync.Mutex
	inputs  []Input

	latest atomic.Pointer[Snapshot]
}

// NewEngine builds a fresh session.
func NewEngine(cfg Config, eventLog *events.EventLog, log *logger.Logger) *Engine {
	if len(cfg.Layout.Floors) > 0 {
		if err := cfg.Layout.Validate(); err != nil {
			log.Warnf("Unusable layout (%v); using the Frontier Tower", err)
			cfg.Layout = floor.FrontierTower()
			cfg.Elevator.Floors = 0
		}
	}
	cfg = cfg.withDefaults()
	e := &Engine{
		eventLog: eventLog,
		logger:   log,
		cfg:      cfg,
		clock:    NewClock(),
	}
	e.build()
	snap := e.snapshot()
	e.latest.Store(&snap)
	return e
}

// build creates the tables and subsystems from cfg.
func (e *Engine) build() {
	cfg := e.cfg
	e.floors = floor.NewRegistry(cfg.Layout)
	e.passengers = passenger.NewTable()
	e.elevator = elevator.New(cfg.Elevator)
	e.src = rand.NewPCG(cfg.Seed, cfg.Seed^0x9e3779b97f4a7c15)
	e.rng = rand.New(e.src)

	e.balance = NewBalanceSystem(e.eventLog, e.logger)
	e.scoring = NewScoringSystem(e.eventLog, e.logger, cfg.Difficulty.ScoreMultiplier)
	e.spawner = NewSpawnSystem(e.eventLog, e.logger, e.floors, e.passengers, e.elevator, e.rng, cfg.Difficulty)
	e.spawner.SetEnabled(!cfg.DisableSpawning)
	e.scheduler = NewScheduler(e.eventLog, e.logger, cfg.Triggers, e.rng)
	e.assets = newAssetBoard(cfg.Assets)

	e.world = &disaster.World{
		Floors:   e.floors,
		Elevator: e.elevator,
		Balance:  e.balance,
		Rand:     e.rng,
		Mods:     disaster.NewModifiers(),
		Hooks:    engineHooks{e},
	}
	// cursors start at the end of whatever the log already holds
	e.balance.lastSeq = e.eventLog.LastSeq()
	e.scoring.lastSeq = e.eventLog.LastSeq()
}

func (e *Engine) tickInfo() tickInfo {
	return tickInfo{now: e.clock.Elapsed, tick: e.tick, day: e.clock.Day()}
}

// Tick advances the simulation by dt seconds and returns the resulting snapshot.
func (e *Engine) Tick(dt float64) Snapshot {
	e.mu.Lock()
	defer e.mu.Unlock()

	if dt < 0 {
		dt = 0
	}
	e.resolveInputs(e.tickInfo())
	if e.paused {
		return e.publish()
	}

	e.tick++
	e.clock.Advance(dt)
	ti := e.tickInfo()
	e.world.Now = ti.now

	if f, reached := e.elevator.Step(dt); reached {
		e.eventLog.Append(ti.event(events.EventTypeFloorReached, "elevator", floorTarget(f), f))
	}
	delivered := e.transfer(ti)

	e.spawner.Tick(dt, ti, spawnConditions{
		Chaos:      e.balance.Chaos(),
		Flow:       e.balance.Flow(),
		Unresolved: e.scheduler.Unresolved(),
		TimeWeight: e.clock.SpawnWeight(),
		Mods:       e.world.Mods,
	})

	e.scheduler.Check(dt, e.view(), e.world, ti, e.resolverPending)

	e.world.Mods = disaster.NewModifiers()
	e.world.Deliveries = delivered
	e.scheduler.Update(dt, e.world, ti)
	e.applyModifiers()

	e.scoring.Reconcile()
	e.balance.Reconcile()
	if e.resolverPending {
		e.applyResolver(ti)
	} else {
		e.balance.Decay(dt)
	}

	e.requestAssets()
	e.assets.poll(ti, e.eventLog)
	return e.publish()
}

// transfer moves passengers through open doors: boarders from last tick start riding,
// riders at their destination get off, then the queue boards in arrival order.
func (e *Engine) transfer(ti tickInfo) int {
	e.startRiding()

	at, aligned := e.elevator.Floor()
	if e.elevator.Door() != elevator.DoorsOpen || !aligned || e.elevator.Moving() {
		return 0
	}

	delivered := 0
	for _, id := range e.elevator.Riders() {
		p, ok := e.passengers.Get(id)
		if !ok || p.Destination != at || p.State != passenger.StateRiding {
			continue
		}
		if err := e.elevator.Discharge(p); err != nil {
			e.logger.Warnf("discharge passenger %d: %v", id, err)
			continue
		}
		e.eventLog.Append(ti.event(events.EventTypePassengerDelivered, passengerActor(id), floorTarget(at),
			events.DeliveryPayload{
				PassengerType: string(p.Type),
				Origin:        p.Origin,
				Destination:   p.Destination,
				Theme:         string(e.floors.Theme(at)),
				Escaped:       p.Escaped,
			}))
		e.passengers.Remove(id)
		metrics.Get().RecordDelivery()
		delivered++
	}

	for _, p := range e.spawner.waitingOn(at) {
		err := e.elevator.Board(p)
		if simerr.CodeOf(err) == simerr.CodeCapacityExceeded {
			continue
		}
		if err != nil {
			e.logger.Warnf("board passenger %d: %v", p.ID, err)
			continue
		}
		e.floors.RemoveWaiting(at, p.ID)
		e.eventLog.Append(ti.event(events.EventTypePassengerBoarded, passengerActor(p.ID), floorTarget(at), string(p.Type)))
		if p.Type == passenger.TypeResolver {
			e.resolverPending = true
			e.logger.Event("RESOLVER_BOARDED", passengerActor(p.ID), "everything is about to be fine")
		}
	}
	return delivered
}

func (e *Engine) startRiding() {
	for _, id := range e.elevator.Riders() {
		p, ok := e.passengers.Get(id)
		if !ok || p.State != passenger.StateBoarding {
			continue
		}
		err := p.Transition(passenger.StateRiding)
		invariant.Check(err == nil, "transfer", "passenger %d cannot ride: %v", id, err)
	}
}

// applyModifiers hands this tick's disaster effects to the car.
func (e *Engine) applyModifiers() {
	e.elevator.SetSpeedFactor(e.world.Mods.SpeedFactor)
	e.elevator.SetDisabled(e.world.Mods.PowerOut)
}

// applyResolver is the end-of-tick Resolver override. Balance decay is skipped this tick.
func (e *Engine) applyResolver(ti tickInfo) {
	e.resolverPending = false
	n := e.scheduler.ResolveAll(e.world, ti)
	e.balance.Adjust(-e.balance.Chaos(), rules.ResolverHarmonyBonus)
	e.scoring.AddBonus(rules.ResolverScoreBonus)

	e.world.Mods = disaster.NewModifiers()
	e.applyModifiers()

	e.eventLog.Append(ti.event(events.EventTypeResolverOverride, "resolver", "", n))
	e.logger.Event("RESOLVER_OVERRIDE", "resolver", fmt.Sprintf("%d disasters resolved", n))
	metrics.Get().RecordResolverPickup()
}

func (e *Engine) view() View {
	waiting := 0
	for _, id := range e.floors.AccessibleFloors() {
		waiting += e.floors.WaitingCount(id)
	}
	return View{
		Now:          e.clock.Elapsed,
		Chaos:        e.balance.Chaos(),
		Harmony:      e.balance.Harmony(),
		Hour:         e.clock.Hour(),
		Waiting:      waiting,
		Riders:       e.elevator.RiderCount(),
		EventWaiting: e.floors.WaitingCount(e.floors.Layout().EventSpace),
		Active:       e.scheduler.ActiveKinds(),
	}
}

// SpawnPassenger places a passenger by hand. Used by scenarios and tests.
func (e *Engine) SpawnPassenger(p passenger.Passenger) (passenger.Passenger, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	row, err := e.spawner.Spawn(p, e.tickInfo())
	if err != nil {
		return passenger.Passenger{}, err
	}
	return *row, nil
}

// Launch starts a prepared disaster, e.g. an overcrowding with a custom crowd size.
// It respects stackability like every other launch.
func (e *Engine) Launch(d disaster.Disaster) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.scheduler.Launch(d, debugTriggerPrefix+string(d.Meta().Kind), e.world, e.tickInfo())
}

// Latest returns the most recent snapshot without taking the tick lock.
func (e *Engine) Latest() Snapshot {
	return *e.latest.Load()
}

// EventLog exposes the log for the network layer and the recap.
func (e *Engine) EventLog() *events.EventLog { return e.eventLog }

// Difficulty returns the session's preset.
func (e *Engine) Difficulty() config.Difficulty { return e.cfg.Difficulty }

func (e *Engine) publish() Snapshot {
	snap := e.snapshot()
	e.latest.Store(&snap)
	return snap
}
