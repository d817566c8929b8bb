package engine

import (
	"math/rand/v2"
	"slices"

	"github.com/MRamiBalles/TowerMadness/internal/disaster"
	"github.com/MRamiBalles/TowerMadness/internal/domain/elevator"
	"github.com/MRamiBalles/TowerMadness/internal/domain/floor"
	"github.com/MRamiBalles/TowerMadness/internal/domain/passenger"
	"github.com/MRamiBalles/TowerMadness/internal/domain/simerr"
	"github.com/MRamiBalles/TowerMadness/internal/events"
	"github.com/MRamiBalles/TowerMadness/internal/platform/config"
	"github.com/MRamiBalles/TowerMadness/internal/platform/logger"
	"github.com/MRamiBalles/TowerMadness/internal/platform/metrics"
)

const (
	maxWaitingPerFloor = 8
	minSpawnInterval   = 1.0
	maxSpawnsPerTick   = 8
	chaosIntervalSlope = 0.02
	flowSpawnBonus     = 1.25

	vipChance         = 0.05
	resolverChance    = 0.05
	resolverMinChaos  = 60.0
	vipPatience       = 120.0
	escapedPatience   = 60.0
	publicLowerFloors = 4
)

// vipProfile is a named guest who lives on a given floor label and rides to one of
// a few favourite floors.
type vipProfile struct {
	Name         string
	Home         int
	Destinations []int
}

var vipProfiles = []vipProfile{
	{"John the Doorman", 0, []int{1, 2, 3}},
	{"Xeno", 2, []int{14, 15, 17}},
	{"Vitalia", 3, []int{11, 8, 5}},
	{"Vitaly", 4, []int{5, 7, 2}},
	{"Xenia", 4, []int{6, 2, 16}},
	{"Scott", 6, []int{2, 16, 17}},
	{"Tony", 7, []int{4, 8, 9}},
	{"Cindy", 7, []int{4, 9, 10}},
	{"Laurence", 11, []int{10, 8, 12}},
	{"Xeno", 16, []int{14, 15, 17}},
}

// spawnConditions is what the spawner reads from the rest of the tick.
type spawnConditions struct {
	Chaos      float64
	Flow       bool
	Unresolved bool // some disaster is not yet resolved
	TimeWeight float64
	Mods       *disaster.Modifiers
}

// SpawnSystem is the PassengerSpawner. It also owns patience: every live passenger
// loses patience each tick and abandons when it runs out.
type SpawnSystem struct {
	eventLog   *events.EventLog
	logger     *logger.Logger
	floors     *floor.Registry
	passengers *passenger.Table
	elevator   *elevator.Elevator
	rng        *rand.Rand
	difficulty config.Difficulty

	timer    float64
	disabled bool
}

// NewSpawnSystem creates a spawner over the session's arena tables.
func NewSpawnSystem(eventLog *events.EventLog, log *logger.Logger, floors *floor.Registry,
	table *passenger.Table, car *elevator.Elevator, rng *rand.Rand, difficulty config.Difficulty) *SpawnSystem {
	return &SpawnSystem{
		eventLog:   eventLog,
		logger:     log,
		floors:     floors,
		passengers: table,
		elevator:   car,
		rng:        rng,
		difficulty: difficulty,
	}
}

// SetEnabled turns random spawning on or off. Patience keeps draining either way.
func (s *SpawnSystem) SetEnabled(on bool) { s.disabled = !on }

// Interval returns the seconds between spawns under the given conditions.
func (s *SpawnSystem) Interval(c spawnConditions) float64 {
	base := max(minSpawnInterval, s.difficulty.SpawnInterval-c.Chaos*chaosIntervalSlope)
	rate := c.TimeWeight
	if rate <= 0 {
		rate = 1
	}
	if c.Mods != nil {
		rate *= c.Mods.SpawnMultiplier
	}
	if c.Flow {
		rate *= flowSpawnBonus
	}
	return base / rate
}

// Tick drains patience and spawns whatever the interval allows.
func (s *SpawnSystem) Tick(dt float64, ti tickInfo, c spawnConditions) {
	s.drainPatience(dt, ti, c.Mods)

	if s.disabled {
		return
	}
	s.timer += dt
	interval := s.Interval(c)
	spawned := 0
	for s.timer >= interval && spawned < maxSpawnsPerTick {
		s.timer -= interval
		s.spawnRandom(ti, c)
		spawned++
	}
	// after a stall, keep one interval of backlog instead of a burst next tick
	s.timer = min(s.timer, interval)
}

func (s *SpawnSystem) drainPatience(dt float64, ti tickInfo, mods *disaster.Modifiers) {
	for _, id := range s.passengers.IDs() {
		p, _ := s.passengers.Get(id)
		if p.State.Terminal() {
			continue
		}
		factor := 1.0
		if p.State == passenger.StateWaiting && mods != nil {
			factor = mods.Drain(p.Origin)
		}
		p.Patience -= dt * factor
		if p.Patience <= 0 {
			p.Patience = 0
			s.abandon(p, ti, "patience", mods != nil && mods.TramplingRisk)
		}
	}
}

// abandon ends a passenger's wait. The event goes out before the row is dropped so
// scoring and balance still see it.
func (s *SpawnSystem) abandon(p *passenger.Passenger, ti tickInfo, cause string, trampling bool) {
	prev := p.State
	if err := p.Transition(passenger.StateAbandoned); err != nil {
		s.logger.Warnf("abandon: %v", err)
		return
	}
	floorID := p.Origin
	switch prev {
	case passenger.StateWaiting:
		s.floors.RemoveWaiting(p.Origin, p.ID)
	case passenger.StateBoarding, passenger.StateRiding:
		s.elevator.Eject(p)
		if f, ok := s.elevator.Floor(); ok {
			floorID = f
		}
	}
	s.eventLog.Append(ti.event(events.EventTypePassengerAbandoned, passengerActor(p.ID), floorTarget(floorID),
		events.AbandonPayload{
			PassengerType: string(p.Type),
			Floor:         floorID,
			State:         string(prev),
			Trampling:     trampling,
			Cause:         cause,
		}))
	s.passengers.Remove(p.ID)
	metrics.Get().RecordAbandonment()
}

func (s *SpawnSystem) spawnRandom(ti tickInfo, c spawnConditions) {
	if s.floors.Len() < floor.MinFloors {
		return
	}
	var candidates []int
	for _, id := range s.floors.AccessibleFloors() {
		if s.floors.WaitingCount(id) < maxWaitingPerFloor {
			candidates = append(candidates, id)
		}
	}
	if len(candidates) == 0 {
		return
	}
	origin := candidates[s.rng.IntN(len(candidates))]
	if c.Mods != nil && c.Mods.CrowdFloor >= 0 && s.floors.Accessible(c.Mods.CrowdFloor) &&
		s.floors.WaitingCount(c.Mods.CrowdFloor) < maxWaitingPerFloor && s.rng.Float64() < 0.5 {
		origin = c.Mods.CrowdFloor
	}

	p := s.draw(origin, c)
	if _, err := s.spawn(p, ti); err != nil {
		s.logger.Warnf("spawn at floor %d: %v", origin, err)
	}
}

// draw picks a type and destination compatible with origin.
func (s *SpawnSystem) draw(origin int, c spawnConditions) passenger.Passenger {
	layout := s.floors.Layout()
	p := passenger.Passenger{Type: passenger.TypeRegular, Origin: origin}

	evil := 0.2 + c.Chaos/200
	good := 0.2 + c.Chaos/150
	roll := s.rng.Float64()

	switch {
	case c.Unresolved && c.Chaos >= resolverMinChaos && s.rng.Float64() < resolverChance:
		p.Type = passenger.TypeResolver
		p.Destination = layout.Roof
		if origin == layout.Roof {
			p.Destination = layout.Roof - 1
		}
		return s.withPatience(p)
	case roll < evil && origin == layout.Basement:
		p.Type = passenger.TypeEvilRobot
		p.Destination = s.lowerPublicFloor()
		return s.withPatience(p)
	case roll < evil+good && origin != layout.Robotics:
		p.Type = passenger.TypeGoodRobot
		p.Destination = layout.Robotics
		return s.withPatience(p)
	case roll < evil+good+vipChance:
		if vip, ok := s.vipAt(origin); ok {
			return vip
		}
	}

	p.Destination = s.otherFloor(origin)
	return s.withPatience(p)
}

func (s *SpawnSystem) vipAt(origin int) (passenger.Passenger, bool) {
	layout := s.floors.Layout()
	label := layout.Floors[origin].Label

	var home []vipProfile
	for _, v := range vipProfiles {
		if v.Home == label {
			home = append(home, v)
		}
	}
	if len(home) == 0 {
		return passenger.Passenger{}, false
	}
	v := home[s.rng.IntN(len(home))]
	var dests []int
	for _, l := range v.Destinations {
		if id, ok := layout.IDForLabel(l); ok && id != origin {
			dests = append(dests, id)
		}
	}
	if len(dests) == 0 {
		return passenger.Passenger{}, false
	}
	return passenger.Passenger{
		Type:        passenger.TypeVIP,
		Name:        v.Name,
		Origin:      origin,
		Destination: dests[s.rng.IntN(len(dests))],
		Patience:    vipPatience,
	}, true
}

func (s *SpawnSystem) withPatience(p passenger.Passenger) passenger.Passenger {
	p.Patience = s.difficulty.Patience * (0.5 + s.rng.Float64())
	return p
}

// otherFloor picks a floor other than origin. A one-floor building has none and
// gets origin back, which Spawn refuses.
func (s *SpawnSystem) otherFloor(origin int) int {
	n := s.floors.Len()
	if n < floor.MinFloors {
		return origin
	}
	d := s.rng.IntN(n - 1)
	if d >= origin {
		d++
	}
	return d
}

func (s *SpawnSystem) lowerPublicFloor() int {
	basement := s.floors.Layout().Basement
	top := min(basement+publicLowerFloors, s.floors.Len()-1)
	if top <= basement {
		return basement
	}
	return basement + 1 + s.rng.IntN(top-basement)
}

// Spawn places an explicit passenger. Zero patience takes the difficulty default.
func (s *SpawnSystem) Spawn(p passenger.Passenger, ti tickInfo) (*passenger.Passenger, error) {
	if p.Type == "" {
		p.Type = passenger.TypeRegular
	}
	if p.Patience <= 0 {
		p.Patience = s.difficulty.Patience
	}
	return s.spawn(p, ti)
}

func (s *SpawnSystem) spawn(p passenger.Passenger, ti tickInfo) (*passenger.Passenger, error) {
	const op = "spawner.Spawn"
	if !s.floors.Valid(p.Origin) || !s.floors.Valid(p.Destination) {
		return nil, simerr.New(simerr.CodeInvalidState, op, "floor out of range: %d -> %d", p.Origin, p.Destination)
	}
	if p.Origin == p.Destination {
		return nil, simerr.New(simerr.CodeInvalidState, op, "origin and destination are both %d", p.Origin)
	}
	if !s.floors.Accessible(p.Origin) {
		return nil, simerr.New(simerr.CodeInvalidState, op, "floor %d is closed", p.Origin)
	}
	p.SpawnedAt = ti.now
	row := s.passengers.Add(p)
	s.floors.AddWaiting(row.Origin, row.ID)

	s.eventLog.Append(ti.event(events.EventTypePassengerSpawned, passengerActor(row.ID), floorTarget(row.Origin), *row))
	metrics.Get().RecordSpawn()
	return row, nil
}

// ReleaseEscaped lets n evil robots loose on floorID, heading for the public floors.
func (s *SpawnSystem) ReleaseEscaped(floorID, n int, ti tickInfo) {
	released := 0
	for range n {
		dest := s.lowerPublicFloor()
		if dest == floorID {
			dest = s.otherFloor(floorID)
		}
		_, err := s.spawn(passenger.Passenger{
			Type:        passenger.TypeEvilRobot,
			Origin:      floorID,
			Destination: dest,
			Patience:    escapedPatience,
			Escaped:     true,
		}, ti)
		if err != nil {
			s.logger.Warnf("release robot: %v", err)
			continue
		}
		released++
	}
	if released > 0 {
		s.eventLog.Append(ti.event(events.EventTypeRobotsEscaped, "uprising", floorTarget(floorID), released))
		s.logger.Event("ROBOTS_ESCAPED", floorTarget(floorID), "evil robots broke out of the basement")
	}
}

// Evacuate moves everyone waiting on floorID to the nearest accessible floor above that
// is not their destination. With nowhere to go they abandon.
func (s *SpawnSystem) Evacuate(floorID int, cause string, ti tickInfo, trampling bool) {
	for _, id := range s.floors.Waiting(floorID) {
		p, ok := s.passengers.Get(id)
		if !ok {
			s.floors.RemoveWaiting(floorID, id)
			continue
		}
		target, found := s.refuge(floorID, p.Destination)
		if !found {
			s.abandon(p, ti, cause, trampling)
			continue
		}
		s.floors.RemoveWaiting(floorID, id)
		p.Origin = target
		s.floors.AddWaiting(target, id)
		s.eventLog.Append(ti.event(events.EventTypePassengerEvacuated, passengerActor(id), floorTarget(target), cause))
	}
}

func (s *SpawnSystem) refuge(from, destination int) (int, bool) {
	at := from
	for {
		next, ok := s.floors.NearestAccessibleAbove(at)
		if !ok {
			return 0, false
		}
		if next != destination {
			return next, true
		}
		at = next
	}
}

// waitingOn returns the passengers waiting on a floor in arrival order.
func (s *SpawnSystem) waitingOn(floorID int) []*passenger.Passenger {
	ids := s.floors.Waiting(floorID)
	out := make([]*passenger.Passenger, 0, len(ids))
	for _, id := range ids {
		if p, ok := s.passengers.Get(id); ok && p.State == passenger.StateWaiting {
			out = append(out, p)
		}
	}
	return slices.Clip(out)
}
