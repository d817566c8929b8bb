package disaster

// PowerOutage cuts the elevator for a fixed time.
type PowerOutage struct {
	Base
	ParentID string `json:"parent_id,omitempty"`
}

func (p *PowerOutage) Initialize(w *World) {
	p.init(KindPowerOutage, SeverityMedium, 0, scaled(p.Severity, 6, 10, 15))
}

func (p *PowerOutage) Update(dt float64, w *World) { p.advance(dt, w, p) }
func (p *PowerOutage) Resolve(w *World)            { p.forceResolve(w, p) }

func (p *PowerOutage) activate(w *World) {}

func (p *PowerOutage) tickActive(dt float64, w *World) bool {
	w.Mods.PowerOut = true
	return false
}

func (p *PowerOutage) tickResolving(float64, *World) bool { return true }

// rollback has nothing to undo: the outage only contributes a per-tick modifier.
func (p *PowerOutage) rollback(*World) {}

// Malfunction makes the car crawl.
type Malfunction struct {
	Base
	SpeedFactor float64 `json:"speed_factor"`
}

func (m *Malfunction) Initialize(w *World) {
	m.init(KindMalfunction, SeverityMedium, 0, scaled(m.Severity, 12, 20, 30))
	m.SpeedFactor = scaled(m.Severity, 0.6, 0.4, 0.25)
}

func (m *Malfunction) Update(dt float64, w *World) { m.advance(dt, w, m) }
func (m *Malfunction) Resolve(w *World)            { m.forceResolve(w, m) }

func (m *Malfunction) activate(w *World) {}

func (m *Malfunction) tickActive(dt float64, w *World) bool {
	w.Mods.SpeedFactor *= m.SpeedFactor
	return false
}

func (m *Malfunction) tickResolving(float64, *World) bool { return true }
func (m *Malfunction) rollback(*World)                    {}
