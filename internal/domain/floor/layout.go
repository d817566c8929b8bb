package floor

import "fmt"

// Theme tags a floor for spawning, scoring and content generation.
type Theme string

const (
	ThemeNeutral  Theme = "neutral"
	ThemeBasement Theme = "basement" // robot fight club, evil robots start here
	ThemeStreet   Theme = "street"
	ThemeEvent    Theme = "event" // hackathons and crowds gather here
	ThemeRobotics Theme = "robotics"
	ThemeCreative Theme = "creative"
	ThemeLab      Theme = "lab"
	ThemeParty    Theme = "party"
)

// Spec describes one floor at building init.
type Spec struct {
	Label int    `json:"label"`
	Name  string `json:"name"`
	Theme Theme  `json:"theme"`
}

// Layout is the static shape of a building. Special floors are floor ids, not labels.
type Layout struct {
	Floors     []Spec `json:"floors"`
	Basement   int    `json:"basement"`
	Robotics   int    `json:"robotics"`
	EventSpace int    `json:"event_space"`
	Roof       int    `json:"roof"`
}

// MinFloors is the smallest building anyone can ride in.
const MinFloors = 2

// Validate checks that the layout has somewhere to ride to and that its special floors exist.
func (l Layout) Validate() error {
	n := len(l.Floors)
	if n < MinFloors {
		return fmt.Errorf("layout has %d floors, need at least %d", n, MinFloors)
	}
	special := []struct {
		name string
		id   int
	}{{"basement", l.Basement}, {"robotics", l.Robotics}, {"event space", l.EventSpace}, {"roof", l.Roof}}
	for _, f := range special {
		if f.id < 0 || f.id >= n {
			return fmt.Errorf("%s floor %d outside the %d-floor layout", f.name, f.id, n)
		}
	}
	return nil
}

// FrontierTower is the default building: basement -1 up to the roof at 17, with no 13th floor.
func FrontierTower() Layout {
	specs := []Spec{
		{-1, "Basement - Robot Fight Club", ThemeBasement},
		{0, "Street Level", ThemeStreet},
		{1, "Lobby", ThemeNeutral},
		{2, "The Spaceship", ThemeEvent},
		{3, "Private Offices", ThemeNeutral},
		{4, "Robotics Lab", ThemeRobotics},
		{5, "Gym & Movement", ThemeNeutral},
		{6, "Arts & Music", ThemeCreative},
		{7, "Maker Space", ThemeCreative},
		{8, "Biotech Labs", ThemeLab},
		{9, "AI & Autonomous Systems", ThemeLab},
		{10, "VCs & Accelerator", ThemeNeutral},
		{11, "Health & Longevity", ThemeNeutral},
		{12, "Crypto & DeFi", ThemeNeutral},
		{14, "Human Flourishing", ThemeNeutral},
		{15, "Coworking & Library", ThemeNeutral},
		{16, "d/acc Lounge", ThemeNeutral},
		{17, "Roof - Secret Rave", ThemeParty},
	}
	return Layout{Floors: specs, Basement: 0, Robotics: 5, EventSpace: 3, Roof: len(specs) - 1}
}

// Uniform builds an n-floor building numbered 0..n-1 with the special floors spread
// over it: basement at the bottom, robotics at 4, event space at 2, party on the roof.
func Uniform(n int) Layout {
	if n < MinFloors {
		n = MinFloors
	}
	specs := make([]Spec, n)
	for i := range specs {
		specs[i] = Spec{Label: i, Name: fmt.Sprintf("Floor %d", i), Theme: ThemeNeutral}
	}
	l := Layout{
		Floors:     specs,
		Basement:   0,
		Robotics:   min(4, n-1),
		EventSpace: min(2, n-1),
		Roof:       n - 1,
	}
	specs[l.Basement].Theme = ThemeBasement
	specs[l.EventSpace].Theme = ThemeEvent
	specs[l.Robotics].Theme = ThemeRobotics
	specs[l.Roof].Theme = ThemeParty
	return l
}

// IDForLabel maps a display number (e.g. 17 for the roof) to its floor id.
func (l Layout) IDForLabel(label int) (int, bool) {
	for id, s := range l.Floors {
		if s.Label == label {
			return id, true
		}
	}
	return 0, false
}
