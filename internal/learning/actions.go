package learning

import (
	"fmt"
)

// Action is one of the four cardinal headings an agent can be commanded
// to fly. The action space is deliberately fixed: the learner's whole job
// is choosing between these four per cell.
type Action int

const (
	North Action = iota
	East
	South
	West
)

// Actions lists all actions in a stable order
var Actions = []Action{North, East, South, West}

// Heading returns the magnetic heading in degrees the action commands
func (a Action) Heading() float64 {
	switch a {
	case North:
		return 0
	case East:
		return 90
	case South:
		return 180
	case West:
		return 270
	default:
		return 0
	}
}

// String returns the stable single-letter key used in persisted value
// tables. External tooling round-trips on these keys, so they must not
// change.
func (a Action) String() string {
	switch a {
	case North:
		return "N"
	case East:
		return "E"
	case South:
		return "S"
	case West:
		return "W"
	default:
		return "?"
	}
}

// ParseAction converts a persisted action key back to an Action
func ParseAction(s string) (Action, error) {
	switch s {
	case "N":
		return North, nil
	case "E":
		return East, nil
	case "S":
		return South, nil
	case "W":
		return West, nil
	default:
		return North, fmt.Errorf("unknown action key: %q", s)
	}
}

// ActionFromBearing maps a continuous bearing onto the cardinal action
// that best explains it: the quadrant centred on each cardinal heading.
// This reconstructs which discrete action caused an observed move, since
// physical movement is continuous while the action space is not.
func ActionFromBearing(bearingDeg float64) Action {
	switch {
	case bearingDeg <= 45 || bearingDeg > 315:
		return North
	case bearingDeg <= 135:
		return East
	case bearingDeg <= 225:
		return South
	default:
		return West
	}
}
