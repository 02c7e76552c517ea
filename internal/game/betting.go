package game

import "fmt"

// Stage is the betting phase of a round. Stages only move forward.
type Stage int

const (
	AwaitingBlinds Stage = iota
	PreFlop
	Flop
	Turn
	River
	Showdown
)

func (s Stage) String() string {
	if s < AwaitingBlinds || s > Showdown {
		return fmt.Sprintf("stage(%d)", int(s))
	}
	return [...]string{"awaiting_blinds", "preflop", "flop", "turn", "river", "showdown"}[s]
}

// MarshalText encodes the stage by name.
func (s Stage) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// boardCards is the number of community cards revealed on entering each stage.
func (s Stage) boardCards() int {
	switch s {
	case Flop:
		return 3
	case Turn, River:
		return 1
	default:
		return 0
	}
}

// Action is a player decision.
type Action int

const (
	Fold Action = iota
	Check
	Call
	Raise
)

func (a Action) String() string {
	if a < Fold || a > Raise {
		return fmt.Sprintf("action(%d)", int(a))
	}
	return [...]string{"fold", "check", "call", "raise"}[a]
}

// MarshalText encodes the action by name.
func (a Action) MarshalText() ([]byte, error) {
	return []byte(a.String()), nil
}

// UnmarshalText decodes an action name.
func (a *Action) UnmarshalText(text []byte) error {
	parsed, err := ParseAction(string(text))
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}

// ParseAction converts an action name into an Action.
func ParseAction(s string) (Action, error) {
	switch s {
	case "fold":
		return Fold, nil
	case "check":
		return Check, nil
	case "call":
		return Call, nil
	case "raise", "bet":
		return Raise, nil
	default:
		return 0, fmt.Errorf("unknown action %q", s)
	}
}

// UnmarshalText decodes a stage name.
func (s *Stage) UnmarshalText(text []byte) error {
	parsed, err := ParseStage(string(text))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// ParseStage converts a stage name into a Stage.
func ParseStage(name string) (Stage, error) {
	for s := AwaitingBlinds; s <= Showdown; s++ {
		if s.String() == name {
			return s, nil
		}
	}
	return 0, fmt.Errorf("unknown stage %q", name)
}
