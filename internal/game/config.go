// internal/game/config.go
package game

import "fmt"

// Config defines the per-match game knobs. Zero values are replaced by
// defaults in NewGame.
type Config struct {
	HandSize       int   `json:"handSize"`       // cards dealt to each player
	DrawsPerTurn   int   `json:"drawsPerTurn"`   // draws before the draw phase auto-advances
	AttacksPerTurn int   `json:"attacksPerTurn"` // attacks allowed per turn
	WinThreshold   int   `json:"winThreshold"`   // score that triggers the final round
	Colors         int   `json:"colors"`         // number of deck colors
	CardsPerColor  int   `json:"cardsPerColor"`  // cards generated per color
	Seed           int64 `json:"seed"`           // shuffle seed, 0 => time-based
	MinUnitSize    int   `json:"minUnitSize"`    // cards required to form a unit
}

// DefaultConfig returns the standard ruleset.
func DefaultConfig() Config {
	return Config{
		HandSize:       6,
		DrawsPerTurn:   2,
		AttacksPerTurn: 1,
		WinThreshold:   50,
		Colors:         5,
		CardsPerColor:  10,
		MinUnitSize:    3,
	}
}

// Update applies the provided overrides to the config. Unknown keys are
// ignored; present keys must carry the right type.
func (c *Config) Update(overrides map[string]interface{}) error {
	assignInt := func(field *int, key string, minVal int) error {
		val, exists := overrides[key]
		if !exists || val == nil {
			return nil
		}
		// JSON numbers arrive as float64
		switch v := val.(type) {
		case float64:
			*field = int(v)
		case int:
			*field = v
		default:
			return fmt.Errorf("invalid type for %s", key)
		}
		if *field < minVal {
			return fmt.Errorf("%s must be >= %d", key, minVal)
		}
		return nil
	}

	if err := assignInt(&c.HandSize, "handSize", 1); err != nil {
		return err
	}
	if err := assignInt(&c.DrawsPerTurn, "drawsPerTurn", 1); err != nil {
		return err
	}
	if err := assignInt(&c.AttacksPerTurn, "attacksPerTurn", 1); err != nil {
		return err
	}
	if err := assignInt(&c.WinThreshold, "winThreshold", 1); err != nil {
		return err
	}
	if err := assignInt(&c.Colors, "colors", 1); err != nil {
		return err
	}
	if err := assignInt(&c.CardsPerColor, "cardsPerColor", 1); err != nil {
		return err
	}
	if err := assignInt(&c.MinUnitSize, "minUnitSize", 2); err != nil {
		return err
	}
	if val, exists := overrides["seed"]; exists && val != nil {
		f, ok := val.(float64)
		if !ok {
			return fmt.Errorf("invalid type for seed")
		}
		c.Seed = int64(f)
	}
	return nil
}
