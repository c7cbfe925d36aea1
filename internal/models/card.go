package models

import (
	"github.com/google/uuid"

	"github.com/dwarveslive/unit-card-battles/internal/ability"
)

// Color identifies a card's faction. Gray cards have no color identity of
// their own and join any unit.
type Color string

const (
	ColorRed   Color = "red"
	ColorBlue  Color = "blue"
	ColorGreen Color = "green"
	ColorBlack Color = "black"
	ColorWhite Color = "white"
	ColorGray  Color = "gray"
)

// Colors lists the five deck colors in build order. Gray is not part of the
// base deck rotation.
var Colors = []Color{ColorRed, ColorBlue, ColorGreen, ColorBlack, ColorWhite}

// Card is a single playing card. Power decides battles, Value feeds scoring.
// Parsed is the structured form of AbilityText, populated once at deck build.
type Card struct {
	ID          uuid.UUID        `json:"id"`
	Name        string           `json:"name"`
	Color       Color            `json:"color"`
	Power       int              `json:"power"`
	Value       int              `json:"value"`
	AbilityText string           `json:"abilityText,omitempty"`
	Parsed      *ability.Ability `json:"-"`
}

// HasAbilityType reports whether the card's parsed ability is of the given
// category.
func (c *Card) HasAbilityType(t ability.Type) bool {
	return c.Parsed != nil && c.Parsed.Type == t
}
