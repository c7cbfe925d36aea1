// internal/game/rules.go
package game

import (
	"github.com/dwarveslive/unit-card-battles/internal/models"
)

// unitComposition validates color identity for a set of cards. Rules:
//   - white and black never share a unit
//   - gray cards join anything, but a unit of only gray cards has no color
//     identity and is invalid
//   - ignoring gray and white, all cards must share one color; each extra
//     off-color card must be covered by a color-mixing allowance granted by
//     a member card
func unitComposition(cards []*models.Card) error {
	hasWhite, hasBlack := false, false
	nonGray := 0
	counts := map[models.Color]int{}
	allowance := 0

	for _, c := range cards {
		if c.Parsed != nil {
			allowance += c.Parsed.OffColorAllowance()
		}
		if c.Color == models.ColorGray {
			continue
		}
		nonGray++
		switch c.Color {
		case models.ColorWhite:
			hasWhite = true
		case models.ColorBlack:
			hasBlack = true
			counts[c.Color]++
		default:
			counts[c.Color]++
		}
	}

	if hasWhite && hasBlack {
		return rejectf(ReasonColorConflict, "white and black cards cannot share a unit")
	}
	if nonGray == 0 {
		return rejectf(ReasonColorConflict, "a unit needs at least one non-gray card")
	}
	if len(counts) == 0 {
		// white plus gray only
		return nil
	}

	// primary identity is the most common colored (non-white, non-gray)
	// color; scan in fixed color order so ties resolve deterministically
	primary := models.Color("")
	for _, color := range models.Colors {
		n := counts[color]
		if n == 0 {
			continue
		}
		if primary == "" || n > counts[primary] {
			primary = color
		}
	}
	offColor := 0
	for color, n := range counts {
		if color != primary {
			offColor += n
		}
	}
	if offColor > allowance {
		return rejectf(ReasonColorConflict, "cards of %d colors exceed the unit's mixing allowance", len(counts))
	}
	return nil
}

// CanFormUnit reports whether the cards may be played together as a new unit.
func CanFormUnit(cards []*models.Card, minSize int) error {
	if len(cards) < minSize {
		return rejectf(ReasonTooFewCards, "a unit needs at least %d cards", minSize)
	}
	return unitComposition(cards)
}

// CanAddCardToUnit reports whether the card may reinforce the unit.
func CanAddCardToUnit(card *models.Card, unit *models.Unit) error {
	members := make([]*models.Card, 0, len(unit.Cards)+1)
	members = append(members, unit.Cards...)
	members = append(members, card)
	return unitComposition(members)
}

// scoreOf computes a player's score: the sum of unit totals minus the sum of
// graveyard card values. Unit totals are assumed fresh; call recomputeUnits
// first when modifiers may have changed.
func scoreOf(p *models.Player) int {
	score := 0
	for _, u := range p.Units {
		score += u.TotalValue
	}
	for _, c := range p.Graveyard {
		score -= c.Value
	}
	return score
}
