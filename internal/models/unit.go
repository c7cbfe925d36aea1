package models

import "github.com/google/uuid"

// Unit is a formed group of cards on a player's board. TotalValue is a
// cached sum of member values and must be recomputed whenever membership or
// a member's effective value changes.
type Unit struct {
	ID         uuid.UUID `json:"id"`
	PlayerID   uuid.UUID `json:"playerId"`
	Cards      []*Card   `json:"cards"`
	TotalValue int       `json:"totalValue"`
}

// Recompute refreshes TotalValue using valueOf, which resolves a card's
// effective value including any active modifiers.
func (u *Unit) Recompute(valueOf func(*Card) int) {
	total := 0
	for _, c := range u.Cards {
		total += valueOf(c)
	}
	u.TotalValue = total
}

// FindCard returns the member card with the given id, or nil.
func (u *Unit) FindCard(id uuid.UUID) *Card {
	for _, c := range u.Cards {
		if c.ID == id {
			return c
		}
	}
	return nil
}

// RemoveCard detaches the card with the given id and reports whether it was
// a member. TotalValue is left stale until Recompute.
func (u *Unit) RemoveCard(id uuid.UUID) (*Card, bool) {
	for i, c := range u.Cards {
		if c.ID == id {
			u.Cards = append(u.Cards[:i], u.Cards[i+1:]...)
			return c, true
		}
	}
	return nil, false
}
