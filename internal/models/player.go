package models

import (
	"github.com/coder/websocket"
	"github.com/google/uuid"
)

type Player struct {
	ID        uuid.UUID       `json:"id"`
	Name      string          `json:"name"`
	Hand      []*Card         `json:"hand"`
	Units     []*Unit         `json:"units"`
	Graveyard []*Card         `json:"graveyard"`
	Connected bool            `json:"connected"`
	Conn      *websocket.Conn `json:"-"`

	User *User `json:"-"`
}

// RemoveFromHand detaches the hand card with the given id and reports
// whether it was present.
func (p *Player) RemoveFromHand(id uuid.UUID) (*Card, bool) {
	for i, c := range p.Hand {
		if c.ID == id {
			p.Hand = append(p.Hand[:i], p.Hand[i+1:]...)
			return c, true
		}
	}
	return nil, false
}

// FindInHand returns the hand card with the given id, or nil.
func (p *Player) FindInHand(id uuid.UUID) *Card {
	for _, c := range p.Hand {
		if c.ID == id {
			return c
		}
	}
	return nil
}

// FindUnit returns the player's unit with the given id, or nil.
func (p *Player) FindUnit(id uuid.UUID) *Unit {
	for _, u := range p.Units {
		if u.ID == id {
			return u
		}
	}
	return nil
}

// RemoveUnit detaches the unit with the given id and reports whether it was
// present.
func (p *Player) RemoveUnit(id uuid.UUID) (*Unit, bool) {
	for i, u := range p.Units {
		if u.ID == id {
			p.Units = append(p.Units[:i], p.Units[i+1:]...)
			return u, true
		}
	}
	return nil, false
}
