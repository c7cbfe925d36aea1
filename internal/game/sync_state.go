// internal/game/sync_state.go
package game

import (
	"github.com/google/uuid"

	"github.com/dwarveslive/unit-card-battles/internal/models"
)

// ObfCard holds card info for snapshots. Known is false for cards the
// requesting player may not see (other players' hands).
type ObfCard struct {
	ID      uuid.UUID `json:"id"`
	Known   bool      `json:"known"`
	Name    string    `json:"name,omitempty"`
	Color   string    `json:"color,omitempty"`
	Power   int       `json:"power,omitempty"`
	Value   int       `json:"value,omitempty"`
	Ability string    `json:"ability,omitempty"`
}

// ObfUnit is a board unit in a snapshot. Board cards are always visible.
type ObfUnit struct {
	ID         uuid.UUID `json:"id"`
	Cards      []ObfCard `json:"cards"`
	TotalValue int       `json:"totalValue"`
}

// ObfPlayerState represents one player from the perspective of a requesting user.
type ObfPlayerState struct {
	PlayerID      uuid.UUID `json:"player_id"`
	Name          string    `json:"name"`
	HandSize      int       `json:"hand_size"`
	Connected     bool      `json:"connected"`
	IsCurrentTurn bool      `json:"isCurrentTurn"`
	Score         int       `json:"score"`
	Units         []ObfUnit `json:"units"`
	Graveyard     []ObfCard `json:"graveyard"`
	RevealedHand  []ObfCard `json:"revealedHand,omitempty"` // only for self
}

// ObfGameState is returned by GetCurrentObfuscatedGameState.
type ObfGameState struct {
	GameID              uuid.UUID        `json:"game_id"`
	Started             bool             `json:"started"`
	GameOver            bool             `json:"gameOver"`
	CurrentPlayerID     uuid.UUID        `json:"currentPlayerId"`
	Turn                int              `json:"turn"`
	Phase               string           `json:"phase"`
	DeckSize            int              `json:"deckSize"`
	DiscardSize         int              `json:"discardSize"`
	DiscardTop          *ObfCard         `json:"discardTop,omitempty"`
	Players             []ObfPlayerState `json:"players"`
	FinalRoundActive    bool             `json:"finalRoundActive"`
	FinalRoundCallerID  uuid.UUID        `json:"finalRoundCallerId,omitempty"`
	FinalRoundTurnsLeft int              `json:"finalRoundTurnsLeft,omitempty"`
	BattleInProgress    bool             `json:"battleInProgress"`
	KidnapPending       bool             `json:"kidnapPending"`
	ChoicePending       bool             `json:"choicePending"`
}

// GetCurrentObfuscatedGameState generates a snapshot of the game for the requesting user.
func (g *Game) GetCurrentObfuscatedGameState(forUser uuid.UUID) ObfGameState {
	g.Mu.Lock()
	defer g.Mu.Unlock()
	return g.obfuscatedStateLocked(forUser)
}

// obfuscatedStateLocked builds the snapshot. Assumes lock is held.
func (g *Game) obfuscatedStateLocked(forUser uuid.UUID) ObfGameState {
	obf := ObfGameState{
		GameID:              g.ID,
		Started:             g.Started,
		GameOver:            g.GameOver,
		Turn:                g.TurnID,
		Phase:               string(g.Phase),
		DeckSize:            len(g.Deck),
		DiscardSize:         len(g.DiscardPile),
		FinalRoundActive:    g.FinalRoundActive,
		FinalRoundCallerID:  g.FinalRoundCallerID,
		FinalRoundTurnsLeft: g.FinalRoundTurnsLeft,
		BattleInProgress:    g.Battle != nil,
		KidnapPending:       g.PendingKidnap != nil,
		ChoicePending:       g.PendingEffect != nil,
	}
	if current := g.currentPlayer(); current != nil {
		obf.CurrentPlayerID = current.ID
	}

	if len(g.DiscardPile) > 0 {
		top := g.DiscardPile[len(g.DiscardPile)-1]
		obf.DiscardTop = g.obfKnown(top)
	}

	for i, pl := range g.Players {
		ps := ObfPlayerState{
			PlayerID:      pl.ID,
			Name:          pl.Name,
			HandSize:      len(pl.Hand),
			Connected:     pl.Connected,
			IsCurrentTurn: i == g.CurrentPlayerIndex,
			Score:         scoreOf(pl),
		}
		for _, u := range pl.Units {
			ou := ObfUnit{ID: u.ID, TotalValue: u.TotalValue}
			for _, c := range u.Cards {
				ou.Cards = append(ou.Cards, *g.obfKnown(c))
			}
			ps.Units = append(ps.Units, ou)
		}
		for _, c := range pl.Graveyard {
			ps.Graveyard = append(ps.Graveyard, *g.obfKnown(c))
		}
		if pl.ID == forUser {
			ps.RevealedHand = make([]ObfCard, len(pl.Hand))
			for j, c := range pl.Hand {
				ps.RevealedHand[j] = *g.obfKnown(c)
			}
		}
		obf.Players = append(obf.Players, ps)
	}

	return obf
}

// obfKnown renders a fully visible card with effective attributes.
func (g *Game) obfKnown(c *models.Card) *ObfCard {
	return &ObfCard{
		ID:      c.ID,
		Known:   true,
		Name:    c.Name,
		Color:   string(c.Color),
		Power:   g.EffectivePower(c),
		Value:   g.EffectiveValue(c),
		Ability: c.AbilityText,
	}
}
