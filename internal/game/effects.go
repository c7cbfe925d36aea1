// internal/game/effects.go
package game

import (
	"log"
	"strings"

	"github.com/google/uuid"

	"github.com/dwarveslive/unit-card-battles/internal/ability"
	"github.com/dwarveslive/unit-card-battles/internal/models"
)

// modKey addresses one attribute of one card in the modifier ledgers.
type modKey struct {
	cardID uuid.UUID
	attr   ability.Attribute
}

// EffectContext carries the resolved targets for one ability execution.
type EffectContext struct {
	SourcePlayer *models.Player
	TargetPlayer *models.Player
	TargetCard   *models.Card
	TargetUnit   *models.Unit
}

// EffectResult reports the outcome of executing one ability.
type EffectResult struct {
	Success       bool
	Reason        string
	RequiresInput bool

	// Pending is set when RequiresInput is true and holds the suspended
	// effect awaiting a player choice.
	Pending *PendingEffect
}

// PendingEffect is an effect suspended until its chooser answers with a
// card selection.
type PendingEffect struct {
	ChooserID      uuid.UUID
	SourcePlayerID uuid.UUID
	SourceCardID   uuid.UUID
	Effect         ability.Effect
}

// abilityOf resolves the card's active ability, honoring a copied ability
// for the current turn if one is in place.
func (g *Game) abilityOf(c *models.Card) *ability.Ability {
	if a, ok := g.copiedAbilities[c.ID]; ok {
		return a
	}
	return c.Parsed
}

// EffectivePower is the card's printed power plus permanent and this-turn
// modifiers, floored at zero.
func (g *Game) EffectivePower(c *models.Card) int {
	p := c.Power + g.permMods[modKey{c.ID, ability.AttrPower}] + g.tempMods[modKey{c.ID, ability.AttrPower}]
	if p < 0 {
		return 0
	}
	return p
}

// EffectiveValue is the card's printed value plus permanent and this-turn
// modifiers, floored at zero.
func (g *Game) EffectiveValue(c *models.Card) int {
	v := c.Value + g.permMods[modKey{c.ID, ability.AttrValue}] + g.tempMods[modKey{c.ID, ability.AttrValue}]
	if v < 0 {
		return 0
	}
	return v
}

// isImmune reports whether the target card blocks abilities originating
// from cards of the given color.
func (g *Game) isImmune(target *models.Card, sourceColor models.Color) bool {
	a := g.abilityOf(target)
	return a != nil && a.ImmuneColor() == string(sourceColor)
}

// executeAbility runs every effect of the ability against the context.
// Immunity on the target card blocks the whole ability, not single effects.
// Assumes lock is held.
func (g *Game) executeAbility(source *models.Card, a *ability.Ability, ctx EffectContext) EffectResult {
	if a == nil || len(a.Effects) == 0 {
		return EffectResult{Success: false, Reason: "no_effects"}
	}
	if ctx.TargetCard != nil && ctx.TargetCard != source && g.isImmune(ctx.TargetCard, source.Color) {
		return EffectResult{Success: false, Reason: ReasonBlockedImmunity}
	}

	res := EffectResult{Success: true}
	for _, eff := range a.Effects {
		r := g.executeEffect(source, eff, ctx)
		if r.RequiresInput {
			return r
		}
		if !r.Success {
			res = r
		}
	}
	return res
}

// executeEffect applies a single effect. Assumes lock is held.
func (g *Game) executeEffect(source *models.Card, eff ability.Effect, ctx EffectContext) EffectResult {
	switch eff.Type {
	case ability.EffectModifyAttribute:
		return g.applyAttributeModifier(source, eff, ctx)
	case ability.EffectDrawCard:
		return g.effectDraw(ctx.SourcePlayer, eff.Amount)
	case ability.EffectSteal:
		return g.effectSteal(source, eff, ctx)
	case ability.EffectDestroy:
		return g.effectDestroy(source, eff, ctx)
	case ability.EffectDiscard:
		if ctx.TargetPlayer == nil {
			return EffectResult{Success: false, Reason: "no_valid_target"}
		}
		return EffectResult{Success: true, RequiresInput: true, Pending: &PendingEffect{
			ChooserID:      ctx.TargetPlayer.ID,
			SourcePlayerID: ctx.SourcePlayer.ID,
			SourceCardID:   source.ID,
			Effect:         eff,
		}}
	case ability.EffectRevive:
		if len(ctx.SourcePlayer.Graveyard) == 0 {
			return EffectResult{Success: false, Reason: "graveyard_empty"}
		}
		return EffectResult{Success: true, RequiresInput: true, Pending: &PendingEffect{
			ChooserID:      ctx.SourcePlayer.ID,
			SourcePlayerID: ctx.SourcePlayer.ID,
			SourceCardID:   source.ID,
			Effect:         eff,
		}}
	case ability.EffectCopyAbility:
		if ctx.TargetCard == nil || ctx.TargetCard.Parsed == nil {
			return EffectResult{Success: false, Reason: "no_valid_target"}
		}
		g.copiedAbilities[source.ID] = ctx.TargetCard.Parsed
		return EffectResult{Success: true}
	case ability.EffectImmunity, ability.EffectDefendOthers, ability.EffectColorMixing:
		// passive, consulted where relevant rather than executed
		return EffectResult{Success: true}
	default:
		log.Printf("Game %s: generic ability %q on card %s has no executable effect.", g.ID, eff.Description, source.ID)
		return EffectResult{Success: false, Reason: "unknown_effect_type"}
	}
}

// applyAttributeModifier writes the modifier into the permanent or the
// this-turn ledger and refreshes unit totals.
func (g *Game) applyAttributeModifier(source *models.Card, eff ability.Effect, ctx EffectContext) EffectResult {
	target := source
	if eff.Target == ability.TargetTargetCard {
		if ctx.TargetCard == nil {
			return EffectResult{Success: false, Reason: "no_valid_target"}
		}
		target = ctx.TargetCard
	}

	key := modKey{target.ID, eff.Attribute}
	delta := 0
	switch eff.Operation {
	case ability.OpDouble:
		if eff.Attribute == ability.AttrPower {
			delta = g.EffectivePower(target)
		} else {
			delta = g.EffectiveValue(target)
		}
	case ability.OpIncrease:
		delta = eff.Amount
	case ability.OpDecrease:
		delta = -eff.Amount
	case ability.OpSet:
		base := target.Power
		if eff.Attribute == ability.AttrValue {
			base = target.Value
		}
		delta = eff.Amount - base - g.permMods[key] - g.tempMods[key]
	default:
		return EffectResult{Success: false, Reason: "unknown_operation"}
	}

	if eff.Permanent {
		g.permMods[key] += delta
	} else {
		g.tempMods[key] += delta
	}
	g.recomputeUnits()
	return EffectResult{Success: true}
}

// effectDraw moves up to n cards from the deck to the player's hand. Runs
// short without error when the deck empties.
func (g *Game) effectDraw(p *models.Player, n int) EffectResult {
	drawn := 0
	for i := 0; i < n && len(g.Deck) > 0; i++ {
		card := g.Deck[len(g.Deck)-1]
		g.Deck = g.Deck[:len(g.Deck)-1]
		p.Hand = append(p.Hand, card)
		drawn++
		g.fireEventToPlayer(p.ID, GameEvent{
			Type: EventPlayerDraw,
			User: &EventUser{ID: p.ID},
			Card: cardDetail(card),
		})
	}
	if drawn > 0 {
		g.fireEvent(GameEvent{
			Type:    EventPlayerDraw,
			User:    &EventUser{ID: p.ID},
			Payload: map[string]interface{}{"count": drawn, "deckSize": len(g.Deck)},
		})
	}
	if drawn == 0 {
		return EffectResult{Success: false, Reason: "deck_empty"}
	}
	return EffectResult{Success: true}
}

// effectSteal moves a card from the target player's hand or unit into the
// source player's hand.
func (g *Game) effectSteal(source *models.Card, eff ability.Effect, ctx EffectContext) EffectResult {
	if ctx.TargetPlayer == nil {
		return EffectResult{Success: false, Reason: "no_valid_target"}
	}
	for i := 0; i < eff.Amount; i++ {
		var stolen *models.Card
		switch {
		case eff.Random && eff.Source == ability.SourceHand:
			if len(ctx.TargetPlayer.Hand) == 0 {
				return EffectResult{Success: i > 0, Reason: "hand_empty"}
			}
			idx := g.rng.Intn(len(ctx.TargetPlayer.Hand))
			stolen = ctx.TargetPlayer.Hand[idx]
			ctx.TargetPlayer.Hand = append(ctx.TargetPlayer.Hand[:idx], ctx.TargetPlayer.Hand[idx+1:]...)
		case eff.Source == ability.SourceUnit:
			if ctx.TargetUnit == nil || ctx.TargetCard == nil {
				return EffectResult{Success: false, Reason: "no_valid_target"}
			}
			c, ok := ctx.TargetUnit.RemoveCard(ctx.TargetCard.ID)
			if !ok {
				return EffectResult{Success: false, Reason: "no_valid_target"}
			}
			stolen = c
			g.dissolveIfEmpty(ctx.TargetPlayer, ctx.TargetUnit)
		default:
			return EffectResult{Success: false, Reason: "no_valid_target"}
		}

		ctx.SourcePlayer.Hand = append(ctx.SourcePlayer.Hand, stolen)
		g.recomputeUnits()
		g.fireEvent(GameEvent{
			Type: EventAbilityActivated,
			User: &EventUser{ID: ctx.SourcePlayer.ID},
			Payload: map[string]interface{}{
				"effect": "steal",
				"from":   ctx.TargetPlayer.ID.String(),
			},
		})
		g.fireEventToPlayer(ctx.SourcePlayer.ID, GameEvent{
			Type:    EventAbilityActivated,
			Card:    cardDetail(stolen),
			Payload: map[string]interface{}{"effect": "steal_reveal"},
		})
	}
	return EffectResult{Success: true}
}

// effectDestroy sends a unit, or a single card, to its owner's graveyard.
func (g *Game) effectDestroy(source *models.Card, eff ability.Effect, ctx EffectContext) EffectResult {
	if ctx.TargetPlayer == nil {
		return EffectResult{Success: false, Reason: "no_valid_target"}
	}
	if eff.Target == ability.TargetTargetUnit {
		if ctx.TargetUnit == nil {
			return EffectResult{Success: false, Reason: "no_valid_target"}
		}
		for _, c := range ctx.TargetUnit.Cards {
			ctx.TargetPlayer.Graveyard = append(ctx.TargetPlayer.Graveyard, c)
		}
		ctx.TargetUnit.Cards = nil
		ctx.TargetPlayer.RemoveUnit(ctx.TargetUnit.ID)
		g.recomputeUnits()
		return EffectResult{Success: true}
	}

	var destroyed *models.Card
	switch {
	case eff.Random && eff.Source == ability.SourceHand:
		if len(ctx.TargetPlayer.Hand) == 0 {
			return EffectResult{Success: false, Reason: "hand_empty"}
		}
		idx := g.rng.Intn(len(ctx.TargetPlayer.Hand))
		destroyed = ctx.TargetPlayer.Hand[idx]
		ctx.TargetPlayer.Hand = append(ctx.TargetPlayer.Hand[:idx], ctx.TargetPlayer.Hand[idx+1:]...)
	case ctx.TargetUnit != nil && ctx.TargetCard != nil:
		c, ok := ctx.TargetUnit.RemoveCard(ctx.TargetCard.ID)
		if !ok {
			return EffectResult{Success: false, Reason: "no_valid_target"}
		}
		destroyed = c
		g.dissolveIfEmpty(ctx.TargetPlayer, ctx.TargetUnit)
	default:
		return EffectResult{Success: false, Reason: "no_valid_target"}
	}
	ctx.TargetPlayer.Graveyard = append(ctx.TargetPlayer.Graveyard, destroyed)
	g.recomputeUnits()
	return EffectResult{Success: true}
}

// resolvePendingEffect completes a suspended discard or revive with the
// chooser's card picks. Assumes lock is held.
func (g *Game) resolvePendingEffect(pe *PendingEffect, cardIDs []uuid.UUID) error {
	chooser := g.getPlayerByID(pe.ChooserID)
	if chooser == nil {
		return rejectf(ReasonInvalidChoice, "chooser no longer in game")
	}
	if len(cardIDs) < 1 {
		return rejectf(ReasonInvalidChoice, "a card choice is required")
	}

	switch pe.Effect.Type {
	case ability.EffectDiscard:
		for _, id := range cardIDs[:min(len(cardIDs), pe.Effect.Amount)] {
			card, ok := chooser.RemoveFromHand(id)
			if !ok {
				return rejectf(ReasonInvalidChoice, "card %s is not in hand", id)
			}
			g.DiscardPile = append(g.DiscardPile, card)
			g.fireEvent(GameEvent{
				Type: EventPlayerDiscard,
				User: &EventUser{ID: chooser.ID},
				Card: cardDetail(card),
			})
		}
	case ability.EffectRevive:
		owner := g.getPlayerByID(pe.SourcePlayerID)
		if owner == nil {
			return rejectf(ReasonInvalidChoice, "source player no longer in game")
		}
		for _, id := range cardIDs[:min(len(cardIDs), pe.Effect.Amount)] {
			found := false
			for i, c := range owner.Graveyard {
				if c.ID == id {
					owner.Graveyard = append(owner.Graveyard[:i], owner.Graveyard[i+1:]...)
					owner.Hand = append(owner.Hand, c)
					found = true
					break
				}
			}
			if !found {
				return rejectf(ReasonInvalidChoice, "card %s is not in the graveyard", id)
			}
		}
	default:
		return rejectf(ReasonInvalidChoice, "effect does not take a choice")
	}
	return nil
}

// clearTurnEffects reverts this-turn modifiers and copied abilities exactly
// once at turn end. Assumes lock is held.
func (g *Game) clearTurnEffects() {
	if len(g.tempMods) > 0 {
		g.tempMods = map[modKey]int{}
	}
	if len(g.copiedAbilities) > 0 {
		g.copiedAbilities = map[uuid.UUID]*ability.Ability{}
	}
	if len(g.activatedThisTurn) > 0 {
		g.activatedThisTurn = map[uuid.UUID]bool{}
	}
	g.recomputeUnits()
}

// recomputeUnits refreshes every unit's cached total from effective values.
// Assumes lock is held.
func (g *Game) recomputeUnits() {
	for _, p := range g.Players {
		for _, u := range p.Units {
			u.Recompute(g.EffectiveValue)
		}
	}
}

// dissolveIfEmpty removes a unit that has lost all member cards.
func (g *Game) dissolveIfEmpty(owner *models.Player, u *models.Unit) {
	if len(u.Cards) == 0 {
		owner.RemoveUnit(u.ID)
	}
}

// hasCardNamed reports whether the player controls a board card whose name
// contains the given token, for requires-card conditions.
func (g *Game) hasCardNamed(p *models.Player, token string) bool {
	token = strings.ToLower(token)
	for _, u := range p.Units {
		for _, c := range u.Cards {
			if strings.Contains(strings.ToLower(c.Name), token) {
				return true
			}
		}
	}
	return false
}
