// internal/game/battle.go
package game

import (
	"log"

	"github.com/google/uuid"

	"github.com/dwarveslive/unit-card-battles/internal/ability"
	"github.com/dwarveslive/unit-card-battles/internal/models"
)

// BattleState tracks one declared attack from declaration until resolution.
type BattleState struct {
	AttackerID   uuid.UUID
	DefenderID   uuid.UUID
	AttackerCard *models.Card
	TargetUnit   *models.Unit
	// AttackerUnit is set when the attacking card fought from one of the
	// attacker's own units instead of the hand.
	AttackerUnit *models.Unit

	DefenderCard     *models.Card
	DefenderFromHand bool
	// DefenderUnit is the unit the defending card came from. It equals
	// TargetUnit unless a defend-others card stepped in from elsewhere.
	DefenderUnit *models.Unit
}

// KidnapChoice is the attacker's pending pick after winning a battle.
// Options holds the remaining target-unit cards plus the defender's used
// card; the non-kidnapped used card goes to the defender's graveyard.
type KidnapChoice struct {
	ChooserID  uuid.UUID
	VictimID   uuid.UUID
	UnitID     uuid.UUID
	Options    []uuid.UUID
	UsedCardID uuid.UUID
}

// handleAttack validates and declares an attack, moving the turn into the
// battle phase. The attacking card may come from the hand or from one of
// the attacker's own units. Assumes lock is held.
func (g *Game) handleAttack(playerID uuid.UUID, payload map[string]interface{}) error {
	if g.Phase != PhaseAttack {
		return rejectf(ReasonWrongPhase, "attacks are declared in the attack phase")
	}
	if g.AttacksUsed >= g.Config.AttacksPerTurn {
		return rejectf(ReasonNoAttacksLeft, "no attacks left this turn")
	}
	attacker := g.getPlayerByID(playerID)

	cardID, err := payloadUUID(payload, "attackerCardId")
	if err != nil {
		return err
	}
	unitID, err := payloadUUID(payload, "targetUnitId")
	if err != nil {
		return err
	}

	card := attacker.FindInHand(cardID)
	var attackerUnit *models.Unit
	if card == nil {
		for _, u := range attacker.Units {
			if c := u.FindCard(cardID); c != nil {
				card, attackerUnit = c, u
				break
			}
		}
	}
	if card == nil {
		return rejectf(ReasonUnknownCard, "attacking card must be in your hand or one of your units")
	}

	var defender *models.Player
	var unit *models.Unit
	for _, p := range g.Players {
		if p.ID == playerID {
			continue
		}
		if u := p.FindUnit(unitID); u != nil {
			defender, unit = p, u
			break
		}
	}
	if unit == nil {
		return rejectf(ReasonUnknownUnit, "target unit not found on any opponent's board")
	}

	g.AttacksUsed++
	g.Battle = &BattleState{
		AttackerID:   playerID,
		DefenderID:   defender.ID,
		AttackerCard: card,
		TargetUnit:   unit,
		AttackerUnit: attackerUnit,
	}
	g.Phase = PhaseBattle

	g.fireEvent(GameEvent{
		Type: EventBattleStart,
		User: &EventUser{ID: playerID},
		Card: cardDetail(card),
		Payload: map[string]interface{}{
			"defenderId":   defender.ID.String(),
			"targetUnitId": unit.ID.String(),
		},
	})
	g.logAction(playerID, "action_attack", map[string]interface{}{
		"cardId": card.ID, "targetUnitId": unit.ID, "defenderId": defender.ID,
	})
	return nil
}

// handleDefend accepts the defender's card choice and resolves the battle.
// The card may come from the attacked unit, from the defender's hand, or
// from another unit when it carries a defend-others ability.
// Assumes lock is held.
func (g *Game) handleDefend(playerID uuid.UUID, payload map[string]interface{}) error {
	b := g.Battle
	if b == nil || g.Phase != PhaseBattle {
		return rejectf(ReasonWrongPhase, "no battle in progress")
	}
	if playerID != b.DefenderID {
		return rejectf(ReasonNotDefender, "only the attacked player may defend")
	}
	defender := g.getPlayerByID(playerID)

	cardID, err := payloadUUID(payload, "cardId")
	if err != nil {
		return err
	}
	fromHand, _ := payload["fromHand"].(bool)

	switch {
	case fromHand:
		card := defender.FindInHand(cardID)
		if card == nil {
			return rejectf(ReasonUnknownCard, "defending card must be in your hand")
		}
		b.DefenderCard = card
		b.DefenderFromHand = true
	case b.TargetUnit.FindCard(cardID) != nil:
		b.DefenderCard = b.TargetUnit.FindCard(cardID)
		b.DefenderUnit = b.TargetUnit
	default:
		// defend-others cards may step in from another of the defender's units
		for _, u := range defender.Units {
			if c := u.FindCard(cardID); c != nil {
				a := g.abilityOf(c)
				if a == nil || a.Type != ability.TypeDefendOthers {
					return rejectf(ReasonInvalidChoice, "card cannot defend outside its own unit")
				}
				b.DefenderCard = c
				b.DefenderUnit = u
				break
			}
		}
		if b.DefenderCard == nil {
			return rejectf(ReasonUnknownCard, "defending card not found")
		}
	}

	g.logAction(playerID, "action_defend", map[string]interface{}{
		"cardId": cardID, "fromHand": b.DefenderFromHand,
	})
	g.resolveBattle()
	return nil
}

// battlePower computes a card's power for this battle: effective power,
// plus situational attack/defense bonuses, then conditional doubling
// against the opponent card's color.
func (g *Game) battlePower(c *models.Card, attacking bool, opp *models.Card) int {
	p := g.EffectivePower(c)
	a := g.abilityOf(c)
	if a == nil {
		return p
	}

	double := false
	for _, eff := range a.Effects {
		if eff.Type != ability.EffectModifyAttribute || eff.Attribute != ability.AttrPower {
			continue
		}
		switch eff.Timing {
		case ability.TimingAttacking:
			if attacking && eff.Operation == ability.OpIncrease {
				p += eff.Amount
			}
		case ability.TimingDefending:
			if !attacking && eff.Operation == ability.OpIncrease {
				p += eff.Amount
			}
		case ability.TimingBattling:
			if eff.Operation == ability.OpDouble && conditionsMatchColor(a.Conditions, opp.Color) {
				double = true
			}
		}
	}
	if double {
		p *= 2
	}
	if p < 0 {
		return 0
	}
	return p
}

func conditionsMatchColor(conds []ability.Condition, color models.Color) bool {
	for _, cond := range conds {
		if cond.Type == ability.CondTargetColor && cond.Value == string(color) {
			return true
		}
	}
	return false
}

// fireBattleTriggers runs input-free battle-trigger effects for one side.
// Effects needing a player choice mid-battle are skipped; power modifiers
// are folded into battlePower instead.
func (g *Game) fireBattleTriggers(card *models.Card, owner, opponent *models.Player, oppCard *models.Card) {
	a := g.abilityOf(card)
	if a == nil || a.Type != ability.TypeBattleTrigger {
		return
	}
	if g.isImmune(oppCard, card.Color) {
		g.fireEvent(GameEvent{
			Type: EventAttackBlocked,
			Card: cardDetail(oppCard),
			Payload: map[string]interface{}{
				"sourceCardId": card.ID.String(),
				"reason":       ReasonBlockedImmunity,
			},
		})
		return
	}
	for _, eff := range a.Effects {
		if eff.Type == ability.EffectModifyAttribute {
			continue
		}
		if eff.RequiresInput() {
			g.fireEvent(GameEvent{
				Type: EventEffectSkipped,
				Card: cardDetail(card),
				Payload: map[string]interface{}{
					"effect": string(eff.Type),
					"reason": "requires_input_during_battle",
				},
			})
			continue
		}
		g.executeEffect(card, eff, EffectContext{
			SourcePlayer: owner,
			TargetPlayer: opponent,
		})
	}
}

// resolveBattle compares battle powers and applies the outcome. Ties go to
// the attacker. Assumes lock is held.
func (g *Game) resolveBattle() {
	b := g.Battle
	attacker := g.getPlayerByID(b.AttackerID)
	defender := g.getPlayerByID(b.DefenderID)

	g.fireBattleTriggers(b.AttackerCard, attacker, defender, b.DefenderCard)
	g.fireBattleTriggers(b.DefenderCard, defender, attacker, b.AttackerCard)

	atkPower := g.battlePower(b.AttackerCard, true, b.DefenderCard)
	defPower := g.battlePower(b.DefenderCard, false, b.AttackerCard)
	attackerWins := atkPower >= defPower

	winnerID := b.AttackerID
	if !attackerWins {
		winnerID = b.DefenderID
	}
	g.fireEvent(GameEvent{
		Type: EventBattleEnd,
		Payload: map[string]interface{}{
			"winnerId":      winnerID.String(),
			"attackerPower": atkPower,
			"defenderPower": defPower,
		},
	})
	g.logAction(b.AttackerID, "battle_resolved", map[string]interface{}{
		"winnerId": winnerID, "attackerPower": atkPower, "defenderPower": defPower,
	})

	if attackerWins {
		g.applyDefeatTrigger(b.AttackerCard, attacker)
		g.beginKidnap(attacker, defender)
	} else {
		g.applyDefeatTrigger(b.DefenderCard, defender)
		// losing attacker card leaves its source zone for the graveyard
		if b.AttackerUnit != nil {
			if _, ok := b.AttackerUnit.RemoveCard(b.AttackerCard.ID); !ok {
				log.Printf("Game %s: attacker card %s missing from its unit at resolution.", g.ID, b.AttackerCard.ID)
			}
			g.dissolveIfEmpty(attacker, b.AttackerUnit)
		} else if _, ok := attacker.RemoveFromHand(b.AttackerCard.ID); !ok {
			log.Printf("Game %s: attacker card %s missing from hand at resolution.", g.ID, b.AttackerCard.ID)
		}
		attacker.Graveyard = append(attacker.Graveyard, b.AttackerCard)
		g.finishBattle()
	}
}

// applyDefeatTrigger grants the winner's permanent defeat bonus when its
// ability carries one.
func (g *Game) applyDefeatTrigger(winner *models.Card, owner *models.Player) {
	a := g.abilityOf(winner)
	if a == nil || a.Type != ability.TypeDefeatTrigger {
		return
	}
	for _, eff := range a.Effects {
		if eff.Timing == ability.TimingOnDefeat {
			g.executeEffect(winner, eff, EffectContext{SourcePlayer: owner})
		}
	}
}

// beginKidnap offers the winning attacker the remaining target-unit cards
// plus the defender's used card. With nothing to choose the used card goes
// straight to the graveyard.
func (g *Game) beginKidnap(attacker, defender *models.Player) {
	b := g.Battle
	options := make([]uuid.UUID, 0, len(b.TargetUnit.Cards)+1)
	for _, c := range b.TargetUnit.Cards {
		if c.ID != b.DefenderCard.ID {
			options = append(options, c.ID)
		}
	}
	options = append(options, b.DefenderCard.ID)

	g.PendingKidnap = &KidnapChoice{
		ChooserID:  attacker.ID,
		VictimID:   defender.ID,
		UnitID:     b.TargetUnit.ID,
		Options:    options,
		UsedCardID: b.DefenderCard.ID,
	}
	ids := make([]string, len(options))
	for i, id := range options {
		ids[i] = id.String()
	}
	g.fireEventToPlayer(attacker.ID, GameEvent{
		Type:    EventKidnapChoice,
		Payload: map[string]interface{}{"options": ids, "unitId": b.TargetUnit.ID.String()},
	})
}

// handleKidnap resolves the attacker's pick: the chosen card joins the
// attacker's hand and the non-kidnapped used card is lost to the defender's
// graveyard. Assumes lock is held.
func (g *Game) handleKidnap(playerID uuid.UUID, payload map[string]interface{}) error {
	k := g.PendingKidnap
	if k == nil {
		return rejectf(ReasonWrongPhase, "no kidnap choice pending")
	}
	if playerID != k.ChooserID {
		return rejectf(ReasonNotChooser, "only the battle winner chooses")
	}
	cardID, err := payloadUUID(payload, "cardId")
	if err != nil {
		return err
	}
	valid := false
	for _, id := range k.Options {
		if id == cardID {
			valid = true
			break
		}
	}
	if !valid {
		return rejectf(ReasonInvalidChoice, "card is not an eligible kidnap target")
	}

	attacker := g.getPlayerByID(k.ChooserID)
	defender := g.getPlayerByID(k.VictimID)
	b := g.Battle

	var kidnapped *models.Card
	if cardID == k.UsedCardID {
		kidnapped = g.takeDefenderCard(defender)
	} else {
		c, ok := b.TargetUnit.RemoveCard(cardID)
		if !ok {
			return rejectf(ReasonInvalidChoice, "card already left the unit")
		}
		kidnapped = c
		// the used card was not saved: it goes to the graveyard
		g.discardDefenderCard(defender)
	}
	attacker.Hand = append(attacker.Hand, kidnapped)

	g.fireEvent(GameEvent{
		Type: EventKidnapResolved,
		User: &EventUser{ID: attacker.ID},
		Card: cardDetail(kidnapped),
		Payload: map[string]interface{}{
			"victimId": defender.ID.String(),
			"skipped":  false,
		},
	})
	g.logAction(playerID, "action_kidnap", map[string]interface{}{"cardId": cardID})

	g.dissolveIfEmpty(defender, b.TargetUnit)
	g.PendingKidnap = nil
	g.finishBattle()
	return nil
}

// handleSkipKidnap declines the kidnap; the defender's used card still
// goes to the graveyard. Assumes lock is held.
func (g *Game) handleSkipKidnap(playerID uuid.UUID) error {
	k := g.PendingKidnap
	if k == nil {
		return rejectf(ReasonWrongPhase, "no kidnap choice pending")
	}
	if playerID != k.ChooserID {
		return rejectf(ReasonNotChooser, "only the battle winner chooses")
	}
	defender := g.getPlayerByID(k.VictimID)

	g.discardDefenderCard(defender)
	g.fireEvent(GameEvent{
		Type:    EventKidnapResolved,
		User:    &EventUser{ID: playerID},
		Payload: map[string]interface{}{"victimId": defender.ID.String(), "skipped": true},
	})
	g.logAction(playerID, "action_skip_kidnap", nil)

	g.dissolveIfEmpty(defender, g.Battle.TargetUnit)
	g.PendingKidnap = nil
	g.finishBattle()
	return nil
}

// takeDefenderCard detaches the used defending card from wherever it
// fought: hand or its unit.
func (g *Game) takeDefenderCard(defender *models.Player) *models.Card {
	b := g.Battle
	if b.DefenderFromHand {
		c, _ := defender.RemoveFromHand(b.DefenderCard.ID)
		return c
	}
	unit := b.DefenderUnit
	if unit == nil {
		unit = b.TargetUnit
	}
	c, _ := unit.RemoveCard(b.DefenderCard.ID)
	g.dissolveIfEmpty(defender, unit)
	return c
}

// discardDefenderCard moves the used defending card to the defender's
// graveyard.
func (g *Game) discardDefenderCard(defender *models.Player) {
	c := g.takeDefenderCard(defender)
	if c == nil {
		log.Printf("Game %s: defender card missing during battle cleanup.", g.ID)
		return
	}
	defender.Graveyard = append(defender.Graveyard, c)
}

// autoResolveDefense resolves a battle whose defender left the match: the
// strongest remaining card of the attacked unit stands in so the attacker
// is not stranded in the battle phase. Assumes lock is held.
func (g *Game) autoResolveDefense() {
	b := g.Battle
	if b == nil || b.DefenderCard != nil {
		return
	}
	var pick *models.Card
	best := -1
	for _, c := range b.TargetUnit.Cards {
		if p := g.battlePower(c, false, b.AttackerCard); p > best {
			best, pick = p, c
		}
	}
	if pick == nil {
		g.finishBattle()
		return
	}
	b.DefenderCard = pick
	b.DefenderUnit = b.TargetUnit
	g.logAction(b.DefenderID, "action_defend", map[string]interface{}{
		"cardId": pick.ID, "fromHand": false, "auto": true,
	})
	g.resolveBattle()
}

// finishBattle clears battle state, refreshes totals, and moves the turn
// into the reinforce phase. Assumes lock is held.
func (g *Game) finishBattle() {
	g.Battle = nil
	g.recomputeUnits()
	g.Phase = PhaseReinforce
	g.checkFinalRound()
}
