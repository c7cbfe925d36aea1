// internal/game/effects_test.go
package game

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dwarveslive/unit-card-battles/internal/ability"
	"github.com/dwarveslive/unit-card-battles/internal/models"
)

func TestTemporaryModifierRevertsAtTurnEnd(t *testing.T) {
	g, players, _ := setupTestGame(t, 2, nil)
	playerA := players[0]

	card := testCard(models.ColorRed, 3, 2, "")
	unit := giveUnit(g, playerA, card, testCard(models.ColorRed, 1, 1, ""))

	res := g.executeEffect(card, ability.Effect{
		Type:      ability.EffectModifyAttribute,
		Target:    ability.TargetThisCard,
		Attribute: ability.AttrValue,
		Operation: ability.OpIncrease,
		Amount:    2,
		Duration:  ability.DurationThisTurn,
	}, EffectContext{SourcePlayer: playerA})
	require.True(t, res.Success)

	assert.Equal(t, 4, g.EffectiveValue(card))
	assert.Equal(t, 5, unit.TotalValue, "unit total tracks effective values")

	g.clearTurnEffects()
	assert.Equal(t, 2, g.EffectiveValue(card))
	assert.Equal(t, 3, unit.TotalValue)
}

func TestPermanentModifierSurvivesTurnEnd(t *testing.T) {
	g, players, _ := setupTestGame(t, 2, nil)
	playerA := players[0]

	card := testCard(models.ColorRed, 3, 2, "")
	giveUnit(g, playerA, card)

	res := g.executeEffect(card, ability.Effect{
		Type:      ability.EffectModifyAttribute,
		Target:    ability.TargetThisCard,
		Attribute: ability.AttrPower,
		Operation: ability.OpIncrease,
		Amount:    1,
		Permanent: true,
	}, EffectContext{SourcePlayer: playerA})
	require.True(t, res.Success)
	assert.Equal(t, 4, g.EffectivePower(card))

	g.clearTurnEffects()
	assert.Equal(t, 4, g.EffectivePower(card), "permanent bonus must persist")
}

func TestDoubleOperationUsesEffectiveValue(t *testing.T) {
	g, players, _ := setupTestGame(t, 2, nil)
	playerA := players[0]

	card := testCard(models.ColorRed, 3, 2, "")
	res := g.executeEffect(card, ability.Effect{
		Type:      ability.EffectModifyAttribute,
		Target:    ability.TargetThisCard,
		Attribute: ability.AttrPower,
		Operation: ability.OpDouble,
	}, EffectContext{SourcePlayer: playerA})
	require.True(t, res.Success)
	assert.Equal(t, 6, g.EffectivePower(card))
}

func TestEffectivePowerFloorsAtZero(t *testing.T) {
	g, players, _ := setupTestGame(t, 2, nil)
	playerA := players[0]

	card := testCard(models.ColorRed, 2, 2, "")
	res := g.executeEffect(card, ability.Effect{
		Type:      ability.EffectModifyAttribute,
		Target:    ability.TargetThisCard,
		Attribute: ability.AttrPower,
		Operation: ability.OpDecrease,
		Amount:    5,
	}, EffectContext{SourcePlayer: playerA})
	require.True(t, res.Success)
	assert.Equal(t, 0, g.EffectivePower(card))
}

func TestImmunityBlocksWholeAbility(t *testing.T) {
	g, players, _ := setupTestGame(t, 2, nil)
	playerA := players[0]
	playerB := players[1]

	source := testCard(models.ColorBlack, 3, 2, "Increase target card's power by 1 this turn")
	target := testCard(models.ColorBlue, 2, 2, "Immune to abilities from black cards")
	giveUnit(g, playerB, target, testCard(models.ColorBlue, 1, 1, ""))

	res := g.executeAbility(source, source.Parsed, EffectContext{
		SourcePlayer: playerA,
		TargetPlayer: playerB,
		TargetCard:   target,
	})
	assert.False(t, res.Success)
	assert.Equal(t, ReasonBlockedImmunity, res.Reason)
	assert.Equal(t, 2, g.EffectivePower(target), "blocked ability must not modify the target")
}

func TestImmunityDoesNotBlockOtherColors(t *testing.T) {
	g, players, _ := setupTestGame(t, 2, nil)
	playerA := players[0]
	playerB := players[1]

	source := testCard(models.ColorRed, 3, 2, "Increase target card's power by 1 this turn")
	target := testCard(models.ColorBlue, 2, 2, "Immune to abilities from black cards")
	giveUnit(g, playerB, target)

	res := g.executeAbility(source, source.Parsed, EffectContext{
		SourcePlayer: playerA,
		TargetPlayer: playerB,
		TargetCard:   target,
	})
	assert.True(t, res.Success)
	assert.Equal(t, 3, g.EffectivePower(target))
}

func TestCopiedAbilityDetachesAtTurnEnd(t *testing.T) {
	g, players, _ := setupTestGame(t, 2, nil)
	playerA := players[0]
	playerB := players[1]

	copier := testCard(models.ColorRed, 2, 2, "Copy target enemy card's ability this turn")
	donor := testCard(models.ColorBlue, 2, 2, "Draw 1 card from deck")
	giveUnit(g, playerA, copier)
	giveUnit(g, playerB, donor)

	res := g.executeAbility(copier, copier.Parsed, EffectContext{
		SourcePlayer: playerA,
		TargetPlayer: playerB,
		TargetCard:   donor,
	})
	require.True(t, res.Success)
	require.Same(t, donor.Parsed, g.abilityOf(copier), "copier should carry the donor's ability")

	g.clearTurnEffects()
	assert.Same(t, copier.Parsed, g.abilityOf(copier), "copy expires with the turn")
}

func TestStealRandomCardFromHand(t *testing.T) {
	g, players, _ := setupTestGame(t, 2, nil)
	playerA := players[0]
	playerB := players[1]

	source := testCard(models.ColorRed, 2, 2, "Steal 1 random card from opponent's hand")
	handA := len(playerA.Hand)
	handB := len(playerB.Hand)

	res := g.executeAbility(source, source.Parsed, EffectContext{
		SourcePlayer: playerA,
		TargetPlayer: playerB,
	})
	require.True(t, res.Success)
	assert.Len(t, playerA.Hand, handA+1)
	assert.Len(t, playerB.Hand, handB-1)
}

func TestStealFromEmptyHandFails(t *testing.T) {
	g, players, _ := setupTestGame(t, 2, nil)
	playerA := players[0]
	playerB := players[1]
	playerB.Hand = nil

	source := testCard(models.ColorRed, 2, 2, "Steal 1 random card from opponent's hand")
	res := g.executeAbility(source, source.Parsed, EffectContext{
		SourcePlayer: playerA,
		TargetPlayer: playerB,
	})
	assert.False(t, res.Success)
	assert.Equal(t, "hand_empty", res.Reason)
}

func TestDestroyUnitSendsCardsToGraveyard(t *testing.T) {
	g, players, _ := setupTestGame(t, 2, nil)
	playerA := players[0]
	playerB := players[1]

	source := testCard(models.ColorRed, 2, 2, "Destroy 1 target opponent's unit")
	victim := giveUnit(g, playerB,
		testCard(models.ColorBlue, 1, 2, ""),
		testCard(models.ColorBlue, 1, 3, ""),
	)

	res := g.executeAbility(source, source.Parsed, EffectContext{
		SourcePlayer: playerA,
		TargetPlayer: playerB,
		TargetUnit:   victim,
	})
	require.True(t, res.Success)
	assert.Empty(t, playerB.Units)
	assert.Len(t, playerB.Graveyard, 2)
}

func TestDrawEffectRunsShortOnEmptyDeck(t *testing.T) {
	g, players, _ := setupTestGame(t, 2, nil)
	playerA := players[0]
	g.Deck = nil

	res := g.effectDraw(playerA, 1)
	assert.False(t, res.Success)
	assert.Equal(t, "deck_empty", res.Reason)
}

func TestDiscardEffectSuspendsForTargetChoice(t *testing.T) {
	g, players, _ := setupTestGame(t, 2, nil)
	playerA := players[0]
	playerB := players[1]

	source := testCard(models.ColorRed, 2, 2, "Target opponent discards 1 card from hand")
	res := g.executeAbility(source, source.Parsed, EffectContext{
		SourcePlayer: playerA,
		TargetPlayer: playerB,
	})
	require.True(t, res.RequiresInput)
	require.NotNil(t, res.Pending)
	assert.Equal(t, playerB.ID, res.Pending.ChooserID, "the target picks which card to discard")
	assert.Equal(t, playerA.ID, res.Pending.SourcePlayerID)
}

func TestResolvePendingRevive(t *testing.T) {
	g, players, _ := setupTestGame(t, 2, nil)
	playerA := players[0]

	buried := testCard(models.ColorRed, 1, 2, "")
	playerA.Graveyard = append(playerA.Graveyard, buried)
	handSize := len(playerA.Hand)

	pe := &PendingEffect{
		ChooserID:      playerA.ID,
		SourcePlayerID: playerA.ID,
		Effect:         ability.Effect{Type: ability.EffectRevive, Amount: 1, Source: ability.SourceGraveyard},
	}
	require.NoError(t, g.resolvePendingEffect(pe, []uuid.UUID{buried.ID}))
	assert.Empty(t, playerA.Graveyard)
	assert.Len(t, playerA.Hand, handSize+1)
	assert.NotNil(t, playerA.FindInHand(buried.ID))
}

func TestResolvePendingEffectRejectsBadChoice(t *testing.T) {
	g, players, _ := setupTestGame(t, 2, nil)
	playerA := players[0]

	pe := &PendingEffect{
		ChooserID:      playerA.ID,
		SourcePlayerID: playerA.ID,
		Effect:         ability.Effect{Type: ability.EffectDiscard, Amount: 1, Source: ability.SourceHand},
	}
	requireValidationCode(t, g.resolvePendingEffect(pe, []uuid.UUID{uuid.New()}), ReasonInvalidChoice)
	requireValidationCode(t, g.resolvePendingEffect(pe, nil), ReasonInvalidChoice)
}

func TestActivateAbilityOncePerCardPerTurn(t *testing.T) {
	g, players, mb := setupTestGame(t, 2, nil)
	playerA := players[0]
	g.Phase = PhasePlay

	card := testCard(models.ColorRed, 2, 2, "Draw 1 card from deck")
	giveUnit(g, playerA, card)
	handSize := len(playerA.Hand)

	act(g, playerA.ID, "action_activate_ability", map[string]interface{}{"cardId": card.ID.String()})
	assert.Len(t, playerA.Hand, handSize+1)

	act(g, playerA.ID, "action_activate_ability", map[string]interface{}{"cardId": card.ID.String()})
	assert.Len(t, playerA.Hand, handSize+1, "second activation must not resolve")
	rejection := mb.getLastPlayerEvent(playerA.ID)
	require.NotNil(t, rejection)
	assert.Equal(t, ReasonAlreadyUsed, rejection.Payload["reason"])
}

func TestActivateAbilityRequiresBoardCard(t *testing.T) {
	g, players, mb := setupTestGame(t, 2, nil)
	playerA := players[0]
	g.Phase = PhasePlay

	// the card sits in hand, not on the board
	card := testCard(models.ColorRed, 2, 2, "Draw 1 card from deck")
	playerA.Hand = append(playerA.Hand, card)

	act(g, playerA.ID, "action_activate_ability", map[string]interface{}{"cardId": card.ID.String()})
	rejection := mb.getLastPlayerEvent(playerA.ID)
	require.NotNil(t, rejection)
	assert.Equal(t, ReasonUnknownCard, rejection.Payload["reason"])
}

func TestHasCardNamedMatchesToken(t *testing.T) {
	g, players, _ := setupTestGame(t, 2, nil)
	playerA := players[0]

	dragon := testCard(models.ColorRed, 2, 2, "")
	dragon.Name = "Fire Drake"
	giveUnit(g, playerA, dragon)

	assert.True(t, g.hasCardNamed(playerA, "drake"))
	assert.False(t, g.hasCardNamed(playerA, "golem"))
}
