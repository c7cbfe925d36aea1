// internal/game/game_test.go
package game

import (
	"fmt"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dwarveslive/unit-card-battles/internal/ability"
	"github.com/dwarveslive/unit-card-battles/internal/models"
)

// mockBroadcaster collects events instead of sending them over WS.
type mockBroadcaster struct {
	mu           sync.Mutex
	allEvents    []GameEvent               // Events sent to everyone
	playerEvents map[uuid.UUID][]GameEvent // Events sent to specific players
}

func newMockBroadcaster() *mockBroadcaster {
	return &mockBroadcaster{
		playerEvents: make(map[uuid.UUID][]GameEvent),
	}
}

func (mb *mockBroadcaster) broadcastFn(ev GameEvent) {
	mb.mu.Lock()
	defer mb.mu.Unlock()
	mb.allEvents = append(mb.allEvents, ev)
}

func (mb *mockBroadcaster) broadcastToPlayerFn(playerID uuid.UUID, ev GameEvent) {
	mb.mu.Lock()
	defer mb.mu.Unlock()
	mb.playerEvents[playerID] = append(mb.playerEvents[playerID], ev)
}

func (mb *mockBroadcaster) clear() {
	mb.mu.Lock()
	defer mb.mu.Unlock()
	mb.allEvents = []GameEvent{}
	mb.playerEvents = make(map[uuid.UUID][]GameEvent)
}

func (mb *mockBroadcaster) getLastEvent() *GameEvent {
	mb.mu.Lock()
	defer mb.mu.Unlock()
	if len(mb.allEvents) == 0 {
		return nil
	}
	return &mb.allEvents[len(mb.allEvents)-1]
}

func (mb *mockBroadcaster) getLastPlayerEvent(playerID uuid.UUID) *GameEvent {
	mb.mu.Lock()
	defer mb.mu.Unlock()
	events, ok := mb.playerEvents[playerID]
	if !ok || len(events) == 0 {
		return nil
	}
	return &events[len(events)-1]
}

func (mb *mockBroadcaster) eventsOfType(t GameEventType) []GameEvent {
	mb.mu.Lock()
	defer mb.mu.Unlock()
	var out []GameEvent
	for _, ev := range mb.allEvents {
		if ev.Type == t {
			out = append(out, ev)
		}
	}
	return out
}

// setupTestGame builds a started game with a fixed seed and mock broadcasters.
func setupTestGame(t *testing.T, numPlayers int, cfg *Config) (*Game, []*models.Player, *mockBroadcaster) {
	c := Config{Seed: 42}
	if cfg != nil {
		c = *cfg
		if c.Seed == 0 {
			c.Seed = 42
		}
	}
	g := NewGame(c)
	mb := newMockBroadcaster()
	g.BroadcastFn = mb.broadcastFn
	g.BroadcastToPlayerFn = mb.broadcastToPlayerFn

	players := make([]*models.Player, numPlayers)
	for i := 0; i < numPlayers; i++ {
		player := &models.Player{
			ID:        uuid.New(),
			Name:      fmt.Sprintf("player-%d", i),
			Connected: true,
		}
		players[i] = player
		g.AddPlayer(player)
	}

	require.NoError(t, g.Start())
	require.True(t, g.Started, "game should be marked as started")
	require.Equal(t, PhaseDraw, g.Phase)

	mb.clear() // discard deal and turn-start events from setup

	return g, players, mb
}

// testCard makes a card with an optional parsed ability text.
func testCard(color models.Color, power, value int, text string) *models.Card {
	c := &models.Card{
		ID:    uuid.New(),
		Name:  "Test Card",
		Color: color,
		Power: power,
		Value: value,
	}
	if text != "" {
		c.AbilityText = text
		c.Parsed = ability.Parse(text)
	}
	return c
}

// giveUnit places a ready-made unit on the player's board.
func giveUnit(g *Game, p *models.Player, cards ...*models.Card) *models.Unit {
	u := &models.Unit{ID: uuid.New(), PlayerID: p.ID, Cards: cards}
	u.Recompute(g.EffectiveValue)
	p.Units = append(p.Units, u)
	return u
}

func act(g *Game, playerID uuid.UUID, actionType string, payload map[string]interface{}) {
	g.HandlePlayerAction(playerID, models.GameAction{ActionType: actionType, Payload: payload})
}

func TestDrawPhaseAdvancesToPlay(t *testing.T) {
	g, players, mb := setupTestGame(t, 2, nil)
	playerA := players[0]
	require.Equal(t, playerA.ID, g.currentPlayer().ID)

	startHand := len(playerA.Hand)
	startDeck := len(g.Deck)

	act(g, playerA.ID, "action_draw", nil)
	assert.Len(t, playerA.Hand, startHand+1)
	assert.Len(t, g.Deck, startDeck-1)
	assert.Equal(t, PhaseDraw, g.Phase, "one draw should not end the draw phase")

	private := mb.getLastPlayerEvent(playerA.ID)
	require.NotNil(t, private)
	assert.Equal(t, EventPlayerDraw, private.Type)
	require.NotNil(t, private.Card, "private draw event reveals the card")
	assert.NotEmpty(t, private.Card.Name)

	public := mb.getLastEvent()
	require.NotNil(t, public)
	assert.Equal(t, EventPlayerDraw, public.Type)
	assert.Nil(t, public.Card, "public draw event must not reveal the card")

	act(g, playerA.ID, "action_draw", nil)
	assert.Len(t, playerA.Hand, startHand+2)
	assert.Equal(t, PhasePlay, g.Phase, "draw quota met, phase should advance")
}

func TestDrawFromDiscardTakesTopCard(t *testing.T) {
	g, players, _ := setupTestGame(t, 2, nil)
	playerA := players[0]

	top := g.DiscardPile[len(g.DiscardPile)-1]
	startDiscard := len(g.DiscardPile)

	act(g, playerA.ID, "action_draw", map[string]interface{}{"fromDiscard": true})
	assert.Len(t, g.DiscardPile, startDiscard-1)
	assert.NotNil(t, playerA.FindInHand(top.ID), "discard top should land in hand")
}

func TestDrawPopsBackOfDeck(t *testing.T) {
	g, players, _ := setupTestGame(t, 2, nil)
	playerA := players[0]

	top := g.Deck[len(g.Deck)-1]
	act(g, playerA.ID, "action_draw", nil)
	assert.NotNil(t, playerA.FindInHand(top.ID), "draws come off the back of the deck")
}

func TestDrawWithBothPilesEmptyAdvancesWithoutRejection(t *testing.T) {
	g, players, mb := setupTestGame(t, 2, nil)
	playerA := players[0]

	g.Deck = nil
	g.DiscardPile = nil
	act(g, playerA.ID, "action_draw", nil)

	assert.Equal(t, PhasePlay, g.Phase, "the player is released into the play phase")
	rejection := mb.getLastPlayerEvent(playerA.ID)
	if rejection != nil {
		assert.NotEqual(t, EventActionRejected, rejection.Type, "an undrawable draw is not an illegal intent")
	}
	public := mb.getLastEvent()
	require.NotNil(t, public)
	assert.Equal(t, EventPlayerDraw, public.Type)
	assert.Equal(t, true, public.Payload["skipped"])
	assert.Equal(t, string(PhasePlay), public.Payload["phase"])
}

func TestOutOfTurnActionRejected(t *testing.T) {
	g, players, mb := setupTestGame(t, 2, nil)
	playerB := players[1]
	require.NotEqual(t, playerB.ID, g.currentPlayer().ID)

	startHand := len(playerB.Hand)
	act(g, playerB.ID, "action_draw", nil)
	assert.Len(t, playerB.Hand, startHand, "out-of-turn draw must not change state")

	rejection := mb.getLastPlayerEvent(playerB.ID)
	require.NotNil(t, rejection)
	assert.Equal(t, EventActionRejected, rejection.Type)
	assert.Equal(t, ReasonNotYourTurn, rejection.Payload["reason"])
}

func TestUnknownActionRejected(t *testing.T) {
	g, players, mb := setupTestGame(t, 2, nil)
	playerA := players[0]

	act(g, playerA.ID, "action_dance", nil)
	rejection := mb.getLastPlayerEvent(playerA.ID)
	require.NotNil(t, rejection)
	assert.Equal(t, EventActionRejected, rejection.Type)
	assert.Equal(t, ReasonUnknownAction, rejection.Payload["reason"])
}

func TestPlayUnitOncePerTurn(t *testing.T) {
	g, players, mb := setupTestGame(t, 2, nil)
	playerA := players[0]
	g.Phase = PhasePlay

	cards := []*models.Card{
		testCard(models.ColorRed, 2, 3, ""),
		testCard(models.ColorRed, 1, 2, ""),
		testCard(models.ColorRed, 3, 1, ""),
	}
	playerA.Hand = append(playerA.Hand, cards...)
	startHand := len(playerA.Hand)

	ids := []interface{}{cards[0].ID.String(), cards[1].ID.String(), cards[2].ID.String()}
	act(g, playerA.ID, "action_play_unit", map[string]interface{}{"cardIds": ids})

	require.Len(t, playerA.Units, 1)
	unit := playerA.Units[0]
	assert.Len(t, unit.Cards, 3)
	assert.Equal(t, 6, unit.TotalValue)
	assert.Len(t, playerA.Hand, startHand-3)
	assert.True(t, g.UnitPlayed)

	played := mb.eventsOfType(EventUnitPlayed)
	require.Len(t, played, 1)
	assert.Equal(t, unit.ID.String(), played[0].Payload["unitId"])

	// a second unit this turn is illegal
	more := []*models.Card{
		testCard(models.ColorBlue, 1, 1, ""),
		testCard(models.ColorBlue, 1, 1, ""),
		testCard(models.ColorBlue, 1, 1, ""),
	}
	playerA.Hand = append(playerA.Hand, more...)
	act(g, playerA.ID, "action_play_unit", map[string]interface{}{
		"cardIds": []interface{}{more[0].ID.String(), more[1].ID.String(), more[2].ID.String()},
	})
	assert.Len(t, playerA.Units, 1)
	rejection := mb.getLastPlayerEvent(playerA.ID)
	require.NotNil(t, rejection)
	assert.Equal(t, ReasonUnitAlready, rejection.Payload["reason"])
}

func TestPlayUnitRejectsDuplicateCardIDs(t *testing.T) {
	g, players, mb := setupTestGame(t, 2, nil)
	playerA := players[0]
	g.Phase = PhasePlay

	c := testCard(models.ColorRed, 1, 1, "")
	playerA.Hand = append(playerA.Hand, c)
	id := c.ID.String()
	act(g, playerA.ID, "action_play_unit", map[string]interface{}{
		"cardIds": []interface{}{id, id, id},
	})
	assert.Empty(t, playerA.Units)
	rejection := mb.getLastPlayerEvent(playerA.ID)
	require.NotNil(t, rejection)
	assert.Equal(t, ReasonInvalidPayload, rejection.Payload["reason"])
}

func TestChooseDiscardEndsTurn(t *testing.T) {
	g, players, mb := setupTestGame(t, 2, nil)
	playerA := players[0]
	playerB := players[1]
	g.Phase = PhasePlay

	act(g, playerA.ID, "action_choose", map[string]interface{}{"action": "discard"})
	assert.Equal(t, PhaseDiscard, g.Phase)
	assert.Equal(t, "discard", g.ActionChosen)

	card := playerA.Hand[0]
	act(g, playerA.ID, "action_discard", map[string]interface{}{"cardId": card.ID.String()})
	assert.Equal(t, card.ID, g.DiscardPile[len(g.DiscardPile)-1].ID)

	assert.Equal(t, playerB.ID, g.currentPlayer().ID, "turn should pass to the next player")
	assert.Equal(t, PhaseDraw, g.Phase)
	assert.Equal(t, 2, g.TurnID)

	turnStart := mb.getLastEvent()
	require.NotNil(t, turnStart)
	assert.Equal(t, EventTurnStart, turnStart.Type)
	assert.Equal(t, playerB.ID, turnStart.User.ID)
}

func TestChooseAttackMovesToAttackPhase(t *testing.T) {
	g, players, mb := setupTestGame(t, 2, nil)
	playerA := players[0]
	g.Phase = PhasePlay

	act(g, playerA.ID, "action_choose", map[string]interface{}{"action": "attack"})
	assert.Equal(t, PhaseAttack, g.Phase)

	ev := mb.getLastEvent()
	require.NotNil(t, ev)
	assert.Equal(t, EventActionChosen, ev.Type)
	assert.Equal(t, "attack", ev.Payload["action"])
}

func TestEndTurnFromAttackPhaseForfeitsAttack(t *testing.T) {
	g, players, _ := setupTestGame(t, 2, nil)
	playerA := players[0]
	playerB := players[1]
	g.Phase = PhaseAttack

	act(g, playerA.ID, "action_end_turn", nil)
	assert.Equal(t, playerB.ID, g.currentPlayer().ID)
	assert.Equal(t, PhaseDraw, g.Phase)
}

func TestEndTurnWithCardsInDiscardPhaseRejected(t *testing.T) {
	g, players, mb := setupTestGame(t, 2, nil)
	playerA := players[0]
	g.Phase = PhaseDiscard
	require.NotEmpty(t, playerA.Hand)

	act(g, playerA.ID, "action_end_turn", nil)
	assert.Equal(t, playerA.ID, g.currentPlayer().ID, "turn must not advance")
	rejection := mb.getLastPlayerEvent(playerA.ID)
	require.NotNil(t, rejection)
	assert.Equal(t, ReasonWrongPhase, rejection.Payload["reason"])
}

func TestEndTurnWithEmptyHandSkipsDiscard(t *testing.T) {
	g, players, _ := setupTestGame(t, 2, nil)
	playerA := players[0]
	playerB := players[1]
	g.Phase = PhaseDiscard
	playerA.Hand = nil

	act(g, playerA.ID, "action_end_turn", nil)
	assert.Equal(t, playerB.ID, g.currentPlayer().ID)
}

func TestFinalRoundCountdownEndsGame(t *testing.T) {
	g, players, mb := setupTestGame(t, 3, nil)
	playerA := players[0]

	giveUnit(g, playerA,
		testCard(models.ColorRed, 1, 20, ""),
		testCard(models.ColorRed, 1, 20, ""),
		testCard(models.ColorRed, 1, 15, ""),
	)
	g.recomputeUnits()
	g.checkFinalRound()

	require.True(t, g.FinalRoundActive)
	assert.Equal(t, playerA.ID, g.FinalRoundCallerID)
	assert.Equal(t, 2, g.FinalRoundTurnsLeft, "each opponent gets one last turn")

	started := mb.eventsOfType(EventFinalRoundStarted)
	require.Len(t, started, 1)
	assert.Equal(t, playerA.ID, started[0].User.ID)

	// caller finishes their own turn without consuming the countdown
	g.advanceTurn()
	assert.Equal(t, 2, g.FinalRoundTurnsLeft)
	require.False(t, g.GameOver)

	g.advanceTurn()
	assert.Equal(t, 1, g.FinalRoundTurnsLeft)
	require.False(t, g.GameOver)

	g.advanceTurn()
	assert.True(t, g.GameOver, "game ends once every opponent had a turn")

	ended := mb.eventsOfType(EventGameEnded)
	require.Len(t, ended, 1)
	assert.Equal(t, playerA.ID.String(), ended[0].Payload["winner"])
	assert.Contains(t, ended[0].Payload, "scores")
}

func TestFinalRoundCancelledWhenCallerDropsBelowThreshold(t *testing.T) {
	g, players, mb := setupTestGame(t, 2, nil)
	playerA := players[0]

	giveUnit(g, playerA,
		testCard(models.ColorRed, 1, 30, ""),
		testCard(models.ColorRed, 1, 30, ""),
	)
	g.recomputeUnits()
	g.checkFinalRound()
	require.True(t, g.FinalRoundActive)

	// the scoring unit is lost before the countdown completes
	playerA.Units = nil
	g.recomputeUnits()
	g.checkFinalRound()

	assert.False(t, g.FinalRoundActive)
	assert.Equal(t, uuid.Nil, g.FinalRoundCallerID)
	assert.Equal(t, 0, g.FinalRoundTurnsLeft)
	cancelled := mb.eventsOfType(EventFinalRoundCancelled)
	assert.Len(t, cancelled, 1)
}

func TestPendingEffectBlocksOtherIntents(t *testing.T) {
	g, players, mb := setupTestGame(t, 2, nil)
	playerA := players[0]

	g.PendingEffect = &PendingEffect{
		ChooserID:      playerA.ID,
		SourcePlayerID: playerA.ID,
		Effect:         ability.Effect{Type: ability.EffectDiscard, Amount: 1, Source: ability.SourceHand},
	}

	startHand := len(playerA.Hand)
	act(g, playerA.ID, "action_draw", nil)
	assert.Len(t, playerA.Hand, startHand, "draw must be blocked while a choice is pending")
	rejection := mb.getLastPlayerEvent(playerA.ID)
	require.NotNil(t, rejection)
	assert.Equal(t, ReasonPendingChoice, rejection.Payload["reason"])

	// answering the choice unblocks the turn
	card := playerA.Hand[0]
	act(g, playerA.ID, "action_effect_choice", map[string]interface{}{
		"cardIds": []interface{}{card.ID.String()},
	})
	assert.Nil(t, g.PendingEffect)
	assert.Equal(t, card.ID, g.DiscardPile[len(g.DiscardPile)-1].ID)
}

func TestEffectChoiceByWrongPlayerRejected(t *testing.T) {
	g, players, mb := setupTestGame(t, 2, nil)
	playerA := players[0]
	playerB := players[1]

	g.PendingEffect = &PendingEffect{
		ChooserID:      playerB.ID,
		SourcePlayerID: playerA.ID,
		Effect:         ability.Effect{Type: ability.EffectDiscard, Amount: 1, Source: ability.SourceHand},
	}

	act(g, playerA.ID, "action_effect_choice", map[string]interface{}{
		"cardIds": []interface{}{playerA.Hand[0].ID.String()},
	})
	assert.NotNil(t, g.PendingEffect, "choice must stay pending")
	rejection := mb.getLastPlayerEvent(playerA.ID)
	require.NotNil(t, rejection)
	assert.Equal(t, ReasonNotChooser, rejection.Payload["reason"])
}

func TestDisconnectOfCurrentPlayerAdvancesTurn(t *testing.T) {
	g, players, _ := setupTestGame(t, 3, nil)
	playerA := players[0]
	playerB := players[1]
	require.Equal(t, playerA.ID, g.currentPlayer().ID)

	g.HandleDisconnect(playerA.ID)
	assert.False(t, playerA.Connected)
	assert.Equal(t, playerB.ID, g.currentPlayer().ID)

	// a disconnected player's seat is skipped on the way around
	g.advanceTurn()
	assert.Equal(t, players[2].ID, g.currentPlayer().ID)
	g.advanceTurn()
	assert.Equal(t, playerB.ID, g.currentPlayer().ID, "turn should skip the disconnected seat")
}

func TestActionsIgnoredAfterGameOver(t *testing.T) {
	g, players, mb := setupTestGame(t, 2, nil)
	playerA := players[0]

	g.EndGame()
	require.True(t, g.GameOver)
	mb.clear()

	act(g, playerA.ID, "action_draw", nil)
	assert.Nil(t, mb.getLastEvent(), "no events after game over")
	assert.Nil(t, mb.getLastPlayerEvent(playerA.ID))
}

func TestPickWinnerPrefersFinalRoundCallerOnTie(t *testing.T) {
	g, players, _ := setupTestGame(t, 3, nil)
	playerA := players[0]
	playerB := players[1]

	giveUnit(g, playerA, testCard(models.ColorRed, 1, 10, ""), testCard(models.ColorRed, 1, 10, ""))
	giveUnit(g, playerB, testCard(models.ColorBlue, 1, 10, ""), testCard(models.ColorBlue, 1, 10, ""))
	g.FinalRoundCallerID = playerB.ID

	scores := g.computeScores()
	require.Equal(t, scores[playerA.ID], scores[playerB.ID])
	assert.Equal(t, playerB.ID, g.pickWinner(scores))
}

func TestGraveyardValuesCountAgainstScore(t *testing.T) {
	g, players, _ := setupTestGame(t, 2, nil)
	playerA := players[0]

	giveUnit(g, playerA, testCard(models.ColorRed, 1, 5, ""), testCard(models.ColorRed, 1, 5, ""))
	playerA.Graveyard = append(playerA.Graveyard, testCard(models.ColorRed, 1, 3, ""))

	scores := g.computeScores()
	assert.Equal(t, 7, scores[playerA.ID])
}

func TestObfuscatedStateHidesOpponentHands(t *testing.T) {
	g, players, _ := setupTestGame(t, 2, nil)
	playerA := players[0]
	playerB := players[1]

	state := g.GetCurrentObfuscatedGameState(playerA.ID)
	assert.Equal(t, g.ID, state.GameID)
	assert.Equal(t, playerA.ID, state.CurrentPlayerID)

	for _, ps := range state.Players {
		switch ps.PlayerID {
		case playerA.ID:
			assert.Len(t, ps.RevealedHand, len(playerA.Hand), "own hand is visible")
		case playerB.ID:
			assert.Empty(t, ps.RevealedHand, "opponent hand cards stay hidden")
			assert.Equal(t, len(playerB.Hand), ps.HandSize)
		}
	}
}
