// internal/game/game.go
package game

import (
	"context"
	"errors"
	"log"
	"math/rand"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"

	"github.com/dwarveslive/unit-card-battles/internal/ability"
	"github.com/dwarveslive/unit-card-battles/internal/cache"
	"github.com/dwarveslive/unit-card-battles/internal/database"
	"github.com/dwarveslive/unit-card-battles/internal/models"
)

// OnGameEndFunc handles a finished match, broadcasting results to the room, etc.
type OnGameEndFunc func(roomID uuid.UUID, winner uuid.UUID, scores map[uuid.UUID]int)

// Phase names the step of the current player's turn.
type Phase string

const (
	PhaseDraw      Phase = "draw"
	PhasePlay      Phase = "play"
	PhaseAttack    Phase = "attack"
	PhaseBattle    Phase = "battle"
	PhaseReinforce Phase = "reinforce"
	PhaseDiscard   Phase = "discard"
)

// GameEventType is an enum-like type for broadcasting game actions.
type GameEventType string

const (
	EventGameStart           GameEventType = "game_start"
	EventTurnStart           GameEventType = "turn_start"
	EventPlayerDraw          GameEventType = "player_draw"
	EventPlayerDiscard       GameEventType = "player_discard"
	EventUnitPlayed          GameEventType = "unit_played"
	EventUnitReinforced      GameEventType = "unit_reinforced"
	EventActionChosen        GameEventType = "action_chosen"
	EventBattleStart         GameEventType = "battle_start"
	EventBattleEnd           GameEventType = "battle_end"
	EventKidnapChoice        GameEventType = "kidnap_choice"
	EventKidnapResolved      GameEventType = "kidnap_resolved"
	EventAttackBlocked       GameEventType = "attack_blocked"
	EventActionRejected      GameEventType = "action_rejected"
	EventAbilityActivated    GameEventType = "ability_activated"
	EventEffectInputRequired GameEventType = "effect_input_required"
	EventEffectSkipped       GameEventType = "effect_skipped"
	EventFinalRoundStarted   GameEventType = "final_round_started"
	EventFinalRoundCancelled GameEventType = "final_round_cancelled"
	EventGameEnded           GameEventType = "game_ended"
	EventSyncState           GameEventType = "sync_state"
)

// EventUser is used within GameEvent payloads for user identification.
type EventUser struct {
	ID uuid.UUID `json:"id"`
}

// EventCard is used within GameEvent payloads for card identification.
type EventCard struct {
	ID    uuid.UUID `json:"id"`
	Name  string    `json:"name,omitempty"`
	Color string    `json:"color,omitempty"`
	Power int       `json:"power,omitempty"`
	Value int       `json:"value,omitempty"`
}

// GameEvent holds data about an event that can be broadcast to the clients
// in a consistent format.
type GameEvent struct {
	Type GameEventType `json:"type"`
	User *EventUser    `json:"user,omitempty"`
	Card *EventCard    `json:"card,omitempty"`

	Payload map[string]interface{} `json:"payload,omitempty"`

	// State carries a redacted snapshot on sync events.
	State *ObfGameState `json:"state,omitempty"`
}

func cardDetail(c *models.Card) *EventCard {
	if c == nil {
		return nil
	}
	return &EventCard{ID: c.ID, Name: c.Name, Color: string(c.Color), Power: c.Power, Value: c.Value}
}

// Game holds the entire state for a single match instance in memory.
type Game struct {
	ID     uuid.UUID
	RoomID uuid.UUID // references the room that spawned this match

	Config Config

	Players     []*models.Player
	Deck        []*models.Card
	DiscardPile []*models.Card

	// Turn state
	CurrentPlayerIndex int
	TurnID             int
	Phase              Phase
	ActionChosen       string // "attack" or "discard" once picked
	CardsDrawn         int
	AttacksUsed        int
	UnitPlayed         bool

	Battle        *BattleState
	PendingKidnap *KidnapChoice
	PendingEffect *PendingEffect

	// Final round countdown
	FinalRoundActive    bool
	FinalRoundCallerID  uuid.UUID
	FinalRoundTurnsLeft int

	Started  bool
	GameOver bool

	// Modifier ledgers. permMods lasts for the match, tempMods is reverted
	// at turn end.
	permMods          map[modKey]int
	tempMods          map[modKey]int
	copiedAbilities   map[uuid.UUID]*ability.Ability
	activatedThisTurn map[uuid.UUID]bool

	rng         *rand.Rand
	actionIndex int
	lastSeen    map[uuid.UUID]time.Time
	Mu          sync.Mutex

	// BroadcastFn is used to send events to all players. If nil, no broadcast is done.
	BroadcastFn func(ev GameEvent)

	// BroadcastToPlayerFn sends an event to a single specific player.
	BroadcastToPlayerFn func(playerID uuid.UUID, ev GameEvent)

	// OnGameEnd is invoked after the match concludes, outside persistence.
	OnGameEnd OnGameEndFunc
}

// NewGame creates an empty match with the given config, filling zero knobs
// with defaults.
func NewGame(cfg Config) *Game {
	def := DefaultConfig()
	if cfg.HandSize == 0 {
		cfg.HandSize = def.HandSize
	}
	if cfg.DrawsPerTurn == 0 {
		cfg.DrawsPerTurn = def.DrawsPerTurn
	}
	if cfg.AttacksPerTurn == 0 {
		cfg.AttacksPerTurn = def.AttacksPerTurn
	}
	if cfg.WinThreshold == 0 {
		cfg.WinThreshold = def.WinThreshold
	}
	if cfg.Colors == 0 {
		cfg.Colors = def.Colors
	}
	if cfg.CardsPerColor == 0 {
		cfg.CardsPerColor = def.CardsPerColor
	}
	if cfg.MinUnitSize == 0 {
		cfg.MinUnitSize = def.MinUnitSize
	}

	seed := cfg.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &Game{
		ID:                uuid.New(),
		Config:            cfg,
		Phase:             PhaseDraw,
		permMods:          map[modKey]int{},
		tempMods:          map[modKey]int{},
		copiedAbilities:   map[uuid.UUID]*ability.Ability{},
		activatedThisTurn: map[uuid.UUID]bool{},
		lastSeen:          map[uuid.UUID]time.Time{},
		rng:               rand.New(rand.NewSource(seed)),
	}
}

// AddPlayer registers a player, or reconnects them if already present.
func (g *Game) AddPlayer(p *models.Player) {
	g.Mu.Lock()
	defer g.Mu.Unlock()

	for _, existing := range g.Players {
		if existing.ID == p.ID {
			existing.Conn = p.Conn
			existing.Connected = true
			g.lastSeen[p.ID] = time.Now()
			g.logAction(p.ID, "player_add", map[string]interface{}{"reconnect": true})
			return
		}
	}
	g.Players = append(g.Players, p)
	g.lastSeen[p.ID] = time.Now()
	g.logAction(p.ID, "player_add", map[string]interface{}{"reconnect": false})
}

// Start builds and deals the deck and opens the first turn.
func (g *Game) Start() error {
	g.Mu.Lock()
	defer g.Mu.Unlock()

	if g.Started {
		return nil
	}
	deck, err := BuildDeck(g.Config, g.rng)
	if err != nil {
		return err
	}
	remaining, discard, err := Deal(deck, g.Players, g.Config)
	if err != nil {
		return err
	}
	g.Deck = remaining
	g.DiscardPile = discard
	g.Started = true
	g.TurnID = 1
	g.CurrentPlayerIndex = 0
	g.Phase = PhaseDraw

	g.logAction(uuid.Nil, string(EventGameStart), map[string]interface{}{
		"players": len(g.Players), "deckSize": len(g.Deck),
	})
	g.fireEvent(GameEvent{
		Type: EventGameStart,
		Payload: map[string]interface{}{
			"gameId":   g.ID.String(),
			"players":  len(g.Players),
			"deckSize": len(g.Deck),
		},
	})
	for _, p := range g.Players {
		g.sendSyncState(p.ID)
	}
	g.broadcastTurnStart()
	g.persistInitialMatchState()
	return nil
}

// persistInitialMatchState stores the post-deal deck order and hands for
// later replay.
func (g *Game) persistInitialMatchState() {
	type initialState struct {
		Deck    []*models.Card            `json:"deck"`
		Players map[string][]*models.Card `json:"players"`
	}

	snap := initialState{
		Deck:    make([]*models.Card, len(g.Deck)),
		Players: make(map[string][]*models.Card),
	}
	copy(snap.Deck, g.Deck)
	for _, p := range g.Players {
		handCopy := make([]*models.Card, len(p.Hand))
		copy(handCopy, p.Hand)
		snap.Players[p.ID.String()] = handCopy
	}

	go database.UpsertInitialMatchState(g.ID, snap)
	g.logAction(uuid.Nil, "match_initial_state_saved", map[string]interface{}{"deckSize": len(snap.Deck)})
}

// fireEvent broadcasts an event to all connected players.
// Assumes lock is held.
func (g *Game) fireEvent(ev GameEvent) {
	if g.BroadcastFn != nil {
		g.BroadcastFn(ev)
	} else {
		log.Printf("Warning: BroadcastFn is nil for game %s, cannot broadcast event type %s.", g.ID, ev.Type)
	}
}

// fireEventToPlayer sends an event only to a specific player.
// Assumes lock is held.
func (g *Game) fireEventToPlayer(playerID uuid.UUID, ev GameEvent) {
	if g.BroadcastToPlayerFn == nil {
		log.Printf("Warning: BroadcastToPlayerFn is nil for game %s, cannot send private event type %s to player %s.", g.ID, ev.Type, playerID)
		return
	}
	target := g.getPlayerByID(playerID)
	if target != nil && target.Connected {
		g.BroadcastToPlayerFn(playerID, ev)
	}
}

func (g *Game) getPlayerByID(playerID uuid.UUID) *models.Player {
	for _, p := range g.Players {
		if p.ID == playerID {
			return p
		}
	}
	return nil
}

func (g *Game) currentPlayer() *models.Player {
	if len(g.Players) == 0 || g.CurrentPlayerIndex >= len(g.Players) {
		return nil
	}
	return g.Players[g.CurrentPlayerIndex]
}

// logAction pushes the action to the historian queue, ordered by an
// incrementing index.
func (g *Game) logAction(actorID uuid.UUID, actionType string, payload map[string]interface{}) {
	g.actionIndex++
	if payload == nil {
		payload = make(map[string]interface{})
	}
	record := cache.MatchActionRecord{
		MatchID:       g.ID,
		ActionIndex:   g.actionIndex,
		ActorUserID:   actorID,
		ActionType:    actionType,
		ActionPayload: payload,
		Timestamp:     time.Now().UnixMilli(),
	}
	go func(rec cache.MatchActionRecord) {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if cache.Rdb == nil {
			return
		}
		if err := cache.PublishMatchAction(ctx, rec); err != nil {
			log.Printf("Error publishing match action %d to Redis for game %s: %v", rec.ActionIndex, g.ID, err)
		}
	}(record)
}

// reject surfaces a validation failure to the actor without touching state.
// Assumes lock is held.
func (g *Game) reject(playerID uuid.UUID, err error) {
	var verr *ValidationError
	if !errors.As(err, &verr) {
		verr = &ValidationError{Code: ReasonInvalidPayload, Msg: err.Error()}
	}
	g.fireEventToPlayer(playerID, GameEvent{
		Type: EventActionRejected,
		Payload: map[string]interface{}{
			"reason":  verr.Code,
			"message": verr.Msg,
		},
	})
}

// payloadUUID extracts and parses a UUID field from an action payload.
func payloadUUID(payload map[string]interface{}, key string) (uuid.UUID, error) {
	s, _ := payload[key].(string)
	id, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, rejectf(ReasonInvalidPayload, "missing or malformed %s", key)
	}
	return id, nil
}

// payloadUUIDList extracts a list of UUIDs from an action payload.
func payloadUUIDList(payload map[string]interface{}, key string) ([]uuid.UUID, error) {
	raw, _ := payload[key].([]interface{})
	if len(raw) == 0 {
		return nil, rejectf(ReasonInvalidPayload, "missing or empty %s", key)
	}
	ids := make([]uuid.UUID, 0, len(raw))
	for _, v := range raw {
		s, _ := v.(string)
		id, err := uuid.Parse(s)
		if err != nil {
			return nil, rejectf(ReasonInvalidPayload, "malformed card id %q in %s", s, key)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// HandlePlayerAction routes a single intent. Out-of-turn intents are
// rejected except for battle defense, kidnap choices, and pending effect
// choices, which belong to other players by design of those flows.
// NOTE: Lock is assumed to be HELD by the caller.
func (g *Game) HandlePlayerAction(playerID uuid.UUID, action models.GameAction) {
	if g.GameOver {
		log.Printf("Game %s: Action %s received from player %s after game over. Ignoring.", g.ID, action.ActionType, playerID)
		return
	}
	if !g.Started {
		log.Printf("Game %s: Action %s received from player %s before game start. Ignoring.", g.ID, action.ActionType, playerID)
		return
	}
	player := g.getPlayerByID(playerID)
	if player == nil || !player.Connected {
		log.Printf("Game %s: Action %s received from non-existent or disconnected player %s. Ignoring.", g.ID, action.ActionType, playerID)
		return
	}
	g.lastSeen[playerID] = time.Now()

	outOfTurnOK := action.ActionType == "action_defend" ||
		action.ActionType == "action_kidnap" ||
		action.ActionType == "action_skip_kidnap" ||
		action.ActionType == "action_effect_choice"
	isCurrent := g.currentPlayer() != nil && g.currentPlayer().ID == playerID
	if !isCurrent && !outOfTurnOK {
		g.reject(playerID, rejectf(ReasonNotYourTurn, "it's not your turn"))
		return
	}

	// A pending choice blocks the chooser's other intents until resolved.
	if g.PendingEffect != nil && g.PendingEffect.ChooserID == playerID && action.ActionType != "action_effect_choice" {
		g.reject(playerID, rejectf(ReasonPendingChoice, "resolve the pending card choice first"))
		return
	}
	if g.PendingKidnap != nil && g.PendingKidnap.ChooserID == playerID &&
		action.ActionType != "action_kidnap" && action.ActionType != "action_skip_kidnap" {
		g.reject(playerID, rejectf(ReasonPendingChoice, "resolve the kidnap choice first"))
		return
	}

	var err error
	switch action.ActionType {
	case "action_draw":
		err = g.handleDraw(playerID, action.Payload)
	case "action_play_unit":
		err = g.handlePlayUnit(playerID, action.Payload)
	case "action_choose":
		err = g.handleChoose(playerID, action.Payload)
	case "action_attack":
		err = g.handleAttack(playerID, action.Payload)
	case "action_defend":
		err = g.handleDefend(playerID, action.Payload)
	case "action_reinforce":
		err = g.handleReinforce(playerID, action.Payload)
	case "action_kidnap":
		err = g.handleKidnap(playerID, action.Payload)
	case "action_skip_kidnap":
		err = g.handleSkipKidnap(playerID)
	case "action_discard":
		err = g.handleDiscardAction(playerID, action.Payload)
	case "action_activate_ability":
		err = g.handleActivateAbility(playerID, action.Payload)
	case "action_effect_choice":
		err = g.handleEffectChoice(playerID, action.Payload)
	case "action_end_turn":
		err = g.handleEndTurn(playerID)
	default:
		err = rejectf(ReasonUnknownAction, "unknown action type %q", action.ActionType)
	}
	if err != nil {
		g.reject(playerID, err)
	}
}

// handleDraw serves the draw phase: up to DrawsPerTurn cards from the deck
// or the discard pile, auto-advancing to the play phase once the quota is
// met or nothing is drawable.
// Assumes lock is held.
func (g *Game) handleDraw(playerID uuid.UUID, payload map[string]interface{}) error {
	if g.Phase != PhaseDraw {
		return rejectf(ReasonWrongPhase, "drawing happens in the draw phase")
	}
	player := g.getPlayerByID(playerID)
	fromDiscard, _ := payload["fromDiscard"].(bool)

	if len(g.Deck) == 0 && len(g.DiscardPile) == 0 {
		// nothing drawable at all: release the player into the play phase
		g.Phase = PhasePlay
		g.fireEvent(GameEvent{
			Type: EventPlayerDraw,
			User: &EventUser{ID: playerID},
			Payload: map[string]interface{}{
				"skipped": true,
				"reason":  ReasonEmptyPiles,
				"phase":   string(PhasePlay),
			},
		})
		g.logAction(playerID, "draw_skipped", map[string]interface{}{"reason": ReasonEmptyPiles})
		return nil
	}

	var card *models.Card
	if fromDiscard {
		if len(g.DiscardPile) == 0 {
			return rejectf(ReasonEmptyPiles, "discard pile is empty")
		}
		card = g.DiscardPile[len(g.DiscardPile)-1]
		g.DiscardPile = g.DiscardPile[:len(g.DiscardPile)-1]
	} else {
		if len(g.Deck) == 0 {
			return rejectf(ReasonEmptyPiles, "deck is empty")
		}
		card = g.Deck[len(g.Deck)-1]
		g.Deck = g.Deck[:len(g.Deck)-1]
	}
	player.Hand = append(player.Hand, card)
	g.CardsDrawn++

	g.fireEventToPlayer(playerID, GameEvent{
		Type: EventPlayerDraw,
		User: &EventUser{ID: playerID},
		Card: cardDetail(card),
	})
	g.fireEvent(GameEvent{
		Type: EventPlayerDraw,
		User: &EventUser{ID: playerID},
		Payload: map[string]interface{}{
			"fromDiscard": fromDiscard,
			"count":       g.CardsDrawn,
			"deckSize":    len(g.Deck),
			"discardSize": len(g.DiscardPile),
		},
	})
	g.logAction(playerID, "action_draw", map[string]interface{}{"cardId": card.ID, "fromDiscard": fromDiscard})

	if g.CardsDrawn >= g.Config.DrawsPerTurn {
		g.Phase = PhasePlay
	}
	return nil
}

// handlePlayUnit forms one new unit from hand cards. One unit per turn.
// Assumes lock is held.
func (g *Game) handlePlayUnit(playerID uuid.UUID, payload map[string]interface{}) error {
	if g.Phase != PhasePlay {
		return rejectf(ReasonWrongPhase, "units are played in the play phase")
	}
	if g.UnitPlayed {
		return rejectf(ReasonUnitAlready, "only one unit may be played per turn")
	}
	player := g.getPlayerByID(playerID)

	cardIDs, err := payloadUUIDList(payload, "cardIds")
	if err != nil {
		return err
	}
	cards := make([]*models.Card, 0, len(cardIDs))
	seen := map[uuid.UUID]bool{}
	for _, id := range cardIDs {
		if seen[id] {
			return rejectf(ReasonInvalidPayload, "duplicate card id %s", id)
		}
		seen[id] = true
		c := player.FindInHand(id)
		if c == nil {
			return rejectf(ReasonUnknownCard, "card %s is not in your hand", id)
		}
		cards = append(cards, c)
	}
	if err := CanFormUnit(cards, g.Config.MinUnitSize); err != nil {
		return err
	}

	for _, c := range cards {
		player.RemoveFromHand(c.ID)
	}
	unit := &models.Unit{ID: uuid.New(), PlayerID: playerID, Cards: cards}
	unit.Recompute(g.EffectiveValue)
	player.Units = append(player.Units, unit)
	g.UnitPlayed = true

	g.fireEvent(GameEvent{
		Type: EventUnitPlayed,
		User: &EventUser{ID: playerID},
		Payload: map[string]interface{}{
			"unitId":     unit.ID.String(),
			"cards":      len(unit.Cards),
			"totalValue": unit.TotalValue,
		},
	})
	g.logAction(playerID, "action_play_unit", map[string]interface{}{"unitId": unit.ID, "cards": cardIDs})

	g.firePlayTriggers(player, cards)
	g.recomputeUnits()
	g.checkFinalRound()
	return nil
}

// firePlayTriggers runs when-played abilities for newly boarded cards.
// Assumes lock is held.
func (g *Game) firePlayTriggers(owner *models.Player, cards []*models.Card) {
	for _, c := range cards {
		a := g.abilityOf(c)
		if a == nil || a.Type != ability.TypePlayTrigger {
			continue
		}
		res := g.executeAbility(c, a, EffectContext{SourcePlayer: owner})
		if res.Success {
			g.fireEvent(GameEvent{
				Type:    EventAbilityActivated,
				User:    &EventUser{ID: owner.ID},
				Card:    cardDetail(c),
				Payload: map[string]interface{}{"trigger": "when_played"},
			})
		}
	}
}

// handleReinforce adds one hand card to an existing own unit. Legal during
// the play phase and after a battle in the reinforce phase.
// Assumes lock is held.
func (g *Game) handleReinforce(playerID uuid.UUID, payload map[string]interface{}) error {
	if g.Phase != PhasePlay && g.Phase != PhaseReinforce {
		return rejectf(ReasonWrongPhase, "reinforcing happens in the play or reinforce phase")
	}
	player := g.getPlayerByID(playerID)

	cardID, err := payloadUUID(payload, "cardId")
	if err != nil {
		return err
	}
	unitID, err := payloadUUID(payload, "unitId")
	if err != nil {
		return err
	}
	card := player.FindInHand(cardID)
	if card == nil {
		return rejectf(ReasonUnknownCard, "card %s is not in your hand", cardID)
	}
	unit := player.FindUnit(unitID)
	if unit == nil {
		return rejectf(ReasonUnknownUnit, "unit %s is not on your board", unitID)
	}
	if err := CanAddCardToUnit(card, unit); err != nil {
		return err
	}

	player.RemoveFromHand(cardID)
	unit.Cards = append(unit.Cards, card)
	unit.Recompute(g.EffectiveValue)

	g.fireEvent(GameEvent{
		Type: EventUnitReinforced,
		User: &EventUser{ID: playerID},
		Card: cardDetail(card),
		Payload: map[string]interface{}{
			"unitId":     unit.ID.String(),
			"totalValue": unit.TotalValue,
		},
	})
	g.logAction(playerID, "action_reinforce", map[string]interface{}{"cardId": cardID, "unitId": unitID})

	g.firePlayTriggers(player, []*models.Card{card})
	g.recomputeUnits()
	g.checkFinalRound()
	return nil
}

// handleChoose records the turn's committed action: attack or discard.
// Assumes lock is held.
func (g *Game) handleChoose(playerID uuid.UUID, payload map[string]interface{}) error {
	if g.Phase != PhasePlay {
		return rejectf(ReasonWrongPhase, "the action choice follows the play phase")
	}
	choice, _ := payload["action"].(string)
	if choice != "attack" && choice != "discard" {
		return rejectf(ReasonInvalidPayload, "action must be attack or discard")
	}
	g.ActionChosen = choice
	if choice == "attack" {
		g.Phase = PhaseAttack
	} else {
		g.Phase = PhaseDiscard
	}
	g.fireEvent(GameEvent{
		Type:    EventActionChosen,
		User:    &EventUser{ID: playerID},
		Payload: map[string]interface{}{"action": choice},
	})
	g.logAction(playerID, "action_choose", map[string]interface{}{"action": choice})
	return nil
}

// handleDiscardAction discards one hand card and ends the turn.
// Assumes lock is held.
func (g *Game) handleDiscardAction(playerID uuid.UUID, payload map[string]interface{}) error {
	if g.Phase != PhaseDiscard {
		return rejectf(ReasonWrongPhase, "discarding happens in the discard phase")
	}
	player := g.getPlayerByID(playerID)

	cardID, err := payloadUUID(payload, "cardId")
	if err != nil {
		return err
	}
	card, ok := player.RemoveFromHand(cardID)
	if !ok {
		return rejectf(ReasonUnknownCard, "card %s is not in your hand", cardID)
	}
	g.DiscardPile = append(g.DiscardPile, card)

	g.fireEvent(GameEvent{
		Type: EventPlayerDiscard,
		User: &EventUser{ID: playerID},
		Card: cardDetail(card),
	})
	g.logAction(playerID, "action_discard", map[string]interface{}{"cardId": cardID})

	g.advanceTurn()
	return nil
}

// handleActivateAbility triggers an activated ability on one of the
// player's board cards, once per card per turn, during the play phase.
// Assumes lock is held.
func (g *Game) handleActivateAbility(playerID uuid.UUID, payload map[string]interface{}) error {
	if g.Phase != PhasePlay {
		return rejectf(ReasonWrongPhase, "abilities activate during the play phase")
	}
	player := g.getPlayerByID(playerID)

	cardID, err := payloadUUID(payload, "cardId")
	if err != nil {
		return err
	}
	var card *models.Card
	for _, u := range player.Units {
		if c := u.FindCard(cardID); c != nil {
			card = c
			break
		}
	}
	if card == nil {
		return rejectf(ReasonUnknownCard, "card %s is not on your board", cardID)
	}
	if g.activatedThisTurn[cardID] {
		return rejectf(ReasonAlreadyUsed, "card %s already activated this turn", cardID)
	}
	a := g.abilityOf(card)
	if a == nil || a.Activation != ability.ActivationActivated {
		return rejectf(ReasonInvalidChoice, "card has no activated ability")
	}
	for _, cond := range a.Conditions {
		if cond.Type == ability.CondRequiresCard && !g.hasCardNamed(player, cond.Value) {
			return rejectf(ReasonConditionUnmet, "requires a card named %q on your board", cond.Value)
		}
	}

	ctx := EffectContext{SourcePlayer: player}
	if s, ok := payload["targetPlayerId"].(string); ok && s != "" {
		id, perr := uuid.Parse(s)
		if perr != nil {
			return rejectf(ReasonInvalidPayload, "malformed targetPlayerId")
		}
		ctx.TargetPlayer = g.getPlayerByID(id)
		if ctx.TargetPlayer == nil {
			return rejectf(ReasonInvalidChoice, "target player not in game")
		}
	}
	if s, ok := payload["targetCardId"].(string); ok && s != "" {
		id, perr := uuid.Parse(s)
		if perr != nil {
			return rejectf(ReasonInvalidPayload, "malformed targetCardId")
		}
		ctx.TargetCard, ctx.TargetUnit = g.findBoardCard(id, ctx.TargetPlayer)
		if ctx.TargetCard == nil {
			return rejectf(ReasonUnknownCard, "target card not found on any board")
		}
	}
	if s, ok := payload["targetUnitId"].(string); ok && s != "" {
		id, perr := uuid.Parse(s)
		if perr != nil {
			return rejectf(ReasonInvalidPayload, "malformed targetUnitId")
		}
		unit, owner := g.findUnit(id)
		if unit == nil {
			return rejectf(ReasonUnknownUnit, "target unit not found")
		}
		ctx.TargetUnit = unit
		if ctx.TargetPlayer == nil {
			ctx.TargetPlayer = owner
		}
	}
	// effects aimed at an opponent default to... nothing; steal/discard need
	// an explicit target when more than one opponent exists
	if ctx.TargetPlayer == nil && len(g.Players) == 2 {
		for _, p := range g.Players {
			if p.ID != playerID {
				ctx.TargetPlayer = p
			}
		}
	}

	res := g.executeAbility(card, a, ctx)
	if !res.Success && !res.RequiresInput {
		return rejectf(ReasonInvalidChoice, "ability could not resolve: %s", res.Reason)
	}

	g.activatedThisTurn[cardID] = true
	g.fireEvent(GameEvent{
		Type:    EventAbilityActivated,
		User:    &EventUser{ID: playerID},
		Card:    cardDetail(card),
		Payload: map[string]interface{}{"ability": card.AbilityText},
	})
	g.logAction(playerID, "action_activate_ability", map[string]interface{}{"cardId": cardID})

	if res.RequiresInput {
		g.PendingEffect = res.Pending
		g.fireEventToPlayer(res.Pending.ChooserID, GameEvent{
			Type: EventEffectInputRequired,
			Payload: map[string]interface{}{
				"effect": string(res.Pending.Effect.Type),
				"amount": res.Pending.Effect.Amount,
			},
		})
	}

	g.recomputeUnits()
	g.checkFinalRound()
	return nil
}

// handleEffectChoice answers a pending discard or revive effect.
// Assumes lock is held.
func (g *Game) handleEffectChoice(playerID uuid.UUID, payload map[string]interface{}) error {
	pe := g.PendingEffect
	if pe == nil {
		return rejectf(ReasonWrongPhase, "no effect choice pending")
	}
	if pe.ChooserID != playerID {
		return rejectf(ReasonNotChooser, "this choice belongs to another player")
	}
	cardIDs, err := payloadUUIDList(payload, "cardIds")
	if err != nil {
		return err
	}
	if err := g.resolvePendingEffect(pe, cardIDs); err != nil {
		return err
	}
	g.PendingEffect = nil
	g.logAction(playerID, "action_effect_choice", map[string]interface{}{"cards": cardIDs})
	g.recomputeUnits()
	g.checkFinalRound()
	return nil
}

// handleEndTurn closes the turn from the reinforce phase, forfeits an
// undeclared attack, or skips the discard with an empty hand.
// Assumes lock is held.
func (g *Game) handleEndTurn(playerID uuid.UUID) error {
	switch g.Phase {
	case PhaseReinforce:
	case PhaseAttack:
	case PhaseDiscard:
		if len(g.getPlayerByID(playerID).Hand) > 0 {
			return rejectf(ReasonWrongPhase, "a card must be discarded first")
		}
	default:
		return rejectf(ReasonWrongPhase, "the turn cannot end during the %s phase", g.Phase)
	}
	g.logAction(playerID, "action_end_turn", nil)
	g.advanceTurn()
	return nil
}

// findBoardCard locates a card in any unit (or the owner's hand for
// graveyard-adjacent effects), scoped to owner when given.
func (g *Game) findBoardCard(cardID uuid.UUID, owner *models.Player) (*models.Card, *models.Unit) {
	players := g.Players
	if owner != nil {
		players = []*models.Player{owner}
	}
	for _, p := range players {
		for _, u := range p.Units {
			if c := u.FindCard(cardID); c != nil {
				return c, u
			}
		}
	}
	return nil, nil
}

func (g *Game) findUnit(unitID uuid.UUID) (*models.Unit, *models.Player) {
	for _, p := range g.Players {
		if u := p.FindUnit(unitID); u != nil {
			return u, p
		}
	}
	return nil, nil
}

// checkFinalRound starts or cancels the endgame countdown after any
// state-changing action. Assumes lock is held; unit totals must be fresh.
func (g *Game) checkFinalRound() {
	if g.GameOver {
		return
	}
	if g.FinalRoundActive {
		caller := g.getPlayerByID(g.FinalRoundCallerID)
		if caller == nil || scoreOf(caller) < g.Config.WinThreshold {
			g.FinalRoundActive = false
			g.FinalRoundCallerID = uuid.Nil
			g.FinalRoundTurnsLeft = 0
			g.fireEvent(GameEvent{Type: EventFinalRoundCancelled})
			g.logAction(uuid.Nil, string(EventFinalRoundCancelled), nil)
		}
		return
	}
	for _, p := range g.Players {
		if scoreOf(p) >= g.Config.WinThreshold {
			g.FinalRoundActive = true
			g.FinalRoundCallerID = p.ID
			g.FinalRoundTurnsLeft = len(g.Players) - 1
			g.fireEvent(GameEvent{
				Type: EventFinalRoundStarted,
				User: &EventUser{ID: p.ID},
				Payload: map[string]interface{}{
					"score":     scoreOf(p),
					"turnsLeft": g.FinalRoundTurnsLeft,
				},
			})
			g.logAction(p.ID, string(EventFinalRoundStarted), map[string]interface{}{"score": scoreOf(p)})
			return
		}
	}
}

// advanceTurn reverts this-turn effects, runs the final-round countdown,
// and hands the turn to the next connected player. Assumes lock is held.
func (g *Game) advanceTurn() {
	if g.GameOver {
		return
	}
	if len(g.Players) == 0 {
		log.Printf("Game %s: Cannot advance turn, no players in game.", g.ID)
		g.EndGame()
		return
	}

	endingPlayer := g.currentPlayer()
	g.clearTurnEffects()
	g.checkFinalRound()

	if g.FinalRoundActive && endingPlayer != nil && endingPlayer.ID != g.FinalRoundCallerID {
		g.FinalRoundTurnsLeft--
		if g.FinalRoundTurnsLeft <= 0 {
			g.EndGame()
			return
		}
	}

	g.TurnID++
	nextIndex := (g.CurrentPlayerIndex + 1) % len(g.Players)
	skipped := 0
	for !g.Players[nextIndex].Connected {
		nextIndex = (nextIndex + 1) % len(g.Players)
		skipped++
		if skipped >= len(g.Players) {
			log.Printf("Game %s: No connected players left to advance turn to. Ending game.", g.ID)
			g.EndGame()
			return
		}
	}
	g.CurrentPlayerIndex = nextIndex

	g.Phase = PhaseDraw
	g.ActionChosen = ""
	g.CardsDrawn = 0
	g.AttacksUsed = 0
	g.UnitPlayed = false
	g.Battle = nil
	g.PendingKidnap = nil
	g.PendingEffect = nil

	g.broadcastTurnStart()
}

func (g *Game) broadcastTurnStart() {
	current := g.currentPlayer()
	if current == nil {
		return
	}
	g.fireEvent(GameEvent{
		Type: EventTurnStart,
		User: &EventUser{ID: current.ID},
		Payload: map[string]interface{}{
			"turn":  g.TurnID,
			"phase": string(g.Phase),
		},
	})
	g.logAction(current.ID, string(EventTurnStart), map[string]interface{}{"turn": g.TurnID})
}

// computeScores returns each player's current score. Assumes fresh totals.
func (g *Game) computeScores() map[uuid.UUID]int {
	g.recomputeUnits()
	scores := make(map[uuid.UUID]int, len(g.Players))
	for _, p := range g.Players {
		scores[p.ID] = scoreOf(p)
	}
	return scores
}

// pickWinner applies the tie-break: best score wins; the final-round caller
// wins ties it is part of; remaining ties go to the lower seat index.
func (g *Game) pickWinner(scores map[uuid.UUID]int) uuid.UUID {
	best := 0
	var winner uuid.UUID
	for i, p := range g.Players {
		s := scores[p.ID]
		switch {
		case i == 0 || s > best:
			best = s
			winner = p.ID
		case s == best && p.ID == g.FinalRoundCallerID:
			winner = p.ID
		}
	}
	return winner
}

// EndGame finalizes the match: scores, winner, results broadcast and
// persistence. Assumes lock is held.
func (g *Game) EndGame() {
	if g.GameOver {
		log.Printf("Game %s: EndGame called, but game is already over.", g.ID)
		return
	}
	g.GameOver = true
	g.Started = false

	finalScores := g.computeScores()
	winner := g.pickWinner(finalScores)

	scoresPayload := make(map[string]int, len(finalScores))
	for id, s := range finalScores {
		scoresPayload[id.String()] = s
	}
	g.logAction(uuid.Nil, string(EventGameEnded), map[string]interface{}{
		"scores": finalScores,
		"winner": winner,
		"caller": g.FinalRoundCallerID,
	})
	g.fireEvent(GameEvent{
		Type: EventGameEnded,
		Payload: map[string]interface{}{
			"scores": scoresPayload,
			"winner": winner.String(),
		},
	})

	g.persistFinalMatchState(finalScores, winner)

	if g.OnGameEnd != nil {
		go g.OnGameEnd(g.RoomID, winner, finalScores)
	}
}

// persistFinalMatchState records the match row, per-player results, and a
// final board snapshot for replay.
func (g *Game) persistFinalMatchState(scores map[uuid.UUID]int, winner uuid.UUID) {
	results := make([]database.MatchResult, 0, len(g.Players))
	for _, p := range g.Players {
		results = append(results, database.MatchResult{
			UserID: p.ID,
			Score:  scores[p.ID],
			DidWin: p.ID == winner,
		})
	}

	boards := make(map[string]interface{}, len(g.Players))
	for _, p := range g.Players {
		boards[p.ID.String()] = map[string]interface{}{
			"units":     p.Units,
			"graveyard": p.Graveyard,
			"handSize":  len(p.Hand),
			"score":     scores[p.ID],
		}
	}
	snapshot := map[string]interface{}{
		"winner":  winner.String(),
		"turns":   g.TurnID,
		"players": boards,
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := database.RecordMatchAndResults(ctx, g.ID, g.RoomID, results); err != nil {
			log.Printf("Error persisting final results for game %s: %v", g.ID, err)
			return
		}
		if err := database.StoreFinalMatchState(ctx, g.ID, snapshot); err != nil {
			log.Printf("Error storing final state for game %s: %v", g.ID, err)
		}
	}()
}

// HandleDisconnect marks a player disconnected. Their turns are skipped
// until they return.
func (g *Game) HandleDisconnect(playerID uuid.UUID) {
	g.Mu.Lock()
	defer g.Mu.Unlock()

	player := g.getPlayerByID(playerID)
	if player == nil {
		return
	}
	player.Connected = false
	player.Conn = nil
	g.logAction(playerID, "player_disconnect", nil)

	if g.GameOver {
		return
	}
	if g.Battle != nil && g.Battle.DefenderID == playerID {
		g.autoResolveDefense()
	}
	if current := g.currentPlayer(); current != nil && current.ID == playerID {
		g.advanceTurn()
	}
}

// HandleReconnect rebinds a returning player's connection and pushes them a
// fresh snapshot so their client can catch up.
func (g *Game) HandleReconnect(playerID uuid.UUID, conn *websocket.Conn) {
	g.Mu.Lock()
	defer g.Mu.Unlock()

	player := g.getPlayerByID(playerID)
	if player == nil {
		return
	}
	player.Conn = conn
	player.Connected = true
	g.lastSeen[playerID] = time.Now()
	g.logAction(playerID, "player_reconnect", nil)
	g.sendSyncState(playerID)
}

// SendSyncState pushes a private redacted snapshot to one player.
func (g *Game) SendSyncState(playerID uuid.UUID) {
	g.Mu.Lock()
	defer g.Mu.Unlock()
	g.sendSyncState(playerID)
}

// sendSyncState pushes the snapshot. Assumes lock is held.
func (g *Game) sendSyncState(playerID uuid.UUID) {
	state := g.obfuscatedStateLocked(playerID)
	g.fireEventToPlayer(playerID, GameEvent{
		Type:  EventSyncState,
		State: &state,
	})
}
