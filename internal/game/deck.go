// internal/game/deck.go
package game

import (
	"math/rand"

	"github.com/google/uuid"

	"github.com/dwarveslive/unit-card-battles/internal/ability"
	"github.com/dwarveslive/unit-card-battles/internal/models"
)

// cardNames is the flavor name pool cards draw from at deck build.
var cardNames = []string{
	"Mystic Guardian", "Shadow Warrior", "Crystal Mage", "Fire Drake", "Ice Elemental",
	"Storm Knight", "Void Walker", "Light Bearer", "Dark Assassin", "Forest Druid",
	"Ocean Sage", "Mountain Giant", "Sky Rider", "Earth Shaman", "Star Caller",
	"Moon Dancer", "Sun Priest", "Wind Runner", "Stone Golem", "Flame Spirit",
	"Frost Witch", "Thunder Lord", "Mist Phantom", "Bone Necromancer", "Soul Reaper",
	"Divine Angel", "Demon Hunter", "Spirit Guide", "Chaos Spawn", "Order Paladin",
	"Nature Wrath", "Arcane Scholar", "Battle Mage", "Rogue Assassin", "Holy Crusader",
	"Death Knight", "Life Cleric", "War Chief", "Peace Keeper", "Time Mage",
	"Space Ranger", "Dimensional Shifter", "Reality Bender", "Dream Walker", "Nightmare",
	"Hope Beacon", "Despair Harbinger", "Fate Weaver", "Destiny Changer", "Luck Bringer",
}

// abilityPool holds the canonical rule texts cards are stamped with.
// Deterministic phrasings only; turn-skipping and healing texts are not part
// of the pool.
var abilityPool = []string{
	"Double this card's power when battling red cards",
	"Double this card's power when battling blue cards",
	"Increase this card's power by 1 when attacking",
	"Increase this card's power by 1 when defending",
	"Increase target card's power by 1 this turn",
	"Increase this card's value by 1 when played",
	"Draw 1 card from deck",
	"Target opponent discards 1 card from hand",
	"Steal 1 random card from opponent's hand",
	"Move 1 target card from your graveyard to your hand",
	"Destroy 1 target opponent's unit",
	"Immune to abilities from black cards",
	"Copy target enemy card's ability this turn",
	"Every time this card defeats another card, it gains 1 additional value until the end of the game",
	"Allows 1 card of a different color in this unit. Can stack.",
	"Can defend other units",
}

// BuildDeck generates a fresh shuffled deck per the config: CardsPerColor
// cards of each of the first Colors colors, with random power and value in
// [1,5] and an ability from the canonical pool. Abilities are parsed once
// here.
func BuildDeck(cfg Config, rng *rand.Rand) ([]*models.Card, error) {
	if cfg.Colors < 1 || cfg.Colors > len(models.Colors) {
		return nil, &ConfigError{Field: "colors", Msg: "must be between 1 and 5"}
	}
	if cfg.CardsPerColor < 1 {
		return nil, &ConfigError{Field: "cardsPerColor", Msg: "must be positive"}
	}

	deck := make([]*models.Card, 0, cfg.Colors*cfg.CardsPerColor)
	for _, color := range models.Colors[:cfg.Colors] {
		for i := 0; i < cfg.CardsPerColor; i++ {
			text := abilityPool[rng.Intn(len(abilityPool))]
			deck = append(deck, &models.Card{
				ID:          uuid.New(),
				Name:        cardNames[rng.Intn(len(cardNames))],
				Color:       color,
				Power:       rng.Intn(5) + 1,
				Value:       rng.Intn(5) + 1,
				AbilityText: text,
				Parsed:      ability.Parse(text),
			})
		}
	}
	Shuffle(deck, rng)
	return deck, nil
}

// Shuffle permutes the deck in place with a Fisher-Yates pass.
func Shuffle(deck []*models.Card, rng *rand.Rand) {
	for i := len(deck) - 1; i > 0; i-- {
		j := rng.Intn(i + 1)
		deck[i], deck[j] = deck[j], deck[i]
	}
}

// Deal removes HandSize cards per player from the front of the deck, then
// seeds the discard pile with one card per player. The deck must be large
// enough to cover both. Turn draws pop from the back.
func Deal(deck []*models.Card, players []*models.Player, cfg Config) (remaining, discard []*models.Card, err error) {
	if len(players) < 2 || len(players) > 6 {
		return nil, nil, &ConfigError{Field: "players", Msg: "game requires 2-6 players"}
	}
	need := len(players)*cfg.HandSize + len(players)
	if len(deck) < need {
		return nil, nil, &ConfigError{Field: "deck", Msg: "deck too small for player count"}
	}

	for _, p := range players {
		p.Hand = append(p.Hand, deck[:cfg.HandSize]...)
		deck = deck[cfg.HandSize:]
	}

	discard = append(make([]*models.Card, 0, len(players)), deck[:len(players)]...)
	deck = deck[len(players):]
	return deck, discard, nil
}
