// internal/game/deck_test.go
package game

import (
	"errors"
	"math/rand"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dwarveslive/unit-card-battles/internal/models"
)

func TestBuildDeckComposition(t *testing.T) {
	cfg := DefaultConfig()
	deck, err := BuildDeck(cfg, rand.New(rand.NewSource(7)))
	require.NoError(t, err)
	require.Len(t, deck, cfg.Colors*cfg.CardsPerColor)

	counts := map[models.Color]int{}
	for _, c := range deck {
		counts[c.Color]++
		assert.GreaterOrEqual(t, c.Power, 1)
		assert.LessOrEqual(t, c.Power, 5)
		assert.GreaterOrEqual(t, c.Value, 1)
		assert.LessOrEqual(t, c.Value, 5)
		assert.NotEmpty(t, c.Name)
		assert.NotEmpty(t, c.AbilityText)
		require.NotNil(t, c.Parsed, "ability text should be parsed at deck build")
	}
	for _, color := range models.Colors[:cfg.Colors] {
		assert.Equal(t, cfg.CardsPerColor, counts[color])
	}
}

func TestBuildDeckRejectsBadConfig(t *testing.T) {
	rng := rand.New(rand.NewSource(1))

	var cfgErr *ConfigError
	_, err := BuildDeck(Config{Colors: 0, CardsPerColor: 10}, rng)
	require.Error(t, err)
	require.True(t, errors.As(err, &cfgErr))
	assert.Equal(t, "colors", cfgErr.Field)

	_, err = BuildDeck(Config{Colors: 6, CardsPerColor: 10}, rng)
	require.True(t, errors.As(err, &cfgErr))

	_, err = BuildDeck(Config{Colors: 3, CardsPerColor: 0}, rng)
	require.True(t, errors.As(err, &cfgErr))
	assert.Equal(t, "cardsPerColor", cfgErr.Field)
}

func TestBuildDeckDeterministicForSeed(t *testing.T) {
	cfg := DefaultConfig()
	a, err := BuildDeck(cfg, rand.New(rand.NewSource(99)))
	require.NoError(t, err)
	b, err := BuildDeck(cfg, rand.New(rand.NewSource(99)))
	require.NoError(t, err)

	require.Len(t, b, len(a))
	for i := range a {
		assert.Equal(t, a[i].Name, b[i].Name)
		assert.Equal(t, a[i].Color, b[i].Color)
		assert.Equal(t, a[i].Power, b[i].Power)
		assert.Equal(t, a[i].Value, b[i].Value)
		assert.Equal(t, a[i].AbilityText, b[i].AbilityText)
	}
}

func TestShuffleDeterministicForSeed(t *testing.T) {
	mkDeck := func() []*models.Card {
		deck := make([]*models.Card, 10)
		for i := range deck {
			deck[i] = &models.Card{ID: uuid.NewSHA1(uuid.Nil, []byte{byte(i)}), Power: i}
		}
		return deck
	}

	a, b := mkDeck(), mkDeck()
	Shuffle(a, rand.New(rand.NewSource(5)))
	Shuffle(b, rand.New(rand.NewSource(5)))
	for i := range a {
		assert.Equal(t, a[i].ID, b[i].ID)
	}
}

func TestDealHandsAndDiscardSeed(t *testing.T) {
	cfg := DefaultConfig()
	deck, err := BuildDeck(cfg, rand.New(rand.NewSource(3)))
	require.NoError(t, err)

	players := []*models.Player{
		{ID: uuid.New()},
		{ID: uuid.New()},
		{ID: uuid.New()},
	}
	remaining, discard, err := Deal(deck, players, cfg)
	require.NoError(t, err)

	for _, p := range players {
		assert.Len(t, p.Hand, cfg.HandSize)
	}
	assert.Len(t, discard, len(players), "one discard seed card per player")
	assert.Len(t, remaining, len(deck)-len(players)*cfg.HandSize-len(players))
}

func TestDealRejectsBadPlayerCounts(t *testing.T) {
	cfg := DefaultConfig()
	deck, err := BuildDeck(cfg, rand.New(rand.NewSource(3)))
	require.NoError(t, err)

	var cfgErr *ConfigError
	_, _, err = Deal(deck, []*models.Player{{ID: uuid.New()}}, cfg)
	require.True(t, errors.As(err, &cfgErr))
	assert.Equal(t, "players", cfgErr.Field)

	seven := make([]*models.Player, 7)
	for i := range seven {
		seven[i] = &models.Player{ID: uuid.New()}
	}
	_, _, err = Deal(deck, seven, cfg)
	require.True(t, errors.As(err, &cfgErr))
}

func TestDealRejectsTooSmallDeck(t *testing.T) {
	cfg := DefaultConfig()
	small := []*models.Card{{ID: uuid.New()}, {ID: uuid.New()}}
	players := []*models.Player{{ID: uuid.New()}, {ID: uuid.New()}}

	var cfgErr *ConfigError
	_, _, err := Deal(small, players, cfg)
	require.True(t, errors.As(err, &cfgErr))
	assert.Equal(t, "deck", cfgErr.Field)
}
