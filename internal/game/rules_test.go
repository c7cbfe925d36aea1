// internal/game/rules_test.go
package game

import (
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dwarveslive/unit-card-battles/internal/models"
)

func requireValidationCode(t *testing.T, err error, code string) {
	t.Helper()
	var verr *ValidationError
	require.Error(t, err)
	require.True(t, errors.As(err, &verr))
	assert.Equal(t, code, verr.Code)
}

func TestCanFormUnitMinimumSize(t *testing.T) {
	cards := []*models.Card{
		testCard(models.ColorRed, 1, 1, ""),
		testCard(models.ColorRed, 1, 1, ""),
	}
	requireValidationCode(t, CanFormUnit(cards, 3), ReasonTooFewCards)
	assert.NoError(t, CanFormUnit(append(cards, testCard(models.ColorRed, 1, 1, "")), 3))
}

func TestWhiteAndBlackNeverShareAUnit(t *testing.T) {
	cards := []*models.Card{
		testCard(models.ColorWhite, 1, 1, ""),
		testCard(models.ColorBlack, 1, 1, ""),
		testCard(models.ColorBlack, 1, 1, ""),
	}
	requireValidationCode(t, CanFormUnit(cards, 3), ReasonColorConflict)
}

func TestAllGrayUnitInvalid(t *testing.T) {
	cards := []*models.Card{
		testCard(models.ColorGray, 1, 1, ""),
		testCard(models.ColorGray, 1, 1, ""),
		testCard(models.ColorGray, 1, 1, ""),
	}
	requireValidationCode(t, CanFormUnit(cards, 3), ReasonColorConflict)
}

func TestGrayJoinsAnyColor(t *testing.T) {
	cards := []*models.Card{
		testCard(models.ColorRed, 1, 1, ""),
		testCard(models.ColorRed, 1, 1, ""),
		testCard(models.ColorGray, 1, 1, ""),
	}
	assert.NoError(t, CanFormUnit(cards, 3))
}

func TestWhiteJoinsColoredUnit(t *testing.T) {
	cards := []*models.Card{
		testCard(models.ColorBlue, 1, 1, ""),
		testCard(models.ColorBlue, 1, 1, ""),
		testCard(models.ColorWhite, 1, 1, ""),
	}
	assert.NoError(t, CanFormUnit(cards, 3))
}

func TestOffColorCardNeedsMixingAllowance(t *testing.T) {
	plain := []*models.Card{
		testCard(models.ColorRed, 1, 1, ""),
		testCard(models.ColorRed, 1, 1, ""),
		testCard(models.ColorBlue, 1, 1, ""),
	}
	requireValidationCode(t, CanFormUnit(plain, 3), ReasonColorConflict)

	mixed := []*models.Card{
		testCard(models.ColorRed, 1, 1, "Allows 1 card of a different color in this unit. Can stack."),
		testCard(models.ColorRed, 1, 1, ""),
		testCard(models.ColorBlue, 1, 1, ""),
	}
	assert.NoError(t, CanFormUnit(mixed, 3))

	// a second off-color card needs a second allowance
	overloaded := append(mixed, testCard(models.ColorGreen, 1, 1, ""))
	requireValidationCode(t, CanFormUnit(overloaded, 3), ReasonColorConflict)

	stacked := append(overloaded[:3:3],
		testCard(models.ColorRed, 1, 1, "Allows 1 card of a different color in this unit. Can stack."),
		testCard(models.ColorGreen, 1, 1, ""),
	)
	assert.NoError(t, CanFormUnit(stacked, 3))
}

func TestCanAddCardToUnitChecksComposition(t *testing.T) {
	unit := &models.Unit{ID: uuid.New(), Cards: []*models.Card{
		testCard(models.ColorRed, 1, 1, ""),
		testCard(models.ColorRed, 1, 1, ""),
		testCard(models.ColorRed, 1, 1, ""),
	}}

	assert.NoError(t, CanAddCardToUnit(testCard(models.ColorRed, 2, 2, ""), unit))
	assert.NoError(t, CanAddCardToUnit(testCard(models.ColorGray, 2, 2, ""), unit))
	requireValidationCode(t, CanAddCardToUnit(testCard(models.ColorBlue, 2, 2, ""), unit), ReasonColorConflict)
}

func TestScoreOfSubtractsGraveyard(t *testing.T) {
	p := &models.Player{ID: uuid.New()}
	u := &models.Unit{ID: uuid.New(), Cards: []*models.Card{
		testCard(models.ColorRed, 1, 4, ""),
		testCard(models.ColorRed, 1, 6, ""),
	}}
	u.Recompute(func(c *models.Card) int { return c.Value })
	p.Units = append(p.Units, u)
	p.Graveyard = append(p.Graveyard, testCard(models.ColorRed, 1, 3, ""))

	assert.Equal(t, 7, scoreOf(p))
}
