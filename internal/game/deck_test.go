// internal/game/deck_test.go
package game

import (
	"testing"

	"github.com/loteria-live/loteria/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewDeckIsFullPermutation(t *testing.T) {
	deck := NewDeck()
	require.Len(t, deck, models.DeckSize)

	seen := make(map[int]bool, models.DeckSize)
	for _, c := range deck {
		assert.GreaterOrEqual(t, c.Number, 1)
		assert.LessOrEqual(t, c.Number, models.DeckSize)
		assert.False(t, seen[c.Number], "card %d appears twice", c.Number)
		seen[c.Number] = true
	}
	assert.Len(t, seen, models.DeckSize)
}

func TestDealHandDrawsUniqueCards(t *testing.T) {
	hand := DealHand()
	require.Len(t, hand, models.HandSize)

	seen := make(map[int]bool, models.HandSize)
	for _, slot := range hand {
		assert.GreaterOrEqual(t, slot.Number, 1)
		assert.LessOrEqual(t, slot.Number, models.DeckSize)
		assert.False(t, seen[slot.Number], "card %d dealt twice", slot.Number)
		assert.False(t, slot.Selected)
		seen[slot.Number] = true
	}
}

func TestCardNamingConvention(t *testing.T) {
	c := models.NewCard(7)
	assert.Equal(t, "Carta 7", c.Name)
	assert.Equal(t, "CARTA 7.svg", c.Asset)
}
