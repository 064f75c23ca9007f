// internal/game/deck.go
package game

import (
	"math/rand"
	"time"

	"github.com/loteria-live/loteria/internal/models"
)

// NewDeck returns a shuffled permutation of all 54 cards, built once per
// session start. The shuffle is a plain time-seeded pseudo-shuffle; this is a
// party game, not a casino.
func NewDeck() []models.Card {
	deck := make([]models.Card, models.DeckSize)
	for i := range deck {
		deck[i] = models.NewCard(i + 1)
	}
	r := rand.New(rand.NewSource(time.Now().UnixNano()))
	r.Shuffle(len(deck), func(i, j int) {
		deck[i], deck[j] = deck[j], deck[i]
	})
	return deck
}

// DealHand draws 16 unique cards from the universe without replacement,
// independently of any other player's hand or the reveal deck.
func DealHand() []*models.CardSlot {
	numbers := make([]int, models.DeckSize)
	for i := range numbers {
		numbers[i] = i + 1
	}
	r := rand.New(rand.NewSource(time.Now().UnixNano()))
	r.Shuffle(len(numbers), func(i, j int) {
		numbers[i], numbers[j] = numbers[j], numbers[i]
	})

	hand := make([]*models.CardSlot, models.HandSize)
	for i := 0; i < models.HandSize; i++ {
		hand[i] = &models.CardSlot{Card: models.NewCard(numbers[i])}
	}
	return hand
}
