// internal/models/card.go
package models

import "fmt"

// DeckSize is the number of distinct cards in the universe.
const DeckSize = 54

// HandSize is the number of cards dealt to each player.
const HandSize = 16

// Card is one of the 54 immutable card definitions. Number is 1-based.
type Card struct {
	Number int    `json:"number"`
	Name   string `json:"name"`
	Asset  string `json:"filename"`
}

// CardSlot wraps a Card inside a player's hand with its marked state.
type CardSlot struct {
	Card
	Selected bool `json:"selected"`
}

// NewCard builds the fixed definition for card number n (1..54).
func NewCard(n int) Card {
	return Card{
		Number: n,
		Name:   fmt.Sprintf("Carta %d", n),
		Asset:  fmt.Sprintf("CARTA %d.svg", n),
	}
}
