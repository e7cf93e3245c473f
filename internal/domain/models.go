package domain

import (
	"fmt"
	"strings"
	"unicode"
)

// Side values a player may submit. Answers are binary: pick the left
// side (0) or the right side (100).
const (
	SideLeft  = 0
	SideRight = 100
)

// ValidSide reports whether v is an admissible answer value.
func ValidSide(v int) bool {
	return v == SideLeft || v == SideRight
}

// QuestionRecord is one entry in the deck. Records are loaded once at
// startup and never mutated.
type QuestionRecord struct {
	ID          int    `json:"id"`
	Text        string `json:"text"`
	Target      int    `json:"target"` // SideLeft or SideRight
	Label       string `json:"label"`  // display label for the correct side
	Explanation string `json:"explanation"`
}

// Deck is the ordered question catalog for a session.
type Deck struct {
	ID        string           `json:"id"`
	Questions []QuestionRecord `json:"questions"`
}

// Validate rejects decks that cannot drive a session.
func (d Deck) Validate() error {
	if len(d.Questions) == 0 {
		return ErrDeckEmpty
	}
	for _, q := range d.Questions {
		if !ValidSide(q.Target) {
			return fmt.Errorf("question %d: target %d is not 0 or 100", q.ID, q.Target)
		}
	}
	return nil
}

// MaxNameLength caps stored display names.
const MaxNameLength = 24

// NormalizeName trims, strips control characters, length-caps, and
// upper-cases a display name for the leaderboard.
func NormalizeName(raw string) string {
	name := strings.TrimSpace(raw)
	name = strings.Map(func(r rune) rune {
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, name)
	if runes := []rune(name); len(runes) > MaxNameLength {
		name = string(runes[:MaxNameLength])
	}
	return strings.ToUpper(name)
}
