package engine

import (
	"fmt"
	"strings"
	"unicode"
)

// slotOrder fixes the order answers are checked in, top to bottom of the
// answer sheet. The first failing slot is the one reported.
var slotOrder = []string{"city", "name", "food", "movie"}

type ValidationError struct {
	Slot   string
	Letter string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("answer for %q must start with the letter %q", e.Slot, e.Letter)
}

// CheckAnswers judges a full set of answers against the active letter.
// A slot fails if it is blank after trimming or its first character does not
// match the letter, case-insensitively. Pure: no randomness, no I/O.
func CheckAnswers(letter string, a Answers) error {
	values := map[string]string{
		"city":  a.City,
		"name":  a.Name,
		"food":  a.Food,
		"movie": a.Movie,
	}
	for _, slot := range slotOrder {
		if !startsWith(values[slot], letter) {
			return &ValidationError{Slot: slot, Letter: strings.ToUpper(letter)}
		}
	}
	return nil
}

func startsWith(value, letter string) bool {
	value = strings.TrimSpace(value)
	if value == "" || letter == "" {
		return false
	}
	return unicode.ToUpper([]rune(value)[0]) == unicode.ToUpper([]rune(letter)[0])
}
