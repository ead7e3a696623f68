package router

import (
	"strings"
	"unicode"
)

// MinScore is the lowest score a graph recommendation may have before the
// fallback graph is chosen instead.
const MinScore = 2

const (
	whenToUseWeight      = 2
	typicalQueryWeight   = 1
	recommendedForWeight = 1
)

// Tokenize splits text into its set of lowercase words.
func Tokenize(text string) map[string]bool {
	words := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	set := make(map[string]bool, len(words))
	for _, w := range words {
		set[w] = true
	}
	return set
}

// overlap sums, over every phrase, how many of the phrase's distinct words
// occur in task.
func overlap(task map[string]bool, phrases []string) int {
	total := 0
	for _, p := range phrases {
		for w := range Tokenize(p) {
			if task[w] {
				total++
			}
		}
	}
	return total
}
