package query

import (
	"strings"
	"unicode"
)

var stopWords = map[string]bool{
	"a": true, "an": true, "and": true, "are": true, "as": true, "at": true,
	"be": true, "by": true, "for": true, "from": true, "has": true, "he": true,
	"in": true, "is": true, "it": true, "its": true, "of": true, "on": true,
	"that": true, "the": true, "to": true, "was": true, "will": true, "with": true,
	"i": true, "me": true, "my": true, "we": true, "you": true, "your": true,
	"this": true, "these": true, "those": true, "there": true, "their": true,
	"or": true, "not": true, "but": true, "if": true, "do": true, "what": true,
}

// Terms splits text into lowercase terms, dropping punctuation,
// stop words and single-character tokens. Order and duplicates are kept.
func Terms(text string) []string {
	words := strings.Fields(strings.ToLower(text))
	terms := make([]string, 0, len(words))

	for _, word := range words {
		word = cleanWord(word)
		if len(word) < 2 || stopWords[word] {
			continue
		}
		terms = append(terms, word)
	}

	return terms
}

// UniqueTerms returns Terms(text) without duplicates, in first-seen order.
func UniqueTerms(text string) []string {
	seen := make(map[string]bool)
	var out []string
	for _, t := range Terms(text) {
		if !seen[t] {
			seen[t] = true
			out = append(out, t)
		}
	}
	return out
}

// cleanWord removes punctuation from a word.
func cleanWord(word string) string {
	var cleaned strings.Builder
	for _, r := range word {
		if unicode.IsLetter(r) || unicode.IsNumber(r) || r == '-' || r == '_' {
			cleaned.WriteRune(r)
		}
	}
	return cleaned.String()
}
