package store

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

// wordRegex matches letter/digit runs in any script; bot logs mix English and Russian.
var wordRegex = regexp.MustCompile(`[\p{L}\p{N}]+`)

// DefaultStopWords are dropped from full-text queries and lexical scoring.
var DefaultStopWords = []string{
	"a", "an", "the", "and", "or", "of", "to", "in", "on", "at", "for",
	"is", "was", "are", "were", "be", "been", "did", "do", "does",
	"what", "why", "when", "how", "which", "who", "with", "by", "it",
	"this", "that", "from", "as", "me", "my", "show", "tell",
}

var defaultStopWordMap = BuildStopWordMap(DefaultStopWords)

// TokenizeText lowercases text and splits it into word tokens of two or more runes.
func TokenizeText(text string) []string {
	words := wordRegex.FindAllString(strings.ToLower(text), -1)
	tokens := make([]string, 0, len(words))
	for _, w := range words {
		if utf8.RuneCountInString(w) >= 2 {
			tokens = append(tokens, w)
		}
	}
	return tokens
}

// Terms tokenizes text and drops default stop words.
func Terms(text string) []string {
	return FilterStopWords(TokenizeText(text), defaultStopWordMap)
}

// FilterStopWords removes stop words from a token list.
func FilterStopWords(tokens []string, stopWords map[string]struct{}) []string {
	result := make([]string, 0, len(tokens))
	for _, token := range tokens {
		if _, isStop := stopWords[strings.ToLower(token)]; !isStop {
			result = append(result, token)
		}
	}
	return result
}

// BuildStopWordMap converts a slice of stop words to a map for efficient lookup.
func BuildStopWordMap(stopWords []string) map[string]struct{} {
	m := make(map[string]struct{}, len(stopWords))
	for _, word := range stopWords {
		m[strings.ToLower(word)] = struct{}{}
	}
	return m
}

// EscapeQuery doubles quote characters. Every FullTextSearcher receives its
// query in this form; UnescapeQuery restores the user's text.
func EscapeQuery(text string) string {
	return strings.ReplaceAll(text, `"`, `""`)
}

// UnescapeQuery reverses EscapeQuery.
func UnescapeQuery(query string) string {
	return strings.ReplaceAll(query, `""`, `"`)
}

// ftsMatchExpr turns free text into an FTS5 MATCH expression: each term
// quoted and OR-ed so punctuation in questions cannot break the syntax.
func ftsMatchExpr(query string) string {
	terms := Terms(query)
	if len(terms) == 0 {
		return ""
	}
	quoted := make([]string, len(terms))
	for i, t := range terms {
		quoted[i] = `"` + strings.ReplaceAll(t, `"`, `""`) + `"`
	}
	return strings.Join(quoted, " OR ")
}
