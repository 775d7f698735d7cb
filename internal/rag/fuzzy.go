package rag

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/hyperjump/ragchat/internal/models"
	"github.com/hyperjump/ragchat/pkg/utils"
)

// Fuzzy match weights.
const (
	titleTokenScore     = 2
	headTokenScore      = 1
	titleSubstringBonus = 2
	headSubstringBonus  = 1
	reverseBonus        = 1

	headRunes      = 200
	minSubstrRunes = 3
)

// IsRecitation reports whether query contains any trigger, case-insensitively.
func IsRecitation(query string, triggers []string) bool {
	q := strings.ToLower(query)
	for _, t := range triggers {
		t = strings.ToLower(strings.TrimSpace(t))
		if t != "" && strings.Contains(q, t) {
			return true
		}
	}
	return false
}

// Tokenize splits s into lowercase letter/digit runs.
func Tokenize(s string) []string {
	return strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

// ScoreCandidate scores how well p matches query. Query tokens that are trigger words are ignored.
// A query token found among the title tokens scores double one found only in the first 200
// characters of content. Query tokens that occur as substrings of the title or content head earn
// fixed bonuses, as do title tokens that occur inside a query token.
func ScoreCandidate(query string, p *models.Passage, triggers []string) int {
	ignore := make(map[string]bool)
	for _, t := range triggers {
		for _, tok := range Tokenize(t) {
			ignore[tok] = true
		}
	}
	var qTokens []string
	seen := make(map[string]bool)
	for _, tok := range Tokenize(query) {
		if !ignore[tok] && !seen[tok] {
			seen[tok] = true
			qTokens = append(qTokens, tok)
		}
	}
	if len(qTokens) == 0 {
		return 0
	}

	title := strings.ToLower(candidateTitle(p))
	head := strings.ToLower(utils.Prefix(p.Content(), headRunes))
	titleTokens := Tokenize(title)
	titleSet := toSet(titleTokens)
	headSet := toSet(Tokenize(head))

	score := 0
	for _, q := range qTokens {
		switch {
		case titleSet[q]:
			score += titleTokenScore
		case headSet[q]:
			score += headTokenScore
		}
		if utf8.RuneCountInString(q) < minSubstrRunes {
			continue
		}
		if strings.Contains(title, q) {
			score += titleSubstringBonus
		}
		if strings.Contains(head, q) {
			score += headSubstringBonus
		}
		for _, t := range titleTokens {
			if t != q && utf8.RuneCountInString(t) >= minSubstrRunes && strings.Contains(q, t) {
				score += reverseBonus
			}
		}
	}
	return score
}

// BestMatch returns the highest-scoring candidate and its score. The first candidate wins ties.
// It returns nil when no candidate scores above zero.
func BestMatch(query string, candidates []*models.Passage, triggers []string) (*models.Passage, int) {
	var (
		best      *models.Passage
		bestScore int
	)
	for _, c := range candidates {
		if s := ScoreCandidate(query, c, triggers); s > bestScore {
			best, bestScore = c, s
		}
	}
	return best, bestScore
}

// candidateTitle is the title metadata, or the first non-blank content line when there is none.
func candidateTitle(p *models.Passage) string {
	if t := p.Title(); t != "" {
		return t
	}
	for _, line := range strings.Split(p.Content(), "\n") {
		if line = strings.TrimSpace(line); line != "" {
			return line
		}
	}
	return ""
}

func toSet(tokens []string) map[string]bool {
	set := make(map[string]bool, len(tokens))
	for _, t := range tokens {
		set[t] = true
	}
	return set
}
