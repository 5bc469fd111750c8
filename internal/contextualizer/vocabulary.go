package contextualizer

import (
	"math"
	"regexp"
	"sort"
	"strings"
	"unicode/utf8"
)

var nonWordRe = regexp.MustCompile(`[^a-z0-9\s]`)

// words lower-cases text, drops everything but ASCII letters, digits and
// whitespace, and splits on whitespace.
func words(text string) []string {
	return strings.Fields(nonWordRe.ReplaceAllString(strings.ToLower(text), ""))
}

// EstimateTokens approximates token cost as ceil(chars/4). Not a tokenizer.
func EstimateTokens(text string) int {
	return int(math.Ceil(float64(utf8.RuneCountInString(text)) / 4))
}

// Vocabulary builds the normalized word set of msgs: tokens longer than two
// characters that are not stop words.
func Vocabulary(msgs []ClassifiedMessage, stopWords map[string]struct{}) map[string]struct{} {
	vocab := make(map[string]struct{})
	for _, m := range msgs {
		for _, w := range words(m.Text) {
			if len(w) <= 2 {
				continue
			}
			if _, stop := stopWords[w]; stop {
				continue
			}
			vocab[w] = struct{}{}
		}
	}
	return vocab
}

// Jaccard returns |a ∩ b| / |a ∪ b|; 1 when both sets are empty.
func Jaccard(a, b map[string]struct{}) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 1
	}
	inter := 0
	for w := range a {
		if _, ok := b[w]; ok {
			inter++
		}
	}
	union := len(a) + len(b) - inter
	if union == 0 {
		return 0
	}
	return float64(inter) / float64(union)
}

// TopicLabel joins the three most frequent words (longer than three
// characters) with hyphens. Ties keep first-seen order. Empty -> "general".
func TopicLabel(msgs []ClassifiedMessage) string {
	freq := make(map[string]int)
	var order []string
	for _, m := range msgs {
		for _, w := range words(m.Text) {
			if len(w) <= 3 {
				continue
			}
			if freq[w] == 0 {
				order = append(order, w)
			}
			freq[w]++
		}
	}
	if len(order) == 0 {
		return "general"
	}
	sort.SliceStable(order, func(i, j int) bool { return freq[order[i]] > freq[order[j]] })
	if len(order) > 3 {
		order = order[:3]
	}
	return strings.Join(order, "-")
}
