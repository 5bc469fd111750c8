// Stage 2: rule-based message classification.
//
// DESIGN: Strict cascade, first matching rule wins. The order biases toward
// information-preserving labels:
//
//	decision -> technical -> question -> chitchat -> metadata -> context
package contextualizer

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

// Classifier assigns one label to a sanitized message.
type Classifier interface {
	Classify(msg SanitizedMessage) Classification
}

// ClassifierFunc adapts a function to Classifier.
type ClassifierFunc func(msg SanitizedMessage) Classification

// Classify implements Classifier.
func (f ClassifierFunc) Classify(msg SanitizedMessage) Classification { return f(msg) }

// chitchatMaxLen is the length below which a message counts as social noise.
const chitchatMaxLen = 20

var (
	decisionRe = regexp.MustCompile(`(?i)\b(decided|approved|rejected|confirmed|committed|deploy|ship|merge)\b`)

	technicalKeywordRe = regexp.MustCompile(`\b(function|class|const|let|var|import|require|module|async|await)\b`)
	technicalExtRe     = regexp.MustCompile(`\.(js|ts|py|go|html|css|json|yaml|yml|sql|md)\b`)
	technicalNounRe    = regexp.MustCompile(`(?i)\b(api|endpoint|route|schema|database|query|index)\b`)

	interrogativeRe = regexp.MustCompile(`(?i)^\s*(how|what|why|can you|should|would)\b`)

	chitchatVocabulary = map[string]struct{}{
		"ok": {}, "thanks": {}, "got it": {}, "sure": {}, "yes": {},
		"no": {}, "cool": {}, "nice": {}, "lol": {}, "haha": {},
	}
)

// RuleClassifier is the default heuristic classifier.
type RuleClassifier struct{}

// NewRuleClassifier returns the stock rule cascade.
func NewRuleClassifier() *RuleClassifier { return &RuleClassifier{} }

// Classify implements Classifier.
func (RuleClassifier) Classify(msg SanitizedMessage) Classification {
	text := msg.Text

	if decisionRe.MatchString(text) {
		return Decision
	}

	if strings.Contains(text, "```") ||
		technicalKeywordRe.MatchString(text) ||
		technicalExtRe.MatchString(text) ||
		technicalNounRe.MatchString(text) {
		return Technical
	}

	if strings.Contains(text, "?") || interrogativeRe.MatchString(text) {
		return Question
	}

	if utf8.RuneCountInString(text) < chitchatMaxLen {
		return Chitchat
	}
	if _, ok := chitchatVocabulary[strings.ToLower(strings.TrimSpace(text))]; ok {
		return Chitchat
	}

	if msg.Role == "system" || msg.Role == "tool" {
		return Metadata
	}

	return Context
}

// ClassifyAll labels msgs in order.
func ClassifyAll(c Classifier, msgs []SanitizedMessage) []ClassifiedMessage {
	out := make([]ClassifiedMessage, len(msgs))
	for i, m := range msgs {
		out[i] = ClassifiedMessage{SanitizedMessage: m, Classification: c.Classify(m)}
	}
	return out
}
