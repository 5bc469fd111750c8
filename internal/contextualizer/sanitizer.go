// Stage 1: metadata stripping and PII redaction.
//
// DESIGN: Redaction is a table of Detectors applied in order. Hash-based
// detectors replace each match with [CATEGORY_<8 hex of sha256(match)>], so
// the same value always maps to the same placeholder within and across
// messages. The phone safety net runs last and trades that correlation for
// recall: it rewrites residual phone-like text and hashed phone placeholders
// to the fixed literal [PHONE_REDACTED].
package contextualizer

import (
	"crypto/sha256"
	"encoding/hex"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

// PhoneRedacted is the fixed placeholder written by the phone safety net.
const PhoneRedacted = "[PHONE_REDACTED]"

// Detector rewrites one category of sensitive text.
type Detector interface {
	// Category is the upper-case tag used in placeholders (EMAIL, PHONE, ...).
	Category() string
	// Redact returns text with every match replaced.
	Redact(text string) string
}

// =============================================================================
// DETECTORS
// =============================================================================

// HashDetector replaces matches with a hash-derived, correlatable placeholder.
type HashDetector struct {
	category string
	pattern  *regexp.Regexp
}

// NewHashDetector compiles pattern into a HashDetector.
func NewHashDetector(category, pattern string) (*HashDetector, error) {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, err
	}
	return &HashDetector{category: strings.ToUpper(category), pattern: re}, nil
}

func mustHashDetector(category, pattern string) *HashDetector {
	d, err := NewHashDetector(category, pattern)
	if err != nil {
		panic(err)
	}
	return d
}

// Category implements Detector.
func (d *HashDetector) Category() string { return d.category }

// Redact implements Detector.
func (d *HashDetector) Redact(text string) string {
	return d.pattern.ReplaceAllStringFunc(text, func(match string) string {
		return Placeholder(d.category, match)
	})
}

// Placeholder returns the redaction token for value under category.
func Placeholder(category, value string) string {
	sum := sha256.Sum256([]byte(value))
	return "[" + category + "_" + hex.EncodeToString(sum[:])[:8] + "]"
}

// FixedDetector replaces matches with a constant literal.
type FixedDetector struct {
	category    string
	pattern     *regexp.Regexp
	replacement string
}

// Category implements Detector.
func (d *FixedDetector) Category() string { return d.category }

// Redact implements Detector.
func (d *FixedDetector) Redact(text string) string {
	return d.pattern.ReplaceAllLiteralString(text, d.replacement)
}

// Detector patterns.
const (
	emailPattern      = `(?i)\b[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Z]{2,}\b`
	phonePattern      = `(\+?1[-.\s]?)?\(?\d{3}\)?[-.\s]?\d{3}[-.\s]?\d{4}`
	ssnPattern        = `\b\d{3}-\d{2}-\d{4}\b`
	creditCardPattern = `\b\d{4}[-\s]?\d{4}[-\s]?\d{4}[-\s]?\d{4}\b`
	ipv4Pattern       = `\b\d{1,3}\.\d{1,3}\.\d{1,3}\.\d{1,3}\b`
)

// DefaultDetectors returns the stock redaction table, safety net last.
func DefaultDetectors() []Detector {
	return []Detector{
		mustHashDetector("EMAIL", emailPattern),
		mustHashDetector("PHONE", phonePattern),
		mustHashDetector("SSN", ssnPattern),
		mustHashDetector("CREDITCARD", creditCardPattern),
		mustHashDetector("IPV4", ipv4Pattern),
		PhoneSafetyNet(),
	}
}

// PhoneSafetyNet catches residual phone numbers and hashed phone placeholders.
func PhoneSafetyNet() *FixedDetector {
	return &FixedDetector{
		category:    "PHONE",
		pattern:     regexp.MustCompile(`\[PHONE_[0-9a-f]{8}\]|` + phonePattern),
		replacement: PhoneRedacted,
	}
}

// =============================================================================
// SANITIZER
// =============================================================================

var excessNewlines = regexp.MustCompile(`\n{3,}`)

// Sanitizer runs stage 1 over single messages.
type Sanitizer struct {
	stripFields []string
	detectors   []Detector
}

// NewSanitizer creates a sanitizer. A nil detector table means DefaultDetectors.
func NewSanitizer(stripFields []string, detectors []Detector) *Sanitizer {
	if detectors == nil {
		detectors = DefaultDetectors()
	}
	return &Sanitizer{
		stripFields: append([]string(nil), stripFields...),
		detectors:   append([]Detector(nil), detectors...),
	}
}

// Sanitize returns a new SanitizedMessage; msg is left untouched.
func (s *Sanitizer) Sanitize(msg RawMessage) SanitizedMessage {
	original := msg.Text()
	text := original
	for _, d := range s.detectors {
		text = d.Redact(text)
	}
	text = excessNewlines.ReplaceAllString(text, "\n\n")
	text = strings.TrimSpace(text)

	return SanitizedMessage{
		Text:           text,
		Role:           msg.Role(),
		OriginalLength: utf8.RuneCountInString(original),
		Fields:         s.extraFields(msg),
	}
}

// SanitizeAll sanitizes in order and drops messages left empty.
func (s *Sanitizer) SanitizeAll(msgs []RawMessage) []SanitizedMessage {
	out := make([]SanitizedMessage, 0, len(msgs))
	for _, m := range msgs {
		sm := s.Sanitize(m)
		if sm.Text == "" {
			continue
		}
		out = append(out, sm)
	}
	return out
}

// extraFields returns the object's remaining fields on a private copy.
func (s *Sanitizer) extraFields(msg RawMessage) []byte {
	if !msg.IsObject() {
		return nil
	}
	working := append([]byte(nil), msg...)
	keys := make([]string, 0, len(s.stripFields)+3)
	keys = append(keys, s.stripFields...)
	keys = append(keys, "role", "content", "text")
	for _, key := range keys {
		path := escapePath(key)
		if !gjson.GetBytes(working, path).Exists() {
			continue
		}
		if next, err := sjson.DeleteBytes(working, path); err == nil {
			working = next
		}
	}
	if len(gjson.ParseBytes(working).Map()) == 0 {
		return nil
	}
	return working
}
