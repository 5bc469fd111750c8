// Package contextualizer compresses an ordered batch of conversational
// messages into a token-budgeted, significance-ranked context package.
//
// DESIGN: Five pure stages over immutable records, composed by Pipeline:
//  1. Sanitize:  strip metadata fields, redact PII           (sanitizer.go)
//  2. Classify:  first-match-wins rule cascade               (classifier.go)
//  3. Cluster:   sliding-window Jaccard topic-shift split    (cluster.go)
//  4. Score:     weighted significance per cluster           (scorer.go)
//  5. Pack:      greedy budget-constrained selection         (packer.go)
//
// Each stage returns new values; nothing the caller passed in is mutated.
package contextualizer

import (
	"encoding/json"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

// =============================================================================
// CLASSIFICATION
// =============================================================================

// Classification labels a message with the kind of information it carries.
type Classification string

const (
	Decision  Classification = "decision"
	Technical Classification = "technical"
	Question  Classification = "question"
	Chitchat  Classification = "chitchat"
	Metadata  Classification = "metadata"
	Context   Classification = "context"
)

// AllClassifications lists every label in cascade order.
var AllClassifications = []Classification{Decision, Technical, Question, Chitchat, Metadata, Context}

// Valid reports whether c is a known label.
func (c Classification) Valid() bool {
	for _, known := range AllClassifications {
		if c == known {
			return true
		}
	}
	return false
}

// =============================================================================
// MESSAGES
// =============================================================================

// RawMessage is one inbound message exactly as received: a JSON object
// ({"role": ..., "content"|"text": ..., extra fields}) or a bare JSON string.
type RawMessage json.RawMessage

// NewRawMessage builds an object message. Extra fields are set verbatim.
func NewRawMessage(role, content string, fields map[string]any) RawMessage {
	raw := []byte(`{}`)
	raw, _ = sjson.SetBytes(raw, "role", role)
	raw, _ = sjson.SetBytes(raw, "content", content)
	for k, v := range fields {
		raw, _ = sjson.SetBytes(raw, escapePath(k), v)
	}
	return RawMessage(raw)
}

// Role returns the message role, "unknown" when absent.
func (m RawMessage) Role() string {
	if r := gjson.GetBytes(m, "role"); r.Type == gjson.String && r.Str != "" {
		return r.Str
	}
	return "unknown"
}

// Text returns content, falling back to text, then to a bare string value.
func (m RawMessage) Text() string {
	parsed := gjson.ParseBytes(m)
	if parsed.Type == gjson.String {
		return parsed.Str
	}
	for _, key := range []string{"content", "text"} {
		if r := parsed.Get(key); r.Exists() && r.String() != "" {
			return r.String()
		}
	}
	return ""
}

// IsObject reports whether the message is a JSON object.
func (m RawMessage) IsObject() bool {
	return gjson.ParseBytes(m).IsObject()
}

// MarshalJSON keeps the raw bytes.
func (m RawMessage) MarshalJSON() ([]byte, error) {
	if len(m) == 0 {
		return []byte("null"), nil
	}
	return m, nil
}

// UnmarshalJSON copies the raw bytes.
func (m *RawMessage) UnmarshalJSON(data []byte) error {
	*m = append((*m)[:0], data...)
	return nil
}

// escapePath escapes gjson/sjson path syntax in a literal field name.
func escapePath(key string) string {
	out := make([]byte, 0, len(key))
	for i := 0; i < len(key); i++ {
		switch key[i] {
		case '.', '*', '?', '|', '#', '@', '\\', ':', '!', '=', '<', '>', '%':
			out = append(out, '\\')
		}
		out = append(out, key[i])
	}
	return string(out)
}

// SanitizedMessage is the output of stage 1.
type SanitizedMessage struct {
	Text           string          `json:"text"`
	Role           string          `json:"role"`
	OriginalLength int             `json:"originalLength"`   // Characters before redaction
	Fields         json.RawMessage `json:"fields,omitempty"` // Object fields left after metadata stripping
}

// ClassifiedMessage is the output of stage 2.
type ClassifiedMessage struct {
	SanitizedMessage
	Classification Classification `json:"classification"`
}

// =============================================================================
// CLUSTERS
// =============================================================================

// Cluster is a contiguous, order-preserving run of messages on one topic.
type Cluster struct {
	Messages    []ClassifiedMessage `json:"messages"`
	Topic       string              `json:"topic"`
	TotalTokens int                 `json:"totalTokens"`
}

// ScoredCluster is the output of stage 4.
type ScoredCluster struct {
	Cluster
	Significance    float64          `json:"significance"`
	MessageCount    int              `json:"messageCount"`
	Classifications []Classification `json:"classifications"`
}

// DroppedCluster records a cluster the packer rejected.
type DroppedCluster struct {
	Topic        string  `json:"topic"`
	Significance float64 `json:"significance"`
	Tokens       int     `json:"tokens"`
}

// PackStats summarizes one packing run.
type PackStats struct {
	TotalClusters    int     `json:"totalClusters"`
	PackedClusters   int     `json:"packedClusters"`
	DroppedClusters  int     `json:"droppedClusters"`
	TotalTokens      int     `json:"totalTokens"` // Tokens actually packed
	CompressionRatio float64 `json:"compressionRatio"`
}

// PackedResult is the output of stage 5.
type PackedResult struct {
	Packed  []ScoredCluster  `json:"packed"`
	Dropped []DroppedCluster `json:"dropped"`
	Stats   PackStats        `json:"stats"`
}
