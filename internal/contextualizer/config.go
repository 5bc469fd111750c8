// Contextualizer configuration - thresholds and weights for every stage.
//
// DESIGN: One Config value is injected into each Pipeline at construction.
// Nothing here is process-global, so differently tuned pipelines can run
// side by side. YAML loading overlays these values onto DefaultConfig().
package contextualizer

import "fmt"

// =============================================================================
// DEFAULTS
// =============================================================================

// Default tuning values.
const (
	DefaultMaxClusterSize         = 4096
	DefaultTopicShiftThreshold    = 0.35
	DefaultSlidingWindowSize      = 5
	DefaultMinClusterMessages     = 2
	DefaultMaxContextWindowTokens = 128000
	DefaultCompressionTarget      = 0.4
	DefaultHighSignificance       = 0.6
	DefaultDecisionBoost          = 0.30
	DefaultTechnicalBoost         = 0.15
	DefaultQuestionBoost          = 0.10
)

// DefaultStripMetadataFields lists transport metadata removed from every message.
var DefaultStripMetadataFields = []string{
	"timestamp_raw", "session_id", "client_ip", "user_agent",
	"internal_trace_id", "request_id", "correlation_id",
}

// DefaultStopWords are excluded from topic-shift vocabularies.
var DefaultStopWords = []string{
	"the", "a", "an", "is", "are", "was", "were", "be", "been",
	"being", "have", "has", "had", "do", "does", "did", "will", "would", "shall",
	"should", "may", "might", "must", "can", "could", "to", "of", "in", "for",
	"on", "with", "at", "by", "from", "as", "into", "about", "it", "its",
	"this", "that", "and", "or", "but", "not", "so", "if", "then", "i", "you",
	"we", "they", "he", "she", "my", "your", "our", "their",
}

// DefaultWeights returns the per-classification significance weights.
func DefaultWeights() map[Classification]float64 {
	return map[Classification]float64{
		Decision:  1.0,
		Technical: 0.85,
		Question:  0.7,
		Context:   0.5,
		Chitchat:  0.1,
		Metadata:  0.0,
	}
}

// =============================================================================
// CONFIG
// =============================================================================

// Config carries every threshold and weight used by the pipeline stages.
type Config struct {
	// Sanitization
	StripMetadataFields []string `yaml:"strip_metadata_fields" json:"stripMetadataFields"`

	// Clustering
	MaxClusterSize      int      `yaml:"max_cluster_size" json:"maxClusterSize"`           // Max tokens per cluster
	TopicShiftThreshold float64  `yaml:"topic_shift_threshold" json:"topicShiftThreshold"` // Jaccard below this = new topic
	SlidingWindowSize   int      `yaml:"sliding_window_size" json:"slidingWindowSize"`     // Messages per analysis window
	MinClusterMessages  int      `yaml:"min_cluster_messages" json:"minClusterMessages"`   // Smallest cluster that may be sealed early
	StopWords           []string `yaml:"stop_words" json:"stopWords"`

	// Scoring
	SignificanceWeights map[Classification]float64 `yaml:"significance_weights" json:"significanceWeights"`
	DecisionBoost       float64                    `yaml:"decision_boost" json:"decisionBoost"`
	TechnicalBoost      float64                    `yaml:"technical_boost" json:"technicalBoost"`
	QuestionBoost       float64                    `yaml:"question_boost" json:"questionBoost"`

	// Packing
	MaxContextWindowTokens int     `yaml:"max_context_window_tokens" json:"maxContextWindowTokens"`
	CompressionTarget      float64 `yaml:"compression_target" json:"compressionTarget"` // Fraction of budget included unconditionally
	HighSignificance       float64 `yaml:"high_significance" json:"highSignificance"`   // Min score to spend budget past the target
}

// DefaultConfig returns the stock tuning.
func DefaultConfig() Config {
	return Config{
		StripMetadataFields:    append([]string(nil), DefaultStripMetadataFields...),
		MaxClusterSize:         DefaultMaxClusterSize,
		TopicShiftThreshold:    DefaultTopicShiftThreshold,
		SlidingWindowSize:      DefaultSlidingWindowSize,
		MinClusterMessages:     DefaultMinClusterMessages,
		StopWords:              append([]string(nil), DefaultStopWords...),
		SignificanceWeights:    DefaultWeights(),
		DecisionBoost:          DefaultDecisionBoost,
		TechnicalBoost:         DefaultTechnicalBoost,
		QuestionBoost:          DefaultQuestionBoost,
		MaxContextWindowTokens: DefaultMaxContextWindowTokens,
		CompressionTarget:      DefaultCompressionTarget,
		HighSignificance:       DefaultHighSignificance,
	}
}

// Validate checks ranges. Weights must cover every classification.
func (c *Config) Validate() error {
	if c.MaxClusterSize < 1 {
		return fmt.Errorf("contextualizer.max_cluster_size must be positive, got %d", c.MaxClusterSize)
	}
	if c.TopicShiftThreshold < 0 || c.TopicShiftThreshold > 1 {
		return fmt.Errorf("contextualizer.topic_shift_threshold must be within [0,1], got %v", c.TopicShiftThreshold)
	}
	if c.SlidingWindowSize < 1 {
		return fmt.Errorf("contextualizer.sliding_window_size must be positive, got %d", c.SlidingWindowSize)
	}
	if c.MinClusterMessages < 1 {
		return fmt.Errorf("contextualizer.min_cluster_messages must be positive, got %d", c.MinClusterMessages)
	}
	if c.MaxContextWindowTokens < 1 {
		return fmt.Errorf("contextualizer.max_context_window_tokens must be positive, got %d", c.MaxContextWindowTokens)
	}
	if c.CompressionTarget <= 0 || c.CompressionTarget > 1 {
		return fmt.Errorf("contextualizer.compression_target must be within (0,1], got %v", c.CompressionTarget)
	}
	if c.HighSignificance < 0 || c.HighSignificance > 1 {
		return fmt.Errorf("contextualizer.high_significance must be within [0,1], got %v", c.HighSignificance)
	}
	for _, b := range []float64{c.DecisionBoost, c.TechnicalBoost, c.QuestionBoost} {
		if b < 0 || b > 1 {
			return fmt.Errorf("contextualizer boosts must be within [0,1], got %v", b)
		}
	}
	for _, cl := range AllClassifications {
		w, ok := c.SignificanceWeights[cl]
		if !ok {
			return fmt.Errorf("contextualizer.significance_weights.%s is required", cl)
		}
		if w < 0 || w > 1 {
			return fmt.Errorf("contextualizer.significance_weights.%s must be within [0,1], got %v", cl, w)
		}
	}
	for cl := range c.SignificanceWeights {
		if !cl.Valid() {
			return fmt.Errorf("contextualizer.significance_weights: unknown classification %q", cl)
		}
	}
	return nil
}

// Snapshot returns a deep copy safe to hand to readers.
func (c Config) Snapshot() Config {
	out := c
	out.StripMetadataFields = append([]string(nil), c.StripMetadataFields...)
	out.StopWords = append([]string(nil), c.StopWords...)
	out.SignificanceWeights = make(map[Classification]float64, len(c.SignificanceWeights))
	for k, v := range c.SignificanceWeights {
		out.SignificanceWeights[k] = v
	}
	return out
}

func (c *Config) stopWordSet() map[string]struct{} {
	set := make(map[string]struct{}, len(c.StopWords))
	for _, w := range c.StopWords {
		set[w] = struct{}{}
	}
	return set
}

func (c *Config) weight(cl Classification) float64 {
	if w, ok := c.SignificanceWeights[cl]; ok {
		return w
	}
	return c.SignificanceWeights[Context]
}
