// Pipeline coordinator - runs the five stages for one call.
//
// DESIGN: Pipeline holds only read-only state (config, compiled detectors,
// classifier), so one instance serves concurrent calls. The only shared
// side effect is the audit Recorder, which must serialize its own writes.
// Any panic inside the stages is recovered here and reported as
// ErrPipelineFailed without internal detail.
package contextualizer

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/compresr/semantic-context/internal/audit"
)

// ErrPipelineFailed is returned when a stage fails unexpectedly.
var ErrPipelineFailed = errors.New("contextualization failed")

// Recorder receives one audit entry per call. Implementations must not block.
type Recorder interface {
	Record(e audit.Entry)
}

// Clock returns the current time; the monotonic reading is used for elapsed time.
type Clock func() time.Time

// IDGenerator returns a unique entry ID.
type IDGenerator func() string

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithClassifier swaps the classification strategy.
func WithClassifier(c Classifier) Option {
	return func(p *Pipeline) { p.classifier = c }
}

// WithDetectors swaps the PII detector table.
func WithDetectors(d []Detector) Option {
	return func(p *Pipeline) { p.detectors = d }
}

// WithRecorder sets the audit sink.
func WithRecorder(r Recorder) Option {
	return func(p *Pipeline) { p.recorder = r }
}

// WithClock overrides time.Now.
func WithClock(c Clock) Option {
	return func(p *Pipeline) { p.clock = c }
}

// WithIDGenerator overrides audit.NewID.
func WithIDGenerator(g IDGenerator) Option {
	return func(p *Pipeline) { p.ids = g }
}

// Pipeline composes Sanitize -> Classify -> Cluster -> Score -> Pack.
type Pipeline struct {
	cfg        Config
	sanitizer  *Sanitizer
	classifier Classifier
	detectors  []Detector
	recorder   Recorder
	clock      Clock
	ids        IDGenerator
}

// New validates cfg and builds a pipeline.
func New(cfg Config, opts ...Option) (*Pipeline, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	p := &Pipeline{
		cfg:        cfg.Snapshot(),
		classifier: NewRuleClassifier(),
		clock:      time.Now,
		ids:        audit.NewID,
	}
	for _, opt := range opts {
		opt(p)
	}
	p.sanitizer = NewSanitizer(p.cfg.StripMetadataFields, p.detectors)
	return p, nil
}

// Config returns a copy of the active configuration.
func (p *Pipeline) Config() Config {
	return p.cfg.Snapshot()
}

// =============================================================================
// RESULT
// =============================================================================

// ContextBlock is one packed cluster rendered for the downstream consumer.
type ContextBlock struct {
	Topic           string           `json:"topic"`
	Significance    float64          `json:"significance"`
	MessageCount    int              `json:"messageCount"`
	Classifications []Classification `json:"classifications"`
	Tokens          int              `json:"tokens"`
	Content         string           `json:"content"`
}

// Stats extends PackStats with per-stage counts.
type Stats struct {
	PackStats
	InputMessages      int    `json:"inputMessages"`
	SanitizedMessages  int    `json:"sanitizedMessages"`
	MeaningfulMessages int    `json:"meaningfulMessages"`
	ElapsedMs          int64  `json:"elapsedMs"`
	TokenSavings       string `json:"tokenSavings"`
}

// Result is the outcome of one Process call.
type Result struct {
	ID      string           `json:"id"`
	Context []ContextBlock   `json:"context"`
	Stats   Stats            `json:"stats"`
	Dropped []DroppedCluster `json:"dropped"`
}

// =============================================================================
// PROCESS
// =============================================================================

// Process runs all stages over msgs. maxTokens <= 0 uses the configured window.
func (p *Pipeline) Process(msgs []RawMessage, maxTokens int) (res *Result, err error) {
	start := p.clock()
	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Msg("contextualizer: stage panicked")
			res, err = nil, ErrPipelineFailed
		}
	}()

	if maxTokens <= 0 {
		maxTokens = p.cfg.MaxContextWindowTokens
	}

	sanitized := p.sanitizer.SanitizeAll(msgs)
	classified := ClassifyAll(p.classifier, sanitized)

	meaningful := make([]ClassifiedMessage, 0, len(classified))
	for _, m := range classified {
		if m.Classification != Metadata {
			meaningful = append(meaningful, m)
		}
	}

	clusters := BuildClusters(meaningful, p.cfg)
	scored := ScoreClusters(clusters, p.cfg)
	packed := PackWindow(scored, maxTokens, p.cfg)

	elapsed := p.clock().Sub(start)
	id := p.ids()

	res = &Result{
		ID:      id,
		Context: renderContext(packed.Packed),
		Stats: Stats{
			PackStats:          packed.Stats,
			InputMessages:      len(msgs),
			SanitizedMessages:  len(sanitized),
			MeaningfulMessages: len(meaningful),
			ElapsedMs:          elapsed.Milliseconds(),
			TokenSavings:       fmt.Sprintf("%d%%", int(math.Round((1-packed.Stats.CompressionRatio)*100))),
		},
		Dropped: packed.Dropped,
	}

	p.record(audit.Entry{
		ID:               id,
		Timestamp:        start.UTC(),
		InputMessages:    len(msgs),
		OutputClusters:   packed.Stats.PackedClusters,
		CompressionRatio: packed.Stats.CompressionRatio,
		TotalTokens:      packed.Stats.TotalTokens,
		ElapsedMs:        elapsed.Milliseconds(),
	})

	log.Debug().
		Str("id", id).
		Int("input", len(msgs)).
		Int("clusters", packed.Stats.TotalClusters).
		Int("packed", packed.Stats.PackedClusters).
		Float64("ratio", packed.Stats.CompressionRatio).
		Msg("contextualized")

	return res, nil
}

// record hands e to the recorder; a failing recorder never fails the call.
func (p *Pipeline) record(e audit.Entry) {
	if p.recorder == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			log.Warn().Interface("panic", r).Msg("contextualizer: audit recorder panicked")
		}
	}()
	p.recorder.Record(e)
}

func renderContext(packed []ScoredCluster) []ContextBlock {
	blocks := make([]ContextBlock, 0, len(packed))
	for _, c := range packed {
		lines := make([]string, len(c.Messages))
		for i, m := range c.Messages {
			lines[i] = "[" + m.Role + "] " + m.Text
		}
		blocks = append(blocks, ContextBlock{
			Topic:           c.Topic,
			Significance:    c.Significance,
			MessageCount:    c.MessageCount,
			Classifications: c.Classifications,
			Tokens:          c.TotalTokens,
			Content:         strings.Join(lines, "\n"),
		})
	}
	return blocks
}
