package contextualizer_test

// Pipeline Tests - end-to-end behavior of the five stages plus audit hand-off.

import (
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/compresr/semantic-context/internal/audit"
	"github.com/compresr/semantic-context/internal/contextualizer"
)

type memoryRecorder struct {
	mu      sync.Mutex
	entries []audit.Entry
}

func (r *memoryRecorder) Record(e audit.Entry) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, e)
}

func (r *memoryRecorder) all() []audit.Entry {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]audit.Entry(nil), r.entries...)
}

type panicRecorder struct{}

func (panicRecorder) Record(audit.Entry) { panic("disk on fire") }

func steppingClock(start time.Time, step time.Duration) contextualizer.Clock {
	var mu sync.Mutex
	now := start
	return func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		t := now
		now = now.Add(step)
		return t
	}
}

func newPipeline(t *testing.T, opts ...contextualizer.Option) *contextualizer.Pipeline {
	t.Helper()
	p, err := contextualizer.New(contextualizer.DefaultConfig(), opts...)
	require.NoError(t, err)
	return p
}

func msg(role, content string) contextualizer.RawMessage {
	return contextualizer.NewRawMessage(role, content, nil)
}

func TestProcess_DecisionThreadIsPacked(t *testing.T) {
	p := newPipeline(t)
	msgs := []contextualizer.RawMessage{
		msg("user", "What is the deployment plan?"),
		msg("assistant", "We decided to deploy to staging first, then production."),
	}

	res, err := p.Process(msgs, 1000)

	require.NoError(t, err)
	require.Len(t, res.Context, 1)
	block := res.Context[0]
	assert.Equal(t, []contextualizer.Classification{contextualizer.Question, contextualizer.Decision}, block.Classifications)
	assert.GreaterOrEqual(t, block.Significance, 0.8)
	assert.Equal(t, 2, block.MessageCount)
	assert.Equal(t, "[user] What is the deployment plan?\n[assistant] We decided to deploy to staging first, then production.", block.Content)
	assert.Empty(t, res.Dropped)
	assert.Equal(t, 1, res.Stats.PackedClusters)
	assert.Equal(t, 2, res.Stats.InputMessages)
	assert.Equal(t, 2, res.Stats.MeaningfulMessages)
	assert.Equal(t, 1.0, res.Stats.CompressionRatio)
	assert.Equal(t, "0%", res.Stats.TokenSavings)
}

func TestProcess_RedactsBeforePacking(t *testing.T) {
	p := newPipeline(t)

	res, err := p.Process([]contextualizer.RawMessage{
		msg("user", "Contact me at jane@example.com or 555-123-4567"),
		msg("assistant", "Thanks, I will reach out to jane@example.com today"),
	}, 1000)

	require.NoError(t, err)
	require.Len(t, res.Context, 1)
	content := res.Context[0].Content
	assert.NotContains(t, content, "jane@example.com")
	assert.NotContains(t, content, "555-123-4567")
	assert.Contains(t, content, "[PHONE_REDACTED]")
	assert.Contains(t, content, contextualizer.Placeholder("EMAIL", "jane@example.com"))
}

func TestProcess_ChitchatIsLowValue(t *testing.T) {
	noise := []string{"ok", "thanks", "lol", "cool", "nice", "sure", "haha", "yes", "got it", "no"}
	var msgs []contextualizer.RawMessage
	for i := 0; i < 50; i++ {
		msgs = append(msgs, msg("user", noise[i%len(noise)]))
	}

	labelled := contextualizer.ClassifyAll(contextualizer.NewRuleClassifier(),
		contextualizer.NewSanitizer(nil, nil).SanitizeAll(msgs))
	for _, c := range labelled {
		assert.Equal(t, contextualizer.Chitchat, c.Classification)
	}

	p := newPipeline(t)

	t.Run("tight_budget_drops_everything", func(t *testing.T) {
		res, err := p.Process(msgs, 1)
		require.NoError(t, err)
		assert.Empty(t, res.Context)
		assert.Equal(t, res.Stats.TotalClusters, len(res.Dropped))
		assert.Greater(t, res.Stats.TotalClusters, 0)
		for _, d := range res.Dropped {
			assert.GreaterOrEqual(t, d.Significance, 0.1)
			assert.LessOrEqual(t, d.Significance, 0.4)
		}
	})

	t.Run("small_budget_stays_under_soft_target", func(t *testing.T) {
		res, err := p.Process(msgs, 20)
		require.NoError(t, err)
		assert.LessOrEqual(t, float64(res.Stats.TotalTokens), 20*contextualizer.DefaultCompressionTarget)
		assert.NotEmpty(t, res.Dropped)
		assert.Equal(t, 50, res.Stats.MeaningfulMessages)
	})
}

func TestProcess_TopicShiftYieldsTwoClusters(t *testing.T) {
	p := newPipeline(t)
	var msgs []contextualizer.RawMessage
	for _, text := range migrationThread {
		msgs = append(msgs, msg("user", text))
	}
	for _, text := range lunchThread {
		msgs = append(msgs, msg("user", text))
	}

	res, err := p.Process(msgs, 0)

	require.NoError(t, err)
	assert.Equal(t, 2, res.Stats.TotalClusters)
	assert.Equal(t, 2, res.Stats.PackedClusters)
	total := 0
	for _, b := range res.Context {
		total += b.MessageCount
	}
	assert.Equal(t, 10, total)
}

func TestProcess_DegenerateInputs(t *testing.T) {
	p := newPipeline(t)

	tests := []struct {
		name string
		msgs []contextualizer.RawMessage
	}{
		{"nil", nil},
		{"empty", []contextualizer.RawMessage{}},
		{"blank_only", []contextualizer.RawMessage{msg("user", "   ")}},
		{"system_and_tool_only", []contextualizer.RawMessage{
			msg("system", "You are a helpful assistant for the team."),
			msg("tool", "Tool output: forty two rows were returned overall"),
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := p.Process(tt.msgs, 1000)
			require.NoError(t, err)
			assert.Empty(t, res.Context)
			assert.Empty(t, res.Dropped)
			assert.Equal(t, 0, res.Stats.TotalClusters)
			assert.Equal(t, 0.0, res.Stats.CompressionRatio)

			data, err := json.Marshal(res)
			require.NoError(t, err)
			assert.Contains(t, string(data), `"context":[]`)
			assert.Contains(t, string(data), `"dropped":[]`)
		})
	}
}

func TestProcess_SingleMessageStillClusters(t *testing.T) {
	p := newPipeline(t)

	res, err := p.Process([]contextualizer.RawMessage{msg("user", "The weather in Lisbon was lovely during the trip.")}, 1000)

	require.NoError(t, err)
	assert.Equal(t, 1, res.Stats.TotalClusters)
	require.Len(t, res.Context, 1)
	assert.Equal(t, 1, res.Context[0].MessageCount)
}

func TestProcess_RecordsAuditEntry(t *testing.T) {
	rec := &memoryRecorder{}
	start := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	p := newPipeline(t,
		contextualizer.WithRecorder(rec),
		contextualizer.WithClock(steppingClock(start, 15*time.Millisecond)),
		contextualizer.WithIDGenerator(func() string { return "ctx-test" }),
	)

	res, err := p.Process([]contextualizer.RawMessage{
		msg("user", "What is the deployment plan?"),
		msg("assistant", "We decided to deploy to staging first, then production."),
		msg("system", "You are a helpful assistant for the team."),
	}, 1000)

	require.NoError(t, err)
	assert.Equal(t, "ctx-test", res.ID)
	assert.Equal(t, int64(15), res.Stats.ElapsedMs)

	entries := rec.all()
	require.Len(t, entries, 1)
	assert.Equal(t, audit.Entry{
		ID:               "ctx-test",
		Timestamp:        start,
		InputMessages:    3,
		OutputClusters:   1,
		CompressionRatio: 1,
		TotalTokens:      res.Stats.TotalTokens,
		ElapsedMs:        15,
	}, entries[0])
}

func TestProcess_RecorderFailureIsIgnored(t *testing.T) {
	p := newPipeline(t, contextualizer.WithRecorder(panicRecorder{}))

	res, err := p.Process([]contextualizer.RawMessage{msg("user", "What is the deployment plan?")}, 1000)

	require.NoError(t, err)
	assert.Len(t, res.Context, 1)
}

func TestProcess_StagePanicIsContained(t *testing.T) {
	rec := &memoryRecorder{}
	broken := contextualizer.ClassifierFunc(func(contextualizer.SanitizedMessage) contextualizer.Classification {
		panic("index out of range")
	})
	p := newPipeline(t, contextualizer.WithClassifier(broken), contextualizer.WithRecorder(rec))

	res, err := p.Process([]contextualizer.RawMessage{msg("user", "anything at all goes here")}, 1000)

	assert.Nil(t, res)
	assert.True(t, errors.Is(err, contextualizer.ErrPipelineFailed))
	assert.NotContains(t, err.Error(), "index out of range")
	assert.Empty(t, rec.all())
}

func TestProcess_DoesNotMutateInput(t *testing.T) {
	p := newPipeline(t)
	original := contextualizer.NewRawMessage("user", "mail jane@example.com about it", map[string]any{"session_id": "s-1"})
	snapshot := append([]byte(nil), original...)

	_, err := p.Process([]contextualizer.RawMessage{original}, 1000)

	require.NoError(t, err)
	assert.Equal(t, snapshot, []byte(original))
}

func TestProcess_ConcurrentCalls(t *testing.T) {
	rec := &memoryRecorder{}
	p := newPipeline(t, contextualizer.WithRecorder(rec))
	msgs := []contextualizer.RawMessage{
		msg("user", "What is the deployment plan?"),
		msg("assistant", "We decided to deploy to staging first, then production."),
	}

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := p.Process(msgs, 1000)
			assert.NoError(t, err)
			assert.Len(t, res.Context, 1)
		}()
	}
	wg.Wait()

	assert.Len(t, rec.all(), 20)
}

func TestPipeline_IndependentConfigs(t *testing.T) {
	tight := contextualizer.DefaultConfig()
	tight.MaxClusterSize = 10

	a := newPipeline(t)
	b, err := contextualizer.New(tight)
	require.NoError(t, err)

	assert.Equal(t, contextualizer.DefaultMaxClusterSize, a.Config().MaxClusterSize)
	assert.Equal(t, 10, b.Config().MaxClusterSize)

	snap := a.Config()
	snap.SignificanceWeights[contextualizer.Decision] = 0
	assert.Equal(t, 1.0, a.Config().SignificanceWeights[contextualizer.Decision], "snapshot must be a copy")
}
