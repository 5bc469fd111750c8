package contextualizer_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/compresr/semantic-context/internal/contextualizer"
)

func set(words ...string) map[string]struct{} {
	s := make(map[string]struct{}, len(words))
	for _, w := range words {
		s[w] = struct{}{}
	}
	return s
}

func classified(text string, cl contextualizer.Classification) contextualizer.ClassifiedMessage {
	return contextualizer.ClassifiedMessage{
		SanitizedMessage: contextualizer.SanitizedMessage{Text: text, Role: "user", OriginalLength: len(text)},
		Classification:   cl,
	}
}

func TestEstimateTokens(t *testing.T) {
	assert.Equal(t, 0, contextualizer.EstimateTokens(""))
	assert.Equal(t, 1, contextualizer.EstimateTokens("abcd"))
	assert.Equal(t, 2, contextualizer.EstimateTokens("abcde"))
	assert.Equal(t, 1, contextualizer.EstimateTokens("héé"), "counts characters, not bytes")
}

func TestVocabulary(t *testing.T) {
	stop := set("the", "is")
	msgs := []contextualizer.ClassifiedMessage{
		classified("The Database migration is running!", contextualizer.Technical),
		classified("db ok, database again", contextualizer.Technical),
	}

	got := contextualizer.Vocabulary(msgs, stop)

	assert.Equal(t, set("database", "migration", "running", "again"), got)
}

func TestJaccard(t *testing.T) {
	tests := []struct {
		name string
		a, b map[string]struct{}
		want float64
	}{
		{"both_empty", set(), set(), 1},
		{"one_empty", set("alpha"), set(), 0},
		{"identical", set("alpha", "beta"), set("alpha", "beta"), 1},
		{"partial", set("alpha", "beta"), set("beta", "gamma"), 1.0 / 3.0},
		{"disjoint", set("alpha"), set("beta"), 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, contextualizer.Jaccard(tt.a, tt.b), 1e-9)
		})
	}
}

func TestTopicLabel(t *testing.T) {
	t.Run("top_three_by_frequency", func(t *testing.T) {
		msgs := []contextualizer.ClassifiedMessage{
			classified("database migration database", contextualizer.Technical),
			classified("schema migration database", contextualizer.Technical),
		}
		assert.Equal(t, "database-migration-schema", contextualizer.TopicLabel(msgs))
	})

	t.Run("ties_keep_first_seen_order", func(t *testing.T) {
		msgs := []contextualizer.ClassifiedMessage{classified("pizza lunch park tacos", contextualizer.Context)}
		assert.Equal(t, "pizza-lunch-park", contextualizer.TopicLabel(msgs))
	})

	t.Run("numeric_tokens_tie_by_position", func(t *testing.T) {
		msgs := []contextualizer.ClassifiedMessage{
			classified("release plan 2024", contextualizer.Decision),
			classified("release 2024 plan", contextualizer.Decision),
		}
		assert.Equal(t, "release-plan-2024", contextualizer.TopicLabel(msgs))

		msgs = []contextualizer.ClassifiedMessage{classified("build 1234 deploy 5678", contextualizer.Technical)}
		assert.Equal(t, "build-1234-deploy", contextualizer.TopicLabel(msgs))
	})

	t.Run("general_when_no_long_words", func(t *testing.T) {
		msgs := []contextualizer.ClassifiedMessage{classified("ok yes lol", contextualizer.Chitchat)}
		assert.Equal(t, "general", contextualizer.TopicLabel(msgs))
	})
}
