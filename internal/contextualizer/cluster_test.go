package contextualizer_test

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/compresr/semantic-context/internal/contextualizer"
)

var migrationThread = []string{
	"The database migration needs a rollback plan for the orders table",
	"Run the migration against the staging database before the orders backfill",
	"The orders table migration adds two columns and a new database index",
	"Migration scripts for the orders database are in the repo now",
	"Database backups must finish before the migration starts on orders",
}

var lunchThread = []string{
	"Lunch plans today: pizza place near the park sounds great",
	"Pizza near the park works for lunch today, great choice",
	"Lunch today at noon, pizza place by the park entrance",
	"Great, pizza lunch today near the park at noon then",
	"See everyone at the park pizza place for lunch today",
}

func flatten(clusters []contextualizer.Cluster) []string {
	var out []string
	for _, c := range clusters {
		for _, m := range c.Messages {
			out = append(out, m.Text)
		}
	}
	return out
}

func TestBuildClusters_TopicShift(t *testing.T) {
	var msgs []contextualizer.ClassifiedMessage
	for _, text := range migrationThread {
		msgs = append(msgs, classified(text, contextualizer.Technical))
	}
	for _, text := range lunchThread {
		msgs = append(msgs, classified(text, contextualizer.Context))
	}

	clusters := contextualizer.BuildClusters(msgs, contextualizer.DefaultConfig())

	require.Len(t, clusters, 2, "boundary expected at the first lunch message")
	assert.Len(t, clusters[0].Messages, 5)
	assert.Len(t, clusters[1].Messages, 5)
	assert.Equal(t, lunchThread[0], clusters[1].Messages[0].Text)
	assert.Contains(t, clusters[0].Topic, "migration")
	assert.Contains(t, clusters[1].Topic, "lunch")
}

func TestBuildClusters_NoShiftBeforeFullWindow(t *testing.T) {
	// Four messages never fill the default window of five, so no shift test runs.
	msgs := []contextualizer.ClassifiedMessage{
		classified(migrationThread[0], contextualizer.Technical),
		classified(migrationThread[1], contextualizer.Technical),
		classified(lunchThread[0], contextualizer.Context),
		classified(lunchThread[1], contextualizer.Context),
	}

	clusters := contextualizer.BuildClusters(msgs, contextualizer.DefaultConfig())

	require.Len(t, clusters, 1)
	assert.Len(t, clusters[0].Messages, 4)
}

func TestBuildClusters_SizeCeiling(t *testing.T) {
	cfg := contextualizer.DefaultConfig()
	cfg.MaxClusterSize = 10

	text := strings.Repeat("x", 20) // 5 tokens
	var msgs []contextualizer.ClassifiedMessage
	for i := 0; i < 5; i++ {
		msgs = append(msgs, classified(text, contextualizer.Context))
	}

	clusters := contextualizer.BuildClusters(msgs, cfg)

	require.Len(t, clusters, 3)
	assert.Equal(t, 10, clusters[0].TotalTokens)
	assert.Equal(t, 10, clusters[1].TotalTokens)
	assert.Equal(t, 5, clusters[2].TotalTokens)
	for _, c := range clusters {
		assert.LessOrEqual(t, c.TotalTokens, cfg.MaxClusterSize)
	}
}

func TestBuildClusters_MinMessagesForcesOversize(t *testing.T) {
	cfg := contextualizer.DefaultConfig()
	cfg.MaxClusterSize = 3

	text := strings.Repeat("y", 20) // 5 tokens, larger than the ceiling on its own
	var msgs []contextualizer.ClassifiedMessage
	for i := 0; i < 5; i++ {
		msgs = append(msgs, classified(text, contextualizer.Context))
	}

	clusters := contextualizer.BuildClusters(msgs, cfg)

	require.Len(t, clusters, 3)
	assert.Len(t, clusters[0].Messages, 2)
	assert.Len(t, clusters[1].Messages, 2)
	assert.Len(t, clusters[2].Messages, 1)
}

func TestBuildClusters_Boundaries(t *testing.T) {
	cfg := contextualizer.DefaultConfig()

	t.Run("empty", func(t *testing.T) {
		clusters := contextualizer.BuildClusters(nil, cfg)
		assert.NotNil(t, clusters)
		assert.Empty(t, clusters)
	})

	t.Run("below_min_still_one_cluster", func(t *testing.T) {
		clusters := contextualizer.BuildClusters([]contextualizer.ClassifiedMessage{
			classified("only one message in this conversation", contextualizer.Context),
		}, cfg)
		require.Len(t, clusters, 1)
		assert.Len(t, clusters[0].Messages, 1)
	})
}

func TestBuildClusters_CoversEveryMessageInOrder(t *testing.T) {
	cfg := contextualizer.DefaultConfig()
	cfg.MaxClusterSize = 40

	topics := [][]string{migrationThread, lunchThread, {"ok", "thanks", "lol", "sure", "nice"}}
	var msgs []contextualizer.ClassifiedMessage
	var want []string
	for round := 0; round < 4; round++ {
		for _, thread := range topics {
			for i, text := range thread {
				text = fmt.Sprintf("%s %d", text, round*10+i)
				msgs = append(msgs, classified(text, contextualizer.Context))
				want = append(want, text)
			}
		}
	}

	clusters := contextualizer.BuildClusters(msgs, cfg)

	assert.Equal(t, want, flatten(clusters))
	for i, c := range clusters {
		if i < len(clusters)-1 {
			assert.GreaterOrEqual(t, len(c.Messages), cfg.MinClusterMessages)
		}
		tokens := 0
		for _, m := range c.Messages {
			tokens += contextualizer.EstimateTokens(m.Text)
		}
		assert.Equal(t, tokens, c.TotalTokens)
		assert.NotEmpty(t, c.Topic)
	}
}
