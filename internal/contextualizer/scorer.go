// Stage 4: significance scoring.
package contextualizer

import (
	"math"
	"sort"
)

// ScoreClusters scores every cluster and sorts them by descending
// significance. Chronological order is deliberately given up here; ties keep
// their original relative order.
func ScoreClusters(clusters []Cluster, cfg Config) []ScoredCluster {
	scored := make([]ScoredCluster, 0, len(clusters))
	for _, c := range clusters {
		scored = append(scored, scoreCluster(c, cfg))
	}
	sort.SliceStable(scored, func(i, j int) bool {
		return scored[i].Significance > scored[j].Significance
	})
	return scored
}

func scoreCluster(c Cluster, cfg Config) ScoredCluster {
	present := make(map[Classification]bool)
	var labels []Classification
	sum := 0.0
	for _, m := range c.Messages {
		sum += cfg.weight(m.Classification)
		if !present[m.Classification] {
			present[m.Classification] = true
			labels = append(labels, m.Classification)
		}
	}

	significance := 0.0
	if len(c.Messages) > 0 {
		significance = sum / float64(len(c.Messages))
	}
	if present[Decision] {
		significance += cfg.DecisionBoost
	}
	if present[Technical] {
		significance += cfg.TechnicalBoost
	}
	if present[Question] {
		significance += cfg.QuestionBoost
	}
	significance = math.Max(0, math.Min(1, significance))

	if labels == nil {
		labels = []Classification{}
	}
	return ScoredCluster{
		Cluster:         c,
		Significance:    round(significance, 4),
		MessageCount:    len(c.Messages),
		Classifications: labels,
	}
}

func round(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}
