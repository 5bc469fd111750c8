// Stage 3: topic clustering.
//
// DESIGN: One forward pass with a single open cluster. For each message:
//  1. Topic-shift test (only once the open cluster holds a full window):
//     Jaccard(vocab(last window), vocab(message)) < threshold seals it.
//  2. Size test: adding the message would pass MaxClusterSize seals it.
//  3. The message joins the (possibly new) open cluster.
//
// Both seals require MinClusterMessages. The final cluster is always sealed,
// even when smaller.
package contextualizer

// BuildClusters groups msgs into contiguous topic runs. Every message lands
// in exactly one cluster, in input order.
func BuildClusters(msgs []ClassifiedMessage, cfg Config) []Cluster {
	stopWords := cfg.stopWordSet()
	clusters := make([]Cluster, 0)

	var open []ClassifiedMessage
	openTokens := 0

	seal := func() {
		clusters = append(clusters, Cluster{
			Messages:    open,
			Topic:       TopicLabel(open),
			TotalTokens: openTokens,
		})
		open = nil
		openTokens = 0
	}

	for _, msg := range msgs {
		tokens := EstimateTokens(msg.Text)

		if len(open) >= cfg.SlidingWindowSize {
			window := open[len(open)-cfg.SlidingWindowSize:]
			similarity := Jaccard(
				Vocabulary(window, stopWords),
				Vocabulary([]ClassifiedMessage{msg}, stopWords),
			)
			if similarity < cfg.TopicShiftThreshold && len(open) >= cfg.MinClusterMessages {
				seal()
			}
		}

		if openTokens+tokens > cfg.MaxClusterSize && len(open) >= cfg.MinClusterMessages {
			seal()
		}

		open = append(open, msg)
		openTokens += tokens
	}

	if len(open) > 0 {
		seal()
	}
	return clusters
}
