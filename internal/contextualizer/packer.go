// Stage 5: context window packing.
//
// DESIGN: Greedy, highest significance first.
//   - Fits within maxTokens*CompressionTarget: always packed.
//   - Fits within maxTokens and significance >= HighSignificance: packed.
//   - Anything else is dropped, but recorded.
package contextualizer

// PackWindow selects clusters into a maxTokens budget. scored must already
// be sorted by descending significance.
func PackWindow(scored []ScoredCluster, maxTokens int, cfg Config) PackedResult {
	soft := float64(maxTokens) * cfg.CompressionTarget
	packed := make([]ScoredCluster, 0, len(scored))
	dropped := make([]DroppedCluster, 0)
	packedTokens, allTokens := 0, 0

	for _, c := range scored {
		allTokens += c.TotalTokens
		next := packedTokens + c.TotalTokens
		switch {
		case float64(next) <= soft:
			packed = append(packed, c)
			packedTokens = next
		case next <= maxTokens && c.Significance >= cfg.HighSignificance:
			packed = append(packed, c)
			packedTokens = next
		default:
			dropped = append(dropped, DroppedCluster{
				Topic:        c.Topic,
				Significance: c.Significance,
				Tokens:       c.TotalTokens,
			})
		}
	}

	ratio := 0.0
	if len(packed) > 0 && allTokens > 0 {
		ratio = round(float64(packedTokens)/float64(allTokens), 3)
	}

	return PackedResult{
		Packed:  packed,
		Dropped: dropped,
		Stats: PackStats{
			TotalClusters:    len(scored),
			PackedClusters:   len(packed),
			DroppedClusters:  len(dropped),
			TotalTokens:      packedTokens,
			CompressionRatio: ratio,
		},
	}
}
