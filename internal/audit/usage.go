package audit

import "math"

// Usage is the aggregate report served by the stats endpoint.
type Usage struct {
	TotalProcessed   int     `json:"totalProcessed"`
	AvgCompression   float64 `json:"avgCompression"`
	TotalTokensSaved int     `json:"totalTokensSaved"`
	RecentEntries    []Entry `json:"recentEntries"`
}

// Summarize aggregates entries and keeps the last recent of them.
//
// Tokens saved per entry is totalTokens*(1/ratio - 1), an estimate of how
// much input the packed output replaced. Entries with a zero ratio packed
// nothing and contribute no savings.
func Summarize(entries []Entry, recent int) Usage {
	u := Usage{RecentEntries: []Entry{}}
	if len(entries) == 0 {
		return u
	}

	u.TotalProcessed = len(entries)
	ratioSum := 0.0
	for _, e := range entries {
		ratioSum += e.CompressionRatio
		if e.CompressionRatio > 0 {
			u.TotalTokensSaved += int(math.Round(float64(e.TotalTokens) * (1/e.CompressionRatio - 1)))
		}
	}
	u.AvgCompression = math.Round(ratioSum/float64(len(entries))*1000) / 1000

	if recent > 0 {
		start := len(entries) - recent
		if start < 0 {
			start = 0
		}
		u.RecentEntries = append(u.RecentEntries, entries[start:]...)
	}
	return u
}
