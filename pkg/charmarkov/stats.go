package charmarkov

// ModelStats holds aggregated statistics for a trained model.
type ModelStats struct {
	Histories    int // The number of distinct history windows.
	Transitions  int // The number of unique history->char links.
	AlphabetSize int // The number of distinct successor characters.
	TotalCount   int // The sum of all raw counts; the total trained transitions.
}

// Stats returns a snapshot of statistics for the model.
func (m *Model) Stats() ModelStats {
	alphabet := make(map[rune]struct{})
	stats := ModelStats{Histories: len(m.counts)}
	for _, successors := range m.counts {
		stats.Transitions += len(successors)
		for char, count := range successors {
			alphabet[char] = struct{}{}
			stats.TotalCount += count
		}
	}
	stats.AlphabetSize = len(alphabet)
	return stats
}
