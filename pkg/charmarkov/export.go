package charmarkov

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
)

// ExportedModel is the serializable representation of a trained model,
// used for JSON-based import and export. It carries the raw counts rather
// than the normalized table so that importing is lossless and imported
// models can later be merged or pruned without rounding drift.
type ExportedModel struct {
	Order  int                       `json:"order"`
	Counts map[string]map[string]int `json:"counts"` // history -> next char -> count
}

// Export serializes the model's raw counts as JSON to the provided
// io.Writer. Runes are written as strings, since JSON object keys must be
// strings.
func (m *Model) Export(w io.Writer) error {
	exported := ExportedModel{
		Order:  m.order,
		Counts: make(map[string]map[string]int, len(m.counts)),
	}
	for history, successors := range m.counts {
		row := make(map[string]int, len(successors))
		for char, count := range successors {
			row[string(char)] = count
		}
		exported.Counts[history] = row
	}

	m.logger.Info("model exported",
		slog.Int("order", m.order),
		slog.Int("histories_exported", len(exported.Counts)),
	)

	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(exported)
}

// Import reads a JSON representation written by Export and reconstructs
// the model, re-running normalization on the imported counts.
func Import(r io.Reader) (*Model, error) {
	var exported ExportedModel
	if err := json.NewDecoder(r).Decode(&exported); err != nil {
		return nil, fmt.Errorf("failed to decode json model: %w", err)
	}
	if exported.Order < 1 {
		return nil, fmt.Errorf("%w: imported order %d", ErrInvalidOrder, exported.Order)
	}

	counts := make(map[string]map[rune]int, len(exported.Counts))
	for history, successors := range exported.Counts {
		row := make(map[rune]int, len(successors))
		for charText, count := range successors {
			chars := []rune(charText)
			if len(chars) != 1 {
				return nil, fmt.Errorf("invalid successor %q for history %q: want exactly one character", charText, history)
			}
			row[chars[0]] = count
		}
		counts[history] = row
	}

	return FromCounts(exported.Order, counts)
}
