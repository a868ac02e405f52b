package charmarkov

import (
	"errors"
	"io"
	"log/slog"
)

// Sentinel is the reserved padding rune used to seed the history window
// before enough real characters exist. Both training and generation pad
// with it, so a freshly started generator reproduces sequence-initial
// behavior from the corpus. It is NUL so it never collides with natural
// text.
const Sentinel rune = '\x00'

var (
	// ErrInvalidOrder is returned when a model is built or reconstructed
	// with an order smaller than 1.
	ErrInvalidOrder = errors.New("charmarkov: order must be at least 1")

	// ErrUnseenHistory is returned by generation when the current history
	// window was never observed during training and therefore has no
	// distribution. The model makes no attempt to smooth or back off; the
	// caller chose the order and the corpus.
	ErrUnseenHistory = errors.New("charmarkov: history not present in model")
)

// Pair is a single entry of a Distribution: one successor character and
// the probability of it following the distribution's history.
type Pair struct {
	Char rune
	Prob float64
}

// Distribution is the normalized successor distribution for one history.
// Pairs are ordered ascending by rune, which fixes the cumulative
// partition used by inverse-CDF sampling. Probabilities are non-negative
// and sum to 1.0 within floating-point tolerance.
type Distribution []Pair

// Model is an immutable fixed-order character Markov model. It holds the
// raw transition counts accumulated during the build pass and the
// normalized probability table materialized from them. Once built, a
// Model is never mutated and may be shared across goroutines.
type Model struct {
	order  int
	counts map[string]map[rune]int
	table  map[string]Distribution
	logger *slog.Logger
}

// FromCounts reconstructs a Model from a raw history -> char -> count
// table, normalizing it the same way Build does. The counts map is copied;
// the caller keeps ownership of its argument. Histories with no positive
// counts are dropped.
func FromCounts(order int, counts map[string]map[rune]int) (*Model, error) {
	if order < 1 {
		return nil, ErrInvalidOrder
	}
	m := newModel(order)
	for history, successors := range counts {
		for char, count := range successors {
			if count <= 0 {
				continue
			}
			row, ok := m.counts[history]
			if !ok {
				row = make(map[rune]int)
				m.counts[history] = row
			}
			row[char] = count
		}
	}
	m.normalize()
	return m, nil
}

func newModel(order int) *Model {
	return &Model{
		order:  order,
		counts: make(map[string]map[rune]int),
		table:  make(map[string]Distribution),
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
}

// Order returns the number of preceding characters the model conditions on.
func (m *Model) Order() int {
	return m.order
}

// Len returns the number of distinct histories in the model.
func (m *Model) Len() int {
	return len(m.table)
}

// Lookup returns the successor distribution for a history, and whether the
// history was observed during training. The returned slice is the model's
// own storage and must not be modified.
func (m *Model) Lookup(history string) (Distribution, bool) {
	dist, ok := m.table[history]
	return dist, ok
}

// Counts returns a deep copy of the raw transition counts. It is the seam
// used by the persistence and export layers, which store counts rather
// than probabilities so that merging and re-normalization stay lossless.
func (m *Model) Counts() map[string]map[rune]int {
	out := make(map[string]map[rune]int, len(m.counts))
	for history, successors := range m.counts {
		row := make(map[rune]int, len(successors))
		for char, count := range successors {
			row[char] = count
		}
		out[history] = row
	}
	return out
}

// SetLogger sets the logger for the model. By default all logs are
// discarded.
func (m *Model) SetLogger(logger *slog.Logger) {
	if logger != nil {
		m.logger = logger
	}
}
