package charmarkov

import (
	"bufio"
	"cmp"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"strings"
)

// buildOptions holds the configurable parts of a build pass.
type buildOptions struct {
	minCount int
	logger   *slog.Logger
}

// BuildOption configures a Build call.
type BuildOption func(*buildOptions)

// WithMinCount drops transitions observed fewer than n times before
// normalization. Histories left with no surviving transitions are removed
// entirely. A value of 1 or less keeps everything.
func WithMinCount(n int) BuildOption {
	return func(o *buildOptions) { o.minCount = n }
}

// WithLogger sets the logger the model uses, starting with the build pass
// itself. By default all logs are discarded.
func WithLogger(logger *slog.Logger) BuildOption {
	return func(o *buildOptions) { o.logger = logger }
}

// Build trains a model of the given order from a character stream. The
// stream is conceptually left-padded with `order` Sentinel runes; every
// window of `order` runes followed by one more rune increments the count
// of (history -> following rune). After the single pass, counts are
// normalized into per-history probability distributions.
//
// An empty stream yields a valid empty model. The input is read to EOF but
// never retained.
func Build(corpus io.Reader, order int, opts ...BuildOption) (*Model, error) {
	if order < 1 {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidOrder, order)
	}

	options := &buildOptions{}
	for _, opt := range opts {
		opt(options)
	}

	m := newModel(order)
	m.SetLogger(options.logger)

	history := make([]rune, order)
	for i := range history {
		history[i] = Sentinel
	}

	reader := bufio.NewReader(corpus)
	var observed int64
	for {
		char, _, err := reader.ReadRune()
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return nil, fmt.Errorf("corpus read error: %w", err)
		}

		key := string(history)
		row, ok := m.counts[key]
		if !ok {
			row = make(map[rune]int)
			m.counts[key] = row
		}
		row[char]++
		observed++

		history = append(history[1:], char)
	}

	if options.minCount > 1 {
		m.pruneCounts(options.minCount)
	}
	m.normalize()

	m.logger.Debug("model built",
		slog.Int("order", order),
		slog.Int64("transitions_observed", observed),
		slog.Int("histories", len(m.table)),
	)

	return m, nil
}

// BuildFromString is a convenience wrapper around Build for in-memory
// corpora.
func BuildFromString(corpus string, order int, opts ...BuildOption) (*Model, error) {
	return Build(strings.NewReader(corpus), order, opts...)
}

// pruneCounts removes transitions below minCount and any history that ends
// up empty.
func (m *Model) pruneCounts(minCount int) {
	for history, successors := range m.counts {
		for char, count := range successors {
			if count < minCount {
				delete(successors, char)
			}
		}
		if len(successors) == 0 {
			delete(m.counts, history)
		}
	}
}

// normalize materializes the probability table from the raw counts. Each
// history's pairs are sorted ascending by rune so the stored order, and
// with it the inverse-CDF partition, is deterministic for a given corpus.
func (m *Model) normalize() {
	m.table = make(map[string]Distribution, len(m.counts))
	for history, successors := range m.counts {
		total := 0
		for _, count := range successors {
			total += count
		}

		dist := make(Distribution, 0, len(successors))
		for char, count := range successors {
			dist = append(dist, Pair{Char: char, Prob: float64(count) / float64(total)})
		}
		slices.SortFunc(dist, func(a, b Pair) int {
			return cmp.Compare(a.Char, b.Char)
		})
		m.table[history] = dist
	}
}
