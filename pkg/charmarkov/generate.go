package charmarkov

import (
	"fmt"
	"log/slog"
	"math"
	"math/rand/v2"
	"sort"
	"strings"
)

// Source supplies uniform random values in [0, 1). It is the only
// randomness capability generation needs; math/rand/v2's *rand.Rand
// satisfies it, and tests can substitute a recorded sequence of draws.
type Source interface {
	Float64() float64
}

// generateOptions is used by the generate functions to configure default options.
type generateOptions struct {
	source      Source
	seed        string
	temperature float64
	topK        int
}

// GenerateOption is a function that configures generation parameters. It's
// used as a variadic argument in Generate and GenerateStream.
type GenerateOption func(*generateOptions)

// WithSource sets the uniform randomness source used for sampling. The
// default is a source backed by math/rand/v2.
func WithSource(s Source) GenerateOption {
	return func(o *generateOptions) {
		if s != nil {
			o.source = s
		}
	}
}

// WithSeed primes the rolling history window with the given text before
// the first character is sampled, as if generation were resuming after it.
// Seed text shorter than the model order keeps its sentinel-padded head.
// The seed itself is not part of the returned output.
func WithSeed(seed string) GenerateOption {
	return func(o *generateOptions) { o.seed = seed }
}

// WithTemperature adjusts the randomness of character selection.
// A value of 1.0 samples the stored distribution unchanged.
// Values > 1.0 flatten the distribution; values < 1.0 sharpen it.
// A value of 0 or less selects the most probable character every step.
func WithTemperature(t float64) GenerateOption {
	return func(o *generateOptions) { o.temperature = t }
}

// WithTopK restricts selection to the k most probable characters at each
// step. A value of 0 disables Top-K sampling.
func WithTopK(k int) GenerateOption {
	return func(o *generateOptions) { o.topK = k }
}

func defaultGenerateOptions() *generateOptions {
	return &generateOptions{
		source:      rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64())),
		temperature: 1.0,
		topK:        0,
	}
}

// Generate samples exactly count characters from the model, starting from
// a sentinel-padded history window (or the trailing end of a seed, if one
// is set). Each character consumes exactly one draw from the source; a
// count of 0 returns an empty string and draws nothing.
//
// Generation fails with ErrUnseenHistory if the current window has no
// distribution in the model. There is no smoothing fallback; the error
// wraps the offending history for diagnosis.
func (m *Model) Generate(count int, opts ...GenerateOption) (string, error) {
	options := defaultGenerateOptions()
	for _, opt := range opts {
		opt(options)
	}

	history := m.initialHistory(options.seed)

	var builder strings.Builder
	builder.Grow(count)

	for generated := 0; generated < count; generated++ {
		char, err := m.step(history, options)
		if err != nil {
			return "", err
		}
		builder.WriteRune(char)
		history = append(history[1:], char)
	}

	m.logger.Debug("generation complete",
		slog.Int("order", m.order),
		slog.Int("generated_length", count),
	)

	return builder.String(), nil
}

// initialHistory builds the starting window: order sentinels, overlaid
// with the tail of the seed text when one is given.
func (m *Model) initialHistory(seed string) []rune {
	history := make([]rune, m.order)
	for i := range history {
		history[i] = Sentinel
	}
	for _, char := range seed {
		history = append(history[1:], char)
	}
	return history
}

// step samples one character for the current window.
func (m *Model) step(history []rune, options *generateOptions) (rune, error) {
	key := string(history)
	dist, ok := m.table[key]
	if !ok {
		return 0, fmt.Errorf("%w: %q", ErrUnseenHistory, key)
	}
	return chooseChar(dist, options), nil
}

// chooseChar selects the next character from a distribution. With default
// options this is inverse-CDF sampling: one uniform draw walked through
// the stored pair order, subtracting probabilities until the running value
// reaches zero. Rounding can leave the walk short of the full mass, in
// which case the last pair is the defined fallback so a step always
// produces a character.
func chooseChar(dist Distribution, options *generateOptions) rune {
	// topK filtering, renormalized so the surviving mass sums to 1.
	if options.topK > 0 && options.topK < len(dist) {
		filtered := make(Distribution, len(dist))
		copy(filtered, dist)
		sort.Slice(filtered, func(i, j int) bool {
			return filtered[i].Prob > filtered[j].Prob
		})
		filtered = filtered[:options.topK]
		var mass float64
		for _, pair := range filtered {
			mass += pair.Prob
		}
		for i := range filtered {
			filtered[i].Prob /= mass
		}
		dist = filtered
	}

	if options.temperature <= 0 { // Deterministic
		best := dist[0]
		for _, pair := range dist[1:] {
			if pair.Prob > best.Prob {
				best = pair
			}
		}
		return best.Char
	}

	if options.temperature == 1.0 { // Standard inverse-CDF sampling
		x := options.source.Float64()
		for _, pair := range dist {
			x -= pair.Prob
			if x <= 0 {
				return pair.Char
			}
		}
		return dist[len(dist)-1].Char
	}

	// Temperature-based sampling over log-probabilities.
	logProbs := make([]float64, len(dist))
	maxLp := math.Inf(-1)
	for i, pair := range dist {
		lp := math.Log(pair.Prob) / options.temperature
		logProbs[i] = lp
		if lp > maxLp {
			maxLp = lp
		}
	}
	weights := make([]float64, len(dist))
	var totalWeight float64
	for i, lp := range logProbs {
		w := math.Exp(lp - maxLp)
		weights[i] = w
		totalWeight += w
	}
	x := options.source.Float64() * totalWeight
	for i, pair := range dist {
		x -= weights[i]
		if x <= 0 {
			return pair.Char
		}
	}
	return dist[len(dist)-1].Char
}
