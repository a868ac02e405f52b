package charmarkov

import (
	"errors"
	"strings"
	"testing"
)

func TestGenerateReproducible(t *testing.T) {
	// "aab" at order 1: the sentinel always yields 'a', then 'a' yields
	// 'a' or 'b' with probability 0.5 each, pairs ordered ('a','b').
	m := mustBuild(t, "aab", 1)

	testCases := []struct {
		name     string
		draws    []float64
		count    int
		expected string
	}{
		{name: "low draws stay on a", draws: []float64{0.1, 0.3, 0.3, 0.3}, count: 4, expected: "aaaa"},
		{name: "high draw crosses to b", draws: []float64{0.1, 0.7}, count: 2, expected: "ab"},
		{name: "boundary draw of zero picks first pair", draws: []float64{0.0, 0.0}, count: 2, expected: "aa"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			output, err := m.Generate(tc.count, WithSource(newScriptedSource(t, tc.draws...)))
			if err != nil {
				t.Fatalf("Generate failed: %v", err)
			}
			if output != tc.expected {
				t.Errorf("got %q, want %q", output, tc.expected)
			}

			// The same recorded draws must reproduce the same output.
			again, err := m.Generate(tc.count, WithSource(newScriptedSource(t, tc.draws...)))
			if err != nil {
				t.Fatalf("repeat Generate failed: %v", err)
			}
			if again != output {
				t.Errorf("generation not reproducible: %q then %q", output, again)
			}
		})
	}
}

func TestGenerateLengthContract(t *testing.T) {
	// "abab" at order 1 cycles forever between 'a' and 'b'.
	m := mustBuild(t, "abab", 1)

	for _, count := range []int{0, 1, 7, 100} {
		src := &countingSource{}
		output, err := m.Generate(count, WithSource(src))
		if err != nil {
			t.Fatalf("Generate(%d) failed: %v", count, err)
		}
		if got := len([]rune(output)); got != count {
			t.Errorf("Generate(%d) returned %d characters", count, got)
		}
		if src.calls != count {
			t.Errorf("Generate(%d) made %d draws, want exactly one per character", count, src.calls)
		}
	}
}

func TestGenerateUnseenHistory(t *testing.T) {
	// "ab" at order 1 has no successor for 'b', so the third step must
	// fail rather than invent a character.
	m := mustBuild(t, "ab", 1)

	_, err := m.Generate(3, WithSource(&countingSource{}))
	if !errors.Is(err, ErrUnseenHistory) {
		t.Fatalf("expected ErrUnseenHistory, got %v", err)
	}
	if !strings.Contains(err.Error(), "b") {
		t.Errorf("error should name the offending history, got %q", err.Error())
	}
}

func TestGenerateSamplingExhaustion(t *testing.T) {
	// A hand-built distribution whose mass falls slightly short of 1.0
	// exercises the rounding fallback: the last pair must be selected
	// instead of failing the step.
	m := newModel(1)
	m.table[string(Sentinel)] = Distribution{
		{Char: 'a', Prob: 0.5},
		{Char: 'b', Prob: 0.5 - 1e-12},
	}

	output, err := m.Generate(1, WithSource(newScriptedSource(t, 1-1e-13)))
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}
	if output != "b" {
		t.Errorf("expected fallback to last pair %q, got %q", "b", output)
	}
}

func TestGenerateWithSeed(t *testing.T) {
	// In "hello hello" at order 2, "he" is always followed by 'l'.
	m := mustBuild(t, "hello hello", 2)

	output, err := m.Generate(1, WithSeed("he"), WithSource(newScriptedSource(t, 0.9)))
	if err != nil {
		t.Fatalf("Generate with seed failed: %v", err)
	}
	if output != "l" {
		t.Errorf("got %q, want %q", output, "l")
	}

	// A seed longer than the order only keeps its tail.
	output, err = m.Generate(1, WithSeed("xxxhe"), WithSource(newScriptedSource(t, 0.9)))
	if err != nil {
		t.Fatalf("Generate with long seed failed: %v", err)
	}
	if output != "l" {
		t.Errorf("long seed: got %q, want %q", output, "l")
	}
}

func TestGenerateTemperatureZero(t *testing.T) {
	// "aaab" at order 1: 'a' is followed by 'a' twice and 'b' once, so
	// deterministic selection always picks 'a'.
	m := mustBuild(t, "aaab", 1)

	output, err := m.Generate(5, WithTemperature(0))
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}
	if output != "aaaaa" {
		t.Errorf("got %q, want %q", output, "aaaaa")
	}
}

func TestGenerateTopK(t *testing.T) {
	// "aaabac" at order 1: 'a' is followed by a:2, b:1, c:1. With k=1
	// only 'a' survives, so even a draw that would land on 'c' yields 'a'.
	m := mustBuild(t, "aaabac", 1)

	output, err := m.Generate(3, WithTopK(1), WithSource(newScriptedSource(t, 0.99, 0.99, 0.99)))
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}
	if output != "aaa" {
		t.Errorf("got %q, want %q", output, "aaa")
	}
}

func BenchmarkGenerate(b *testing.B) {
	model, err := BuildFromString(createBenchmarkCorpus(), 4)
	if err != nil {
		b.Fatalf("Build setup for benchmark failed: %v", err)
	}

	genOpts := map[string][]GenerateOption{
		"Simple":   {},
		"WithTemp": {WithTemperature(0.7)},
		"WithTopK": {WithTopK(10)},
	}

	for name, opts := range genOpts {
		b.Run(name, func(b *testing.B) {
			b.ReportAllocs()
			b.ResetTimer()
			for i := 0; i < b.N; i++ {
				s, err := model.Generate(200, opts...)
				if err != nil && !errors.Is(err, ErrUnseenHistory) {
					b.Fatalf("Generate failed: %v", err)
				}
				b.SetBytes(int64(len(s)))
			}
		})
	}
}

func TestGenerateDoesNotMutateModel(t *testing.T) {
	m := mustBuild(t, "the cat sat on the mat", 2)

	before := m.Counts()
	if _, err := m.Generate(10); err != nil && !errors.Is(err, ErrUnseenHistory) {
		t.Fatalf("Generate failed unexpectedly: %v", err)
	}
	after := m.Counts()

	if len(before) != len(after) {
		t.Fatalf("generation changed the model: %d histories before, %d after", len(before), len(after))
	}
	for history, successors := range before {
		for char, count := range successors {
			if after[history][char] != count {
				t.Errorf("count for (%q, %q) changed from %d to %d", history, char, count, after[history][char])
			}
		}
	}
}
