package charmarkov

import (
	"go/build"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
)

// scriptedSource replays a fixed sequence of draws, so generation is
// exactly reproducible in tests. It fails the test if generation draws
// more values than were scripted.
type scriptedSource struct {
	t     *testing.T
	draws []float64
	next  int
}

func newScriptedSource(t *testing.T, draws ...float64) *scriptedSource {
	return &scriptedSource{t: t, draws: draws}
}

func (s *scriptedSource) Float64() float64 {
	if s.next >= len(s.draws) {
		s.t.Fatalf("generation drew %d values, only %d were scripted", s.next+1, len(s.draws))
	}
	v := s.draws[s.next]
	s.next++
	return v
}

// countingSource counts draws without caring about their values.
type countingSource struct {
	calls int
}

func (s *countingSource) Float64() float64 {
	s.calls++
	return 0.5
}

// mustBuild trains a model from an in-memory corpus or fails the test.
func mustBuild(t *testing.T, corpus string, order int, opts ...BuildOption) *Model {
	t.Helper()
	m, err := BuildFromString(corpus, order, opts...)
	if err != nil {
		t.Fatalf("BuildFromString(%q, %d) failed: %v", corpus, order, err)
	}
	return m
}

var (
	benchmarkCorpus string
	corpusOnce      sync.Once
)

// createBenchmarkCorpus reads Go source files to create a corpus for benchmarking.
func createBenchmarkCorpus() string {
	corpusOnce.Do(func() {
		var sb strings.Builder
		goRoot := build.Default.GOROOT
		filesToRead := []string{
			filepath.Join(goRoot, "src/net/http/server.go"),
			filepath.Join(goRoot, "src/go/parser/parser.go"),
			filepath.Join(goRoot, "src/encoding/json/encode.go"),
		}

		for _, file := range filesToRead {
			content, err := os.ReadFile(file)
			if err != nil {
				benchmarkCorpus = "this is a fallback corpus for benchmarking. it is not very long but will prevent a crash. "
				return
			}
			sb.Write(content)
			sb.WriteString("\n")
		}
		benchmarkCorpus = sb.String()
	})
	return benchmarkCorpus
}
