package curation

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRunLoggerBuffersLinesInOrder(t *testing.T) {
	t.Parallel()

	l := NewRunLogger(nil)
	l.Info("starting", map[string]any{"entity": "e1"})
	l.Warn("no sitemap found", nil)
	l.Error("page load failed", map[string]any{"url": "https://acme.test"})

	lines := l.Lines()
	require.Len(t, lines, 3)
	require.Equal(t, "info", lines[0].Level)
	require.Equal(t, "starting", lines[0].Message)
	require.Equal(t, "e1", lines[0].Fields["entity"])
	require.Equal(t, "warn", lines[1].Level)
	require.Equal(t, "error", lines[2].Level)
	require.False(t, lines[0].At.IsZero())
}

func TestRunLoggerLinesReturnsCopy(t *testing.T) {
	t.Parallel()

	l := NewRunLogger(nil)
	l.Info("one", nil)

	snapshot := l.Lines()
	l.Info("two", nil)

	require.Len(t, snapshot, 1)
	require.Len(t, l.Lines(), 2)

	snapshot[0].Message = "mutated"
	require.Equal(t, "one", l.Lines()[0].Message)
}

func TestRunLoggerConcurrentAppend(t *testing.T) {
	t.Parallel()

	l := NewRunLogger(nil)
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			for j := 0; j < 20; j++ {
				l.Info(fmt.Sprintf("worker-%d", n), nil)
			}
		}(i)
	}
	wg.Wait()

	require.Len(t, l.Lines(), 200)
}
