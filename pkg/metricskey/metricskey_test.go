package metricskey

import (
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMetricsDefinitions(t *testing.T) {
	for _, m := range Metrics {
		assert.NotEmpty(t, m.Name, "Metric name should not be empty")
		assert.NotEmpty(t, m.Help, "Metric help text should not be empty")
		assert.NotEmpty(t, m.RequiredTags, "Metric should have required tags")
	}

	// Test that Metrics slice is sorted by name
	isSorted := sort.SliceIsSorted(Metrics, func(i, j int) bool {
		return Metrics[i].Name < Metrics[j].Name
	})
	assert.True(t, isSorted, "Metrics slice should be sorted by name")

	// Test that all metrics in Metrics slice are unique
	seen := make(map[string]bool)
	for _, m := range Metrics {
		assert.False(t, seen[m.Name], "Metric name should be unique: %s", m.Name)
		seen[m.Name] = true
	}

	t.Run("query metrics have agent tag", func(t *testing.T) {
		assert.Contains(t, StatsQueriesSucceeded.RequiredTags, "agent")
		assert.Contains(t, StatsQueriesFailed.RequiredTags, "agent")
		assert.Contains(t, StatsTurnLimitExceeded.RequiredTags, "agent")
		assert.Contains(t, PerfQueryRun.RequiredTags, "agent")
	})

	t.Run("tool metrics have tool tag", func(t *testing.T) {
		assert.Contains(t, StatsToolCallsSucceeded.RequiredTags, "tool")
		assert.Contains(t, StatsToolCallsFailed.RequiredTags, "tool")
		assert.Contains(t, PerfToolCall.RequiredTags, "tool")
	})

	t.Run("session metrics have server tag", func(t *testing.T) {
		assert.Contains(t, StatsSessionsStarted.RequiredTags, "server")
		assert.Contains(t, StatsSessionsLost.RequiredTags, "server")
		assert.Contains(t, PerfProviderStartup.RequiredTags, "server")
	})
}
