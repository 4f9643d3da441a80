package stats

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSummarize(t *testing.T) {
	samples := make([]time.Duration, 0, 100)
	for i := 100; i >= 1; i-- {
		samples = append(samples, time.Duration(i)*time.Millisecond)
	}

	s := Summarize(samples)
	assert.Equal(t, 100, s.N)
	assert.Equal(t, 51*time.Millisecond, s.P50)
	assert.Equal(t, 95*time.Millisecond, s.P95)
	assert.Equal(t, 99*time.Millisecond, s.P99)
	assert.Equal(t, 100*time.Millisecond, s.Max)
	assert.Equal(t, 50500*time.Microsecond, s.Avg)
}

func TestCollectorSeries(t *testing.T) {
	c := NewCollector()
	c.AddConnect(2 * time.Millisecond)
	c.AddMatchLatency(time.Second)
	c.AddError()

	assert.Equal(t, 1, c.ConnectionCount())
	assert.Equal(t, 1, c.ErrorCount())

	s, ok := c.Summary(SeriesMatch)
	require.True(t, ok)
	assert.Equal(t, time.Second, s.Max)

	_, ok = c.Summary(SeriesRelay)
	assert.False(t, ok)
}

func TestParseExposition(t *testing.T) {
	body := `# HELP roulette_relayed_total Total number of messages relayed
# TYPE roulette_relayed_total counter
roulette_relayed_total{kind="chat"} 3
roulette_relayed_total{kind="offer"} 2
roulette_pool_size 7
roulette_match_duration_seconds_sum 1.5
roulette_match_duration_seconds_count 4
roulette_weird{a="}"} 1
garbage
`
	values, err := parseExposition(strings.NewReader(body))
	require.NoError(t, err)

	assert.Equal(t, map[string]float64{
		"roulette_relayed_total":                5,
		"roulette_pool_size":                    7,
		"roulette_match_duration_seconds_sum":   1.5,
		"roulette_match_duration_seconds_count": 4,
		"roulette_weird":                        1,
	}, values)
}
