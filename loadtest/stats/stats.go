// Package stats aggregates client-side measurements from many simulated
// users and prints percentile summaries at the end of a load test run.
package stats

import (
	"fmt"
	"math"
	"sort"
	"sync"
	"time"
)

// Latency series recorded by the scenarios.
const (
	SeriesConnect = "connect"
	SeriesMatch   = "match"
	SeriesRelay   = "relay"
)

var seriesTitles = map[string]string{
	SeriesConnect: "Connect Latency",
	SeriesMatch:   "Match Latency",
	SeriesRelay:   "Relay Latency",
}

// Collector is safe for concurrent use by client goroutines.
type Collector struct {
	mu          sync.Mutex
	series      map[string][]time.Duration
	order       []string
	errors      int
	connections int
	startTime   time.Time
	scraper     *Scraper
}

// NewCollector creates a Collector whose run duration starts now.
func NewCollector() *Collector {
	return &Collector{
		series:    make(map[string][]time.Duration),
		startTime: time.Now(),
	}
}

// SetScraper attaches a server metrics scraper whose report is appended to
// Report's output.
func (c *Collector) SetScraper(s *Scraper) {
	c.mu.Lock()
	c.scraper = s
	c.mu.Unlock()
}

// AddConnect records a completed handshake.
func (c *Collector) AddConnect(d time.Duration) {
	c.mu.Lock()
	c.connections++
	c.observe(SeriesConnect, d)
	c.mu.Unlock()
}

// AddMatchLatency records the time from start-search to match-found.
func (c *Collector) AddMatchLatency(d time.Duration) { c.Observe(SeriesMatch, d) }

// AddMsgLatency records the time for a relayed message to reach the partner.
func (c *Collector) AddMsgLatency(d time.Duration) { c.Observe(SeriesRelay, d) }

// Observe appends d to the named series.
func (c *Collector) Observe(series string, d time.Duration) {
	c.mu.Lock()
	c.observe(series, d)
	c.mu.Unlock()
}

func (c *Collector) observe(series string, d time.Duration) {
	if _, ok := c.series[series]; !ok {
		c.order = append(c.order, series)
	}
	c.series[series] = append(c.series[series], d)
}

// AddError increments the error counter.
func (c *Collector) AddError() {
	c.mu.Lock()
	c.errors++
	c.mu.Unlock()
}

// ConnectionCount returns the number of recorded connections.
func (c *Collector) ConnectionCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connections
}

// ErrorCount returns the number of recorded errors.
func (c *Collector) ErrorCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.errors
}

// Summary returns the distribution of a series. ok is false when nothing
// was recorded for it.
func (c *Collector) Summary(series string) (Summary, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	samples := c.series[series]
	if len(samples) == 0 {
		return Summary{}, false
	}
	return Summarize(samples), true
}

// Report prints the run totals, every latency series and, when attached,
// the server-side metrics.
func (c *Collector) Report() {
	c.mu.Lock()
	defer c.mu.Unlock()

	fmt.Println("\n=== Load Test Results ===")
	fmt.Printf("Duration:     %s\n", time.Since(c.startTime).Round(time.Second))
	fmt.Printf("Connections:  %d\n", c.connections)
	fmt.Printf("Errors:       %d\n", c.errors)
	if c.connections > 0 {
		fmt.Printf("Error rate:   %.2f%%\n", float64(c.errors)/float64(c.connections)*100)
	}

	for _, name := range c.order {
		title, ok := seriesTitles[name]
		if !ok {
			title = name
		}
		fmt.Printf("\n--- %s ---\n", title)
		fmt.Printf("  %s\n", Summarize(c.series[name]))
	}

	if c.scraper != nil {
		c.scraper.Report()
	}
	fmt.Println()
}

// Summary is a latency distribution.
type Summary struct {
	N                       int
	Avg, P50, P95, P99, Max time.Duration
}

// Summarize computes the distribution of samples, which must be non-empty.
// The slice is sorted in place.
func Summarize(samples []time.Duration) Summary {
	sort.Slice(samples, func(i, j int) bool { return samples[i] < samples[j] })

	n := len(samples)
	var sum time.Duration
	for _, d := range samples {
		sum += d
	}
	rank := func(q float64) time.Duration {
		return samples[int(math.Ceil(float64(n)*q))-1]
	}
	return Summary{
		N:   n,
		Avg: sum / time.Duration(n),
		P50: samples[n/2],
		P95: rank(0.95),
		P99: rank(0.99),
		Max: samples[n-1],
	}
}

func (s Summary) String() string {
	r := func(d time.Duration) time.Duration { return d.Round(time.Microsecond) }
	return fmt.Sprintf("avg: %v  p50: %v  p95: %v  p99: %v  max: %v  (n=%d)",
		r(s.Avg), r(s.P50), r(s.P95), r(s.P99), r(s.Max), s.N)
}
