package stats

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"
)

// Server metrics shown in the report. Labeled series are summed per name.
var scrapedGauges = []struct {
	label, metric string
}{
	{"Connections", "roulette_connections_total"},
	{"Pool Size", "roulette_pool_size"},
	{"Active Rooms", "roulette_active_rooms"},
	{"Matches", "roulette_matches_total"},
	{"Relayed", "roulette_relayed_total"},
	{"Dropped", "roulette_dropped_total"},
	{"Proto Errors", "roulette_protocol_errors_total"},
}

const matchHistogram = "roulette_match_duration_seconds"

type snapshot struct {
	at     time.Time
	values map[string]float64
}

// Scraper polls the server's Prometheus endpoint during a run so the report
// can show how server-side gauges moved.
type Scraper struct {
	url      string
	interval time.Duration
	client   *http.Client

	mu        sync.Mutex
	snapshots []snapshot

	cancel context.CancelFunc
	done   chan struct{}
}

// NewScraper creates a Scraper for metricsURL.
func NewScraper(metricsURL string, interval time.Duration) *Scraper {
	return &Scraper{
		url:      metricsURL,
		interval: interval,
		client:   &http.Client{Timeout: 5 * time.Second},
		done:     make(chan struct{}),
	}
}

// Start takes a snapshot immediately and then one per interval until ctx is
// done or Stop is called, finishing with a last snapshot.
func (s *Scraper) Start(ctx context.Context) {
	ctx, s.cancel = context.WithCancel(ctx)
	s.scrape()

	go func() {
		defer close(s.done)
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				s.scrape()
				return
			case <-ticker.C:
				s.scrape()
			}
		}
	}()
}

// Stop stops polling and waits for the final snapshot.
func (s *Scraper) Stop() {
	if s.cancel != nil {
		s.cancel()
		<-s.done
	}
}

func (s *Scraper) scrape() {
	resp, err := s.client.Get(s.url)
	if err != nil {
		// The server may not be up yet.
		return
	}
	defer resp.Body.Close()

	values, err := parseExposition(resp.Body)
	if err != nil {
		return
	}

	s.mu.Lock()
	s.snapshots = append(s.snapshots, snapshot{at: time.Now(), values: values})
	s.mu.Unlock()
}

// parseExposition reads the Prometheus text format and returns each metric
// name with the sum of its samples across label sets.
func parseExposition(r io.Reader) (map[string]float64, error) {
	values := make(map[string]float64)
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		name, v, ok := parseSample(scanner.Text())
		if ok {
			values[name] += v
		}
	}
	return values, scanner.Err()
}

// parseSample splits `name{labels} value [timestamp]` into name and value.
func parseSample(line string) (string, float64, bool) {
	if line == "" || line[0] == '#' {
		return "", 0, false
	}

	var name, rest string
	if open := strings.IndexByte(line, '{'); open != -1 {
		end := strings.LastIndexByte(line, '}')
		if end < open {
			return "", 0, false
		}
		name, rest = line[:open], line[end+1:]
	} else {
		var found bool
		name, rest, found = strings.Cut(line, " ")
		if !found {
			return "", 0, false
		}
	}

	fields := strings.Fields(rest)
	if name == "" || len(fields) == 0 {
		return "", 0, false
	}
	v, err := strconv.ParseFloat(fields[0], 64)
	if err != nil {
		return "", 0, false
	}
	return name, v, true
}

// Report prints initial, final, delta and peak for each tracked metric and
// the average match duration observed by the server during the run.
func (s *Scraper) Report() {
	s.mu.Lock()
	snaps := append([]snapshot(nil), s.snapshots...)
	s.mu.Unlock()

	if len(snaps) == 0 {
		fmt.Println("\n--- Server Metrics (no data collected) ---")
		return
	}
	first, last := snaps[0], snaps[len(snaps)-1]

	fmt.Println("\n--- Server Metrics (Prometheus) ---")
	fmt.Printf("  Scrape count:  %d snapshots over %s\n\n",
		len(snaps), last.at.Sub(first.at).Round(time.Second))

	fmt.Printf("  %-16s %10s %10s %10s %10s\n", "Metric", "Initial", "Final", "Delta", "Peak")
	for _, g := range scrapedGauges {
		peak := first.values[g.metric]
		for _, snap := range snaps {
			if v := snap.values[g.metric]; v > peak {
				peak = v
			}
		}
		initial, final := first.values[g.metric], last.values[g.metric]
		fmt.Printf("  %-16s %10.0f %10.0f %10.0f %10.0f\n", g.label, initial, final, final-initial, peak)
	}

	count := last.values[matchHistogram+"_count"] - first.values[matchHistogram+"_count"]
	sum := last.values[matchHistogram+"_sum"] - first.values[matchHistogram+"_sum"]
	if count > 0 {
		fmt.Printf("\n  %-16s avg: %.4fs  (%.0f observations)\n", "Match Duration", sum/count, count)
	} else {
		fmt.Printf("\n  %-16s avg: N/A  (no observations)\n", "Match Duration")
	}
}
