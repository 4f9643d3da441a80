package main

import (
	"context"
	"flag"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/whisper/roulette/loadtest/stats"
)

// runSaturate opens idle connections and holds them for the hold duration,
// reporting how many are still alive. Idle connections only answer the
// server's heartbeat pings, which gobwas/ws handles in the read loop.
func runSaturate(args []string) {
	fs := flag.NewFlagSet("saturate", flag.ExitOnError)
	url := fs.String("url", "ws://localhost:8080/ws", "WebSocket server URL")
	conns := fs.Int("conns", 1000, "Number of connections to open")
	rampUp := fs.Duration("ramp", 10*time.Second, "Ramp-up duration for connection creation")
	hold := fs.Duration("hold", 30*time.Second, "How long to hold connections open")
	concurrency := fs.Int("concurrency", 50, "Maximum simultaneous connection attempts during ramp-up")
	metricsURL := fs.String("metrics-url", "http://localhost:8080/metrics", "Prometheus metrics endpoint URL")
	scrapeInterval := fs.Duration("scrape-interval", 2*time.Second, "Interval between metrics scrapes")
	fs.Parse(args)

	fmt.Printf("Saturate test: %d connections to %s (ramp=%s, hold=%s, concurrency=%d)\n",
		*conns, *url, *rampUp, *hold, *concurrency)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	collector := stats.NewCollector()
	scraper := stats.NewScraper(*metricsURL, *scrapeInterval)
	collector.SetScraper(scraper)
	scraper.Start(ctx)

	fmt.Println("\n--- Phase 1: Connect ---")
	clients, interrupted := rampConnect(ctx, rampConfig{
		url:         *url,
		total:       *conns,
		duration:    *rampUp,
		concurrency: *concurrency,
	}, collector)

	if !interrupted {
		fmt.Printf("\n--- Phase 2: Hold for %s ---\n", *hold)
		timer := time.NewTimer(*hold)
		stopProgress := progress(5*time.Second, func(float64, *int) {
			alive := 0
			for _, c := range clients {
				if c.Alive() {
					alive++
				}
			}
			fmt.Printf("  [hold] alive: %d/%d\n", alive, len(clients))
		})
		select {
		case <-timer.C:
		case <-ctx.Done():
			fmt.Println("\nInterrupted during hold phase.")
		}
		timer.Stop()
		stopProgress()

		dropped := 0
		for _, c := range clients {
			if !c.Alive() {
				dropped++
				collector.AddError()
			}
		}
		fmt.Printf("Connections dropped by server during hold: %d\n", dropped)
	}

	cleanup(clients)
	scraper.Stop()
	collector.Report()
}
