package main

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/whisper/roulette/loadtest/client"
	"github.com/whisper/roulette/loadtest/stats"
)

type rampConfig struct {
	url         string
	total       int
	duration    time.Duration
	concurrency int
}

// rampConnect opens cfg.total connections spread evenly over cfg.duration,
// waiting for session-created on each. It returns the connected clients and
// whether ctx was cancelled before all of them were launched.
func rampConnect(ctx context.Context, cfg rampConfig, collector *stats.Collector) ([]*client.Client, bool) {
	var mu sync.Mutex
	clients := make([]*client.Client, 0, cfg.total)

	interval := cfg.duration / time.Duration(cfg.total)
	if interval <= 0 {
		interval = time.Millisecond
	}

	sem := make(chan struct{}, cfg.concurrency)
	var wg sync.WaitGroup

	stopProgress := progress(2*time.Second, func(dt float64, last *int) {
		current := collector.ConnectionCount()
		fmt.Printf("  [connect] connections: %d/%d  errors: %d  rate: %.1f conn/s\n",
			current, cfg.total, collector.ErrorCount(), float64(current-*last)/dt)
		*last = current
	})

	start := time.Now()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	interrupted := false
	for launched := 0; launched < cfg.total && !interrupted; {
		select {
		case <-ctx.Done():
			fmt.Println("\nInterrupted during connection phase.")
			interrupted = true
		case <-ticker.C:
			launched++
			wg.Add(1)
			sem <- struct{}{}

			go func() {
				defer wg.Done()
				defer func() { <-sem }()

				connCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
				defer cancel()

				c, err := client.New(connCtx, cfg.url)
				if err != nil {
					collector.AddError()
					return
				}
				if err := c.WaitForSession(connCtx); err != nil {
					collector.AddError()
					c.Close()
					return
				}
				collector.AddConnect(c.GetMetrics().ConnectLatency)

				mu.Lock()
				clients = append(clients, c)
				mu.Unlock()
			}()
		}
	}

	wg.Wait()
	stopProgress()

	fmt.Printf("\nConnect phase complete: %d/%d connections in %s (%d errors)\n",
		len(clients), cfg.total, time.Since(start).Round(time.Millisecond), collector.ErrorCount())
	return clients, interrupted
}

// progress calls report every interval with the seconds elapsed since the
// previous call until the returned stop function is called.
func progress(interval time.Duration, report func(dt float64, last *int)) func() {
	stop := make(chan struct{})
	done := make(chan struct{})
	go func() {
		defer close(done)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		last := 0
		lastTime := time.Now()
		for {
			select {
			case <-ticker.C:
				now := time.Now()
				report(now.Sub(lastTime).Seconds(), &last)
				lastTime = now
			case <-stop:
				return
			}
		}
	}()
	return func() {
		close(stop)
		<-done
	}
}

// cleanup closes all client connections.
func cleanup(clients []*client.Client) {
	fmt.Println("\n--- Cleanup ---")
	fmt.Printf("Closing %d connections...\n", len(clients))
	for _, c := range clients {
		c.Close()
	}
	fmt.Println("All connections closed.")
}
