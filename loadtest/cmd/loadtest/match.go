package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os/signal"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/whisper/roulette/loadtest/client"
	"github.com/whisper/roulette/loadtest/stats"
)

// runMatch implements the matching flow load test. Every client sends
// start-search, and once matched each pair exchanges -messages chat lines
// to measure relay latency. With -skip, the initiator of each room then
// skips, sending both sides back through the pool for a second match.
func runMatch(args []string) {
	fs := flag.NewFlagSet("match", flag.ExitOnError)
	url := fs.String("url", "ws://localhost:8080/ws", "WebSocket server URL")
	pairs := fs.Int("pairs", 500, "Number of user pairs to match")
	rampUp := fs.Duration("ramp", 10*time.Second, "Ramp-up duration for connection creation")
	matchTimeout := fs.Duration("match-timeout", 30*time.Second, "Timeout waiting for match-found")
	interests := fs.String("interests", "", "Comma-separated interest tags (empty = random matching)")
	messages := fs.Int("messages", 5, "Chat messages each initiator sends after matching")
	skip := fs.Bool("skip", false, "Skip once after exchanging messages and wait for a rematch")
	concurrency := fs.Int("concurrency", 50, "Maximum simultaneous connection attempts during ramp-up")
	metricsURL := fs.String("metrics-url", "http://localhost:8080/metrics", "Prometheus metrics endpoint URL")
	scrapeInterval := fs.Duration("scrape-interval", 2*time.Second, "Interval between metrics scrapes")
	fs.Parse(args)

	totalClients := *pairs * 2

	fmt.Printf("Match test: %d pairs (%d clients) to %s (ramp=%s, match-timeout=%s, interests=%q, messages=%d, skip=%t)\n",
		*pairs, totalClients, *url, *rampUp, *matchTimeout, *interests, *messages, *skip)

	var interestTags []string
	for _, tag := range strings.Split(*interests, ",") {
		if tag = strings.TrimSpace(tag); tag != "" {
			interestTags = append(interestTags, tag)
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	collector := stats.NewCollector()
	scraper := stats.NewScraper(*metricsURL, *scrapeInterval)
	collector.SetScraper(scraper)
	scraper.Start(ctx)

	fmt.Println("\n--- Phase 1: Connect all users ---")
	clients, interrupted := rampConnect(ctx, rampConfig{
		url:         *url,
		total:       totalClients,
		duration:    *rampUp,
		concurrency: *concurrency,
	}, collector)
	if interrupted {
		fmt.Println("Interrupted, skipping matching phases.")
		cleanup(clients)
		scraper.Stop()
		collector.Report()
		return
	}

	fmt.Println("\n--- Phase 2: Search and chat ---")

	var matched, rematched, relayed atomic.Int64
	var wg sync.WaitGroup
	start := time.Now()

	for i, c := range clients {
		wg.Add(1)
		sim := &simUser{
			c:         c,
			collector: collector,
			matched:   &matched,
			rematched: &rematched,
			relayed:   &relayed,
			messages:  *messages,
			skip:      *skip,
			timeout:   *matchTimeout,
		}
		profile := client.Profile{
			UserID:    "loadtest-" + strconv.Itoa(i),
			Interests: interestTags,
		}
		go func() {
			defer wg.Done()
			sim.run(ctx, profile)
		}()
	}

	stopProgress := progress(2*time.Second, func(dt float64, last *int) {
		current := int(matched.Load())
		fmt.Printf("  [match] matched: %d/%d  rematched: %d  relayed: %d  errors: %d  rate: %.1f match/s\n",
			current, len(clients), rematched.Load(), relayed.Load(), collector.ErrorCount(),
			float64(current-*last)/dt)
		*last = current
	})

	allDone := make(chan struct{})
	go func() {
		wg.Wait()
		close(allDone)
	}()
	select {
	case <-allDone:
	case <-ctx.Done():
		fmt.Println("\nInterrupted during matching phase.")
	}
	stopProgress()

	elapsed := time.Since(start)

	fmt.Printf("\n--- Match Results ---\n")
	fmt.Printf("Clients matched:   %d / %d\n", matched.Load(), len(clients))
	if *skip {
		fmt.Printf("Clients rematched: %d / %d\n", rematched.Load(), len(clients))
	}
	fmt.Printf("Messages relayed:  %d\n", relayed.Load())
	fmt.Printf("Phase duration:    %s\n", elapsed.Round(time.Millisecond))
	if elapsed.Seconds() > 0 {
		fmt.Printf("Match throughput:  %.1f pairs/s\n", float64(matched.Load())/2/elapsed.Seconds())
	}

	cleanup(clients)
	scraper.Stop()
	collector.Report()
}

// simUser drives one client through search, chat and an optional skip.
type simUser struct {
	c         *client.Client
	collector *stats.Collector
	matched   *atomic.Int64
	rematched *atomic.Int64
	relayed   *atomic.Int64
	messages  int
	skip      bool
	timeout   time.Duration
}

type chatPayload struct {
	Text string `json:"text"`
}

func (u *simUser) run(ctx context.Context, profile client.Profile) {
	matches := make(chan client.Match, 2)
	u.c.On(client.TypeMatchFound, func(raw json.RawMessage) {
		var m client.Match
		if err := json.Unmarshal(raw, &m); err != nil {
			u.collector.AddError()
			return
		}
		select {
		case matches <- m:
		default:
		}
	})

	// Chat lines carry their send time so the receiver can measure relay
	// latency on a single clock.
	u.c.On(client.TypeChatMessage, func(raw json.RawMessage) {
		var msg chatPayload
		if err := json.Unmarshal(raw, &msg); err != nil {
			return
		}
		sent, err := strconv.ParseInt(msg.Text, 10, 64)
		if err != nil {
			return
		}
		u.collector.AddMsgLatency(time.Since(time.Unix(0, sent)))
		u.relayed.Add(1)
	})

	searchStart := time.Now()
	if err := u.c.StartSearch(profile); err != nil {
		u.collector.AddError()
		return
	}

	m, ok := u.await(ctx, matches)
	if !ok {
		return
	}
	u.collector.AddMatchLatency(time.Since(searchStart))
	u.matched.Add(1)

	if m.Role == "initiator" {
		for i := 0; i < u.messages; i++ {
			if err := u.c.Chat(strconv.FormatInt(time.Now().UnixNano(), 10)); err != nil {
				u.collector.AddError()
				return
			}
			time.Sleep(50 * time.Millisecond)
		}
	}

	if !u.skip {
		return
	}

	// Give the partner time to drain before tearing the room down. Both
	// sides end up searching again: the skipper at the tail, the partner at
	// the head.
	time.Sleep(time.Second)
	rematchStart := time.Now()
	if m.Role == "initiator" {
		if err := u.c.Skip(); err != nil {
			u.collector.AddError()
			return
		}
	}
	if _, ok := u.await(ctx, matches); ok {
		u.collector.AddMatchLatency(time.Since(rematchStart))
		u.rematched.Add(1)
	}
}

func (u *simUser) await(ctx context.Context, matches <-chan client.Match) (client.Match, bool) {
	timer := time.NewTimer(u.timeout)
	defer timer.Stop()
	select {
	case m := <-matches:
		return m, true
	case <-timer.C:
		u.collector.AddError()
	case <-ctx.Done():
	}
	return client.Match{}, false
}
