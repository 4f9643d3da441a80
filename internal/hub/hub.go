// Package hub is the single authority over matchmaking state. Every event
// from every connection is applied under one lock, so the registry, the
// waiting pool and the rooms always change together. Outbound messages go
// through a non-blocking Notifier and slow work such as filing a report runs
// after the lock is released.
package hub

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/whisper/roulette/internal/chat"
	"github.com/whisper/roulette/internal/ice"
	"github.com/whisper/roulette/internal/matching"
	"github.com/whisper/roulette/internal/metrics"
	"github.com/whisper/roulette/internal/moderation"
	"github.com/whisper/roulette/internal/protocol"
	"github.com/whisper/roulette/internal/session"
)

// DefaultReportTimeout bounds a single moderation call.
const DefaultReportTimeout = 10 * time.Second

// Notifier delivers a server message to one connection. Implementations must
// not block and must be safe for concurrent use; the hub calls Notify while
// holding its lock.
type Notifier interface {
	Notify(connID, msgType string, payload interface{})
}

// Observer receives every connection state change. It is called under the
// hub lock and must not block.
type Observer interface {
	Observe(session.Change)
}

// Config holds tunables for the hub.
type Config struct {
	ChatBufferSize int
	Policy         matching.Policy
	ReportTimeout  time.Duration
}

// Stats is a point-in-time view of the hub.
type Stats struct {
	Connections int `json:"connections"`
	Searching   int `json:"searching"`
	Rooms       int `json:"rooms"`
}

// Hub owns the registry, the waiting pool and the rooms.
type Hub struct {
	mu       sync.Mutex
	registry *session.Registry
	pool     *matching.Pool
	matcher  *matching.Matcher
	rooms    *chat.Manager

	// arrivals are connections that entered the pool since the last match
	// call, in arrival order. dirty asks the next tick for a full pass.
	arrivals []string
	dirty    bool

	notifier      Notifier
	moderation    moderation.Service
	ice           ice.Provider
	observer      Observer
	now           func() time.Time
	log           zerolog.Logger
	reportTimeout time.Duration

	tasks sync.WaitGroup
}

// Option configures a Hub.
type Option func(*Hub)

// WithModeration sets the service reports are filed with.
func WithModeration(s moderation.Service) Option { return func(h *Hub) { h.moderation = s } }

// WithICE sets the ICE server provider.
func WithICE(p ice.Provider) Option { return func(h *Hub) { h.ice = p } }

// WithObserver mirrors state changes to o.
func WithObserver(o Observer) Option { return func(h *Hub) { h.observer = o } }

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option { return func(h *Hub) { h.now = now } }

// WithLogger sets the logger.
func WithLogger(l zerolog.Logger) Option { return func(h *Hub) { h.log = l } }

// New creates a hub that sends messages through notifier.
func New(cfg Config, notifier Notifier, opts ...Option) *Hub {
	h := &Hub{
		notifier:      notifier,
		ice:           ice.NewStatic(nil, nil, "", ""),
		now:           time.Now,
		log:           zerolog.Nop(),
		reportTimeout: cfg.ReportTimeout,
	}
	for _, opt := range opts {
		opt(h)
	}
	if h.reportTimeout <= 0 {
		h.reportTimeout = DefaultReportTimeout
	}
	h.log = h.log.With().Str("component", "hub").Logger()

	h.registry = session.NewRegistry(h.now)
	h.pool = matching.NewPool()
	h.rooms = chat.NewManager(cfg.ChatBufferSize, h.now)
	h.matcher = matching.NewMatcher(h.pool, h.lookupCandidate, h.commitMatch,
		matching.WithPolicy(cfg.Policy),
		matching.WithClock(h.now),
		matching.WithLogger(h.log),
	)
	return h
}

// Handle applies ev on behalf of connID. Protocol errors are also sent to
// the connection as an error message.
func (h *Hub) Handle(connID string, ev Event) error {
	var (
		task func()
		err  error
	)

	h.mu.Lock()
	switch e := ev.(type) {
	case Connect:
		err = h.connect(connID)
	case Disconnect:
		h.disconnect(connID)
	case StartSearch:
		err = h.startSearch(connID, e)
	case StopSearch:
		err = h.stopSearch(connID)
	case Skip:
		err = h.skip(connID)
	case StopChat:
		err = h.stopChat(connID)
	case Signal:
		h.relaySignal(connID, e)
	case ChatText:
		err = h.relayChat(connID, e)
	case Report:
		task, err = h.report(connID, e)
	case SettingsUpdated:
		err = h.settings(connID, e)
	default:
		err = fmt.Errorf("hub: unsupported event %T", ev)
	}

	var perr *ProtocolError
	if errors.As(err, &perr) {
		metrics.ProtocolErrors.WithLabelValues(perr.Code).Inc()
		h.notify(connID, protocol.TypeError, protocol.ErrorMsg{Code: perr.Code, Message: perr.Message})
	}
	h.match()
	h.updateGauges()
	h.mu.Unlock()

	if task != nil {
		h.tasks.Add(1)
		go func() {
			defer h.tasks.Done()
			task()
		}()
	}
	return err
}

// Tick repairs inconsistent state and re-evaluates searchers whose filters
// widened since the last tick. After a repair it runs a full pass instead.
// It returns the number of pairs made.
func (h *Hub) Tick() int {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.heal()
	n := h.match()
	if h.dirty {
		h.dirty = false
		n += h.matcher.RunPass()
	} else {
		n += h.matcher.Widen()
	}
	h.updateGauges()
	return n
}

// match offers every new arrival to the pool. Only a connection that just
// entered the pool can form a pair the pool did not already reject.
func (h *Hub) match() int {
	n := 0
	for _, id := range h.arrivals {
		if h.matcher.Offer(id) {
			n++
		}
	}
	h.arrivals = h.arrivals[:0]
	return n
}

// Run calls Tick every interval until ctx is cancelled.
func (h *Hub) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			h.Tick()
		}
	}
}

// Wait blocks until every background report task has finished.
func (h *Hub) Wait() {
	h.tasks.Wait()
}

// Stats returns current counts.
func (h *Hub) Stats() Stats {
	h.mu.Lock()
	defer h.mu.Unlock()
	return Stats{
		Connections: h.registry.Len(),
		Searching:   h.pool.Size(),
		Rooms:       h.rooms.Len(),
	}
}

func (h *Hub) notify(connID, msgType string, payload interface{}) {
	h.notifier.Notify(connID, msgType, payload)
}

func (h *Hub) observe(connID string) {
	if h.observer == nil {
		return
	}
	c, ok := h.registry.Get(connID)
	if !ok {
		h.observer.Observe(session.Change{ConnID: connID, Removed: true})
		return
	}
	h.observer.Observe(session.Change{
		ConnID: connID,
		UserID: c.Profile.UserID,
		State:  c.State,
		RoomID: c.RoomID,
	})
}

func (h *Hub) updateGauges() {
	metrics.PoolSize.Set(float64(h.pool.Size()))
	metrics.ActiveRooms.Set(float64(h.rooms.Len()))
}

func invalidState(msg string) error {
	return &ProtocolError{Code: protocol.CodeInvalidState, Message: msg}
}
