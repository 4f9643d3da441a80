// Package gateway turns decoded client messages into hub events. Checks that
// need I/O (rate limits, stored profiles, bans) run here, before the event
// reaches the hub, so the hub lock is never held across a network call.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/whisper/roulette/internal/ban"
	"github.com/whisper/roulette/internal/hub"
	"github.com/whisper/roulette/internal/metrics"
	"github.com/whisper/roulette/internal/moderation"
	"github.com/whisper/roulette/internal/profile"
	"github.com/whisper/roulette/internal/protocol"
	"github.com/whisper/roulette/internal/ratelimit"
	"github.com/whisper/roulette/internal/ws"
)

// DefaultLookupTimeout bounds the checks made before a search starts.
const DefaultLookupTimeout = 3 * time.Second

// Hub applies events.
type Hub interface {
	Handle(connID string, ev hub.Event) error
}

// Notifier sends gateway rejections to the client.
type Notifier interface {
	Notify(connID, msgType string, payload interface{})
}

// Limiter is a shared rate limiter.
type Limiter interface {
	Allow(ctx context.Context, identifier string, rule ratelimit.Rule) (bool, error)
}

// BanChecker reports active bans.
type BanChecker interface {
	IsBanned(ctx context.Context, userID string) (ban.Status, error)
}

// Gateway routes client messages to the hub.
type Gateway struct {
	hub      Hub
	notifier Notifier
	limiter  Limiter
	bans     BanChecker
	profiles profile.Store
	flood    *ratelimit.FloodLimiter
	timeout  time.Duration
	now      func() time.Time
	log      zerolog.Logger

	users sync.Map // connID -> userID of the last accepted search
}

// Option configures a Gateway.
type Option func(*Gateway)

// WithLimiter enables search and report rate limits.
func WithLimiter(l Limiter) Option { return func(g *Gateway) { g.limiter = l } }

// WithBans enables the ban check at search start.
func WithBans(b BanChecker) Option { return func(g *Gateway) { g.bans = b } }

// WithProfiles makes stored identities authoritative.
func WithProfiles(s profile.Store) Option { return func(g *Gateway) { g.profiles = s } }

// WithFlood throttles relayed signals and chat per connection.
func WithFlood(f *ratelimit.FloodLimiter) Option { return func(g *Gateway) { g.flood = f } }

// WithLookupTimeout bounds the pre-search checks.
func WithLookupTimeout(d time.Duration) Option { return func(g *Gateway) { g.timeout = d } }

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option { return func(g *Gateway) { g.now = now } }

// WithLogger sets the logger.
func WithLogger(l zerolog.Logger) Option { return func(g *Gateway) { g.log = l } }

// New creates a Gateway in front of h.
func New(h Hub, n Notifier, opts ...Option) *Gateway {
	g := &Gateway{
		hub:      h,
		notifier: n,
		timeout:  DefaultLookupTimeout,
		now:      time.Now,
		log:      zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(g)
	}
	g.log = g.log.With().Str("component", "gateway").Logger()
	return g
}

// Register installs a handler for every client message type on d.
func (g *Gateway) Register(d *ws.MessageDispatcher) {
	for _, t := range []string{
		protocol.TypeStartSearch,
		protocol.TypeStopSearch,
		protocol.TypeSkipChat,
		protocol.TypeStopChat,
		protocol.TypeSignal,
		protocol.TypeChatMessage,
		protocol.TypeReportPeer,
		protocol.TypeSettingsUpdated,
	} {
		d.Register(t, func(c *ws.Connection, msg interface{}) {
			g.HandleMessage(c.ID, msg)
		})
	}
}

// Connect announces a new connection to the hub.
func (g *Gateway) Connect(c *ws.Connection) {
	g.dispatch(c.ID, hub.Connect{})
}

// Disconnect tells the hub a connection is gone and drops its local state.
func (g *Gateway) Disconnect(connID string) {
	g.users.Delete(connID)
	if g.flood != nil {
		g.flood.Forget(connID)
	}
	g.dispatch(connID, hub.Disconnect{})
}

// HandleMessage routes one decoded client message.
func (g *Gateway) HandleMessage(connID string, msg interface{}) {
	switch m := msg.(type) {
	case protocol.StartSearchMsg:
		g.startSearch(connID, m)
	case protocol.StopSearchMsg:
		g.dispatch(connID, hub.StopSearch{})
	case protocol.SkipChatMsg:
		g.dispatch(connID, hub.Skip{})
	case protocol.StopChatMsg:
		g.dispatch(connID, hub.StopChat{})
	case protocol.SignalMsg:
		if !g.allowRelay(connID) {
			return
		}
		g.dispatch(connID, hub.Signal{Target: m.TargetRoomPeer, Kind: m.Kind, Payload: m.Payload})
	case protocol.ChatMessageMsg:
		if !g.allowRelay(connID) {
			g.reject(connID, protocol.CodeRateLimited, "sending too fast")
			return
		}
		g.dispatch(connID, hub.ChatText{Text: m.Text})
	case protocol.ReportPeerMsg:
		g.reportPeer(connID, m)
	case protocol.SettingsUpdatedMsg:
		g.dispatch(connID, hub.SettingsUpdated{Preferences: m.Settings.Preferences()})
	default:
		g.log.Error().Str("conn", connID).Str("msg", fmt.Sprintf("%T", msg)).Msg("no route for message")
		g.reject(connID, protocol.CodeUnsupportedType, "unsupported message type")
	}
}

func (g *Gateway) startSearch(connID string, m protocol.StartSearchMsg) {
	p, err := m.Profile.Snapshot()
	if err != nil {
		g.reject(connID, protocol.CodeInvalidProfile, err.Error())
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), g.timeout)
	defer cancel()

	if !g.allow(ctx, p.UserID, ratelimit.RuleSearch) {
		g.reject(connID, protocol.CodeRateLimited, "too many searches, slow down")
		return
	}

	if g.profiles != nil {
		stored, err := g.profiles.GetProfile(ctx, p.UserID)
		switch {
		case errors.Is(err, profile.ErrNotFound):
			g.reject(connID, protocol.CodeUnknownUser, "unknown user")
			return
		case err != nil:
			g.log.Warn().Err(err).Str("user", p.UserID).Msg("profile lookup failed, using client profile")
		default:
			p = profile.Merge(stored, p)
		}
	}

	now := g.now()
	if p.Banned(now) {
		g.reject(connID, protocol.CodeBanned,
			fmt.Sprintf("banned for another %s", p.BannedUntil.Sub(now).Round(time.Second)))
		return
	}
	if g.bans != nil {
		st, err := g.bans.IsBanned(ctx, p.UserID)
		if err != nil {
			g.log.Warn().Err(err).Str("user", p.UserID).Msg("ban check failed, allowing search")
		} else if st.Banned {
			g.reject(connID, protocol.CodeBanned,
				fmt.Sprintf("banned for another %s", st.Remaining.Round(time.Second)))
			return
		}
	}

	g.users.Store(connID, p.UserID)
	g.dispatch(connID, hub.StartSearch{Profile: p})
}

func (g *Gateway) reportPeer(connID string, m protocol.ReportPeerMsg) {
	evidence, err := m.Evidence()
	if err != nil {
		g.reject(connID, protocol.CodeInvalidMessage, err.Error())
		return
	}

	key := connID
	if user, ok := g.users.Load(connID); ok {
		key = user.(string)
	}
	ctx, cancel := context.WithTimeout(context.Background(), g.timeout)
	allowed := g.allow(ctx, key, ratelimit.RuleReport)
	cancel()
	if !allowed {
		g.reject(connID, protocol.CodeRateLimited, "too many reports, slow down")
		return
	}

	var log []moderation.LogEntry
	if m.ChatLog != nil {
		log = make([]moderation.LogEntry, len(m.ChatLog))
		for i, e := range m.ChatLog {
			log[i] = moderation.LogEntry{SenderID: e.SenderID, Text: e.Text, Ts: e.Ts}
		}
	}
	g.dispatch(connID, hub.Report{Evidence: evidence, ChatLog: log})
}

func (g *Gateway) allow(ctx context.Context, key string, rule ratelimit.Rule) bool {
	if g.limiter == nil {
		return true
	}
	ok, err := g.limiter.Allow(ctx, key, rule)
	if err != nil {
		g.log.Warn().Err(err).Str("rule", rule.Key).Msg("rate limit check failed")
	}
	return ok
}

func (g *Gateway) allowRelay(connID string) bool {
	if g.flood == nil || g.flood.Allow(connID) {
		return true
	}
	metrics.DroppedTotal.WithLabelValues("flood").Inc()
	return false
}

func (g *Gateway) dispatch(connID string, ev hub.Event) {
	err := g.hub.Handle(connID, ev)
	if err == nil {
		return
	}
	var perr *hub.ProtocolError
	switch {
	case errors.As(err, &perr):
		// Already reported to the client by the hub.
		g.log.Warn().Str("conn", connID).Str("code", perr.Code).Msg(perr.Message)
	case errors.Is(err, hub.ErrUnknownConnection):
		g.log.Debug().Str("conn", connID).Str("event", fmt.Sprintf("%T", ev)).Msg("event for unknown connection")
	default:
		g.log.Error().Err(err).Str("conn", connID).Msg("event failed")
		g.reject(connID, protocol.CodeInternal, "internal error")
	}
}

func (g *Gateway) reject(connID, code, message string) {
	metrics.ProtocolErrors.WithLabelValues(code).Inc()
	g.log.Warn().Str("conn", connID).Str("code", code).Msg(message)
	g.notifier.Notify(connID, protocol.TypeError, protocol.ErrorMsg{Code: code, Message: message})
}
