package matching

import (
	"time"

	"github.com/rs/zerolog"

	"github.com/whisper/roulette/internal/metrics"
)

// Lookup resolves a pooled id into a candidate. It returns false when the
// id no longer refers to a searching connection.
type Lookup func(id string) (Candidate, bool)

// Commit pairs two candidates that the matcher removed from the pool.
type Commit func(a, b Candidate)

// Matcher drains the pool into pairs. It holds no lock of its own; the
// caller serializes every call with every other pool mutation.
//
// Two entries that were once incompatible only become compatible when an
// interest or country constraint of one of them lapses. Offer handles an
// entry that just joined, Widen handles entries whose constraints lapsed, and
// RunPass rescans everything.
type Matcher struct {
	pool   *Pool
	lookup Lookup
	commit Commit
	policy Policy
	now    func() time.Time
	log    zerolog.Logger

	swept time.Time // lapses up to here have been offered
}

// Option configures a Matcher.
type Option func(*Matcher)

// WithPolicy sets the widening policy.
func WithPolicy(p Policy) Option { return func(m *Matcher) { m.policy = p } }

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option { return func(m *Matcher) { m.now = now } }

// WithLogger sets the logger used for stale-entry reports.
func WithLogger(l zerolog.Logger) Option { return func(m *Matcher) { m.log = l } }

// NewMatcher creates a matcher over pool.
func NewMatcher(pool *Pool, lookup Lookup, commit Commit, opts ...Option) *Matcher {
	m := &Matcher{
		pool:   pool,
		lookup: lookup,
		commit: commit,
		policy: PolicyStrict,
		now:    time.Now,
		log:    zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// RunPass pairs waiting connections until no compatible pair remains and
// returns the number of pairs committed. Pool order is respected: each entry
// is paired with the earliest compatible entry behind it. Stale entries are
// dropped and logged.
func (m *Matcher) RunPass() int {
	now := m.now()
	m.swept = now
	matched := 0

	// Fast path: the two oldest entries are usually compatible.
	for {
		a, b, ok := m.pool.frontPair()
		if !ok {
			return matched
		}
		ca, okA := m.resolve(a)
		if !okA {
			continue
		}
		cb, okB := m.resolve(b)
		if !okB {
			continue
		}
		if !Compatible(ca, cb, now, m.policy) {
			break
		}
		m.pool.PopFrontPair()
		m.commit(ca, cb)
		matched++
	}

	return matched + m.scan(now)
}

// scan walks the pool in order and pairs each entry with the earliest
// compatible entry behind it.
func (m *Matcher) scan(now time.Time) int {
	ids := m.pool.Snapshot()
	cands := make([]Candidate, 0, len(ids))
	for _, id := range ids {
		if c, ok := m.resolve(id); ok {
			cands = append(cands, c)
		}
	}

	taken := make([]bool, len(cands))
	matched := 0
	for i := range cands {
		if taken[i] {
			continue
		}
		for j := i + 1; j < len(cands); j++ {
			if taken[j] || !Compatible(cands[i], cands[j], now, m.policy) {
				continue
			}
			taken[i], taken[j] = true, true
			m.pool.Remove(cands[i].ID)
			m.pool.Remove(cands[j].ID)
			m.commit(cands[i], cands[j])
			matched++
			break
		}
	}
	return matched
}

// Offer pairs the pooled entry id with the earliest compatible entry in pool
// order. It reports whether a pair was committed; an id that is not pooled
// is ignored.
func (m *Matcher) Offer(id string) bool {
	if !m.pool.Contains(id) {
		return false
	}
	self, ok := m.resolve(id)
	if !ok {
		return false
	}

	now := m.now()
	var (
		partner Candidate
		found   bool
		behind  bool // self precedes partner in the pool
	)
	m.pool.each(func(other string) bool {
		if other == id {
			behind = true
			return true
		}
		c, ok := m.resolve(other)
		if !ok || !Compatible(self, c, now, m.policy) {
			return true
		}
		partner, found = c, true
		return false
	})
	if !found {
		return false
	}

	m.pool.Remove(self.ID)
	m.pool.Remove(partner.ID)
	if behind {
		m.commit(self, partner)
	} else {
		m.commit(partner, self)
	}
	return true
}

// Widen offers every entry whose interest or country constraint lapsed
// since the previous Widen or RunPass, in pool order. It returns the number
// of pairs committed.
func (m *Matcher) Widen() int {
	now := m.now()
	var lapsed []string
	m.pool.each(func(id string) bool {
		if c, ok := m.resolve(id); ok && lapsedBetween(c, m.swept, now) {
			lapsed = append(lapsed, id)
		}
		return true
	})
	m.swept = now

	matched := 0
	for _, id := range lapsed {
		if m.Offer(id) {
			matched++
		}
	}
	return matched
}

// resolve looks id up and evicts it from the pool when it is stale.
func (m *Matcher) resolve(id string) (Candidate, bool) {
	c, ok := m.lookup(id)
	if !ok {
		m.pool.Remove(id)
		metrics.InvariantRepairs.WithLabelValues("stale_pool_entry").Inc()
		m.log.Error().Str("conn_id", id).Msg("dropped stale pool entry")
		return Candidate{}, false
	}
	return c, true
}
