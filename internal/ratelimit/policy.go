package ratelimit

import (
	"sync"
	"time"
)

// Config holds the per-minute caps and the minimum spacing between writes.
type Config struct {
	ReadPerMinute    int           `mapstructure:"read_per_minute" json:"read_per_minute"`
	WritePerMinute   int           `mapstructure:"write_per_minute" json:"write_per_minute"`
	MinWriteInterval time.Duration `mapstructure:"min_write_interval" json:"min_write_interval"`
}

// Policy composes independent read and write windows with a minimum interval
// between accepted writes.
type Policy struct {
	reads            *Window
	writes           *Window
	minWriteInterval time.Duration
	clock            func() time.Time

	mu          sync.Mutex
	lastWriteAt time.Time
}

// Snapshot is a read-only view of policy occupancy.
type Snapshot struct {
	ReadInWindow     int        `json:"read_in_window"`
	WriteInWindow    int        `json:"write_in_window"`
	ReadLimit        int        `json:"read_limit"`
	WriteLimit       int        `json:"write_limit"`
	LastWriteAt      *time.Time `json:"last_write_at"`
	MinWriteInterval string     `json:"min_write_interval"`
}

// NewPolicy builds a policy from cfg using one-minute windows.
func NewPolicy(cfg Config) *Policy {
	return &Policy{
		reads:            NewWindow(cfg.ReadPerMinute, DefaultWindow),
		writes:           NewWindow(cfg.WritePerMinute, DefaultWindow),
		minWriteInterval: cfg.MinWriteInterval,
		clock:            func() time.Time { return time.Now().UTC() },
	}
}

// WithClock overrides the wall clock used by the Now helpers.
func (p *Policy) WithClock(clock func() time.Time) *Policy {
	if clock != nil {
		p.clock = clock
	}
	return p
}

// CheckRead consumes a read slot at now.
func (p *Policy) CheckRead(now time.Time) Result {
	return p.reads.Consume(now)
}

// CheckWrite consumes a write slot at now. The minimum interval is checked first
// and short-circuits without touching the write window. lastWriteAt only advances
// when both gates accept.
func (p *Policy) CheckWrite(now time.Time) Result {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.lastWriteAt.IsZero() && p.minWriteInterval > 0 {
		elapsed := now.Sub(p.lastWriteAt)
		if elapsed < p.minWriteInterval {
			return Result{Allowed: false, RetryAfter: atLeastMillisecond(p.minWriteInterval - elapsed)}
		}
	}

	res := p.writes.Consume(now)
	if !res.Allowed {
		return res
	}

	p.lastWriteAt = now
	return Result{Allowed: true}
}

// CheckReadNow is CheckRead at the policy clock.
func (p *Policy) CheckReadNow() Result {
	return p.CheckRead(p.clock())
}

// CheckWriteNow is CheckWrite at the policy clock.
func (p *Policy) CheckWriteNow() Result {
	return p.CheckWrite(p.clock())
}

// Snapshot reports window occupancy at now. Only pruning mutates state.
func (p *Policy) Snapshot(now time.Time) Snapshot {
	p.mu.Lock()
	var last *time.Time
	if !p.lastWriteAt.IsZero() {
		value := p.lastWriteAt
		last = &value
	}
	p.mu.Unlock()

	return Snapshot{
		ReadInWindow:     p.reads.Count(now),
		WriteInWindow:    p.writes.Count(now),
		ReadLimit:        p.reads.Limit(),
		WriteLimit:       p.writes.Limit(),
		LastWriteAt:      last,
		MinWriteInterval: p.minWriteInterval.String(),
	}
}

// SnapshotNow is Snapshot at the policy clock.
func (p *Policy) SnapshotNow() Snapshot {
	return p.Snapshot(p.clock())
}
