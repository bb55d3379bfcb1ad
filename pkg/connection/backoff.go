package connection

import (
	"context"
	"math/rand/v2"
	"time"
)

// Reconnect spacing defaults. A 10 s window fits four to five scan rounds.
const (
	InitialBackoff    = 500 * time.Millisecond
	MaxBackoff        = 4 * time.Second
	BackoffMultiplier = 2.0

	// JitterFactor is the largest jitter as a fraction of the base delay.
	JitterFactor = 0.25
)

// BackoffConfig spaces the scan rounds of a reconnect.
type BackoffConfig struct {
	Initial    time.Duration `yaml:"initial"`
	Max        time.Duration `yaml:"max"`
	Multiplier float64       `yaml:"multiplier"`
	Jitter     float64       `yaml:"jitter"`
}

// DefaultBackoffConfig returns the default spacing.
func DefaultBackoffConfig() BackoffConfig {
	return BackoffConfig{
		Initial:    InitialBackoff,
		Max:        MaxBackoff,
		Multiplier: BackoffMultiplier,
		Jitter:     JitterFactor,
	}
}

// normalized fills zero or inconsistent fields with defaults.
func (c BackoffConfig) normalized() BackoffConfig {
	if c.Initial <= 0 {
		c.Initial = InitialBackoff
	}
	if c.Max <= 0 {
		c.Max = MaxBackoff
	}
	if c.Max < c.Initial {
		c.Max = c.Initial
	}
	if c.Multiplier <= 1 {
		c.Multiplier = BackoffMultiplier
	}
	if c.Jitter < 0 {
		c.Jitter = 0
	}
	return c
}

// Sequence returns the base delays without jitter, from Initial up to and
// including the first delay that reaches Max.
func (c BackoffConfig) Sequence() []time.Duration {
	c = c.normalized()
	var seq []time.Duration
	for d := c.Initial; ; d = time.Duration(float64(d) * c.Multiplier) {
		if d >= c.Max {
			return append(seq, c.Max)
		}
		seq = append(seq, d)
	}
}

// Backoff spaces the rounds of one reconnect run. It is not shared between
// runs and is not safe for concurrent use.
type Backoff struct {
	cfg      BackoffConfig
	base     time.Duration
	attempts int
}

// NewBackoff starts a run at cfg.Initial.
func NewBackoff(cfg BackoffConfig) *Backoff {
	cfg = cfg.normalized()
	return &Backoff{cfg: cfg, base: cfg.Initial}
}

// Next returns the delay before the next round, jitter included, and
// advances the base delay.
func (b *Backoff) Next() time.Duration {
	d := b.base
	if b.cfg.Jitter > 0 {
		d += time.Duration(float64(d) * b.cfg.Jitter * rand.Float64())
	}
	b.attempts++
	b.base = min(time.Duration(float64(b.base)*b.cfg.Multiplier), b.cfg.Max)
	return d
}

// Base returns the next delay without jitter.
func (b *Backoff) Base() time.Duration {
	return b.base
}

// Attempts returns how many delays were handed out.
func (b *Backoff) Attempts() int {
	return b.attempts
}

// Wait sleeps for the next delay. The sleep never runs past the deadline
// of ctx: when the delay would end after it, Wait returns the context error
// as soon as ctx is done instead of starting a round that cannot finish.
func (b *Backoff) Wait(ctx context.Context) error {
	d := b.Next()
	if deadline, ok := ctx.Deadline(); ok && time.Until(deadline) < d {
		<-ctx.Done()
		return ctx.Err()
	}

	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
