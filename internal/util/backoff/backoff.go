package backoff

import (
	"context"
	"fmt"
	"math/rand/v2"
	"time"
)

type Options struct {
	// Must be positive. Zero means default.
	BaseDelay time.Duration `toml:"base-delay"`
	// Must be positive. Zero means default.
	MaxDelay time.Duration `toml:"max-delay"`
	// Upper bound for the random extra delay added to each wait. Zero means default.
	Jitter time.Duration `toml:"jitter"`
	// Zero means default, negative means unlimited.
	MaxAttempts int `toml:"max-attempts"`
}

func (o Options) Clone() Options {
	return o
}

func (o *Options) Validate() error {
	if o.BaseDelay < 0 {
		return fmt.Errorf("negative base delay")
	}
	if o.MaxDelay < 0 {
		return fmt.Errorf("negative max delay")
	}
	if o.Jitter < 0 {
		return fmt.Errorf("negative jitter")
	}
	return nil
}

func (o *Options) FillDefaults() {
	if o.BaseDelay == 0 {
		o.BaseDelay = time.Second
	}
	if o.MaxDelay == 0 {
		o.MaxDelay = 2 * time.Minute
	}
	if o.Jitter == 0 {
		o.Jitter = time.Second
	}
	if o.MaxAttempts == 0 {
		o.MaxAttempts = 10
	}
}

// Backoff produces waits that double on each attempt, starting from BaseDelay,
// with up to Jitter of random extra delay so concurrent retriers spread out.
type Backoff struct {
	o    Options
	cur  time.Duration
	left int
}

func New(o Options) (*Backoff, error) {
	if err := o.Validate(); err != nil {
		return nil, fmt.Errorf("bad config: %w", err)
	}
	o.FillDefaults()
	b := &Backoff{o: o}
	b.Reset()
	return b, nil
}

func (b *Backoff) Reset() {
	b.cur = b.o.BaseDelay
	b.left = b.o.MaxAttempts
}

// Next returns the duration to wait before the next attempt, or false if the
// attempt budget is exhausted.
func (b *Backoff) Next() (time.Duration, bool) {
	if b.left > 0 {
		b.left--
	}
	if b.left == 0 {
		return 0, false
	}
	wait := b.cur + time.Duration(rand.Int64N(int64(b.o.Jitter)+1))
	b.cur = min(b.o.MaxDelay, b.cur*2)
	return min(b.o.MaxDelay, wait), true
}

// Retry sleeps until the next attempt is due. It wraps err when the attempt
// budget is exhausted or the context is canceled while waiting.
func (b *Backoff) Retry(ctx context.Context, err error) error {
	t, ok := b.Next()
	if !ok {
		return fmt.Errorf("retry limit exceeded: %w", err)
	}
	select {
	case <-time.After(t):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
