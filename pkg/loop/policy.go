package loop

import (
	"errors"
	"fmt"
	"time"
)

// Policy bounds the adaptive chunk size and the retry behaviour of a Runner.
type Policy struct {
	// MinSize and MaxSize clamp every chunk size.
	MinSize int `mapstructure:"min_size" yaml:"min_size" validate:"gte=1"`
	MaxSize int `mapstructure:"max_size" yaml:"max_size" validate:"gtefield=MinSize"`

	// InitialSize is the size of the first chunk.
	InitialSize int `mapstructure:"initial_size" yaml:"initial_size" validate:"gte=1"`

	// A chunk slower than Ceiling halves the next size; one faster than
	// Floor grows it by half.
	Floor   time.Duration `mapstructure:"floor" yaml:"floor" validate:"gt=0"`
	Ceiling time.Duration `mapstructure:"ceiling" yaml:"ceiling" validate:"gtfield=Floor"`

	// MaxRetries is how many times a chunk failing with a transient error is
	// re-run before the error escalates.
	MaxRetries int `mapstructure:"max_retries" yaml:"max_retries" validate:"gte=0"`

	// RetryBackoff is the first retry delay; it doubles up to MaxRetryBackoff.
	RetryBackoff    time.Duration `mapstructure:"retry_backoff" yaml:"retry_backoff" validate:"gte=0"`
	MaxRetryBackoff time.Duration `mapstructure:"max_retry_backoff" yaml:"max_retry_backoff" validate:"gte=0"`

	// Cooldown is an optional pause between chunks to let replicas catch up.
	Cooldown time.Duration `mapstructure:"cooldown" yaml:"cooldown" validate:"gte=0"`
}

// DefaultPolicy returns the tuning used when nothing is configured.
func DefaultPolicy() Policy {
	return Policy{
		MinSize:         1,
		MaxSize:         100_000,
		InitialSize:     1_000,
		Floor:           1 * time.Second,
		Ceiling:         4 * time.Second,
		MaxRetries:      3,
		RetryBackoff:    500 * time.Millisecond,
		MaxRetryBackoff: 10 * time.Second,
	}
}

// ApplyDefaults fills zero fields from DefaultPolicy.
func (p *Policy) ApplyDefaults() {
	d := DefaultPolicy()
	if p.MinSize <= 0 {
		p.MinSize = d.MinSize
	}
	if p.MaxSize <= 0 {
		p.MaxSize = d.MaxSize
	}
	if p.InitialSize <= 0 {
		p.InitialSize = d.InitialSize
	}
	if p.Floor <= 0 {
		p.Floor = d.Floor
	}
	if p.Ceiling <= 0 {
		p.Ceiling = d.Ceiling
	}
	if p.RetryBackoff <= 0 {
		p.RetryBackoff = d.RetryBackoff
	}
	if p.MaxRetryBackoff <= 0 {
		p.MaxRetryBackoff = d.MaxRetryBackoff
	}
}

// Validate reports an inconsistent policy.
func (p Policy) Validate() error {
	var errs []error
	if p.MinSize < 1 {
		errs = append(errs, fmt.Errorf("min_size must be >= 1, got %d", p.MinSize))
	}
	if p.MaxSize < p.MinSize {
		errs = append(errs, fmt.Errorf("max_size (%d) must be >= min_size (%d)", p.MaxSize, p.MinSize))
	}
	if p.Floor <= 0 || p.Ceiling <= p.Floor {
		errs = append(errs, fmt.Errorf("need 0 < floor (%s) < ceiling (%s)", p.Floor, p.Ceiling))
	}
	if p.MaxRetries < 0 {
		errs = append(errs, fmt.Errorf("max_retries must be >= 0, got %d", p.MaxRetries))
	}
	return errors.Join(errs...)
}

// clamp bounds n to [MinSize, MaxSize].
func (p Policy) clamp(n int) int {
	if n < p.MinSize {
		return p.MinSize
	}
	if n > p.MaxSize {
		return p.MaxSize
	}
	return n
}

// NextSize computes the size of the chunk following one of size prev that
// took elapsed. It has no side effects.
func NextSize(prev int, elapsed time.Duration, p Policy) int {
	switch {
	case elapsed > p.Ceiling:
		return p.clamp(prev / 2)
	case elapsed < p.Floor:
		grown := prev + prev/2
		if grown == prev {
			grown++
		}
		return p.clamp(grown)
	default:
		return p.clamp(prev)
	}
}

// backoff returns the delay before retry attempt n (1-based).
func (p Policy) backoff(attempt int) time.Duration {
	d := p.RetryBackoff
	for i := 1; i < attempt; i++ {
		d *= 2
		if p.MaxRetryBackoff > 0 && d >= p.MaxRetryBackoff {
			return p.MaxRetryBackoff
		}
	}
	return d
}
