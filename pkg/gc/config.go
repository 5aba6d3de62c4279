package gc

import (
	"errors"
	"fmt"
	"time"

	"github.com/marmos91/blobgc/internal/bytesize"
	"github.com/marmos91/blobgc/pkg/loop"
)

// Default grace periods and tuning.
const (
	DefaultAliasGracePeriod   = 7 * 24 * time.Hour
	DefaultContentGracePeriod = 24 * time.Hour
	DefaultOrphanGracePeriod  = 24 * time.Hour
	DefaultMaxClockSkew       = 5 * time.Minute
	DefaultCompareBufferSize  = bytesize.MiB
	DefaultRunLockKey         = int64(0x626c6f626763) // "blobgc"
)

// Config holds the collector settings. It is built once at start and is
// read-only afterwards.
type Config struct {
	// AliasGracePeriod is how long past expiry (and past creation) an alias
	// must be before it is detached or deleted.
	//
	// Grace periods are pointers so an explicit 0 is kept; nil takes the
	// default.
	AliasGracePeriod *time.Duration `mapstructure:"alias_grace_period" yaml:"alias_grace_period,omitempty" validate:"omitempty,gte=0"`

	// ContentGracePeriod is the minimum age of an unreferenced content row
	// before it and its bytes are deleted.
	ContentGracePeriod *time.Duration `mapstructure:"content_grace_period" yaml:"content_grace_period,omitempty" validate:"omitempty,gte=0"`

	// OrphanGracePeriod is the minimum age of a physical object with no
	// catalog row before the sweep deletes it.
	OrphanGracePeriod *time.Duration `mapstructure:"orphan_grace_period" yaml:"orphan_grace_period,omitempty" validate:"omitempty,gte=0"`

	// MaxClockSkew is the tolerated difference between the host clock and
	// the catalog clock. A negative value disables the check.
	MaxClockSkew time.Duration `mapstructure:"max_clock_skew" yaml:"max_clock_skew"`

	// CompareBufferSize is the read size used when proving duplicates are
	// byte-identical.
	CompareBufferSize bytesize.ByteSize `mapstructure:"compare_buffer_size" yaml:"compare_buffer_size"`

	// ReferenceDenylist names tables whose foreign keys to blob_alias.id
	// must not keep aliases alive (denormalised or statistical copies).
	ReferenceDenylist []string `mapstructure:"reference_denylist" yaml:"reference_denylist"`

	// DryRun makes the sweep report orphans without deleting them.
	DryRun bool `mapstructure:"dry_run" yaml:"dry_run"`

	// Phases restricts a run to a subset of phases. Empty runs all.
	Phases []string `mapstructure:"phases" yaml:"phases,omitempty" validate:"dive,oneof=merge expire prune_aliases prune_contents sweep"`

	// RunLock takes a catalog advisory lock for the duration of the run.
	RunLock    bool  `mapstructure:"run_lock" yaml:"run_lock"`
	RunLockKey int64 `mapstructure:"run_lock_key" yaml:"run_lock_key"`

	// Loop tunes the adaptive chunk loop shared by every phase.
	Loop loop.Policy `mapstructure:"loop" yaml:"loop"`
}

// DefaultConfig returns a Config with every default applied.
func DefaultConfig() Config {
	var c Config
	c.ApplyDefaults()
	c.RunLock = true
	return c
}

// Period returns a pointer to d, for setting grace periods in code.
func Period(d time.Duration) *time.Duration {
	return &d
}

// AliasGrace returns the effective alias grace period.
func (c Config) AliasGrace() time.Duration {
	return periodOr(c.AliasGracePeriod, DefaultAliasGracePeriod)
}

// ContentGrace returns the effective content grace period.
func (c Config) ContentGrace() time.Duration {
	return periodOr(c.ContentGracePeriod, DefaultContentGracePeriod)
}

// OrphanGrace returns the effective orphan grace period.
func (c Config) OrphanGrace() time.Duration {
	return periodOr(c.OrphanGracePeriod, DefaultOrphanGracePeriod)
}

func periodOr(p *time.Duration, def time.Duration) time.Duration {
	if p == nil {
		return def
	}
	return *p
}

// ApplyDefaults fills unset values with defaults. Grace periods are unset
// when nil; the other fields when zero.
func (c *Config) ApplyDefaults() {
	if c.AliasGracePeriod == nil {
		c.AliasGracePeriod = Period(DefaultAliasGracePeriod)
	}
	if c.ContentGracePeriod == nil {
		c.ContentGracePeriod = Period(DefaultContentGracePeriod)
	}
	if c.OrphanGracePeriod == nil {
		c.OrphanGracePeriod = Period(DefaultOrphanGracePeriod)
	}
	if c.MaxClockSkew == 0 {
		c.MaxClockSkew = DefaultMaxClockSkew
	}
	if c.CompareBufferSize == 0 {
		c.CompareBufferSize = DefaultCompareBufferSize
	}
	if c.RunLockKey == 0 {
		c.RunLockKey = DefaultRunLockKey
	}
	c.Loop.ApplyDefaults()
}

// Validate checks the settings that struct tags cannot express.
func (c Config) Validate() error {
	var errs []error
	if c.AliasGrace() < 0 || c.ContentGrace() < 0 || c.OrphanGrace() < 0 {
		errs = append(errs, errors.New("grace periods must not be negative"))
	}
	if c.CompareBufferSize < 4*bytesize.KiB || c.CompareBufferSize > 64*bytesize.MiB {
		errs = append(errs, fmt.Errorf("compare_buffer_size must be between 4KiB and 64MiB, got %s", c.CompareBufferSize))
	}
	if _, err := ParsePhases(c.Phases); err != nil {
		errs = append(errs, err)
	}
	if err := c.Loop.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("loop: %w", err))
	}
	return errors.Join(errs...)
}
