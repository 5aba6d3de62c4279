package gc

import (
	"context"
	"fmt"

	"github.com/marmos91/blobgc/internal/logger"
	"github.com/marmos91/blobgc/pkg/catalog"
	"github.com/marmos91/blobgc/pkg/metrics"
)

// expire detaches aliases that expired more than the alias grace period
// ago by nulling their content_id. Bytes and content rows are untouched.
func (p *phaseRun) expire(ctx context.Context) error {
	var expired int64
	task, err := p.aliasWindows(ctx, func(ctx context.Context, w catalog.IDRange) error {
		n, err := p.catalog.ExpireAliases(ctx, w, p.aliasCutoff)
		if err != nil {
			return fmt.Errorf("expire aliases: %w", err)
		}
		expired += n
		return nil
	})
	if err != nil || task == nil {
		return err
	}

	err = p.drive(ctx, "expire", task)
	p.stats.Expire.AliasesExpired += expired
	metrics.RecordAffected(p.metrics, string(PhaseExpire), "aliases_expired", int(expired))
	logger.InfoCtx(ctx, "GC: expired aliases", logger.KeyCount, expired, "cutoff", p.aliasCutoff)
	return err
}
