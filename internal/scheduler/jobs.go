package scheduler

import (
	"context"
	"errors"

	pooldomain "github.com/fabworks/cbbstore/internal/pool/domain"
	"go.uber.org/zap"
)

const (
	JobResetPeriod    = "reset_period"
	JobThresholdCheck = "threshold_check"
)

// ResetPeriodJob re-allocates plan quotas for every pool whose period has
// lapsed. Each pool resets independently; one bad row does not stall the
// batch.
func (s *Scheduler) ResetPeriodJob(ctx context.Context) error {
	now := s.clock.Now()

	due, err := s.poolRepo.FindDueForReset(ctx, s.db, now, s.cfg.BatchSize)
	if err != nil {
		return err
	}

	var errs error
	reset := 0
	for _, pool := range due {
		if ctx.Err() != nil {
			errs = errors.Join(errs, ctx.Err())
			break
		}
		if _, err := s.poolSvc.ResetPeriod(ctx, pool.UserID, pool.PlanName); err != nil {
			s.log.Error("period reset failed",
				zap.String("user_id", pool.UserID),
				zap.String("plan", pool.PlanName),
				zap.Error(err),
			)
			errs = errors.Join(errs, err)
			continue
		}
		reset++
	}

	s.log.Info("period reset pass complete",
		zap.Int("due", len(due)),
		zap.Int("reset", reset),
	)
	return errs
}

// ThresholdCheckJob sweeps all pools and raises alerts for nearly exhausted
// allowances and overage budgets. Alert fanout (email, Slack, webhooks) is
// the notification collaborator's job; this side only emits the signal.
func (s *Scheduler) ThresholdCheckJob(ctx context.Context) error {
	planCfg := s.plans.Get()

	offset := 0
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		pools, err := s.poolRepo.ListAll(ctx, s.db, offset, s.cfg.BatchSize)
		if err != nil {
			return err
		}
		if len(pools) == 0 {
			return nil
		}

		for i := range pools {
			s.checkThresholds(&pools[i], planCfg.IncludedLowFraction, planCfg.OnDemandWarnFraction)
		}

		if len(pools) < s.cfg.BatchSize {
			return nil
		}
		offset += s.cfg.BatchSize
	}
}

func (s *Scheduler) checkThresholds(pool *pooldomain.USDPool, includedLow, onDemandWarn float64) {
	if pool.IncludedTotalCents > 0 {
		remaining := float64(pool.IncludedCents) / float64(pool.IncludedTotalCents)
		if remaining < includedLow {
			s.obsMetrics.IncAllowanceAlert("included_low")
			s.log.Warn("included allowance nearly exhausted",
				zap.String("user_id", pool.UserID),
				zap.String("plan", pool.PlanName),
				zap.Int64("included_cents", pool.IncludedCents),
				zap.Int64("included_total_cents", pool.IncludedTotalCents),
			)
		}
	}

	if pool.OnDemandLimitCents != nil && *pool.OnDemandLimitCents > 0 {
		used := float64(pool.OnDemandCents) / float64(*pool.OnDemandLimitCents)
		if used >= onDemandWarn {
			s.obsMetrics.IncAllowanceAlert("on_demand_high")
			s.log.Warn("on-demand spend approaching cap",
				zap.String("user_id", pool.UserID),
				zap.String("plan", pool.PlanName),
				zap.Int64("on_demand_cents", pool.OnDemandCents),
				zap.Int64("on_demand_limit_cents", *pool.OnDemandLimitCents),
			)
		}
	}
}
