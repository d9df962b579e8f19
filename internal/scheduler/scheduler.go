// Package scheduler holds the periodic accounting jobs. Nothing here
// self-schedules: an external scheduler triggers RunOnce (or individual
// jobs over HTTP) on its own cadence, and every job is safe to run
// concurrently with in-flight checkouts.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/fabworks/cbbstore/internal/clock"
	"github.com/fabworks/cbbstore/internal/config"
	obsmetrics "github.com/fabworks/cbbstore/internal/observability/metrics"
	pooldomain "github.com/fabworks/cbbstore/internal/pool/domain"
	"github.com/fabworks/cbbstore/internal/ratelimit"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var ErrInvalidConfig = errors.New("scheduler dependencies are incomplete")

type Params struct {
	fx.In

	DB         *gorm.DB
	Log        *zap.Logger
	PoolSvc    pooldomain.Service
	PoolRepo   pooldomain.Repository
	Plans      *config.PlanConfigHolder
	Clock      clock.Clock
	Locker     *ratelimit.Locker   `optional:"true"`
	ObsMetrics *obsmetrics.Metrics `optional:"true"`
	Config     Config              `optional:"true"`
}

type Scheduler struct {
	db         *gorm.DB
	log        *zap.Logger
	cfg        Config
	poolSvc    pooldomain.Service
	poolRepo   pooldomain.Repository
	plans      *config.PlanConfigHolder
	clock      clock.Clock
	locker     *ratelimit.Locker
	obsMetrics *obsmetrics.Metrics
}

func New(p Params) (*Scheduler, error) {
	if p.DB == nil || p.Log == nil || p.PoolSvc == nil || p.PoolRepo == nil || p.Plans == nil || p.Clock == nil {
		return nil, ErrInvalidConfig
	}
	return &Scheduler{
		db:         p.DB,
		log:        p.Log.Named("scheduler").With(zap.String("component", "scheduler")),
		cfg:        p.Config.withDefaults(),
		poolSvc:    p.PoolSvc,
		poolRepo:   p.PoolRepo,
		plans:      p.Plans,
		clock:      p.Clock,
		locker:     p.Locker,
		obsMetrics: p.ObsMetrics,
	}, nil
}

func (s *Scheduler) runJob(parent context.Context, name string, fn func(ctx context.Context) error) error {
	start := s.clock.Now()
	ctx, cancel := context.WithTimeout(parent, s.cfg.JobTimeout)
	defer cancel()

	if s.locker != nil {
		token, acquired, err := s.locker.TryLock(ctx, "jobs:lock:"+name, s.cfg.JobTimeout)
		if err != nil {
			s.log.Warn("job lock unavailable, running unguarded", zap.String("job", name), zap.Error(err))
		} else if !acquired {
			s.log.Info("job already running elsewhere, skipping", zap.String("job", name))
			return nil
		} else {
			defer func() {
				if err := s.locker.Release(context.WithoutCancel(ctx), "jobs:lock:"+name, token); err != nil {
					s.log.Warn("job lock release failed", zap.String("job", name), zap.Error(err))
				}
			}()
		}
	}

	log := s.log.With(zap.String("job", name))
	log.Info("job started")
	s.obsMetrics.IncJobRun(name)

	err := fn(ctx)
	s.obsMetrics.ObserveJobDuration(name, time.Since(start))

	if err == nil {
		log.Info("job finished", zap.Duration("elapsed", time.Since(start)))
		return nil
	}

	s.obsMetrics.IncJobError(name)
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		log.Warn("job timed out", zap.Duration("timeout", s.cfg.JobTimeout), zap.Error(err))
		return nil
	}

	log.Error("job failed", zap.Error(err))
	return fmt.Errorf("%s: %w", name, err)
}

// RunOnce executes one pass of every enabled job.
func (s *Scheduler) RunOnce(parent context.Context) error {
	var err error

	if s.cfg.isJobEnabled(JobResetPeriod) {
		err = errors.Join(err, s.runJob(parent, JobResetPeriod, s.ResetPeriodJob))
	}
	if s.cfg.isJobEnabled(JobThresholdCheck) {
		err = errors.Join(err, s.runJob(parent, JobThresholdCheck, s.ThresholdCheckJob))
	}

	return err
}

// RunResetPeriod executes only the monthly reset job, for the external
// monthly trigger.
func (s *Scheduler) RunResetPeriod(parent context.Context) error {
	return s.runJob(parent, JobResetPeriod, s.ResetPeriodJob)
}

// RunThresholdCheck executes only the alerting job, for the external daily
// trigger.
func (s *Scheduler) RunThresholdCheck(parent context.Context) error {
	return s.runJob(parent, JobThresholdCheck, s.ThresholdCheckJob)
}

// Module wires the scheduler.
var Module = fx.Module("scheduler",
	fx.Provide(New),
)
