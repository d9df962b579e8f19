// The scheduler binary runs one pass of every periodic job and exits. The
// hosting cron (or the /v1/jobs endpoints on the main binary) owns the
// cadence; the distributed job lock keeps overlapping triggers harmless.
package main

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/fabworks/cbbstore/internal/clock"
	"github.com/fabworks/cbbstore/internal/config"
	"github.com/fabworks/cbbstore/internal/logger"
	obsmetrics "github.com/fabworks/cbbstore/internal/observability/metrics"
	"github.com/fabworks/cbbstore/internal/pool"
	"github.com/fabworks/cbbstore/internal/providers/redisconn"
	"github.com/fabworks/cbbstore/internal/ratelimit"
	"github.com/fabworks/cbbstore/internal/scheduler"
	"github.com/fabworks/cbbstore/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

func main() {
	app := fx.New(
		config.Module,
		logger.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		clock.Module,
		redisconn.Module,
		obsmetrics.Module,
		ratelimit.Module,

		pool.Module,
		scheduler.Module,

		fx.Invoke(RunJobsOnce),
	)
	app.Run()
}

func RegisterSnowflake() *snowflake.Node {
	node, err := snowflake.NewNode(1)
	if err != nil {
		panic(err)
	}
	return node
}

func RunJobsOnce(lc fx.Lifecycle, sd fx.Shutdowner, s *scheduler.Scheduler, log *zap.Logger) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				if err := s.RunOnce(context.Background()); err != nil {
					log.Error("job pass finished with errors", zap.Error(err))
				}
				_ = sd.Shutdown()
			}()
			return nil
		},
	})
}
