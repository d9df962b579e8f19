package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/fabworks/cbbstore/internal/cache"
	"github.com/fabworks/cbbstore/internal/clock"
	"github.com/fabworks/cbbstore/internal/commerce"
	"github.com/fabworks/cbbstore/internal/config"
	"github.com/fabworks/cbbstore/internal/delivery"
	"github.com/fabworks/cbbstore/internal/logger"
	"github.com/fabworks/cbbstore/internal/migration"
	obsmetrics "github.com/fabworks/cbbstore/internal/observability/metrics"
	"github.com/fabworks/cbbstore/internal/pool"
	"github.com/fabworks/cbbstore/internal/providers/redisconn"
	"github.com/fabworks/cbbstore/internal/providers/storage"
	"github.com/fabworks/cbbstore/internal/ratelimit"
	"github.com/fabworks/cbbstore/internal/registry"
	"github.com/fabworks/cbbstore/internal/scheduler"
	"github.com/fabworks/cbbstore/internal/server"
	"github.com/fabworks/cbbstore/pkg/db"
	"go.uber.org/fx"
)

func main() {
	app := fx.New(
		// Core infrastructure
		config.Module,
		logger.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		clock.Module,
		redisconn.Module,
		obsmetrics.Module,
		cache.Module,
		ratelimit.Module,
		storage.Module,
		migration.Module,

		// Functional domains
		registry.Module,
		pool.Module,
		commerce.Module,
		delivery.Module,
		scheduler.Module,

		server.Module,
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
