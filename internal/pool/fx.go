package pool

import (
	"github.com/fabworks/cbbstore/internal/pool/repository"
	"github.com/fabworks/cbbstore/internal/pool/service"
	"go.uber.org/fx"
)

var Module = fx.Module("pool.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.NewService),
)
