package registry

import (
	"github.com/fabworks/cbbstore/internal/registry/repository"
	"github.com/fabworks/cbbstore/internal/registry/service"
	"go.uber.org/fx"
)

var Module = fx.Module("registry.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.NewService),
)
