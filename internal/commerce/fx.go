package commerce

import (
	"github.com/fabworks/cbbstore/internal/commerce/repository"
	"github.com/fabworks/cbbstore/internal/commerce/service"
	"go.uber.org/fx"
)

var Module = fx.Module("commerce.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.NewService),
)
