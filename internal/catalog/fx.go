package catalog

import (
	"github.com/smallbiznis/coursepay/internal/catalog/domain"
	"github.com/smallbiznis/coursepay/internal/catalog/repository"
	"github.com/smallbiznis/coursepay/internal/catalog/service"
	"go.uber.org/fx"
)

var Module = fx.Module("catalog.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.New),
	fx.Provide(func(s domain.Service) domain.DurationSource { return s }),
)
