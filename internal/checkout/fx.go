package checkout

import (
	"github.com/smallbiznis/coursepay/internal/checkout/repository"
	"github.com/smallbiznis/coursepay/internal/checkout/service"
	"github.com/smallbiznis/coursepay/internal/gateway"
	"github.com/smallbiznis/coursepay/internal/qrcode"
	"go.uber.org/fx"
)

var Module = fx.Module("checkout.service",
	fx.Provide(repository.Provide),
	fx.Provide(qrcode.NewRenderer),
	fx.Provide(func(c *gateway.Client) service.Gateway { return c }),
	fx.Provide(service.New),
)
