package donation

import (
	"github.com/smallbiznis/seva/internal/donation/repository"
	"github.com/smallbiznis/seva/internal/donation/service"
	"github.com/smallbiznis/seva/internal/payment/checkout"
	"go.uber.org/fx"
)

var Module = fx.Module("donation.service",
	fx.Provide(repository.Provide),
	fx.Provide(func(c *checkout.Creator) service.SessionCreator { return c }),
	fx.Provide(service.New),
)
