package emecf

import (
	"github.com/smallbiznis/sygmef/internal/clock"
	"github.com/smallbiznis/sygmef/internal/config"
	"github.com/smallbiznis/sygmef/internal/emecf/gateway"
	"github.com/smallbiznis/sygmef/internal/emecf/refdata"
	"github.com/smallbiznis/sygmef/internal/invoice/domain"
	obsmetrics "github.com/smallbiznis/sygmef/internal/observability/metrics"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("emecf",
	fx.Provide(ProvideGateway),
	fx.Provide(refdata.New),
)

type GatewayParams struct {
	fx.In

	Holder  *config.EMECFHolder
	Clock   clock.Clock
	Log     *zap.Logger
	Metrics *obsmetrics.FiscalMetrics `optional:"true"`
}

func ProvideGateway(p GatewayParams) (domain.Gateway, error) {
	return gateway.New(p.Holder,
		gateway.WithLogger(p.Log),
		gateway.WithClock(p.Clock),
		gateway.WithMetrics(p.Metrics),
	)
}
