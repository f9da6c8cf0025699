package invoice

import (
	"github.com/smallbiznis/sygmef/internal/config"
	"github.com/smallbiznis/sygmef/internal/invoice/domain"
	"github.com/smallbiznis/sygmef/internal/invoice/render"
	"github.com/smallbiznis/sygmef/internal/invoice/repository"
	"github.com/smallbiznis/sygmef/internal/invoice/service"
	"github.com/smallbiznis/sygmef/internal/invoice/validator"
	"go.uber.org/fx"
)

var Module = fx.Module("invoice.service",
	fx.Provide(repository.Provide),
	fx.Provide(ProvideValidator),
	fx.Provide(render.NewRenderer),
	fx.Provide(service.New),
)

// ProvideValidator follows credit_note_sign and sanitize_text through
// settings reloads.
func ProvideValidator(holder *config.EMECFHolder) domain.Validator {
	return validator.NewFromHolder(holder)
}
