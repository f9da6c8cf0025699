package service

import (
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/sygmef/internal/clock"
	"github.com/smallbiznis/sygmef/internal/config"
	"github.com/smallbiznis/sygmef/internal/invoice/domain"
	obsmetrics "github.com/smallbiznis/sygmef/internal/observability/metrics"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	outcomePersisted   = "persisted"
	outcomeDegraded    = "degraded"
	outcomeDisabled    = "disabled"
	outcomeRemoteError = "remote_error"
	outcomeRejected    = "rejected"

	defaultStatsMonths      = 6
	defaultStatsRecentLimit = 10
	defaultTaskLimit        = 50
	maxTaskLimit            = 250
)

type Params struct {
	fx.In

	DB        *gorm.DB
	Log       *zap.Logger
	GenID     *snowflake.Node
	Clock     clock.Clock
	Holder    *config.EMECFHolder
	Gateway   domain.Gateway
	Validator domain.Validator
	Repo      domain.Repository

	Metrics *obsmetrics.Metrics       `optional:"true"`
	Fiscal  *obsmetrics.FiscalMetrics `optional:"true"`
}

type Service struct {
	db     *gorm.DB
	log    *zap.Logger
	genID  *snowflake.Node
	clock  clock.Clock
	holder *config.EMECFHolder

	gateway   domain.Gateway
	validator domain.Validator
	repo      domain.Repository

	metrics *obsmetrics.Metrics
	fiscal  *obsmetrics.FiscalMetrics
}

func New(p Params) domain.Service {
	c := p.Clock
	if c == nil {
		c = clock.SystemClock{}
	}
	return &Service{
		db:     p.DB,
		log:    p.Log.Named("invoice.service"),
		genID:  p.GenID,
		clock:  c,
		holder: p.Holder,

		gateway:   p.Gateway,
		validator: p.Validator,
		repo:      p.Repo,

		metrics: p.Metrics,
		fiscal:  p.Fiscal,
	}
}

func (s *Service) saveInvoices() bool {
	return s.holder.Get().SaveInvoices
}

func normalizeUID(uid string) (string, error) {
	uid = strings.TrimSpace(uid)
	if uid == "" {
		return "", domain.ErrInvalidUID
	}
	return uid, nil
}

func nilIfEmpty(value string) *string {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil
	}
	return &value
}
