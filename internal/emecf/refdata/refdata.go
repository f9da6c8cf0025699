package refdata

import (
	"context"
	"encoding/json"
	"time"

	"github.com/smallbiznis/sygmef/internal/cache"
	"github.com/smallbiznis/sygmef/internal/config"
	"github.com/smallbiznis/sygmef/internal/invoice/domain"
	obslogger "github.com/smallbiznis/sygmef/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/sygmef/internal/observability/metrics"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

type Params struct {
	fx.In

	Gateway domain.Gateway
	Store   cache.Store
	Holder  *config.EMECFHolder
	Log     *zap.Logger
	Metrics *obsmetrics.Metrics `optional:"true"`
}

// Service serves e-MECeF reference data through a lazily filled cache.
// Entries are only invalidated by expiry.
type Service struct {
	gateway domain.Gateway
	store   cache.Store
	holder  *config.EMECFHolder
	log     *zap.Logger
	metrics *obsmetrics.Metrics
}

func New(p Params) *Service {
	return &Service{
		gateway: p.Gateway,
		store:   p.Store,
		holder:  p.Holder,
		log:     p.Log.Named("emecf.refdata"),
		metrics: p.Metrics,
	}
}

// Info returns the document for kind, from cache when fresh.
func (s *Service) Info(ctx context.Context, kind domain.InfoKind) (domain.ReferenceData, error) {
	parsed, ok := domain.ParseInfoKind(string(kind))
	if !ok {
		return nil, domain.ErrInvalidInfoKind
	}
	key := cache.Key("refdata", string(parsed))
	log := obslogger.WithContext(ctx, s.log).With(zap.String("kind", string(parsed)))

	raw, hit, err := s.store.Get(ctx, key)
	if err != nil {
		log.Warn("reference cache read failed", zap.String("store", s.store.Name()), zap.Error(err))
	}
	if hit {
		var data domain.ReferenceData
		if err := json.Unmarshal(raw, &data); err == nil {
			s.metrics.RecordReferenceLookup(ctx, string(parsed), true)
			return data, nil
		}
		log.Warn("reference cache entry unreadable")
	}

	data, err := s.gateway.QueryInfo(ctx, parsed)
	if err != nil {
		return nil, err
	}
	s.metrics.RecordReferenceLookup(ctx, string(parsed), false)

	encoded, err := json.Marshal(data)
	if err != nil {
		log.Warn("reference data not cacheable", zap.Error(err))
		return data, nil
	}
	if err := s.store.Set(ctx, key, encoded, TTL(s.holder.Get().Cache, parsed)); err != nil {
		log.Warn("reference cache write failed", zap.String("store", s.store.Name()), zap.Error(err))
	}
	return data, nil
}

// Taxpayer returns the identity bound to the configured token. It is not
// cached.
func (s *Service) Taxpayer(ctx context.Context) (domain.ReferenceData, error) {
	return s.gateway.TaxpayerInfo(ctx)
}

// TTL is the cache lifetime configured for kind.
func TTL(cfg config.EMECFCache, kind domain.InfoKind) time.Duration {
	seconds := cfg.EmcfInfoTTL
	switch kind {
	case domain.InfoTaxGroups:
		seconds = cfg.TaxGroupsTTL
	case domain.InfoInvoiceTypes:
		seconds = cfg.InvoiceTypesTTL
	case domain.InfoPaymentTypes:
		seconds = cfg.PaymentTypesTTL
	}
	return time.Duration(seconds) * time.Second
}
