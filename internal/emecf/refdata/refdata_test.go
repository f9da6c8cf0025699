package refdata

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/smallbiznis/sygmef/internal/cache"
	"github.com/smallbiznis/sygmef/internal/config"
	"github.com/smallbiznis/sygmef/internal/invoice/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type gatewayMock struct {
	mock.Mock
}

func (m *gatewayMock) Submit(ctx context.Context, inv domain.NormalizedInvoice) (domain.RemoteInvoice, error) {
	args := m.Called(ctx, inv)
	return args.Get(0).(domain.RemoteInvoice), args.Error(1)
}

func (m *gatewayMock) Finalize(ctx context.Context, uid string, action domain.FinalizeAction) (domain.RemoteFinalization, error) {
	args := m.Called(ctx, uid, action)
	return args.Get(0).(domain.RemoteFinalization), args.Error(1)
}

func (m *gatewayMock) QueryPending(ctx context.Context, uid string) (domain.RemoteInvoiceDetails, error) {
	args := m.Called(ctx, uid)
	details, _ := args.Get(0).(domain.RemoteInvoiceDetails)
	return details, args.Error(1)
}

func (m *gatewayMock) QueryInfo(ctx context.Context, kind domain.InfoKind) (domain.ReferenceData, error) {
	args := m.Called(ctx, kind)
	data, _ := args.Get(0).(domain.ReferenceData)
	return data, args.Error(1)
}

func (m *gatewayMock) TaxpayerInfo(ctx context.Context) (domain.ReferenceData, error) {
	args := m.Called(ctx)
	data, _ := args.Get(0).(domain.ReferenceData)
	return data, args.Error(1)
}

func newService(t *testing.T, gw domain.Gateway, cfg config.EMECF) *Service {
	return New(Params{
		Gateway: gw,
		Store:   cache.NewMemoryStore(),
		Holder:  config.NewStaticEMECFHolder(cfg),
		Log:     zaptest.NewLogger(t),
	})
}

func TestInfoIsCachedPerKind(t *testing.T) {
	gw := &gatewayMock{}
	gw.On("QueryInfo", mock.Anything, domain.InfoTaxGroups).
		Return(domain.ReferenceData{"items": []any{"A", "B"}}, nil).Once()
	gw.On("QueryInfo", mock.Anything, domain.InfoPaymentTypes).
		Return(domain.ReferenceData{"items": []any{"ESPECES"}}, nil).Once()

	svc := newService(t, gw, config.DefaultEMECF())
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		data, err := svc.Info(ctx, domain.InfoTaxGroups)
		require.NoError(t, err)
		assert.Len(t, data["items"], 2)
	}
	_, err := svc.Info(ctx, domain.InfoKind("payment-types"))
	require.NoError(t, err)

	gw.AssertExpectations(t)
}

func TestInfoRefetchesAfterExpiry(t *testing.T) {
	gw := &gatewayMock{}
	gw.On("QueryInfo", mock.Anything, domain.InfoStatus).
		Return(domain.ReferenceData{"status": true}, nil).Twice()

	svc := newService(t, gw, config.DefaultEMECF())
	svc.store = expiringStore{Store: cache.NewMemoryStore()}

	_, err := svc.Info(context.Background(), domain.InfoStatus)
	require.NoError(t, err)
	_, err = svc.Info(context.Background(), domain.InfoStatus)
	require.NoError(t, err)
	gw.AssertExpectations(t)
}

// expiringStore drops every write, as if each entry expired immediately.
type expiringStore struct {
	cache.Store
}

func (expiringStore) Set(context.Context, string, []byte, time.Duration) error { return nil }

func TestInfoErrorsAreNotCached(t *testing.T) {
	gw := &gatewayMock{}
	gw.On("QueryInfo", mock.Anything, domain.InfoInvoiceTypes).
		Return(nil, &domain.RemoteError{Kind: domain.RemoteTransport}).Once()
	gw.On("QueryInfo", mock.Anything, domain.InfoInvoiceTypes).
		Return(domain.ReferenceData{"items": []any{"FV"}}, nil).Once()

	svc := newService(t, gw, config.DefaultEMECF())
	_, err := svc.Info(context.Background(), domain.InfoInvoiceTypes)
	assert.ErrorIs(t, err, domain.ErrTransport)

	data, err := svc.Info(context.Background(), domain.InfoInvoiceTypes)
	require.NoError(t, err)
	assert.NotNil(t, data["items"])
	gw.AssertExpectations(t)
}

func TestInfoRejectsUnknownKind(t *testing.T) {
	svc := newService(t, &gatewayMock{}, config.DefaultEMECF())
	_, err := svc.Info(context.Background(), domain.InfoKind("rates"))
	assert.True(t, errors.Is(err, domain.ErrInvalidInfoKind))
}

func TestTTL(t *testing.T) {
	cfg := config.DefaultEMECF().Cache
	assert.Equal(t, time.Hour, TTL(cfg, domain.InfoTaxGroups))
	assert.Equal(t, time.Hour, TTL(cfg, domain.InfoInvoiceTypes))
	assert.Equal(t, time.Hour, TTL(cfg, domain.InfoPaymentTypes))
	assert.Equal(t, 5*time.Minute, TTL(cfg, domain.InfoStatus))
}
