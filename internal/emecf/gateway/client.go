package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/smallbiznis/sygmef/internal/clock"
	"github.com/smallbiznis/sygmef/internal/config"
	"github.com/smallbiznis/sygmef/internal/invoice/domain"
	obslogger "github.com/smallbiznis/sygmef/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/sygmef/internal/observability/metrics"
	"github.com/smallbiznis/sygmef/internal/observability/tracing"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const (
	opSubmit       = "submit"
	opFinalize     = "finalize"
	opQueryPending = "query_pending"
	opQueryInfo    = "query_info"
	opTaxpayerInfo = "taxpayer_info"

	maxResponseBytes = 1 << 20
)

// Client is the e-MECeF HTTP adapter. It is stateless apart from the rate
// limiter; settings are read from the holder on every call so a reloaded
// token or base URL applies immediately.
type Client struct {
	holder  *config.EMECFHolder
	http    *http.Client
	limiter *rate.Limiter
	clock   clock.Clock
	log     *zap.Logger
	metrics *obsmetrics.FiscalMetrics
	tracer  trace.Tracer
}

type Option func(*Client)

// WithTransport replaces the network transport.
func WithTransport(rt http.RoundTripper) Option {
	return func(c *Client) { c.http.Transport = rt }
}

func WithLogger(log *zap.Logger) Option {
	return func(c *Client) {
		if log != nil {
			c.log = log.Named("emecf.gateway")
		}
	}
}

func WithMetrics(m *obsmetrics.FiscalMetrics) Option {
	return func(c *Client) { c.metrics = m }
}

func WithClock(clk clock.Clock) Option {
	return func(c *Client) {
		if clk != nil {
			c.clock = clk
		}
	}
}

func WithLimiter(l *rate.Limiter) Option {
	return func(c *Client) {
		if l != nil {
			c.limiter = l
		}
	}
}

// New builds a Client from the current fiscal settings.
func New(holder *config.EMECFHolder, opts ...Option) (*Client, error) {
	if holder == nil {
		return nil, domain.ErrGatewayNotConfigured
	}
	cfg := holder.Get()

	dialer := &net.Dialer{
		Timeout:   cfg.HTTP.Connect(),
		KeepAlive: 30 * time.Second,
	}
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.DialContext = dialer.DialContext
	transport.TLSHandshakeTimeout = cfg.HTTP.Connect()

	c := &Client{
		holder:  holder,
		http:    &http.Client{Transport: transport},
		limiter: newLimiter(cfg.RateLimit),
		clock:   clock.SystemClock{},
		log:     zap.NewNop(),
		tracer:  otel.Tracer("sygmef/emecf"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

func newLimiter(cfg config.EMECFRateLimit) *rate.Limiter {
	if cfg.RPS <= 0 {
		return rate.NewLimiter(rate.Inf, 0)
	}
	burst := cfg.Burst
	if burst < 1 {
		burst = 1
	}
	return rate.NewLimiter(rate.Limit(cfg.RPS), burst)
}

func (c *Client) Submit(ctx context.Context, invoice domain.NormalizedInvoice) (domain.RemoteInvoice, error) {
	resp, err := c.do(ctx, request{
		operation: opSubmit,
		method:    http.MethodPost,
		path:      "/invoice",
		body:      toInvoicePayload(invoice),
		timeout:   config.EMECFTimeouts.SubmissionTimeout,
		attrs:     []attribute.KeyValue{attribute.String("invoice.kind", string(invoice.Kind))},
	})
	if err != nil {
		return domain.RemoteInvoice{}, err
	}

	var out domain.RemoteInvoice
	if err := json.Unmarshal(resp.body, &out); err != nil {
		return domain.RemoteInvoice{}, malformedResponse(opSubmit, resp.status, err)
	}
	if strings.TrimSpace(out.UID) == "" {
		return domain.RemoteInvoice{}, malformedResponse(opSubmit, resp.status, errors.New("missing uid"))
	}
	out.Raw = resp.body
	return out, nil
}

func (c *Client) Finalize(ctx context.Context, uid string, action domain.FinalizeAction) (domain.RemoteFinalization, error) {
	uid = strings.TrimSpace(uid)
	if uid == "" {
		return domain.RemoteFinalization{}, domain.ErrInvalidUID
	}
	if _, ok := domain.ParseFinalizeAction(string(action)); !ok {
		return domain.RemoteFinalization{}, domain.ErrInvalidAction
	}

	resp, err := c.do(ctx, request{
		operation: opFinalize,
		method:    http.MethodPut,
		path:      "/invoice/" + url.PathEscape(uid) + "/" + string(action),
		timeout:   config.EMECFTimeouts.FinalizationTimeout,
		attrs:     []attribute.KeyValue{attribute.String("invoice.action", string(action))},
	})
	if err != nil {
		return domain.RemoteFinalization{}, err
	}

	var out domain.RemoteFinalization
	if len(bytes.TrimSpace(resp.body)) > 0 {
		if err := json.Unmarshal(resp.body, &out); err != nil {
			return domain.RemoteFinalization{}, malformedResponse(opFinalize, resp.status, err)
		}
		out.Raw = resp.body
	}
	// The decoded answer is kept so the caller can record what was received.
	if action == domain.ActionConfirm && !out.HasSecurityElements() {
		return out, malformedResponse(opFinalize, resp.status, domain.ErrMissingSecurityElements)
	}
	return out, nil
}

func (c *Client) QueryPending(ctx context.Context, uid string) (domain.RemoteInvoiceDetails, error) {
	uid = strings.TrimSpace(uid)
	if uid == "" {
		return nil, domain.ErrInvalidUID
	}
	doc, err := c.document(ctx, request{
		operation: opQueryPending,
		method:    http.MethodGet,
		path:      "/invoice/" + url.PathEscape(uid),
		timeout:   config.EMECFTimeouts.StatusTimeout,
	})
	if err != nil {
		return nil, err
	}
	return domain.RemoteInvoiceDetails(doc), nil
}

func (c *Client) QueryInfo(ctx context.Context, kind domain.InfoKind) (domain.ReferenceData, error) {
	parsed, ok := domain.ParseInfoKind(string(kind))
	if !ok {
		return nil, domain.ErrInvalidInfoKind
	}
	doc, err := c.document(ctx, request{
		operation: opQueryInfo,
		method:    http.MethodGet,
		path:      "/info/" + string(parsed),
		timeout:   config.EMECFTimeouts.InfoTimeout,
		attrs:     []attribute.KeyValue{attribute.String("reference_data.kind", string(parsed))},
	})
	if err != nil {
		return nil, err
	}
	return domain.ReferenceData(doc), nil
}

func (c *Client) TaxpayerInfo(ctx context.Context) (domain.ReferenceData, error) {
	doc, err := c.document(ctx, request{
		operation: opTaxpayerInfo,
		method:    http.MethodGet,
		path:      "/user-info",
		timeout:   config.EMECFTimeouts.InfoTimeout,
	})
	if err != nil {
		return nil, err
	}
	return domain.ReferenceData(doc), nil
}

func (c *Client) document(ctx context.Context, req request) (map[string]any, error) {
	resp, err := c.do(ctx, req)
	if err != nil {
		return nil, err
	}
	if len(bytes.TrimSpace(resp.body)) == 0 {
		return map[string]any{}, nil
	}
	doc, err := decodeDocument(resp.body)
	if err != nil {
		return nil, malformedResponse(req.operation, resp.status, err)
	}
	return doc, nil
}

type request struct {
	operation string
	method    string
	path      string
	body      any
	timeout   func(config.EMECFTimeouts) time.Duration
	attrs     []attribute.KeyValue
}

type response struct {
	status int
	body   []byte
}

// do runs one logical call. Only failures without any HTTP response are
// retried: connect failures for every method, other network failures for
// GET only. An answered request is never sent again.
func (c *Client) do(ctx context.Context, req request) (response, error) {
	cfg := c.holder.Get()
	started := time.Now()
	attempts := 0

	ctx, span := c.tracer.Start(ctx, "emecf."+req.operation, trace.WithSpanKind(trace.SpanKindClient))
	defer span.End()
	span.SetAttributes(tracing.SafeAttributes(append(req.attrs, attribute.String("emecf.operation", req.operation))...)...)

	log := obslogger.WithContext(ctx, c.log).With(zap.String("operation", req.operation))

	resp, err := c.execute(ctx, cfg, req, &attempts, log)

	outcome := obsmetrics.GatewayOutcomeSuccess
	if err != nil {
		if remoteErr, ok := domain.AsRemoteError(err); ok {
			outcome = string(remoteErr.Kind)
			span.SetAttributes(tracing.SafeAttributes(
				attribute.String("emecf.error_kind", string(remoteErr.Kind)),
				attribute.Int("emecf.error_code", remoteErr.Code),
				attribute.Bool("emecf.indeterminate", remoteErr.Indeterminate),
			)...)
		}
		span.RecordError(tracing.SafeError(err))
		span.SetStatus(codes.Error, outcome)
		log.Warn("emecf call failed", zap.Int("attempts", attempts), zap.Error(err))
	} else {
		log.Debug("emecf call succeeded", zap.Int("attempts", attempts), zap.Int("status", resp.status))
	}
	span.SetAttributes(tracing.SafeAttributes(attribute.Int("emecf.attempts", attempts))...)
	c.metrics.ObserveGatewayCall(req.operation, outcome, attempts, time.Since(started))

	return resp, err
}

func (c *Client) execute(ctx context.Context, cfg config.EMECF, req request, attempts *int, log *zap.Logger) (response, error) {
	token := strings.TrimSpace(cfg.Token)
	if token == "" {
		return response{}, unauthorized(req.operation, "jeton e-MECeF absent", domain.ErrGatewayNotConfigured)
	}
	if tokenExpired(token, c.clock.Now()) {
		return response{}, unauthorized(req.operation, "jeton e-MECeF expiré", nil)
	}

	var payload []byte
	if req.body != nil {
		encoded, err := json.Marshal(req.body)
		if err != nil {
			return response{}, fmt.Errorf("encode %s payload: %w", req.operation, err)
		}
		payload = encoded
	}

	if timeout := req.timeout(cfg.Timeouts); timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	if err := c.limiter.Wait(ctx); err != nil {
		// Nothing was sent yet.
		return response{}, &domain.RemoteError{
			Kind:      domain.RemoteTransport,
			Operation: req.operation,
			Message:   "appel e-MECeF non émis",
			Err:       err,
		}
	}

	target := cfg.BaseURL() + req.path
	var lastNetErr error

	operation := func() (response, error) {
		*attempts++
		httpReq, err := http.NewRequestWithContext(ctx, req.method, target, bytes.NewReader(payload))
		if err != nil {
			return response{}, backoff.Permanent(err)
		}
		httpReq.Header.Set("Authorization", "Bearer "+token)
		httpReq.Header.Set("Accept", "application/json")
		httpReq.Header.Set("User-Agent", "sygmef")
		if payload != nil {
			httpReq.Header.Set("Content-Type", "application/json")
		}

		httpResp, err := c.http.Do(httpReq)
		if err != nil {
			lastNetErr = err
			if ctx.Err() != nil {
				return response{}, backoff.Permanent(err)
			}
			if isConnectFailure(err) || isIdempotent(req.method) {
				return response{}, err
			}
			return response{}, backoff.Permanent(err)
		}
		defer httpResp.Body.Close()
		lastNetErr = nil

		body, err := io.ReadAll(io.LimitReader(httpResp.Body, maxResponseBytes))
		if err != nil {
			return response{status: httpResp.StatusCode}, backoff.Permanent(malformedResponse(req.operation, httpResp.StatusCode, err))
		}
		return response{status: httpResp.StatusCode, body: body}, nil
	}

	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = cfg.Retry.InitialDelay()
	eb.Multiplier = cfg.Retry.Multiplier
	if eb.Multiplier < 1 {
		eb.Multiplier = 1
	}
	eb.RandomizationFactor = 0
	eb.MaxInterval = 30 * time.Second
	eb.Reset()

	maxTries := cfg.Retry.MaxAttempts
	if maxTries < 1 {
		maxTries = 1
	}

	resp, err := backoff.Retry(ctx, operation,
		backoff.WithBackOff(eb),
		backoff.WithMaxTries(uint(maxTries)),
		backoff.WithNotify(func(err error, next time.Duration) {
			log.Info("emecf call retrying", zap.Duration("next", next), zap.Error(err))
		}),
	)
	if err != nil {
		if lastNetErr != nil {
			return response{}, transportError(req.operation, req.method, lastNetErr)
		}
		if remoteErr, ok := domain.AsRemoteError(err); ok {
			return response{}, remoteErr
		}
		if ctx.Err() != nil {
			return response{}, transportError(req.operation, req.method, err)
		}
		return response{}, err
	}

	if resp.status < 200 || resp.status > 299 {
		return response{}, responseError(req.operation, resp.status, resp.body)
	}
	if remoteErr := embeddedError(req.operation, resp.status, resp.body); remoteErr != nil {
		return response{}, remoteErr
	}
	return resp, nil
}
