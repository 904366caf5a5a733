// Package signing is the entry point for sealing documents. It resolves settings,
// picks the sealing protocol for a strategy and records the outcome.
package signing

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/wolfeidau/credseal/internal/client"
	"github.com/wolfeidau/credseal/internal/dss"
	"github.com/wolfeidau/credseal/internal/edci"
	"github.com/wolfeidau/credseal/internal/pki"
	"github.com/wolfeidau/credseal/internal/sealerr"
	"github.com/wolfeidau/credseal/internal/telemetry"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// Orchestrator seals documents. It keeps no state between calls and is safe
// for concurrent use.
type Orchestrator struct {
	provider   SettingsProvider
	httpClient *http.Client
	now        func() time.Time
	retry      client.RetryPolicy
}

type Option func(*Orchestrator)

// WithHTTPClient sets the client used for every outbound call.
func WithHTTPClient(c *http.Client) Option {
	return func(o *Orchestrator) {
		o.httpClient = c
	}
}

// WithClock overrides the clock used for issuance and signing dates.
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) {
		o.now = now
	}
}

// WithRetry sets the transport retry policy.
func WithRetry(policy client.RetryPolicy) Option {
	return func(o *Orchestrator) {
		o.retry = policy
	}
}

func New(provider SettingsProvider, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		provider: provider,
		now:      time.Now,
		retry:    client.DefaultRetryPolicy(),
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.httpClient == nil {
		o.httpClient = &http.Client{
			Timeout:   client.DefaultConfig().Timeout,
			Transport: client.NewRequestIDTransport(nil),
		}
	}
	return o
}

// Sign seals doc using strategy and returns the sealed artifact.
//
// Every call gets a request id, attached to the context logger and sent as
// X-Request-ID on outbound calls. Certificates are loaded fresh on each call.
func (o *Orchestrator) Sign(ctx context.Context, doc []byte, strategy Strategy) (artifact []byte, err error) {
	started := time.Now()

	requestID := newRequestID()
	ctx = client.WithRequestID(ctx, requestID)

	log := zerolog.Ctx(ctx).With().
		Str("request_id", requestID).
		Str("strategy", strategy.String()).
		Logger()
	ctx = log.WithContext(ctx)

	ctx, span := telemetry.Tracer().Start(ctx, "credseal.Sign",
		trace.WithAttributes(telemetry.AttrStrategy.String(strategy.String())))
	defer span.End()

	defer func() {
		o.record(ctx, span, strategy, started, err)
		if err != nil {
			log.Error().Err(err).Str("kind", sealerr.KindOf(err).String()).Msg("Seal failed")
			return
		}
		log.Info().Int("artifact_size", len(artifact)).Dur("duration", time.Since(started)).Msg("Seal complete")
	}()

	if len(bytes.TrimSpace(doc)) == 0 {
		return nil, sealerr.Validation("sign", sealerr.ErrEmptyInput)
	}
	parsed, err := ParseStrategy(strategy.String())
	if err != nil {
		return nil, err
	}
	strategy = parsed

	settings, err := o.provider.Settings(ctx)
	if err != nil {
		if sealerr.KindOf(err) == sealerr.KindUnknown {
			return nil, sealerr.Configuration("load settings", err)
		}
		return nil, err
	}
	if err := settings.validate(strategy); err != nil {
		return nil, err
	}

	log.Info().Int("document_size", len(doc)).Msg("Sealing document")

	switch strategy {
	case StrategyRemote:
		return o.signRemote(ctx, doc, settings)
	case StrategyDelegated:
		return o.signDelegated(ctx, doc, settings)
	default:
		return nil, sealerr.Configuration("sign", fmt.Errorf("%w: %q", sealerr.ErrUnknownStrategy, strategy))
	}
}

func (o *Orchestrator) signRemote(ctx context.Context, doc []byte, settings *Settings) ([]byte, error) {
	cert, err := pki.LoadPKCS12(settings.Certificate, settings.Passphrase)
	if err != nil {
		return nil, err
	}

	zerolog.Ctx(ctx).Debug().
		Str("subject", cert.Leaf().Subject.String()).
		Str("fingerprint", cert.Fingerprint()).
		Msg("Loaded seal certificate")

	protocol, err := dss.New(dss.Config{
		BaseURL:    settings.DSSURL,
		IssuerData: settings.IssuerData,
		HTTPClient: o.httpClient,
		Now:        o.now,
		Retry:      o.retry,
	})
	if err != nil {
		return nil, err
	}

	return protocol.Seal(ctx, doc, cert)
}

func (o *Orchestrator) signDelegated(ctx context.Context, doc []byte, settings *Settings) ([]byte, error) {
	protocol, err := edci.New(edci.Config{
		BaseURL:    settings.EDCIURL,
		HTTPClient: o.httpClient,
		Retry:      o.retry,
	})
	if err != nil {
		return nil, err
	}

	return protocol.Seal(ctx, doc, settings.Passphrase)
}

func (o *Orchestrator) record(ctx context.Context, span trace.Span, strategy Strategy, started time.Time, err error) {
	m := telemetry.GetMetrics()
	attrs := metric.WithAttributes(telemetry.AttrStrategy.String(strategy.String()))

	m.SealTotal.Add(ctx, 1, attrs)
	m.SealDuration.Record(ctx, float64(time.Since(started).Milliseconds()), attrs)

	if err != nil {
		kind := sealerr.KindOf(err).String()
		m.SealErrorsTotal.Add(ctx, 1, metric.WithAttributes(
			telemetry.AttrStrategy.String(strategy.String()),
			telemetry.AttrKind.String(kind),
		))
		span.RecordError(err)
		span.SetStatus(codes.Error, kind)
	}
}

func newRequestID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}
