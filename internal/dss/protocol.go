// Package dss drives the remote signature protocol of a DSS style signing service:
// the document is timestamped, the service computes the data to sign, the data is
// signed locally and the service assembles the sealed artifact.
package dss

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/wolfeidau/credseal/internal/client"
	"github.com/wolfeidau/credseal/internal/document"
	"github.com/wolfeidau/credseal/internal/logger"
	"github.com/wolfeidau/credseal/internal/pki"
	"github.com/wolfeidau/credseal/internal/sealerr"
	"github.com/wolfeidau/credseal/internal/telemetry"
)

// maxResponseSize bounds how much of a service response is read into memory.
const maxResponseSize = 64 << 20

// Config configures a Protocol.
type Config struct {
	// BaseURL is the root of the signing service, e.g. https://dss.example.eu/services/rest/signature.
	BaseURL string
	// IssuerData is the JSON issuer object inserted into every document.
	IssuerData []byte
	HTTPClient *http.Client
	// Now supplies the issuance and signing date, defaults to time.Now.
	Now   func() time.Time
	Retry client.RetryPolicy
}

// Protocol seals documents through a remote signing service.
// It holds no per-call state and is safe for concurrent use.
type Protocol struct {
	baseURL    string
	issuerData []byte
	httpClient *http.Client
	now        func() time.Time
	retry      client.RetryPolicy
}

// New validates cfg and returns a Protocol.
func New(cfg Config) (*Protocol, error) {
	if cfg.BaseURL == "" {
		return nil, sealerr.Configuration("dss", sealerr.ErrMissingEndpoint)
	}
	u, err := url.Parse(cfg.BaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, sealerr.Configuration("dss", fmt.Errorf("%w: invalid url %q", sealerr.ErrMissingEndpoint, cfg.BaseURL))
	}

	p := &Protocol{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		issuerData: cfg.IssuerData,
		httpClient: cfg.HTTPClient,
		now:        cfg.Now,
		retry:      cfg.Retry,
	}
	if p.httpClient == nil {
		p.httpClient = http.DefaultClient
	}
	if p.now == nil {
		p.now = time.Now
	}
	if p.retry.MaxTries == 0 {
		p.retry = client.DefaultRetryPolicy()
	}

	return p, nil
}

// Seal enriches doc with issuance metadata and runs it through the remote protocol,
// returning the signed artifact decoded from the final response.
//
// Transport failures restart the exchange from the timestamp, a token is never
// reused across attempts. Signing failures from signer are returned unchanged.
func (p *Protocol) Seal(ctx context.Context, doc []byte, signer pki.Signer) ([]byte, error) {
	doc = document.Normalize(doc)
	if err := document.Validate(doc); err != nil {
		return nil, err
	}

	now := p.now().UTC()

	enriched, err := document.Enrich(doc, p.issuerData, now)
	if err != nil {
		return nil, err
	}

	return client.Retry(ctx, p.retry, "dss seal", func() ([]byte, error) {
		return p.seal(ctx, enriched, signer, now)
	})
}

func (p *Protocol) seal(ctx context.Context, enriched []byte, signer pki.Signer, now time.Time) ([]byte, error) {
	log := zerolog.Ctx(ctx)

	token, err := p.call(ctx, timestampDocumentPath, newTimestampRequest(enriched))
	if err != nil {
		return nil, err
	}
	log.Info().Int("token_size", len(token)).Msg("Document timestamped")

	env := newEnvelope(enriched, token, signer.EncodedCertificate(), signer.EncodedChain(), now.UnixMilli())

	dataToSign, err := p.call(ctx, getDataToSignPath, env)
	if err != nil {
		return nil, err
	}
	log.Info().Int("data_size", len(dataToSign)).Msg("Data to sign received")

	signature, err := signer.Sign(dataToSign)
	if err != nil {
		return nil, err
	}
	telemetry.GetMetrics().SignaturesTotal.Add(ctx, 1)

	artifact, err := p.call(ctx, signDocumentPath, env.withSignature(signer.Algorithm(), signature))
	if err != nil {
		return nil, err
	}
	log.Info().Int("artifact_size", len(artifact)).Msg("Document signed")

	return artifact, nil
}

// call POSTs body as JSON to path and returns the decoded bytes field of the response.
func (p *Protocol) call(ctx context.Context, path string, body any) ([]byte, error) {
	endpoint := p.baseURL + path
	op := "dss " + strings.TrimPrefix(path, "/one-document/")
	log := zerolog.Ctx(ctx)

	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s request: %w", op, err)
	}

	log.Debug().
		Str("endpoint", endpoint).
		RawJSON("request", logger.TruncateFields(payload, logger.BinaryFields...)).
		Msg("Signing service request")

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, sealerr.Configuration(op, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	started := time.Now()
	resp, err := p.httpClient.Do(req)
	telemetry.RecordRemoteCall(ctx, endpoint, resp, started)
	if err != nil {
		return nil, sealerr.Network(op, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, sealerr.Network(op, fmt.Errorf("failed to read response: %w", err))
	}

	if resp.StatusCode != http.StatusOK {
		return nil, sealerr.Service(op, &sealerr.ServiceError{
			Endpoint:   endpoint,
			StatusCode: resp.StatusCode,
			Body:       string(respBody),
		})
	}

	log.Debug().
		Str("endpoint", endpoint).
		Bytes("response", logger.TruncateFields(respBody, logger.BinaryFields...)).
		Msg("Signing service response")

	var out bytesResponse
	if err := json.Unmarshal(respBody, &out); err != nil {
		return nil, sealerr.Service(op, &sealerr.ServiceError{
			Endpoint:   endpoint,
			StatusCode: resp.StatusCode,
			Body:       string(respBody),
			Reason:     "undecodable response",
		})
	}
	if len(out.Bytes) == 0 {
		return nil, sealerr.Service(op, &sealerr.ServiceError{
			Endpoint:   endpoint,
			StatusCode: resp.StatusCode,
			Body:       string(respBody),
			Reason:     "response missing bytes",
		})
	}

	return out.Bytes, nil
}
