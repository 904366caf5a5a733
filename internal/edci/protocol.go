// Package edci seals documents by delegating the whole operation to an EDCI issuer
// style sealing authority in a single multipart upload.
package edci

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/tidwall/gjson"
	"github.com/wolfeidau/credseal/internal/client"
	"github.com/wolfeidau/credseal/internal/document"
	"github.com/wolfeidau/credseal/internal/logger"
	"github.com/wolfeidau/credseal/internal/sealerr"
	"github.com/wolfeidau/credseal/internal/telemetry"
)

const (
	sealPath      = "/europass2/edci-issuer/api/v2/public/credentials/seal"
	fileField     = "_file"
	fileName      = "document.json"
	passwordParam = "password"

	maxResponseSize = 64 << 20
)

// RequiredPaths must be present and non-null in every document sent for sealing.
var RequiredPaths = []string{"credential", "deliveryDetails.deliveryAddress"}

type Config struct {
	// BaseURL is the root of the sealing authority, the seal path is appended to it.
	BaseURL    string
	HTTPClient *http.Client
	Retry      client.RetryPolicy
}

// Protocol seals documents through a delegated sealing authority.
type Protocol struct {
	endpoint   string
	httpClient *http.Client
	retry      client.RetryPolicy
}

func New(cfg Config) (*Protocol, error) {
	if cfg.BaseURL == "" {
		return nil, sealerr.Configuration("edci", sealerr.ErrMissingEndpoint)
	}
	u, err := url.Parse(cfg.BaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, sealerr.Configuration("edci", fmt.Errorf("%w: invalid url %q", sealerr.ErrMissingEndpoint, cfg.BaseURL))
	}

	p := &Protocol{
		endpoint:   strings.TrimRight(cfg.BaseURL, "/") + sealPath,
		httpClient: cfg.HTTPClient,
		retry:      cfg.Retry,
	}
	if p.httpClient == nil {
		p.httpClient = http.DefaultClient
	}
	if p.retry.MaxTries == 0 {
		p.retry = client.DefaultRetryPolicy()
	}

	return p, nil
}

// Seal uploads doc to the sealing authority, which decrypts the seal certificate
// with passphrase, and returns the response body unmodified.
//
// The document is validated before any network I/O.
func (p *Protocol) Seal(ctx context.Context, doc []byte, passphrase string) ([]byte, error) {
	canonical, err := document.Canonicalize(doc)
	if err != nil {
		return nil, err
	}
	if err := document.RequireStructure(canonical, RequiredPaths...); err != nil {
		return nil, err
	}
	if passphrase == "" {
		return nil, sealerr.Configuration("edci seal", sealerr.ErrMissingPassphrase)
	}

	body, contentType, err := multipartBody(canonical)
	if err != nil {
		return nil, err
	}

	endpoint := p.endpoint + "?" + url.Values{passwordParam: {passphrase}}.Encode()

	return client.Retry(ctx, p.retry, "edci seal", func() ([]byte, error) {
		return p.upload(ctx, endpoint, contentType, body)
	})
}

func (p *Protocol) upload(ctx context.Context, endpoint, contentType string, body []byte) ([]byte, error) {
	const op = "edci seal"
	log := zerolog.Ctx(ctx)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, sealerr.Configuration(op, err)
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Accept", "application/json")

	log.Debug().
		Str("endpoint", p.endpoint).
		Int("size", len(body)).
		Msg("Uploading document for sealing")

	started := time.Now()
	resp, err := p.httpClient.Do(req)
	telemetry.RecordRemoteCall(ctx, p.endpoint, resp, started)
	if err != nil {
		// url.Error repeats the request url, passphrase included
		return nil, sealerr.Network(op, redactErr(err))
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, sealerr.Network(op, fmt.Errorf("failed to read response: %w", err))
	}

	if resp.StatusCode != http.StatusOK {
		return nil, sealerr.Service(op, &sealerr.ServiceError{
			Endpoint:   p.endpoint,
			StatusCode: resp.StatusCode,
			Body:       string(respBody),
		})
	}

	if !gjson.ValidBytes(respBody) {
		return nil, sealerr.Service(op, &sealerr.ServiceError{
			Endpoint:   p.endpoint,
			StatusCode: resp.StatusCode,
			Body:       string(respBody),
			Reason:     "response is not a JSON document",
		})
	}

	log.Debug().
		Str("endpoint", p.endpoint).
		Bytes("response", logger.TruncateFields(respBody, logger.BinaryFields...)).
		Msg("Sealing authority response")

	return respBody, nil
}

func multipartBody(doc []byte) ([]byte, string, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)

	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name="%s"; filename="%s"`, fileField, fileName))
	header.Set("Content-Type", "application/json")

	part, err := mw.CreatePart(header)
	if err != nil {
		return nil, "", fmt.Errorf("failed to create multipart part: %w", err)
	}
	if _, err := part.Write(doc); err != nil {
		return nil, "", fmt.Errorf("failed to write multipart part: %w", err)
	}
	if err := mw.Close(); err != nil {
		return nil, "", fmt.Errorf("failed to close multipart writer: %w", err)
	}

	return buf.Bytes(), mw.FormDataContentType(), nil
}

func redactErr(err error) error {
	var urlErr *url.Error
	if !errors.As(err, &urlErr) {
		return err
	}
	u, parseErr := url.Parse(urlErr.URL)
	if parseErr != nil {
		return urlErr.Err
	}
	return &url.Error{Op: urlErr.Op, URL: logger.RedactURL(u), Err: urlErr.Err}
}
