package signing

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"github.com/wolfeidau/credseal/internal/client"
	"github.com/wolfeidau/credseal/internal/pki/pkitest"
	"github.com/wolfeidau/credseal/internal/sealerr"
)

const (
	passphrase     = "changeit"
	issuer         = `{"id":"did:ebsi:zexample","legalName":"Example University"}`
	remoteDocument = `{"id":"urn:credential:1","expirationDate":"2030-01-01T00:00:00Z","credentialSubject":{"name":"Ada"}}`
	edciDocument   = `{"credential":{"id":"urn:credential:1"},"deliveryDetails":{"deliveryAddress":["ada@example.eu"]}}`
	edciSealed     = `{"proof":{"jws":"abc"}}`
)

// fakeServices answers both the DSS and EDCI endpoints and records request ids.
type fakeServices struct {
	mu         sync.Mutex
	paths      []string
	requestIDs []string
}

func (f *fakeServices) handler(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	f.paths = append(f.paths, r.URL.Path)
	f.requestIDs = append(f.requestIDs, r.Header.Get(client.RequestIDHeader))
	f.mu.Unlock()

	if strings.HasSuffix(r.URL.Path, "/credentials/seal") {
		_, _ = io.WriteString(w, edciSealed)
		return
	}

	_ = json.NewEncoder(w).Encode(map[string]string{
		"bytes": base64.StdEncoding.EncodeToString([]byte("sealed:" + r.URL.Path)),
	})
}

func (f *fakeServices) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.paths)
}

func newTestServer(t *testing.T) (*fakeServices, *httptest.Server) {
	f := &fakeServices{}
	srv := httptest.NewServer(http.HandlerFunc(f.handler))
	t.Cleanup(srv.Close)
	return f, srv
}

func testSettings(t *testing.T, baseURL string) Settings {
	bundle := pkitest.NewRSABundle(t, passphrase)
	return Settings{
		Certificate: bundle.PFX,
		Passphrase:  passphrase,
		DSSURL:      baseURL + "/services/rest/signature",
		EDCIURL:     baseURL,
		IssuerData:  []byte(issuer),
	}
}

func newTestOrchestrator(srv *httptest.Server, provider SettingsProvider) *Orchestrator {
	return New(provider,
		WithHTTPClient(&http.Client{Transport: client.NewRequestIDTransport(srv.Client().Transport)}),
		WithClock(func() time.Time { return time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC) }),
		WithRetry(client.RetryPolicy{MaxTries: 2, InitialInterval: time.Millisecond}),
	)
}

func TestSignRemote(t *testing.T) {
	fake, srv := newTestServer(t)
	o := newTestOrchestrator(srv, StaticSettings(testSettings(t, srv.URL)))

	artifact, err := o.Sign(context.Background(), []byte(remoteDocument), StrategyRemote)
	require.NoError(t, err)
	require.Equal(t, "sealed:/services/rest/signature/one-document/signDocument", string(artifact))

	require.Equal(t, []string{
		"/services/rest/signature/one-document/timestampDocument",
		"/services/rest/signature/one-document/getDataToSign",
		"/services/rest/signature/one-document/signDocument",
	}, fake.paths)

	// one request id shared by every call of the operation
	id, err := uuid.Parse(fake.requestIDs[0])
	require.NoError(t, err)
	require.Equal(t, uuid.Version(7), id.Version())
	for _, got := range fake.requestIDs {
		require.Equal(t, fake.requestIDs[0], got)
	}
}

func TestSignDelegated(t *testing.T) {
	fake, srv := newTestServer(t)
	o := newTestOrchestrator(srv, StaticSettings(testSettings(t, srv.URL)))

	artifact, err := o.Sign(context.Background(), []byte(edciDocument), StrategyDelegated)
	require.NoError(t, err)
	require.Equal(t, edciSealed, string(artifact))
	require.Equal(t, []string{"/europass2/edci-issuer/api/v2/public/credentials/seal"}, fake.paths)
	require.NotEmpty(t, fake.requestIDs[0])
}

func TestSignDistinctRequestIDs(t *testing.T) {
	fake, srv := newTestServer(t)
	o := newTestOrchestrator(srv, StaticSettings(testSettings(t, srv.URL)))

	for range 2 {
		_, err := o.Sign(context.Background(), []byte(edciDocument), StrategyDelegated)
		require.NoError(t, err)
	}

	require.Len(t, fake.requestIDs, 2)
	require.NotEqual(t, fake.requestIDs[0], fake.requestIDs[1])
}

func TestSignErrors(t *testing.T) {
	tests := []struct {
		name     string
		document string
		strategy Strategy
		mutate   func(s *Settings)
		wantKind sealerr.Kind
		wantErr  error
	}{
		{
			name:     "empty document",
			document: "  ",
			strategy: StrategyRemote,
			wantKind: sealerr.KindValidation,
			wantErr:  sealerr.ErrEmptyInput,
		},
		{
			name:     "unknown strategy",
			document: remoteDocument,
			strategy: Strategy("carrier-pigeon"),
			wantKind: sealerr.KindConfiguration,
			wantErr:  sealerr.ErrUnknownStrategy,
		},
		{
			name:     "missing passphrase",
			document: remoteDocument,
			strategy: StrategyRemote,
			mutate:   func(s *Settings) { s.Passphrase = "" },
			wantKind: sealerr.KindConfiguration,
			wantErr:  sealerr.ErrMissingPassphrase,
		},
		{
			name:     "missing passphrase delegated",
			document: edciDocument,
			strategy: StrategyDelegated,
			mutate:   func(s *Settings) { s.Passphrase = "" },
			wantKind: sealerr.KindConfiguration,
			wantErr:  sealerr.ErrMissingPassphrase,
		},
		{
			name:     "missing certificate",
			document: remoteDocument,
			strategy: StrategyRemote,
			mutate:   func(s *Settings) { s.Certificate = nil },
			wantKind: sealerr.KindConfiguration,
			wantErr:  sealerr.ErrMissingCertificate,
		},
		{
			name:     "missing dss url",
			document: remoteDocument,
			strategy: StrategyRemote,
			mutate:   func(s *Settings) { s.DSSURL = "" },
			wantKind: sealerr.KindConfiguration,
			wantErr:  sealerr.ErrMissingEndpoint,
		},
		{
			name:     "missing dss url mixed case strategy",
			document: edciDocument,
			strategy: Strategy(" DSS "),
			mutate:   func(s *Settings) { s.DSSURL = "" },
			wantKind: sealerr.KindConfiguration,
			wantErr:  sealerr.ErrMissingEndpoint,
		},
		{
			name:     "missing edci url",
			document: edciDocument,
			strategy: StrategyDelegated,
			mutate:   func(s *Settings) { s.EDCIURL = "" },
			wantKind: sealerr.KindConfiguration,
			wantErr:  sealerr.ErrMissingEndpoint,
		},
		{
			name:     "wrong passphrase",
			document: remoteDocument,
			strategy: StrategyRemote,
			mutate:   func(s *Settings) { s.Passphrase = "wrong" },
			wantKind: sealerr.KindCrypto,
			wantErr:  sealerr.ErrInvalidBundle,
		},
		{
			name:     "invalid issuer data",
			document: remoteDocument,
			strategy: StrategyRemote,
			mutate:   func(s *Settings) { s.IssuerData = []byte("{") },
			wantKind: sealerr.KindConfiguration,
			wantErr:  sealerr.ErrInvalidIssuerData,
		},
		{
			name:     "delegated missing structure",
			document: `{"credential":{}}`,
			strategy: StrategyDelegated,
			wantKind: sealerr.KindValidation,
			wantErr:  sealerr.ErrMissingStructure,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fake, srv := newTestServer(t)

			settings := testSettings(t, srv.URL)
			if tt.mutate != nil {
				tt.mutate(&settings)
			}
			o := newTestOrchestrator(srv, StaticSettings(settings))

			artifact, err := o.Sign(context.Background(), []byte(tt.document), tt.strategy)
			require.Nil(t, artifact)
			require.ErrorIs(t, err, tt.wantErr)
			require.Equal(t, tt.wantKind, sealerr.KindOf(err))
			require.Zero(t, fake.calls())
		})
	}
}

func TestSignDispatchesNormalizedStrategy(t *testing.T) {
	remotePaths := []string{
		"/services/rest/signature/one-document/timestampDocument",
		"/services/rest/signature/one-document/getDataToSign",
		"/services/rest/signature/one-document/signDocument",
	}
	delegatedPaths := []string{"/europass2/edci-issuer/api/v2/public/credentials/seal"}

	tests := []struct {
		name      string
		document  string
		strategy  Strategy
		wantPaths []string
	}{
		{name: "upper case remote", document: remoteDocument, strategy: Strategy("DSS"), wantPaths: remotePaths},
		{name: "padded remote", document: remoteDocument, strategy: Strategy(" dss "), wantPaths: remotePaths},
		{name: "mixed case delegated", document: edciDocument, strategy: Strategy("Edci"), wantPaths: delegatedPaths},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fake, srv := newTestServer(t)
			o := newTestOrchestrator(srv, StaticSettings(testSettings(t, srv.URL)))

			_, err := o.Sign(context.Background(), []byte(tt.document), tt.strategy)
			require.NoError(t, err)
			require.Equal(t, tt.wantPaths, fake.paths)
		})
	}
}

func TestSignSettingsProviderFailure(t *testing.T) {
	_, srv := newTestServer(t)

	o := newTestOrchestrator(srv, SettingsFunc(func(context.Context) (*Settings, error) {
		return nil, errors.New("parameter store unreachable")
	}))

	_, err := o.Sign(context.Background(), []byte(remoteDocument), StrategyRemote)
	require.Equal(t, sealerr.KindConfiguration, sealerr.KindOf(err))
	require.ErrorContains(t, err, "parameter store unreachable")
}

func TestSignLogsRequestID(t *testing.T) {
	_, srv := newTestServer(t)
	o := newTestOrchestrator(srv, StaticSettings(testSettings(t, srv.URL)))

	var buf bytes.Buffer
	ctx := zerolog.New(&buf).WithContext(context.Background())

	_, err := o.Sign(ctx, []byte(edciDocument), StrategyDelegated)
	require.NoError(t, err)

	require.Contains(t, buf.String(), `"request_id":"`)
	require.Contains(t, buf.String(), `"strategy":"edci"`)
	require.Contains(t, buf.String(), "Seal complete")
	require.NotContains(t, buf.String(), passphrase)
}

func TestParseStrategy(t *testing.T) {
	tests := []struct {
		in      string
		want    Strategy
		wantErr bool
	}{
		{in: "dss", want: StrategyRemote},
		{in: "DSS", want: StrategyRemote},
		{in: " edci ", want: StrategyDelegated},
		{in: "", wantErr: true},
		{in: "pades", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseStrategy(tt.in)
			if tt.wantErr {
				require.ErrorIs(t, err, sealerr.ErrUnknownStrategy)
				require.Equal(t, sealerr.KindConfiguration, sealerr.KindOf(err))
				return
			}
			require.NoError(t, err)
			require.Equal(t, tt.want, got)
		})
	}
}
