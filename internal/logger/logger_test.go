package logger

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func TestTruncateFields(t *testing.T) {
	long := strings.Repeat("A", 120)

	tests := []struct {
		name     string
		body     string
		expected string
	}{
		{
			name:     "top level bytes",
			body:     `{"bytes":"` + long + `"}`,
			expected: `{"bytes":"` + strings.Repeat("A", 50) + `..."}`,
		},
		{
			name:     "nested fields",
			body:     `{"parameters":{"signingCertificate":{"encodedCertificate":"` + long + `"},"contentTimestamps":[{"binaries":"` + long + `","type":"DOCUMENT_TIMESTAMP"}]},"signatureValue":{"algorithm":"RSA_SHA256","value":"` + long + `"}}`,
			expected: `{"parameters":{"contentTimestamps":[{"binaries":"` + strings.Repeat("A", 50) + `...","type":"DOCUMENT_TIMESTAMP"}],"signingCertificate":{"encodedCertificate":"` + strings.Repeat("A", 50) + `..."}},"signatureValue":{"algorithm":"RSA_SHA256","value":"` + strings.Repeat("A", 50) + `..."}}`,
		},
		{
			name:     "short values untouched",
			body:     `{"bytes":"QUJD"}`,
			expected: `{"bytes":"QUJD"}`,
		},
		{
			name:     "non string field untouched",
			body:     `{"value":12345}`,
			expected: `{"value":12345}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := TruncateFields([]byte(tt.body), BinaryFields...)
			require.JSONEq(t, tt.expected, string(out))
		})
	}

	t.Run("non json body", func(t *testing.T) {
		out := TruncateFields([]byte(long))
		require.Equal(t, strings.Repeat("A", 50)+"...", string(out))
	})
}

func TestRedactURL(t *testing.T) {
	u, err := url.Parse("https://issuer.example/seal?password=s3cr3t&mode=x")
	require.NoError(t, err)

	redacted := RedactURL(u)
	require.NotContains(t, redacted, "s3cr3t")
	require.Contains(t, redacted, "password=REDACTED")
	require.Contains(t, redacted, "mode=x")

	// original untouched
	require.Equal(t, "s3cr3t", u.Query().Get("password"))
}

func TestTransportLogsWithoutSecrets(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	var buf bytes.Buffer
	log := zerolog.New(&buf).Level(zerolog.DebugLevel)

	client := &http.Client{Transport: NewTransport(nil, log)}
	resp, err := client.Post(srv.URL+"/seal?password=hunter2", "application/json", strings.NewReader("{}"))
	require.NoError(t, err)
	resp.Body.Close()

	require.Equal(t, http.StatusAccepted, resp.StatusCode)
	require.Contains(t, buf.String(), `"status":202`)
	require.NotContains(t, buf.String(), "hunter2")
}

func TestSetupWriter(t *testing.T) {
	var buf bytes.Buffer

	log := SetupWriter(&buf, false)
	log.Debug().Msg("hidden")
	log.Info().Msg("shown")

	require.NotContains(t, buf.String(), "hidden")
	require.Contains(t, buf.String(), "shown")
}
