package sealerr

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestKindOf(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected Kind
	}{
		{
			name:     "configuration",
			err:      Configuration("sign", ErrMissingPassphrase),
			expected: KindConfiguration,
		},
		{
			name:     "validation wrapped again",
			err:      fmt.Errorf("outer: %w", Validation("enrich", ErrMalformedJSON)),
			expected: KindValidation,
		},
		{
			name:     "bare service error",
			err:      &ServiceError{Endpoint: "seal", StatusCode: 500},
			expected: KindService,
		},
		{
			name:     "network",
			err:      Network("timestamp", errors.New("connection refused")),
			expected: KindNetwork,
		},
		{
			name:     "plain error",
			err:      errors.New("boom"),
			expected: KindUnknown,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.expected, KindOf(tt.err))
		})
	}
}

func TestErrorUnwrapsReason(t *testing.T) {
	err := Integrity("sign", ErrSignatureMismatch)
	require.ErrorIs(t, err, ErrSignatureMismatch)
	require.Contains(t, err.Error(), "integrity")
	require.Contains(t, err.Error(), "sign")
}

func TestServiceErrorCarriesStatus(t *testing.T) {
	err := Service("seal", &ServiceError{Endpoint: "seal", StatusCode: 500, Body: strings.Repeat("x", 2000)})

	var svc *ServiceError
	require.ErrorAs(t, err, &svc)
	require.Equal(t, 500, svc.StatusCode)
	require.Len(t, svc.Body, 2000)
	require.Less(t, len(svc.Error()), 700)
}

func TestIsRetryable(t *testing.T) {
	require.True(t, IsRetryable(Network("x", errors.New("timeout"))))
	require.False(t, IsRetryable(Service("x", &ServiceError{StatusCode: 503})))
	require.False(t, IsRetryable(Crypto("x", ErrInvalidBundle)))
}

func TestRemediation(t *testing.T) {
	require.Equal(t, "fix your configuration", Remediation(Configuration("x", ErrUnknownStrategy)))
	require.Equal(t, "fix your input document", Remediation(Validation("x", ErrEmptyInput)))
	require.Equal(t, "the remote service is unavailable", Remediation(Network("x", errors.New("refused"))))
	require.Empty(t, Remediation(errors.New("other")))
}
