package logger

import (
	"net/http"
	"net/url"
	"time"

	"github.com/rs/zerolog"
)

// RedactedQueryParams are query parameters whose values never reach the logs.
var RedactedQueryParams = []string{"password"}

var _ http.RoundTripper = (*Transport)(nil)

// Transport logs every outbound request with its status and duration.
// The logger is taken from the request context when present.
type Transport struct {
	next   http.RoundTripper
	logger zerolog.Logger
}

func NewTransport(next http.RoundTripper, logger zerolog.Logger) *Transport {
	if next == nil {
		next = http.DefaultTransport
	}
	return &Transport{next: next, logger: logger}
}

func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	started := time.Now()

	log := t.logger
	if l := zerolog.Ctx(req.Context()); l.GetLevel() != zerolog.Disabled {
		log = *l
	}

	resp, err := t.next.RoundTrip(req)
	if err != nil {
		log.Error().
			Err(err).
			Str("method", req.Method).
			Str("url", RedactURL(req.URL)).
			Dur("duration", time.Since(started)).
			Msg("http call")
		return resp, err
	}

	log.Debug().
		Str("method", req.Method).
		Str("url", RedactURL(req.URL)).
		Int("status", resp.StatusCode).
		Dur("duration", time.Since(started)).
		Msg("http call")

	return resp, nil
}

// RedactURL renders u with sensitive query parameter values replaced.
func RedactURL(u *url.URL) string {
	if u == nil {
		return ""
	}
	if u.RawQuery == "" {
		return u.String()
	}

	redacted := *u
	query := redacted.Query()
	for _, name := range RedactedQueryParams {
		if query.Has(name) {
			query.Set(name, "REDACTED")
		}
	}
	redacted.RawQuery = query.Encode()
	return redacted.String()
}
