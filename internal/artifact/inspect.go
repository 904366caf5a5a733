// Package artifact reads, inspects and stores sealed credentials.
package artifact

import (
	"bytes"
	"crypto/x509"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"github.com/go-jose/go-jose/v4"
	"github.com/tidwall/gjson"
	"github.com/wolfeidau/credseal/internal/pki"
	"github.com/wolfeidau/credseal/internal/sealerr"
)

// File type identifiers used for display images.
const (
	FileTypePNG  = "http://publications.europa.eu/resource/authority/file-type/PNG"
	FileTypeJPEG = "http://publications.europa.eu/resource/authority/file-type/JPEG"
)

// Format describes how a sealed artifact is serialised.
type Format string

const (
	FormatJWSJSON    Format = "jws-json"
	FormatJWSCompact Format = "jws-compact"
	FormatJSON       Format = "json"
)

var signatureAlgorithms = []jose.SignatureAlgorithm{
	jose.RS256, jose.RS384, jose.RS512,
	jose.PS256, jose.PS384, jose.PS512,
	jose.ES256, jose.ES384, jose.ES512,
	jose.EdDSA,
}

// Signature describes one signature found on a JWS artifact.
type Signature struct {
	Algorithm   string
	KeyID       string
	Subject     string
	Fingerprint string
	// Verified is set when the signature verifies against its embedded certificate.
	Verified bool
}

// Page is one rendered page of a credential.
type Page struct {
	Number      int
	ContentType string
	Image       []byte
}

// Summary is what Inspect learned about an artifact.
type Summary struct {
	Format     Format
	Payload    []byte
	Signatures []Signature
	Pages      []Page
}

// Inspect parses a sealed artifact, which may be zstd compressed, and extracts
// the credential payload and its display pages. Signatures are reported but an
// artifact that does not verify is not an error.
func Inspect(data []byte) (*Summary, error) {
	data, err := Decompress(data)
	if err != nil {
		return nil, sealerr.Validation("inspect artifact", err)
	}

	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return nil, sealerr.Validation("inspect artifact", sealerr.ErrEmptyInput)
	}

	summary, err := inspectJWS(data)
	if err != nil {
		summary, err = inspectJSON(data)
		if err != nil {
			return nil, err
		}
	}

	summary.Pages, err = Pages(summary.Payload)
	if err != nil {
		return nil, err
	}

	return summary, nil
}

func inspectJWS(data []byte) (*Summary, error) {
	jws, err := jose.ParseSigned(string(data), signatureAlgorithms)
	if err != nil {
		return nil, err
	}

	summary := &Summary{
		Format:  FormatJWSJSON,
		Payload: jws.UnsafePayloadWithoutVerification(),
	}
	if data[0] != '{' {
		summary.Format = FormatJWSCompact
	}

	for _, sig := range jws.Signatures {
		s := Signature{
			Algorithm: sig.Header.Algorithm,
			KeyID:     sig.Header.KeyID,
		}
		if len(sig.Header.Certificates) > 0 {
			leaf := sig.Header.Certificates[0]
			s.Subject = leaf.Subject.String()
			s.Fingerprint = pki.Fingerprint(leaf)
			s.Verified = verifies(jws, leaf)
		}
		summary.Signatures = append(summary.Signatures, s)
	}

	return summary, nil
}

func verifies(jws *jose.JSONWebSignature, cert *x509.Certificate) bool {
	_, _, _, err := jws.VerifyMulti(cert.PublicKey)
	return err == nil
}

// inspectJSON handles artifacts that are plain JSON, either a credential or an
// object carrying the credential as a "payload" string.
func inspectJSON(data []byte) (*Summary, error) {
	if !gjson.ValidBytes(data) {
		return nil, sealerr.Validation("inspect artifact", sealerr.ErrMalformedJSON)
	}

	payload := gjson.GetBytes(data, "payload")
	if payload.Type != gjson.String {
		return &Summary{Format: FormatJSON, Payload: data}, nil
	}

	raw := []byte(payload.String())
	if !gjson.ValidBytes(raw) {
		decoded, err := base64.RawURLEncoding.DecodeString(strings.TrimRight(payload.String(), "="))
		if err != nil || !gjson.ValidBytes(decoded) {
			return nil, sealerr.Validation("inspect artifact", errors.New("payload is neither JSON nor base64url JSON"))
		}
		raw = decoded
	}

	return &Summary{Format: FormatJSON, Payload: raw}, nil
}

// Pages extracts the display pages of a credential payload from
// displayParameter.individualDisplay. Details without image content are skipped.
func Pages(payload []byte) ([]Page, error) {
	display := gjson.GetBytes(payload, "displayParameter.individualDisplay")
	if !display.Exists() {
		return nil, nil
	}

	// a single display object or a list of them, only the first is rendered
	if display.IsArray() {
		display = display.Get("0")
	}

	details := display.Get("displayDetail")
	if !details.Exists() {
		return nil, nil
	}

	var candidates []gjson.Result
	if details.IsArray() {
		candidates = details.Array()
	} else {
		candidates = []gjson.Result{details}
	}

	var pages []Page
	for _, detail := range candidates {
		content := detail.Get("image.content")
		if content.String() == "" {
			continue
		}

		page := Page{
			Number:      len(pages) + 1,
			ContentType: contentType(detail.Get("image.contentType.id").String()),
		}

		decoded, err := base64.StdEncoding.DecodeString(content.String())
		if err != nil {
			return nil, sealerr.Validation("inspect artifact", fmt.Errorf("page %d image is not base64: %w", page.Number, err))
		}
		page.Image = decoded

		pages = append(pages, page)
	}

	return pages, nil
}

func contentType(fileType string) string {
	switch fileType {
	case FileTypePNG:
		return "image/png"
	default:
		return "image/jpeg"
	}
}
