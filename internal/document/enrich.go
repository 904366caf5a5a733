package document

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	"github.com/buger/jsonparser"
	"github.com/wolfeidau/credseal/internal/sealerr"
)

// IssuanceTimeLayout is the UTC timestamp layout used for issuanceDate and issued.
const IssuanceTimeLayout = "2006-01-02T15:04:05Z"

const (
	anchorKey       = "expirationDate"
	issuanceDateKey = "issuanceDate"
	issuedKey       = "issued"
	issuerKey       = "issuer"
)

// Enrich inserts issuanceDate, issued and issuer into the top-level object of
// document, directly after expirationDate or at the end when expirationDate is
// absent. Every other key keeps its position and value bytes; existing issuance
// keys are replaced. The result is compacted.
func Enrich(document, issuer []byte, now time.Time) ([]byte, error) {
	document = Normalize(document)
	if err := Validate(document); err != nil {
		return nil, err
	}
	if first := firstByte(document); first != '{' {
		return nil, sealerr.Validation("enrich document", fmt.Errorf("%w: top level must be an object", sealerr.ErrMalformedJSON))
	}

	issuer = bytes.TrimSpace(issuer)
	if len(issuer) == 0 || !json.Valid(issuer) {
		return nil, sealerr.Configuration("enrich document", sealerr.ErrInvalidIssuerData)
	}

	fields, err := issuanceFields(issuer, now)
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	buf.WriteByte('{')
	members := 0
	inserted := false

	writeMember := func(raw []byte) {
		if members > 0 {
			buf.WriteByte(',')
		}
		buf.Write(raw)
		members++
	}

	// members are copied from the key's opening quote to the end of the value so
	// escaped keys and values keep their original bytes
	pos := bytes.IndexByte(document, '{') + 1

	err = jsonparser.ObjectEach(document, func(key, _ []byte, _ jsonparser.ValueType, end int) error {
		start := pos + bytes.IndexByte(document[pos:end], '"')
		pos = end

		name := string(key)
		switch name {
		case issuanceDateKey, issuedKey, issuerKey:
			return nil
		}

		writeMember(document[start:end])

		if name == anchorKey && !inserted {
			for _, field := range fields {
				writeMember(field)
			}
			inserted = true
		}
		return nil
	})
	if err != nil {
		return nil, sealerr.Validation("enrich document", fmt.Errorf("%w: %v", sealerr.ErrMalformedJSON, err))
	}

	if !inserted {
		for _, field := range fields {
			writeMember(field)
		}
	}
	buf.WriteByte('}')

	var out bytes.Buffer
	if err := json.Compact(&out, buf.Bytes()); err != nil {
		return nil, sealerr.Validation("enrich document", fmt.Errorf("%w: %v", sealerr.ErrMalformedJSON, err))
	}
	return out.Bytes(), nil
}

// issuanceFields returns the encoded members to insert, in order.
func issuanceFields(issuer []byte, now time.Time) ([][]byte, error) {
	timestamp, err := encodeString(now.UTC().Format(IssuanceTimeLayout))
	if err != nil {
		return nil, err
	}

	var compactIssuer bytes.Buffer
	if err := json.Compact(&compactIssuer, issuer); err != nil {
		return nil, sealerr.Configuration("enrich document", fmt.Errorf("%w: %v", sealerr.ErrInvalidIssuerData, err))
	}

	member := func(key string, value []byte) []byte {
		encodedKey, _ := encodeString(key)
		out := append(encodedKey, ':')
		return append(out, value...)
	}

	return [][]byte{
		member(issuanceDateKey, timestamp),
		member(issuedKey, timestamp),
		member(issuerKey, compactIssuer.Bytes()),
	}, nil
}

// encodeString JSON-encodes s without HTML escaping.
func encodeString(s string) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(s); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

func firstByte(data []byte) byte {
	trimmed := bytes.TrimLeft(data, " \t\r\n")
	if len(trimmed) == 0 {
		return 0
	}
	return trimmed[0]
}
