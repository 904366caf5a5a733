// Package document prepares credential JSON documents for sealing: validation,
// encoding normalisation, canonical compaction and issuance metadata insertion.
package document

import (
	"bytes"
	"encoding/json"
	"fmt"
	"unicode/utf8"

	"github.com/tidwall/gjson"
	"github.com/wolfeidau/credseal/internal/sealerr"
	"golang.org/x/text/encoding/charmap"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// Normalize returns document as UTF-8 without a byte order mark. Input that is not
// valid UTF-8 is decoded as ISO-8859-1.
func Normalize(document []byte) []byte {
	document = bytes.TrimPrefix(document, utf8BOM)
	if utf8.Valid(document) {
		return document
	}

	converted, err := charmap.ISO8859_1.NewDecoder().Bytes(document)
	if err != nil {
		return document
	}
	return converted
}

// Validate fails with a validation error unless document is well-formed JSON.
func Validate(document []byte) error {
	if len(bytes.TrimSpace(document)) == 0 {
		return sealerr.Validation("validate document", sealerr.ErrEmptyInput)
	}
	if !gjson.ValidBytes(document) {
		return sealerr.Validation("validate document", sealerr.ErrMalformedJSON)
	}
	return nil
}

// Canonicalize normalises the encoding of document and strips insignificant
// whitespace. Key order and value bytes are kept as-is.
func Canonicalize(document []byte) ([]byte, error) {
	document = Normalize(document)
	if err := Validate(document); err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	if err := json.Compact(&buf, document); err != nil {
		return nil, sealerr.Validation("canonicalize document", fmt.Errorf("%w: %v", sealerr.ErrMalformedJSON, err))
	}
	return buf.Bytes(), nil
}

// RequireStructure checks that every path (gjson syntax) is present and not null.
func RequireStructure(document []byte, paths ...string) error {
	for _, path := range paths {
		res := gjson.GetBytes(document, path)
		if !res.Exists() || res.Type == gjson.Null {
			return sealerr.Validation("validate document", fmt.Errorf("%w: missing %q", sealerr.ErrMissingStructure, path))
		}
	}
	return nil
}
