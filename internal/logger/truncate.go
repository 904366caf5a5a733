package logger

import (
	"encoding/json"
)

// TruncateLength is how many characters of a binary field survive in logs.
const TruncateLength = 50

// BinaryFields are the JSON keys holding base64 payloads, certificates or
// signatures in signing service requests and responses.
var BinaryFields = []string{"bytes", "value", "encodedCertificate", "binaries"}

// TruncateFields returns a copy of the JSON body with string values under any of
// keys cut to TruncateLength characters followed by "...". Keys are matched at any
// depth. Bodies that are not JSON are truncated as a whole.
func TruncateFields(body []byte, keys ...string) []byte {
	var doc any
	if err := json.Unmarshal(body, &doc); err != nil {
		return []byte(truncate(string(body)))
	}

	match := make(map[string]struct{}, len(keys))
	for _, k := range keys {
		match[k] = struct{}{}
	}

	out, err := json.Marshal(truncateValue(doc, match))
	if err != nil {
		return []byte(truncate(string(body)))
	}
	return out
}

func truncateValue(v any, keys map[string]struct{}) any {
	switch val := v.(type) {
	case map[string]any:
		for k, child := range val {
			if s, ok := child.(string); ok {
				if _, hit := keys[k]; hit {
					val[k] = truncate(s)
					continue
				}
			}
			val[k] = truncateValue(child, keys)
		}
		return val
	case []any:
		for i, child := range val {
			val[i] = truncateValue(child, keys)
		}
		return val
	default:
		return v
	}
}

func truncate(s string) string {
	runes := []rune(s)
	if len(runes) <= TruncateLength {
		return s
	}
	return string(runes[:TruncateLength]) + "..."
}
