package observability

import (
	"strconv"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

// RedactForLog strips fields from a JSON payload before it reaches a debug
// log sink. This is independent of, and in addition to, security.Gate's
// redaction of the in-memory Args map: log payloads may carry fields
// (handler result text, _meta blobs) that never pass through Gate.Redact.
func RedactForLog(payloadJSON []byte, fields []string) []byte {
	if len(fields) == 0 || !gjson.ValidBytes(payloadJSON) {
		return payloadJSON
	}
	out := payloadJSON
	for _, field := range fields {
		out = redactPaths(out, field)
	}
	return out
}

// redactPaths finds every key named field anywhere in the document (via a
// recursive gjson walk) and overwrites its value with the redacted
// placeholder using sjson, which handles arbitrary nesting without the
// caller tracking paths by hand.
func redactPaths(doc []byte, field string) []byte {
	var paths []string
	collectPaths(gjson.ParseBytes(doc), "", field, &paths)

	result := doc
	for _, p := range paths {
		updated, err := sjson.SetBytes(result, p, "[REDACTED]")
		if err != nil {
			continue
		}
		result = updated
	}
	return result
}

func collectPaths(value gjson.Result, prefix, field string, out *[]string) {
	if value.IsObject() {
		value.ForEach(func(key, val gjson.Result) bool {
			path := joinPath(prefix, key.String())
			if key.String() == field {
				*out = append(*out, path)
			} else {
				collectPaths(val, path, field, out)
			}
			return true
		})
		return
	}
	if value.IsArray() {
		i := 0
		value.ForEach(func(_, val gjson.Result) bool {
			collectPaths(val, joinPathIndex(prefix, i), field, out)
			i++
			return true
		})
	}
}

func joinPath(prefix, key string) string {
	if prefix == "" {
		return key
	}
	return prefix + "." + key
}

func joinPathIndex(prefix string, i int) string {
	if prefix == "" {
		return strconv.Itoa(i)
	}
	return prefix + "." + strconv.Itoa(i)
}
