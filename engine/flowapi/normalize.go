package flowapi

import (
	"net/url"
	"sort"
	"strings"

	"github.com/tidwall/sjson"
)

// normalizePayload turns Bitrix form posts (data[PARAMS][DIALOG_ID]=...) into
// the equivalent JSON document. Other bodies pass through.
func normalizePayload(contentType string, body []byte) ([]byte, error) {
	if !strings.HasPrefix(strings.ToLower(contentType), "application/x-www-form-urlencoded") {
		return body, nil
	}

	values, err := url.ParseQuery(string(body))
	if err != nil {
		return nil, err
	}

	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	doc := []byte(`{}`)
	for _, key := range keys {
		path := formKeyPath(key)
		if path == "" {
			continue
		}
		doc, err = sjson.SetBytes(doc, path, values.Get(key))
		if err != nil {
			return nil, err
		}
	}
	return doc, nil
}

// formKeyPath maps data[PARAMS][MESSAGE] to data.PARAMS.MESSAGE. Numeric
// segments stay object keys.
func formKeyPath(key string) string {
	key = strings.ReplaceAll(key, "]", "")
	parts := strings.Split(key, "[")

	segments := make([]string, 0, len(parts))
	for _, p := range parts {
		if p == "" {
			continue
		}
		p = escapePathSegment(p)
		if isDigits(p) {
			p = ":" + p
		}
		segments = append(segments, p)
	}
	return strings.Join(segments, ".")
}

func escapePathSegment(s string) string {
	r := strings.NewReplacer(".", `\.`, "*", `\*`, "?", `\?`)
	return r.Replace(s)
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, c := range s {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}
