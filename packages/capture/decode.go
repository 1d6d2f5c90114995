package capture

import (
	"fmt"
	"net/url"
	"strings"
)

// Params is the flat key to value mapping decoded from a request's query string.
type Params map[string]string

// DecodeError reports a URL whose query string could not be decoded.
type DecodeError struct {
	URL    string
	Reason string
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode %q: %s", e.URL, e.Reason)
}

// DecodeParams splits the raw query of rawURL on '&', each pair on its first '=',
// and only then percent-decodes keys and values. Encoded delimiters inside a
// value survive intact and '+' stays a plus sign. When a key repeats, the last
// occurrence wins.
func DecodeParams(rawURL string) (Params, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, &DecodeError{URL: rawURL, Reason: err.Error()}
	}
	if u.RawQuery == "" {
		return nil, &DecodeError{URL: rawURL, Reason: "no query string"}
	}

	params := make(Params)
	for _, pair := range strings.Split(u.RawQuery, "&") {
		if pair == "" {
			continue
		}
		rawKey, rawValue, _ := strings.Cut(pair, "=")
		key, err := url.PathUnescape(rawKey)
		if err != nil {
			return nil, &DecodeError{URL: rawURL, Reason: fmt.Sprintf("key %q: %v", rawKey, err)}
		}
		value, err := url.PathUnescape(rawValue)
		if err != nil {
			return nil, &DecodeError{URL: rawURL, Reason: fmt.Sprintf("value of %q: %v", key, err)}
		}
		params[key] = value
	}
	return params, nil
}
