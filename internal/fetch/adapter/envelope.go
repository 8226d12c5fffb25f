package adapter

import (
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"
)

// Request is the logical request every adapter accepts regardless of the
// wrapped provider's native API shape.
type Request struct {
	// ID identifies the request for logging. Assigned by the adapter when
	// empty.
	ID string

	// Endpoint is the path below the provider's base URL, e.g. "/quote/AAPL".
	Endpoint string

	// Params are the query parameters before authorization.
	Params url.Values

	// Headers are extra request headers, if any.
	Headers http.Header
}

// Response is the normalized envelope every adapter produces. Callers only
// ever see envelopes or typed domain records parsed from them; the raw
// payload is discarded after parsing.
type Response struct {
	Payload    []byte
	HTTPStatus int
	Timestamp  time.Time

	// Source is the provider's documented display name, e.g.
	// "Alpha Vantage". Consumed by the attribution contract.
	Source string
}

// CacheKey derives a deterministic key for the caching decorator. Identical
// logical requests to the same provider always map to the same key;
// parameter order does not matter.
func (r Request) CacheKey(provider string) string {
	var b strings.Builder
	b.WriteString(provider)
	b.WriteByte(':')
	b.WriteString(r.Endpoint)

	if len(r.Params) > 0 {
		keys := make([]string, 0, len(r.Params))
		for k := range r.Params {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			b.WriteByte('?')
			b.WriteString(k)
			b.WriteByte('=')
			b.WriteString(strings.Join(r.Params[k], ","))
		}
	}
	return b.String()
}

func cloneValues(v url.Values) url.Values {
	out := make(url.Values, len(v))
	for k, vals := range v {
		out[k] = append([]string(nil), vals...)
	}
	return out
}
