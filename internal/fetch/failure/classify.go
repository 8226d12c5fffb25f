package failure

import "strings"

// Keyword families checked in fixed priority order. Configuration problems
// must be surfaced before they can be mistaken for retryable network noise,
// so the configuration family is checked first.
var (
	configurationTerms = []string{
		"api key", "api_key", "apikey", "missing key", "invalid key",
		"unauthorized", "not configured", "configuration", "credential",
		"401", "forbidden", "403",
	}
	rateLimitTerms = []string{
		"rate limit", "rate-limit", "too many requests", "429",
		"quota exceeded", "call frequency", "throttle",
	}
	networkTerms = []string{
		"network", "timeout", "timed out", "connection", "refused",
		"unreachable", "eof", "reset by peer", "502", "503", "504", "500",
	}
	notFoundTerms = []string{
		"not found", "404", "no data", "unknown symbol", "does not exist",
	}
	validationTerms = []string{
		"invalid", "validation", "parse", "unmarshal", "malformed",
		"unexpected end of json",
	}
)

// Classify maps a raw error to a Failure using provider-agnostic keyword
// families. The first matching family wins; anything unmatched becomes an
// Unknown failure, which stays retryable.
func Classify(err error, provider string) *Failure {
	if err == nil {
		return nil
	}

	msg := err.Error()
	lower := strings.ToLower(msg)

	switch {
	case containsAny(lower, configurationTerms):
		f := Configuration(provider, msg)
		f.Cause = err
		return f
	case containsAny(lower, rateLimitTerms):
		f := RateLimit(provider, msg, 0)
		f.Cause = err
		return f
	case containsAny(lower, networkTerms):
		return Network(provider, msg, err)
	case containsAny(lower, notFoundTerms):
		f := NotFound(provider, msg)
		f.Cause = err
		return f
	case containsAny(lower, validationTerms):
		f := Validation(provider, msg)
		f.Cause = err
		return f
	default:
		return Unknown(provider, msg, err)
	}
}

func containsAny(s string, terms []string) bool {
	for _, t := range terms {
		if strings.Contains(s, t) {
			return true
		}
	}
	return false
}
