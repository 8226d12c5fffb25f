package adapter

import (
	"net/http"
	"net/url"

	"marketfetch/internal/fetch/failure"
)

// Profile is the per-provider strategy value that parameterizes the shared
// adapter engine: one engine, many providers, no subclassing.
type Profile struct {
	// Name is the provider's documented display name, unique per provider.
	// It appears as the Source of every response and in every failure.
	Name string

	// BaseURL is the provider's API root.
	BaseURL string

	// RequestsPerMinute is the provider-documented quota, e.g. 5/min on
	// free tiers.
	RequestsPerMinute int

	// CredentialEnv names the environment variable holding the API key.
	// Empty means the provider needs no credential.
	CredentialEnv string

	// Authorize attaches the credential to an outbound request. Called with
	// cloned params/headers, so mutation is safe.
	Authorize func(params url.Values, headers http.Header, credential string)

	// ClassifySentinel inspects a syntactically valid 2xx payload for
	// provider-specific failure sentinels (rate-limit notes delivered with
	// status 200, "no data" shapes). Returns nil for normal payloads.
	ClassifySentinel func(payload []byte) *failure.Failure
}
