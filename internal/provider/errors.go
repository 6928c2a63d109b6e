package provider

import "errors"

// Sentinel errors for provider operations.
var (
	// ErrRateLimit indicates the provider returned a rate limit response.
	ErrRateLimit = errors.New("provider rate limited")

	// ErrContextLength indicates the request exceeded the model's context window.
	ErrContextLength = errors.New("context length exceeded")

	// ErrProviderDown indicates the provider is temporarily unavailable.
	ErrProviderDown = errors.New("provider unavailable")

	// ErrAllProviders indicates every provider in a chain has failed.
	ErrAllProviders = errors.New("all providers failed")

	// ErrNoProvider indicates no provider is configured.
	ErrNoProvider = errors.New("no provider configured")

	// ErrEmptyResponse indicates the model returned no text.
	ErrEmptyResponse = errors.New("empty model response")
)
