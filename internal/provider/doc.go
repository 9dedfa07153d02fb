// Package provider is the completion gateway: one contract over the remote
// text-generation backends.
//
// # Overview
//
// The dispatcher calls Gateway.Complete with a route, the conversation
// history (ending with the new user turn) and a system instruction:
//
//	text, err := gw.Complete(ctx, provider.RouteDefault, history, system)
//
// RouteDefault is served by Gemini, RouteAlternate by OpenRouter.
//
// # Errors
//
// Every failure other than context cancellation is a *ProviderError carrying
// a Kind:
//
//   - rate_limited: HTTP 429
//   - not_found: 401, 403, 404 (bad key or unknown model)
//   - transport_failure: network errors, other statuses, undecodable bodies
//   - empty_response: a 200 with no usable text
//
// The gateway never retries. When ctx is cancelled the in-flight HTTP call is
// abandoned and ctx's own error is returned so callers can tell a stop from
// a failure.
//
// # System instruction
//
// ComposeSystem renders the persona followed by the user's memories:
//
//	<base>
//
//	[USER MEMORIES]:
//	[2025-01-31] first item
//	[2025-02-01] second item
package provider
