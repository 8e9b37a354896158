// Package bha is the authenticated client for the British Horseracing
// Authority results API.
//
// Every call carries a bearer token captured by package token. Responses
// are kept as raw JSON and never decoded beyond a validity check.
//
// Failures are reported with the pkg/errors taxonomy:
//
//	401, 403          auth_expired, returned after a single call
//	other 4xx         client_error
//	429, 5xx, network retried with backoff, then fetch_exhausted
//	invalid JSON body malformed_response
//	ctx deadline      fetch_timeout
package bha
