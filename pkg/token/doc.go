// Package token captures the vendor API's bearer token from a real browser.
//
// The vendor issues short-lived tokens only to its own web front end, so an
// Acquirer opens the public results page in Chrome and watches outgoing
// requests until one to the API domain carries an Authorization: Bearer
// header. The first such request wins.
//
// Capture moves through the states
//
//	idle -> browser_launching -> page_loading -> listening -> captured | failed
//
// Only one capture runs at a time per process. Failures are
// errors.ErrorTypeTokenCapture and wrap ErrLaunch or ErrObservationTimeout
// so callers can tell a missing browser from a slow page.
package token
