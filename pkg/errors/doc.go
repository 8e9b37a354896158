// Package errors defines the typed error taxonomy shared by the fetch pipeline.
//
// Every failure that crosses a package boundary is an *Error carrying an
// ErrorType. Callers branch on the type with IsType rather than on message
// text:
//
//	doc, err := client.Fetch(ctx, req, tok)
//	switch {
//	case errors.IsType(err, errors.ErrorTypeAuthExpired):
//		// reacquire the token and resubmit
//	case errors.IsType(err, errors.ErrorTypeFetchExhausted):
//		// skip this unit of work
//	}
//
// Network, rate-limit and server-error kinds are transient and only retried
// inside the fetch loop; everything else is terminal for the call.
package errors
