// Package logger wraps zerolog behind a small structured logging interface.
//
// Output goes to stderr: coloured console lines when attached to a terminal,
// JSON lines otherwise, optionally duplicated to a file.
//
//	if err := logger.Initialize(&cfg.Logging); err != nil {
//	    return err
//	}
//	log := logger.GetLogger().WithField("component", "fetcher")
//	log.InfoWithFields("fetched", map[string]interface{}{"url": u, "status_code": 200})
//
// Tests use NewTestLogger to capture entries, or NewNopLogger to discard them.
package logger
