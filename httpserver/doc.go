/*
Package httpserver exposes the registration workflow to an external
presentation layer over HTTP.

# Routes

	POST /api/wallet/connect      negotiate a wallet session
	POST /api/wallet/disconnect   forget the session
	GET  /api/wallet/session      current session
	PUT  /api/domain              set the candidate name (probed after a debounce)
	GET  /api/domain              candidate name, verdict and submit state
	POST /api/domain/check        probe a name synchronously
	POST /api/domain/register     register a name, waits for the transaction
	GET  /api/ledger              registration attempts, newest first

The server also serves /livez, /readyz, /drain and /undrain for orchestration
and, when configured, Prometheus metrics on a separate listener.

Errors are JSON encoded api.ErrorResponse values. A failed registration that
was recorded in the ledger answers with an api.RegisterResponse holding both
the failed record and the error.
*/
package httpserver
