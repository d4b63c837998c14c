/*
Package api defines the JSON surface through which a presentation layer drives
the encrypted name registration workflow.

The HTTP bridge in package httpserver serves these types; package clients
consumes them. Requests and responses are plain JSON objects:

  - SessionResponse describes the wallet session, if any
  - DomainRequest sets the candidate name, DomainResponse reports its verdict
  - RegisterRequest starts a registration, RegisterResponse carries the
    resulting ledger record
  - LedgerResponse lists all registration attempts, newest first

Failures are reported as an ErrorResponse with a stable Kind string derived
from the workflow error, so clients can react without parsing messages.
*/
package api
