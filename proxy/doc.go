/*
Package proxy implements the entry point of the gateway: an http.Handler
that receives the initiator requests and drives them through the
processing of a transaction.

Processing

For every incoming request, the proxy:

  - checks that the host of the request is trusted, when trusted host
    patterns are configured,
  - authenticates the user,
  - resolves the web service, falling back to the unnamed web service,
  - creates the analyzable content of the transaction,
  - captures the request body and prepares the destination request,
  - runs the destinationRequestPreparation phase of the pipeline of the
    web service,
  - when a task stopped the request, emits the response constructed by
    the tasks, otherwise dispatches the transaction to the scheme
    processors registered for the scheme of the destination,
  - prints the access log entry, and hands the content to the recorder.

The phases startedReceiving, emittedResponse and destinationReachFailure
are run by the transaction, see the scheme package.

Errors

Requests from untrusted hosts, unauthenticated requests and failures of
the user repository are rejected with a short plain text response. The
response never contains internal details. Instead, the body and the
X-Passeplat-Error-Code header carry an opaque code, e.g.:

    Internal Server Error (code: PP-500-9.4)

The first number after the status identifies the error, the numbers
after the dot the stage of the processing where it happened. Panics
of the tasks, conditions and scheme processors are recovered and
answered this way, when the response was not started yet.

Runtime

The configuration derived components, the host matcher, the
authenticator, the resolver and the pipeline engine, can be replaced
atomically with Update, while the proxy is serving.
*/
package proxy
