/*
Package passeplat provides an authenticating HTTP gateway that forwards
the requests of its users to configured destinations, runs a pipeline of
tasks on every transaction, and records the transactions in a log sink
for later analysis.

Passeplat works as an HTTP reverse proxy. The incoming requests are
authenticated with a user token, and mapped to a web service that
defines the destination URL and the tasks executed around the exchange
with the destination. Next to HTTP and HTTPS, the destinations can be
FTP servers.

# Quickstart

Create a config directory with a global web service:

	mkdir -p config/global/webservices
	cat > config/global/webservices/default.yaml <<EOF
	destination: https://www.example.org/{path}
	EOF

Start the gateway:

	passeplat -config-dir config

Check that it forwards the requests:

	curl localhost:8080/hello

Without any users configured, the gateway is open. With the
config/global/users.yaml file, every request needs a token:

	alice:
	  token: secret

	curl 'localhost:8080/hello?PP_UID=alice&PP_TOKEN=secret'

# Configuration directory

The config directory contains the trusted host patterns, the users, and
the global and per-user web services:

	<root>/global/trusted_hosts.yaml
	<root>/global/users.yaml
	<root>/global/webservices/<wsid>.yaml
	<root>/users/<uid>/webservices/<wsid>.yaml

JSON files are accepted, too. When started with -watch-config-dir, the
gateway reloads the directory when its files change. A configuration
that fails to load doesn't replace the active one.

# Web services

The web service of a request is selected by the PP_WSID query parameter
or the X-Passeplat-Wsid header. Without them, or when the id is not
found, the default web service of the user or the global one is used.
A web service contains the destination URL template and the list of
tasks:

	name: Orders
	destination: https://orders.example.org/{path}
	tasks:
	- type: alter
	  options:
	    headers: [authorization]
	- type: cache
	  options:
	    window: 1h

# Tasks and conditions

Tasks are executed in the phases of a transaction: while the request is
received, before the destination request is sent, after the destination
responded, after the response was emitted, and when the destination
could not be reached. Every task can be restricted by conditions. The
built-in tasks and conditions are registered in the tasks/builtin and
conditions/builtin packages.

# Log sinks

The finished transactions are stored in one of the log sinks: memory,
elastic or sqlite. The writes to the sink go through a circuit breaker,
and failed writes are retried with backoff. The cache and fallback
tasks search the sink for previous responses.

# Support endpoints

The support listener serves the Prometheus metrics on /metrics and a
health check on /healthz.

# Embedding

The gateway can be started from Go code:

	package main

	import "github.com/passeplat/passeplat"

	func main() {
		log.Fatal(passeplat.Run(passeplat.Options{
			Address:   ":8080",
			ConfigDir: "/etc/passeplat",
		}))
	}

New returns a Gateway whose Handler can be mounted into an existing
server.
*/
package passeplat
