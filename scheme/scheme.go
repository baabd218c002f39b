/*
Package scheme drives the exchange with the destinations.

The processors of the wire protocols register for the URL schemes they
handle. For every transaction, the proxy dispatches the destination
scheme to the registered processors, and calls them in registration
order. A processor forwards the prepared destination request, streams
the response to the client while capturing it in the analyzable
content, and fires the pipeline phases through the Transaction.

Processors never return errors. Failures to reach the destination are
reported with Transaction.Fail, that runs the destinationReachFailure
phase and makes sure that the client receives a response.

The lifecycle of a transaction is tracked by a state machine:

	INIT -> CONNECTING -> SENDING_REQUEST -> AWAITING_RESPONSE -> RECEIVING_BODY -> COMPLETE
	                                                                             \-> FAILED

Transitions go only forward. Any non-terminal state can move to FAILED,
and the states in between can be skipped, e.g. when a protocol has no
separate request sending step.
*/
package scheme

import (
	"strings"
	"sync"
)

// Processor forwards transactions to the destinations of one or more
// URL schemes.
type Processor interface {

	// Schemes returns the lowercase URL schemes handled by the
	// processor.
	Schemes() []string

	// Process forwards the transaction. It must release every acquired
	// resource before returning, and report failures with
	// Transaction.Fail.
	Process(*Transaction)
}

// Registry of the processors by scheme.
type Registry struct {
	mu         sync.RWMutex
	processors map[string][]Processor
}

func NewRegistry() *Registry {
	return &Registry{processors: make(map[string][]Processor)}
}

// Register adds the processors for all their schemes.
func (r *Registry) Register(p ...Processor) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, pi := range p {
		for _, s := range pi.Schemes() {
			s = strings.ToLower(s)
			r.processors[s] = append(r.processors[s], pi)
		}
	}
}

// Dispatch returns the processors registered for a scheme, in
// registration order.
func (r *Registry) Dispatch(scheme string) []Processor {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.processors[strings.ToLower(scheme)]
}
