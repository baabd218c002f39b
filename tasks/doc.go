/*
Package tasks defines the plugin interface of the pipeline tasks.

A web service definition lists the tasks to run for its transactions.
Every task type is implemented by a Spec, registered with a Registry
under its name and version. The pipeline creates the task instances
from the options found in the definition, and executes them in the
phases of the transaction that the Spec declares:

	destinationRequestPreparation  before the request is forwarded
	startedReceiving               when the destination response arrived
	emittedResponse                after the response was sent to the client
	destinationReachFailure        instead of startedReceiving and
	                               emittedResponse when the destination
	                               could not be reached

Tasks read and modify the transaction through the analyzable content of
the Context. A task can stop the forwarding of the request by calling
StopRequest on the content, after it constructed the response to be
emitted instead.

Task errors and panics never break the transaction. They are logged and
collected as loggable errors of the transaction.

Options

The options of a task are decoded with Options.Decode into the option
struct of the task. Unknown options are rejected, so that typos in the
definitions are reported when the pipeline is built:

	type options struct {
		Window tasks.Duration `json:"window"`
	}

	var o options
	if err := opts.Decode(&o); err != nil {
		return nil, err
	}
*/
package tasks
