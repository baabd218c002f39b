/*
Package analyzable implements the per-transaction telemetry aggregate.

Every request handled by the gateway gets its own Content. The content owns
a tree of components, each describing one observable facet of the
transaction: the initiator request, the request sent to the destination, the
destination response, the timing checkpoints, the resolved web service and
its status, and the structured errors collected on the way. Components are
created with the content, or on first access through GetOrCreate for
components contributed by tasks.

The tree is flattened for export by DataToLog. Components are merged in
tree-walk order, and a component later in the walk overwrites the keys of an
earlier one with the same name.

Body components store at most a configured number of bytes. The real length
of the streamed data is tracked separately, and a truncated body is reported
as not analyzable:

	b := analyzable.NewBody("destination_response", 10)
	b.Write([]byte("HelloWorldFoo"))
	b.String()       // "HelloWorld"
	b.RealLength()   // 13
	b.IsAnalyzable() // false

Timing checkpoints and execution trace timestamps are kept as decimal
seconds, so that subtracting and ordering two raw timestamps never loses
sub-microsecond precision.
*/
package analyzable
