package analyzable

import (
	"sort"
	"strconv"

	"github.com/shopspring/decimal"
)

// Collect walks the whole component tree depth first and returns the trace
// entries of every component that carries an execution trace, ordered by
// timestamp. Equal timestamps keep the walk order.
func Collect(root Component) []TraceEntry {
	var entries []TraceEntry
	walk(root, func(c Component) {
		if tp, ok := c.(TraceProvider); ok {
			entries = append(entries, tp.ExecutionTrace().Entries()...)
		}
	})

	sort.SliceStable(entries, func(i, j int) bool {
		return timestampLess(entries[i].Timestamp, entries[j].Timestamp)
	})

	return entries
}

// CollectExported returns the collected entries in serialized form.
func CollectExported(root Component, p Process) []ExportedTraceEntry {
	entries := Collect(root)
	x := make([]ExportedTraceEntry, len(entries))
	for i, e := range entries {
		x[i] = e.Export(p)
	}

	return x
}

// timestampLess compares two raw timestamps exactly. When either of them
// is not a valid decimal, it falls back to comparing them as floats.
func timestampLess(a, b string) bool {
	da, erra := decimal.NewFromString(a)
	db, errb := decimal.NewFromString(b)
	if erra == nil && errb == nil {
		return da.LessThan(db)
	}

	fa, _ := strconv.ParseFloat(a, 64)
	fb, _ := strconv.ParseFloat(b, 64)
	return fa < fb
}

func walk(c Component, f func(Component)) {
	if c == nil {
		return
	}

	f(c)
	for _, ci := range c.Children() {
		walk(ci, f)
	}
}
