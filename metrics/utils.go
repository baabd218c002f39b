package metrics

import (
	metrics "github.com/rcrowley/go-metrics"
)

func newUniformSample() metrics.Sample {
	return metrics.NewUniformSample(defaultUniformReservoirSize)
}

func newExpDecaySample() metrics.Sample {
	return metrics.NewExpDecaySample(defaultExpDecayReservoirSize, defaultExpDecayAlpha)
}

func createTimer(sample metrics.Sample) metrics.Timer {
	return metrics.NewCustomTimer(metrics.NewHistogram(sample), metrics.NewMeter())
}

// measuredMethod limits the method label to the known methods, so that
// arbitrary client methods don't create new metrics.
func measuredMethod(m string) string {
	switch m {
	case "OPTIONS", "GET", "HEAD", "POST", "PUT", "PATCH", "DELETE", "TRACE", "CONNECT":
		return m
	default:
		return "_unknownmethod_"
	}
}
