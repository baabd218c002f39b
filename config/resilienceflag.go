package config

import (
	"fmt"

	"gopkg.in/yaml.v2"
)

// resilienceFlag sets the log sink resilience from a yaml or json object,
// e.g. -sink-resilience='{failures: 5, retries: 3}'. Retries -1 means no
// retries, the other values must not be negative.
type resilienceFlag struct {
	r     **SinkResilience
	value string
}

func newResilienceFlag(r **SinkResilience) *resilienceFlag {
	return &resilienceFlag{r: r}
}

func (rf *resilienceFlag) Set(value string) error {
	var r SinkResilience
	if err := yaml.UnmarshalStrict([]byte(value), &r); err != nil {
		return fmt.Errorf("invalid sink-resilience value %q: %w", value, err)
	}

	if err := r.validate(); err != nil {
		return fmt.Errorf("invalid sink-resilience value %q: %w", value, err)
	}

	*rf.r = &r
	rf.value = value
	return nil
}

func (rf *resilienceFlag) UnmarshalYAML(unmarshal func(any) error) error {
	var r SinkResilience
	if err := unmarshal(&r); err != nil {
		return err
	}

	if err := r.validate(); err != nil {
		return fmt.Errorf("invalid sink-resilience: %w", err)
	}

	*rf.r = &r
	return nil
}

func (rf *resilienceFlag) String() string {
	if rf == nil {
		return ""
	}

	return rf.value
}

func (r *SinkResilience) validate() error {
	switch {
	case r.Failures < 0:
		return fmt.Errorf("negative breaker failures: %d", r.Failures)
	case r.Timeout < 0:
		return fmt.Errorf("negative breaker timeout: %v", r.Timeout)
	case r.Retries < -1:
		return fmt.Errorf("retries below -1: %d", r.Retries)
	case r.RetryInterval < 0:
		return fmt.Errorf("negative retry interval: %v", r.RetryInterval)
	default:
		return nil
	}
}
