package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v2"
)

func TestResilienceFlagSet(t *testing.T) {
	for _, ti := range []struct {
		msg      string
		value    string
		expected *SinkResilience
		err      string
	}{{
		msg:   "yaml",
		value: `{failures: 3, timeout: 1m, retries: -1, retry-interval: 50ms}`,
		expected: &SinkResilience{
			Failures:      3,
			Timeout:       time.Minute,
			Retries:       -1,
			RetryInterval: 50 * time.Millisecond,
		},
	}, {
		msg:      "json",
		value:    `{"failures": 7, "timeout": "2s"}`,
		expected: &SinkResilience{Failures: 7, Timeout: 2 * time.Second},
	}, {
		msg:      "empty",
		value:    "",
		expected: &SinkResilience{},
	}, {
		msg:   "not yaml",
		value: `This is not a valid YAML`,
		err:   "invalid sink-resilience value",
	}, {
		msg:   "invalid number",
		value: `{failures: many}`,
		err:   "invalid sink-resilience value",
	}, {
		msg:   "unknown field",
		value: `{breaker: 3}`,
		err:   "invalid sink-resilience value",
	}, {
		msg:   "negative failures",
		value: `{failures: -2}`,
		err:   "negative breaker failures",
	}, {
		msg:   "retries below -1",
		value: `{retries: -3}`,
		err:   "retries below -1",
	}, {
		msg:   "negative retry interval",
		value: `{retry-interval: -1s}`,
		err:   "negative retry interval",
	}} {
		t.Run(ti.msg, func(t *testing.T) {
			var r *SinkResilience
			f := newResilienceFlag(&r)
			err := f.Set(ti.value)
			if ti.err != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), ti.err)
				assert.Nil(t, r)
				assert.Equal(t, "", f.String())
				return
			}

			require.NoError(t, err)
			assert.Equal(t, ti.expected, r)
			assert.Equal(t, ti.value, f.String())
		})
	}
}

func TestResilienceFlagUnmarshalYAML(t *testing.T) {
	for _, ti := range []struct {
		msg      string
		doc      string
		expected *SinkResilience
		fail     bool
	}{{
		msg:      "valid",
		doc:      "failures: 2\nretry-interval: 1s\n",
		expected: &SinkResilience{Failures: 2, RetryInterval: time.Second},
	}, {
		msg:  "not yaml",
		doc:  `This is not a valid YAML`,
		fail: true,
	}, {
		msg:  "negative timeout",
		doc:  "timeout: -5s\n",
		fail: true,
	}} {
		t.Run(ti.msg, func(t *testing.T) {
			var r *SinkResilience
			err := yaml.Unmarshal([]byte(ti.doc), newResilienceFlag(&r))
			if ti.fail {
				assert.Error(t, err)
				assert.Nil(t, r)
				return
			}

			require.NoError(t, err)
			assert.Equal(t, ti.expected, r)
		})
	}
}
