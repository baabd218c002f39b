package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v2"
)

func TestListFlag(t *testing.T) {
	const yamlList = `- http://es1.test:9200
- http://es2.test:9200`

	urls := []string{"http://es1.test:9200", "http://es2.test:9200"}

	t.Run("custom separator", func(t *testing.T) {
		current := newListFlag(" ")
		require.NoError(t, current.Set("http://es1.test:9200 http://es2.test:9200"))
		assert.Equal(t, urls, current.Get())

		require.NoError(t, yaml.Unmarshal([]byte(yamlList), current))
		assert.Equal(t, urls, current.Get())
		assert.Equal(t, "http://es1.test:9200 http://es2.test:9200", current.String(), "value composed by the yaml parser")
	})

	t.Run("comma separator", func(t *testing.T) {
		f := commaListFlag()
		require.NoError(t, f.Set("http://es1.test:9200,http://es2.test:9200"))
		assert.Equal(t, urls, f.Get())
		assert.Equal(t, "http://es1.test:9200,http://es2.test:9200", f.String())
	})

	for _, test := range []struct {
		msg     string
		allowed []string
		value   string
		yaml    string
		fail    bool
	}{{
		msg:     "allowed values",
		allowed: []string{"memory", "elastic", "sqlite"},
		value:   "memory,sqlite",
		yaml:    "[elastic, sqlite]",
	}, {
		msg:     "not allowed value",
		allowed: []string{"memory", "elastic"},
		value:   "memory,sqlite",
		yaml:    "[elastic, sqlite]",
		fail:    true,
	}} {
		t.Run(test.msg, func(t *testing.T) {
			f := commaListFlag(test.allowed...)
			if test.fail {
				assert.Error(t, f.Set(test.value))
				assert.Error(t, yaml.Unmarshal([]byte(test.yaml), f))
				return
			}

			assert.NoError(t, f.Set(test.value))
			assert.NoError(t, yaml.Unmarshal([]byte(test.yaml), f))
		})
	}

	t.Run("unmarshal error", func(t *testing.T) {
		current := commaListFlag()
		assert.Error(t, yaml.Unmarshal([]byte("invalid yaml"), current))
	})

	t.Run("empty value", func(t *testing.T) {
		f := commaListFlag()
		require.NoError(t, f.Set("http://es1.test:9200"))
		require.NoError(t, f.Set(""))
		assert.Equal(t, "", f.String())
		assert.Nil(t, f.Get())
	})

	t.Run("nil flag", func(t *testing.T) {
		var f *listFlag
		assert.NoError(t, f.Set("foo"))
		assert.Equal(t, "", f.String())
		assert.Nil(t, f.Get())
	})
}
