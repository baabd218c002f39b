package builtin

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/passeplat/passeplat/logsink/memory"
	"github.com/passeplat/passeplat/tasks"
)

func TestMakeRegistry(t *testing.T) {
	r := MakeRegistry(Options{})
	assert.Equal(t, []string{"alter", "cache", "fallback", "headers", "openapi", "stopOnCondition", "transcode"}, r.Names())

	s, ok := r.Get("fallback", 0)
	require.True(t, ok)
	_, err := s.CreateTask(nil)
	var merr *tasks.MissingParameterError
	assert.ErrorAs(t, err, &merr)

	r = MakeRegistry(Options{Sink: memory.New()})
	s, _ = r.Get("fallback", 0)
	_, err = s.CreateTask(nil)
	assert.NoError(t, err)
}
