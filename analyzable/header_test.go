package analyzable

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHeader(t *testing.T) {
	h := NewHeader("destination_response")
	h.Add("Content-Type", "application/json")
	h.Add("X-Foo", "1")
	h.Add("x-foo", "2")

	assert.Equal(t, "application/json", h.Get("content-type"))
	assert.Equal(t, []string{"1", "2"}, h.Values("X-FOO"))

	h.Set("X-Foo", "3")
	assert.Equal(t, []Field{
		{Key: "Content-Type", Value: "application/json"},
		{Key: "X-Foo", Value: "3"},
	}, h.Fields())

	h.Del("CONTENT-TYPE")
	assert.False(t, h.Has("Content-Type"))
	assert.Equal(t, `[{"key":"X-Foo","value":"3"}]`, h.JSON())
}

func TestHeaderHTTPConversion(t *testing.T) {
	hh := http.Header{"B": {"2"}, "A": {"1", "11"}}
	h := NewHeader("p")
	h.FromHTTP(hh)

	assert.Equal(t, []Field{{"A", "1"}, {"A", "11"}, {"B", "2"}}, h.Fields())
	assert.Equal(t, hh, h.ToHTTP())
	assert.Equal(t, map[string]interface{}{"p_headers": `[{"key":"A","value":"1"},{"key":"A","value":"11"},{"key":"B","value":"2"}]`}, h.DataToLog())
}

func TestEmptyHeaderJSON(t *testing.T) {
	assert.Equal(t, "[]", NewHeader("p").JSON())
}
