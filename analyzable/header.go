package analyzable

import (
	"encoding/json"
	"net/http"
	"sort"
	"strings"
	"sync"
)

// Field is a single header line.
type Field struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// Header keeps header fields in their original order. Lookups are case
// insensitive.
type Header struct {
	mu     sync.Mutex
	prefix string
	fields []Field
}

// NewHeader creates an empty header component.
func NewHeader(prefix string) *Header {
	return &Header{prefix: prefix}
}

// FromHTTP replaces the fields with the ones in h. The keys are sorted,
// because http.Header doesn't preserve the order.
func (h *Header) FromHTTP(hh http.Header) {
	keys := make([]string, 0, len(hh))
	for k := range hh {
		keys = append(keys, k)
	}

	sort.Strings(keys)
	var fields []Field
	for _, k := range keys {
		for _, v := range hh[k] {
			fields = append(fields, Field{Key: k, Value: v})
		}
	}

	h.Replace(fields)
}

// ToHTTP returns the fields as an http.Header.
func (h *Header) ToHTTP() http.Header {
	h.mu.Lock()
	defer h.mu.Unlock()
	hh := make(http.Header)
	for _, f := range h.fields {
		hh.Add(f.Key, f.Value)
	}

	return hh
}

// Replace sets all the fields at once.
func (h *Header) Replace(fields []Field) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.fields = append([]Field(nil), fields...)
}

// Fields returns a copy of the fields.
func (h *Header) Fields() []Field {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]Field(nil), h.fields...)
}

func (h *Header) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.fields)
}

// Get returns the first value of key, or the empty string.
func (h *Header) Get(key string) string {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, f := range h.fields {
		if strings.EqualFold(f.Key, key) {
			return f.Value
		}
	}

	return ""
}

// Values returns all the values of key.
func (h *Header) Values(key string) []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	var v []string
	for _, f := range h.fields {
		if strings.EqualFold(f.Key, key) {
			v = append(v, f.Value)
		}
	}

	return v
}

// Has tells whether the header contains key.
func (h *Header) Has(key string) bool {
	return len(h.Values(key)) > 0
}

// Set replaces all the values of key with value. The new field takes the
// position of the first existing one.
func (h *Header) Set(key, value string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	var (
		fields []Field
		set    bool
	)

	for _, f := range h.fields {
		if !strings.EqualFold(f.Key, key) {
			fields = append(fields, f)
			continue
		}

		if !set {
			fields = append(fields, Field{Key: key, Value: value})
			set = true
		}
	}

	if !set {
		fields = append(fields, Field{Key: key, Value: value})
	}

	h.fields = fields
}

// Add appends a field.
func (h *Header) Add(key, value string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.fields = append(h.fields, Field{Key: key, Value: value})
}

// Del removes all the fields of key.
func (h *Header) Del(key string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	fields := h.fields[:0]
	for _, f := range h.fields {
		if !strings.EqualFold(f.Key, key) {
			fields = append(fields, f)
		}
	}

	h.fields = fields
}

// Map applies f to every field value, in place.
func (h *Header) Map(f func(Field) string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for i := range h.fields {
		h.fields[i].Value = f(h.fields[i])
	}
}

// JSON returns the fields encoded as an array of {key, value} objects.
func (h *Header) JSON() string {
	fields := h.Fields()
	if fields == nil {
		fields = []Field{}
	}

	b, err := json.Marshal(fields)
	if err != nil {
		return "[]"
	}

	return string(b)
}

func (h *Header) ComponentName() string { return "Header" }
func (h *Header) Children() []Component { return nil }

func (h *Header) DataToLog() map[string]interface{} {
	return map[string]interface{}{h.prefix + "_headers": h.JSON()}
}
