/*
Package hostmatch classifies the host names of the incoming requests by
the trusted host patterns of the gateway.

A host can be a base host of the gateway, e.g. gw.example.org, it can
carry a user id in its first label, e.g. user42.gw.example.org, or it can
carry an encoded destination and a user id, e.g.
prod--example--com---user42.gw.example.org. Hosts that match none of the
configured patterns are unknown, and the gateway doesn't serve them.

The results are cached by the raw host value. When the cache grows above
its size limit, the most recently added half of the entries is kept.
*/
package hostmatch

import (
	"fmt"
	"net"
	"regexp"
	"strings"
	"sync"
)

// DefaultCacheSize is used when Options.CacheSize is not set.
const DefaultCacheSize = 10000

// Kind is the classification of a host.
type Kind int

const (
	Unknown Kind = iota
	Base
	WithUserID
	WithDestination
)

func (k Kind) String() string {
	switch k {
	case Base:
		return "base"
	case WithUserID:
		return "with-user-id"
	case WithDestination:
		return "with-destination"
	default:
		return "unknown"
	}
}

// Patterns contains the regular expressions of the trusted hosts. The
// patterns are matched against the whole host name, without the port,
// case insensitive.
type Patterns struct {
	Base            []string `json:"base"`
	WithDestination []string `json:"with_destination"`
	WithUserID      []string `json:"with_user_id"`
}

// Empty tells whether no patterns are configured.
func (p Patterns) Empty() bool {
	return len(p.Base) == 0 && len(p.WithDestination) == 0 && len(p.WithUserID) == 0
}

type Options struct {

	// CacheSize limits the number of cached classifications. Defaults to
	// DefaultCacheSize.
	CacheSize int
}

type group struct {
	kind     Kind
	patterns []*regexp.Regexp
}

// Matcher classifies hosts. It is safe for concurrent use.
type Matcher struct {
	groups    []group
	cacheSize int

	mu    sync.Mutex
	cache map[string]Kind
	order []string
}

func compile(patterns []string) ([]*regexp.Regexp, error) {
	var rx []*regexp.Regexp
	for _, p := range patterns {
		r, err := regexp.Compile("(?i)^(?:" + p + ")$")
		if err != nil {
			return nil, fmt.Errorf("invalid host pattern %q: %w", p, err)
		}

		rx = append(rx, r)
	}

	return rx, nil
}

// New creates a matcher. The pattern groups are tried in the order: with
// destination, with user id, base.
func New(p Patterns, o Options) (*Matcher, error) {
	if o.CacheSize <= 0 {
		o.CacheSize = DefaultCacheSize
	}

	m := &Matcher{
		cacheSize: o.CacheSize,
		cache:     make(map[string]Kind),
	}

	for _, g := range []struct {
		kind     Kind
		patterns []string
	}{
		{WithDestination, p.WithDestination},
		{WithUserID, p.WithUserID},
		{Base, p.Base},
	} {
		rx, err := compile(g.patterns)
		if err != nil {
			return nil, err
		}

		m.groups = append(m.groups, group{kind: g.kind, patterns: rx})
	}

	return m, nil
}

// StripPort removes the port and the trailing dot from a host value.
func StripPort(host string) string {
	if h, _, err := net.SplitHostPort(host); err == nil {
		host = h
	}

	return strings.TrimSuffix(host, ".")
}

// FirstLabel returns the first label of the host name, without the port.
func FirstLabel(host string) string {
	host = StripPort(host)
	if i := strings.IndexByte(host, '.'); i >= 0 {
		return host[:i]
	}

	return host
}

func (m *Matcher) classify(host string) Kind {
	h := StripPort(host)
	for _, g := range m.groups {
		for _, rx := range g.patterns {
			if rx.MatchString(h) {
				return g.kind
			}
		}
	}

	return Unknown
}

// Classify returns the kind of the host. Hosts that match no pattern are
// Unknown.
func (m *Matcher) Classify(host string) Kind {
	m.mu.Lock()
	if k, ok := m.cache[host]; ok {
		m.mu.Unlock()
		return k
	}

	m.mu.Unlock()
	k := m.classify(host)

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.cache[host]; ok {
		return k
	}

	m.cache[host] = k
	m.order = append(m.order, host)
	if len(m.order) > m.cacheSize {
		keep := m.cacheSize / 2
		evict := m.order[:len(m.order)-keep]
		for _, h := range evict {
			delete(m.cache, h)
		}

		m.order = append([]string(nil), m.order[len(m.order)-keep:]...)
	}

	return k
}

// CacheLen returns the number of cached classifications.
func (m *Matcher) CacheLen() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.cache)
}
