/*
Package webservice resolves the web service of the requests, and builds
the URL of the destination.

Resolving never fails. When a request references no known web service,
the default web service of the user is used, then the global default,
and finally an unnamed web service without configuration, so that the
traffic is still forwarded when the routing metadata is broken.
*/
package webservice

import (
	"errors"
	"net/http"
	"net/url"
	"strings"

	log "github.com/sirupsen/logrus"

	"github.com/passeplat/passeplat/auth"
	"github.com/passeplat/passeplat/definitions"
	"github.com/passeplat/passeplat/hostmatch"
)

const (
	// Header can be used instead of the PP_WSID query parameter.
	Header = "X-Passeplat-Wsid"

	// DefaultScheme of the destinations encoded in the host without a
	// scheme.
	DefaultScheme = "https"

	gatewayParamPrefix = "PP_"
)

// ErrNoDestination is returned when neither the host nor the web service
// definition provides a destination.
var ErrNoDestination = errors.New("no destination")

// Source provides the web service definitions. It is implemented by
// *definitions.Definitions.
type Source interface {
	Global(id string) (*definitions.WebService, bool)
	User(uid, id string) (*definitions.WebService, bool)
}

// WebService is the resolved web service of a request.
type WebService struct {
	ID    string
	Name  string
	Scope string

	// Unnamed is set for the fallback web service.
	Unnamed bool

	// Definition is nil for the unnamed web service.
	Definition *definitions.WebService

	// HostDestination is the scheme and host decoded from the request
	// host, if any.
	HostDestination *url.URL
}

// Tasks returns the task definitions of the web service.
func (ws *WebService) Tasks() []definitions.Task {
	if ws.Definition == nil {
		return nil
	}

	return ws.Definition.Tasks
}

// ForwardedQuery returns the raw query of the request without the
// gateway parameters. The order of the remaining parameters is kept.
func ForwardedQuery(rawQuery string) string {
	if rawQuery == "" {
		return ""
	}

	var keep []string
	for _, p := range strings.Split(rawQuery, "&") {
		if p == "" {
			continue
		}

		k := p
		if i := strings.IndexByte(p, '='); i >= 0 {
			k = p[:i]
		}

		if uk, err := url.QueryUnescape(k); err == nil {
			k = uk
		}

		if strings.HasPrefix(k, gatewayParamPrefix) {
			continue
		}

		keep = append(keep, p)
	}

	return strings.Join(keep, "&")
}

func joinQuery(a, b string) string {
	switch {
	case a == "":
		return b
	case b == "":
		return a
	default:
		return a + "&" + b
	}
}

// DestinationURL builds the URL of the destination for a request. A
// destination encoded in the request host takes precedence over the
// destination template of the definition.
func (ws *WebService) DestinationURL(r *http.Request, u auth.User) (*url.URL, error) {
	query := ForwardedQuery(r.URL.RawQuery)
	if ws.HostDestination != nil {
		d := *ws.HostDestination
		d.Path = r.URL.Path
		d.RawPath = r.URL.RawPath
		d.RawQuery = query
		return &d, nil
	}

	if ws.Definition == nil || ws.Definition.Destination == "" {
		return nil, ErrNoDestination
	}

	t := ws.Definition.Destination
	requestPath := strings.TrimPrefix(r.URL.EscapedPath(), "/")
	hasPath := strings.Contains(t, "{path}")
	t = strings.NewReplacer(
		"{uid}", url.PathEscape(u.ID),
		"{wsid}", url.PathEscape(ws.ID),
		"{path}", requestPath,
	).Replace(t)

	d, err := url.Parse(t)
	if err != nil {
		return nil, err
	}

	if !hasPath && requestPath != "" {
		base := strings.TrimSuffix(d.EscapedPath(), "/")
		d.Path = strings.TrimSuffix(d.Path, "/") + "/" + strings.TrimPrefix(r.URL.Path, "/")
		d.RawPath = ""
		if r.URL.RawPath != "" {
			d.RawPath = base + "/" + requestPath
		}
	}

	d.RawQuery = joinQuery(d.RawQuery, query)
	return d, nil
}

// RequestedID returns the web service id referenced by the request.
func RequestedID(r *http.Request) string {
	if id := r.URL.Query().Get(auth.WebServiceParam); id != "" {
		return id
	}

	return r.Header.Get(Header)
}

// Resolver finds the web service of the requests.
type Resolver struct {
	source Source
	hosts  auth.Classifier
}

func NewResolver(s Source, c auth.Classifier) *Resolver {
	return &Resolver{source: s, hosts: c}
}

func (r *Resolver) hostDestination(host string) *url.URL {
	if r.hosts == nil || r.hosts.Classify(host) != hostmatch.WithDestination {
		return nil
	}

	l, err := auth.ParseDestinationLabel(hostmatch.FirstLabel(host))
	if err != nil {
		return nil
	}

	scheme := l.Scheme
	if scheme == "" {
		scheme = DefaultScheme
	}

	return &url.URL{Scheme: strings.ToLower(scheme), Host: l.Destination}
}

func (r *Resolver) lookup(u auth.User, id string) (*definitions.WebService, bool) {
	if r.source == nil || id == "" {
		return nil, false
	}

	if u.ID != "" {
		if d, ok := r.source.User(u.ID, id); ok {
			return d, true
		}
	}

	return r.source.Global(id)
}

// Resolve returns the web service of the request. It never fails.
func (r *Resolver) Resolve(req *http.Request, u auth.User) *WebService {
	ws := &WebService{HostDestination: r.hostDestination(req.Host)}
	id := RequestedID(req)
	d, ok := r.lookup(u, id)
	if !ok {
		if id != "" {
			log.Debugf("web service not found: %s, user: %s", id, u.ID)
		}

		d, ok = r.lookup(u, definitions.DefaultWebServiceID)
	}

	if !ok {
		ws.Unnamed = true
		return ws
	}

	ws.ID, ws.Name, ws.Scope, ws.Definition = d.ID, d.Name, d.Scope, d
	return ws
}
