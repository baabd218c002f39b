/*
Package definitions loads the configuration entities of the gateway from
the config directory:

	<root>/global/trusted_hosts.{json,yaml,yml}
	<root>/global/users.{json,yaml,yml}
	<root>/global/webservices/<wsid>.{json,yaml,yml}
	<root>/users/<uid>/webservices/<wsid>.{json,yaml,yml}

The web service with the id "default" in a scope is used for the requests
of that scope that don't reference a known web service.

Example web service:

	name: Orders
	destination: https://orders.example.org/{uid}/{path}
	tasks:
	- type: alter
	  options:
	    headers: [authorization]
	- type: cache
	  options:
	    window: 1h
	  conditions:
	  - type: method
	    options:
	      methods: [GET]

The definitions are read-only after loading. A reload creates a new
instance.
*/
package definitions

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	log "github.com/sirupsen/logrus"

	"github.com/passeplat/passeplat/auth"
	"github.com/passeplat/passeplat/configdir"
	"github.com/passeplat/passeplat/hostmatch"
)

const (
	DefaultWebServiceID = "default"

	ScopeGlobal = "global"
	ScopeUser   = "user"

	globalDir      = "global"
	usersDir       = "users"
	webServicesDir = "webservices"
	trustedHosts   = "trusted_hosts"
	usersFile      = "users"
)

// Condition gates the execution of a task.
type Condition struct {
	Type    string                 `json:"type"`
	Options map[string]interface{} `json:"options,omitempty"`
}

// Task is one entry of the pipeline of a web service.
type Task struct {
	Type string `json:"type"`

	// Version selects a version of the task type. Zero means the latest.
	Version int `json:"version,omitempty"`

	Disabled   bool                   `json:"disabled,omitempty"`
	Options    map[string]interface{} `json:"options,omitempty"`
	Conditions []Condition            `json:"conditions,omitempty"`
}

// WebService is the configuration of a logical destination.
type WebService struct {
	ID     string `json:"-"`
	Scope  string `json:"-"`
	UserID string `json:"-"`

	Name string `json:"name,omitempty"`

	// Destination is a URL template. It can contain the placeholders
	// {uid}, {wsid} and {path}.
	Destination string `json:"destination,omitempty"`

	Tasks []Task `json:"tasks,omitempty"`
}

// Validate checks the static parts of the definition. The task options
// are checked when the pipeline is built.
func (ws *WebService) Validate() error {
	if ws.Destination != "" {
		r := strings.NewReplacer("{uid}", "uid", "{wsid}", "wsid", "{path}", "path")
		u, err := url.Parse(r.Replace(ws.Destination))
		if err != nil {
			return fmt.Errorf("invalid destination of web service %s: %w", ws.ID, err)
		}

		if u.Scheme == "" || u.Host == "" {
			return fmt.Errorf("invalid destination of web service %s: absolute URL expected", ws.ID)
		}
	}

	for i, t := range ws.Tasks {
		if t.Type == "" {
			return fmt.Errorf("missing type of task %d in web service %s", i, ws.ID)
		}

		for j, c := range t.Conditions {
			if c.Type == "" {
				return fmt.Errorf("missing type of condition %d of task %d in web service %s", j, i, ws.ID)
			}
		}
	}

	return nil
}

// Definitions contains all the loaded configuration entities.
type Definitions struct {
	TrustedHosts hostmatch.Patterns

	// Users by id. An empty map means an open gateway.
	Users map[string]auth.User

	GlobalWebServices map[string]*WebService

	// UserWebServices by user id and web service id.
	UserWebServices map[string]map[string]*WebService
}

// Global returns a global web service.
func (d *Definitions) Global(id string) (*WebService, bool) {
	ws, ok := d.GlobalWebServices[id]
	return ws, ok
}

// User returns a web service of a user.
func (d *Definitions) User(uid, id string) (*WebService, bool) {
	ws, ok := d.UserWebServices[uid][id]
	return ws, ok
}

func loadWebServices(dir, scope, uid string) map[string]*WebService {
	services := make(map[string]*WebService)
	err := configdir.LoadInto(
		dir,
		func() interface{} { return &WebService{} },
		func(id string, v interface{}) {
			ws := v.(*WebService)
			ws.ID, ws.Scope, ws.UserID = id, scope, uid
			if err := ws.Validate(); err != nil {
				log.Warnf("web service ignored: %v", err)
				return
			}

			services[id] = ws
		},
	)

	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		log.Warnf("failed to load web services from %s: %v", dir, err)
	}

	return services
}

// Load reads the definitions from the config directory. Broken web
// service definitions are logged and skipped, while broken trusted hosts
// and users files fail the loading.
func Load(root string) (*Definitions, error) {
	if fi, err := os.Stat(root); err != nil {
		return nil, fmt.Errorf("invalid config directory: %w", err)
	} else if !fi.IsDir() {
		return nil, fmt.Errorf("invalid config directory: %s is not a directory", root)
	}

	d := &Definitions{
		Users:           make(map[string]auth.User),
		UserWebServices: make(map[string]map[string]*WebService),
	}

	global := filepath.Join(root, globalDir)
	err := configdir.LoadFile(global, trustedHosts, &d.TrustedHosts)
	switch {
	case errors.Is(err, configdir.ErrNotFound):
		log.Warn("no trusted host patterns configured")
	case err != nil:
		return nil, err
	}

	err = configdir.LoadFile(global, usersFile, &d.Users)
	switch {
	case errors.Is(err, configdir.ErrNotFound):
		log.Info("no users configured")
	case err != nil:
		return nil, err
	}

	if d.Users == nil {
		d.Users = make(map[string]auth.User)
	}

	d.GlobalWebServices = loadWebServices(filepath.Join(global, webServicesDir), ScopeGlobal, "")

	entries, err := os.ReadDir(filepath.Join(root, usersDir))
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, err
	}

	for _, e := range entries {
		if !e.IsDir() || strings.HasPrefix(e.Name(), ".") {
			continue
		}

		uid := e.Name()
		if services := loadWebServices(filepath.Join(root, usersDir, uid, webServicesDir), ScopeUser, uid); len(services) > 0 {
			d.UserWebServices[uid] = services
		}
	}

	log.Infof(
		"definitions loaded: %d users, %d global web services, %d users with web services",
		len(d.Users),
		len(d.GlobalWebServices),
		len(d.UserWebServices),
	)

	return d, nil
}
