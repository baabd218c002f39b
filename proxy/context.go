package proxy

import (
	"net/http"
	"time"

	"github.com/passeplat/passeplat/analyzable"
	"github.com/passeplat/passeplat/auth"
	"github.com/passeplat/passeplat/logging"
	"github.com/passeplat/passeplat/webservice"
)

// context holds the state of one served request.
type context struct {
	writer     *logging.LoggingWriter
	request    *http.Request
	runtime    *Runtime
	content    *analyzable.Content
	user       auth.User
	webService *webservice.WebService
	startServe time.Time
	stage      int
}

func (c *context) webServiceID() string {
	if c.webService == nil || c.webService.Unnamed {
		return ""
	}

	return c.webService.ID
}

// metricsWebService names the web service in the metrics.
func (c *context) metricsWebService() string {
	if id := c.webServiceID(); id != "" {
		return id
	}

	return "unnamed"
}

// recordable tells whether the request got far enough to be recorded.
func (c *context) recordable() bool {
	return c.webService != nil
}

func (c *context) logFields() map[string]interface{} {
	f := map[string]interface{}{
		"transaction": c.content.ID(),
		"host":        c.request.Host,
	}

	if id := c.webServiceID(); id != "" {
		f["wsid"] = id
	}

	if c.user.ID != "" {
		f["uid"] = c.user.ID
	}

	return f
}

func (c *context) log(p *Proxy) logging.Logger {
	return p.log.WithFields(c.logFields())
}
