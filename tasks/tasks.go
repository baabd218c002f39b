package tasks

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"sigs.k8s.io/yaml"

	"github.com/passeplat/passeplat/analyzable"
	"github.com/passeplat/passeplat/webservice"
)

// Phase of the lifecycle of a transaction.
type Phase string

const (
	DestinationRequestPreparation Phase = "destinationRequestPreparation"
	StartedReceiving              Phase = "startedReceiving"
	EmittedResponse               Phase = "emittedResponse"
	DestinationReachFailure       Phase = "destinationReachFailure"
)

// Phases in lifecycle order. DestinationReachFailure replaces the
// phases after DestinationRequestPreparation when the destination can't
// be reached.
var Phases = []Phase{
	DestinationRequestPreparation,
	StartedReceiving,
	EmittedResponse,
	DestinationReachFailure,
}

// ErrInvalidOptions is returned when the options of a task or of a
// condition can't be decoded.
var ErrInvalidOptions = errors.New("invalid options")

// Options of a task or condition instance, as found in the web service
// definition.
type Options map[string]interface{}

// Decode decodes the options into a struct with json tags. Unknown
// fields are rejected.
func (o Options) Decode(into interface{}) error {
	if o == nil {
		o = Options{}
	}

	b, err := yaml.Marshal(map[string]interface{}(o))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidOptions, err)
	}

	if err := yaml.UnmarshalStrict(b, into); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidOptions, err)
	}

	return nil
}

// Duration can be decoded from a duration string like "1h30m", or from a
// number of seconds.
type Duration time.Duration

func (d *Duration) UnmarshalJSON(b []byte) error {
	var v interface{}
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}

	switch t := v.(type) {
	case string:
		pd, err := time.ParseDuration(t)
		if err != nil {
			return err
		}

		*d = Duration(pd)
	case float64:
		*d = Duration(t * float64(time.Second))
	default:
		return fmt.Errorf("invalid duration: %s", b)
	}

	if *d < 0 {
		return fmt.Errorf("negative duration: %s", b)
	}

	return nil
}

func (d Duration) Duration() time.Duration { return time.Duration(d) }

// Context is passed to the tasks and the conditions.
type Context struct {

	// Content of the transaction.
	Content *analyzable.Content

	// Request received from the initiator. The body must not be read,
	// it is available in Content.Request.Body after the
	// destinationRequestPreparation phase.
	Request *http.Request

	WebService *webservice.WebService

	// Destination URL. Nil when it couldn't be resolved.
	Destination *url.URL
}

// Context returns the context of the inbound request.
func (c *Context) Context() context.Context {
	if c.Request != nil {
		return c.Request.Context()
	}

	return context.Background()
}

// Spec creates the task instances of a task type.
type Spec interface {

	// Name of the task type, used in the web service definitions.
	Name() string

	// Version of the task type. Different versions of the same task
	// type can be registered.
	Version() int

	// Phases in which the tasks are executed.
	Phases() []Phase

	// CreateTask creates a task instance. It returns an error when the
	// options are invalid.
	CreateTask(Options) (Task, error)
}

// Task instances are shared by the concurrent transactions of the same
// web service, so any state stored with a task must be safe for
// concurrent use.
type Task interface {
	Execute(*Context, Phase) error
}
