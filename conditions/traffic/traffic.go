/*
Package traffic implements the random condition, that enables a task for
a share of the transactions.

Options:

	chance: the probability of the task being enabled, between 0 and 1
	cookie: optional name of the cookie holding the traffic group
	group:  the traffic group of the task. When the request has the
	        cookie, the condition is satisfied only when its value is the
	        group, ignoring the chance.

The cookie and the group must be set together.
*/
package traffic

import (
	"fmt"
	"math/rand"
	"sync"

	"github.com/passeplat/passeplat/conditions"
	"github.com/passeplat/passeplat/tasks"
)

const Name = "random"

type options struct {
	Chance *float64 `json:"chance"`
	Cookie string   `json:"cookie"`
	Group  string   `json:"group"`
}

type spec struct {
	mu   sync.Mutex
	rand *rand.Rand
}

type condition struct {
	spec   *spec
	chance float64
	cookie string
	group  string
}

// New creates the random condition.
func New() conditions.Spec { return &spec{} }

// NewWithSource returns the Spec with a fixed random source, for testing.
func NewWithSource(src rand.Source) conditions.Spec { return &spec{rand: rand.New(src)} }

func (s *spec) Name() string { return Name }

func (s *spec) CreateCondition(o tasks.Options) (conditions.Condition, error) {
	var opts options
	if err := o.Decode(&opts); err != nil {
		return nil, err
	}

	if opts.Chance == nil {
		return nil, &tasks.MissingParameterError{Source: Name, Parameter: "chance"}
	}

	if *opts.Chance < 0 || *opts.Chance > 1 {
		return nil, fmt.Errorf("%w: chance must be between 0 and 1", tasks.ErrInvalidOptions)
	}

	if (opts.Cookie == "") != (opts.Group == "") {
		return nil, fmt.Errorf("%w: cookie and group must be set together", tasks.ErrInvalidOptions)
	}

	return &condition{spec: s, chance: *opts.Chance, cookie: opts.Cookie, group: opts.Group}, nil
}

func (s *spec) float64() float64 {
	if s.rand == nil {
		return rand.Float64()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rand.Float64()
}

func (c *condition) takeChance() bool {
	return c.spec.float64() < c.chance
}

func (c *condition) Evaluate(ctx *tasks.Context, _ tasks.Phase) (bool, error) {
	if c.group == "" || ctx.Request == nil {
		return c.takeChance(), nil
	}

	if ck, err := ctx.Request.Cookie(c.cookie); err == nil {
		return ck.Value == c.group, nil
	}

	return c.takeChance(), nil
}
