package auth

import (
	"fmt"
	"net/http"

	log "github.com/sirupsen/logrus"
)

// AuthenticationError is returned when the users can't be checked,
// typically because the user repository is broken. It is different from
// not finding a user.
type AuthenticationError struct {
	Strategy string
	Err      error
}

func (err *AuthenticationError) Error() string {
	if err.Strategy == "" {
		return fmt.Sprintf("authentication failed: %v", err.Err)
	}

	return fmt.Sprintf("authentication failed in strategy %s: %v", err.Strategy, err.Err)
}

func (err *AuthenticationError) Unwrap() error { return err.Err }

// Authenticator runs the strategy chain.
type Authenticator struct {
	repo       UserRepository
	strategies []Strategy
}

// DefaultStrategies returns the strategy chain in the order: query,
// uid-in-host, destination-and-uid-in-host, basic.
func DefaultStrategies(c Classifier, um *UserManager) []Strategy {
	return []Strategy{
		NewQueryParamStrategy(um),
		NewUIDInHostStrategy(c, um),
		NewDestinationAndUIDInHostStrategy(c, um),
		NewBasicStrategy(um),
	}
}

// New creates an authenticator with the default strategies.
func New(repo UserRepository, c Classifier) *Authenticator {
	return NewWithStrategies(repo, DefaultStrategies(c, NewUserManager(repo))...)
}

// NewWithStrategies creates an authenticator with a custom strategy
// chain.
func NewWithStrategies(repo UserRepository, s ...Strategy) *Authenticator {
	return &Authenticator{repo: repo, strategies: s}
}

// Authenticate returns the user of the request, or false when no
// strategy found one. When no users are configured, it returns
// Unrestricted.
func (a *Authenticator) Authenticate(r *http.Request) (User, bool, error) {
	n, err := a.repo.Count()
	if err != nil {
		return User{}, false, &AuthenticationError{Err: err}
	}

	if n == 0 {
		return Unrestricted, true, nil
	}

	for _, s := range a.strategies {
		u, ok, err := s.Authenticate(r)
		if err != nil {
			return User{}, false, &AuthenticationError{Strategy: s.Name(), Err: err}
		}

		if ok {
			log.Debugf("user %s authenticated by %s", u.ID, s.Name())
			return u, true, nil
		}
	}

	return User{}, false, nil
}
