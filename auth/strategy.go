package auth

import (
	"net/http"
	"strings"

	httpauth "github.com/abbot/go-http-auth"
	log "github.com/sirupsen/logrus"

	"github.com/passeplat/passeplat/hostmatch"
)

const (
	TokenParam      = "PP_TOKEN"
	UIDParam        = "PP_UID"
	WebServiceParam = "PP_WSID"

	// Realm of the Basic authentication challenge.
	Realm = "passeplat"
)

// Classifier is implemented by *hostmatch.Matcher.
type Classifier interface {
	Classify(host string) hostmatch.Kind
}

// Strategy finds the user of a request.
type Strategy interface {
	Name() string

	// Authenticate returns false when the strategy doesn't apply or the
	// credentials are invalid. Errors are reserved for failures of the
	// user repository.
	Authenticate(r *http.Request) (User, bool, error)
}

type queryStrategy struct {
	users *UserManager
}

type uidInHostStrategy struct {
	hosts Classifier
	users *UserManager
}

type destinationStrategy struct {
	hosts Classifier
	users *UserManager
}

type basicStrategy struct {
	users *UserManager
	basic *httpauth.BasicAuth
}

// NewQueryParamStrategy reads the user id from the PP_UID query
// parameter.
func NewQueryParamStrategy(um *UserManager) Strategy {
	return &queryStrategy{users: um}
}

// NewUIDInHostStrategy reads the user id from the first label of hosts
// classified as hostmatch.WithUserID.
func NewUIDInHostStrategy(c Classifier, um *UserManager) Strategy {
	return &uidInHostStrategy{hosts: c, users: um}
}

// NewDestinationAndUIDInHostStrategy reads the user id from the last
// segment of the first label of hosts classified as
// hostmatch.WithDestination.
func NewDestinationAndUIDInHostStrategy(c Classifier, um *UserManager) Strategy {
	return &destinationStrategy{hosts: c, users: um}
}

// NewBasicStrategy accepts HTTP Basic credentials of the users whose
// token is stored as an htpasswd hash (MD5, SHA1 or bcrypt).
func NewBasicStrategy(um *UserManager) Strategy {
	s := &basicStrategy{users: um}
	s.basic = httpauth.NewBasicAuthenticator(Realm, s.secret)
	return s
}

func token(r *http.Request) string {
	return r.URL.Query().Get(TokenParam)
}

func (s *queryStrategy) Name() string { return "query" }

func (s *queryStrategy) Authenticate(r *http.Request) (User, bool, error) {
	q := r.URL.Query()
	uid := q.Get(UIDParam)
	if uid == "" {
		return User{}, false, nil
	}

	return s.users.Verify(uid, q.Get(TokenParam))
}

func (s *uidInHostStrategy) Name() string { return "uid-in-host" }

func (s *uidInHostStrategy) Authenticate(r *http.Request) (User, bool, error) {
	if s.hosts.Classify(r.Host) != hostmatch.WithUserID {
		return User{}, false, nil
	}

	uid := hostmatch.FirstLabel(r.Host)
	if strings.Contains(uid, segmentSeparator) {
		log.Debugf("reserved separator in host label: %s", r.Host)
		return User{}, false, nil
	}

	return s.users.Verify(uid, token(r))
}

func (s *destinationStrategy) Name() string { return "destination-and-uid-in-host" }

func (s *destinationStrategy) Authenticate(r *http.Request) (User, bool, error) {
	if s.hosts.Classify(r.Host) != hostmatch.WithDestination {
		return User{}, false, nil
	}

	l, err := ParseDestinationLabel(hostmatch.FirstLabel(r.Host))
	if err != nil {
		log.Debugf("%v: %s", err, r.Host)
		return User{}, false, nil
	}

	return s.users.Verify(l.UID, token(r))
}

// secret is the htpasswd secret provider of the basic strategy. Repository
// errors are not visible to the htpasswd authenticator, they are reported
// by the lookup in Authenticate.
func (s *basicStrategy) secret(uid, _ string) string {
	u, ok, err := s.users.repo.Lookup(uid)
	if err != nil || !ok || !hashed(u.Token) {
		return ""
	}

	return u.Token
}

func (s *basicStrategy) Name() string { return "basic" }

func (s *basicStrategy) Authenticate(r *http.Request) (User, bool, error) {
	if r.Header.Get("Authorization") == "" {
		return User{}, false, nil
	}

	uid := s.basic.CheckAuth(r)
	if uid == "" {
		return User{}, false, nil
	}

	u, ok, err := s.users.repo.Lookup(uid)
	if err != nil || !ok {
		return User{}, false, err
	}

	return u, true, nil
}
