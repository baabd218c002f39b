package auth

import (
	"crypto/subtle"
	"errors"
	"strings"
)

// User of the gateway.
type User struct {
	ID    string `json:"id"`
	Token string `json:"token,omitempty"`

	// Unrestricted is set for the identity used when no users are
	// configured.
	Unrestricted bool `json:"-"`
}

// Unrestricted is the identity of the requests of an open gateway.
var Unrestricted = User{Unrestricted: true}

// ErrInvalidRepository is returned by the repositories that are not set
// up.
var ErrInvalidRepository = errors.New("invalid user repository")

// UserRepository provides the configured users.
type UserRepository interface {

	// Count returns the number of the configured users.
	Count() (int, error)

	// Lookup returns the user with uid, or false when not found.
	Lookup(uid string) (User, bool, error)
}

// MapRepository is an in-memory user repository.
type MapRepository struct {
	users map[string]User
}

// NewMapRepository creates a repository from a map of users by id. The
// id field of the users is set from the keys. A nil map makes an invalid
// repository.
func NewMapRepository(users map[string]User) *MapRepository {
	if users == nil {
		return &MapRepository{}
	}

	m := make(map[string]User, len(users))
	for id, u := range users {
		u.ID = id
		m[id] = u
	}

	return &MapRepository{users: m}
}

func (r *MapRepository) Count() (int, error) {
	if r == nil || r.users == nil {
		return 0, ErrInvalidRepository
	}

	return len(r.users), nil
}

func (r *MapRepository) Lookup(uid string) (User, bool, error) {
	if r == nil || r.users == nil {
		return User{}, false, ErrInvalidRepository
	}

	u, ok := r.users[uid]
	return u, ok, nil
}

// hashed tells whether a token is stored as an htpasswd hash.
func hashed(token string) bool {
	for _, prefix := range []string{"$apr1$", "$1$", "{SHA}", "$2a$", "$2b$", "$2x$", "$2y$"} {
		if strings.HasPrefix(token, prefix) {
			return true
		}
	}

	return false
}

// UserManager verifies the credentials of the users.
type UserManager struct {
	repo UserRepository
}

func NewUserManager(repo UserRepository) *UserManager {
	return &UserManager{repo: repo}
}

// Verify returns the user with uid if the token is valid for it. Users
// without a configured token are accepted with any token. The tokens are
// compared in constant time.
func (um *UserManager) Verify(uid, token string) (User, bool, error) {
	if uid == "" {
		return User{}, false, nil
	}

	u, ok, err := um.repo.Lookup(uid)
	if err != nil || !ok {
		return User{}, false, err
	}

	if u.Token == "" {
		return u, true, nil
	}

	if hashed(u.Token) {
		return User{}, false, nil
	}

	if subtle.ConstantTimeCompare([]byte(u.Token), []byte(token)) != 1 {
		return User{}, false, nil
	}

	return u, true, nil
}
