package auth

import (
	"errors"
	"strings"
)

const (
	segmentSeparator = "---"
	encodedDot       = "--"
)

// ErrInvalidLabel is returned for host labels that don't follow the
// destination convention.
var ErrInvalidLabel = errors.New("invalid destination label")

// DestinationLabel is the decoded first label of a host carrying a
// destination and a user id.
type DestinationLabel struct {

	// Scheme is empty when the label doesn't encode one.
	Scheme string

	EncodedDestination string
	Destination        string
	UID                string
}

// Decode replaces the double dashes in an encoded host segment with dots.
func Decode(segment string) string {
	return strings.ReplaceAll(segment, encodedDot, ".")
}

// ParseDestinationLabel parses labels of the form
// [<scheme>---]<destination>---<uid>.
func ParseDestinationLabel(label string) (DestinationLabel, error) {
	s := strings.Split(label, segmentSeparator)
	for _, si := range s {
		if si == "" {
			return DestinationLabel{}, ErrInvalidLabel
		}
	}

	var l DestinationLabel
	switch len(s) {
	case 2:
		l.EncodedDestination, l.UID = s[0], s[1]
	case 3:
		l.Scheme = Decode(s[0])
		l.EncodedDestination, l.UID = s[1], s[2]
	default:
		return DestinationLabel{}, ErrInvalidLabel
	}

	l.Destination = Decode(l.EncodedDestination)
	return l, nil
}
