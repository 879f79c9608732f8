// Package tenant defines the normalized tenant identifier shared by every
// component in the consistency substrate.
package tenant

import (
	"errors"
	"regexp"
)

// ErrInvalidID is returned when a candidate string fails the tenant id
// shape check.
var ErrInvalidID = errors.New("tenant: invalid id")

var idPattern = regexp.MustCompile(`^[a-z0-9](?:[a-z0-9-]*[a-z0-9])?$`)

// ID is a normalized tenant identifier: lowercase ASCII,
// [a-z0-9](?:[a-z0-9-]*[a-z0-9]), length 3-63, no "--". Immutable once
// constructed via Parse.
type ID struct {
	value string
}

// Parse validates s and returns an ID, or ErrInvalidID if s does not meet
// the tenant id shape.
func Parse(s string) (ID, error) {
	if len(s) < 3 || len(s) > 63 {
		return ID{}, ErrInvalidID
	}
	if !idPattern.MatchString(s) {
		return ID{}, ErrInvalidID
	}
	if containsDoubleHyphen(s) {
		return ID{}, ErrInvalidID
	}
	return ID{value: s}, nil
}

func containsDoubleHyphen(s string) bool {
	for i := 0; i+1 < len(s); i++ {
		if s[i] == '-' && s[i+1] == '-' {
			return true
		}
	}
	return false
}

func (id ID) String() string { return id.value }

// Equal reports whether two ids refer to the same tenant.
func (id ID) Equal(other ID) bool { return id.value == other.value }

// IsZero reports whether id is the unconstructed zero value.
func (id ID) IsZero() bool { return id.value == "" }
