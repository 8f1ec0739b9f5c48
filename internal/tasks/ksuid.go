package tasks

import (
	"time"

	"github.com/segmentio/ksuid"
)

// now is the clock used by the SK sanity check.
var now = time.Now

// NewKSUID returns a new time-ordered unique identifier.
func NewKSUID() ksuid.KSUID {
	return ksuid.New()
}

// ParseKSUID parses the string form of an identifier. A successful parse only
// means the string has the right shape: callers must still sanity-check the
// embedded timestamp, see isRecentKSUID.
func ParseKSUID(s string) (ksuid.KSUID, bool) {
	id, err := ksuid.Parse(s)
	if err != nil || id == ksuid.Nil {
		return ksuid.Nil, false
	}
	return id, true
}

// isRecentKSUID reports whether the identifier was created this year or the
// year before. Garbage strings of the right length decode to timestamps far
// from the present.
func isRecentKSUID(id ksuid.KSUID) bool {
	return id.Time().UTC().Year() >= now().UTC().Year()-1
}
