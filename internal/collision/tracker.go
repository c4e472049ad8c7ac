package collision

import (
	"fmt"

	"github.com/arloliu/courier/errs"
	"github.com/arloliu/courier/internal/hash"
)

// Tracker detects duplicate names within one scope, e.g. the columns of a
// schema or the schemata of a model. Names are bucketed by their xxHash64 so
// that distinct names sharing a hash are still told apart.
type Tracker struct {
	scope string
	names map[uint64][]string // Hash → names with that hash
}

// NewTracker creates a new tracker; scope names what is tracked in error messages.
func NewTracker(scope string) *Tracker {
	return &Tracker{
		scope: scope,
		names: make(map[uint64][]string),
	}
}

// Track records name.
// Returns ErrInvalidValue for an empty name and ErrDuplicateName when the
// name was tracked before.
func (t *Tracker) Track(name string) error {
	if name == "" {
		return fmt.Errorf("%w: empty %s name", errs.ErrInvalidValue, t.scope)
	}

	h := hash.ID(name)
	for _, existing := range t.names[h] {
		if existing == name {
			return fmt.Errorf("%w: %s %q", errs.ErrDuplicateName, t.scope, name)
		}
	}

	t.names[h] = append(t.names[h], name)

	return nil
}
