package hsm

import (
	"fmt"

	"github.com/aretw0/canopy/pkg/domain"
)

// TransitionError is returned when a trigger resolves neither on the current
// state nor on any of its ancestors. The machine does not move.
type TransitionError struct {
	Machine   string
	Path      string
	Trigger   string
	Available []string
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("%s: trigger %q not defined for state %q (available: %v)",
		e.Machine, e.Trigger, e.Path, e.Available)
}

// Unwrap allows errors.Is(err, domain.ErrInvalidTrigger).
func (e *TransitionError) Unwrap() error {
	return domain.ErrInvalidTrigger
}
