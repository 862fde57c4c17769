package offers

import (
	"errors"
	"fmt"

	"github.com/casaflow-io/casaflowgo/internal/models"
)

// ErrNotFound marks a missing offer
var ErrNotFound = errors.New("offer not found")

// InvalidTransitionError is raised for illegal state-machine transitions.
// It names the current state; illegal attempts never silently no-op.
type InvalidTransitionError struct {
	OfferID   string
	Current   models.OfferStatus
	Attempted string
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("offer %s: cannot %s while in state %s", e.OfferID, e.Attempted, e.Current)
}
