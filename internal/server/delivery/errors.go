package delivery

import (
	"errors"
	"fmt"

	"github.com/dmitrijs2005/petkeeper/internal/common"
	"github.com/dmitrijs2005/petkeeper/internal/server/models"
)

var (
	ErrIllegalTransition = fmt.Errorf("%w: illegal transition", common.ErrStateTransition)
	ErrTimestampOrder    = fmt.Errorf("%w: timestamp out of order", common.ErrStateTransition)
	ErrConcurrentUpdate  = errors.New("message changed concurrently")
)

// TransitionError reports a transition the lifecycle does not allow. It is a
// caller bug, never a user-facing condition.
type TransitionError struct {
	MessageID string
	From      models.DeliveryStatus
	To        models.DeliveryStatus
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("message %s: illegal transition %q -> %q", e.MessageID, e.From, e.To)
}

func (e *TransitionError) Unwrap() error { return ErrIllegalTransition }
