// Package delivery owns the sent -> delivered -> read lifecycle of chat
// messages and the timestamps recording each transition.
package delivery

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/petkeeper/internal/common"
	"github.com/dmitrijs2005/petkeeper/internal/logging"
	"github.com/dmitrijs2005/petkeeper/internal/server/models"
	"github.com/dmitrijs2005/petkeeper/internal/server/notify"
	"github.com/dmitrijs2005/petkeeper/internal/timex"
	"github.com/google/uuid"
)

// Policy decides what happens to an acknowledgement timestamp that would
// break timestamp ordering.
type Policy string

const (
	// PolicyClamp moves the timestamp up to the earliest consistent value.
	PolicyClamp Policy = "clamp"
	// PolicyReject fails the transition with ErrTimestampOrder.
	PolicyReject Policy = "reject"
)

const casAttempts = 3

// Store is the durable collaborator for message delivery fields.
type Store interface {
	Create(ctx context.Context, m *models.Message) error
	Get(ctx context.Context, id string) (*models.Message, error)
	// CompareAndSetStatus writes next and the timestamps only if the stored
	// status still equals expected. It reports whether the write happened.
	CompareAndSetStatus(ctx context.Context, id string, expected, next models.DeliveryStatus, deliveredAt, readAt *time.Time) (bool, error)
}

type Options struct {
	Policy   Policy
	Clock    timex.Clock
	Logger   logging.Logger
	Notifier notify.Notifier
}

// Tracker serializes transitions per message in process and relies on the
// store's compare-and-set for writers in other processes.
type Tracker struct {
	store    Store
	policy   Policy
	now      timex.Clock
	log      logging.Logger
	notifier notify.Notifier
	locks    *keyedLocks
}

func NewTracker(store Store, opts Options) *Tracker {
	if opts.Policy == "" {
		opts.Policy = PolicyClamp
	}
	if opts.Clock == nil {
		opts.Clock = timex.Now
	}
	if opts.Logger == nil {
		opts.Logger = logging.NopLogger{}
	}
	if opts.Notifier == nil {
		opts.Notifier = notify.NopNotifier{}
	}
	return &Tracker{
		store:    store,
		policy:   opts.Policy,
		now:      opts.Clock,
		log:      opts.Logger.With("module", "delivery"),
		notifier: opts.Notifier,
		locks:    newKeyedLocks(),
	}
}

// Create stores m with status sent and no delivery timestamps, then makes it
// visible to the recipient's inbound channel.
func (t *Tracker) Create(ctx context.Context, m *models.Message) (*models.Message, error) {
	if m == nil {
		return nil, fmt.Errorf("%w: nil message", common.ErrorValidation)
	}
	msg := *m
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = t.now()
	}
	msg.CreatedAt = normalize(msg.CreatedAt)
	msg.DeliveryStatus = models.StatusSent
	msg.DeliveredAt = nil
	msg.ReadAt = nil

	if err := t.store.Create(ctx, &msg); err != nil {
		return nil, err
	}
	t.publish(ctx, notify.EventMessageCreated, &msg)
	return &msg, nil
}

// MarkDelivered moves a sent message to delivered. It is a no-op for a
// message already delivered or read. A zero at means now.
func (t *Tracker) MarkDelivered(ctx context.Context, id string, at time.Time) (*models.Message, error) {
	return t.transition(ctx, id, models.StatusDelivered, at)
}

// MarkRead moves a sent or delivered message to read. From sent it also sets
// delivered_at to the same instant. It is a no-op for a message already read.
func (t *Tracker) MarkRead(ctx context.Context, id string, at time.Time) (*models.Message, error) {
	return t.transition(ctx, id, models.StatusRead, at)
}

// Advance applies the acknowledgement named by to. Only delivered and read
// are acknowledgements.
func (t *Tracker) Advance(ctx context.Context, id string, to models.DeliveryStatus, at time.Time) (*models.Message, error) {
	switch to {
	case models.StatusDelivered, models.StatusRead:
		return t.transition(ctx, id, to, at)
	default:
		m, err := t.store.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		return nil, t.illegal(ctx, &TransitionError{MessageID: id, From: m.DeliveryStatus, To: to})
	}
}

func (t *Tracker) transition(ctx context.Context, id string, to models.DeliveryStatus, at time.Time) (*models.Message, error) {
	release, err := t.locks.lock(ctx, id)
	if err != nil {
		return nil, err
	}
	defer release()

	if at.IsZero() {
		at = t.now()
	}
	at = normalize(at)

	for attempt := 0; attempt < casAttempts; attempt++ {
		m, err := t.store.Get(ctx, id)
		if err != nil {
			return nil, err
		}

		next, changed, err := t.plan(m, to, at)
		if err != nil {
			if errors.Is(err, ErrIllegalTransition) {
				return nil, t.illegal(ctx, err)
			}
			t.log.Warn(ctx, "acknowledgement rejected", "message_id", id, "to", string(to), "error", err)
			return nil, err
		}
		if !changed {
			return m, nil
		}

		ok, err := t.store.CompareAndSetStatus(ctx, id, m.DeliveryStatus, next.DeliveryStatus, next.DeliveredAt, next.ReadAt)
		if err != nil {
			return nil, err
		}
		if ok {
			t.log.Debug(ctx, "message status advanced", "message_id", id,
				"from", string(m.DeliveryStatus), "to", string(next.DeliveryStatus))
			t.publish(ctx, notify.EventStatusChanged, next)
			return next, nil
		}
		t.log.Debug(ctx, "status changed underneath, retrying", "message_id", id, "attempt", attempt+1)
	}
	return nil, fmt.Errorf("message %s: %w", id, ErrConcurrentUpdate)
}

// plan computes the state after applying to at time at. changed is false
// when the acknowledgement is a duplicate.
func (t *Tracker) plan(m *models.Message, to models.DeliveryStatus, at time.Time) (*models.Message, bool, error) {
	from := m.DeliveryStatus
	if !from.Valid() {
		return nil, false, &TransitionError{MessageID: m.ID, From: from, To: to}
	}
	if from.Rank() >= to.Rank() {
		return m, false, nil
	}

	at, err := t.notBefore(at, m.CreatedAt)
	if err != nil {
		return nil, false, err
	}

	next := *m
	next.DeliveryStatus = to
	switch to {
	case models.StatusDelivered:
		next.DeliveredAt = &at
	case models.StatusRead:
		if from == models.StatusSent {
			next.DeliveredAt = &at
			readAt := at
			next.ReadAt = &readAt
			break
		}
		if m.DeliveredAt == nil {
			return nil, false, &TransitionError{MessageID: m.ID, From: from, To: to}
		}
		readAt, err := t.notBefore(at, *m.DeliveredAt)
		if err != nil {
			return nil, false, err
		}
		next.ReadAt = &readAt
	default:
		return nil, false, &TransitionError{MessageID: m.ID, From: from, To: to}
	}
	return &next, true, nil
}

func (t *Tracker) notBefore(at, floor time.Time) (time.Time, error) {
	if !at.Before(floor) {
		return at, nil
	}
	if t.policy == PolicyReject {
		return time.Time{}, fmt.Errorf("%w: %s is before %s", ErrTimestampOrder,
			at.Format(time.RFC3339Nano), floor.Format(time.RFC3339Nano))
	}
	return floor, nil
}

func (t *Tracker) illegal(ctx context.Context, err error) error {
	t.log.Error(ctx, "illegal delivery transition", "error", err)
	return err
}

func (t *Tracker) publish(ctx context.Context, typ notify.EventType, m *models.Message) {
	if err := t.notifier.Notify(ctx, notify.NewEvent(typ, m)); err != nil {
		t.log.Warn(ctx, "notify failed", "message_id", m.ID, "type", string(typ), "error", err)
	}
}

func normalize(at time.Time) time.Time {
	return at.UTC().Truncate(time.Microsecond)
}
