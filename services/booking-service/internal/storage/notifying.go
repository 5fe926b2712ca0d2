package storage

import (
	"context"
	"time"

	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/changefeed"
	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/model"
)

// Notifying publishes a change event after every successful mutation of the
// wrapped store. Failed or no-op mutations publish nothing.
type Notifying struct {
	Store
	feed changefeed.Publisher
}

func NewNotifying(s Store, feed changefeed.Publisher) *Notifying {
	return &Notifying{Store: s, feed: feed}
}

func (n *Notifying) InsertIfNoOverlap(ctx context.Context, a model.Appointment, emit Emit) (model.Appointment, error) {
	out, err := n.Store.InsertIfNoOverlap(ctx, a, emit)
	if err == nil {
		n.feed.Publish(ctx, changefeed.NewEvent(changefeed.KindInsert, out))
	}
	return out, err
}

func (n *Notifying) UpdateStatus(ctx context.Context, id string, status model.Status, at time.Time, emit Emit) (model.Appointment, bool, error) {
	out, changed, err := n.Store.UpdateStatus(ctx, id, status, at, emit)
	if err == nil && changed {
		n.feed.Publish(ctx, changefeed.NewEvent(changefeed.KindUpdate, out))
	}
	return out, changed, err
}

func (n *Notifying) MarkReminderSent(ctx context.Context, id string, emit Emit) (model.Appointment, bool, error) {
	out, claimed, err := n.Store.MarkReminderSent(ctx, id, emit)
	if err == nil && claimed {
		n.feed.Publish(ctx, changefeed.NewEvent(changefeed.KindUpdate, out))
	}
	return out, claimed, err
}
