package queue

import (
	"context"

	"github.com/iliyamo/flancer/internal/model"
)

// NotificationSaver persists an event into a user's feed, ignoring ids it
// has already stored.
type NotificationSaver interface {
	SaveNotification(ctx context.Context, ev model.NotificationEvent) error
}

// StoreSink writes events straight to the database. It is used when no
// broker is deployed.
type StoreSink struct{ Store NotificationSaver }

func (s StoreSink) Send(ctx context.Context, ev model.NotificationEvent) error {
	return s.Store.SaveNotification(ctx, ev)
}
