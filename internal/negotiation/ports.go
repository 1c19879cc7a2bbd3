package negotiation

import (
	"context"

	"github.com/iliyamo/flancer/internal/model"
)

// Store is the persistence the engine needs. Implementations return
// repository.ErrNotFound, repository.ErrVersionConflict and
// repository.ErrDuplicate for the corresponding conditions.
type Store interface {
	GetService(ctx context.Context, id uint64) (model.Service, error)

	CreateNegotiation(ctx context.Context, n *model.Negotiation) error
	GetNegotiation(ctx context.Context, id uint64) (model.Negotiation, error)
	UpdateNegotiation(ctx context.Context, n *model.Negotiation, expectedVersion int64) error

	AppendOffer(ctx context.Context, o *model.Offer) error
	ListOffers(ctx context.Context, negotiationID uint64) ([]model.Offer, error)

	CreateConfirmation(ctx context.Context, c *model.AgreementConfirmation) error
	DeactivateConfirmations(ctx context.Context, negotiationID uint64) error
	DeactivateConfirmationsThrough(ctx context.Context, negotiationID, lastID uint64) error
	DeactivatePartyConfirmations(ctx context.Context, negotiationID, partyID uint64) error
	ActiveConfirmations(ctx context.Context, negotiationID uint64) ([]model.AgreementConfirmation, error)

	CreateJob(ctx context.Context, j *model.Job) error
	GetJob(ctx context.Context, id uint64) (model.Job, error)
	GetJobByNegotiation(ctx context.Context, negotiationID uint64) (model.Job, error)
	DeleteJob(ctx context.Context, id uint64) error
}

// Directory resolves whether a party id denotes a known, active account
// allowed to take the given side of a negotiation.
type Directory interface {
	ActiveAs(ctx context.Context, id uint64, side model.Role) (bool, error)
}

// Notifier queues an event for asynchronous delivery. It must not block.
type Notifier interface {
	Notify(ev model.NotificationEvent)
}

type noopNotifier struct{}

func (noopNotifier) Notify(model.NotificationEvent) {}
