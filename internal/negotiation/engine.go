// Package negotiation implements the price negotiation state machine
// between a requester and a provider, ending either in a declined
// negotiation or in a materialized job.
//
// Every mutation of a negotiation is a compare-and-swap on its version, so
// concurrent actions from the two parties surface as
// ErrConcurrentModification instead of lost updates.
package negotiation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/iliyamo/flancer/internal/model"
	"github.com/iliyamo/flancer/internal/repository"
)

// Party is an acting user together with the side they negotiate on.
type Party struct {
	ID   uint64
	Role model.Role
}

// Proposal opens a negotiation for a service listing.
type Proposal struct {
	ServiceID   uint64
	RequesterID uint64
	ProviderID  uint64
	PriceCents  int64
	Description string
	Deadline    *time.Time
}

type Engine struct {
	store  Store
	dir    Directory
	notify Notifier
	policy Policy
	log    *slog.Logger
	now    func() time.Time
}

type Option func(*Engine)

func WithPolicy(p Policy) Option { return func(e *Engine) { e.policy = p.withDefaults() } }

func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.log = l
		}
	}
}

// WithClock replaces the time source, mainly for tests.
func WithClock(now func() time.Time) Option { return func(e *Engine) { e.now = now } }

// NewEngine wires the engine to its collaborators. A nil notifier drops
// every event.
func NewEngine(store Store, dir Directory, notifier Notifier, opts ...Option) *Engine {
	if store == nil || dir == nil {
		panic("nil store or directory passed to NewEngine")
	}
	if notifier == nil {
		notifier = noopNotifier{}
	}
	e := &Engine{
		store:  store,
		dir:    dir,
		notify: notifier,
		policy: DefaultPolicy(),
		log:    slog.Default(),
		now:    time.Now,
	}
	for _, o := range opts {
		o(e)
	}
	return e
}

// Propose opens a pending negotiation. The provider is recorded as the
// last offeror since the provider answers the requester's inquiry.
func (e *Engine) Propose(ctx context.Context, p Proposal) (*model.Negotiation, error) {
	if p.RequesterID == 0 || p.ProviderID == 0 || p.RequesterID == p.ProviderID {
		return nil, ErrInvalidCounterparty
	}
	var svc model.Service
	err := e.call(ctx, "get service", func(ctx context.Context) (err error) {
		svc, err = e.store.GetService(ctx, p.ServiceID)
		return err
	})
	if errors.Is(err, repository.ErrNotFound) || (err == nil && !svc.IsActive) {
		return nil, ErrServiceNotFound
	}
	if err != nil {
		return nil, err
	}
	if svc.ProviderID != p.ProviderID {
		return nil, ErrUnauthorizedParty
	}
	if err := checkPrice(p.PriceCents, svc.MinPriceCents, svc.MaxPriceCents); err != nil {
		return nil, err
	}
	if p.Deadline != nil && !p.Deadline.After(e.now()) {
		return nil, ErrInvalidDeadline
	}
	for _, side := range []model.Role{model.RoleRequester, model.RoleProvider} {
		id := p.RequesterID
		if side == model.RoleProvider {
			id = p.ProviderID
		}
		ok, err := e.resolve(ctx, id, side)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, ErrInvalidCounterparty
		}
	}

	n := model.Negotiation{
		ServiceID:         svc.ID,
		RequesterID:       p.RequesterID,
		ProviderID:        p.ProviderID,
		CurrentPriceCents: p.PriceCents,
		MinPriceCents:     svc.MinPriceCents,
		MaxPriceCents:     svc.MaxPriceCents,
		Status:            model.StatusPending,
		LastOfferBy:       model.RoleProvider,
		OfferCount:        1,
		Deadline:          p.Deadline,
		JobDescription:    p.Description,
	}
	if err := e.call(ctx, "create negotiation", func(ctx context.Context) error {
		return e.store.CreateNegotiation(ctx, &n)
	}); err != nil {
		return nil, err
	}
	e.appendOffer(ctx, &n, model.RoleProvider, p.PriceCents, p.Description)
	e.emit(proposedEvent(&n, svc.Title))
	return &n, nil
}

// CounterOffer replaces the current price. It reopens a both_agreed
// negotiation, clears both agreement flags and retires every confirmation
// written before the new offer.
func (e *Engine) CounterOffer(ctx context.Context, id uint64, actor Party, priceCents int64, message string) (*model.Negotiation, error) {
	n, err := e.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := authorize(&n, actor); err != nil {
		return nil, err
	}
	if n.Status.Terminal() {
		return nil, ErrNegotiationClosed
	}
	if err := checkPrice(priceCents, n.MinPriceCents, n.MaxPriceCents); err != nil {
		return nil, err
	}

	var prior []model.AgreementConfirmation
	if err := e.call(ctx, "list confirmations", func(ctx context.Context) (err error) {
		prior, err = e.store.ActiveConfirmations(ctx, n.ID)
		return err
	}); err != nil {
		return nil, err
	}

	reopened := n.Status == model.StatusBothAgreed
	expected := n.Version
	n.CurrentPriceCents = priceCents
	n.LastOfferBy = actor.Role
	n.OfferCount++
	n.RequesterAgreed, n.ProviderAgreed = false, false
	n.Status = model.StatusPending
	if err := e.save(ctx, &n, expected); err != nil {
		return nil, err
	}

	// Agreements on the new version may already have confirmed; only the
	// confirmations seen before the save are retired.
	if last := lastConfirmationID(prior); last > 0 {
		if err := e.call(ctx, "deactivate confirmations", func(ctx context.Context) error {
			return e.store.DeactivateConfirmationsThrough(ctx, n.ID, last)
		}); err != nil {
			e.log.Warn("deactivate confirmations failed", "negotiation_id", n.ID, "error", err)
		}
	}
	if reopened {
		e.discardUnlinkedJob(ctx, n.ID)
	}
	e.appendOffer(ctx, &n, actor.Role, priceCents, message)
	e.emit(counteredEvent(&n, actor.Role, message))
	return &n, nil
}

// Agree records the acting party's acceptance of the current price. When
// both parties have agreed the job is materialized synchronously. If that
// fails the negotiation stays both_agreed and is returned together with
// the error so the caller can retry with Materialize.
func (e *Engine) Agree(ctx context.Context, id uint64, actor Party) (*model.Negotiation, error) {
	n, err := e.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := authorize(&n, actor); err != nil {
		return nil, err
	}
	switch n.Status {
	case model.StatusDeclined:
		return nil, ErrNegotiationClosed
	case model.StatusCompleted:
		return &n, nil
	case model.StatusBothAgreed:
		if err := e.ensureConfirmation(ctx, &n, actor, false); err != nil {
			return &n, err
		}
		return e.complete(ctx, &n)
	}

	if n.Agreed(actor.Role) {
		if err := e.ensureConfirmation(ctx, &n, actor, false); err != nil {
			return nil, err
		}
		return &n, nil
	}
	if !e.policy.OfferorMayAgreeFirst && n.LastOfferBy == actor.Role && !n.Agreed(actor.Role.Other()) {
		return nil, ErrOfferorCannotAgreeFirst
	}

	// The confirmation is written before the flag so that a set flag always
	// has a confirmation behind it. It is always a new row: one left from
	// before the last offer may still be retired by that counter-offer.
	if err := e.ensureConfirmation(ctx, &n, actor, true); err != nil {
		return nil, err
	}
	expected := n.Version
	n.SetAgreed(actor.Role, true)
	if n.BothAgreed() {
		n.Status = model.StatusBothAgreed
	}
	if err := e.save(ctx, &n, expected); err != nil {
		if errors.Is(err, ErrConcurrentModification) {
			e.retractConfirmation(ctx, n.ID, actor.ID)
		}
		return nil, err
	}

	if n.Status != model.StatusBothAgreed {
		e.emit(agreementPendingEvent(&n, actor.Role))
		return &n, nil
	}
	e.emit(agreedEvent(&n, model.RoleRequester))
	e.emit(agreedEvent(&n, model.RoleProvider))
	return e.complete(ctx, &n)
}

func (e *Engine) complete(ctx context.Context, n *model.Negotiation) (*model.Negotiation, error) {
	done, _, err := e.Materialize(ctx, n.ID)
	if err != nil {
		return n, err
	}
	return done, nil
}

// Decline closes a non-terminal negotiation for good.
func (e *Engine) Decline(ctx context.Context, id uint64, actor Party) (*model.Negotiation, error) {
	n, err := e.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := authorize(&n, actor); err != nil {
		return nil, err
	}
	if n.Status.Terminal() {
		return nil, ErrNegotiationClosed
	}

	expected := n.Version
	n.Status = model.StatusDeclined
	if err := e.save(ctx, &n, expected); err != nil {
		return nil, err
	}
	if err := e.call(ctx, "deactivate confirmations", func(ctx context.Context) error {
		return e.store.DeactivateConfirmations(ctx, n.ID)
	}); err != nil {
		e.log.Warn("deactivate confirmations failed", "negotiation_id", n.ID, "error", err)
	}
	e.emit(declinedEvent(&n, actor.Role))
	return &n, nil
}

// Get returns a negotiation visible to actor.
func (e *Engine) Get(ctx context.Context, id uint64, actor Party) (*model.Negotiation, error) {
	n, err := e.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := authorize(&n, actor); err != nil {
		return nil, err
	}
	return &n, nil
}

// Offers returns the offer history of a negotiation visible to actor.
func (e *Engine) Offers(ctx context.Context, id uint64, actor Party) ([]model.Offer, error) {
	if _, err := e.Get(ctx, id, actor); err != nil {
		return nil, err
	}
	var offers []model.Offer
	err := e.call(ctx, "list offers", func(ctx context.Context) (err error) {
		offers, err = e.store.ListOffers(ctx, id)
		return err
	})
	return offers, err
}

// call runs one store or directory operation under the per-call timeout.
// Repository sentinels pass through; anything else is transient.
func (e *Engine) call(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	ctx, cancel := context.WithTimeout(ctx, e.policy.CallTimeout)
	defer cancel()
	err := fn(ctx)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, repository.ErrNotFound),
		errors.Is(err, repository.ErrVersionConflict),
		errors.Is(err, repository.ErrDuplicate):
		return err
	}
	return fmt.Errorf("%s: %w: %w", op, ErrTransient, err)
}

func (e *Engine) load(ctx context.Context, id uint64) (model.Negotiation, error) {
	var n model.Negotiation
	err := e.call(ctx, "get negotiation", func(ctx context.Context) (err error) {
		n, err = e.store.GetNegotiation(ctx, id)
		return err
	})
	if errors.Is(err, repository.ErrNotFound) {
		return n, ErrNegotiationNotFound
	}
	return n, err
}

func (e *Engine) save(ctx context.Context, n *model.Negotiation, expected int64) error {
	err := e.call(ctx, "update negotiation", func(ctx context.Context) error {
		return e.store.UpdateNegotiation(ctx, n, expected)
	})
	switch {
	case errors.Is(err, repository.ErrVersionConflict):
		return ErrConcurrentModification
	case errors.Is(err, repository.ErrNotFound):
		return ErrNegotiationNotFound
	}
	return err
}

func (e *Engine) resolve(ctx context.Context, id uint64, side model.Role) (bool, error) {
	var ok bool
	err := e.call(ctx, "resolve party", func(ctx context.Context) (err error) {
		ok, err = e.dir.ActiveAs(ctx, id, side)
		return err
	})
	return ok, err
}

// ensureConfirmation makes sure actor has exactly one active confirmation
// at the current price. With fresh set an existing one is replaced.
func (e *Engine) ensureConfirmation(ctx context.Context, n *model.Negotiation, actor Party, fresh bool) error {
	if !fresh {
		var active []model.AgreementConfirmation
		if err := e.call(ctx, "list confirmations", func(ctx context.Context) (err error) {
			active, err = e.store.ActiveConfirmations(ctx, n.ID)
			return err
		}); err != nil {
			return err
		}
		for _, c := range active {
			if c.PartyID == actor.ID && c.PriceCents == n.CurrentPriceCents {
				return nil
			}
		}
	}
	return e.call(ctx, "confirm agreement", func(ctx context.Context) error {
		if err := e.store.DeactivatePartyConfirmations(ctx, n.ID, actor.ID); err != nil {
			return err
		}
		return e.store.CreateConfirmation(ctx, &model.AgreementConfirmation{
			NegotiationID: n.ID,
			PartyID:       actor.ID,
			Role:          actor.Role,
			PriceCents:    n.CurrentPriceCents,
		})
	})
}

func lastConfirmationID(cs []model.AgreementConfirmation) uint64 {
	var last uint64
	for _, c := range cs {
		if c.ID > last {
			last = c.ID
		}
	}
	return last
}

// discardUnlinkedJob removes a job left by a materialization whose link
// step failed. After a counter-offer it no longer matches the terms.
func (e *Engine) discardUnlinkedJob(ctx context.Context, negotiationID uint64) {
	var job model.Job
	err := e.call(ctx, "get job", func(ctx context.Context) (err error) {
		job, err = e.store.GetJobByNegotiation(ctx, negotiationID)
		return err
	})
	if errors.Is(err, repository.ErrNotFound) {
		return
	}
	if err == nil {
		err = e.call(ctx, "delete job", func(ctx context.Context) error {
			return e.store.DeleteJob(ctx, job.ID)
		})
	}
	if err != nil {
		e.log.Warn("discard unlinked job failed", "negotiation_id", negotiationID, "error", err)
	}
}

func (e *Engine) retractConfirmation(ctx context.Context, negotiationID, partyID uint64) {
	if err := e.call(ctx, "retract confirmation", func(ctx context.Context) error {
		return e.store.DeactivatePartyConfirmations(ctx, negotiationID, partyID)
	}); err != nil {
		e.log.Warn("retract confirmation failed", "negotiation_id", negotiationID, "party_id", partyID, "error", err)
	}
}

func (e *Engine) appendOffer(ctx context.Context, n *model.Negotiation, role model.Role, price int64, msg string) {
	o := model.Offer{NegotiationID: n.ID, Role: role, PriceCents: price, Message: msg}
	if err := e.call(ctx, "append offer", func(ctx context.Context) error {
		return e.store.AppendOffer(ctx, &o)
	}); err != nil {
		e.log.Error("offer history write failed", "negotiation_id", n.ID, "offer_count", n.OfferCount, "error", err)
	}
}

func authorize(n *model.Negotiation, actor Party) error {
	if !actor.Role.Valid() || actor.ID == 0 || n.PartyID(actor.Role) != actor.ID {
		return ErrUnauthorizedParty
	}
	return nil
}

func checkPrice(price, min, max int64) error {
	if price < min || price > max {
		return &PriceRangeError{Price: price, Min: min, Max: max}
	}
	return nil
}
