package negotiation

import (
	"context"
	"errors"

	"github.com/iliyamo/flancer/internal/model"
	"github.com/iliyamo/flancer/internal/repository"
)

// Materialize turns a both_agreed negotiation into a job and marks it
// completed. Every step is safe to retry: a completed negotiation returns
// its existing job, and the unique job-per-negotiation constraint means a
// retry after a partial failure reuses the job already written as long as
// its terms still match.
func (e *Engine) Materialize(ctx context.Context, id uint64) (*model.Negotiation, *model.Job, error) {
	n, err := e.load(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	switch n.Status {
	case model.StatusCompleted:
		job, err := e.linkedJob(ctx, &n)
		if err != nil {
			return nil, nil, err
		}
		return &n, job, nil
	case model.StatusDeclined:
		return nil, nil, ErrNegotiationClosed
	case model.StatusPending:
		return nil, nil, ErrNotAgreed
	}

	if n.ServiceID == 0 || n.RequesterID == 0 || n.ProviderID == 0 {
		return &n, nil, ErrIncompleteNegotiation
	}
	for _, side := range []model.Role{model.RoleRequester, model.RoleProvider} {
		ok, err := e.resolve(ctx, n.PartyID(side), side)
		if err != nil {
			return &n, nil, err
		}
		if !ok {
			return &n, nil, ErrPartyNoLongerExists
		}
	}
	price := n.CurrentPriceCents
	if price <= 0 {
		return &n, nil, ErrIncompleteNegotiation
	}
	if err := e.checkConfirmations(ctx, &n, price); err != nil {
		return &n, nil, err
	}

	now := e.now().UTC()
	job := model.Job{
		NegotiationID: n.ID,
		ServiceID:     n.ServiceID,
		RequesterID:   n.RequesterID,
		ProviderID:    n.ProviderID,
		Status:        model.JobInProgress,
		PaymentCents:  price,
		Deadline:      now.Add(e.policy.DefaultDeadline),
		Description:   n.JobDescription,
	}
	if n.Deadline != nil {
		job.Deadline = *n.Deadline
	}
	if job.Description == "" {
		job.Description = e.policy.PlaceholderDescription
	}

	job, created, err := e.writeJob(ctx, job, n.Deadline != nil)
	if err != nil {
		return &n, nil, err
	}

	expected := n.Version
	n.Status = model.StatusCompleted
	n.FinalPriceCents = &price
	n.JobID = &job.ID
	if err := e.save(ctx, &n, expected); err != nil {
		if !errors.Is(err, ErrConcurrentModification) {
			// the job stays; a retry at the same terms reuses it
			return nil, nil, err
		}
		return e.resolveLinkRace(ctx, id, &job, created)
	}

	e.emit(jobCreatedEvent(&n, &job, model.RoleRequester))
	e.emit(jobCreatedEvent(&n, &job, model.RoleProvider))
	return &n, &job, nil
}

// writeJob inserts want, or reuses the job already written for the
// negotiation when it carries the same terms. A job with other terms was
// left by an earlier failed link at a price since countered; it is
// replaced. fixedDeadline says whether want's deadline must match too.
func (e *Engine) writeJob(ctx context.Context, want model.Job, fixedDeadline bool) (model.Job, bool, error) {
	for attempt := 0; attempt < 3; attempt++ {
		job := want
		err := e.call(ctx, "create job", func(ctx context.Context) error {
			return e.store.CreateJob(ctx, &job)
		})
		if err == nil {
			return job, true, nil
		}
		if !errors.Is(err, repository.ErrDuplicate) {
			return model.Job{}, false, err
		}

		var existing model.Job
		err = e.call(ctx, "get job", func(ctx context.Context) (err error) {
			existing, err = e.store.GetJobByNegotiation(ctx, want.NegotiationID)
			return err
		})
		if errors.Is(err, repository.ErrNotFound) {
			continue
		}
		if err != nil {
			return model.Job{}, false, err
		}
		if sameTerms(&existing, &want, fixedDeadline) {
			return existing, false, nil
		}

		e.log.Warn("replacing stale job", "negotiation_id", want.NegotiationID, "job_id", existing.ID,
			"payment_cents", existing.PaymentCents, "agreed_cents", want.PaymentCents)
		if err := e.call(ctx, "delete job", func(ctx context.Context) error {
			return e.store.DeleteJob(ctx, existing.ID)
		}); err != nil {
			return model.Job{}, false, err
		}
	}
	return model.Job{}, false, ErrConcurrentModification
}

func sameTerms(have, want *model.Job, fixedDeadline bool) bool {
	if have.PaymentCents != want.PaymentCents ||
		have.Description != want.Description ||
		have.ServiceID != want.ServiceID ||
		have.RequesterID != want.RequesterID ||
		have.ProviderID != want.ProviderID {
		return false
	}
	return !fixedDeadline || have.Deadline.UnixMilli() == want.Deadline.UnixMilli()
}

// resolveLinkRace handles a lost compare-and-swap while linking job. If a
// concurrent caller completed the negotiation with this job the outcome is
// the same as winning. Otherwise the negotiation moved on and a job this
// caller created is removed again.
func (e *Engine) resolveLinkRace(ctx context.Context, id uint64, job *model.Job, created bool) (*model.Negotiation, *model.Job, error) {
	fresh, err := e.load(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	if fresh.Status == model.StatusCompleted && fresh.JobID != nil && *fresh.JobID == job.ID {
		return &fresh, job, nil
	}
	if created {
		if err := e.call(ctx, "delete job", func(ctx context.Context) error {
			return e.store.DeleteJob(ctx, job.ID)
		}); err != nil {
			e.log.Error("orphaned job left behind", "negotiation_id", id, "job_id", job.ID, "error", err)
		}
	}
	return nil, nil, ErrConcurrentModification
}

func (e *Engine) checkConfirmations(ctx context.Context, n *model.Negotiation, price int64) error {
	var active []model.AgreementConfirmation
	if err := e.call(ctx, "list confirmations", func(ctx context.Context) (err error) {
		active, err = e.store.ActiveConfirmations(ctx, n.ID)
		return err
	}); err != nil {
		return err
	}
	var requester, provider bool
	for _, c := range active {
		if c.PriceCents != price {
			continue
		}
		switch c.PartyID {
		case n.RequesterID:
			requester = true
		case n.ProviderID:
			provider = true
		}
	}
	if !requester || !provider {
		return ErrNotAgreed
	}
	return nil
}

func (e *Engine) linkedJob(ctx context.Context, n *model.Negotiation) (*model.Job, error) {
	var job model.Job
	err := e.call(ctx, "get job", func(ctx context.Context) (err error) {
		if n.JobID != nil {
			job, err = e.store.GetJob(ctx, *n.JobID)
			return err
		}
		job, err = e.store.GetJobByNegotiation(ctx, n.ID)
		return err
	})
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrIncompleteNegotiation
	}
	if err != nil {
		return nil, err
	}
	return &job, nil
}
