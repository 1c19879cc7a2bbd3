package negotiation

import (
	"fmt"
	"strconv"

	"github.com/google/uuid"

	"github.com/iliyamo/flancer/internal/model"
)

// emit hands ev to the notifier. Notifiers never block, so a slow
// transport cannot delay or fail a transition.
func (e *Engine) emit(ev model.NotificationEvent) {
	ev.ID = uuid.NewString()
	ev.CreatedAt = e.now().UTC()
	e.notify.Notify(ev)
}

func baseMeta(n *model.Negotiation) map[string]string {
	return map[string]string{
		"negotiation_id": strconv.FormatUint(n.ID, 10),
		"service_id":     strconv.FormatUint(n.ServiceID, 10),
		"price_cents":    strconv.FormatInt(n.CurrentPriceCents, 10),
		"offer_count":    strconv.Itoa(n.OfferCount),
	}
}

func proposedEvent(n *model.Negotiation, serviceTitle string) model.NotificationEvent {
	meta := baseMeta(n)
	meta["from_role"] = string(model.RoleProvider)
	return model.NotificationEvent{
		UserID:   n.RequesterID,
		Type:     model.EventNegotiationProposed,
		Title:    "New price proposal",
		Message:  fmt.Sprintf("A freelancer proposed %s for %q.", FormatCents(n.CurrentPriceCents), serviceTitle),
		Metadata: meta,
	}
}

func counteredEvent(n *model.Negotiation, by model.Role, message string) model.NotificationEvent {
	meta := baseMeta(n)
	meta["from_role"] = string(by)
	if message != "" {
		meta["message"] = message
	}
	return model.NotificationEvent{
		UserID:   n.PartyID(by.Other()),
		Type:     model.EventNegotiationCountered,
		Title:    "Counter offer received",
		Message:  fmt.Sprintf("The %s countered with %s.", by, FormatCents(n.CurrentPriceCents)),
		Metadata: meta,
	}
}

func agreementPendingEvent(n *model.Negotiation, by model.Role) model.NotificationEvent {
	meta := baseMeta(n)
	meta["from_role"] = string(by)
	return model.NotificationEvent{
		UserID:   n.PartyID(by.Other()),
		Type:     model.EventAgreementPending,
		Title:    "Agreement awaiting your confirmation",
		Message:  fmt.Sprintf("The %s agreed to %s. Confirm to start the job.", by, FormatCents(n.CurrentPriceCents)),
		Metadata: meta,
	}
}

func agreedEvent(n *model.Negotiation, to model.Role) model.NotificationEvent {
	return model.NotificationEvent{
		UserID:   n.PartyID(to),
		Type:     model.EventNegotiationAgreed,
		Title:    "Price agreed",
		Message:  fmt.Sprintf("Both parties agreed on %s.", FormatCents(n.CurrentPriceCents)),
		Metadata: baseMeta(n),
	}
}

func declinedEvent(n *model.Negotiation, by model.Role) model.NotificationEvent {
	meta := baseMeta(n)
	meta["from_role"] = string(by)
	return model.NotificationEvent{
		UserID:   n.PartyID(by.Other()),
		Type:     model.EventNegotiationDeclined,
		Title:    "Negotiation declined",
		Message:  fmt.Sprintf("The %s declined the negotiation.", by),
		Metadata: meta,
	}
}

func jobCreatedEvent(n *model.Negotiation, job *model.Job, to model.Role) model.NotificationEvent {
	meta := baseMeta(n)
	meta["job_id"] = strconv.FormatUint(job.ID, 10)
	meta["deadline"] = job.Deadline.UTC().Format("2006-01-02")
	return model.NotificationEvent{
		UserID:   n.PartyID(to),
		Type:     model.EventJobCreated,
		Title:    "Job started",
		Message:  fmt.Sprintf("A job for %s was created and is now in progress.", FormatCents(job.PaymentCents)),
		Metadata: meta,
	}
}
