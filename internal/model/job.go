package model

import "time"

// JobStatus is the state of a materialized job.
type JobStatus string

const JobInProgress JobStatus = "in_progress"

// Job is the record produced once both parties agreed on a price. A job is
// owned by exactly one negotiation (jobs.negotiation_id is unique).
//
// Fields:
//
//	ID            – primary key identifier.
//	NegotiationID – negotiation that spawned the job.
//	ServiceID     – listing the work was negotiated for.
//	RequesterID   – client paying for the work.
//	ProviderID    – freelancer delivering the work.
//	Status        – in_progress on creation.
//	PaymentCents  – the negotiation's final agreed price.
//	Deadline      – negotiation deadline, or a default horizon when absent.
//	Description   – negotiation job description or a placeholder.
//	CreatedAt     – creation timestamp.
type Job struct {
	ID            uint64    `json:"id"`
	NegotiationID uint64    `json:"negotiation_id"`
	ServiceID     uint64    `json:"service_id"`
	RequesterID   uint64    `json:"requester_id"`
	ProviderID    uint64    `json:"provider_id"`
	Status        JobStatus `json:"status"`
	PaymentCents  int64     `json:"payment_cents"`
	Deadline      time.Time `json:"deadline"`
	Description   string    `json:"description"`
	CreatedAt     time.Time `json:"created_at"`
}
