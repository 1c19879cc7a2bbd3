package repository

import (
	"context"

	"github.com/jmoiron/sqlx"

	"github.com/iliyamo/flancer/internal/model"
)

type jobRecord struct {
	ID            uint64 `db:"id"`
	NegotiationID uint64 `db:"negotiation_id"`
	ServiceID     uint64 `db:"service_id"`
	RequesterID   uint64 `db:"requester_id"`
	ProviderID    uint64 `db:"provider_id"`
	Status        string `db:"status"`
	PaymentCents  int64  `db:"payment_cents"`
	Deadline      int64  `db:"deadline"`
	Description   string `db:"description"`
	CreatedAt     int64  `db:"created_at"`
}

func (r jobRecord) toModel() model.Job {
	return model.Job{
		ID:            r.ID,
		NegotiationID: r.NegotiationID,
		ServiceID:     r.ServiceID,
		RequesterID:   r.RequesterID,
		ProviderID:    r.ProviderID,
		Status:        model.JobStatus(r.Status),
		PaymentCents:  r.PaymentCents,
		Deadline:      fromMillis(r.Deadline),
		Description:   r.Description,
		CreatedAt:     fromMillis(r.CreatedAt),
	}
}

const jobColumns = "id,negotiation_id,service_id,requester_id,provider_id,status,payment_cents,deadline,description,created_at"

// JobRepo stores jobs materialized from agreed negotiations.
type JobRepo struct{ DB *sqlx.DB }

func NewJobRepo(db *sqlx.DB) *JobRepo { return &JobRepo{DB: db} }

// CreateJob inserts j. A second job for the same negotiation fails with
// ErrDuplicate.
func (r *JobRepo) CreateJob(ctx context.Context, j *model.Job) error {
	now := nowMillis()
	res, err := r.DB.ExecContext(ctx,
		`INSERT INTO jobs (negotiation_id, service_id, requester_id, provider_id, status, payment_cents, deadline, description, created_at)
		 VALUES (?,?,?,?,?,?,?,?,?)`,
		j.NegotiationID, j.ServiceID, j.RequesterID, j.ProviderID, string(j.Status), j.PaymentCents,
		toMillis(j.Deadline), j.Description, now)
	if err != nil {
		if isDuplicate(err) {
			return ErrDuplicate
		}
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	j.ID = uint64(id)
	j.CreatedAt = fromMillis(now)
	return nil
}

func (r *JobRepo) GetJob(ctx context.Context, id uint64) (model.Job, error) {
	var rec jobRecord
	if err := r.DB.GetContext(ctx, &rec, "SELECT "+jobColumns+" FROM jobs WHERE id=?", id); err != nil {
		return model.Job{}, notFound(err)
	}
	return rec.toModel(), nil
}

func (r *JobRepo) GetJobByNegotiation(ctx context.Context, negotiationID uint64) (model.Job, error) {
	var rec jobRecord
	if err := r.DB.GetContext(ctx, &rec,
		"SELECT "+jobColumns+" FROM jobs WHERE negotiation_id=?", negotiationID); err != nil {
		return model.Job{}, notFound(err)
	}
	return rec.toModel(), nil
}

// DeleteJob removes a job that lost the race to be linked to its
// negotiation.
func (r *JobRepo) DeleteJob(ctx context.Context, id uint64) error {
	_, err := r.DB.ExecContext(ctx, "DELETE FROM jobs WHERE id=?", id)
	return err
}

// ListJobsByParty returns jobs where userID is requester or provider.
func (r *JobRepo) ListJobsByParty(ctx context.Context, userID uint64, limit, offset int) ([]model.Job, error) {
	var recs []jobRecord
	if err := r.DB.SelectContext(ctx, &recs,
		"SELECT "+jobColumns+" FROM jobs WHERE requester_id=? OR provider_id=? ORDER BY id DESC LIMIT ? OFFSET ?",
		userID, userID, limit, offset); err != nil {
		return nil, err
	}
	out := make([]model.Job, 0, len(recs))
	for _, rec := range recs {
		out = append(out, rec.toModel())
	}
	return out, nil
}

// CountJobs counts the jobs of userID in the given status.
func (r *JobRepo) CountJobs(ctx context.Context, userID uint64, status model.JobStatus) (int, error) {
	var n int
	err := r.DB.GetContext(ctx, &n,
		"SELECT COUNT(1) FROM jobs WHERE (requester_id=? OR provider_id=?) AND status=?",
		userID, userID, string(status))
	return n, err
}
