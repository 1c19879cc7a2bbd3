package repository

import (
	"context"
	"database/sql"

	"github.com/jmoiron/sqlx"

	"github.com/iliyamo/flancer/internal/model"
)

type negotiationRecord struct {
	ID                uint64        `db:"id"`
	ServiceID         uint64        `db:"service_id"`
	RequesterID       uint64        `db:"requester_id"`
	ProviderID        uint64        `db:"provider_id"`
	CurrentPriceCents int64         `db:"current_price_cents"`
	MinPriceCents     int64         `db:"min_price_cents"`
	MaxPriceCents     int64         `db:"max_price_cents"`
	Status            string        `db:"status"`
	LastOfferBy       string        `db:"last_offer_by"`
	OfferCount        int           `db:"offer_count"`
	Deadline          sql.NullInt64 `db:"deadline"`
	JobDescription    string        `db:"job_description"`
	RequesterAgreed   bool          `db:"requester_agreed"`
	ProviderAgreed    bool          `db:"provider_agreed"`
	FinalPriceCents   sql.NullInt64 `db:"final_price_cents"`
	JobID             sql.NullInt64 `db:"job_id"`
	Version           int64         `db:"version"`
	CreatedAt         int64         `db:"created_at"`
	UpdatedAt         int64         `db:"updated_at"`
}

func (r negotiationRecord) toModel() model.Negotiation {
	n := model.Negotiation{
		ID:                r.ID,
		ServiceID:         r.ServiceID,
		RequesterID:       r.RequesterID,
		ProviderID:        r.ProviderID,
		CurrentPriceCents: r.CurrentPriceCents,
		MinPriceCents:     r.MinPriceCents,
		MaxPriceCents:     r.MaxPriceCents,
		Status:            model.NegotiationStatus(r.Status),
		LastOfferBy:       model.Role(r.LastOfferBy),
		OfferCount:        r.OfferCount,
		Deadline:          timePtr(r.Deadline),
		JobDescription:    r.JobDescription,
		RequesterAgreed:   r.RequesterAgreed,
		ProviderAgreed:    r.ProviderAgreed,
		Version:           r.Version,
		CreatedAt:         fromMillis(r.CreatedAt),
		UpdatedAt:         fromMillis(r.UpdatedAt),
	}
	if r.FinalPriceCents.Valid {
		v := r.FinalPriceCents.Int64
		n.FinalPriceCents = &v
	}
	if r.JobID.Valid {
		v := uint64(r.JobID.Int64)
		n.JobID = &v
	}
	return n
}

func nullInt64(p *int64) sql.NullInt64 {
	if p == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *p, Valid: true}
}

func nullID(p *uint64) sql.NullInt64 {
	if p == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*p), Valid: true}
}

const negotiationColumns = `id,service_id,requester_id,provider_id,current_price_cents,min_price_cents,max_price_cents,
status,last_offer_by,offer_count,deadline,job_description,requester_agreed,provider_agreed,final_price_cents,job_id,
version,created_at,updated_at`

// NegotiationRepo persists negotiations together with their offer history
// and agreement confirmations.
type NegotiationRepo struct{ DB *sqlx.DB }

func NewNegotiationRepo(db *sqlx.DB) *NegotiationRepo { return &NegotiationRepo{DB: db} }

// CreateNegotiation inserts n at version 1 and fills in its ID.
func (r *NegotiationRepo) CreateNegotiation(ctx context.Context, n *model.Negotiation) error {
	now := nowMillis()
	res, err := r.DB.ExecContext(ctx,
		`INSERT INTO negotiations (service_id, requester_id, provider_id, current_price_cents, min_price_cents,
		 max_price_cents, status, last_offer_by, offer_count, deadline, job_description, requester_agreed,
		 provider_agreed, final_price_cents, job_id, version, created_at, updated_at)
		 VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,1,?,?)`,
		n.ServiceID, n.RequesterID, n.ProviderID, n.CurrentPriceCents, n.MinPriceCents,
		n.MaxPriceCents, string(n.Status), string(n.LastOfferBy), n.OfferCount, nullMillis(n.Deadline),
		n.JobDescription, n.RequesterAgreed, n.ProviderAgreed, nullInt64(n.FinalPriceCents), nullID(n.JobID),
		now, now)
	if err != nil {
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	n.ID = uint64(id)
	n.Version = 1
	n.CreatedAt, n.UpdatedAt = fromMillis(now), fromMillis(now)
	return nil
}

// GetNegotiation loads one negotiation by id.
func (r *NegotiationRepo) GetNegotiation(ctx context.Context, id uint64) (model.Negotiation, error) {
	var rec negotiationRecord
	if err := r.DB.GetContext(ctx, &rec,
		"SELECT "+negotiationColumns+" FROM negotiations WHERE id=?", id); err != nil {
		return model.Negotiation{}, notFound(err)
	}
	return rec.toModel(), nil
}

// UpdateNegotiation writes every mutable field of n provided the stored
// version still equals expectedVersion. On success n.Version is advanced.
// A mismatch yields ErrVersionConflict; a missing row yields ErrNotFound.
func (r *NegotiationRepo) UpdateNegotiation(ctx context.Context, n *model.Negotiation, expectedVersion int64) error {
	now := nowMillis()
	res, err := r.DB.ExecContext(ctx,
		`UPDATE negotiations SET current_price_cents=?, status=?, last_offer_by=?, offer_count=?, deadline=?,
		 job_description=?, requester_agreed=?, provider_agreed=?, final_price_cents=?, job_id=?,
		 version=version+1, updated_at=?
		 WHERE id=? AND version=?`,
		n.CurrentPriceCents, string(n.Status), string(n.LastOfferBy), n.OfferCount, nullMillis(n.Deadline),
		n.JobDescription, n.RequesterAgreed, n.ProviderAgreed, nullInt64(n.FinalPriceCents), nullID(n.JobID),
		now, n.ID, expectedVersion)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		var count int
		if err := r.DB.GetContext(ctx, &count, "SELECT COUNT(1) FROM negotiations WHERE id=?", n.ID); err != nil {
			return err
		}
		if count == 0 {
			return ErrNotFound
		}
		return ErrVersionConflict
	}
	n.Version = expectedVersion + 1
	n.UpdatedAt = fromMillis(now)
	return nil
}

// ListNegotiationsByParty returns negotiations where userID is either
// party, most recently updated first. An empty status matches all.
func (r *NegotiationRepo) ListNegotiationsByParty(ctx context.Context, userID uint64, status model.NegotiationStatus, limit, offset int) ([]model.Negotiation, error) {
	query := "SELECT " + negotiationColumns + " FROM negotiations WHERE (requester_id=? OR provider_id=?)"
	args := []any{userID, userID}
	if status != "" {
		query += " AND status=?"
		args = append(args, string(status))
	}
	query += " ORDER BY updated_at DESC, id DESC LIMIT ? OFFSET ?"
	args = append(args, limit, offset)

	var recs []negotiationRecord
	if err := r.DB.SelectContext(ctx, &recs, query, args...); err != nil {
		return nil, err
	}
	out := make([]model.Negotiation, 0, len(recs))
	for _, rec := range recs {
		out = append(out, rec.toModel())
	}
	return out, nil
}

// CountNegotiationsByStatus groups the negotiations of userID by status.
func (r *NegotiationRepo) CountNegotiationsByStatus(ctx context.Context, userID uint64) (map[model.NegotiationStatus]int, error) {
	var rows []struct {
		Status string `db:"status"`
		N      int    `db:"n"`
	}
	if err := r.DB.SelectContext(ctx, &rows,
		"SELECT status, COUNT(1) AS n FROM negotiations WHERE requester_id=? OR provider_id=? GROUP BY status",
		userID, userID); err != nil {
		return nil, err
	}
	out := make(map[model.NegotiationStatus]int, len(rows))
	for _, row := range rows {
		out[model.NegotiationStatus(row.Status)] = row.N
	}
	return out, nil
}

type offerRecord struct {
	ID            uint64 `db:"id"`
	NegotiationID uint64 `db:"negotiation_id"`
	Role          string `db:"role"`
	PriceCents    int64  `db:"price_cents"`
	Message       string `db:"message"`
	CreatedAt     int64  `db:"created_at"`
}

// AppendOffer records an immutable offer and fills in its ID.
func (r *NegotiationRepo) AppendOffer(ctx context.Context, o *model.Offer) error {
	now := nowMillis()
	res, err := r.DB.ExecContext(ctx,
		"INSERT INTO offers (negotiation_id, role, price_cents, message, created_at) VALUES (?,?,?,?,?)",
		o.NegotiationID, string(o.Role), o.PriceCents, o.Message, now)
	if err != nil {
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	o.ID = uint64(id)
	o.CreatedAt = fromMillis(now)
	return nil
}

// ListOffers returns the offer history of a negotiation, oldest first.
func (r *NegotiationRepo) ListOffers(ctx context.Context, negotiationID uint64) ([]model.Offer, error) {
	var recs []offerRecord
	if err := r.DB.SelectContext(ctx, &recs,
		"SELECT id, negotiation_id, role, price_cents, message, created_at FROM offers WHERE negotiation_id=? ORDER BY id",
		negotiationID); err != nil {
		return nil, err
	}
	out := make([]model.Offer, 0, len(recs))
	for _, rec := range recs {
		out = append(out, model.Offer{
			ID:            rec.ID,
			NegotiationID: rec.NegotiationID,
			Role:          model.Role(rec.Role),
			PriceCents:    rec.PriceCents,
			Message:       rec.Message,
			CreatedAt:     fromMillis(rec.CreatedAt),
		})
	}
	return out, nil
}

type confirmationRecord struct {
	ID            uint64 `db:"id"`
	NegotiationID uint64 `db:"negotiation_id"`
	PartyID       uint64 `db:"party_id"`
	Role          string `db:"role"`
	PriceCents    int64  `db:"price_cents"`
	Active        bool   `db:"active"`
	CreatedAt     int64  `db:"created_at"`
}

// CreateConfirmation records an active agreement confirmation.
func (r *NegotiationRepo) CreateConfirmation(ctx context.Context, c *model.AgreementConfirmation) error {
	now := nowMillis()
	res, err := r.DB.ExecContext(ctx,
		`INSERT INTO agreement_confirmations (negotiation_id, party_id, role, price_cents, active, created_at)
		 VALUES (?,?,?,?,?,?)`,
		c.NegotiationID, c.PartyID, string(c.Role), c.PriceCents, true, now)
	if err != nil {
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	c.ID = uint64(id)
	c.Active = true
	c.CreatedAt = fromMillis(now)
	return nil
}

// DeactivateConfirmations marks every confirmation of a negotiation
// inactive. It runs when a negotiation is declined.
func (r *NegotiationRepo) DeactivateConfirmations(ctx context.Context, negotiationID uint64) error {
	_, err := r.DB.ExecContext(ctx,
		"UPDATE agreement_confirmations SET active=? WHERE negotiation_id=? AND active=?",
		false, negotiationID, true)
	return err
}

// DeactivateConfirmationsThrough retires the active confirmations of a
// negotiation whose id is at most lastID. A new offer retires the
// confirmations that existed before it was saved; ones written afterwards
// belong to the new price and stay active.
func (r *NegotiationRepo) DeactivateConfirmationsThrough(ctx context.Context, negotiationID, lastID uint64) error {
	_, err := r.DB.ExecContext(ctx,
		"UPDATE agreement_confirmations SET active=? WHERE negotiation_id=? AND id<=? AND active=?",
		false, negotiationID, lastID, true)
	return err
}

// DeactivatePartyConfirmations retires the active confirmations of one
// party so that a fresh one can replace them.
func (r *NegotiationRepo) DeactivatePartyConfirmations(ctx context.Context, negotiationID, partyID uint64) error {
	_, err := r.DB.ExecContext(ctx,
		"UPDATE agreement_confirmations SET active=? WHERE negotiation_id=? AND party_id=? AND active=?",
		false, negotiationID, partyID, true)
	return err
}

// ActiveConfirmations returns the confirmations currently in force.
func (r *NegotiationRepo) ActiveConfirmations(ctx context.Context, negotiationID uint64) ([]model.AgreementConfirmation, error) {
	var recs []confirmationRecord
	if err := r.DB.SelectContext(ctx, &recs,
		`SELECT id, negotiation_id, party_id, role, price_cents, active, created_at
		 FROM agreement_confirmations WHERE negotiation_id=? AND active=? ORDER BY id`,
		negotiationID, true); err != nil {
		return nil, err
	}
	out := make([]model.AgreementConfirmation, 0, len(recs))
	for _, rec := range recs {
		out = append(out, model.AgreementConfirmation{
			ID:            rec.ID,
			NegotiationID: rec.NegotiationID,
			PartyID:       rec.PartyID,
			Role:          model.Role(rec.Role),
			PriceCents:    rec.PriceCents,
			Active:        rec.Active,
			CreatedAt:     fromMillis(rec.CreatedAt),
		})
	}
	return out, nil
}
