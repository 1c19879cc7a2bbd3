package repository

import (
	"context"

	"github.com/jmoiron/sqlx"

	"github.com/iliyamo/flancer/internal/model"
)

type serviceRecord struct {
	ID            uint64 `db:"id"`
	ProviderID    uint64 `db:"provider_id"`
	Title         string `db:"title"`
	Description   string `db:"description"`
	MinPriceCents int64  `db:"min_price_cents"`
	MaxPriceCents int64  `db:"max_price_cents"`
	IsActive      bool   `db:"is_active"`
	CreatedAt     int64  `db:"created_at"`
	UpdatedAt     int64  `db:"updated_at"`
}

func (r serviceRecord) toModel() model.Service {
	return model.Service{
		ID:            r.ID,
		ProviderID:    r.ProviderID,
		Title:         r.Title,
		Description:   r.Description,
		MinPriceCents: r.MinPriceCents,
		MaxPriceCents: r.MaxPriceCents,
		IsActive:      r.IsActive,
		CreatedAt:     fromMillis(r.CreatedAt),
		UpdatedAt:     fromMillis(r.UpdatedAt),
	}
}

const serviceColumns = "id,provider_id,title,description,min_price_cents,max_price_cents,is_active,created_at,updated_at"

// ServiceRepo provides access to freelancer service listings.
type ServiceRepo struct{ DB *sqlx.DB }

func NewServiceRepo(db *sqlx.DB) *ServiceRepo { return &ServiceRepo{DB: db} }

// CreateService inserts s and fills in its ID and timestamps.
func (r *ServiceRepo) CreateService(ctx context.Context, s *model.Service) error {
	now := nowMillis()
	res, err := r.DB.ExecContext(ctx,
		`INSERT INTO services (provider_id, title, description, min_price_cents, max_price_cents, is_active, created_at, updated_at)
		 VALUES (?,?,?,?,?,?,?,?)`,
		s.ProviderID, s.Title, s.Description, s.MinPriceCents, s.MaxPriceCents, s.IsActive, now, now)
	if err != nil {
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	s.ID = uint64(id)
	s.CreatedAt, s.UpdatedAt = fromMillis(now), fromMillis(now)
	return nil
}

// GetService returns the listing with the given id, active or not.
func (r *ServiceRepo) GetService(ctx context.Context, id uint64) (model.Service, error) {
	var rec serviceRecord
	if err := r.DB.GetContext(ctx, &rec,
		"SELECT "+serviceColumns+" FROM services WHERE id=?", id); err != nil {
		return model.Service{}, notFound(err)
	}
	return rec.toModel(), nil
}

// ListServices returns active listings, newest first. A non-zero
// providerID restricts the result to one freelancer.
func (r *ServiceRepo) ListServices(ctx context.Context, providerID uint64, limit, offset int) ([]model.Service, error) {
	query := "SELECT " + serviceColumns + " FROM services WHERE is_active=?"
	args := []any{true}
	if providerID != 0 {
		query += " AND provider_id=?"
		args = append(args, providerID)
	}
	query += " ORDER BY id DESC LIMIT ? OFFSET ?"
	args = append(args, limit, offset)

	var recs []serviceRecord
	if err := r.DB.SelectContext(ctx, &recs, query, args...); err != nil {
		return nil, err
	}
	out := make([]model.Service, 0, len(recs))
	for _, rec := range recs {
		out = append(out, rec.toModel())
	}
	return out, nil
}

// SetServiceActive toggles a listing owned by providerID.
func (r *ServiceRepo) SetServiceActive(ctx context.Context, id, providerID uint64, active bool) error {
	res, err := r.DB.ExecContext(ctx,
		"UPDATE services SET is_active=?, updated_at=? WHERE id=? AND provider_id=?",
		active, nowMillis(), id, providerID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n > 0 {
		return nil
	}
	if _, err := r.GetService(ctx, id); err != nil {
		return err
	}
	return ErrForbidden
}
