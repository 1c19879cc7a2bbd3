package repository

import (
	"context"
	"strings"

	"github.com/jmoiron/sqlx"

	"github.com/iliyamo/flancer/internal/model"
	"github.com/iliyamo/flancer/internal/utils"
)

// userRecord mirrors the 'users' table.
type userRecord struct {
	ID           uint64 `db:"id"`
	Email        string `db:"email"`
	PasswordHash string `db:"password_hash"`
	Role         string `db:"role"`
	DisplayName  string `db:"display_name"`
	IsActive     bool   `db:"is_active"`
	CreatedAt    int64  `db:"created_at"`
	UpdatedAt    int64  `db:"updated_at"`
}

func (r userRecord) toModel() model.User {
	return model.User{
		ID:           r.ID,
		Email:        r.Email,
		PasswordHash: r.PasswordHash,
		Role:         r.Role,
		DisplayName:  r.DisplayName,
		IsActive:     r.IsActive,
		CreatedAt:    fromMillis(r.CreatedAt),
		UpdatedAt:    fromMillis(r.UpdatedAt),
	}
}

const userColumns = "id,email,password_hash,role,display_name,is_active,created_at,updated_at"

type UserRepo struct{ DB *sqlx.DB }

func NewUserRepo(db *sqlx.DB) *UserRepo { return &UserRepo{DB: db} }

// Create hashes password and inserts the user, returning its ID.
func (r *UserRepo) Create(ctx context.Context, email, password, role, displayName string, cost int) (uint64, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	hash, err := utils.HashPassword(password, cost)
	if err != nil {
		return 0, err
	}
	now := nowMillis()
	res, err := r.DB.ExecContext(ctx,
		"INSERT INTO users (email, password_hash, role, display_name, is_active, created_at, updated_at) VALUES (?,?,?,?,?,?,?)",
		email, hash, role, strings.TrimSpace(displayName), true, now, now)
	if err != nil {
		if isDuplicate(err) {
			return 0, ErrEmailExists
		}
		return 0, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}
	return uint64(id), nil
}

// GetByEmail fetches a user by normalized email.
func (r *UserRepo) GetByEmail(ctx context.Context, email string) (model.User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	var rec userRecord
	if err := r.DB.GetContext(ctx, &rec,
		"SELECT "+userColumns+" FROM users WHERE email=? LIMIT 1", email); err != nil {
		return model.User{}, notFound(err)
	}
	return rec.toModel(), nil
}

// GetByID fetches a user by id.
func (r *UserRepo) GetByID(ctx context.Context, id uint64) (model.User, error) {
	var rec userRecord
	if err := r.DB.GetContext(ctx, &rec,
		"SELECT "+userColumns+" FROM users WHERE id=? LIMIT 1", id); err != nil {
		return model.User{}, notFound(err)
	}
	return rec.toModel(), nil
}

// ActiveAs reports whether id denotes an active account whose role lets
// it take the given side of a negotiation. It is the directory lookup used
// to validate negotiation parties.
func (r *UserRepo) ActiveAs(ctx context.Context, id uint64, side model.Role) (bool, error) {
	var roles []string
	if err := r.DB.SelectContext(ctx, &roles,
		"SELECT role FROM users WHERE id=? AND is_active=?", id, true); err != nil {
		return false, err
	}
	if len(roles) == 0 {
		return false, nil
	}
	got, ok := model.NegotiationRole(roles[0])
	return ok && got == side, nil
}

// Deactivate marks an account inactive. Deactivated users can no longer
// log in or take part in negotiations.
func (r *UserRepo) Deactivate(ctx context.Context, id uint64) error {
	res, err := r.DB.ExecContext(ctx,
		"UPDATE users SET is_active=?, updated_at=? WHERE id=?", false, nowMillis(), id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}
