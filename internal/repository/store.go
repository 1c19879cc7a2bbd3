package repository

import "github.com/jmoiron/sqlx"

// Store groups the repositories the negotiation engine writes to. Each
// embedded repo contributes its own method set.
type Store struct {
	*ServiceRepo
	*NegotiationRepo
	*JobRepo
}

func NewStore(db *sqlx.DB) *Store {
	return &Store{
		ServiceRepo:     NewServiceRepo(db),
		NegotiationRepo: NewNegotiationRepo(db),
		JobRepo:         NewJobRepo(db),
	}
}
