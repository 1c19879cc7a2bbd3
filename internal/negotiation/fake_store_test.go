package negotiation

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/iliyamo/flancer/internal/model"
	"github.com/iliyamo/flancer/internal/repository"
)

// memStore is an in-memory Store with the same compare-and-swap and
// uniqueness semantics as the SQL repositories.
type memStore struct {
	mu            sync.Mutex
	services      map[uint64]model.Service
	negotiations  map[uint64]model.Negotiation
	offers        []model.Offer
	confirmations []model.AgreementConfirmation
	jobs          map[uint64]model.Job
	nextID        uint64

	// failures injected into the next matching call
	failCreateJob error
	failUpdate    error
	// afterCreateJob runs once, outside the lock, after a job insert.
	afterCreateJob func()
	// beforeRetire runs once, outside the lock, before a counter-offer
	// retires the confirmations it saw.
	beforeRetire func()

	barrier     *sync.WaitGroup
	barrierLeft int
}

func newMemStore() *memStore {
	return &memStore{
		services:     map[uint64]model.Service{},
		negotiations: map[uint64]model.Negotiation{},
		jobs:         map[uint64]model.Job{},
	}
}

func (s *memStore) id() uint64 {
	s.nextID++
	return s.nextID
}

// armReadBarrier makes the next n negotiation reads wait for each other,
// so n concurrent callers all observe the same version.
func (s *memStore) armReadBarrier(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.barrier = &sync.WaitGroup{}
	s.barrier.Add(n)
	s.barrierLeft = n
}

func (s *memStore) addService(svc model.Service) model.Service {
	s.mu.Lock()
	defer s.mu.Unlock()
	svc.ID = s.id()
	s.services[svc.ID] = svc
	return svc
}

func (s *memStore) GetService(_ context.Context, id uint64) (model.Service, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	svc, ok := s.services[id]
	if !ok {
		return model.Service{}, repository.ErrNotFound
	}
	return svc, nil
}

func (s *memStore) CreateNegotiation(_ context.Context, n *model.Negotiation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	n.ID = s.id()
	n.Version = 1
	n.CreatedAt = time.Now()
	n.UpdatedAt = n.CreatedAt
	s.negotiations[n.ID] = *n
	return nil
}

func (s *memStore) GetNegotiation(_ context.Context, id uint64) (model.Negotiation, error) {
	s.mu.Lock()
	if s.barrierLeft > 0 {
		s.barrierLeft--
		b := s.barrier
		n := s.negotiations[id]
		s.mu.Unlock()
		b.Done()
		b.Wait()
		return n, nil
	}
	defer s.mu.Unlock()
	n, ok := s.negotiations[id]
	if !ok {
		return model.Negotiation{}, repository.ErrNotFound
	}
	return n, nil
}

func (s *memStore) UpdateNegotiation(_ context.Context, n *model.Negotiation, expected int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.failUpdate; err != nil {
		s.failUpdate = nil
		return err
	}
	cur, ok := s.negotiations[n.ID]
	if !ok {
		return repository.ErrNotFound
	}
	if cur.Version != expected {
		return repository.ErrVersionConflict
	}
	n.Version = expected + 1
	n.UpdatedAt = time.Now()
	s.negotiations[n.ID] = *n
	return nil
}

// mutate changes a stored negotiation as a concurrent writer would.
func (s *memStore) mutate(id uint64, fn func(n *model.Negotiation)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := s.negotiations[id]
	fn(&n)
	n.Version++
	s.negotiations[id] = n
}

func (s *memStore) negotiation(id uint64) model.Negotiation {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.negotiations[id]
}

func (s *memStore) AppendOffer(_ context.Context, o *model.Offer) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	o.ID = s.id()
	s.offers = append(s.offers, *o)
	return nil
}

func (s *memStore) ListOffers(_ context.Context, negotiationID uint64) ([]model.Offer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.Offer
	for _, o := range s.offers {
		if o.NegotiationID == negotiationID {
			out = append(out, o)
		}
	}
	return out, nil
}

func (s *memStore) CreateConfirmation(_ context.Context, c *model.AgreementConfirmation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c.ID = s.id()
	c.Active = true
	s.confirmations = append(s.confirmations, *c)
	return nil
}

func (s *memStore) DeactivateConfirmations(_ context.Context, negotiationID uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.confirmations {
		if s.confirmations[i].NegotiationID == negotiationID {
			s.confirmations[i].Active = false
		}
	}
	return nil
}

func (s *memStore) DeactivateConfirmationsThrough(_ context.Context, negotiationID, lastID uint64) error {
	s.mu.Lock()
	hook := s.beforeRetire
	s.beforeRetire = nil
	s.mu.Unlock()
	if hook != nil {
		hook()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.confirmations {
		c := &s.confirmations[i]
		if c.NegotiationID == negotiationID && c.ID <= lastID {
			c.Active = false
		}
	}
	return nil
}

func (s *memStore) DeactivatePartyConfirmations(_ context.Context, negotiationID, partyID uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.confirmations {
		c := &s.confirmations[i]
		if c.NegotiationID == negotiationID && c.PartyID == partyID {
			c.Active = false
		}
	}
	return nil
}

func (s *memStore) ActiveConfirmations(_ context.Context, negotiationID uint64) ([]model.AgreementConfirmation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.AgreementConfirmation
	for _, c := range s.confirmations {
		if c.NegotiationID == negotiationID && c.Active {
			out = append(out, c)
		}
	}
	return out, nil
}

func (s *memStore) CreateJob(_ context.Context, j *model.Job) error {
	s.mu.Lock()
	if err := s.failCreateJob; err != nil {
		s.failCreateJob = nil
		s.mu.Unlock()
		return err
	}
	for _, existing := range s.jobs {
		if existing.NegotiationID == j.NegotiationID {
			s.mu.Unlock()
			return repository.ErrDuplicate
		}
	}
	j.ID = s.id()
	s.jobs[j.ID] = *j
	hook := s.afterCreateJob
	s.afterCreateJob = nil
	s.mu.Unlock()
	if hook != nil {
		hook()
	}
	return nil
}

func (s *memStore) GetJob(_ context.Context, id uint64) (model.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[id]
	if !ok {
		return model.Job{}, repository.ErrNotFound
	}
	return j, nil
}

func (s *memStore) GetJobByNegotiation(_ context.Context, negotiationID uint64) (model.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, j := range s.jobs {
		if j.NegotiationID == negotiationID {
			return j, nil
		}
	}
	return model.Job{}, repository.ErrNotFound
}

func (s *memStore) DeleteJob(_ context.Context, id uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.jobs, id)
	return nil
}

func (s *memStore) jobCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.jobs)
}

// memDirectory resolves ids marked active to the side listed in roles.
type memDirectory struct {
	mu     sync.Mutex
	active map[uint64]bool
	roles  map[uint64]model.Role
	err    error
	block  bool
}

func (d *memDirectory) ActiveAs(ctx context.Context, id uint64, side model.Role) (bool, error) {
	d.mu.Lock()
	block, err, ok, role := d.block, d.err, d.active[id], d.roles[id]
	d.mu.Unlock()
	if block {
		<-ctx.Done()
		return false, ctx.Err()
	}
	if err != nil {
		return false, err
	}
	return ok && role == side, nil
}

func (d *memDirectory) set(id uint64, active bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.active[id] = active
}

// recordingNotifier keeps every queued event.
type recordingNotifier struct {
	mu     sync.Mutex
	events []model.NotificationEvent
}

func (r *recordingNotifier) Notify(ev model.NotificationEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *recordingNotifier) types() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.events))
	for _, ev := range r.events {
		out = append(out, ev.Type)
	}
	return out
}

func (r *recordingNotifier) last() model.NotificationEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.events[len(r.events)-1]
}

var errBoom = errors.New("boom")
