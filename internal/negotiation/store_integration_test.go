package negotiation_test

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/flancer/internal/database"
	"github.com/iliyamo/flancer/internal/model"
	"github.com/iliyamo/flancer/internal/negotiation"
	"github.com/iliyamo/flancer/internal/repository"
)

type collector struct {
	mu     sync.Mutex
	events []model.NotificationEvent
}

func (c *collector) Notify(ev model.NotificationEvent) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, ev)
}

func (c *collector) types() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, 0, len(c.events))
	for _, ev := range c.events {
		out = append(out, ev.Type)
	}
	return out
}

type sqlEnv struct {
	engine   *negotiation.Engine
	store    *repository.Store
	users    *repository.UserRepo
	notes    *collector
	client   negotiation.Party
	provider negotiation.Party
	service  model.Service
}

func newSQLEnv(t *testing.T) *sqlEnv {
	t.Helper()
	ctx := context.Background()
	db, err := database.OpenSQLite(filepath.Join(t.TempDir(), "engine.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, database.Migrate(ctx, db))

	env := &sqlEnv{store: repository.NewStore(db), users: repository.NewUserRepo(db), notes: &collector{}}
	cid, err := env.users.Create(ctx, "client@example.com", "password1", model.AccountClient, "Carla", 4)
	require.NoError(t, err)
	pid, err := env.users.Create(ctx, "dev@example.com", "password1", model.AccountFreelancer, "Dev", 4)
	require.NoError(t, err)
	env.client = negotiation.Party{ID: cid, Role: model.RoleRequester}
	env.provider = negotiation.Party{ID: pid, Role: model.RoleProvider}

	env.service = model.Service{ProviderID: pid, Title: "API integration", MinPriceCents: 50000, MaxPriceCents: 80000, IsActive: true}
	require.NoError(t, env.store.CreateService(ctx, &env.service))

	env.engine = negotiation.NewEngine(env.store, env.users, env.notes,
		negotiation.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))
	return env
}

func (env *sqlEnv) propose(t *testing.T, price int64) *model.Negotiation {
	t.Helper()
	n, err := env.engine.Propose(context.Background(), negotiation.Proposal{
		ServiceID:   env.service.ID,
		RequesterID: env.client.ID,
		ProviderID:  env.provider.ID,
		PriceCents:  price,
		Description: "Wire the payment API",
	})
	require.NoError(t, err)
	return n
}

func TestSQLStore_FullLifecycle(t *testing.T) {
	ctx := context.Background()
	env := newSQLEnv(t)

	n := env.propose(t, 65000)
	assert.Equal(t, model.StatusPending, n.Status)

	n, err := env.engine.CounterOffer(ctx, n.ID, env.client, 60000, "tighter budget")
	require.NoError(t, err)
	assert.Equal(t, 2, n.OfferCount)

	n, err = env.engine.Agree(ctx, n.ID, env.provider)
	require.NoError(t, err)
	assert.True(t, n.ProviderAgreed)
	assert.Equal(t, model.StatusPending, n.Status)

	n, err = env.engine.Agree(ctx, n.ID, env.client)
	require.NoError(t, err)
	assert.Equal(t, model.StatusCompleted, n.Status)
	require.NotNil(t, n.JobID)
	require.NotNil(t, n.FinalPriceCents)
	assert.Equal(t, int64(60000), *n.FinalPriceCents)

	job, err := env.store.GetJob(ctx, *n.JobID)
	require.NoError(t, err)
	assert.Equal(t, n.ID, job.NegotiationID)
	assert.Equal(t, int64(60000), job.PaymentCents)
	assert.Equal(t, "Wire the payment API", job.Description)
	assert.Equal(t, model.JobInProgress, job.Status)

	offers, err := env.engine.Offers(ctx, n.ID, env.client)
	require.NoError(t, err)
	require.Len(t, offers, 2)
	assert.Equal(t, int64(65000), offers[0].PriceCents)

	// a completed negotiation materializes to the same job
	_, again, err := env.engine.Materialize(ctx, n.ID)
	require.NoError(t, err)
	assert.Equal(t, job.ID, again.ID)

	assert.Contains(t, env.notes.types(), model.EventJobCreated)
}

func TestSQLStore_CounterRetiresConfirmations(t *testing.T) {
	ctx := context.Background()
	env := newSQLEnv(t)
	n := env.propose(t, 70000)

	_, err := env.engine.Agree(ctx, n.ID, env.client)
	require.NoError(t, err)
	active, err := env.store.ActiveConfirmations(ctx, n.ID)
	require.NoError(t, err)
	assert.Len(t, active, 1)

	_, err = env.engine.CounterOffer(ctx, n.ID, env.provider, 72000, "")
	require.NoError(t, err)
	active, err = env.store.ActiveConfirmations(ctx, n.ID)
	require.NoError(t, err)
	assert.Empty(t, active)

	_, _, err = env.engine.Materialize(ctx, n.ID)
	assert.ErrorIs(t, err, negotiation.ErrNotAgreed)
}

func TestSQLStore_DeactivatedPartyBlocksMaterialization(t *testing.T) {
	ctx := context.Background()
	env := newSQLEnv(t)
	n := env.propose(t, 70000)

	_, err := env.engine.Agree(ctx, n.ID, env.client)
	require.NoError(t, err)
	require.NoError(t, env.users.Deactivate(ctx, env.provider.ID))

	got, err := env.engine.Agree(ctx, n.ID, env.provider)
	require.ErrorIs(t, err, negotiation.ErrPartyNoLongerExists)
	require.NotNil(t, got)
	assert.Equal(t, model.StatusBothAgreed, got.Status, "agreement is kept for a later retry")

	_, err = env.store.GetJobByNegotiation(ctx, n.ID)
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func TestSQLStore_StaleVersionIsRejected(t *testing.T) {
	ctx := context.Background()
	env := newSQLEnv(t)
	n := env.propose(t, 70000)

	stale, err := env.store.GetNegotiation(ctx, n.ID)
	require.NoError(t, err)

	_, err = env.engine.CounterOffer(ctx, n.ID, env.client, 65000, "")
	require.NoError(t, err)

	stale.Status = model.StatusDeclined
	assert.ErrorIs(t, env.store.UpdateNegotiation(ctx, &stale, stale.Version), repository.ErrVersionConflict)

	fresh, err := env.engine.Get(ctx, n.ID, env.client)
	require.NoError(t, err)
	assert.Equal(t, model.StatusPending, fresh.Status)
	assert.Equal(t, int64(65000), fresh.CurrentPriceCents)
}
