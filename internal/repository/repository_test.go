package repository_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/flancer/internal/database"
	"github.com/iliyamo/flancer/internal/model"
	"github.com/iliyamo/flancer/internal/repository"
	"github.com/iliyamo/flancer/internal/utils"
)

func openTestDB(t *testing.T) *sqlx.DB {
	t.Helper()
	db, err := database.OpenSQLite(filepath.Join(t.TempDir(), "flancer.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, database.Migrate(context.Background(), db))
	return db
}

type fixture struct {
	db       *sqlx.DB
	users    *repository.UserRepo
	store    *repository.Store
	client   uint64
	provider uint64
	service  model.Service
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	db := openTestDB(t)
	f := &fixture{db: db, users: repository.NewUserRepo(db), store: repository.NewStore(db)}

	var err error
	f.client, err = f.users.Create(ctx, "client@example.com", "password1", model.AccountClient, "Carla", 4)
	require.NoError(t, err)
	f.provider, err = f.users.Create(ctx, "dev@example.com", "password1", model.AccountFreelancer, "Dev", 4)
	require.NoError(t, err)

	f.service = model.Service{
		ProviderID: f.provider, Title: "Landing page", Description: "One page site",
		MinPriceCents: 50000, MaxPriceCents: 80000, IsActive: true,
	}
	require.NoError(t, f.store.CreateService(ctx, &f.service))
	return f
}

func (f *fixture) negotiation(t *testing.T) model.Negotiation {
	t.Helper()
	n := model.Negotiation{
		ServiceID: f.service.ID, RequesterID: f.client, ProviderID: f.provider,
		CurrentPriceCents: 65000, MinPriceCents: 50000, MaxPriceCents: 80000,
		Status: model.StatusPending, LastOfferBy: model.RoleProvider, OfferCount: 1,
	}
	require.NoError(t, f.store.CreateNegotiation(context.Background(), &n))
	return n
}

func TestUserRepo_CreateAndDeactivate(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	users := repository.NewUserRepo(db)

	id, err := users.Create(ctx, "  Alice@Example.com ", "password1", model.AccountClient, "Alice", 4)
	require.NoError(t, err)

	_, err = users.Create(ctx, "alice@example.com", "password2", model.AccountClient, "Alice", 4)
	assert.ErrorIs(t, err, repository.ErrEmailExists)

	_, err = users.Create(ctx, "bob@example.com", "short", model.AccountClient, "Bob", 4)
	assert.ErrorIs(t, err, utils.ErrWeakPassword)

	u, err := users.GetByEmail(ctx, "ALICE@example.com")
	require.NoError(t, err)
	assert.Equal(t, id, u.ID)
	assert.True(t, u.IsActive)
	assert.True(t, utils.VerifyPassword(u.PasswordHash, "password1"))

	ok, err := users.ActiveAs(ctx, id, model.RoleRequester)
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = users.ActiveAs(ctx, id, model.RoleProvider)
	require.NoError(t, err)
	assert.False(t, ok, "a client account cannot act as provider")

	require.NoError(t, users.Deactivate(ctx, id))
	ok, err = users.ActiveAs(ctx, id, model.RoleRequester)
	require.NoError(t, err)
	assert.False(t, ok, "deactivated accounts no longer resolve")

	ok, err = users.ActiveAs(ctx, 9999, model.RoleRequester)
	require.NoError(t, err)
	assert.False(t, ok)

	assert.ErrorIs(t, users.Deactivate(ctx, 9999), repository.ErrNotFound)
	_, err = users.GetByID(ctx, 9999)
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func TestTokenRepo_Lifecycle(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	tokens := repository.NewTokenRepo(f.db)

	require.NoError(t, tokens.StoreRefresh(ctx, f.client, "h1", time.Now().Add(time.Hour)))
	require.NoError(t, tokens.StoreRefresh(ctx, f.client, "h2", time.Now().Add(time.Hour)))
	require.NoError(t, tokens.StoreRefresh(ctx, f.client, "old", time.Now().Add(-time.Minute)))

	uid, err := tokens.ValidateRefresh(ctx, "h1")
	require.NoError(t, err)
	assert.Equal(t, f.client, uid)

	_, err = tokens.ValidateRefresh(ctx, "old")
	assert.ErrorIs(t, err, repository.ErrNotFound, "expired")
	_, err = tokens.ValidateRefresh(ctx, "missing")
	assert.ErrorIs(t, err, repository.ErrNotFound)

	require.NoError(t, tokens.RevokeByHash(ctx, "h1"))
	_, err = tokens.ValidateRefresh(ctx, "h1")
	assert.ErrorIs(t, err, repository.ErrNotFound)

	require.NoError(t, tokens.RevokeAllForUser(ctx, f.client))
	_, err = tokens.ValidateRefresh(ctx, "h2")
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func TestServiceRepo_OwnershipAndListing(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	got, err := f.store.GetService(ctx, f.service.ID)
	require.NoError(t, err)
	assert.Equal(t, f.service.Title, got.Title)
	assert.Equal(t, int64(50000), got.MinPriceCents)

	list, err := f.store.ListServices(ctx, f.provider, 10, 0)
	require.NoError(t, err)
	assert.Len(t, list, 1)

	assert.ErrorIs(t, f.store.SetServiceActive(ctx, f.service.ID, f.client, false), repository.ErrForbidden)
	assert.ErrorIs(t, f.store.SetServiceActive(ctx, 9999, f.provider, false), repository.ErrNotFound)

	require.NoError(t, f.store.SetServiceActive(ctx, f.service.ID, f.provider, false))
	list, err = f.store.ListServices(ctx, 0, 10, 0)
	require.NoError(t, err)
	assert.Empty(t, list)

	got, err = f.store.GetService(ctx, f.service.ID)
	require.NoError(t, err)
	assert.False(t, got.IsActive)
}

func TestNegotiationRepo_VersionGuard(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	n := f.negotiation(t)
	assert.Equal(t, int64(1), n.Version)

	deadline := time.Now().Add(48 * time.Hour).UTC().Truncate(time.Millisecond)
	n.CurrentPriceCents = 60000
	n.LastOfferBy = model.RoleRequester
	n.OfferCount = 2
	n.Deadline = &deadline
	require.NoError(t, f.store.UpdateNegotiation(ctx, &n, 1))
	assert.Equal(t, int64(2), n.Version)

	stale := n
	stale.CurrentPriceCents = 70000
	assert.ErrorIs(t, f.store.UpdateNegotiation(ctx, &stale, 1), repository.ErrVersionConflict)

	missing := n
	missing.ID = 9999
	assert.ErrorIs(t, f.store.UpdateNegotiation(ctx, &missing, 2), repository.ErrNotFound)

	got, err := f.store.GetNegotiation(ctx, n.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(60000), got.CurrentPriceCents, "conflicting write must not apply")
	assert.Equal(t, int64(2), got.Version)
	assert.Equal(t, model.RoleRequester, got.LastOfferBy)
	require.NotNil(t, got.Deadline)
	assert.True(t, deadline.Equal(*got.Deadline))
	assert.Nil(t, got.FinalPriceCents)
	assert.Nil(t, got.JobID)

	_, err = f.store.GetNegotiation(ctx, 9999)
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func TestNegotiationRepo_OffersAndConfirmations(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	n := f.negotiation(t)

	for i, price := range []int64{65000, 60000, 62000} {
		role := model.RoleProvider
		if i%2 == 1 {
			role = model.RoleRequester
		}
		require.NoError(t, f.store.AppendOffer(ctx, &model.Offer{NegotiationID: n.ID, Role: role, PriceCents: price}))
	}
	offers, err := f.store.ListOffers(ctx, n.ID)
	require.NoError(t, err)
	require.Len(t, offers, 3)
	assert.Equal(t, int64(65000), offers[0].PriceCents)
	assert.Equal(t, model.RoleRequester, offers[1].Role)
	assert.Equal(t, int64(62000), offers[2].PriceCents)

	require.NoError(t, f.store.CreateConfirmation(ctx, &model.AgreementConfirmation{
		NegotiationID: n.ID, PartyID: f.client, Role: model.RoleRequester, PriceCents: 62000}))
	require.NoError(t, f.store.CreateConfirmation(ctx, &model.AgreementConfirmation{
		NegotiationID: n.ID, PartyID: f.provider, Role: model.RoleProvider, PriceCents: 62000}))

	active, err := f.store.ActiveConfirmations(ctx, n.ID)
	require.NoError(t, err)
	assert.Len(t, active, 2)

	require.NoError(t, f.store.DeactivatePartyConfirmations(ctx, n.ID, f.client))
	active, err = f.store.ActiveConfirmations(ctx, n.ID)
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, f.provider, active[0].PartyID)

	// only confirmations up to the cutoff are retired
	cutoff := active[0].ID
	late := model.AgreementConfirmation{NegotiationID: n.ID, PartyID: f.client, Role: model.RoleRequester, PriceCents: 64000}
	require.NoError(t, f.store.CreateConfirmation(ctx, &late))
	require.NoError(t, f.store.DeactivateConfirmationsThrough(ctx, n.ID, cutoff))
	active, err = f.store.ActiveConfirmations(ctx, n.ID)
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, late.ID, active[0].ID)

	require.NoError(t, f.store.DeactivateConfirmations(ctx, n.ID))
	active, err = f.store.ActiveConfirmations(ctx, n.ID)
	require.NoError(t, err)
	assert.Empty(t, active)
}

func TestNegotiationRepo_ListAndCount(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	a := f.negotiation(t)
	f.negotiation(t)

	a.Status = model.StatusDeclined
	require.NoError(t, f.store.UpdateNegotiation(ctx, &a, a.Version))

	all, err := f.store.ListNegotiationsByParty(ctx, f.client, "", 10, 0)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	pending, err := f.store.ListNegotiationsByParty(ctx, f.provider, model.StatusPending, 10, 0)
	require.NoError(t, err)
	assert.Len(t, pending, 1)

	counts, err := f.store.CountNegotiationsByStatus(ctx, f.client)
	require.NoError(t, err)
	assert.Equal(t, 1, counts[model.StatusPending])
	assert.Equal(t, 1, counts[model.StatusDeclined])

	none, err := f.store.ListNegotiationsByParty(ctx, 9999, "", 10, 0)
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestJobRepo_OneJobPerNegotiation(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	n := f.negotiation(t)

	deadline := time.Now().Add(7 * 24 * time.Hour).UTC().Truncate(time.Millisecond)
	job := model.Job{
		NegotiationID: n.ID, ServiceID: f.service.ID, RequesterID: f.client, ProviderID: f.provider,
		Status: model.JobInProgress, PaymentCents: 62000, Deadline: deadline, Description: "Build it",
	}
	require.NoError(t, f.store.CreateJob(ctx, &job))
	assert.NotZero(t, job.ID)

	dup := job
	dup.ID = 0
	assert.ErrorIs(t, f.store.CreateJob(ctx, &dup), repository.ErrDuplicate)

	got, err := f.store.GetJobByNegotiation(ctx, n.ID)
	require.NoError(t, err)
	assert.Equal(t, job.ID, got.ID)
	assert.Equal(t, int64(62000), got.PaymentCents)
	assert.True(t, deadline.Equal(got.Deadline))

	count, err := f.store.CountJobs(ctx, f.provider, model.JobInProgress)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	list, err := f.store.ListJobsByParty(ctx, f.client, 10, 0)
	require.NoError(t, err)
	assert.Len(t, list, 1)

	require.NoError(t, f.store.DeleteJob(ctx, job.ID))
	_, err = f.store.GetJob(ctx, job.ID)
	assert.ErrorIs(t, err, repository.ErrNotFound)
	_, err = f.store.GetJobByNegotiation(ctx, n.ID)
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func TestNotificationRepo_IdempotentSave(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	notes := repository.NewNotificationRepo(f.db)

	ev := model.NotificationEvent{
		ID: "ev-1", UserID: f.client, Type: model.EventNegotiationProposed,
		Title: "New proposal", Message: "Dev proposed $650.00",
		Metadata:  map[string]string{"negotiation_id": "1"},
		CreatedAt: time.Now(),
	}
	require.NoError(t, notes.SaveNotification(ctx, ev))
	require.NoError(t, notes.SaveNotification(ctx, ev), "redelivery is absorbed")
	require.NoError(t, notes.SaveNotification(ctx, model.NotificationEvent{
		ID: "ev-2", UserID: f.client, Type: model.EventJobCreated, Title: "Job created", Message: "m",
	}))

	list, err := notes.ListByUser(ctx, f.client, false, 10, 0)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "ev-2", list[0].EventID, "newest first")
	assert.Equal(t, "1", list[1].Metadata["negotiation_id"])

	unread, err := notes.CountUnread(ctx, f.client)
	require.NoError(t, err)
	assert.Equal(t, 2, unread)

	assert.ErrorIs(t, notes.MarkRead(ctx, list[0].ID, f.provider), repository.ErrNotFound, "not the owner")
	require.NoError(t, notes.MarkRead(ctx, list[0].ID, f.client))

	onlyUnread, err := notes.ListByUser(ctx, f.client, true, 10, 0)
	require.NoError(t, err)
	require.Len(t, onlyUnread, 1)
	assert.Equal(t, "ev-1", onlyUnread[0].EventID)
}
