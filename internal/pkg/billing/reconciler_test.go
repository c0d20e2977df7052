package billing_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/overseer-bot/shop/app/models"
	"github.com/overseer-bot/shop/internal/pkg/billing"
	"github.com/overseer-bot/shop/internal/pkg/billing/memory"
)

func newTestReconciler(t *testing.T, repo billing.Repository) *billing.Reconciler {
	t.Helper()
	return billing.NewReconciler(repo, testCatalog(t)).WithClock(clock)
}

func seedCorrelation(t *testing.T, repo *memory.Repository, token, priceID string) {
	t.Helper()
	require.NoError(t, repo.CreatePendingCorrelation(context.Background(), &models.PendingCorrelation{
		Token:     token,
		UserID:    "111",
		GuildID:   "222",
		PriceID:   priceID,
		CreatedAt: fixedNow.Add(-time.Minute),
	}))
}

func checkoutEvent(id, paymentStatus, token, customer string) *billing.Envelope {
	return &billing.Envelope{
		ID:   id,
		Type: "checkout.session.completed",
		Payload: billing.CheckoutCompleted{
			SessionID:        "cs_" + id,
			PaymentStatus:    paymentStatus,
			CorrelationToken: token,
			CustomerID:       customer,
		},
	}
}

func subscriptionUpdated(id, customer string, prices ...string) *billing.Envelope {
	return &billing.Envelope{
		ID:      id,
		Type:    "customer.subscription.updated",
		Payload: billing.SubscriptionChanged{SubscriptionID: "sub_1", CustomerID: customer, PriceIDs: prices},
	}
}

func subscriptionDeleted(id, customer string) *billing.Envelope {
	return &billing.Envelope{
		ID:      id,
		Type:    "customer.subscription.deleted",
		Payload: billing.SubscriptionDeleted{SubscriptionID: "sub_1", CustomerID: customer},
	}
}

func TestReconcile_PaidCheckoutCreatesPatron(t *testing.T) {
	repo := memory.New()
	seedCorrelation(t, repo, "tok_abc", "price_basic")
	r := newTestReconciler(t, repo)

	outcome, err := r.Reconcile(context.Background(), checkoutEvent("evt_1", "paid", "tok_abc", "cus_1"))
	require.NoError(t, err)
	assert.Equal(t, billing.OutcomeApplied, outcome)

	p, ok := repo.Patron("111", "222")
	require.True(t, ok)
	assert.Equal(t, "cus_1", p.CustomerID)
	assert.Equal(t, "basic", p.Tier)
	assert.True(t, p.SubscribedAt.Equal(fixedNow))

	correlations := repo.Correlations()
	require.Len(t, correlations, 1)
	require.NotNil(t, correlations[0].ConsumedAt)
	assert.True(t, correlations[0].ConsumedAt.Equal(fixedNow))

	ev, ok := repo.WebhookEvent("evt_1")
	require.True(t, ok)
	assert.Equal(t, string(billing.OutcomeApplied), ev.Outcome)
	require.NotNil(t, ev.ProcessedAt)
}

func TestReconcile_RedeliveryIsDuplicate(t *testing.T) {
	repo := memory.New()
	seedCorrelation(t, repo, "tok_abc", "price_basic")
	r := newTestReconciler(t, repo)
	ev := checkoutEvent("evt_1", "paid", "tok_abc", "cus_1")

	_, err := r.Reconcile(context.Background(), ev)
	require.NoError(t, err)
	before := repo.Patrons()

	outcome, err := r.Reconcile(context.Background(), ev)
	require.NoError(t, err)
	assert.Equal(t, billing.OutcomeDuplicate, outcome)
	assert.Equal(t, before, repo.Patrons())
}

func TestReconcile_ReplayedTokenWithNewEventIDIsIdempotent(t *testing.T) {
	repo := memory.New()
	seedCorrelation(t, repo, "tok_abc", "price_basic")
	r := newTestReconciler(t, repo)

	_, err := r.Reconcile(context.Background(), checkoutEvent("evt_1", "paid", "tok_abc", "cus_1"))
	require.NoError(t, err)

	later := billing.NewReconciler(repo, testCatalog(t)).WithClock(func() time.Time { return fixedNow.Add(time.Hour) })
	outcome, err := later.Reconcile(context.Background(), checkoutEvent("evt_2", "paid", "tok_abc", "cus_1"))
	require.NoError(t, err)
	assert.Equal(t, billing.OutcomeApplied, outcome)

	patrons := repo.Patrons()
	require.Len(t, patrons, 1)
	assert.True(t, patrons[0].SubscribedAt.Equal(fixedNow), "subscribed_at must keep the first checkout time")

	c := repo.Correlations()[0]
	require.NotNil(t, c.ConsumedAt)
	assert.True(t, c.ConsumedAt.Equal(fixedNow), "consumed_at is set once")
}

func TestReconcile_TierChangeOnResubscribe(t *testing.T) {
	repo := memory.New()
	repo.SeedPatron(models.Patron{UserID: "111", GuildID: "222", CustomerID: "cus_old", Tier: "basic", SubscribedAt: fixedNow.Add(-48 * time.Hour)})
	seedCorrelation(t, repo, "tok_new", "price_premium")
	r := newTestReconciler(t, repo)

	outcome, err := r.Reconcile(context.Background(), checkoutEvent("evt_1", "paid", "tok_new", "cus_new"))
	require.NoError(t, err)
	assert.Equal(t, billing.OutcomeApplied, outcome)

	p, ok := repo.Patron("111", "222")
	require.True(t, ok)
	assert.Equal(t, "premium", p.Tier)
	assert.Equal(t, "cus_new", p.CustomerID)
	assert.True(t, p.SubscribedAt.Equal(fixedNow.Add(-48*time.Hour)))
}

func TestReconcile_CheckoutSoftRejects(t *testing.T) {
	tests := []struct {
		name string
		ev   *billing.Envelope
		want billing.Outcome
	}{
		{name: "unpaid", ev: checkoutEvent("evt_1", "unpaid", "tok_abc", "cus_1"), want: billing.OutcomeUnpaid},
		{name: "no payment status", ev: checkoutEvent("evt_1", "", "tok_abc", "cus_1"), want: billing.OutcomeUnpaid},
		{name: "missing token", ev: checkoutEvent("evt_1", "paid", "", "cus_1"), want: billing.OutcomeMissingCorrelation},
		{name: "unknown token", ev: checkoutEvent("evt_1", "paid", "tok_nope", "cus_1"), want: billing.OutcomeOrphan},
		{name: "missing customer", ev: checkoutEvent("evt_1", "paid", "tok_abc", ""), want: billing.OutcomeMissingCustomer},
		{name: "retired price", ev: checkoutEvent("evt_1", "paid", "tok_retired", "cus_1"), want: billing.OutcomeUnknownTier},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := memory.New()
			seedCorrelation(t, repo, "tok_abc", "price_basic")
			seedCorrelation(t, repo, "tok_retired", "price_legacy")
			r := newTestReconciler(t, repo)

			outcome, err := r.Reconcile(context.Background(), tt.ev)
			require.NoError(t, err)
			assert.Equal(t, tt.want, outcome)
			assert.Empty(t, repo.Patrons())
			for _, c := range repo.Correlations() {
				assert.Nil(t, c.ConsumedAt, c.Token)
			}

			ev, ok := repo.WebhookEvent(tt.ev.ID)
			require.True(t, ok)
			assert.Equal(t, string(tt.want), ev.Outcome)
		})
	}
}

func TestReconcile_SubscriptionUpdated(t *testing.T) {
	repo := memory.New()
	repo.SeedPatron(models.Patron{UserID: "111", GuildID: "222", CustomerID: "cus_1", Tier: "basic", SubscribedAt: fixedNow})
	repo.SeedPatron(models.Patron{UserID: "333", GuildID: "444", CustomerID: "cus_2", Tier: "basic", SubscribedAt: fixedNow})
	r := newTestReconciler(t, repo)

	outcome, err := r.Reconcile(context.Background(), subscriptionUpdated("evt_1", "cus_1", "price_premium", "price_basic"))
	require.NoError(t, err)
	assert.Equal(t, billing.OutcomeApplied, outcome)

	p, _ := repo.Patron("111", "222")
	assert.Equal(t, "premium", p.Tier)
	other, _ := repo.Patron("333", "444")
	assert.Equal(t, "basic", other.Tier)
}

func TestReconcile_SubscriptionUpdatedRejects(t *testing.T) {
	tests := []struct {
		name string
		ev   *billing.Envelope
		want billing.Outcome
	}{
		{name: "no items", ev: subscriptionUpdated("evt_1", "cus_1"), want: billing.OutcomeNoItems},
		{name: "unknown price", ev: subscriptionUpdated("evt_1", "cus_1", "price_legacy"), want: billing.OutcomeUnknownTier},
		{name: "no patron", ev: subscriptionUpdated("evt_1", "cus_unknown", "price_premium"), want: billing.OutcomeNoMatch},
		{name: "no customer", ev: subscriptionUpdated("evt_1", "", "price_premium"), want: billing.OutcomeNoMatch},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := memory.New()
			repo.SeedPatron(models.Patron{UserID: "111", GuildID: "222", CustomerID: "cus_1", Tier: "basic", SubscribedAt: fixedNow})
			r := newTestReconciler(t, repo)

			outcome, err := r.Reconcile(context.Background(), tt.ev)
			require.NoError(t, err)
			assert.Equal(t, tt.want, outcome)

			p, _ := repo.Patron("111", "222")
			assert.Equal(t, "basic", p.Tier)
		})
	}
}

func TestReconcile_SubscriptionDeleted(t *testing.T) {
	repo := memory.New()
	repo.SeedPatron(models.Patron{UserID: "111", GuildID: "222", CustomerID: "cus_1", Tier: "basic", SubscribedAt: fixedNow})
	r := newTestReconciler(t, repo)

	outcome, err := r.Reconcile(context.Background(), subscriptionDeleted("evt_1", "cus_1"))
	require.NoError(t, err)
	assert.Equal(t, billing.OutcomeApplied, outcome)
	assert.Empty(t, repo.Patrons())

	outcome, err = r.Reconcile(context.Background(), subscriptionDeleted("evt_2", "cus_1"))
	require.NoError(t, err)
	assert.Equal(t, billing.OutcomeNoMatch, outcome)
}

func TestReconcile_UnrecognizedEventIsIgnored(t *testing.T) {
	repo := memory.New()
	r := newTestReconciler(t, repo)

	outcome, err := r.Reconcile(context.Background(), &billing.Envelope{ID: "evt_1", Type: "invoice.paid", Payload: billing.Unrecognized{}})
	require.NoError(t, err)
	assert.Equal(t, billing.OutcomeIgnored, outcome)

	ev, ok := repo.WebhookEvent("evt_1")
	require.True(t, ok)
	assert.Equal(t, "invoice.paid", ev.EventType)
}

func TestReconcile_StoreFailureRollsBack(t *testing.T) {
	base := memory.New()
	seedCorrelation(t, base, "tok_abc", "price_basic")
	repo := &failingRepo{Repository: base, failTx: "consume"}
	r := newTestReconciler(t, repo)

	_, err := r.Reconcile(context.Background(), checkoutEvent("evt_1", "paid", "tok_abc", "cus_1"))
	require.Error(t, err)
	assert.True(t, billing.IsStoreError(err))
	assert.ErrorIs(t, err, errStoreDown)

	assert.Empty(t, base.Patrons(), "patron upsert must roll back with the failed transaction")
	_, recorded := base.WebhookEvent("evt_1")
	assert.False(t, recorded, "a failed delivery must stay retryable")

	repo.failTx = ""
	outcome, err := r.Reconcile(context.Background(), checkoutEvent("evt_1", "paid", "tok_abc", "cus_1"))
	require.NoError(t, err)
	assert.Equal(t, billing.OutcomeApplied, outcome)
	assert.Len(t, base.Patrons(), 1)
}

func TestReconcile_SubscriptionStoreFailure(t *testing.T) {
	base := memory.New()
	base.SeedPatron(models.Patron{UserID: "111", GuildID: "222", CustomerID: "cus_1", Tier: "basic", SubscribedAt: fixedNow})
	r := newTestReconciler(t, &failingRepo{Repository: base, failTx: "update"})

	_, err := r.Reconcile(context.Background(), subscriptionUpdated("evt_1", "cus_1", "price_premium"))
	assert.True(t, billing.IsStoreError(err))

	p, _ := base.Patron("111", "222")
	assert.Equal(t, "basic", p.Tier)
}

func TestReconcile_CancelledContext(t *testing.T) {
	r := newTestReconciler(t, memory.New())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := r.Reconcile(ctx, subscriptionDeleted("evt_1", "cus_1"))
	assert.True(t, billing.IsStoreError(err))
}
