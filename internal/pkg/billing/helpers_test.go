package billing_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/overseer-bot/shop/app/models"
	"github.com/overseer-bot/shop/internal/pkg/billing"
	"github.com/overseer-bot/shop/internal/pkg/billing/memory"
)

var fixedNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func clock() time.Time { return fixedNow }

func testCatalog(t *testing.T) *billing.TierCatalog {
	t.Helper()
	c, err := billing.NewTierCatalog(map[string]string{
		"basic":   "price_basic",
		"premium": "price_premium",
	})
	if err != nil {
		t.Fatalf("NewTierCatalog: %v", err)
	}
	return c
}

type fakeProvider struct {
	mu       sync.Mutex
	requests []billing.CheckoutSessionRequest
	session  *billing.CheckoutSession
	err      error
}

func (p *fakeProvider) CreateCheckoutSession(_ context.Context, req billing.CheckoutSessionRequest) (*billing.CheckoutSession, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.requests = append(p.requests, req)
	if p.err != nil {
		return nil, p.err
	}
	if p.session != nil {
		return p.session, nil
	}
	return &billing.CheckoutSession{ID: "cs_test_1", URL: "https://checkout.example/cs_test_1"}, nil
}

func (p *fakeProvider) calls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.requests)
}

var errStoreDown = errors.New("store unavailable")

// failingRepo wraps the memory repository and fails selected operations.
type failingRepo struct {
	*memory.Repository
	failCreate bool
	failPrune  bool
	// failTx makes the ledger mutation named here fail inside the transaction.
	failTx string
}

func (r *failingRepo) CreatePendingCorrelation(ctx context.Context, c *models.PendingCorrelation) error {
	if r.failCreate {
		return errStoreDown
	}
	return r.Repository.CreatePendingCorrelation(ctx, c)
}

func (r *failingRepo) PruneCorrelations(ctx context.Context, before time.Time) (int64, error) {
	if r.failPrune {
		return 0, errStoreDown
	}
	return r.Repository.PruneCorrelations(ctx, before)
}

func (r *failingRepo) Transaction(ctx context.Context, fn func(tx billing.LedgerTx) error) error {
	return r.Repository.Transaction(ctx, func(tx billing.LedgerTx) error {
		return fn(&failingTx{LedgerTx: tx, fail: r.failTx})
	})
}

type failingTx struct {
	billing.LedgerTx
	fail string
}

func (t *failingTx) MarkCorrelationConsumed(token string, at time.Time) error {
	if t.fail == "consume" {
		return errStoreDown
	}
	return t.LedgerTx.MarkCorrelationConsumed(token, at)
}

func (t *failingTx) UpdatePatronTierByCustomer(customerID, tier string) (int64, error) {
	if t.fail == "update" {
		return 0, errStoreDown
	}
	return t.LedgerTx.UpdatePatronTierByCustomer(customerID, tier)
}

func (t *failingTx) CompleteWebhookEvent(eventID, outcome string, at time.Time) error {
	if t.fail == "complete" {
		return errStoreDown
	}
	return t.LedgerTx.CompleteWebhookEvent(eventID, outcome, at)
}
