// Package memory is an in-process billing repository for local development
// and tests. Transactions are serialized by one mutex and applied to a copy
// of the state that replaces the live state only on success.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/overseer-bot/shop/app/models"
	"github.com/overseer-bot/shop/internal/pkg/billing"
)

type patronKey struct {
	userID  string
	guildID string
}

type state struct {
	correlations map[string]models.PendingCorrelation
	patrons      map[patronKey]models.Patron
	events       map[string]models.WebhookEvent
}

func newState() state {
	return state{
		correlations: make(map[string]models.PendingCorrelation),
		patrons:      make(map[patronKey]models.Patron),
		events:       make(map[string]models.WebhookEvent),
	}
}

func (s state) clone() state {
	out := state{
		correlations: make(map[string]models.PendingCorrelation, len(s.correlations)),
		patrons:      make(map[patronKey]models.Patron, len(s.patrons)),
		events:       make(map[string]models.WebhookEvent, len(s.events)),
	}
	for k, v := range s.correlations {
		out.correlations[k] = v
	}
	for k, v := range s.patrons {
		out.patrons[k] = v
	}
	for k, v := range s.events {
		out.events[k] = v
	}
	return out
}

// Repository implements billing.Repository in memory.
type Repository struct {
	mu    sync.Mutex
	state state
}

var _ billing.Repository = (*Repository)(nil)

func New() *Repository {
	return &Repository{state: newState()}
}

func (r *Repository) CreatePendingCorrelation(ctx context.Context, c *models.PendingCorrelation) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.state.correlations[c.Token]; ok {
		return fmt.Errorf("duplicate correlation token %q", c.Token)
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now()
	}
	r.state.correlations[c.Token] = *c
	return nil
}

func (r *Repository) Transaction(ctx context.Context, fn func(tx billing.LedgerTx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	tx := &ledgerTx{state: r.state.clone()}
	if err := fn(tx); err != nil {
		return err
	}
	r.state = tx.state
	return nil
}

func (r *Repository) PruneCorrelations(ctx context.Context, createdBefore time.Time) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	var n int64
	for token, c := range r.state.correlations {
		if c.CreatedAt.Before(createdBefore) {
			delete(r.state.correlations, token)
			n++
		}
	}
	return n, nil
}

func (r *Repository) Ping(ctx context.Context) error {
	return ctx.Err()
}

// Correlations returns all stored correlations ordered by token.
func (r *Repository) Correlations() []models.PendingCorrelation {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]models.PendingCorrelation, 0, len(r.state.correlations))
	for _, c := range r.state.correlations {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Token < out[j].Token })
	return out
}

// Patrons returns all ledger rows ordered by user and guild.
func (r *Repository) Patrons() []models.Patron {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]models.Patron, 0, len(r.state.patrons))
	for _, p := range r.state.patrons {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].UserID != out[j].UserID {
			return out[i].UserID < out[j].UserID
		}
		return out[i].GuildID < out[j].GuildID
	})
	return out
}

func (r *Repository) Patron(userID, guildID string) (models.Patron, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.state.patrons[patronKey{userID: userID, guildID: guildID}]
	return p, ok
}

func (r *Repository) WebhookEvent(eventID string) (models.WebhookEvent, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	ev, ok := r.state.events[eventID]
	return ev, ok
}

// SeedPatron writes a ledger row directly, bypassing reconciliation.
func (r *Repository) SeedPatron(p models.Patron) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.state.patrons[patronKey{userID: p.UserID, guildID: p.GuildID}] = p
}

type ledgerTx struct {
	state state
}

func (t *ledgerTx) RecordWebhookEvent(event *models.WebhookEvent) (bool, error) {
	if _, ok := t.state.events[event.EventID]; ok {
		return false, nil
	}
	t.state.events[event.EventID] = *event
	return true, nil
}

func (t *ledgerTx) CompleteWebhookEvent(eventID, outcome string, at time.Time) error {
	ev, ok := t.state.events[eventID]
	if !ok {
		return nil
	}
	ev.Outcome = outcome
	ev.ProcessedAt = &at
	t.state.events[eventID] = ev
	return nil
}

func (t *ledgerTx) FindPendingCorrelation(token string) (*models.PendingCorrelation, error) {
	c, ok := t.state.correlations[token]
	if !ok {
		return nil, billing.ErrCorrelationNotFound
	}
	return &c, nil
}

func (t *ledgerTx) MarkCorrelationConsumed(token string, at time.Time) error {
	c, ok := t.state.correlations[token]
	if !ok || c.ConsumedAt != nil {
		return nil
	}
	c.ConsumedAt = &at
	t.state.correlations[token] = c
	return nil
}

func (t *ledgerTx) UpsertPatron(p *models.Patron) error {
	key := patronKey{userID: p.UserID, guildID: p.GuildID}
	if existing, ok := t.state.patrons[key]; ok {
		existing.CustomerID = p.CustomerID
		existing.Tier = p.Tier
		t.state.patrons[key] = existing
		return nil
	}
	t.state.patrons[key] = *p
	return nil
}

func (t *ledgerTx) UpdatePatronTierByCustomer(customerID, tier string) (int64, error) {
	var n int64
	for key, p := range t.state.patrons {
		if p.CustomerID != customerID {
			continue
		}
		p.Tier = tier
		t.state.patrons[key] = p
		n++
	}
	return n, nil
}

func (t *ledgerTx) DeletePatronByCustomer(customerID string) (int64, error) {
	var n int64
	for key, p := range t.state.patrons {
		if p.CustomerID == customerID {
			delete(t.state.patrons, key)
			n++
		}
	}
	return n, nil
}
