package billing

import (
	"context"
	"errors"
	"time"

	"github.com/overseer-bot/shop/app/models"
	"github.com/rs/zerolog/log"
)

const paymentStatusPaid = "paid"

// Reconciler applies verified processor events to the patron ledger. Each
// delivery runs in exactly one store transaction.
type Reconciler struct {
	repo    Repository
	catalog *TierCatalog
	now     func() time.Time
}

func NewReconciler(repo Repository, catalog *TierCatalog) *Reconciler {
	return &Reconciler{repo: repo, catalog: catalog, now: time.Now}
}

// WithClock returns a copy of the reconciler that reads time from now.
func (r *Reconciler) WithClock(now func() time.Time) *Reconciler {
	cp := *r
	cp.now = now
	return &cp
}

// Reconcile records the event and applies its ledger mutation. The returned
// error is always a *StoreError; every other result is an Outcome to ack.
func (r *Reconciler) Reconcile(ctx context.Context, ev *Envelope) (Outcome, error) {
	if ev == nil {
		return "", errors.New("nil event")
	}

	var outcome Outcome
	err := r.repo.Transaction(ctx, func(tx LedgerTx) error {
		now := r.now()
		created, err := tx.RecordWebhookEvent(&models.WebhookEvent{
			EventID:   ev.ID,
			EventType: ev.Type,
			CreatedAt: now,
		})
		if err != nil {
			return err
		}
		if !created {
			outcome = OutcomeDuplicate
			return nil
		}

		outcome, err = r.apply(tx, ev, now)
		if err != nil {
			return err
		}
		return tx.CompleteWebhookEvent(ev.ID, string(outcome), now)
	})
	if err != nil {
		log.Error().Err(err).Str("event_id", ev.ID).Str("type", ev.Type).Msg("webhook reconciliation failed")
		return "", &StoreError{Op: "reconcile " + ev.Type, Err: err}
	}

	logger := log.Info()
	if outcome.SoftReject() {
		logger = log.Warn()
	}
	logger.Str("event_id", ev.ID).Str("type", ev.Type).Str("outcome", string(outcome)).Msg("webhook reconciled")
	return outcome, nil
}

func (r *Reconciler) apply(tx LedgerTx, ev *Envelope, now time.Time) (Outcome, error) {
	switch p := ev.Payload.(type) {
	case CheckoutCompleted:
		return r.applyCheckoutCompleted(tx, p, now)
	case SubscriptionChanged:
		return r.applySubscriptionChanged(tx, p)
	case SubscriptionDeleted:
		return r.applySubscriptionDeleted(tx, p)
	default:
		return OutcomeIgnored, nil
	}
}

func (r *Reconciler) applyCheckoutCompleted(tx LedgerTx, p CheckoutCompleted, now time.Time) (Outcome, error) {
	if p.PaymentStatus != paymentStatusPaid {
		return OutcomeUnpaid, nil
	}
	if p.CorrelationToken == "" {
		return OutcomeMissingCorrelation, nil
	}

	correlation, err := tx.FindPendingCorrelation(p.CorrelationToken)
	if errors.Is(err, ErrCorrelationNotFound) {
		return OutcomeOrphan, nil
	}
	if err != nil {
		return "", err
	}

	tier, ok := r.catalog.TierForPrice(correlation.PriceID)
	if !ok {
		return OutcomeUnknownTier, nil
	}
	if p.CustomerID == "" {
		return OutcomeMissingCustomer, nil
	}

	if err := tx.UpsertPatron(&models.Patron{
		UserID:       correlation.UserID,
		GuildID:      correlation.GuildID,
		CustomerID:   p.CustomerID,
		Tier:         tier,
		SubscribedAt: now,
	}); err != nil {
		return "", err
	}
	if err := tx.MarkCorrelationConsumed(correlation.Token, now); err != nil {
		return "", err
	}

	log.Info().Str("user_id", correlation.UserID).Str("guild_id", correlation.GuildID).
		Str("tier", tier).Msg("payment complete")
	return OutcomeApplied, nil
}

func (r *Reconciler) applySubscriptionChanged(tx LedgerTx, p SubscriptionChanged) (Outcome, error) {
	if len(p.PriceIDs) == 0 {
		return OutcomeNoItems, nil
	}
	tier, ok := r.catalog.TierForPrice(p.PriceIDs[0])
	if !ok {
		return OutcomeUnknownTier, nil
	}
	if p.CustomerID == "" {
		return OutcomeNoMatch, nil
	}

	n, err := tx.UpdatePatronTierByCustomer(p.CustomerID, tier)
	if err != nil {
		return "", err
	}
	if n == 0 {
		return OutcomeNoMatch, nil
	}
	log.Info().Str("customer_id", p.CustomerID).Str("tier", tier).Msg("subscription tier updated")
	return OutcomeApplied, nil
}

func (r *Reconciler) applySubscriptionDeleted(tx LedgerTx, p SubscriptionDeleted) (Outcome, error) {
	if p.CustomerID == "" {
		return OutcomeNoMatch, nil
	}
	n, err := tx.DeletePatronByCustomer(p.CustomerID)
	if err != nil {
		return "", err
	}
	if n == 0 {
		return OutcomeNoMatch, nil
	}
	log.Info().Str("customer_id", p.CustomerID).Msg("subscription cancelled")
	return OutcomeApplied, nil
}
