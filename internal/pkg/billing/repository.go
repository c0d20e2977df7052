package billing

import (
	"context"
	"errors"
	"time"

	"github.com/overseer-bot/shop/app/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Repository provides the correlation store and patron ledger.
type Repository interface {
	CreatePendingCorrelation(ctx context.Context, c *models.PendingCorrelation) error
	// Transaction runs fn in one store transaction. A non-nil error from fn
	// rolls back every write fn made.
	Transaction(ctx context.Context, fn func(tx LedgerTx) error) error
	PruneCorrelations(ctx context.Context, createdBefore time.Time) (int64, error)
	Ping(ctx context.Context) error
}

// LedgerTx is the set of operations available inside a ledger transaction.
type LedgerTx interface {
	// RecordWebhookEvent inserts the event unless its ID is already present.
	RecordWebhookEvent(event *models.WebhookEvent) (bool, error)
	CompleteWebhookEvent(eventID, outcome string, at time.Time) error
	// FindPendingCorrelation locks and returns the row, or ErrCorrelationNotFound.
	FindPendingCorrelation(token string) (*models.PendingCorrelation, error)
	MarkCorrelationConsumed(token string, at time.Time) error
	// UpsertPatron inserts the row, or overwrites customer_id and tier while
	// keeping the stored subscribed_at.
	UpsertPatron(p *models.Patron) error
	UpdatePatronTierByCustomer(customerID, tier string) (int64, error)
	DeletePatronByCustomer(customerID string) (int64, error)
}

// GormRepository implements Repository on the postgres or mysql schema.
type GormRepository struct {
	db *gorm.DB
}

var _ Repository = (*GormRepository)(nil)

// NewRepository creates a billing repository backed by GORM.
func NewRepository(db *gorm.DB) *GormRepository {
	return &GormRepository{db: db}
}

func (r *GormRepository) CreatePendingCorrelation(ctx context.Context, c *models.PendingCorrelation) error {
	return r.db.WithContext(ctx).Create(c).Error
}

func (r *GormRepository) Transaction(ctx context.Context, fn func(tx LedgerTx) error) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&gormLedgerTx{db: tx})
	})
}

func (r *GormRepository) PruneCorrelations(ctx context.Context, createdBefore time.Time) (int64, error) {
	res := r.db.WithContext(ctx).Where("created_at < ?", createdBefore).Delete(&models.PendingCorrelation{})
	return res.RowsAffected, res.Error
}

func (r *GormRepository) Ping(ctx context.Context) error {
	sqlDB, err := r.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

type gormLedgerTx struct {
	db *gorm.DB
}

func (t *gormLedgerTx) RecordWebhookEvent(event *models.WebhookEvent) (bool, error) {
	res := t.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "event_id"}},
		DoNothing: true,
	}).Create(event)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (t *gormLedgerTx) CompleteWebhookEvent(eventID, outcome string, at time.Time) error {
	updates := map[string]interface{}{
		"outcome":      outcome,
		"processed_at": &at,
	}
	return t.db.Model(&models.WebhookEvent{}).Where("event_id = ?", eventID).Updates(updates).Error
}

func (t *gormLedgerTx) FindPendingCorrelation(token string) (*models.PendingCorrelation, error) {
	var c models.PendingCorrelation
	err := t.db.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("token = ?", token).
		First(&c).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrCorrelationNotFound
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (t *gormLedgerTx) MarkCorrelationConsumed(token string, at time.Time) error {
	return t.db.Model(&models.PendingCorrelation{}).
		Where("token = ? AND consumed_at IS NULL", token).
		Update("consumed_at", &at).Error
}

func (t *gormLedgerTx) UpsertPatron(p *models.Patron) error {
	return t.db.Clauses(clause.OnConflict{
		Columns: []clause.Column{
			{Name: "user_id"},
			{Name: "guild_id"},
		},
		DoUpdates: clause.AssignmentColumns([]string{
			"customer_id",
			"tier",
		}),
	}).Create(p).Error
}

func (t *gormLedgerTx) UpdatePatronTierByCustomer(customerID, tier string) (int64, error) {
	res := t.db.Model(&models.Patron{}).Where("customer_id = ?", customerID).Update("tier", tier)
	return res.RowsAffected, res.Error
}

func (t *gormLedgerTx) DeletePatronByCustomer(customerID string) (int64, error) {
	res := t.db.Where("customer_id = ?", customerID).Delete(&models.Patron{})
	return res.RowsAffected, res.Error
}
