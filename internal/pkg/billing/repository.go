package billing

import (
	"time"

	"github.com/StakeSubHQ/StakeSub/app/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Repository provides DB operations used by the reconciliation service.
// Promo reservation/release and invoice status transitions are single
// atomic statements; correctness under concurrent webhooks relies on that.
type Repository interface {
	GetUserByUsername(username string) (*models.User, error)
	CountActiveAffiliates(username string, now time.Time) (int64, error)
	CreateUser(u *models.User) error
	ApplyEntitlement(username, tier string, start, end time.Time, referrer string) error

	GetPromoCode(code string) (*models.PromoCode, error)
	ReservePromoCode(code string) (bool, error)
	ReleasePromoCode(code string) (bool, error)

	CreateInvoice(inv *models.Invoice) error
	GetInvoiceByOrderNumber(orderNumber string) (*models.Invoice, error)
	TransitionInvoiceStatus(orderNumber, status, processorStatus, txnID string) (applied bool, found bool, err error)

	CreateWebhookEventIfNotExists(ev *models.WebhookEvent) (bool, *models.WebhookEvent, error)
	MarkWebhookProcessed(id uint, processingError string) error
}

type gormRepository struct {
	db *gorm.DB
}

// NewRepository creates a billing repository backed by GORM.
func NewRepository(db *gorm.DB) Repository {
	return &gormRepository{db: db}
}

func (r *gormRepository) GetUserByUsername(username string) (*models.User, error) {
	var u models.User
	err := r.db.Where("LOWER(stake_username) = LOWER(?)", username).First(&u).Error
	if err != nil {
		return nil, err
	}
	return &u, nil
}

func (r *gormRepository) CountActiveAffiliates(username string, now time.Time) (int64, error) {
	var n int64
	err := r.db.Model(&models.User{}).
		Where("LOWER(referred_by) = LOWER(?) AND subscription_end >= ?", username, now).
		Count(&n).Error
	return n, err
}

func (r *gormRepository) CreateUser(u *models.User) error {
	return r.db.Create(u).Error
}

// ApplyEntitlement extends an existing entitlement or creates a new one.
// An already-set referrer is never overwritten; the first writer wins.
func (r *gormRepository) ApplyEntitlement(username, tier string, start, end time.Time, referrer string) error {
	var u models.User
	err := r.db.Where("LOWER(stake_username) = LOWER(?)", username).First(&u).Error
	if err != nil {
		if err != gorm.ErrRecordNotFound {
			return err
		}
		return r.db.Create(&models.User{
			StakeUsername:     username,
			SubscriptionType:  tier,
			SubscriptionStart: start,
			SubscriptionEnd:   end,
			ReferredBy:        referrer,
		}).Error
	}

	updates := map[string]interface{}{
		"subscription_type": tier,
		"subscription_end":  end,
	}
	if referrer != "" {
		// First writer wins: only fill the referrer when none is set yet.
		updates["referred_by"] = gorm.Expr(
			"CASE WHEN referred_by IS NULL OR referred_by = '' THEN ? ELSE referred_by END", referrer)
	}
	return r.db.Model(&models.User{}).Where("id = ?", u.ID).Updates(updates).Error
}

func (r *gormRepository) GetPromoCode(code string) (*models.PromoCode, error) {
	var p models.PromoCode
	err := r.db.Where("code = ?", code).First(&p).Error
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// ReservePromoCode decrements the usage budget in one guarded statement.
// The remaining_uses > 0 predicate keeps the counter non-negative under
// concurrent reservations; exactly one of N racing callers wins the last use.
func (r *gormRepository) ReservePromoCode(code string) (bool, error) {
	tx := r.db.Model(&models.PromoCode{}).
		Where("code = ? AND remaining_uses > 0", code).
		UpdateColumn("remaining_uses", gorm.Expr("remaining_uses - 1"))
	if tx.Error != nil {
		return false, tx.Error
	}
	return tx.RowsAffected == 1, nil
}

func (r *gormRepository) ReleasePromoCode(code string) (bool, error) {
	tx := r.db.Model(&models.PromoCode{}).
		Where("code = ?", code).
		UpdateColumn("remaining_uses", gorm.Expr("remaining_uses + 1"))
	if tx.Error != nil {
		return false, tx.Error
	}
	return tx.RowsAffected == 1, nil
}

func (r *gormRepository) CreateInvoice(inv *models.Invoice) error {
	return r.db.Create(inv).Error
}

func (r *gormRepository) GetInvoiceByOrderNumber(orderNumber string) (*models.Invoice, error) {
	var inv models.Invoice
	err := r.db.Where("order_number = ?", orderNumber).First(&inv).Error
	if err != nil {
		return nil, err
	}
	return &inv, nil
}

// TransitionInvoiceStatus moves an invoice toward a terminal state in one
// conditional update. A terminal status is never overwritten; redelivering
// the same terminal status is reported as found-but-not-applied, which is
// what keeps callback side effects single-shot.
func (r *gormRepository) TransitionInvoiceStatus(orderNumber, status, processorStatus, txnID string) (bool, bool, error) {
	updates := map[string]interface{}{
		"status":           status,
		"processor_status": processorStatus,
	}
	if txnID != "" {
		updates["txn_id"] = txnID
	}

	tx := r.db.Model(&models.Invoice{}).
		Where("order_number = ? AND status NOT IN ?", orderNumber, models.TerminalInvoiceStatuses()).
		Updates(updates)
	if tx.Error != nil {
		return false, false, tx.Error
	}
	if tx.RowsAffected == 1 {
		return true, true, nil
	}

	// Nothing updated: distinguish an unknown order from an invoice that is
	// already terminal (duplicate or out-of-order delivery).
	var n int64
	if err := r.db.Model(&models.Invoice{}).Where("order_number = ?", orderNumber).Count(&n).Error; err != nil {
		return false, false, err
	}
	return false, n > 0, nil
}

func (r *gormRepository) CreateWebhookEventIfNotExists(ev *models.WebhookEvent) (bool, *models.WebhookEvent, error) {
	tx := r.db.Clauses(clause.OnConflict{
		Columns: []clause.Column{
			{Name: "processor"},
			{Name: "event_id"},
		},
		DoNothing: true,
	}).Create(ev)
	if tx.Error != nil {
		return false, nil, tx.Error
	}

	created := tx.RowsAffected > 0
	var stored models.WebhookEvent
	if err := r.db.Where("processor = ? AND event_id = ?", ev.Processor, ev.EventID).
		First(&stored).Error; err != nil {
		return false, nil, err
	}
	return created, &stored, nil
}

func (r *gormRepository) MarkWebhookProcessed(id uint, processingError string) error {
	now := time.Now()
	updates := map[string]interface{}{
		"processed_at":     &now,
		"processing_error": processingError,
	}
	return r.db.Model(&models.WebhookEvent{}).Where("id = ?", id).Updates(updates).Error
}
