package billing

import (
	"errors"
	"time"

	"github.com/StakeSubHQ/StakeSub/app/models"
	"github.com/StakeSubHQ/StakeSub/internal/pkg/entitlements"
	"gorm.io/gorm"
)

// PromoLedger guards a promo code's finite usage budget. Reservation and
// release map to single atomic guarded updates in the repository, so
// concurrent reservations on a nearly exhausted code cannot oversell it.
type PromoLedger struct {
	repo Repository
}

func NewPromoLedger(repo Repository) *PromoLedger {
	return &PromoLedger{repo: repo}
}

// Verify checks that the code exists, has budget left, has not expired and
// covers the tier. Each failure is one of the models.ErrPromo* sentinels.
func (l *PromoLedger) Verify(code string, tier entitlements.Tier, now time.Time) (float64, error) {
	promo, err := l.repo.GetPromoCode(code)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return 0, models.ErrPromoNotFound
		}
		return 0, err
	}
	if err := promo.Eligible(tier.String(), now); err != nil {
		return 0, err
	}
	return promo.Discount, nil
}

// Reserve consumes one use. False means the budget was gone by the time the
// decrement ran.
func (l *PromoLedger) Reserve(code string) (bool, error) {
	return l.repo.ReservePromoCode(code)
}

// Release restores one use after a failed or abandoned payment.
func (l *PromoLedger) Release(code string) (bool, error) {
	return l.repo.ReleasePromoCode(code)
}
