package controllers

import (
	"context"
	"fmt"
	"time"

	"github.com/StakeSubHQ/StakeSub/app/models"
	"github.com/StakeSubHQ/StakeSub/internal/pkg/billing"
	"github.com/StakeSubHQ/StakeSub/internal/pkg/cache"
	"github.com/StakeSubHQ/StakeSub/internal/pkg/database"
	"github.com/StakeSubHQ/StakeSub/internal/pkg/entitlements"
	"github.com/StakeSubHQ/StakeSub/internal/pkg/env"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"
)

const affiliateCountTTL = 5 * time.Minute

// BillingService is the slice of the reconciliation service the HTTP layer
// uses; tests swap in a fake via SetBillingService.
type BillingService interface {
	LookupUser(username string) (*billing.UserStatus, error)
	AffiliateCount(username string) (int64, error)
	ApplyPromo(tier entitlements.Tier, code string) (map[string]float64, error)
	AdjustedPrices(username string, tier entitlements.Tier, promoCode string) (*billing.PriceSheet, error)
	CreateInvoice(ctx context.Context, in billing.CreateInvoiceInput) (*billing.CreateInvoiceResult, error)
	ProcessCallback(ctx context.Context, processor string, raw []byte) (*billing.CallbackResult, error)
	GrantTrial(username string) (*models.User, error)
}

var billingService BillingService

// InitializeBillingController wires the reconciliation service against the
// shared DB handle and the configured processors.
func InitializeBillingController() {
	processors := []billing.Processor{
		billing.NewPlisioFromEnv(),
		billing.NewCryptomusFromEnv(),
	}
	billingService = billing.NewServiceFromDB(
		database.GetDB(),
		processors,
		env.GetEnv("PAYMENT_PROCESSOR", "plisio"),
		env.GetEnv("PUBLIC_DOMAIN", ""),
	)
}

// SetBillingService replaces the service; used by tests.
func SetBillingService(svc BillingService) {
	billingService = svc
}

type verifyUserRequest struct {
	StakeUsername string `json:"stakeUsername" validate:"required,min=2,max=100"`
}

type applyPromoRequest struct {
	PromoCode        string `json:"promoCode" validate:"required,max=50"`
	SubscriptionType string `json:"subscriptionType" validate:"required"`
}

type adjustedPricesRequest struct {
	StakeUsername    string `json:"stakeUsername" validate:"required,min=2,max=100"`
	SubscriptionType string `json:"subscriptionType" validate:"required"`
	PromoCode        string `json:"promoCode" validate:"max=50"`
}

type requestTrialRequest struct {
	StakeUsername string `json:"stakeUsername" validate:"required,min=2,max=100"`
}

const subscriptionDateFormat = "January 2, 2006"

// HandleVerifyUser reports whether the user holds a valid subscription and
// what their options are if not.
func HandleVerifyUser(c *fiber.Ctx) error {
	var req verifyUserRequest
	if err := parseAndValidate(c, &req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"isValid": false,
			"message": "stakeUsername is required.",
		})
	}

	st, err := billingService.LookupUser(req.StakeUsername)
	if err != nil {
		log.Errorf("verify-user lookup failed for %s: %v", req.StakeUsername, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"message": "Internal server error."})
	}

	affiliates, err := affiliateCountCached(req.StakeUsername)
	if err != nil {
		log.Errorf("affiliate count failed for %s: %v", req.StakeUsername, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"message": "Internal server error."})
	}

	if !st.Exists {
		return c.JSON(fiber.Map{
			"isValid":           false,
			"message":           fmt.Sprintf("Welcome, %s! Please subscribe to use the application.", req.StakeUsername),
			"needsSubscription": true,
			"availableTrial":    true,
			"affiliateNumber":   affiliates,
		})
	}

	if !st.Active {
		return c.JSON(fiber.Map{
			"isValid":          false,
			"message":          fmt.Sprintf("Your subscription expired on %s. Please renew it.", st.SubscriptionEnd.Format(subscriptionDateFormat)),
			"needsRenewal":     true,
			"affiliateNumber":  affiliates,
			"referralUsername": st.ReferredBy,
		})
	}

	return c.JSON(fiber.Map{
		"isValid":          true,
		"message":          fmt.Sprintf("Welcome, %s! Your subscription is valid until %s.", req.StakeUsername, st.SubscriptionEnd.Format(subscriptionDateFormat)),
		"affiliateNumber":  affiliates,
		"referralUsername": st.ReferredBy,
	})
}

// HandleApplyPromo validates a promo code for a tier and returns the price
// table with the discount applied to that tier.
func HandleApplyPromo(c *fiber.Ctx) error {
	var req applyPromoRequest
	if err := parseAndValidate(c, &req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"message": "promoCode and subscriptionType are required.",
		})
	}

	tier, ok := entitlements.ParseTier(req.SubscriptionType)
	if !ok {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"message": "Invalid subscription type.",
		})
	}

	prices, err := billingService.ApplyPromo(tier, req.PromoCode)
	if err != nil {
		if isPromoError(err) {
			return c.JSON(fiber.Map{"success": false, "message": err.Error()})
		}
		log.Errorf("apply-promo failed for %s: %v", req.PromoCode, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"success": false,
			"message": "An error occurred while verifying the promo code.",
		})
	}

	return c.JSON(fiber.Map{
		"success":       true,
		"updatedPrices": prices,
		"appliedTo":     tier.String(),
	})
}

// HandleAdjustedPrices returns the per-tier prices for a user with their
// affiliate discount and an optional promo folded in.
func HandleAdjustedPrices(c *fiber.Ctx) error {
	var req adjustedPricesRequest
	if err := parseAndValidate(c, &req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"message": "stakeUsername and subscriptionType are required.",
		})
	}

	tier, ok := entitlements.ParseTier(req.SubscriptionType)
	if !ok {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"message": "Invalid subscription type.",
		})
	}

	sheet, err := billingService.AdjustedPrices(req.StakeUsername, tier, req.PromoCode)
	if err != nil {
		if isPromoError(err) {
			return c.JSON(fiber.Map{"success": false, "message": err.Error()})
		}
		log.Errorf("get-adjusted-prices failed for %s: %v", req.StakeUsername, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"success": false,
			"message": "Internal server error.",
		})
	}

	return c.JSON(fiber.Map{
		"success":         true,
		"adjustedPrices":  sheet.Prices,
		"affiliateNumber": sheet.AffiliateCount,
	})
}

// HandleRequestTrial grants the one-time 48h trial to a brand-new identity.
func HandleRequestTrial(c *fiber.Ctx) error {
	var req requestTrialRequest
	if err := parseAndValidate(c, &req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"message": "stakeUsername is required.",
		})
	}

	u, err := billingService.GrantTrial(req.StakeUsername)
	if err != nil {
		if err == billing.ErrTrialNotAvailable {
			return c.JSON(fiber.Map{
				"success": false,
				"message": "A trial is only available for new users.",
			})
		}
		log.Errorf("request-trial failed for %s: %v", req.StakeUsername, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"success": false,
			"message": "Internal server error.",
		})
	}

	return c.JSON(fiber.Map{
		"success": true,
		"message": fmt.Sprintf("Trial activated. Valid until %s.", u.SubscriptionEnd.Format(subscriptionDateFormat)),
	})
}

// affiliateCountCached reads the affiliate count through the cache with a
// short TTL; entitlement writes invalidate the referrer's entry.
func affiliateCountCached(username string) (int64, error) {
	key := billing.AffiliateCacheKey(username)
	if n, err := cache.GetInt(key); err == nil {
		return int64(n), nil
	}

	n, err := billingService.AffiliateCount(username)
	if err != nil {
		return 0, err
	}
	if err := cache.Set(key, n, affiliateCountTTL); err != nil {
		log.Debugf("failed to cache affiliate count for %s: %v", username, err)
	}
	return n, nil
}
