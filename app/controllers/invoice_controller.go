package controllers

import (
	"errors"
	"fmt"

	"github.com/StakeSubHQ/StakeSub/internal/pkg/billing"
	"github.com/StakeSubHQ/StakeSub/internal/pkg/entitlements"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"
)

type createInvoiceRequest struct {
	StakeUsername    string `json:"stakeUsername" validate:"required,min=2,max=100"`
	SubscriptionType string `json:"subscriptionType" validate:"required"`
	Currency         string `json:"currency" validate:"required,max=10"`
	PromoCode        string `json:"promoCode" validate:"max=50"`
	ReferralUsername string `json:"referralUsername" validate:"max=100"`
}

// HandleCreateInvoice prices the subscription and asks the active payment
// processor for a hosted invoice. When the combined discount reaches the
// full-grant threshold the entitlement is applied directly and no invoice
// is created.
func HandleCreateInvoice(c *fiber.Ctx) error {
	var req createInvoiceRequest
	if err := parseAndValidate(c, &req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"message": "stakeUsername, subscriptionType and currency are required.",
		})
	}

	tier, ok := entitlements.ParseTier(req.SubscriptionType)
	if !ok {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"message": "Invalid subscription type.",
		})
	}

	if req.ReferralUsername != "" && req.ReferralUsername == req.StakeUsername {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"message": "You cannot refer yourself.",
		})
	}

	result, err := billingService.CreateInvoice(c.UserContext(), billing.CreateInvoiceInput{
		StakeUsername: req.StakeUsername,
		Tier:          tier,
		Currency:      req.Currency,
		PromoCode:     req.PromoCode,
		ReferredBy:    req.ReferralUsername,
	})
	if err != nil {
		if isPromoError(err) {
			return c.JSON(fiber.Map{"success": false, "message": err.Error()})
		}
		if errors.Is(err, billing.ErrProcessorFailure) {
			log.Errorf("create-invoice processor call failed for %s: %v", req.StakeUsername, err)
			return c.JSON(fiber.Map{
				"success": false,
				"message": "Failed to create the payment invoice.",
			})
		}
		log.Errorf("create-invoice failed for %s: %v", req.StakeUsername, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"message": "Internal server error."})
	}

	if result.FullGrant {
		return c.JSON(fiber.Map{
			"success": true,
			"message": fmt.Sprintf("Discount threshold reached: subscription activated until %s at no charge.",
				result.SubscriptionEnd.Format(subscriptionDateFormat)),
		})
	}

	return c.JSON(fiber.Map{
		"success":    true,
		"invoiceUrl": result.InvoiceURL,
	})
}
