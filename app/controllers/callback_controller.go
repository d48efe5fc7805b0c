package controllers

import (
	"errors"
	"fmt"

	"github.com/StakeSubHQ/StakeSub/app/models"
	"github.com/StakeSubHQ/StakeSub/internal/pkg/billing"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"
	"github.com/google/uuid"
)

// ProcessorCallbackHandler builds the webhook handler for one processor.
// Responses are plain text; the processor only cares about the status code.
// Recognized-but-unsuccessful payment statuses return 200 so the processor
// stops redelivering, while compensation still ran.
func ProcessorCallbackHandler(processor string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		raw := append([]byte(nil), c.BodyRaw()...)
		cid := uuid.NewString()

		result, err := billingService.ProcessCallback(c.UserContext(), processor, raw)
		if err != nil {
			switch {
			case errors.Is(err, billing.ErrInvalidSignature):
				// Security event: forged, tampered or unsigned callback.
				log.Warnf("callback rejected: processor=%s ip=%s cid=%s: %v", processor, c.IP(), cid, err)
				return c.Status(signatureFailureStatus(processor)).SendString("Invalid callback data")
			case errors.Is(err, billing.ErrMalformedCallback):
				log.Warnf("callback unparseable: processor=%s cid=%s: %v", processor, cid, err)
				return c.Status(fiber.StatusBadRequest).SendString("Malformed callback payload")
			case errors.Is(err, billing.ErrInvoiceNotFound):
				return c.Status(fiber.StatusNotFound).SendString("Invoice not found")
			default:
				log.Errorf("callback processing failed: processor=%s cid=%s: %v", processor, cid, err)
				return c.Status(fiber.StatusInternalServerError).SendString("Internal server error")
			}
		}

		if result.Status == models.InvoiceStatusPaid {
			return c.SendString("OK")
		}
		return c.SendString(fmt.Sprintf("Payment status: %s", result.ProcessorStatus))
	}
}

// signatureFailureStatus preserves each processor's documented rejection
// code: Plisio expects 422 for a failed verify_hash, Cryptomus plain 400.
func signatureFailureStatus(processor string) int {
	if processor == "plisio" {
		return fiber.StatusUnprocessableEntity
	}
	return fiber.StatusBadRequest
}
