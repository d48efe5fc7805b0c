package controllers

import (
	"errors"

	"github.com/StakeSubHQ/StakeSub/app/models"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
)

var validate = validator.New()

// parseAndValidate decodes the JSON body into dst and runs struct
// validation. Both failures are validation errors for the caller.
func parseAndValidate(c *fiber.Ctx, dst interface{}) error {
	if err := c.BodyParser(dst); err != nil {
		return err
	}
	return validate.Struct(dst)
}

// isPromoError reports whether err is one of the promo eligibility failures
// that carry a user-facing reason.
func isPromoError(err error) bool {
	return errors.Is(err, models.ErrPromoNotFound) ||
		errors.Is(err, models.ErrPromoExpired) ||
		errors.Is(err, models.ErrPromoExhausted) ||
		errors.Is(err, models.ErrPromoNotApplicable)
}
