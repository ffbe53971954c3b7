package controllers

import (
	"log"

	"github.com/gofiber/fiber/v2"

	"github.com/iamhvsharma/razorpay-webhook/internal/pkg/metrics/counter"
)

// HandleWebhookStats reports the webhook outcome counters kept in Redis.
func HandleWebhookStats(c *fiber.Ctx) error {
	counts, err := counter.Snapshot()
	if err != nil {
		log.Printf("failed to read webhook counters: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"success": false,
			"message": "Counters unavailable",
		})
	}
	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"success":  true,
		"outcomes": counts,
	})
}
