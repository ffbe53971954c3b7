package router

import (
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/iamhvsharma/razorpay-webhook/app/controllers"
	"github.com/iamhvsharma/razorpay-webhook/internal/pkg/database"
	"github.com/iamhvsharma/razorpay-webhook/internal/pkg/env"
	"github.com/iamhvsharma/razorpay-webhook/internal/pkg/razorpay"
	"github.com/iamhvsharma/razorpay-webhook/internal/pkg/wallet"
)

type HttpRouter struct {
}

func (h HttpRouter) InstallRouter(app *fiber.App) {
	ledger := wallet.NewServiceFromDB(database.GetDB())
	tracker := wallet.NewEventTracker(wallet.DefaultTrackerCapacity)
	forwarder := wallet.NewForwarderFromEnv()
	client := razorpay.NewClientFromEnv()

	webhookCtrl := controllers.NewWebhookController(
		env.GetEnv("RAZORPAY_WEBHOOK_SECRET", ""),
		ledger,
		tracker,
		forwarder,
		client,
	)

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.Status(fiber.StatusOK).JSON(fiber.Map{
			"status":    "ok",
			"timestamp": time.Now().UTC().Format(time.RFC3339),
		})
	})

	app.Post("/webhook/razorpay", webhookCtrl.HandleRazorpayWebhook)
}

func NewHttpRouter() *HttpRouter {
	return &HttpRouter{}
}
