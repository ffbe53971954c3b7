package router

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/basicauth"
	"github.com/gofiber/fiber/v2/middleware/limiter"

	"github.com/iamhvsharma/razorpay-webhook/app/controllers"
	"github.com/iamhvsharma/razorpay-webhook/internal/pkg/env"
	"github.com/iamhvsharma/razorpay-webhook/internal/pkg/razorpay"
)

type ApiRouter struct {
}

func (h ApiRouter) InstallRouter(app *fiber.App) {
	api := app.Group("/api", limiter.New())

	// API v1 routes
	v1 := api.Group("/v1")

	orderCtrl := controllers.NewOrderController(
		razorpay.NewClientFromEnv(),
		env.GetEnv("RAZORPAY_KEY_ID", ""),
		env.GetEnv("RAZORPAY_KEY_SECRET", ""),
	)
	v1.Post("/orders", orderCtrl.HandleCreateOrder)
	v1.Post("/payments/verify", orderCtrl.HandleVerifyPayment)

	// Ops-only counters behind basic auth.
	v1.Get("/webhook/stats", basicauth.New(basicauth.Config{
		Users: map[string]string{
			env.GetEnv("STATS_USER", "admin"): env.GetEnv("STATS_PASSWORD", "admin"),
		},
	}), controllers.HandleWebhookStats)
}

func NewApiRouter() *ApiRouter {
	return &ApiRouter{}
}
