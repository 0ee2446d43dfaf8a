package router

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/yeremiapane/cafe-orders/controllers"
	"github.com/yeremiapane/cafe-orders/kds"
	"github.com/yeremiapane/cafe-orders/middlewares"
	"github.com/yeremiapane/cafe-orders/models"
	"github.com/yeremiapane/cafe-orders/services"
)

type Dependencies struct {
	DB             *gorm.DB
	Orders         *services.OrderService
	Reconciler     *services.PaymentReconciler
	Hub            *kds.KDSHub
	AllowedOrigins []string
	TrustedProxies []string
	RateLimit      float64
	RateBurst      int
}

var staffRoles = []string{models.RoleOwner, models.RoleAdmin, models.RoleStaff}

func SetupRouter(deps Dependencies) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	if err := r.SetTrustedProxies(deps.TrustedProxies); err != nil {
		r.SetTrustedProxies(nil)
	}

	r.Use(middlewares.RequestID())
	r.Use(middlewares.LoggerMiddleware())
	r.Use(middlewares.SecurityHeaders())
	r.Use(middlewares.CORSMiddlewares(deps.AllowedOrigins))

	userCtrl := controllers.NewUserController(deps.DB)
	orderCtrl := controllers.NewOrderController(deps.Orders)
	paymentCtrl := controllers.NewPaymentController(deps.Reconciler)
	kdsCtrl := controllers.NewKDSController(deps.Hub, deps.AllowedOrigins)

	limiter := middlewares.NewRateLimiter(deps.RateLimit, deps.RateBurst)

	// ----------------------------------------------------------------
	//                      PUBLIC ROUTES
	// ----------------------------------------------------------------
	r.GET("/ping", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"message": "pong"})
	})

	api := r.Group("/api")
	orders := api.Group("/orders")
	{
		orders.POST("", limiter.RateLimit(), orderCtrl.PlaceOrder)
		orders.POST("/:orderCode/payment", limiter.RateLimit(), orderCtrl.InitiatePayment)
		orders.GET("/track/:orderCode", orderCtrl.TrackOrder)
	}

	// Gateway callback, authenticated by HMAC signature
	api.POST("/payments/webhook",
		middlewares.WebhookBodyLimit(middlewares.MaxWebhookBody),
		middlewares.LogWebhookRequest(),
		paymentCtrl.HandleWebhook,
	)

	api.POST("/admin/login", limiter.RateLimit(), userCtrl.Login)

	// ----------------------------------------------------------------
	//                      STAFF ROUTES
	// ----------------------------------------------------------------
	admin := api.Group("/admin")
	admin.Use(middlewares.AuthMiddleware(), middlewares.RequireRoles(staffRoles...))
	{
		admin.GET("/orders/:orderId", orderCtrl.GetOrder)
		admin.PUT("/orders/:orderId/status", orderCtrl.UpdateStatus)
		admin.PUT("/orders/:orderId/complete", orderCtrl.CompleteOrder)
		admin.GET("/payments/webhook-metrics", paymentCtrl.WebhookMetrics)
	}

	// Dashboard live feed
	ws := r.Group("/ws")
	ws.Use(middlewares.WebSocketAuthMiddleware(), middlewares.RequireRoles(staffRoles...))
	{
		ws.GET("/orders", kdsCtrl.KDSHandler)
	}

	return r
}
