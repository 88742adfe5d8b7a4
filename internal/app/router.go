package app

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/newrelic/go-agent/v3/integrations/nrgin"
	"github.com/newrelic/go-agent/v3/newrelic"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"carpool/internal/auth"
	"carpool/internal/handler"
	"carpool/internal/middleware"
)

// RouterDeps contains all dependencies needed for the router.
type RouterDeps struct {
	UserHandler    *handler.UserHandler
	WalletHandler  *handler.WalletHandler
	RideHandler    *handler.RideHandler
	BookingHandler *handler.BookingHandler
	AdminHandler   *handler.AdminHandler
	Verifier       middleware.TokenVerifier
	RedisClient    *redis.Client // optional
	NewRelicApp    *newrelic.Application
}

// NewRouter creates a new Gin router with all routes registered.
func NewRouter(deps RouterDeps) *gin.Engine {
	router := gin.New()

	router.Use(gin.Recovery())
	if deps.NewRelicApp != nil {
		router.Use(nrgin.Middleware(deps.NewRelicApp))
	}
	router.Use(middleware.RequestLoggingMiddleware())
	router.Use(middleware.MetricsMiddleware())

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := router.Group("/v1")
	v1.POST("/users/register", deps.UserHandler.Register)

	authed := v1.Group("")
	authed.Use(middleware.AuthMiddleware(deps.Verifier))
	// Replay needs the caller, so it runs after authentication.
	if deps.RedisClient != nil {
		authed.Use(middleware.IdempotencyMiddleware(deps.RedisClient))
	}

	wallet := authed.Group("/wallet")
	{
		wallet.GET("", deps.WalletHandler.GetWallet)
		wallet.GET("/transactions", deps.WalletHandler.ListTransactions)
	}

	admin := authed.Group("/admin")
	admin.Use(middleware.RequireRole(auth.RoleAdmin))
	{
		admin.POST("/wallets/:user_id/topup", deps.AdminHandler.TopUpWallet)
	}

	rides := authed.Group("/rides")
	{
		rides.POST("", deps.RideHandler.CreateRide)
		rides.GET("/:id", deps.RideHandler.GetRide)
		rides.GET("/:id/bookings", deps.RideHandler.ListBookings)
		rides.POST("/:id/bookings", deps.BookingHandler.CreateBooking)
		rides.POST("/:id/activate", deps.RideHandler.ActivateRide)
		rides.POST("/:id/complete", deps.RideHandler.CompleteRide)
		rides.POST("/:id/cancel", deps.RideHandler.CancelRide)
	}

	bookings := authed.Group("/bookings")
	{
		bookings.GET("", deps.BookingHandler.ListBookings)
		bookings.GET("/:id", deps.BookingHandler.GetBooking)
		bookings.POST("/:id/activate", deps.BookingHandler.ActivateBooking)
		bookings.POST("/:id/cancel", deps.BookingHandler.CancelBooking)
		bookings.POST("/:id/driver-cancel", deps.BookingHandler.DriverCancelBooking)
		bookings.POST("/:id/no-show", deps.BookingHandler.ReportNoShow)
		bookings.POST("/:id/deny", deps.BookingHandler.DenyBooking)
		bookings.POST("/:id/complete", deps.BookingHandler.CompleteBooking)
	}

	return router
}
