package api

import (
	"github.com/SherClockHolmes/webpush-go"
	"github.com/gin-gonic/gin"
	"github.com/patrickmn/go-cache"
	"golang.org/x/time/rate"

	"parking-reservation-backend/config"
	"parking-reservation-backend/internal/model"
	"parking-reservation-backend/internal/mw"
	"parking-reservation-backend/internal/reservation"
	"parking-reservation-backend/internal/store"
)

// NewRouter creates and configures a new Gin router.
func NewRouter(cfg config.ServerConfig, svc *reservation.Service, s store.Store, webpushOptions *webpush.Options) *gin.Engine {
	r := gin.Default()

	handler := NewHandler(svc, s, webpushOptions)

	limit := rate.Limit(cfg.RateLimitPerSec)
	catalogPages := cache.New(cfg.CacheTTL(), 2*cfg.CacheTTL())
	caching := mw.CatalogCache(catalogPages, cfg.CacheTTL())

	r.Use(mw.ConcurrencyLimit(cfg.MaxConcurrentRequests))

	// Anonymous routes
	public := r.Group("/api")
	public.Use(mw.RateLimiter(limit, cfg.RateLimitBurst, mw.ByClientIP))
	{
		public.GET("/vapid_public_key", handler.GetVAPIDPublicKey)
	}

	api := r.Group("/api")
	api.Use(mw.Identity(s), mw.RateLimiter(limit, cfg.RateLimitBurst, mw.ByUser))
	{
		// The catalog never changes at runtime.
		api.GET("/spots", caching, handler.GetSpots)
		api.GET("/spots/available", handler.GetAvailableSpots)

		api.POST("/reservations", handler.CreateReservation)
		api.GET("/reservations/my", handler.GetMyReservations)
		api.GET("/reservations/my/active", handler.GetMyActiveReservations)
		api.POST("/reservations/check-in", handler.CheckIn)
		api.PUT("/reservations/:id", handler.ModifyReservation)
		api.DELETE("/reservations/:id", handler.CancelReservation)
		api.DELETE("/reservations/group/:groupId", handler.CancelReservationGroup)

		api.GET("/subscriptions", handler.GetSubscription)
		api.PUT("/subscriptions", handler.PutSubscription)
		api.DELETE("/subscriptions", handler.DeleteSubscription)
	}

	secretary := mw.RequireRole(model.RoleSecretary)
	api.POST("/reservations/user/:userId", secretary, handler.CreateReservationForUser)

	admin := api.Group("/admin", secretary)
	{
		admin.GET("/reservations", handler.GetReservationHistory)
		admin.PUT("/reservations/:id", handler.AdminModifyReservation)
		admin.DELETE("/reservations/:id", handler.AdminCancelReservation)
	}

	return r
}
