package app

import (
	"time"

	"github.com/JoHi36/AnkiPlus-sub001/auth"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

// NewRouter builds the shared HTTP router for both local and Lambda execution.
func NewRouter() (*gin.Engine, error) {
	router := gin.Default()
	router.Use(cors.New(cors.Config{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{"GET", "POST", "OPTIONS"},
		AllowHeaders: []string{"Origin", "Content-Type", "Accept", "Authorization"},
		MaxAge:       12 * time.Hour,
	}))

	router.GET("/health", Health)
	// Registered before auth: Stripe authenticates via its signature header
	// over the raw body.
	router.POST("/api/stripe/webhook", StripeWebhook)

	verifier, err := auth.NewVerifierFromEnv()
	if err != nil && !auth.AuthDisabled() {
		return nil, err
	}

	// The chat proxy's gate endpoints accept either a bearer token or an
	// anonymous device id in the body.
	quota := router.Group("/")
	quota.Use(auth.OptionalMiddleware(verifier))
	quota.POST("/api/quota/check", CheckQuotaEndpoint)
	quota.POST("/api/quota/consume", ConsumeQuotaEndpoint)

	protected := router.Group("/")
	protected.Use(auth.Middleware(verifier, auth.MiddlewareConfig{
		OnAuthenticated: func(c *gin.Context, claims *auth.Claims) error {
			return UpsertUserFromClaims(c.Request.Context(), claims)
		},
	}))
	protected.GET("/api/user/quota", GetQuota)
	protected.GET("/api/user/usage-history", GetUsageHistory)
	protected.POST("/api/migrate-anonymous", MigrateAnonymous)
	protected.POST("/api/stripe/create-checkout-session", CreateCheckoutSession)
	protected.POST("/api/stripe/portal-session", CreatePortalSession)
	protected.POST("/api/stripe/verify-checkout-session", VerifyCheckoutSession)

	return router, nil
}
