package api

import (
	"github.com/gin-gonic/gin"

	"github.com/charlesng35/notely/internal/handlers"
)

type authRouteDeps struct {
	AuthHandler  *handlers.AuthHandler
	OAuthHandler *handlers.OAuthHandler
	AuthLimit    gin.HandlerFunc
	OTPLimit     gin.HandlerFunc
}

func registerAuthRoutes(api *gin.RouterGroup, deps authRouteDeps) {
	auth := api.Group("/auth")
	{
		auth.POST("/signup", deps.AuthLimit, deps.AuthHandler.Signup)
		auth.POST("/login", deps.AuthLimit, deps.AuthHandler.Login)
		auth.POST("/verify-otp", deps.AuthLimit, deps.AuthHandler.VerifyOTP)
		auth.POST("/resend-otp", deps.OTPLimit, deps.AuthHandler.ResendOTP)

		auth.GET("/google", deps.OAuthHandler.Begin)
		auth.GET("/google/callback", deps.OAuthHandler.Callback)
	}
}
