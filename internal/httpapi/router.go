package httpapi

import (
	"github.com/gin-gonic/gin"

	"github.com/qianniu/llmbot/internal/auth"
	"github.com/qianniu/llmbot/internal/httpapi/handlers"
	"github.com/qianniu/llmbot/internal/httpapi/middleware"
)

// NewRouter wires the HTTP surface.
func NewRouter(h *handlers.Handler, issuer *auth.TokenIssuer) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.RequestID())
	r.Use(middleware.RequestLogger())
	r.Use(middleware.CORS())

	api := r.Group("/api")

	userGroup := api.Group("/user")
	{
		userGroup.POST("/captcha", h.SendCaptcha)
		userGroup.POST("/register", h.Register)
		userGroup.POST("/login", h.Login)
		userGroup.GET("/logout", middleware.AuthRequired(issuer), h.Logout)
		userGroup.GET("/recharge", middleware.AuthRequired(issuer), h.Recharge)
		userGroup.GET("/me", middleware.AuthRequired(issuer), h.Me)
	}

	api.GET("/models", h.ModelNames)
	api.GET("/models/:provider", h.ModelsByProvider)

	authed := api.Group("", middleware.AuthRequired(issuer))
	{
		authed.GET("/messages", h.MyMessages)
		authed.GET("/messages/:model", h.ConversationHistory)
		authed.POST("/chat/:provider", h.Chat)
	}

	admin := api.Group("/admin", middleware.AuthRequired(issuer), middleware.AdminRequired())
	{
		admin.GET("/users", h.UsersByRole)
		admin.GET("/user", h.UserLookup)
		admin.POST("/models", h.RegisterModel)
	}

	return r
}
