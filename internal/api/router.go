package api

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"edustatus/internal/auth"
	"edustatus/internal/httpmiddleware"
)

// RouterOptions carries the HTTP-level settings of the server.
type RouterOptions struct {
	CORSOrigins         []string
	AuthRateLimitPerMin int
}

// Router builds the gin engine with every route mounted.
func (h *Handler) Router(opts RouterOptions) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(requestLogger(h.log, "/healthz", "/metrics"))
	r.Use(corsMiddleware(opts.CORSOrigins))
	r.Use(securityHeaders())

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	r.GET("/healthz", h.Healthz)

	limit := httpmiddleware.NewTokenBucket(opts.AuthRateLimitPerMin, opts.AuthRateLimitPerMin).GinMiddleware()

	v1 := r.Group("/v1")
	{
		authGroup := v1.Group("/auth")
		authGroup.POST("/signup", limit, h.Signup)
		authGroup.POST("/login", limit, h.Login)
		authGroup.POST("/refresh", limit, h.Refresh)
		authGroup.POST("/logout", auth.RequireAuth(h.tokens), h.Logout)
	}

	user := v1.Group("", auth.RequireAuth(h.tokens))
	{
		user.GET("/me", h.Me)
		user.POST("/no-dues", h.SubmitNoDues)
		user.POST("/bonafide", h.SubmitBonafide)
		user.GET("/submissions", h.ListSubmissions)
		user.GET("/fees", h.Fees)
		user.GET("/attendance", h.Attendance)
	}

	admin := v1.Group("/admin", auth.RequireAuth(h.tokens), auth.RequireRole(auth.RoleAdmin))
	{
		admin.GET("/submissions", h.ListAllSubmissions)
		admin.GET("/submissions/export", h.ExportSubmissions)
	}

	return r
}
