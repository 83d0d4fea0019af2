package api

import (
	"slices"
	"time"

	"github.com/Rib4ko/backendYT/config"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

// CORSMiddleware allows browser front ends on the configured origins. A "*"
// entry opens every origin, in which case credentials are not allowed.
func CORSMiddleware(cfg *config.Config) gin.HandlerFunc {
	cc := cors.DefaultConfig()
	cc.AllowMethods = []string{"GET", "POST", "PATCH", "OPTIONS"}
	cc.AllowHeaders = []string{"Origin", "Content-Type", "Accept"}
	cc.ExposeHeaders = []string{"Content-Disposition", "Content-Length"}
	cc.MaxAge = 12 * time.Hour

	origins := cfg.Origins()
	if len(origins) == 0 || slices.Contains(origins, "*") {
		cc.AllowAllOrigins = true
	} else {
		cc.AllowOrigins = origins
		cc.AllowCredentials = true
	}
	return cors.New(cc)
}
