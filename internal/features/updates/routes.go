package updates

import (
	"github.com/gin-gonic/gin"
)

// RegisterRoutes attaches the course updates stream to the router.
func RegisterRoutes(router *gin.RouterGroup, handler *Handler, authed []gin.HandlerFunc) {
	router.GET("/courses/:courseId/updates", append(authed, handler.Stream)...)
}
