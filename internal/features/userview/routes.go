package userview

import (
	"github.com/gin-gonic/gin"
)

// RegisterRoutes attaches view quota endpoints to the router.
func RegisterRoutes(router *gin.RouterGroup, handler *Handler, admin []gin.HandlerFunc, authed []gin.HandlerFunc) {
	router.POST("/lessons/:lessonId/view", append(authed, handler.StartView)...)

	users := router.Group("/users/:userId")
	users.GET("/views", append(admin, handler.ListUserViews)...)
	users.PUT("/lessons/:lessonId/view-limit", append(admin, handler.SetViewLimit)...)
	users.DELETE("/lessons/:lessonId/view-limit", append(admin, handler.ClearViewLimit)...)
	users.GET("/lessons/:lessonId/views", append(admin, handler.GetViews)...)
	users.DELETE("/lessons/:lessonId/views", append(admin, handler.ResetViews)...)
}
