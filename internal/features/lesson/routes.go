package lesson

import (
	"github.com/gin-gonic/gin"
)

// RegisterRoutes attaches lesson endpoints to the router. The webhook is
// registered on the root group since the provider calls it unauthenticated.
func RegisterRoutes(router *gin.RouterGroup, handler *Handler, staff []gin.HandlerFunc, authed []gin.HandlerFunc) {
	router.POST("/webhooks/video", handler.Webhook)

	router.GET("/courses/:courseId/lessons", append(authed, handler.List)...)
	router.POST("/courses/:courseId/lessons", append(staff, handler.Create)...)

	lessons := router.Group("/lessons")
	lessons.GET("/:lessonId", append(authed, handler.GetByID)...)
	lessons.PUT("/:lessonId", append(staff, handler.Update)...)
	lessons.DELETE("/:lessonId", append(staff, handler.Delete)...)
	lessons.POST("/:lessonId/upload-url", append(staff, handler.UploadURL)...)
	lessons.GET("/:lessonId/status", append(authed, handler.Status)...)
	lessons.GET("/:lessonId/thumbnail-url", append(authed, handler.ThumbnailURL)...)
}
