package course

import (
	"github.com/gin-gonic/gin"
)

// RegisterRoutes attaches course endpoints to the router.
func RegisterRoutes(router *gin.RouterGroup, handler *Handler, staff []gin.HandlerFunc, authed []gin.HandlerFunc) {
	courses := router.Group("/courses")

	courses.GET("", append(authed, handler.List)...)
	courses.GET("/:courseId", append(authed, handler.GetByID)...)
	courses.POST("", append(staff, handler.Create)...)
	courses.PUT("/:courseId", append(staff, handler.Update)...)
	courses.DELETE("/:courseId", append(staff, handler.Delete)...)
}
