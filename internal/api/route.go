package api

import (
	"Classboard/internal/api/config"
	"Classboard/internal/api/middleware"
	"Classboard/internal/pkg/logger"
	"net/http"

	"github.com/gin-gonic/gin"
)

func SetupRouter(group *HandlersGroup, cfg *config.Config) *gin.Engine {
	r := gin.New()
	_ = r.SetTrustedProxies([]string{"localhost"})

	// TraceId & Logger & CORS
	r.Use(middleware.TraceMiddleware())
	r.Use(middleware.AuditMiddleware())
	r.Use(middleware.CORSMiddleware())
	logger.SetupGin(r)

	apiGroup := r.Group("/api")
	{
		apiGroup.GET("/ping", func(c *gin.Context) {
			c.JSON(http.StatusOK, gin.H{
				"Code":    200,
				"Message": "pong",
				"Data":    nil,
			})
		})

		imGroup := apiGroup.Group("/im")
		{
			// 网关可整体关闭（如 Serverless 部署），关闭后客户端走轮询
			if cfg.Realtime.Enabled {
				imGroup.GET("/ws", group.WSHandler.Connect)
			}

			authGroup := imGroup.Group("")
			authGroup.Use(middleware.AuthMiddleware())
			{
				authGroup.GET("/conversations", group.IMHandler.GetConversationList)
				authGroup.GET("/conversations/recipients", group.IMHandler.GetRecipients)
				authGroup.POST("/conversations", group.IMHandler.CreateConversation)
				authGroup.GET("/conversations/:conversation_id/messages", group.IMHandler.GetMessages)
				authGroup.POST("/conversations/:conversation_id/messages", group.IMHandler.SendMessage)
				authGroup.POST("/read", group.IMHandler.MarkAsRead)
			}
		}

		notifyGroup := apiGroup.Group("/notifications")
		notifyGroup.Use(middleware.AuthMiddleware())
		{
			notifyGroup.GET("", group.NotificationHandler.GetNotificationList)
			notifyGroup.GET("/unread", group.NotificationHandler.GetUnreadCount)
			notifyGroup.POST("/:notification_id/read", group.NotificationHandler.MarkRead)
			notifyGroup.POST("/mark-all-read", group.NotificationHandler.MarkAllRead)

			// 全员/班级公告：管理员与教师手动触发扇出
			announceGroup := notifyGroup.Group("")
			announceGroup.Use(middleware.CheckRoles("ADMIN", "TEACHER"))
			{
				announceGroup.POST("/announce", group.NotificationHandler.Announce)
			}
		}
	}

	return r
}
