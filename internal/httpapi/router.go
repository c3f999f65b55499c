// Package httpapi assembles the gin router.
package httpapi

import (
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"lingochat/internal/common"
	"lingochat/internal/httpapi/handlers"
	"lingochat/internal/httpapi/middleware"
)

// NewRouter builds the full route table around one shared handler set.
func NewRouter(h *handlers.Handler, jwtSecret string, log *zap.Logger) *gin.Engine {
	r := gin.New()
	r.HandleMethodNotAllowed = true

	r.Use(middleware.Recovery(log))
	r.Use(middleware.RequestID())
	r.Use(middleware.Logger(log))
	r.Use(cors.New(cors.Config{
		AllowOrigins:     []string{"*"},
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization", "Idempotency-Key"},
		ExposeHeaders:    []string{"X-Request-ID"},
		AllowCredentials: false,
		MaxAge:           12 * time.Hour,
	}))

	r.NoRoute(func(c *gin.Context) {
		common.Fail(c, http.StatusNotFound, 40400, "not found")
	})
	r.NoMethod(func(c *gin.Context) {
		common.Fail(c, http.StatusMethodNotAllowed, 40500, "method not allowed")
	})

	r.GET("/ping", h.Ping)

	r.POST("/captcha", h.SendCaptcha)
	r.POST("/users", h.CreateUser)
	r.POST("/login", h.Login)

	r.GET("/ollama/models", h.Models)
	r.GET("/ollama/status", h.Status)

	r.GET("/settings/model", h.GetModelSettings)
	r.POST("/settings/model", h.SaveModelSettings)

	r.POST("/language-recommendation", h.Recommend)

	auth := r.Group("/", middleware.AuthRequired(jwtSecret))
	{
		auth.GET("/me", h.Me)

		auth.POST("/chat", h.SendChat)
		auth.POST("/chat/history", h.ChatHistory)
		auth.GET("/chat/history", h.ChatHistory)

		auth.POST("/ollama/manage-model", h.ManageModel)
		auth.POST("/ollama/download", h.Download)
		auth.POST("/ollama/download-progress", h.DownloadProgress)
		auth.DELETE("/ollama/delete", h.DeleteModel)
		auth.POST("/ollama/jobs", h.CreateJob)
		auth.GET("/ollama/jobs/:id", h.GetJob)

		auth.GET("/settings/openai", h.GetOpenAIKey)
		auth.POST("/settings/openai", h.SaveOpenAIKey)

		auth.GET("/notes", h.ListNotes)
		auth.POST("/notes", h.CreateNote)
		auth.GET("/notes/:id", h.GetNote)
		auth.PUT("/notes/:id", h.UpdateNote)
		auth.DELETE("/notes/:id", h.DeleteNote)
	}

	return r
}
