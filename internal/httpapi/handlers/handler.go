// Package handlers wires HTTP routes to the domain services.
package handlers

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"lingochat/internal/chat"
	"lingochat/internal/common"
	"lingochat/internal/config"
	"lingochat/internal/email"
	"lingochat/internal/httpapi/middleware"
	"lingochat/internal/jobs"
	"lingochat/internal/lifecycle"
	"lingochat/internal/notes"
	"lingochat/internal/ollama"
	"lingochat/internal/settings"
	"lingochat/internal/store/rabbitmq"
	"lingochat/internal/store/redisstore"
)

type Handler struct {
	DB        *gorm.DB
	Cfg       config.Config
	Redis     *redisstore.Store
	SMTP      email.SMTPConfig
	ChatSvc   *chat.Service
	NotesRepo *notes.Repo
	JobsRepo  *jobs.Repo
	Rabbit    *rabbitmq.Publisher
	Ollama    *ollama.Client
	Lifecycle *lifecycle.Manager
	Settings  *settings.Store
	Log       *zap.Logger
}

func NewHandler(
	db *gorm.DB,
	cfg config.Config,
	redis *redisstore.Store,
	chatSvc *chat.Service,
	notesRepo *notes.Repo,
	jobsRepo *jobs.Repo,
	rabbit *rabbitmq.Publisher,
	oc *ollama.Client,
	lm *lifecycle.Manager,
	st *settings.Store,
	log *zap.Logger,
) *Handler {
	if log == nil {
		log = zap.NewNop()
	}
	return &Handler{
		DB:    db,
		Cfg:   cfg,
		Redis: redis,
		SMTP: email.SMTPConfig{
			Host: cfg.SMTPHost,
			Port: cfg.SMTPPort,
			User: cfg.SMTPUser,
			Pass: cfg.SMTPPass,
			From: cfg.SMTPFrom,
		},
		ChatSvc:   chatSvc,
		NotesRepo: notesRepo,
		JobsRepo:  jobsRepo,
		Rabbit:    rabbit,
		Ollama:    oc,
		Lifecycle: lm,
		Settings:  st,
		Log:       log,
	}
}

func (h *Handler) Ping(c *gin.Context) {
	common.OK(c, gin.H{"status": "ok"})
}

// userID reads the authenticated caller set by the auth middleware.
func userID(c *gin.Context) uint64 {
	v, _ := c.Get(middleware.UserIDKey)
	id, _ := v.(uint64)
	return id
}
