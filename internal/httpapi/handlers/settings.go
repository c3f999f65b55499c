package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"lingochat/internal/common"
	"lingochat/internal/models"
	"lingochat/internal/settings"
)

// GetModelSettings returns the current chat backend selection. The stored
// API key never leaves the server.
func (h *Handler) GetModelSettings(c *gin.Context) {
	ms := h.Settings.Load()
	common.OK(c, gin.H{
		"modelType": ms.ModelType,
		"modelId":   ms.ModelID,
		"hasApiKey": ms.OpenAIAPIKey != "",
		"updatedAt": ms.UpdatedAt,
	})
}

type modelSettingsReq struct {
	ModelType    string `json:"modelType" binding:"required"`
	ModelID      string `json:"modelId"`
	OpenAIAPIKey string `json:"openaiApiKey"`
}

func (h *Handler) SaveModelSettings(c *gin.Context) {
	var req modelSettingsReq
	if err := c.ShouldBindJSON(&req); err != nil {
		common.Fail(c, http.StatusBadRequest, 40001, "modelType is required")
		return
	}

	ms, err := h.Settings.Save(req.ModelType, req.ModelID, req.OpenAIAPIKey)
	if errors.Is(err, settings.ErrInvalidModelType) {
		common.Fail(c, http.StatusBadRequest, 40005, "modelType must be openai or local")
		return
	}
	if err != nil {
		common.Fail(c, http.StatusInternalServerError, 50030, "failed to save settings")
		return
	}

	common.OK(c, gin.H{
		"modelType": ms.ModelType,
		"modelId":   ms.ModelID,
		"hasApiKey": ms.OpenAIAPIKey != "",
		"updatedAt": ms.UpdatedAt,
	})
}

// GetOpenAIKey shows whether the caller stored a personal key, masked to its
// last four characters.
func (h *Handler) GetOpenAIKey(c *gin.Context) {
	var user models.User
	err := h.DB.WithContext(c.Request.Context()).
		First(&user, "id = ?", userID(c)).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		common.Fail(c, http.StatusNotFound, 40401, "user not found")
		return
	}
	if err != nil {
		common.Fail(c, http.StatusInternalServerError, 50031, "failed to load settings")
		return
	}

	common.OK(c, gin.H{
		"hasApiKey": user.OpenAIAPIKey != "",
		"apiKey":    maskKey(user.OpenAIAPIKey),
	})
}

type openAIKeyReq struct {
	APIKey string `json:"apiKey" binding:"required"`
}

func (h *Handler) SaveOpenAIKey(c *gin.Context) {
	var req openAIKeyReq
	if err := c.ShouldBindJSON(&req); err != nil {
		common.Fail(c, http.StatusBadRequest, 40001, "apiKey is required")
		return
	}
	if !strings.HasPrefix(req.APIKey, "sk-") {
		common.Fail(c, http.StatusBadRequest, 40006, "invalid API key format")
		return
	}

	err := h.DB.WithContext(c.Request.Context()).
		Model(&models.User{}).
		Where("id = ?", userID(c)).
		Update("open_ai_api_key", req.APIKey).Error
	if err != nil {
		common.Fail(c, http.StatusInternalServerError, 50032, "failed to save key")
		return
	}

	common.OK(c, gin.H{"hasApiKey": true})
}

func maskKey(key string) string {
	if key == "" {
		return ""
	}
	if len(key) <= 4 {
		return "***"
	}
	return "***" + key[len(key)-4:]
}
