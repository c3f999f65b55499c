package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"lingochat/internal/common"
	"lingochat/internal/recommend"
)

type recommendReq struct {
	NativeLanguage string `json:"nativeLanguage" binding:"required"`
	TargetLanguage string `json:"targetLanguage" binding:"required"`
	FilterType     string `json:"filterType"`
}

const maxRecommendations = 5

// Recommend ranks local models for a native/target language pair, either by
// combined score or smallest-capable-first.
func (h *Handler) Recommend(c *gin.Context) {
	var req recommendReq
	if err := c.ShouldBindJSON(&req); err != nil {
		common.Fail(c, http.StatusBadRequest, 40001, "nativeLanguage and targetLanguage are required")
		return
	}

	if _, ok := recommend.Languages[req.NativeLanguage]; !ok {
		common.Fail(c, http.StatusBadRequest, 40007, "unsupported native language")
		return
	}
	if _, ok := recommend.Languages[req.TargetLanguage]; !ok {
		common.Fail(c, http.StatusBadRequest, 40007, "unsupported target language")
		return
	}

	var list []recommend.Recommendation
	switch req.FilterType {
	case "", "recommendation":
		list = recommend.ByScore(req.NativeLanguage, req.TargetLanguage)
	case "size":
		list = recommend.BySize(req.NativeLanguage, req.TargetLanguage)
	default:
		common.Fail(c, http.StatusBadRequest, 40008, "filterType must be recommendation or size")
		return
	}

	if len(list) > maxRecommendations {
		list = list[:maxRecommendations]
	}

	common.OK(c, gin.H{
		"nativeLanguage": recommend.Languages[req.NativeLanguage],
		"targetLanguage": recommend.Languages[req.TargetLanguage],
		"filterType":     req.FilterType,
		"models":         list,
	})
}
